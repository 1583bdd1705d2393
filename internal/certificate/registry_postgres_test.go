//go:build integration

package certificate_test

import (
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/certificate"
	"github.com/p-n-ai/pai-learn/internal/platform/database/dbtest"
)

func TestPostgresRegistry(t *testing.T) {
	key := []byte("integration-key")
	reg, err := certificate.NewPostgresRegistry(dbtest.New(t), certificate.Options{
		Key: key,
		Now: func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewPostgresRegistry() error = %v", err)
	}
	ctx := t.Context()
	req := certificate.Request{LearnerID: "u1", CourseID: "go101", TemplateID: "tpl", QuizID: "q1", Percentage: 90}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]bool)
		created int
	)
	for range 8 {
		wg.Go(func() {
			cert, ok, err := reg.Issue(ctx, req)
			if err != nil {
				t.Errorf("Issue() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[cert.ID] = true
			if ok {
				created++
			}
		})
	}
	wg.Wait()

	if created != 1 || len(ids) != 1 {
		t.Fatalf("created = %d, distinct ids = %d, want 1 and 1", created, len(ids))
	}

	got, ok, err := reg.Get(ctx, "u1", "go101")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if !certificate.Verify(key, got) {
		t.Errorf("Verify() = false for %+v", got)
	}
	if _, ok, _ := reg.Get(ctx, "u2", "go101"); ok {
		t.Error("Get() found a certificate for an unknown learner")
	}
}
