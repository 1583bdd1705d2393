package certificate_test

import (
	"bytes"
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/certificate"
)

func TestMemoryRegistry_IssueIsIdempotent(t *testing.T) {
	issuedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ids := 0
	reg := certificate.NewMemoryRegistry(certificate.Options{
		Now:   func() time.Time { return issuedAt },
		NewID: func() string { ids++; return "cert-" + string(rune('0'+ids)) },
	})
	ctx := context.Background()
	req := certificate.Request{LearnerID: "u1", CourseID: "go", TemplateID: "tpl", QuizID: "final", Percentage: 90}

	first, created, err := reg.Issue(ctx, req)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !created {
		t.Error("first Issue() should create")
	}
	if first.ID != "cert-1" || !first.IssuedAt.Equal(issuedAt) {
		t.Errorf("Issue() = %+v", first)
	}

	req.Percentage = 100
	second, created, err := reg.Issue(ctx, req)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if created {
		t.Error("second Issue() should not create")
	}
	if second != first {
		t.Errorf("second Issue() = %+v, want %+v", second, first)
	}

	got, found, _ := reg.Get(ctx, "u1", "go")
	if !found || got != first {
		t.Errorf("Get() = %+v, %v", got, found)
	}
}

func TestMemoryRegistry_ConcurrentIssue(t *testing.T) {
	reg := certificate.NewMemoryRegistry(certificate.Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	ids := map[string]bool{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, ok, err := reg.Issue(ctx, certificate.Request{LearnerID: "u1", CourseID: "go", TemplateID: "tpl"})
			if err != nil {
				t.Errorf("Issue() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[c.ID] = true
			if ok {
				created++
			}
		}()
	}
	wg.Wait()
	if created != 1 || len(ids) != 1 {
		t.Errorf("created = %d, distinct ids = %d, want 1 and 1", created, len(ids))
	}
}

func TestMemoryRegistry_IssueValidation(t *testing.T) {
	reg := certificate.NewMemoryRegistry(certificate.Options{})
	tests := []struct {
		name string
		req  certificate.Request
	}{
		{"missing learner", certificate.Request{CourseID: "go", TemplateID: "tpl"}},
		{"missing course", certificate.Request{LearnerID: "u1", TemplateID: "tpl"}},
		{"missing template", certificate.Request{LearnerID: "u1", CourseID: "go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := reg.Issue(context.Background(), tt.req); err == nil {
				t.Error("Issue() should fail")
			}
		})
	}
	if _, found, _ := reg.Get(context.Background(), "u1", "go"); found {
		t.Error("failed issue must not store a certificate")
	}
}

func TestSerial(t *testing.T) {
	key := []byte("registry-key")
	s1, err := certificate.Serial(key, "u1", "go", "tpl")
	if err != nil {
		t.Fatalf("Serial() error = %v", err)
	}
	if !regexp.MustCompile(`^[0-9A-F]{4}(-[0-9A-F]{4}){4}$`).MatchString(s1) {
		t.Errorf("Serial() = %q, unexpected format", s1)
	}

	s2, _ := certificate.Serial(key, "u1", "go", "tpl")
	if s1 != s2 {
		t.Error("Serial() should be deterministic")
	}
	other, _ := certificate.Serial(key, "u1", "gotpl", "")
	if other == s1 {
		t.Error("field boundaries must affect the serial")
	}
	unkeyed, _ := certificate.Serial(nil, "u1", "go", "tpl")
	if unkeyed == s1 {
		t.Error("key must affect the serial")
	}

	if _, err := certificate.Serial(bytes.Repeat([]byte("k"), 65), "u1", "go", "tpl"); err == nil {
		t.Error("Serial() should reject keys over 64 bytes")
	}
}

func TestVerify(t *testing.T) {
	key := []byte("k")
	reg := certificate.NewMemoryRegistry(certificate.Options{Key: key})
	c, _, err := reg.Issue(context.Background(), certificate.Request{LearnerID: "u1", CourseID: "go", TemplateID: "tpl"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !certificate.Verify(key, c) {
		t.Error("Verify() = false for issued certificate")
	}
	c.LearnerID = "u2"
	if certificate.Verify(key, c) {
		t.Error("Verify() = true for tampered certificate")
	}
}

func TestNewPostgresRegistry_NilPool(t *testing.T) {
	if _, err := certificate.NewPostgresRegistry(nil, certificate.Options{}); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
