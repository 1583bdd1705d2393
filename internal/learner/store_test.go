package learner_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/learner"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryStore_AppendAndEvents(t *testing.T) {
	s := learner.NewMemoryStore()
	ctx := context.Background()

	recs := []learner.Record{
		{LearnerID: "u1", CourseID: "go", Event: progression.Event{Kind: progression.EventProgress, NodeID: "n1", TimeSpent: 30, OccurredAt: t0}},
		{LearnerID: "u1", CourseID: "go", Event: progression.Event{Kind: progression.EventCompleted, NodeID: "n1", OccurredAt: t0.Add(time.Minute)}},
		{LearnerID: "u1", CourseID: "other", Event: progression.Event{Kind: progression.EventCompleted, NodeID: "x"}},
		{LearnerID: "u2", CourseID: "go", Event: progression.Event{Kind: progression.EventCompleted, NodeID: "n1"}},
	}
	for _, r := range recs {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	events, err := s.Events(ctx, "u1", "go")
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != progression.EventProgress || events[1].Kind != progression.EventCompleted {
		t.Errorf("events out of append order: %+v", events)
	}

	other, _ := s.Events(ctx, "u1", "other")
	if len(other) != 1 || other[0].OccurredAt.IsZero() {
		t.Errorf("OccurredAt should default to now, got %+v", other)
	}

	// Callers cannot mutate the log through the returned slice.
	events[0].NodeID = "tampered"
	again, _ := s.Events(ctx, "u1", "go")
	if again[0].NodeID != "n1" {
		t.Error("Events() must return a copy")
	}
}

func TestMemoryStore_AppendValidation(t *testing.T) {
	s := learner.NewMemoryStore()

	tests := []struct {
		name string
		rec  learner.Record
	}{
		{"missing learner", learner.Record{CourseID: "go", Event: progression.Event{Kind: progression.EventCompleted, NodeID: "n1"}}},
		{"missing course", learner.Record{LearnerID: "u1", Event: progression.Event{Kind: progression.EventCompleted, NodeID: "n1"}}},
		{"missing node", learner.Record{LearnerID: "u1", CourseID: "go", Event: progression.Event{Kind: progression.EventCompleted}}},
		{"unknown kind", learner.Record{LearnerID: "u1", CourseID: "go", Event: progression.Event{Kind: "skipped", NodeID: "n1"}}},
		{"negative time", learner.Record{LearnerID: "u1", CourseID: "go", Event: progression.Event{Kind: progression.EventProgress, NodeID: "n1", TimeSpent: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Append(context.Background(), tt.rec); err == nil {
				t.Error("Append() should fail")
			}
		})
	}
}

func TestMemoryStore_Enroll(t *testing.T) {
	s := learner.NewMemoryStore()
	ctx := context.Background()

	e, created, err := s.Enroll(ctx, "u1", "go", t0)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if !created || !e.EnrolledAt.Equal(t0) {
		t.Errorf("Enroll() = %+v, created=%v", e, created)
	}

	again, created, err := s.Enroll(ctx, "u1", "go", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if created {
		t.Error("second Enroll() should not create")
	}
	if !again.EnrolledAt.Equal(t0) {
		t.Errorf("EnrolledAt = %v, want original %v", again.EnrolledAt, t0)
	}

	if _, _, err := s.Enroll(ctx, "", "go", t0); err == nil {
		t.Error("Enroll() without learner should fail")
	}

	s.Enroll(ctx, "a0", "go", t0)
	s.Enroll(ctx, "u3", "rust", t0)
	list, err := s.Enrollments(ctx, "go")
	if err != nil {
		t.Fatalf("Enrollments() error = %v", err)
	}
	if len(list) != 2 || list[0].LearnerID != "a0" || list[1].LearnerID != "u1" {
		t.Errorf("Enrollments() = %+v, want a0 and u1 sorted", list)
	}

	if _, found, _ := s.Enrollment(ctx, "u3", "go"); found {
		t.Error("Enrollment(u3, go) should not exist")
	}
}

func TestMemoryStore_EnrollConcurrent(t *testing.T) {
	s := learner.NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Enroll(ctx, "u1", "go", time.Now())
			if err != nil {
				t.Errorf("Enroll() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
}

func TestMemoryStore_SnapshotsAreAppendOnly(t *testing.T) {
	s := learner.NewMemoryStore()
	ctx := context.Background()

	first := learner.Snapshot{
		LearnerID: "u1", CourseID: "go", TakenAt: t0, Progress: 50,
		Modules: []progression.ModuleSnapshot{{ModuleID: "m1", IsCompleted: true, Progress: 100}},
	}
	if err := s.AppendSnapshot(ctx, first); err != nil {
		t.Fatalf("AppendSnapshot() error = %v", err)
	}
	first.Modules[0].IsCompleted = false

	second := learner.Snapshot{LearnerID: "u1", CourseID: "go", Progress: 100}
	if err := s.AppendSnapshot(ctx, second); err != nil {
		t.Fatalf("AppendSnapshot() error = %v", err)
	}

	snaps, err := s.Snapshots(ctx, "u1", "go")
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("len(snaps) = %d, want 2", len(snaps))
	}
	if !snaps[0].Modules[0].IsCompleted {
		t.Error("stored snapshot changed after caller mutated its input")
	}
	if snaps[1].TakenAt.IsZero() {
		t.Error("TakenAt should default to now")
	}

	if err := s.AppendSnapshot(ctx, learner.Snapshot{CourseID: "go"}); err == nil {
		t.Error("AppendSnapshot() without learner should fail")
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := learner.NewPostgresStore(nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
