//go:build integration

package learner_test

import (
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/learner"
	"github.com/p-n-ai/pai-learn/internal/platform/database/dbtest"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

func TestPostgresStore(t *testing.T) {
	store, err := learner.NewPostgresStore(dbtest.New(t))
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("events keep append order", func(t *testing.T) {
		events := []progression.Event{
			{Kind: progression.EventProgress, NodeID: "c1", OccurredAt: base, TimeSpent: 30},
			{Kind: progression.EventCompleted, NodeID: "c1", OccurredAt: base.Add(time.Minute), TimeSpent: 60},
			{Kind: progression.EventAttempt, NodeID: "q1", OccurredAt: base.Add(2 * time.Minute)},
		}
		for _, ev := range events {
			if err := store.Append(ctx, learner.Record{LearnerID: "u1", CourseID: "go101", Event: ev}); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
		}
		got, err := store.Events(ctx, "u1", "go101")
		if err != nil {
			t.Fatalf("Events() error = %v", err)
		}
		if len(got) != len(events) {
			t.Fatalf("len(Events()) = %d, want %d", len(got), len(events))
		}
		for i := range events {
			if got[i].Kind != events[i].Kind || got[i].NodeID != events[i].NodeID ||
				got[i].TimeSpent != events[i].TimeSpent || !got[i].OccurredAt.Equal(events[i].OccurredAt) {
				t.Errorf("event %d = %+v, want %+v", i, got[i], events[i])
			}
		}
	})

	t.Run("invalid record is rejected", func(t *testing.T) {
		err := store.Append(ctx, learner.Record{LearnerID: "u1", CourseID: "go101",
			Event: progression.Event{Kind: progression.EventProgress, NodeID: "c1", TimeSpent: -1}})
		if err == nil {
			t.Fatal("Append() should reject negative time spent")
		}
	})

	t.Run("enroll is idempotent", func(t *testing.T) {
		first, created, err := store.Enroll(ctx, "u2", "go101", base)
		if err != nil || !created {
			t.Fatalf("Enroll() = %v, %v, want created", created, err)
		}
		again, created, err := store.Enroll(ctx, "u2", "go101", base.Add(time.Hour))
		if err != nil || created {
			t.Fatalf("second Enroll() = %v, %v, want existing", created, err)
		}
		if !again.EnrolledAt.Equal(first.EnrolledAt) {
			t.Errorf("EnrolledAt changed: %v -> %v", first.EnrolledAt, again.EnrolledAt)
		}
		all, err := store.Enrollments(ctx, "go101")
		if err != nil {
			t.Fatalf("Enrollments() error = %v", err)
		}
		if len(all) != 1 || all[0].LearnerID != "u2" {
			t.Errorf("Enrollments() = %+v", all)
		}
	})

	t.Run("snapshots round-trip modules", func(t *testing.T) {
		snap := learner.Snapshot{
			LearnerID: "u1",
			CourseID:  "go101",
			TakenAt:   base,
			Progress:  50,
			Modules: []progression.ModuleSnapshot{
				{ModuleID: "m1", IsCompleted: true, Progress: 100},
				{ModuleID: "m2", IsLocked: true},
			},
		}
		if err := store.AppendSnapshot(ctx, snap); err != nil {
			t.Fatalf("AppendSnapshot() error = %v", err)
		}
		got, err := store.Snapshots(ctx, "u1", "go101")
		if err != nil {
			t.Fatalf("Snapshots() error = %v", err)
		}
		if len(got) != 1 || len(got[0].Modules) != 2 || !got[0].Modules[1].IsLocked {
			t.Errorf("Snapshots() = %+v", got)
		}
	})
}
