//go:build integration

package quiz_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-learn/internal/platform/database/dbtest"
	"github.com/p-n-ai/pai-learn/internal/quiz"
)

func TestPostgresStore(t *testing.T) {
	store, err := quiz.NewPostgresStore(dbtest.New(t))
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	ctx := t.Context()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	result := func(n int, passed bool) quiz.Result {
		return quiz.Result{
			AttemptID:    uuid.NewString(),
			LearnerID:    "u1",
			CourseID:     "go101",
			QuizID:       "q1",
			Score:        n,
			MaxScore:     4,
			Percentage:   float64(n) * 25,
			Passed:       passed,
			AttemptsUsed: n,
			Questions: []quiz.QuestionResult{
				{QuestionID: "a", IsCorrect: passed, PointsEarned: n, MaxPoints: 4, RemediationClipID: "c1"},
			},
			SubmittedAt: at.Add(time.Duration(n) * time.Hour),
		}
	}

	if err := store.Append(ctx, result(1, false)); err != nil {
		t.Fatalf("Append(1) error = %v", err)
	}
	if err := store.Append(ctx, result(2, true)); err != nil {
		t.Fatalf("Append(2) error = %v", err)
	}
	if err := store.Append(ctx, result(2, true)); !errors.Is(err, quiz.ErrAttemptConflict) {
		t.Errorf("duplicate Append() error = %v, want ErrAttemptConflict", err)
	}
	if err := store.Append(ctx, result(4, true)); !errors.Is(err, quiz.ErrAttemptConflict) {
		t.Errorf("gapped Append() error = %v, want ErrAttemptConflict", err)
	}

	other := result(1, false)
	other.CourseID = "go102"
	if err := store.Append(ctx, other); err != nil {
		t.Fatalf("Append() in another course error = %v", err)
	}
	if got, _ := store.Results(ctx, "u1", "go102", "q1"); len(got) != 1 {
		t.Errorf("Results(go102) = %d attempts, want 1", len(got))
	}

	got, err := store.Results(ctx, "u1", "go101", "q1")
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Results()) = %d, want 2", len(got))
	}
	if got[0].AttemptsUsed != 1 || got[1].AttemptsUsed != 2 || !got[1].Passed {
		t.Errorf("Results() = %+v", got)
	}
	if len(got[0].Questions) != 1 || got[0].Questions[0].RemediationClipID != "c1" {
		t.Errorf("questions = %+v", got[0].Questions)
	}
	if !got[1].SubmittedAt.Equal(at.Add(2 * time.Hour)) {
		t.Errorf("SubmittedAt = %v", got[1].SubmittedAt)
	}
}
