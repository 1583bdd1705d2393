package quiz

import (
	"context"
	"fmt"
	"sync"
)

// Store persists quiz attempt results. Results are append-only.
type Store interface {
	// Results returns the attempts of a learner for a quiz of one course, oldest first.
	Results(ctx context.Context, learnerID, courseID, quizID string) ([]Result, error)
	// Append stores a new attempt. It returns ErrAttemptConflict when r.AttemptsUsed
	// is not exactly one more than the attempts already stored.
	Append(ctx context.Context, r Result) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	results map[string][]Result
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string][]Result),
	}
}

func (s *MemoryStore) Results(_ context.Context, learnerID, courseID, quizID string) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Result(nil), s.results[attemptKey(learnerID, courseID, quizID)]...), nil
}

func (s *MemoryStore) Append(_ context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attemptKey(r.LearnerID, r.CourseID, r.QuizID)
	if want := len(s.results[key]) + 1; r.AttemptsUsed != want {
		return fmt.Errorf("%w: attempt %d, expected %d", ErrAttemptConflict, r.AttemptsUsed, want)
	}
	s.results[key] = append(s.results[key], r)
	return nil
}

// attemptKey scopes attempts to a course so quiz ids reused across courses stay apart.
func attemptKey(learnerID, courseID, quizID string) string {
	return learnerID + ":" + courseID + ":" + quizID
}
