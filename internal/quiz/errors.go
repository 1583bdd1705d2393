package quiz

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAttemptLimitExceeded is returned when no attempts remain.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	// ErrCooldownActive is returned for a retake before the cooldown has elapsed.
	ErrCooldownActive = errors.New("retake cooldown active")
	// ErrAlreadyPassed is returned for a submission after the quiz was passed.
	ErrAlreadyPassed = errors.New("quiz already passed")
	// ErrAttemptInFlight is returned while another submission for the same learner and quiz runs.
	ErrAttemptInFlight = errors.New("attempt already in flight")
	// ErrAttemptConflict is returned by stores when an attempt number is already taken.
	ErrAttemptConflict = errors.New("attempt conflict")
	// ErrNotAQuiz is returned when the addressed node is missing or not a quiz.
	ErrNotAQuiz = errors.New("node is not a quiz")
	// ErrUnknownQuestionType is returned when scoring meets a question type it does not know.
	ErrUnknownQuestionType = errors.New("unknown question type")
)

// CooldownError carries the remaining wait before the next attempt is allowed.
type CooldownError struct {
	NextAttemptAt time.Time
	Remaining     time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("retake allowed at %s (in %s)", e.NextAttemptAt.Format(time.RFC3339), e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }
