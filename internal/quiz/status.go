package quiz

import (
	"time"

	"github.com/p-n-ai/pai-learn/internal/course"
)

// Status is the lifecycle state of a quiz for one learner.
//
//	NotStarted -> InProgress -> Passed
//	                         -> Failed -> Retaking -> InProgress
//	                         -> AttemptsExhausted
type Status string

const (
	StatusNotStarted        Status = "not_started"
	StatusInProgress        Status = "in_progress"
	StatusPassed            Status = "passed"
	StatusFailed            Status = "failed"
	StatusRetaking          Status = "retaking"
	StatusAttemptsExhausted Status = "attempts_exhausted"
)

// Terminal reports whether no further attempts can change the status.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusAttemptsExhausted
}

// DeriveStatus computes the quiz status from the attempt history. A failed quiz
// stays Failed while a cooldown runs and becomes Retaking once a retake is allowed.
func DeriveStatus(history []Result, s course.Settings, now time.Time, inProgress bool) Status {
	for _, r := range history {
		if r.Passed {
			return StatusPassed
		}
	}
	if len(history) >= s.MaxAttempts {
		return StatusAttemptsExhausted
	}
	if inProgress {
		return StatusInProgress
	}
	if len(history) == 0 {
		return StatusNotStarted
	}
	if next := nextAttemptAt(history, s); next != nil && now.Before(*next) {
		return StatusFailed
	}
	return StatusRetaking
}
