package player

import (
	"errors"
	"fmt"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrNodeNotFound   = errors.New("node not found")
	// ErrNodeLocked rejects activity on a node the learner has not unlocked.
	ErrNodeLocked = errors.New("node is locked")
	// ErrQuizNode rejects direct completion of a quiz node; quizzes complete through attempts.
	ErrQuizNode            = errors.New("quiz nodes complete through attempts")
	ErrPrerequisitesNotMet = errors.New("course prerequisites not met")
)

// PrerequisiteError lists the prerequisite courses a learner has not completed.
type PrerequisiteError struct {
	CourseID string
	Missing  []string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("course %q requires %v", e.CourseID, e.Missing)
}

func (e *PrerequisiteError) Unwrap() error { return ErrPrerequisitesNotMet }
