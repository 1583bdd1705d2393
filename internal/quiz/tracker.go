// Package quiz scores quiz submissions and governs attempts, retakes and
// certificate eligibility for quiz nodes.
package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-learn/internal/course"
)

// Result is the immutable outcome of one submitted attempt.
type Result struct {
	AttemptID           string           `json:"attempt_id"`
	LearnerID           string           `json:"learner_id"`
	CourseID            string           `json:"course_id"`
	QuizID              string           `json:"quiz_id"`
	Score               int              `json:"score"`
	MaxScore            int              `json:"max_score"`
	Percentage          float64          `json:"percentage"`
	Passed              bool             `json:"passed"`
	AttemptsUsed        int              `json:"attempts_used"`
	AttemptsRemaining   int              `json:"attempts_remaining"`
	CertificateEligible bool             `json:"certificate_eligible"`
	Questions           []QuestionResult `json:"questions"`
	SubmittedAt         time.Time        `json:"submitted_at"`
}

// Submission is a completed quiz attempt handed to the tracker.
type Submission struct {
	LearnerID string
	Course    *course.Course
	QuizID    string
	Answers   []Answer
}

// RetakeOptions tells the UI whether and when another attempt may start.
type RetakeOptions struct {
	Allowed              bool       `json:"allowed"`
	AttemptsRemaining    int        `json:"attempts_remaining"`
	CooldownHours        int        `json:"cooldown_hours"`
	NextAttemptAllowedAt *time.Time `json:"next_attempt_allowed_at,omitempty"`
	// CanRetry is true once a failed attempt exists and attempts remain.
	CanRetry bool `json:"can_retry"`
}

// TrackerConfig holds dependencies for the tracker.
type TrackerConfig struct {
	Store Store
	Guard Guard
	Now   func() time.Time
	NewID func() string
}

// Tracker records quiz attempts and enforces attempt limits and cooldowns.
type Tracker struct {
	store Store
	guard Guard
	now   func() time.Time
	newID func() string
}

// NewTracker creates a tracker. Missing dependencies fall back to in-memory versions.
func NewTracker(cfg TrackerConfig) *Tracker {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	guard := cfg.Guard
	if guard == nil {
		guard = NewMemoryGuard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Tracker{store: store, guard: guard, now: now, newID: newID}
}

// SubmitAttempt grades a submission and stores it as a new attempt.
// Nothing is stored when the attempt is rejected.
func (t *Tracker) SubmitAttempt(ctx context.Context, sub Submission) (Result, error) {
	node, module, err := quizNode(sub.Course, sub.QuizID)
	if err != nil {
		return Result{}, err
	}

	release, err := t.guard.Acquire(ctx, sub.LearnerID, sub.Course.ID, sub.QuizID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	history, err := t.store.Results(ctx, sub.LearnerID, sub.Course.ID, sub.QuizID)
	if err != nil {
		return Result{}, fmt.Errorf("loading attempts: %w", err)
	}

	settings := sub.Course.Settings
	now := t.now()
	for _, r := range history {
		if r.Passed {
			return Result{}, ErrAlreadyPassed
		}
	}
	if len(history) >= settings.MaxAttempts {
		return Result{}, fmt.Errorf("%w: %d of %d used", ErrAttemptLimitExceeded, len(history), settings.MaxAttempts)
	}
	if next := nextAttemptAt(history, settings); next != nil && now.Before(*next) {
		return Result{}, &CooldownError{NextAttemptAt: *next, Remaining: next.Sub(now)}
	}

	questions, score, maxScore, err := Score(node.Quiz, sub.Answers)
	if err != nil {
		return Result{}, err
	}
	percentage := 0.0
	if maxScore > 0 {
		percentage = 100 * float64(score) / float64(maxScore)
	}
	passed := percentage >= settings.PassingThreshold
	used := len(history) + 1

	result := Result{
		AttemptID:           t.newID(),
		LearnerID:           sub.LearnerID,
		CourseID:            sub.Course.ID,
		QuizID:              sub.QuizID,
		Score:               score,
		MaxScore:            maxScore,
		Percentage:          percentage,
		Passed:              passed,
		AttemptsUsed:        used,
		AttemptsRemaining:   remaining(settings.MaxAttempts, used),
		CertificateEligible: passed && isTerminalRequiredQuiz(module, node.ID),
		Questions:           questions,
		SubmittedAt:         now,
	}

	if err := t.store.Append(ctx, result); err != nil {
		return Result{}, fmt.Errorf("storing attempt: %w", err)
	}

	slog.Info("quiz attempt recorded",
		"learner_id", sub.LearnerID,
		"course_id", sub.Course.ID,
		"quiz_id", sub.QuizID,
		"attempt", used,
		"percentage", percentage,
		"passed", passed,
	)
	return result, nil
}

// RetakeOptions reports whether the learner may start another attempt.
func (t *Tracker) RetakeOptions(ctx context.Context, learnerID string, c *course.Course, quizID string) (RetakeOptions, error) {
	if _, _, err := quizNode(c, quizID); err != nil {
		return RetakeOptions{}, err
	}
	history, err := t.store.Results(ctx, learnerID, c.ID, quizID)
	if err != nil {
		return RetakeOptions{}, fmt.Errorf("loading attempts: %w", err)
	}
	return retakeOptions(history, c.Settings, t.now()), nil
}

// History returns every stored attempt for a learner and quiz, oldest first, with
// the remaining attempts recomputed against the course settings.
func (t *Tracker) History(ctx context.Context, learnerID string, c *course.Course, quizID string) ([]Result, error) {
	history, err := t.store.Results(ctx, learnerID, c.ID, quizID)
	if err != nil {
		return nil, fmt.Errorf("loading attempts: %w", err)
	}
	for i := range history {
		history[i].AttemptsRemaining = remaining(c.Settings.MaxAttempts, history[i].AttemptsUsed)
	}
	return history, nil
}

// Status derives the quiz state for a learner. inProgress reports an open,
// not yet submitted attempt held by the caller.
func (t *Tracker) Status(ctx context.Context, learnerID string, c *course.Course, quizID string, inProgress bool) (Status, error) {
	history, err := t.store.Results(ctx, learnerID, c.ID, quizID)
	if err != nil {
		return "", fmt.Errorf("loading attempts: %w", err)
	}
	return DeriveStatus(history, c.Settings, t.now(), inProgress), nil
}

func retakeOptions(history []Result, s course.Settings, now time.Time) RetakeOptions {
	passed := false
	for _, r := range history {
		if r.Passed {
			passed = true
		}
	}
	opts := RetakeOptions{
		AttemptsRemaining: remaining(s.MaxAttempts, len(history)),
		CooldownHours:     s.RetakeCooldownHours,
	}
	if passed {
		opts.AttemptsRemaining = 0
		return opts
	}
	opts.NextAttemptAllowedAt = nextAttemptAt(history, s)
	opts.Allowed = opts.AttemptsRemaining > 0
	if opts.Allowed && opts.NextAttemptAllowedAt != nil {
		opts.Allowed = !now.Before(*opts.NextAttemptAllowedAt)
	}
	opts.CanRetry = len(history) > 0 && opts.AttemptsRemaining > 0
	return opts
}

// nextAttemptAt returns when the cooldown after the latest attempt ends, or nil
// when no cooldown applies.
func nextAttemptAt(history []Result, s course.Settings) *time.Time {
	if s.RetakeCooldownHours <= 0 || len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	next := last.SubmittedAt.Add(time.Duration(s.RetakeCooldownHours) * time.Hour)
	return &next
}

func remaining(maxAttempts, used int) int {
	if r := maxAttempts - used; r > 0 {
		return r
	}
	return 0
}

func quizNode(c *course.Course, quizID string) (course.Node, course.Module, error) {
	node, module, ok := c.FindNode(quizID)
	if !ok || node.Type != course.NodeQuiz || node.Quiz == nil {
		return course.Node{}, course.Module{}, fmt.Errorf("%w: %q", ErrNotAQuiz, quizID)
	}
	return node, module, nil
}

// isTerminalRequiredQuiz reports whether nodeID is the last required quiz of the module.
func isTerminalRequiredQuiz(m course.Module, nodeID string) bool {
	nodes := make([]course.Node, len(m.Nodes))
	copy(nodes, m.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Order < nodes[j].Order })
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].Type == course.NodeQuiz && nodes[i].IsRequired {
			return nodes[i].ID == nodeID
		}
	}
	return false
}
