package course

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCourse is returned for structurally invalid course content.
var ErrInvalidCourse = errors.New("invalid course")

// Validate checks the structural rules of a course. Duplicate order values are not
// rejected here: the progression engine handles them by failing closed.
func (c *Course) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.ID == "" {
		addf("course id is required")
	}
	s := c.Settings
	if s.PassingThreshold < 0 || s.PassingThreshold > 100 {
		addf("passing_threshold must be within 0..100, got %v", s.PassingThreshold)
	}
	if s.MaxAttempts < 1 {
		addf("max_attempts must be at least 1, got %d", s.MaxAttempts)
	}
	if s.RetakeCooldownHours < 0 {
		addf("retake_cooldown_hours must not be negative, got %d", s.RetakeCooldownHours)
	}
	switch s.Visibility {
	case "", VisibilityPublic, VisibilityPrivate, VisibilityUnlisted:
	default:
		addf("unknown visibility %q", s.Visibility)
	}

	seen := make(map[string]bool)
	for _, m := range c.Modules {
		if m.ID == "" {
			addf("module id is required")
		} else if seen[m.ID] {
			addf("duplicate id %q", m.ID)
		}
		seen[m.ID] = true

		for _, n := range m.Nodes {
			if n.ID == "" {
				addf("node id is required in module %q", m.ID)
				continue
			}
			if seen[n.ID] {
				addf("duplicate id %q", n.ID)
			}
			seen[n.ID] = true

			if n.EstimatedDuration <= 0 {
				addf("node %q: estimated_duration must be positive", n.ID)
			}
			switch n.Type {
			case NodeClip:
				if n.Quiz != nil {
					addf("node %q: clip nodes cannot carry a quiz", n.ID)
				}
			case NodeQuiz:
				if err := n.Quiz.validate(); err != nil {
					addf("node %q: %v", n.ID, err)
				}
			default:
				addf("node %q: unknown type %q", n.ID, n.Type)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidCourse, c.ID, strings.Join(problems, "; "))
	}
	return nil
}

func (q *Quiz) validate() error {
	if q == nil || len(q.Questions) == 0 {
		return fmt.Errorf("quiz has no questions")
	}
	ids := make(map[string]bool, len(q.Questions))
	for _, question := range q.Questions {
		if ids[question.ID] {
			return fmt.Errorf("duplicate question id %q", question.ID)
		}
		ids[question.ID] = true
		if err := question.validate(); err != nil {
			return fmt.Errorf("question %q: %w", question.ID, err)
		}
	}
	return nil
}

func (q Question) validate() error {
	if q.ID == "" {
		return fmt.Errorf("id is required")
	}
	if q.Points <= 0 {
		return fmt.Errorf("points must be positive")
	}

	variants := 0
	for _, set := range []bool{q.MultipleChoice != nil, q.TrueFalse != nil, q.ShortAnswer != nil} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return fmt.Errorf("exactly one answer variant must be set, got %d", variants)
	}

	switch q.Type {
	case QuestionMultipleChoice:
		mc := q.MultipleChoice
		if mc == nil {
			return fmt.Errorf("multiple_choice body missing")
		}
		if len(mc.CorrectOptions) == 0 {
			return fmt.Errorf("no correct options")
		}
		options := make(map[string]bool, len(mc.Options))
		for _, o := range mc.Options {
			options[o.ID] = true
		}
		for _, id := range mc.CorrectOptions {
			if !options[id] {
				return fmt.Errorf("correct option %q is not an option", id)
			}
		}
	case QuestionTrueFalse:
		if q.TrueFalse == nil {
			return fmt.Errorf("true_false body missing")
		}
	case QuestionShortAnswer:
		if q.ShortAnswer == nil || len(q.ShortAnswer.Accepted) == 0 {
			return fmt.Errorf("short_answer needs at least one accepted answer")
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}
