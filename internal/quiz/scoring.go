package quiz

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-learn/internal/course"
)

// Answer is a learner's response to one question. Only the field matching the
// question type is read.
type Answer struct {
	QuestionID      string   `json:"question_id"`
	SelectedOptions []string `json:"selected_options,omitempty"`
	TrueFalse       *bool    `json:"true_false,omitempty"`
	Text            string   `json:"text,omitempty"`
}

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	QuestionID   string `json:"question_id"`
	IsCorrect    bool   `json:"is_correct"`
	PointsEarned int    `json:"points_earned"`
	MaxPoints    int    `json:"max_points"`
	// RemediationClipID is copied from the question for incorrect answers.
	RemediationClipID string `json:"remediation_clip_id,omitempty"`
}

// Score grades answers against a quiz. Unanswered questions earn nothing; answers
// for unknown questions are ignored.
func Score(q *course.Quiz, answers []Answer) ([]QuestionResult, int, int, error) {
	byID := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = a
	}

	results := make([]QuestionResult, 0, len(q.Questions))
	score, maxScore := 0, 0
	for _, question := range q.Questions {
		answer, answered := byID[question.ID]
		correct := false
		if answered {
			ok, err := isCorrect(question, answer)
			if err != nil {
				return nil, 0, 0, err
			}
			correct = ok
		}

		r := QuestionResult{
			QuestionID: question.ID,
			IsCorrect:  correct,
			MaxPoints:  question.Points,
		}
		if correct {
			r.PointsEarned = question.Points
		} else {
			r.RemediationClipID = question.RemediationClipID
		}
		score += r.PointsEarned
		maxScore += r.MaxPoints
		results = append(results, r)
	}
	return results, score, maxScore, nil
}

func isCorrect(q course.Question, a Answer) (bool, error) {
	switch q.Type {
	case course.QuestionMultipleChoice:
		if q.MultipleChoice == nil {
			return false, fmt.Errorf("question %q: multiple_choice body missing", q.ID)
		}
		return sameSet(q.MultipleChoice.CorrectOptions, a.SelectedOptions), nil
	case course.QuestionTrueFalse:
		if q.TrueFalse == nil {
			return false, fmt.Errorf("question %q: true_false body missing", q.ID)
		}
		return a.TrueFalse != nil && *a.TrueFalse == q.TrueFalse.Answer, nil
	case course.QuestionShortAnswer:
		if q.ShortAnswer == nil {
			return false, fmt.Errorf("question %q: short_answer body missing", q.ID)
		}
		given := normalize(a.Text)
		if given == "" {
			return false, nil
		}
		for _, accepted := range q.ShortAnswer.Accepted {
			if normalize(accepted) == given {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownQuestionType, q.Type)
	}
}

// normalize folds case and width and collapses whitespace.
func normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

func sameSet(want, got []string) bool {
	wantSet := make(map[string]bool, len(want))
	for _, id := range want {
		wantSet[id] = true
	}
	gotSet := make(map[string]bool, len(got))
	for _, id := range got {
		if !wantSet[id] {
			return false
		}
		gotSet[id] = true
	}
	return len(gotSet) == len(wantSet)
}
