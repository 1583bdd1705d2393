package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-learn/internal/player"
	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/quiz"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first matching sentinel wins.
var errorMappings = []errorMapping{
	{player.ErrCourseNotFound, http.StatusNotFound, "course_not_found"},
	{player.ErrNodeNotFound, http.StatusNotFound, "node_not_found"},
	{quiz.ErrNotAQuiz, http.StatusNotFound, "not_a_quiz"},
	{progression.ErrPositionOutOfRange, http.StatusNotFound, "position_out_of_range"},
	{player.ErrNodeLocked, http.StatusLocked, "node_locked"},
	{player.ErrPrerequisitesNotMet, http.StatusLocked, "prerequisites_not_met"},
	{quiz.ErrAttemptLimitExceeded, http.StatusConflict, "attempt_limit_exceeded"},
	{quiz.ErrAlreadyPassed, http.StatusConflict, "already_passed"},
	{quiz.ErrAttemptInFlight, http.StatusConflict, "attempt_in_flight"},
	{quiz.ErrAttemptConflict, http.StatusConflict, "attempt_conflict"},
	{quiz.ErrCooldownActive, http.StatusTooManyRequests, "cooldown_active"},
	{player.ErrQuizNode, http.StatusUnprocessableEntity, "quiz_node"},
	{quiz.ErrUnknownQuestionType, http.StatusUnprocessableEntity, "unknown_question_type"},
	{progression.ErrInvalidOrdering, http.StatusUnprocessableEntity, "invalid_ordering"},
}

// writeError maps err to a status and JSON body. Unknown errors are logged and
// reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		var cooldown *quiz.CooldownError
		if errors.As(err, &cooldown) {
			secs := int(math.Ceil(cooldown.Remaining.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		}
		writeJSON(w, m.status, errorBody{Error: err.Error(), Code: m.code})
		return
	}

	slog.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}
