// Package api exposes the progression service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/p-n-ai/pai-learn/internal/course"
	"github.com/p-n-ai/pai-learn/internal/player"
	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/quiz"
	"github.com/p-n-ai/pai-learn/internal/report"
)

const maxBodyBytes = 1 << 20

// Check reports whether a dependency is ready.
type Check func(ctx context.Context) error

// Handler serves the HTTP API.
type Handler struct {
	svc    *player.Service
	checks map[string]Check
	mux    *http.ServeMux
}

// New creates the API handler. checks are run by /readyz.
func New(svc *player.Service, checks map[string]Check) *Handler {
	h := &Handler{svc: svc, checks: checks, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.HandleFunc("GET /readyz", h.handleReadyz)

	h.mux.HandleFunc("GET /v1/courses", h.handleCourses)
	h.mux.HandleFunc("GET /v1/courses/{courseID}/report.xlsx", h.handleReport)

	const learner = "/v1/courses/{courseID}/learners/{learnerID}"
	h.mux.HandleFunc("GET "+learner+"/state", h.handleState)
	h.mux.HandleFunc("POST "+learner+"/enroll", h.handleEnroll)
	h.mux.HandleFunc("GET "+learner+"/navigation", h.handleNavigation)
	h.mux.HandleFunc("POST "+learner+"/nodes/{nodeID}/progress", h.handleProgress)
	h.mux.HandleFunc("POST "+learner+"/nodes/{nodeID}/complete", h.handleComplete)
	h.mux.HandleFunc("POST "+learner+"/quizzes/{quizID}/attempts", h.handleSubmitAttempt)
	h.mux.HandleFunc("GET "+learner+"/quizzes/{quizID}/attempts", h.handleAttempts)
	h.mux.HandleFunc("GET "+learner+"/quizzes/{quizID}/retake", h.handleRetake)
	h.mux.HandleFunc("GET "+learner+"/certificate", h.handleCertificate)
	h.mux.HandleFunc("POST "+learner+"/snapshots", h.handleTakeSnapshot)
	h.mux.HandleFunc("GET "+learner+"/snapshots", h.handleSnapshots)
	h.mux.HandleFunc("GET "+learner+"/stream", h.handleStream)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type courseSummary struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	Visibility        course.Visibility `json:"visibility"`
	IsSelfPaced       bool              `json:"is_self_paced"`
	Prerequisites     []string          `json:"prerequisites,omitempty"`
	Modules           int               `json:"modules"`
	EstimatedDuration int               `json:"estimated_duration"`
	HasCertificate    bool              `json:"has_certificate"`
}

// handleCourses lists courses without their quiz content.
func (h *Handler) handleCourses(w http.ResponseWriter, _ *http.Request) {
	courses := h.svc.Courses()
	out := make([]courseSummary, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseSummary{
			ID:                c.ID,
			Title:             c.Title,
			Description:       c.Description,
			Visibility:        c.Settings.Visibility,
			IsSelfPaced:       c.Settings.IsSelfPaced,
			Prerequisites:     c.Settings.Prerequisites,
			Modules:           len(c.Modules),
			EstimatedDuration: c.TotalDuration(),
			HasCertificate:    c.Settings.CertificateTemplateID != "",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type stateResponse struct {
	progression.State
	Warnings []string `json:"warnings,omitempty"`
}

func newStateResponse(st progression.State) stateResponse {
	resp := stateResponse{State: st}
	for _, w := range st.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.State(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(st))
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	e, created, err := h.svc.Enroll(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, e)
}

// handleNavigation resolves ?node=<id>, ?module=<index>&node=<index>, or the resume
// position when neither is given.
func (h *Handler) handleNavigation(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID := r.PathValue("learnerID"), r.PathValue("courseID")
	q := r.URL.Query()

	var (
		pos progression.Position
		err error
	)
	switch {
	case q.Has("module"):
		mi, errM := strconv.Atoi(q.Get("module"))
		ni, errN := strconv.Atoi(q.Get("node"))
		if errM != nil || errN != nil || mi < 0 {
			badRequest(w, "module and node must be non-negative indexes")
			return
		}
		pos, err = h.svc.Navigate(r.Context(), learnerID, courseID, mi, ni)
	case q.Get("node") != "":
		pos, err = h.svc.NavigateNode(r.Context(), learnerID, courseID, q.Get("node"))
	default:
		pos, err = h.svc.Navigate(r.Context(), learnerID, courseID, -1, 0)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type timeSpentRequest struct {
	TimeSpent int `json:"time_spent"`
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req timeSpentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.TimeSpent < 0 {
		badRequest(w, "time_spent must not be negative")
		return
	}
	st, err := h.svc.RecordProgress(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"), r.PathValue("nodeID"), req.TimeSpent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(st))
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req timeSpentRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	if req.TimeSpent < 0 {
		badRequest(w, "time_spent must not be negative")
		return
	}
	st, err := h.svc.CompleteNode(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"), r.PathValue("nodeID"), req.TimeSpent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(st))
}

type attemptRequest struct {
	Answers []quiz.Answer `json:"answers"`
}

type attemptResponse struct {
	player.QuizOutcome
	State stateResponse `json:"state"`
}

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	out, err := h.svc.SubmitQuiz(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"), r.PathValue("quizID"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attemptResponse{QuizOutcome: out, State: newStateResponse(out.State)})
}

func (h *Handler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.QuizHistory(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"), r.PathValue("quizID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if history == nil {
		history = []quiz.Result{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleRetake(w http.ResponseWriter, r *http.Request) {
	opts, err := h.svc.RetakeOptions(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"), r.PathValue("quizID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (h *Handler) handleCertificate(w http.ResponseWriter, r *http.Request) {
	cert, found, err := h.svc.Certificate(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "certificate not issued", Code: "certificate_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (h *Handler) handleTakeSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.TakeSnapshot(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.svc.Snapshots(r.Context(), r.PathValue("learnerID"), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Course(r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := report.Build(r.Context(), h.svc, c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+c.ID+`-progress.xlsx"`)
	if _, err := f.WriteTo(w); err != nil {
		slog.Error("report write failed", "course_id", c.ID, "error", err)
	}
}

// decodeBody reads a JSON body into dst. An empty body is accepted when optional.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
