// Package player drives a learner through a course: it derives state from the event
// log, gates activity on locks, routes quiz attempts through the tracker and issues
// certificates when a course is finished.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-learn/internal/certificate"
	"github.com/p-n-ai/pai-learn/internal/course"
	"github.com/p-n-ai/pai-learn/internal/learner"
	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/quiz"
)

// CourseProvider supplies course definitions.
type CourseProvider interface {
	GetCourse(id string) (*course.Course, bool)
	AllCourses() []*course.Course
}

// Config holds dependencies for the service.
type Config struct {
	Courses      CourseProvider
	Learners     learner.Store
	Tracker      *quiz.Tracker
	Certificates certificate.Registry
	Hub          *Hub
	Now          func() time.Time
}

// Service is the learner-facing progression service.
type Service struct {
	courses      CourseProvider
	learners     learner.Store
	tracker      *quiz.Tracker
	certificates certificate.Registry
	hub          *Hub
	now          func() time.Time
}

// QuizOutcome is the result of a quiz submission together with its consequences.
type QuizOutcome struct {
	Result             quiz.Result              `json:"result"`
	State              progression.State        `json:"state"`
	Certificate        *certificate.Certificate `json:"certificate,omitempty"`
	CertificateCreated bool                     `json:"certificate_created"`
}

// NewService creates a service. Missing stores fall back to in-memory versions.
func NewService(cfg Config) (*Service, error) {
	if cfg.Courses == nil {
		return nil, fmt.Errorf("course provider is nil")
	}
	learners := cfg.Learners
	if learners == nil {
		learners = learner.NewMemoryStore()
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = quiz.NewTracker(quiz.TrackerConfig{Now: cfg.Now})
	}
	certs := cfg.Certificates
	if certs == nil {
		certs = certificate.NewMemoryRegistry(certificate.Options{Now: cfg.Now})
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		courses:      cfg.Courses,
		learners:     learners,
		tracker:      tracker,
		certificates: certs,
		hub:          hub,
		now:          now,
	}, nil
}

// Hub returns the hub state updates are published on.
func (s *Service) Hub() *Hub { return s.hub }

// Courses lists every loaded course.
func (s *Service) Courses() []*course.Course {
	return s.courses.AllCourses()
}

// Course returns a course by ID.
func (s *Service) Course(courseID string) (*course.Course, error) {
	c, ok := s.courses.GetCourse(courseID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	return c, nil
}

// State derives the learner's current state in a course. Ambiguous course ordering is
// reported in State.Warnings alongside the fail-closed state.
func (s *Service) State(ctx context.Context, learnerID, courseID string) (progression.State, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return progression.State{}, err
	}
	return s.state(ctx, learnerID, c)
}

// state derives the learner's state and then completes any unlocked quiz node whose
// attempt history is already terminal but whose completion event is missing. Attempt
// history is the record of truth for quizzes; the event log follows it.
func (s *Service) state(ctx context.Context, learnerID string, c *course.Course) (progression.State, error) {
	st, err := s.derive(ctx, learnerID, c)
	if err != nil {
		return progression.State{}, err
	}

	repaired := false
	for range st.Order {
		n, err := s.completeTerminalQuizzes(ctx, learnerID, c, st)
		if err != nil {
			slog.Warn("quiz completion repair failed", "learner_id", learnerID, "course_id", c.ID, "error", err)
			break
		}
		if n == 0 {
			break
		}
		repaired = true
		if st, err = s.derive(ctx, learnerID, c); err != nil {
			return progression.State{}, err
		}
	}
	if repaired {
		s.hub.Publish(learnerID, st)
		if st.Completed {
			if _, _, err := s.issueFromHistory(ctx, learnerID, c); err != nil {
				slog.Error("certificate issue failed", "learner_id", learnerID, "course_id", c.ID, "error", err)
			}
		}
	}
	return st, nil
}

// completeTerminalQuizzes appends the missing completion event for every unlocked,
// uncompleted quiz node whose attempts already passed, or ran out when the course
// completes on exhaustion. It returns how many events were appended.
func (s *Service) completeTerminalQuizzes(ctx context.Context, learnerID string, c *course.Course, st progression.State) (int, error) {
	appended := 0
	for _, id := range st.Order {
		ns := st.Nodes[id]
		if ns.Type != course.NodeQuiz || ns.IsCompleted || ns.IsLocked {
			continue
		}
		history, err := s.tracker.History(ctx, learnerID, c, id)
		if err != nil {
			return appended, err
		}
		at, ok := terminalAt(history, c.Settings)
		if !ok {
			continue
		}
		if err := s.appendAt(ctx, learnerID, c.ID, progression.EventCompleted, id, at); err != nil {
			return appended, err
		}
		slog.Warn("completed quiz node from attempt history",
			"learner_id", learnerID,
			"course_id", c.ID,
			"node_id", id,
		)
		appended++
	}
	return appended, nil
}

// terminalAt returns when a quiz history became terminal for node completion.
func terminalAt(history []quiz.Result, settings course.Settings) (time.Time, bool) {
	for _, r := range history {
		if r.Passed {
			return r.SubmittedAt, true
		}
	}
	if settings.CompleteOnExhaustion && len(history) > 0 && len(history) >= settings.MaxAttempts {
		return history[len(history)-1].SubmittedAt, true
	}
	return time.Time{}, false
}

func (s *Service) derive(ctx context.Context, learnerID string, c *course.Course) (progression.State, error) {
	events, err := s.learners.Events(ctx, learnerID, c.ID)
	if err != nil {
		return progression.State{}, fmt.Errorf("loading events: %w", err)
	}
	st, err := progression.DeriveState(c, events)
	if err != nil {
		if !errors.Is(err, progression.ErrInvalidOrdering) {
			return progression.State{}, err
		}
		slog.Warn("course ordering is ambiguous, locking from the ambiguity point",
			"course_id", c.ID,
			"error", err,
		)
		st.Warnings = append(st.Warnings, err)
	}
	return st, nil
}

// Navigate resolves the position at a module and node index. A negative module index
// resumes at the first unfinished node.
func (s *Service) Navigate(ctx context.Context, learnerID, courseID string, moduleIndex, nodeIndex int) (progression.Position, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return progression.Position{}, err
	}
	st, err := s.state(ctx, learnerID, c)
	if err != nil {
		return progression.Position{}, err
	}

	var pos progression.Position
	if moduleIndex < 0 {
		var ok bool
		if pos, ok = progression.Resume(st); !ok {
			return progression.Position{}, fmt.Errorf("%w: course %q has no nodes", progression.ErrPositionOutOfRange, c.ID)
		}
	} else if pos, err = progression.Resolve(st, moduleIndex, nodeIndex); err != nil {
		return progression.Position{}, err
	}
	return s.withRetry(ctx, learnerID, c, pos)
}

// NavigateNode resolves the position at a node ID.
func (s *Service) NavigateNode(ctx context.Context, learnerID, courseID, nodeID string) (progression.Position, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return progression.Position{}, err
	}
	st, err := s.state(ctx, learnerID, c)
	if err != nil {
		return progression.Position{}, err
	}
	pos, err := progression.ResolveNode(st, nodeID)
	if err != nil {
		return progression.Position{}, err
	}
	return s.withRetry(ctx, learnerID, c, pos)
}

func (s *Service) withRetry(ctx context.Context, learnerID string, c *course.Course, pos progression.Position) (progression.Position, error) {
	if pos.Current.Type != course.NodeQuiz || pos.Current.IsLocked {
		return pos, nil
	}
	opts, err := s.tracker.RetakeOptions(ctx, learnerID, c, pos.Current.ID)
	if err != nil {
		return progression.Position{}, err
	}
	pos.CanRetry = opts.CanRetry
	return pos, nil
}

// Enroll enrolls a learner after checking the course prerequisites. Enrolling twice
// returns the original enrollment.
func (s *Service) Enroll(ctx context.Context, learnerID, courseID string) (learner.Enrollment, bool, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return learner.Enrollment{}, false, err
	}
	return s.enroll(ctx, learnerID, c)
}

func (s *Service) enroll(ctx context.Context, learnerID string, c *course.Course) (learner.Enrollment, bool, error) {
	if e, found, err := s.learners.Enrollment(ctx, learnerID, c.ID); err != nil {
		return learner.Enrollment{}, false, err
	} else if found {
		return e, false, nil
	}

	completed := make(map[string]bool, len(c.Settings.Prerequisites))
	for _, id := range c.Settings.Prerequisites {
		pre, ok := s.courses.GetCourse(id)
		if !ok {
			continue
		}
		st, err := s.state(ctx, learnerID, pre)
		if err != nil {
			return learner.Enrollment{}, false, err
		}
		completed[id] = st.Completed
	}
	if ok, missing := progression.PrerequisitesMet(c, completed); !ok {
		return learner.Enrollment{}, false, &PrerequisiteError{CourseID: c.ID, Missing: missing}
	}

	e, created, err := s.learners.Enroll(ctx, learnerID, c.ID, s.now())
	if err != nil {
		return learner.Enrollment{}, false, fmt.Errorf("enrolling: %w", err)
	}
	if created {
		slog.Info("learner enrolled", "learner_id", learnerID, "course_id", c.ID)
	}
	return e, created, nil
}

// RecordProgress adds time spent on an unlocked node without completing it.
func (s *Service) RecordProgress(ctx context.Context, learnerID, courseID, nodeID string, timeSpent int) (progression.State, error) {
	c, st, err := s.unlockedNode(ctx, learnerID, courseID, nodeID)
	if err != nil {
		return progression.State{}, err
	}
	if timeSpent <= 0 {
		return st, nil
	}
	if err := s.append(ctx, learnerID, c.ID, progression.EventProgress, nodeID, timeSpent); err != nil {
		return progression.State{}, err
	}
	return s.refresh(ctx, learnerID, c)
}

// CompleteNode marks a clip node completed. Completing an already completed node only
// adds the time spent.
func (s *Service) CompleteNode(ctx context.Context, learnerID, courseID, nodeID string, timeSpent int) (progression.State, error) {
	c, st, err := s.unlockedNode(ctx, learnerID, courseID, nodeID)
	if err != nil {
		return progression.State{}, err
	}
	node, _, _ := c.FindNode(nodeID)
	if node.Type == course.NodeQuiz {
		return progression.State{}, fmt.Errorf("%w: %s", ErrQuizNode, nodeID)
	}

	if timeSpent > 0 {
		if err := s.append(ctx, learnerID, c.ID, progression.EventProgress, nodeID, timeSpent); err != nil {
			return progression.State{}, err
		}
	}
	if ns, _ := st.Node(nodeID); !ns.IsCompleted {
		if err := s.append(ctx, learnerID, c.ID, progression.EventCompleted, nodeID, 0); err != nil {
			return progression.State{}, err
		}
	}

	st, err = s.refresh(ctx, learnerID, c)
	if err != nil {
		return progression.State{}, err
	}
	if st.Completed {
		if _, _, err := s.issueFromHistory(ctx, learnerID, c); err != nil {
			slog.Error("certificate issue failed", "learner_id", learnerID, "course_id", c.ID, "error", err)
		}
	}
	return st, nil
}

// SubmitQuiz grades an attempt on an unlocked quiz node. A passed quiz completes its
// node; so does an exhausted one when the course allows it.
func (s *Service) SubmitQuiz(ctx context.Context, learnerID, courseID, quizID string, answers []quiz.Answer) (QuizOutcome, error) {
	c, _, err := s.unlockedNode(ctx, learnerID, courseID, quizID)
	if err != nil {
		return QuizOutcome{}, err
	}

	res, err := s.tracker.SubmitAttempt(ctx, quiz.Submission{
		LearnerID: learnerID,
		Course:    c,
		QuizID:    quizID,
		Answers:   answers,
	})
	if err != nil {
		return QuizOutcome{}, err
	}

	if err := s.appendAt(ctx, learnerID, c.ID, progression.EventAttempt, quizID, res.SubmittedAt); err != nil {
		return QuizOutcome{}, err
	}
	if res.Passed || (res.AttemptsRemaining == 0 && c.Settings.CompleteOnExhaustion) {
		if err := s.appendAt(ctx, learnerID, c.ID, progression.EventCompleted, quizID, res.SubmittedAt); err != nil {
			return QuizOutcome{}, err
		}
	}

	st, err := s.refresh(ctx, learnerID, c)
	if err != nil {
		return QuizOutcome{}, err
	}
	out := QuizOutcome{Result: res, State: st}
	if st.Completed {
		cert, created, err := s.issueFromHistory(ctx, learnerID, c)
		if err != nil {
			slog.Error("certificate issue failed", "learner_id", learnerID, "course_id", c.ID, "error", err)
		}
		out.Certificate, out.CertificateCreated = cert, created
	}
	return out, nil
}

// RetakeOptions reports whether the learner may attempt a quiz again.
func (s *Service) RetakeOptions(ctx context.Context, learnerID, courseID, quizID string) (quiz.RetakeOptions, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return quiz.RetakeOptions{}, err
	}
	return s.tracker.RetakeOptions(ctx, learnerID, c, quizID)
}

// QuizHistory returns the learner's attempts on a quiz, oldest first.
func (s *Service) QuizHistory(ctx context.Context, learnerID, courseID, quizID string) ([]quiz.Result, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return nil, err
	}
	if node, _, ok := c.FindNode(quizID); !ok || node.Type != course.NodeQuiz {
		return nil, fmt.Errorf("%w: %s", quiz.ErrNotAQuiz, quizID)
	}
	return s.tracker.History(ctx, learnerID, c, quizID)
}

// Certificate returns the learner's certificate for a course, if issued.
func (s *Service) Certificate(ctx context.Context, learnerID, courseID string) (certificate.Certificate, bool, error) {
	if _, err := s.Course(courseID); err != nil {
		return certificate.Certificate{}, false, err
	}
	return s.certificates.Get(ctx, learnerID, courseID)
}

// TakeSnapshot appends the learner's current module progress to the snapshot history.
func (s *Service) TakeSnapshot(ctx context.Context, learnerID, courseID string) (learner.Snapshot, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return learner.Snapshot{}, err
	}
	return s.snapshot(ctx, learnerID, c)
}

func (s *Service) snapshot(ctx context.Context, learnerID string, c *course.Course) (learner.Snapshot, error) {
	st, err := s.state(ctx, learnerID, c)
	if err != nil {
		return learner.Snapshot{}, err
	}
	snap := learner.Snapshot{
		LearnerID: learnerID,
		CourseID:  c.ID,
		TakenAt:   s.now(),
		Progress:  st.Progress,
		Modules:   st.Snapshot(),
	}
	if err := s.learners.AppendSnapshot(ctx, snap); err != nil {
		return learner.Snapshot{}, fmt.Errorf("storing snapshot: %w", err)
	}
	s.hub.Publish(learnerID, st)
	return snap, nil
}

// Snapshots returns the snapshot history of an enrollment, oldest first.
func (s *Service) Snapshots(ctx context.Context, learnerID, courseID string) ([]learner.Snapshot, error) {
	if _, err := s.Course(courseID); err != nil {
		return nil, err
	}
	return s.learners.Snapshots(ctx, learnerID, courseID)
}

// Enrollments lists the learners enrolled in a course.
func (s *Service) Enrollments(ctx context.Context, courseID string) ([]learner.Enrollment, error) {
	if _, err := s.Course(courseID); err != nil {
		return nil, err
	}
	return s.learners.Enrollments(ctx, courseID)
}

// RefreshSnapshots snapshots every enrollment of every course and returns how many
// snapshots were taken. Failures for one enrollment do not stop the others.
func (s *Service) RefreshSnapshots(ctx context.Context) (int, error) {
	taken := 0
	var errs []error
	for _, c := range s.courses.AllCourses() {
		enrollments, err := s.learners.Enrollments(ctx, c.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("course %s: %w", c.ID, err))
			continue
		}
		for _, e := range enrollments {
			if err := ctx.Err(); err != nil {
				return taken, err
			}
			if _, err := s.snapshot(ctx, e.LearnerID, c); err != nil {
				errs = append(errs, fmt.Errorf("learner %s in %s: %w", e.LearnerID, c.ID, err))
				continue
			}
			taken++
		}
	}
	return taken, errors.Join(errs...)
}

func (s *Service) unlockedNode(ctx context.Context, learnerID, courseID, nodeID string) (*course.Course, progression.State, error) {
	c, err := s.Course(courseID)
	if err != nil {
		return nil, progression.State{}, err
	}
	if _, _, err := s.enroll(ctx, learnerID, c); err != nil {
		return nil, progression.State{}, err
	}
	st, err := s.state(ctx, learnerID, c)
	if err != nil {
		return nil, progression.State{}, err
	}
	ns, ok := st.Node(nodeID)
	if !ok {
		return nil, progression.State{}, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if ns.IsLocked {
		return nil, progression.State{}, fmt.Errorf("%w: %s", ErrNodeLocked, nodeID)
	}
	return c, st, nil
}

func (s *Service) refresh(ctx context.Context, learnerID string, c *course.Course) (progression.State, error) {
	st, err := s.state(ctx, learnerID, c)
	if err != nil {
		return progression.State{}, err
	}
	s.hub.Publish(learnerID, st)
	return st, nil
}

func (s *Service) append(ctx context.Context, learnerID, courseID string, kind progression.EventKind, nodeID string, timeSpent int) error {
	return s.record(ctx, learner.Record{
		LearnerID: learnerID,
		CourseID:  courseID,
		Event:     progression.Event{Kind: kind, NodeID: nodeID, OccurredAt: s.now(), TimeSpent: timeSpent},
	})
}

func (s *Service) appendAt(ctx context.Context, learnerID, courseID string, kind progression.EventKind, nodeID string, at time.Time) error {
	return s.record(ctx, learner.Record{
		LearnerID: learnerID,
		CourseID:  courseID,
		Event:     progression.Event{Kind: kind, NodeID: nodeID, OccurredAt: at},
	})
}

func (s *Service) record(ctx context.Context, rec learner.Record) error {
	if err := s.learners.Append(ctx, rec); err != nil {
		return fmt.Errorf("recording %s event: %w", rec.Event.Kind, err)
	}
	return nil
}

// issueFromHistory issues the course certificate once the course is completed and a
// certificate-eligible attempt exists. Course completion gates issuance: an eligible
// pass with required nodes still open issues nothing. Courses without a template
// never issue.
func (s *Service) issueFromHistory(ctx context.Context, learnerID string, c *course.Course) (*certificate.Certificate, bool, error) {
	if c.Settings.CertificateTemplateID == "" {
		return nil, false, nil
	}
	eligible, err := s.eligibleResult(ctx, learnerID, c)
	if err != nil || eligible == nil {
		return nil, false, err
	}

	cert, created, err := s.certificates.Issue(ctx, certificate.Request{
		LearnerID:  learnerID,
		CourseID:   c.ID,
		TemplateID: c.Settings.CertificateTemplateID,
		QuizID:     eligible.QuizID,
		Percentage: eligible.Percentage,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		slog.Info("course certificate issued",
			"learner_id", learnerID,
			"course_id", c.ID,
			"certificate_id", cert.ID,
		)
	}
	return &cert, created, nil
}

func (s *Service) eligibleResult(ctx context.Context, learnerID string, c *course.Course) (*quiz.Result, error) {
	for _, m := range c.Modules {
		for _, n := range m.Nodes {
			if n.Type != course.NodeQuiz {
				continue
			}
			history, err := s.tracker.History(ctx, learnerID, c, n.ID)
			if err != nil {
				return nil, err
			}
			for i := range history {
				if history[i].CertificateEligible {
					return &history[i], nil
				}
			}
		}
	}
	return nil, nil
}
