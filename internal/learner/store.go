// Package learner persists what a learner did in a course: the append-only event log,
// enrollments and progress snapshots.
package learner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// Record is one event-log entry for a learner in a course.
type Record struct {
	LearnerID string            `json:"learner_id"`
	CourseID  string            `json:"course_id"`
	Event     progression.Event `json:"event"`
}

// Enrollment links a learner to a course.
type Enrollment struct {
	LearnerID  string    `json:"learner_id"`
	CourseID   string    `json:"course_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Snapshot is a point-in-time copy of a learner's module progress. Snapshots are
// appended, never updated.
type Snapshot struct {
	LearnerID string                       `json:"learner_id"`
	CourseID  string                       `json:"course_id"`
	TakenAt   time.Time                    `json:"taken_at"`
	Progress  float64                      `json:"progress"`
	Modules   []progression.ModuleSnapshot `json:"modules"`
}

// EventLog is the append-only completion event sink.
type EventLog interface {
	Append(ctx context.Context, rec Record) error
	Events(ctx context.Context, learnerID, courseID string) ([]progression.Event, error)
}

// Enrollments stores enrollment records.
type Enrollments interface {
	// Enroll creates an enrollment, returning the existing one and false when present.
	Enroll(ctx context.Context, learnerID, courseID string, at time.Time) (Enrollment, bool, error)
	Enrollment(ctx context.Context, learnerID, courseID string) (Enrollment, bool, error)
	Enrollments(ctx context.Context, courseID string) ([]Enrollment, error)
}

// Snapshots stores the progress history of enrollments.
type Snapshots interface {
	AppendSnapshot(ctx context.Context, s Snapshot) error
	Snapshots(ctx context.Context, learnerID, courseID string) ([]Snapshot, error)
}

// Store bundles the learner persistence interfaces.
type Store interface {
	EventLog
	Enrollments
	Snapshots
}

func validateRecord(rec Record) error {
	if rec.LearnerID == "" {
		return fmt.Errorf("learner_id is required")
	}
	if rec.CourseID == "" {
		return fmt.Errorf("course_id is required")
	}
	if rec.Event.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	switch rec.Event.Kind {
	case progression.EventCompleted, progression.EventProgress, progression.EventAttempt:
	default:
		return fmt.Errorf("unknown event kind %q", rec.Event.Kind)
	}
	if rec.Event.TimeSpent < 0 {
		return fmt.Errorf("time_spent must not be negative")
	}
	return nil
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	events      map[string][]progression.Event
	enrollments map[string]Enrollment
	snapshots   map[string][]Snapshot
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory learner store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[string][]progression.Event),
		enrollments: make(map[string]Enrollment),
		snapshots:   make(map[string][]Snapshot),
	}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.Event.OccurredAt.IsZero() {
		rec.Event.OccurredAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(rec.LearnerID, rec.CourseID)
	s.events[key] = append(s.events[key], rec.Event)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, learnerID, courseID string) ([]progression.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]progression.Event(nil), s.events[pairKey(learnerID, courseID)]...), nil
}

func (s *MemoryStore) Enroll(_ context.Context, learnerID, courseID string, at time.Time) (Enrollment, bool, error) {
	if learnerID == "" || courseID == "" {
		return Enrollment{}, false, fmt.Errorf("learner_id and course_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(learnerID, courseID)
	if e, ok := s.enrollments[key]; ok {
		return e, false, nil
	}
	e := Enrollment{LearnerID: learnerID, CourseID: courseID, EnrolledAt: at}
	s.enrollments[key] = e
	return e, true, nil
}

func (s *MemoryStore) Enrollment(_ context.Context, learnerID, courseID string) (Enrollment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[pairKey(learnerID, courseID)]
	return e, ok, nil
}

func (s *MemoryStore) Enrollments(_ context.Context, courseID string) ([]Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Enrollment
	for _, e := range s.enrollments {
		if e.CourseID == courseID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LearnerID < out[j].LearnerID })
	return out, nil
}

func (s *MemoryStore) AppendSnapshot(_ context.Context, snap Snapshot) error {
	if snap.LearnerID == "" || snap.CourseID == "" {
		return fmt.Errorf("learner_id and course_id are required")
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	snap.Modules = append([]progression.ModuleSnapshot(nil), snap.Modules...)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(snap.LearnerID, snap.CourseID)
	s.snapshots[key] = append(s.snapshots[key], snap)
	return nil
}

func (s *MemoryStore) Snapshots(_ context.Context, learnerID, courseID string) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Snapshot(nil), s.snapshots[pairKey(learnerID, courseID)]...), nil
}

func pairKey(learnerID, courseID string) string {
	return learnerID + ":" + courseID
}
