package learner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed learner store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	occurredAt := rec.Event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO learning_events (learner_id, course_id, kind, node_id, time_spent, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.LearnerID,
		rec.CourseID,
		string(rec.Event.Kind),
		rec.Event.NodeID,
		rec.Event.TimeSpent,
		occurredAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("learning event logged",
		"kind", rec.Event.Kind,
		"learner_id", rec.LearnerID,
		"course_id", rec.CourseID,
		"node_id", rec.Event.NodeID,
	)
	return nil
}

func (s *PostgresStore) Events(ctx context.Context, learnerID, courseID string) ([]progression.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT kind, node_id, time_spent, occurred_at
		 FROM learning_events
		 WHERE learner_id = $1 AND course_id = $2
		 ORDER BY id ASC`,
		learnerID,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []progression.Event
	for rows.Next() {
		var ev progression.Event
		var kind string
		if err := rows.Scan(&kind, &ev.NodeID, &ev.TimeSpent, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = progression.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Enroll(ctx context.Context, learnerID, courseID string, at time.Time) (Enrollment, bool, error) {
	if learnerID == "" || courseID == "" {
		return Enrollment{}, false, fmt.Errorf("learner_id and course_id are required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO enrollments (learner_id, course_id, enrolled_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (learner_id, course_id) DO NOTHING`,
		learnerID,
		courseID,
		at,
	)
	if err != nil {
		return Enrollment{}, false, fmt.Errorf("insert enrollment: %w", err)
	}

	e, found, err := s.Enrollment(ctx, learnerID, courseID)
	if err != nil {
		return Enrollment{}, false, err
	}
	if !found {
		return Enrollment{}, false, fmt.Errorf("enrollment vanished: %s/%s", learnerID, courseID)
	}
	return e, cmd.RowsAffected() == 1, nil
}

func (s *PostgresStore) Enrollment(ctx context.Context, learnerID, courseID string) (Enrollment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	e := Enrollment{LearnerID: learnerID, CourseID: courseID}
	err := s.pool.QueryRow(ctx,
		`SELECT enrolled_at FROM enrollments WHERE learner_id = $1 AND course_id = $2`,
		learnerID,
		courseID,
	).Scan(&e.EnrolledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enrollment{}, false, nil
		}
		return Enrollment{}, false, fmt.Errorf("get enrollment: %w", err)
	}
	return e, true, nil
}

func (s *PostgresStore) Enrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT learner_id, course_id, enrolled_at
		 FROM enrollments
		 WHERE course_id = $1
		 ORDER BY learner_id ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.LearnerID, &e.CourseID, &e.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.LearnerID == "" || snap.CourseID == "" {
		return fmt.Errorf("learner_id and course_id are required")
	}
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	modules := snap.Modules
	if modules == nil {
		modules = []progression.ModuleSnapshot{}
	}
	data, err := json.Marshal(modules)
	if err != nil {
		return fmt.Errorf("marshal snapshot modules: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO progress_snapshots (learner_id, course_id, taken_at, progress, modules)
		 VALUES ($1, $2, $3, $4, $5::jsonb)`,
		snap.LearnerID,
		snap.CourseID,
		takenAt,
		snap.Progress,
		string(data),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Snapshots(ctx context.Context, learnerID, courseID string) ([]Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT taken_at, progress, modules
		 FROM progress_snapshots
		 WHERE learner_id = $1 AND course_id = $2
		 ORDER BY id ASC`,
		learnerID,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap := Snapshot{LearnerID: learnerID, CourseID: courseID}
		var modules []byte
		if err := rows.Scan(&snap.TakenAt, &snap.Progress, &modules); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if err := json.Unmarshal(modules, &snap.Modules); err != nil {
			return nil, fmt.Errorf("decode snapshot modules: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
