package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresRegistry is a PostgreSQL-backed Registry. The (learner_id, course_id) unique
// constraint keeps issuing idempotent across processes.
type PostgresRegistry struct {
	minter
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a PostgreSQL-backed certificate registry.
func NewPostgresRegistry(pool *pgxpool.Pool, opts Options) (*PostgresRegistry, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresRegistry{minter: newMinter(opts), pool: pool}, nil
}

func (r *PostgresRegistry) Issue(ctx context.Context, req Request) (Certificate, bool, error) {
	c, err := r.mint(req)
	if err != nil {
		return Certificate{}, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := r.pool.Exec(ctx,
		`INSERT INTO certificates (id, serial, learner_id, course_id, template_id, quiz_id, percentage, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (learner_id, course_id) DO NOTHING`,
		c.ID,
		c.Serial,
		c.LearnerID,
		c.CourseID,
		c.TemplateID,
		c.QuizID,
		c.Percentage,
		c.IssuedAt,
	)
	if err != nil {
		return Certificate{}, false, fmt.Errorf("insert certificate: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		slog.Info("certificate issued",
			"learner_id", c.LearnerID,
			"course_id", c.CourseID,
			"serial", c.Serial,
		)
		return c, true, nil
	}

	existing, found, err := r.Get(ctx, req.LearnerID, req.CourseID)
	if err != nil {
		return Certificate{}, false, err
	}
	if !found {
		return Certificate{}, false, fmt.Errorf("certificate vanished: %s/%s", req.LearnerID, req.CourseID)
	}
	return existing, false, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, learnerID, courseID string) (Certificate, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c := Certificate{LearnerID: learnerID, CourseID: courseID}
	err := r.pool.QueryRow(ctx,
		`SELECT id, serial, template_id, quiz_id, percentage, issued_at
		 FROM certificates
		 WHERE learner_id = $1 AND course_id = $2`,
		learnerID,
		courseID,
	).Scan(&c.ID, &c.Serial, &c.TemplateID, &c.QuizID, &c.Percentage, &c.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Certificate{}, false, nil
		}
		return Certificate{}, false, fmt.Errorf("get certificate: %w", err)
	}
	return c, true, nil
}
