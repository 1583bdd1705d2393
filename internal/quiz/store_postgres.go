package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout       = 5 * time.Second
	uniqueViolation = "23505"
)

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed attempt store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Results(ctx context.Context, learnerID, courseID, quizID string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT attempt_id::text, learner_id, course_id, quiz_id, attempt_number, score, max_score,
		        percentage, passed, certificate_eligible, questions, submitted_at
		 FROM quiz_attempts
		 WHERE learner_id = $1 AND course_id = $2 AND quiz_id = $3
		 ORDER BY attempt_number ASC`,
		learnerID,
		courseID,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var questions []byte
		if err := rows.Scan(
			&r.AttemptID,
			&r.LearnerID,
			&r.CourseID,
			&r.QuizID,
			&r.AttemptsUsed,
			&r.Score,
			&r.MaxScore,
			&r.Percentage,
			&r.Passed,
			&r.CertificateEligible,
			&questions,
			&r.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if len(questions) > 0 {
			if err := json.Unmarshal(questions, &r.Questions); err != nil {
				return nil, fmt.Errorf("decode question results: %w", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return results, nil
}

func (s *PostgresStore) Append(ctx context.Context, r Result) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	questions, err := json.Marshal(r.Questions)
	if err != nil {
		return fmt.Errorf("marshal question results: %w", err)
	}

	// The count guard keeps attempt numbers gapless; the unique index catches races.
	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (attempt_id, learner_id, course_id, quiz_id, attempt_number, score,
		                            max_score, percentage, passed, certificate_eligible, questions, submitted_at)
		 SELECT $1::uuid, $2::text, $3::text, $4::text, $5::int, $6, $7, $8, $9, $10, $11::jsonb, $12
		 WHERE (SELECT COUNT(*) FROM quiz_attempts
		        WHERE learner_id = $2 AND course_id = $3 AND quiz_id = $4) = $5::int - 1`,
		r.AttemptID,
		r.LearnerID,
		r.CourseID,
		r.QuizID,
		r.AttemptsUsed,
		r.Score,
		r.MaxScore,
		r.Percentage,
		r.Passed,
		r.CertificateEligible,
		string(questions),
		r.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: attempt %d", ErrAttemptConflict, r.AttemptsUsed)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: attempt %d", ErrAttemptConflict, r.AttemptsUsed)
	}
	return nil
}
