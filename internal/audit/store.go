package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jobkeeper/internal/platform/pg"
	"jobkeeper/internal/shared"
)

// Store is the execution-log persistence contract.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	HasTerminal(ctx context.Context, jobType, executionID string) (bool, error)
	History(ctx context.Context, jobID uuid.UUID, limit int) ([]Execution, error)
}

// PGStore persists execution logs in PostgreSQL.
type PGStore struct {
	runner *pg.TxRunner
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a store on top of the given transaction runner.
func NewPGStore(runner *pg.TxRunner) *PGStore {
	return &PGStore{runner: runner}
}

func (s *PGStore) Append(ctx context.Context, e *Entry) error {
	q := s.runner.GetQuerier(ctx)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err := q.QueryRow(ctx, `
		INSERT INTO execution_logs (job_id, job_type, execution_id, status, data, result, failed_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.JobID, e.JobType, e.ExecutionID, e.Status, e.Data, e.Result, e.FailedReason, e.CreatedAt,
	).Scan(&e.ID)
	return shared.Wrap(err, "audit: append entry")
}

// HasTerminal reports whether the execution already reached completed or
// failed. Entries arriving after that point are dropped by the listener.
// Execution ids are only unique within a job type, so the type is part of
// the key.
func (s *PGStore) HasTerminal(ctx context.Context, jobType, executionID string) (bool, error) {
	q := s.runner.GetQuerier(ctx)

	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM execution_logs
			WHERE job_type = $1 AND execution_id = $2 AND status IN ('completed', 'failed')
		)`, jobType, executionID,
	).Scan(&exists)
	if err != nil {
		return false, shared.Wrap(err, "audit: terminal check")
	}
	return exists, nil
}

// History returns the job's most recent executions, at most limit of them,
// each with its full entry trail newest first.
func (s *PGStore) History(ctx context.Context, jobID uuid.UUID, limit int) ([]Execution, error) {
	q := s.runner.GetQuerier(ctx)

	rows, err := q.Query(ctx, `
		SELECT id, job_id, job_type, execution_id, status, data, result, failed_reason, created_at
		FROM execution_logs
		WHERE job_id = $1 AND execution_id IN (
			SELECT execution_id FROM execution_logs
			WHERE job_id = $1
			GROUP BY execution_id
			ORDER BY MAX(created_at) DESC
			LIMIT $2
		)
		ORDER BY created_at DESC, id DESC`,
		jobID, limit,
	)
	if err != nil {
		return nil, shared.Wrap(err, "audit: history")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.JobID, &e.JobType, &e.ExecutionID,
			&e.Status, &e.Data, &e.Result, &e.FailedReason, &e.CreatedAt,
		)
		if err != nil {
			return nil, shared.Wrap(err, "audit: scan entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Wrap(err, "audit: history rows")
	}
	return GroupByExecution(entries), nil
}
