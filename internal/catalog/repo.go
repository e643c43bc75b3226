package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"jobkeeper/internal/platform/pg"
	"jobkeeper/internal/shared"
)

// Repository is the catalog persistence contract. Soft-deleted rows are
// invisible to every method; deletion is a deleted_at timestamp, never a
// physical delete.
type Repository interface {
	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context) ([]*Job, error)
	ListEnabledByType(ctx context.Context, jobType string) ([]*Job, error)
	DistinctTypes(ctx context.Context) ([]string, error)
}

// PGRepository stores jobs in PostgreSQL.
type PGRepository struct {
	runner *pg.TxRunner
}

var _ Repository = (*PGRepository)(nil)

// NewPGRepository creates a repository on top of the given transaction runner.
func NewPGRepository(runner *pg.TxRunner) *PGRepository {
	return &PGRepository{runner: runner}
}

const jobColumns = `id, name, type, cron_pattern, payload, enabled, retry_attempts, deleted_at, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, job *Job) error {
	q := r.runner.GetQuerier(ctx)
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := q.Exec(ctx, `
		INSERT INTO jobs (id, name, type, cron_pattern, payload, enabled, retry_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Name, job.Type, job.CronPattern, job.Payload, job.Enabled, job.RetryAttempts, job.CreatedAt, job.UpdatedAt,
	)
	return shared.Wrap(err, "catalog: create job")
}

func (r *PGRepository) Update(ctx context.Context, job *Job) error {
	q := r.runner.GetQuerier(ctx)
	job.UpdatedAt = time.Now().UTC()

	tag, err := q.Exec(ctx, `
		UPDATE jobs
		SET name = $2, type = $3, cron_pattern = $4, payload = $5, enabled = $6, retry_attempts = $7, updated_at = $8
		WHERE id = $1 AND deleted_at IS NULL`,
		job.ID, job.Name, job.Type, job.CronPattern, job.Payload, job.Enabled, job.RetryAttempts, job.UpdatedAt,
	)
	if err != nil {
		return shared.Wrap(err, "catalog: update job")
	}
	if tag.RowsAffected() == 0 {
		return shared.Wrapf(shared.ErrNotFound, "job %s", job.ID)
	}
	return nil
}

func (r *PGRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	q := r.runner.GetQuerier(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE jobs SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return shared.Wrap(err, "catalog: delete job")
	}
	if tag.RowsAffected() == 0 {
		return shared.Wrapf(shared.ErrNotFound, "job %s", id)
	}
	return nil
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	q := r.runner.GetQuerier(ctx)

	row := q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND deleted_at IS NULL`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.MarkKind(shared.Wrapf(err, "job %s", id), shared.KindNotFound)
		}
		return nil, shared.Wrap(err, "catalog: get job")
	}
	return job, nil
}

func (r *PGRepository) List(ctx context.Context) ([]*Job, error) {
	q := r.runner.GetQuerier(ctx)

	rows, err := q.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, shared.Wrap(err, "catalog: list jobs")
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *PGRepository) ListEnabledByType(ctx context.Context, jobType string) ([]*Job, error) {
	q := r.runner.GetQuerier(ctx)

	rows, err := q.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE type = $1 AND enabled AND deleted_at IS NULL
		ORDER BY created_at`, jobType)
	if err != nil {
		return nil, shared.Wrap(err, "catalog: list enabled jobs")
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *PGRepository) DistinctTypes(ctx context.Context) ([]string, error) {
	q := r.runner.GetQuerier(ctx)

	rows, err := q.Query(ctx, `SELECT DISTINCT type FROM jobs WHERE deleted_at IS NULL ORDER BY type`)
	if err != nil {
		return nil, shared.Wrap(err, "catalog: distinct types")
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, shared.Wrap(err, "catalog: scan type")
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	err := row.Scan(
		&job.ID, &job.Name, &job.Type, &job.CronPattern, &job.Payload,
		&job.Enabled, &job.RetryAttempts, &job.DeletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, shared.Wrap(err, "catalog: scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
