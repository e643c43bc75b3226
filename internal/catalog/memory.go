package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobkeeper/internal/shared"
)

// MemoryRepository is an in-process Repository used by tests and local
// development instead of Postgres.
type MemoryRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[uuid.UUID]*Job)}
}

func (r *MemoryRepository) Create(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[job.ID]
	if !ok || current.DeletedAt != nil {
		return shared.Wrapf(shared.ErrNotFound, "job %s", job.ID)
	}
	job.CreatedAt = current.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *MemoryRepository) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[id]
	if !ok || current.DeletedAt != nil {
		return shared.Wrapf(shared.ErrNotFound, "job %s", id)
	}
	now := time.Now().UTC()
	current.DeletedAt = &now
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[id]
	if !ok || current.DeletedAt != nil {
		return nil, shared.Wrapf(shared.ErrNotFound, "job %s", id)
	}
	job := *current
	return &job, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Job
	for _, j := range r.jobs {
		if j.DeletedAt == nil {
			job := *j
			out = append(out, &job)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListEnabledByType(_ context.Context, jobType string) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Job
	for _, j := range r.jobs {
		if j.DeletedAt == nil && j.Enabled && j.Type == jobType {
			job := *j
			out = append(out, &job)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) DistinctTypes(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, j := range r.jobs {
		if j.DeletedAt == nil && !seen[j.Type] {
			seen[j.Type] = true
			out = append(out, j.Type)
		}
	}
	sort.Strings(out)
	return out, nil
}
