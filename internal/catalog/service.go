package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"jobkeeper/internal/broker"
	"jobkeeper/internal/shared"
)

const (
	maxNameLen       = 50
	maxRetryAttempts = 10
)

// JobParams carries the caller-editable fields of a job definition.
type JobParams struct {
	Name          string
	Type          string
	CronPattern   string
	Payload       json.RawMessage
	Enabled       bool
	RetryAttempts int
}

// TypeStatus is the broker-side view of one job type: its live triggers and
// work-item counts per lifecycle state.
type TypeStatus struct {
	Triggers []broker.Trigger
	Counts   map[broker.Status]int64
}

// Service is the single mutation path for job definitions. It keeps the
// catalog authoritative: catalog writes succeed or fail on their own, while
// broker trigger maintenance is best-effort and the reconciler converges
// whatever this service could not. The one exception is RunNow, which
// touches no catalog state and therefore surfaces broker errors directly.
type Service struct {
	repo     Repository
	broker   broker.Gateway
	pageSize int
	log      *slog.Logger
}

// NewService creates the façade. pageSize bounds every trigger listing.
func NewService(repo Repository, gw broker.Gateway, pageSize int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, broker: gw, pageSize: pageSize, log: log}
}

// Create persists a new job and, when it is enabled, installs its broker
// trigger. A trigger failure does not fail the call.
func (s *Service) Create(ctx context.Context, p JobParams) (*Job, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	job := &Job{
		ID:            uuid.New(),
		Name:          p.Name,
		Type:          p.Type,
		CronPattern:   p.CronPattern,
		Payload:       p.Payload,
		Enabled:       p.Enabled,
		RetryAttempts: p.RetryAttempts,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	if job.Enabled {
		s.upsertTrigger(ctx, job)
	}
	return job, nil
}

// Update rewrites a job definition and realigns its broker trigger: the old
// trigger is removed unconditionally (it may live under another type's
// keyspace) and re-installed only when the new state is enabled. When the
// job is being disabled the removal happens before the catalog write, so a
// crash between the two leaves an enabled row the reconciler re-installs
// rather than a live trigger for a disabled job.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p JobParams) (*Job, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.Name = p.Name
	updated.Type = p.Type
	updated.CronPattern = p.CronPattern
	updated.Payload = p.Payload
	updated.Enabled = p.Enabled
	updated.RetryAttempts = p.RetryAttempts

	disabling := current.Enabled && !p.Enabled
	if disabling {
		s.removeTrigger(ctx, current.Type, current.ID)
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}

	if !disabling {
		s.removeTrigger(ctx, current.Type, current.ID)
		if updated.Enabled {
			s.upsertTrigger(ctx, &updated)
		}
	}
	return &updated, nil
}

// SetEnabled flips only the enabled flag. Disabling removes the trigger
// before the catalog write; enabling writes first and installs after.
// Setting the current value is a no-op.
func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*Job, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Enabled == enabled {
		return current, nil
	}

	if !enabled {
		s.removeTrigger(ctx, current.Type, current.ID)
	}

	current.Enabled = enabled
	if err := s.repo.Update(ctx, current); err != nil {
		return nil, err
	}

	if enabled {
		s.upsertTrigger(ctx, current)
	}
	return current, nil
}

// Delete removes the job's trigger and then soft-deletes the definition.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	s.removeTrigger(ctx, current.Type, current.ID)
	return s.repo.SoftDelete(ctx, id)
}

// RunNow enqueues one immediate work item for the job, outside its schedule,
// and returns the broker item id. Broker errors surface to the caller: no
// catalog state changed, so there is nothing for the reconciler to converge.
func (s *Service) RunNow(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	itemID, err := s.broker.EnqueueNow(ctx, job.Type, broker.ItemData{
		JobID:   job.ID.String(),
		Payload: job.Payload,
	})
	if err != nil {
		return "", shared.Wrapf(err, "run job %s now", id)
	}
	return itemID, nil
}

// Get returns one live job definition.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// List returns every live job definition.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Status reports the broker state per job type that currently has triggers
// installed. Types without triggers are omitted.
func (s *Service) Status(ctx context.Context) (map[string]TypeStatus, error) {
	types, err := s.repo.DistinctTypes(ctx)
	if err != nil {
		return nil, err
	}

	status := make(map[string]TypeStatus)
	for _, t := range types {
		triggers, err := s.broker.ListTriggers(ctx, t, 0, s.pageSize)
		if err != nil {
			return nil, shared.Wrapf(err, "list triggers for %s", t)
		}
		if len(triggers) == 0 {
			continue
		}
		counts, err := s.broker.Counts(ctx, t)
		if err != nil {
			return nil, shared.Wrapf(err, "counts for %s", t)
		}
		status[t] = TypeStatus{Triggers: triggers, Counts: counts}
	}
	return status, nil
}

// TriggerFor builds the broker trigger a job definition should have
// installed. The job id is the trigger key.
func TriggerFor(job *Job) broker.Trigger {
	// TODO: forward RetryAttempts once the trigger contract carries a
	// retry policy field; today the value is stored but not applied.
	return broker.Trigger{
		Key:     job.ID.String(),
		Pattern: job.CronPattern,
		JobName: job.Name,
		Data: broker.ItemData{
			JobID:   job.ID.String(),
			Payload: job.Payload,
		},
	}
}

func (s *Service) upsertTrigger(ctx context.Context, job *Job) {
	if _, err := s.broker.UpsertTrigger(ctx, job.Type, TriggerFor(job)); err != nil {
		s.log.Warn("trigger upsert failed, reconciler will converge",
			"job_id", job.ID, "type", job.Type, "error", err)
	}
}

func (s *Service) removeTrigger(ctx context.Context, jobType string, id uuid.UUID) {
	if err := s.broker.RemoveTrigger(ctx, jobType, id.String()); err != nil {
		s.log.Warn("trigger removal failed, reconciler will converge",
			"job_id", id, "type", jobType, "error", err)
	}
}

func validateParams(p JobParams) error {
	// the bound is characters, not bytes: non-ASCII names count per rune
	if p.Name == "" || utf8.RuneCountInString(p.Name) > maxNameLen {
		return shared.Wrapf(shared.ErrValidation, "name must be between 1 and %d characters", maxNameLen)
	}
	if !KnownType(p.Type) {
		return shared.Wrapf(shared.ErrValidation, "unknown job type %q", p.Type)
	}
	if _, err := broker.ParsePattern(p.CronPattern); err != nil {
		return err
	}
	if p.RetryAttempts < 0 || p.RetryAttempts > maxRetryAttempts {
		return shared.Wrapf(shared.ErrValidation, "retry attempts must be between 0 and %d", maxRetryAttempts)
	}
	return nil
}
