// Package reconciler converges broker trigger state onto the job catalog.
// The catalog is the source of truth; anything the broker holds that the
// catalog does not justify is an orphan and gets swept, and every enabled
// job gets its trigger re-asserted whether or not it looks installed.
package reconciler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobkeeper/internal/broker"
	"jobkeeper/internal/catalog"
	"jobkeeper/internal/shared"
)

// Stats summarizes one reconciliation pass.
type Stats struct {
	Upserted int64
	Removed  int64
	Skipped  int64
	Failed   int64
}

// Reconciler aligns broker triggers with the catalog for a fixed set of job
// types. Individual trigger failures are logged and counted, never fatal:
// the next pass retries them.
type Reconciler struct {
	repo     catalog.Repository
	gw       broker.Gateway
	types    []string
	pageSize int
	log      *slog.Logger
}

// New creates a reconciler over the given job types.
func New(repo catalog.Repository, gw broker.Gateway, types []string, pageSize int, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{repo: repo, gw: gw, types: types, pageSize: pageSize, log: log}
}

// Sync runs one full reconciliation pass, all types in parallel. It returns
// an error only when a type could not be processed at all, i.e. its catalog
// or broker listing failed.
func (r *Reconciler) Sync(ctx context.Context) (Stats, error) {
	var upserted, removed, skipped, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for _, jobType := range r.types {
		jobType := jobType
		g.Go(func() error {
			desired, err := r.repo.ListEnabledByType(ctx, jobType)
			if err != nil {
				return shared.Wrapf(err, "reconcile %s", jobType)
			}
			wanted := make(map[string]*catalog.Job, len(desired))
			for _, job := range desired {
				wanted[job.ID.String()] = job
			}

			if err := r.sweepOrphans(ctx, jobType, wanted, &removed, &failed); err != nil {
				return shared.Wrapf(err, "reconcile %s", jobType)
			}

			// Re-list after the sweep: upserting from the pre-sweep snapshot
			// would resurrect triggers for jobs deleted or disabled mid-pass.
			desired, err = r.repo.ListEnabledByType(ctx, jobType)
			if err != nil {
				return shared.Wrapf(err, "reconcile %s", jobType)
			}

			for _, job := range desired {
				if _, err := broker.ParsePattern(job.CronPattern); err != nil {
					// bad pattern in the catalog must not stall the rest of the type
					r.log.Error("skipping job with invalid cron pattern",
						"job_id", job.ID, "type", jobType, "pattern", job.CronPattern, "error", err)
					skipped.Add(1)
					continue
				}
				if _, err := r.gw.UpsertTrigger(ctx, jobType, catalog.TriggerFor(job)); err != nil {
					r.log.Warn("trigger upsert failed",
						"job_id", job.ID, "type", jobType, "error", err)
					failed.Add(1)
					continue
				}
				upserted.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	stats := Stats{
		Upserted: upserted.Load(),
		Removed:  removed.Load(),
		Skipped:  skipped.Load(),
		Failed:   failed.Load(),
	}
	return stats, err
}

// sweepOrphans pages through the type's triggers and removes every one the
// catalog does not account for: deleted or disabled jobs, jobs moved to
// another type, and keys that are not job ids at all.
func (r *Reconciler) sweepOrphans(ctx context.Context, jobType string, wanted map[string]*catalog.Job, removed, failed *atomic.Int64) error {
	// page everything up front: removing while paging would shift offsets
	var all []broker.Trigger
	for offset := 0; ; offset += r.pageSize {
		page, err := r.gw.ListTriggers(ctx, jobType, offset, r.pageSize)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if len(page) < r.pageSize {
			break
		}
	}

	for _, t := range all {
		orphan := false
		if _, err := uuid.Parse(t.Key); err != nil {
			orphan = true
		} else if _, ok := wanted[t.Key]; !ok {
			orphan = true
		}
		if !orphan {
			continue
		}
		if err := r.gw.RemoveTrigger(ctx, jobType, t.Key); err != nil {
			r.log.Warn("orphan removal failed", "type", jobType, "key", t.Key, "error", err)
			failed.Add(1)
			continue
		}
		r.log.Info("removed orphan trigger", "type", jobType, "key", t.Key)
		removed.Add(1)
	}
	return nil
}

// Drain removes every trigger of every type, regardless of the catalog.
// Used when taking the scheduling plane down for maintenance.
func (r *Reconciler) Drain(ctx context.Context) (int64, error) {
	var removed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for _, jobType := range r.types {
		jobType := jobType
		g.Go(func() error {
			for {
				// always page from zero: removals shift the remainder down
				triggers, err := r.gw.ListTriggers(ctx, jobType, 0, r.pageSize)
				if err != nil {
					return shared.Wrapf(err, "drain %s", jobType)
				}
				if len(triggers) == 0 {
					return nil
				}
				for _, t := range triggers {
					if err := r.gw.RemoveTrigger(ctx, jobType, t.Key); err != nil {
						return shared.Wrapf(err, "drain %s trigger %s", jobType, t.Key)
					}
					removed.Add(1)
				}
			}
		})
	}
	err := g.Wait()
	return removed.Load(), err
}
