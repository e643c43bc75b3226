package app

import (
	"context"

	"jobkeeper/internal/catalog"
	"jobkeeper/internal/reconciler"
)

// RunReconciler executes one reconciliation pass over every registered job
// type and exits. With drain set it instead removes every trigger,
// regardless of the catalog.
func RunReconciler(ctx context.Context, drain bool) error {
	a, err := Bootstrap(ctx, "jobkeeper-reconciler")
	if err != nil {
		return err
	}
	defer a.Close()

	r := reconciler.New(a.Repo, a.Gateway, catalog.Types(), a.Cfg.Broker.PageSize, a.Log)

	if drain {
		removed, err := r.Drain(ctx)
		if err != nil {
			return err
		}
		a.Log.Info("drained all triggers", "removed", removed)
		return nil
	}

	stats, err := r.Sync(ctx)
	if err != nil {
		return err
	}
	a.Log.Info("reconciliation pass finished",
		"upserted", stats.Upserted,
		"removed", stats.Removed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return nil
}
