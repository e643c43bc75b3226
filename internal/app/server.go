package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"jobkeeper/internal/api"
	"jobkeeper/internal/listener"
	"jobkeeper/internal/shared"
)

const shutdownTimeout = 10 * time.Second

// RunServer starts the API plus the event listener and blocks until ctx is
// canceled, then shuts both down in order: HTTP first so no new mutations
// arrive while the listener drains its event channels.
func RunServer(ctx context.Context) error {
	a, err := Bootstrap(ctx, "jobkeeper-server")
	if err != nil {
		return err
	}
	defer a.Close()

	// the listener set is fixed at boot: types that first appear later
	// are picked up on the next restart
	types, err := a.Repo.DistinctTypes(ctx)
	if err != nil {
		return shared.Wrap(err, "load job types")
	}
	a.Log.Info("starting event listeners", "types", types)

	sup := listener.New(a.Gateway, a.Gateway, a.Audit, types, a.Log)
	if err := sup.Start(ctx); err != nil {
		return err
	}

	router := api.NewRouter(api.NewHandler(a.Jobs, a.Audit, a.Log), a.Log)
	srv := &http.Server{
		Addr:              a.Cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return shared.Wrap(err, "http server")
	case <-ctx.Done():
	}

	a.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Error("http shutdown failed", "error", err)
	}

	if err := sup.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return shared.Wrap(err, "event listener")
	}
	return nil
}
