// Package listener turns broker lifecycle events into audit entries. One
// subscription per job type, fixed at startup; events referencing work
// items the broker no longer knows become audit gaps, logged and dropped,
// never fabricated entries.
package listener

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobkeeper/internal/audit"
	"jobkeeper/internal/broker"
	"jobkeeper/internal/shared"
)

// Supervisor owns one event loop per job type.
type Supervisor struct {
	stream broker.EventStream
	gw     broker.Gateway
	store  audit.Store
	types  []string
	log    *slog.Logger

	group *errgroup.Group
}

// New creates a supervisor for the given job types. The type set is fixed:
// types registered after startup get no listener until the next restart.
func New(stream broker.EventStream, gw broker.Gateway, store audit.Store, types []string, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{stream: stream, gw: gw, store: store, types: types, log: log}
}

// Start subscribes to every type and spawns the event loops. If any
// subscription fails the ones already made are released and nothing runs.
func (s *Supervisor) Start(ctx context.Context) error {
	type sub struct {
		jobType string
		events  <-chan broker.Event
		stop    func()
	}

	subs := make([]sub, 0, len(s.types))
	for _, jobType := range s.types {
		events, stop, err := s.stream.Subscribe(ctx, jobType)
		if err != nil {
			for _, made := range subs {
				made.stop()
			}
			return shared.Wrapf(err, "subscribe %s", jobType)
		}
		subs = append(subs, sub{jobType: jobType, events: events, stop: stop})
	}

	g, ctx := errgroup.WithContext(ctx)
	s.group = g
	for _, made := range subs {
		made := made
		g.Go(func() error {
			defer made.stop()
			s.log.Info("listening for job events", "type", made.jobType)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev, ok := <-made.events:
					if !ok {
						return nil
					}
					s.handle(ctx, ev)
				}
			}
		})
	}
	return nil
}

// Wait blocks until every event loop has exited. Returns context.Canceled
// after a regular shutdown.
func (s *Supervisor) Wait() error {
	return s.group.Wait()
}

// handle records one lifecycle event. Broker and store failures are logged
// and swallowed so a single bad event cannot take the loop down.
func (s *Supervisor) handle(ctx context.Context, ev broker.Event) {
	if !ev.Status.Valid() {
		s.log.Warn("dropping event with unknown status", "type", ev.JobType, "status", string(ev.Status), "item", ev.ItemID)
		return
	}

	terminal, err := s.store.HasTerminal(ctx, ev.JobType, ev.ItemID)
	if err != nil {
		s.log.Error("terminal check failed", "item", ev.ItemID, "error", err)
		return
	}
	if terminal {
		// late or replayed event for a finished execution
		s.log.Debug("ignoring event past terminal state", "type", ev.JobType, "status", string(ev.Status), "item", ev.ItemID)
		return
	}

	// fetch on every event: result and failure reason only exist on the item
	item, err := s.gw.FetchWorkItem(ctx, ev.JobType, ev.ItemID)
	if err != nil {
		s.log.Warn("work item unavailable, audit gap", "type", ev.JobType, "item", ev.ItemID, "error", err)
		return
	}

	jobID, err := uuid.Parse(item.Data.JobID)
	if err != nil {
		s.log.Warn("work item carries no job id, audit gap", "type", ev.JobType, "item", ev.ItemID, "error", err)
		return
	}

	entry := audit.Entry{
		JobID:       jobID,
		JobType:     ev.JobType,
		ExecutionID: ev.ItemID,
		Status:      ev.Status,
		Data:        item.Data.Payload,
	}
	switch ev.Status {
	case broker.StatusCompleted:
		entry.Result = item.Result
	case broker.StatusFailed:
		entry.FailedReason = item.FailedReason
	}

	if err := s.store.Append(ctx, &entry); err != nil {
		s.log.Error("audit append failed", "type", ev.JobType, "item", ev.ItemID, "error", err)
		return
	}
	s.log.Debug("recorded job event", "type", ev.JobType, "status", string(ev.Status), "item", ev.ItemID)
}
