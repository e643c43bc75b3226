// Package broker adapts the external work-queue broker behind a narrow
// contract: recurring triggers keyed by job id, immediate work items, and a
// per-type stream of lifecycle events. Trigger and work-item state live only
// in the broker; the gateway itself is stateless.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"jobkeeper/internal/shared"
)

// Status is a work-item lifecycle state as emitted by the broker.
type Status string

const (
	StatusAdded     Status = "added"
	StatusWaiting   Status = "waiting"
	StatusDelayed   Status = "delayed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusAdded, StatusWaiting, StatusDelayed, StatusActive, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a work item's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ItemData is the payload template carried by triggers and work items,
// forwarded verbatim to workers.
type ItemData struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Trigger is a broker-side recurring schedule bound to a job definition id.
// The broker exclusively owns trigger scheduling state; callers never cache
// next-fire times.
type Trigger struct {
	Key            string
	Pattern        string
	JobName        string
	Data           ItemData
	IterationCount int
	NextFire       time.Time
}

// WorkItem is one enqueued unit of work, either scheduled or immediate.
type WorkItem struct {
	ID           string
	Name         string
	Data         ItemData
	State        Status
	Result       json.RawMessage
	FailedReason string
	CreatedAt    time.Time
}

// Event is one lifecycle transition observed on a job type's event stream.
// The payload is a notification only; consumers fetch the item for data.
type Event struct {
	JobType string
	Status  Status
	ItemID  string
}

// Gateway is the five-operation broker contract. Every implementation opens
// a broker connection scoped to the call and guarantees closure on all exit
// paths. Removing a non-existent trigger is not an error.
type Gateway interface {
	UpsertTrigger(ctx context.Context, jobType string, t Trigger) (Trigger, error)
	RemoveTrigger(ctx context.Context, jobType, key string) error
	ListTriggers(ctx context.Context, jobType string, offset, limit int) ([]Trigger, error)
	EnqueueNow(ctx context.Context, jobType string, data ItemData) (string, error)
	FetchWorkItem(ctx context.Context, jobType, id string) (WorkItem, error)

	// Counts returns the number of work items per lifecycle state.
	Counts(ctx context.Context, jobType string) (map[Status]int64, error)
}

// EventStream delivers lifecycle events for one job type. The returned stop
// function releases the subscription; the channel is closed afterwards.
type EventStream interface {
	Subscribe(ctx context.Context, jobType string) (<-chan Event, func(), error)
}

// standard 5-field cron, no seconds; matches what operators type into the UI
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParsePattern validates a cron pattern the way the broker does on trigger
// upsert and returns its schedule. Invalid patterns carry KindValidation.
func ParsePattern(pattern string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(pattern)
	if err != nil {
		return nil, shared.MarkKind(shared.Wrapf(err, "cron pattern %q", pattern), shared.KindValidation)
	}
	return sched, nil
}
