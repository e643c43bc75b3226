package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformredis "jobkeeper/internal/platform/redis"
	"jobkeeper/internal/shared"
)

// RedisGateway talks to a Redis-backed broker. Each operation dials a fresh
// client scoped to the call and closes it on every exit path; connection
// setup is paid per call instead of tracking pooled sockets across three
// processes.
type RedisGateway struct {
	opts      platformredis.Options
	opTimeout time.Duration
	log       *slog.Logger
}

var (
	_ Gateway     = (*RedisGateway)(nil)
	_ EventStream = (*RedisGateway)(nil)
)

// NewRedisGateway creates a gateway for the given Redis endpoint.
func NewRedisGateway(opts platformredis.Options, log *slog.Logger) *RedisGateway {
	if log == nil {
		log = slog.Default()
	}
	return &RedisGateway{
		opts:      opts,
		opTimeout: 10 * time.Second,
		log:       log,
	}
}

// withClient runs fn with a freshly dialed client under the gateway's
// per-operation timeout. The client is closed no matter how fn exits.
func (g *RedisGateway) withClient(ctx context.Context, fn func(ctx context.Context, c *goredis.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.opTimeout)
	defer cancel()

	c := platformredis.Open(g.opts)
	defer c.Close()

	return fn(ctx, c)
}

// UpsertTrigger creates or replaces the recurring trigger keyed by t.Key.
// The pattern is validated here, mirroring the broker's own upsert check.
// An existing trigger's iteration count survives the replace.
func (g *RedisGateway) UpsertTrigger(ctx context.Context, jobType string, t Trigger) (Trigger, error) {
	sched, err := ParsePattern(t.Pattern)
	if err != nil {
		return Trigger{}, err
	}
	t.NextFire = sched.Next(time.Now().UTC())

	data, err := json.Marshal(t.Data)
	if err != nil {
		return Trigger{}, shared.Wrap(err, "broker: marshal trigger data")
	}

	err = g.withClient(ctx, func(ctx context.Context, c *goredis.Client) error {
		key := triggerKey(jobType, t.Key)

		// Preserve the iteration count across replaces.
		iter, getErr := c.HGet(ctx, key, "iteration_count").Int()
		if getErr != nil && !errors.Is(getErr, goredis.Nil) {
			return fmt.Errorf("broker: read trigger %s: %w", t.Key, getErr)
		}
		t.IterationCount = iter

		pipe := c.TxPipeline()
		pipe.HSet(ctx, key,
			"key", t.Key,
			"pattern", t.Pattern,
			"job_name", t.JobName,
			"data", string(data),
			"iteration_count", strconv.Itoa(t.IterationCount),
			"next_fire", t.NextFire.Format(time.RFC3339Nano),
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.ZAdd(ctx, triggersKey(jobType), goredis.Z{
			Score:  float64(time.Now().UnixNano()),
			Member: t.Key,
		})
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return fmt.Errorf("broker: upsert trigger %s: %w", t.Key, execErr)
		}
		return nil
	})
	if err != nil {
		if shared.IsValidation(err) {
			return Trigger{}, err
		}
		return Trigger{}, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return t, nil
}

// RemoveTrigger deletes the trigger keyed by key. Removing a trigger that
// does not exist is not an error.
func (g *RedisGateway) RemoveTrigger(ctx context.Context, jobType, key string) error {
	err := g.withClient(ctx, func(ctx context.Context, c *goredis.Client) error {
		pipe := c.TxPipeline()
		pipe.Del(ctx, triggerKey(jobType, key))
		pipe.ZRem(ctx, triggersKey(jobType), key)
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return fmt.Errorf("broker: remove trigger %s: %w", key, execErr)
		}
		return nil
	})
	if err != nil {
		return shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return nil
}

// ListTriggers returns one page of the type's active triggers.
func (g *RedisGateway) ListTriggers(ctx context.Context, jobType string, offset, limit int) ([]Trigger, error) {
	var out []Trigger
	err := g.withClient(ctx, func(ctx context.Context, c *goredis.Client) error {
		keys, listErr := c.ZRange(ctx, triggersKey(jobType), int64(offset), int64(offset+limit-1)).Result()
		if listErr != nil {
			return fmt.Errorf("broker: list triggers: %w", listErr)
		}
		for _, key := range keys {
			vals, getErr := c.HGetAll(ctx, triggerKey(jobType, key)).Result()
			if getErr != nil {
				return fmt.Errorf("broker: read trigger %s: %w", key, getErr)
			}
			if len(vals) == 0 {
				continue // membership entry outlived the hash
			}
			t, convErr := mapToTrigger(vals)
			if convErr != nil {
				g.log.Warn("skipping malformed trigger", "type", jobType, "key", key, "error", convErr)
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return out, nil
}

// EnqueueNow adds an immediate work item to the type's queue and announces
// it on the event channel. Returns the broker-assigned execution id.
func (g *RedisGateway) EnqueueNow(ctx context.Context, jobType string, data ItemData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", shared.Wrap(err, "broker: marshal item data")
	}

	var id string
	err = g.withClient(ctx, func(ctx context.Context, c *goredis.Client) error {
		seq, incrErr := c.Incr(ctx, itemSeqKey(jobType)).Result()
		if incrErr != nil {
			return fmt.Errorf("broker: allocate item id: %w", incrErr)
		}
		id = strconv.FormatInt(seq, 10)
		now := time.Now().UTC()

		pipe := c.TxPipeline()
		pipe.HSet(ctx, itemKey(jobType, id),
			"id", id,
			"name", "immediate-job",
			"data", string(raw),
			"state", string(StatusAdded),
			"created_at", now.Format(time.RFC3339Nano),
		)
		pipe.ZAdd(ctx, itemsKey(jobType), goredis.Z{Score: float64(now.UnixNano()), Member: id})
		pipe.Publish(ctx, eventsKey(jobType), eventPayload(StatusAdded, id))
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return fmt.Errorf("broker: enqueue item: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return "", shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return id, nil
}

// FetchWorkItem loads the current state of one work item.
func (g *RedisGateway) FetchWorkItem(ctx context.Context, jobType, id string) (WorkItem, error) {
	var item WorkItem
	err := g.withClient(ctx, func(ctx context.Context, c *goredis.Client) error {
		vals, getErr := c.HGetAll(ctx, itemKey(jobType, id)).Result()
		if getErr != nil {
			return fmt.Errorf("broker: fetch item %s: %w", id, getErr)
		}
		if len(vals) == 0 {
			return shared.MarkKind(fmt.Errorf("work item %s/%s", jobType, id), shared.KindNotFound)
		}
		var convErr error
		item, convErr = mapToWorkItem(vals)
		return convErr
	})
	if err != nil {
		if shared.IsNotFound(err) {
			return WorkItem{}, err
		}
		return WorkItem{}, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return item, nil
}

// Counts tallies the type's work items per lifecycle state.
func (g *RedisGateway) Counts(ctx context.Context, jobType string) (map[Status]int64, error) {
	counts := make(map[Status]int64)
	err := g.withClient(ctx, func(ctx context.Context, c *goredis.Client) error {
		ids, listErr := c.ZRange(ctx, itemsKey(jobType), 0, -1).Result()
		if listErr != nil {
			return fmt.Errorf("broker: list items: %w", listErr)
		}
		for _, id := range ids {
			state, getErr := c.HGet(ctx, itemKey(jobType, id), "state").Result()
			if errors.Is(getErr, goredis.Nil) {
				continue // item reaped by retention
			}
			if getErr != nil {
				return fmt.Errorf("broker: read item %s: %w", id, getErr)
			}
			counts[Status(state)]++
		}
		return nil
	})
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return counts, nil
}

// Subscribe opens a long-lived subscription on the type's event channel.
// Unlike the per-operation methods, the connection stays open for the life
// of the subscription; stop closes it and then the returned channel.
func (g *RedisGateway) Subscribe(ctx context.Context, jobType string) (<-chan Event, func(), error) {
	c := platformredis.Open(g.opts)
	pubsub := c.Subscribe(ctx, eventsKey(jobType))

	// Confirm the subscription before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = c.Close()
		return nil, nil, shared.MarkKind(fmt.Errorf("broker: subscribe %s: %w", jobType, err), shared.KindDependencyFailure)
	}

	events := make(chan Event, 64)
	released := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(released)
			_ = pubsub.Close()
			_ = c.Close()
		})
	}

	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			ev, ok := parseEventPayload(jobType, msg.Payload)
			if !ok {
				g.log.Warn("dropping malformed broker event", "type", jobType, "payload", msg.Payload)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	go awaitRelease(ctx, released, stop)

	return events, stop, nil
}

// awaitRelease closes the subscription when ctx ends, and exits without
// doing anything once the caller has released it via stop.
func awaitRelease(ctx context.Context, released <-chan struct{}, stop func()) {
	select {
	case <-ctx.Done():
		stop()
	case <-released:
	}
}

// eventMsg is the wire shape on the Pub/Sub channel. It intentionally
// carries no item data; consumers fetch the item for the full picture.
type eventMsg struct {
	Event  string `json:"event"`
	ItemID string `json:"itemId"`
}

func eventPayload(status Status, itemID string) string {
	raw, _ := json.Marshal(eventMsg{Event: string(status), ItemID: itemID})
	return string(raw)
}

func parseEventPayload(jobType, payload string) (Event, bool) {
	var m eventMsg
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Event{}, false
	}
	status := Status(m.Event)
	if !status.Valid() || m.ItemID == "" {
		return Event{}, false
	}
	return Event{JobType: jobType, Status: status, ItemID: m.ItemID}, true
}

func mapToTrigger(vals map[string]string) (Trigger, error) {
	t := Trigger{
		Key:     vals["key"],
		Pattern: vals["pattern"],
		JobName: vals["job_name"],
	}
	if t.Key == "" || t.Pattern == "" {
		return Trigger{}, fmt.Errorf("trigger hash missing key or pattern")
	}
	if raw := vals["data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.Data); err != nil {
			return Trigger{}, fmt.Errorf("trigger data: %w", err)
		}
	}
	if v := vals["iteration_count"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Trigger{}, fmt.Errorf("iteration_count: %w", err)
		}
		t.IterationCount = n
	}
	if v := vals["next_fire"]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Trigger{}, fmt.Errorf("next_fire: %w", err)
		}
		t.NextFire = ts
	}
	return t, nil
}

func mapToWorkItem(vals map[string]string) (WorkItem, error) {
	item := WorkItem{
		ID:           vals["id"],
		Name:         vals["name"],
		State:        Status(vals["state"]),
		FailedReason: vals["failed_reason"],
	}
	if item.ID == "" {
		return WorkItem{}, fmt.Errorf("item hash missing id")
	}
	if raw := vals["data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &item.Data); err != nil {
			return WorkItem{}, fmt.Errorf("item data: %w", err)
		}
	}
	if raw := vals["result"]; raw != "" {
		item.Result = json.RawMessage(raw)
	}
	if v := vals["created_at"]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return WorkItem{}, fmt.Errorf("created_at: %w", err)
		}
		item.CreatedAt = ts
	}
	return item, nil
}
