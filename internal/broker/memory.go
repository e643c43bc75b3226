package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"jobkeeper/internal/shared"
)

// Memory is an in-process Gateway and EventStream used by tests and local
// development instead of a live broker. Beyond the gateway contract it
// exposes synthetic hooks (Emit, FireTrigger, Complete, Fail) that simulate
// the broker side: trigger firings, worker progress, and the resulting
// lifecycle events.
type Memory struct {
	mu       sync.Mutex
	triggers map[string]map[string]Trigger // type -> key -> trigger
	order    map[string][]string           // type -> keys in upsert order
	items    map[string]map[string]*WorkItem
	seq      map[string]int64 // per-type, like the broker's item counter
	subs     map[string][]*memSub

	// Mutation counters for convergence/idempotence assertions.
	UpsertCalls int
	RemoveCalls int
}

var (
	_ Gateway     = (*Memory)(nil)
	_ EventStream = (*Memory)(nil)
)

// NewMemory creates an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{
		triggers: make(map[string]map[string]Trigger),
		order:    make(map[string][]string),
		items:    make(map[string]map[string]*WorkItem),
		seq:      make(map[string]int64),
		subs:     make(map[string][]*memSub),
	}
}

// UpsertTrigger implements Gateway.
func (m *Memory) UpsertTrigger(_ context.Context, jobType string, t Trigger) (Trigger, error) {
	sched, err := ParsePattern(t.Pattern)
	if err != nil {
		return Trigger{}, err
	}
	t.NextFire = sched.Next(time.Now().UTC())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++

	byKey, ok := m.triggers[jobType]
	if !ok {
		byKey = make(map[string]Trigger)
		m.triggers[jobType] = byKey
	}
	if prev, exists := byKey[t.Key]; exists {
		t.IterationCount = prev.IterationCount
	} else {
		m.order[jobType] = append(m.order[jobType], t.Key)
	}
	byKey[t.Key] = t
	return t, nil
}

// RemoveTrigger implements Gateway. Removing a missing trigger is a no-op.
func (m *Memory) RemoveTrigger(_ context.Context, jobType, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++

	byKey, ok := m.triggers[jobType]
	if !ok {
		return nil
	}
	if _, exists := byKey[key]; !exists {
		return nil
	}
	delete(byKey, key)
	keys := m.order[jobType]
	for i, k := range keys {
		if k == key {
			m.order[jobType] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	return nil
}

// ListTriggers implements Gateway.
func (m *Memory) ListTriggers(_ context.Context, jobType string, offset, limit int) ([]Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.order[jobType]
	if offset >= len(keys) {
		return nil, nil
	}
	end := offset + limit
	if end > len(keys) {
		end = len(keys)
	}
	out := make([]Trigger, 0, end-offset)
	for _, k := range keys[offset:end] {
		out = append(out, m.triggers[jobType][k])
	}
	return out, nil
}

// EnqueueNow implements Gateway.
func (m *Memory) EnqueueNow(_ context.Context, jobType string, data ItemData) (string, error) {
	m.mu.Lock()
	m.seq[jobType]++
	id := strconv.FormatInt(m.seq[jobType], 10)
	item := &WorkItem{
		ID:        id,
		Name:      "immediate-job",
		Data:      data,
		State:     StatusAdded,
		CreatedAt: time.Now().UTC(),
	}
	byID, ok := m.items[jobType]
	if !ok {
		byID = make(map[string]*WorkItem)
		m.items[jobType] = byID
	}
	byID[id] = item
	m.mu.Unlock()

	m.Emit(jobType, StatusAdded, id)
	return id, nil
}

// FetchWorkItem implements Gateway.
func (m *Memory) FetchWorkItem(_ context.Context, jobType, id string) (WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[jobType][id]
	if !ok {
		return WorkItem{}, shared.MarkKind(fmt.Errorf("work item %s/%s", jobType, id), shared.KindNotFound)
	}
	return *item, nil
}

// Counts implements Gateway.
func (m *Memory) Counts(_ context.Context, jobType string) (map[Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Status]int64)
	for _, item := range m.items[jobType] {
		counts[item.State]++
	}
	return counts, nil
}

// memSub guards one subscriber channel so a send never races its close.
type memSub struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *memSub) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- ev
}

func (s *memSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe implements EventStream.
func (m *Memory) Subscribe(_ context.Context, jobType string) (<-chan Event, func(), error) {
	sub := &memSub{ch: make(chan Event, 64)}

	m.mu.Lock()
	m.subs[jobType] = append(m.subs[jobType], sub)
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			subs := m.subs[jobType]
			for i, s := range subs {
				if s == sub {
					m.subs[jobType] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
			sub.close()
		})
	}
	return sub.ch, stop, nil
}

// Emit publishes a synthetic lifecycle event and, when the item exists,
// advances its recorded state. This is the test hook standing in for the
// broker's own event emission.
func (m *Memory) Emit(jobType string, status Status, itemID string) {
	m.mu.Lock()
	if item, ok := m.items[jobType][itemID]; ok {
		item.State = status
	}
	subs := make([]*memSub, len(m.subs[jobType]))
	copy(subs, m.subs[jobType])
	m.mu.Unlock()

	ev := Event{JobType: jobType, Status: status, ItemID: itemID}
	for _, sub := range subs {
		sub.send(ev)
	}
}

// FireTrigger simulates the broker firing a recurring trigger: it creates a
// work item from the trigger's payload template, bumps the iteration count
// and emits the "added" event. Returns the new item's execution id.
func (m *Memory) FireTrigger(jobType, key string) (string, error) {
	m.mu.Lock()
	t, ok := m.triggers[jobType][key]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("no trigger %s/%s", jobType, key)
	}
	t.IterationCount++
	m.triggers[jobType][key] = t

	m.seq[jobType]++
	id := strconv.FormatInt(m.seq[jobType], 10)
	item := &WorkItem{
		ID:        id,
		Name:      t.JobName,
		Data:      t.Data,
		State:     StatusAdded,
		CreatedAt: time.Now().UTC(),
	}
	byID, exists := m.items[jobType]
	if !exists {
		byID = make(map[string]*WorkItem)
		m.items[jobType] = byID
	}
	byID[id] = item
	m.mu.Unlock()

	m.Emit(jobType, StatusAdded, id)
	return id, nil
}

// Complete marks an item completed with the given result and emits the event.
func (m *Memory) Complete(jobType, itemID string, result json.RawMessage) {
	m.mu.Lock()
	if item, ok := m.items[jobType][itemID]; ok {
		item.Result = result
	}
	m.mu.Unlock()
	m.Emit(jobType, StatusCompleted, itemID)
}

// Fail marks an item failed with the given reason and emits the event.
func (m *Memory) Fail(jobType, itemID, reason string) {
	m.mu.Lock()
	if item, ok := m.items[jobType][itemID]; ok {
		item.FailedReason = reason
	}
	m.mu.Unlock()
	m.Emit(jobType, StatusFailed, itemID)
}

// TriggerKeys returns the sorted trigger keys for a type. Test helper.
func (m *Memory) TriggerKeys(jobType string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.triggers[jobType]))
	for k := range m.triggers[jobType] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
