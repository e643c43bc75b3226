package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e.ID = s.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *MemoryStore) HasTerminal(_ context.Context, jobType, executionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.JobType == jobType && e.ExecutionID == executionID && e.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) History(_ context.Context, jobID uuid.UUID, limit int) ([]Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// latest entry per execution decides which executions make the cut
	latest := make(map[string]int64)
	for _, e := range s.entries {
		if e.JobID != jobID {
			continue
		}
		if e.ID > latest[e.ExecutionID] {
			latest[e.ExecutionID] = e.ID
		}
	}
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return latest[ids[i]] > latest[ids[j]] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	var selected []Entry
	for _, e := range s.entries {
		if e.JobID == jobID && keep[e.ExecutionID] {
			selected = append(selected, e)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].ID > selected[j].ID })
	return GroupByExecution(selected), nil
}

// Entries returns a copy of everything appended so far, in append order.
// Test helper.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
