// Package audit keeps the append-only execution trail: every lifecycle
// transition a work item goes through is one immutable row, and history is
// read back grouped by execution.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"jobkeeper/internal/broker"
)

// Entry is one recorded lifecycle transition of a work item. Entries are
// never updated or deleted.
type Entry struct {
	ID           int64
	JobID        uuid.UUID
	JobType      string
	ExecutionID  string
	Status       broker.Status
	Data         json.RawMessage
	Result       json.RawMessage
	FailedReason string
	CreatedAt    time.Time
}

// Execution is the recorded trail of a single work item: all its entries,
// newest first.
type Execution struct {
	ExecutionID string
	Entries     []Entry
}

// GroupByExecution folds a flat, newest-first entry list into executions.
// Group order follows first appearance, so with newest-first input the most
// recent execution comes first.
func GroupByExecution(entries []Entry) []Execution {
	var out []Execution
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.ExecutionID]
		if !ok {
			i = len(out)
			index[e.ExecutionID] = i
			out = append(out, Execution{ExecutionID: e.ExecutionID})
		}
		out[i].Entries = append(out[i].Entries, e)
	}
	return out
}
