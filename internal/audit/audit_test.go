package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkeeper/internal/broker"
)

func TestGroupByExecution(t *testing.T) {
	entries := []Entry{
		{ID: 6, ExecutionID: "b", Status: broker.StatusCompleted},
		{ID: 5, ExecutionID: "b", Status: broker.StatusActive},
		{ID: 4, ExecutionID: "a", Status: broker.StatusFailed},
		{ID: 3, ExecutionID: "b", Status: broker.StatusAdded},
		{ID: 2, ExecutionID: "a", Status: broker.StatusActive},
		{ID: 1, ExecutionID: "a", Status: broker.StatusAdded},
	}

	groups := GroupByExecution(entries)
	require.Len(t, groups, 2)

	// first appearance wins: "b" finished last, so it leads
	assert.Equal(t, "b", groups[0].ExecutionID)
	assert.Len(t, groups[0].Entries, 3)
	assert.Equal(t, broker.StatusCompleted, groups[0].Entries[0].Status)

	assert.Equal(t, "a", groups[1].ExecutionID)
	assert.Len(t, groups[1].Entries, 3)
}

func TestGroupByExecutionEmpty(t *testing.T) {
	assert.Empty(t, GroupByExecution(nil))
}

func TestMemoryStoreTerminalGuard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	jobID := uuid.New()

	require.NoError(t, store.Append(ctx, &Entry{JobID: jobID, JobType: "EMAIL_SENDING", ExecutionID: "x", Status: broker.StatusActive}))

	terminal, err := store.HasTerminal(ctx, "EMAIL_SENDING", "x")
	require.NoError(t, err)
	assert.False(t, terminal)

	require.NoError(t, store.Append(ctx, &Entry{JobID: jobID, JobType: "EMAIL_SENDING", ExecutionID: "x", Status: broker.StatusFailed}))

	terminal, err = store.HasTerminal(ctx, "EMAIL_SENDING", "x")
	require.NoError(t, err)
	assert.True(t, terminal)
}

func TestMemoryStoreTerminalGuardScopedByType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// the broker numbers executions per type, so "1" exists in every type
	require.NoError(t, store.Append(ctx, &Entry{
		JobID: uuid.New(), JobType: "EMAIL_SENDING", ExecutionID: "1", Status: broker.StatusCompleted,
	}))

	terminal, err := store.HasTerminal(ctx, "ORDER_EXPIRATION", "1")
	require.NoError(t, err)
	assert.False(t, terminal, "a finished EMAIL_SENDING run must not shadow ORDER_EXPIRATION's execution 1")

	terminal, err = store.HasTerminal(ctx, "EMAIL_SENDING", "1")
	require.NoError(t, err)
	assert.True(t, terminal)
}

func TestMemoryStoreHistoryLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	jobID := uuid.New()

	// seven executions, two entries each, appended oldest first
	for i := 1; i <= 7; i++ {
		execID := fmt.Sprintf("exec-%d", i)
		require.NoError(t, store.Append(ctx, &Entry{JobID: jobID, ExecutionID: execID, Status: broker.StatusAdded}))
		require.NoError(t, store.Append(ctx, &Entry{JobID: jobID, ExecutionID: execID, Status: broker.StatusCompleted}))
	}
	// an unrelated job must never leak into history
	require.NoError(t, store.Append(ctx, &Entry{JobID: uuid.New(), ExecutionID: "other", Status: broker.StatusAdded}))

	history, err := store.History(ctx, jobID, 5)
	require.NoError(t, err)
	require.Len(t, history, 5)

	assert.Equal(t, "exec-7", history[0].ExecutionID)
	assert.Equal(t, "exec-3", history[4].ExecutionID)
	for _, exec := range history {
		require.Len(t, exec.Entries, 2)
		assert.Equal(t, broker.StatusCompleted, exec.Entries[0].Status)
		assert.Equal(t, broker.StatusAdded, exec.Entries[1].Status)
	}
}
