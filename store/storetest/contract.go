// Package storetest holds the behavioural contract every store.CheckpointStore backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/smallnest/fabflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract exercises Save/Load/List/Delete/Clear against s.
// The store must be empty when the contract starts.
func RunCheckpointStoreContract(t *testing.T, s store.CheckpointStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mk := func(thread string, version int, status store.Status, next ...string) *store.Checkpoint {
		return &store.Checkpoint{
			ID:        fmt.Sprintf("%s-v%d", thread, version),
			ThreadID:  thread,
			NodeName:  "propose",
			State:     json.RawMessage(fmt.Sprintf(`{"input_text":"LOT%d photo"}`, version)),
			Next:      next,
			Status:    status,
			Metadata:  map[string]any{"source": "contract"},
			Timestamp: now.Add(time.Duration(version) * time.Second),
			Version:   version,
		}
	}

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := s.Load(ctx, "does-not-exist")
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		cp := mk("thread-a", 1, store.StatusSuspended, "review")
		cp.Interrupt = json.RawMessage(`{"action":"router_decision_review"}`)
		require.NoError(t, s.Save(ctx, cp))

		got, err := s.Load(ctx, cp.ID)
		require.NoError(t, err)
		assert.Equal(t, cp.ID, got.ID)
		assert.Equal(t, "thread-a", got.ThreadID)
		assert.Equal(t, "propose", got.NodeName)
		assert.JSONEq(t, string(cp.State), string(got.State))
		assert.JSONEq(t, string(cp.Interrupt), string(got.Interrupt))
		assert.Equal(t, []string{"review"}, got.Next)
		assert.Equal(t, store.StatusSuspended, got.Status)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, "contract", got.Metadata["source"])
		assert.True(t, cp.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", cp.Timestamp, got.Timestamp)
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		cp := mk("thread-a", 1, store.StatusCompleted)
		require.NoError(t, s.Save(ctx, cp))

		got, err := s.Load(ctx, cp.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusCompleted, got.Status)
		assert.Empty(t, got.Next)
	})

	t.Run("ListOrderedByVersion", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, mk("thread-a", 3, store.StatusRunning, "dispatch")))
		require.NoError(t, s.Save(ctx, mk("thread-a", 2, store.StatusRunning, "review")))
		require.NoError(t, s.Save(ctx, mk("thread-b", 1, store.StatusRunning, "history")))

		list, err := s.List(ctx, "thread-a")
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, cp := range list {
			assert.Equal(t, i+1, cp.Version)
			assert.Equal(t, "thread-a", cp.ThreadID)
		}

		latest, err := store.Latest(ctx, s, "thread-a")
		require.NoError(t, err)
		assert.Equal(t, 3, latest.Version)

		empty, err := s.List(ctx, "thread-unknown")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "thread-a-v3"))
		_, err := s.Load(ctx, "thread-a-v3")
		assert.ErrorIs(t, err, store.ErrNotFound)

		list, err := s.List(ctx, "thread-a")
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx, "thread-a"))
		list, err := s.List(ctx, "thread-a")
		require.NoError(t, err)
		assert.Empty(t, list)

		other, err := s.List(ctx, "thread-b")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})
}
