// Package memory provides a process-local checkpoint store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallnest/fabflow/store"
)

// MemoryCheckpointStore keeps checkpoints in a map guarded by a RWMutex.
// Checkpoints are copied on the way in and out so callers cannot alias stored state.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
	threads     map[string]map[string]struct{}
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
		threads:     make(map[string]map[string]struct{}),
	}
}

// Save stores a checkpoint
func (s *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.checkpoints[checkpoint.ID]; ok && prev.ThreadID != checkpoint.ThreadID {
		delete(s.threads[prev.ThreadID], checkpoint.ID)
	}
	s.checkpoints[checkpoint.ID] = checkpoint.Clone()

	ids, ok := s.threads[checkpoint.ThreadID]
	if !ok {
		ids = make(map[string]struct{})
		s.threads[checkpoint.ThreadID] = ids
	}
	ids[checkpoint.ID] = struct{}{}
	return nil
}

// Load retrieves a checkpoint by ID
func (s *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, checkpointID)
	}
	return cp.Clone(), nil
}

// List returns all checkpoints of a thread ordered by Version
func (s *MemoryCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Checkpoint, 0, len(s.threads[threadID]))
	for id := range s.threads[threadID] {
		out = append(out, s.checkpoints[id].Clone())
	}
	store.SortByVersion(out)
	return out, nil
}

// Delete removes a checkpoint
func (s *MemoryCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil
	}
	delete(s.checkpoints, checkpointID)
	delete(s.threads[cp.ThreadID], checkpointID)
	return nil
}

// Clear removes all checkpoints of a thread
func (s *MemoryCheckpointStore) Clear(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.threads[threadID] {
		delete(s.checkpoints, id)
	}
	delete(s.threads, threadID)
	return nil
}
