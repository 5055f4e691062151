// Package file provides a checkpoint store backed by JSON files on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smallnest/fabflow/store"
)

// FileCheckpointStore writes one <id>.json file per checkpoint under path.
type FileCheckpointStore struct {
	path string
	mu   sync.RWMutex
}

var _ store.CheckpointStore = (*FileCheckpointStore)(nil)

// NewFileCheckpointStore creates the directory if needed and returns a store rooted at path.
func NewFileCheckpointStore(path string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileCheckpointStore{path: path}, nil
}

func (s *FileCheckpointStore) filename(id string) string {
	return filepath.Join(s.path, filepath.Base(id)+".json")
}

// Save stores a checkpoint. The file is replaced atomically.
func (s *FileCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.path, ".cp-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.filename(checkpoint.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by ID
func (s *FileCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(s.filename(checkpointID), checkpointID)
}

func (s *FileCheckpointStore) read(name, id string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp store.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

// List returns all checkpoints of a thread ordered by Version
func (s *FileCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	out := []*store.Checkpoint{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		cp, err := s.read(filepath.Join(s.path, name), strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if cp.ThreadID == threadID {
			out = append(out, cp)
		}
	}
	store.SortByVersion(out)
	return out, nil
}

// Delete removes a checkpoint
func (s *FileCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filename(checkpointID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Clear removes all checkpoints of a thread
func (s *FileCheckpointStore) Clear(ctx context.Context, threadID string) error {
	checkpoints, err := s.List(ctx, threadID)
	if err != nil {
		return err
	}
	for _, cp := range checkpoints {
		if err := s.Delete(ctx, cp.ID); err != nil {
			return err
		}
	}
	return nil
}
