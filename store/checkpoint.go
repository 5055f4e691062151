package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"
)

// ErrNotFound is returned (wrapped) when a checkpoint id is unknown to a store.
var ErrNotFound = errors.New("checkpoint not found")

// Status is the execution cursor state recorded with a checkpoint.
type Status string

const (
	// StatusRunning marks a checkpoint written between two steps.
	StatusRunning Status = "running"
	// StatusSuspended marks a thread waiting for external input at Next.
	StatusSuspended Status = "suspended"
	// StatusCompleted marks a thread that reached END.
	StatusCompleted Status = "completed"
)

// Checkpoint is a persisted snapshot of one thread: its state plus the cursor
// telling the engine where to continue.
type Checkpoint struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	NodeName  string          `json:"node_name"`
	State     json.RawMessage `json:"state"`
	Next      []string        `json:"next"`
	Status    Status          `json:"status"`
	Interrupt json.RawMessage `json:"interrupt,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Version   int             `json:"version"`
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = slices.Clone(c.State)
	out.Interrupt = slices.Clone(c.Interrupt)
	out.Next = slices.Clone(c.Next)
	if c.Metadata != nil {
		out.Metadata = maps.Clone(c.Metadata)
	}
	return &out
}

// CheckpointStore defines the interface for checkpoint persistence
type CheckpointStore interface {
	// Save stores a checkpoint, replacing any checkpoint with the same ID
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints of a thread ordered by Version
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Delete removes a checkpoint
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints of a thread
	Clear(ctx context.Context, threadID string) error
}

// SortByVersion orders checkpoints by ascending Version, oldest first.
func SortByVersion(checkpoints []*Checkpoint) {
	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].Version < checkpoints[j].Version
	})
}

// Latest returns the checkpoint with the highest Version for threadID.
func Latest(ctx context.Context, s CheckpointStore, threadID string) (*Checkpoint, error) {
	checkpoints, err := s.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
	}
	latest := checkpoints[0]
	for _, cp := range checkpoints[1:] {
		if cp.Version > latest.Version {
			latest = cp
		}
	}
	return latest, nil
}
