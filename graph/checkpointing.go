package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/store"
)

// StateSnapshot is the persisted view of a thread.
type StateSnapshot[S any] struct {
	Values       S
	Next         []string
	Status       store.Status
	Interrupt    json.RawMessage
	CheckpointID string
	CreatedAt    time.Time
}

// CheckpointRunnable runs a graph against a checkpoint store keyed by thread id,
// so that a suspended thread can be resumed later, from another process.
type CheckpointRunnable[S any] struct {
	runnable *Runnable[S]
	store    store.CheckpointStore
	logger   log.Logger
	now      func() time.Time
}

// CheckpointOption configures a CheckpointRunnable.
type CheckpointOption func(*checkpointOptions)

type checkpointOptions struct {
	logger log.Logger
	now    func() time.Time
}

// WithCheckpointLogger sets the logger.
func WithCheckpointLogger(l log.Logger) CheckpointOption {
	return func(o *checkpointOptions) { o.logger = l }
}

// WithClock overrides the checkpoint timestamp source.
func WithClock(now func() time.Time) CheckpointOption {
	return func(o *checkpointOptions) { o.now = now }
}

// NewCheckpointRunnable wraps r so that every step is persisted to s.
func NewCheckpointRunnable[S any](r *Runnable[S], s store.CheckpointStore, opts ...CheckpointOption) *CheckpointRunnable[S] {
	o := checkpointOptions{logger: log.GetDefaultLogger(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &CheckpointRunnable[S]{runnable: r, store: s, logger: o.logger, now: o.now}
}

// Runnable returns the wrapped runnable.
func (c *CheckpointRunnable[S]) Runnable() *Runnable[S] {
	return c.runnable
}

// Invoke starts a fresh run of threadID from the entry point. A pending
// suspension on the thread is superseded.
func (c *CheckpointRunnable[S]) Invoke(ctx context.Context, threadID string, input S, config *Config) (*Outcome[S], error) {
	version, err := c.lastVersion(ctx, threadID)
	if err != nil {
		return nil, err
	}

	cfg := c.prepare(config)
	cfg.ResumeFrom = nil
	cfg.HasResumeValue = false

	w := &checkpointWriter[S]{c: c, threadID: threadID, version: version}
	if err := w.write(ctx, START, input, []string{c.runnable.graph.entryPoint}, store.StatusRunning, nil); err != nil {
		return nil, err
	}
	return c.run(ctx, w, input, cfg)
}

// Resume continues a suspended thread from its cursor with value as the resume
// value. Nodes before the cursor are not executed again.
func (c *CheckpointRunnable[S]) Resume(ctx context.Context, threadID string, value any, config *Config) (*Outcome[S], error) {
	latest, err := store.Latest(ctx, c.store, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}
		return nil, err
	}
	if latest.Status != store.StatusSuspended {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotSuspended, threadID, latest.Status)
	}

	var state S
	if err := json.Unmarshal(latest.State, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", latest.ID, err)
	}

	cfg := c.prepare(config)
	cfg.ResumeFrom = latest.Next
	cfg.ResumeValue = value
	cfg.HasResumeValue = true

	c.logger.Debug("resuming thread %s at %v from checkpoint %s", threadID, latest.Next, latest.ID)
	w := &checkpointWriter[S]{c: c, threadID: threadID, version: latest.Version}
	out, err := c.run(ctx, w, state, cfg)
	if err != nil {
		// the thread stays resumable from the same suspension point
		if rerr := w.restore(context.WithoutCancel(ctx), latest, err); rerr != nil {
			c.logger.Error("failed to restore suspension of thread %s: %v", threadID, rerr)
		}
		return nil, err
	}
	return out, nil
}

func (c *CheckpointRunnable[S]) prepare(config *Config) *Config {
	cfg := &Config{}
	if config != nil {
		*cfg = *config
	}
	return cfg
}

func (c *CheckpointRunnable[S]) run(ctx context.Context, w *checkpointWriter[S], state S, cfg *Config) (*Outcome[S], error) {
	userStep := cfg.OnStep
	cfg.OnStep = func(ctx context.Context, nodes []string, st any, next []string) error {
		status := store.StatusRunning
		if isTerminal(next) {
			status = store.StatusCompleted
		}
		if err := w.write(ctx, strings.Join(nodes, ","), st, next, status, nil); err != nil {
			return err
		}
		if userStep != nil {
			return userStep(ctx, nodes, st, next)
		}
		return nil
	}

	out, err := c.runnable.Run(ctx, state, cfg)
	if err != nil {
		return nil, err
	}

	if out.IsSuspended() {
		payload, err := json.Marshal(out.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode interrupt payload: %w", err)
		}
		if err := w.write(ctx, out.Node, out.State, out.Next, store.StatusSuspended, payload); err != nil {
			return nil, err
		}
		c.logger.Info("thread %s suspended at %s", w.threadID, out.Node)
	}
	return out, nil
}

func isTerminal(next []string) bool {
	for _, n := range next {
		if n != END {
			return false
		}
	}
	return true
}

func (c *CheckpointRunnable[S]) lastVersion(ctx context.Context, threadID string) (int, error) {
	latest, err := store.Latest(ctx, c.store, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return latest.Version, nil
}

// GetState returns the latest snapshot of threadID, or ErrThreadNotFound.
func (c *CheckpointRunnable[S]) GetState(ctx context.Context, threadID string) (*StateSnapshot[S], error) {
	latest, err := store.Latest(ctx, c.store, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}
		return nil, err
	}
	return snapshotOf[S](latest)
}

// History returns every snapshot of threadID, newest first.
func (c *CheckpointRunnable[S]) History(ctx context.Context, threadID string) ([]*StateSnapshot[S], error) {
	checkpoints, err := c.store.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*StateSnapshot[S], 0, len(checkpoints))
	for i := len(checkpoints) - 1; i >= 0; i-- {
		snap, err := snapshotOf[S](checkpoints[i])
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func snapshotOf[S any](cp *store.Checkpoint) (*StateSnapshot[S], error) {
	snap := &StateSnapshot[S]{
		Status:       cp.Status,
		Interrupt:    cp.Interrupt,
		CheckpointID: cp.ID,
		CreatedAt:    cp.Timestamp,
		Next:         []string{},
	}
	if len(cp.State) > 0 {
		if err := json.Unmarshal(cp.State, &snap.Values); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint %s: %w", cp.ID, err)
		}
	}
	for _, n := range cp.Next {
		if n != END {
			snap.Next = append(snap.Next, n)
		}
	}
	return snap, nil
}

type checkpointWriter[S any] struct {
	c        *CheckpointRunnable[S]
	threadID string
	version  int
}

func (w *checkpointWriter[S]) write(ctx context.Context, node string, state any, next []string, status store.Status, interrupt json.RawMessage) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	w.version++
	cp := &store.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  w.threadID,
		NodeName:  node,
		State:     data,
		Next:      next,
		Status:    status,
		Interrupt: interrupt,
		Timestamp: w.c.now(),
		Version:   w.version,
	}
	if err := w.c.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (w *checkpointWriter[S]) restore(ctx context.Context, suspended *store.Checkpoint, cause error) error {
	cp := suspended.Clone()
	w.version++
	cp.ID = uuid.NewString()
	cp.Version = w.version
	cp.Timestamp = w.c.now()
	if cp.Metadata == nil {
		cp.Metadata = make(map[string]any)
	}
	cp.Metadata["restored_from"] = suspended.ID
	cp.Metadata["error"] = cause.Error()
	return w.c.store.Save(ctx, cp)
}
