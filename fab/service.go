package fab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/fabflow/graph"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/prebuilt"
	"github.com/smallnest/fabflow/session"
	"github.com/smallnest/fabflow/store"
	"github.com/smallnest/fabflow/tool"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// ErrSessionNotFound matches every *SessionNotFoundError.
var ErrSessionNotFound = errors.New("session not found")

// ErrEmptyInput is returned when a run is started without input text.
var ErrEmptyInput = errors.New("no input provided")

// SessionNotFoundError is returned by Resume for a thread that does not exist
// or is not waiting for a review.
type SessionNotFoundError struct {
	ThreadID string
	Reason   string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found: %s", e.ThreadID, e.Reason)
}

// Is makes errors.Is(err, ErrSessionNotFound) true.
func (e *SessionNotFoundError) Is(target error) bool {
	return target == ErrSessionNotFound
}

// UpdateFunc receives each node's partial update as it is merged.
type UpdateFunc func(ctx context.Context, node string, update State) error

// Result is the outcome of Start or Resume: either Completed with the final
// state, or Suspended with the pending review.
type Result struct {
	ThreadID  string
	Kind      graph.OutcomeKind
	State     State
	Interrupt *ReviewRequest
	Next      []string
}

// Suspended reports whether the run is waiting for a review.
func (r *Result) Suspended() bool {
	return r.Kind == graph.OutcomeSuspended
}

// Snapshot is the persisted view of a thread.
type Snapshot struct {
	Values       State          `json:"values"`
	Next         []string       `json:"next"`
	Status       store.Status   `json:"status,omitempty"`
	Interrupt    *ReviewRequest `json:"interrupt,omitempty"`
	CheckpointID string         `json:"checkpoint_id,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
}

// Service runs the inspection workflow against a checkpoint store. It is built
// once at startup and shared by all requests.
type Service struct {
	graph    *graph.StateGraph[State]
	runnable *graph.CheckpointRunnable[State]
	sessions *session.Manager
	logger   log.Logger
}

type serviceOptions struct {
	logger        log.Logger
	dispatcher    *Dispatcher
	historyTool   tools.Tool
	policy        SummarizerFailurePolicy
	listeners     []graph.NodeListener
	sessions      *session.Manager
	observer      VerdictObserver
	maxIterations int
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// WithDispatcher replaces the agent based dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(o *serviceOptions) { o.dispatcher = d }
}

// WithHistoryTool replaces the random process history generator.
func WithHistoryTool(t tools.Tool) Option {
	return func(o *serviceOptions) { o.historyTool = t }
}

// WithSummarizerPolicy sets what happens when the summarizer's model call fails.
func WithSummarizerPolicy(p SummarizerFailurePolicy) Option {
	return func(o *serviceOptions) { o.policy = p }
}

// WithListener adds a node listener.
func WithListener(l graph.NodeListener) Option {
	return func(o *serviceOptions) { o.listeners = append(o.listeners, l) }
}

// WithLocker sets the session manager serializing runs of one thread.
func WithLocker(m *session.Manager) Option {
	return func(o *serviceOptions) { o.sessions = m }
}

// WithVerdictObserver sets the observer told about review verdicts.
func WithVerdictObserver(v VerdictObserver) Option {
	return func(o *serviceOptions) { o.observer = v }
}

// WithMaxIterations bounds the tool loop of the default inspection agents.
func WithMaxIterations(n int) Option {
	return func(o *serviceOptions) { o.maxIterations = n }
}

// NewService builds the workflow.
func NewService(model llms.Model, checkpoints store.CheckpointStore, opts ...Option) (*Service, error) {
	o := serviceOptions{
		logger:        log.GetDefaultLogger(),
		policy:        SummarizerPropagate,
		maxIterations: prebuilt.DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.historyTool == nil {
		o.historyTool = tool.NewProcessHistory()
	}
	if o.sessions == nil {
		o.sessions = session.NewManager(session.WithLogger(o.logger))
	}
	if o.dispatcher == nil {
		d, err := NewAgentDispatcher(model, o.logger, o.maxIterations)
		if err != nil {
			return nil, err
		}
		o.dispatcher = d
	}

	w := &workflow{
		model:       model,
		dispatcher:  o.dispatcher,
		historyTool: o.historyTool,
		policy:      o.policy,
		observer:    o.observer,
		logger:      o.logger,
	}
	g := newGraph(w)
	r, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow: %w", err)
	}
	for _, l := range o.listeners {
		r.AddListener(l)
	}

	return &Service{
		graph:    g,
		runnable: graph.NewCheckpointRunnable(r, checkpoints, graph.WithCheckpointLogger(o.logger)),
		sessions: o.sessions,
		logger:   o.logger,
	}, nil
}

// Graph returns the workflow graph, for export.
func (s *Service) Graph() *graph.StateGraph[State] {
	return s.graph
}

// NewThread returns a fresh thread id.
func (s *Service) NewThread() string {
	return uuid.NewString()
}

// Start runs the workflow on input from the beginning. A thread that was
// waiting for a review starts over.
func (s *Service) Start(ctx context.Context, threadID, input string, onUpdate UpdateFunc) (*Result, error) {
	if input == "" {
		return nil, ErrEmptyInput
	}

	var out *graph.Outcome[State]
	err := s.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		out, err = s.runnable.Invoke(ctx, threadID, State{InputText: input}, s.config(onUpdate))
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.result(threadID, out)
}

// Resume answers the pending review of threadID with verdict and runs the
// workflow to its end. Nodes before the review are not executed again.
func (s *Service) Resume(ctx context.Context, threadID string, verdict Verdict, onUpdate UpdateFunc) (*Result, error) {
	v, err := DecodeVerdict(verdict)
	if err != nil {
		return nil, err
	}

	var out *graph.Outcome[State]
	err = s.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		out, err = s.runnable.Resume(ctx, threadID, v, s.config(onUpdate))
		return err
	})
	switch {
	case errors.Is(err, graph.ErrThreadNotFound):
		return nil, &SessionNotFoundError{ThreadID: threadID, Reason: "unknown thread"}
	case errors.Is(err, graph.ErrNotSuspended):
		return nil, &SessionNotFoundError{ThreadID: threadID, Reason: "no pending review"}
	case err != nil:
		return nil, err
	}
	return s.result(threadID, out)
}

// State returns the latest snapshot of threadID. An unknown thread yields an
// empty snapshot.
func (s *Service) State(ctx context.Context, threadID string) (*Snapshot, error) {
	snap, err := s.runnable.GetState(ctx, threadID)
	if errors.Is(err, graph.ErrThreadNotFound) {
		return &Snapshot{Next: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return toSnapshot(snap)
}

// History returns every snapshot of threadID, newest first.
func (s *Service) History(ctx context.Context, threadID string) ([]*Snapshot, error) {
	snaps, err := s.runnable.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		ss, err := toSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, nil
}

func toSnapshot(snap *graph.StateSnapshot[State]) (*Snapshot, error) {
	created := snap.CreatedAt
	out := &Snapshot{
		Values:       snap.Values,
		Next:         snap.Next,
		Status:       snap.Status,
		CheckpointID: snap.CheckpointID,
		CreatedAt:    &created,
	}
	if snap.Status == store.StatusSuspended && len(snap.Interrupt) > 0 {
		var req ReviewRequest
		if err := json.Unmarshal(snap.Interrupt, &req); err != nil {
			return nil, fmt.Errorf("failed to decode review request: %w", err)
		}
		out.Interrupt = &req
	}
	return out, nil
}

func (s *Service) config(onUpdate UpdateFunc) *graph.Config {
	cfg := &graph.Config{}
	if onUpdate != nil {
		cfg.OnUpdate = func(ctx context.Context, node string, update any) error {
			st, ok := update.(State)
			if !ok {
				return fmt.Errorf("unexpected update type %T from %s", update, node)
			}
			return onUpdate(ctx, node, st)
		}
	}
	return cfg
}

func (s *Service) result(threadID string, out *graph.Outcome[State]) (*Result, error) {
	res := &Result{ThreadID: threadID, Kind: out.Kind, State: out.State, Next: out.Next}
	if out.IsSuspended() {
		req, ok := out.Payload.(ReviewRequest)
		if !ok {
			return nil, fmt.Errorf("unexpected interrupt payload %T at %s", out.Payload, out.Node)
		}
		res.Interrupt = &req
	}
	return res, nil
}
