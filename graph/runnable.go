package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultMaxSteps bounds a single run when Config.MaxSteps is zero.
const DefaultMaxSteps = 25

// Config controls a single run.
type Config struct {
	// ResumeFrom replaces the entry point as the first step.
	ResumeFrom []string

	// ResumeValue is returned by Interrupt in the first step only.
	// It has effect only when HasResumeValue is true, so a nil resume value is allowed.
	ResumeValue    any
	HasResumeValue bool

	// InterruptBefore suspends the run before any of these nodes executes.
	InterruptBefore []string

	// MaxSteps caps the number of steps. Zero means DefaultMaxSteps.
	MaxSteps int

	// OnUpdate receives every node's partial update after it is merged.
	// Returning an error aborts the run.
	OnUpdate func(ctx context.Context, node string, update any) error

	// OnStep is called once per step with the merged state and the next nodes.
	OnStep func(ctx context.Context, nodes []string, state any, next []string) error
}

// OutcomeKind tells whether a run completed or stopped at a suspension point.
type OutcomeKind int

const (
	// OutcomeCompleted means the run reached END.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeSuspended means a node called Interrupt and is waiting for a resume value.
	OutcomeSuspended
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of a run: Completed with the final state, or Suspended
// at Node with the interrupt Payload. Next is the cursor to resume from.
type Outcome[S any] struct {
	Kind    OutcomeKind
	State   S
	Node    string
	Payload any
	Next    []string
}

// IsSuspended reports whether the run stopped at a suspension point.
func (o *Outcome[S]) IsSuspended() bool {
	return o != nil && o.Kind == OutcomeSuspended
}

// Runnable is a compiled StateGraph.
type Runnable[S any] struct {
	graph     *StateGraph[S]
	listeners []NodeListener
}

// Graph returns the graph this runnable was compiled from.
func (r *Runnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// AddListener registers a node event listener.
func (r *Runnable[S]) AddListener(l NodeListener) *Runnable[S] {
	r.listeners = append(r.listeners, l)
	return r
}

// Invoke runs the graph from the entry point with no config.
func (r *Runnable[S]) Invoke(ctx context.Context, state S) (*Outcome[S], error) {
	return r.Run(ctx, state, nil)
}

// Run executes the graph step by step. All nodes of one step run concurrently and
// their updates are merged in declaration order once every node has returned.
// If a node interrupts, the step's other updates are discarded and the whole step
// reruns on resume.
func (r *Runnable[S]) Run(ctx context.Context, state S, config *Config) (*Outcome[S], error) {
	if config == nil {
		config = &Config{}
	}

	if r.graph.schema != nil {
		var err error
		state, err = r.graph.schema.Update(r.graph.schema.Init(), state)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize state with schema: %w", err)
		}
	}

	current := []string{r.graph.entryPoint}
	if len(config.ResumeFrom) > 0 {
		current = slices.Clone(config.ResumeFrom)
	}

	maxSteps := config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	stepCtx := ctx
	if config.HasResumeValue {
		stepCtx = WithResumeValue(ctx, config.ResumeValue)
	}

	for step := 0; ; step++ {
		current = slices.DeleteFunc(current, func(n string) bool { return n == END })
		if len(current) == 0 {
			break
		}
		if step >= maxSteps {
			return nil, fmt.Errorf("%w: %d", ErrStepLimit, maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if step > 0 || !config.HasResumeValue {
			for _, node := range current {
				if slices.Contains(config.InterruptBefore, node) {
					return &Outcome[S]{Kind: OutcomeSuspended, State: state, Node: node, Next: current}, nil
				}
			}
		}

		updates, err := r.executeStep(stepCtx, current, state)
		stepCtx = ctx
		if err != nil {
			var ni *NodeInterrupt
			if errors.As(err, &ni) {
				return &Outcome[S]{
					Kind:    OutcomeSuspended,
					State:   state,
					Node:    ni.Node,
					Payload: ni.Value,
					Next:    []string{ni.Node},
				}, nil
			}
			return nil, err
		}

		for i, node := range current {
			state, err = r.merge(state, updates[i])
			if err != nil {
				return nil, fmt.Errorf("failed to merge update of node %s: %w", node, err)
			}
			if config.OnUpdate != nil {
				if err := config.OnUpdate(ctx, node, updates[i]); err != nil {
					return nil, err
				}
			}
		}

		next, err := r.nextNodes(current, state)
		if err != nil {
			return nil, err
		}

		if config.OnStep != nil {
			if err := config.OnStep(ctx, current, state, next); err != nil {
				return nil, err
			}
		}
		current = next
	}

	return &Outcome[S]{Kind: OutcomeCompleted, State: state}, nil
}

func (r *Runnable[S]) merge(state, update S) (S, error) {
	if r.graph.schema == nil {
		return update, nil
	}
	return r.graph.schema.Update(state, update)
}

// executeStep runs the nodes of one step and waits for all of them.
// A failure takes precedence over an interrupt in the same step.
func (r *Runnable[S]) executeStep(ctx context.Context, nodes []string, state S) ([]S, error) {
	for _, name := range nodes {
		if _, ok := r.graph.nodes[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
		}
	}

	settled := FanOutSettled(ctx, nodes, func(ctx context.Context, name string) (S, error) {
		return r.executeNode(ctx, r.graph.nodes[name], state)
	})

	updates := make([]S, len(nodes))
	var interrupt error
	for i, res := range settled {
		if res.Err != nil {
			var ni *NodeInterrupt
			if errors.As(res.Err, &ni) {
				if interrupt == nil {
					interrupt = res.Err
				}
				continue
			}
			return nil, fmt.Errorf("error in node %s: %w", nodes[i], res.Err)
		}
		updates[i] = res.Value
	}
	if interrupt != nil {
		return nil, interrupt
	}
	return updates, nil
}

func (r *Runnable[S]) executeNode(ctx context.Context, node Node[S], state S) (update S, err error) {
	r.notify(ctx, NodeEventStart, node.Name, 0, nil)
	start := time.Now()

	update, err = node.Function(ctx, state)
	elapsed := time.Since(start)

	var ni *NodeInterrupt
	switch {
	case errors.As(err, &ni):
		ni.Node = node.Name
		r.notify(ctx, NodeEventInterrupt, node.Name, elapsed, nil)
	case err != nil:
		r.notify(ctx, NodeEventError, node.Name, elapsed, err)
	default:
		r.notify(ctx, NodeEventComplete, node.Name, elapsed, nil)
	}
	return update, err
}

func (r *Runnable[S]) notify(ctx context.Context, event NodeEvent, node string, d time.Duration, err error) {
	for _, l := range r.listeners {
		l.OnNodeEvent(ctx, r.graph.name, event, node, d, err)
	}
}

func (r *Runnable[S]) nextNodes(current []string, state S) ([]string, error) {
	var next []string
	seen := make(map[string]bool)
	for _, node := range current {
		succ, err := r.graph.successors(node, state)
		if err != nil {
			return nil, err
		}
		for _, s := range succ {
			if !seen[s] {
				seen[s] = true
				next = append(next, s)
			}
		}
	}
	return next, nil
}
