package graph

import (
	"context"
	"fmt"
	"slices"
)

const (
	// START names the virtual node before the entry point.
	START = "START"
	// END is a special constant used to represent the end node in the graph.
	END = "END"
)

// Node represents a node in the graph.
// Function returns a partial update that the graph's schema merges into the state.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// Edge represents an edge in the graph.
type Edge struct {
	From string
	To   string
}

// Router picks the next node from the state. It must return one of the targets
// declared with AddConditionalEdge; anything else fails the run with ErrUnroutable.
type Router[S any] func(state S) string

type conditionalEdge[S any] struct {
	route   Router[S]
	targets []string
}

// StateSchema defines how a node's partial update is merged into the current state.
type StateSchema[S any] interface {
	Init() S
	Update(current, update S) (S, error)
}

// StateGraph is a typed graph of nodes over state S.
//
//	g := graph.NewStateGraph[State]()
//	g.AddNode("classify", "keyword classifier", classify)
//	g.AddConditionalEdge("classify", routeClassified, "chat", "history")
//	g.SetEntryPoint("classify")
type StateGraph[S any] struct {
	name             string
	nodes            map[string]Node[S]
	order            []string
	edges            []Edge
	conditionalEdges map[string]conditionalEdge[S]
	entryPoint       string
	schema           StateSchema[S]
}

// NewStateGraph creates an empty graph.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		name:             "graph",
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]conditionalEdge[S]),
	}
}

// SetName sets the name reported to listeners.
func (g *StateGraph[S]) SetName(name string) {
	g.name = name
}

// Name returns the graph name.
func (g *StateGraph[S]) Name() string {
	return g.name
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	if _, ok := g.nodes[name]; !ok {
		g.order = append(g.order, name)
	}
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
// Several static edges from one node run their targets concurrently in the next step.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{From: from, To: to})
}

// AddConditionalEdge routes from a node through route, which must return one of targets.
func (g *StateGraph[S]) AddConditionalEdge(from string, route Router[S], targets ...string) {
	g.conditionalEdges[from] = conditionalEdge[S]{route: route, targets: targets}
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetSchema sets the state schema for the graph.
func (g *StateGraph[S]) SetSchema(schema StateSchema[S]) {
	g.schema = schema
}

// Nodes returns the nodes in insertion order.
func (g *StateGraph[S]) Nodes() []Node[S] {
	out := make([]Node[S], 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

func (g *StateGraph[S]) known(name string) bool {
	if name == END {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

// Validate checks that the entry point and every edge target exist.
func (g *StateGraph[S]) Validate() error {
	if g.entryPoint == "" {
		return ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return fmt.Errorf("%w: edge source %s", ErrNodeNotFound, e.From)
		}
		if !g.known(e.To) {
			return fmt.Errorf("%w: edge target %s", ErrNodeNotFound, e.To)
		}
	}
	for from, ce := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from)
		}
		if len(ce.targets) == 0 {
			return fmt.Errorf("conditional edge from %s declares no targets", from)
		}
		for _, to := range ce.targets {
			if !g.known(to) {
				return fmt.Errorf("%w: conditional target %s of %s", ErrNodeNotFound, to, from)
			}
		}
	}
	return nil
}

// Compile validates the graph and returns a Runnable.
func (g *StateGraph[S]) Compile() (*Runnable[S], error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Runnable[S]{graph: g}, nil
}

// successors returns the nodes following from after the state has been updated.
func (g *StateGraph[S]) successors(from string, state S) ([]string, error) {
	if ce, ok := g.conditionalEdges[from]; ok {
		next := ce.route(state)
		if !slices.Contains(ce.targets, next) {
			return nil, fmt.Errorf("%w: %s routed to %q, allowed %v", ErrUnroutable, from, next, ce.targets)
		}
		return []string{next}, nil
	}

	var next []string
	for _, e := range g.edges {
		if e.From == from {
			next = append(next, e.To)
		}
	}
	if len(next) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
	}
	return next, nil
}
