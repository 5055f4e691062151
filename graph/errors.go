package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrUnroutable is returned when a routing function picks a node outside its declared targets.
	ErrUnroutable = errors.New("route outside declared targets")

	// ErrStepLimit is returned when a run exceeds Config.MaxSteps.
	ErrStepLimit = errors.New("step limit reached")

	// ErrThreadNotFound is returned when a thread has no checkpoint.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrNotSuspended is returned when resuming a thread that is not waiting for input.
	ErrNotSuspended = errors.New("thread is not suspended")
)

// NodeInterrupt is returned when a node requests an interrupt (e.g. waiting for human input).
type NodeInterrupt struct {
	// Node is the name of the node that triggered the interrupt
	Node string
	// Value is the data/query provided by the interrupt
	Value any
}

func (e *NodeInterrupt) Error() string {
	return fmt.Sprintf("interrupt at node %s: %v", e.Node, e.Value)
}
