// Package graph is a small typed workflow engine.
//
// A StateGraph[S] holds named nodes that take the current state and return a
// partial update, a StateSchema that merges updates, static edges, and
// conditional edges whose routing function must pick one of a declared set of
// targets. Compile validates the wiring and returns a Runnable.
//
// # Suspension
//
// A node suspends the run by calling Interrupt with a payload. The first time,
// Interrupt returns a *NodeInterrupt error and Run returns an Outcome with
// Kind OutcomeSuspended, the payload, and the node to resume at. When the run is
// resumed with a value, the node executes again and Interrupt returns that value.
//
//	verdict, err := graph.Interrupt(ctx, reviewRequest)
//	if err != nil {
//		return State{}, err
//	}
//
// CheckpointRunnable persists the state and cursor after every step to a
// store.CheckpointStore so the resume may happen in another process.
//
// # Streaming
//
// Config.OnUpdate receives each node's partial update as soon as it is merged,
// which is how the HTTP layer emits one server-sent event per node.
package graph
