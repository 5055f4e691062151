package graph

import (
	"context"
	"time"

	"github.com/smallnest/fabflow/log"
)

// NodeEvent is the kind of node lifecycle event delivered to listeners.
type NodeEvent string

const (
	// NodeEventStart indicates a node has started execution
	NodeEventStart NodeEvent = "start"
	// NodeEventComplete indicates a node has returned an update
	NodeEventComplete NodeEvent = "complete"
	// NodeEventError indicates a node has failed
	NodeEventError NodeEvent = "error"
	// NodeEventInterrupt indicates a node suspended the run
	NodeEventInterrupt NodeEvent = "interrupt"
)

// NodeListener observes node execution. Implementations must be safe for
// concurrent use since nodes of one step run in parallel.
type NodeListener interface {
	OnNodeEvent(ctx context.Context, graphName string, event NodeEvent, node string, duration time.Duration, err error)
}

// NodeListenerFunc is a function adapter for NodeListener
type NodeListenerFunc func(ctx context.Context, graphName string, event NodeEvent, node string, duration time.Duration, err error)

// OnNodeEvent implements NodeListener
func (f NodeListenerFunc) OnNodeEvent(ctx context.Context, graphName string, event NodeEvent, node string, duration time.Duration, err error) {
	f(ctx, graphName, event, node, duration, err)
}

// LoggingListener writes node events to a log.Logger.
type LoggingListener struct {
	logger log.Logger
}

// NewLoggingListener creates a listener that logs through logger.
func NewLoggingListener(logger log.Logger) *LoggingListener {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &LoggingListener{logger: logger}
}

// OnNodeEvent implements NodeListener
func (l *LoggingListener) OnNodeEvent(_ context.Context, graphName string, event NodeEvent, node string, duration time.Duration, err error) {
	switch event {
	case NodeEventStart:
		l.logger.Debug("[%s] node %s started", graphName, node)
	case NodeEventComplete:
		l.logger.Debug("[%s] node %s completed in %v", graphName, node, duration)
	case NodeEventInterrupt:
		l.logger.Info("[%s] node %s interrupted, waiting for input", graphName, node)
	case NodeEventError:
		l.logger.Error("[%s] node %s failed after %v: %v", graphName, node, duration, err)
	}
}
