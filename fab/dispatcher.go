package fab

import (
	"context"
	"fmt"

	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/prebuilt"
	"github.com/smallnest/fabflow/tool"
	"github.com/tmc/langchaingo/llms"
)

// Handler performs the inspection of one process.
type Handler interface {
	Handle(ctx context.Context, request string) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, request string) (string, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, request string) (string, error) {
	return f(ctx, request)
}

// Dispatcher selects the handler of a choice. Unknown choices use the
// DefaultChoice handler.
type Dispatcher struct {
	handlers map[Choice]Handler
}

// NewDispatcher creates a dispatcher. handlers must contain DefaultChoice.
func NewDispatcher(handlers map[Choice]Handler) (*Dispatcher, error) {
	if _, ok := handlers[DefaultChoice]; !ok {
		return nil, fmt.Errorf("dispatcher needs a %s handler", DefaultChoice)
	}
	return &Dispatcher{handlers: handlers}, nil
}

// NewAgentDispatcher creates a dispatcher whose handlers are tool-calling agents
// over the inspection tools of each process.
func NewAgentDispatcher(model llms.Model, logger log.Logger, maxIterations int) (*Dispatcher, error) {
	handlers := make(map[Choice]Handler, len(Choices))
	for _, c := range Choices {
		agent, err := prebuilt.NewToolAgent(model, processPrompts[c], tool.InspectionTools(string(c)),
			prebuilt.WithAgentName(string(c)+"_agent"),
			prebuilt.WithAgentLogger(logger),
			prebuilt.WithMaxIterations(maxIterations),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s agent: %w", c, err)
		}
		handlers[c] = HandlerFunc(agent.Run)
	}
	return NewDispatcher(handlers)
}

// Dispatch runs the handler of choice. Handler errors are returned as is.
func (d *Dispatcher) Dispatch(ctx context.Context, choice Choice, request string) (string, error) {
	h, ok := d.handlers[choice]
	if !ok {
		h = d.handlers[DefaultChoice]
	}
	return h.Handle(ctx, request)
}
