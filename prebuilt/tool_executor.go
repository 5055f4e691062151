package prebuilt

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools"
)

// ToolInvocation is a single tool call requested by a model.
type ToolInvocation struct {
	Tool      string
	ToolInput string
}

// ToolExecutor dispatches tool invocations by tool name.
type ToolExecutor struct {
	tools map[string]tools.Tool
}

// NewToolExecutor creates an executor over inputTools.
func NewToolExecutor(inputTools []tools.Tool) *ToolExecutor {
	m := make(map[string]tools.Tool, len(inputTools))
	for _, t := range inputTools {
		m[t.Name()] = t
	}
	return &ToolExecutor{tools: m}
}

// Execute runs the named tool.
func (e *ToolExecutor) Execute(ctx context.Context, inv ToolInvocation) (string, error) {
	t, ok := e.tools[inv.Tool]
	if !ok {
		return "", fmt.Errorf("tool not found: %s", inv.Tool)
	}
	return t.Call(ctx, inv.ToolInput)
}
