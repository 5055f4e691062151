package prebuilt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/smallnest/fabflow/graph"
	"github.com/smallnest/fabflow/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// DefaultMaxIterations bounds the agent/tools loop when no limit is given.
const DefaultMaxIterations = 10

// MaxIterationsMessage is the final answer when the loop limit is hit.
const MaxIterationsMessage = "Maximum iterations reached. Please try a simpler query."

// ErrEmptyResponse is returned when a model answers with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// AgentState is the state of the tool-calling loop.
type AgentState struct {
	Messages   []llms.MessageContent
	Iterations int
}

type agentSchema struct{}

func (agentSchema) Init() AgentState { return AgentState{} }

func (agentSchema) Update(cur, upd AgentState) (AgentState, error) {
	cur.Messages = slices.Concat(cur.Messages, upd.Messages)
	if upd.Iterations > cur.Iterations {
		cur.Iterations = upd.Iterations
	}
	return cur, nil
}

// ToolAgent is a ReAct style loop: the model either answers or calls tools,
// tool results are fed back, and the loop ends when the model stops calling tools.
type ToolAgent struct {
	name          string
	model         llms.Model
	systemPrompt  string
	tools         []tools.Tool
	maxIterations int
	logger        log.Logger
	runnable      *graph.Runnable[AgentState]
}

// AgentOption configures a ToolAgent.
type AgentOption func(*ToolAgent)

// WithMaxIterations sets the maximum number of model calls.
func WithMaxIterations(n int) AgentOption {
	return func(a *ToolAgent) { a.maxIterations = n }
}

// WithAgentName names the agent graph, as reported to listeners.
func WithAgentName(name string) AgentOption {
	return func(a *ToolAgent) { a.name = name }
}

// WithAgentLogger sets the logger.
func WithAgentLogger(l log.Logger) AgentOption {
	return func(a *ToolAgent) { a.logger = l }
}

// NewToolAgent creates a tool-calling agent.
func NewToolAgent(model llms.Model, systemPrompt string, inputTools []tools.Tool, opts ...AgentOption) (*ToolAgent, error) {
	a := &ToolAgent{
		name:          "tool_agent",
		model:         model,
		systemPrompt:  systemPrompt,
		tools:         inputTools,
		maxIterations: DefaultMaxIterations,
		logger:        log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxIterations <= 0 {
		a.maxIterations = DefaultMaxIterations
	}

	r, err := a.build()
	if err != nil {
		return nil, err
	}
	a.runnable = r
	return a, nil
}

// Name returns the agent name.
func (a *ToolAgent) Name() string {
	return a.name
}

// Tools returns the tools available to the agent.
func (a *ToolAgent) Tools() []tools.Tool {
	return a.tools
}

// Run sends input to the agent and returns the text of its final message.
func (a *ToolAgent) Run(ctx context.Context, input string) (string, error) {
	var msgs []llms.MessageContent
	if a.systemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, input))

	out, err := a.runnable.Run(ctx, AgentState{Messages: msgs}, &graph.Config{
		MaxSteps: 2*a.maxIterations + 2,
	})
	if err != nil {
		return "", err
	}
	return LastText(out.State.Messages), nil
}

func (a *ToolAgent) toolDefs() []llms.Tool {
	var defs []llms.Tool
	for _, t := range a.tools {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input": map[string]any{
							"type":        "string",
							"description": "The input query for the tool",
						},
					},
					"required":             []string{"input"},
					"additionalProperties": false,
				},
			},
		})
	}
	return defs
}

func (a *ToolAgent) build() (*graph.Runnable[AgentState], error) {
	executor := NewToolExecutor(a.tools)
	defs := a.toolDefs()

	workflow := graph.NewStateGraph[AgentState]()
	workflow.SetName(a.name)
	workflow.SetSchema(agentSchema{})

	workflow.AddNode("agent", "Tool-calling decision maker", func(ctx context.Context, state AgentState) (AgentState, error) {
		if state.Iterations >= a.maxIterations {
			a.logger.Warn("[%s] max iterations (%d) reached", a.name, a.maxIterations)
			return AgentState{Messages: []llms.MessageContent{
				llms.TextParts(llms.ChatMessageTypeAI, MaxIterationsMessage),
			}}, nil
		}

		var opts []llms.CallOption
		if len(defs) > 0 {
			opts = append(opts, llms.WithTools(defs))
		}
		resp, err := a.model.GenerateContent(ctx, state.Messages, opts...)
		if err != nil {
			return AgentState{}, err
		}
		if len(resp.Choices) == 0 {
			return AgentState{}, ErrEmptyResponse
		}
		choice := resp.Choices[0]

		aiMsg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			aiMsg.Parts = append(aiMsg.Parts, llms.TextPart(choice.Content))
		}
		for _, tc := range choice.ToolCalls {
			aiMsg.Parts = append(aiMsg.Parts, tc)
		}
		return AgentState{Messages: []llms.MessageContent{aiMsg}, Iterations: state.Iterations + 1}, nil
	})

	workflow.AddNode("tools", "Tool execution node", func(ctx context.Context, state AgentState) (AgentState, error) {
		last := state.Messages[len(state.Messages)-1]
		if last.Role != llms.ChatMessageTypeAI {
			return AgentState{}, fmt.Errorf("last message is not an AI message")
		}

		var toolMessages []llms.MessageContent
		for _, part := range last.Parts {
			tc, ok := part.(llms.ToolCall)
			if !ok || tc.FunctionCall == nil {
				continue
			}
			res, err := executor.Execute(ctx, ToolInvocation{
				Tool:      tc.FunctionCall.Name,
				ToolInput: toolInput(tc.FunctionCall.Arguments),
			})
			if err != nil {
				if ctx.Err() != nil {
					return AgentState{}, ctx.Err()
				}
				res = fmt.Sprintf("Error: %v", err)
			}
			a.logger.Debug("[%s] tool %s returned %d bytes", a.name, tc.FunctionCall.Name, len(res))

			toolMessages = append(toolMessages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    res,
					},
				},
			})
		}
		return AgentState{Messages: toolMessages}, nil
	})

	workflow.SetEntryPoint("agent")
	workflow.AddConditionalEdge("agent", func(state AgentState) string {
		if HasToolCalls(state.Messages[len(state.Messages)-1]) {
			return "tools"
		}
		return graph.END
	}, "tools", graph.END)
	workflow.AddEdge("tools", "agent")

	return workflow.Compile()
}

// toolInput extracts the "input" argument, or returns the raw arguments.
func toolInput(arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err == nil {
		if v, ok := args["input"].(string); ok {
			return v
		}
	}
	return arguments
}

// HasToolCalls reports whether msg requests any tool call.
func HasToolCalls(msg llms.MessageContent) bool {
	for _, part := range msg.Parts {
		if _, ok := part.(llms.ToolCall); ok {
			return true
		}
	}
	return false
}

// LastText returns the text of the last AI message.
func LastText(messages []llms.MessageContent) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llms.ChatMessageTypeAI {
			continue
		}
		var sb strings.Builder
		for _, part := range messages[i].Parts {
			if tc, ok := part.(llms.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		return sb.String()
	}
	return ""
}
