package prebuilt

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

// ErrNoToolCall is returned when a model ignores a forced tool choice.
var ErrNoToolCall = errors.New("model did not call the required tool")

// CallTool forces model to answer through fn and returns the raw JSON
// arguments of the call.
func CallTool(ctx context.Context, model llms.Model, messages []llms.MessageContent, fn llms.FunctionDefinition) (string, error) {
	toolChoice := llms.ToolChoice{
		Type: "function",
		Function: &llms.FunctionReference{
			Name: fn.Name,
		},
	}
	resp, err := model.GenerateContent(ctx, messages,
		llms.WithTools([]llms.Tool{{Type: "function", Function: &fn}}),
		llms.WithToolChoice(toolChoice),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	for _, tc := range resp.Choices[0].ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == fn.Name {
			return tc.FunctionCall.Arguments, nil
		}
	}
	return "", ErrNoToolCall
}

// Complete makes a single model call with a system prompt and returns the text.
func Complete(ctx context.Context, model llms.Model, systemPrompt, prompt string, opts ...llms.CallOption) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
