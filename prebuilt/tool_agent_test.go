package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// MockLLM returns queued responses and records what it was sent.
type MockLLM struct {
	mu        sync.Mutex
	responses []llms.ContentResponse
	err       error
	callCount int
	seen      [][]llms.MessageContent
	options   []llms.CallOptions
}

func (m *MockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.seen = append(m.seen, messages)
	m.options = append(m.options, opts)
	if m.err != nil {
		return nil, m.err
	}
	if m.callCount >= len(m.responses) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "No more responses"}}}, nil
	}
	resp := m.responses[m.callCount]
	m.callCount++
	return &resp, nil
}

func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func text(s string) llms.ContentResponse {
	return llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s}}}
}

func toolCall(id, name, args string) llms.ContentResponse {
	return llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           id,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

type echoTool struct {
	calls []string
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echo the input" }
func (t *echoTool) Call(ctx context.Context, input string) (string, error) {
	t.calls = append(t.calls, input)
	if input == "fail" {
		return "", errors.New("echo failed")
	}
	return "echo: " + input, nil
}

func TestToolAgent_AnswersWithoutTools(t *testing.T) {
	model := &MockLLM{responses: []llms.ContentResponse{text("hello")}}
	agent, err := NewToolAgent(model, "be nice", nil)
	require.NoError(t, err)

	out, err := agent.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	require.Len(t, model.seen, 1)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.seen[0][0].Role)
	assert.Empty(t, model.options[0].Tools)
}

func TestToolAgent_ToolLoop(t *testing.T) {
	echo := &echoTool{}
	model := &MockLLM{responses: []llms.ContentResponse{
		toolCall("c1", "echo", `{"input":"LOT12"}`),
		text("done: echo LOT12"),
	}}
	agent, err := NewToolAgent(model, "", []tools.Tool{echo}, WithAgentName("photo"))
	require.NoError(t, err)
	assert.Equal(t, "photo", agent.Name())

	out, err := agent.Run(context.Background(), "inspect LOT12")
	require.NoError(t, err)
	assert.Equal(t, "done: echo LOT12", out)
	assert.Equal(t, []string{"LOT12"}, echo.calls)

	require.Len(t, model.seen, 2)
	second := model.seen[1]
	last := second[len(second)-1]
	assert.Equal(t, llms.ChatMessageTypeTool, last.Role)
	resp := last.Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "c1", resp.ToolCallID)
	assert.Equal(t, "echo: LOT12", resp.Content)
	require.Len(t, model.options[0].Tools, 1)
	assert.Equal(t, "echo", model.options[0].Tools[0].Function.Name)
}

func TestToolAgent_ToolErrorsAreFedBack(t *testing.T) {
	echo := &echoTool{}
	model := &MockLLM{responses: []llms.ContentResponse{
		toolCall("c1", "echo", `{"input":"fail"}`),
		toolCall("c2", "missing", `raw`),
		text("gave up"),
	}}
	agent, err := NewToolAgent(model, "", []tools.Tool{echo})
	require.NoError(t, err)

	out, err := agent.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "gave up", out)

	msgs := model.seen[2]
	var contents []string
	for _, m := range msgs {
		if m.Role == llms.ChatMessageTypeTool {
			contents = append(contents, m.Parts[0].(llms.ToolCallResponse).Content)
		}
	}
	assert.Equal(t, []string{"Error: echo failed", "Error: tool not found: missing"}, contents)
}

func TestToolAgent_MaxIterations(t *testing.T) {
	echo := &echoTool{}
	var responses []llms.ContentResponse
	for i := range 5 {
		responses = append(responses, toolCall(fmt.Sprint(i), "echo", `{"input":"again"}`))
	}
	model := &MockLLM{responses: responses}
	agent, err := NewToolAgent(model, "", []tools.Tool{echo}, WithMaxIterations(2))
	require.NoError(t, err)

	out, err := agent.Run(context.Background(), "loop")
	require.NoError(t, err)
	assert.Equal(t, MaxIterationsMessage, out)
	assert.Equal(t, 2, model.callCount)
}

func TestToolAgent_ModelError(t *testing.T) {
	boom := errors.New("rate limited")
	agent, err := NewToolAgent(&MockLLM{err: boom}, "", nil)
	require.NoError(t, err)

	_, err = agent.Run(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestCallTool(t *testing.T) {
	model := &MockLLM{responses: []llms.ContentResponse{toolCall("1", "classify", `{"a":1}`)}}
	args, err := CallTool(context.Background(), model, nil, llms.FunctionDefinition{Name: "classify"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, args)

	choice, ok := model.options[0].ToolChoice.(llms.ToolChoice)
	require.True(t, ok)
	assert.Equal(t, "classify", choice.Function.Name)

	_, err = CallTool(context.Background(), &MockLLM{responses: []llms.ContentResponse{text("nope")}}, nil, llms.FunctionDefinition{Name: "classify"})
	assert.ErrorIs(t, err, ErrNoToolCall)
}

func TestComplete(t *testing.T) {
	model := &MockLLM{responses: []llms.ContentResponse{text("answer")}}
	out, err := Complete(context.Background(), model, "sys", "question")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	require.Len(t, model.seen[0], 2)

	_, err = Complete(context.Background(), &MockLLM{responses: []llms.ContentResponse{{}}}, "sys", "q")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestLastText(t *testing.T) {
	assert.Equal(t, "", LastText(nil))
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeAI, "first"),
		llms.TextParts(llms.ChatMessageTypeHuman, "user"),
	}
	assert.Equal(t, "first", LastText(msgs))
}
