package fab

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/store/memory"
)

// scriptedModel answers by system prompt and counts calls per prompt.
type scriptedModel struct {
	mu      sync.Mutex
	answers map[string]string
	queued  map[string][]*llms.ContentChoice
	errs    map[string]error
	calls   map[string]int
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{
		answers: map[string]string{
			ChatSystemPrompt:       "안녕하세요! 무엇을 도와드릴까요?",
			HistorySystemPrompt:    "LOT 12: 3번째 Etch 스텝에서 ABNORMAL 발생.",
			RouterSystemPrompt:     `{"process": "photo", "reason": "패턴 검사 요청"}`,
			SupervisorSystemPrompt: "LOT 12 포토 검사 결과 정렬 오차 2nm로 양호합니다.",
		},
		queued: make(map[string][]*llms.ContentChoice),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var system string
	if len(messages) > 0 && messages[0].Role == llms.ChatMessageTypeSystem {
		if tc, ok := messages[0].Parts[0].(llms.TextContent); ok {
			system = tc.Text
		}
	}
	m.calls[system]++

	if err := m.errs[system]; err != nil {
		return nil, err
	}
	if q := m.queued[system]; len(q) > 0 {
		m.queued[system] = q[1:]
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{q[0]}}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answers[system]}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) count(system string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[system]
}

func (m *scriptedModel) fail(system string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[system] = err
}

type fixedHistory struct {
	calls int
}

func (h *fixedHistory) Name() string        { return "generate_process_history" }
func (h *fixedHistory) Description() string { return "fixed history" }
func (h *fixedHistory) Call(ctx context.Context, input string) (string, error) {
	h.calls++
	return "LOT " + input + " 공정 이력:\n- 2026-01-01 10:00: Etch (Loss: 35.00%) [ABNORMAL]", nil
}

type dispatchCall struct {
	Choice  Choice
	Request string
}

type recordingHandlers struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (r *recordingHandlers) dispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	handlers := make(map[Choice]Handler)
	for _, c := range Choices {
		handlers[c] = HandlerFunc(func(ctx context.Context, request string) (string, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.calls = append(r.calls, dispatchCall{Choice: c, Request: request})
			if r.err != nil {
				return "", r.err
			}
			return string(c) + " 검사 완료: " + request, nil
		})
	}
	d, err := NewDispatcher(handlers)
	require.NoError(t, err)
	return d
}

func (r *recordingHandlers) recorded() []dispatchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatchCall(nil), r.calls...)
}

type testEnv struct {
	svc      *Service
	model    *scriptedModel
	handlers *recordingHandlers
	history  *fixedHistory
	store    *memory.MemoryCheckpointStore
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		model:    newScriptedModel(),
		handlers: &recordingHandlers{},
		history:  &fixedHistory{},
		store:    memory.NewMemoryCheckpointStore(),
	}
	base := []Option{
		WithLogger(&log.NoOpLogger{}),
		WithDispatcher(env.handlers.dispatcher(t)),
		WithHistoryTool(env.history),
	}
	svc, err := NewService(env.model, env.store, append(base, opts...)...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

var errModelDown = errors.New("model down")
