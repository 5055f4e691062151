package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/fabflow/fab"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/metrics"
	"github.com/smallnest/fabflow/rag"
	"github.com/smallnest/fabflow/router"
	"github.com/smallnest/fabflow/store/memory"
	"github.com/smallnest/fabflow/tool"
)

// stubModel answers the workflow prompts, forced tool calls and synthesis.
type stubModel struct{}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	if opts.ToolChoice != nil {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   "call-1",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      "classify",
					Arguments: `{"classifications":[{"source":"slack","query":"배포 절차"}]}`,
				},
			}},
		}}}, nil
	}

	system := messages[0].Parts[0].(llms.TextContent).Text
	answer := "ok"
	switch system {
	case fab.ChatSystemPrompt:
		answer = "안녕하세요!"
	case fab.HistorySystemPrompt:
		answer = "이력 정상"
	case fab.RouterSystemPrompt:
		answer = `{"process": "photo", "reason": "패턴 확인"}`
	case fab.SupervisorSystemPrompt:
		answer = "최종 보고: 이상 없음"
	}
	if strings.HasPrefix(system, rag.SystemPrompt) {
		answer = "**NCS** 답변"
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type testServer struct {
	*httptest.Server
	dispatched []string
	mu         sync.Mutex
	metrics    *metrics.Metrics
}

func (ts *testServer) calls() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.dispatched...)
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	ts := &testServer{metrics: metrics.New()}

	handlers := make(map[fab.Choice]fab.Handler)
	for _, c := range fab.Choices {
		handlers[c] = fab.HandlerFunc(func(ctx context.Context, request string) (string, error) {
			ts.mu.Lock()
			defer ts.mu.Unlock()
			ts.dispatched = append(ts.dispatched, request)
			return string(c) + " 검사 완료", nil
		})
	}
	dispatcher, err := fab.NewDispatcher(handlers)
	require.NoError(t, err)

	model := &stubModel{}
	svc, err := fab.NewService(model, memory.NewMemoryCheckpointStore(),
		fab.WithLogger(&log.NoOpLogger{}),
		fab.WithDispatcher(dispatcher),
		fab.WithHistoryTool(tool.NewProcessHistory(tool.WithHistorySeed(7))),
		fab.WithListener(ts.metrics),
		fab.WithVerdictObserver(ts.metrics),
	)
	require.NoError(t, err)

	base := []Option{WithLogger(&log.NoOpLogger{}), WithMetrics(ts.metrics)}
	ts.Server = httptest.NewServer(New(svc, append(base, opts...)...).Handler())
	t.Cleanup(ts.Close)
	return ts
}

type sseEvent struct {
	Event string
	Data  string
}

func (e sseEvent) decode(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.Data), &m))
	return m
}

func (ts *testServer) stream(t *testing.T, threadID, body string) []sseEvent {
	t.Helper()
	resp, err := http.Post(ts.URL+"/threads/"+threadID+"/runs/stream", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func (ts *testServer) getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func (ts *testServer) postJSON(t *testing.T, path, body string, v any) int {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func nodesOf(events []sseEvent) []string {
	var out []string
	for _, e := range events {
		if e.Event != "updates" {
			out = append(out, e.Event)
			continue
		}
		var m map[string]json.RawMessage
		if json.Unmarshal([]byte(e.Data), &m) != nil {
			continue
		}
		for k := range m {
			out = append(out, k)
		}
	}
	return out
}

func TestServer_Basics(t *testing.T) {
	ts := newTestServer(t)

	var ok map[string]string
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/ok", &ok))
	assert.Equal(t, "ok", ok["status"])

	var assistants []map[string]string
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/assistants/search", "{}", &assistants))
	assert.Equal(t, []map[string]string{{"assistant_id": "agent", "graph_id": "agent", "name": "Semiconductor Agent"}}, assistants)

	var thread map[string]string
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/threads", "{}", &thread))
	_, err := uuid.Parse(thread["thread_id"])
	assert.NoError(t, err)
}

func TestServer_ReviewFlow(t *testing.T) {
	ts := newTestServer(t)
	var thread map[string]string
	ts.postJSON(t, "/threads", "", &thread)
	id := thread["thread_id"]

	events := ts.stream(t, id, `{"assistant_id":"agent","input":{"user_request":"LOT12 photo 검사해줘"},"stream_mode":["updates"]}`)
	require.Equal(t, []string{"classify", "history", "propose", InterruptKey, "end"}, nodesOf(events))

	var interrupt struct {
		Interrupt []fab.ReviewRequest `json:"__interrupt__"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[3].Data), &interrupt))
	require.Len(t, interrupt.Interrupt, 1)
	assert.Equal(t, fab.ReviewAction, interrupt.Interrupt[0].Action)
	assert.Equal(t, fab.ReviewArgs{Request: "LOT12 photo 검사해줘", Process: fab.ChoicePhoto, Reason: "패턴 확인"}, interrupt.Interrupt[0].Args)

	var state struct {
		Values map[string]any `json:"values"`
		Next   []string       `json:"next"`
	}
	ts.getJSON(t, "/threads/"+id+"/state", &state)
	assert.Equal(t, []string{"review"}, state.Next)
	assert.Equal(t, "12", state.Values["lot_id"])

	events = ts.stream(t, id, `{"command":{"resume":{"type":"approve"}}}`)
	require.Equal(t, []string{"review", "dispatch", "summarize", "end"}, nodesOf(events))
	assert.Equal(t, []string{"LOT12 photo 검사해줘 (선택된 공정: photo)"}, ts.calls())

	summary := events[2].decode(t)["summarize"].(map[string]any)
	assert.Equal(t, "최종 보고: 이상 없음", summary["final_answer"])

	ts.getJSON(t, "/threads/"+id+"/state", &state)
	assert.Empty(t, state.Next)
	assert.Equal(t, "최종 보고: 이상 없음", state.Values["final_answer"])

	var history []map[string]any
	ts.getJSON(t, "/threads/"+id+"/history", &history)
	assert.NotEmpty(t, history)

	// the review was answered already
	events = ts.stream(t, id, `{"command":{"resume":true}}`)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Event)
	assert.Equal(t, "session_not_found", events[0].decode(t)["type"])
}

func TestServer_ResumeVariants(t *testing.T) {
	tests := []struct {
		name     string
		resume   string
		dispatch []string
		answer   string
	}{
		{"reject with false", `false`, nil, "요청이 거부되었습니다: 사용자가 요청을 거부했습니다."},
		{"reject with message", `{"type":"reject","message":"라인 정지"}`, nil, "요청이 거부되었습니다: 라인 정지"},
		{"edit in a list", `[{"type":"edit","args":{"process":"etch","reason":"식각 의심"}}]`, []string{"LOT7 photo 검사 (선택된 공정: etch)"}, "최종 보고: 이상 없음"},
		{"approve string", `"approve"`, []string{"LOT7 photo 검사 (선택된 공정: photo)"}, "최종 보고: 이상 없음"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.stream(t, "t1", `{"input":"LOT7 photo 검사"}`)

			events := ts.stream(t, "t1", `{"command":{"resume":`+tt.resume+`}}`)
			require.Equal(t, "end", events[len(events)-1].Event, events)
			assert.Equal(t, tt.dispatch, ts.calls())

			var state struct {
				Values map[string]any `json:"values"`
			}
			ts.getJSON(t, "/threads/t1/state", &state)
			assert.Equal(t, tt.answer, state.Values["final_answer"])
		})
	}
}

func TestServer_StreamErrors(t *testing.T) {
	ts := newTestServer(t)

	t.Run("no input", func(t *testing.T) {
		for _, body := range []string{`{}`, `{"input":{}}`, `{"input":""}`, `{"command":{"resume":null}}`} {
			events := ts.stream(t, "empty", body)
			require.Len(t, events, 1, body)
			assert.Equal(t, "error", events[0].Event)
			assert.Equal(t, "No input or command provided", events[0].decode(t)["error"])
		}
		var state struct {
			Values map[string]any `json:"values"`
			Next   []string       `json:"next"`
		}
		ts.getJSON(t, "/threads/empty/state", &state)
		assert.Empty(t, state.Values)
		assert.Equal(t, []string{}, state.Next)
	})

	t.Run("unknown session", func(t *testing.T) {
		events := ts.stream(t, "ghost", `{"command":{"resume":{"type":"approve"}}}`)
		require.Len(t, events, 1)
		payload := events[0].decode(t)
		assert.Equal(t, "session_not_found", payload["type"])
		assert.Contains(t, payload["error"], "ghost")
	})

	t.Run("bad verdict", func(t *testing.T) {
		ts.stream(t, "bad", `{"input":"LOT1 etch 검사"}`)
		events := ts.stream(t, "bad", `{"command":{"resume":{"type":"maybe"}}}`)
		require.Len(t, events, 1)
		payload := events[0].decode(t)
		assert.Equal(t, "error", events[0].Event)
		assert.NotContains(t, payload, "type")
	})

	t.Run("malformed body", func(t *testing.T) {
		var body map[string]string
		assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/threads/x/runs/stream", `{"input":`, &body))
		assert.Contains(t, body["error"], "invalid request body")
	})
}

func TestServer_StreamReadsBodyBeforeFlushing(t *testing.T) {
	ts := newTestServer(t)
	for _, body := range []string{
		`{"input":{"user_request":"LOT12 photo 검사해줘"}}`,
		`{"input":"hello there","config":{"pad":"` + strings.Repeat("x", 64*1024) + `"}}`,
	} {
		events := ts.stream(t, uuid.NewString(), body)
		require.NotEmpty(t, events)
		for _, e := range events {
			assert.NotEqual(t, "error", e.Event, e.Data)
		}
		assert.Equal(t, "end", events[len(events)-1].Event)
	}
}

func TestServer_GeneralChatStream(t *testing.T) {
	ts := newTestServer(t)
	events := ts.stream(t, "chat", `{"input":{"messages":[{"role":"user","content":"안녕"}]}}`)
	assert.Equal(t, []string{"classify", "chat", "end"}, nodesOf(events))
	assert.Equal(t, "안녕하세요!", events[1].decode(t)["chat"].(map[string]any)["final_answer"])
}

func TestServer_CORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		ts := newTestServer(t)
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/threads", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("restricted", func(t *testing.T) {
		ts := newTestServer(t, WithCORSOrigins([]string{"https://fab.example"}))
		for origin, want := range map[string]string{"https://fab.example": "https://fab.example", "https://evil.example": ""} {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/ok", nil)
			req.Header.Set("Origin", origin)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, want, resp.Header.Get("Access-Control-Allow-Origin"), origin)
		}
	})
}

func seededChatbot(t *testing.T) *rag.Chatbot {
	t.Helper()
	emb := rag.NewMockEmbedder(8)
	store := rag.NewInMemoryVectorStore()
	vec, err := emb.EmbedQuery(context.Background(), "단위 테스트")
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(), []rag.Document{{
		ID:        "1",
		Content:   "단위 테스트",
		Metadata:  map[string]any{rag.MetaMainCategory: "정보기술관리", rag.MetaSubCategory: "IT테스트", rag.MetaSource: "t.pdf", rag.MetaPage: 1},
		Embedding: vec,
	}}))
	return rag.NewChatbot(&stubModel{}, emb, store, rag.WithChatbotLogger(&log.NoOpLogger{}))
}

func TestServer_Chat(t *testing.T) {
	ts := newTestServer(t, WithChatbot(seededChatbot(t)))

	var answer rag.Answer
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/chat", `{"query":"단위 테스트","main_category":"정보기술관리"}`, &answer))
	assert.Equal(t, "**NCS** 답변", answer.Answer)
	assert.Contains(t, answer.AnswerHTML, "<strong>NCS</strong>")
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "t.pdf", answer.Sources[0].Source)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/chat", `{"query":""}`, &errBody))
	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/chat", `not json`, &errBody))
	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/api/chat", `{"query":"q","main_category":"요리"}`, &errBody))
	assert.Contains(t, errBody["error"], "unknown category")

	var categories map[string][]string
	ts.getJSON(t, "/api/categories", &categories)
	assert.Equal(t, rag.Categories, categories)

	var health map[string]any
	ts.getJSON(t, "/api/health", &health)
	assert.Equal(t, map[string]any{"status": "ok", "documents": 1.0}, health)
}

func TestServer_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, ts.postJSON(t, "/api/chat", `{"query":"q"}`, nil))
	assert.Equal(t, http.StatusServiceUnavailable, ts.postJSON(t, "/router/query", `{"query":"q"}`, nil))

	var health map[string]any
	ts.getJSON(t, "/api/health", &health)
	assert.Equal(t, 0.0, health["documents"])
}

type cannedAgent string

func (a cannedAgent) Run(ctx context.Context, query string) (string, error) {
	return string(a) + ": " + query, nil
}

func TestServer_RouterQuery(t *testing.T) {
	r, err := router.New(&stubModel{},
		router.WithLogger(&log.NoOpLogger{}),
		router.WithAgent(router.SourceSlack, cannedAgent("slack")),
	)
	require.NoError(t, err)
	ts := newTestServer(t, WithRouter(r))

	var answer router.Answer
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/router/query", `{"query":"배포 어떻게 해?"}`, &answer))
	assert.Equal(t, []router.Classification{{Source: router.SourceSlack, Query: "배포 절차"}}, answer.Classifications)
	assert.Equal(t, "slack: 배포 절차", answer.Answer)

	assert.Equal(t, http.StatusBadRequest, ts.postJSON(t, "/router/query", `{}`, nil))
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.stream(t, "m", `{"input":"LOT3 deposition 검사"}`)
	ts.stream(t, "m", `{"command":{"resume":{"type":"reject"}}}`)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `fabflow_interrupts_total{graph="fab_inspection",node="review"} 1`)
	assert.Contains(t, text, `fabflow_review_verdicts_total{verdict="reject"} 1`)
	assert.Contains(t, text, `fabflow_http_requests_total{code="200",route="/threads/{threadID}/runs/stream"} 2`)
}

func TestInputText(t *testing.T) {
	tests := map[string]string{
		`"LOT1 검사"`:                                   "LOT1 검사",
		`{"input_text":" LOT2 "}`:                     "LOT2",
		`{"user_request":"LOT3"}`:                     "LOT3",
		`{"messages":[{"content":"a"},{"content":"b"}]}`: "b",
		`{}`:    "",
		`42`:    "",
		``:      "",
		`[1,2]`: "",
	}
	for raw, want := range tests {
		assert.Equal(t, want, inputText(json.RawMessage(raw)), raw)
	}
}

func TestSafeJSON(t *testing.T) {
	assert.Equal(t, `{"a":"<b>"}`, safeJSON(map[string]string{"a": "<b>"}))
	assert.Equal(t, `"line1\nline2"`, safeJSON("line1\nline2"))

	ch := make(chan int)
	out := safeJSON(map[string]any{"ch": ch})
	assert.True(t, strings.HasPrefix(out, `"map[ch:0x`), out)
}

func TestServer_StartAndShutdown(t *testing.T) {
	svc, err := fab.NewService(&stubModel{}, memory.NewMemoryCheckpointStore(), fab.WithLogger(&log.NoOpLogger{}))
	require.NoError(t, err)
	s := New(svc, WithAddr("127.0.0.1:0"), WithLogger(&log.NoOpLogger{}), WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
