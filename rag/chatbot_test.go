package rag

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/fabflow/log"
)

type recordingModel struct {
	mu     sync.Mutex
	answer string
	system []string
	human  []string
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = append(m.system, messages[0].Parts[0].(llms.TextContent).Text)
	m.human = append(m.human, messages[1].Parts[0].(llms.TextContent).Text)
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type queryCounter struct {
	filtered, unfiltered int
}

func (q *queryCounter) ObserveQuery(filtered bool) {
	if filtered {
		q.filtered++
	} else {
		q.unfiltered++
	}
}

func seededStore(t *testing.T, emb Embedder) *InMemoryVectorStore {
	t.Helper()
	docs := []Document{
		{ID: "1", Content: "테스트 케이스 설계 기법", Metadata: map[string]any{MetaMainCategory: "정보기술관리", MetaSubCategory: "IT테스트", MetaSource: "test.pdf", MetaPage: 3}},
		{ID: "2", Content: strings.Repeat("가", 400), Metadata: map[string]any{MetaMainCategory: "정보기술개발", MetaSubCategory: "SW아키텍쳐", MetaSource: "arch.pdf", MetaPage: 7}},
	}
	for i := range docs {
		vec, err := emb.EmbedQuery(context.Background(), docs[i].Content)
		require.NoError(t, err)
		docs[i].Embedding = vec
	}
	s := NewInMemoryVectorStore()
	require.NoError(t, s.Add(context.Background(), docs))
	return s
}

func TestChatbot_Ask(t *testing.T) {
	emb := NewMockEmbedder(8)
	model := &recordingModel{answer: "## 답변\n\n테스트 케이스는 **경계값 분석**으로 설계합니다. (test.pdf, 3쪽)"}
	counter := &queryCounter{}
	bot := NewChatbot(model, emb, seededStore(t, emb), WithK(2), WithQueryObserver(counter), WithChatbotLogger(&log.NoOpLogger{}))

	answer, err := bot.Ask(context.Background(), Query{Text: "테스트 케이스 설계 기법"})
	require.NoError(t, err)

	assert.Equal(t, model.answer, answer.Answer)
	assert.Contains(t, answer.AnswerHTML, "답변</h2>")
	assert.Contains(t, answer.AnswerHTML, "<strong>경계값 분석</strong>")
	assert.Nil(t, answer.Filter)

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, Source{Content: "테스트 케이스 설계 기법", MainCategory: "정보기술관리", SubCategory: "IT테스트", Source: "test.pdf", Page: 3}, answer.Sources[0])
	assert.Len(t, []rune(answer.Sources[1].Content), 300)

	require.Len(t, model.system, 1)
	assert.True(t, strings.HasPrefix(model.system[0], SystemPrompt+"\n\n테스트 케이스 설계 기법\n\n---\n\n"))
	assert.Equal(t, "테스트 케이스 설계 기법", model.human[0])
	assert.Equal(t, 1, counter.unfiltered)
}

func TestChatbot_AskFiltered(t *testing.T) {
	emb := NewMockEmbedder(8)
	model := &recordingModel{answer: "아키텍처 답변"}
	counter := &queryCounter{}
	bot := NewChatbot(model, emb, seededStore(t, emb), WithQueryObserver(counter))

	answer, err := bot.Ask(context.Background(), Query{Text: "구조", MainCategory: "정보기술개발", SubCategory: "SW아키텍쳐"})
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "arch.pdf", answer.Sources[0].Source)
	assert.Equal(t, map[string]any{
		MetaMainCategory: map[string]any{"$eq": "정보기술개발"},
		MetaSubCategory:  map[string]any{"$eq": "SW아키텍쳐"},
	}, answer.Filter)
	assert.Equal(t, 1, counter.filtered)
}

func TestChatbot_NoDocuments(t *testing.T) {
	emb := NewMockEmbedder(8)
	model := &recordingModel{answer: "unused"}
	bot := NewChatbot(model, emb, seededStore(t, emb))

	answer, err := bot.Ask(context.Background(), Query{Text: "소통", MainCategory: "직업기초능력"})
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, model.system)
}

func TestChatbot_InvalidQuery(t *testing.T) {
	emb := NewMockEmbedder(8)
	bot := NewChatbot(&recordingModel{}, emb, NewInMemoryVectorStore())

	_, err := bot.Ask(context.Background(), Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = bot.Ask(context.Background(), Query{Text: "q", MainCategory: "정보기술관리", SubCategory: "SW아키텍쳐"})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestChatbot_Documents(t *testing.T) {
	emb := NewMockEmbedder(8)
	bot := NewChatbot(&recordingModel{}, emb, seededStore(t, emb))

	n, err := bot.Documents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestValidateCategory(t *testing.T) {
	assert.NoError(t, ValidateCategory("", ""))
	assert.NoError(t, ValidateCategory("정보기술관리", ""))
	assert.NoError(t, ValidateCategory("정보기술관리", "IT품질보증"))
	assert.NoError(t, ValidateCategory("", "수리능력"))

	assert.ErrorIs(t, ValidateCategory("요리", ""), ErrUnknownCategory)
	assert.ErrorIs(t, ValidateCategory("정보기술관리", "수리능력"), ErrUnknownCategory)
	assert.ErrorIs(t, ValidateCategory("", "한식"), ErrUnknownCategory)
}

func TestRenderHTML(t *testing.T) {
	out := RenderHTML("# 제목\n\n[link](https://example.com) <script>alert(1)</script>")
	assert.Contains(t, out, "제목</h1>")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.NotContains(t, out, "<script>")
	assert.Empty(t, RenderHTML(""))
}
