package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/prebuilt"
	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyQuery is returned by Ask for a blank question.
var ErrEmptyQuery = errors.New("empty query")

// DefaultK is the number of passages retrieved per query.
const DefaultK = 4

// NoDocumentsAnswer is returned when retrieval finds nothing.
const NoDocumentsAnswer = "관련 문서를 찾을 수 없습니다."

const (
	passageSeparator = "\n\n---\n\n"
	sourcePreview    = 300
)

// SystemPrompt is the NCS answering instruction. Retrieved passages are
// appended to it.
const SystemPrompt = "너는 NCS(국가직무능력표준) 문서 전문가야. " +
	"다음 참고 문서를 바탕으로 정확하고 친절하게 답변해줘. " +
	"답변에 관련 내용의 출처(파일명, 페이지)를 언급해줘."

// Query is a chatbot question, optionally narrowed to a category.
type Query struct {
	Text         string `json:"query" validate:"required"`
	MainCategory string `json:"main_category,omitempty"`
	SubCategory  string `json:"sub_category,omitempty"`
}

// Source is a retrieved passage as shown to the user.
type Source struct {
	Content      string `json:"content"`
	MainCategory string `json:"main_category"`
	SubCategory  string `json:"sub_category"`
	Source       string `json:"source"`
	Page         int    `json:"page"`
}

// Answer is the chatbot's reply.
type Answer struct {
	Answer     string         `json:"answer"`
	AnswerHTML string         `json:"answer_html"`
	Sources    []Source       `json:"sources"`
	Filter     map[string]any `json:"filter"`
}

// QueryObserver is told about every answered query.
type QueryObserver interface {
	ObserveQuery(filtered bool)
}

// Chatbot answers questions from a VectorStore.
type Chatbot struct {
	model    llms.Model
	embedder Embedder
	store    VectorStore
	k        int
	observer QueryObserver
	logger   log.Logger
}

// ChatbotOption configures a Chatbot.
type ChatbotOption func(*Chatbot)

// WithK sets the number of passages retrieved per query.
func WithK(k int) ChatbotOption {
	return func(c *Chatbot) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithQueryObserver sets the query observer.
func WithQueryObserver(o QueryObserver) ChatbotOption {
	return func(c *Chatbot) { c.observer = o }
}

// WithChatbotLogger sets the logger.
func WithChatbotLogger(l log.Logger) ChatbotOption {
	return func(c *Chatbot) { c.logger = l }
}

// NewChatbot builds a Chatbot.
func NewChatbot(model llms.Model, embedder Embedder, store VectorStore, opts ...ChatbotOption) *Chatbot {
	c := &Chatbot{
		model:    model,
		embedder: embedder,
		store:    store,
		k:        DefaultK,
		logger:   log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Documents returns the number of stored chunks.
func (c *Chatbot) Documents(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

// Ask answers q from the closest passages.
func (c *Chatbot) Ask(ctx context.Context, q Query) (*Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if err := ValidateCategory(q.MainCategory, q.SubCategory); err != nil {
		return nil, err
	}

	filter := map[string]any{}
	if q.MainCategory != "" {
		filter[MetaMainCategory] = q.MainCategory
	}
	if q.SubCategory != "" {
		filter[MetaSubCategory] = q.SubCategory
	}
	if c.observer != nil {
		c.observer.ObserveQuery(len(filter) > 0)
	}

	vec, err := c.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := c.store.Search(ctx, vec, c.k, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	answer := &Answer{Sources: make([]Source, 0, len(results)), Filter: wireFilter(filter)}
	if len(results) == 0 {
		answer.Answer = NoDocumentsAnswer
		answer.AnswerHTML = RenderHTML(answer.Answer)
		return answer, nil
	}

	passages := make([]string, 0, len(results))
	for _, r := range results {
		passages = append(passages, r.Document.Content)
		answer.Sources = append(answer.Sources, toSource(r.Document))
	}

	system := SystemPrompt + "\n\n" + strings.Join(passages, passageSeparator)
	text, err := prebuilt.Complete(ctx, c.model, system, q.Text)
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	c.logger.Debug("answered %q from %d passages", q.Text, len(results))

	answer.Answer = text
	answer.AnswerHTML = RenderHTML(text)
	return answer, nil
}

// wireFilter renders filter the way clients expect it: {"key": {"$eq": v}},
// or nil when empty.
func wireFilter(filter map[string]any) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = map[string]any{"$eq": v}
	}
	return out
}

func toSource(d Document) Source {
	content := []rune(d.Content)
	if len(content) > sourcePreview {
		content = content[:sourcePreview]
	}
	str := func(key string) string {
		s, _ := d.Metadata[key].(string)
		return s
	}
	return Source{
		Content:      string(content),
		MainCategory: str(MetaMainCategory),
		SubCategory:  str(MetaSubCategory),
		Source:       str(MetaSource),
		Page:         pageOf(d.Metadata),
	}
}
