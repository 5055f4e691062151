package router

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/smallnest/fabflow/graph"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/prebuilt"
	"github.com/smallnest/fabflow/tool"
	"github.com/tmc/langchaingo/llms"
)

// Source is a knowledge base the router can consult.
type Source string

const (
	SourceGitHub Source = "github"
	SourceNotion Source = "notion"
	SourceSlack  Source = "slack"
)

// Sources lists every known source in a stable order.
var Sources = []Source{SourceGitHub, SourceNotion, SourceSlack}

// Title returns the display name of s.
func (s Source) Title() string {
	switch s {
	case SourceGitHub:
		return "Github"
	case SourceNotion:
		return "Notion"
	case SourceSlack:
		return "Slack"
	}
	return string(s)
}

// Classification is one sub-question targeted at one source.
type Classification struct {
	Source Source `json:"source"`
	Query  string `json:"query"`
}

// Result is the answer of one source agent.
type Result struct {
	Source Source `json:"source"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Answer is the outcome of Router.Ask.
type Answer struct {
	Query           string           `json:"query"`
	Classifications []Classification `json:"classifications"`
	Results         []Result         `json:"results"`
	Answer          string           `json:"answer"`
}

// NoResultsMessage is the answer when no source produced anything.
const NoResultsMessage = "No results found from any knowledge source."

const classifierPrompt = "You are a router agent. Analyze this query and determine which knowledge bases to consult. " +
	"Use the 'classify' tool to list each knowledge base with a sub-question targeted at it."

var systemPrompts = map[Source]string{
	SourceGitHub: "너는 깃허브 전문가야. 코드, API 레퍼런스, 구현 세부사항에 대해 질문하면 " +
		"리포지토리, 이슈, 풀 리퀘스트를 검색해서 대답해.",
	SourceNotion: "너는 노션 전문가야. 내부 프로세스, 정책, 팀 문서에 대해 질문하면 " +
		"노션 워크스페이스를 검색해서 대답해.",
	SourceSlack: "너는 슬랙 전문가야. 팀원들이 지식과 해결책을 공유한 " +
		"관련 스레드와 토론을 검색해서 대답해.",
}

// SystemPrompt returns the system prompt of the agent for s.
func SystemPrompt(s Source) string {
	return systemPrompts[s]
}

func synthesisPrompt(query string) string {
	return fmt.Sprintf(`Synthesize these search results to answer the original question: "%s"

- Combine information from multiple sources without redundancy
- Highlight the most relevant and actionable information
- Note any discrepancies between sources
- Keep the response concise and well-organized`, query)
}

// Agent answers a sub-question from one source.
type Agent interface {
	Run(ctx context.Context, query string) (string, error)
}

// Router classifies, fans out and synthesizes.
type Router struct {
	model  llms.Model
	agents map[Source]Agent
	logger log.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithAgent replaces the agent of one source.
func WithAgent(s Source, a Agent) Option {
	return func(r *Router) { r.agents[s] = a }
}

// New builds a Router whose source agents are tool agents over model.
func New(model llms.Model, opts ...Option) (*Router, error) {
	r := &Router{
		model:  model,
		agents: make(map[Source]Agent, len(Sources)),
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, s := range Sources {
		if _, ok := r.agents[s]; ok {
			continue
		}
		a, err := prebuilt.NewToolAgent(model, systemPrompts[s], tool.SourceTools(string(s)),
			prebuilt.WithAgentName(string(s)+"_agent"),
			prebuilt.WithAgentLogger(r.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s agent: %w", s, err)
		}
		r.agents[s] = a
	}
	return r, nil
}

// Ask answers query from the knowledge sources.
func (r *Router) Ask(ctx context.Context, query string) (*Answer, error) {
	classifications, err := r.Classify(ctx, query)
	if err != nil {
		return nil, err
	}
	results := r.Route(ctx, classifications)

	answer, err := r.Synthesize(ctx, query, results)
	if err != nil {
		return nil, err
	}
	return &Answer{
		Query:           query,
		Classifications: classifications,
		Results:         results,
		Answer:          answer,
	}, nil
}

var classifyFunction = llms.FunctionDefinition{
	Name:        "classify",
	Description: "List the knowledge bases to consult, each with a targeted sub-question.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"classifications": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"source": map[string]any{
							"type": "string",
							"enum": []string{string(SourceGitHub), string(SourceNotion), string(SourceSlack)},
						},
						"query": map[string]any{
							"type":        "string",
							"description": "The sub-question for this knowledge base.",
						},
					},
					"required": []string{"source", "query"},
				},
			},
		},
		"required": []string{"classifications"},
	},
}

// Classify splits query into per-source sub-questions. Unknown and repeated
// sources are dropped. When nothing usable is left every source gets the
// original query.
func (r *Router) Classify(ctx context.Context, query string) ([]Classification, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, classifierPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, query),
	}
	args, err := prebuilt.CallTool(ctx, r.model, msgs, classifyFunction)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var parsed struct {
		Classifications []Classification `json:"classifications"`
	}
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		r.logger.Warn("unparsable classification %q: %v", args, err)
	}

	var out []Classification
	for _, c := range parsed.Classifications {
		c.Source = Source(strings.ToLower(strings.TrimSpace(string(c.Source))))
		if !slices.Contains(Sources, c.Source) {
			continue
		}
		if slices.ContainsFunc(out, func(o Classification) bool { return o.Source == c.Source }) {
			continue
		}
		if strings.TrimSpace(c.Query) == "" {
			c.Query = query
		}
		out = append(out, c)
	}

	if len(out) == 0 {
		for _, s := range Sources {
			out = append(out, Classification{Source: s, Query: query})
		}
	}
	return out, nil
}

// Route runs the agent of every classification concurrently and waits for
// all of them. Results follow the order of classifications; a failed agent
// yields a Result with Error set.
func (r *Router) Route(ctx context.Context, classifications []Classification) []Result {
	settled := graph.FanOutSettled(ctx, classifications, func(ctx context.Context, c Classification) (string, error) {
		agent, ok := r.agents[c.Source]
		if !ok {
			return "", fmt.Errorf("no agent for source %s", c.Source)
		}
		return agent.Run(ctx, c.Query)
	})

	results := make([]Result, 0, len(settled))
	for i, s := range settled {
		res := Result{Source: classifications[i].Source, Result: s.Value}
		if s.Err != nil {
			r.logger.Warn("%s agent failed: %v", res.Source, s.Err)
			res.Error = s.Err.Error()
		}
		results = append(results, res)
	}
	return results
}

// Synthesize merges the successful results into one answer.
func (r *Router) Synthesize(ctx context.Context, query string, results []Result) (string, error) {
	var ok []Result
	for _, res := range results {
		if res.Error == "" && strings.TrimSpace(res.Result) != "" {
			ok = append(ok, res)
		}
	}

	switch len(ok) {
	case 0:
		return NoResultsMessage, nil
	case 1:
		return ok[0].Result, nil
	}

	formatted := make([]string, 0, len(ok))
	for _, res := range ok {
		formatted = append(formatted, fmt.Sprintf("**From %s:**\n%s", res.Source.Title(), res.Result))
	}
	answer, err := prebuilt.Complete(ctx, r.model, synthesisPrompt(query), strings.Join(formatted, "\n\n"))
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return answer, nil
}
