package fab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/fabflow/graph"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/prebuilt"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// GraphName is the name the inspection workflow reports to listeners.
const GraphName = "fab_inspection"

// Node names.
const (
	NodeClassify  = "classify"
	NodeChat      = "chat"
	NodeHistory   = "history"
	NodePropose   = "propose"
	NodeReview    = "review"
	NodeDispatch  = "dispatch"
	NodeSummarize = "summarize"
)

// SummarizerFailurePolicy decides what the summarizer does when the model fails.
type SummarizerFailurePolicy string

const (
	// SummarizerPropagate fails the run.
	SummarizerPropagate SummarizerFailurePolicy = "propagate"
	// SummarizerFallback answers with a text assembled from the state.
	SummarizerFallback SummarizerFailurePolicy = "fallback"
)

// ParseSummarizerPolicy accepts "propagate", "fallback" or "" (propagate).
func ParseSummarizerPolicy(s string) (SummarizerFailurePolicy, error) {
	switch p := SummarizerFailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", SummarizerPropagate:
		return SummarizerPropagate, nil
	case SummarizerFallback:
		return p, nil
	}
	return "", fmt.Errorf("unknown summarizer failure policy %q", s)
}

// VerdictObserver is told about every review verdict.
type VerdictObserver interface {
	ObserveVerdict(verdict string)
}

type workflow struct {
	model       llms.Model
	dispatcher  *Dispatcher
	historyTool tools.Tool
	policy      SummarizerFailurePolicy
	observer    VerdictObserver
	logger      log.Logger
}

func (w *workflow) classify(_ context.Context, s State) (State, error) {
	c := Classify(s.InputText)
	return State{Classification: &c, LotID: ptr(ExtractLotID(s.InputText))}, nil
}

func (w *workflow) chat(ctx context.Context, s State) (State, error) {
	answer, err := prebuilt.Complete(ctx, w.model, ChatSystemPrompt, s.InputText)
	if err != nil {
		return State{}, fmt.Errorf("chat: %w", err)
	}
	return State{FinalAnswer: &answer}, nil
}

func (w *workflow) history(ctx context.Context, s State) (State, error) {
	lot := orUnknown(deref(s.LotID))
	raw, err := w.historyTool.Call(ctx, lot)
	if err != nil {
		return State{}, fmt.Errorf("history lookup for LOT %s: %w", lot, err)
	}

	summary, err := prebuilt.Complete(ctx, w.model, HistorySystemPrompt, historyPrompt(lot, raw))
	if err != nil || strings.TrimSpace(summary) == "" {
		if ctx.Err() != nil {
			return State{}, ctx.Err()
		}
		w.logger.Warn("history summary unavailable for LOT %s, forwarding raw history: %v", lot, err)
		summary = raw
	}
	return State{HistorySummary: &summary}, nil
}

func (w *workflow) propose(ctx context.Context, s State) (State, error) {
	content, err := prebuilt.Complete(ctx, w.model, RouterSystemPrompt, proposalPrompt(s.InputText, deref(s.HistorySummary)))
	if err != nil {
		if ctx.Err() != nil {
			return State{}, ctx.Err()
		}
		w.logger.Warn("decision proposer failed, using default: %v", err)
		return State{ProposedDecision: &Decision{Choice: DefaultChoice, Rationale: defaultRationale}}, nil
	}

	d, err := ParseDecision(content)
	if err != nil {
		w.logger.Warn("unparsable proposal %q, using default: %v", truncate(content, 80), err)
		d = Decision{Choice: DefaultChoice, Rationale: defaultRationale}
	}
	return State{ProposedDecision: &d}, nil
}

// ParseDecision reads {"process": ..., "reason": ...} from a model answer.
// The object may be wrapped in prose or a code fence. An unknown process falls
// back to DefaultChoice with the rationale recording the replacement.
func ParseDecision(content string) (Decision, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Decision{}, errors.New("no JSON object in proposal")
	}

	var raw struct {
		Process string `json:"process"`
		Choice  string `json:"choice"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return Decision{}, err
	}
	process := raw.Process
	if process == "" {
		process = raw.Choice
	}
	if process == "" {
		return Decision{}, errors.New("proposal names no process")
	}
	return resolveChoice(process, raw.Reason), nil
}

func (w *workflow) review(ctx context.Context, s State) (State, error) {
	answer, err := graph.Interrupt(ctx, NewReviewRequest(s))
	if err != nil {
		return State{}, err
	}

	v, err := DecodeVerdict(answer)
	if err != nil {
		return State{}, err
	}
	if w.observer != nil {
		w.observer.ObserveVerdict(string(v.Type))
	}
	w.logger.Info("review verdict %s for LOT %s", v.Type, orUnknown(deref(s.LotID)))
	return ApplyVerdict(s, v), nil
}

func (w *workflow) dispatch(ctx context.Context, s State) (State, error) {
	d := DecisionOrDefault(s.ProposedDecision)
	request := routedRequest(s.InputText, d.Choice)

	result, err := w.dispatcher.Dispatch(ctx, d.Choice, request)
	if err != nil {
		return State{}, fmt.Errorf("dispatch %s: %w", d.Choice, err)
	}
	return State{RoutedRequest: &request, ActionResult: &result}, nil
}

func (w *workflow) summarize(ctx context.Context, s State) (State, error) {
	if s.FinalAnswer != nil {
		return State{}, nil
	}

	d := DecisionOrDefault(s.ProposedDecision)
	prompt := summaryPrompt(s.InputText, deref(s.HistorySummary), d, deref(s.ActionResult))
	answer, err := prebuilt.Complete(ctx, w.model, SupervisorSystemPrompt, prompt)
	if err != nil {
		if w.policy != SummarizerFallback || ctx.Err() != nil {
			return State{}, fmt.Errorf("summarize: %w", err)
		}
		w.logger.Warn("summarizer failed, using fallback answer: %v", err)
		answer = fallbackSummary(s)
	}
	return State{FinalAnswer: &answer}, nil
}

func routeAfterClassify(s State) string {
	if s.Classification == nil {
		return ""
	}
	switch *s.Classification {
	case ClassificationDomain:
		return NodeHistory
	case ClassificationGeneral:
		return NodeChat
	}
	return ""
}

func routeAfterReview(s State) string {
	if s.HumanVerdict == nil {
		return ""
	}
	switch s.HumanVerdict.Type {
	case VerdictReject, VerdictCancel:
		return graph.END
	case VerdictApprove, VerdictEdit:
		return NodeDispatch
	}
	return ""
}

// newGraph wires the inspection workflow:
//
//	classify -> chat -> END
//	classify -> history -> propose -> review -> dispatch -> summarize -> END
//	                                   review -> END (reject)
func newGraph(w *workflow) *graph.StateGraph[State] {
	g := graph.NewStateGraph[State]()
	g.SetName(GraphName)
	g.SetSchema(Schema{})

	g.AddNode(NodeClassify, "Keyword classifier", w.classify)
	g.AddNode(NodeChat, "General chat", w.chat)
	g.AddNode(NodeHistory, "Process history lookup", w.history)
	g.AddNode(NodePropose, "Process decision proposer", w.propose)
	g.AddNode(NodeReview, "Human review gate", w.review)
	g.AddNode(NodeDispatch, "Inspection dispatcher", w.dispatch)
	g.AddNode(NodeSummarize, "Final summarizer", w.summarize)

	g.SetEntryPoint(NodeClassify)
	g.AddConditionalEdge(NodeClassify, routeAfterClassify, NodeHistory, NodeChat)
	g.AddEdge(NodeChat, graph.END)
	g.AddEdge(NodeHistory, NodePropose)
	g.AddEdge(NodePropose, NodeReview)
	g.AddConditionalEdge(NodeReview, routeAfterReview, NodeDispatch, graph.END)
	g.AddEdge(NodeDispatch, NodeSummarize)
	g.AddEdge(NodeSummarize, graph.END)
	return g
}
