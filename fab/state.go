package fab

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Classification is the outcome of the keyword classifier.
type Classification string

const (
	// ClassificationDomain marks a fab inspection request.
	ClassificationDomain Classification = "domain"
	// ClassificationGeneral marks anything else, answered by the chat node.
	ClassificationGeneral Classification = "general"
)

// Choice is the process selected for inspection.
type Choice string

const (
	ChoicePhoto      Choice = "photo"
	ChoiceEtch       Choice = "etch"
	ChoiceDeposition Choice = "deposition"
)

// DefaultChoice is used whenever a proposal or an edit names an unknown process.
const DefaultChoice = ChoicePhoto

// Choices lists the closed set of processes.
var Choices = []Choice{ChoicePhoto, ChoiceEtch, ChoiceDeposition}

// ErrUnknownChoice is returned by ParseChoice.
var ErrUnknownChoice = errors.New("unknown process")

// ParseChoice accepts photo, etch or deposition in any case.
func ParseChoice(s string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Choices {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChoice, s)
}

// Decision is a proposed process with its rationale.
type Decision struct {
	Choice    Choice `json:"choice"`
	Rationale string `json:"rationale"`
}

// DecisionPatch holds the fields a reviewer replaced on edit.
type DecisionPatch struct {
	Choice    *string `json:"choice,omitempty"`
	Rationale *string `json:"rationale,omitempty"`
	Request   *string `json:"request,omitempty"`
}

// VerdictType is the reviewer's answer.
type VerdictType string

const (
	VerdictApprove VerdictType = "approve"
	VerdictEdit    VerdictType = "edit"
	VerdictReject  VerdictType = "reject"
	// VerdictCancel ends the session like a rejection.
	VerdictCancel VerdictType = "cancel"
)

// Rejects reports whether the verdict terminates the workflow.
func (t VerdictType) Rejects() bool {
	return t == VerdictReject || t == VerdictCancel
}

// Verdict is the decoded review answer. Raw keeps the payload exactly as received.
type Verdict struct {
	Type        VerdictType     `json:"type"`
	Message     string          `json:"message,omitempty"`
	Replacement *DecisionPatch  `json:"replacement,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// State is the workflow state of one session. Optional fields are pointers;
// a node returns only the fields it writes.
type State struct {
	InputText        string          `json:"input_text,omitempty"`
	Classification   *Classification `json:"classification,omitempty"`
	LotID            *string         `json:"lot_id,omitempty"`
	HistorySummary   *string         `json:"history_summary,omitempty"`
	ProposedDecision *Decision       `json:"proposed_decision,omitempty"`
	HumanVerdict     *Verdict        `json:"human_verdict,omitempty"`
	RoutedRequest    *string         `json:"routed_request,omitempty"`
	ActionResult     *string         `json:"action_result,omitempty"`
	FinalAnswer      *string         `json:"final_answer,omitempty"`
}

// IsZero reports whether no field is set. A node returning a zero State made no update.
func (s State) IsZero() bool {
	return s == State{}
}

// ErrFinalAnswerSet is returned when an update tries to replace a final answer.
var ErrFinalAnswerSet = errors.New("final answer already set")

// Schema merges partial updates into the state.
type Schema struct{}

// Init returns the empty state.
func (Schema) Init() State {
	return State{}
}

// Update copies every set field of upd onto cur.
func (Schema) Update(cur, upd State) (State, error) {
	if upd.FinalAnswer != nil && cur.FinalAnswer != nil {
		return cur, ErrFinalAnswerSet
	}
	if upd.InputText != "" {
		cur.InputText = upd.InputText
	}
	if upd.Classification != nil {
		cur.Classification = upd.Classification
	}
	if upd.LotID != nil {
		cur.LotID = upd.LotID
	}
	if upd.HistorySummary != nil {
		cur.HistorySummary = upd.HistorySummary
	}
	if upd.ProposedDecision != nil {
		cur.ProposedDecision = upd.ProposedDecision
	}
	if upd.HumanVerdict != nil {
		cur.HumanVerdict = upd.HumanVerdict
	}
	if upd.RoutedRequest != nil {
		cur.RoutedRequest = upd.RoutedRequest
	}
	if upd.ActionResult != nil {
		cur.ActionResult = upd.ActionResult
	}
	if upd.FinalAnswer != nil {
		cur.FinalAnswer = upd.FinalAnswer
	}
	return cur, nil
}

func ptr[T any](v T) *T {
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
