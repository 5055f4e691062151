package fab

// ReviewAction identifies the review request kind on the wire.
const ReviewAction = "router_decision_review"

// ReviewArgs is the decision under review.
type ReviewArgs struct {
	Request string `json:"request"`
	Process Choice `json:"process"`
	Reason  string `json:"reason"`
}

// ReviewRequest is the interrupt payload shown to the reviewer.
type ReviewRequest struct {
	Action      string        `json:"action"`
	Args        ReviewArgs    `json:"args"`
	Description string        `json:"description"`
	Options     []VerdictType `json:"options"`
}

// NewReviewRequest builds the review payload of s.
func NewReviewRequest(s State) ReviewRequest {
	d := DecisionOrDefault(s.ProposedDecision)
	return ReviewRequest{
		Action: ReviewAction,
		Args: ReviewArgs{
			Request: s.InputText,
			Process: d.Choice,
			Reason:  d.Rationale,
		},
		Description: reviewDescription(d.Choice, d.Rationale, s.InputText),
		Options:     []VerdictType{VerdictApprove, VerdictEdit, VerdictReject},
	}
}

// DecisionOrDefault returns d, or the default proposal when d is nil.
func DecisionOrDefault(d *Decision) Decision {
	if d == nil {
		return Decision{Choice: DefaultChoice, Rationale: defaultRationale}
	}
	return *d
}

// ApplyVerdict returns the state update of a review answered with v.
// The verdict itself is always part of the update.
func ApplyVerdict(s State, v Verdict) State {
	update := State{HumanVerdict: &v}

	switch {
	case v.Type.Rejects():
		update.FinalAnswer = ptr(rejectionAnswer(v.Message))

	case v.Type == VerdictEdit && v.Replacement != nil:
		d := DecisionOrDefault(s.ProposedDecision)
		p := v.Replacement
		if p.Rationale != nil {
			d.Rationale = *p.Rationale
		}
		if p.Choice != nil {
			d = resolveChoice(*p.Choice, d.Rationale)
		}
		update.ProposedDecision = &d

		if p.Request != nil && *p.Request != "" {
			update.InputText = *p.Request
			if id := ExtractLotID(*p.Request); id != UnknownLot {
				update.LotID = ptr(id)
			}
		}
	}
	return update
}

// resolveChoice maps a free-form process name onto the closed set.
func resolveChoice(raw, rationale string) Decision {
	c, err := ParseChoice(raw)
	if err != nil {
		return Decision{Choice: DefaultChoice, Rationale: unknownChoiceRationale(raw, rationale)}
	}
	return Decision{Choice: c, Rationale: rationale}
}
