package fab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/fabflow/graph"
)

func TestDecodeVerdict(t *testing.T) {
	tests := []struct {
		name        string
		in          any
		wantType    VerdictType
		wantMessage string
		wantChoice  string
	}{
		{"nil", nil, VerdictApprove, "", ""},
		{"true", true, VerdictApprove, "", ""},
		{"false", false, VerdictReject, "", ""},
		{"string", "reject", VerdictReject, "", ""},
		{"empty object", map[string]any{}, VerdictApprove, "", ""},
		{"reject", map[string]any{"type": "reject", "message": "LOT 보류"}, VerdictReject, "LOT 보류", ""},
		{"cancel", map[string]any{"type": "Cancel"}, VerdictCancel, "", ""},
		{"edit replacement", map[string]any{"type": "edit", "replacement": map[string]any{"choice": "etch"}}, VerdictEdit, "", "etch"},
		{"edit args", map[string]any{"type": "edit", "args": map[string]any{"process": "deposition"}}, VerdictEdit, "", "deposition"},
		{"list", []any{map[string]any{"type": "edit", "args": map[string]any{"process": "etch"}}}, VerdictEdit, "", "etch"},
		{"raw json", json.RawMessage(`{"type":"approve"}`), VerdictApprove, "", ""},
		{"typed", Verdict{Type: "REJECT", Message: "m"}, VerdictReject, "m", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodeVerdict(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, v.Type)
			assert.Equal(t, tt.wantMessage, v.Message)
			if tt.wantChoice == "" {
				if v.Replacement != nil {
					assert.Nil(t, v.Replacement.Choice)
				}
			} else {
				require.NotNil(t, v.Replacement)
				assert.Equal(t, tt.wantChoice, *v.Replacement.Choice)
			}
		})
	}
}

func TestDecodeVerdict_KeepsRaw(t *testing.T) {
	v, err := DecodeVerdictJSON([]byte(` {"type":"reject","message":"x","extra":1} `))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reject","message":"x","extra":1}`, string(v.Raw))
}

func TestDecodeVerdict_Invalid(t *testing.T) {
	_, err := DecodeVerdict(map[string]any{"type": "maybe"})
	assert.ErrorIs(t, err, ErrInvalidVerdict)

	_, err = DecodeVerdict(42)
	assert.ErrorIs(t, err, ErrInvalidVerdict)

	_, err = DecodeVerdictJSON([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrInvalidVerdict)
}

func reviewState() State {
	return State{
		InputText:        "LOT12 photo 검사해줘",
		LotID:            ptr("12"),
		ProposedDecision: &Decision{Choice: ChoicePhoto, Rationale: "패턴 검사 요청"},
	}
}

func TestNewReviewRequest(t *testing.T) {
	req := NewReviewRequest(reviewState())
	assert.Equal(t, ReviewAction, req.Action)
	assert.Equal(t, ReviewArgs{Request: "LOT12 photo 검사해줘", Process: ChoicePhoto, Reason: "패턴 검사 요청"}, req.Args)
	assert.Equal(t, "라우터가 'photo' 공정을 선택했습니다.\n- 사유: 패턴 검사 요청\n- 원본 요청: LOT12 photo 검사해줘\n\n승인, 거부, 또는 공정을 수정해 주세요.", req.Description)
	assert.Equal(t, []VerdictType{VerdictApprove, VerdictEdit, VerdictReject}, req.Options)
}

func TestApplyVerdict(t *testing.T) {
	s := reviewState()

	t.Run("approve", func(t *testing.T) {
		u := ApplyVerdict(s, Verdict{Type: VerdictApprove})
		require.NotNil(t, u.HumanVerdict)
		assert.Nil(t, u.ProposedDecision)
		assert.Nil(t, u.FinalAnswer)
	})

	t.Run("reject with message", func(t *testing.T) {
		u := ApplyVerdict(s, Verdict{Type: VerdictReject, Message: "장비 점검 중"})
		assert.Equal(t, "요청이 거부되었습니다: 장비 점검 중", *u.FinalAnswer)
		assert.Nil(t, u.ActionResult)
	})

	t.Run("reject default", func(t *testing.T) {
		u := ApplyVerdict(s, Verdict{Type: VerdictReject})
		assert.Equal(t, "요청이 거부되었습니다: 사용자가 요청을 거부했습니다.", *u.FinalAnswer)
	})

	t.Run("cancel", func(t *testing.T) {
		u := ApplyVerdict(s, Verdict{Type: VerdictCancel})
		assert.NotNil(t, u.FinalAnswer)
	})

	t.Run("edit all fields", func(t *testing.T) {
		u := ApplyVerdict(s, Verdict{Type: VerdictEdit, Replacement: &DecisionPatch{
			Choice:    ptr("ETCH"),
			Rationale: ptr("식각 이상"),
			Request:   ptr("LOT34 etch 검사해줘"),
		}})
		assert.Equal(t, Decision{Choice: ChoiceEtch, Rationale: "식각 이상"}, *u.ProposedDecision)
		assert.Equal(t, "LOT34 etch 검사해줘", u.InputText)
		assert.Equal(t, "34", *u.LotID)
	})

	t.Run("edit rationale only", func(t *testing.T) {
		u := ApplyVerdict(s, Verdict{Type: VerdictEdit, Replacement: &DecisionPatch{Rationale: ptr("new")}})
		assert.Equal(t, Decision{Choice: ChoicePhoto, Rationale: "new"}, *u.ProposedDecision)
		assert.Empty(t, u.InputText)
	})

	t.Run("edit unknown choice", func(t *testing.T) {
		u := ApplyVerdict(s, Verdict{Type: VerdictEdit, Replacement: &DecisionPatch{Choice: ptr("cmp")}})
		assert.Equal(t, ChoicePhoto, u.ProposedDecision.Choice)
		assert.Equal(t, "알 수 없는 공정 'cmp' → 기본값(photo)으로 대체: 패턴 검사 요청", u.ProposedDecision.Rationale)
	})
}

func TestRouteAfterReview(t *testing.T) {
	assert.Equal(t, "", routeAfterReview(State{}))
	assert.Equal(t, NodeDispatch, routeAfterReview(State{HumanVerdict: &Verdict{Type: VerdictApprove}}))
	assert.Equal(t, NodeDispatch, routeAfterReview(State{HumanVerdict: &Verdict{Type: VerdictEdit}}))
	assert.Equal(t, graph.END, routeAfterReview(State{HumanVerdict: &Verdict{Type: VerdictReject}}))
	assert.Equal(t, "", routeAfterReview(State{HumanVerdict: &Verdict{Type: "maybe"}}))
}
