package fab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVerdict is returned for a resume payload that is not a verdict.
var ErrInvalidVerdict = errors.New("invalid verdict")

type wirePatch struct {
	Choice    *string `json:"choice"`
	Process   *string `json:"process"`
	Rationale *string `json:"rationale"`
	Reason    *string `json:"reason"`
	Request   *string `json:"request"`
}

func (p *wirePatch) patch() *DecisionPatch {
	if p == nil {
		return nil
	}
	out := &DecisionPatch{
		Choice:    firstSet(p.Choice, p.Process),
		Rationale: firstSet(p.Rationale, p.Reason),
		Request:   p.Request,
	}
	if out.Choice == nil && out.Rationale == nil && out.Request == nil {
		return nil
	}
	return out
}

func firstSet(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

type wireVerdict struct {
	Type        string     `json:"type"`
	Message     string     `json:"message"`
	Replacement *wirePatch `json:"replacement"`
	Args        *wirePatch `json:"args"`
}

// DecodeVerdict normalizes a resume payload. It accepts a Verdict, raw JSON,
// or any JSON-encodable value of these forms:
//
//	{"type": "edit", "message": "...", "replacement": {"choice": "etch"}}
//	{"type": "edit", "args": {"process": "etch", "reason": "..."}}
//	[{"type": "reject", "message": "..."}]
//	"approve"
//	true
//
// A missing type or a nil payload means approve.
func DecodeVerdict(v any) (Verdict, error) {
	switch val := v.(type) {
	case Verdict:
		return normalize(val)
	case *Verdict:
		if val == nil {
			return Verdict{Type: VerdictApprove}, nil
		}
		return normalize(*val)
	case json.RawMessage:
		return DecodeVerdictJSON(val)
	case []byte:
		return DecodeVerdictJSON(val)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	return DecodeVerdictJSON(data)
}

// DecodeVerdictJSON decodes a JSON resume payload. See DecodeVerdict.
func DecodeVerdictJSON(data []byte) (Verdict, error) {
	data = bytes.TrimSpace(data)
	v, err := decodeJSON(data)
	if err != nil {
		return Verdict{}, err
	}
	if len(data) > 0 {
		v.Raw = json.RawMessage(bytes.Clone(data))
	}
	return normalize(v)
}

func decodeJSON(data []byte) (Verdict, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Verdict{}, nil
	}

	switch data[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return Verdict{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
		}
		if len(list) == 0 {
			return Verdict{}, nil
		}
		return decodeJSON(bytes.TrimSpace(list[0]))
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Verdict{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
		}
		return Verdict{Type: VerdictType(s)}, nil
	case 't':
		if bytes.Equal(data, []byte("true")) {
			return Verdict{Type: VerdictApprove}, nil
		}
	case 'f':
		if bytes.Equal(data, []byte("false")) {
			return Verdict{Type: VerdictReject}, nil
		}
	case '{':
		var w wireVerdict
		if err := json.Unmarshal(data, &w); err != nil {
			return Verdict{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
		}
		patch := w.Replacement
		if patch == nil {
			patch = w.Args
		}
		return Verdict{Type: VerdictType(w.Type), Message: w.Message, Replacement: patch.patch()}, nil
	}
	return Verdict{}, fmt.Errorf("%w: unsupported payload %s", ErrInvalidVerdict, truncate(string(data), 64))
}

func normalize(v Verdict) (Verdict, error) {
	v.Type = VerdictType(strings.ToLower(strings.TrimSpace(string(v.Type))))
	switch v.Type {
	case "":
		v.Type = VerdictApprove
	case VerdictApprove, VerdictEdit, VerdictReject, VerdictCancel:
	default:
		return Verdict{}, fmt.Errorf("%w: unknown type %q", ErrInvalidVerdict, v.Type)
	}
	return v, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
