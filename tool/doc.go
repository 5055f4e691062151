// Package tool provides the mock collaborators used by the fab agents.
//
// Every tool implements langchaingo's tools.Tool and takes a single string input,
// either a JSON object or a bare value:
//
//	photo := tool.InspectionTools("photo")
//	out, _ := photo[0].Call(ctx, `{"lot_id": "12"}`)
//	// LOT 12 포토 패턴 검사 결과: 정렬 오차 2nm 확인됨.
//
// ProcessHistory generates a random process history for a LOT with exactly one
// abnormal step. Seed it for reproducible output:
//
//	h := tool.NewProcessHistory(tool.WithHistorySeed(42))
//	text := h.Generate("12")
//
// The knowledge-source tools (search_code, search_notion, search_slack, ...) back
// the multi-source router and return canned results.
package tool
