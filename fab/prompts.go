package fab

import "fmt"

// System prompts of the workflow agents.
const (
	ChatSystemPrompt = "너는 반도체 FAB의 친절한 어시스턴트야. " +
		"반도체 공정 검사 요청이 아닌 일반 대화에 응답해. " +
		"사용자의 질문에 친절하고 간결하게 답변해줘. " +
		"반도체 관련 일반 지식 질문에도 답변할 수 있어."

	HistorySystemPrompt = "너는 반도체 공정 이력 관리 전문가야. " +
		"LOT의 전체 공정 이력을 보고 이상(ABNORMAL) 스텝과 전체 흐름을 간결하게 요약해."

	RouterSystemPrompt = "너는 반도체 공정 라우터 에이전트야. 사용자가 제공한 LOT ID와 요청 사항을 보고 " +
		"photo, etch, deposition 중 어떤 공정을 검사할지 결정해. " +
		"반드시 하나의 공정만 선택하고, 'photo' / 'etch' / 'deposition' 중 하나를 " +
		`JSON으로만 반환해. 예: {"process": "photo", "reason": "..."}`

	PhotoSystemPrompt = "너는 반도체 포토(Photo) 공정 검사 전문가야. " +
		"LOT 번호를 받아 패턴 검사나 CD 측정을 수행해."

	EtchSystemPrompt = "너는 반도체 식각(Etch) 공정 검사 전문가야. " +
		"LOT 번호를 받아 식각 프로파일이나 깊이를 측정해."

	DepositionSystemPrompt = "너는 반도체 증착(Deposition) 공정 검사 전문가야. " +
		"LOT 번호를 받아 막 두께나 균일도를 검사해."

	SupervisorSystemPrompt = "너는 반도체 공정 에이전트야. 사용자가 제공한 LOT ID와 요청 사항을 보고 " +
		"대화의 히스토리를 요약하고, 이력 정보와 사용자의 요청을 바탕으로 어떤 공정을 검사해야 할지 높은 레벨에서 정리하고, " +
		"공정 검사 결과를 종합해 최종 답변을 만들어줘."
)

var processPrompts = map[Choice]string{
	ChoicePhoto:      PhotoSystemPrompt,
	ChoiceEtch:       EtchSystemPrompt,
	ChoiceDeposition: DepositionSystemPrompt,
}

func historyPrompt(lotID, history string) string {
	return fmt.Sprintf("다음은 LOT %s의 공정 이력이야. 이상 스텝을 중심으로 요약해줘.\n\n%s", lotID, history)
}

func proposalPrompt(request, history string) string {
	return "다음 반도체 LOT 요청과 이력 요약을 보고, " +
		"'photo', 'etch', 'deposition' 중 하나의 공정을 선택해.\n\n" +
		fmt.Sprintf("- 사용자 요청: %s\n", request) +
		fmt.Sprintf("- 이력 요약: %s\n\n", history) +
		"반드시 다음과 같은 JSON만 반환해:\n" +
		`{ "process": "photo", "reason": "..." }`
}

func summaryPrompt(request, history string, d Decision, result string) string {
	return "다음은 사용자의 요청, LOT 공정 이력 요약, 선택된 공정, 그리고 검사 결과야.\n" +
		"이 정보를 종합해서, 사용자가 이해하기 쉽게 한국어로 최종 결과를 요약해줘.\n\n" +
		fmt.Sprintf("- 사용자 요청: %s\n\n", request) +
		fmt.Sprintf("- 이력 요약:\n%s\n\n", history) +
		fmt.Sprintf("- 선택된 공정: %s (사유: %s)\n\n", d.Choice, d.Rationale) +
		fmt.Sprintf("- 공정 검사 결과:\n%s\n", result)
}

func reviewDescription(process Choice, reason, request string) string {
	return fmt.Sprintf("라우터가 '%s' 공정을 선택했습니다.\n- 사유: %s\n- 원본 요청: %s\n\n승인, 거부, 또는 공정을 수정해 주세요.",
		process, reason, request)
}

// DefaultRejectMessage is used when a rejection carries no message.
const DefaultRejectMessage = "사용자가 요청을 거부했습니다."

func rejectionAnswer(message string) string {
	if message == "" {
		message = DefaultRejectMessage
	}
	return "요청이 거부되었습니다: " + message
}

const defaultRationale = "기본값(photo)으로 선택"

func unknownChoiceRationale(got, rationale string) string {
	return fmt.Sprintf("알 수 없는 공정 '%s' → 기본값(photo)으로 대체: %s", got, rationale)
}

func routedRequest(request string, c Choice) string {
	return fmt.Sprintf("%s (선택된 공정: %s)", request, c)
}

func fallbackSummary(s State) string {
	d := DecisionOrDefault(s.ProposedDecision)
	return fmt.Sprintf("LOT %s 요청 처리 결과\n\n- 이력 요약:\n%s\n\n- 선택된 공정: %s (사유: %s)\n\n- 공정 검사 결과:\n%s",
		orUnknown(deref(s.LotID)), deref(s.HistorySummary), d.Choice, d.Rationale, deref(s.ActionResult))
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownLot
	}
	return s
}
