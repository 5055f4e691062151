package tool

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools"
)

// Canned is a knowledge-source tool that answers from a fixed formatter.
type Canned struct {
	name        string
	description string
	primary     string
	answer      func(args map[string]string) string
}

var _ tools.Tool = (*Canned)(nil)

// Name implements tools.Tool
func (t *Canned) Name() string { return t.name }

// Description implements tools.Tool
func (t *Canned) Description() string { return t.description }

// Call implements tools.Tool
func (t *Canned) Call(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.answer(parseArgs(input, t.primary)), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// GitHub tools
var (
	SearchCode = &Canned{
		name:        "search_code",
		description: "깃허브 리포지토리에서 코드를 검색합니다. 입력: 검색어",
		primary:     "query",
		answer: func(args map[string]string) string {
			return fmt.Sprintf("'%s'와 일치하는 코드를 %s에서 찾았습니다: src/auth.py의 인증 미들웨어",
				args["query"], orDefault(args["repo"], "main"))
		},
	}
	SearchIssues = &Canned{
		name:        "search_issues",
		description: "깃허브 이슈를 검색합니다. 입력: 검색어",
		primary:     "query",
		answer: func(args map[string]string) string {
			return fmt.Sprintf("'%s'와 일치하는 이슈 3개를 찾았습니다: #142 (API 인증 문서), #89 (OAuth 플로우), #203 (토큰 갱신)", args["query"])
		},
	}
	SearchPRs = &Canned{
		name:        "search_prs",
		description: "깃허브 풀 리퀘스트를 검색합니다. 입력: 검색어",
		primary:     "query",
		answer: func(map[string]string) string {
			return "PR #156 JWT 인증 추가, PR #178 OAuth 스코프 업데이트"
		},
	}
)

// Notion tools
var (
	SearchNotion = &Canned{
		name:        "search_notion",
		description: "노션 워크스페이스에서 문서를 검색합니다. 입력: 검색어",
		primary:     "query",
		answer: func(map[string]string) string {
			return "문서를 찾았습니다: 'API 인증 가이드' - OAuth2 플로우, API 키, JWT 토큰을 다룹니다"
		},
	}
	GetPage = &Canned{
		name:        "get_page",
		description: "특정 노션 페이지를 ID로 가져옵니다. 입력: 페이지 ID",
		primary:     "page_id",
		answer: func(map[string]string) string {
			return "페이지 내용: 단계별 인증 설정 지침"
		},
	}
)

// Slack tools
var (
	SearchSlack = &Canned{
		name:        "search_slack",
		description: "슬랙 메시지와 스레드를 검색합니다. 입력: 검색어",
		primary:     "query",
		answer: func(map[string]string) string {
			return "#engineering에서 논의를 찾았습니다: 'API 인증을 위해 Bearer 토큰을 사용하세요, 갱신 플로우는 문서를 참조하세요'"
		},
	}
	GetThread = &Canned{
		name:        "get_thread",
		description: "특정 슬랙 스레드를 ID로 가져옵니다. 입력: 스레드 ID",
		primary:     "thread_id",
		answer: func(map[string]string) string {
			return "스레드에서 API 키 순환을 위한 모범 사례를 논의했습니다"
		},
	}
)

// SourceTools returns the tools of a knowledge source ("github", "notion" or "slack").
func SourceTools(source string) []tools.Tool {
	switch source {
	case "github":
		return []tools.Tool{SearchCode, SearchIssues, SearchPRs}
	case "notion":
		return []tools.Tool{SearchNotion, GetPage}
	case "slack":
		return []tools.Tool{SearchSlack, GetThread}
	}
	return nil
}
