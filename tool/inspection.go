package tool

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools"
)

// Inspection is a canned process inspection. It formats its result template
// with the LOT id from the input.
type Inspection struct {
	name        string
	description string
	template    string
}

var _ tools.Tool = (*Inspection)(nil)

// Name implements tools.Tool
func (t *Inspection) Name() string { return t.name }

// Description implements tools.Tool
func (t *Inspection) Description() string { return t.description }

// Call implements tools.Tool
func (t *Inspection) Call(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf(t.template, LotID(input)), nil
}

// Photo inspections
var (
	InspectPhotoPatterns = &Inspection{
		name:        "inspect_photo_patterns",
		description: "포토 공정의 회로 패턴을 검사합니다. 입력: LOT 번호",
		template:    "LOT %s 포토 패턴 검사 결과: 정렬 오차 2nm 확인됨.",
	}
	MeasurePhotoCD = &Inspection{
		name:        "measure_photo_cd",
		description: "포토 공정의 CD(Critical Dimension)를 측정합니다. 입력: LOT 번호",
		template:    "LOT %s CD 측정 결과: 평균 15nm (스펙 내 양호).",
	}
)

// Etch inspections
var (
	AnalyzeEtchProfile = &Inspection{
		name:        "analyze_etch_profile",
		description: "식각 단면 프로파일을 검사합니다. 입력: LOT 번호",
		template:    "LOT %s 식각 프로파일 검사 결과: 수직도 89.5도 (양호).",
	}
	CheckEtchDepth = &Inspection{
		name:        "check_etch_depth",
		description: "식각 깊이를 측정합니다. 입력: LOT 번호",
		template:    "LOT %s 식각 깊이 측정 결과: 타겟 대비 +1.2%% 깊음.",
	}
)

// Deposition inspections
var (
	MeasureFilmThickness = &Inspection{
		name:        "measure_film_thickness",
		description: "증착 막 두께를 측정합니다. 입력: LOT 번호",
		template:    "LOT %s 증착 두께 측정 결과: 1025A (타겟 1000A).",
	}
	CheckDepositionUniformity = &Inspection{
		name:        "check_deposition_uniformity",
		description: "증착 균일도를 검사합니다. 입력: LOT 번호",
		template:    "LOT %s 증착 균일도 검사 결과: 98.5%% (매우 우수).",
	}
)

// InspectionTools returns the two inspection tools of a process
// ("photo", "etch" or "deposition"). An unknown process returns nil.
func InspectionTools(process string) []tools.Tool {
	switch process {
	case "photo":
		return []tools.Tool{InspectPhotoPatterns, MeasurePhotoCD}
	case "etch":
		return []tools.Tool{AnalyzeEtchProfile, CheckEtchDepth}
	case "deposition":
		return []tools.Tool{MeasureFilmThickness, CheckDepositionUniformity}
	}
	return nil
}
