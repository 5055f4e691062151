package rag

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownCategory is returned for a category outside Categories.
var ErrUnknownCategory = errors.New("unknown category")

// Categories maps each NCS main category to its sub categories.
var Categories = map[string][]string{
	"정보기술개발": {"SW아키텍쳐", "응용SW엔지니어링", "임베디드SW엔지니어링"},
	"정보기술관리": {"IT테스트", "IT품질보증", "IT프로젝트관리"},
	"직업기초능력": {"문제해결능력", "수리능력", "의사소통능력"},
}

// ValidateCategory checks a main/sub pair. Either may be empty. A sub
// category given with a main category must belong to it.
func ValidateCategory(main, sub string) error {
	if main != "" {
		subs, ok := Categories[main]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, main)
		}
		if sub != "" && !slices.Contains(subs, sub) {
			return fmt.Errorf("%w: %s/%s", ErrUnknownCategory, main, sub)
		}
		return nil
	}
	if sub == "" {
		return nil
	}
	for _, subs := range Categories {
		if slices.Contains(subs, sub) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownCategory, sub)
}
