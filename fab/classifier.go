package fab

import "regexp"

var (
	domainKeywords = regexp.MustCompile(`(?i)(LOT|공정|photo|etch|deposition|검사|패턴|CD|식각|증착|포토|웨이퍼|wafer|FAB)`)
	lotPattern     = regexp.MustCompile(`(?i)LOT\s*([A-Za-z0-9-]+)`)
)

// UnknownLot is the LOT id of a request that names none.
const UnknownLot = "unknown"

// Classify tests text for fab keywords.
func Classify(text string) Classification {
	if domainKeywords.MatchString(text) {
		return ClassificationDomain
	}
	return ClassificationGeneral
}

// ExtractLotID returns the id following "LOT" in text, or UnknownLot.
func ExtractLotID(text string) string {
	m := lotPattern.FindStringSubmatch(text)
	if m == nil {
		return UnknownLot
	}
	return m[1]
}
