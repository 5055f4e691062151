package tool

import (
	"encoding/json"
	"regexp"
	"strings"
)

var lotPrefix = regexp.MustCompile(`(?i)^LOT[\s:_-]*`)

// parseArgs decodes a tool input into string arguments. A non-JSON input is
// stored under primary.
func parseArgs(input, primary string) map[string]string {
	input = strings.TrimSpace(input)
	args := make(map[string]string)

	var raw map[string]any
	if strings.HasPrefix(input, "{") && json.Unmarshal([]byte(input), &raw) == nil {
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				args[k] = strings.TrimSpace(val)
			case nil:
			default:
				b, _ := json.Marshal(val)
				args[k] = string(b)
			}
		}
		if _, ok := args[primary]; !ok {
			if v, ok := args["input"]; ok {
				args[primary] = v
			}
		}
		return args
	}

	var s string
	if json.Unmarshal([]byte(input), &s) == nil {
		input = strings.TrimSpace(s)
	}
	args[primary] = input
	return args
}

// LotID extracts the LOT identifier from a tool input. "LOT12", "LOT 12" and
// {"lot_id":"12"} all yield "12". An empty input yields "unknown".
func LotID(input string) string {
	id := parseArgs(input, "lot_id")["lot_id"]
	id = strings.TrimSpace(lotPrefix.ReplaceAllString(id, ""))
	if id == "" {
		return "unknown"
	}
	return id
}
