package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// ExtractJSON returns the body of the first Markdown code fence in raw, or
// the whole trimmed text when there is no fence. An unterminated opening
// fence (truncated stream) is stripped as well.
func ExtractJSON(raw string) string {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// ParseScanResult extracts, decodes and validates a raw model response.
func ParseScanResult(raw string) (*ScanResult, error) {
	body := ExtractJSON(raw)
	if body == "" {
		return nil, ErrEmptyResponse
	}

	var res ScanResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := Validate(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CleanText strips a surrounding code fence from free-text output.
func CleanText(raw string) string {
	return ExtractJSON(raw)
}
