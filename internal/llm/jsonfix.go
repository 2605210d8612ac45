package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	decimalRe       = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	indexScoreRe    = regexp.MustCompile(`"?(\d+)"?\s*:\s*(-?\d+(?:\.\d+)?)`)
)

// StripFences removes a surrounding markdown code fence (``` or ```json) from
// a model reply. Text without fences is returned trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line, e.g. "json"
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// RepairJSON applies the cheap fixes that cover most malformed model output:
// code fences, prose around the payload, and trailing commas.
func RepairJSON(s string) string {
	s = StripFences(s)
	start := strings.IndexAny(s, "{[")
	if start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexAny(s, "}]"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// DecodeJSON unmarshals a model reply into v after RepairJSON.
func DecodeJSON(reply string, v any) error {
	fixed := RepairJSON(reply)
	if fixed == "" {
		return fmt.Errorf("decode model json: empty reply")
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// FirstDecimal returns the first number found in s.
func FirstDecimal(s string) (float64, bool) {
	m := decimalRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IndexScores extracts "index": number pairs one at a time. It is the last
// resort when a reply is too broken to decode as a whole document.
func IndexScores(s string) map[int]float64 {
	out := map[int]float64{}
	for _, m := range indexScoreRe.FindAllStringSubmatch(s, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		f, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if _, dup := out[idx]; !dup {
			out[idx] = f
		}
	}
	return out
}
