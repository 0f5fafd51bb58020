package agent

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	intToken   = regexp.MustCompile(`-?\d+`)
	floatToken = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// CoerceAnswer forces a raw answer string into the type named by the format
// hint. It never raises: on failure it substitutes a conservative default
// for the type (0 for numeric, empty container for object/list, raw text
// for string) and reports ok=false so the caller can apply the confidence
// penalty.
func CoerceAnswer(raw string, hint FormatHint) (any, bool) {
	raw = strings.TrimSpace(raw)

	switch hint {
	case FormatInt:
		return coerceInt(raw)
	case FormatFloat:
		return coerceFloat(raw)
	case FormatObject:
		return coerceObject(raw)
	case FormatList:
		return coerceList(raw)
	default:
		return raw, true
	}
}

// coerceInt parses the first numeric token, so "16282 orders" becomes 16282.
func coerceInt(raw string) (any, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	token := intToken.FindString(cleaned)
	if token == "" {
		return 0, false
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return n, true
}

func coerceFloat(raw string) (any, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	token := floatToken.FindString(cleaned)
	if token == "" {
		return 0.0, false
	}
	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0.0, false
	}
	return math.Round(f*100) / 100, true
}

// coerceObject tries a bracketed JSON parse first, then falls back to
// wrapping the raw text; only an empty answer counts as failure.
func coerceObject(raw string) (any, bool) {
	if body := extractDelimited(raw, '{', '}'); body != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err == nil {
			return obj, true
		}
	}
	if raw == "" {
		return map[string]any{}, false
	}
	return map[string]any{"value": raw}, true
}

func coerceList(raw string) (any, bool) {
	if body := extractDelimited(raw, '[', ']'); body != "" {
		var list []any
		if err := json.Unmarshal([]byte(body), &list); err == nil {
			return list, true
		}
	}
	if raw == "" {
		return []any{}, false
	}
	return []any{raw}, true
}

// extractDelimited returns the outermost open..close span, "" if absent.
func extractDelimited(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
