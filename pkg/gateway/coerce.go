package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// coerceValue infers a typed value from parameter text: boolean and null
// literals, integers, floats, ISO-8601 dates, JSON objects/arrays, and
// finally a sanitized string.
func coerceValue(raw string) interface{} {
	s := strings.TrimSpace(raw)

	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if t, ok := parseDate(s); ok {
		return t
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		// Refuse to parse oversized values to bound parse cost.
		if len(s) <= maxJSONValueSize {
			var v interface{}
			if err := json.Unmarshal([]byte(s), &v); err == nil {
				return v
			}
		}
	}

	return sanitizeString(s)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	// Cheap shape check before trying layouts.
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sanitizeString strips characters commonly used in injection attempts.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'', '\\', ';', '`':
			return -1
		}
		return r
	}, s)
}
