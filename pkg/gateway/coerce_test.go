package gateway

import (
	"testing"
	"time"
)

func TestCoerceValue_Literals(t *testing.T) {
	if coerceValue("true") != true {
		t.Error("Expected boolean true")
	}
	if coerceValue("false") != false {
		t.Error("Expected boolean false")
	}
	if coerceValue("null") != nil {
		t.Error("Expected nil for null")
	}
}

func TestCoerceValue_Numbers(t *testing.T) {
	if coerceValue("42") != int64(42) {
		t.Errorf("Expected int64(42), got %v (%T)", coerceValue("42"), coerceValue("42"))
	}
	if coerceValue("-7") != int64(-7) {
		t.Errorf("Expected int64(-7), got %v", coerceValue("-7"))
	}
	if coerceValue("3.14") != 3.14 {
		t.Errorf("Expected 3.14, got %v", coerceValue("3.14"))
	}
}

func TestCoerceValue_Dates(t *testing.T) {
	cases := []string{
		"2024-06-01",
		"2024-06-01T10:30:00",
		"2024-06-01T10:30:00Z",
		"2024-06-01T10:30:00.123Z",
	}
	for _, s := range cases {
		ts, ok := coerceValue(s).(time.Time)
		if !ok {
			t.Errorf("%q: expected time.Time, got %T", s, coerceValue(s))
			continue
		}
		if ts.Year() != 2024 || ts.Month() != time.June || ts.Day() != 1 {
			t.Errorf("%q: unexpected date %v", s, ts)
		}
	}
}

func TestCoerceValue_DateLookalikesStayStrings(t *testing.T) {
	// Right length, wrong shape.
	if _, ok := coerceValue("2024/06/01").(string); !ok {
		t.Error("slash-separated date should stay a string")
	}
	if _, ok := coerceValue("not-a-date!").(string); !ok {
		t.Error("hyphenated non-date should stay a string")
	}
}

func TestCoerceValue_JSON(t *testing.T) {
	v := coerceValue(`{"a":1}`)
	m, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map, got %T", v)
	}
	if m["a"] != float64(1) {
		t.Errorf("Expected a=1, got %v", m["a"])
	}

	list, ok := coerceValue(`[1,2]`).([]interface{})
	if !ok || len(list) != 2 {
		t.Errorf("Expected 2-element list, got %v", list)
	}
}

func TestCoerceValue_OversizedJSONNotParsed(t *testing.T) {
	big := "{\"k\":\"" + string(make([]byte, maxJSONValueSize)) + "\"}"
	if _, ok := coerceValue(big).(map[string]interface{}); ok {
		t.Error("Oversized JSON value should not be parsed")
	}
}

func TestSanitizeString_StripsInjectionCharacters(t *testing.T) {
	got := sanitizeString(`Robert'); DROP TABLE users;--`)
	want := `Robert) DROP TABLE users--`
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	got = sanitizeString(`<script>alert("x")</script>`)
	if got != `scriptalert(x)/script` {
		t.Errorf("Unexpected sanitized value: %q", got)
	}
}

func TestCoerceValue_PlainStringsSanitized(t *testing.T) {
	v := coerceValue(`ana'; --`)
	s, ok := v.(string)
	if !ok {
		t.Fatalf("Expected string, got %T", v)
	}
	if s != "ana --" {
		t.Errorf("Expected quote and semicolon stripped, got %q", s)
	}
}
