package normalize

import (
	"strconv"
	"strings"

	"github.com/sells-group/workstat/internal/upstream"
)

// field resolves a canonical field on a raw record through its alias list.
func field(r upstream.Record, canonical string) (any, bool) {
	for _, alias := range fieldAliases[canonical] {
		if v, ok := r[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// stringField returns the trimmed string value of a canonical field, or "".
func stringField(r upstream.Record, canonical string) string {
	v, ok := field(r, canonical)
	if !ok {
		return ""
	}
	s, _ := asString(v)
	return s
}

// intFieldOr parses a canonical field as an integer, falling back to def on
// absence or parse failure. Parsing never raises.
func intFieldOr(r upstream.Record, canonical string, def int64) int64 {
	v, ok := field(r, canonical)
	if !ok {
		return def
	}
	n, ok := asInt64(v)
	if !ok {
		return def
	}
	return n
}

// floatFieldOr parses a canonical field as a float, falling back to def.
func floatFieldOr(r upstream.Record, canonical string, def float64) float64 {
	v, ok := field(r, canonical)
	if !ok {
		return def
	}
	f, ok := asFloat(v)
	if !ok {
		return def
	}
	return f
}

// floatPtrField parses a canonical field as a float, returning nil on absence
// or parse failure.
func floatPtrField(r upstream.Record, canonical string) *float64 {
	v, ok := field(r, canonical)
	if !ok {
		return nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// intPtrField parses a canonical field as an integer, returning nil on absence
// or parse failure.
func intPtrField(r upstream.Record, canonical string) *int64 {
	v, ok := field(r, canonical)
	if !ok {
		return nil
	}
	n, ok := asInt64(v)
	if !ok {
		return nil
	}
	return &n
}
