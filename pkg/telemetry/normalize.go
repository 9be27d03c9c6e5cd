package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields is a normalized field set: lower-case keys, numeric-looking values
// converted to float64, everything else as received.
type Fields map[string]interface{}

// Normalize lower-cases every key and converts each value whose string form
// parses as a number to float64. Other values, booleans included, pass
// through unchanged.
//
// Keys are visited in document order, so when two keys differ only in case
// the later one wins.
func Normalize(payload *Object) Fields {
	fields := make(Fields, payload.Len())
	for _, k := range payload.Keys() {
		v, _ := payload.Get(k)
		fields[strings.ToLower(k)] = normalizeValue(v)
	}
	return fields
}

func normalizeValue(v interface{}) interface{} {
	var s string
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		s = t.String()
	case string:
		s = t
	case bool, nil, *Object, []interface{}:
		return v
	default:
		s = fmt.Sprint(t)
	}
	f, ok := parseDecimal(s)
	if !ok {
		return v
	}
	return f
}

// parseDecimal accepts finite decimal text, with optional surrounding
// whitespace. Hex floats are rejected.
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	unsigned := strings.TrimLeft(s, "+-")
	if strings.HasPrefix(unsigned, "0x") || strings.HasPrefix(unsigned, "0X") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
