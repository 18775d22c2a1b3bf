package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key normalizes an identity value to its canonical text form.
//
// Strings are trimmed and NFC-normalized; integers and integral floats print
// without a fractional part, so 1, int64(1), float64(1) and "1" share a key.
// ok is false for nil, blank strings and the literals "undefined"/"null".
func Key(v any) (string, bool) {
	var s string
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		s = norm.NFC.String(strings.TrimSpace(id))
	case json.Number:
		s = strings.TrimSpace(id.String())
		if f, err := id.Float64(); err == nil && f == math.Trunc(f) && !strings.ContainsAny(s, "eE") {
			s = strconv.FormatFloat(f, 'f', -1, 64)
		}
	case int:
		s = strconv.FormatInt(int64(id), 10)
	case int8:
		s = strconv.FormatInt(int64(id), 10)
	case int16:
		s = strconv.FormatInt(int64(id), 10)
	case int32:
		s = strconv.FormatInt(int64(id), 10)
	case int64:
		s = strconv.FormatInt(id, 10)
	case uint:
		s = strconv.FormatUint(uint64(id), 10)
	case uint8:
		s = strconv.FormatUint(uint64(id), 10)
	case uint16:
		s = strconv.FormatUint(uint64(id), 10)
	case uint32:
		s = strconv.FormatUint(uint64(id), 10)
	case uint64:
		s = strconv.FormatUint(id, 10)
	case float32:
		s = strconv.FormatFloat(float64(id), 'f', -1, 32)
	case float64:
		s = strconv.FormatFloat(id, 'f', -1, 64)
	default:
		s = strings.TrimSpace(fmt.Sprint(id))
	}
	if s == "" || s == "undefined" || s == "null" {
		return "", false
	}
	return s, true
}

// IsIdentity reports whether v is a bare identity value (a string or a number).
func IsIdentity(v any) bool {
	switch v.(type) {
	case string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// SameKey reports whether a and b are present identities with the same key.
func SameKey(a, b any) bool {
	ka, ok := Key(a)
	if !ok {
		return false
	}
	kb, ok := Key(b)
	return ok && ka == kb
}

// Clone deep-copies JSON-shaped values (maps, slices, scalars).
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = CloneDocument(item)
		}
		return out
	}
	return v
}

// CloneDocument deep-copies a single document.
func CloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = Clone(v)
	}
	return out
}
