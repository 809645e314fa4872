// Package validation turns raw rows from forms, JSON payloads and tabular
// uploads into canonical measurement records.
package validation

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RawRow maps a lower-cased, trimmed field name to its raw value. Values are
// whatever the source produced: string, float64, int, json.Number, time.Time
// or nil.
type RawRow map[string]any

// NewRawRow normalizes the keys of m. When two keys collide after
// normalization the first one in sorted key order that carries a value wins.
func NewRawRow(m map[string]any) RawRow {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make(RawRow, len(m))
	for _, k := range keys {
		name := NormalizeKey(k)
		if name == "" {
			continue
		}
		if existing, ok := row[name]; ok && present(existing) {
			continue
		}
		row[name] = m[k]
	}
	return row
}

// NormalizeKey lower-cases and trims a column or field name
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Has reports whether the row carries a usable value for field
func (r RawRow) Has(field string) bool {
	v, ok := r[field]
	return ok && present(v)
}

// Text returns the trimmed textual form of field and whether it is present
func (r RawRow) Text(field string) (string, bool) {
	return rawText(r[field])
}

// nullTokens are spellings that spreadsheet tools and JSON encoders use for
// an empty cell. They never become stored text.
var nullTokens = map[string]struct{}{
	"null": {},
	"nan":  {},
	"none": {},
	"nat":  {},
}

func present(v any) bool {
	_, ok := rawText(v)
	return ok
}

func rawText(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return "", false
		}
		if _, isNull := nullTokens[strings.ToLower(s)]; isNull {
			return "", false
		}
		return s, true
	case json.Number:
		return rawText(val.String())
	case float64:
		if math.IsNaN(val) {
			return "", false
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return rawText(float64(val))
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	case time.Time:
		if val.IsZero() {
			return "", false
		}
		return val.Format(dateLayout), true
	case *string:
		if val == nil {
			return "", false
		}
		return rawText(*val)
	default:
		return "", false
	}
}

// numeric returns the float value of v when the source already typed it as a
// number (JSON numbers, numeric spreadsheet cells)
func numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
