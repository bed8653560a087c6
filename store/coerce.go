package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cppla/teamfeed/models"
)

const maxChecklistText = 200

// coerceObject accepts a decoded JSON object, a JSON-encoded string or nil
// and returns a non-nil map. ok is false for any other shape.
func coerceObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, true
	case map[string]any:
		return t, true
	case string:
		if strings.TrimSpace(t) == "" {
			return map[string]any{}, true
		}
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return nil, false
		}
		m, ok := decoded.(map[string]any)
		if !ok {
			return nil, false
		}
		return m, true
	case json.RawMessage:
		return coerceObject(string(t))
	default:
		return nil, false
	}
}

// coerceArray normalizes a decoded JSON array or JSON-encoded string to
// []any. Anything else yields nil.
func coerceArray(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return nil
		}
		arr, _ := decoded.([]any)
		return arr
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var arr []any
		if err := json.Unmarshal(b, &arr); err != nil {
			return nil
		}
		return arr
	}
}

// normalizeChecklist keeps object entries with non-blank text, truncating
// text to 200 code points and coercing done to a bool.
func normalizeChecklist(v any) []models.ChecklistItem {
	items := []models.ChecklistItem{}
	for _, raw := range coerceArray(v) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		text := strings.TrimSpace(stringOf(m["text"]))
		if text == "" {
			continue
		}
		items = append(items, models.ChecklistItem{
			Text: truncateRunes(text, maxChecklistText),
			Done: coerceBool(m["done"]),
		})
	}
	return items
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}

// coerceIndex accepts integers, integral floats and digit strings.
func coerceIndex(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := strconv.Atoi(t.String())
		return i, err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
