package models

import (
	"strings"
	"unicode/utf8"
)

// Unstorable returns the attributes whose values the event store rejects:
// strings longer than their max length or containing NUL, and extra data
// holding NUL in any key or string value.
func Unstorable(e *Event) []string {
	var bad []string
	for _, f := range EventFields {
		if f.Type != FieldTypeString {
			continue
		}
		s := *f.Str(e)
		if strings.ContainsRune(s, 0) || (f.MaxLen > 0 && utf8.RuneCountInString(s) > f.MaxLen) {
			bad = append(bad, f.Name)
		}
	}
	if hasNUL(e.ExtraData) {
		bad = append(bad, "extra_data")
	}
	return bad
}

func hasNUL(v any) bool {
	switch x := v.(type) {
	case string:
		return strings.ContainsRune(x, 0)
	case map[string]any:
		for k, val := range x {
			if strings.ContainsRune(k, 0) || hasNUL(val) {
				return true
			}
		}
	case []any:
		for _, val := range x {
			if hasNUL(val) {
				return true
			}
		}
	}
	return false
}
