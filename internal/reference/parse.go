// Package reference parses frontmatter field values into ordered reference
// lists and classifies each entry as a note link, a URL, or plain text.
package reference

import (
	"fmt"
	"strings"
)

// Parse turns a raw frontmatter value into an ordered list of entries.
//
// List values are stringified element by element. String values are split on
// newlines, commas and semicolons. Any other shape yields an empty list.
func Parse(raw any) []string {
	switch v := raw.(type) {
	case []string:
		out := make([]string, 0, len(v))
		return append(out, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, stringify(item))
		}
		return out
	case string:
		return splitDelimited(v)
	default:
		return []string{}
	}
}

// Serialize returns the list-shaped storage form of entries.
func Serialize(entries []string) []string {
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}

// Equal reports whether a and b hold the same entries in the same order.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func splitDelimited(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == ',' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case []any:
		// YAML reads an unquoted [[link]] as a nested sequence.
		if len(t) == 1 {
			if inner, ok := t[0].([]any); ok && len(inner) == 1 {
				return "[[" + stringify(inner[0]) + "]]"
			}
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
