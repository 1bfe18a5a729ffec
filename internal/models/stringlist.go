package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// StringList is the canonical representation of list-valued job fields.
//
// Model output and older clients send these fields as a JSON array, a
// single delimited string, or an object; UnmarshalJSON normalizes all of
// them once so the rest of the code only sees []string. It is stored as a
// Postgres text[].
type StringList []string

func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = NormalizeStringList(raw)
	return nil
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(l).Value()
}

func (l *StringList) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

// NormalizeStringList flattens any decoded JSON value into trimmed,
// de-duplicated strings in first-seen order.
func NormalizeStringList(v any) StringList {
	out := StringList{}
	seen := map[string]struct{}{}
	add := func(s string) {
		s = cleanItem(s)
		if s == "" {
			return
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case nil:
		case string:
			for _, s := range splitDelimited(t) {
				add(s)
			}
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok {
					// array elements are already items; only strip bullets
					add(s)
					continue
				}
				walk(e)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				switch val := t[k].(type) {
				case bool:
					if val {
						add(k)
					}
				default:
					walk(val)
				}
			}
		case float64:
			add(fmt.Sprintf("%g", t))
		case bool:
			// ignore bare booleans
		default:
			add(fmt.Sprint(t))
		}
	}
	walk(v)
	return out
}

func splitDelimited(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	if len(lines) > 1 {
		return lines
	}
	if strings.Contains(s, ";") {
		return strings.Split(s, ";")
	}
	if strings.Contains(s, ",") {
		return strings.Split(s, ",")
	}
	return []string{s}
}

func cleanItem(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-•*·\t ")
	// "1." / "2)" numbering
	if i := strings.IndexAny(s, ".)"); i > 0 && i <= 3 && isDigits(s[:i]) && i+1 < len(s) && s[i+1] == ' ' {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
