// Package payload locates structured data blocks embedded in raw markup.
//
// Server-rendered pages often inline JSON inside script tags mixed with other
// markup, and the blocks nest, so a regular expression cannot find where one
// ends. ExtractBlocks walks the text with a small bracket scanner instead.
package payload

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Fragment is one parsed block.
type Fragment struct {
	// Raw is the balanced JSON text of the block.
	Raw json.RawMessage
	// Value is Raw decoded with json.Number for numbers.
	Value any
	// ID is the first value of the identifying field found in the block, or "".
	ID string
	// Offset is the byte offset of the block's opening bracket in the markup.
	Offset int
}

// Decode unmarshals the fragment into v.
func (f Fragment) Decode(v any) error {
	return json.Unmarshal(f.Raw, v)
}

// ExtractBlocks returns every block that follows a literal `"anchorKey":` in
// markup, in document order. Blocks that do not balance or do not parse are
// skipped. When idField is non-empty, blocks whose identifying value was
// already seen are dropped; blocks without the field are always kept.
func ExtractBlocks(markup, anchorKey, idField string) []Fragment {
	anchor := `"` + anchorKey + `"`
	var (
		out  []Fragment
		seen = make(map[string]bool)
		pos  = 0
	)

	for pos < len(markup) {
		i := strings.Index(markup[pos:], anchor)
		if i < 0 {
			break
		}
		start := pos + i
		next := start + 1

		open, ok := blockStart(markup, start, len(anchor))
		if !ok {
			pos = next
			continue
		}

		end, ok := balancedEnd(markup, open)
		if !ok {
			pos = next
			continue
		}

		raw := markup[open:end]
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var value any
		if err := dec.Decode(&value); err != nil {
			pos = next
			continue
		}

		frag := Fragment{
			Raw:    json.RawMessage(raw),
			Value:  value,
			Offset: open,
		}
		if idField != "" {
			frag.ID = FindField(value, idField)
			if frag.ID != "" {
				if seen[frag.ID] {
					pos = end
					continue
				}
				seen[frag.ID] = true
			}
		}

		out = append(out, frag)
		pos = end
	}

	return out
}

// blockStart checks that the anchor at start is a real object key: not escaped,
// followed by a colon and then an opening bracket. Returns the bracket offset.
func blockStart(markup string, start, anchorLen int) (int, bool) {
	if start > 0 && markup[start-1] == '\\' {
		return 0, false
	}
	j := skipSpace(markup, start+anchorLen)
	if j >= len(markup) || markup[j] != ':' {
		return 0, false
	}
	j = skipSpace(markup, j+1)
	if j >= len(markup) || (markup[j] != '{' && markup[j] != '[') {
		return 0, false
	}
	return j, true
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// balancedEnd scans from the opening bracket at open and returns the offset
// just past its matching close. Brackets inside string literals are ignored.
func balancedEnd(s string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false
}

// FindField searches v breadth-first for the first occurrence of field and
// returns its value as a string. Object keys are visited in sorted order so the
// result does not depend on map iteration.
func FindField(v any, field string) string {
	queue := []any{v}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		switch node := cur.(type) {
		case map[string]any:
			if val, ok := node[field]; ok {
				if s := scalarString(val); s != "" {
					return s
				}
			}
			keys := make([]string, 0, len(node))
			for k := range node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				queue = append(queue, node[k])
			}
		case []any:
			queue = append(queue, node...)
		}
	}
	return ""
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
