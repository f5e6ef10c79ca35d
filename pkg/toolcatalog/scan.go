package toolcatalog

import (
	"encoding/json"
	"fmt"
)

// skipWS advances i past ASCII JSON whitespace.
func skipWS(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// extractString reads a double-quoted JSON string starting at b[i] == '"'.
// It returns the decoded value and the index just past the closing quote.
func extractString(b []byte, i int) (string, int, error) {
	if i >= len(b) || b[i] != '"' {
		return "", i, fmt.Errorf("toolcatalog: expected '\"' at offset %d", i)
	}
	start := i
	i++
	for i < len(b) {
		switch b[i] {
		case '\\':
			i += 2
			continue
		case '"':
			raw := b[start : i+1]
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return "", i, fmt.Errorf("toolcatalog: malformed string literal: %w", err)
			}
			return s, i + 1, nil
		default:
			i++
		}
	}
	return "", i, fmt.Errorf("toolcatalog: unterminated string starting at offset %d", start)
}

// findBalanced returns the index just past the closing '}' or ']' matching
// the opening bracket at b[i], skipping over string literals.
func findBalanced(b []byte, i int) (int, error) {
	if i >= len(b) {
		return i, fmt.Errorf("toolcatalog: offset %d out of range", i)
	}
	open := b[i]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return i, fmt.Errorf("toolcatalog: expected '{' or '[' at offset %d", i)
	}
	depth := 0
	for i < len(b) {
		switch b[i] {
		case '"':
			_, next, err := extractString(b, i)
			if err != nil {
				return i, err
			}
			i = next
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
		i++
	}
	return i, fmt.Errorf("toolcatalog: unbalanced %q starting at offset %d", string(open), int(i))
}

// scanValue returns the raw byte span of the JSON value starting at b[i],
// and the index just past it. Handles objects, arrays, strings, and bare
// literals (numbers, true, false, null).
func scanValue(b []byte, i int) ([]byte, int, error) {
	i = skipWS(b, i)
	if i >= len(b) {
		return nil, i, fmt.Errorf("toolcatalog: unexpected end of input at offset %d", i)
	}
	switch b[i] {
	case '{', '[':
		end, err := findBalanced(b, i)
		if err != nil {
			return nil, i, err
		}
		return b[i:end], end, nil
	case '"':
		_, end, err := extractString(b, i)
		if err != nil {
			return nil, i, err
		}
		return b[i:end], end, nil
	default:
		start := i
		for i < len(b) && b[i] != ',' && b[i] != '}' && b[i] != ']' && b[i] != ' ' && b[i] != '\t' && b[i] != '\n' && b[i] != '\r' {
			i++
		}
		if i == start {
			return nil, i, fmt.Errorf("toolcatalog: empty value at offset %d", i)
		}
		return b[start:i], i, nil
	}
}

// member is one key/value pair of a direct (non-nested) object scan.
type member struct {
	key   string
	value []byte
}

// objectMembers walks the direct members of obj, which must span a single
// balanced object (obj[0] == '{', obj[len(obj)-1] == '}'). Nested structures
// are not descended into.
func objectMembers(obj []byte) ([]member, error) {
	if len(obj) == 0 || obj[0] != '{' {
		return nil, fmt.Errorf("toolcatalog: not an object")
	}
	var members []member
	i := skipWS(obj, 1)
	if i < len(obj) && obj[i] == '}' {
		return members, nil
	}
	for {
		if i >= len(obj) || obj[i] != '"' {
			return nil, fmt.Errorf("toolcatalog: expected key at offset %d", i)
		}
		key, next, err := extractString(obj, i)
		if err != nil {
			return nil, err
		}
		i = skipWS(obj, next)
		if i >= len(obj) || obj[i] != ':' {
			return nil, fmt.Errorf("toolcatalog: expected ':' after key %q", key)
		}
		i = skipWS(obj, i+1)
		value, next, err := scanValue(obj, i)
		if err != nil {
			return nil, err
		}
		members = append(members, member{key: key, value: value})
		i = skipWS(obj, next)
		if i >= len(obj) {
			return nil, fmt.Errorf("toolcatalog: unterminated object")
		}
		if obj[i] == ',' {
			i = skipWS(obj, i+1)
			continue
		}
		if obj[i] == '}' {
			return members, nil
		}
		return nil, fmt.Errorf("toolcatalog: unexpected byte %q at offset %d", obj[i], i)
	}
}

// arrayElements walks the direct elements of arr, which must span a single
// balanced array (arr[0] == '[', arr[len(arr)-1] == ']').
func arrayElements(arr []byte) ([][]byte, error) {
	if len(arr) == 0 || arr[0] != '[' {
		return nil, fmt.Errorf("toolcatalog: not an array")
	}
	var elems [][]byte
	i := skipWS(arr, 1)
	if i < len(arr) && arr[i] == ']' {
		return elems, nil
	}
	for {
		value, next, err := scanValue(arr, i)
		if err != nil {
			return nil, err
		}
		elems = append(elems, value)
		i = skipWS(arr, next)
		if i >= len(arr) {
			return nil, fmt.Errorf("toolcatalog: unterminated array")
		}
		if arr[i] == ',' {
			i = skipWS(arr, i+1)
			continue
		}
		if arr[i] == ']' {
			return elems, nil
		}
		return nil, fmt.Errorf("toolcatalog: unexpected byte %q at offset %d", arr[i], i)
	}
}

// findMember returns the raw value bytes for key among obj's direct members.
func findMember(obj []byte, key string) ([]byte, bool) {
	members, err := objectMembers(obj)
	if err != nil {
		return nil, false
	}
	for _, m := range members {
		if m.key == key {
			return m.value, true
		}
	}
	return nil, false
}

// stringArray decodes a JSON array of strings, skipping elements that are
// not quoted strings.
func stringArray(arr []byte) ([]string, error) {
	elems, err := arrayElements(arr)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if len(e) == 0 || e[0] != '"' {
			continue
		}
		s, _, err := extractString(e, 0)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
