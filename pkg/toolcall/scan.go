package toolcall

import "fmt"

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

// extractQuotedString reads a double-quoted JSON string starting at
// b[i] == '"', honouring '\\' escapes, and returns its raw (still escaped)
// content together with the index just past the closing quote. Extraction
// here deliberately stays at the byte level -- this package has its own
// quoted-string-skip primitive independent of pkg/toolcatalog's, since the
// two components are specified and tested separately.
func extractQuotedString(b []byte, i int) (string, int, error) {
	if i >= len(b) || b[i] != '"' {
		return "", i, fmt.Errorf("toolcall: expected '\"' at offset %d", i)
	}
	start := i + 1
	i++
	for i < len(b) {
		switch b[i] {
		case '\\':
			i += 2
		case '"':
			return string(b[start:i]), i + 1, nil
		default:
			i++
		}
	}
	return "", i, fmt.Errorf("toolcall: unterminated string at offset %d", start)
}

type topLevelMember struct {
	key string
}

// topLevelMembers walks the direct (depth-1) members of obj, which must be
// a balanced object (obj[0] == '{', obj[len(obj)-1] == '}'), returning only
// their keys -- that is all Extract needs to classify the payload shape.
func topLevelMembers(obj []byte) ([]topLevelMember, error) {
	if len(obj) == 0 || obj[0] != '{' {
		return nil, fmt.Errorf("toolcall: not an object")
	}
	var members []topLevelMember
	i := skipWS(obj, 1)
	if i < len(obj) && obj[i] == '}' {
		return members, nil
	}
	for {
		if i >= len(obj) || obj[i] != '"' {
			return nil, fmt.Errorf("toolcall: expected key at offset %d", i)
		}
		key, next, err := extractQuotedString(obj, i)
		if err != nil {
			return nil, err
		}
		i = skipWS(obj, next)
		if i >= len(obj) || obj[i] != ':' {
			return nil, fmt.Errorf("toolcall: expected ':' after key %q", key)
		}
		i = skipWS(obj, i+1)
		end, err := skipValue(obj, i)
		if err != nil {
			return nil, err
		}
		members = append(members, topLevelMember{key: key})
		i = skipWS(obj, end)
		if i >= len(obj) {
			return nil, fmt.Errorf("toolcall: unterminated object")
		}
		if obj[i] == ',' {
			i = skipWS(obj, i+1)
			continue
		}
		if obj[i] == '}' {
			return members, nil
		}
		return nil, fmt.Errorf("toolcall: unexpected byte %q at offset %d", obj[i], i)
	}
}

// skipValue returns the index just past the JSON value starting at b[i],
// skipping nested objects/arrays and string literals wholesale without
// interpreting them -- topLevelMembers only needs member boundaries, not
// nested content.
func skipValue(b []byte, i int) (int, error) {
	i = skipWS(b, i)
	if i >= len(b) {
		return i, fmt.Errorf("toolcall: unexpected end of input")
	}
	switch b[i] {
	case '"':
		_, end, err := extractQuotedString(b, i)
		return end, err
	case '{', '[':
		open := b[i]
		close := byte('}')
		if open == '[' {
			close = ']'
		}
		depth := 0
		for i < len(b) {
			switch b[i] {
			case '"':
				_, next, err := extractQuotedString(b, i)
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
		return i, fmt.Errorf("toolcall: unbalanced value starting at offset %d", i)
	default:
		for i < len(b) && b[i] != ',' && b[i] != '}' && b[i] != ']' {
			i++
		}
		return i, nil
	}
}
