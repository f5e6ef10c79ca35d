package toolcall

import "fmt"

// ToolCall is the result of a successful Extract: the tool name (best
// effort; "tool" if none could be located) and the canonical payload ready
// for delivery to the caller.
type ToolCall struct {
	Name string
	// Payload is the canonical envelope: {"tool_calls":[{"name":...,
	// "arguments":...}, ...]}. Bare {"name":...,"arguments":...} objects
	// are wrapped into this shape before being returned here, so every
	// downstream consumer sees a uniform structure regardless of which
	// form the model emitted.
	Payload string
}

// Extract inspects the detector's completed buffer and, if it matches a
// tool-call pattern, returns the canonicalised call. It does not reset the
// detector -- callers should call Reset once they are done with Buffered
// and the returned ToolCall.
//
// A completed object qualifies as a tool call iff it has a top-level
// "tool_calls" key (emitted as-is) or both top-level "name" and
// "arguments" keys (wrapped into the tool_calls envelope, grounded on the
// bare-call heuristic fallback used for models that emit JSON without a
// tool_calls wrapper). Anything else fails extraction.
func (d *Detector) Extract() (ToolCall, bool) {
	obj := d.buf
	if len(obj) == 0 || obj[0] != '{' {
		return ToolCall{}, false
	}

	members, err := topLevelMembers(obj)
	if err != nil {
		return ToolCall{}, false
	}

	has := func(key string) bool {
		for _, m := range members {
			if m.key == key {
				return true
			}
		}
		return false
	}

	var payload string
	switch {
	case has("tool_calls"):
		payload = string(obj)
	case has("name") && has("arguments"):
		payload = fmt.Sprintf(`{"tool_calls":[%s]}`, string(obj))
	default:
		return ToolCall{}, false
	}

	name := firstNameValue(obj)
	if name == "" {
		name = "tool"
	}
	return ToolCall{Name: name, Payload: payload}, true
}

// firstNameValue scans obj for the first "name" key (at any depth,
// matching spec's "locate the first name key following its colon" rule
// rather than a structural top-level-only search, since in the tool_calls
// envelope the name lives nested inside the calls array) and returns its
// quoted string value, or "" if none is found or it is malformed.
func firstNameValue(obj []byte) string {
	const key = `"name"`
	for i := 0; i+len(key) <= len(obj); i++ {
		if string(obj[i:i+len(key)]) != key {
			continue
		}
		j := skipWS(obj, i+len(key))
		if j >= len(obj) || obj[j] != ':' {
			continue
		}
		j = skipWS(obj, j+1)
		if j >= len(obj) || obj[j] != '"' {
			continue
		}
		value, _, err := extractQuotedString(obj, j)
		if err != nil {
			continue
		}
		return value
	}
	return ""
}
