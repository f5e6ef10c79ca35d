// Package toolcatalog parses an OpenAI-style tool-calling function array into
// an ordered, typed catalog without pulling in a general JSON library: the
// payload is scanned byte-wise, mirroring the repair scanner in
// pkg/jsonparser, because the wire format must be accepted even when a
// caller supplies a one-level double-wrapped variant.
package toolcatalog

import "fmt"

// Parameter describes one entry of a tool's arguments object.
type Parameter struct {
	Name string
	// Type is preserved verbatim from the wire payload. Unknown values are
	// not rejected here -- pkg/grammar maps anything outside the known set
	// to a generic JSON value rule.
	Type string
	Enum []string
}

// Tool is one parsed, normalised entry of a tool catalog.
type Tool struct {
	Name        string
	Description string
	// Parameters preserves declaration order; grammar synthesis depends on
	// it, so this is a slice rather than a map.
	Parameters []Parameter
	// Required holds the subset of Parameters' names that are required.
	// Declaration order within Required is not meaningful.
	Required []string
}

// RequiredParameters returns Parameters whose name is in Required, in
// declaration order.
func (t Tool) RequiredParameters() []Parameter {
	req := make(map[string]bool, len(t.Required))
	for _, r := range t.Required {
		req[r] = true
	}
	var out []Parameter
	for _, p := range t.Parameters {
		if req[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

// OptionalParameters returns Parameters not in Required, in declaration
// order.
func (t Tool) OptionalParameters() []Parameter {
	req := make(map[string]bool, len(t.Required))
	for _, r := range t.Required {
		req[r] = true
	}
	var out []Parameter
	for _, p := range t.Parameters {
		if !req[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

// Catalog is an ordered list of parsed tools.
type Catalog []Tool

// Names returns the declared tool names in order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, t := range c {
		names[i] = t.Name
	}
	return names
}

// ParseError records a tool entry that failed to parse. The offending entry
// is dropped; parsing continues with the remaining entries per spec's
// per-tool failure isolation.
type ParseError struct {
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("toolcatalog: entry %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse scans payload -- a JSON array of
// {"type":"function","function":{...}} entries, tolerating one level of
// extra "function" wrapping -- into a Catalog. Entries that fail to parse
// are skipped and reported as ParseErrors; if every entry fails, Parse
// returns an empty Catalog rather than an error, signalling "no typed
// grammar" to the caller.
func Parse(payload []byte) (Catalog, []error) {
	i := skipWS(payload, 0)
	if i >= len(payload) || payload[i] != '[' {
		return nil, []error{fmt.Errorf("toolcatalog: payload is not a JSON array")}
	}
	end, err := findBalanced(payload, i)
	if err != nil {
		return nil, []error{fmt.Errorf("toolcatalog: %w", err)}
	}
	elems, err := arrayElements(payload[i:end])
	if err != nil {
		return nil, []error{fmt.Errorf("toolcatalog: %w", err)}
	}

	var catalog Catalog
	var errs []error
	for idx, elem := range elems {
		tool, err := parseEntry(elem)
		if err != nil {
			errs = append(errs, &ParseError{Index: idx, Err: err})
			continue
		}
		catalog = append(catalog, tool)
	}
	return catalog, errs
}

// normalizeEntry implements the one-level double-wrap tolerance from spec:
// {"function":{"type":"function","function":{...}}} normalises to the
// inner {"type":"function","function":{...}} object. Applying normalizeEntry
// twice is equivalent to applying it once, since the unwrapped result's
// "function" member no longer itself contains a nested "function" key.
func normalizeEntry(obj []byte) []byte {
	fn, ok := findMember(obj, "function")
	if !ok || len(fn) == 0 || fn[0] != '{' {
		return obj
	}
	if _, doublyWrapped := findMember(fn, "function"); doublyWrapped {
		return fn
	}
	return obj
}

func parseEntry(entry []byte) (Tool, error) {
	entry = normalizeEntry(entry)

	fn, ok := findMember(entry, "function")
	if !ok {
		return Tool{}, fmt.Errorf("missing \"function\" key")
	}
	if len(fn) == 0 || fn[0] != '{' {
		return Tool{}, fmt.Errorf("\"function\" is not an object")
	}

	nameVal, ok := findMember(fn, "name")
	if !ok {
		return Tool{}, fmt.Errorf("missing \"name\" key")
	}
	name, _, err := extractString(nameVal, 0)
	if err != nil {
		return Tool{}, fmt.Errorf("malformed \"name\": %w", err)
	}
	if name == "" {
		return Tool{}, fmt.Errorf("empty tool name")
	}

	description := ""
	if descVal, ok := findMember(fn, "description"); ok && len(descVal) > 0 && descVal[0] == '"' {
		description, _, _ = extractString(descVal, 0)
	}

	var params []Parameter
	var required []string
	if paramsVal, ok := findMember(fn, "parameters"); ok && len(paramsVal) > 0 && paramsVal[0] == '{' {
		if propsVal, ok := findMember(paramsVal, "properties"); ok && len(propsVal) > 0 && propsVal[0] == '{' {
			members, err := objectMembers(propsVal)
			if err != nil {
				return Tool{}, fmt.Errorf("malformed \"properties\": %w", err)
			}
			for _, m := range members {
				p, err := parseParameter(m.key, m.value)
				if err != nil {
					// A malformed individual parameter does not sink the
					// whole tool; drop it and keep the rest.
					continue
				}
				params = append(params, p)
			}
		}
		if reqVal, ok := findMember(paramsVal, "required"); ok && len(reqVal) > 0 && reqVal[0] == '[' {
			required, _ = stringArray(reqVal)
		}
	}

	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}
	var filteredRequired []string
	for _, r := range required {
		if declared[r] {
			filteredRequired = append(filteredRequired, r)
		}
	}

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  params,
		Required:    filteredRequired,
	}, nil
}

func parseParameter(name string, schema []byte) (Parameter, error) {
	if len(schema) == 0 || schema[0] != '{' {
		return Parameter{}, fmt.Errorf("parameter %q schema is not an object", name)
	}
	typ := "string"
	if typVal, ok := findMember(schema, "type"); ok && len(typVal) > 0 && typVal[0] == '"' {
		if t, _, err := extractString(typVal, 0); err == nil {
			typ = t
		}
	}
	var enum []string
	if enumVal, ok := findMember(schema, "enum"); ok && len(enumVal) > 0 && enumVal[0] == '[' {
		enum, _ = stringArray(enumVal)
	}
	return Parameter{Name: name, Type: typ, Enum: enum}, nil
}
