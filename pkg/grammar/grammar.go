// Package grammar synthesizes GBNF text from a parsed tool catalog and
// manages the lifecycle of the compiled constraint built from it. Rule
// emission is structured as one function per target shape -- per-tool call
// rule, per-parameter value rule -- emitting one grammar alternative per
// tool.
package grammar

import (
	"fmt"
	"strings"

	"github.com/tinytool/llmcore/pkg/toolcatalog"
)

const commonTerminals = `ws ::= [ \t\n\r]*
string ::= "\"" ( [^"\\] | "\\" . )* "\""
number ::= "-"? ("0" | [1-9] [0-9]*) ("." [0-9]+)? ([eE] [+-]? [0-9]+)?
boolean ::= "true" | "false"
object ::= "{" ws (member (ws "," ws member)*)? ws "}"
member ::= string ws ":" ws value
array ::= "[" ws (value (ws "," ws value)*)? ws "]"
value ::= string | number | object | array | boolean | "null"
`

// Synthesize produces GBNF text enforcing the tool_calls envelope and each
// tool's typed argument schema. It returns "" if tools is empty, signalling
// that the caller should fall back to SynthesizeFallback.
func Synthesize(tools toolcatalog.Catalog) string {
	if len(tools) == 0 {
		return ""
	}

	var callAlts []string
	var body strings.Builder

	for _, tool := range tools {
		callRule := "call_" + tool.Name
		argsRule := "args_" + tool.Name
		callAlts = append(callAlts, callRule)

		fmt.Fprintf(&body, "%s ::= \"{\" ws \"\\\"name\\\"\" ws \":\" ws \"\\\"%s\\\"\" ws \",\" ws \"\\\"arguments\\\"\" ws \":\" ws %s ws \"}\"\n",
			callRule, tool.Name, argsRule)

		writeArgsRule(&body, tool)
	}

	var root strings.Builder
	root.WriteString("root ::= ws toolcall ws\n")
	root.WriteString("toolcall ::= \"{\" ws \"\\\"tool_calls\\\"\" ws \":\" ws \"[\" ws call ws \"]\" ws \"}\"\n")
	fmt.Fprintf(&root, "call ::= %s\n", strings.Join(callAlts, " | "))
	root.WriteString(body.String())
	root.WriteString(commonTerminals)
	return root.String()
}

// writeArgsRule emits args_<tool> and every kv_/enum_ rule it references,
// following the ordering and grouping rules: required parameters form a
// fixed, comma-separated prefix; optional parameters form a nested group
// admitting any declaration-order prefix, each inner member preceded by its
// own comma.
func writeArgsRule(body *strings.Builder, tool toolcatalog.Tool) {
	argsRule := "args_" + tool.Name
	required := tool.RequiredParameters()
	optional := tool.OptionalParameters()

	if len(required) == 0 && len(optional) == 0 {
		fmt.Fprintf(body, "%s ::= \"{\" ws \"}\"\n", argsRule)
		return
	}

	var requiredKVs []string
	for _, p := range required {
		kv := kvRuleName(tool.Name, p.Name)
		requiredKVs = append(requiredKVs, kv)
		writeKVRule(body, tool.Name, p)
	}

	if len(optional) == 0 {
		fmt.Fprintf(body, "%s ::= \"{\" ws %s ws \"}\"\n", argsRule, strings.Join(requiredKVs, " ws \",\" ws "))
		return
	}

	optGroupRoot := writeOptionalGroup(body, tool.Name, optional)

	if len(required) == 0 {
		fmt.Fprintf(body, "%s ::= \"{\" ws (%s)? ws \"}\"\n", argsRule, optGroupRoot)
		return
	}

	fmt.Fprintf(body, "%s ::= \"{\" ws %s (ws \",\" ws %s)? ws \"}\"\n",
		argsRule, strings.Join(requiredKVs, " ws \",\" ws "), optGroupRoot)
}

// writeOptionalGroup emits the nested-optional rule chain opt_<tool>_<k>
// for k = len(params)-1 down to 0, where opt_<tool>_0 accepts any
// declaration-order, non-empty prefix of params. It returns the name of the
// outermost (index 0) rule.
func writeOptionalGroup(body *strings.Builder, toolName string, params []toolcatalog.Parameter) string {
	n := len(params)
	ruleNames := make([]string, n)
	for i := range params {
		ruleNames[i] = fmt.Sprintf("opt_%s_%d", toolName, i)
	}
	for i := n - 1; i >= 0; i-- {
		kv := kvRuleName(toolName, params[i].Name)
		writeKVRule(body, toolName, params[i])
		if i == n-1 {
			fmt.Fprintf(body, "%s ::= %s\n", ruleNames[i], kv)
		} else {
			fmt.Fprintf(body, "%s ::= %s (ws \",\" ws %s)?\n", ruleNames[i], kv, ruleNames[i+1])
		}
	}
	return ruleNames[0]
}

func kvRuleName(toolName, paramName string) string {
	return fmt.Sprintf("kv_%s_%s", toolName, paramName)
}

func writeKVRule(body *strings.Builder, toolName string, p toolcatalog.Parameter) {
	valueRef := writeValueRule(body, toolName, p)
	fmt.Fprintf(body, "%s ::= \"\\\"%s\\\"\" ws \":\" ws %s\n", kvRuleName(toolName, p.Name), p.Name, valueRef)
}

// writeValueRule emits an enum_<tool>_<param> rule if p has enum
// alternatives, and returns the grammar reference to use as this
// parameter's value rule.
func writeValueRule(body *strings.Builder, toolName string, p toolcatalog.Parameter) string {
	if len(p.Enum) > 0 {
		ruleName := fmt.Sprintf("enum_%s_%s", toolName, p.Name)
		var alts []string
		for _, e := range p.Enum {
			alts = append(alts, fmt.Sprintf("\"\\\"%s\\\"\"", e))
		}
		fmt.Fprintf(body, "%s ::= %s\n", ruleName, strings.Join(alts, " | "))
		return ruleName
	}
	switch p.Type {
	case "string":
		return "string"
	case "number", "integer":
		return "number"
	case "boolean":
		return "boolean"
	case "object":
		return "object"
	case "array":
		return "array"
	default:
		return "value"
	}
}

// SynthesizeFallback produces the generic envelope grammar: it enforces the
// tool_calls shape and that "name" is one of names, but leaves "arguments"
// as an opaque JSON object.
func SynthesizeFallback(names []string) string {
	var root strings.Builder
	root.WriteString("root ::= ws toolcall ws\n")
	root.WriteString("toolcall ::= \"{\" ws \"\\\"tool_calls\\\"\" ws \":\" ws \"[\" ws call ws \"]\" ws \"}\"\n")
	root.WriteString("call ::= \"{\" ws \"\\\"name\\\"\" ws \":\" ws name ws \",\" ws \"\\\"arguments\\\"\" ws \":\" ws object ws \"}\"\n")

	var alts []string
	for _, n := range names {
		alts = append(alts, fmt.Sprintf("\"\\\"%s\\\"\"", n))
	}
	if len(alts) == 0 {
		alts = []string{"string"}
	}
	fmt.Fprintf(&root, "name ::= %s\n", strings.Join(alts, " | "))
	root.WriteString(commonTerminals)
	return root.String()
}
