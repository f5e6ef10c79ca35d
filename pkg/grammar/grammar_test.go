package grammar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinytool/llmcore/pkg/toolcatalog"
)

func TestSynthesizeEmptyCatalogSignalsFallback(t *testing.T) {
	require.Equal(t, "", Synthesize(nil))
}

func TestSynthesizeZeroParamTool(t *testing.T) {
	tools := toolcatalog.Catalog{{Name: "ping"}}
	g := Synthesize(tools)
	require.Contains(t, g, `args_ping ::= "{" ws "}"`)
	require.Contains(t, g, `call ::= call_ping`)
}

func TestSynthesizeOneRequiredParam(t *testing.T) {
	tools := toolcatalog.Catalog{{
		Name:       "get_weather",
		Parameters: []toolcatalog.Parameter{{Name: "location", Type: "string"}},
		Required:   []string{"location"},
	}}
	g := Synthesize(tools)
	require.Contains(t, g, `args_get_weather ::= "{" ws kv_get_weather_location ws "}"`)
	require.Contains(t, g, `kv_get_weather_location ::= "\"location\"" ws ":" ws string`)
}

func TestSynthesizeOptionalOnlyPrefixes(t *testing.T) {
	tools := toolcatalog.Catalog{{
		Name: "search",
		Parameters: []toolcatalog.Parameter{
			{Name: "query", Type: "string"},
			{Name: "limit", Type: "integer"},
		},
	}}
	g := Synthesize(tools)
	require.Contains(t, g, `args_search ::= "{" ws (opt_search_0)? ws "}"`)
	require.Contains(t, g, `opt_search_0 ::= kv_search_query (ws "," ws opt_search_1)?`)
	require.Contains(t, g, `opt_search_1 ::= kv_search_limit`)
}

func TestSynthesizeRequiredPlusOptional(t *testing.T) {
	tools := toolcatalog.Catalog{{
		Name: "search",
		Parameters: []toolcatalog.Parameter{
			{Name: "query", Type: "string"},
			{Name: "limit", Type: "integer"},
		},
		Required: []string{"query"},
	}}
	g := Synthesize(tools)
	require.Contains(t, g, `args_search ::= "{" ws kv_search_query (ws "," ws opt_search_0)? ws "}"`)
	require.Contains(t, g, `opt_search_0 ::= kv_search_limit`)
}

func TestSynthesizeEnumParam(t *testing.T) {
	tools := toolcatalog.Catalog{{
		Name:       "get_weather",
		Parameters: []toolcatalog.Parameter{{Name: "units", Type: "string", Enum: []string{"celsius", "fahrenheit"}}},
		Required:   []string{"units"},
	}}
	g := Synthesize(tools)
	require.Contains(t, g, `enum_get_weather_units ::= "\"celsius\"" | "\"fahrenheit\""`)
	require.Contains(t, g, `kv_get_weather_units ::= "\"units\"" ws ":" ws enum_get_weather_units`)
}

func TestSynthesizeUnknownTypeFallsBackToGenericValue(t *testing.T) {
	tools := toolcatalog.Catalog{{
		Name:       "t",
		Parameters: []toolcatalog.Parameter{{Name: "x", Type: "weird"}},
		Required:   []string{"x"},
	}}
	g := Synthesize(tools)
	require.Contains(t, g, `kv_t_x ::= "\"x\"" ws ":" ws value`)
}

func TestSynthesizeMultipleToolsDisjunction(t *testing.T) {
	tools := toolcatalog.Catalog{{Name: "a"}, {Name: "b"}}
	g := Synthesize(tools)
	require.True(t, strings.Contains(g, `call ::= call_a | call_b`))
}

func TestSynthesizeFallbackNamesEnvelope(t *testing.T) {
	g := SynthesizeFallback([]string{"get_weather", "search"})
	require.Contains(t, g, `name ::= "\"get_weather\"" | "\"search\""`)
	require.Contains(t, g, `"\"arguments\"" ws ":" ws object`)
}

func TestSynthesizeFallbackNoNames(t *testing.T) {
	g := SynthesizeFallback(nil)
	require.Contains(t, g, "name ::= string")
}

func TestRootAcceptsEnvelopeShape(t *testing.T) {
	tools := toolcatalog.Catalog{{Name: "t"}}
	g := Synthesize(tools)
	require.Contains(t, g, `toolcall ::= "{" ws "\"tool_calls\"" ws ":" ws "[" ws call ws "]" ws "}"`)
}
