package toolcall

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvariantCollectingImpliesDepth(t *testing.T) {
	d := New()
	require.False(t, d.Collecting())
	require.Equal(t, 0, d.Depth())
	require.Empty(t, d.Buffered())

	d.Accumulate([]byte(`prefix text {"a":1`))
	require.True(t, d.Collecting())
	require.GreaterOrEqual(t, d.Depth(), 1)
}

func TestDetectorRoundTrip(t *testing.T) {
	s := []byte(`noise before { "tool_calls" : [ { "name" : "get_weather", "arguments" : { "location" : "London" } } ] } trailing`)
	// The first top-level object begins at the first '{'.
	firstBrace := 0
	for i, b := range s {
		if b == '{' {
			firstBrace = i
			break
		}
	}

	d := New()
	var complete bool
	for i := range s {
		complete = d.Accumulate(s[i : i+1])
		if complete {
			// Stop at completion; where the object ends in s is computed
			// independently below.
			_ = i
			break
		}
	}
	require.True(t, complete)

	// Reconstruct O from the source manually for comparison: the object
	// spans from firstBrace to the first point where braces balance.
	depth := 0
	inString := false
	escaped := false
	end := -1
	for i := firstBrace; i < len(s); i++ {
		b := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if b == '\\' {
				escaped = true
			} else if b == '"' {
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}
	require.NotEqual(t, -1, end)
	require.Equal(t, string(s[firstBrace:end]), string(d.Buffered()))
}

func TestEmbeddedBracesInString(t *testing.T) {
	s := []byte(`{"tool_calls":[{"name":"echo","arguments":{"text":"{not a brace}"}}]}`)
	d := New()
	var complete bool
	for i := range s {
		if d.Accumulate(s[i : i+1]) {
			complete = true
		}
	}
	require.True(t, complete)
	require.Equal(t, string(s), string(d.Buffered()))

	call, ok := d.Extract()
	require.True(t, ok)
	require.Equal(t, "echo", call.Name)
	require.Equal(t, string(s), call.Payload)
}

func TestBareCallWrapping(t *testing.T) {
	s := []byte(`{"name":"get_weather","arguments":{"location":"London"}}`)
	d := New()
	d.Accumulate(s)
	require.False(t, d.Collecting())

	call, ok := d.Extract()
	require.True(t, ok)
	require.Equal(t, "get_weather", call.Name)
	require.Equal(t, `{"tool_calls":[{"name":"get_weather","arguments":{"location":"London"}}]}`, call.Payload)
}

func TestExtractMissingNameDefaultsToTool(t *testing.T) {
	s := []byte(`{"tool_calls":[{"arguments":{"x":1}}]}`)
	d := New()
	d.Accumulate(s)

	call, ok := d.Extract()
	require.True(t, ok)
	require.Equal(t, "tool", call.Name)
}

func TestExtractFailsWithoutCallPattern(t *testing.T) {
	s := []byte(`{"hello":"world"}`)
	d := New()
	d.Accumulate(s)

	_, ok := d.Extract()
	require.False(t, ok)
}

func TestResetRestoresIdleInvariant(t *testing.T) {
	d := New()
	d.Accumulate([]byte(`{"name":"t","arguments":{}}`))
	require.NotEmpty(t, d.Buffered())

	d.Reset()
	require.False(t, d.Collecting())
	require.Equal(t, 0, d.Depth())
	require.Empty(t, d.Buffered())
}

func TestAccumulateAcrossMultipleChunks(t *testing.T) {
	d := New()
	require.False(t, d.Accumulate([]byte(`{"tool_calls":[{"name":"a`)))
	require.False(t, d.Accumulate([]byte(`","arguments":{}`)))
	require.True(t, d.Accumulate([]byte(`}]}`)))
}
