package stopstring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScannerPassesCleanTextThrough(t *testing.T) {
	s := NewScanner()
	emit, stop := s.Push("Hello, Sam.")
	require.False(t, stop)
	// The holdback window retains up to maxLen-1 bytes in case a stop
	// string is still arriving; flush to get the rest.
	emit += s.Flush()
	require.Equal(t, "Hello, Sam.", emit)
}

func TestScannerDetectsFixedSafetyNetStop(t *testing.T) {
	s := NewScanner()
	emit, stop := s.Push("reply text\nUser: next question")
	require.True(t, stop)
	require.Equal(t, "reply text", emit)
	require.Equal(t, "\nUser:", s.Matched())
}

func TestScannerDetectsTemplateDerivedStop(t *testing.T) {
	s := NewScanner("<end_of_turn>")
	emit, stop := s.Push("the answer is 4<end_of_turn>ignored")
	require.True(t, stop)
	require.Equal(t, "the answer is 4", emit)
}

func TestScannerSplitAcrossPushes(t *testing.T) {
	s := NewScanner("<|im_end|>")
	e1, stop1 := s.Push("done<|im_")
	require.False(t, stop1)
	e2, stop2 := s.Push("end|>trailer")
	require.True(t, stop2)
	require.Equal(t, "done", e1+e2)
}

func TestScannerOnceStoppedStaysStopped(t *testing.T) {
	s := NewScanner()
	s.Push("x\nUser: y")
	emit, stop := s.Push("more text")
	require.True(t, stop)
	require.Equal(t, "", emit)
}
