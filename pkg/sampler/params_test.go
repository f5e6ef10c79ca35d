package sampler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinytool/llmcore/pkg/decoder/mock"
	"github.com/tinytool/llmcore/pkg/sampler"
)

func TestComposeGrammarCloneOwnership(t *testing.T) {
	dec := mock.New()
	canonical, err := dec.CompileGrammarStrict(`root ::= "x"`)
	require.NoError(t, err)

	chain, err := sampler.Compose(dec, canonical, sampler.Params{Temperature: 0.8, TopK: 40, TopP: 0.95, MinP: 0.05})
	require.NoError(t, err)

	require.False(t, mock.IsFreed(canonical), "canonical grammar must never be freed by Compose")

	require.NoError(t, chain.Free())
	require.False(t, mock.IsFreed(canonical), "canonical grammar must survive its chain's clone being freed")

	require.NoError(t, canonical.Free())
}

func TestComposeMirostatShortCircuits(t *testing.T) {
	dec := mock.New()
	chain, err := sampler.Compose(dec, nil, sampler.Params{MirostatMode: 2, MirostatTau: 5, MirostatEta: 0.1, Temperature: 0.8, TopK: 40})
	require.NoError(t, err)
	require.NoError(t, chain.Free())
}

func TestComposeSkipsNeutralStages(t *testing.T) {
	dec := mock.New()
	// temperature 0 leaves the temperature stage out; top_p >= 1 and
	// min_p <= 0 must be skipped; terminal falls back to greedy since
	// Temperature<=0.
	chain, err := sampler.Compose(dec, nil, sampler.Params{Temperature: 0, TopP: 1, MinP: 0})
	require.NoError(t, err)
	require.NoError(t, chain.Free())
}

func TestComposeNoGrammar(t *testing.T) {
	dec := mock.New()
	chain, err := sampler.Compose(dec, nil, sampler.Params{Temperature: 0.8})
	require.NoError(t, err)
	require.NoError(t, chain.Free())
}
