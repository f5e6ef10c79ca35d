package grammar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinytool/llmcore/pkg/decoder"
	"github.com/tinytool/llmcore/pkg/decoder/mock"
	"github.com/tinytool/llmcore/pkg/sampler"
	"github.com/tinytool/llmcore/pkg/toolcatalog"
)

func TestManagerUpdateIfNeededCachingLaw(t *testing.T) {
	dec := mock.New()
	m := NewManager(dec, decoder.ModeStrict)
	tools := toolcatalog.Catalog{{Name: "t"}}

	rebuilt, warn := m.UpdateIfNeeded(tools, "catalog-v1")
	require.True(t, rebuilt)
	require.NoError(t, warn)
	first := m.Active()
	require.NotNil(t, first)

	rebuilt, warn = m.UpdateIfNeeded(tools, "catalog-v1")
	require.False(t, rebuilt, "update_if_needed must be a no-op when catalog text is unchanged")
	require.NoError(t, warn)
	require.Equal(t, first, m.Active())

	m.Invalidate()
	rebuilt, warn = m.UpdateIfNeeded(tools, "catalog-v1")
	require.True(t, rebuilt, "explicit invalidate forces a rebuild even with unchanged text")
	require.NoError(t, warn)
}

func TestManagerRebuildsOnCatalogTextChange(t *testing.T) {
	dec := mock.New()
	m := NewManager(dec, decoder.ModeStrict)

	rebuilt, _ := m.UpdateIfNeeded(toolcatalog.Catalog{{Name: "a"}}, "v1")
	require.True(t, rebuilt)

	rebuilt, _ = m.UpdateIfNeeded(toolcatalog.Catalog{{Name: "b"}}, "v2")
	require.True(t, rebuilt)
}

func TestManagerComposeChainClonesCanonical(t *testing.T) {
	dec := mock.New()
	m := NewManager(dec, decoder.ModeStrict)
	_, warn := m.UpdateIfNeeded(toolcatalog.Catalog{{Name: "t"}}, "v1")
	require.NoError(t, warn)

	chain, err := m.ComposeChain(sampler.Params{Temperature: 0.7, TopK: 40})
	require.NoError(t, err)
	require.NoError(t, chain.Free())

	require.False(t, mock.IsFreed(m.Active()), "composing and freeing a chain must not free the canonical grammar")
	require.NoError(t, m.Close())
}

func TestManagerCachesCatalogTextEvenWhenBuildFails(t *testing.T) {
	dec := &failingCompileDecoder{Decoder: mock.New()}
	m := NewManager(dec, decoder.ModeStrict)

	rebuilt, warn := m.UpdateIfNeeded(toolcatalog.Catalog{{Name: "t"}}, "v1")
	require.True(t, rebuilt)
	require.Error(t, warn, "a fully failed build is demoted to a warning, not silence")
	require.Nil(t, m.Active())

	rebuilt, _ = m.UpdateIfNeeded(toolcatalog.Catalog{{Name: "t"}}, "v1")
	require.False(t, rebuilt, "catalog text is cached regardless of build outcome, avoiding retry storms")
}

// failingCompileDecoder wraps mock.Decoder so every grammar-compile call
// fails, exercising the manager's "leave tool calling enabled without a
// constraint" fallback path.
type failingCompileDecoder struct {
	*mock.Decoder
}

func (f *failingCompileDecoder) CompileGrammarStrict(string) (decoder.Grammar, error) {
	return nil, errAlwaysFails
}
func (f *failingCompileDecoder) CompileGrammarLazy(string, string) (decoder.Grammar, error) {
	return nil, errAlwaysFails
}

var errAlwaysFails = &compileError{}

type compileError struct{}

func (*compileError) Error() string { return "mock: compilation always fails" }
