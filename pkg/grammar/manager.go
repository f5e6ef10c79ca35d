package grammar

import (
	"fmt"
	"sync"

	"github.com/tinytool/llmcore/pkg/decoder"
	"github.com/tinytool/llmcore/pkg/sampler"
	"github.com/tinytool/llmcore/pkg/toolcatalog"
)

// trigger is the LAZY-mode activation literal: the grammar stays dormant
// until the detector's own opening brace appears in emitted text.
const trigger = `\{`

// Manager holds at most one canonical compiled grammar and rebuilds it only
// when the tool catalog text changes, per spec.md's grammar lifecycle
// contract. It is safe for concurrent use; callers still serialise turns
// through the orchestrator's session gate.
type Manager struct {
	mu sync.Mutex

	dec           decoder.Decoder
	preferredMode decoder.GrammarMode

	hasBuilt   bool
	invalidated bool
	cachedText string

	canonical  decoder.Grammar
	activeMode decoder.GrammarMode
}

// NewManager constructs a Manager that compiles in preferredMode first on
// each rebuild, falling back to the other mode if compilation fails there.
func NewManager(dec decoder.Decoder, preferredMode decoder.GrammarMode) *Manager {
	return &Manager{dec: dec, preferredMode: preferredMode}
}

// Invalidate forces the next UpdateIfNeeded call to rebuild even if the
// catalog text is unchanged.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = true
}

// Active reports the canonical grammar handle, or nil if no constraint is
// currently active (never built, built from an empty catalog, or every
// compilation attempt failed).
func (m *Manager) Active() decoder.Grammar {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canonical
}

// Close frees the canonical grammar, if any. Call once, when tool calling
// is disabled or the catalog is retired.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canonical == nil {
		return nil
	}
	err := m.canonical.Free()
	m.canonical = nil
	return err
}

// UpdateIfNeeded rebuilds the canonical grammar iff catalogText differs
// byte-for-byte from the cached copy or Invalidate has been called since
// the last build; otherwise it is a no-op. catalogText is an opaque,
// caller-supplied fingerprint of the normalised catalog (e.g. its
// canonical JSON serialisation) used only for change detection.
//
// Compilation failures are never returned as hard errors: per spec.md
// §4.3 and §7, a grammar-build failure is demoted to a warning and tool
// calling proceeds without a grammar constraint. Catalog text is cached
// regardless of build outcome to avoid retry storms on a catalog that
// will never compile.
func (m *Manager) UpdateIfNeeded(tools toolcatalog.Catalog, catalogText string) (rebuilt bool, warning error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasBuilt && !m.invalidated && catalogText == m.cachedText {
		return false, nil
	}

	if m.canonical != nil {
		m.canonical.Free()
		m.canonical = nil
	}

	warning = m.rebuildLocked(tools)
	m.cachedText = catalogText
	m.hasBuilt = true
	m.invalidated = false
	return true, warning
}

func (m *Manager) rebuildLocked(tools toolcatalog.Catalog) error {
	if len(tools) == 0 {
		// No catalog (tool calling never enabled, or disabled): no constraint.
		return nil
	}
	typed := Synthesize(tools)
	generic := SynthesizeFallback(tools.Names())

	altMode := decoder.ModeStrict
	if m.preferredMode == decoder.ModeStrict {
		altMode = decoder.ModeLazy
	}

	type attempt struct {
		mode decoder.GrammarMode
		text string
	}
	var attempts []attempt
	for _, mode := range []decoder.GrammarMode{m.preferredMode, altMode} {
		if typed != "" {
			attempts = append(attempts, attempt{mode, typed})
		}
		attempts = append(attempts, attempt{mode, generic})
	}

	var lastErr error
	for _, a := range attempts {
		g, err := m.compile(a.mode, a.text)
		if err != nil {
			lastErr = err
			continue
		}
		m.canonical = g
		m.activeMode = a.mode
		return nil
	}
	return fmt.Errorf("grammar: all %d compilation attempts failed, proceeding unconstrained: %w", len(attempts), lastErr)
}

func (m *Manager) compile(mode decoder.GrammarMode, text string) (decoder.Grammar, error) {
	if mode == decoder.ModeLazy {
		return m.dec.CompileGrammarLazy(text, trigger)
	}
	return m.dec.CompileGrammarStrict(text)
}

// ComposeChain returns an owned sampler chain for one generation round,
// prefixed with a clone of the canonical grammar if one is active. The
// canonical instance itself is never attached -- only the clone is, and the
// chain owns and frees that clone when it is itself freed.
func (m *Manager) ComposeChain(params sampler.Params) (decoder.Chain, error) {
	m.mu.Lock()
	canonical := m.canonical
	m.mu.Unlock()
	return sampler.Compose(m.dec, canonical, params)
}

// ResetGrammar clears the canonical constraint's streaming activation
// state (e.g. whether a LAZY grammar has seen its trigger) between turns,
// without recompiling.
func (m *Manager) ResetGrammar() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canonical == nil {
		return nil
	}
	return m.canonical.Reset()
}
