// Package decoder defines the interface this module consumes from the
// underlying neural decoder library: tokenization, batched decode, sampler
// primitives, grammar compilation, chat-template application, KV-cache
// control, and state persistence. The decoder's internals -- forward pass,
// logit math, model/context lifetime -- are out of scope; this package only
// describes the surface the orchestrator drives.
package decoder

import "context"

// Token is an opaque vocabulary index. Its only meaning is to the Decoder
// that produced it.
type Token int32

// ChatMessage is the decoder-facing shape of one turn, kept independent of
// pkg/chat so this package has no upward dependency on orchestration types.
type ChatMessage struct {
	Role    string
	Content string
}

// GrammarMode selects when a compiled grammar constraint becomes active.
type GrammarMode int

const (
	// ModeStrict constrains sampling from the first token.
	ModeStrict GrammarMode = iota
	// ModeLazy leaves the grammar dormant until a trigger literal is
	// observed in the emitted text, at which point it activates.
	ModeLazy
)

// Grammar is an owned handle to a compiled GBNF constraint. Handles are not
// reference-counted by the underlying library: Clone produces an
// independent handle that must itself be freed, and the original must
// outlive every clone taken from it.
type Grammar interface {
	// Clone returns a new, independently owned handle equivalent to this
	// one. The canonical instance is never attached to a sampler chain
	// directly -- only clones are.
	Clone() (Grammar, error)
	// Reset clears any streaming activation state (e.g. whether a LAZY
	// grammar has seen its trigger) without recompiling.
	Reset() error
	// Free releases the handle. Calling Free on a handle more than once,
	// or on a handle already consumed by a chain, is a caller bug.
	Free() error
}

// Sampler is one stage of a sampler chain. Chains take ownership of every
// Sampler added to them and free it when the chain is freed.
type Sampler interface {
	Free() error
}

// Chain is an ordered composition of sampler stages ending in a token
// selection. It is turn-local: created per generation round, destroyed at
// round end.
type Chain interface {
	// AddSampler appends a stage; the chain takes ownership.
	AddSampler(Sampler) error
	// Accept commits a sampled token into any stateful stages (mirostat,
	// grammar) before the next SampleNext call.
	Accept(Token) error
	// Free releases the chain and every sampler attached to it, including
	// any grammar clone.
	Free() error
}

// Decoder is the external collaborator consumed by this module.
type Decoder interface {
	// Tokenize converts text into vocabulary tokens.
	Tokenize(text string) ([]Token, error)
	// TokenToPiece renders a single token back into its UTF-8 (possibly
	// partial) byte fragment.
	TokenToPiece(t Token) ([]byte, error)
	// Decode performs a batched (prefill) decode of tokens, making their
	// logits available for subsequent sampling.
	Decode(ctx context.Context, tokens []Token) error
	// SampleNext draws the next token from the current logits through
	// chain, which must have been produced by this Decoder's
	// NewSamplerChain.
	SampleNext(ctx context.Context, chain Chain) (Token, error)
	// ClearCache discards the KV cache, so the next Decode starts from an
	// empty context.
	ClearCache() error
	// EOSToken returns the token that signals end-of-generation.
	EOSToken() Token

	// SupportsChatTemplate reports whether this model exposes a chat
	// template, gating tool-calling eligibility per the newer predicate
	// (any templated model supports tool calling).
	SupportsChatTemplate() bool
	// ApplyChatTemplate renders a multi-turn message list, including the
	// "tool" role, into the model's prompt format.
	ApplyChatTemplate(messages []ChatMessage) (string, error)

	// CompileGrammarStrict compiles text as a STRICT-mode constraint.
	CompileGrammarStrict(text string) (Grammar, error)
	// CompileGrammarLazy compiles text as a LAZY-mode constraint, dormant
	// until trigger is observed in emitted text.
	CompileGrammarLazy(text string, trigger string) (Grammar, error)

	// NewSamplerChain creates an empty, turn-local sampler chain.
	NewSamplerChain() Chain
	NewGrammarSampler(g Grammar) Sampler
	NewMirostatSampler(mode int, tau, eta float64, seed uint64) Sampler
	NewTemperatureSampler(temperature float64) Sampler
	NewTopKSampler(k int) Sampler
	NewTopPSampler(p float64) Sampler
	NewMinPSampler(p float64) Sampler
	NewDistributionSampler(seed uint64) Sampler
	NewGreedySampler() Sampler

	// SaveState serialises the opaque decoder/session state.
	SaveState() ([]byte, error)
	// LoadState restores state previously produced by SaveState.
	LoadState([]byte) error
}
