// Package mock provides a deterministic, in-memory decoder.Decoder used by
// this module's orchestrator, grammar and sampler tests in place of a real
// on-device model, following
// the func-field-override, call-tracking pattern used for provider mocks
// in the teacher repository.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tinytool/llmcore/pkg/decoder"
)

// Round scripts one generation turn's output.
type Round struct {
	// Pieces are emitted one at a time as successive tokens. If nil, Text
	// is split into one-rune pieces automatically. Use Pieces directly to
	// exercise UTF-8 fragments that split a multi-byte rune across two
	// tokens.
	Pieces []string
	Text    string
	// DecodeErr, if set, is returned by Decode for this round instead of
	// proceeding, simulating a decode failure (context overflow, etc).
	DecodeErr error
}

func (r Round) pieces() []string {
	if r.Pieces != nil {
		return r.Pieces
	}
	return strings.Split(r.Text, "")
}

// Decoder is a scripted, deterministic decoder.Decoder.
type Decoder struct {
	mu sync.Mutex

	rounds  []Round
	roundAt int

	cursor    int
	curPieces []string

	chatTemplateSupported bool
	eos                   decoder.Token

	pieceOf   map[decoder.Token]string
	nextToken decoder.Token

	clearCacheCalls int
	decodeCalls     int
	roundTokens     []decoder.Token
	state           []byte
}

// New constructs a Decoder that plays back rounds in order: round N is
// used for the (N+1)th call to ClearCache+Decode.
func New(rounds ...Round) *Decoder {
	return &Decoder{
		rounds:                 rounds,
		chatTemplateSupported:  true,
		eos:                    -1,
		pieceOf:                map[decoder.Token]string{-1: ""},
		nextToken:              0,
	}
}

// SetChatTemplateSupported overrides the SupportsChatTemplate return value.
func (d *Decoder) SetChatTemplateSupported(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chatTemplateSupported = v
}

// ClearCacheCalls returns how many times ClearCache has been invoked.
func (d *Decoder) ClearCacheCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearCacheCalls
}

func (d *Decoder) Tokenize(text string) ([]decoder.Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	runes := strings.Split(text, "")
	tokens := make([]decoder.Token, len(runes))
	for i, r := range runes {
		tok := d.nextToken
		d.nextToken++
		d.pieceOf[tok] = r
		tokens[i] = tok
	}
	return tokens, nil
}

func (d *Decoder) TokenToPiece(t decoder.Token) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	piece, ok := d.pieceOf[t]
	if !ok {
		return nil, fmt.Errorf("mock: unknown token %d", t)
	}
	return []byte(piece), nil
}

func (d *Decoder) Decode(ctx context.Context, tokens []decoder.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decodeCalls++
	if d.roundAt >= len(d.rounds) {
		d.curPieces = nil
		d.roundTokens = nil
		d.cursor = 0
		return nil
	}
	round := d.rounds[d.roundAt]
	if round.DecodeErr != nil {
		return round.DecodeErr
	}
	pieces := round.pieces()
	d.curPieces = pieces
	d.roundTokens = make([]decoder.Token, len(pieces))
	for i, piece := range pieces {
		tok := d.nextToken
		d.nextToken++
		d.pieceOf[tok] = piece
		d.roundTokens[i] = tok
	}
	d.cursor = 0
	return nil
}

func (d *Decoder) ClearCache() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearCacheCalls++
	d.roundAt = d.clearCacheCalls - 1
	return nil
}

func (d *Decoder) EOSToken() decoder.Token { return d.eos }

func (d *Decoder) SupportsChatTemplate() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chatTemplateSupported
}

func (d *Decoder) ApplyChatTemplate(messages []decoder.ChatMessage) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "<%s>%s</%s>", m.Role, m.Content, m.Role)
	}
	return b.String(), nil
}

func (d *Decoder) CompileGrammarStrict(text string) (decoder.Grammar, error) {
	if text == "" {
		return nil, fmt.Errorf("mock: empty grammar text")
	}
	return &grammar{text: text, mode: decoder.ModeStrict}, nil
}

func (d *Decoder) CompileGrammarLazy(text string, trigger string) (decoder.Grammar, error) {
	if text == "" {
		return nil, fmt.Errorf("mock: empty grammar text")
	}
	return &grammar{text: text, mode: decoder.ModeLazy, trigger: trigger}, nil
}

func (d *Decoder) NewSamplerChain() decoder.Chain {
	return &chain{}
}

func (d *Decoder) NewGrammarSampler(g decoder.Grammar) decoder.Sampler {
	return &stage{kind: "grammar", grammar: g}
}
func (d *Decoder) NewMirostatSampler(mode int, tau, eta float64, seed uint64) decoder.Sampler {
	return &stage{kind: "mirostat"}
}
func (d *Decoder) NewTemperatureSampler(temperature float64) decoder.Sampler {
	return &stage{kind: "temperature"}
}
func (d *Decoder) NewTopKSampler(k int) decoder.Sampler { return &stage{kind: "top_k"} }
func (d *Decoder) NewTopPSampler(p float64) decoder.Sampler { return &stage{kind: "top_p"} }
func (d *Decoder) NewMinPSampler(p float64) decoder.Sampler { return &stage{kind: "min_p"} }
func (d *Decoder) NewDistributionSampler(seed uint64) decoder.Sampler {
	return &stage{kind: "distribution"}
}
func (d *Decoder) NewGreedySampler() decoder.Sampler { return &stage{kind: "greedy"} }

func (d *Decoder) SaveState() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.state))
	copy(out, d.state)
	return out, nil
}

func (d *Decoder) LoadState(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = append([]byte(nil), b...)
	return nil
}

// grammar is a scripted decoder.Grammar handle. It tracks Free calls so
// tests can assert the no-double-free invariant.
type grammar struct {
	mu      sync.Mutex
	text    string
	mode    decoder.GrammarMode
	trigger string
	freed   bool
	clones  int
}

func (g *grammar) Clone() (decoder.Grammar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.freed {
		return nil, fmt.Errorf("mock: cloning a freed grammar")
	}
	g.clones++
	return &grammar{text: g.text, mode: g.mode, trigger: g.trigger}, nil
}

func (g *grammar) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.freed {
		return fmt.Errorf("mock: resetting a freed grammar")
	}
	return nil
}

func (g *grammar) Free() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.freed {
		return fmt.Errorf("mock: double free of grammar handle")
	}
	g.freed = true
	return nil
}

// IsFreed reports whether Free has been called -- exported for invariant
// assertions in tests via the Grammar interface's concrete type.
func IsFreed(g decoder.Grammar) bool {
	gg, ok := g.(*grammar)
	if !ok {
		return false
	}
	gg.mu.Lock()
	defer gg.mu.Unlock()
	return gg.freed
}

type stage struct {
	kind    string
	grammar decoder.Grammar
	freed   bool
}

func (s *stage) Free() error {
	if s.freed {
		return fmt.Errorf("mock: double free of sampler stage %q", s.kind)
	}
	s.freed = true
	if s.grammar != nil {
		return s.grammar.Free()
	}
	return nil
}

type chain struct {
	mu     sync.Mutex
	stages []*stage
	freed  bool
}

func (c *chain) AddSampler(s decoder.Sampler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := s.(*stage)
	if !ok {
		return fmt.Errorf("mock: unsupported sampler type")
	}
	c.stages = append(c.stages, st)
	return nil
}

func (c *chain) Accept(decoder.Token) error { return nil }

func (c *chain) Free() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return fmt.Errorf("mock: double free of sampler chain")
	}
	c.freed = true
	for _, s := range c.stages {
		if err := s.Free(); err != nil {
			return err
		}
	}
	return nil
}

// SampleNext returns the next scripted token for the round most recently
// started by ClearCache+Decode, or the EOS token once the round's pieces
// are exhausted. It stands in for the real chain.Sample/TokenToPiece loop
// a live decoder would drive; the mock has no logits to mask, so it ignores
// the supplied chain beyond requiring it be non-nil.
func (d *Decoder) SampleNext(ctx context.Context, c decoder.Chain) (decoder.Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c == nil {
		return 0, fmt.Errorf("mock: nil chain")
	}
	if d.cursor >= len(d.roundTokens) {
		return d.eos, nil
	}
	tok := d.roundTokens[d.cursor]
	d.cursor++
	return tok, nil
}

var _ decoder.Decoder = (*Decoder)(nil)
