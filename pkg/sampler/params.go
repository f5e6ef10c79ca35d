// Package sampler composes decoder sampler chains from cached parameters
// and an optional grammar constraint clone, following the fixed stage order
// mandated for this core: grammar, then mirostat (short-circuiting the
// remaining stages) or temperature/top-k/top-p/min-p, then a terminal
// distribution or greedy sampler.
package sampler

import (
	"fmt"
	"math"

	"github.com/tinytool/llmcore/pkg/decoder"
)

// Params is the cached, per-conversation sampler configuration. It is kept
// between rounds so a chain can be rebuilt verbatim every turn.
type Params struct {
	TopK          int
	TopP          float64
	Temperature   float64
	MinP          float64
	MirostatMode  int
	MirostatTau   float64
	MirostatEta   float64
	Seed          uint64
}

const temperatureEpsilon = 1e-3

// usesTemperature reports whether the temperature stage is active: positive
// and meaningfully different from the neutral value of 1.
func (p Params) usesTemperature() bool {
	return p.Temperature > 0 && math.Abs(p.Temperature-1) > temperatureEpsilon
}

// Compose builds a new, owned sampler chain from dec, optionally prefixing
// it with a clone of grammarConstraint. The canonical grammar instance
// itself is never attached -- Compose always clones before attaching, so
// the caller retains ownership of grammarConstraint and must still free it
// itself when the conversation's grammar is retired.
//
// Stage order: grammar clone (if present) first, so later stages see
// already-masked logits; then, if MirostatMode > 0, a single mirostat
// sampler that terminates the chain; otherwise temperature (if active),
// top-k, top-p (skipped if TopP >= 1), min-p (skipped if MinP <= 0), and
// finally a distribution sampler (if Temperature > 0, including the neutral
// value 1) or a greedy sampler.
func Compose(dec decoder.Decoder, grammarConstraint decoder.Grammar, p Params) (decoder.Chain, error) {
	chain := dec.NewSamplerChain()

	if grammarConstraint != nil {
		clone, err := grammarConstraint.Clone()
		if err != nil {
			chain.Free()
			return nil, fmt.Errorf("sampler: cloning grammar constraint: %w", err)
		}
		if err := chain.AddSampler(dec.NewGrammarSampler(clone)); err != nil {
			clone.Free()
			chain.Free()
			return nil, fmt.Errorf("sampler: attaching grammar clone: %w", err)
		}
	}

	if p.MirostatMode > 0 {
		if err := chain.AddSampler(dec.NewMirostatSampler(p.MirostatMode, p.MirostatTau, p.MirostatEta, p.Seed)); err != nil {
			chain.Free()
			return nil, fmt.Errorf("sampler: attaching mirostat: %w", err)
		}
		return chain, nil
	}

	if p.usesTemperature() {
		if err := chain.AddSampler(dec.NewTemperatureSampler(p.Temperature)); err != nil {
			chain.Free()
			return nil, fmt.Errorf("sampler: attaching temperature: %w", err)
		}
	}

	if p.TopK > 0 {
		if err := chain.AddSampler(dec.NewTopKSampler(p.TopK)); err != nil {
			chain.Free()
			return nil, fmt.Errorf("sampler: attaching top-k: %w", err)
		}
	}

	if p.TopP > 0 && p.TopP < 1 {
		if err := chain.AddSampler(dec.NewTopPSampler(p.TopP)); err != nil {
			chain.Free()
			return nil, fmt.Errorf("sampler: attaching top-p: %w", err)
		}
	}

	if p.MinP > 0 {
		if err := chain.AddSampler(dec.NewMinPSampler(p.MinP)); err != nil {
			chain.Free()
			return nil, fmt.Errorf("sampler: attaching min-p: %w", err)
		}
	}

	var terminal decoder.Sampler
	if p.Temperature > 0 {
		terminal = dec.NewDistributionSampler(p.Seed)
	} else {
		terminal = dec.NewGreedySampler()
	}
	if err := chain.AddSampler(terminal); err != nil {
		chain.Free()
		return nil, fmt.Errorf("sampler: attaching terminal sampler: %w", err)
	}

	return chain, nil
}
