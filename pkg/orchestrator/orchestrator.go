// Package orchestrator drives one user turn end to end: message assembly,
// per-round generation against a decoder with a KV-cache-clear-and-
// re-encode policy, streaming tool-call detection, executor dispatch, and
// the fixed set of terminal outcomes (tool call, terminal text, parse
// failure, decode failure, round-budget exhaustion). It is grounded on
// pkg/agent/toolloop.go's ToolLoopAgent step loop, narrowed from "many
// stop conditions" down to this module's two-outcome-per-round protocol.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tinytool/llmcore/pkg/ai"
	"github.com/tinytool/llmcore/pkg/chat"
	"github.com/tinytool/llmcore/pkg/decoder"
	"github.com/tinytool/llmcore/pkg/grammar"
	"github.com/tinytool/llmcore/pkg/sampler"
	"github.com/tinytool/llmcore/pkg/stopstring"
	"github.com/tinytool/llmcore/pkg/telemetry"
	"github.com/tinytool/llmcore/pkg/textstream"
	"github.com/tinytool/llmcore/pkg/toolcall"
	"github.com/tinytool/llmcore/pkg/toolcatalog"
)

// ToolResult is the value an Executor returns for one executed call.
type ToolResult struct {
	ToolName string
	Result   string
	IsError  bool
}

// Executor runs one detected tool call and returns its result. It may
// suspend and may return an error; either is converted into an error tool
// message rather than terminating the conversation.
type Executor interface {
	Execute(ctx context.Context, call toolcall.ToolCall) (ToolResult, error)
}

// RoundStartEvent is emitted via Sinks.OnRoundStart at the beginning of
// every round's prefill.
type RoundStartEvent struct {
	TurnID string
	Round  int
}

// RoundFinishEvent is emitted once a round has produced either a detected
// tool call (ToolCall non-nil) or terminal text (Text non-empty).
type RoundFinishEvent struct {
	TurnID   string
	Round    int
	ToolCall *toolcall.ToolCall
	Text     string
}

// GrammarRebuildEvent is emitted once per turn after the grammar manager
// has been given a chance to rebuild against the current catalog.
type GrammarRebuildEvent struct {
	Rebuilt bool
	Warning error
}

// Sinks are the caller-supplied callbacks a turn reports through. OnToken,
// OnToolCallDetected, OnError, and OnDone are the four sinks named in
// spec.md §4.5; the three Listener-shaped fields are additional structured
// events following the ai.Notify/ai.Listener[E] pattern used throughout
// this codebase's event callbacks, and may be left nil.
type Sinks struct {
	OnToken            func(text string)
	OnToolCallDetected func(call toolcall.ToolCall)
	OnError            func(message string)
	OnDone             func(finalText string)

	OnRoundStart     ai.Listener[RoundStartEvent]
	OnRoundFinish    ai.Listener[RoundFinishEvent]
	OnGrammarRebuild ai.Listener[GrammarRebuildEvent]
}

func (s Sinks) emitToken(text string) {
	if text != "" && s.OnToken != nil {
		s.OnToken(text)
	}
}

func (s Sinks) emitError(message string) {
	if s.OnError != nil {
		s.OnError(message)
	}
}

func (s Sinks) emitDone(text string) {
	if s.OnDone != nil {
		s.OnDone(text)
	}
}

func (s Sinks) emitToolCallDetected(call toolcall.ToolCall) {
	if s.OnToolCallDetected != nil {
		s.OnToolCallDetected(call)
	}
}

// Config holds the turn-independent, process-wide configuration for an
// Orchestrator, playing the role pkg/agent/agent.go's AgentConfig plays
// for ToolLoopAgent.
type Config struct {
	// SystemPrompt is the base instruction prepended to every turn. The
	// tool-calling preamble and raw catalog text are appended to it
	// automatically once EnableTools has been called.
	SystemPrompt string

	// MaxRounds bounds how many generation rounds a single turn may use.
	// Per spec.md §8 scenario 5, a turn where every round ends in a tool
	// call exhausts the budget after exactly MaxRounds rounds.
	MaxRounds int

	// MaxTokensPerTurn bounds how many tokens a single round may sample
	// before it is treated as ending without a stop string or EOS.
	MaxTokensPerTurn int

	// GrammarMode is the preferred grammar activation mode; the manager
	// falls back to the other mode if compilation fails in this one.
	GrammarMode decoder.GrammarMode

	// SamplerParams is the cached sampler-chain configuration rebuilt
	// fresh every round.
	SamplerParams sampler.Params

	// ChatTemplateStops are stop strings derived from the active chat
	// template (e.g. "<end_of_turn>"), layered on top of
	// stopstring.DefaultStops.
	ChatTemplateStops []string

	// Timeout provides the total/per-step timeout controls applied to a
	// turn and to each round respectively. A timeout that expires during
	// token sampling ends the turn the same way a cancelled context does:
	// OnDone receives the text accumulated so far and GenerateWithTools
	// returns nil.
	Timeout *ai.TimeoutConfig

	// Telemetry configures the per-round tracer; nil disables tracing.
	Telemetry *telemetry.Settings

	// SessionRate and SessionBurst configure the process-wide session
	// gate's token bucket. A zero SessionRate disables pacing (unlimited
	// rate), leaving only the mutual-exclusion mutex.
	SessionRate  rate.Limit
	SessionBurst int
}

// Orchestrator drives turns against a single decoder session.
type Orchestrator struct {
	dec        decoder.Decoder
	session    *Session
	grammarMgr *grammar.Manager
	tracer     trace.Tracer
	cfg        Config

	mu          sync.RWMutex
	catalog     toolcatalog.Catalog
	catalogText string
}

// NewOrchestrator constructs an Orchestrator bound to dec. Call EnableTools
// before the first turn that should offer tool calling; a turn run before
// EnableTools proceeds with an empty catalog (no grammar constraint, no
// tool preamble).
func NewOrchestrator(dec decoder.Decoder, cfg Config) *Orchestrator {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	if cfg.MaxTokensPerTurn <= 0 {
		cfg.MaxTokensPerTurn = 512
	}
	r := cfg.SessionRate
	if r == 0 {
		r = rate.Inf
	}
	burst := cfg.SessionBurst
	if burst <= 0 {
		burst = 1
	}
	return &Orchestrator{
		dec:        dec,
		session:    NewSession(r, burst),
		grammarMgr: grammar.NewManager(dec, cfg.GrammarMode),
		tracer:     telemetry.GetTracer(cfg.Telemetry),
		cfg:        cfg,
	}
}

// EnableTools parses payload -- an OpenAI function-calling JSON array,
// tolerating one level of extra "function" wrapping -- and makes it the
// active catalog. Per spec.md §7, an empty or entirely unparseable catalog
// is reported synchronously rather than deferred to the next turn. Tool
// calling is refused for a decoder whose SupportsChatTemplate reports false.
func (o *Orchestrator) EnableTools(payload []byte) error {
	if !o.dec.SupportsChatTemplate() {
		return fmt.Errorf("orchestrator: model exposes no chat template; tool calling is not supported")
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return &CatalogError{Message: "empty catalog payload"}
	}
	catalog, errs := toolcatalog.Parse(payload)
	if len(catalog) == 0 {
		var cause error
		if len(errs) > 0 {
			cause = errs[0]
		}
		return &CatalogError{Message: "catalog parsed to zero usable tools", Cause: cause}
	}
	o.mu.Lock()
	o.catalog = catalog
	o.catalogText = string(payload)
	o.mu.Unlock()
	o.grammarMgr.Invalidate()
	return nil
}

// DisableTools clears the active catalog; subsequent turns run with no
// grammar constraint and no tool preamble.
func (o *Orchestrator) DisableTools() {
	o.mu.Lock()
	o.catalog = nil
	o.catalogText = ""
	o.mu.Unlock()
	o.grammarMgr.Invalidate()
}

func (o *Orchestrator) snapshotCatalog() (toolcatalog.Catalog, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.catalog, o.catalogText
}

const toolPreambleTemplate = "Respond with tool calls using exactly this JSON envelope when you need one: {\"tool_calls\":[{\"name\":\"...\",\"arguments\":{...}}]}. Only call tools declared below.\n\nTool catalog:\n%s"

func (o *Orchestrator) buildSystemPrompt(catalogText string) string {
	if catalogText == "" {
		return o.cfg.SystemPrompt
	}
	return strings.TrimSpace(o.cfg.SystemPrompt) + "\n\n" + fmt.Sprintf(toolPreambleTemplate, catalogText)
}

// GenerateWithTools runs one complete user turn: message assembly,
// round-by-round generation, tool dispatch, and a single terminal sink
// call (on_done or on_error). It implements spec.md §4.5's protocol
// verbatim.
func (o *Orchestrator) GenerateWithTools(ctx context.Context, userMsg string, executor Executor, sinks Sinks) error {
	release, err := o.session.Acquire(ctx)
	if err != nil {
		sinks.emitError(err.Error())
		return err
	}
	defer release()

	ctx = withTurnID(ctx)
	turnID := turnIDFrom(ctx)

	if o.cfg.Timeout.HasTotal() {
		var cancel context.CancelFunc
		ctx, cancel = o.cfg.Timeout.CreateTimeoutContext(ctx, "total")
		defer cancel()
	}

	catalog, catalogText := o.snapshotCatalog()
	messages := chat.NewConversation(o.buildSystemPrompt(catalogText), userMsg)

	rebuilt, warning := o.grammarMgr.UpdateIfNeeded(catalog, catalogText)
	if warning != nil {
		warning = &GrammarBuildWarning{Cause: warning}
	}
	ai.Notify(ctx, GrammarRebuildEvent{Rebuilt: rebuilt, Warning: warning}, sinks.OnGrammarRebuild)

	for round := 0; round < o.cfg.MaxRounds; round++ {
		ai.Notify(ctx, RoundStartEvent{TurnID: turnID, Round: round}, sinks.OnRoundStart)

		result, err := o.runRound(ctx, round, messages, sinks)
		if err != nil {
			sinks.emitError(err.Error())
			return err
		}

		switch result.outcome {
		case outcomeCancelled:
			sinks.emitDone(result.text)
			ai.Notify(ctx, RoundFinishEvent{TurnID: turnID, Round: round, Text: result.text}, sinks.OnRoundFinish)
			return nil

		case outcomeDone:
			sinks.emitDone(result.text)
			ai.Notify(ctx, RoundFinishEvent{TurnID: turnID, Round: round, Text: result.text}, sinks.OnRoundFinish)
			return nil

		case outcomeParseFailure:
			parseErr := &ToolCallParseError{Round: round, Message: "detector completed but payload did not match the tool-call pattern"}
			sinks.emitError(parseErr.Error())
			return parseErr

		case outcomeToolCall:
			sinks.emitToolCallDetected(*result.toolCall)
			toolResult, execErr := executor.Execute(ctx, *result.toolCall)
			if execErr != nil {
				toolResult = ToolResult{ToolName: result.toolCall.Name, Result: execErr.Error(), IsError: true}
			}
			content := toolResult.Result
			if toolResult.IsError {
				content = fmt.Sprintf(`{"error":%q}`, toolResult.Result)
			}
			messages = chat.AppendToolRound(messages, result.toolCall.Payload, content)
			ai.Notify(ctx, RoundFinishEvent{TurnID: turnID, Round: round, ToolCall: result.toolCall}, sinks.OnRoundFinish)
			continue
		}
	}

	budgetErr := &RoundBudgetExceededError{MaxRounds: o.cfg.MaxRounds}
	sinks.emitError(budgetErr.Error())
	return budgetErr
}

type roundOutcome int

const (
	outcomeDone roundOutcome = iota
	outcomeToolCall
	outcomeParseFailure
	outcomeCancelled
)

type roundResult struct {
	outcome  roundOutcome
	toolCall *toolcall.ToolCall
	text     string
}

func grammarModeLabel(mode decoder.GrammarMode) string {
	if mode == decoder.ModeLazy {
		return "lazy"
	}
	return "strict"
}

// runRound performs one round's prefill and token stream: KV-cache clear,
// full re-encode of messages, sampler-chain composition, and character-by-
// character routing into the tool-call detector and the caller's sinks.
func (o *Orchestrator) runRound(ctx context.Context, round int, messages []chat.Message, sinks Sinks) (roundResult, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("llmcore.round", round),
		attribute.String("llmcore.grammar_mode", grammarModeLabel(o.cfg.GrammarMode)),
	}
	return telemetry.RecordSpan(ctx, o.tracer, telemetry.SpanOptions{
		Name:        "orchestrator.round",
		Attributes:  attrs,
		EndWhenDone: true,
	}, func(ctx context.Context, _ trace.Span) (roundResult, error) {
		return o.runRoundTraced(ctx, round, messages, sinks)
	})
}

func (o *Orchestrator) runRoundTraced(ctx context.Context, round int, messages []chat.Message, sinks Sinks) (roundResult, error) {
	if err := o.grammarMgr.ResetGrammar(); err != nil {
		return roundResult{}, &DecodeError{Round: round, Cause: fmt.Errorf("resetting grammar activation state: %w", err)}
	}

	roundCtx := ctx
	var stepCancel context.CancelFunc
	if o.cfg.Timeout.HasPerStep() {
		roundCtx, stepCancel = o.cfg.Timeout.CreateTimeoutContext(ctx, "step")
		defer stepCancel()
	}

	rendered, err := o.dec.ApplyChatTemplate(chat.ToDecoderMessages(messages))
	if err != nil {
		return roundResult{}, &DecodeError{Round: round, Cause: err}
	}
	if err := o.dec.ClearCache(); err != nil {
		return roundResult{}, &DecodeError{Round: round, Cause: err}
	}
	tokens, err := o.dec.Tokenize(rendered)
	if err != nil {
		return roundResult{}, &DecodeError{Round: round, Cause: err}
	}
	if err := o.dec.Decode(roundCtx, tokens); err != nil {
		return roundResult{}, &DecodeError{Round: round, Cause: err}
	}

	chain, err := o.grammarMgr.ComposeChain(o.cfg.SamplerParams)
	if err != nil {
		return roundResult{}, &DecodeError{Round: round, Cause: err}
	}
	defer func() { _ = chain.Free() }()

	detector := toolcall.New()
	reframer := textstream.New()
	stops := stopstring.NewScanner(o.cfg.ChatTemplateStops...)
	var accumulated strings.Builder

	eos := o.dec.EOSToken()

tokenLoop:
	for i := 0; i < o.cfg.MaxTokensPerTurn; i++ {
		select {
		case <-roundCtx.Done():
			accumulated.WriteString(reframer.Flush())
			return roundResult{outcome: outcomeCancelled, text: accumulated.String()}, nil
		default:
		}

		tok, err := o.dec.SampleNext(roundCtx, chain)
		if err != nil {
			return roundResult{}, &DecodeError{Round: round, Cause: err}
		}
		if tok == eos {
			break tokenLoop
		}
		if err := chain.Accept(tok); err != nil {
			return roundResult{}, &DecodeError{Round: round, Cause: err}
		}
		piece, err := o.dec.TokenToPiece(tok)
		if err != nil {
			return roundResult{}, &DecodeError{Round: round, Cause: err}
		}

		chunk := reframer.Push(piece)
		for _, r := range chunk {
			s := string(r)
			if detector.Accumulate([]byte(s)) {
				call, ok := detector.Extract()
				detector.Reset()
				if !ok {
					return roundResult{outcome: outcomeParseFailure}, nil
				}
				return roundResult{outcome: outcomeToolCall, toolCall: &call}, nil
			}
			if detector.Collecting() {
				continue
			}
			visible, stop := stops.Push(s)
			accumulated.WriteString(visible)
			sinks.emitToken(visible)
			if stop {
				break tokenLoop
			}
		}
	}

	tail := stops.Flush() + reframer.Flush()
	accumulated.WriteString(tail)
	sinks.emitToken(tail)
	return roundResult{outcome: outcomeDone, text: accumulated.String()}, nil
}
