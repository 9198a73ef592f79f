package formula

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/logging"
)

// Dispatcher is the part of llm.Dispatcher the formula needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req llm.Request) (string, error)
}

// Resolver turns a cell reference into its text. Empty or missing cells
// resolve to "".
type Resolver interface {
	Resolve(ref string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ref string) (string, error)

func (f ResolverFunc) Resolve(ref string) (string, error) { return f(ref) }

// Evaluator implements generate(code, prompt, ref).
type Evaluator struct {
	dispatcher Dispatcher
	resolver   Resolver
	log        zerolog.Logger
}

// New returns an Evaluator. resolver may be nil when no sheet is loaded.
func New(d Dispatcher, resolver Resolver, log zerolog.Logger) *Evaluator {
	return &Evaluator{dispatcher: d, resolver: resolver, log: log}
}

// WithResolver returns a copy of e bound to another sheet.
func (e *Evaluator) WithResolver(r Resolver) *Evaluator {
	c := *e
	c.resolver = r
	return &c
}

// ProviderFor maps a formula code (g, c, d) or a full provider id to the
// provider id.
func ProviderFor(code string) (string, bool) {
	if s, ok := llm.LookupCode(code); ok {
		return s.ID, true
	}
	if s, ok := llm.Lookup(code); ok {
		return s.ID, true
	}
	return "", false
}

// Generate evaluates the formula and always returns a cell value: the reply
// text, or a string starting with "Error:".
func (e *Evaluator) Generate(ctx context.Context, code, prompt, ref string) string {
	text, err := e.Evaluate(ctx, code, prompt, ref)
	if err != nil {
		return Format(err)
	}
	return text
}

// Evaluate is Generate with a typed error for callers outside a cell.
func (e *Evaluator) Evaluate(ctx context.Context, code, prompt, ref string) (string, error) {
	provider, ok := ProviderFor(code)
	if !ok {
		err := llm.NewError(llm.KindInvalidProvider, "", invalidCodeMessage(code), nil)
		e.logFailure(code, "", ref, err)
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		err := llm.NewError(llm.KindEmptyPrompt, provider, "Prompt cannot be empty.", nil)
		e.logFailure(code, provider, ref, err)
		return "", err
	}

	cellContext, err := e.resolve(provider, ref)
	if err != nil {
		e.logFailure(code, provider, ref, err)
		return "", err
	}

	text, err := e.dispatcher.Dispatch(ctx, llm.Request{Provider: provider, Prompt: prompt, Context: cellContext})
	if err != nil {
		e.logFailure(code, provider, ref, err)
		return "", err
	}
	e.log.Debug().Str("event", logging.EventFormula).Str("provider", provider).Str("ref", ref).
		Int("reply_len", len(text)).Msg("formula evaluated")
	return text, nil
}

func (e *Evaluator) resolve(provider, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	if e.resolver == nil {
		return "", llm.NewError(llm.KindContextResolution, provider,
			fmt.Sprintf("Cannot read %s: no sheet is loaded.", ref), nil)
	}
	v, err := e.resolver.Resolve(ref)
	if err != nil {
		return "", llm.NewError(llm.KindContextResolution, provider,
			fmt.Sprintf("Cannot read context cell %s.", ref), err)
	}
	return v, nil
}

func (e *Evaluator) logFailure(code, provider, ref string, err error) {
	e.log.Warn().Str("event", logging.EventFormula).Str("code", code).Str("provider", provider).
		Str("ref", ref).Str("kind", llm.KindOf(err).String()).Err(err).Msg("formula failed")
}

func invalidCodeMessage(code string) string {
	return fmt.Sprintf("Invalid provider %q. Use \"g\" for Gemini, \"c\" for ChatGPT, or \"d\" for DeepSeek.", code)
}

// Format renders err as a cell value. Only the user-facing message is used;
// provider payloads never reach the cell.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var e *llm.Error
	if errors.As(err, &e) && e.Message != "" {
		return "Error: " + e.Message
	}
	return "Error: " + err.Error()
}
