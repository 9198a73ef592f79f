package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aezizhu/CellGen/internal/config"
	"github.com/aezizhu/CellGen/internal/logging"
)

const (
	defaultSetupHint  = "Run 'cellgen -setup' to add it."
	defaultRetryDelay = 500 * time.Millisecond
	maxResponseBytes  = 4 << 20
	maxLoggedBody     = 2048
)

// KeyStore is the read side of the credential store.
type KeyStore interface {
	Get(provider string) string
}

// Request is one generation call.
type Request struct {
	Provider string
	Prompt   string
	Context  string
}

// Dispatcher builds, sends and parses provider calls from the Spec table.
type Dispatcher struct {
	specs      map[string]Spec
	keys       KeyStore
	httpClient *http.Client
	retry      bool
	retryDelay time.Duration
	setupHint  string
	log        zerolog.Logger
	observe    Observer
}

// Observer is told about every finished Dispatch.
type Observer func(provider, prompt string, elapsed time.Duration, err error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithSetupHint sets the sentence appended to missing-credential messages.
func WithSetupHint(hint string) Option {
	return func(d *Dispatcher) { d.setupHint = hint }
}

// WithRetryDelay sets the pause before the optional transport retry.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelay = delay }
}

// WithObserver registers fn to be called after every Dispatch.
func WithObserver(fn Observer) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// NewDispatcher builds a dispatcher from cfg. keys is consulted on every call.
func NewDispatcher(cfg config.Config, keys KeyStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		specs:      withOverrides(cfg),
		keys:       keys,
		httpClient: newHTTPClient(cfg),
		retry:      cfg.RetryTransport,
		retryDelay: defaultRetryDelay,
		setupHint:  defaultSetupHint,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Spec returns the effective spec for id after config overrides.
func (d *Dispatcher) Spec(id string) (Spec, bool) {
	s, ok := d.specs[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

// ComposePrompt prepends non-empty context to the prompt.
func ComposePrompt(prompt, cellContext string) string {
	if cellContext == "" {
		return prompt
	}
	return "Context: " + cellContext + "\n\nPrompt: " + prompt
}

// Dispatch sends req to its provider and returns the reply text unchanged.
// Every failure is an *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := d.dispatch(ctx, req)
	if d.observe != nil {
		d.observe(strings.ToLower(strings.TrimSpace(req.Provider)), req.Prompt, time.Since(start), err)
	}
	return text, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (string, error) {
	spec, ok := d.Spec(req.Provider)
	if !ok {
		return "", NewError(KindInvalidProvider, req.Provider,
			fmt.Sprintf("Unknown provider %q. Use gemini, chatgpt or deepseek.", req.Provider), nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", NewError(KindEmptyPrompt, spec.ID, "Prompt cannot be empty.", nil)
	}
	secret := d.keys.Get(spec.ID)
	if secret == "" {
		return "", NewError(KindMissingCredential, spec.ID,
			strings.TrimSpace(fmt.Sprintf("%s API key is not set. %s", spec.Name, d.setupHint)), nil)
	}

	c := codecs[spec.Shape]
	payload, err := json.Marshal(c.build(spec.Model, ComposePrompt(req.Prompt, req.Context)))
	if err != nil {
		return "", NewError(KindTransport, spec.ID, spec.Name+" request could not be built.", err)
	}

	reqID := logging.RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	start := time.Now()
	body, err := d.send(ctx, spec, secret, payload)
	if err != nil && d.retry && retryable(ctx, err) {
		d.log.Warn().Str("event", logging.EventDispatch).Str("request_id", reqID).
			Str("provider", spec.ID).Err(err).Msg("retrying after transport failure")
		select {
		case <-ctx.Done():
		case <-time.After(d.retryDelay):
			body, err = d.send(ctx, spec, secret, payload)
		}
	}
	if err != nil {
		var e *Error
		errors.As(err, &e)
		d.log.Error().Str("event", logging.EventDispatch).Str("request_id", reqID).
			Str("provider", spec.ID).Str("kind", e.Kind.String()).Int("status", e.StatusCode).
			Str("body", logging.Truncate(e.Body, maxLoggedBody)).Err(e.Err).
			Float64("elapsed_ms", logging.Elapsed(start)).Msg("dispatch failed")
		return "", err
	}

	text, err := c.extract(body)
	if err != nil {
		d.log.Error().Str("event", logging.EventDispatch).Str("request_id", reqID).
			Str("provider", spec.ID).Str("kind", KindMalformedResponse.String()).
			Str("body", logging.Truncate(string(body), maxLoggedBody)).Err(err).
			Float64("elapsed_ms", logging.Elapsed(start)).Msg("unexpected response shape")
		return "", &Error{
			Kind:     KindMalformedResponse,
			Provider: spec.ID,
			Message:  spec.Name + " returned an unexpected response.",
			Body:     string(body),
			Err:      err,
		}
	}

	d.log.Info().Str("event", logging.EventDispatch).Str("request_id", reqID).
		Str("provider", spec.ID).Str("model", spec.Model).Int("prompt_len", len(req.Prompt)).
		Int("context_len", len(req.Context)).Int("reply_len", len(text)).
		Float64("elapsed_ms", logging.Elapsed(start)).Msg("dispatch ok")
	return text, nil
}

func (d *Dispatcher) send(ctx context.Context, spec Spec, secret string, payload []byte) ([]byte, error) {
	target, err := spec.URL(secret)
	if err != nil {
		return nil, NewError(KindTransport, spec.ID, spec.Name+" endpoint is invalid.", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(KindTransport, spec.ID, spec.Name+" endpoint is invalid.", redact(err, secret))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if spec.Auth == AuthBearer {
		httpReq.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		msg := spec.Name + " request failed: could not reach the API."
		if isTimeout(err) {
			msg = spec.Name + " request timed out."
		}
		return nil, NewError(KindTransport, spec.ID, msg, redact(err, secret))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewError(KindTransport, spec.ID, spec.Name+" response could not be read.", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       KindTransport,
			Provider:   spec.ID,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s request failed (HTTP %d).", spec.Name, resp.StatusCode),
			Body:       string(body),
		}
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.IsTransient()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// redact strips the query-string key from errors that echo the request URL.
func redact(err error, secret string) error {
	var ue *url.Error
	if secret != "" && errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, url.QueryEscape(secret), "REDACTED")
	}
	return err
}
