package llm

import (
	"errors"
	"fmt"
)

// Kind classifies why a generation did not produce text.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidProvider
	KindEmptyPrompt
	KindMissingCredential
	KindContextResolution
	KindTransport
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindInvalidProvider:
		return "InvalidProvider"
	case KindEmptyPrompt:
		return "EmptyPrompt"
	case KindMissingCredential:
		return "MissingCredential"
	case KindContextResolution:
		return "ContextResolutionError"
	case KindTransport:
		return "TransportError"
	case KindMalformedResponse:
		return "MalformedResponse"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrInvalidProvider   = &Error{Kind: KindInvalidProvider}
	ErrEmptyPrompt       = &Error{Kind: KindEmptyPrompt}
	ErrMissingCredential = &Error{Kind: KindMissingCredential}
	ErrContextResolution = &Error{Kind: KindContextResolution}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
)

// Error is returned by every failed dispatch. Message is safe to show to the
// end user; Body and Err are diagnostics for the log only.
type Error struct {
	Kind       Kind
	Provider   string // gemini, chatgpt, deepseek
	StatusCode int    // HTTP status for non-2xx responses
	Message    string
	Body       string // raw provider payload
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, msg, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsTransient reports whether one more attempt could succeed: network
// failures, rate limiting and server errors.
func (e *Error) IsTransient() bool {
	if e.Kind != KindTransport {
		return false
	}
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, provider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
