// Package apierr defines the error taxonomy shared by the frame store, the
// provider clients and the HTTP surface.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure so callers can tell retryable conditions from
// terminal ones without string matching.
type Kind int

const (
	KindTransport         Kind = iota + 1 // network failure reaching a provider
	KindProvider                          // provider answered with an error
	KindRateLimited                       // provider throttled the call
	KindTerminalRateLimit                 // backoff budget exhausted
	KindNoFrame                           // nothing uploaded yet
	KindUnavailable                       // circuit breaker open
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProvider:
		return "provider"
	case KindRateLimited:
		return "rate_limited"
	case KindTerminalRateLimit:
		return "terminal_rate_limit"
	case KindNoFrame:
		return "no_frame"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the structured error carried through the analysis and generation
// pipelines.
type Error struct {
	Kind     Kind
	Provider string
	// Status is the HTTP status returned by the provider, 0 when none.
	Status int
	// RetryAfter is the provider's throttling hint, 0 when absent.
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Provider != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s %d: %s", e.Provider, e.Kind, e.Status, msg)
	case e.Provider != "":
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// TerminalRateLimitMessage is the user-facing text for an exhausted backoff.
const TerminalRateLimitMessage = "Unable to process, rate limited"

// ErrNoFrame is returned when a frame is requested before the first upload.
var ErrNoFrame = &Error{Kind: KindNoFrame, Message: "No image available"}

// Transport wraps a network-level failure.
func Transport(provider string, err error) *Error {
	return &Error{Kind: KindTransport, Provider: provider, Err: err}
}

// Provider reports a well-formed provider response that carries an error.
func Provider(provider string, status int, message string) *Error {
	return &Error{Kind: KindProvider, Provider: provider, Status: status, Message: message}
}

// RateLimited reports a throttling response.
func RateLimited(provider string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Provider:   provider,
		Status:     http.StatusTooManyRequests,
		RetryAfter: retryAfter,
		Message:    "rate limited",
	}
}

// TerminalRateLimit reports that every attempt was throttled.
func TerminalRateLimit(provider string, attempts int, last error) *Error {
	return &Error{
		Kind:     KindTerminalRateLimit,
		Provider: provider,
		Status:   http.StatusTooManyRequests,
		Message:  fmt.Sprintf("%s after %d attempts", TerminalRateLimitMessage, attempts),
		Err:      last,
	}
}

// Unavailable reports a call rejected before it reached the provider.
func Unavailable(provider string, err error) *Error {
	return &Error{Kind: KindUnavailable, Provider: provider, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindTerminalRateLimit {
			return TerminalRateLimitMessage
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return err.Error()
}

// HTTPStatus maps err to the status returned at the HTTP boundary.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindNoFrame:
		return http.StatusNotFound
	case KindTerminalRateLimit:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
