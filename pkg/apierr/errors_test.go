package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("analyze: %w", Provider("vision", http.StatusBadRequest, "InvalidImage"))

	kind, ok := KindOf(err)
	if !ok || kind != KindProvider {
		t.Fatalf("expected provider kind, got %v (ok=%v)", kind, ok)
	}
	if Is(err, KindTransport) {
		t.Fatalf("provider error must not report transport kind")
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("plain error must not carry a kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNoFrame, http.StatusNotFound},
		{TerminalRateLimit("textgen", 5, nil), http.StatusTooManyRequests},
		{Unavailable("textgen", errors.New("open")), http.StatusServiceUnavailable},
		{Transport("vision", errors.New("dial tcp: refused")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMessageTerminalRateLimit(t *testing.T) {
	err := fmt.Errorf("generate: %w", TerminalRateLimit("azure", 5, RateLimited("azure", 0)))
	if got := Message(err); got != TerminalRateLimitMessage {
		t.Fatalf("expected %q, got %q", TerminalRateLimitMessage, got)
	}
	if !Is(err, KindTerminalRateLimit) {
		t.Fatalf("expected terminal rate limit kind")
	}
}

func TestErrorString(t *testing.T) {
	err := Provider("vision", 401, "Access denied")
	if got, want := err.Error(), "vision: provider 401: Access denied"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	wrapped := Transport("textgen", errors.New("connection reset"))
	if got, want := wrapped.Error(), "textgen: transport: connection reset"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
