package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abdhe/frame-insight/pkg/analysis"
	"github.com/abdhe/frame-insight/pkg/apierr"
	"github.com/abdhe/frame-insight/pkg/provider"
	"github.com/abdhe/frame-insight/pkg/resilience"
	"github.com/abdhe/frame-insight/pkg/sanitize"
)

// Forwarding is implemented by provider.RelayClient.
type Forwarding interface {
	Name() string
	Forward(ctx context.Context, payload any) (string, error)
}

// Relay hands the record to a remote /generate_text endpoint instead of
// calling a model directly. The remote side builds its own prompt.
type Relay struct {
	client  Forwarding
	backoff *resilience.Backoff
	logger  *slog.Logger
}

var _ Forwarding = (*provider.RelayClient)(nil)

// NewRelay creates a relay generator.
func NewRelay(client Forwarding, backoff *resilience.Backoff, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		client:  client,
		backoff: backoff,
		logger:  logger.With("component", "generation", "provider", client.Name()),
	}
}

// Generate forwards rec and sanitizes the returned text.
func (r *Relay) Generate(ctx context.Context, rec analysis.Record) (Result, error) {
	rec = rec.Complete()

	raw, err := resilience.Call(ctx, r.backoff, r.client.Name(), func(ctx context.Context) (string, error) {
		text, err := r.client.Forward(ctx, rec)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", apierr.Provider(r.client.Name(), 0, "empty generated_text")
		}
		return text, nil
	})
	if err != nil {
		return Result{Prompt: BuildPrompt(rec)}, fmt.Errorf("generation: %w", err)
	}

	return Result{Prompt: BuildPrompt(rec), Raw: raw, Text: sanitize.Sanitize(raw)}, nil
}
