package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abdhe/frame-insight/pkg/analysis"
	"github.com/abdhe/frame-insight/pkg/apierr"
	"github.com/abdhe/frame-insight/pkg/metrics"
	"github.com/abdhe/frame-insight/pkg/provider"
	"github.com/abdhe/frame-insight/pkg/resilience"
	"github.com/abdhe/frame-insight/pkg/sanitize"
)

// defaultKeyCooldown applies when a throttled response carries no
// Retry-After hint.
const defaultKeyCooldown = 60 * time.Second

// Result is one generation. Raw is the provider text before sanitizing.
type Result struct {
	Prompt string `json:"-"`
	Raw    string `json:"-"`
	Text   string `json:"generated_text"`
	Cached bool   `json:"cached,omitempty"`
}

// Generator produces descriptive text for an analysis record.
type Generator interface {
	Generate(ctx context.Context, rec analysis.Record) (Result, error)
}

// Cache stores raw generated text by prompt.
type Cache interface {
	Get(ctx context.Context, prompt string) (string, bool, error)
	Set(ctx context.Context, prompt, text string) error
}

// Config holds the completion parameters.
type Config struct {
	Model       string
	MaxTokens   int32
	Temperature float32
}

// Forwarder calls a text-generation provider with a prompt built from the
// record and sanitizes what comes back.
type Forwarder struct {
	provider provider.Provider
	backoff  *resilience.Backoff
	keys     *resilience.KeyPool
	breaker  *resilience.CircuitBreaker
	cache    Cache
	cfg      Config
	logger   *slog.Logger
}

// Option configures optional Forwarder collaborators.
type Option func(*Forwarder)

// WithKeyPool rotates API keys from kp on every attempt.
func WithKeyPool(kp *resilience.KeyPool) Option {
	return func(f *Forwarder) { f.keys = kp }
}

// WithCircuitBreaker guards every provider attempt with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(f *Forwarder) { f.breaker = cb }
}

// WithCache enables the generated-text cache.
func WithCache(c Cache) Option {
	return func(f *Forwarder) { f.cache = c }
}

// NewForwarder creates a Forwarder. A non-positive MaxTokens takes the
// default 200. Temperature is passed through as given, zero included.
func NewForwarder(p provider.Provider, backoff *resilience.Backoff, cfg Config, logger *slog.Logger, opts ...Option) *Forwarder {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Forwarder{
		provider: p,
		backoff:  backoff,
		cfg:      cfg,
		logger:   logger.With("component", "generation", "provider", p.Name()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Generate builds the prompt for rec, calls the provider through the
// backoff and returns the sanitized text. A terminal rate limit is returned
// as an apierr.KindTerminalRateLimit error.
func (f *Forwarder) Generate(ctx context.Context, rec analysis.Record) (Result, error) {
	prompt := BuildPrompt(rec)

	if raw, ok := f.cached(ctx, prompt); ok {
		return Result{Prompt: prompt, Raw: raw, Text: sanitize.Sanitize(raw), Cached: true}, nil
	}

	raw, err := resilience.Call(ctx, f.backoff, f.provider.Name(), func(ctx context.Context) (string, error) {
		return f.attempt(ctx, prompt)
	})
	if err != nil {
		return Result{Prompt: prompt}, fmt.Errorf("generation: %w", err)
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, prompt, raw); err != nil {
			f.logger.Warn("cache store failed", "error", err)
		}
	}

	text := sanitize.Sanitize(raw)
	f.logger.Debug("text generated", "raw_len", len(raw), "text_len", len(text))
	return Result{Prompt: prompt, Raw: raw, Text: text}, nil
}

func (f *Forwarder) cached(ctx context.Context, prompt string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	raw, ok, err := f.cache.Get(ctx, prompt)
	switch {
	case err != nil:
		metrics.GenerationCacheLookupsTotal.WithLabelValues("error").Inc()
		f.logger.Warn("cache lookup failed, treating as miss", "error", err)
		return "", false
	case ok:
		metrics.GenerationCacheLookupsTotal.WithLabelValues("hit").Inc()
		return raw, true
	default:
		metrics.GenerationCacheLookupsTotal.WithLabelValues("miss").Inc()
		return "", false
	}
}

// attempt performs one provider call with a fresh key.
func (f *Forwarder) attempt(ctx context.Context, prompt string) (string, error) {
	var apiKey string
	if f.keys != nil {
		k, err := f.keys.Next()
		if err != nil {
			return "", err
		}
		apiKey = k
	}

	req := provider.Request{
		Model:       f.cfg.Model,
		Prompt:      prompt,
		Temperature: f.cfg.Temperature,
		MaxTokens:   f.cfg.MaxTokens,
		APIKey:      apiKey,
	}

	var resp provider.Response
	call := func() error {
		var err error
		resp, err = f.provider.Infer(ctx, req)
		return err
	}

	var err error
	if f.breaker != nil {
		err = f.breaker.Execute(call)
	} else {
		err = call()
	}

	if err != nil {
		var e *apierr.Error
		if f.keys != nil && errors.As(err, &e) && e.Kind == apierr.KindRateLimited {
			cooldown := e.RetryAfter
			if cooldown <= 0 {
				cooldown = defaultKeyCooldown
			}
			f.keys.MarkRateLimited(apiKey, time.Now().Add(cooldown))
		}
		return "", err
	}

	if strings.TrimSpace(resp.Text) == "" {
		return "", apierr.Provider(f.provider.Name(), 0, "empty completion")
	}
	return resp.Text, nil
}
