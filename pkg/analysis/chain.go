package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/abdhe/frame-insight/pkg/metrics"
	"github.com/abdhe/frame-insight/pkg/provider"
	"github.com/abdhe/frame-insight/pkg/resilience"
)

// Tier is one level of feature richness requested from the vision provider.
type Tier int

const (
	TierFull    Tier = 1 // caption, tags and OCR
	TierReduced Tier = 2 // caption and tags only
)

// Features returns the vision features requested at this tier.
func (t Tier) Features() []string {
	if t == TierFull {
		return []string{provider.FeatureCaption, provider.FeatureTags, provider.FeatureRead}
	}
	return []string{provider.FeatureCaption, provider.FeatureTags}
}

func (t Tier) String() string { return strconv.Itoa(int(t)) }

// Outcome is a successful chain run.
type Outcome struct {
	Record Record
	Tier   Tier
	// FallbackCause is the Tier-1 failure when Tier 2 produced the record.
	FallbackCause error
}

// Degraded reports whether the reduced tier produced the record.
func (o Outcome) Degraded() bool { return o.Tier != TierFull }

// Config holds the per-request vision options.
type Config struct {
	Language             string
	GenderNeutralCaption bool
}

// Chain requests the full feature set and falls back once to the reduced
// set when that call fails for any reason.
type Chain struct {
	vision  provider.VisionProvider
	backoff *resilience.Backoff
	cfg     Config
	logger  *slog.Logger
}

// NewChain creates a fallback chain over the given vision provider. Every
// provider call is routed through backoff.
func NewChain(vision provider.VisionProvider, backoff *resilience.Backoff, cfg Config, logger *slog.Logger) *Chain {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		vision:  vision,
		backoff: backoff,
		cfg:     cfg,
		logger:  logger.With("component", "analysis"),
	}
}

// Analyze runs the chain on one image. The returned error carries the
// Tier-2 provider failure; there is no third attempt.
func (c *Chain) Analyze(ctx context.Context, image []byte) (Outcome, error) {
	rec, err := c.run(ctx, image, TierFull)
	if err == nil {
		metrics.AnalysisTotal.WithLabelValues(TierFull.String(), "success").Inc()
		return Outcome{Record: rec, Tier: TierFull}, nil
	}
	metrics.AnalysisTotal.WithLabelValues(TierFull.String(), "failure").Inc()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, fmt.Errorf("analysis: %w: %w", ctxErr, err)
	}
	c.logger.Warn("full analysis failed, retrying without OCR", "error", err)

	rec, fallbackErr := c.run(ctx, image, TierReduced)
	if fallbackErr != nil {
		metrics.AnalysisTotal.WithLabelValues(TierReduced.String(), "failure").Inc()
		c.logger.Error("reduced analysis failed", "error", fallbackErr)
		return Outcome{}, fmt.Errorf("analysis: %w", fallbackErr)
	}

	metrics.AnalysisTotal.WithLabelValues(TierReduced.String(), "success").Inc()
	return Outcome{Record: rec, Tier: TierReduced, FallbackCause: err}, nil
}

func (c *Chain) run(ctx context.Context, image []byte, tier Tier) (Record, error) {
	req := provider.VisionRequest{
		Features:             tier.Features(),
		Language:             c.cfg.Language,
		GenderNeutralCaption: c.cfg.GenderNeutralCaption,
	}

	res, err := resilience.Call(ctx, c.backoff, c.vision.Name(), func(ctx context.Context) (provider.VisionResult, error) {
		return c.vision.Analyze(ctx, image, req)
	})
	if err != nil {
		return Record{}, err
	}

	c.logger.Debug("vision analysis succeeded", "tier", int(tier), "model_version", res.ModelVersion)
	return Normalize(res, tier == TierFull), nil
}
