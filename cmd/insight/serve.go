package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/abdhe/frame-insight/pkg/analysis"
	"github.com/abdhe/frame-insight/pkg/cache"
	"github.com/abdhe/frame-insight/pkg/config"
	"github.com/abdhe/frame-insight/pkg/frame"
	"github.com/abdhe/frame-insight/pkg/generation"
	"github.com/abdhe/frame-insight/pkg/health"
	"github.com/abdhe/frame-insight/pkg/logging"
	"github.com/abdhe/frame-insight/pkg/provider"
	"github.com/abdhe/frame-insight/pkg/resilience"
	"github.com/abdhe/frame-insight/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, gRPC health and metrics listeners",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("http-addr", ":5000", "HTTP listen address")
	flags.String("grpc-addr", ":50051", "gRPC health listen address")
	flags.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	flags.String("generation-provider", config.ProviderAzure, "text generation backend: azure, openai, gemini, relay or none")

	mustBind(v, "server.http_addr", flags.Lookup("http-addr"))
	mustBind(v, "server.grpc_addr", flags.Lookup("grpc-addr"))
	mustBind(v, "server.metrics_addr", flags.Lookup("metrics-addr"))
	mustBind(v, "generation.provider", flags.Lookup("generation-provider"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	logger.Info("starting insight", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// Frame store and analysis chain
	// -------------------------------------------------------------------------
	store := frame.NewStore()

	if cfg.Vision.Endpoint == "" {
		logger.Warn("vision.endpoint not set, /analyze will fail until it is configured")
	}
	vision := provider.NewAzureVisionProvider(provider.AzureVisionConfig{
		Endpoint:   cfg.Vision.Endpoint,
		Key:        cfg.Vision.Key,
		APIVersion: cfg.Vision.APIVersion,
		Timeout:    cfg.Vision.Timeout,
	})
	visionBackoff := resilience.NewBackoff(resilience.BackoffConfig{
		MaxRetries: cfg.Vision.MaxAttempts,
		Base:       cfg.Backoff.Base,
		Factor:     cfg.Backoff.Factor,
		MaxDelay:   cfg.Backoff.MaxDelay,
	}, logger)
	chain := analysis.NewChain(vision, visionBackoff, analysis.Config{
		Language:             cfg.Vision.Language,
		GenderNeutralCaption: cfg.Vision.GenderNeutralCaption,
	}, logger)

	// -------------------------------------------------------------------------
	// Text generation
	// -------------------------------------------------------------------------
	generator, closeGen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGen()

	// -------------------------------------------------------------------------
	// Listeners
	// -------------------------------------------------------------------------
	srv := server.New(store, chain, generator, server.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Stream: frame.StreamOptions{
			MinInterval: cfg.Stream.MinInterval,
			Keepalive:   cfg.Stream.Keepalive,
		},
		Version: Version,
	}, logger)

	// No write timeout: /video_feed and /ws/feed are long-lived.
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         cfg.Server.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	healthServer := health.NewServer(logger)
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on gRPC address %s: %w", cfg.Server.GRPCAddr, err)
	}
	go healthServer.WatchFrames(ctx, store)

	errCh := make(chan error, 3)

	go func() {
		logger.Info("gRPC health server listening", "addr", cfg.Server.GRPCAddr)
		if err := healthServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		logger.Info("metrics server listening", "addr", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Graceful shutdown
	// -------------------------------------------------------------------------
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("listener failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Streaming clients never finish on their own; Shutdown gives up at the
	// deadline and Close drops them.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete, closing", "error", err)
		httpServer.Close()
	}
	healthServer.Stop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}

	logger.Info("insight shut down")
	return runErr
}

// buildGenerator wires the configured text-generation backend. It returns a
// nil generator for provider "none".
func buildGenerator(ctx context.Context, cfg config.Config, logger *slog.Logger) (generation.Generator, func(), error) {
	noop := func() {}
	gc := cfg.Generation

	backoff := resilience.NewBackoff(resilience.BackoffConfig{
		MaxRetries: cfg.Backoff.MaxRetries,
		Base:       cfg.Backoff.Base,
		Factor:     cfg.Backoff.Factor,
		MaxDelay:   cfg.Backoff.MaxDelay,
	}, logger)
	policy := backoff.Config()
	logger.Info("generation backoff",
		"max_attempts", policy.MaxRetries,
		"base", policy.Base,
		"factor", policy.Factor,
	)

	var p provider.Provider
	switch gc.Provider {
	case config.ProviderNone:
		logger.Info("text generation disabled")
		return nil, noop, nil
	case config.ProviderRelay:
		client := provider.NewRelayClient(provider.RelayConfig{URL: gc.RelayURL, Timeout: gc.Timeout})
		logger.Info("text generation relayed", "url", gc.RelayURL)
		return generation.NewRelay(client, backoff, logger), noop, nil
	case config.ProviderAzure:
		p = provider.NewAzureOpenAIProvider(provider.AzureOpenAIConfig{
			Endpoint:   gc.Endpoint,
			Deployment: gc.Deployment,
			APIVersion: gc.APIVersion,
			Timeout:    gc.Timeout,
		})
	case config.ProviderOpenAI:
		p = provider.NewOpenAIProvider(provider.OpenAIConfig{BaseURL: gc.Endpoint, Timeout: gc.Timeout})
	case config.ProviderGemini:
		p = provider.NewGeminiProvider(provider.GeminiConfig{BaseURL: gc.Endpoint, Timeout: gc.Timeout})
	default:
		return nil, noop, fmt.Errorf("unknown generation provider %q", gc.Provider)
	}

	opts := []generation.Option{
		generation.WithCircuitBreaker(resilience.NewCircuitBreaker(p.Name(), resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cfg.Breaker.Cooldown,
		})),
	}

	if len(gc.APIKeys) > 0 {
		kp := resilience.NewKeyPool(p.Name(), gc.APIKeys)
		opts = append(opts, generation.WithKeyPool(kp))
		logger.Info("generation key pool", "provider", p.Name(), "keys", kp.Size())
	} else {
		logger.Warn("generation.api_keys not set, provider calls will be unauthenticated", "provider", p.Name())
	}

	closer := noop
	if cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedisCache(cache.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis connection failed, generation cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
			rc.Close()
		} else {
			opts = append(opts, generation.WithCache(rc))
			closer = func() { rc.Close() }
			logger.Info("generation cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
		}
	}

	fwd := generation.NewForwarder(p, backoff, generation.Config{
		Model:       gc.Model,
		MaxTokens:   gc.MaxTokens,
		Temperature: gc.Temperature,
	}, logger, opts...)
	return fwd, closer, nil
}
