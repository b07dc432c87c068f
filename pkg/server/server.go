// Package server exposes the frame store, the analysis chain and text
// generation over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdhe/frame-insight/pkg/analysis"
	"github.com/abdhe/frame-insight/pkg/frame"
	"github.com/abdhe/frame-insight/pkg/generation"
)

// Analyzer runs image analysis on one frame.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (analysis.Outcome, error)
}

var _ Analyzer = (*analysis.Chain)(nil)

// Options tunes the HTTP surface.
type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	Stream         frame.StreamOptions
	Version        string
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	frames    *frame.Store
	analyzer  Analyzer
	generator generation.Generator // nil disables text generation
	opts      Options
	logger    *slog.Logger
	started   time.Time
	engine    *gin.Engine
}

// New builds the router. generator may be nil.
func New(frames *frame.Store, analyzer Analyzer, generator generation.Generator, opts Options, logger *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		frames:    frames,
		analyzer:  analyzer,
		generator: generator,
		opts:      opts,
		logger:    logger.With("component", "http"),
		started:   time.Now(),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), recovery(s.logger), cors(s.opts.AllowedOrigins))

	r.POST("/upload", s.handleUpload)
	r.GET("/video_feed", s.handleVideoFeed)
	r.GET("/snapshot", s.handleSnapshot)
	r.POST("/analyze", s.handleAnalyze)
	r.POST("/generate_text", s.handleGenerateText)
	r.GET("/ws/feed", s.handleWSFeed)
	r.GET("/healthz", s.handleHealth)
	r.GET("/status", s.handleStatus)

	return r
}
