// Package health serves the standard gRPC health protocol for the service.
package health

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/abdhe/frame-insight/pkg/frame"
)

// FrameService is reported SERVING once the first frame has been uploaded.
const FrameService = "insight.frame"

// Server wraps a gRPC server exposing grpc.health.v1 and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewServer creates the gRPC server. The overall status starts SERVING and
// the frame service starts NOT_SERVING.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(1 << 20),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs) // Enable gRPC reflection for grpcurl

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(FrameService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{grpc: gs, health: hs, logger: logger.With("component", "grpc")}
}

// WatchFrames flips FrameService to SERVING when store receives its first
// frame. It returns when that happens or ctx is done.
func (s *Server) WatchFrames(ctx context.Context, store *frame.Store) {
	if _, err := store.Wait(ctx, 0); err != nil {
		return
	}
	s.health.SetServingStatus(FrameService, healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("first frame received, frame service serving")
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
