package live

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName identifies the paper-trading loop on the health endpoint.
const ServiceName = "traderbot.paper"

// Server exposes the trading loop's liveness over the standard gRPC health
// service, so process supervisors and the probe client can watch it.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *slog.Logger
}

// NewServer creates a health server. The service starts in NOT_SERVING until
// the trading loop reports ready.
func NewServer(log *slog.Logger) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, log: log}
}

// SetServing flips the advertised health status of the trading loop.
func (s *Server) SetServing(up bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Serve listens on the given port and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Serve(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", port, err)
	}

	go func() {
		<-ctx.Done()
		s.grpc.GracefulStop()
	}()

	s.log.Info("health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serving gRPC: %w", err)
	}
	return nil
}
