// Package health serves the gRPC health-checking protocol and keeps the
// reported status in line with periodic dependency probes.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name clients check for the bot itself.
// The empty name reports the same status.
const ServiceName = "chatcord.Orchestrator"

const (
	defaultProbeInterval = 30 * time.Second
	probeTimeout         = 5 * time.Second
)

// Probe checks one dependency. A non-nil error marks the service as not
// serving until the next successful round.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server wraps a gRPC server exposing grpc.health.v1.
type Server struct {
	grpc     *grpc.Server
	health   *grpchealth.Server
	probes   []Probe
	interval time.Duration
	logger   *slog.Logger
}

// NewServer creates a health server. interval <= 0 uses the default.
func NewServer(probes []Probe, interval time.Duration, logger *slog.Logger) *Server {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	gs := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{grpc: gs, health: hs, probes: probes, interval: interval, logger: logger}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Run probes dependencies immediately and then every interval until ctx
// ends, at which point the status flips to NOT_SERVING.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.ProbeOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.ProbeOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Health prober shutting down", "reason", ctx.Err())
			s.health.Shutdown()
			return
		}
	}
}

// ProbeOnce runs every probe and updates the served status.
func (s *Server) ProbeOnce(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, p := range s.probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Check(pctx)
		cancel()
		if err != nil {
			s.logger.Warn("Health probe failed", "probe", p.Name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(status)
	return status
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop drains in-flight RPCs, giving up after ctx ends.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
