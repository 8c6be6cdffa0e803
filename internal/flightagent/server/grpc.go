package server

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcmw "github.com/autopeer-io/flightpeer/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/flightpeer/pkg/log"
	"github.com/autopeer-io/flightpeer/pkg/options"
)

// HealthService is the service name whose status follows the vehicle link.
const HealthService = "flightpeer.FlightAgent"

// GrpcServer serves the standard health service. The status of
// HealthService mirrors the vehicle link, polled through link.
type GrpcServer struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
	link    LinkCheck

	// PollInterval is how often link is called.
	PollInterval time.Duration
}

func NewGrpcServer(opts *options.GrpcOptions, link LinkCheck) *GrpcServer {
	s := grpc.NewServer(grpc.UnaryInterceptor(grpcmw.UnaryServerTimeoutInterceptor(opts.Timeout)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GrpcServer{
		server:       s,
		health:       hs,
		options:      opts,
		link:         link,
		PollInterval: 2 * time.Second,
	}
}

func (s *GrpcServer) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve runs the server on lis until ctx ends.
func (s *GrpcServer) Serve(ctx context.Context, lis net.Listener) error {
	log.Info("Starting gRPC Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go s.watch(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	}
}

func (s *GrpcServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for {
		s.update(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *GrpcServer) update(ctx context.Context) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if t, err := s.link(ctx); err == nil && t.Connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
	s.health.SetServingStatus("", status)
}
