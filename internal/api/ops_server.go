package api

import (
	"context"
	"fmt"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// OpsServer exposes gRPC health and reflection for the running components.
type OpsServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// NewOpsServer constructs a gRPC server bound to addr. Every component name
// gets its own health status, initially NOT_SERVING.
func NewOpsServer(addr string, components []string, opts ...grpc.ServerOption) (*OpsServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range components {
		healthSrv.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpc_prometheus.Register(grpcServer)
	reflection.Register(grpcServer)

	return &OpsServer{
		grpcServer: grpcServer,
		health:     healthSrv,
		listener:   lis,
	}, nil
}

// Name identifies the server to the supervisor.
func (s *OpsServer) Name() string { return "ops" }

// SetServing flips the health status of one component.
func (s *OpsServer) SetServing(component string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(component, status)
}

// Start serves incoming gRPC requests until Shutdown is invoked.
func (s *OpsServer) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	if err := s.grpcServer.Serve(s.listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Shutdown marks everything NOT_SERVING and stops gracefully, falling back
// to Stop when ctx expires.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	if s.grpcServer == nil {
		return nil
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
	return nil
}

// Address exposes the bound listener address.
func (s *OpsServer) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
