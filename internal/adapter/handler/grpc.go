package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/hive-corporation/threatpulse/pkg/log"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "threatpulse.Pipeline"

// GrpcServer exposes the standard gRPC health protocol. The pipeline
// reports SERVING while the feed is running.
type GrpcServer struct {
	server *grpc.Server
	health *health.Server
	logger log.Logger
}

func NewGrpcServer(logger log.Logger) *GrpcServer {
	s := &GrpcServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Server returns the underlying grpc.Server for Serve and GracefulStop.
func (s *GrpcServer) Server() *grpc.Server {
	return s.server
}

// SetServing flips the pipeline status.
func (s *GrpcServer) SetServing(ctx context.Context, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Infof(ctx, "handler.GrpcServer.SetServing: %s is %s", ServiceName, status)
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (s *GrpcServer) Shutdown() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
