package health

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	appErrors "github.com/OriginVault/quantum-safe-tls-proxy/pkg/errors"
)

// GRPCServer exposes an Aggregator over the standard gRPC health
// checking protocol, alongside the HTTP /healthz surface registered
// by RegisterRoutes, for orchestrators (Kubernetes liveness/readiness
// probes, service meshes) that poll health over gRPC rather than
// HTTP.
type GRPCServer struct {
	grpc_health_v1.UnimplementedHealthServer
	agg *Aggregator
	srv *grpc.Server
}

// NewGRPCServer wires agg into a gRPC server with reflection enabled,
// matching the teacher's thin grpc.Server wrapper.
func NewGRPCServer(agg *Aggregator) *GRPCServer {
	s := &GRPCServer{agg: agg, srv: grpc.NewServer()}
	grpc_health_v1.RegisterHealthServer(s.srv, s)
	reflection.Register(s.srv)
	return s
}

// GRPC returns the underlying *grpc.Server for Serve/GracefulStop.
func (s *GRPCServer) GRPC() *grpc.Server {
	return s.srv
}

// Check runs every registered check and reports SERVING only when
// every check passes, matching the overall status RegisterRoutes
// reports over HTTP.
func (s *GRPCServer) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.GRPCStatus(appErrors.Upstream("health check cancelled", err)).Err()
	}

	report := s.agg.Run(ctx)
	resp := &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}
	if report.Status == StatusHealthy {
		resp.Status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	return resp, nil
}

// Watch is unimplemented: the proxy's health state is cheap enough to
// poll with Check, so no client has needed the streaming variant.
func (s *GRPCServer) Watch(_ *grpc_health_v1.HealthCheckRequest, _ grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watch is not supported; poll Check instead")
}
