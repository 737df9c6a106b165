package orchestration

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the orchestration service reports health under.
const ServiceName = "nexusclash.orchestration"

// RegisterHealth exposes the standard gRPC health service on server and marks
// the orchestration service as serving.
func RegisterHealth(server *grpc.Server) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// MarkDraining flips the service to NOT_SERVING so load balancers stop sending
// work while in-flight acquisitions finish.
func MarkDraining(hs *health.Server) {
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}
