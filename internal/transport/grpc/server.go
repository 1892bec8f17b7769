package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/resilience"
)

// NewServer builds the gRPC server: the generic command service plus the
// standard health service, with no .proto compile step required for
// either (spec §3 domain stack).
func NewServer(d *dispatch.Dispatcher, guard *resilience.Guard) (*grpc.Server, *HealthSampler) {
	srv := grpc.NewServer()

	cmdServer := NewCommandServer(d)
	srv.RegisterService(&CommandService_ServiceDesc, cmdServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)

	return srv, NewHealthSampler(healthServer, guard, 0)
}
