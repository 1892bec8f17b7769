package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mvaleed/acs/internal/resilience"
)

// HealthSampler periodically reflects resilience.Guard's overall status
// into the standard gRPC health service (spec §4.E's health surface,
// exposed over gRPC the way aegis already depends on grpc/health).
type HealthSampler struct {
	server   *health.Server
	guard    *resilience.Guard
	interval time.Duration
}

func NewHealthSampler(server *health.Server, guard *resilience.Guard, interval time.Duration) *HealthSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthSampler{server: server, guard: guard, interval: interval}
}

func (h *HealthSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

func (h *HealthSampler) sample() {
	status := healthpb.HealthCheckResponse_SERVING
	if h.guard != nil && h.guard.Health().Overall() == resilience.StatusCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus("acs.v1.CommandService", status)
}
