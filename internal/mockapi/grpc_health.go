package mockapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"brdconsole.org/internal/obs"
)

// ServiceName is the service reported by the gRPC health protocol.
const ServiceName = "brdadmin-mock"

// HealthService publishes store readiness over the standard gRPC health
// protocol, for orchestrators that poll gRPC rather than HTTP.
type HealthService struct {
	check    ReadyCheck
	srv      *health.Server
	interval time.Duration
}

// NewHealthService starts in NOT_SERVING until the first Refresh.
func NewHealthService(check ReadyCheck, interval time.Duration) *HealthService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthService{check: check, srv: health.NewServer(), interval: interval}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh checks the store once and publishes the result.
func (h *HealthService) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.check.Check(ctx); err != nil {
		obs.SetReady(false)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	obs.SetReady(true)
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run refreshes on every interval until ctx ends, then reports shutdown.
func (h *HealthService) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		if err := h.Refresh(ctx); err != nil && ctx.Err() == nil {
			obs.Logger().Warn().Err(err).Msg("store not ready")
		}
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
		}
	}
}

func (h *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(ServiceName, status)
}
