package grpcserver

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports SERVING while the store answers pings.
type Health struct {
	*health.Server
	store Pinger
	log   zerolog.Logger
}

func NewHealth(store Pinger, log zerolog.Logger) *Health {
	return &Health{Server: health.NewServer(), store: store, log: log.With().Str("component", "health").Logger()}
}

// Probe pings the store once and publishes the result for the whole
// server and the timeline service.
func (h *Health) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.store.Ping(pctx); err != nil {
		h.log.Warn().Err(err).Msg("store ping failed")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.SetServingStatus("", st)
	h.SetServingStatus(ServiceName, st)
	return st
}

// Watch runs Probe every interval until ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration) {
	h.Probe(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-t.C:
			h.Probe(ctx)
		}
	}
}
