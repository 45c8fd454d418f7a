package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"geovisor.org/internal/obs"
)

// HealthServer publishes database readiness over the standard gRPC health
// protocol, both for the empty service name and for serviceName.
type HealthServer struct {
	health *health.Server
	ready  Pinger
}

// NewHealthServer returns a server that reports NOT_SERVING until the first
// Refresh succeeds.
func NewHealthServer(ready Pinger) *HealthServer {
	h := &HealthServer{health: health.NewServer(), ready: ready}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Refresh pings the database once and updates the published status.
func (h *HealthServer) Refresh(ctx context.Context) bool {
	ok := true
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.ready.Ping(ctx); err != nil {
			obs.Logger().WarnContext(ctx, "grpc_readiness_failed", "error", err.Error())
			ok = false
		}
	}
	obs.SetReady(ok)
	if ok {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return ok
}

// Run refreshes on every tick until ctx ends, then marks the server as
// shutting down.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(serviceName, status)
}

// NewGRPCServer builds a gRPC server exposing health and reflection.
func NewGRPCServer(h *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, h.health)
	reflection.Register(srv)
	return srv
}
