package rpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"stakepool/core"
)

// PoolServiceName is the service reported by the gRPC health endpoint.
const PoolServiceName = "stakepool.Pool"

// HealthServer exposes gRPC health checks for orchestrators. The pool
// service reports SERVING once a pool exists in the store.
type HealthServer struct {
	node   *core.Node
	logger *slog.Logger
	health *health.Server
	grpc   *grpc.Server
}

func NewHealthServer(node *core.Node, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(otelgrpc.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)
	h := &HealthServer{
		node:   node,
		logger: logger.With(slog.String("component", "health")),
		health: hs,
		grpc:   grpcServer,
	}
	h.Refresh()
	return h
}

// Refresh recomputes the pool service status.
func (h *HealthServer) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if _, err := h.node.PoolInfo(); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(PoolServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Serve blocks until the listener fails or Stop is called. The status is
// refreshed every interval while serving.
func (h *HealthServer) Serve(ctx context.Context, listener net.Listener, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Refresh()
			}
		}
	}()
	h.logger.Info("health server listening", slog.String("listen", listener.Addr().String()))
	return h.grpc.Serve(listener)
}

// Stop marks every service NOT_SERVING and drains in-flight checks.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
