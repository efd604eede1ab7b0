package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/pedidos/internal/health"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

// grpcServiceName: имя в gRPC health, по которому оркестратор проверяет готовность.
const grpcServiceName = "pedidos.OrderService"

const defaultReadinessSyncInterval = 5 * time.Second

// newGRPCServer поднимает gRPC только ради health и reflection: API сервиса HTTP.
// Общий статус "" всегда SERVING (liveness), grpcServiceName стартует NOT_SERVING
// и дальше следует readiness.
func newGRPCServer() (*grpc.Server, *health.Server) {
	serverMetrics := metrics.RegisterGRPCServerMetrics(prometheus.DefaultRegisterer)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(serverMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(serverMetrics.StreamServerInterceptor()),
	)

	probes := health.NewServer()
	probes.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	probes.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, probes)
	reflection.Register(srv)

	serverMetrics.InitializeMetrics(srv)
	return srv, probes
}

func servingStatus(ready bool) healthpb.HealthCheckResponse_ServingStatus {
	if ready {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// syncServingStatus переносит результат HTTP readiness в gRPC health каждые interval до отмены ctx.
func syncServingStatus(ctx context.Context, probes *health.Server, checks *healthcheck.Handler, interval time.Duration, logger *log.Entry) {
	if interval <= 0 {
		interval = defaultReadinessSyncInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := healthpb.HealthCheckResponse_UNKNOWN
	for {
		if next := servingStatus(checks.Ready(ctx)); next != current {
			probes.SetServingStatus(grpcServiceName, next)
			logger.WithField("status", next.String()).Info("gRPC health: статус изменился")
			current = next
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
