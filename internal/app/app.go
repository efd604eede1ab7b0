// Package app собирает сервис: хранилища, каталог, движки, HTTP API, gRPC health,
// метрики и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pedidos/internal/health"
	"github.com/vladislavdragonenkov/pedidos/internal/lock"
	"github.com/vladislavdragonenkov/pedidos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/service/cart"
	"github.com/vladislavdragonenkov/pedidos/internal/service/catalog"
	"github.com/vladislavdragonenkov/pedidos/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pedidos/internal/service/order"
	"github.com/vladislavdragonenkov/pedidos/internal/service/outbox"
	"github.com/vladislavdragonenkov/pedidos/internal/service/query"
	"github.com/vladislavdragonenkov/pedidos/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

// application хранит собранные компоненты сервиса до запуска серверов.
type application struct {
	deps     *runtimeDependencies
	catalog  *catalog.Guarded
	api      http.Handler
	health   *healthcheck.Handler
	outbox   *outbox.Worker
	cleanup  *idempotency.CleanupWorker
	producer *kafka.Producer
}

// newApplication собирает зависимости по конфигурации. Kafka необязательна:
// ошибка подключения только отключает публикацию событий.
func newApplication(ctx context.Context, cfg Config, logger *log.Entry) (*application, error) {
	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return nil, err
	}

	orderMetrics := metrics.NewOrderMetrics()
	build := version.Current()
	metrics.RegisterBuildInfo(prometheus.DefaultRegisterer, build.Version, build.Commit, build.Date)
	guarded := newCatalog(cfg, deps, orderMetrics, logger)
	locks := lock.NewRegistry()
	maxQty := clampLineQuantity(cfg.MaxLineQuantity)

	carts := cart.NewService(deps.carts, guarded, deps.ids, locks,
		cart.WithLogger(logger.WithField("component", "cart-service")),
		cart.WithMetrics(orderMetrics),
		cart.WithMaxLineQuantity(maxQty),
	)
	orders := order.NewService(order.Dependencies{
		Carts:    deps.carts,
		Orders:   deps.orders,
		Checkout: deps.checkout,
		Catalog:  guarded,
		IDs:      deps.ids,
		Timeline: deps.timeline,
		Outbox:   deps.outboxRepo,
		Locks:    locks,
	},
		order.WithLogger(logger.WithField("component", "order-service")),
		order.WithMetrics(orderMetrics),
		order.WithMaxLineQuantity(maxQty),
	)
	queries := query.NewService(deps.orders, deps.timeline,
		query.WithLogger(logger.WithField("component", "order-query")),
		query.WithMetrics(orderMetrics),
		query.WithPageSizes(cfg.DefaultPageSize, cfg.MaxPageSize),
	)

	api := httpapi.New(carts, orders, queries,
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithIdempotency(deps.idempotencyRepo, domain.DefaultIdempotencyTTL),
	)

	healthHandler := healthcheck.NewHandler(build.Version)
	if deps.store != nil {
		healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", deps.store))
	}
	healthHandler.RegisterChecker("catalog", healthcheck.NewDegradedChecker("catalog", func() string {
		if state := guarded.Breaker().State(); state != catalog.CircuitClosed {
			return "circuit breaker " + state.String()
		}
		return ""
	}))

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka недоступна, события остаются в outbox")
	}
	publisher, dlq := outboxPublishers(producer, cfg)
	outboxOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlq != nil {
		outboxOptions = append(outboxOptions, outbox.WithDLQPublisher(dlq))
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(prometheus.DefaultRegisterer)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	return &application{
		deps:     deps,
		catalog:  guarded,
		api:      api.Routes(),
		health:   healthHandler,
		outbox:   outbox.NewWorker(deps.outboxRepo, publisher, outboxOptions...),
		cleanup:  cleanup,
		producer: producer,
	}, nil
}

// close освобождает внешние подключения после остановки серверов и воркеров.
func (a *application) close(logger *log.Entry) {
	closeKafka(a.producer, logger)
	if err := a.deps.Close(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// runWorkers запускает фоновые воркеры; wait дожидается их остановки после отмены ctx.
func (a *application) runWorkers(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.outbox.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.cleanup.Run(ctx)
	}()
	return wg.Wait
}

// Run запускает сервис и блокируется до отмены ctx или ошибки одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	workersCtx, stopWorkers := context.WithCancel(ctx)
	waitWorkers := a.runWorkers(workersCtx)
	defer func() {
		stopWorkers()
		waitWorkers()
	}()

	grpcServer, healthServer := newGRPCServer()
	go syncServingStatus(workersCtx, healthServer, a.health, defaultReadinessSyncInterval, logger.WithField("layer", "grpc"))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, a.health)
	apiSrv := newAPIServer(cfg.HTTPAddr, a.api)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.Serve(apiLis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopWorkers()
		healthServer.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopWorkers()
		healthServer.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// stopGRPC останавливает gRPC сервер, принудительно по истечении shutdownTimeout.
func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

func clampLineQuantity(limit int) int32 {
	if limit <= 0 {
		return 0
	}
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit)
}
