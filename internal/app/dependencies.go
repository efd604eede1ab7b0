package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/service/catalog"
	"github.com/vladislavdragonenkov/pedidos/internal/storage/memory"
	"github.com/vladislavdragonenkov/pedidos/internal/storage/postgres"
)

var errPostgresDSNRequired = errors.New("postgres storage requires OMS_POSTGRES_DSN")

// runtimeDependencies держит хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	carts           domain.CartRepository
	orders          domain.OrderRepository
	checkout        domain.CheckoutRepository
	ids             domain.IDGenerator
	timeline        domain.TimelineRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	// store заполнен только для postgres.
	store *postgres.Store
}

// Close освобождает подключение к БД, если оно есть.
func (d *runtimeDependencies) Close() error {
	if d == nil || d.store == nil {
		return nil
	}
	return d.store.Close()
}

// initRuntimeDependencies создаёт хранилища по настройкам.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		carts := memory.NewCartRepository()
		orders := memory.NewOrderRepository()
		logger.Info("используем in-memory хранилище")
		return &runtimeDependencies{
			carts:           carts,
			orders:          orders,
			checkout:        memory.NewCheckoutRepository(carts, orders),
			ids:             memory.NewIDGenerator(),
			timeline:        memory.NewTimelineRepository(),
			outboxRepo:      memory.NewOutboxRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}, nil
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errPostgresDSNRequired
		}

		store, err := postgres.Open(ctx, dsn, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("миграции postgres применены")
		}

		logger.Info("используем postgres хранилище")
		return &runtimeDependencies{
			carts:           postgres.NewCartRepository(store),
			orders:          postgres.NewOrderRepository(store),
			checkout:        postgres.NewCheckoutRepository(store),
			ids:             postgres.NewIDGenerator(store),
			timeline:        postgres.NewTimelineRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			store:           store,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q (use %s|%s)", cfg.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}
}

// newCatalog выбирает источник каталога и оборачивает его таймаутом и circuit breaker.
// Если задан URL, используется HTTP-каталог, для postgres таблица products, иначе демо-каталог в памяти.
func newCatalog(cfg Config, deps *runtimeDependencies, m *metrics.OrderMetrics, logger *log.Entry) *catalog.Guarded {
	var source domain.Catalog
	switch {
	case strings.TrimSpace(cfg.CatalogURL) != "":
		source = catalog.NewHTTPClient(strings.TrimSpace(cfg.CatalogURL), nil)
		logger.WithField("catalog_url", cfg.CatalogURL).Info("каталог: HTTP")
	case deps != nil && deps.store != nil:
		source = postgres.NewProductCatalog(deps.store)
		logger.Info("каталог: таблица products")
	default:
		source = catalog.NewStatic(catalog.DemoProducts()...)
		logger.Warn("каталог не настроен, используем демо-товары")
	}

	return catalog.NewGuarded(source,
		catalog.WithLogger(logger.WithField("component", "catalog")),
		catalog.WithMetrics(m),
		catalog.WithTimeout(cfg.CatalogTimeout),
		catalog.WithBreaker(cfg.CatalogBreakerFailures, cfg.CatalogBreakerReset),
	)
}
