package app

import (
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/telemetry"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Топики по умолчанию.
const (
	DefaultOrderEventsTopic = "oms.order.events"
	DefaultDLQTopic         = "oms.dlq"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	// KafkaBrokers: список брокеров через запятую; пустая строка отключает публикацию.
	KafkaBrokers     string
	OrderEventsTopic string
	DLQTopic         string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	CatalogURL             string
	CatalogTimeout         time.Duration
	CatalogBreakerFailures int
	CatalogBreakerReset    time.Duration

	MaxLineQuantity int
	DefaultPageSize int
	MaxPageSize     int

	// TraceExporter: none, otlp или stdout.
	TraceExporter    string
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// DefaultConfig возвращает настройки для локального запуска с in-memory хранилищем.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,

		OrderEventsTopic: DefaultOrderEventsTopic,
		DLQTopic:         DefaultDLQTopic,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 500,

		CatalogTimeout:         2 * time.Second,
		CatalogBreakerFailures: 5,
		CatalogBreakerReset:    30 * time.Second,

		MaxLineQuantity: 99,
		DefaultPageSize: 50,
		MaxPageSize:     200,

		TraceExporter:    telemetry.ExporterNone,
		OTLPEndpoint:     telemetry.DefaultOTLPEndpoint,
		TraceSampleRatio: 1,
	}
}
