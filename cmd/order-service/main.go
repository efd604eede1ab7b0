package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/app"
	"github.com/vladislavdragonenkov/pedidos/internal/telemetry"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

const (
	envHTTPAddr                    = "OMS_HTTP_ADDR"
	envGRPCAddr                    = "OMS_GRPC_ADDR"
	envMetricsAddr                 = "OMS_METRICS_ADDR"
	envStorageDriver               = "OMS_STORAGE_DRIVER"
	envPostgresDSN                 = "OMS_POSTGRES_DSN"
	envPostgresAutoMigrate         = "OMS_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns            = "OMS_POSTGRES_MAX_CONNS"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envOrderEventsTopic            = "OMS_ORDER_EVENTS_TOPIC"
	envDLQTopic                    = "OMS_DLQ_TOPIC"
	envOutboxPollInterval          = "OMS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "OMS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "OMS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "OMS_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "OMS_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "OMS_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envCatalogURL                  = "OMS_CATALOG_URL"
	envCatalogTimeout              = "OMS_CATALOG_TIMEOUT"
	envCatalogBreakerFailures      = "OMS_CATALOG_BREAKER_FAILURES"
	envCatalogBreakerReset         = "OMS_CATALOG_BREAKER_RESET"
	envMaxLineQuantity             = "OMS_MAX_LINE_QUANTITY"
	envDefaultPageSize             = "OMS_DEFAULT_PAGE_SIZE"
	envMaxPageSize                 = "OMS_MAX_PAGE_SIZE"
	envLogLevel                    = "OMS_LOG_LEVEL"
	envTraceExporter               = "OMS_TRACE_EXPORTER"
	envOTLPEndpoint                = "OMS_OTLP_ENDPOINT"
	envTraceSampleRatio            = "OMS_TRACE_SAMPLE_RATIO"
	envEnvironment                 = "OMS_ENV"
)

const (
	serviceName        = "pedidos-order-service"
	tracerFlushTimeout = 5 * time.Second
	defaultEnvironment = "local"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookupTrimmed(lookup, envLogLevel)
	if !ok {
		return nil
	}
	level, err := log.ParseLevel(raw)
	if err != nil {
		return []string{fmt.Sprintf("%s: %v", envLogLevel, err)}
	}
	log.SetLevel(level)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не применяются и возвращаются предупреждениями.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	setString := func(key string, dst *string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*dst = v
		}
	}
	setPositiveInt := func(key string, dst *int) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
			if err != nil {
				warn(key, err)
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := lookupTrimmed(lookup, key); ok {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				warn(key, err)
				return
			}
			*dst = parsed
		}
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)

	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	setPositiveInt(envPostgresMaxConns, &cfg.PostgresMaxConns)

	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envOrderEventsTopic, &cfg.OrderEventsTopic)
	setString(envDLQTopic, &cfg.DLQTopic)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	setPositiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	setPositiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")

	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	setPositiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	setString(envCatalogURL, &cfg.CatalogURL)
	setDuration(envCatalogTimeout, &cfg.CatalogTimeout, positive, "must be > 0")
	setPositiveInt(envCatalogBreakerFailures, &cfg.CatalogBreakerFailures)
	setDuration(envCatalogBreakerReset, &cfg.CatalogBreakerReset, positive, "must be > 0")

	setPositiveInt(envMaxLineQuantity, &cfg.MaxLineQuantity)
	setPositiveInt(envDefaultPageSize, &cfg.DefaultPageSize)
	setPositiveInt(envMaxPageSize, &cfg.MaxPageSize)

	if v, ok := lookupTrimmed(lookup, envTraceExporter); ok {
		switch exporter := strings.ToLower(v); exporter {
		case telemetry.ExporterNone, telemetry.ExporterOTLP, telemetry.ExporterStdout:
			cfg.TraceExporter = exporter
		default:
			warn(envTraceExporter, fmt.Errorf("unknown exporter %q", v))
		}
	}
	setString(envOTLPEndpoint, &cfg.OTLPEndpoint)
	if v, ok := lookupTrimmed(lookup, envTraceSampleRatio); ok {
		parsed, err := parseRatio(v)
		if err != nil {
			warn(envTraceSampleRatio, err)
		} else {
			cfg.TraceSampleRatio = parsed
		}
	}

	return cfg, warnings
}

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("invalid value %d: %s", v, rule)
	}
	return v, nil
}

func parseRatio(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ratio value %q", raw)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("invalid value %g: must be within [0, 1]", v)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("invalid value %s: %s", v, rule)
	}
	return v, nil
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("не удалось прочитать .env")
	}

	warnings := setupLogger(os.LookupEnv)
	cfg, configWarnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range append(warnings, configWarnings...) {
		log.WithField("setting", w).Warn("некорректное значение настройки, используется значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Current().Fields()).WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaBrokers != "",
		"trace_exporter": cfg.TraceExporter,
	}).Info("запускаем OrderService")

	environment := defaultEnvironment
	if v, ok := lookupTrimmed(os.LookupEnv, envEnvironment); ok {
		environment = v
	}
	if err := run(ctx, cfg, environment); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderService остановлен")
}

// run держит трассировку до конца app.Run: отложенный shutdown выгружает спаны
// до того, как main вызовет Fatal.
func run(ctx context.Context, cfg app.Config, environment string) error {
	shutdown, err := telemetry.SetupTracer(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		Environment:    environment,
		Exporter:       cfg.TraceExporter,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.WithError(err).Warn("не удалось выгрузить спаны")
		}
	}()

	return app.Run(ctx, cfg)
}
