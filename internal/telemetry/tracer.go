// Package telemetry настраивает OpenTelemetry: глобальный TracerProvider,
// экспортёр спанов и W3C-пропагацию контекста.
//
// otelhttp на входящих запросах и в HTTP-клиенте каталога читает глобальные
// провайдер и пропагатор, поэтому SetupTracer вызывается один раз в main до старта серверов:
//
//	shutdown, err := telemetry.SetupTracer(ctx, cfg)
//	if err != nil { ... }
//	defer shutdown(context.Background())
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Экспортёры спанов.
const (
	// ExporterNone создаёт trace_id и пропагирует контекст, но спаны никуда не отправляет.
	ExporterNone   = "none"
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// DefaultOTLPEndpoint совпадает с портом OTLP/gRPC коллектора по умолчанию.
const DefaultOTLPEndpoint = "localhost:4317"

// ErrUnknownExporter возвращается для неподдерживаемого значения Config.Exporter.
var ErrUnknownExporter = errors.New("telemetry: unknown span exporter")

// Config описывает трассировку процесса.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Exporter string
	// Endpoint: host:port коллектора, схема http(s):// отбрасывается.
	Endpoint string
	// SampleRatio: доля корневых трасс, попадающих в выборку; дочерние следуют решению родителя.
	SampleRatio float64

	// Writer получает спаны экспортёра stdout; nil означает os.Stdout.
	Writer io.Writer
}

// ShutdownFunc выгружает буферизованные спаны и закрывает соединение экспортёра.
type ShutdownFunc func(ctx context.Context) error

// SetupTracer регистрирует глобальные TracerProvider и TextMapPropagator.
func SetupTracer(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	exporter, closeExporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		_ = closeExporter()
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closeErr := closeExporter(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		if err != nil {
			return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

// newSpanExporter возвращает nil-экспортёр для ExporterNone.
func newSpanExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "", ExporterNone:
		return nil, noop, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
		}
		return exporter, noop, nil
	case ExporterOTLP:
		endpoint := stripScheme(cfg.Endpoint)
		if endpoint == "" {
			endpoint = DefaultOTLPEndpoint
		}
		// grpc.NewClient не подключается сразу: недоступный коллектор не мешает старту
		conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: dial collector at %s: %w", endpoint, err)
		}
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
		}
		return exporter, conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.Exporter)
	}
}

// TraceID возвращает идентификатор трассы из ctx или пустую строку.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	for _, prefix := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(endpoint, prefix); ok {
			return rest
		}
	}
	return endpoint
}
