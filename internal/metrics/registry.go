package metrics

import (
	"errors"
	"fmt"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

// register регистрирует collector. Если метрика с тем же описанием уже есть
// (повторная сборка приложения в одном процессе), возвращается существующая.
func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing
		}
		panic(fmt.Sprintf("metric %q already registered with a different type", name))
	}
	panic(fmt.Sprintf("register metric %q: %v", name, err))
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	return register(registerer, opts.Name, prometheus.NewGaugeVec(opts, labels))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(registerer, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

// RegisterBuildInfo публикует константную метрику oms_build_info с версией сборки в метках.
func RegisterBuildInfo(registerer prometheus.Registerer, version, commit, date string) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	info := registerGaugeVec(registerer, prometheus.GaugeOpts{
		Name: "oms_build_info",
		Help: "Build information of the running order service",
	}, []string{"version", "commit", "date"})
	info.WithLabelValues(version, commit, date).Set(1)
}

// RegisterGRPCServerMetrics регистрирует interceptor-метрики gRPC сервера (grpc_server_*).
func RegisterGRPCServerMetrics(registerer prometheus.Registerer) *promgrpc.ServerMetrics {
	return register(registerer, "grpc_server_metrics", promgrpc.NewServerMetrics())
}
