package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label result.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// OrderMetrics содержит метрики корзин и заказов. Nil-значение допустимо и ничего не пишет.
type OrderMetrics struct {
	// Счётчики операций
	operations       *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	ordersCreated    *prometheus.CounterVec
	ordersDeleted    prometheus.Counter
	statusTransition *prometheus.CounterVec

	// Гистограммы времени выполнения
	operationDuration *prometheus.HistogramVec
	lockWait          *prometheus.HistogramVec

	// Каталог
	catalogLookups *prometheus.CounterVec
	catalogLatency prometheus.Histogram
	breakerOpen    prometheus.Gauge

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном registerer; повторная
// регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_operations_total",
			Help: "Total number of cart and order operations grouped by result",
		}, []string{"operation", "result"}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_operation_rejections_total",
			Help: "Total number of rejected operations grouped by error kind",
		}, []string{"operation", "kind"}),
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_orders_created_total",
			Help: "Total number of orders created grouped by channel",
		}, []string{"channel"}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_orders_deleted_total",
			Help: "Total number of orders deleted by staff",
		}),
		statusTransition: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_order_status_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"from", "to"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "oms_operation_duration_seconds",
			Help:    "Duration of cart and order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		lockWait: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "oms_lock_wait_seconds",
			Help:    "Time spent waiting for a per-cart or per-order mutation lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"scope"}),
		catalogLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_catalog_lookups_total",
			Help: "Total number of catalog lookups grouped by result",
		}, []string{"result"}),
		catalogLatency: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "oms_catalog_lookup_duration_seconds",
			Help:    "Catalog lookup latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		breakerOpen: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "oms_catalog_breaker_open",
			Help: "1 when the catalog circuit breaker is open, 0 otherwise",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

// RecordOperation фиксирует результат операции и её длительность.
// kind пустой для успешных операций.
func (m *OrderMetrics) RecordOperation(operation, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if kind != "" {
		result = ResultRejected
		m.rejections.WithLabelValues(operation, kind).Inc()
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated(channel string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(channel).Inc()
}

// RecordOrderDeleted увеличивает счётчик удалённых заказов.
func (m *OrderMetrics) RecordOrderDeleted() {
	if m == nil {
		return
	}
	m.ordersDeleted.Inc()
}

// RecordStatusTransition фиксирует применённый переход статуса.
func (m *OrderMetrics) RecordStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransition.WithLabelValues(from, to).Inc()
}

// RecordLockWait записывает время ожидания блокировки (scope: cart|order).
func (m *OrderMetrics) RecordLockWait(scope string, wait time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(scope).Observe(wait.Seconds())
}

// RecordCatalogLookup фиксирует обращение к каталогу.
func (m *OrderMetrics) RecordCatalogLookup(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.catalogLookups.WithLabelValues(result).Inc()
	m.catalogLatency.Observe(duration.Seconds())
}

// SetCatalogBreakerOpen отражает состояние circuit breaker каталога.
func (m *OrderMetrics) SetCatalogBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
