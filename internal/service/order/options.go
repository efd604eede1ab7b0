package order

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

// DefaultMaxLineQuantity задаёт потолок количества в позиции, если не задан явно.
const DefaultMaxLineQuantity int32 = 99

// Options задаёт параметры сервиса заказов.
type Options struct {
	Logger          *log.Entry
	Metrics         *metrics.OrderMetrics
	MaxLineQuantity int32
	Now             func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики операций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithMaxLineQuantity задаёт потолок количества в позиции.
func WithMaxLineQuantity(limit int32) Option {
	return func(opts *Options) {
		opts.MaxLineQuantity = limit
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}
