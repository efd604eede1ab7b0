package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

const (
	defaultLookupTimeout = 2 * time.Second
	defaultMaxFailures   = 5
	defaultResetTimeout  = 30 * time.Second
)

// Результаты обращения к каталогу для метрик.
const (
	lookupResultOK          = "ok"
	lookupResultUnavailable = "product_unavailable"
	lookupResultTimeout     = "timeout"
	lookupResultError       = "error"
	lookupResultRejected    = "breaker_open"
)

// GuardedOptions задаёт параметры защищённого каталога.
type GuardedOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.OrderMetrics
	Timeout      time.Duration
	MaxFailures  int
	ResetTimeout time.Duration
}

// Option настраивает Guarded.
type Option func(*GuardedOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *GuardedOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики каталога.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *GuardedOptions) {
		opts.Metrics = m
	}
}

// WithTimeout задаёт предельное время одного обращения.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *GuardedOptions) {
		opts.Timeout = timeout
	}
}

// WithBreaker задаёт порог размыкания и время до пробного запроса.
func WithBreaker(maxFailures int, resetTimeout time.Duration) Option {
	return func(opts *GuardedOptions) {
		opts.MaxFailures = maxFailures
		opts.ResetTimeout = resetTimeout
	}
}

// Guarded ограничивает обращения к каталогу по времени и размыкает цепь при
// серии инфраструктурных отказов. Повторных попыток нет: ошибка сразу уходит вызывающему.
type Guarded struct {
	next    domain.Catalog
	breaker *CircuitBreaker
	timeout time.Duration
	metrics *metrics.OrderMetrics
	logger  *log.Entry
}

// NewGuarded оборачивает каталог next.
func NewGuarded(next domain.Catalog, options ...Option) *Guarded {
	opts := GuardedOptions{
		Timeout:      defaultLookupTimeout,
		MaxFailures:  defaultMaxFailures,
		ResetTimeout: defaultResetTimeout,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultLookupTimeout
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = defaultResetTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}

	breaker := NewCircuitBreaker(opts.MaxFailures, opts.ResetTimeout, logger)
	m := opts.Metrics
	breaker.OnStateChange(func(state CircuitState) {
		m.SetCatalogBreakerOpen(state == CircuitOpen)
	})

	return &Guarded{
		next:    next,
		breaker: breaker,
		timeout: opts.Timeout,
		metrics: m,
		logger:  logger,
	}
}

// Breaker возвращает circuit breaker (для проверок состояния).
func (g *Guarded) Breaker() *CircuitBreaker {
	return g.breaker
}

// Lookup реализует domain.Catalog. Любой отказ инфраструктуры превращается в
// domain.ErrCatalogUnavailable; отмена ctx вызывающим возвращается как есть.
func (g *Guarded) Lookup(ctx context.Context, productID int64) (domain.Product, error) {
	started := time.Now()

	var (
		product     domain.Product
		businessErr error
	)
	err := g.breaker.Execute("catalog.lookup", func() error {
		lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		p, err := g.next.Lookup(lookupCtx, productID)
		switch {
		case err == nil:
			product = p
			return nil
		case errors.Is(err, domain.ErrProductUnavailable):
			// Ответ каталога по существу: цепь исправна.
			businessErr = err
			return nil
		case ctx.Err() != nil:
			// Вызывающий ушёл сам, каталог тут ни при чём.
			businessErr = ctx.Err()
			return nil
		default:
			return err
		}
	})

	elapsed := time.Since(started)
	switch {
	case errors.Is(err, ErrCircuitOpen):
		g.metrics.RecordCatalogLookup(lookupResultRejected, elapsed)
		return domain.Product{}, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		g.metrics.RecordCatalogLookup(lookupResultTimeout, elapsed)
		g.logger.WithFields(log.Fields{
			"product_id": productID,
			"timeout":    g.timeout,
		}).Warn("catalog lookup timed out")
		return domain.Product{}, fmt.Errorf("catalog lookup timed out after %s: %w", g.timeout, domain.ErrCatalogUnavailable)
	case err != nil:
		g.metrics.RecordCatalogLookup(lookupResultError, elapsed)
		g.logger.WithError(err).WithField("product_id", productID).Warn("catalog lookup failed")
		if errors.Is(err, domain.ErrCatalogUnavailable) {
			return domain.Product{}, err
		}
		return domain.Product{}, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	case businessErr != nil:
		g.metrics.RecordCatalogLookup(lookupResultUnavailable, elapsed)
		return domain.Product{}, businessErr
	}

	g.metrics.RecordCatalogLookup(lookupResultOK, elapsed)
	return product, nil
}

var _ domain.Catalog = (*Guarded)(nil)
