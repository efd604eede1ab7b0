// Package idempotency очищает просроченные ключи идемпотентности создания заказов.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

const (
	defaultInterval   = 10 * time.Minute
	defaultBatchSize  = 500
	defaultMaxBatches = 100
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики очистки.
func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithClock подменяет источник времени (в тестах).
func WithClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithInterval задаёт паузу между проходами. Неположительное значение игнорируется.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт число записей, удаляемых одним запросом.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxBatches ограничивает число запросов за один проход; остаток дочистит следующий.
func WithMaxBatches(n int) CleanupOption {
	return func(w *CleanupWorker) {
		if n > 0 {
			w.maxBatches = n
		}
	}
}

// CleanupWorker периодически удаляет ключи, срок жизни которых истёк.
type CleanupWorker struct {
	repo       domain.IdempotencyRepository
	metrics    *metrics.CleanupMetrics
	logger     *log.Entry
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// NewCleanupWorker создаёт воркер с настройками по умолчанию, переопределяемыми опциями.
func NewCleanupWorker(repo domain.IdempotencyRepository, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:       repo,
		logger:     log.WithField("component", "idempotency-cleanup"),
		interval:   defaultInterval,
		batchSize:  defaultBatchSize,
		maxBatches: defaultMaxBatches,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run делает проход сразу и затем раз в interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("очистка ключей идемпотентности отключена: нет репозитория")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runPass(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runPass(ctx context.Context) {
	deleted, err := w.Sweep(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.metrics.RecordRun(metrics.ResultError, deleted)
		w.logger.WithError(err).WithField("deleted", deleted).Warn("проход очистки ключей завершился ошибкой")
	default:
		w.metrics.RecordRun(metrics.ResultOK, deleted)
		if deleted > 0 {
			w.logger.WithField("deleted", deleted).Info("просроченные ключи идемпотентности удалены")
		}
	}
}

// Sweep удаляет записи с ttl_at <= before порциями batchSize, пока порция заполнена
// и не исчерпан лимит maxBatches. Нулевой before означает текущее время.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for range w.maxBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		w.metrics.AddDeleted(n)

		if n < w.batchSize {
			break
		}
	}
	return total, nil
}
