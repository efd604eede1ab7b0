// Package outbox публикует события заказов из outbox во внешний брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// Значения label result метрики публикаций.
const (
	resultSent       = "sent"
	resultRetryError = "retry_error"
	resultFailed     = "failed"
	resultDLQFailed  = "dlq_failed"
	resultDeferred   = "deferred"
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики публикаций и backlog.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher задаёт publisher для событий, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithPollInterval задаёт паузу между циклами опроса.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize ограничивает число сообщений за цикл.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации до перевода в DLQ.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт паузу после первой неудачи; дальше она удваивается до maxRetryDelay.
// Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = max(delay, 0) }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// DeadLetter публикуется в DLQ вместо события, которое не удалось доставить.
// Payload хранит исходное тело события без изменений.
type DeadLetter struct {
	DeadLetterID   string          `json:"dead_letter_id"`
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	Attempts       int             `json:"attempts"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// Worker переносит pending-сообщения outbox в брокер.
// События одного агрегата уходят строго в порядке записи: если событие не удалось
// ни опубликовать, ни переложить в DLQ, следующие события того же заказа ждут следующего цикла.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	metrics   *metrics.OutboxMetrics
	logger    *log.Entry

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewWorker создаёт воркер. Без publisher он только отслеживает backlog.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox раз в pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox worker отключён: нет репозитория")
		return
	}
	if w.publisher == nil {
		w.logger.Warn("publisher не настроен, события заказов копятся в outbox")
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// delivery описывает итог обработки одного сообщения в цикле.
type delivery int

const (
	delivered delivery = iota
	deadLettered
	held
)

// ProcessOnce выполняет один цикл и возвращает число опубликованных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.reportBacklog(ctx)

	if w.publisher == nil {
		return 0
	}

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("не удалось прочитать pending-сообщения outbox")
		return 0
	}

	sent := 0
	heldAggregates := make(map[string]bool)
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}

		aggregate := msg.AggregateType + ":" + msg.AggregateID
		if heldAggregates[aggregate] {
			w.metrics.RecordPublish(resultDeferred)
			continue
		}

		switch w.deliver(ctx, msg) {
		case delivered:
			sent++
		case held:
			heldAggregates[aggregate] = true
		}
	}
	return sent
}

// deliver публикует сообщение с повторами, а после исчерпания попыток перекладывает его в DLQ.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) delivery {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	})

	publishErr := w.publishWithRetry(ctx, msg)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("событие опубликовано, но не отмечено как sent")
			return held
		}
		return delivered
	}
	if ctx.Err() != nil {
		return held
	}

	entry.WithError(publishErr).Error("событие не опубликовано после всех попыток")
	w.metrics.RecordPublish(resultFailed)

	if err := w.sendToDLQ(ctx, msg, publishErr); err != nil {
		// сообщение остаётся pending и повторится в следующем цикле
		entry.WithError(err).Warn("не удалось отправить событие в DLQ")
		w.metrics.RecordPublish(resultDLQFailed)
		return held
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("не удалось отметить событие как failed")
	}
	return deadLettered
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(ctx, msg); err == nil {
			w.metrics.RecordPublish(resultSent)
			return nil
		}
		w.metrics.RecordPublish(resultRetryError)

		if attempt >= w.maxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, attempt, err)
		}
		if err := sleepCtx(ctx, w.retryBackoff(attempt)); err != nil {
			return err
		}
	}
}

// retryBackoff возвращает паузу после attempt-й неудачи: base * 2^(attempt-1), не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sendToDLQ без настроенного DLQ ничего не делает: потеря события остаётся только в логе.
func (w *Worker) sendToDLQ(ctx context.Context, msg domain.OutboxMessage, publishErr error) error {
	if w.dlq == nil {
		return nil
	}

	letter, err := json.Marshal(DeadLetter{
		DeadLetterID:   uuid.NewString(),
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		PublishError:   publishErr.Error(),
		Attempts:       w.maxAttempts,
		DLQPublishedAt: w.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dead := msg
	dead.Payload = letter
	if err := w.dlq.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) reportBacklog(ctx context.Context) {
	if w.metrics == nil || ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("не удалось получить размер backlog outbox")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}
