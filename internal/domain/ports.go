package domain

import (
	"context"
	"time"
)

// Product описывает ответ каталога на момент запроса.
type Product struct {
	ID         int64
	Name       string
	PriceMinor int64
	Available  bool
}

// Catalog разрешает идентификатор товара в цену и доступность.
type Catalog interface {
	// Lookup возвращает ErrProductUnavailable для неизвестного товара и
	// ErrCatalogUnavailable, если каталог не ответил.
	Lookup(ctx context.Context, productID int64) (Product, error)
}

// IDGenerator выдаёт непрозрачные целочисленные идентификаторы заказов и строк.
type IDGenerator interface {
	NextOrderID(ctx context.Context) (int64, error)
	NextLineID(ctx context.Context) (int64, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID int64) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Агрегаты, для которых пишутся события в outbox.
const (
	AggregateOrder = "order"
)

// Типы событий заказа, публикуемые во внешние сервисы.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderLinesChanged  = "order.lines_changed"
	EventOrderDeleted       = "order.deleted"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
