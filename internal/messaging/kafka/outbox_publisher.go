package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер событий заказов для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish реализует domain.OutboxPublisher.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	envelope := OrderEventEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   p.producer.now(),
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	return p.producer.Send(ctx, Message{
		Topic:   p.topic,
		Key:     messageKey(event),
		Value:   value,
		Headers: eventHeaders(event),
	})
}

// DLQPublisher перекладывает в DLQ сообщения, которые не удалось опубликовать.
// Payload уже содержит конверт outbox worker; publisher добавляет заголовки источника.
type DLQPublisher struct {
	producer      *Producer
	topic         string
	originalTopic string
}

// NewDLQPublisher создаёт publisher для dead letter topic.
func NewDLQPublisher(producer *Producer, topic, originalTopic string) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if originalTopic == "" {
		originalTopic = TopicOrderEvents
	}
	return &DLQPublisher{producer: producer, topic: topic, originalTopic: originalTopic}
}

// Publish реализует domain.OutboxPublisher.
func (p *DLQPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	headers := eventHeaders(event)
	headers[HeaderOriginalTopic] = p.originalTopic
	headers[HeaderFailedAt] = p.producer.now().Format(time.RFC3339Nano)

	return p.producer.Send(ctx, Message{
		Topic:   p.topic,
		Key:     messageKey(event),
		Value:   event.Payload,
		Headers: headers,
	})
}

func messageKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

func eventHeaders(event domain.OutboxMessage) map[string]string {
	return map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQPublisher)(nil)
)
