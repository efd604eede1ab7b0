package order

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// EventLine описывает позицию заказа в событии.
type EventLine struct {
	LineID         int64 `json:"line_id"`
	ProductID      int64 `json:"product_id"`
	Qty            int32 `json:"qty"`
	UnitPriceMinor int64 `json:"unit_price_minor"`
}

// EventPayload задаёт тело событий заказа, публикуемых через outbox.
type EventPayload struct {
	OrderID        int64       `json:"order_id"`
	CustomerID     *int64      `json:"customer_id,omitempty"`
	Channel        string      `json:"channel"`
	Status         string      `json:"status"`
	PreviousStatus string      `json:"previous_status,omitempty"`
	TotalMinor     int64       `json:"total_minor"`
	Lines          []EventLine `json:"lines"`
	ActorID        int64       `json:"actor_id"`
	ActorRole      string      `json:"actor_role"`
	Reason         string      `json:"reason,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

type emission struct {
	eventType      string
	timelineType   domain.TimelineEventType
	previousStatus domain.OrderStatus
	reason         string
}

// emit пишет событие в outbox и timeline. Основная мутация к этому моменту
// уже сохранена, поэтому ошибки здесь только логируются.
func (s *Service) emit(ctx context.Context, order domain.Order, actor domain.Actor, e emission) {
	now := s.now()
	ctx = context.WithoutCancel(ctx)
	fields := log.Fields{
		"order_id": order.ID,
		"event":    e.eventType,
	}

	if s.outbox != nil {
		payload := EventPayload{
			OrderID:        order.ID,
			CustomerID:     order.CustomerID,
			Channel:        string(order.Channel),
			Status:         string(order.Status),
			PreviousStatus: string(e.previousStatus),
			TotalMinor:     order.TotalMinor,
			Lines:          make([]EventLine, 0, len(order.Lines)),
			ActorID:        actor.ID,
			ActorRole:      string(actor.Role),
			Reason:         e.reason,
			OccurredAt:     now,
		}
		for _, line := range order.Lines {
			payload.Lines = append(payload.Lines, EventLine{
				LineID:         line.ID,
				ProductID:      line.ProductID,
				Qty:            line.Qty,
				UnitPriceMinor: line.UnitPriceMinor,
			})
		}

		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("marshal event failed")
		} else if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateOrder,
			AggregateID:   strconv.FormatInt(order.ID, 10),
			EventType:     e.eventType,
			Payload:       data,
		}); err != nil {
			s.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		} else {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     e.timelineType,
			Reason:   e.reason,
			Actor:    actor,
			Occurred: now,
		}
		if err := s.timeline.Append(ctx, event); err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else {
			s.metrics.RecordTimelineEvent()
		}
	}
}
