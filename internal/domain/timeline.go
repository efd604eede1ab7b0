package domain

import "time"

// TimelineEventType задаёт тип события в истории заказа.
type TimelineEventType string

const (
	TimelineOrderCreated  TimelineEventType = "order.created"
	TimelineLineAdded     TimelineEventType = "order.line_added"
	TimelineLineRemoved   TimelineEventType = "order.line_removed"
	TimelineStatusChanged TimelineEventType = "order.status_changed"
	TimelineOrderDeleted  TimelineEventType = "order.deleted"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID int64
	Type    TimelineEventType
	// Reason содержит короткое человекочитаемое описание: переход статуса, затронутый товар.
	Reason   string
	Actor    Actor
	Occurred time.Time
}
