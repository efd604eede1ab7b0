package domain

import "strings"

// OrderStatus описывает жизненный цикл заказа.
//
//	created ──> in-preparation ──> ready ──> completed
//	   │              │              │
//	   └──────────────┴──────────────┴──> cancelled
type OrderStatus string

const (
	// OrderStatusCreated: заказ принят, приготовление ещё не начато.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusInPreparation: персонал готовит заказ.
	OrderStatusInPreparation OrderStatus = "in-preparation"
	// OrderStatusReady: заказ готов к выдаче, позиции заморожены.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusCompleted: заказ выдан клиенту.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled: заказ отменён персоналом.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:       {OrderStatusInPreparation, OrderStatusCancelled},
	OrderStatusInPreparation: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:         {OrderStatusCompleted, OrderStatusCancelled},
}

// ParseOrderStatus разбирает статус из внешнего представления.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusInPreparation, OrderStatusReady,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, что у статуса нет исходящих переходов (completed, cancelled).
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// InProgress сообщает, что заказ ещё не выдан и не отменён.
func (s OrderStatus) InProgress() bool {
	return s == OrderStatusCreated || s == OrderStatusInPreparation || s == OrderStatusReady
}

// LinesMutable сообщает, доступны ли изменение позиций и удаление (только до статуса ready).
func (s OrderStatus) LinesMutable() bool {
	return s == OrderStatusCreated || s == OrderStatusInPreparation
}

// CheckTransition проверяет переход from -> to.
// Возвращает changed=false для повторного применения текущего статуса нетерминального заказа.
func CheckTransition(from, to OrderStatus) (changed bool, err error) {
	if from.IsTerminal() {
		return false, ErrOrderAlreadyFinalized
	}
	if !to.Valid() {
		return false, ErrInvalidStatusTransition
	}
	if from == to {
		return false, nil
	}
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true, nil
		}
	}
	return false, ErrInvalidStatusTransition
}
