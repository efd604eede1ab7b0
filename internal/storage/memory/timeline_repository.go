package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// TimelineRepository хранит историю заказов в памяти. История переживает удаление заказа.
type TimelineRepository struct {
	mu      sync.RWMutex
	byOrder map[int64][]domain.TimelineEvent
}

// NewTimelineRepository создаёт пустую in-memory историю.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{byOrder: make(map[int64][]domain.TimelineEvent)}
}

// Append вставляет событие, сохраняя порядок по Occurred; равные моменты идут в порядке записи.
func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.byOrder[event.OrderID]
	pos := len(events)
	for pos > 0 && events[pos-1].Occurred.After(event.Occurred) {
		pos--
	}
	r.byOrder[event.OrderID] = slices.Insert(events, pos, event)
	return nil
}

func (r *TimelineRepository) List(_ context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.byOrder[orderID]), nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
