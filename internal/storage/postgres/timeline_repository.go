package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const timelineColumns = `order_id, type, reason, actor_id, actor_role, occurred`

// TimelineRepository хранит историю заказов в timeline_events. Записи
// переживают удаление заказа.
type TimelineRepository struct {
	store *Store
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) *TimelineRepository {
	return &TimelineRepository{store: store}
}

func (r *TimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := opContext(ctx)
	defer cancel()

	_, err := r.store.DB().ExecContext(ctx,
		`INSERT INTO timeline_events (`+timelineColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.OrderID, string(event.Type), event.Reason, event.Actor.ID, string(event.Actor.Role), event.Occurred,
	)
	if err != nil {
		return fmt.Errorf("append timeline event for order %d: %w", event.OrderID, err)
	}
	return nil
}

// List отдаёт события заказа от старых к новым; при равном времени порядок вставки.
func (r *TimelineRepository) List(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := r.store.DB().QueryContext(ctx,
		`SELECT `+timelineColumns+` FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list timeline for order %d: %w", orderID, err)
	}
	defer rows.Close()

	events := []domain.TimelineEvent{}
	for rows.Next() {
		var (
			ev         domain.TimelineEvent
			kind, role string
		)
		if err := rows.Scan(&ev.OrderID, &kind, &ev.Reason, &ev.Actor.ID, &role, &ev.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		ev.Type, ev.Actor.Role = domain.TimelineEventType(kind), domain.Role(role)
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
