package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// OrderRepository хранит заказы в памяти с optimistic locking по Version.
// Наружу всегда отдаются копии.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[int64]domain.Order
}

// NewOrderRepository создаёт пустое хранилище заказов.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[int64]domain.Order)}
}

// Create сохраняет новый заказ; занятый ID считается конфликтом версий.
func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[order.ID]; taken {
		return domain.ErrOrderVersionConflict
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id int64) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// List отдаёт страницу заказов по фильтру: CreatedAt по убыванию, при равенстве ID по убыванию.
func (r *OrderRepository) List(_ context.Context, filter domain.OrderFilter, page domain.OrderPage) ([]domain.Order, int, error) {
	r.mu.RLock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.Matches(order) {
			matched = append(matched, order.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, newestFirst)

	total := len(matched)
	from := min(max(page.Offset, 0), total)
	to := total
	if page.Limit > 0 {
		to = min(from+page.Limit, total)
	}
	return matched[from:to], total, nil
}

func newestFirst(a, b domain.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// Save заменяет заказ, если хранимая версия совпадает с order.Version, и увеличивает её.
func (r *OrderRepository) Save(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(order.ID, order.Version); err != nil {
		return domain.Order{}, err
	}
	order.Version++
	r.orders[order.ID] = order.Clone()
	return order.Clone(), nil
}

func (r *OrderRepository) Delete(_ context.Context, id, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(id, version); err != nil {
		return err
	}
	delete(r.orders, id)
	return nil
}

// checkVersion вызывается под mu.
func (r *OrderRepository) checkVersion(id, version int64) error {
	current, ok := r.orders[id]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case current.Version != version:
		return domain.ErrOrderVersionConflict
	}
	return nil
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
