package memory

import (
	"context"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// checkoutRepository оформляет корзину в одной критической секции обоих хранилищ:
// другие читатели видят либо корзину без заказа, либо заказ без корзины.
// Блокировки берутся в порядке корзины, затем заказы.
type checkoutRepository struct {
	carts  *CartRepository
	orders *OrderRepository
}

// NewCheckoutRepository создаёт CheckoutRepository поверх in-memory хранилищ корзин и заказов.
func NewCheckoutRepository(carts *CartRepository, orders *OrderRepository) domain.CheckoutRepository {
	return &checkoutRepository{carts: carts, orders: orders}
}

// CommitCheckout реализует domain.CheckoutRepository.
func (r *checkoutRepository) CommitCheckout(_ context.Context, order domain.Order, cart domain.Cart) error {
	r.carts.mu.Lock()
	defer r.carts.mu.Unlock()
	r.orders.mu.Lock()
	defer r.orders.mu.Unlock()

	current, ok := r.carts.carts[cart.CustomerID]
	if !ok || current.Version != cart.Version {
		return domain.ErrCartVersionConflict
	}
	if _, taken := r.orders.orders[order.ID]; taken {
		return domain.ErrOrderVersionConflict
	}

	r.orders.orders[order.ID] = order.Clone()
	delete(r.carts.carts, cart.CustomerID)
	return nil
}

var _ domain.CheckoutRepository = (*checkoutRepository)(nil)
