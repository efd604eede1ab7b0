package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// CartRepository хранит корзины в памяти с optimistic locking по Version.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[int64]domain.Cart
}

// NewCartRepository возвращает in-memory хранилище корзин.
func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts: make(map[int64]domain.Cart),
	}
}

// Get возвращает копию корзины клиента.
func (r *CartRepository) Get(_ context.Context, customerID int64) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

// Save создаёт корзину при Version == 0 или обновляет её, проверяя версию.
func (r *CartRepository) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.carts[cart.CustomerID]
	switch {
	case !exists && cart.Version != 0:
		return domain.Cart{}, domain.ErrCartVersionConflict
	case exists && current.Version != cart.Version:
		return domain.Cart{}, domain.ErrCartVersionConflict
	}

	cart.Version++
	r.carts[cart.CustomerID] = cart.Clone()
	return cart.Clone(), nil
}

// Delete удаляет корзину, если её версия совпадает с ожидаемой.
func (r *CartRepository) Delete(_ context.Context, customerID, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.carts[customerID]
	if !ok {
		return nil
	}
	if current.Version != version {
		return domain.ErrCartVersionConflict
	}
	delete(r.carts, customerID)
	return nil
}

var _ domain.CartRepository = (*CartRepository)(nil)
