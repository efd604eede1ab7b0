package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

type checkoutRepository struct {
	db *sql.DB
}

// NewCheckoutRepository создаёт CheckoutRepository: заказ и удаление корзины
// фиксируются одной транзакцией.
func NewCheckoutRepository(store *Store) domain.CheckoutRepository {
	return &checkoutRepository{db: store.DB()}
}

func (r *checkoutRepository) CommitCheckout(ctx context.Context, order domain.Order, cart domain.Cart) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		// Корзину удаляем первой: конфликт версии не должен оставить заказ.
		res, err := tx.ExecContext(ctx, `
			DELETE FROM carts
			WHERE customer_id = $1
			  AND version = $2
		`, cart.CustomerID, cart.Version)
		if err != nil {
			return fmt.Errorf("delete checked out cart: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrCartVersionConflict
		}
		return insertOrder(ctx, tx, order)
	})
}

var _ domain.CheckoutRepository = (*checkoutRepository)(nil)
