package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Get(ctx context.Context, customerID int64) (domain.Cart, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var cart domain.Cart
	err := readSnapshot(ctx, r.db, func(q querier) error {
		var err error
		cart, err = loadCart(ctx, q, customerID)
		return err
	})
	return cart, err
}

// Save создаёт корзину при Version == 0, иначе обновляет её с проверкой версии.
// Строки корзины перезаписываются целиком.
func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	saved := cart.Clone()
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if cart.Version == 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO carts (customer_id, version, created_at, last_modified_at)
				VALUES ($1, 1, $2, $3)
			`, cart.CustomerID, cart.CreatedAt, cart.LastModifiedAt); err != nil {
				if isUniqueViolation(err) {
					return domain.ErrCartVersionConflict
				}
				return fmt.Errorf("insert cart: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx, `
				UPDATE carts
				SET version = version + 1,
				    last_modified_at = $1
				WHERE customer_id = $2
				  AND version = $3
			`, cart.LastModifiedAt, cart.CustomerID, cart.Version)
			if err != nil {
				return fmt.Errorf("update cart: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if affected == 0 {
				return domain.ErrCartVersionConflict
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE customer_id = $1`, cart.CustomerID); err != nil {
				return fmt.Errorf("clear cart lines: %w", err)
			}
		}

		for _, line := range cart.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cart_lines (id, customer_id, product_id, qty, unit_price_minor, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, line.ID, cart.CustomerID, line.ProductID, line.Qty, line.UnitPriceMinor, line.UpdatedAt); err != nil {
				return fmt.Errorf("insert cart line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}

	saved.Version = cart.Version + 1
	return saved, nil
}

// Delete удаляет корзину ожидаемой версии; отсутствующая корзина не ошибка.
func (r *cartRepository) Delete(ctx context.Context, customerID, version int64) error {
	ctx, cancel := opContext(ctx)
	defer cancel()
	return deleteCart(ctx, r.db, customerID, version)
}

func loadCart(ctx context.Context, q querier, customerID int64) (domain.Cart, error) {
	cart := domain.Cart{CustomerID: customerID}
	err := q.QueryRowContext(ctx, `
		SELECT version, created_at, last_modified_at
		FROM carts
		WHERE customer_id = $1
	`, customerID).Scan(&cart.Version, &cart.CreatedAt, &cart.LastModifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, qty, unit_price_minor, updated_at
		FROM cart_lines
		WHERE customer_id = $1
		ORDER BY id ASC
	`, customerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Qty, &line.UnitPriceMinor, &line.UpdatedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart line: %w", err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart lines: %w", err)
	}

	return cart, nil
}

func deleteCart(ctx context.Context, q querier, customerID, version int64) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM carts
		WHERE customer_id = $1
		  AND version = $2
	`, customerID, version)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM carts WHERE customer_id = $1)`, customerID).Scan(&exists); err != nil {
		return fmt.Errorf("check cart exists: %w", err)
	}
	if exists {
		return domain.ErrCartVersionConflict
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
