package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// ProductCatalog читает товары из таблицы products.
type ProductCatalog struct {
	db *sql.DB
}

// NewProductCatalog создаёт каталог поверх таблицы products.
func NewProductCatalog(store *Store) *ProductCatalog {
	return &ProductCatalog{db: store.DB()}
}

// Lookup реализует domain.Catalog. Для отсутствующего или снятого с продажи товара возвращает ErrProductUnavailable.
func (c *ProductCatalog) Lookup(ctx context.Context, productID int64) (domain.Product, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var product domain.Product
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, price_minor, available
		FROM products
		WHERE id = $1
	`, productID).Scan(&product.ID, &product.Name, &product.PriceMinor, &product.Available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductUnavailable
		}
		return domain.Product{}, fmt.Errorf("%w: select product: %w", domain.ErrCatalogUnavailable, err)
	}
	if !product.Available {
		return domain.Product{}, domain.ErrProductUnavailable
	}
	return product, nil
}

// Upsert добавляет или обновляет товар.
func (c *ProductCatalog) Upsert(ctx context.Context, product domain.Product) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price_minor, available, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    available = EXCLUDED.available,
		    updated_at = NOW()
	`, product.ID, product.Name, product.PriceMinor, product.Available); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var _ domain.Catalog = (*ProductCatalog)(nil)
