package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

type idGenerator struct {
	db *sql.DB
}

// NewIDGenerator выдаёт идентификаторы заказов и строк из последовательностей PostgreSQL.
func NewIDGenerator(store *Store) domain.IDGenerator {
	return &idGenerator{db: store.DB()}
}

func (g *idGenerator) NextOrderID(ctx context.Context) (int64, error) {
	return g.next(ctx, "order_id_seq")
}

func (g *idGenerator) NextLineID(ctx context.Context) (int64, error) {
	return g.next(ctx, "line_id_seq")
}

func (g *idGenerator) next(ctx context.Context, sequence string) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var id int64
	if err := g.db.QueryRowContext(ctx, `SELECT nextval($1::regclass)`, sequence).Scan(&id); err != nil {
		return 0, fmt.Errorf("nextval %s: %w", sequence, err)
	}
	return id, nil
}

var _ domain.IDGenerator = (*idGenerator)(nil)
