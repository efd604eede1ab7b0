package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const orderColumns = `id, customer_id, created_by_id, created_by_role, channel, status,
	total_minor, version, created_at, status_updated_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertOrder(ctx, tx, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var order domain.Order
	err := readSnapshot(ctx, r.db, func(q querier) error {
		var err error
		order, err = scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrOrderNotFound
			}
			return fmt.Errorf("select order: %w", err)
		}

		lines, err := loadOrderLines(ctx, q, []int64{order.ID})
		if err != nil {
			return err
		}
		order.Lines = lines[order.ID]
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// List возвращает страницу заказов и общее число прошедших фильтр.
// Счётчик, страница и строки читаются на одном снимке.
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter, page domain.OrderPage) ([]domain.Order, int, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	countArgs := args

	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var (
		orders []domain.Order
		total  int
	)
	err := readSnapshot(ctx, r.db, func(q querier) error {
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("count orders: %w", err)
		}

		var err error
		orders, err = queryOrders(ctx, q, query, args...)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(orders))
		for _, order := range orders {
			ids = append(ids, order.ID)
		}
		lines, err := loadOrderLines(ctx, q, ids)
		if err != nil {
			return err
		}
		for i := range orders {
			orders[i].Lines = lines[orders[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// queryOrders закрывает курсор до возврата: внутри транзакции следующий запрос
// идёт по тому же соединению.
func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

// Save перезаписывает заказ и его позиции при совпадении версии.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET customer_id = $1,
			    status = $2,
			    total_minor = $3,
			    version = version + 1,
			    status_updated_at = $4,
			    updated_at = $5
			WHERE id = $6
			  AND version = $7
		`,
			order.CustomerID,
			string(order.Status),
			order.TotalMinor,
			order.StatusUpdatedAt,
			order.UpdatedAt,
			order.ID,
			order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := r.checkAffected(ctx, tx, res, order.ID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("clear order lines: %w", err)
		}
		return insertOrderLines(ctx, tx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	saved := order.Clone()
	saved.Version++
	return saved, nil
}

func (r *orderRepository) Delete(ctx context.Context, id, version int64) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1 AND version = $2`, id, version)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return r.checkAffected(ctx, tx, res, id)
	})
}

func (r *orderRepository) checkAffected(ctx context.Context, tx *sql.Tx, res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func loadOrderLines(ctx context.Context, q querier, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	result := make(map[int64][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, 0, len(orderIDs))
	args := make([]any, 0, len(orderIDs))
	for i, id := range orderIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, id, product_id, qty, unit_price_minor, created_at
		FROM order_lines
		WHERE order_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY order_id, created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			line    domain.OrderLine
		)
		if err := rows.Scan(&orderID, &line.ID, &line.ProductID, &line.Qty, &line.UnitPriceMinor, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		result[orderID] = append(result[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return result, nil
}

func insertOrder(ctx context.Context, q querier, order domain.Order) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.CustomerID, order.CreatedBy.ID, string(order.CreatedBy.Role),
		string(order.Channel), string(order.Status), order.TotalMinor, order.Version,
		order.CreatedAt, order.StatusUpdatedAt, order.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return insertOrderLines(ctx, q, order)
}

func insertOrderLines(ctx context.Context, q querier, order domain.Order) error {
	for _, line := range order.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, id, product_id, qty, unit_price_minor, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, line.ID, line.ProductID, line.Qty, line.UnitPriceMinor, line.CreatedAt); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order      domain.Order
		customerID sql.NullInt64
		role       string
		channel    string
		status     string
	)
	if err := row.Scan(
		&order.ID, &customerID, &order.CreatedBy.ID, &role, &channel, &status,
		&order.TotalMinor, &order.Version, &order.CreatedAt, &order.StatusUpdatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	if customerID.Valid {
		id := customerID.Int64
		order.CustomerID = &id
	}
	order.CreatedBy.Role = domain.Role(role)
	order.Channel = domain.Channel(channel)
	order.Status = domain.OrderStatus(status)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
