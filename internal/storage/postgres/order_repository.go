package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/crm/internal/domain"
)

const orderCustomerFK = "orders_customer_id_fkey"

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type orderRepository struct {
	q    queryer
	inTx bool
}

// Create сохраняет заказ и его товары. Вне транзакции хранилища открывает
// собственную, чтобы заказ не оказался сохранён без набора товаров.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q := r.q
	if beginner, ok := r.q.(txBeginner); ok && !r.inTx {
		tx, beginErr := beginner.BeginTx(ctx, nil)
		if beginErr != nil {
			return fmt.Errorf("begin tx: %w", beginErr)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
				return
			}
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("commit create order: %w", commitErr)
			}
		}()
		q = tx
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total_amount, order_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, order.CustomerID, order.TotalAmount, order.OrderDate, order.CreatedAt)
	if err != nil {
		return mapOrderWriteError("insert order", err)
	}

	for position, productID := range order.ProductIDs {
		if _, err = q.ExecContext(ctx, `
			INSERT INTO order_products (order_id, product_id, position)
			VALUES ($1, $2, $3)
		`, order.ID, productID, position); err != nil {
			return mapOrderWriteError("insert order product", err)
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `
		SELECT id, customer_id, total_amount, order_date, created_at
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	products, err := r.loadProductIDs(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.ProductIDs = products[order.ID]
	return order, nil
}

// List возвращает заказы под фильтр по возрастанию order_date.
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_id, total_amount, order_date, created_at
		FROM orders
	`
	args := []any{}
	if !filter.OrderDateFrom.IsZero() {
		query += ` WHERE order_date >= $1`
		args = append(args, filter.OrderDateFrom)
	}
	query += ` ORDER BY order_date, created_at, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	products, err := r.loadProductIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].ProductIDs = products[orders[i].ID]
	}
	return orders, nil
}

func (r *orderRepository) UpdateTotal(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders SET total_amount = $2 WHERE id = $1
	`, order.ID, order.TotalAmount)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) loadProductIDs(ctx context.Context, orderIDs []string) (map[string][]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, product_id
		FROM order_products
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select order products: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string, len(orderIDs))
	for rows.Next() {
		var orderID, productID string
		if err := rows.Scan(&orderID, &productID); err != nil {
			return nil, fmt.Errorf("scan order product: %w", err)
		}
		result[orderID] = append(result[orderID], productID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order products: %w", err)
	}
	return result, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	if err := row.Scan(&order.ID, &order.CustomerID, &order.TotalAmount, &order.OrderDate, &order.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	order.OrderDate = order.OrderDate.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

func mapOrderWriteError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return domain.ErrDuplicateID
	case isForeignKeyViolation(err):
		if _, constraint := pgErrorCode(err); constraint == orderCustomerFK {
			return domain.ErrCustomerNotFound
		}
		return domain.ErrProductNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
