package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Troha7/E-store/internal/entity"
)

const orderColumns = `id, fk_user_id, order_date, status, version`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db}
}

func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order, err := scanOrder(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return order, nil
}

// GetOrderByIDForUpdate reads the order and holds its row lock until the transaction ends.
// Writers of one order queue here, so an item inserted by one of them is visible to the next.
func (r *OrderRepository) GetOrderByIDForUpdate(ctx context.Context, id int64) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`

	order, err := scanOrder(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}
	return order, nil
}

func (r *OrderRepository) GetOrders(ctx context.Context) ([]entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY id`
	return r.queryOrders(ctx, query)
}

func (r *OrderRepository) GetOrdersByUserID(ctx context.Context, userID int64) ([]entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE fk_user_id = ? ORDER BY id`
	return r.queryOrders(ctx, query, userID)
}

func (r *OrderRepository) GetOrdersByUsernameAndStatus(ctx context.Context, username string, status entity.OrderStatus) ([]entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = ?
		AND fk_user_id = (SELECT id FROM users WHERE username = ?)
		ORDER BY id`
	return r.queryOrders(ctx, query, status, username)
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	query := `INSERT INTO orders (fk_user_id, order_date, status, version) VALUES (?, ?, ?, 1)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, order.UserID, order.Date, order.Status)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	order.ID = id
	order.Version = 1
	return order, nil
}

// UpdateOrder writes the header only if the stored version still equals order.Version.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	query := `
		UPDATE orders
		SET fk_user_id = ?, order_date = ?, status = ?, version = version + 1
		WHERE id = ? AND version = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, order.UserID, order.Date, order.Status, order.ID, order.Version)
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", order.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", order.ID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("update order %d at version %d: %w", order.ID, order.Version, ErrConflict)
	}

	order.Version++
	return order, nil
}

func (r *OrderRepository) DeleteOrder(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]entity.Order, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []entity.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	order := &entity.Order{}
	var status string
	if err := row.Scan(&order.ID, &order.UserID, &order.Date, &status, &order.Version); err != nil {
		return nil, err
	}
	order.Status = entity.OrderStatus(status)
	return order, nil
}
