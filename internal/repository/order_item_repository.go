package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Troha7/E-store/internal/entity"
)

const orderItemColumns = `id, fk_order_id, fk_product_id, quantity, version`

type OrderItemRepository struct {
	db *sql.DB
}

func NewOrderItemRepository(db *sql.DB) *OrderItemRepository {
	return &OrderItemRepository{db}
}

// GetItemsByOrderID returns the rows of an order in insertion order.
func (r *OrderItemRepository) GetItemsByOrderID(ctx context.Context, orderID int64) ([]entity.OrderItem, error) {
	query := `SELECT ` + orderItemColumns + ` FROM order_items WHERE fk_order_id = ? ORDER BY id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := []entity.OrderItem{}
	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Version); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

// GetLineItemsByOrderID joins the rows of an order with their products so prices are always current.
func (r *OrderItemRepository) GetLineItemsByOrderID(ctx context.Context, orderID int64) ([]entity.LineItem, error) {
	query := `
		SELECT oi.id, oi.fk_order_id, oi.fk_product_id, oi.quantity, oi.version,
		       p.id, p.name, p.description, p.price
		FROM order_items oi
		JOIN products p ON p.id = oi.fk_product_id
		WHERE oi.fk_order_id = ?
		ORDER BY oi.id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	items := []entity.LineItem{}
	for rows.Next() {
		var li entity.LineItem
		err := rows.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.Quantity, &li.Version,
			&li.Product.ID, &li.Product.Name, &li.Product.Description, &li.Product.Price)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return items, nil
}

func (r *OrderItemRepository) CreateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error) {
	query := `INSERT INTO order_items (fk_order_id, fk_product_id, quantity, version) VALUES (?, ?, ?, 1)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, item.OrderID, item.ProductID, item.Quantity)
	if err != nil {
		return nil, fmt.Errorf("insert order item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert order item: %w", err)
	}

	item.ID = id
	item.Version = 1
	return item, nil
}

// UpdateItem is a compare-and-swap on the row version.
func (r *OrderItemRepository) UpdateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error) {
	query := `
		UPDATE order_items
		SET fk_product_id = ?, quantity = ?, version = version + 1
		WHERE id = ? AND fk_order_id = ? AND version = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, item.ProductID, item.Quantity, item.ID, item.OrderID, item.Version)
	if err != nil {
		return nil, fmt.Errorf("update order item %d: %w", item.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update order item %d: %w", item.ID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("update order item %d at version %d: %w", item.ID, item.Version, ErrConflict)
	}

	item.Version++
	return item, nil
}

// DeleteItems removes the given rows in one statement. Fewer deleted rows than requested
// means another writer got there first.
func (r *OrderItemRepository) DeleteItems(ctx context.Context, items []entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	args := make([]any, 0, len(items))
	for _, item := range items {
		args = append(args, item.ID)
	}

	query := `DELETE FROM order_items WHERE id IN (` + placeholders(len(args)) + `)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if n != int64(len(items)) {
		return fmt.Errorf("deleted %d of %d order items: %w", n, len(items), ErrConflict)
	}
	return nil
}

func (r *OrderItemRepository) DeleteItemsByOrderID(ctx context.Context, orderID int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM order_items WHERE fk_order_id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("delete items of order %d: %w", orderID, err)
	}
	return nil
}

func (r *OrderItemRepository) DeleteItemByOrderAndProduct(ctx context.Context, orderID, productID int64) error {
	query := `DELETE FROM order_items WHERE fk_order_id = ? AND fk_product_id = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, orderID, productID)
	if err != nil {
		return fmt.Errorf("delete product %d from order %d: %w", productID, orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product %d from order %d: %w", productID, orderID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsOrderAndProduct checks both ids in a single round trip.
func (r *OrderItemRepository) ExistsOrderAndProduct(ctx context.Context, orderID, productID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?) AND EXISTS(SELECT 1 FROM products WHERE id = ?)`

	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, query, orderID, productID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check order %d and product %d: %w", orderID, productID, err)
	}
	return exists, nil
}
