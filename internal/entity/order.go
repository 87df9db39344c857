package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusAccepted  OrderStatus = "ACCEPTED"
	StatusPaid      OrderStatus = "PAID"
	StatusShipping  OrderStatus = "SHIPPING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCanceled  OrderStatus = "CANCELED"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusAccepted, StatusPaid, StatusShipping, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

type Order struct {
	ID      int64       `json:"id"`
	UserID  int64       `json:"user_id"`
	Date    time.Time   `json:"date"`
	Status  OrderStatus `json:"status"` // CREATED is the mutable cart
	Version int64       `json:"version"`
}

type OrderItem struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Version   int64 `json:"version"`
}

// SameRow compares the persisted tuple (id, order, product, quantity), ignoring the version.
func (i OrderItem) SameRow(other OrderItem) bool {
	return i.ID == other.ID &&
		i.OrderID == other.OrderID &&
		i.ProductID == other.ProductID &&
		i.Quantity == other.Quantity
}

// LineItem is an order item joined with the product it references.
type LineItem struct {
	OrderItem
	Product Product `json:"product"`
}

// Subtotal is price × quantity of the line.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderView is an order materialized with its priced line items. It is never persisted.
type OrderView struct {
	Order
	Items      []LineItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

/*
Mysql Table

CREATE TABLE orders (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	fk_user_id BIGINT NOT NULL REFERENCES users(id),
	order_date DATETIME NOT NULL,
	status VARCHAR(20) NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE order_items (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	fk_order_id BIGINT NOT NULL REFERENCES orders(id),
	fk_product_id BIGINT NOT NULL,
	quantity INT NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);

*/
