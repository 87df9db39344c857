package service

import (
	"context"
	"time"

	"github.com/Troha7/E-store/internal/entity"
)

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductLookup is the part of the catalog the order engine consults.
type ProductLookup interface {
	GetProductByID(ctx context.Context, id int64) (*entity.Product, error)
	ExistsProductsByIDs(ctx context.Context, ids []int64) (bool, error)
}

type ProductStore interface {
	ProductLookup
	GetProductByName(ctx context.Context, name string) (*entity.Product, error)
	GetProducts(ctx context.Context) ([]entity.Product, error)
	SearchProductsByName(ctx context.Context, name string) ([]entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

type OrderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*entity.Order, error)
	// GetOrderByIDForUpdate locks the order row until the surrounding transaction ends.
	GetOrderByIDForUpdate(ctx context.Context, id int64) (*entity.Order, error)
	GetOrders(ctx context.Context) ([]entity.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]entity.Order, error)
	GetOrdersByUsernameAndStatus(ctx context.Context, username string, status entity.OrderStatus) ([]entity.Order, error)
	CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

type OrderItemStore interface {
	GetItemsByOrderID(ctx context.Context, orderID int64) ([]entity.OrderItem, error)
	GetLineItemsByOrderID(ctx context.Context, orderID int64) ([]entity.LineItem, error)
	CreateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error)
	UpdateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error)
	DeleteItems(ctx context.Context, items []entity.OrderItem) error
	DeleteItemsByOrderID(ctx context.Context, orderID int64) error
	DeleteItemByOrderAndProduct(ctx context.Context, orderID, productID int64) error
	ExistsOrderAndProduct(ctx context.Context, orderID, productID int64) (bool, error)
}

type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*entity.User, error)
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	GetUserByUsername(ctx context.Context, username string) (*entity.User, error)
	GetUsers(ctx context.Context) ([]entity.User, error)
	CreateUser(ctx context.Context, user *entity.User) (*entity.User, error)
	UpdateUser(ctx context.Context, user *entity.User) (*entity.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type AddressStore interface {
	GetAddressByUserID(ctx context.Context, userID int64) (*entity.Address, error)
	SaveAddress(ctx context.Context, address *entity.Address) (*entity.Address, error)
}

type UserServiceStore interface {
	TxRunner
	UserStore
	AddressStore
}

// OrderServiceStore is everything the order engine reads and writes, behind one transaction boundary.
type OrderServiceStore interface {
	TxRunner
	OrderStore
	OrderItemStore
	ProductLookup
	GetUserByUsername(ctx context.Context, username string) (*entity.User, error)
}

// EventPublisher emits change events after a successful commit.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, entityID int64, payload any) error
}

// ProductCache returns (nil, nil) on a miss.
type ProductCache interface {
	Get(ctx context.Context, id int64) (*entity.Product, error)
	Set(ctx context.Context, product *entity.Product) error
	Delete(ctx context.Context, id int64) error
}

// SessionStore returns "" when no session exists.
type SessionStore interface {
	Set(ctx context.Context, email, token string, ttl time.Duration) error
	Get(ctx context.Context, email string) (string, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, int64, any) error { return nil }
