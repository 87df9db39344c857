package repository

import "database/sql"

// Store bundles the MySQL repositories that share one connection pool and transaction boundary.
type Store struct {
	*Transactor
	*ProductRepository
	*OrderRepository
	*OrderItemRepository
	*UserRepository
	*AddressRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Transactor:          NewTransactor(db),
		ProductRepository:   NewProductRepository(db),
		OrderRepository:     NewOrderRepository(db),
		OrderItemRepository: NewOrderItemRepository(db),
		UserRepository:      NewUserRepository(db),
		AddressRepository:   NewAddressRepository(db),
	}
}
