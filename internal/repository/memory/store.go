// Package memory is an in-process implementation of the repository contracts. Transactions
// are serialized; each records an undo step per row it writes and replays them backwards on
// rollback, so writes made outside the transaction survive it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/repository"
)

type tables struct {
	products  map[int64]entity.Product
	orders    map[int64]entity.Order
	items     map[int64]entity.OrderItem
	users     map[int64]entity.User
	addresses map[int64]entity.Address
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data tables
	seq  int64
}

func NewStore() *Store {
	return &Store{data: tables{
		products:  map[int64]entity.Product{},
		orders:    map[int64]entity.Order{},
		items:     map[int64]entity.OrderItem{},
		users:     map[int64]entity.User{},
		addresses: map[int64]entity.Address{},
	}}
}

type txKey struct{}

type undoLog struct {
	steps []func()
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	log := &undoLog{}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(log)
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, log)); err != nil {
		s.rollback(log)
		return err
	}
	return nil
}

func (s *Store) rollback(log *undoLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(log.steps) - 1; i >= 0; i-- {
		log.steps[i]()
	}
}

// track remembers the current value of m[id] in the transaction of ctx, if any, so rollback
// can put it back. Callers hold s.mu.
func track[V any](ctx context.Context, m map[int64]V, id int64) {
	log, ok := ctx.Value(txKey{}).(*undoLog)
	if !ok {
		return
	}
	prev, existed := m[id]
	log.steps = append(log.steps, func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// Products

func (s *Store) GetProductByID(_ context.Context, id int64) (*entity.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (*entity.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.data.products {
		if p.Name == name {
			p := p
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.productNameTaken(product.Name, 0) {
		return nil, fmt.Errorf("product name %q: %w", product.Name, repository.ErrDuplicate)
	}
	product.ID = s.nextID()
	track(ctx, s.data.products, product.ID)
	s.data.products[product.ID] = *product
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.productNameTaken(product.Name, product.ID) {
		return nil, fmt.Errorf("product name %q: %w", product.Name, repository.ErrDuplicate)
	}
	if _, ok := s.data.products[product.ID]; ok {
		track(ctx, s.data.products, product.ID)
		s.data.products[product.ID] = *product
	}
	return product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.products[id]; !ok {
		return repository.ErrNotFound
	}
	for _, item := range s.data.items {
		if item.ProductID == id {
			return fmt.Errorf("product %d is part of an order: %w", id, repository.ErrConflict)
		}
	}
	track(ctx, s.data.products, id)
	delete(s.data.products, id)
	return nil
}

func (s *Store) GetProducts(_ context.Context) ([]entity.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SearchProductsByName(ctx context.Context, name string) ([]entity.Product, error) {
	all, _ := s.GetProducts(ctx)
	out := []entity.Product{}
	for _, p := range all {
		if strings.Contains(p.Name, name) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ExistsProductsByIDs(_ context.Context, ids []int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if _, ok := s.data.products[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) productNameTaken(name string, exceptID int64) bool {
	for _, p := range s.data.products {
		if p.Name == name && p.ID != exceptID {
			return true
		}
	}
	return false
}

// Orders

func (s *Store) GetOrderByID(_ context.Context, id int64) (*entity.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

// GetOrderByIDForUpdate is GetOrderByID: transactions are already serialized by txMu.
func (s *Store) GetOrderByIDForUpdate(ctx context.Context, id int64) (*entity.Order, error) {
	return s.GetOrderByID(ctx, id)
}

func (s *Store) GetOrders(_ context.Context) ([]entity.Order, error) {
	return s.filterOrders(func(entity.Order) bool { return true }), nil
}

func (s *Store) GetOrdersByUserID(_ context.Context, userID int64) ([]entity.Order, error) {
	return s.filterOrders(func(o entity.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) GetOrdersByUsernameAndStatus(_ context.Context, username string, status entity.OrderStatus) ([]entity.Order, error) {
	s.mu.RLock()
	var userID int64
	for _, u := range s.data.users {
		if u.Username == username {
			userID = u.ID
		}
	}
	s.mu.RUnlock()
	if userID == 0 {
		return []entity.Order{}, nil
	}
	return s.filterOrders(func(o entity.Order) bool { return o.UserID == userID && o.Status == status }), nil
}

func (s *Store) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.nextID()
	order.Version = 1
	track(ctx, s.data.orders, order.ID)
	s.data.orders[order.ID] = *order
	return order, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.data.orders[order.ID]
	if !ok || stored.Version != order.Version {
		return nil, fmt.Errorf("update order %d at version %d: %w", order.ID, order.Version, repository.ErrConflict)
	}
	order.Version++
	track(ctx, s.data.orders, order.ID)
	s.data.orders[order.ID] = *order
	return order, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.orders[id]; !ok {
		return repository.ErrNotFound
	}
	s.deleteOrder(ctx, id)
	return nil
}

// deleteOrder removes the order and its items. Callers hold s.mu.
func (s *Store) deleteOrder(ctx context.Context, id int64) {
	for itemID, item := range s.data.items {
		if item.OrderID == id {
			track(ctx, s.data.items, itemID)
			delete(s.data.items, itemID)
		}
	}
	track(ctx, s.data.orders, id)
	delete(s.data.orders, id)
}

func (s *Store) filterOrders(keep func(entity.Order) bool) []entity.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []entity.Order{}
	for _, o := range s.data.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Order items

func (s *Store) GetItemsByOrderID(_ context.Context, orderID int64) ([]entity.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemsOf(orderID), nil
}

func (s *Store) GetLineItemsByOrderID(_ context.Context, orderID int64) ([]entity.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []entity.LineItem{}
	for _, item := range s.itemsOf(orderID) {
		p, ok := s.data.products[item.ProductID]
		if !ok {
			continue
		}
		out = append(out, entity.LineItem{OrderItem: item, Product: p})
	}
	return out, nil
}

func (s *Store) CreateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID()
	item.Version = 1
	track(ctx, s.data.items, item.ID)
	s.data.items[item.ID] = *item
	return item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.data.items[item.ID]
	if !ok || stored.OrderID != item.OrderID || stored.Version != item.Version {
		return nil, fmt.Errorf("update order item %d at version %d: %w", item.ID, item.Version, repository.ErrConflict)
	}
	item.Version++
	track(ctx, s.data.items, item.ID)
	s.data.items[item.ID] = *item
	return item, nil
}

func (s *Store) DeleteItems(ctx context.Context, items []entity.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, item := range items {
		if _, ok := s.data.items[item.ID]; ok {
			track(ctx, s.data.items, item.ID)
			delete(s.data.items, item.ID)
			deleted++
		}
	}
	if deleted != len(items) {
		return fmt.Errorf("deleted %d of %d order items: %w", deleted, len(items), repository.ErrConflict)
	}
	return nil
}

func (s *Store) DeleteItemsByOrderID(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.data.items {
		if item.OrderID == orderID {
			track(ctx, s.data.items, id)
			delete(s.data.items, id)
		}
	}
	return nil
}

func (s *Store) DeleteItemByOrderAndProduct(ctx context.Context, orderID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.data.items {
		if item.OrderID == orderID && item.ProductID == productID {
			track(ctx, s.data.items, id)
			delete(s.data.items, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Store) ExistsOrderAndProduct(_ context.Context, orderID, productID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, orderOK := s.data.orders[orderID]
	_, productOK := s.data.products[productID]
	return orderOK && productOK, nil
}

func (s *Store) itemsOf(orderID int64) []entity.OrderItem {
	out := []entity.OrderItem{}
	for _, item := range s.data.items {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Users

func (s *Store) GetUserByID(_ context.Context, id int64) (*entity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*entity.User, error) {
	return s.findUser(func(u entity.User) bool { return u.Email == email })
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*entity.User, error) {
	return s.findUser(func(u entity.User) bool { return u.Username == username })
}

func (s *Store) GetUsers(_ context.Context) ([]entity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.User, 0, len(s.data.users))
	for _, u := range s.data.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user *entity.User) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userTaken(user, 0) {
		return nil, fmt.Errorf("user %q: %w", user.Username, repository.ErrDuplicate)
	}
	user.ID = s.nextID()
	track(ctx, s.data.users, user.ID)
	stored := *user
	stored.Address = nil
	s.data.users[user.ID] = stored
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *entity.User) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userTaken(user, user.ID) {
		return nil, fmt.Errorf("user %q: %w", user.Username, repository.ErrDuplicate)
	}
	if _, ok := s.data.users[user.ID]; ok {
		track(ctx, s.data.users, user.ID)
		stored := *user
		stored.Address = nil
		s.data.users[user.ID] = stored
	}
	return user, nil
}

// DeleteUser removes the user with its address, orders and their items.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.users[id]; !ok {
		return repository.ErrNotFound
	}
	for orderID, o := range s.data.orders {
		if o.UserID == id {
			s.deleteOrder(ctx, orderID)
		}
	}
	for addrID, a := range s.data.addresses {
		if a.UserID == id {
			track(ctx, s.data.addresses, addrID)
			delete(s.data.addresses, addrID)
		}
	}
	track(ctx, s.data.users, id)
	delete(s.data.users, id)
	return nil
}

func (s *Store) userTaken(user *entity.User, exceptID int64) bool {
	for _, u := range s.data.users {
		if u.ID != exceptID && (u.Username == user.Username || u.Email == user.Email) {
			return true
		}
	}
	return false
}

func (s *Store) findUser(match func(entity.User) bool) (*entity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.data.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// Addresses

func (s *Store) GetAddressByUserID(_ context.Context, userID int64) (*entity.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data.addresses {
		if a.UserID == userID {
			a := a
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

// SaveAddress replaces the user's address, keeping its id, or inserts the first one.
func (s *Store) SaveAddress(ctx context.Context, address *entity.Address) (*entity.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	address.ID = 0
	for id, a := range s.data.addresses {
		if a.UserID == address.UserID {
			address.ID = id
		}
	}
	if address.ID == 0 {
		address.ID = s.nextID()
	}
	track(ctx, s.data.addresses, address.ID)
	s.data.addresses[address.ID] = *address
	return address, nil
}
