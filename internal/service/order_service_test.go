package service

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/repository"
	"github.com/Troha7/E-store/internal/repository/memory"
	"github.com/Troha7/E-store/internal/sharding"
)

type fixture struct {
	store *memory.Store
	user  *entity.User
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	user, err := store.CreateUser(ctx, &entity.User{Username: "alice", Email: "alice@example.com", Password: "hash"})
	require.NoError(t, err)
	return &fixture{store: store, user: user, ctx: ctx}
}

func (f *fixture) product(t *testing.T, name, price string) *entity.Product {
	t.Helper()
	p, err := f.store.CreateProduct(f.ctx, &entity.Product{Name: name, Price: decimal.RequireFromString(price)})
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T, svc *OrderService) *entity.OrderView {
	t.Helper()
	view, err := svc.CreateOrder(f.ctx, f.user.ID)
	require.NoError(t, err)
	return view
}

func (f *fixture) items(t *testing.T, orderID int64) []entity.OrderItem {
	t.Helper()
	items, err := f.store.GetItemsByOrderID(f.ctx, orderID)
	require.NoError(t, err)
	return items
}

func newService(store OrderServiceStore, mode ReconcileMode) *OrderService {
	return NewOrderService(store, nil, sharding.NewShardRouter(4), mode)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ int64, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

// countingStore counts item and header writes.
type countingStore struct {
	*memory.Store
	writes int
}

func (s *countingStore) CreateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error) {
	s.writes++
	return s.Store.CreateItem(ctx, item)
}

func (s *countingStore) UpdateItem(ctx context.Context, item *entity.OrderItem) (*entity.OrderItem, error) {
	s.writes++
	return s.Store.UpdateItem(ctx, item)
}

func (s *countingStore) DeleteItems(ctx context.Context, items []entity.OrderItem) error {
	s.writes++
	return s.Store.DeleteItems(ctx, items)
}

func (s *countingStore) UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	s.writes++
	return s.Store.UpdateOrder(ctx, order)
}

// failingStore fails the header save or the order insert on demand.
type failingStore struct {
	*memory.Store
	failUpdateOrder bool
	failCreateOrder bool
}

var errBoom = errors.New("boom")

func (s *failingStore) UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if s.failUpdateOrder {
		return nil, errBoom
	}
	return s.Store.UpdateOrder(ctx, order)
}

func (s *failingStore) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if s.failCreateOrder {
		return nil, errBoom
	}
	return s.Store.CreateOrder(ctx, order)
}

// staleStore hands out item rows one version behind the stored ones.
type staleStore struct {
	*memory.Store
}

func (s *staleStore) GetItemsByOrderID(ctx context.Context, orderID int64) ([]entity.OrderItem, error) {
	items, err := s.Store.GetItemsByOrderID(ctx, orderID)
	for i := range items {
		items[i].Version--
	}
	return items, err
}

func TestAddLineItem_AggregatesSameProduct(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	p := f.product(t, "Laptop", "9670.19")
	order := f.order(t, svc)

	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	res, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	require.Len(t, res.Order.Items, 1)
	require.Equal(t, p.ID, res.Item.ProductID)
	require.Equal(t, 3, res.Item.Quantity)
	require.Equal(t, p.Name, res.Item.Product.Name)
	require.True(t, decimal.RequireFromString("29010.57").Equal(res.Order.TotalPrice), res.Order.TotalPrice.String())
	require.Len(t, f.items(t, order.ID), 1)
}

func TestAddLineItem_RejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	store := &countingStore{Store: f.store}
	svc := newService(store, ReconcilePositional)
	p := f.product(t, "Laptop", "10")
	order := f.order(t, svc)

	for _, q := range []int{0, -1} {
		_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: q})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	require.Zero(t, store.writes)
}

func TestAddLineItem_RejectsQuantityOverflow(t *testing.T) {
	f := newFixture(t)
	store := &countingStore{Store: f.store}
	svc := newService(store, ReconcilePositional)
	p := f.product(t, "Pen", "1")
	order := f.order(t, svc)

	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: math.MaxInt})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: MaxQuantity + 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Zero(t, store.writes)

	_, err = svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: MaxQuantity})
	require.NoError(t, err)
	writes := store.writes

	// The sum would no longer fit the column
	_, err = svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Equal(t, writes, store.writes)

	items := f.items(t, order.ID)
	require.Len(t, items, 1)
	require.Equal(t, MaxQuantity, items[0].Quantity)

	_, err = svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{{ProductID: p.ID, Quantity: MaxQuantity + 1}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Equal(t, MaxQuantity, f.items(t, order.ID)[0].Quantity)

	_, err = svc.AddToCart(f.ctx, f.user.Username, ItemRequest{ProductID: p.ID, Quantity: math.MaxInt})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddLineItem_MissingOrderOrProduct(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	p := f.product(t, "Laptop", "10")
	order := f.order(t, svc)

	_, err := svc.AddLineItem(f.ctx, 9999, ItemRequest{ProductID: p.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrEntityNotFound)

	_, err = svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: 9999, Quantity: 1})
	require.ErrorIs(t, err, ErrEntityNotFound)

	require.Empty(t, f.items(t, order.ID))
}

func TestAddLineItem_ConcurrentAddsSumExactly(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	p := f.product(t, "Pen", "1.10")
	order := f.order(t, svc)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	items := f.items(t, order.ID)
	require.Len(t, items, 1)
	require.Equal(t, workers, items[0].Quantity)
}

// Writers on different instances share no in-process lock, so every mutation reads the
// order header with FOR UPDATE before it looks at the item rows.
func TestAddLineItem_LocksOrderRowBeforeReadingItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	svc := newService(repository.NewStore(db), ReconcilePositional)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)")).
		WithArgs(int64(7), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ? FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fk_user_id", "order_date", "status", "version"}).
			AddRow(int64(7), int64(1), time.Now(), "CREATED", int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE fk_order_id = ? ORDER BY id")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fk_order_id", "fk_product_id", "quantity", "version"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(int64(7), int64(3), 2).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(regexp.QuoteMeta("JOIN products p ON p.id = oi.fk_product_id")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "fk_order_id", "fk_product_id", "quantity", "version", "id", "name", "description", "price",
		}).AddRow(int64(10), int64(7), int64(3), 2, int64(1), int64(3), "Pen", "", "1.10"))
	mock.ExpectCommit()

	res, err := svc.AddLineItem(context.Background(), 7, ItemRequest{ProductID: 3, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, int64(10), res.Item.ID)
	require.True(t, decimal.RequireFromString("2.20").Equal(res.Order.TotalPrice))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceLineItems_LocksOrderRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	svc := newService(repository.NewStore(db), ReconcilePositional)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ? FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "fk_user_id", "order_date", "status", "version"}).
			AddRow(int64(7), int64(1), time.Now(), "ACCEPTED", int64(2)))
	mock.ExpectRollback()

	_, err = svc.ReplaceLineItems(context.Background(), 7, UpdateOrderCommand{})
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddLineItem_StaleRowIsConflict(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	p := f.product(t, "Pen", "1")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	stale := newService(&staleStore{Store: f.store}, ReconcilePositional)
	_, err = stale.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: 5})
	require.ErrorIs(t, err, ErrConflict)

	items := f.items(t, order.ID)
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].Quantity)
}

func TestReplaceLineItems_InvalidQuantityLeavesItems(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	p := f.product(t, "Laptop", "9670.19")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	before := f.items(t, order.ID)

	store := &countingStore{Store: f.store}
	counted := newService(store, ReconcilePositional)
	_, err = counted.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{{ProductID: p.ID, Quantity: -1}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	require.Zero(t, store.writes)
	require.Equal(t, before, f.items(t, order.ID))
}

func TestReplaceLineItems_DuplicateProduct(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 4})
	require.NoError(t, err)
	before := f.items(t, order.ID)

	_, err = svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: a.ID, Quantity: 2},
	}})
	require.ErrorIs(t, err, ErrDuplicateProduct)
	require.Equal(t, before, f.items(t, order.ID))
}

func TestReplaceLineItems_DuplicateCheckedBeforeQuantity(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1")
	order := f.order(t, svc)

	_, err := svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: a.ID, Quantity: 0},
		{ProductID: a.ID, Quantity: 2},
	}})
	require.ErrorIs(t, err, ErrDuplicateProduct)
}

func TestReplaceLineItems_UnknownOrderOrProduct(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1")
	order := f.order(t, svc)

	_, err := svc.ReplaceLineItems(f.ctx, 9999, UpdateOrderCommand{Items: []ItemRequest{{ProductID: a.ID, Quantity: 1}}})
	require.ErrorIs(t, err, ErrEntityNotFound)

	_, err = svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: 9999, Quantity: 1},
	}})
	require.ErrorIs(t, err, ErrEntityNotFound)
	require.Empty(t, f.items(t, order.ID))
}

func TestReplaceLineItems_Positional(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "10.00")
	b := f.product(t, "B", "5.50")
	c := f.product(t, "C", "2.00")
	order := f.order(t, svc)

	view, err := svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 3},
		{ProductID: c.ID, Quantity: 1},
	}})
	require.NoError(t, err)
	require.Len(t, view.Items, 3)
	require.True(t, decimal.RequireFromString("38.50").Equal(view.TotalPrice))
	original := f.items(t, order.ID)

	// Shrinking keeps the leading rows and removes the tail.
	view, err = svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 7},
	}})
	require.NoError(t, err)
	items := f.items(t, order.ID)
	require.Len(t, items, 2)
	require.Equal(t, original[0], items[0])
	require.Equal(t, original[1].ID, items[1].ID)
	require.Equal(t, 7, items[1].Quantity)
	require.Equal(t, original[1].Version+1, items[1].Version)
	require.True(t, decimal.RequireFromString("58.50").Equal(view.TotalPrice))

	// Reordering moves row ids between products.
	_, err = svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: b.ID, Quantity: 7},
		{ProductID: a.ID, Quantity: 2},
	}})
	require.NoError(t, err)
	items = f.items(t, order.ID)
	require.Len(t, items, 2)
	require.Equal(t, original[0].ID, items[0].ID)
	require.Equal(t, b.ID, items[0].ProductID)
	require.Equal(t, a.ID, items[1].ProductID)
}

func TestReplaceLineItems_Keyed(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcileKeyed)
	a := f.product(t, "A", "1")
	b := f.product(t, "B", "2")
	c := f.product(t, "C", "3")
	order := f.order(t, svc)

	_, err := svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 2},
	}})
	require.NoError(t, err)
	original := f.items(t, order.ID)

	// Reorder is a no-op.
	_, err = svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: b.ID, Quantity: 2},
		{ProductID: a.ID, Quantity: 1},
	}})
	require.NoError(t, err)
	require.Equal(t, original, f.items(t, order.ID))

	view, err := svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: c.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 5},
	}})
	require.NoError(t, err)
	items := f.items(t, order.ID)
	require.Len(t, items, 2)
	require.Equal(t, original[1].ID, items[0].ID)
	require.Equal(t, 5, items[0].Quantity)
	require.Equal(t, c.ID, items[1].ProductID)
	require.True(t, decimal.RequireFromString("13").Equal(view.TotalPrice))
}

func TestReplaceLineItems_EmptyListClearsOrder(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)

	view, err := svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{})
	require.NoError(t, err)
	require.Empty(t, view.Items)
	require.True(t, view.TotalPrice.IsZero())
}

func TestReplaceLineItems_SetsDate(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	order := f.order(t, svc)

	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	view, err := svc.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Date: &date})
	require.NoError(t, err)
	require.True(t, date.Equal(view.Date))
	require.Equal(t, order.Version+1, view.Version)
}

func TestReplaceLineItems_RollsBackWhenHeaderSaveFails(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1")
	b := f.product(t, "B", "1")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	before := f.items(t, order.ID)

	failing := newService(&failingStore{Store: f.store, failUpdateOrder: true}, ReconcilePositional)
	_, err = failing.ReplaceLineItems(f.ctx, order.ID, UpdateOrderCommand{Items: []ItemRequest{
		{ProductID: b.ID, Quantity: 3},
		{ProductID: a.ID, Quantity: 9},
	}})
	require.ErrorIs(t, err, ErrStorageFailure)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, before, f.items(t, order.ID))
}

func TestRemoveLineItem(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1")
	b := f.product(t, "B", "2")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.RemoveLineItem(f.ctx, order.ID, b.ID)
	require.ErrorIs(t, err, ErrEntityNotFound)

	view, err := svc.RemoveLineItem(f.ctx, order.ID, a.ID)
	require.NoError(t, err)
	require.Empty(t, view.Items)
}

func TestComputeTotal(t *testing.T) {
	items := []entity.LineItem{
		{OrderItem: entity.OrderItem{Quantity: 2}, Product: entity.Product{Price: decimal.RequireFromString("10.00")}},
		{OrderItem: entity.OrderItem{Quantity: 3}, Product: entity.Product{Price: decimal.RequireFromString("5.50")}},
	}
	require.True(t, decimal.RequireFromString("36.50").Equal(ComputeTotal(items)))
	require.True(t, ComputeTotal(nil).IsZero())
}

func TestAcceptOrder(t *testing.T) {
	f := newFixture(t)
	events := &recordingPublisher{}
	svc := NewOrderService(f.store, events, nil, ReconcilePositional)
	a := f.product(t, "A", "3")
	order := f.order(t, svc)

	_, err := svc.AcceptOrder(f.ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)

	res, err := svc.AcceptOrder(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusAccepted, res.Accepted.Status)
	require.True(t, decimal.NewFromInt(6).Equal(res.Accepted.TotalPrice))
	require.Equal(t, entity.StatusCreated, res.Active.Status)
	require.Equal(t, f.user.ID, res.Active.UserID)

	orders, err := svc.FindAllByUser(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, 1, countStatus([]entity.Order{orders[0].Order, orders[1].Order}, entity.StatusCreated))

	_, err = svc.AcceptOrder(f.ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidState)

	require.Contains(t, events.events, entity.EventOrderAccepted)
}

func TestAcceptOrder_RollsBackWhenNewOrderFails(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "3")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)

	failing := newService(&failingStore{Store: f.store, failCreateOrder: true}, ReconcilePositional)
	_, err = failing.AcceptOrder(f.ctx, order.ID)
	require.ErrorIs(t, err, ErrStorageFailure)

	stored, err := f.store.GetOrderByID(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusCreated, stored.Status)

	orders, err := f.store.GetOrdersByUserID(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestFindByID_IsStable(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1.25")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 4})
	require.NoError(t, err)

	first, err := svc.FindByID(f.ctx, order.ID)
	require.NoError(t, err)
	second, err := svc.FindByID(f.ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	_, err = svc.FindByID(f.ctx, 9999)
	require.ErrorIs(t, err, ErrEntityNotFound)
}

func TestDeleteByID(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "1")
	order := f.order(t, svc)
	_, err := svc.AddLineItem(f.ctx, order.ID, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteByID(f.ctx, order.ID))
	require.Empty(t, f.items(t, order.ID))

	_, err = svc.FindByID(f.ctx, order.ID)
	require.ErrorIs(t, err, ErrEntityNotFound)
	require.ErrorIs(t, svc.DeleteByID(f.ctx, order.ID), ErrEntityNotFound)
}

func TestCart(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "2")

	_, err := svc.AcceptActiveOrder(f.ctx, f.user.Username)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.AddToCart(f.ctx, "nobody", ItemRequest{ProductID: a.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrEntityNotFound)

	first, err := svc.AddToCart(f.ctx, f.user.Username, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	second, err := svc.AddToCart(f.ctx, f.user.Username, ItemRequest{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, second.Order.ID)
	require.Equal(t, 2, second.Item.Quantity)

	active, err := svc.FindActiveOrders(f.ctx, f.user.Username)
	require.NoError(t, err)
	require.Len(t, active, 1)

	res, err := svc.AcceptActiveOrder(f.ctx, f.user.Username)
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, res.Accepted.ID)

	active, err = svc.FindActiveOrders(f.ctx, f.user.Username)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, res.Active.ID, active[0].ID)
}

func TestCart_ConcurrentFirstAddsOpenOneOrder(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "2")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AddToCart(f.ctx, f.user.Username, ItemRequest{ProductID: a.ID, Quantity: 1})
		}()
	}
	wg.Wait()

	active, err := svc.FindActiveOrders(f.ctx, f.user.Username)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, 10, active[0].Items[0].Quantity)
}

func TestCart_AddDuringBuyNeverHitsAcceptedOrder(t *testing.T) {
	f := newFixture(t)
	svc := newService(f.store, ReconcilePositional)
	a := f.product(t, "A", "2")

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.AddToCart(f.ctx, f.user.Username, ItemRequest{ProductID: a.ID, Quantity: 1})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			// An empty cart cannot be bought; that error is expected
			_, _ = svc.AcceptActiveOrder(f.ctx, f.user.Username)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	orders, err := svc.FindAllByUser(f.ctx, f.user.ID)
	require.NoError(t, err)
	total := 0
	for _, o := range orders {
		for _, item := range o.Items {
			total += item.Quantity
		}
	}
	require.Equal(t, rounds, total)
}

func TestPublishFailureDoesNotFailCommit(t *testing.T) {
	f := newFixture(t)
	svc := NewOrderService(f.store, &recordingPublisher{err: errBoom}, nil, "")
	view, err := svc.CreateOrder(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.NotZero(t, view.ID)
}

func TestDiff(t *testing.T) {
	current := []entity.OrderItem{
		{ID: 1, OrderID: 9, ProductID: 10, Quantity: 1, Version: 3},
		{ID: 2, OrderID: 9, ProductID: 20, Quantity: 2, Version: 1},
	}

	tests := []struct {
		name        string
		mode        ReconcileMode
		desired     []ItemRequest
		wantUpserts []entity.OrderItem
		wantRemoved []entity.OrderItem
	}{
		{
			name:    "positional unchanged",
			mode:    ReconcilePositional,
			desired: []ItemRequest{{ProductID: 10, Quantity: 1}, {ProductID: 20, Quantity: 2}},
		},
		{
			name:        "positional grow",
			mode:        ReconcilePositional,
			desired:     []ItemRequest{{ProductID: 10, Quantity: 1}, {ProductID: 20, Quantity: 2}, {ProductID: 30, Quantity: 1}},
			wantUpserts: []entity.OrderItem{{OrderID: 9, ProductID: 30, Quantity: 1}},
		},
		{
			name:        "positional replace and truncate",
			mode:        ReconcilePositional,
			desired:     []ItemRequest{{ProductID: 30, Quantity: 5}},
			wantUpserts: []entity.OrderItem{{ID: 1, OrderID: 9, ProductID: 30, Quantity: 5, Version: 3}},
			wantRemoved: []entity.OrderItem{current[1]},
		},
		{
			name:        "keyed update and remove",
			mode:        ReconcileKeyed,
			desired:     []ItemRequest{{ProductID: 20, Quantity: 4}},
			wantUpserts: []entity.OrderItem{{ID: 2, OrderID: 9, ProductID: 20, Quantity: 4, Version: 1}},
			wantRemoved: []entity.OrderItem{current[0]},
		},
		{
			name:    "keyed reorder",
			mode:    ReconcileKeyed,
			desired: []ItemRequest{{ProductID: 20, Quantity: 2}, {ProductID: 10, Quantity: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &OrderService{mode: tt.mode}
			upserts, removed := svc.diff(9, tt.desired, current)
			require.Equal(t, tt.wantUpserts, upserts)
			require.Equal(t, tt.wantRemoved, removed)
		})
	}
}

func TestParseReconcileMode(t *testing.T) {
	mode, err := ParseReconcileMode("")
	require.NoError(t, err)
	require.Equal(t, ReconcilePositional, mode)

	mode, err = ParseReconcileMode("keyed")
	require.NoError(t, err)
	require.Equal(t, ReconcileKeyed, mode)

	_, err = ParseReconcileMode("bogus")
	require.Error(t, err)
}
