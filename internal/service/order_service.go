package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/repository"
	"github.com/Troha7/E-store/internal/sharding"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// ReconcileMode selects how ReplaceLineItems pairs desired items with stored rows.
type ReconcileMode string

const (
	// ReconcilePositional pairs the i-th desired item with the i-th stored row and truncates the tail.
	ReconcilePositional ReconcileMode = "positional"
	// ReconcileKeyed pairs desired items with stored rows by product id.
	ReconcileKeyed ReconcileMode = "keyed"
)

func ParseReconcileMode(s string) (ReconcileMode, error) {
	switch ReconcileMode(s) {
	case "", ReconcilePositional:
		return ReconcilePositional, nil
	case ReconcileKeyed:
		return ReconcileKeyed, nil
	}
	return "", fmt.Errorf("unknown reconcile mode %q", s)
}

// MaxQuantity is the largest quantity a line item can hold.
const MaxQuantity = math.MaxInt32

// ItemRequest is one desired (product, quantity) pair.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

type UpdateOrderCommand struct {
	Date  *time.Time
	Items []ItemRequest
}

type AddLineItemResult struct {
	Item  entity.LineItem
	Order *entity.OrderView
}

type AcceptResult struct {
	Accepted *entity.OrderView
	Active   *entity.OrderView
}

// OrderService is the order reconciliation engine and lifecycle.
type OrderService struct {
	store     OrderServiceStore
	events    EventPublisher
	locks     *sharding.OrderLocks
	cartLocks *sharding.OrderLocks
	mode      ReconcileMode
	now       func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(store OrderServiceStore, events EventPublisher, router *sharding.ShardRouter, mode ReconcileMode) *OrderService {
	if events == nil {
		events = nopPublisher{}
	}
	if router == nil {
		router = sharding.NewShardRouter(1)
	}
	if mode == "" {
		mode = ReconcilePositional
	}
	return &OrderService{
		store:     store,
		events:    events,
		locks:     sharding.NewOrderLocks(router),
		cartLocks: sharding.NewOrderLocks(router),
		mode:      mode,
		now:       time.Now,
	}
}

// CreateOrder opens a new CREATED order for the user.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64) (*entity.OrderView, error) {
	logger.Info().Msgf("Start to create order for user id=%d", userID)

	active, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fail(err, "Error getting orders of user id=%d", userID)
	}
	if n := countStatus(active, entity.StatusCreated); n > 0 {
		logger.Warn().Msgf("User id=%d already has %d active order(s)", userID, n)
	}

	order, err := s.store.CreateOrder(ctx, s.newCart(userID))
	if err != nil {
		return nil, fail(err, "Error creating order for user id=%d", userID)
	}

	view := materialize(*order, nil)
	logger.Info().Msgf("Order id=%d have been created", order.ID)
	s.publish(ctx, entity.EventOrderCreated, order.ID, view)
	return view, nil
}

// AcceptOrder freezes a CREATED order with a positive total into ACCEPTED and opens a fresh
// CREATED order for the same user. Both writes commit together.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID int64) (*AcceptResult, error) {
	logger.Info().Msgf("Start to accept order id=%d", orderID)

	unlock := s.locks.Lock(orderID)
	defer unlock()

	var result AcceptResult
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.lockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		view, err := s.loadView(ctx, order)
		if err != nil {
			return err
		}

		switch {
		case view.Status == entity.StatusAccepted:
			return fmt.Errorf("%w: order id=%d is already accepted", ErrInvalidState, orderID)
		case view.Status != entity.StatusCreated:
			return fmt.Errorf("%w: order id=%d in status %s cannot be accepted", ErrInvalidState, orderID, view.Status)
		case !view.TotalPrice.IsPositive():
			return fmt.Errorf("%w: order id=%d has nothing to accept", ErrInvalidState, orderID)
		}

		now := s.now()
		order.Status = entity.StatusAccepted
		order.Date = now
		accepted, err := s.store.UpdateOrder(ctx, order)
		if err != nil {
			return err
		}
		view.Order = *accepted

		fresh, err := s.store.CreateOrder(ctx, &entity.Order{UserID: order.UserID, Date: now, Status: entity.StatusCreated})
		if err != nil {
			return err
		}

		result = AcceptResult{Accepted: view, Active: materialize(*fresh, nil)}
		return nil
	})
	if err != nil {
		return nil, fail(err, "Error accepting order id=%d", orderID)
	}

	logger.Info().Msgf("Order id=%d have been accepted, order id=%d is now active", orderID, result.Active.ID)
	s.publish(ctx, entity.EventOrderAccepted, orderID, result.Accepted)
	s.publish(ctx, entity.EventOrderCreated, result.Active.ID, result.Active)
	return &result, nil
}

// AcceptActiveOrder accepts the user's current cart.
func (s *OrderService) AcceptActiveOrder(ctx context.Context, username string) (*AcceptResult, error) {
	user, unlock, err := s.lockCart(ctx, username)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.activeOrder(ctx, user, false)
	if err != nil {
		return nil, err
	}
	return s.AcceptOrder(ctx, order.ID)
}

// AddToCart adds a product to the user's current cart, opening one when the user has none.
// The cart stays locked until the add commits, so a concurrent accept cannot freeze the
// resolved order in between.
func (s *OrderService) AddToCart(ctx context.Context, username string, req ItemRequest) (*AddLineItemResult, error) {
	if err := validateQuantity(req); err != nil {
		logger.Warn().Err(err).Msgf("Invalid quantity for user %s", username)
		return nil, err
	}

	user, unlock, err := s.lockCart(ctx, username)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err := s.activeOrder(ctx, user, true)
	if err != nil {
		return nil, err
	}
	return s.AddLineItem(ctx, order.ID, req)
}

// FindActiveOrders returns the user's orders in CREATED status.
func (s *OrderService) FindActiveOrders(ctx context.Context, username string) ([]entity.OrderView, error) {
	orders, err := s.store.GetOrdersByUsernameAndStatus(ctx, username, entity.StatusCreated)
	if err != nil {
		return nil, fail(err, "Error getting active orders of user %s", username)
	}
	return s.loadViews(ctx, orders)
}

func (s *OrderService) FindByID(ctx context.Context, id int64) (*entity.OrderView, error) {
	logger.Info().Msgf("Start to find order by id=%d", id)

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, fail(err, "Order id=%d wasn't found", id)
	}
	view, err := s.loadView(ctx, order)
	if err != nil {
		return nil, fail(err, "Error loading items of order id=%d", id)
	}
	return view, nil
}

func (s *OrderService) FindAll(ctx context.Context) ([]entity.OrderView, error) {
	orders, err := s.store.GetOrders(ctx)
	if err != nil {
		return nil, fail(err, "Error getting orders")
	}
	return s.loadViews(ctx, orders)
}

func (s *OrderService) FindAllByUser(ctx context.Context, userID int64) ([]entity.OrderView, error) {
	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fail(err, "Error getting orders of user id=%d", userID)
	}
	return s.loadViews(ctx, orders)
}

// DeleteByID deletes an order together with its line items.
func (s *OrderService) DeleteByID(ctx context.Context, id int64) error {
	logger.Info().Msgf("Start to delete order by id=%d", id)

	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockOrder(ctx, id); err != nil {
			return err
		}
		if err := s.store.DeleteItemsByOrderID(ctx, id); err != nil {
			return err
		}
		return s.store.DeleteOrder(ctx, id)
	})
	if err != nil {
		return fail(err, "Error deleting order id=%d", id)
	}

	logger.Info().Msgf("Order id=%d has been deleted", id)
	s.publish(ctx, entity.EventOrderDeleted, id, nil)
	return nil
}

// lockCart serializes cart operations of one user. The cart lock is always taken before
// any order lock.
func (s *OrderService) lockCart(ctx context.Context, username string) (*entity.User, func(), error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fail(fmt.Errorf("%w: user %s wasn't found", ErrEntityNotFound, username), "User %s wasn't found", username)
	}
	if err != nil {
		return nil, nil, fail(err, "Error getting user %s", username)
	}
	return user, s.cartLocks.Lock(user.ID), nil
}

// activeOrder resolves the most recent CREATED order of the user, opening one when create is
// set. The caller holds the user's cart lock.
func (s *OrderService) activeOrder(ctx context.Context, user *entity.User, create bool) (*entity.Order, error) {
	username := user.Username
	orders, err := s.store.GetOrdersByUsernameAndStatus(ctx, username, entity.StatusCreated)
	if err != nil {
		return nil, fail(err, "Error getting active orders of user %s", username)
	}
	if len(orders) > 0 {
		return &orders[len(orders)-1], nil
	}
	if !create {
		return nil, fail(fmt.Errorf("%w: user %s has no active order", ErrInvalidState, username), "Nothing to accept for user %s", username)
	}

	order, err := s.store.CreateOrder(ctx, s.newCart(user.ID))
	if err != nil {
		return nil, fail(err, "Error creating order for user id=%d", user.ID)
	}
	logger.Info().Msgf("Order id=%d have been created for user %s", order.ID, username)
	s.publish(ctx, entity.EventOrderCreated, order.ID, materialize(*order, nil))
	return order, nil
}

func (s *OrderService) newCart(userID int64) *entity.Order {
	return &entity.Order{UserID: userID, Date: s.now(), Status: entity.StatusCreated}
}

func (s *OrderService) getOrder(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := s.store.GetOrderByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: order id=%d wasn't found", ErrEntityNotFound, id)
	}
	return order, err
}

// lockOrder reads the order and holds its row lock for the rest of the transaction, so
// writers on other instances queue behind this one.
func (s *OrderService) lockOrder(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := s.store.GetOrderByIDForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: order id=%d wasn't found", ErrEntityNotFound, id)
	}
	return order, err
}

func (s *OrderService) loadView(ctx context.Context, order *entity.Order) (*entity.OrderView, error) {
	items, err := s.store.GetLineItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return materialize(*order, items), nil
}

func (s *OrderService) loadViews(ctx context.Context, orders []entity.Order) ([]entity.OrderView, error) {
	views := make([]entity.OrderView, 0, len(orders))
	for i := range orders {
		view, err := s.loadView(ctx, &orders[i])
		if err != nil {
			return nil, fail(err, "Error loading items of order id=%d", orders[i].ID)
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, orderID int64, payload any) {
	if err := s.events.Publish(ctx, eventType, orderID, payload); err != nil {
		logger.Error().Err(err).Msgf("Error publishing order %s event for order id=%d", eventType, orderID)
	}
}

func countStatus(orders []entity.Order, status entity.OrderStatus) int {
	n := 0
	for _, o := range orders {
		if o.Status == status {
			n++
		}
	}
	return n
}
