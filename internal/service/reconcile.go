package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/repository"
)

// AddLineItem adds quantity of a product to an order. A product already in the order has
// its quantity increased in place; otherwise a new row is inserted.
func (s *OrderService) AddLineItem(ctx context.Context, orderID int64, req ItemRequest) (*AddLineItemResult, error) {
	logger.Info().Msgf("Start to add product id=%d quantity=%d to order id=%d", req.ProductID, req.Quantity, orderID)

	if err := validateQuantity(req); err != nil {
		logger.Warn().Err(err).Msg("Invalid quantity")
		return nil, err
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	var result AddLineItemResult
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.requireOrderAndProduct(ctx, orderID, req.ProductID)
		if err != nil {
			return err
		}

		current, err := s.store.GetItemsByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		item := entity.OrderItem{OrderID: orderID, ProductID: req.ProductID, Quantity: req.Quantity}
		var saved *entity.OrderItem
		if existing, ok := findByProduct(current, req.ProductID); ok {
			logger.Info().Msgf("Updating product id=%d and summarizing quantity", req.ProductID)
			if existing.Quantity > MaxQuantity-req.Quantity {
				return fmt.Errorf("%w: product id=%d quantity %d + %d overflows", ErrInvalidQuantity, req.ProductID, existing.Quantity, req.Quantity)
			}
			item.ID = existing.ID
			item.Version = existing.Version
			item.Quantity = existing.Quantity + req.Quantity
			saved, err = s.store.UpdateItem(ctx, &item)
		} else {
			saved, err = s.store.CreateItem(ctx, &item)
		}
		if err != nil {
			return err
		}

		view, err := s.loadView(ctx, order)
		if err != nil {
			return err
		}

		result = AddLineItemResult{Item: lineItemOf(view, *saved), Order: view}
		return nil
	})
	if err != nil {
		return nil, fail(err, "Error adding product id=%d to order id=%d", req.ProductID, orderID)
	}

	logger.Info().Msgf("Product id=%d has been added to order id=%d", req.ProductID, orderID)
	s.publish(ctx, entity.EventOrderItemAdded, orderID, result.Order)
	return &result, nil
}

// RemoveLineItem deletes the row holding productID from the order.
func (s *OrderService) RemoveLineItem(ctx context.Context, orderID, productID int64) (*entity.OrderView, error) {
	logger.Info().Msgf("Start to remove product id=%d from order id=%d", productID, orderID)

	unlock := s.locks.Lock(orderID)
	defer unlock()

	var view *entity.OrderView
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.requireOrderAndProduct(ctx, orderID, productID)
		if err != nil {
			return err
		}

		err = s.store.DeleteItemByOrderAndProduct(ctx, orderID, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: product id=%d is not in order id=%d", ErrEntityNotFound, productID, orderID)
		}
		if err != nil {
			return err
		}

		view, err = s.loadView(ctx, order)
		return err
	})
	if err != nil {
		return nil, fail(err, "Error removing product id=%d from order id=%d", productID, orderID)
	}

	logger.Info().Msgf("Product id=%d has been removed from order id=%d", productID, orderID)
	s.publish(ctx, entity.EventOrderItemRemoved, orderID, view)
	return view, nil
}

// ReplaceLineItems moves the order's line items to the desired list. Every precondition is
// checked before the first write; the deletes, upserts and header save commit together.
func (s *OrderService) ReplaceLineItems(ctx context.Context, orderID int64, cmd UpdateOrderCommand) (*entity.OrderView, error) {
	logger.Info().Msgf("Start to update order id=%d with %d product(s)", orderID, len(cmd.Items))

	unlock := s.locks.Lock(orderID)
	defer unlock()

	var view *entity.OrderView
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.lockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireMutable(order); err != nil {
			return err
		}
		if err := validateDesiredItems(cmd.Items); err != nil {
			return err
		}

		productIDs := productIDsOf(cmd.Items)
		exists, err := s.store.ExistsProductsByIDs(ctx, productIDs)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: some of product ids %v do not exist", ErrEntityNotFound, productIDs)
		}

		current, err := s.store.GetItemsByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		upserts, removed := s.diff(orderID, cmd.Items, current)

		// Delete all order items which will not be updated
		if err := s.store.DeleteItems(ctx, removed); err != nil {
			return err
		}

		// Insert or update the rest
		for i := range upserts {
			if upserts[i].ID == 0 {
				_, err = s.store.CreateItem(ctx, &upserts[i])
			} else {
				_, err = s.store.UpdateItem(ctx, &upserts[i])
			}
			if err != nil {
				return err
			}
		}

		// Update the order
		if cmd.Date != nil {
			order.Date = *cmd.Date
		}
		order, err = s.store.UpdateOrder(ctx, order)
		if err != nil {
			return err
		}

		view, err = s.loadView(ctx, order)
		return err
	})
	if err != nil {
		return nil, fail(err, "Error updating order id=%d", orderID)
	}

	logger.Info().Msgf("Order id=%d have been updated", orderID)
	s.publish(ctx, entity.EventOrderUpdated, orderID, view)
	return view, nil
}

func (s *OrderService) diff(orderID int64, desired []ItemRequest, current []entity.OrderItem) (upserts, removed []entity.OrderItem) {
	if s.mode == ReconcileKeyed {
		return diffKeyed(orderID, desired, current)
	}
	return diffPositional(orderID, desired, current)
}

// diffPositional pairs desired[i] with current[i]: the i-th stored row id is reused for the
// i-th desired item, and stored rows past len(desired) are removed. Reordering the desired
// list therefore moves row ids between products.
func diffPositional(orderID int64, desired []ItemRequest, current []entity.OrderItem) (upserts, removed []entity.OrderItem) {
	for i, d := range desired {
		candidate := entity.OrderItem{OrderID: orderID, ProductID: d.ProductID, Quantity: d.Quantity}
		if i < len(current) {
			candidate.ID = current[i].ID
			candidate.Version = current[i].Version
		}
		if !containsRow(current, candidate) {
			upserts = append(upserts, candidate)
		}
	}
	if len(desired) < len(current) {
		removed = append(removed, current[len(desired):]...)
	}
	return upserts, removed
}

// diffKeyed pairs rows by product id: kept products keep their row, changed quantities are
// updated, new products inserted and missing ones removed.
func diffKeyed(orderID int64, desired []ItemRequest, current []entity.OrderItem) (upserts, removed []entity.OrderItem) {
	byProduct := make(map[int64]entity.OrderItem, len(current))
	for _, c := range current {
		byProduct[c.ProductID] = c
	}

	wanted := make(map[int64]struct{}, len(desired))
	for _, d := range desired {
		wanted[d.ProductID] = struct{}{}
		existing, ok := byProduct[d.ProductID]
		if !ok {
			upserts = append(upserts, entity.OrderItem{OrderID: orderID, ProductID: d.ProductID, Quantity: d.Quantity})
			continue
		}
		if existing.Quantity != d.Quantity {
			existing.Quantity = d.Quantity
			upserts = append(upserts, existing)
		}
	}

	for _, c := range current {
		if _, ok := wanted[c.ProductID]; !ok {
			removed = append(removed, c)
		}
	}
	return upserts, removed
}

// validateDesiredItems rejects duplicate product ids first, then quantities out of range.
func validateDesiredItems(items []ItemRequest) error {
	distinct := make(map[int64]struct{}, len(items))
	for _, item := range items {
		distinct[item.ProductID] = struct{}{}
	}
	if len(distinct) != len(items) {
		for i, item := range items {
			for _, other := range items[:i] {
				if other.ProductID == item.ProductID {
					return fmt.Errorf("%w: order has duplicate productId=%d", ErrDuplicateProduct, item.ProductID)
				}
			}
		}
	}

	for _, item := range items {
		if err := validateQuantity(item); err != nil {
			return err
		}
	}
	return nil
}

// validateQuantity keeps a quantity within the INT column of order_items.
func validateQuantity(item ItemRequest) error {
	if item.Quantity <= 0 || item.Quantity > MaxQuantity {
		return fmt.Errorf("%w: product id=%d quantity=%d", ErrInvalidQuantity, item.ProductID, item.Quantity)
	}
	return nil
}

// requireOrderAndProduct checks both ids with one predicate and then loads and locks the order.
func (s *OrderService) requireOrderAndProduct(ctx context.Context, orderID, productID int64) (*entity.Order, error) {
	exists, err := s.store.ExistsOrderAndProduct(ctx, orderID, productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: order id=%d or product id=%d", ErrEntityNotFound, orderID, productID)
	}

	order, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireMutable(order); err != nil {
		return nil, err
	}
	return order, nil
}

func requireMutable(order *entity.Order) error {
	if order.Status != entity.StatusCreated {
		return fmt.Errorf("%w: order id=%d is %s", ErrInvalidState, order.ID, order.Status)
	}
	return nil
}

func findByProduct(items []entity.OrderItem, productID int64) (entity.OrderItem, bool) {
	for _, item := range items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return entity.OrderItem{}, false
}

func containsRow(items []entity.OrderItem, row entity.OrderItem) bool {
	for _, item := range items {
		if item.SameRow(row) {
			return true
		}
	}
	return false
}

func productIDsOf(items []ItemRequest) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func lineItemOf(view *entity.OrderView, item entity.OrderItem) entity.LineItem {
	for _, li := range view.Items {
		if li.ID == item.ID {
			return li
		}
	}
	return entity.LineItem{OrderItem: item}
}
