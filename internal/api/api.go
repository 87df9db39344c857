package api

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const idempotentKeyHeader = "Idempotent-Key"

type OrderService interface {
	CreateOrder(ctx context.Context, userID int64) (*entity.OrderView, error)
	AddLineItem(ctx context.Context, orderID int64, req service.ItemRequest) (*service.AddLineItemResult, error)
	RemoveLineItem(ctx context.Context, orderID, productID int64) (*entity.OrderView, error)
	ReplaceLineItems(ctx context.Context, orderID int64, cmd service.UpdateOrderCommand) (*entity.OrderView, error)
	AcceptOrder(ctx context.Context, orderID int64) (*service.AcceptResult, error)
	AcceptActiveOrder(ctx context.Context, username string) (*service.AcceptResult, error)
	AddToCart(ctx context.Context, username string, req service.ItemRequest) (*service.AddLineItemResult, error)
	FindActiveOrders(ctx context.Context, username string) ([]entity.OrderView, error)
	FindByID(ctx context.Context, id int64) (*entity.OrderView, error)
	FindAll(ctx context.Context) ([]entity.OrderView, error)
	FindAllByUser(ctx context.Context, userID int64) ([]entity.OrderView, error)
	DeleteByID(ctx context.Context, id int64) error
}

// IdempotencyGuard rejects a request whose Idempotent-Key has been seen before.
type IdempotencyGuard interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

type OrderHandler struct {
	orderService OrderService
	guard        IdempotencyGuard
}

// NewOrderHandler creates a new instance of OrderHandler. guard may be nil.
func NewOrderHandler(orderService OrderService, guard IdempotencyGuard) *OrderHandler {
	return &OrderHandler{orderService: orderService, guard: guard}
}

// CreateOrder opens a new order --> POST /orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	req := createOrderRequest{}
	if err := c.Bind(&req); err != nil || req.UserID <= 0 {
		return badRequest(c, "Invalid request payload")
	}

	key := c.Request().Header.Get(idempotentKeyHeader)
	if done, err := h.claim(c, "create-order", key); done {
		return err
	}

	view, err := h.orderService.CreateOrder(ctx, req.UserID)
	if err != nil {
		h.release(ctx, "create-order", key)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, toOrderResponse(view))
}

// AddLineItem adds a product to an order --> POST /orders/add/:orderId
func (h *OrderHandler) AddLineItem(c echo.Context) error {
	orderID, err := pathID(c, "orderId")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	req := itemRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	res, err := h.orderService.AddLineItem(c.Request().Context(), orderID, req.toItem())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, addItemResponse{Item: toLineItemResponse(res.Item), Order: toOrderResponse(res.Order)})
}

// RemoveLineItem removes a product from an order --> DELETE /orders/:id/products/:productId
func (h *OrderHandler) RemoveLineItem(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	productID, err := pathID(c, "productId")
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}

	view, err := h.orderService.RemoveLineItem(c.Request().Context(), orderID, productID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(view))
}

// UpdateOrder replaces the line items of an order --> PUT /orders/:id
func (h *OrderHandler) UpdateOrder(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	req := updateOrderRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	view, err := h.orderService.ReplaceLineItems(c.Request().Context(), orderID, req.toCommand())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(view))
}

// AcceptOrder accepts an order --> POST /orders/:id/accept
func (h *OrderHandler) AcceptOrder(c echo.Context) error {
	ctx := c.Request().Context()
	orderID, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}

	key := c.Request().Header.Get(idempotentKeyHeader)
	if done, err := h.claim(c, "accept-order", key); done {
		return err
	}

	res, err := h.orderService.AcceptOrder(ctx, orderID)
	if err != nil {
		h.release(ctx, "accept-order", key)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toAcceptResponse(res))
}

// GetOrders --> GET /orders
func (h *OrderHandler) GetOrders(c echo.Context) error {
	views, err := h.orderService.FindAll(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponses(views))
}

// GetOrder --> GET /orders/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	view, err := h.orderService.FindByID(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(view))
}

// GetUserOrders --> GET /orders/user/:userId
func (h *OrderHandler) GetUserOrders(c echo.Context) error {
	userID, err := pathID(c, "userId")
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	views, err := h.orderService.FindAllByUser(c.Request().Context(), userID)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponses(views))
}

// DeleteOrder --> DELETE /orders/:id
func (h *OrderHandler) DeleteOrder(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	if err := h.orderService.DeleteByID(c.Request().Context(), id); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetCart lists the caller's active orders --> GET /cart
func (h *OrderHandler) GetCart(c echo.Context) error {
	username, ok := usernameOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	views, err := h.orderService.FindActiveOrders(c.Request().Context(), username)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponses(views))
}

// AddToCart --> POST /cart/products
func (h *OrderHandler) AddToCart(c echo.Context) error {
	username, ok := usernameOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	req := itemRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	res, err := h.orderService.AddToCart(c.Request().Context(), username, req.toItem())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, addItemResponse{Item: toLineItemResponse(res.Item), Order: toOrderResponse(res.Order)})
}

// BuyCart accepts the caller's active order --> POST /cart/buy
func (h *OrderHandler) BuyCart(c echo.Context) error {
	username, ok := usernameOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	res, err := h.orderService.AcceptActiveOrder(c.Request().Context(), username)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toAcceptResponse(res))
}

// claim reports done=true when the response has already been written.
func (h *OrderHandler) claim(c echo.Context, scope, key string) (done bool, err error) {
	if h.guard == nil || key == "" {
		return false, nil
	}
	ok, err := h.guard.Claim(c.Request().Context(), scope, key)
	if err != nil {
		logger.Error().Err(err).Msgf("Error checking idempotent key %s", key)
		return true, c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	if !ok {
		return true, c.JSON(http.StatusConflict, map[string]string{"error": "Duplicate request for Idempotent-Key " + key})
	}
	return false, nil
}

func (h *OrderHandler) release(ctx context.Context, scope, key string) {
	if h.guard == nil || key == "" {
		return
	}
	if err := h.guard.Release(ctx, scope, key); err != nil {
		logger.Error().Err(err).Msgf("Error releasing idempotent key %s", key)
	}
}

func toAcceptResponse(res *service.AcceptResult) acceptResponse {
	return acceptResponse{Accepted: toOrderResponse(res.Accepted), Active: toOrderResponse(res.Active)}
}

func pathID(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
