package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Troha7/E-store/internal/entity"
)

type Handlers struct {
	Orders    *OrderHandler
	Products  *ProductHandler
	Users     *UserHandler
	JWTSecret string
}

// RegisterRoutes mounts every endpoint on e. The /cart group and the user profile routes
// require a bearer token signed with JWTSecret; listing or deleting every order, user and
// catalog writes additionally require the ADMIN role.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	auth := jwtMiddleware(h.JWTSecret)
	admin := requireRole(entity.RoleAdmin)

	e.POST("/orders", h.Orders.CreateOrder)
	e.GET("/orders", h.Orders.GetOrders, auth, admin)
	e.POST("/orders/add/:orderId", h.Orders.AddLineItem)
	e.GET("/orders/user/:userId", h.Orders.GetUserOrders)
	e.GET("/orders/:id", h.Orders.GetOrder)
	e.PUT("/orders/:id", h.Orders.UpdateOrder)
	e.DELETE("/orders/:id", h.Orders.DeleteOrder, auth, admin)
	e.POST("/orders/:id/accept", h.Orders.AcceptOrder)
	e.DELETE("/orders/:id/products/:productId", h.Orders.RemoveLineItem)

	cart := e.Group("/cart", auth)
	cart.GET("", h.Orders.GetCart)
	cart.POST("/products", h.Orders.AddToCart)
	cart.POST("/buy", h.Orders.BuyCart)

	e.POST("/products", h.Products.CreateProduct, auth, admin)
	e.GET("/products", h.Products.GetProducts)
	e.GET("/products/search", h.Products.SearchProducts)
	e.GET("/products/warmup-cache", h.Products.PreWarmupCache)
	e.GET("/products/:id", h.Products.GetProduct)
	e.PUT("/products/:id", h.Products.UpdateProduct, auth, admin)
	e.DELETE("/products/:id", h.Products.DeleteProduct, auth, admin)

	e.POST("/users", h.Users.CreateUser)
	e.GET("/users", h.Users.GetUsers, auth, admin)
	e.POST("/users/login", h.Users.Login)
	e.GET("/users/validate", h.Users.ValidateSession)
	e.GET("/users/:id", h.Users.GetUserByID)
	e.PUT("/users/:id", h.Users.UpdateUser, auth)
	e.DELETE("/users/:id", h.Users.DeleteUser, auth, admin)
	e.POST("/users/:id/address", h.Users.AddAddress, auth)
	e.GET("/users/:id/address", h.Users.GetAddress, auth)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "order-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})
}
