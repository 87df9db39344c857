package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/service"
)

type UserService interface {
	CreateUser(ctx context.Context, user *entity.User, password string) (*entity.User, error)
	UpdateUser(ctx context.Context, id int64, user *entity.User, password string) (*entity.User, error)
	DeleteUser(ctx context.Context, id int64) error
	GetUserByID(ctx context.Context, id int64) (*entity.User, error)
	FindAllUsers(ctx context.Context) ([]entity.User, error)
	AddAddress(ctx context.Context, userID int64, address *entity.Address) (*entity.User, error)
	FindAddressByUserID(ctx context.Context, userID int64) (*entity.Address, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (*service.JwtCustomClaims, error)
}

type UserHandler struct {
	userService UserService
}

// NewUserHandler creates a new instance of UserHandler
func NewUserHandler(userService UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetUserByID retrieves a user by ID --> /users/:id
func (h *UserHandler) GetUserByID(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	user, err := h.userService.GetUserByID(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// CreateUser creates a new user --> /users
func (h *UserHandler) CreateUser(c echo.Context) error {
	req := userRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	// Roles are granted by admins only
	user := req.toUser()
	user.Role = entity.RoleUser

	created, err := h.userService.CreateUser(c.Request().Context(), user, req.Password)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, toUserResponse(created))
}

// GetUsers lists every user --> /users
func (h *UserHandler) GetUsers(c echo.Context) error {
	users, err := h.userService.FindAllUsers(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponses(users))
}

// UpdateUser updates the caller's own profile, or any profile for an admin --> /users/:id
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	if !selfOrAdmin(c, id) {
		return forbidden(c)
	}

	req := userRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	user := req.toUser()
	if claims, _ := claimsOf(c); !claims.IsAdmin() {
		user.Role = ""
	}

	updated, err := h.userService.UpdateUser(c.Request().Context(), id, user, req.Password)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(updated))
}

// DeleteUser deletes a user with its orders and address --> /users/:id
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	if err := h.userService.DeleteUser(c.Request().Context(), id); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddAddress sets the user's address --> /users/:id/address
func (h *UserHandler) AddAddress(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	if !selfOrAdmin(c, id) {
		return forbidden(c)
	}

	req := addressRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	user, err := h.userService.AddAddress(c.Request().Context(), id, req.toAddress())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, toUserResponse(user))
}

// GetAddress returns the user's address --> /users/:id/address
func (h *UserHandler) GetAddress(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, "Invalid ID")
	}
	if !selfOrAdmin(c, id) {
		return forbidden(c)
	}

	address, err := h.userService.FindAddressByUserID(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, toAddressResponse(address))
}

// Login logs in a user --> /users/login
func (h *UserHandler) Login(c echo.Context) error {
	req := loginRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	token, err := h.userService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// ValidateSession validates a session token --> /users/validate
func (h *UserHandler) ValidateSession(c echo.Context) error {
	token := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if token == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	claims, err := h.userService.ValidateToken(c.Request().Context(), token)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session is valid", "username": claims.Name})
}
