package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Troha7/E-store/internal/service"
)

// statusOf maps a service error onto its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrDuplicateProduct),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal server error"
	}
	return c.JSON(code, map[string]string{"error": msg})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
