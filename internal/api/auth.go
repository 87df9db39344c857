package api

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Troha7/E-store/internal/entity"
	"github.com/Troha7/E-store/internal/service"
)

// jwtMiddleware accepts HS256 bearer tokens signed with secret and stores them under "user".
func jwtMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return new(service.JwtCustomClaims)
		},
	})
}

// requireRole lets the request through only when the token carries role. It runs after
// jwtMiddleware.
func requireRole(role entity.UserRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := claimsOf(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			if claims.Role != role {
				logger.Warn().Msgf("User %s with role %q denied %s %s", claims.Name, claims.Role, c.Request().Method, c.Path())
				return forbidden(c)
			}
			return next(c)
		}
	}
}

// claimsOf reads the claims of the token echojwt stored in the context.
func claimsOf(c echo.Context) (*service.JwtCustomClaims, bool) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok := token.Claims.(*service.JwtCustomClaims)
	return claims, ok
}

func usernameOf(c echo.Context) (string, bool) {
	claims, ok := claimsOf(c)
	if !ok || claims.Name == "" {
		return "", false
	}
	return claims.Name, true
}

// selfOrAdmin reports whether the caller may act on the user with this id.
func selfOrAdmin(c echo.Context, userID int64) bool {
	claims, ok := claimsOf(c)
	return ok && (claims.IsAdmin() || claims.UserID == userID)
}
