package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/caseframe/backend/internal/util"

	"github.com/labstack/echo/v4"
)

// APIKeyMiddleware guards the admin API with a shared key. An empty
// ENGINE_API_KEY disables the check for local development.
func APIKeyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		expected := util.GetEnv("ENGINE_API_KEY")
		if expected == "" {
			return next(c)
		}

		provided := c.Request().Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		return next(c)
	}
}
