package server

import (
	"github.com/caseframe/backend/internal/server/middleware"
	"github.com/caseframe/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.APIKeyMiddleware)

	// Engine run routes
	apiRoutes.POST("/runs", routes.CreateRunHandler)
	apiRoutes.GET("/runs", routes.GetRunsHandler)
	apiRoutes.GET("/runs/:run_id", routes.GetRunHandler)

	// Graph inspection routes
	apiRoutes.GET("/entities", routes.GetEntitiesHandler)
}
