package routes

import (
	"net/http"

	"github.com/caseframe/backend/internal/server/middleware"
	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/logger"
	graphstorage "github.com/caseframe/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

func GetEntitiesHandler(c echo.Context) error {
	type getEntitiesResponse struct {
		Message  string          `json:"message"`
		Entities []common.Entity `json:"entities,omitempty"`
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	storage := graphstorage.NewGraphDBStorageWithConnection(conn)

	entities, err := storage.ListEntities(ctx)
	if err != nil {
		logger.Error("Failed to list entities", "err", err)
		return c.JSON(http.StatusInternalServerError, getEntitiesResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getEntitiesResponse{
		Message:  "OK",
		Entities: entities,
	})
}
