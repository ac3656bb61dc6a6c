package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/caseframe/backend/internal/queue"
	"github.com/caseframe/backend/internal/server/middleware"
	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/store"
	graphstorage "github.com/caseframe/backend/pkg/store/pgx"

	"github.com/labstack/echo/v4"
)

// CreateRunHandler validates a run request and enqueues it for the worker.
// The run itself happens asynchronously under the engine's lease.
func CreateRunHandler(c echo.Context) error {
	type createRunBody struct {
		Stages      []string `json:"stages" validate:"omitempty,dive,oneof=resolve merge classify aggregate"`
		DocumentIDs []int64  `json:"document_ids"`
		EntityIDs   []int64  `json:"entity_ids"`
		Since       string   `json:"since"`
		DryRun      bool     `json:"dry_run"`
		BatchSize   int      `json:"batch_size" validate:"omitempty,min=1,max=5000"`
	}

	type createRunResponse struct {
		Message string `json:"message"`
	}

	data := new(createRunBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid request body",
		})
	}

	queueData := queue.RunRequestMsg{
		Stages:      data.Stages,
		DocumentIDs: data.DocumentIDs,
		EntityIDs:   data.EntityIDs,
		Since:       data.Since,
		DryRun:      data.DryRun,
		BatchSize:   data.BatchSize,
	}
	if _, err := queueData.Params(); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid run parameters",
		})
	}

	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.RunQueue, msgBytes); err != nil {
		logger.Error("Failed to publish run request", "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, createRunResponse{
		Message: "Run request accepted",
	})
}

func GetRunsHandler(c echo.Context) error {
	type getRunsResponse struct {
		Message string              `json:"message"`
		Runs    []common.RunSummary `json:"runs,omitempty"`
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	storage := graphstorage.NewGraphDBStorageWithConnection(conn)

	runs, err := storage.ListRuns(ctx, limit)
	if err != nil {
		logger.Error("Failed to list runs", "err", err)
		return c.JSON(http.StatusInternalServerError, getRunsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRunsResponse{
		Message: "OK",
		Runs:    runs,
	})
}

func GetRunHandler(c echo.Context) error {
	type getRunResponse struct {
		Message string             `json:"message"`
		Run     *common.RunSummary `json:"run,omitempty"`
	}

	runID := c.Param("run_id")
	if runID == "" {
		return c.JSON(http.StatusBadRequest, getRunResponse{
			Message: "Missing run id",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	storage := graphstorage.NewGraphDBStorageWithConnection(conn)

	run, err := storage.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getRunResponse{
				Message: "Run not found",
			})
		}
		logger.Error("Failed to get run", "run_id", runID, "err", err)
		return c.JSON(http.StatusInternalServerError, getRunResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRunResponse{
		Message: "OK",
		Run:     &run,
	})
}
