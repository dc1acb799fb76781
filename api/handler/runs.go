package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/hnpulse/models"
	"github.com/use-agent/hnpulse/store"
)

// Runs returns a handler for GET /api/v1/runs.
//
// Query parameters: limit (default 20), status (pending|running|completed|failed).
func Runs(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := intQuery(c, "limit", 20)
		if err != nil {
			respondInvalid(c, "limit must be an integer")
			return
		}
		if limit < 1 || limit > maxStories {
			respondInvalid(c, "limit must be between 1 and 500")
			return
		}

		var status models.RunStatus
		if raw := c.Query("status"); raw != "" {
			status = models.RunStatus(strings.ToUpper(raw))
			switch status {
			case models.StatusPending, models.StatusRunning, models.StatusCompleted, models.StatusFailed:
			default:
				respondInvalid(c, "status must be one of PENDING, RUNNING, COMPLETED, FAILED")
				return
			}
		}

		runs, err := st.ListRuns(c.Request.Context(), limit, status)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.RunsResponse{
			Runs:  runs,
			Count: len(runs),
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:execution_id.
func GetRun(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		executionID := c.Param("execution_id")

		run, err := st.GetRunByExecutionID(c.Request.Context(), executionID)
		if err != nil {
			respondError(c, err)
			return
		}
		if run == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "no run with execution id " + executionID,
				},
			})
			return
		}

		c.JSON(http.StatusOK, run)
	}
}
