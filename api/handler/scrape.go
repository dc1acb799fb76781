package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/hnpulse/models"
	"github.com/use-agent/hnpulse/workflow"
)

// maxStories caps a single trigger so one request cannot page through the
// whole site.
const maxStories = 500

// Scrape returns a handler for POST /api/v1/scrape.
//
// The run is fire-and-forget: the handler mints an execution id, starts the
// run in the background, and returns 202 immediately. Progress is observed
// through GET /runs/:execution_id.
func Scrape(runner *workflow.Runner, defaultTopN int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeTriggerRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: err.Error(),
					},
				})
				return
			}
		}

		topN := req.NumStories
		if topN == 0 {
			topN = defaultTopN
		}
		if topN < 1 || topN > maxStories {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "num_stories must be between 1 and 500",
				},
			})
			return
		}

		executionID := workflow.NewExecutionID()
		go func() {
			// Detached from the request: the run outlives the HTTP exchange.
			if _, err := runner.Run(context.Background(), executionID, topN); err != nil {
				slog.Error("background scrape run failed",
					"executionID", executionID, "error", err)
			}
		}()

		c.JSON(http.StatusAccepted, models.ScrapeTriggerResponse{
			ExecutionID: executionID,
			Status:      string(models.StatusPending),
		})
	}
}
