package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/hnpulse/models"
	"github.com/use-agent/hnpulse/store"
)

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when the database is unreachable; the endpoint itself still
// answers 200 so probes can distinguish "down" from "degraded".
func Health(st *store.Store, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		db := "up"
		if err := st.Ping(c.Request.Context()); err != nil {
			status = "degraded"
			db = "down"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Database: db,
			Version:  "0.1.0",
		})
	}
}
