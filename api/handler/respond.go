package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/hnpulse/models"
)

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	scrapeErr, ok := err.(*models.ScrapeError)
	if !ok {
		scrapeErr = &models.ScrapeError{
			Code:    models.ErrCodeInternal,
			Message: err.Error(),
			Err:     err,
		}
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{
		Error: scrapeErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeDBTransient:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeBrowser:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}
