package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/hnpulse/models"
	"github.com/use-agent/hnpulse/store"
)

// Stories returns a handler for GET /api/v1/stories.
//
// Query parameters: limit, min_points, rank_min, rank_max.
func Stories(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := store.StoryFilter{Limit: 30}

		var err error
		if f.Limit, err = intQuery(c, "limit", f.Limit); err != nil {
			respondInvalid(c, "limit must be an integer")
			return
		}
		if f.Limit < 1 || f.Limit > maxStories {
			respondInvalid(c, "limit must be between 1 and 500")
			return
		}
		if f.MinPoints, err = intQuery(c, "min_points", 0); err != nil {
			respondInvalid(c, "min_points must be an integer")
			return
		}
		if f.RankMin, err = intQuery(c, "rank_min", 0); err != nil {
			respondInvalid(c, "rank_min must be an integer")
			return
		}
		if f.RankMax, err = intQuery(c, "rank_max", 0); err != nil {
			respondInvalid(c, "rank_max must be an integer")
			return
		}

		stories, err := st.ListStories(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.StoriesResponse{
			Stories: stories,
			Count:   len(stories),
		})
	}
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func respondInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: msg,
		},
	})
}
