package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/hnpulse/api/handler"
	"github.com/use-agent/hnpulse/api/middleware"
	"github.com/use-agent/hnpulse/config"
	"github.com/use-agent/hnpulse/store"
	"github.com/use-agent/hnpulse/workflow"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics endpoints are intentionally outside auth so monitoring
// probes always work.
func NewRouter(runner *workflow.Runner, st *store.Store, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(st, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Scrape trigger
	protected.POST("/scrape", handler.Scrape(runner, cfg.Scraper.DefaultTopN))

	// Read models
	protected.GET("/stories", handler.Stories(st))
	protected.GET("/runs", handler.Runs(st))
	protected.GET("/runs/:execution_id", handler.GetRun(st))

	return r
}
