package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/use-agent/hnpulse/api"
	"github.com/use-agent/hnpulse/browser"
	"github.com/use-agent/hnpulse/config"
	"github.com/use-agent/hnpulse/scraper"
	"github.com/use-agent/hnpulse/store"
	"github.com/use-agent/hnpulse/workflow"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("hnpulse starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"baseURL", cfg.Scraper.BaseURL,
	)

	// ── 3. Connect to the database and apply the schema ─────────────
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.New(ctx, cfg.Database.DSN)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = st.Migrate(ctx)
	cancel()
	if err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	// ── 4. Initialise the browser session pool ──────────────────────
	// The browser launches lazily on the first scrape, so a missing Chrome
	// binary surfaces as a failed run, not a failed boot.
	pool := browser.NewPool(browser.NewRodDriver(cfg.Browser))
	defer pool.Shutdown()

	// ── 5. Wire the scraper and workflow runner ─────────────────────
	sc := scraper.New(pool, cfg.Scraper, cfg.Browser.ScreenshotDir)
	runner := workflow.NewRunner(sc, st, pool, cfg.Workflow, cfg.Scraper.CommentDelay)

	// ── 6. Setup router and start the HTTP server ───────────────────
	startTime := time.Now()
	router := api.NewRouter(runner, st, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// pool.Shutdown and st.Close run via defer.
	slog.Info("hnpulse stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
