package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Scraper.BaseURL != "https://news.ycombinator.com" {
		t.Errorf("base url = %q", cfg.Scraper.BaseURL)
	}
	if cfg.Scraper.DefaultTopN != 30 {
		t.Errorf("default top n = %d, want 30", cfg.Scraper.DefaultTopN)
	}
	if cfg.Scraper.CommentMaxChars != 2000 {
		t.Errorf("comment cap = %d, want 2000", cfg.Scraper.CommentMaxChars)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Workflow.MaxAttempts)
	}
	if cfg.Workflow.BrowserInitialInterval != 2*time.Second {
		t.Errorf("browser retry initial = %v", cfg.Workflow.BrowserInitialInterval)
	}
	if cfg.Workflow.DBInitialInterval != time.Second {
		t.Errorf("db retry initial = %v", cfg.Workflow.DBInitialInterval)
	}
	if cfg.Auth.Enabled {
		t.Error("auth should default off")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HNPULSE_PORT", "9999")
	t.Setenv("HNPULSE_TOP_N", "50")
	t.Setenv("HNPULSE_HEADLESS", "false")
	t.Setenv("HNPULSE_SCRAPE_TIMEOUT", "90s")
	t.Setenv("HNPULSE_API_KEYS", "key-a, key-b")
	t.Setenv("HNPULSE_RATE_RPS", "2.5")

	cfg := Load()

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Scraper.DefaultTopN != 50 {
		t.Errorf("top n = %d, want 50", cfg.Scraper.DefaultTopN)
	}
	if cfg.Browser.Headless {
		t.Error("headless override not applied")
	}
	if cfg.Workflow.ScrapeTimeout != 90*time.Second {
		t.Errorf("scrape timeout = %v, want 90s", cfg.Workflow.ScrapeTimeout)
	}
	if len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[0] != "key-a" || cfg.Auth.APIKeys[1] != "key-b" {
		t.Errorf("api keys = %v", cfg.Auth.APIKeys)
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("rps = %v, want 2.5", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("HNPULSE_PORT", "not-a-number")
	t.Setenv("HNPULSE_NAV_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("malformed int should fall back, got %d", cfg.Server.Port)
	}
	if cfg.Scraper.NavigationTimeout != 30*time.Second {
		t.Errorf("malformed duration should fall back, got %v", cfg.Scraper.NavigationTimeout)
	}
}
