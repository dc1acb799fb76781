// Package scraper performs the individual browser operations of a scrape
// execution: front-page navigation, pagination checks, story extraction, and
// top-comment extraction. Each operation obtains its session from the pool,
// verifies the result shape, and classifies failures for the retry layer.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/use-agent/hnpulse/browser"
	"github.com/use-agent/hnpulse/config"
	"github.com/use-agent/hnpulse/models"
)

// siteName must appear in the page title of every page we accept. Anything
// else is a captcha, an error page, or the wrong site.
const siteName = "Hacker News"

// Scraper executes browser operations against Hacker News.
type Scraper struct {
	pool *browser.Pool
	cfg  config.ScraperConfig

	shots *screenshotter
}

// New creates a Scraper drawing sessions from pool.
func New(pool *browser.Pool, cfg config.ScraperConfig, screenshotDir string) *Scraper {
	return &Scraper{
		pool:  pool,
		cfg:   cfg,
		shots: &screenshotter{dir: screenshotDir},
	}
}

// StartSession launches (or reuses) the execution's browser session without
// navigating anywhere. Run up front so browser startup cost and startup
// failures are attributed to their own step rather than the first navigation.
func (s *Scraper) StartSession(ctx context.Context, executionID string) error {
	_, err := s.pool.Acquire(executionID)
	return err
}

// LoadFrontPage navigates the execution's session to the HN front page and
// verifies it loaded: 2xx status, expected title, at least one story row.
func (s *Scraper) LoadFrontPage(ctx context.Context, executionID string) error {
	sess, err := s.pool.Acquire(executionID)
	if err != nil {
		return err
	}
	return s.navigateAndVerify(ctx, sess.Page(), executionID, "load_front_page", s.cfg.BaseURL)
}

// LoadPage paginates to page pageNumber (>= 2). Before navigating it checks
// the current page for the "More" link; its absence means HN has no further
// pages and LoadPage returns (false, nil) — the normal termination signal for
// pagination, not an error.
func (s *Scraper) LoadPage(ctx context.Context, executionID string, pageNumber int) (bool, error) {
	if pageNumber < 2 {
		return false, models.NewInfraError(
			fmt.Sprintf("LoadPage requires pageNumber >= 2, got %d", pageNumber), nil)
	}

	sess, err := s.pool.Acquire(executionID)
	if err != nil {
		return false, err
	}
	page := sess.Page()

	hasMore, err := page.Has(ctx, moreLinkSelector)
	if err != nil {
		s.shots.capture(ctx, page, "load_page", executionID)
		return false, models.NewBrowserError(
			fmt.Sprintf("failed to query %q on page %d", moreLinkSelector, pageNumber-1), err)
	}
	if !hasMore {
		slog.Info("no more pages available, stopping pagination",
			"executionID", executionID, "lastPage", pageNumber-1)
		return false, nil
	}

	target := fmt.Sprintf("%s?p=%d", s.cfg.BaseURL, pageNumber)
	if err := s.navigateAndVerify(ctx, page, executionID, "load_page", target); err != nil {
		return false, err
	}
	return true, nil
}

// ExtractStories parses up to limit stories from the currently loaded page.
// Individual malformed rows are skipped with a warning; zero parseable rows
// on an otherwise loaded page is a non-retryable structural failure.
func (s *Scraper) ExtractStories(ctx context.Context, executionID string, limit int) ([]models.Story, error) {
	sess, err := s.pool.Acquire(executionID)
	if err != nil {
		return nil, err
	}
	page := sess.Page()

	if err := page.WaitElement(ctx, storyRowSelector, s.cfg.NavigationTimeout); err != nil {
		s.shots.capture(ctx, page, "extract_stories", executionID)
		return nil, models.NewBrowserError("story rows never attached to the DOM", err)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		s.shots.capture(ctx, page, "extract_stories", executionID)
		return nil, models.NewBrowserError("failed to read page HTML", err)
	}

	stories, skipped, err := parseStories(html, limit)
	if err != nil {
		return nil, models.NewParseError("failed to parse story rows", err)
	}
	for _, sk := range skipped {
		slog.Warn("story row skipped", "executionID", executionID, "rank", sk.Rank, "reason", sk.Reason)
	}

	if len(stories) == 0 {
		s.shots.capture(ctx, page, "extract_stories", executionID)
		return nil, models.NewParseError(
			"extracted zero stories from the page — the DOM structure may have changed", nil)
	}

	slog.Info("stories extracted",
		"executionID", executionID, "count", len(stories), "skipped", len(skipped))
	return stories, nil
}

// ExtractTopComment navigates to the story's item page and returns its first
// displayed comment, truncated to the configured cap. ok=false with a nil
// error means the story has no comments. A 404 means the story is gone and is
// not retryable.
func (s *Scraper) ExtractTopComment(ctx context.Context, executionID, hnID string) (string, bool, error) {
	sess, err := s.pool.Acquire(executionID)
	if err != nil {
		return "", false, err
	}
	page := sess.Page()

	target := fmt.Sprintf("%s/item?id=%s", s.cfg.BaseURL, hnID)
	status, err := page.Navigate(ctx, target)
	if err != nil {
		s.shots.capture(ctx, page, "extract_comment", executionID)
		return "", false, models.NewBrowserError(
			fmt.Sprintf("navigation failed for story %s", hnID), err)
	}
	if status == 404 {
		return "", false, models.NewParseError(
			fmt.Sprintf("story %s not found (HTTP 404)", hnID), nil)
	}
	if status >= 400 {
		s.shots.capture(ctx, page, "extract_comment", executionID)
		return "", false, models.NewBrowserError(
			fmt.Sprintf("unexpected HTTP %d from %s", status, target), nil)
	}

	if err := s.verifyTitle(ctx, page, executionID, "extract_comment", target); err != nil {
		return "", false, err
	}

	// Short bounded wait: if the comment tree never appears, the story has no
	// comments — that is a result, not a failure.
	if err := page.WaitElement(ctx, commentTree, s.cfg.CommentWaitTimeout); err != nil {
		slog.Debug("no comment tree found", "executionID", executionID, "hnID", hnID)
		return "", false, nil
	}

	html, err := page.HTML(ctx)
	if err != nil {
		s.shots.capture(ctx, page, "extract_comment", executionID)
		return "", false, models.NewBrowserError("failed to read item page HTML", err)
	}

	comment, ok, err := parseTopComment(html)
	if err != nil {
		s.shots.capture(ctx, page, "extract_comment", executionID)
		return "", false, models.NewParseError(
			fmt.Sprintf("failed to parse top comment for story %s", hnID), err)
	}
	if !ok {
		return "", false, nil
	}

	return truncateChars(comment, s.cfg.CommentMaxChars), true, nil
}

// navigateAndVerify loads url and asserts it is a usable HN listing page.
func (s *Scraper) navigateAndVerify(ctx context.Context, page browser.Page, executionID, op, url string) error {
	status, err := page.Navigate(ctx, url)
	if err != nil {
		s.shots.capture(ctx, page, op, executionID)
		return models.NewBrowserError(fmt.Sprintf("failed to navigate to %s", url), err)
	}
	if status >= 400 {
		s.shots.capture(ctx, page, op, executionID)
		return models.NewBrowserError(fmt.Sprintf("unexpected HTTP %d from %s", status, url), nil)
	}

	if err := s.verifyTitle(ctx, page, executionID, op, url); err != nil {
		return err
	}

	if err := page.WaitElement(ctx, storyRowSelector, s.cfg.NavigationTimeout); err != nil {
		s.shots.capture(ctx, page, op, executionID)
		return models.NewBrowserError(
			fmt.Sprintf("no story rows (%s) found on %s", storyRowSelector, url), err)
	}

	slog.Info("page loaded", "executionID", executionID, "op", op, "url", url)
	return nil
}

// verifyTitle asserts the document title identifies the expected site.
func (s *Scraper) verifyTitle(ctx context.Context, page browser.Page, executionID, op, url string) error {
	title, err := page.Title(ctx)
	if err != nil {
		s.shots.capture(ctx, page, op, executionID)
		return models.NewBrowserError("could not read page title after navigation", err)
	}
	if !strings.Contains(title, siteName) {
		s.shots.capture(ctx, page, op, executionID)
		return models.NewBrowserError(
			fmt.Sprintf("unexpected page title %q on %s — site may be serving a captcha or error page", title, url), nil)
	}
	return nil
}
