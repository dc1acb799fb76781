// Package workflow drives a full scrape execution: run bookkeeping, session
// launch, pagination, comment enrichment, persistence, and cleanup. Every
// external interaction runs as a retryable step with its own time budget, and
// a failed execution still salvages whatever it scraped before failing.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/hnpulse/config"
	"github.com/use-agent/hnpulse/metrics"
	"github.com/use-agent/hnpulse/models"
)

// storiesPerPage is how many stories Hacker News lists per page.
const storiesPerPage = 30

// Steps are the browser operations an execution is composed of.
type Steps interface {
	StartSession(ctx context.Context, executionID string) error
	LoadFrontPage(ctx context.Context, executionID string) error
	LoadPage(ctx context.Context, executionID string, pageNumber int) (bool, error)
	ExtractStories(ctx context.Context, executionID string, limit int) ([]models.Story, error)
	ExtractTopComment(ctx context.Context, executionID, hnID string) (string, bool, error)
}

// RunStore persists run records and scraped stories.
type RunStore interface {
	CreateRun(ctx context.Context, executionID string) (models.ScrapeRun, error)
	UpdateRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, storiesScraped *int, errorMessage *string) (models.ScrapeRun, error)
	UpsertStories(ctx context.Context, stories []models.Story) (int64, error)
}

// Sessions releases browser sessions when an execution finishes.
type Sessions interface {
	Release(executionID string) error
}

// Runner executes scrape runs end to end.
type Runner struct {
	steps    Steps
	store    RunStore
	sessions Sessions

	cfg          config.WorkflowConfig
	commentDelay time.Duration
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(steps Steps, store RunStore, sessions Sessions, cfg config.WorkflowConfig, commentDelay time.Duration) *Runner {
	return &Runner{
		steps:        steps,
		store:        store,
		sessions:     sessions,
		cfg:          cfg,
		commentDelay: commentDelay,
	}
}

// NewExecutionID mints a unique, sortable execution identifier.
func NewExecutionID() string {
	ts := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("scrape-%s-%s", ts, strings.Split(uuid.NewString(), "-")[0])
}

// Run scrapes the top topN stories under the given execution id. It records a
// PENDING run before any browser work, drives it to exactly one terminal state
// (COMPLETED or FAILED), and always releases the execution's browser session.
// On failure it persists any stories scraped so far and returns the original
// failure, never an error from the salvage itself.
func (r *Runner) Run(ctx context.Context, executionID string, topN int) (models.ScrapeRun, error) {
	if topN < 1 {
		return models.ScrapeRun{}, models.NewInfraError(
			fmt.Sprintf("topN must be positive, got %d", topN), nil)
	}
	log := slog.With("executionID", executionID, "topN", topN)
	log.Info("scrape run starting")

	run, err := runStep(ctx, "create_run", r.dbPolicy(), func(ctx context.Context) (models.ScrapeRun, error) {
		return r.store.CreateRun(ctx, executionID)
	})
	if err != nil {
		// No run record exists, so there is nothing to mark failed.
		log.Error("could not create run record", "error", err)
		return models.ScrapeRun{}, err
	}

	defer r.cleanup(executionID, log)

	raw, enriched, enrichmentBegun, count, scrapeErr := r.scrape(ctx, executionID, topN, log)
	if scrapeErr == nil {
		final, err := runStep(ctx, "update_run", r.dbPolicy(), func(ctx context.Context) (models.ScrapeRun, error) {
			return r.store.UpdateRun(ctx, run.ID, models.StatusCompleted, &count, nil)
		})
		if err != nil {
			// The stories are persisted but the run record is stuck PENDING.
			scrapeErr = err
		} else {
			metrics.RunsTotal.WithLabelValues(string(models.StatusCompleted)).Inc()
			metrics.StoriesScraped.Add(float64(count))
			log.Info("scrape run completed", "storiesScraped", count)
			return final, nil
		}
	}

	final := r.fail(ctx, run, raw, enriched, enrichmentBegun, scrapeErr, log)
	return final, scrapeErr
}

// scrape performs the browser and persistence phases. It returns the raw and
// enriched story lists so the caller can salvage them if anything failed.
func (r *Runner) scrape(ctx context.Context, executionID string, topN int, log *slog.Logger) (raw, enriched []models.Story, enrichmentBegun bool, count int, err error) {
	if _, err = runStep(ctx, "launch_session", r.browserPolicy(r.cfg.SessionTimeout), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.steps.StartSession(ctx, executionID)
	}); err != nil {
		return nil, nil, false, 0, err
	}

	if _, err = runStep(ctx, "load_front_page", r.browserPolicy(r.cfg.NavigateTimeout), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.steps.LoadFrontPage(ctx, executionID)
	}); err != nil {
		return nil, nil, false, 0, err
	}

	raw, err = r.collectStories(ctx, executionID, topN, log)
	if err != nil {
		return raw, nil, false, 0, err
	}

	enriched, enrichmentBegun, err = r.enrichStories(ctx, executionID, raw, log)
	if err != nil {
		return raw, enriched, enrichmentBegun, 0, err
	}

	affected, err := runStep(ctx, "upsert_stories", r.dbPolicy(), func(ctx context.Context) (int64, error) {
		return r.store.UpsertStories(ctx, enriched)
	})
	if err != nil {
		return raw, enriched, enrichmentBegun, 0, err
	}
	log.Info("stories persisted", "count", len(enriched), "rowsAffected", affected)
	// The terminal record carries the affected-row count, not the input size:
	// Postgres collapses intra-batch duplicates on the conflict key.
	return raw, enriched, enrichmentBegun, int(affected), nil
}

// collectStories paginates until topN stories are gathered or HN runs out of
// pages. A page that is present but yields nothing also ends pagination.
func (r *Runner) collectStories(ctx context.Context, executionID string, topN int, log *slog.Logger) ([]models.Story, error) {
	stories, err := runStep(ctx, "extract_stories", r.browserPolicy(r.cfg.ScrapeTimeout), func(ctx context.Context) ([]models.Story, error) {
		return r.steps.ExtractStories(ctx, executionID, topN)
	})
	if err != nil {
		return nil, err
	}

	pagesNeeded := (topN + storiesPerPage - 1) / storiesPerPage
	for pageNum := 2; pageNum <= pagesNeeded && len(stories) < topN; pageNum++ {
		hasMore, err := runStep(ctx, "load_page", r.browserPolicy(r.cfg.NavigateTimeout), func(ctx context.Context) (bool, error) {
			return r.steps.LoadPage(ctx, executionID, pageNum)
		})
		if err != nil {
			return stories, err
		}
		if !hasMore {
			log.Info("pagination ended early, site has no more pages",
				"pagesLoaded", pageNum-1, "storiesSoFar", len(stories))
			break
		}

		pageStories, err := runStep(ctx, "extract_stories", r.browserPolicy(r.cfg.ScrapeTimeout), func(ctx context.Context) ([]models.Story, error) {
			return r.steps.ExtractStories(ctx, executionID, topN-len(stories))
		})
		if err != nil {
			return stories, err
		}
		if len(pageStories) == 0 {
			log.Warn("page yielded no stories, stopping pagination",
				"page", pageNum, "storiesSoFar", len(stories))
			break
		}
		stories = append(stories, pageStories...)
	}

	if len(stories) > topN {
		stories = stories[:topN]
	}
	log.Info("stories collected", "count", len(stories))
	return stories, nil
}

// enrichStories fetches each story's top comment. A story whose comment fetch
// ultimately fails is kept without an excerpt; enrichment only aborts when the
// run context itself is done.
func (r *Runner) enrichStories(ctx context.Context, executionID string, stories []models.Story, log *slog.Logger) ([]models.Story, bool, error) {
	enriched := make([]models.Story, 0, len(stories))
	begun := false
	for i, story := range stories {
		begun = true
		hnID := story.HNID
		comment, err := runStep(ctx, "extract_comment", r.browserPolicy(r.cfg.CommentTimeout), func(ctx context.Context) (string, error) {
			c, found, err := r.steps.ExtractTopComment(ctx, executionID, hnID)
			if err != nil {
				return "", err
			}
			if !found {
				return "", nil
			}
			return c, nil
		})
		switch {
		case err != nil && ctx.Err() != nil:
			return enriched, begun, err
		case err != nil:
			log.Warn("top comment fetch failed, keeping story without excerpt",
				"hnID", hnID, "error", err)
			enriched = append(enriched, story)
		case comment != "":
			enriched = append(enriched, story.WithTopComment(comment))
		default:
			enriched = append(enriched, story)
		}

		if i < len(stories)-1 && r.commentDelay > 0 {
			select {
			case <-time.After(r.commentDelay):
			case <-ctx.Done():
				return enriched, begun, ctx.Err()
			}
		}
	}
	return enriched, begun, nil
}

// fail salvages partial results and drives the run to FAILED. Salvage and
// bookkeeping failures are logged, never returned; the caller reports the
// original error.
func (r *Runner) fail(ctx context.Context, run models.ScrapeRun, raw, enriched []models.Story, enrichmentBegun bool, cause error, log *slog.Logger) models.ScrapeRun {
	// Detached from the run context so a cancelled run still gets bookkeeping.
	ctx = context.WithoutCancel(ctx)

	salvage := r.salvageList(raw, enriched, enrichmentBegun)
	var salvaged *int
	if len(salvage) > 0 {
		if _, err := runStep(ctx, "upsert_stories", r.dbPolicy(), func(ctx context.Context) (int64, error) {
			return r.store.UpsertStories(ctx, salvage)
		}); err != nil {
			log.Error("failed to salvage partial results", "count", len(salvage), "error", err)
		} else {
			n := len(salvage)
			salvaged = &n
			log.Info("salvaged partial results", "count", n)
		}
	}

	msg := cause.Error()
	final, err := runStep(ctx, "update_run", r.dbPolicy(), func(ctx context.Context) (models.ScrapeRun, error) {
		return r.store.UpdateRun(ctx, run.ID, models.StatusFailed, salvaged, &msg)
	})
	if err != nil {
		log.Error("failed to mark run failed", "error", err)
		final = run
	}

	metrics.RunsTotal.WithLabelValues(string(models.StatusFailed)).Inc()
	if salvaged != nil {
		metrics.StoriesScraped.Add(float64(*salvaged))
	}
	log.Error("scrape run failed", "error", cause)
	return final
}

// salvageList picks what to persist after a failure: the enriched list padded
// with the not-yet-enriched remainder once enrichment has begun, otherwise the
// raw list, otherwise nothing.
func (r *Runner) salvageList(raw, enriched []models.Story, enrichmentBegun bool) []models.Story {
	if enrichmentBegun {
		out := make([]models.Story, 0, len(raw))
		out = append(out, enriched...)
		if len(enriched) < len(raw) {
			out = append(out, raw[len(enriched):]...)
		}
		return out
	}
	return raw
}

// cleanup releases the execution's browser session. Runs unconditionally;
// failure is logged and otherwise ignored.
func (r *Runner) cleanup(executionID string, log *slog.Logger) {
	pol := r.browserPolicy(r.cfg.CleanupTimeout)
	if _, err := runStep(context.Background(), "cleanup", pol, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.sessions.Release(executionID)
	}); err != nil {
		log.Error("failed to release browser session", "error", err)
	}
}

func (r *Runner) browserPolicy(timeout time.Duration) Policy {
	return Policy{
		Timeout:         timeout,
		MaxAttempts:     uint64(r.cfg.MaxAttempts),
		InitialInterval: r.cfg.BrowserInitialInterval,
		MaxInterval:     r.cfg.BrowserMaxInterval,
	}
}

func (r *Runner) dbPolicy() Policy {
	return Policy{
		Timeout:         r.cfg.DBTimeout,
		MaxAttempts:     uint64(r.cfg.MaxAttempts),
		InitialInterval: r.cfg.DBInitialInterval,
		MaxInterval:     r.cfg.DBMaxInterval,
	}
}
