// Package store provides the PostgreSQL persistence layer: idempotent story
// upserts keyed on hn_id, scrape-run lifecycle records keyed on execution_id,
// and the read queries backing the HTTP API. Each method executes as one
// atomic statement against the pool.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/use-agent/hnpulse/models"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate applies the embedded schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// UpsertStories inserts or updates stories keyed on hn_id, returning the
// affected-row count. On conflict all mutable fields are updated; id and
// created_at keep their original values. Empty input is a valid no-op.
//
// The count can be lower than len(stories): Postgres collapses intra-batch
// duplicates on the conflict key.
func (s *Store) UpsertStories(ctx context.Context, stories []models.Story) (int64, error) {
	if len(stories) == 0 {
		return 0, nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(stories)*10)
	)
	sb.WriteString(`INSERT INTO stories
		(id, hn_id, title, url, rank, points, author, comments_count, top_comment, scraped_at)
		VALUES `)
	for i, st := range stories {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args,
			st.ID, st.HNID, st.Title, nullIfEmpty(st.URL), st.Rank, st.Points,
			st.Author, st.CommentsCount, nullIfEmpty(st.TopComment), st.ScrapedAt)
	}
	sb.WriteString(` ON CONFLICT ON CONSTRAINT uq_stories_hn_id DO UPDATE SET
		title = EXCLUDED.title,
		url = EXCLUDED.url,
		rank = EXCLUDED.rank,
		points = EXCLUDED.points,
		author = EXCLUDED.author,
		comments_count = EXCLUDED.comments_count,
		top_comment = EXCLUDED.top_comment,
		scraped_at = EXCLUDED.scraped_at`)
	// id and created_at are intentionally not updated: they preserve the
	// original surrogate identity and first-seen time.

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, classify(err, "upsert stories")
	}
	return tag.RowsAffected(), nil
}

// CreateRun inserts a new scrape run with status PENDING. Idempotent: when a
// row with the same execution_id already exists (re-invocation after a
// transient failure just past the insert), the pre-existing row is returned
// unchanged.
func (s *Store) CreateRun(ctx context.Context, executionID string) (models.ScrapeRun, error) {
	// The no-op conflict update guarantees RETURNING emits a row whether the
	// insert happened or the row pre-existed.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO scrape_runs (id, execution_id, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT uq_scrape_runs_execution_id
		DO UPDATE SET execution_id = EXCLUDED.execution_id
		RETURNING id, execution_id, started_at, finished_at, status, stories_scraped, error_message`,
		uuid.New(), executionID, time.Now().UTC(), models.StatusPending)

	run, err := scanRun(row)
	if err != nil {
		return models.ScrapeRun{}, classify(err, "create run")
	}
	return run, nil
}

// UpdateRun records the terminal state of a run. A runID matching no row is a
// caller bug, never a legitimate race, and is reported as a non-retryable
// invariant violation.
func (s *Store) UpdateRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, storiesScraped *int, errorMessage *string) (models.ScrapeRun, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE scrape_runs
		SET status = $2, finished_at = $3, stories_scraped = $4, error_message = $5
		WHERE id = $1
		RETURNING id, execution_id, started_at, finished_at, status, stories_scraped, error_message`,
		runID, status, time.Now().UTC(), storiesScraped, errorMessage)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScrapeRun{}, models.NewDBInvariantError(
			fmt.Sprintf("scrape run not found for update: run_id=%s", runID), err)
	}
	if err != nil {
		return models.ScrapeRun{}, classify(err, "update run")
	}
	return run, nil
}

// StoryFilter narrows ListStories results. Zero values mean "no constraint".
type StoryFilter struct {
	Limit     int
	MinPoints int
	RankMin   int
	RankMax   int
}

// ListStories returns stories ordered by rank ascending.
func (s *Store) ListStories(ctx context.Context, f StoryFilter) ([]models.Story, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.MinPoints > 0 {
		where = append(where, "points >= "+arg(f.MinPoints))
	}
	if f.RankMin > 0 {
		where = append(where, "rank >= "+arg(f.RankMin))
	}
	if f.RankMax > 0 {
		where = append(where, "rank <= "+arg(f.RankMax))
	}

	q := `SELECT id, hn_id, title, url, rank, points, author, comments_count, top_comment, scraped_at, created_at
		FROM stories`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY rank ASC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "list stories")
	}
	defer rows.Close()

	var out []models.Story
	for rows.Next() {
		var (
			st              models.Story
			url, topComment *string
		)
		if err := rows.Scan(&st.ID, &st.HNID, &st.Title, &url, &st.Rank, &st.Points,
			&st.Author, &st.CommentsCount, &topComment, &st.ScrapedAt, &st.CreatedAt); err != nil {
			return nil, classify(err, "scan story")
		}
		st.URL = deref(url)
		st.TopComment = deref(topComment)
		out = append(out, st)
	}
	return out, classifyNil(rows.Err(), "list stories")
}

// ListRuns returns runs ordered by started_at descending. status "" means
// all statuses.
func (s *Store) ListRuns(ctx context.Context, limit int, status models.RunStatus) ([]models.ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT id, execution_id, started_at, finished_at, status, stories_scraped, error_message
		FROM scrape_runs`
	args := []any{}
	if status != "" {
		q += " WHERE status = $1"
		args = append(args, status)
	}
	q += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "list runs")
	}
	defer rows.Close()

	var out []models.ScrapeRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, classify(err, "scan run")
		}
		out = append(out, run)
	}
	return out, classifyNil(rows.Err(), "list runs")
}

// GetRunByExecutionID returns the run correlated with an execution, or
// (nil, nil) when none exists.
func (s *Store) GetRunByExecutionID(ctx context.Context, executionID string) (*models.ScrapeRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, execution_id, started_at, finished_at, status, stories_scraped, error_message
		FROM scrape_runs WHERE execution_id = $1`, executionID)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "get run")
	}
	return &run, nil
}

// scanRun hydrates a ScrapeRun from a run-shaped row.
func scanRun(row pgx.Row) (models.ScrapeRun, error) {
	var (
		run    models.ScrapeRun
		status string
	)
	if err := row.Scan(&run.ID, &run.ExecutionID, &run.StartedAt, &run.FinishedAt,
		&status, &run.StoriesScraped, &run.ErrorMessage); err != nil {
		return models.ScrapeRun{}, err
	}
	run.Status = models.RunStatus(status)
	return run, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
