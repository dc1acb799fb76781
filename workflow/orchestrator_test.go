package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/hnpulse/config"
	"github.com/use-agent/hnpulse/models"
)

// fakeSteps scripts each browser operation; nil hooks succeed.
type fakeSteps struct {
	startSession func() error
	loadFront    func() error
	loadPage     func(pageNumber int) (bool, error)
	extract      func(limit int) ([]models.Story, error)
	topComment   func(hnID string) (string, bool, error)

	loadPageCalls []int
	extractCalls  []int
	commentCalls  []string
}

func (f *fakeSteps) StartSession(ctx context.Context, executionID string) error {
	if f.startSession != nil {
		return f.startSession()
	}
	return nil
}

func (f *fakeSteps) LoadFrontPage(ctx context.Context, executionID string) error {
	if f.loadFront != nil {
		return f.loadFront()
	}
	return nil
}

func (f *fakeSteps) LoadPage(ctx context.Context, executionID string, pageNumber int) (bool, error) {
	f.loadPageCalls = append(f.loadPageCalls, pageNumber)
	if f.loadPage != nil {
		return f.loadPage(pageNumber)
	}
	return true, nil
}

func (f *fakeSteps) ExtractStories(ctx context.Context, executionID string, limit int) ([]models.Story, error) {
	f.extractCalls = append(f.extractCalls, limit)
	if f.extract != nil {
		return f.extract(limit)
	}
	return makeStories(min(limit, storiesPerPage), len(f.extractCalls)), nil
}

func (f *fakeSteps) ExtractTopComment(ctx context.Context, executionID, hnID string) (string, bool, error) {
	f.commentCalls = append(f.commentCalls, hnID)
	if f.topComment != nil {
		return f.topComment(hnID)
	}
	return "", false, nil
}

type updateCall struct {
	status models.RunStatus
	count  *int
	msg    *string
}

// fakeStore records persistence calls; injectable errors fail them.
type fakeStore struct {
	createErr error
	updateErr error
	upsertErr error

	// affected overrides the upsert's affected-row count; 0 means "input size".
	affected int64

	creates int
	updates []updateCall
	upserts [][]models.Story
}

func (f *fakeStore) CreateRun(ctx context.Context, executionID string) (models.ScrapeRun, error) {
	f.creates++
	if f.createErr != nil {
		return models.ScrapeRun{}, f.createErr
	}
	return models.ScrapeRun{
		ID:          uuid.New(),
		ExecutionID: executionID,
		StartedAt:   time.Now(),
		Status:      models.StatusPending,
	}, nil
}

func (f *fakeStore) UpdateRun(ctx context.Context, runID uuid.UUID, status models.RunStatus, storiesScraped *int, errorMessage *string) (models.ScrapeRun, error) {
	f.updates = append(f.updates, updateCall{status: status, count: storiesScraped, msg: errorMessage})
	if f.updateErr != nil {
		return models.ScrapeRun{}, f.updateErr
	}
	now := time.Now()
	return models.ScrapeRun{
		ID:             runID,
		Status:         status,
		FinishedAt:     &now,
		StoriesScraped: storiesScraped,
		ErrorMessage:   errorMessage,
	}, nil
}

func (f *fakeStore) UpsertStories(ctx context.Context, stories []models.Story) (int64, error) {
	f.upserts = append(f.upserts, stories)
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	if f.affected != 0 {
		return f.affected, nil
	}
	return int64(len(stories)), nil
}

type fakeSessions struct {
	releases   int
	releaseErr error
}

func (f *fakeSessions) Release(executionID string) error {
	f.releases++
	return f.releaseErr
}

// makeStories builds n stories ranked for the given 1-based page.
func makeStories(n, page int) []models.Story {
	out := make([]models.Story, 0, n)
	base := (page - 1) * storiesPerPage
	for i := 0; i < n; i++ {
		rank := base + i + 1
		out = append(out, models.NewStory(
			fmt.Sprintf("%d", 1000+rank),
			fmt.Sprintf("Story %d", rank),
			fmt.Sprintf("https://example.com/%d", rank),
			rank, 10, "tester", 0))
	}
	return out
}

func testConfig() config.WorkflowConfig {
	return config.WorkflowConfig{
		MaxAttempts:            1,
		BrowserInitialInterval: time.Millisecond,
		BrowserMaxInterval:     time.Millisecond,
		DBInitialInterval:      time.Millisecond,
		DBMaxInterval:          time.Millisecond,
		SessionTimeout:         time.Second,
		NavigateTimeout:        time.Second,
		ScrapeTimeout:          time.Second,
		CommentTimeout:         time.Second,
		CleanupTimeout:         time.Second,
		DBTimeout:              time.Second,
	}
}

func newTestRunner(steps *fakeSteps, store *fakeStore, sessions *fakeSessions) *Runner {
	return NewRunner(steps, store, sessions, testConfig(), 0)
}

func TestRun_SinglePageSuccess(t *testing.T) {
	steps := &fakeSteps{}
	store := &fakeStore{}
	sessions := &fakeSessions{}
	r := newTestRunner(steps, store, sessions)

	run, err := r.Run(context.Background(), "exec-1", 10)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if run.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", run.Status)
	}
	if store.creates != 1 {
		t.Errorf("creates = %d, want 1", store.creates)
	}
	if len(store.upserts) != 1 || len(store.upserts[0]) != 10 {
		t.Fatalf("expected one upsert of 10 stories, got %+v", len(store.upserts))
	}
	if len(store.updates) != 1 || store.updates[0].status != models.StatusCompleted {
		t.Fatalf("expected exactly one terminal update, got %+v", store.updates)
	}
	if store.updates[0].count == nil || *store.updates[0].count != 10 {
		t.Errorf("terminal update count = %v, want 10", store.updates[0].count)
	}
	if len(steps.loadPageCalls) != 0 {
		t.Errorf("10 stories fit on one page; loadPage calls = %v", steps.loadPageCalls)
	}
	if sessions.releases != 1 {
		t.Errorf("releases = %d, want 1", sessions.releases)
	}
}

func TestRun_RecordsAffectedRowCount(t *testing.T) {
	// The database collapses intra-batch duplicates, so the upsert can affect
	// fewer rows than were handed to it. The terminal record must carry the
	// affected count, not the input size.
	steps := &fakeSteps{}
	store := &fakeStore{affected: 7}
	r := newTestRunner(steps, store, &fakeSessions{})

	run, err := r.Run(context.Background(), "exec-1", 10)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if run.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", run.Status)
	}
	if len(store.updates) != 1 || store.updates[0].count == nil {
		t.Fatalf("expected one terminal update with a count, got %+v", store.updates)
	}
	if *store.updates[0].count != 7 {
		t.Errorf("recorded count = %d, want the 7 affected rows", *store.updates[0].count)
	}
}

func TestRun_PaginatesAcrossPages(t *testing.T) {
	steps := &fakeSteps{}
	store := &fakeStore{}
	r := newTestRunner(steps, store, &fakeSessions{})

	if _, err := r.Run(context.Background(), "exec-1", 45); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(steps.loadPageCalls) != 1 || steps.loadPageCalls[0] != 2 {
		t.Errorf("loadPage calls = %v, want [2]", steps.loadPageCalls)
	}
	if len(steps.extractCalls) != 2 {
		t.Fatalf("extract calls = %v, want two", steps.extractCalls)
	}
	if steps.extractCalls[1] != 15 {
		t.Errorf("second extract limit = %d, want the 15 remaining", steps.extractCalls[1])
	}
	if got := len(store.upserts[0]); got != 45 {
		t.Errorf("persisted %d stories, want 45", got)
	}
}

func TestRun_StopsWhenNoMorePages(t *testing.T) {
	steps := &fakeSteps{
		loadPage: func(pageNumber int) (bool, error) { return false, nil },
	}
	store := &fakeStore{}
	r := newTestRunner(steps, store, &fakeSessions{})

	run, err := r.Run(context.Background(), "exec-1", 90)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Only the front page could be scraped; the run still completes.
	if run.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", run.Status)
	}
	if got := len(store.upserts[0]); got != 30 {
		t.Errorf("persisted %d stories, want the 30 available", got)
	}
	if len(steps.loadPageCalls) != 1 {
		t.Errorf("pagination should stop after the first missing page, calls = %v", steps.loadPageCalls)
	}
}

func TestRun_StopsOnEmptyPage(t *testing.T) {
	calls := 0
	steps := &fakeSteps{
		extract: func(limit int) ([]models.Story, error) {
			calls++
			if calls == 1 {
				return makeStories(30, 1), nil
			}
			return nil, nil
		},
	}
	store := &fakeStore{}
	r := newTestRunner(steps, store, &fakeSessions{})

	run, err := r.Run(context.Background(), "exec-1", 60)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", run.Status)
	}
	if got := len(store.upserts[0]); got != 30 {
		t.Errorf("persisted %d stories, want 30", got)
	}
}

func TestRun_TruncatesOverfetchedStories(t *testing.T) {
	// Pages deliver full batches regardless of how few are still needed.
	steps := &fakeSteps{
		extract: func(limit int) ([]models.Story, error) {
			return makeStories(30, 1), nil
		},
	}
	store := &fakeStore{}
	r := newTestRunner(steps, store, &fakeSessions{})

	if _, err := r.Run(context.Background(), "exec-1", 45); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := len(store.upserts[0]); got != 45 {
		t.Errorf("persisted %d stories, want exactly 45", got)
	}
}

func TestSalvageList_PadsUnenrichedRemainder(t *testing.T) {
	r := newTestRunner(&fakeSteps{}, &fakeStore{}, &fakeSessions{})

	raw := makeStories(5, 1)
	enriched := []models.Story{
		raw[0].WithTopComment("one"),
		raw[1].WithTopComment("two"),
	}

	salvage := r.salvageList(raw, enriched, true)
	if len(salvage) != 5 {
		t.Fatalf("salvage size = %d, want all 5", len(salvage))
	}
	withExcerpt := 0
	for _, s := range salvage {
		if s.TopComment != "" {
			withExcerpt++
		}
	}
	if withExcerpt != 2 {
		t.Errorf("excerpts = %d, want exactly the 2 enriched", withExcerpt)
	}

	// Before enrichment begins the raw list is the salvage set.
	if got := r.salvageList(raw, nil, false); len(got) != 5 {
		t.Errorf("pre-enrichment salvage size = %d, want 5", len(got))
	}
}

func TestRun_EnrichmentFailuresKeepStories(t *testing.T) {
	steps := &fakeSteps{
		topComment: func(hnID string) (string, bool, error) {
			// Every odd story id fails permanently; even ones have a comment.
			n := hnID[len(hnID)-1]
			if (n-'0')%2 == 1 {
				return "", false, models.NewParseError("item page gone", nil)
			}
			return "a comment", true, nil
		},
	}
	store := &fakeStore{}
	r := newTestRunner(steps, store, &fakeSessions{})

	if _, err := r.Run(context.Background(), "exec-1", 6); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	persisted := store.upserts[0]
	if len(persisted) != 6 {
		t.Fatalf("persisted %d stories, want all 6", len(persisted))
	}
	withComment := 0
	for _, s := range persisted {
		if s.TopComment != "" {
			withComment++
		}
	}
	if withComment != 3 {
		t.Errorf("stories with excerpt = %d, want 3", withComment)
	}
}

func TestRun_FailureSalvagesRawStories(t *testing.T) {
	cause := models.NewBrowserError("browser crashed", nil)
	calls := 0
	steps := &fakeSteps{
		extract: func(limit int) ([]models.Story, error) {
			calls++
			if calls == 1 {
				return makeStories(30, 1), nil
			}
			return nil, cause
		},
	}
	store := &fakeStore{}
	sessions := &fakeSessions{}
	r := newTestRunner(steps, store, sessions)

	run, err := r.Run(context.Background(), "exec-1", 60)
	if !errors.Is(err, cause) {
		t.Fatalf("want the original failure back, got %v", err)
	}

	if run.Status != models.StatusFailed {
		t.Errorf("status = %s, want FAILED", run.Status)
	}
	if len(store.upserts) != 1 || len(store.upserts[0]) != 30 {
		t.Fatalf("expected the 30 scraped stories salvaged, got %d upserts", len(store.upserts))
	}
	last := store.updates[len(store.updates)-1]
	if last.status != models.StatusFailed {
		t.Errorf("terminal status = %s, want FAILED", last.status)
	}
	if last.count == nil || *last.count != 30 {
		t.Errorf("salvaged count = %v, want 30", last.count)
	}
	if last.msg == nil || !strings.Contains(*last.msg, "browser crashed") {
		t.Errorf("error message = %v, want the original cause", last.msg)
	}
	if sessions.releases != 1 {
		t.Errorf("releases = %d, want 1 even on failure", sessions.releases)
	}
}

func TestRun_FailureBeforeExtractionSalvagesNothing(t *testing.T) {
	cause := models.NewBrowserError("front page unreachable", nil)
	steps := &fakeSteps{
		loadFront: func() error { return cause },
	}
	store := &fakeStore{}
	r := newTestRunner(steps, store, &fakeSessions{})

	_, err := r.Run(context.Background(), "exec-1", 30)
	if !errors.Is(err, cause) {
		t.Fatalf("want the original failure back, got %v", err)
	}

	if len(store.upserts) != 0 {
		t.Errorf("nothing was scraped, nothing should be upserted; got %d", len(store.upserts))
	}
	last := store.updates[len(store.updates)-1]
	if last.status != models.StatusFailed || last.count != nil {
		t.Errorf("terminal update = %+v, want FAILED with nil count", last)
	}
}

func TestRun_SalvageFailureDoesNotMaskOriginalError(t *testing.T) {
	cause := models.NewParseError("zero stories", nil)
	calls := 0
	steps := &fakeSteps{
		extract: func(limit int) ([]models.Story, error) {
			calls++
			if calls == 1 {
				return makeStories(30, 1), nil
			}
			return nil, cause
		},
	}
	store := &fakeStore{
		upsertErr: models.NewDBTransientError("db down", nil),
		updateErr: models.NewDBTransientError("db down", nil),
	}
	r := newTestRunner(steps, store, &fakeSessions{})

	_, err := r.Run(context.Background(), "exec-1", 60)
	if !errors.Is(err, cause) {
		t.Fatalf("salvage errors must not mask the original failure, got %v", err)
	}
}

func TestRun_CreateRunFailureSkipsBookkeeping(t *testing.T) {
	store := &fakeStore{createErr: models.NewDBInvariantError("constraint", nil)}
	sessions := &fakeSessions{}
	r := newTestRunner(&fakeSteps{}, store, sessions)

	_, err := r.Run(context.Background(), "exec-1", 30)
	if err == nil {
		t.Fatal("expected create failure to surface")
	}
	if len(store.updates) != 0 {
		t.Errorf("no run record exists, no update should happen; got %+v", store.updates)
	}
	if sessions.releases != 0 {
		t.Errorf("no session was started, releases = %d", sessions.releases)
	}
}

func TestRun_RejectsNonPositiveTopN(t *testing.T) {
	store := &fakeStore{}
	r := newTestRunner(&fakeSteps{}, store, &fakeSessions{})

	_, err := r.Run(context.Background(), "exec-1", 0)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if models.IsRetryable(err) {
		t.Error("bad input must not be retryable")
	}
	if store.creates != 0 {
		t.Error("no run record should be created for invalid input")
	}
}

func TestRunStep_RetriesTransientFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	r := NewRunner(&fakeSteps{}, &fakeStore{}, &fakeSessions{}, cfg, 0)

	attempts := 0
	v, err := runStep(context.Background(), "flaky", r.browserPolicy(time.Second), func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, models.NewBrowserError("transient", nil)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("step should succeed on the third attempt: %v", err)
	}
	if v != 42 {
		t.Errorf("result = %d, want 42", v)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRunStep_StopsOnPermanentFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	r := NewRunner(&fakeSteps{}, &fakeStore{}, &fakeSessions{}, cfg, 0)

	cause := models.NewParseError("structure changed", nil)
	attempts := 0
	_, err := runStep(context.Background(), "permanent", r.browserPolicy(time.Second), func(ctx context.Context) (int, error) {
		attempts++
		return 0, cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("want the permanent error back, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("permanent failure must not be retried, attempts = %d", attempts)
	}
}

func TestRunStep_ExhaustsAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	r := NewRunner(&fakeSteps{}, &fakeStore{}, &fakeSessions{}, cfg, 0)

	attempts := 0
	_, err := runStep(context.Background(), "always-failing", r.dbPolicy(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, models.NewDBTransientError("deadlock", nil)
	})
	if err == nil {
		t.Fatal("expected the step to fail after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNewExecutionID_Format(t *testing.T) {
	id := NewExecutionID()
	if !strings.HasPrefix(id, "scrape-") {
		t.Errorf("id %q should start with scrape-", id)
	}
	if id == NewExecutionID() {
		t.Error("execution ids must be unique")
	}
	parts := strings.Split(id, "-")
	if len(parts) != 4 {
		t.Errorf("id %q should have 4 dash-separated parts", id)
	}
	if len(parts[3]) != 8 {
		t.Errorf("id suffix %q should be 8 chars", parts[3])
	}
}
