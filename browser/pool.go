package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/use-agent/hnpulse/models"
)

// Session is the isolated context + page allocated to one execution. It is
// owned exclusively by that execution and must never be shared.
type Session struct {
	executionID string
	context     BrowserContext
	page        Page
}

// Page returns the session's page for step operations.
func (s *Session) Page() Page {
	return s.page
}

// Pool owns one shared browser process and the per-execution sessions drawn
// from it. The shared process is expensive to launch, so it is reused across
// executions; each execution gets its own isolated context and page.
//
// All pool state is re-derived from "is the shared browser still connected",
// which makes the pool transparently resilient to losing its in-memory state:
// the next Acquire for any execution relaunches cleanly.
//
// The mutex guards the launch/teardown critical section and the session map.
// Operations on an already-acquired session run without pool involvement.
type Pool struct {
	driver Driver

	mu       sync.Mutex
	browser  Browser
	sessions map[string]*Session
}

// NewPool creates an empty pool. The browser is launched lazily on the first
// Acquire.
func NewPool(driver Driver) *Pool {
	return &Pool{
		driver:   driver,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the session for executionID, creating it — and relaunching
// the shared browser if it is absent or no longer connected — as needed.
//
// A missing browser executable surfaces as a non-retryable infra error; any
// other launch, context, or page failure is retryable.
func (p *Pool) Acquire(executionID string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser == nil || !p.browser.Connected() {
		slog.Info("launching shared browser", "executionID", executionID)

		// Tear down any half-open state from a previous failed attempt.
		p.teardownLocked()

		b, err := p.driver.Launch()
		if err != nil {
			if errors.Is(err, ErrBinaryMissing) {
				return nil, models.NewInfraError(
					"browser executable not found — install Chromium or set HNPULSE_BROWSER_BIN", err)
			}
			return nil, models.NewBrowserError("failed to launch shared browser", err)
		}
		p.browser = b
	}

	if s, ok := p.sessions[executionID]; ok {
		slog.Debug("session reused", "executionID", executionID, "totalSessions", len(p.sessions))
		return s, nil
	}

	s, err := p.createSessionLocked(executionID)
	if err != nil {
		return nil, err
	}

	slog.Info("session created", "executionID", executionID, "totalSessions", len(p.sessions))
	return s, nil
}

// createSessionLocked creates an isolated context + page. Caller holds p.mu.
func (p *Pool) createSessionLocked(executionID string) (*Session, error) {
	bctx, err := p.browser.NewContext()
	if err != nil {
		p.teardownAfterCreateFailureLocked()
		return nil, models.NewBrowserError(
			fmt.Sprintf("failed to create browser context for execution %s", executionID), err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		if cerr := bctx.Close(); cerr != nil {
			slog.Warn("failed to close context after page creation failure",
				"executionID", executionID, "error", cerr)
		}
		p.teardownAfterCreateFailureLocked()
		return nil, models.NewBrowserError(
			fmt.Sprintf("failed to create page for execution %s", executionID), err)
	}

	s := &Session{executionID: executionID, context: bctx, page: page}
	p.sessions[executionID] = s
	return s, nil
}

// teardownAfterCreateFailureLocked tears the shared browser down when a
// context/page creation failure would otherwise leave a freshly launched
// process orphaned. Skipped while other executions still hold sessions.
func (p *Pool) teardownAfterCreateFailureLocked() {
	if len(p.sessions) == 0 {
		p.teardownLocked()
	}
}

// Release closes the session for executionID: page first, then context.
// Idempotent — releasing a session that does not exist is a no-op. Close
// failures are logged and do not stop the remaining closes; they are reported
// as a retryable error so the caller can retry reclamation.
func (p *Pool) Release(executionID string) error {
	p.mu.Lock()
	s, ok := p.sessions[executionID]
	if ok {
		delete(p.sessions, executionID)
	}
	remaining := len(p.sessions)
	p.mu.Unlock()

	if !ok {
		slog.Debug("session already released", "executionID", executionID)
		return nil
	}

	var closeErr error
	if err := s.page.Close(); err != nil {
		slog.Warn("failed to close page", "executionID", executionID, "error", err)
		closeErr = err
	}
	if err := s.context.Close(); err != nil {
		slog.Warn("failed to close context", "executionID", executionID, "error", err)
		closeErr = err
	}

	if closeErr != nil {
		return models.NewBrowserError(
			fmt.Sprintf("failed to release session for execution %s", executionID), closeErr)
	}

	slog.Info("session released", "executionID", executionID, "remainingSessions", remaining)
	return nil
}

// Shutdown tears down every open session plus the shared browser. All errors
// are logged and swallowed — a failed teardown must never mask a prior error.
// Call on process exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Info("browser pool shutting down", "openSessions", len(p.sessions))
	p.teardownLocked()
}

// teardownLocked closes all sessions and the shared browser, swallowing
// errors. Caller holds p.mu.
func (p *Pool) teardownLocked() {
	for id, s := range p.sessions {
		if err := s.page.Close(); err != nil {
			slog.Warn("teardown: failed to close page", "executionID", id, "error", err)
		}
		if err := s.context.Close(); err != nil {
			slog.Warn("teardown: failed to close context", "executionID", id, "error", err)
		}
	}
	p.sessions = make(map[string]*Session)

	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			slog.Warn("teardown: failed to close browser", "error", err)
		}
		p.browser = nil
	}
}
