// Package browser owns the shared browser process and the per-execution
// session pool. It is the only package that touches raw automation
// primitives; everything above it sees sessions and the Page operations.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrBinaryMissing is returned by a Driver when the automation runtime cannot
// start because its executable is absent. Callers must treat it as a hard
// misconfiguration, not a transient failure.
var ErrBinaryMissing = errors.New("browser executable not found")

// Driver launches the shared browser process.
type Driver interface {
	Launch() (Browser, error)
}

// Browser is a handle on one running browser process. All methods are
// fallible I/O.
type Browser interface {
	// Connected reports whether the process is still reachable. The pool
	// re-derives all of its state from this check.
	Connected() bool

	// NewContext creates an isolated browsing context. Contexts created from
	// the same Browser share the process but never cookies, storage or pages.
	NewContext() (BrowserContext, error)

	// Close disconnects and terminates the browser process.
	Close() error
}

// BrowserContext is one isolated context inside the shared browser.
type BrowserContext interface {
	NewPage() (Page, error)
	Close() error
}

// Page is one tab inside a context.
type Page interface {
	// Navigate loads the URL and returns the HTTP status of the main document
	// (0 when the status could not be determined).
	Navigate(ctx context.Context, url string) (int, error)

	// Title returns the current document title.
	Title(ctx context.Context) (string, error)

	// HTML returns the full rendered document markup.
	HTML(ctx context.Context) (string, error)

	// WaitElement blocks until an element matching selector is attached to
	// the DOM, or the timeout elapses.
	WaitElement(ctx context.Context, selector string, timeout time.Duration) error

	// Has reports whether an element matching selector currently exists,
	// without waiting.
	Has(ctx context.Context, selector string) (bool, error)

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}
