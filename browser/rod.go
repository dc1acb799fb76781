package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/hnpulse/config"
)

// domStableWindow is how long the DOM must stay unchanged after navigation
// before we consider the page settled.
const domStableWindow = 300 * time.Millisecond

// RodDriver launches headless Chromium through go-rod.
type RodDriver struct {
	cfg config.BrowserConfig
}

// NewRodDriver creates a Driver backed by go-rod with the given settings.
func NewRodDriver(cfg config.BrowserConfig) *RodDriver {
	return &RodDriver{cfg: cfg}
}

// Launch starts a fresh Chromium process and connects to it.
func (d *RodDriver) Launch() (Browser, error) {
	l := launcher.New().
		Headless(d.cfg.Headless).
		NoSandbox(d.cfg.NoSandbox)

	if d.cfg.Bin != "" {
		l = l.Bin(d.cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		if isBinaryMissing(err) {
			return nil, fmt.Errorf("%w: %v", ErrBinaryMissing, err)
		}
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	slog.Info("browser launched", "controlURL", controlURL, "headless", d.cfg.Headless)
	return &rodBrowser{browser: b, launcher: l, cfg: d.cfg}, nil
}

// isBinaryMissing detects the launcher failing because the Chromium binary
// does not exist on disk.
func isBinaryMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "does not exist")
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
}

func (b *rodBrowser) Connected() bool {
	_, err := proto.BrowserGetVersion{}.Call(b.browser)
	return err == nil
}

func (b *rodBrowser) NewContext() (BrowserContext, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	return &rodContext{browser: incognito, cfg: b.cfg}, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	// Kill regardless: Close only tears down the CDP connection, the process
	// must not be left orphaned.
	b.launcher.Kill()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

type rodContext struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
}

func (c *rodContext) NewPage() (Page, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if c.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	// Plain default headers; HN serves bare HTML and needs nothing fancier.
	err = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		}),
	}.Call(page)
	if err != nil {
		slog.Warn("failed to set extra headers", "error", err)
	}

	return &rodPage{page: page}, nil
}

func (c *rodContext) Close() error {
	err := proto.TargetDisposeBrowserContext{
		BrowserContextID: c.browser.BrowserContextID,
	}.Call(c.browser)
	if err != nil {
		return fmt.Errorf("dispose browser context: %w", err)
	}
	return nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) (int, error) {
	bound := p.page.Context(ctx)

	if err := bound.Navigate(url); err != nil {
		return 0, fmt.Errorf("navigate to %s: %w", url, err)
	}

	if err := bound.WaitDOMStable(domStableWindow, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	// Read the main document's HTTP status from the performance timeline —
	// needs no CDP event listeners, so it cannot miss in-flight requests.
	status := 0
	if res, err := bound.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		status = res.Value.Int()
	}

	return status, nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", fmt.Errorf("read document title: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("extract page HTML: %w", err)
	}
	return html, nil
}

func (p *rodPage) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	return has, nil
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return data, nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
