// Package browser owns the automated browser lifecycle. It creates chromedp
// sessions with a fixed viewport and user-agent, exposes page primitives for
// the scrape pipeline, and classifies fatal transport errors into a typed
// session-loss error so callers never inspect message text.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the browser session.
type Config struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int64
	ViewportHeight int64
	NavTimeout     time.Duration
}

// Session wraps a single chromedp browser context and its page handle.
// All page operations run against this one tab; the crawl is strictly
// sequential so no locking is needed.
type Session struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func newSession(cfg Config) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(int(cfg.ViewportWidth), int(cfg.ViewportHeight)),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Warm up the browser and pin the viewport so every page renders the
	// same layout the selectors were written against.
	warmup := chromedp.Tasks{
		emulation.SetUserAgentOverride(cfg.UserAgent),
		emulation.SetDeviceMetricsOverride(cfg.ViewportWidth, cfg.ViewportHeight, 1.0, false),
	}
	if err := chromedp.Run(browserCtx, warmup); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Session{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Navigate loads the given URL and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.navTimeout())
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return classify(fmt.Errorf("navigate %s: %w", url, err))
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible node or the
// timeout elapses. A timeout surfaces as context.DeadlineExceeded; session
// loss surfaces as ErrSessionLost.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return classify(err)
	}
	return nil
}

// HTML returns the rendered DOM of the current page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.navTimeout())
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classify(fmt.Errorf("capture dom: %w", err))
	}
	return html, nil
}

// Close tears down the browser and allocator contexts.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}

func (s *Session) navTimeout() time.Duration {
	if s.cfg.NavTimeout > 0 {
		return s.cfg.NavTimeout
	}
	return 45 * time.Second
}

// forwardCancel propagates cancellation from the caller's context into a
// chromedp task context that does not descend from it.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Manager owns session creation and replacement. The orchestrator is the
// only caller of Restart; the manager itself never decides when to restart.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	session *Session
}

// NewManager launches the first browser session.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	session, err := newSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	logger.Info("browser session started",
		zap.Bool("headless", cfg.Headless),
		zap.Int64("viewport_width", cfg.ViewportWidth),
		zap.Int64("viewport_height", cfg.ViewportHeight),
	)
	return &Manager{cfg: cfg, logger: logger, session: session}, nil
}

// Page returns the current page handle. The handle is fully replaced by
// Restart, so callers must re-fetch it after a restart.
func (m *Manager) Page() *Session {
	return m.session
}

// Restart closes the current session best-effort and launches a fresh one.
func (m *Manager) Restart(_ context.Context) error {
	m.logger.Warn("restarting browser session")
	m.session.Close()
	session, err := newSession(m.cfg)
	if err != nil {
		return fmt.Errorf("restart browser: %w", err)
	}
	m.session = session
	return nil
}

// Close shuts the current session down.
func (m *Manager) Close() {
	m.session.Close()
}
