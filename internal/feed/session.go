package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/procscan"
	"github.com/JakeFAU/tagrelay/internal/relay"
)

// DefaultUserAgent mimics a desktop Chrome build.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120 Safari/537.36"

const (
	nudgeDistance = 800
	nudgePause    = 700 * time.Millisecond
	probeTimeout  = 5 * time.Second
)

// Options configures a Session.
type Options struct {
	// URL is navigated to once per (re)created session.
	URL      string
	Headless bool
	// BrowserPath overrides chromedp's browser lookup.
	BrowserPath string
	// StatePath holds saved cookies; applied before navigation when RestoreState is set.
	StatePath     string
	RestoreState  bool
	UserAgent     string
	Language      string
	NavTimeout    time.Duration
	ActionTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Language == "" {
		o.Language = "ja-JP"
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 45 * time.Second
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 20 * time.Second
	}
}

// Session is a single browser tab parked on the search page.
type Session struct {
	opts   Options
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc
}

var _ relay.Feed = (*Session)(nil)

// Open launches the browser, restores saved cookies when requested and
// navigates to opts.URL.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	s := &Session{opts: opts, logger: logger}
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context) error {
	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", s.opts.Language),
		chromedp.UserAgent(s.opts.UserAgent),
	)
	if s.opts.BrowserPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.opts.BrowserPath))
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)
	if err := chromedp.Run(s.browserCtx); err != nil {
		s.Close()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(s.tabCtx); err != nil {
		s.Close()
		return fmt.Errorf("open tab: %w", err)
	}

	tasks := chromedp.Tasks{network.Enable()}
	if s.opts.RestoreState {
		cookies, err := LoadState(s.opts.StatePath)
		if err != nil {
			s.logger.Warn("saved state unreadable, continuing without it", zap.Error(err))
		} else if len(cookies) > 0 {
			tasks = append(tasks, network.SetCookies(cookies))
			s.logger.Info("restored saved cookies", zap.Int("count", len(cookies)))
		}
	}
	tasks = append(tasks,
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": s.opts.Language}),
		chromedp.Navigate(s.opts.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := s.run(ctx, s.opts.NavTimeout, tasks); err != nil {
		s.Close()
		return fmt.Errorf("navigate %s: %w", s.opts.URL, err)
	}
	s.logger.Info("session ready", zap.String("url", s.opts.URL), zap.Bool("headless", s.opts.Headless))
	return nil
}

// Alive checks the allocator, the browser process, the browser context and
// the tab context. Any one of them failing means the session is unusable.
func (s *Session) Alive() bool {
	if s.allocCtx == nil || s.browserCtx == nil || s.tabCtx == nil {
		return false
	}
	if s.allocCtx.Err() != nil || s.browserCtx.Err() != nil || s.tabCtx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(s.browserCtx)
	if c == nil || c.Browser == nil {
		return false
	}
	if p := c.Browser.Process(); p != nil && !procscan.Alive(p.Pid) {
		return false
	}
	tab := chromedp.FromContext(s.tabCtx)
	return tab != nil && tab.Target != nil
}

// EnsureAlive rebuilds the session when it is dead or the page no longer answers.
func (s *Session) EnsureAlive(ctx context.Context) error {
	if !s.Alive() {
		return s.Recreate(ctx, "session not alive")
	}
	var one int
	err := s.run(ctx, probeTimeout, chromedp.Tasks{chromedp.Evaluate(`1`, &one)})
	if err != nil && ctx.Err() == nil && IsSessionLost(err) {
		return s.Recreate(ctx, "page probe failed")
	}
	return nil
}

// Nudge scrolls down then back up with short pauses.
func (s *Session) Nudge(ctx context.Context) error {
	return s.run(ctx, s.opts.ActionTimeout, chromedp.Tasks{
		wheel(nudgeDistance),
		chromedp.Sleep(nudgePause),
		wheel(-nudgeDistance),
		chromedp.Sleep(nudgePause),
	})
}

func wheel(deltaY float64) chromedp.Action {
	return input.DispatchMouseEvent(input.MouseWheel, 400, 400).WithDeltaX(0).WithDeltaY(deltaY)
}

// Fetch snapshots the page and extracts its candidates.
func (s *Session) Fetch(ctx context.Context) (relay.Snapshot, error) {
	var html string
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Tasks{
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}); err != nil {
		return relay.Snapshot{}, fmt.Errorf("snapshot page: %w", err)
	}
	return ParseSnapshot(html)
}

// Reload reloads the page and waits for the body.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.run(ctx, s.opts.NavTimeout, chromedp.Tasks{
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}); err != nil {
		return fmt.Errorf("reload page: %w", err)
	}
	return nil
}

// Recreate tears the whole browser down and starts a fresh one.
func (s *Session) Recreate(ctx context.Context, reason string) error {
	s.logger.Warn("recreating session", zap.String("reason", reason))
	s.Close()
	if err := s.start(ctx); err != nil {
		return fmt.Errorf("recreate session: %w", err)
	}
	return nil
}

// SaveState writes the browser's cookies to opts.StatePath.
func (s *Session) SaveState(ctx context.Context) error {
	var cookies []*network.Cookie
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	}); err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	return SaveState(s.opts.StatePath, cookies)
}

// Close releases the tab, the browser and the allocator. Safe to call twice.
func (s *Session) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// run executes actions on the tab under a timeout that also follows ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions chromedp.Tasks) error {
	if s.tabCtx == nil {
		return ErrSessionLost
	}
	taskCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(taskCtx, actions)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("chromedp run: %w", ctx.Err())
	}
	if !s.Alive() || (!errors.Is(err, context.DeadlineExceeded) && IsSessionLost(err)) {
		return fmt.Errorf("%w: %w", ErrSessionLost, err)
	}
	return fmt.Errorf("chromedp run: %w", err)
}

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
