// Package worker implements the poll-filter-dispatch loop and the one-time
// login handshake.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/tagrelay/internal/feed"
	"github.com/JakeFAU/tagrelay/internal/filter"
	"github.com/JakeFAU/tagrelay/internal/relay"
)

// DefaultMaxItems caps how many rendered posts are examined per tick.
const DefaultMaxItems = 10

// Config controls Worker behavior.
type Config struct {
	Interval  time.Duration
	Pace      time.Duration
	MaxItems  int
	DebugPost bool
}

// Dispatcher delivers one payload to every configured sink.
type Dispatcher interface {
	Dispatch(ctx context.Context, p relay.Payload) error
}

// Stats summarizes one tick.
type Stats struct {
	Visible    int
	Dispatched int
}

// Worker polls the feed on a fixed interval. Ticks never overlap.
type Worker struct {
	feed     relay.Feed
	filter   *filter.Filter
	seen     relay.SeenStore
	dispatch Dispatcher
	cfg      Config
	pacer    *rate.Limiter
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	f relay.Feed,
	flt *filter.Filter,
	seen relay.SeenStore,
	dispatch Dispatcher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	pacer := rate.NewLimiter(rate.Inf, 1)
	if cfg.Pace > 0 {
		pacer = rate.NewLimiter(rate.Every(cfg.Pace), 1)
	}
	return &Worker{
		feed:     f,
		filter:   flt,
		seen:     seen,
		dispatch: dispatch,
		cfg:      cfg,
		pacer:    pacer,
		logger:   logger,
	}
}

// Run ticks, then sleeps the configured interval, until ctx ends. There is no
// backoff and no retry ceiling.
func (w *Worker) Run(ctx context.Context) error {
	for {
		w.Tick(ctx)
		timer := time.NewTimer(w.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Tick runs one poll. A lost session is rebuilt and the tick abandoned; any
// other failure triggers a best-effort reload.
func (w *Worker) Tick(ctx context.Context) Stats {
	stats, err := w.poll(ctx)
	if err == nil || ctx.Err() != nil {
		return stats
	}
	if feed.IsSessionLost(err) {
		w.logger.Warn("session lost, recreating", zap.Error(err))
		if rerr := w.feed.Recreate(ctx, err.Error()); rerr != nil {
			w.logger.Error("recreate session failed", zap.Error(rerr))
		}
		return stats
	}
	w.logger.Error("tick error", zap.Error(err))
	if rerr := w.feed.Reload(ctx); rerr != nil {
		w.logger.Debug("reload after tick error failed", zap.Error(rerr))
	}
	return stats
}

func (w *Worker) poll(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := w.feed.EnsureAlive(ctx); err != nil {
		return stats, fmt.Errorf("ensure session: %w", err)
	}
	if err := w.feed.Nudge(ctx); err != nil {
		return stats, fmt.Errorf("nudge page: %w", err)
	}
	snap, err := w.feed.Fetch(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch candidates: %w", err)
	}
	stats.Visible = len(snap.Candidates)
	if stats.Visible == 0 {
		w.logger.Warn("no posts found",
			zap.String("title", snap.Title),
			zap.Bool("login_wall_suspected", snap.LoginWall))
		return stats, nil
	}

	items := snap.Candidates
	if len(items) > w.cfg.MaxItems {
		items = items[:w.cfg.MaxItems]
	}
	for _, c := range items {
		payload, reason := w.filter.Apply(c, w.seen)
		if reason != filter.Accepted {
			w.logger.Debug("candidate skipped", zap.String("id", c.ID), zap.String("reason", string(reason)))
			continue
		}
		if err := w.pacer.Wait(ctx); err != nil {
			return stats, fmt.Errorf("pace dispatch: %w", err)
		}
		if w.cfg.DebugPost {
			w.logger.Info("send",
				zap.String("id", c.ID),
				zap.String("user", orDash(payload.Username)),
				zap.Bool("avatar", payload.AvatarURL != ""))
		}
		// Required-sink failures are logged by the dispatcher; the id is
		// recorded regardless so the item is not retried.
		_ = w.dispatch.Dispatch(ctx, payload)
		if err := w.seen.Add(ctx, c.ID); err != nil {
			w.logger.Warn("failed to persist seen id", zap.String("id", c.ID), zap.Error(err))
		}
		stats.Dispatched++
	}
	return stats, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
