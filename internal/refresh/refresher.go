// Package refresh rebuilds cache snapshots from the gateway. A cycle fetches
// repositories, users, then projects (field schemas arrive with each project
// before its items), assembles a snapshot off to the side and publishes it
// only if everything succeeded. A failed cycle leaves the previous snapshot
// in place.
package refresh

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/gateway"
)

// Options tunes a Refresher. Zero values fall back to the defaults below.
type Options struct {
	Interval    time.Duration // periodic trigger; 0 disables the ticker
	MaxAttempts int           // attempts per fetch before the cycle is abandoned
	BaseBackoff time.Duration // first retry delay, doubled per attempt
}

const (
	defaultMaxAttempts = 4
	defaultBaseBackoff = 2 * time.Second
)

// Refresher drives refresh cycles. At most one cycle runs at a time; a
// trigger arriving while one is in flight is coalesced into a no-op.
type Refresher struct {
	gw     gateway.Gateway
	store  *cache.Store
	logger *slog.Logger
	opts   Options

	running atomic.Bool
	trigger chan struct{}
}

// New creates a Refresher publishing into store.
func New(gw gateway.Gateway, store *cache.Store, logger *slog.Logger, opts Options) *Refresher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	return &Refresher{
		gw:      gw,
		store:   store,
		logger:  logger,
		opts:    opts,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a refresh. It never blocks; if a cycle is already running
// or already requested, the request is dropped.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run services the ticker and manual triggers until ctx is cancelled. An
// immediate first cycle warms the cache on startup.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshNow(ctx)

	var tick <-chan time.Time
	if r.opts.Interval > 0 {
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.RefreshNow(ctx)
		case <-r.trigger:
			r.RefreshNow(ctx)
		}
	}
}

// RefreshNow runs one cycle synchronously. Returns false if another cycle
// was already in flight (the coalescing gate) or the cycle failed.
func (r *Refresher) RefreshNow(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Debug("refresh already in progress, coalescing trigger")
		return false
	}
	defer r.running.Store(false)

	started := time.Now()
	r.logger.Info("refreshing github cache")

	repos, err := fetchWithRetry(ctx, r, "repositories", r.gw.FetchRepositories)
	if err != nil {
		r.logger.Error("refresh abandoned", "stage", "repositories", "error", err)
		return false
	}

	users, err := fetchWithRetry(ctx, r, "users", r.gw.FetchUsers)
	if err != nil {
		r.logger.Error("refresh abandoned", "stage", "users", "error", err)
		return false
	}

	projects, err := fetchWithRetry(ctx, r, "projects", r.gw.FetchProjects)
	if err != nil {
		r.logger.Error("refresh abandoned", "stage", "projects", "error", err)
		return false
	}

	snap := cache.NewSnapshot(repos, users, projects, time.Now())
	r.store.Publish(snap)

	r.logger.Info("cache refreshed",
		"repos", len(repos),
		"users", len(users),
		"projects", len(projects),
		"took", time.Since(started).Round(time.Millisecond))
	return true
}

// fetchWithRetry retries transient gateway failures with exponential
// backoff. Permanent failures abort immediately.
func fetchWithRetry[T any](ctx context.Context, r *Refresher, stage string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	delay := r.opts.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		out, err := fetch(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !gateway.IsTransient(err) {
			return nil, err
		}
		if attempt == r.opts.MaxAttempts {
			break
		}

		r.logger.Warn("transient fetch failure, backing off",
			"stage", stage, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
