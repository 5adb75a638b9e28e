// Package health turns the raw uptime window (window.go) into periodic
// probes of the broker's actual dependencies — chain snapshot staleness,
// store reachability, rate limiter reachability, and scheduler generation
// health — and publishes a single Snapshot readers can consult without
// touching the dependency themselves. Grounded on the original Python
// service's MetagraphSyncer cached-with-fallback pattern for the staleness
// half, and on the teacher's single-pointer-snapshot publication idiom
// (chain.View.Snapshot) for the rest.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/chain"
	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
	"github.com/resi-labs-ai/resi-labs-api/internal/ratelimit"
	"github.com/resi-labs-ai/resi-labs-api/internal/scheduler"
	"github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore"
)

// healthProbeLimit is large enough never to reject the probe's own
// increment while still forcing a real round trip to the backing store —
// CheckAndIncrement short-circuits without touching Redis when limit<=0.
const healthProbeLimit = 1 << 30

type Snapshot struct {
	ChainOK               bool
	ChainStaleness        time.Duration
	StoreOK               bool
	RateLimiterOK         bool
	SchedulerFailed       bool
	SchedulerFailureCount int
	CheckedAt             time.Time
}

type Checker struct {
	chainView *chain.View
	store     *zipcodestore.Store
	limiter   *ratelimit.Limiter
	sched     *scheduler.Scheduler
	maxStale  time.Duration

	storeWindow   *UptimeWindow
	limiterWindow *UptimeWindow

	mu   sync.RWMutex
	last Snapshot
}

func NewChecker(chainView *chain.View, store *zipcodestore.Store, limiter *ratelimit.Limiter, sched *scheduler.Scheduler, maxStale time.Duration) *Checker {
	return &Checker{
		chainView:     chainView,
		store:         store,
		limiter:       limiter,
		sched:         sched,
		maxStale:      maxStale,
		storeWindow:   NewUptimeWindow(10 * time.Minute),
		limiterWindow: NewUptimeWindow(10 * time.Minute),
	}
}

func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	c.probe(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.probe(ctx)
			}
		}
	}()
}

func (c *Checker) probe(ctx context.Context) {
	now := time.Now()
	staleness := now.Sub(c.chainView.LastSync())
	chainOK := staleness <= c.maxStale

	storeOK := c.probeStore(ctx)
	c.storeWindow.Add(storeOK, now)

	limiterOK := c.probeLimiter(ctx, now)
	c.limiterWindow.Add(limiterOK, now)

	failed, count := c.sched.GenerationHealth()

	snap := Snapshot{
		ChainOK:               chainOK,
		ChainStaleness:        staleness,
		StoreOK:               storeOK,
		RateLimiterOK:         limiterOK,
		SchedulerFailed:       failed,
		SchedulerFailureCount: count,
		CheckedAt:             now,
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
}

func (c *Checker) probeStore(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := c.store.Counts(ctx); err != nil {
		logger.Warn("HEALTH", "store probe failed: %v", err)
		return false
	}
	return true
}

func (c *Checker) probeLimiter(ctx context.Context, now time.Time) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := c.limiter.CheckAndIncrement(ctx, ratelimit.ScopeGlobal, "healthcheck-probe", healthProbeLimit, now); err != nil {
		logger.Warn("HEALTH", "rate limiter probe failed: %v", err)
		return false
	}
	return true
}

func (c *Checker) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
