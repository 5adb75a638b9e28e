// Package chain implements C1: a process-wide, periodically-synced view of
// a subnet's registered keys, validator flags, and stakes. Readers take a
// single atomic load; publication is a pointer swap, never a lock.
package chain

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
	"github.com/resi-labs-ai/resi-labs-api/internal/utils"
)

type View struct {
	netUID          int
	nodes           *NodeManager
	state           *StateStore
	snapshot        atomic.Pointer[Snapshot]
	syncInterval    time.Duration
	maxStale        time.Duration
	fallbackEnabled bool
	staleCount      atomic.Int64
}

func NewView(netUID int, nodes *NodeManager, state *StateStore, syncInterval, maxStale time.Duration, fallbackEnabled bool) *View {
	return &View{
		netUID:          netUID,
		nodes:           nodes,
		state:           state,
		syncInterval:    syncInterval,
		maxStale:        maxStale,
		fallbackEnabled: fallbackEnabled,
	}
}

// WarmStart loads a last-good snapshot from disk so the view has something
// to serve from immediately after a restart. It never counts as a live
// sync — staleCount still reflects the need for a fresh sync.
func (v *View) WarmStart() {
	if v.state == nil {
		return
	}
	snap, err := v.state.Load()
	if err != nil {
		logger.Warn("CHAIN", "failed to load persisted snapshot: %v", err)
		return
	}
	if snap != nil {
		v.snapshot.Store(snap)
		logger.Info("CHAIN", "warm-started from persisted snapshot (%d keys, synced %s)", len(snap.Keys), snap.SyncedAt)
	}
}

// InitialSync must succeed before the service accepts authenticated
// requests, per §4.1.
func (v *View) InitialSync(ctx context.Context) error {
	return v.syncOnce(ctx)
}

func (v *View) Start(ctx context.Context) {
	ticker := time.NewTicker(v.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := v.syncOnce(ctx); err != nil {
					logger.Error("CHAIN", "sync failed: %v", err)
				}
			}
		}
	}()
}

func (v *View) syncOnce(ctx context.Context) error {
	client := v.nodes.Best()
	if client == nil {
		client = v.nodes.Any()
	}
	if client == nil {
		v.staleCount.Add(1)
		return errs.New(errs.DependencyUnavailable, "no chain node available")
	}

	var snap *Snapshot
	op := func() error {
		s, err := client.FetchMetagraph(ctx, v.netUID)
		if err != nil {
			return err
		}
		snap = s
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		v.staleCount.Add(1)
		return errs.Wrap(errs.DependencyUnavailable, "chain sync failed", err)
	}

	snap.SyncedAt = time.Now().UTC()
	v.snapshot.Store(snap)
	v.staleCount.Store(0)
	if v.state != nil {
		if err := v.state.Save(snap); err != nil {
			logger.Warn("CHAIN", "failed to persist snapshot: %v", err)
		}
	}
	logger.Info("CHAIN", "synced metagraph: %d keys, total stake %s", len(snap.Keys), utils.FormatStake(totalStake(snap)))
	return nil
}

func totalStake(snap *Snapshot) float64 {
	var total float64
	for _, k := range snap.Keys {
		total += k.Stake
	}
	return total
}

// Snapshot returns the current immutable snapshot, or nil if none has
// published yet.
func (v *View) Snapshot() *Snapshot {
	return v.snapshot.Load()
}

func (v *View) isStale() bool {
	snap := v.snapshot.Load()
	if snap == nil {
		return true
	}
	return time.Since(snap.SyncedAt) > v.maxStale
}

// Lookup answers "is K registered, and is it a validator?" in O(1) against
// the cached snapshot. When the snapshot is stale past MAX_STALE and a
// fallback is enabled, it falls through to a direct, timeout-guarded chain
// query instead of serving a possibly-wrong cached answer.
func (v *View) Lookup(ctx context.Context, hotkey string) (KeyInfo, error) {
	if !v.isStale() {
		snap := v.snapshot.Load()
		info, ok := snap.Lookup(hotkey)
		if !ok {
			return KeyInfo{}, errs.New(errs.AuthUnknownKey, "hotkey not registered on subnet")
		}
		return info, nil
	}

	if !v.fallbackEnabled {
		return KeyInfo{}, errs.New(errs.DependencyUnavailable, "chain snapshot stale and fallback disabled")
	}

	client := v.nodes.Best()
	if client == nil {
		return KeyInfo{}, errs.New(errs.DependencyUnavailable, "chain unavailable for fallback lookup")
	}

	fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, err := client.FetchMetagraph(fctx, v.netUID)
	if err != nil {
		return KeyInfo{}, errs.Wrap(errs.DependencyUnavailable, "direct chain query failed", err)
	}
	info, ok := snap.Lookup(hotkey)
	if !ok {
		return KeyInfo{}, errs.New(errs.AuthUnknownKey, "hotkey not registered on subnet")
	}
	return info, nil
}

func (v *View) StaleCount() int64 { return v.staleCount.Load() }

func (v *View) LastSync() time.Time {
	snap := v.snapshot.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.SyncedAt
}
