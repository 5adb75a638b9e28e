// Watcher is adapted from the upstream monitor's internal/ws.Listener: a
// reconnect-with-backoff subscription loop, repurposed here to trigger an
// eager resync on new blocks instead of forwarding block headers to a
// dashboard. SYNC_INTERVAL remains the source of truth; this only narrows
// the window between a chain event and the cached snapshot reflecting it.
package chain

import (
	"context"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
)

type Watcher struct {
	view   *View
	client *Client
}

func NewWatcher(view *View, client *Client) *Watcher {
	return &Watcher{view: view, client: client}
}

func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	backoffDelay := time.Second
	const maxBackoff = 60 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		headers := make(chan uint64, 16)
		sub, err := w.client.SubscribeHeaders(ctx, headers)
		if err != nil {
			logger.Warn("CHAIN", "header subscription failed, retrying in %s: %v", backoffDelay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffDelay):
			}
			backoffDelay *= 2
			if backoffDelay > maxBackoff {
				backoffDelay = maxBackoff
			}
			continue
		}

		backoffDelay = time.Second
		w.consume(ctx, sub, headers)
	}
}

func (w *Watcher) consume(ctx context.Context, sub interface{ Unsubscribe() }, headers <-chan uint64) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-headers:
			if !ok {
				return
			}
			if err := w.view.syncOnce(ctx); err != nil {
				logger.Debug("CHAIN", "eager resync on new block failed: %v", err)
			}
		}
	}
}
