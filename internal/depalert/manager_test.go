package depalert

import (
	"context"
	"testing"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/config"
)

/*
TestChainStale_FireOnce_ThenResolve validates the core behavior:

 1. First observation past threshold sets baseline (no alert — fire window
    hasn't elapsed from FiringSince yet).
 2. Alert fires once fire_after has elapsed.
 3. No re-fire on subsequent checks while still stale.
 4. Once staleness clears, a resolved alert is sent and state clears.
*/

type captureNotifier struct {
	events []AlertEvent
}

func (c *captureNotifier) Notify(_ context.Context, e AlertEvent) error {
	c.events = append(c.events, e)
	return nil
}

func testManager(n Notifier) *Manager {
	cfg := config.AlertsConfig{
		Rules: config.AlertRulesConfig{
			ChainStale: config.AlertRuleConfig{Fire: "30s"},
		},
	}
	return &Manager{cfg: cfg, notifier: n, alerts: make(map[string]AlertStateItem), state: NewStateStore("")}
}

func TestChainStale_FireOnce_ThenResolve(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)

	n := &captureNotifier{}
	m := testManager(n)

	stale := func(d time.Duration) Probes { return Probes{ChainStaleness: d} }

	m.probe = func(ctx context.Context) Probes { return stale(31 * time.Second) }
	m.checkRulesAt(ctx, now)
	if len(n.events) != 0 {
		t.Fatalf("expected 0 events on first observation, got %d", len(n.events))
	}

	m.checkRulesAt(ctx, now.Add(20*time.Second))
	if len(n.events) != 0 {
		t.Fatalf("expected 0 events before fire_after elapses, got %d", len(n.events))
	}

	m.checkRulesAt(ctx, now.Add(31*time.Second))
	if len(n.events) != 1 {
		t.Fatalf("expected 1 event after fire_after elapses, got %d", len(n.events))
	}
	if n.events[0].RuleID != RuleChainStale || n.events[0].Status != AlertFiring {
		t.Fatalf("expected firing RuleChainStale, got rule=%s status=%s", n.events[0].RuleID, n.events[0].Status)
	}

	m.checkRulesAt(ctx, now.Add(60*time.Second))
	if len(n.events) != 1 {
		t.Fatalf("expected still 1 event (no re-fire), got %d", len(n.events))
	}

	m.probe = func(ctx context.Context) Probes { return stale(0) }
	m.checkRulesAt(ctx, now.Add(61*time.Second))
	if len(n.events) != 2 {
		t.Fatalf("expected 2 events (firing + resolved), got %d", len(n.events))
	}
	if n.events[1].RuleID != RuleChainStale || n.events[1].Status != AlertResolved {
		t.Fatalf("expected resolved RuleChainStale, got rule=%s status=%s", n.events[1].RuleID, n.events[1].Status)
	}
}

// checkRulesAt lets tests drive checkRules with a fixed clock instead of
// time.Now(), mirroring the teacher's checkNodeHeightStalledWithSnapshots
// test seam.
func (m *Manager) checkRulesAt(ctx context.Context, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	probes := m.probe(ctx)

	if m.cfg.Rules.ChainStale.Enabled() {
		m.evaluate(ctx, "chain_stale", RuleChainStale, SubjectChain, "chain", now,
			probes.ChainStaleness > m.cfg.Rules.ChainStale.FireDuration(),
			"Chain Snapshot Stale", "Chain snapshot has not synced successfully for %v",
			[]AlertDetail{{Label: "Staleness", Value: probes.ChainStaleness.Round(time.Second).String()}})
	}
}
