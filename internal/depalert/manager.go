package depalert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/config"
	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
)

// Probes is the set of dependency signals the manager evaluates each tick.
// The caller (cmd/broker's wiring) refreshes these from the live chain
// view, scheduler, store, and rate limiter rather than depalert reaching
// into those packages itself — keeps this package dependency-free of the
// rest of the domain.
type Probes struct {
	ChainStaleness       time.Duration
	LastEpochGenFailed   bool
	EpochGenFailureCount int
	StoreUnavailable     bool
	RateLimiterDegraded  bool
}

type ProbeFunc func(ctx context.Context) Probes

type Manager struct {
	cfg      config.AlertsConfig
	probe    ProbeFunc
	notifier Notifier
	state    *StateStore
	alerts   map[string]AlertStateItem
	mu       sync.Mutex
}

func NewManager(cfg config.AlertsConfig, probe ProbeFunc) *Manager {
	return &Manager{
		cfg:      cfg,
		probe:    probe,
		notifier: NewNotifier(cfg),
		state:    NewStateStore(cfg.StateFile),
		alerts:   make(map[string]AlertStateItem),
	}
}

func (m *Manager) Start(ctx context.Context) {
	loaded, err := m.state.Load()
	if err != nil {
		logger.Warn("DEPALERT", "failed to load alert state: %v", err)
	} else {
		m.alerts = loaded
		logger.Info("DEPALERT", "loaded %d alert states from disk", len(m.alerts))
	}

	interval := config.ParseDuration(m.cfg.CheckInterval)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		m.checkRules(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkRules(ctx)
			}
		}
	}()
}

func (m *Manager) checkRules(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	probes := m.probe(ctx)

	if m.cfg.Rules.ChainStale.Enabled() {
		m.evaluate(ctx, "chain_stale", RuleChainStale, SubjectChain, "chain", now,
			probes.ChainStaleness > m.cfg.Rules.ChainStale.FireDuration(),
			"Chain Snapshot Stale", "Chain snapshot has not synced successfully for %v",
			[]AlertDetail{{Label: "Staleness", Value: probes.ChainStaleness.Round(time.Second).String()}})
	}

	if m.cfg.Rules.EpochGenFailure.Enabled() {
		m.evaluate(ctx, "epoch_generation_failure", RuleEpochGenFailure, SubjectScheduler, "scheduler", now,
			probes.LastEpochGenFailed,
			"Epoch Pre-generation Failing", "Epoch pre-generation has been failing for %v",
			[]AlertDetail{{Label: "Consecutive failures", Value: fmt.Sprintf("%d", probes.EpochGenFailureCount)}})
	}

	if m.cfg.Rules.StoreUnavailable.Enabled() {
		m.evaluate(ctx, "store_unavailable", RuleStoreUnavailable, SubjectStore, "store", now,
			probes.StoreUnavailable,
			"Zipcode Store Unavailable", "The zipcode/epoch store has not been responding for %v",
			nil)
	}

	if m.cfg.Rules.RateLimitDegraded.Enabled() {
		m.evaluate(ctx, "rate_limit_degraded", RuleRateLimitDegraded, SubjectRateLimiter, "rate_limiter", now,
			probes.RateLimiterDegraded,
			"Rate Limiter Degraded", "The rate limiter backend has been unreachable for %v and rate-limited requests are being rejected",
			nil)
	}

	if err := m.state.Save(m.alerts); err != nil {
		logger.Warn("DEPALERT", "failed to save alert state: %v", err)
	}
}

// evaluate runs the shared fire/resolve state machine for one rule:
// start tracking on first bad observation, fire once fire-duration has
// elapsed without recovery, resolve and forget once the condition clears.
func (m *Manager) evaluate(ctx context.Context, keySuffix string, rule RuleID, subjectType SubjectType, subjectID string, now time.Time, bad bool, title, messageFmt string, extra []AlertDetail) {
	key := fmt.Sprintf("%s:%s", keySuffix, subjectID)
	state, exists := m.alerts[key]
	fireDuration := ruleFireDuration(m.cfg, rule)

	if bad {
		if !exists {
			m.alerts[key] = AlertStateItem{
				Key: key, RuleID: rule, SubjectType: subjectType, SubjectID: subjectID,
				Status: AlertFiring, FiringSince: now, LastObserved: now,
			}
			return
		}
		state.LastObserved = now
		m.alerts[key] = state

		if state.Status == AlertFiring && now.Sub(state.FiringSince) >= fireDuration && state.LastEventAt.IsZero() {
			downtime := now.Sub(state.FiringSince).Round(time.Second)
			event := AlertEvent{
				Key: key, RuleID: rule, SubjectType: subjectType, SubjectID: subjectID,
				Status: AlertFiring, Severity: "critical", Title: title,
				Message: fmt.Sprintf(messageFmt, downtime), Details: extra, Timestamp: now,
			}
			if err := m.notifier.Notify(ctx, event); err != nil {
				logger.Warn("DEPALERT", "failed to send %s alert: %v", rule, err)
			}
			state.LastEventAt = now
			m.alerts[key] = state
		}
		return
	}

	if exists {
		if state.Status == AlertFiring && !state.LastEventAt.IsZero() {
			event := AlertEvent{
				Key: key, RuleID: rule, SubjectType: subjectType, SubjectID: subjectID,
				Status: AlertResolved, Severity: "info", Title: title + " Recovered",
				Message: fmt.Sprintf("%s recovered", title), Timestamp: now,
			}
			if err := m.notifier.Notify(ctx, event); err != nil {
				logger.Warn("DEPALERT", "failed to send %s resolved alert: %v", rule, err)
			}
		}
		delete(m.alerts, key)
	}
}

func ruleFireDuration(cfg config.AlertsConfig, rule RuleID) time.Duration {
	switch rule {
	case RuleChainStale:
		return cfg.Rules.ChainStale.FireDuration()
	case RuleEpochGenFailure:
		return cfg.Rules.EpochGenFailure.FireDuration()
	case RuleStoreUnavailable:
		return cfg.Rules.StoreUnavailable.FireDuration()
	case RuleRateLimitDegraded:
		return cfg.Rules.RateLimitDegraded.FireDuration()
	default:
		return 0
	}
}
