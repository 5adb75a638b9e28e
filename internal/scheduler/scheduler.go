// Package scheduler implements C7: the epoch state machine that computes
// and atomically publishes each 4-hour UTC epoch's zipcode assignment, and
// serves the current/historical read APIs the request handlers compose
// against. The periodic tick loop, per-cycle retry-with-backoff, and
// component-tagged logging are adapted from the teacher's
// internal/processor.Processor async block-dispatch loop, retargeted from
// per-block proof fetching to per-slot epoch generation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/resi-labs-ai/resi-labs-api/internal/config"
	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
	"github.com/resi-labs-ai/resi-labs-api/internal/metrics"
	"github.com/resi-labs-ai/resi-labs-api/internal/selector"
	"github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore"
)

const (
	slotInterval     = 4 * time.Hour
	preGenLead       = 5 * time.Minute
	tickInterval     = 15 * time.Second
	algorithmVersion = "v1"
)

var slotHoursUTC = []int{0, 4, 8, 12, 16, 20}

// Scheduler owns the pending->active->completed->archived lifecycle for
// epochs. At most one instance per process should hold the writer role in
// a given deployment, but InsertEpoch/PromotePending are safe to call from
// multiple replicas concurrently — the advisory lock in zipcodestore makes
// the single-active-epoch invariant a database-enforced property, not a
// process-level one.
type Scheduler struct {
	store    *zipcodestore.Store
	epochCfg config.EpochConfig
	selCfg   config.SelectorConfig
	exporter *metrics.Exporter

	mu              sync.Mutex
	pendingSlot     time.Time
	pendingID       string
	lastGenFailed   bool
	genFailureCount int
	lastSweepDay    int
}

func New(store *zipcodestore.Store, epochCfg config.EpochConfig, selCfg config.SelectorConfig, exporter *metrics.Exporter) *Scheduler {
	return &Scheduler{store: store, epochCfg: epochCfg, selCfg: selCfg, exporter: exporter}
}

// Start runs the tick loop until ctx is cancelled. It ticks far more often
// than the 4-hour slot interval so pre-generation and promotion happen
// promptly after their respective deadlines without a dedicated timer per
// slot.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	go func() {
		defer ticker.Stop()
		s.tick(ctx, time.Now().UTC())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, time.Now().UTC())
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	boundary := nextBoundary(now)
	preGenAt := boundary.Add(-preGenLead)

	s.mu.Lock()
	alreadyPreGenerated := s.pendingSlot.Equal(boundary)
	s.mu.Unlock()

	if !now.Before(preGenAt) && !alreadyPreGenerated {
		s.preGenerate(ctx, boundary)
	}

	s.mu.Lock()
	pendingSlot := s.pendingSlot
	pendingID := s.pendingID
	s.mu.Unlock()

	if readyToPromote(now, pendingSlot, pendingID) {
		s.promote(ctx, pendingSlot, pendingID)
	}

	s.maybeSweep(ctx, now)
}

// preGenerate computes the next epoch's assignment and persists it as
// pending. Failure is retried with bounded exponential backoff within this
// call; if every attempt fails, the pending slot is left unset so the next
// tick (at most tickInterval later) tries again — the scheduler never skips
// forward to a later slot to make up for a missed one (§4.7).
func (s *Scheduler) preGenerate(ctx context.Context, start time.Time) {
	id := epochID(start)
	end := start.Add(slotInterval)
	genStart := time.Now()

	var assignments []*zipcodestore.EpochAssignment

	op := func() error {
		eligible, err := s.store.GetEligible(ctx, start, s.selCfg.MinZipcodeListings, s.selCfg.MaxZipcodeListings)
		if err != nil {
			return err
		}
		honeypots, err := s.store.GetHoneypotPool(ctx, s.selCfg.HoneypotThreshold)
		if err != nil {
			return err
		}

		eligible = selector.Filter(eligible, start, s.selectorParams())
		result := selector.Select(eligible, honeypots, id, start, start, s.selectorParams())
		epoch := &zipcodestore.Epoch{
			ID:               id,
			StartTime:        start,
			EndTime:          end,
			Nonce:            result.Nonce,
			TargetListings:   s.epochCfg.TargetListings,
			TolerancePercent: s.epochCfg.TolerancePercent,
			Status:           zipcodestore.StatusPending,
			CreatedAt:        time.Now().UTC(),
			SelectionSeed:    int64(result.Seed),
			AlgorithmVersion: algorithmVersion,
		}
		assignments = toStoreAssignments(id, result.Assignments)
		return s.store.InsertEpoch(ctx, epoch, assignments)
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		logger.Error("SCHED", "pre-generation failed for epoch %s: %v", id, err)
		if s.exporter != nil {
			s.exporter.ObserveEpochGeneration(time.Since(genStart).Seconds(), true)
		}
		s.mu.Lock()
		s.lastGenFailed = true
		s.genFailureCount++
		s.mu.Unlock()
		return
	}

	logger.Info("SCHED", "pre-generated epoch %s with %d assignments", id, len(assignments))
	if s.exporter != nil {
		s.exporter.ObserveEpochGeneration(time.Since(genStart).Seconds(), false)
	}
	s.mu.Lock()
	s.pendingSlot = start
	s.pendingID = id
	s.lastGenFailed = false
	s.genFailureCount = 0
	s.mu.Unlock()
}

func (s *Scheduler) promote(ctx context.Context, boundary time.Time, pendingID string) {
	if err := s.store.PromotePending(ctx, pendingID); err != nil {
		logger.Error("SCHED", "promotion failed for epoch %s: %v", pendingID, err)
		return
	}
	logger.Info("SCHED", "promoted epoch %s to active", pendingID)
	if s.exporter != nil {
		s.exporter.SetActiveEpoch(true)
	}
	s.mu.Lock()
	s.pendingSlot = time.Time{}
	s.pendingID = ""
	s.mu.Unlock()
}

// maybeSweep runs the retention sweep at most once per calendar day.
func (s *Scheduler) maybeSweep(ctx context.Context, now time.Time) {
	day := now.YearDay()
	s.mu.Lock()
	if s.lastSweepDay == day {
		s.mu.Unlock()
		return
	}
	s.lastSweepDay = day
	s.mu.Unlock()

	retentionDays := s.epochCfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 7
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	n, err := s.store.ArchiveBefore(ctx, cutoff)
	if err != nil {
		logger.Warn("SCHED", "retention sweep failed: %v", err)
		return
	}
	if n > 0 {
		logger.Info("SCHED", "archived %d epoch(s) completed before %s", n, cutoff.Format(time.RFC3339))
	}
}

// Current returns the presently active epoch and its assignments, or nil
// if no epoch is active — e.g. the very first slot before any epoch has
// been promoted, or a gap after a missed promotion.
func (s *Scheduler) Current(ctx context.Context) (*zipcodestore.Epoch, []*zipcodestore.EpochAssignment, error) {
	return s.store.ActiveEpoch(ctx, time.Now().UTC())
}

// Historical returns a past epoch by id, honoring the same pre-reveal
// protection as Current — an epoch whose start is still in the future is
// reported as not found.
func (s *Scheduler) Historical(ctx context.Context, id string) (*zipcodestore.Epoch, []*zipcodestore.EpochAssignment, error) {
	return s.store.Epoch(ctx, id, time.Now().UTC())
}

type Stats struct {
	zipcodestore.Counts
	GenerationFailures   int
	LastGenerationFailed bool
}

func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Counts:               counts,
		GenerationFailures:   s.genFailureCount,
		LastGenerationFailed: s.lastGenFailed,
	}, nil
}

// GenerationHealth reports the current pre-generation failure streak, for
// wiring into the dependency-alerting probe without that package importing
// the scheduler's full surface.
func (s *Scheduler) GenerationHealth() (lastFailed bool, failureCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGenFailed, s.genFailureCount
}

func (s *Scheduler) selectorParams() selector.Params {
	return selector.Params{
		Target:           s.epochCfg.TargetListings,
		TolerancePercent: s.epochCfg.TolerancePercent,
		TierWeights: map[string]float64{
			"premium":  s.selCfg.PremiumWeight,
			"standard": s.selCfg.StandardWeight,
			"emerging": s.selCfg.EmergingWeight,
		},
		StatePriorities:     s.selCfg.StatePriorities,
		Alpha:               s.selCfg.SelectionRandomness,
		HoneypotProbability: s.selCfg.HoneypotProbability,
		MinZip:              s.selCfg.MinZipcodeListings,
		MaxZip:              s.selCfg.MaxZipcodeListings,
		CooldownHours:       s.selCfg.CooldownHours,
		MaxDataAgeDays:      s.selCfg.MaxDataAgeDays,
		SecretKey:           s.selCfg.SecretKey,
	}
}

func toStoreAssignments(epochID string, results []selector.Assignment) []*zipcodestore.EpochAssignment {
	out := make([]*zipcodestore.EpochAssignment, 0, len(results))
	for _, a := range results {
		out = append(out, &zipcodestore.EpochAssignment{
			EpochID:          epochID,
			Zipcode:          a.Zipcode,
			ExpectedListings: a.ExpectedListings,
			State:            a.State,
			City:             a.City,
			County:           a.County,
			MarketTier:       zipcodestore.MarketTier(a.MarketTier),
			SelectionWeight:  a.SelectionWeight,
			IsHoneypot:       a.IsHoneypot,
		})
	}
	return out
}

// nextBoundary returns the next UTC 4-hour slot boundary strictly after
// now — 00:00, 04:00, 08:00, 12:00, 16:00, or 20:00 the same day, or
// 00:00 the following day.
func nextBoundary(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range slotHoursUTC {
		b := day.Add(time.Duration(h) * time.Hour)
		if b.After(now) {
			return b
		}
	}
	return day.AddDate(0, 0, 1)
}

// epochID derives the epoch's primary key from its start time.
func epochID(start time.Time) string {
	return start.UTC().Format("2006-01-02-15:04")
}

// readyToPromote reports whether the pending epoch recorded at pendingSlot
// has reached its start time. It must compare now against the stored
// pendingSlot, not against a freshly recomputed nextBoundary(now) — the
// latter is always strictly after now by construction and would make
// promotion unreachable.
func readyToPromote(now, pendingSlot time.Time, pendingID string) bool {
	return pendingID != "" && !now.Before(pendingSlot)
}
