package scheduler

import (
	"testing"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/config"
	"github.com/resi-labs-ai/resi-labs-api/internal/selector"
)

func testEpochConfig() config.EpochConfig {
	return config.EpochConfig{TargetListings: 5000, TolerancePercent: 10, RetentionDays: 7}
}

func testSelectorConfig() config.SelectorConfig {
	return config.SelectorConfig{
		MinZipcodeListings: 5,
		MaxZipcodeListings: 500,
		CooldownHours:      24,
		MaxDataAgeDays:     30,
		StatePriorities:    map[string]int{"CA": 1, "PR": 3},
		PremiumWeight:      2.0,
		StandardWeight:     1.0,
		EmergingWeight:     0.5,
	}
}

func TestNextBoundary_SameDay(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 1, 3, 59, 59, 0, time.UTC), time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 1, 19, 59, 59, 0, time.UTC), time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got := nextBoundary(c.now)
		if !got.Equal(c.want) {
			t.Fatalf("nextBoundary(%s) = %s, want %s", c.now, got, c.want)
		}
	}
}

func TestNextBoundary_RollsToNextDay(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	got := nextBoundary(now)
	if !got.Equal(want) {
		t.Fatalf("nextBoundary(%s) = %s, want %s", now, got, want)
	}
}

func TestEpochID_IsBoundaryFormatted(t *testing.T) {
	start := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)
	got := epochID(start)
	want := "2026-03-01-16:00"
	if got != want {
		t.Fatalf("epochID(%s) = %q, want %q", start, got, want)
	}
}

func TestToStoreAssignments_CarriesHoneypotFlag(t *testing.T) {
	results := []selector.Assignment{
		{Zipcode: "90210", ExpectedListings: 12, State: "CA", City: "Beverly Hills", MarketTier: "premium", SelectionWeight: 0.7},
		{Zipcode: "00601", ExpectedListings: 3, State: "PR", City: "Adjuntas", MarketTier: "emerging", IsHoneypot: true},
	}
	out := toStoreAssignments("2026-03-01-16:00", results)
	if len(out) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(out))
	}
	if out[0].EpochID != "2026-03-01-16:00" || out[0].IsHoneypot {
		t.Fatalf("unexpected first row: %+v", out[0])
	}
	if !out[1].IsHoneypot || string(out[1].MarketTier) != "emerging" {
		t.Fatalf("unexpected second row: %+v", out[1])
	}
}

func TestSelectorParams_MapsTierAndStateConfig(t *testing.T) {
	s := &Scheduler{
		epochCfg: testEpochConfig(),
		selCfg:   testSelectorConfig(),
	}
	p := s.selectorParams()
	if p.Target != 5000 || p.TolerancePercent != 10 {
		t.Fatalf("unexpected target/tolerance: %+v", p)
	}
	if p.TierWeights["premium"] != 2.0 {
		t.Fatalf("expected premium weight 2.0, got %v", p.TierWeights["premium"])
	}
	if p.StatePriorities["CA"] != 1 {
		t.Fatalf("expected CA priority 1, got %v", p.StatePriorities["CA"])
	}
}

func TestReadyToPromote_RequiresPendingIDAndElapsedSlot(t *testing.T) {
	slot := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		now       time.Time
		slot      time.Time
		id        string
		wantReady bool
	}{
		{"no pending epoch", slot, slot, "", false},
		{"slot still in the future", slot.Add(-time.Minute), slot, "2026-03-01-16:00", false},
		{"slot reached exactly", slot, slot, "2026-03-01-16:00", true},
		{"slot already passed", slot.Add(time.Minute), slot, "2026-03-01-16:00", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := readyToPromote(tc.now, tc.slot, tc.id); got != tc.wantReady {
				t.Fatalf("readyToPromote(%v, %v, %q) = %v, want %v", tc.now, tc.slot, tc.id, got, tc.wantReady)
			}
		})
	}
}

// TestReadyToPromote_NeverReadyAgainstFreshNextBoundary guards the specific
// regression this helper replaced: comparing now against a freshly
// recomputed nextBoundary(now) instead of the stored pendingSlot. Since
// nextBoundary always returns a boundary strictly after now, that comparison
// could never be true, and a pre-generated epoch would stay pending forever.
func TestReadyToPromote_NeverReadyAgainstFreshNextBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 59, 0, 0, time.UTC)
	boundary := nextBoundary(now)

	if readyToPromote(now, boundary, "2026-03-01-16:00") {
		t.Fatalf("readyToPromote should never be true when compared against nextBoundary(now)")
	}
	if !readyToPromote(now, now, "2026-03-01-16:00") {
		t.Fatalf("readyToPromote should be true once compared against the stored pending slot that now has reached")
	}
}
