package selector

import (
	"testing"
	"time"
)

func sampleRows() []Row {
	rows := make([]Row, 0, 40)
	states := []string{"PA", "NJ", "NY", "OH"}
	tiers := []string{"premium", "standard", "emerging"}
	for i := 0; i < 40; i++ {
		rows = append(rows, Row{
			Zipcode:          "Z" + itoa(10000+i),
			State:            states[i%len(states)],
			City:             "City",
			ExpectedListings: 500 + (i%10)*50,
			MarketTier:       tiers[i%len(tiers)],
			BaseWeight:       1.0,
			DataUpdatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return rows
}

func testParams() Params {
	return Params{
		Target:              10000,
		TolerancePercent:    10,
		TierWeights:         map[string]float64{"premium": 1.5, "standard": 1.0, "emerging": 0.8},
		StatePriorities:     map[string]int{"PA": 1, "NJ": 2, "NY": 3, "OH": 4},
		Alpha:               0.3,
		HoneypotProbability: 0,
		MinZip:              50,
		MaxZip:               20000,
		CooldownHours:        24,
		MaxDataAgeDays:       30,
		SecretKey:            "test-secret",
	}
}

// S5: selection determinism — same inputs, same outputs, run twice.
func TestSelect_Deterministic(t *testing.T) {
	rows := sampleRows()
	p := testParams()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r1 := Select(rows, nil, "2026-01-01-12:00", start, now, p)
	r2 := Select(rows, nil, "2026-01-01-12:00", start, now, p)

	if r1.Nonce != r2.Nonce {
		t.Fatalf("nonce mismatch across identical runs: %s vs %s", r1.Nonce, r2.Nonce)
	}
	if len(r1.Assignments) != len(r2.Assignments) {
		t.Fatalf("assignment count mismatch: %d vs %d", len(r1.Assignments), len(r2.Assignments))
	}
	for i := range r1.Assignments {
		if r1.Assignments[i].Zipcode != r2.Assignments[i].Zipcode {
			t.Fatalf("assignment %d differs: %s vs %s", i, r1.Assignments[i].Zipcode, r2.Assignments[i].Zipcode)
		}
	}
}

// Property 8: selection budget — sum of non-honeypot listings within
// tolerance of target.
func TestSelect_BudgetWithinTolerance(t *testing.T) {
	rows := sampleRows()
	p := testParams()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	res := Select(rows, nil, "2026-01-01-12:00", now, now, p)

	sum := 0
	for _, a := range res.Assignments {
		if !a.IsHoneypot {
			sum += a.ExpectedListings
		}
	}
	lower := int(float64(p.Target) * 0.9)
	upper := int(float64(p.Target) * 1.1)
	if sum < lower || sum > upper {
		t.Fatalf("sum %d outside tolerance band [%d,%d]", sum, lower, upper)
	}
}

// Honeypots are excluded from the budget calculation.
func TestSelect_HoneypotExcludedFromBudget(t *testing.T) {
	rows := sampleRows()
	honeypots := []Row{{Zipcode: "HP001", ExpectedListings: 10, State: "PA", MarketTier: "emerging"}}
	p := testParams()
	p.HoneypotProbability = 1.0 // force inclusion
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	res := Select(rows, honeypots, "2026-01-01-12:00", now, now, p)

	var foundHoneypot bool
	sum := 0
	for _, a := range res.Assignments {
		if a.IsHoneypot {
			foundHoneypot = true
			continue
		}
		sum += a.ExpectedListings
	}
	if !foundHoneypot {
		t.Fatalf("expected a honeypot to be included with probability 1.0")
	}
	lower := int(float64(p.Target) * 0.9)
	upper := int(float64(p.Target) * 1.1)
	if sum < lower || sum > upper {
		t.Fatalf("non-honeypot sum %d outside tolerance band [%d,%d] — honeypot leaked into budget", sum, lower, upper)
	}
}

// Property 9: cooldown — a zipcode within the cooldown window never
// reappears in the eligible set.
func TestFilter_ExcludesWithinCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	recentlyAssigned := now.Add(-1 * time.Hour)
	rows := []Row{
		{Zipcode: "Z1", ExpectedListings: 1000, LastAssigned: &recentlyAssigned, DataUpdatedAt: now},
		{Zipcode: "Z2", ExpectedListings: 1000, DataUpdatedAt: now},
	}
	p := testParams()

	out := Filter(rows, now, p)
	if len(out) != 1 || out[0].Zipcode != "Z2" {
		t.Fatalf("expected only Z2 to survive the cooldown filter, got %+v", out)
	}
}

func TestFilter_ExcludesStaleData(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := []Row{
		{Zipcode: "Z1", ExpectedListings: 1000, DataUpdatedAt: now.Add(-60 * 24 * time.Hour)},
		{Zipcode: "Z2", ExpectedListings: 1000, DataUpdatedAt: now},
	}
	p := testParams()

	out := Filter(rows, now, p)
	if len(out) != 1 || out[0].Zipcode != "Z2" {
		t.Fatalf("expected only Z2 to survive the data-age filter, got %+v", out)
	}
}

// Property 7: nonce determinism via independent recomputation.
func TestRecomputeNonce_MatchesStored(t *testing.T) {
	rows := sampleRows()
	p := testParams()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	start := now

	res := Select(rows, nil, "2026-01-01-12:00", start, now, p)
	recomputed := RecomputeNonce(p.SecretKey, "2026-01-01-12:00", start, res.Assignments)

	if recomputed != res.Nonce {
		t.Fatalf("recomputed nonce %s does not match stored nonce %s", recomputed, res.Nonce)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
