// Package selector implements C8: a deterministic weighted sampler that
// selects a set of zipcodes meeting a listings-budget tolerance, given an
// eligible set, an epoch seed, and selection parameters. Grounded on the
// original Python service's zipcode_service.py (seed derivation, weighting
// formula, honeypot injection, nonce construction); expressed here as a
// pure function over slices of structs rather than an object graph, per
// the design note on arena/slice-of-struct over heap pointer chains.
package selector

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
)

type Row struct {
	Zipcode         string
	State           string
	City            string
	County          string
	ExpectedListings int
	MarketTier      string // premium | standard | emerging
	BaseWeight      float64
	LastAssigned    *time.Time
	DataUpdatedAt   time.Time
}

type Assignment struct {
	Zipcode          string
	ExpectedListings int
	State            string
	City             string
	County           string
	MarketTier       string
	SelectionWeight  float64
	IsHoneypot       bool
}

type Params struct {
	Target              int
	TolerancePercent    int
	TierWeights         map[string]float64 // premium/standard/emerging -> weight
	StatePriorities     map[string]int     // lower = higher priority
	Alpha               float64            // randomness coefficient in [0,1]
	HoneypotProbability float64
	MinZip              int
	MaxZip              int
	CooldownHours       int
	MaxDataAgeDays      int
	SecretKey           string
}

type Result struct {
	Assignments []Assignment
	Nonce       string
	Seed        uint64
	Degraded    bool // true if the listings-budget tolerance could not be met
}

// Filter drops rows outside the listings band, still in cooldown, or with
// stale source data — the eligibility filter from §4.8.
func Filter(rows []Row, now time.Time, p Params) []Row {
	cooldown := time.Duration(p.CooldownHours) * time.Hour
	maxAge := time.Duration(p.MaxDataAgeDays) * 24 * time.Hour

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.ExpectedListings < p.MinZip || r.ExpectedListings > p.MaxZip {
			continue
		}
		if r.LastAssigned != nil && now.Sub(*r.LastAssigned) < cooldown {
			continue
		}
		if !r.DataUpdatedAt.IsZero() && now.Sub(r.DataUpdatedAt) > maxAge {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Seed derives the deterministic-but-unpredictable PRNG seed for an epoch:
// first_u64(HMAC-SHA256(K, e || date(now))).
func Seed(secretKey, epochID string, now time.Time) uint64 {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(epochID))
	mac.Write([]byte(now.UTC().Format("2006-01-02")))
	digest := mac.Sum(nil)
	return binary.BigEndian.Uint64(digest[:8])
}

func cooldownWeight(r Row, now time.Time, cooldownHours int) float64 {
	if r.LastAssigned == nil {
		return 1.0
	}
	hoursSince := now.Sub(*r.LastAssigned).Hours()
	if cooldownHours <= 0 || hoursSince >= float64(cooldownHours) {
		return 1.0
	}
	return 0.1 + 0.9*hoursSince/float64(cooldownHours)
}

func tierWeight(tier string, weights map[string]float64) float64 {
	if w, ok := weights[tier]; ok {
		return w
	}
	return 1.0
}

func statePriority(state string, priorities map[string]int) float64 {
	if n, ok := priorities[state]; ok && n > 0 {
		return float64(n)
	}
	return 1.0
}

func weight(r Row, now time.Time, p Params) float64 {
	w := float64(r.ExpectedListings) * tierWeight(r.MarketTier, p.TierWeights) *
		(1.0 / statePriority(r.State, p.StatePriorities)) *
		cooldownWeight(r, now, p.CooldownHours)
	base := r.BaseWeight
	if base <= 0 {
		base = 1.0
	}
	return w * base
}

// Select runs the deterministic weighted sampling procedure against an
// already-eligible row set and a disjoint low-activity honeypot pool. It is
// pure given its inputs: the same (eligible, honeypotPool, params, epochID,
// startTs, now) always yields the same Result.
func Select(eligible, honeypotPool []Row, epochID string, startTs, now time.Time, p Params) Result {
	seed := Seed(p.SecretKey, epochID, now)
	rng := rand.New(rand.NewSource(int64(seed)))

	remaining := append([]Row(nil), eligible...)
	selected := make([]Assignment, 0)
	sum := 0

	lower := float64(p.Target) * (1 - float64(p.TolerancePercent)/100.0)
	upper := float64(p.Target) * (1 + float64(p.TolerancePercent)/100.0)

	for len(remaining) > 0 {
		next, nextWeight, idx := pickNext(remaining, now, p, rng)

		if float64(sum) >= lower {
			smallestRemaining := smallestExpected(remaining)
			overshoot := float64(sum+next.ExpectedListings) - upper
			if overshoot > 0 && overshoot > float64(smallestRemaining) {
				break
			}
		}

		selected = append(selected, Assignment{
			Zipcode: next.Zipcode, ExpectedListings: next.ExpectedListings,
			State: next.State, City: next.City, County: next.County,
			MarketTier: next.MarketTier, SelectionWeight: nextWeight,
		})
		sum += next.ExpectedListings
		remaining = append(remaining[:idx], remaining[idx+1:]...)

		if float64(sum) >= upper {
			break
		}
	}

	degraded := float64(sum) < lower || float64(sum) > upper
	if degraded {
		logger.Warn("SELECTOR", "epoch %s selection budget degraded: sum=%d target=[%0.f,%0.f]", epochID, sum, lower, upper)
	}

	if rng.Float64() < p.HoneypotProbability && len(honeypotPool) > 0 {
		hp := honeypotPool[rng.Intn(len(honeypotPool))]
		selected = append(selected, Assignment{
			Zipcode: hp.Zipcode, ExpectedListings: hp.ExpectedListings,
			State: hp.State, City: hp.City, County: hp.County,
			MarketTier: hp.MarketTier, IsHoneypot: true,
		})
	}

	checkGeographicDiversity(selected)

	nonce := computeNonce(p.SecretKey, epochID, startTs, selected)

	return Result{Assignments: selected, Nonce: nonce, Seed: seed, Degraded: degraded}
}

// pickNext scores every remaining candidate as w^(1-alpha) * U^alpha, where
// U is a fresh draw per candidate per round, and returns the top scorer.
// Ties break lexicographically on zipcode.
func pickNext(remaining []Row, now time.Time, p Params, rng *rand.Rand) (Row, float64, int) {
	type scored struct {
		row   Row
		w     float64
		score float64
	}
	scores := make([]scored, len(remaining))
	for i, r := range remaining {
		w := weight(r, now, p)
		u := rng.Float64()
		if u <= 0 {
			u = 1e-9
		}
		score := pow(w, 1-p.Alpha) * pow(u, p.Alpha)
		scores[i] = scored{row: r, w: w, score: score}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].row.Zipcode < scores[j].row.Zipcode
	})
	best := scores[0]
	for i, r := range remaining {
		if r.Zipcode == best.row.Zipcode {
			return r, best.w, i
		}
	}
	return best.row, best.w, 0
}

func pow(base, exp float64) float64 {
	if base <= 0 {
		return 0
	}
	return math.Pow(base, exp)
}

func smallestExpected(rows []Row) int {
	if len(rows) == 0 {
		return 0
	}
	min := rows[0].ExpectedListings
	for _, r := range rows[1:] {
		if r.ExpectedListings < min {
			min = r.ExpectedListings
		}
	}
	return min
}

// checkGeographicDiversity is a non-blocking warning only — the original
// service's diversity check never rejects a selection, it just logs.
func checkGeographicDiversity(selected []Assignment) {
	states := make(map[string]int)
	for _, a := range selected {
		if !a.IsHoneypot {
			states[a.State]++
		}
	}
	if len(states) == 1 && len(selected) > 3 {
		for state := range states {
			logger.Warn("SELECTOR", "selection concentrated in a single state (%s) across %d zipcodes", state, len(selected))
		}
	}
}

// computeNonce is recomputable by anyone who knows the secret, the epoch
// id, start time, and the selected zipcode set — required for testable
// property 7 (nonce determinism).
func computeNonce(secretKey, epochID string, startTs time.Time, selected []Assignment) string {
	zips := make([]string, 0, len(selected))
	for _, a := range selected {
		zips = append(zips, a.Zipcode)
	}
	sort.Strings(zips)
	sortedHash := sha256.Sum256([]byte(strings.Join(zips, ",")))

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(epochID))
	mac.Write([]byte(strconv.FormatInt(startTs.Unix(), 10)))
	mac.Write(sortedHash[:])
	digest := mac.Sum(nil)
	return hex.EncodeToString(digest[:16])
}

// RecomputeNonce exposes computeNonce for verification callers (tests
// re-derive it to check determinism; the scheduler stores the nonce Select
// returns and does not re-derive it).
func RecomputeNonce(secretKey, epochID string, startTs time.Time, selected []Assignment) string {
	return computeNonce(secretKey, epochID, startTs, selected)
}
