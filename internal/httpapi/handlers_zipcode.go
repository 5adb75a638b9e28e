package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/commitment"
	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/ratelimit"
	"github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore"
)

// handleZipcodeCurrent answers C7.current() for an authenticated miner: the
// active epoch's assignment list, or NoActiveEpoch before the first epoch
// has promoted.
func (s *Server) handleZipcodeCurrent(w http.ResponseWriter, r *http.Request) {
	a, err := extractHeaderAuth(r)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	auth, err := s.validator.Validate(r.Context(), commitment.Request{
		Purpose:        commitment.PurposeAssignmentCurrent,
		Raw:            rawAssignmentCurrent(a.Timestamp),
		Signature:      a.Signature,
		ExpectedHotkey: a.Hotkey,
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.limiter.CheckAll(r.Context(), []ratelimit.Check{
		{Scope: ratelimit.ScopeMiner, ID: auth.Hotkey, Limit: s.cfg.RateLimit.DailyLimitPerMiner},
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily assignment query limit reached"))
		return
	}

	epoch, assignments, err := s.sched.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if epoch == nil {
		writeError(w, errs.New(errs.NoActiveEpoch, "no active epoch"))
		return
	}

	writeJSON(w, http.StatusOK, epochPayload(epoch, assignments))
}

// handleZipcodeEpoch answers C7.historical(e) for an authenticated
// validator — the epoch id travels in the URL path and must match the one
// the caller signed over.
func (s *Server) handleZipcodeEpoch(w http.ResponseWriter, r *http.Request) {
	epochID := strings.TrimPrefix(r.URL.Path, "/api/v1/zipcode-assignments/epoch/")
	if epochID == "" {
		writeError(w, errs.New(errs.AuthMalformed, "epoch id is required in the path"))
		return
	}

	a, err := extractHeaderAuth(r)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	auth, err := s.validator.Validate(r.Context(), commitment.Request{
		Purpose:          commitment.PurposeValidation,
		Raw:              rawValidation(epochID, a.Timestamp),
		Signature:        a.Signature,
		ExpectedHotkey:   a.Hotkey,
		RequireValidator: true,
		MinStake:         s.cfg.Advanced.ValidatorMinStake,
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.limiter.CheckAll(r.Context(), []ratelimit.Check{
		{Scope: ratelimit.ScopeValidator, ID: auth.Hotkey, Limit: s.cfg.RateLimit.DailyLimitPerValidator},
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily validation query limit reached"))
		return
	}

	epoch, assignments, err := s.sched.Historical(r.Context(), epochID)
	if err != nil {
		writeError(w, err)
		return
	}
	if epoch == nil {
		writeError(w, errs.New(errs.EpochNotFound, "epoch id unknown"))
		return
	}

	writeJSON(w, http.StatusOK, epochPayload(epoch, assignments))
}

// handleZipcodeStats is the low-auth/public-ip-limited aggregate endpoint.
func (s *Server) handleZipcodeStats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	res, err := s.limiter.CheckAll(r.Context(), []ratelimit.Check{
		{Scope: ratelimit.ScopeIP, ID: clientIP(r), Limit: s.cfg.RateLimit.IPDailyLimit},
		{Scope: ratelimit.ScopeGlobal, ID: "", Limit: s.cfg.RateLimit.TotalDailyLimit},
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily stats query limit reached"))
		return
	}

	stats, err := s.sched.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending_epochs":       stats.PendingEpochs,
		"active_epochs":        stats.ActiveEpochs,
		"completed_epochs":     stats.CompletedEpochs,
		"archived_epochs":      stats.ArchivedEpochs,
		"total_assignments":    stats.TotalAssignments,
		"generation_failures":  stats.GenerationFailures,
		"last_generation_failed": stats.LastGenerationFailed,
	})
}

func epochPayload(epoch *zipcodestore.Epoch, assignments []*zipcodestore.EpochAssignment) map[string]any {
	zipcodes := make([]map[string]any, 0, len(assignments))
	for _, a := range assignments {
		zipcodes = append(zipcodes, map[string]any{
			"zipcode":           a.Zipcode,
			"expected_listings": a.ExpectedListings,
			"state":             a.State,
			"city":              a.City,
			"county":            a.County,
			"market_tier":       a.MarketTier,
			// last_assigned belongs to the zipcode master row, not this
			// immutable per-epoch snapshot; left null here.
			"last_assigned": nil,
		})
	}
	return map[string]any{
		"epoch_id":          epoch.ID,
		"epoch_start":       epoch.StartTime,
		"epoch_end":         epoch.EndTime,
		"nonce":             epoch.Nonce,
		"target_listings":   epoch.TargetListings,
		"tolerance_percent": epoch.TolerancePercent,
		"zipcodes":          zipcodes,
		"metadata": map[string]any{
			"status":            epoch.Status,
			"algorithm_version": epoch.AlgorithmVersion,
		},
	}
}
