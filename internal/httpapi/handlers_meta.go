package httpapi

import (
	"net/http"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/commitment"
	"github.com/resi-labs-ai/resi-labs-api/internal/config"
	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/ratelimit"
)

// handleHealthcheck is the unauthenticated dependency-probe endpoint. It
// never runs a live probe itself — it reports the Checker's last published
// Snapshot, so a slow dependency never makes /healthcheck itself slow.
func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	res, err := s.limiter.CheckAndIncrement(r.Context(), ratelimit.ScopeIP, clientIP(r), s.cfg.RateLimit.IPDailyLimit, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily healthcheck query limit reached"))
		return
	}

	snap := s.checker.Snapshot()
	status := "ok"
	if !snap.ChainOK || !snap.StoreOK || !snap.RateLimiterOK || snap.SchedulerFailed {
		status = "degraded"
	}

	var hotkeysCount int
	var lastSync time.Time
	if cs := s.chainView.Snapshot(); cs != nil {
		hotkeysCount = cs.HotkeysCount()
		lastSync = cs.SyncedAt
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"bucket": s.cfg.Store.Bucket,
		"region": s.cfg.Store.Region,
		"s3_ok":  snap.StoreOK,
		"cache_ok": snap.RateLimiterOK,
		"chain_view": map[string]any{
			"netuid":        s.cfg.Chain.NetUID,
			"hotkeys_count": hotkeysCount,
			"last_sync":     lastSync,
		},
		"stats": s.stats.Stats(),
	})
}

// handleRateLimits reports the configured daily caps and the next UTC reset
// time, without consuming any budget itself (limit<=0 short-circuits
// CheckAndIncrement before it touches the store). It does not report
// today's usage: no counter is read from the store.
func (s *Server) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	res, err := s.limiter.CheckAndIncrement(r.Context(), ratelimit.ScopeGlobal, "", 0, now)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.cfg.RateLimit.Enabled,
		"limits": map[string]any{
			"daily_limit_per_miner":     s.cfg.RateLimit.DailyLimitPerMiner,
			"daily_limit_per_validator": s.cfg.RateLimit.DailyLimitPerValidator,
			"total_daily_limit":         s.cfg.RateLimit.TotalDailyLimit,
			"ip_daily_limit":            s.cfg.RateLimit.IPDailyLimit,
		},
		"reset_at": res.ResetAt,
	})
}

// handleCommitmentFormats documents the wire templates §4.4 validates
// against, so integrators can construct a commitment without reading source.
func (s *Server) handleCommitmentFormats(w http.ResponseWriter, r *http.Request) {
	res, err := s.limiter.CheckAndIncrement(r.Context(), ratelimit.ScopeIP, clientIP(r), s.cfg.RateLimit.IPDailyLimit, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily commitment-formats query limit reached"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"formats": map[string]string{
			string(commitment.PurposeDataAccess):       "s3:data:access:{coldkey}:{hotkey}:{timestamp}",
			string(commitment.PurposeValidatorAccess):  "s3:validator:access:{timestamp}",
			string(commitment.PurposeValidatorUpload):  "s3:validator:upload:{timestamp}",
			string(commitment.PurposeAssignmentCurrent): "zipcode:assignment:current:{timestamp}",
			string(commitment.PurposeValidation):       "zipcode:validation:{epoch_id}:{timestamp}",
		},
		"signature_scheme":      s.cfg.Chain.SignatureScheme,
		"timestamp_skew_seconds": int(config.ParseDuration(s.cfg.Server.TimestampSkew).Seconds()),
	})
}

// handleStructureInfo describes the persisted entities in §3 for
// integrators exploring the API without reading the schema migrations.
func (s *Server) handleStructureInfo(w http.ResponseWriter, r *http.Request) {
	res, err := s.limiter.CheckAndIncrement(r.Context(), ratelimit.ScopeIP, clientIP(r), s.cfg.RateLimit.IPDailyLimit, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily structure-info query limit reached"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": []map[string]any{
			{"name": "zipcode", "keyed_by": "zipcode", "description": "master zipcode row with selection history"},
			{"name": "epoch", "keyed_by": "id", "description": "4-hour UTC-aligned scheduling interval"},
			{"name": "epoch_assignment", "keyed_by": "epoch_id,zipcode", "description": "one zipcode assigned to an epoch"},
			{"name": "validator_result", "keyed_by": "epoch_id,validator_hotkey", "description": "audit row for a validator upload credential"},
		},
		"epoch_slot_hours_utc": []int{0, 4, 8, 12, 16, 20},
	})
}

// handleDocs and handleOpenAPI serve minimal schema documentation; neither
// reaches any dependency so they carry no deadline risk.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!doctype html><html><head><title>resi-labs-api</title></head>` +
		`<body><h1>resi-labs-api</h1><p>See <a href="/openapi.json">/openapi.json</a> for the machine-readable schema.</p></body></html>`))
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]string{"title": "resi-labs-api", "version": "1"},
		"paths": map[string]any{
			"/healthcheck":                               map[string]string{"get": "dependency probe snapshot"},
			"/rate-limits":                                map[string]string{"get": "current daily limits and usage"},
			"/get-folder-access":                          map[string]string{"post": "miner upload access"},
			"/get-validator-access":                       map[string]string{"post": "validator read access"},
			"/get-miner-specific-access":                  map[string]string{"post": "validator per-miner read access"},
			"/api/v1/s3-access/validator-upload":          map[string]string{"post": "validator result upload access"},
			"/api/v1/zipcode-assignments/current":         map[string]string{"get": "current epoch assignment"},
			"/api/v1/zipcode-assignments/epoch/{id}":      map[string]string{"get": "historical epoch assignment"},
			"/api/v1/zipcode-assignments/stats":           map[string]string{"get": "aggregate epoch counters"},
		},
	})
}
