package httpapi

import (
	"net/http"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/commitment"
	"github.com/resi-labs-ai/resi-labs-api/internal/config"
	"github.com/resi-labs-ai/resi-labs-api/internal/credentials"
	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/ratelimit"
)

type folderAccessRequest struct {
	Coldkey   string `json:"coldkey"`
	Hotkey    string `json:"hotkey"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// handleFolderAccess is the miner upload access endpoint: a data-access
// commitment scoped to the signer's own hotkey folder.
func (s *Server) handleFolderAccess(w http.ResponseWriter, r *http.Request) {
	var body folderAccessRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	sig, err := decodeSignature(body.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	auth, err := s.validator.Validate(r.Context(), commitment.Request{
		Purpose:         commitment.PurposeDataAccess,
		Raw:             rawDataAccess(body.Coldkey, body.Hotkey, body.Timestamp),
		Signature:       sig,
		ExpectedHotkey:  body.Hotkey,
		ExpectedColdkey: body.Coldkey,
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.limiter.CheckAll(r.Context(), []ratelimit.Check{
		{Scope: ratelimit.ScopeMiner, ID: auth.Hotkey, Limit: s.cfg.RateLimit.DailyLimitPerMiner},
		{Scope: ratelimit.ScopeGlobal, ID: "", Limit: s.cfg.RateLimit.TotalDailyLimit},
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily upload limit reached"))
		return
	}

	folder := "data/hotkey=" + auth.Hotkey + "/"
	ttl := config.ParseDuration(s.cfg.Server.MaxCredentialTTL)

	policy, err := s.minter.MintUploadPolicy(folder, now, ttl, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	listURL, err := s.minter.MintReadUrl(folder, now, ttl)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"folder":   folder,
		"url":      policy.URL,
		"fields":   policy.Fields,
		"expiry":   policy.Expiry,
		"list_url": listURL.URL,
	})
}

type validatorAccessRequest struct {
	Hotkey    string `json:"hotkey"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// handleValidatorAccess grants a validator both a global read URL and a
// per-miner read URL map, enumerated from the current chain snapshot's
// non-validator entries.
func (s *Server) handleValidatorAccess(w http.ResponseWriter, r *http.Request) {
	var body validatorAccessRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	sig, err := decodeSignature(body.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	auth, err := s.validator.Validate(r.Context(), commitment.Request{
		Purpose:          commitment.PurposeValidatorAccess,
		Raw:              rawValidatorAccess(body.Timestamp),
		Signature:        sig,
		ExpectedHotkey:   body.Hotkey,
		RequireValidator: true,
		MinStake:         s.cfg.Advanced.ValidatorMinStake,
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.limiter.CheckAll(r.Context(), []ratelimit.Check{
		{Scope: ratelimit.ScopeValidator, ID: auth.Hotkey, Limit: s.cfg.RateLimit.DailyLimitPerValidator},
		{Scope: ratelimit.ScopeGlobal, ID: "", Limit: s.cfg.RateLimit.TotalDailyLimit},
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily validator access limit reached"))
		return
	}

	ttl := config.ParseDuration(s.cfg.Server.MaxCredentialTTL)

	globalURL, err := s.minter.MintReadUrl("data/", now, ttl)
	if err != nil {
		writeError(w, err)
		return
	}

	miners := map[string]string{}
	if snap := s.chainView.Snapshot(); snap != nil {
		for hotkey, info := range snap.Keys {
			if info.Validator {
				continue
			}
			url, err := s.minter.MintReadUrl("data/hotkey="+hotkey+"/", now, ttl)
			if err != nil {
				writeError(w, err)
				return
			}
			miners[hotkey] = url.URL
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":           s.cfg.Store.Bucket,
		"region":           s.cfg.Store.Region,
		"validator_hotkey": auth.Hotkey,
		"expiry":           globalURL.Expiry,
		"urls": map[string]any{
			"global": map[string]string{"list_url": globalURL.URL},
			"miners": miners,
		},
	})
}

type minerSpecificAccessRequest struct {
	Hotkey      string `json:"hotkey"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
	MinerHotkey string `json:"miner_hotkey"`
}

// handleMinerSpecificAccess scopes a validator's read access down to a
// single miner's folder, for validators that prefer not to enumerate the
// full fleet.
func (s *Server) handleMinerSpecificAccess(w http.ResponseWriter, r *http.Request) {
	var body minerSpecificAccessRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	sig, err := decodeSignature(body.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.MinerHotkey == "" {
		writeError(w, errs.New(errs.AuthMalformed, "miner_hotkey is required"))
		return
	}

	now := time.Now()
	auth, err := s.validator.Validate(r.Context(), commitment.Request{
		Purpose:          commitment.PurposeValidatorAccess,
		Raw:              rawValidatorAccess(body.Timestamp),
		Signature:        sig,
		ExpectedHotkey:   body.Hotkey,
		RequireValidator: true,
		MinStake:         s.cfg.Advanced.ValidatorMinStake,
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.limiter.CheckAll(r.Context(), []ratelimit.Check{
		{Scope: ratelimit.ScopeValidator, ID: auth.Hotkey, Limit: s.cfg.RateLimit.DailyLimitPerValidator},
		{Scope: ratelimit.ScopeGlobal, ID: "", Limit: s.cfg.RateLimit.TotalDailyLimit},
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily validator access limit reached"))
		return
	}

	prefix := "data/hotkey=" + body.MinerHotkey + "/"
	ttl := config.ParseDuration(s.cfg.Server.MaxCredentialTTL)
	url, err := s.minter.MintReadUrl(prefix, now, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := credentials.ValidateKeyWithinPrefix(url.Prefix, prefix); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":       s.cfg.Store.Bucket,
		"region":       s.cfg.Store.Region,
		"miner_hotkey": body.MinerHotkey,
		"miner_url":    url.URL,
		"prefix":       prefix,
		"expiry":       url.Expiry,
	})
}

type validatorUploadRequest struct {
	Hotkey    string `json:"hotkey"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	EpochID   string `json:"epoch_id"`
}

// handleValidatorUpload mints a write-scoped credential for a validator to
// publish its results against a concluded epoch, via C11.
func (s *Server) handleValidatorUpload(w http.ResponseWriter, r *http.Request) {
	var body validatorUploadRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	sig, err := decodeSignature(body.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.EpochID == "" {
		writeError(w, errs.New(errs.AuthMalformed, "epoch_id is required"))
		return
	}

	now := time.Now()
	auth, err := s.validator.Validate(r.Context(), commitment.Request{
		Purpose:          commitment.PurposeValidatorUpload,
		Raw:              rawValidatorUpload(body.Timestamp),
		Signature:        sig,
		ExpectedHotkey:   body.Hotkey,
		RequireValidator: true,
		MinStake:         s.cfg.Advanced.ValidatorMinStake,
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.limiter.CheckAll(r.Context(), []ratelimit.Check{
		{Scope: ratelimit.ScopeValidator, ID: auth.Hotkey, Limit: s.cfg.RateLimit.DailyLimitPerValidator},
		{Scope: ratelimit.ScopeGlobal, ID: "", Limit: s.cfg.RateLimit.TotalDailyLimit},
	}, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.OK {
		writeError(w, errs.New(errs.RateExceeded, "daily validator access limit reached"))
		return
	}

	policy, err := s.uploadSvc.MintUploadAccess(r.Context(), auth.Hotkey, body.EpochID, now)
	if err != nil {
		writeError(w, err)
		return
	}

	// secret_key and session_token stay empty: the minter never hands out the
	// account's long-term secret, only a browser-postable signed policy, so
	// there is no STS session to report here.
	writeJSON(w, http.StatusOK, map[string]any{
		"s3_credentials": map[string]any{
			"access_key":    s.cfg.Store.AccessKeyID,
			"secret_key":    "",
			"session_token": "",
			"bucket":        policy.Bucket,
			"prefix":        policy.KeyPrefix,
			"expiry":        policy.Expiry,
		},
		"upload_guidelines": map[string]any{
			"min_object_size_bytes": credentials.MinObjectSize,
			"max_object_size_bytes": credentials.MaxObjectSize,
			"key_template":          policy.KeyPrefix + "{filename}",
		},
	})
}
