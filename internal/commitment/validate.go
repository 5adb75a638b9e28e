package commitment

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/chain"
	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/verify"
)

// AuthContext is the result of a successful validation: everything a
// downstream handler needs, and nothing it must re-derive.
type AuthContext struct {
	Role      Role
	Hotkey    string
	Coldkey   string
	ChainInfo chain.KeyInfo
}

// Request is everything the commitment validator needs to authenticate one
// call, independent of transport (works the same whether the fields arrived
// in the JSON body or in headers).
type Request struct {
	Purpose          Purpose
	Raw              string // the exact commitment string the peer signed
	Signature        []byte
	ExpectedHotkey   string
	ExpectedColdkey  string // "" if the endpoint does not bind a coldkey
	RequireValidator bool
	MinStake         int64 // 0 disables the stake floor
}

// ChainLookup is the narrow view of C1 that C4 depends on — satisfied by
// *chain.View in production and by a fake in tests.
type ChainLookup interface {
	Lookup(ctx context.Context, hotkey string) (chain.KeyInfo, error)
}

type Validator struct {
	schemes    *verify.Registry
	schemeName string
	view       ChainLookup
	skew       time.Duration
	sigTimeout time.Duration
}

func NewValidator(schemes *verify.Registry, schemeName string, view ChainLookup, skew, sigTimeout time.Duration) *Validator {
	return &Validator{schemes: schemes, schemeName: schemeName, view: view, skew: skew, sigTimeout: sigTimeout}
}

// Validate runs the fixed pipeline from §4.4: parse -> skew -> signature ->
// registration -> role. No request body content changes the order of these
// steps — that is a deliberate side-channel defense, not an optimization.
func (v *Validator) Validate(ctx context.Context, req Request, now time.Time) (*AuthContext, error) {
	c, ok := v.parse(req)
	if !ok {
		return nil, errs.New(errs.AuthMalformed, "commitment does not match the expected template")
	}
	if c.SignerHotkey != "" && req.ExpectedHotkey != "" && c.SignerHotkey != req.ExpectedHotkey {
		return nil, errs.New(errs.AuthMalformed, "commitment hotkey does not match request hotkey")
	}
	if req.ExpectedColdkey != "" && c.Coldkey != "" && c.Coldkey != req.ExpectedColdkey {
		return nil, errs.New(errs.AuthMalformed, "commitment coldkey does not match request coldkey")
	}

	hotkey := req.ExpectedHotkey
	if hotkey == "" {
		hotkey = c.SignerHotkey
	}
	if hotkey == "" {
		return nil, errs.New(errs.AuthMalformed, "no signer hotkey present")
	}

	// Step 2: skew.
	age := now.Unix() - c.Timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > v.skew {
		return nil, errs.New(errs.AuthSkew, "commitment timestamp outside the freshness window")
	}

	// Step 3: signature, under a deadline, never retried.
	scheme, ok := v.schemes.Get(v.schemeName)
	if !ok {
		return nil, errs.New(errs.Internal, "no signature scheme configured")
	}
	pk, err := hex.DecodeString(hotkey)
	if err != nil {
		return nil, errs.New(errs.AuthMalformed, "hotkey is not valid hex")
	}
	ok, err = verify.Verify(ctx, scheme, pk, []byte(c.Raw), req.Signature, v.sigTimeout)
	if err != nil {
		return nil, errs.Wrap(errs.DependencyUnavailable, "signature verification timed out", err)
	}
	if !ok {
		return nil, errs.New(errs.AuthSignature, "signature verification failed")
	}

	// Step 4: chain registration and, for validator endpoints, stake floor.
	info, err := v.view.Lookup(ctx, hotkey)
	if err != nil {
		return nil, err
	}
	if req.RequireValidator {
		if !info.Validator {
			return nil, errs.New(errs.AuthNotValidator, "endpoint requires validator status")
		}
		if req.MinStake > 0 && int64(info.Stake) < req.MinStake {
			return nil, errs.New(errs.AuthStake, "validator stake below required floor")
		}
	}

	role := RoleMiner
	if req.RequireValidator {
		role = RoleValidator
	}

	return &AuthContext{
		Role:      role,
		Hotkey:    hotkey,
		Coldkey:   c.Coldkey,
		ChainInfo: info,
	}, nil
}

func (v *Validator) parse(req Request) (Commitment, bool) {
	switch req.Purpose {
	case PurposeDataAccess:
		return ParseDataAccess(req.Raw)
	case PurposeValidatorAccess:
		return ParseValidatorAccess(req.Raw)
	case PurposeValidatorUpload:
		return ParseValidatorUpload(req.Raw)
	case PurposeAssignmentCurrent:
		return ParseAssignmentCurrent(req.Raw)
	case PurposeValidation:
		return ParseValidation(req.Raw)
	default:
		return Commitment{}, false
	}
}
