package commitment

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/chain"
	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/verify"
)

// fakeChain is a fixed chain.View substitute for fixed-key scenarios.
type fakeChain struct {
	info map[string]chain.KeyInfo
}

func (f fakeChain) Lookup(_ context.Context, hotkey string) (chain.KeyInfo, error) {
	info, ok := f.info[hotkey]
	if !ok {
		return chain.KeyInfo{}, errs.New(errs.AuthUnknownKey, "not registered")
	}
	return info, nil
}

// fakeScheme reports a signature valid iff sig equals the literal bytes
// "VALID-FOR:" followed by the raw pk bytes.
type fakeScheme struct{}

func (fakeScheme) Name() string { return "fake" }

func (fakeScheme) Verify(pk, _, sig []byte) bool {
	want := append([]byte("VALID-FOR:"), pk...)
	if len(sig) != len(want) {
		return false
	}
	for i := range sig {
		if sig[i] != want[i] {
			return false
		}
	}
	return true
}

func sigFor(pkHex string) []byte {
	pk, err := hex.DecodeString(pkHex)
	if err != nil {
		panic(err)
	}
	return append([]byte("VALID-FOR:"), pk...)
}

func newTestValidator(ch fakeChain) *Validator {
	registry := verify.NewRegistry(fakeScheme{})
	return NewValidator(registry, "fake", ch, 5*time.Minute, time.Second)
}

// S1-equivalent: miner happy path.
func TestValidate_MinerHappyPath(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Unix()
	ch := fakeChain{info: map[string]chain.KeyInfo{"484b31": {Index: 1, Validator: false}}}
	v := newTestValidator(ch)

	raw := "s3:data:access:CK1:484b31:" + itoa(ts)
	req := Request{Purpose: PurposeDataAccess, Raw: raw, Signature: sigFor("484b31"), ExpectedHotkey: "484b31", ExpectedColdkey: "CK1"}

	ctxVal, err := v.Validate(context.Background(), req, now)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if ctxVal.Hotkey != "484b31" || ctxVal.Coldkey != "CK1" {
		t.Fatalf("unexpected auth context: %+v", ctxVal)
	}
}

// S2: stale timestamp is rejected regardless of signature validity.
func TestValidate_StaleTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	staleTs := now.Add(-1 * time.Hour).Unix()
	ch := fakeChain{info: map[string]chain.KeyInfo{"484b31": {}}}
	v := newTestValidator(ch)

	raw := "s3:validator:access:" + itoa(staleTs)
	req := Request{Purpose: PurposeValidatorAccess, Raw: raw, Signature: sigFor("484b31"), ExpectedHotkey: "484b31", RequireValidator: true}

	_, err := v.Validate(context.Background(), req, now)
	bErr, ok := errs.As(err)
	if !ok || bErr.Kind != errs.AuthSkew {
		t.Fatalf("expected AuthSkew, got %v", err)
	}
}

// S3: signature produced by a different key than the claimed hotkey.
func TestValidate_WrongKeySignature(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ch := fakeChain{info: map[string]chain.KeyInfo{"484b31": {}}}
	v := newTestValidator(ch)

	raw := "s3:validator:access:" + itoa(now.Unix())
	req := Request{Purpose: PurposeValidatorAccess, Raw: raw, Signature: sigFor("484b32"), ExpectedHotkey: "484b31", RequireValidator: true}

	_, err := v.Validate(context.Background(), req, now)
	bErr, ok := errs.As(err)
	if !ok || bErr.Kind != errs.AuthSignature {
		t.Fatalf("expected AuthSignature, got %v", err)
	}
}

// S4: a miner key attempting a validator-only endpoint.
func TestValidate_MinerAttemptsValidatorEndpoint(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ch := fakeChain{info: map[string]chain.KeyInfo{"484b31": {Validator: false}}}
	v := newTestValidator(ch)

	raw := "s3:validator:access:" + itoa(now.Unix())
	req := Request{Purpose: PurposeValidatorAccess, Raw: raw, Signature: sigFor("484b31"), ExpectedHotkey: "484b31", RequireValidator: true}

	_, err := v.Validate(context.Background(), req, now)
	bErr, ok := errs.As(err)
	if !ok || bErr.Kind != errs.AuthNotValidator {
		t.Fatalf("expected AuthNotValidator, got %v", err)
	}
}

func TestValidate_StakeBelowFloor(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ch := fakeChain{info: map[string]chain.KeyInfo{"484b31": {Validator: true, Stake: 10}}}
	v := newTestValidator(ch)

	raw := "s3:validator:access:" + itoa(now.Unix())
	req := Request{Purpose: PurposeValidatorAccess, Raw: raw, Signature: sigFor("484b31"), ExpectedHotkey: "484b31", RequireValidator: true, MinStake: 1000}

	_, err := v.Validate(context.Background(), req, now)
	bErr, ok := errs.As(err)
	if !ok || bErr.Kind != errs.AuthStake {
		t.Fatalf("expected AuthStake, got %v", err)
	}
}

func TestValidate_UnknownHotkey(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ch := fakeChain{info: map[string]chain.KeyInfo{}}
	v := newTestValidator(ch)

	raw := "s3:validator:access:" + itoa(now.Unix())
	req := Request{Purpose: PurposeValidatorAccess, Raw: raw, Signature: sigFor("484b31"), ExpectedHotkey: "484b31"}

	_, err := v.Validate(context.Background(), req, now)
	bErr, ok := errs.As(err)
	if !ok || bErr.Kind != errs.AuthUnknownKey {
		t.Fatalf("expected AuthUnknownKey, got %v", err)
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
