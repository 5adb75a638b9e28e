package credentials

import (
	"strings"
	"testing"
	"time"
)

func testMinter() *Minter {
	return NewMinter(Config{
		Bucket:           "resi-data",
		Region:           "us-east-2",
		AccessKeyID:      "AKIDTEST",
		SecretAccessKey:  "secret",
		MaxCredentialTTL: 24 * time.Hour,
	})
}

func TestMintUploadPolicy_ScopedToPrefix(t *testing.T) {
	m := testMinter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	policy, err := m.MintUploadPolicy("data/hotkey=HK1/", now, time.Hour, nil)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if !strings.HasPrefix(policy.Fields["key"], "data/hotkey=HK1/") {
		t.Fatalf("policy key field %q is not scoped to the requested prefix", policy.Fields["key"])
	}
	if !strings.Contains(policy.URL, "resi-data") {
		t.Fatalf("policy url does not reference the configured bucket: %s", policy.URL)
	}
	if policy.Expiry.Sub(now) != time.Hour {
		t.Fatalf("expected expiry = now+ttl, got %v", policy.Expiry)
	}
}

func TestMintUploadPolicy_TTLClampedToMax(t *testing.T) {
	m := testMinter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	policy, err := m.MintUploadPolicy("validators/HK1/epoch=2026-01-01-00:00/", now, 999*time.Hour, nil)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if policy.Expiry.Sub(now) != 24*time.Hour {
		t.Fatalf("expected ttl clamp to MaxCredentialTTL (24h), got %v", policy.Expiry.Sub(now))
	}
}

func TestValidateKeyWithinPrefix(t *testing.T) {
	if err := ValidateKeyWithinPrefix("data/hotkey=HK1/foo.parquet", "data/hotkey=HK1/"); err != nil {
		t.Fatalf("expected key within prefix to pass, got %v", err)
	}
	if err := ValidateKeyWithinPrefix("data/hotkey=HK2/foo.parquet", "data/hotkey=HK1/"); err == nil {
		t.Fatalf("expected key outside prefix to be rejected")
	}
}

func TestMintReadUrl_BoundToPrefix(t *testing.T) {
	m := testMinter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	url, err := m.MintReadUrl("data/hotkey=", now, time.Hour)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if url.Prefix != "data/hotkey=" {
		t.Fatalf("unexpected prefix: %s", url.Prefix)
	}
	if !strings.Contains(url.URL, "prefix=data/hotkey=") {
		t.Fatalf("url does not carry the prefix condition: %s", url.URL)
	}
}
