package verify

import (
	"context"
	"testing"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	mrand "math/rand"
)

func TestEd25519Scheme_ValidSignature(t *testing.T) {
	priv, pub, err := libp2pcrypto.GenerateEd25519Key(mrand.New(mrand.NewSource(1)))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("s3:data:access:CK1:HK1:1700000000")
	sig, err := priv.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pkBytes, err := pub.Raw()
	if err != nil {
		t.Fatalf("raw pubkey: %v", err)
	}

	scheme := NewEd25519Scheme()
	if !scheme.Verify(pkBytes, msg, sig) {
		t.Fatalf("expected valid signature to verify")
	}
}

func TestEd25519Scheme_WrongKeySignature(t *testing.T) {
	priv1, _, err := libp2pcrypto.GenerateEd25519Key(mrand.New(mrand.NewSource(1)))
	if err != nil {
		t.Fatalf("generate key 1: %v", err)
	}
	_, pub2, err := libp2pcrypto.GenerateEd25519Key(mrand.New(mrand.NewSource(2)))
	if err != nil {
		t.Fatalf("generate key 2: %v", err)
	}

	msg := []byte("s3:validator:access:1700000000")
	sig, err := priv1.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pk2Bytes, err := pub2.Raw()
	if err != nil {
		t.Fatalf("raw pubkey: %v", err)
	}

	scheme := NewEd25519Scheme()
	if scheme.Verify(pk2Bytes, msg, sig) {
		t.Fatalf("expected signature from a different key to fail verification")
	}
}

func TestVerify_Timeout(t *testing.T) {
	slow := slowScheme{delay: 200 * time.Millisecond}
	ok, err := Verify(context.Background(), slow, nil, nil, nil, 10*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error, got ok=%v", ok)
	}
}

type slowScheme struct {
	delay time.Duration
}

func (slowScheme) Name() string { return "slow" }

func (s slowScheme) Verify(_, _, _ []byte) bool {
	time.Sleep(s.delay)
	return true
}
