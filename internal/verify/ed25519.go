// Ed25519Scheme is grounded on the go-libp2p crypto package's ed25519
// wrapper, the only ed25519 verification surface present anywhere in the
// retrieved example corpus.
package verify

import (
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
)

type Ed25519Scheme struct{}

func NewEd25519Scheme() *Ed25519Scheme { return &Ed25519Scheme{} }

func (Ed25519Scheme) Name() string { return "ed25519" }

func (Ed25519Scheme) Verify(pk, msg, sig []byte) bool {
	pub, err := libp2pcrypto.UnmarshalEd25519PublicKey(pk)
	if err != nil {
		return false
	}
	ok, err := pub.Verify(msg, sig)
	if err != nil {
		return false
	}
	return ok
}

// Sr25519Scheme has no concrete implementation: no sr25519 library appears
// anywhere in the retrieved example corpus (go-libp2p's crypto package
// covers ed25519/secp256k1/RSA/ECDSA only). The slot exists so the registry
// can take one once a real sr25519 verification library is available,
// instead of faking the cryptography.
type Sr25519Scheme struct{}

func (Sr25519Scheme) Name() string { return "sr25519" }

func (Sr25519Scheme) Verify(_, _, _ []byte) bool { return false }
