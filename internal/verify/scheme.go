// Package verify implements C2: a pure, CPU-bound signature check. The
// verifier is pluggable per chain (§9 "make verify a capability, not a
// hardcoded function") — the core never assumes a curve.
package verify

import (
	"context"
	"fmt"
	"time"
)

// Scheme is the capability every signature curve implements. It must not
// retain its inputs and must be safe to call concurrently.
type Scheme interface {
	Name() string
	Verify(pk, msg, sig []byte) bool
}

type Registry struct {
	schemes map[string]Scheme
}

func NewRegistry(schemes ...Scheme) *Registry {
	r := &Registry{schemes: make(map[string]Scheme, len(schemes))}
	for _, s := range schemes {
		r.schemes[s.Name()] = s
	}
	return r
}

func (r *Registry) Get(name string) (Scheme, bool) {
	s, ok := r.schemes[name]
	return s, ok
}

// Verify runs the named scheme's check under a deadline
// (SIGNATURE_VERIFICATION_TIMEOUT). Verification itself is CPU-only and
// never suspends, but the deadline still bounds a pathological
// implementation from blocking the caller indefinitely.
func Verify(ctx context.Context, scheme Scheme, pk, msg, sig []byte, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	done := make(chan bool, 1)
	go func() {
		done <- scheme.Verify(pk, msg, sig)
	}()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case ok := <-done:
		return ok, nil
	case <-tctx.Done():
		return false, fmt.Errorf("signature verification timed out after %s", timeout)
	}
}
