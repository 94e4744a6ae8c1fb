package auth

import (
	"context"
	"errors"
	"fmt"

	"authgate.dev/internal/gate"
)

// Verifier performs credential lookups and timing-equalized password checks.
//
// The dummy digest is computed once at construction and held for the process
// lifetime. Every Verify call runs exactly one hash verification through the
// gate, against the real digest when a record exists and against the dummy
// otherwise, so the latency distributions for "unknown identifier" and "wrong
// password" are indistinguishable.
type Verifier struct {
	store  CredentialStore
	hasher Hasher
	gate   *gate.Gate
	dummy  string
}

// NewVerifier constructs a Verifier, precomputing the dummy reference digest.
func NewVerifier(store CredentialStore, hasher Hasher, g *gate.Gate) (*Verifier, error) {
	if store == nil || hasher == nil || g == nil {
		return nil, fmt.Errorf("%w: verifier requires store, hasher, and gate", ErrInvalidInput)
	}
	dummy, err := hasher.Hash("authgate-timing-reference")
	if err != nil {
		return nil, fmt.Errorf("precompute dummy digest: %w", err)
	}
	return &Verifier{store: store, hasher: hasher, gate: g, dummy: dummy}, nil
}

// Verify looks up the active credential record for the exact login identifier
// and checks the password. A missing record is not an error: it yields
// matched=false with a nil record after the dummy verification has run.
// Failures inside the hash primitive are treated as a failed match.
func (v *Verifier) Verify(ctx context.Context, pt PrincipalType, login, password string) (bool, *CredentialRecord, error) {
	rec, err := v.store.FindActiveByLogin(ctx, pt, login)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		rec = nil
	default:
		return false, nil, fmt.Errorf("lookup credential: %w", err)
	}

	digest := v.dummy
	if rec != nil {
		digest = rec.PasswordDigest
	}

	var verifyErr error
	if err := v.gate.Do(ctx, func() error {
		verifyErr = v.hasher.Verify(digest, password)
		return nil
	}); err != nil {
		// Gate admission failed (caller hung up); the slot was never held.
		return false, nil, err
	}

	// Short-circuit on a missing record regardless of what the dummy check
	// reported.
	if rec == nil {
		return false, nil, nil
	}
	return verifyErr == nil, rec, nil
}
