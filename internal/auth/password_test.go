package auth

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"authgate.dev/internal/gate"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	digest, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if digest == "correct horse battery staple" {
		t.Fatal("digest must not equal the password")
	}
	if err := h.Verify(digest, "correct horse battery staple"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := h.Verify(digest, "wrong"); err == nil {
		t.Fatal("wrong password must not verify")
	}
}

func TestBcryptHasherRejectsEmptyInputs(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	if _, err := h.Hash(""); err == nil {
		t.Fatal("empty password must not hash")
	}
	if err := h.Verify("", "pw"); err == nil {
		t.Fatal("empty digest must not verify")
	}
}

func TestVerifierWithBcrypt(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	digest, err := h.Hash("real-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	rec := adminRecord(1, "alice", "", RoleSuperuser, 0)
	rec.PasswordDigest = digest
	store := newFakeStore(rec)

	v, err := NewVerifier(store, h, gate.New(2))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	matched, _, err := v.Verify(context.Background(), PrincipalAdmin, "alice", "real-password")
	if err != nil || !matched {
		t.Fatalf("expected match, got matched=%v err=%v", matched, err)
	}
	matched, _, err = v.Verify(context.Background(), PrincipalAdmin, "unknown-user", "real-password")
	if err != nil || matched {
		t.Fatalf("dummy digest must never match, got matched=%v err=%v", matched, err)
	}
}
