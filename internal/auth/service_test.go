package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"authgate.dev/internal/audit"
	"authgate.dev/internal/gate"
	"authgate.dev/internal/ratelimit"
)

type serviceFixture struct {
	svc     *Service
	store   *fakeStore
	hasher  *countingHasher
	limiter *ratelimit.Limiter
}

func newServiceFixture(t *testing.T, recs ...*CredentialRecord) *serviceFixture {
	t.Helper()
	store := newFakeStore(recs...)
	hasher := &countingHasher{}
	verifier, err := NewVerifier(store, hasher, gate.New(4))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	tokens, err := NewTokens(store, testSecret)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		Window:      10 * time.Minute,
		MaxAttempts: 3,
		Lockout:     15 * time.Minute,
	})
	svc, err := NewService(Deps{
		Store:    store,
		Verifier: verifier,
		Tokens:   tokens,
		Limiter:  limiter,
		Hasher:   hasher,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &serviceFixture{svc: svc, store: store, hasher: hasher, limiter: limiter}
}

func loginReq(pt PrincipalType, login, password string, tenant int64) LoginRequest {
	return LoginRequest{
		PrincipalType: pt,
		Login:         login,
		Password:      password,
		TenantID:      tenant,
		Request:       audit.RequestInfo{Route: "/v1/admin/login", Method: "POST", ClientIP: "198.51.100.7"},
	}
}

func TestLoginSuperuserIgnoresTenant(t *testing.T) {
	f := newServiceFixture(t, adminRecord(1, "root", "super-pw", RoleSuperuser, 0))

	res, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "root", "super-pw", 0))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if res.Principal.TenantID != 0 {
		t.Fatalf("superuser session must not be tenant scoped, got %d", res.Principal.TenantID)
	}
	id, err := f.svc.Authenticate(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ID != 1 || id.Role != RoleSuperuser {
		t.Fatalf("identity mismatch: %+v", id)
	}
	f.store.mu.Lock()
	touched := len(f.store.touched)
	f.store.mu.Unlock()
	if touched != 1 {
		t.Fatalf("expected last-login touch, got %d", touched)
	}
}

func TestLoginScopedAdminRequiresMatchingTenant(t *testing.T) {
	f := newServiceFixture(t, adminRecord(2, "mgr", "mgr-pw", RoleManager, 9))

	// Right tenant succeeds and the session carries it.
	res, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "mgr", "mgr-pw", 9))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Principal.TenantID != 9 {
		t.Fatalf("tenant scope lost: %+v", res.Principal)
	}

	// Missing or wrong tenant reads exactly like a bad password and does not
	// feed the failure counter.
	for _, tenant := range []int64{0, 8} {
		if _, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "mgr", "mgr-pw", tenant)); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("tenant %d: expected ErrInvalidCredentials, got %v", tenant, err)
		}
	}
	if n := f.limiter.Len(); n != 0 {
		t.Fatalf("tenant mismatch must not register limiter failures, got %d keys", n)
	}
}

func TestLoginGuardianIgnoresRequestTenant(t *testing.T) {
	f := newServiceFixture(t, guardianRecord(3, "watcher", "guard-pw", 9))

	res, err := f.svc.Login(context.Background(), loginReq(PrincipalGuardian, "watcher", "guard-pw", 0))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Principal.TenantID != 9 {
		t.Fatalf("guardian session must carry the record tenant, got %d", res.Principal.TenantID)
	}
}

func TestLoginRejectsMalformedInputBeforeAnyWork(t *testing.T) {
	f := newServiceFixture(t, adminRecord(1, "root", "super-pw", RoleSuperuser, 0))

	cases := []LoginRequest{
		loginReq(PrincipalAdmin, "", "super-pw", 0),
		loginReq(PrincipalAdmin, "root", "", 0),
		loginReq(PrincipalType("robot"), "root", "super-pw", 0),
		loginReq(PrincipalAdmin, string(make([]byte, 200)), "pw", 0),
	}
	for i, req := range cases {
		if _, err := f.svc.Login(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
	if got := f.hasher.verifies.Load(); got != 0 {
		t.Fatalf("validation must precede hashing, saw %d hash calls", got)
	}
	if n := f.limiter.Len(); n != 0 {
		t.Fatalf("validation failures must not touch the limiter, got %d keys", n)
	}
}

func TestLoginLocksOutAfterRepeatedFailures(t *testing.T) {
	f := newServiceFixture(t, adminRecord(1, "root", "super-pw", RoleSuperuser, 0))

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "root", "wrong", 0)); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	hashesBefore := f.hasher.verifies.Load()

	_, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "root", "super-pw", 0))
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("RateLimitedError must match ErrRateLimited")
	}
	if secs := rl.RetryAfterSeconds(); secs < 1 || secs > 900 {
		t.Fatalf("retry-after out of range: %d", secs)
	}
	// A locked attempt is rejected before any credential work.
	if got := f.hasher.verifies.Load(); got != hashesBefore {
		t.Fatalf("locked attempt ran %d extra hash checks", got-hashesBefore)
	}
}

func TestLoginCaseInsensitiveLimiterSharedAcrossSpellings(t *testing.T) {
	f := newServiceFixture(t, adminRecord(1, "root", "super-pw", RoleSuperuser, 0))

	for _, login := range []string{"Root", "ROOT", "root"} {
		if _, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, login, "wrong", 0)); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", login, err)
		}
	}
	if _, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "root", "super-pw", 0)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected shared lockout across spellings, got %v", err)
	}
}

func TestLoginSurfacesStoreOutage(t *testing.T) {
	f := newServiceFixture(t)
	f.store.findErr = errors.New("dial tcp: connection refused")

	if _, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "root", "super-pw", 0)); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if n := f.limiter.Len(); n != 0 {
		t.Fatalf("infrastructure failures must not register limiter failures, got %d keys", n)
	}
}

func TestLoginSucceedsWhenTouchFails(t *testing.T) {
	f := newServiceFixture(t, adminRecord(1, "root", "super-pw", RoleSuperuser, 0))
	f.store.touchErr = errors.New("deadlock detected")

	if _, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "root", "super-pw", 0)); err != nil {
		t.Fatalf("last-login bookkeeping must be best effort, got %v", err)
	}
}

func TestRefreshKeepsScope(t *testing.T) {
	f := newServiceFixture(t, adminRecord(2, "mgr", "mgr-pw", RoleManager, 9))

	res, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "mgr", "mgr-pw", 9))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	fresh, err := f.svc.Refresh(context.Background(), res.Token, audit.RequestInfo{Route: "/v1/auth/refresh"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	id, err := f.svc.Authenticate(context.Background(), fresh.Token)
	if err != nil {
		t.Fatalf("Authenticate refreshed: %v", err)
	}
	if id.ID != 2 || id.TenantID != 9 || id.Role != RoleManager {
		t.Fatalf("refresh changed scope: %+v", id)
	}
}

func TestRefreshRejectsInvalidToken(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.Refresh(context.Background(), "bogus", audit.RequestInfo{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	rec := adminRecord(2, "mgr", "old-pw", RoleManager, 9)
	rec.MustRotatePassword = true
	f := newServiceFixture(t, rec)
	id := Identity{ID: 2, Login: "mgr", PrincipalType: PrincipalAdmin, Role: RoleManager, Status: StatusActive, TenantID: 9}
	req := audit.RequestInfo{Route: "/v1/auth/password", ClientIP: "198.51.100.7"}

	if err := f.svc.ChangePassword(context.Background(), id, "wrong", "new-password", req); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if n := f.limiter.Len(); n != 1 {
		t.Fatalf("wrong current password must count as a failure, got %d keys", n)
	}
	if err := f.svc.ChangePassword(context.Background(), id, "old-pw", "short", req); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if err := f.svc.ChangePassword(context.Background(), id, "old-pw", "new-password", req); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rec.MustRotatePassword {
		t.Fatal("rotation flag not cleared")
	}
	// Old password is dead, new one works.
	if _, err := f.svc.Login(context.Background(), loginReq(PrincipalAdmin, "mgr", "new-password", 9)); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
