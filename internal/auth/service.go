package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate.dev/internal/audit"
	"authgate.dev/internal/obs"
	"authgate.dev/internal/ratelimit"
)

const (
	maxLoginLength    = 128
	maxPasswordLength = 1024
	minPasswordLength = 8
)

// Deps are the collaborators a Service needs. Audit may be nil; everything
// else is required.
type Deps struct {
	Store    CredentialStore
	Verifier *Verifier
	Tokens   *Tokens
	Limiter  *ratelimit.Limiter
	Hasher   Hasher
	Audit    *audit.Recorder
}

// Service drives the login flow for both principal classes. It owns no global
// state: each instance carries its own limiter and gate, so tests construct
// isolated services.
type Service struct {
	store    CredentialStore
	verifier *Verifier
	tokens   *Tokens
	limiter  *ratelimit.Limiter
	hasher   Hasher
	audit    *audit.Recorder
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(deps Deps, opts ...ServiceOption) (*Service, error) {
	if deps.Store == nil || deps.Verifier == nil || deps.Tokens == nil || deps.Limiter == nil || deps.Hasher == nil {
		return nil, errors.New("auth: service is missing required dependencies")
	}
	s := &Service{
		store:    deps.Store,
		verifier: deps.Verifier,
		tokens:   deps.Tokens,
		limiter:  deps.Limiter,
		hasher:   deps.Hasher,
		audit:    deps.Audit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginRequest is one credential login attempt.
type LoginRequest struct {
	PrincipalType PrincipalType
	Login         string
	Password      string
	// TenantID is the caller-supplied tenant scope, meaningful only for panel
	// principals with non-exempt roles.
	TenantID int64
	Request  audit.RequestInfo
}

// LoginResult is a successful login outcome.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal Summary
}

// Login runs the full attempt: rate gate, lookup, timing-equalized password
// check, tenant validation, token issuance, audit. Unknown identifier, wrong
// password, inactive account, and tenant mismatch all surface as
// ErrInvalidCredentials so the response shape leaks nothing.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if err := validateLogin(req); err != nil {
		// Malformed payloads are rejected before rate-limit or store access
		// and are not registered as credential failures.
		return LoginResult{}, err
	}
	clientID := req.Request.ClientIP
	if clientID == "" {
		clientID = "unknown"
	}
	pt := string(req.PrincipalType)

	if d := s.limiter.Check(clientID, req.Login); !d.Allowed {
		obs.ObserveRateLimited()
		obs.ObserveLogin(pt, "rate_limited")
		s.audit.Record(audit.KindLogin, req.Request, 429, 0, pt, map[string]any{"reason": "rate_limited"})
		return LoginResult{}, &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	matched, rec, err := s.verifier.Verify(ctx, req.PrincipalType, req.Login, req.Password)
	if err != nil {
		obs.ObserveLogin(pt, "error")
		s.audit.Record(audit.KindLogin, req.Request, 500, 0, pt, nil)
		return LoginResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !matched {
		s.limiter.RegisterFailure(clientID, req.Login)
		obs.ObserveLogin(pt, "failure")
		s.audit.Record(audit.KindLogin, req.Request, 401, 0, pt, map[string]any{"login": req.Login})
		return LoginResult{}, ErrInvalidCredentials
	}

	tenantID := rec.TenantID
	if req.PrincipalType == PrincipalAdmin {
		if TenantExempt(rec.Role) {
			tenantID = 0
		} else if req.TenantID <= 0 || req.TenantID != rec.TenantID {
			// Correct password, wrong or missing tenant scope. The external
			// surface stays identical to a bad password; the true reason
			// lives only in the audit trail. The verification itself did not
			// fail, so the limiter is not fed.
			obs.ObserveLogin(pt, "failure")
			s.audit.Record(audit.KindLogin, req.Request, 401, rec.ID, pt, map[string]any{"reason": "tenant_mismatch"})
			return LoginResult{}, ErrInvalidCredentials
		}
	}

	token, expiresAt, err := s.tokens.Issue(rec.ID, rec.PrincipalType, rec.Role, tenantID)
	if err != nil {
		obs.ObserveLogin(pt, "error")
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	if err := s.store.TouchLastLogin(ctx, req.PrincipalType, rec.ID, s.now().UTC()); err != nil {
		// Best effort: a stale last_login_at never fails the login.
		obs.Error("touch last login failed", err, map[string]any{"subject": rec.ID})
	}

	obs.ObserveLogin(pt, "success")
	s.audit.Record(audit.KindLogin, req.Request, 200, rec.ID, pt, nil)

	return LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Principal: Summary{
			ID:                 rec.ID,
			Login:              rec.Login,
			PrincipalType:      rec.PrincipalType,
			Role:               rec.Role,
			TenantID:           tenantID,
			MustRotatePassword: rec.MustRotatePassword,
		},
	}, nil
}

// Authenticate verifies a bearer token against live account state.
func (s *Service) Authenticate(ctx context.Context, token string, allowedRoles ...string) (Identity, error) {
	return s.tokens.Verify(ctx, token, allowedRoles...)
}

// Refresh exchanges a still-valid token for a fresh one with the same scope,
// re-checked against the live record.
func (s *Service) Refresh(ctx context.Context, token string, req audit.RequestInfo) (LoginResult, error) {
	id, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return LoginResult{}, err
	}
	tenantID := id.TenantID
	if id.PrincipalType == PrincipalAdmin && TenantExempt(id.Role) {
		tenantID = 0
	}
	fresh, expiresAt, err := s.tokens.Issue(id.ID, id.PrincipalType, id.Role, tenantID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	s.audit.Record(audit.KindRefresh, req, 200, id.ID, string(id.PrincipalType), nil)
	return LoginResult{
		Token:     fresh,
		ExpiresAt: expiresAt,
		Principal: Summary{
			ID:            id.ID,
			Login:         id.Login,
			PrincipalType: id.PrincipalType,
			Role:          id.Role,
			TenantID:      tenantID,
		},
	}, nil
}

// Logout records the event. Tokens stay valid until expiry; there is no
// revocation list.
func (s *Service) Logout(id Identity, req audit.RequestInfo) {
	s.audit.Record(audit.KindLogout, req, 200, id.ID, string(id.PrincipalType), nil)
}

// ChangePassword re-verifies the current password through the hash gate, then
// stores the new digest and clears the rotation flag.
func (s *Service) ChangePassword(ctx context.Context, id Identity, current, next string, req audit.RequestInfo) error {
	if len(next) < minPasswordLength || len(next) > maxPasswordLength {
		return fmt.Errorf("%w: new password length out of bounds", ErrInvalidInput)
	}
	clientID := req.ClientIP
	if clientID == "" {
		clientID = "unknown"
	}

	matched, _, err := s.verifier.Verify(ctx, id.PrincipalType, id.Login, current)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !matched {
		s.limiter.RegisterFailure(clientID, id.Login)
		return ErrInvalidCredentials
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, id.PrincipalType, id.ID, digest); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.audit.Record(audit.KindLogin, req, 200, id.ID, string(id.PrincipalType), map[string]any{"action": "password_change"})
	return nil
}

// RecordDenied audits a denied authenticated request.
func (s *Service) RecordDenied(kind audit.Kind, req audit.RequestInfo, statusCode int, subjectID int64) {
	s.audit.Record(kind, req, statusCode, subjectID, "", nil)
}

func validateLogin(req LoginRequest) error {
	if !req.PrincipalType.Valid() {
		return fmt.Errorf("%w: unknown principal type", ErrInvalidInput)
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || len(login) > maxLoginLength {
		return fmt.Errorf("%w: login length out of bounds", ErrInvalidInput)
	}
	if req.Password == "" || len(req.Password) > maxPasswordLength {
		return fmt.Errorf("%w: password length out of bounds", ErrInvalidInput)
	}
	return nil
}
