package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 12 * time.Hour

// Claims are the signed session-token claims.
type Claims struct {
	PrincipalType PrincipalType `json:"ptype"`
	Role          string        `json:"role,omitempty"`
	TenantID      int64         `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

// Tokens mints and verifies scoped session tokens. Verification never trusts
// stale claims beyond identity: it re-fetches the live account record and
// enforces status, role, and tenant consistency against it.
type Tokens struct {
	store    CredentialStore
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// TokensOption configures Tokens.
type TokensOption func(*Tokens)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokensOption {
	return func(t *Tokens) {
		if issuer != "" {
			t.issuer = issuer
		}
	}
}

// WithAudience overrides the audience claim.
func WithAudience(audience string) TokensOption {
	return func(t *Tokens) {
		if audience != "" {
			t.audience = audience
		}
	}
}

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) TokensOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokensOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens constructs Tokens. An empty signing secret is a configuration
// error and fails construction, not individual requests.
func NewTokens(store CredentialStore, secret string, opts ...TokensOption) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	if store == nil {
		return nil, errors.New("auth: tokens require a credential store")
	}
	t := &Tokens{
		store:    store,
		secret:   []byte(secret),
		issuer:   "authgate",
		audience: "authgate",
		ttl:      defaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue signs a token for the principal. It performs no store access and
// trusts the caller's prior tenant validation, but it refuses claim shapes
// that violate the scoping invariant: the tenant scope is empty exactly when
// the role is tenant-exempt.
func (t *Tokens) Issue(id int64, pt PrincipalType, role string, tenantID int64) (string, time.Time, error) {
	if id <= 0 || !pt.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: principal id and type are required", ErrInvalidInput)
	}
	if pt == PrincipalAdmin {
		if TenantExempt(role) {
			tenantID = 0
		} else if tenantID <= 0 {
			return "", time.Time{}, fmt.Errorf("%w: tenant scope required for role %s", ErrInvalidInput, role)
		}
	}

	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		PrincipalType: pt,
		Role:          role,
		TenantID:      tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			Subject:   strconv.FormatInt(id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates the token and re-checks the subject against live account
// state. allowedRoles restricts panel principals; an empty set admits any
// role. On success it returns the immutable identity for downstream
// authorization.
func (t *Tokens) Verify(ctx context.Context, token string, allowedRoles ...string) (Identity, error) {
	claims, err := t.decode(token)
	if err != nil {
		return Identity{}, err
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subject <= 0 {
		return Identity{}, ErrInvalidToken
	}
	if !claims.PrincipalType.Valid() {
		return Identity{}, ErrInvalidToken
	}

	rec, err := t.store.FindByID(ctx, claims.PrincipalType, subject)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return Identity{}, ErrUnauthorized
	default:
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rec.Status != StatusActive {
		return Identity{}, fmt.Errorf("%w: %s", ErrForbidden, ReasonUserInactive)
	}
	if rec.PrincipalType == PrincipalAdmin && len(allowedRoles) > 0 && !contains(allowedRoles, rec.Role) {
		return Identity{}, fmt.Errorf("%w: %s", ErrForbidden, ReasonRoleNotAllowed)
	}
	// A tenant reassignment between issuance and use makes the token stale:
	// force re-authentication rather than honoring either scope.
	if claims.TenantID != 0 && rec.TenantID != 0 && claims.TenantID != rec.TenantID {
		return Identity{}, fmt.Errorf("%w: %s", ErrInvalidToken, ReasonTenantMismatch)
	}

	return Identity{
		ID:            rec.ID,
		Login:         rec.Login,
		PrincipalType: rec.PrincipalType,
		Role:          rec.Role,
		Status:        rec.Status,
		TenantID:      rec.TenantID,
	}, nil
}

func (t *Tokens) decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
