package auth

import (
	"context"
	"time"
)

// CredentialStore describes the persistence operations the authentication
// core needs. The relational schema behind it is owned by the store.
type CredentialStore interface {
	// FindActiveByLogin returns the active credential record matching the
	// exact login identifier, or ErrNotFound.
	FindActiveByLogin(ctx context.Context, pt PrincipalType, login string) (*CredentialRecord, error)
	// FindByID returns the record regardless of status, or ErrNotFound.
	FindByID(ctx context.Context, pt PrincipalType, id int64) (*CredentialRecord, error)
	// TouchLastLogin stamps the account's last successful login.
	TouchLastLogin(ctx context.Context, pt PrincipalType, id int64, at time.Time) error
	// UpdatePassword replaces the stored digest and clears the rotation flag.
	UpdatePassword(ctx context.Context, pt PrincipalType, id int64, digest string) error
}
