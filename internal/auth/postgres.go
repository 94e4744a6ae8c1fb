package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ CredentialStore = (*PGStore)(nil)

// PGStore implements CredentialStore on PostgreSQL. Panel users and guardians
// live in separate tables with separately tuned columns; the store folds both
// into CredentialRecord.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) FindActiveByLogin(ctx context.Context, pt PrincipalType, login string) (*CredentialRecord, error) {
	switch pt {
	case PrincipalAdmin:
		row := s.db.QueryRowContext(ctx,
			`select id, login, password_digest, role, organization_id, status, must_rotate_password, last_login_at, created_at, updated_at
			 from admin_users where login=$1 and status=$2`, login, StatusActive)
		return scanAdmin(row)
	case PrincipalGuardian:
		row := s.db.QueryRowContext(ctx,
			`select id, login, password_digest, organization_id, status, must_rotate_password, last_login_at, created_at, updated_at
			 from guardians where login=$1 and status=$2`, login, StatusActive)
		return scanGuardian(row)
	default:
		return nil, fmt.Errorf("%w: unknown principal type %q", ErrInvalidInput, pt)
	}
}

func (s *PGStore) FindByID(ctx context.Context, pt PrincipalType, id int64) (*CredentialRecord, error) {
	switch pt {
	case PrincipalAdmin:
		row := s.db.QueryRowContext(ctx,
			`select id, login, password_digest, role, organization_id, status, must_rotate_password, last_login_at, created_at, updated_at
			 from admin_users where id=$1`, id)
		return scanAdmin(row)
	case PrincipalGuardian:
		row := s.db.QueryRowContext(ctx,
			`select id, login, password_digest, organization_id, status, must_rotate_password, last_login_at, created_at, updated_at
			 from guardians where id=$1`, id)
		return scanGuardian(row)
	default:
		return nil, fmt.Errorf("%w: unknown principal type %q", ErrInvalidInput, pt)
	}
}

func (s *PGStore) TouchLastLogin(ctx context.Context, pt PrincipalType, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set last_login_at=$1, updated_at=now() where id=$2`, tableFor(pt)),
		at, id)
	return err
}

func (s *PGStore) UpdatePassword(ctx context.Context, pt PrincipalType, id int64, digest string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set password_digest=$1, must_rotate_password=false, updated_at=now() where id=$2`, tableFor(pt)),
		digest, id)
	return err
}

func tableFor(pt PrincipalType) string {
	if pt == PrincipalGuardian {
		return "guardians"
	}
	return "admin_users"
}

func scanAdmin(row *sql.Row) (*CredentialRecord, error) {
	var (
		rec       CredentialRecord
		tenant    sql.NullInt64
		lastLogin sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Login, &rec.PasswordDigest, &rec.Role, &tenant,
		&rec.Status, &rec.MustRotatePassword, &lastLogin, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.PrincipalType = PrincipalAdmin
	if tenant.Valid {
		rec.TenantID = tenant.Int64
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		rec.LastLoginAt = &t
	}
	return &rec, nil
}

func scanGuardian(row *sql.Row) (*CredentialRecord, error) {
	var (
		rec       CredentialRecord
		lastLogin sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Login, &rec.PasswordDigest, &rec.TenantID,
		&rec.Status, &rec.MustRotatePassword, &lastLogin, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.PrincipalType = PrincipalGuardian
	if lastLogin.Valid {
		t := lastLogin.Time
		rec.LastLoginAt = &t
	}
	return &rec, nil
}
