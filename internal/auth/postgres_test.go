package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var adminColumns = []string{
	"id", "login", "password_digest", "role", "organization_id",
	"status", "must_rotate_password", "last_login_at", "created_at", "updated_at",
}

var guardianColumns = []string{
	"id", "login", "password_digest", "organization_id",
	"status", "must_rotate_password", "last_login_at", "created_at", "updated_at",
}

func TestPGStoreFindActiveAdminByLogin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`from admin_users where login=\$1 and status=\$2`).
		WithArgs("mgr", StatusActive).
		WillReturnRows(sqlmock.NewRows(adminColumns).
			AddRow(int64(2), "mgr", "$2a$10$digest", RoleManager, int64(9),
				StatusActive, false, nil, created, created))

	store := NewPGStore(db)
	rec, err := store.FindActiveByLogin(context.Background(), PrincipalAdmin, "mgr")
	if err != nil {
		t.Fatalf("FindActiveByLogin: %v", err)
	}
	if rec.ID != 2 || rec.Role != RoleManager || rec.TenantID != 9 || rec.PrincipalType != PrincipalAdmin {
		t.Fatalf("record mismatch: %+v", rec)
	}
	if rec.LastLoginAt != nil {
		t.Fatal("null last_login_at must map to nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGStoreFindActiveAdminNullTenant(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastLogin := created.Add(time.Hour)
	mock.ExpectQuery(`from admin_users where login=\$1 and status=\$2`).
		WithArgs("root", StatusActive).
		WillReturnRows(sqlmock.NewRows(adminColumns).
			AddRow(int64(1), "root", "$2a$10$digest", RoleSuperuser, nil,
				StatusActive, true, lastLogin, created, created))

	rec, err := NewPGStore(db).FindActiveByLogin(context.Background(), PrincipalAdmin, "root")
	if err != nil {
		t.Fatalf("FindActiveByLogin: %v", err)
	}
	if rec.TenantID != 0 {
		t.Fatalf("null organization_id must map to 0, got %d", rec.TenantID)
	}
	if !rec.MustRotatePassword {
		t.Fatal("must_rotate_password lost")
	}
	if rec.LastLoginAt == nil || !rec.LastLoginAt.Equal(lastLogin) {
		t.Fatalf("last_login_at mismatch: %v", rec.LastLoginAt)
	}
}

func TestPGStoreFindGuardianByID(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`from guardians where id=\$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(guardianColumns).
			AddRow(int64(3), "watcher", "$2a$10$digest", int64(9),
				StatusDisabled, false, nil, created, created))

	rec, err := NewPGStore(db).FindByID(context.Background(), PrincipalGuardian, 3)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec.PrincipalType != PrincipalGuardian || rec.TenantID != 9 || rec.Status != StatusDisabled {
		t.Fatalf("record mismatch: %+v", rec)
	}
}

func TestPGStoreMissingRowIsNotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectQuery(`from admin_users where login=\$1 and status=\$2`).
		WithArgs("ghost", StatusActive).
		WillReturnRows(sqlmock.NewRows(adminColumns))

	if _, err := NewPGStore(db).FindActiveByLogin(context.Background(), PrincipalAdmin, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreRejectsUnknownPrincipalType(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	if _, err := NewPGStore(db).FindByID(context.Background(), PrincipalType("robot"), 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPGStoreTouchLastLogin(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`update guardians set last_login_at=\$1, updated_at=now\(\) where id=\$2`).
		WithArgs(at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPGStore(db).TouchLastLogin(context.Background(), PrincipalGuardian, 3, at); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGStoreUpdatePasswordClearsRotationFlag(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec(`update admin_users set password_digest=\$1, must_rotate_password=false, updated_at=now\(\) where id=\$2`).
		WithArgs("$2a$10$fresh", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPGStore(db).UpdatePassword(context.Background(), PrincipalAdmin, 2, "$2a$10$fresh"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
