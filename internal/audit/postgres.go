package audit

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore appends events to the audit_events table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, ev *Event) error {
	var subject any
	if ev.SubjectID > 0 {
		subject = ev.SubjectID
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_events(id, kind, subject_id, principal_type, route, method, status_code, client_ip, user_agent, extra, occurred_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ev.ID, string(ev.Kind), subject, ev.PrincipalType, ev.Route, ev.Method,
		ev.StatusCode, nullable(ev.ClientIP), nullable(ev.UserAgent), nullable(ev.Extra), ev.OccurredAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
