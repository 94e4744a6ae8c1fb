// Package audit records authentication-relevant events. Recording is
// observational: it never blocks the response path and its failures never
// change an authentication outcome.
package audit

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind enumerates the recorded event kinds.
type Kind string

const (
	KindLogin        Kind = "login"
	KindLogout       Kind = "logout"
	KindRefresh      Kind = "refresh"
	KindInvalidToken Kind = "invalid_token"
	KindAccessDenied Kind = "access_denied"
)

// Event is one append-only audit row.
type Event struct {
	ID            string
	Kind          Kind
	SubjectID     int64 // 0 when the principal is unknown
	PrincipalType string
	Route         string
	Method        string
	StatusCode    int
	ClientIP      string
	UserAgent     string
	Extra         string // JSON, truncated at the configured ceiling
	OccurredAt    time.Time
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// newEventID returns a lexicographically sortable event identifier.
func newEventID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
