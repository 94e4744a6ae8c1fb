// Package httpapi is the HTTP edge of the authentication gateway. It owns
// request decoding, the uniform external error surface, and the middleware
// stack; all authentication decisions live in internal/auth.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"authgate.dev/internal/auth"
	"authgate.dev/internal/obs"
)

// ReadyProbe reports whether dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires an API.
type Options struct {
	Service    *auth.Service
	Ready      ReadyProbe
	Version    string
	TrustProxy bool
	// ThrottlePerSecond/ThrottleBurst shape the coarse per-IP edge throttle
	// that sits in front of the adaptive per-identity limiter.
	ThrottlePerSecond int
	ThrottleBurst     int
	MaxBodyBytes      int64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	ready      ReadyProbe
	version    string
	trustProxy bool
	perSecond  int
	burst      int
	maxBody    int64
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        opts.Service,
		ready:      opts.Ready,
		version:    opts.Version,
		trustProxy: opts.TrustProxy,
		perSecond:  opts.ThrottlePerSecond,
		burst:      opts.ThrottleBurst,
		maxBody:    opts.MaxBodyBytes,
	}
	if a.perSecond <= 0 {
		a.perSecond = 10
	}
	if a.burst <= 0 {
		a.burst = 20
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/admin/login", a.handleLogin(auth.PrincipalAdmin))
	a.mux.HandleFunc("/v1/guardian/login", a.handleLogin(auth.PrincipalGuardian))

	a.mux.Handle("/v1/auth/refresh", a.withAuth(http.HandlerFunc(a.handleRefresh)))
	a.mux.Handle("/v1/auth/logout", a.withAuth(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("/v1/auth/password", a.withAuth(http.HandlerFunc(a.handleChangePassword)))
	a.mux.Handle("/v1/auth/me", a.withAuth(http.HandlerFunc(a.handleMe)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = Throttle(h, a.burst, a.perSecond, a.trustProxy)
	h = Logging(h)
	h = RequestID(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authgate",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
