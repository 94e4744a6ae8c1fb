package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"authgate.dev/internal/audit"
	"authgate.dev/internal/obs"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

// RequestID assigns each request an identifier, echoed in the response header
// and available to error payloads and logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", rid)
		ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request identifier, if assigned.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Logging emits one structured access-log line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		obs.Log("request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  RequestIDFromContext(r.Context()),
		})
	})
}

// SecurityHeaders hardens every response. The gateway serves JSON only, so
// the CSP denies everything.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes limits request body size.
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

const (
	throttleBucketTTL  = 5 * time.Minute
	throttleSweepEvery = time.Minute
)

type throttleBucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// throttler is a coarse per-client-IP token bucket. Stale buckets are swept
// inline on the request path, so it owns no goroutine and needs no shutdown.
type throttler struct {
	burst      int
	perSecond  int
	trustProxy bool
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*throttleBucket
	lastSweep time.Time
}

func newThrottler(burst, perSecond int, trustProxy bool) *throttler {
	return &throttler{
		burst:      burst,
		perSecond:  perSecond,
		trustProxy: trustProxy,
		now:        time.Now,
		buckets:    make(map[string]*throttleBucket),
	}
}

func (t *throttler) allow(ip string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastSweep) >= throttleSweepEvery {
		t.lastSweep = now
		for k, b := range t.buckets {
			if now.Sub(b.ts) > throttleBucketTTL {
				delete(t.buckets, k)
			}
		}
	}

	b, ok := t.buckets[ip]
	if !ok {
		b = &throttleBucket{lim: rate.NewLimiter(rate.Limit(t.perSecond), t.burst)}
		t.buckets[ip] = b
	}
	b.ts = now
	return b.lim.Allow()
}

func (t *throttler) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

func (t *throttler) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r, t.trustProxy)
		if ip == "" {
			ip = "unknown"
		}
		if !t.allow(ip) {
			writeError(w, r, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Throttle shields the service from raw request floods before the adaptive
// per-identity limiter sees them.
func Throttle(next http.Handler, burst, perSecond int, trustProxy bool) http.Handler {
	return newThrottler(burst, perSecond, trustProxy).middleware(next)
}
