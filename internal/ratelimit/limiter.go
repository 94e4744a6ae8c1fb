// Package ratelimit tracks failed login attempts per (client, identifier) pair
// and escalates to a timed lockout once a sliding-window budget is exhausted.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultWindow      = 10 * time.Minute
	defaultMaxAttempts = 8
	defaultLockout     = 15 * time.Minute
	defaultMaxKeys     = 50000
)

// Config tunes the limiter. Zero values fall back to defaults.
type Config struct {
	// Window is the sliding window over which failures accumulate.
	Window time.Duration
	// MaxAttempts is the number of failures tolerated inside one window.
	MaxAttempts uint
	// Lockout is how long a key is rejected after exceeding MaxAttempts.
	Lockout time.Duration
	// MaxKeys caps the tracked key space. Once reached, unknown keys collapse
	// onto a per-client wildcard so an attacker enumerating identifiers cannot
	// grow the map without bound.
	MaxKeys int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Lockout <= 0 {
		c.Lockout = defaultLockout
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = defaultMaxKeys
	}
	return c
}

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type entry struct {
	attempts     uint
	windowStart  time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// Limiter is an in-memory failure tracker. It is owned by the service
// instance that created it; tests construct isolated limiters freely.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures Limiter behavior.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Limiter.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether an attempt for the key may proceed. It must be called
// before credential verification; a denied decision carries the remaining
// lockout as RetryAfter and the caller must not verify.
func (l *Limiter) Check(clientID, identifier string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[l.resolveKey(clientID, identifier)]
	if !ok {
		return Decision{Allowed: true}
	}
	e.lastSeen = now

	if !e.blockedUntil.IsZero() {
		if now.Before(e.blockedUntil) {
			return Decision{Allowed: false, RetryAfter: e.blockedUntil.Sub(now)}
		}
		// Lockout elapsed: the window resets with it.
		e.blockedUntil = time.Time{}
		e.attempts = 0
		e.windowStart = now
	}
	if now.Sub(e.windowStart) >= l.cfg.Window {
		e.attempts = 0
		e.windowStart = now
	}
	return Decision{Allowed: true}
}

// RegisterFailure records one failed verification for the key. Callers invoke
// it only after a real credential check failed, never for malformed requests.
func (l *Limiter) RegisterFailure(clientID, identifier string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	key := l.resolveKey(clientID, identifier)
	e, ok := l.entries[key]
	if !ok {
		e = &entry{windowStart: now}
		l.entries[key] = e
	}
	e.lastSeen = now

	if !e.blockedUntil.IsZero() {
		if now.Before(e.blockedUntil) {
			return
		}
		e.blockedUntil = time.Time{}
		e.attempts = 0
		e.windowStart = now
	}
	if now.Sub(e.windowStart) >= l.cfg.Window {
		e.attempts = 0
		e.windowStart = now
	}

	e.attempts++
	if e.attempts >= l.cfg.MaxAttempts {
		e.blockedUntil = now.Add(l.cfg.Lockout)
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// resolveKey picks the exact key when it already exists or when the map still
// has headroom; otherwise it degrades to the shared per-client wildcard.
// Callers hold l.mu.
func (l *Limiter) resolveKey(clientID, identifier string) string {
	key := strings.ToLower(identifier) + "|" + clientID
	if _, ok := l.entries[key]; ok {
		return key
	}
	if len(l.entries) >= l.cfg.MaxKeys {
		return "*|" + clientID
	}
	return key
}
