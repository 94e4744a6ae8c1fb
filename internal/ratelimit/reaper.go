package ratelimit

import (
	"context"
	"time"
)

const (
	defaultSweepInterval = time.Minute
	defaultIdleThreshold = time.Hour
)

// Sweep removes stale entries and returns how many were deleted. An entry is
// stale when it has been unseen longer than idle, or when it carries no active
// lockout, its window is more than double-expired, and it has been quiet for a
// full window.
func (l *Limiter) Sweep(idle time.Duration) int {
	if idle <= 0 {
		idle = defaultIdleThreshold
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		blocked := !e.blockedUntil.IsZero() && now.Before(e.blockedUntil)
		switch {
		case now.Sub(e.lastSeen) > idle:
		case !blocked && now.Sub(e.windowStart) > 2*l.cfg.Window && now.Sub(e.lastSeen) > l.cfg.Window:
		default:
			continue
		}
		delete(l.entries, key)
		removed++
	}
	return removed
}

// RunReaper sweeps on a fixed interval until the context is cancelled. It is
// best-effort housekeeping: start it with `go lim.RunReaper(ctx, ...)` and it
// neither blocks request handling nor keeps the process alive.
func (l *Limiter) RunReaper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(idle)
		}
	}
}
