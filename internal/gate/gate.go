// Package gate bounds the number of concurrent expensive password-hash
// operations so a burst of login traffic cannot exhaust the host CPU.
package gate

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const defaultSlots = 8

// ErrClosed is returned by Acquire when the parent context is done.
var ErrClosed = errors.New("gate: acquire aborted")

// Gate is a weighted semaphore with an observable in-flight count. Waiters are
// admitted in acquisition order as slots free up.
type Gate struct {
	sem      *semaphore.Weighted
	slots    int64
	inFlight atomic.Int64
}

// New constructs a Gate with the given number of slots.
func New(slots int) *Gate {
	if slots <= 0 {
		slots = defaultSlots
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(slots)),
		slots: int64(slots),
	}
}

// Acquire blocks until a slot is free or ctx is done. On success the caller
// must Release exactly once, on every exit path of the guarded operation.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return ErrClosed
	}
	g.inFlight.Add(1)
	return nil
}

// Release frees a previously acquired slot.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// InFlight returns the number of currently held slots.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Slots returns the configured capacity.
func (g *Gate) Slots() int64 {
	return g.slots
}

// Do runs fn while holding a slot, releasing it on every path out of fn.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
