package mmio

import (
	"sync/atomic"

	"github.com/netdata/journal/errs"
)

// GuardedCell holds a value that may be exclusively borrowed at most once at
// a time. The window manager uses it to protect a mutable object view (e.g.
// an in-progress append) from a concurrent remap: as long as a Guard is live,
// the cell's underlying window cannot be evicted or remapped out from under
// the borrower.
type GuardedCell[T any] struct {
	taken atomic.Bool
	value T
}

// NewGuardedCell wraps value in a fresh, unborrowed cell.
func NewGuardedCell[T any](value T) *GuardedCell[T] {
	return &GuardedCell[T]{value: value}
}

// Guard is the exclusive borrow returned by TryGuard. Release must be called
// exactly once to return the cell to the unborrowed state.
type Guard[T any] struct {
	cell *GuardedCell[T]
}

// TryGuard attempts to take the single borrow slot. It returns
// errs.ErrValueGuardInUse if another Guard over this cell is still live.
func (c *GuardedCell[T]) TryGuard() (*Guard[T], error) {
	if !c.taken.CompareAndSwap(false, true) {
		return nil, errs.ErrValueGuardInUse
	}
	return &Guard[T]{cell: c}, nil
}

// Value returns the guarded value.
func (g *Guard[T]) Value() T {
	return g.cell.value
}

// Set replaces the guarded value. Only valid while the guard is held.
func (g *Guard[T]) Set(v T) {
	g.cell.value = v
}

// Release returns the borrow slot. Calling Release twice on the same Guard
// is a programmer error but is made a no-op rather than a panic, since a
// defer'd Release commonly races an explicit early Release on an error path.
func (g *Guard[T]) Release() {
	if g == nil || g.cell == nil {
		return
	}
	g.cell.taken.Store(false)
	g.cell = nil
}

// InUse reports whether a Guard is currently live, without taking it.
func (c *GuardedCell[T]) InUse() bool {
	return c.taken.Load()
}
