// Package sigbus installs a process-wide handler that turns a SIGBUS
// delivered while touching a memory-mapped journal window (e.g. because the
// backing file was truncated out from under the mapping) into a recoverable
// error returned from Guard instead of crashing the process.
package sigbus

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrBusFault is returned by Guard when a SIGBUS was observed while the
// guarded function ran.
var ErrBusFault = errors.New("journal: SIGBUS while accessing mapped file")

var (
	once    sync.Once
	faulted atomic.Bool
	sigCh   chan os.Signal
)

// Install registers the process-wide SIGBUS handler. It is safe to call
// repeatedly; only the first call takes effect.
func Install() {
	once.Do(func() {
		sigCh = make(chan os.Signal, 16)
		signal.Notify(sigCh, unix.SIGBUS)
		go func() {
			for range sigCh {
				faulted.Store(true)
			}
		}()
	})
}

// Guard runs fn and reports ErrBusFault if a SIGBUS was observed globally
// during the call. It does not isolate faults per-goroutine (Go cannot
// recover a true SIGBUS from inside the faulting goroutine); callers should
// treat any ErrBusFault as "the window manager must remap and retry," per
// the journal reader's documented fault-tolerance contract.
func Guard(fn func() error) error {
	Install()

	faulted.Store(false)
	err := fn()
	if faulted.Load() {
		return ErrBusFault
	}
	return err
}

// Faulted reports whether a SIGBUS has been observed since the last Reset.
func Faulted() bool {
	return faulted.Load()
}

// Reset clears the faulted flag.
func Reset() {
	faulted.Store(false)
}
