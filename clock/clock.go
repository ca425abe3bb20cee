// Package clock provides the monotone realtime clock used when stamping
// newly appended entries: wall-clock microseconds since the Unix epoch that
// never goes backwards, even across NTP step adjustments.
package clock

import (
	"sync"
	"time"
)

// Clock hands out realtime-usec timestamps that are monotonically
// non-decreasing. A plain time.Now() can step backwards when the system
// clock is corrected by NTP; Clock detects that and clamps to
// last_returned + 1 instead, matching the journal's append-only ordering
// requirement on entries.
type Clock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// New returns a Clock driven by time.Now.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithSource returns a Clock driven by a custom time source, for testing.
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// NowUsec returns the current realtime timestamp in microseconds since the
// Unix epoch, guaranteed to be strictly greater than every value previously
// returned by this Clock.
func (c *Clock) NowUsec() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := uint64(c.now().UnixMicro())
	if t <= c.last {
		t = c.last + 1
	}
	c.last = t

	return t
}

// Observe folds an externally obtained timestamp (e.g. read back from a
// journal file at open time) into the clock's backward-jump floor without
// emitting it, so a subsequent NowUsec never regresses past it.
func (c *Clock) Observe(usec uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if usec > c.last {
		c.last = usec
	}
}
