package cursor

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/filter"
	"github.com/netdata/journal/format"
	"github.com/netdata/journal/internal/jenkins"
	"github.com/netdata/journal/object"
)

// Location records what a Cursor was last positioned by, mirroring the
// seek operations a reader can request before stepping.
type Location uint8

const (
	LocationUnset Location = iota
	LocationHead
	LocationTail
	LocationRealtime
	LocationMonotonic
	LocationSeqnum
	LocationXorHash
	LocationResolvedEntry
)

// Cursor walks the global entry offset-array chain of a single journal
// file, applying an in-file filter.Expr and resolving each candidate Entry
// object along the way.
type Cursor struct {
	src        object.Source
	compact    bool
	arrayHead  uint64
	filterExpr filter.Expr

	arr *ArrayCursor

	loc          Location
	entryOffset  uint64
	entry        object.Entry
	entryRelease func()

	pendingTail bool

	// pendingResolve, when set, means a seekBy call has chosen a location
	// but deferred resolving it against the array chain until the first
	// Next/Previous call, so the right direction's partition point is used.
	pendingResolve bool
	pendingTest    func(e object.Entry) bool

	verifyXorHash bool
}

// New creates a Cursor over the global entry array chain rooted at
// arrayHead (a journal header's entry_array_offset). xor_hash verification
// is on by default, matching journal_file_next_entry's default validation.
func New(src object.Source, arrayHead uint64, compact bool) *Cursor {
	return &Cursor{
		src:           src,
		compact:       compact,
		arrayHead:     arrayHead,
		filterExpr:    filter.None,
		verifyXorHash: true,
	}
}

// SetVerifyXorHash toggles recomputing and checking each entry's xor_hash
// against its referenced Data objects' payloads as it's loaded.
func (c *Cursor) SetVerifyXorHash(enabled bool) {
	c.verifyXorHash = enabled
}

// SetFilter installs the filter every subsequent Next/Previous must satisfy.
// Passing filter.None disables filtering.
func (c *Cursor) SetFilter(expr filter.Expr) {
	if expr == nil {
		expr = filter.None
	}
	c.filterExpr = expr
}

// Close releases any resources the cursor is holding.
func (c *Cursor) Close() {
	c.clearEntry()
	if c.arr != nil {
		c.arr.Close()
		c.arr = nil
	}
}

func (c *Cursor) clearEntry() {
	if c.entryRelease != nil {
		c.entryRelease()
		c.entryRelease = nil
	}
	c.entryOffset = 0
}

func (c *Cursor) ensureArray() *ArrayCursor {
	if c.arr == nil {
		c.arr = NewArrayCursor(c.src, c.arrayHead, c.compact)
	}
	return c.arr
}

func (c *Cursor) loadEntry(offset uint64) (object.Entry, error) {
	h, data, release, err := object.Load(c.src, offset, format.ObjectEntry)
	if err != nil {
		return object.Entry{}, err
	}

	e, err := object.ParseEntry(h, data, offset, c.compact)
	if err != nil {
		release()
		return object.Entry{}, err
	}

	if c.verifyXorHash {
		if verr := c.checkXorHash(e, offset); verr != nil {
			release()
			return object.Entry{}, verr
		}
	}

	c.clearEntry()
	c.entryOffset = offset
	c.entry = e
	c.entryRelease = release

	return e, nil
}

// checkXorHash recomputes an entry's xor_hash by folding the Jenkins
// lookup3 hash of each referenced Data object's decompressed payload,
// regardless of the file's bucket-hashing mode, and compares it against the
// stored value.
func (c *Cursor) checkXorHash(e object.Entry, offset uint64) error {
	var fold uint64
	for _, off := range e.DataOffsets() {
		h, data, release, err := object.Load(c.src, off, format.ObjectData)
		if err != nil {
			return err
		}
		d, err := object.ParseData(h, data, off, c.compact)
		if err != nil {
			release()
			return err
		}
		payload, err := d.Payload()
		if err != nil {
			release()
			return err
		}
		fold ^= jenkins.Hash64(payload)
		release()
	}

	if fold != e.XorHash {
		return errs.NewFormatError("verify entry xor_hash", offset, errs.ErrXorHashMismatch)
	}
	return nil
}

// clearPending drops any deferred seek resolution, so that starting a fresh
// seek never leaves a stale flag for a later Next/Previous to act on.
func (c *Cursor) clearPending() {
	c.pendingTail = false
	c.pendingResolve = false
	c.pendingTest = nil
}

// SeekHead positions the cursor before the first entry in the chain.
func (c *Cursor) SeekHead() error {
	c.clearEntry()
	c.clearPending()
	c.ensureArray()
	c.arr.index = -1
	c.loc = LocationHead
	return nil
}

// SeekTail positions the cursor at the last entry in the chain, so that
// Previous() returns the final matching entry and Next() reports none (the
// chain has nothing past the tail).
func (c *Cursor) SeekTail() error {
	c.clearEntry()
	c.clearPending()
	arr := c.ensureArray()

	if _, err := arr.Last(); err != nil && err != errs.ErrEmptyArrayChain {
		return err
	}

	c.pendingTail = true
	c.loc = LocationTail
	return nil
}

// seekBy records test as the location's resolution predicate without
// touching the array chain yet: the first Next/Previous call resolves it
// with the direction-appropriate partition point (see §4.6's location
// table: forward and backward from the same named location can land on
// different entries).
func (c *Cursor) seekBy(loc Location, test func(e object.Entry) bool) error {
	c.clearEntry()
	c.clearPending()
	c.ensureArray()

	c.loc = loc
	c.pendingResolve = true
	c.pendingTest = test
	return nil
}

// SeekRealtime positions the cursor at usec: a following Next resolves to the
// first entry with Realtime >= usec, a following Previous to the last entry
// with Realtime < usec.
func (c *Cursor) SeekRealtime(usec uint64) error {
	return c.seekBy(LocationRealtime, func(e object.Entry) bool { return e.Realtime >= usec })
}

// SeekMonotonic positions the cursor at usec within the given boot: a
// following Next resolves to the first entry of that boot with Monotonic >=
// usec, a following Previous to the last entry before it.
func (c *Cursor) SeekMonotonic(bootID [16]byte, usec uint64) error {
	return c.seekBy(LocationMonotonic, func(e object.Entry) bool {
		return e.BootID == bootID && e.Monotonic >= usec
	})
}

// SeekSeqnum positions the cursor at seqnum: a following Next resolves to the
// first entry with Seqnum >= seqnum, a following Previous to the last entry
// with Seqnum < seqnum.
func (c *Cursor) SeekSeqnum(seqnum uint64) error {
	return c.seekBy(LocationSeqnum, func(e object.Entry) bool { return e.Seqnum >= seqnum })
}

// Next advances to the next entry satisfying the installed filter, returning
// false once the chain is exhausted.
func (c *Cursor) Next() (bool, error) {
	arr := c.ensureArray()

	if c.pendingTail {
		c.pendingTail = false
		return false, nil // Tail | Forward | None
	}

	if c.pendingResolve {
		c.pendingResolve = false
		test := c.pendingTest
		c.pendingTest = nil

		target, ok, err := arr.DirectedPartitionPoint(func(offset uint64) bool {
			e, lerr := c.loadEntry(offset)
			if lerr != nil {
				return false
			}
			return test(e)
		}, Forward)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		e, err := c.loadEntry(target)
		if err != nil {
			return false, err
		}
		if c.filterExpr.Match(e.DataOffsets()) {
			c.loc = LocationResolvedEntry
			return true, nil
		}
		// fall through to regular forward stepping to find the next match
	}

	for {
		offset, err := arr.Next()
		if err == errs.ErrInvalidArrayIndex {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		e, err := c.loadEntry(offset)
		if err != nil {
			return false, err
		}
		if c.filterExpr.Match(e.DataOffsets()) {
			c.loc = LocationResolvedEntry
			return true, nil
		}
	}
}

// Previous steps to the previous entry satisfying the installed filter.
func (c *Cursor) Previous() (bool, error) {
	arr := c.ensureArray()

	if c.pendingTail {
		c.pendingTail = false
		offset, err := arr.Last()
		if err == errs.ErrEmptyArrayChain {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		e, err := c.loadEntry(offset)
		if err != nil {
			return false, err
		}
		if c.filterExpr.Match(e.DataOffsets()) {
			c.loc = LocationResolvedEntry
			return true, nil
		}
		// fall through to regular backward stepping to find the prior match
	}

	if c.pendingResolve {
		c.pendingResolve = false
		test := c.pendingTest
		c.pendingTest = nil

		target, ok, err := arr.DirectedPartitionPoint(func(offset uint64) bool {
			e, lerr := c.loadEntry(offset)
			if lerr != nil {
				return false
			}
			return test(e)
		}, Backward)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		e, err := c.loadEntry(target)
		if err != nil {
			return false, err
		}
		if c.filterExpr.Match(e.DataOffsets()) {
			c.loc = LocationResolvedEntry
			return true, nil
		}
		// fall through to regular backward stepping to find the prior match
	}

	for {
		offset, err := arr.Previous()
		if err == errs.ErrInvalidArrayIndex || err == errs.ErrUnsetCursor {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		e, err := c.loadEntry(offset)
		if err != nil {
			return false, err
		}
		if c.filterExpr.Match(e.DataOffsets()) {
			c.loc = LocationResolvedEntry
			return true, nil
		}
	}
}

// Entry returns the currently resolved entry. It returns errs.ErrUnsetCursor
// if Next/Previous hasn't successfully resolved one yet.
func (c *Cursor) Entry() (object.Entry, uint64, error) {
	if c.loc != LocationResolvedEntry || c.entryOffset == 0 {
		return object.Entry{}, 0, errs.ErrUnsetCursor
	}
	return c.entry, c.entryOffset, nil
}

// Location reports what the cursor was last positioned by.
func (c *Cursor) Location() Location {
	return c.loc
}
