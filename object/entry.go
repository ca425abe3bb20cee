package object

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
	"github.com/netdata/journal/internal/pool"
)

// Entry is a zero-copy view over an Entry object: one journal record, whose
// payload is a list of offsets to the Data objects it's built from.
type Entry struct {
	Header    format.ObjectHeader
	Seqnum    uint64
	Realtime  uint64
	Monotonic uint64
	BootID    [16]byte
	XorHash   uint64

	items   []byte
	compact bool
}

// ParseEntry parses the Entry object at offset within data, given its
// already-validated header h.
func ParseEntry(h format.ObjectHeader, data []byte, offset uint64, compact bool) (Entry, error) {
	if h.Size < format.EntryObjectBaseSize {
		return Entry{}, errs.NewOffsetError("parse entry object", offset, errs.ErrSizeOverflow)
	}

	e := Entry{Header: h, compact: compact}
	e.Seqnum = le64(data[16:24])
	e.Realtime = le64(data[24:32])
	e.Monotonic = le64(data[32:40])
	copy(e.BootID[:], data[40:56])
	e.XorHash = le64(data[56:64])
	e.items = data[format.EntryObjectBaseSize:h.Size]

	return e, nil
}

// NumDataOffsets returns how many Data object offsets this entry references.
func (e Entry) NumDataOffsets() int {
	return len(e.items) / format.ItemSize(e.compact)
}

// DataOffset returns the i'th Data object offset referenced by this entry.
func (e Entry) DataOffset(i int) (uint64, error) {
	width := format.ItemSize(e.compact)
	start := i * width
	if i < 0 || start+width > len(e.items) {
		return 0, errs.ErrInvalidArrayIndex
	}
	return readItem(e.items[start:start+width], e.compact), nil
}

// DataOffsets materializes every Data object offset this entry references.
// The caller owns the returned slice; it is a fresh copy, not pool-backed.
func (e Entry) DataOffsets() []uint64 {
	n := e.NumDataOffsets()
	scratch, release := pool.GetUint64Slice(n)
	defer release()

	for i := range scratch {
		scratch[i], _ = e.DataOffset(i)
	}

	out := make([]uint64, n)
	copy(out, scratch)
	return out
}
