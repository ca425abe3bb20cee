package object

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
)

// EntryArray is a zero-copy view over an EntryArray object: one node in the
// geometrically growing offset-array chain that links every entry
// referencing a Data object (or, for the global chain, every entry in the
// file).
type EntryArray struct {
	Header                format.ObjectHeader
	NextEntryArrayOffset  uint64

	items   []byte
	compact bool
}

// ParseEntryArray parses the EntryArray object at offset within data, given
// its already-validated header h.
func ParseEntryArray(h format.ObjectHeader, data []byte, offset uint64, compact bool) (EntryArray, error) {
	if h.Size < format.EntryArrayObjectBaseSize {
		return EntryArray{}, errs.NewOffsetError("parse entry array object", offset, errs.ErrSizeOverflow)
	}

	a := EntryArray{Header: h, compact: compact}
	a.NextEntryArrayOffset = le64(data[16:24])
	a.items = data[format.EntryArrayObjectBaseSize:h.Size]

	return a, nil
}

// Capacity returns how many entry-offset slots this node holds.
func (a EntryArray) Capacity() int {
	return len(a.items) / format.ItemSize(a.compact)
}

// Item returns the i'th entry offset stored in this node. A zero value means
// the slot is unused (the node was allocated with more capacity than has
// been filled yet).
func (a EntryArray) Item(i int) (uint64, error) {
	width := format.ItemSize(a.compact)
	start := i * width
	if i < 0 || start+width > len(a.items) {
		return 0, errs.ErrInvalidArrayIndex
	}
	return readItem(a.items[start:start+width], a.compact), nil
}
