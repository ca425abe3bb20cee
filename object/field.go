package object

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
)

// Field is a zero-copy view over a Field object: a unique field name (e.g.
// "MESSAGE") shared by every Data object carrying that key, with the head of
// its own hash-table collision chain and the head of the per-field chain of
// Data objects it names.
type Field struct {
	Header         format.ObjectHeader
	Hash           uint64
	NextHashOffset uint64
	HeadDataOffset uint64

	Name []byte
}

// ParseField parses the Field object at offset within data, given its
// already-validated header h.
func ParseField(h format.ObjectHeader, data []byte, offset uint64) (Field, error) {
	if h.Size < format.FieldObjectBaseSize {
		return Field{}, errs.NewOffsetError("parse field object", offset, errs.ErrSizeOverflow)
	}

	f := Field{Header: h}
	f.Hash = le64(data[16:24])
	f.NextHashOffset = le64(data[24:32])
	f.HeadDataOffset = le64(data[32:40])
	f.Name = data[format.FieldObjectBaseSize:h.Size]

	return f, nil
}
