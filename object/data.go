package object

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
)

// Data is a zero-copy view over a Data object: a unique "field=value" blob,
// the head of the hash-table collision chain it sits in, the head of the
// per-field chain of data objects sharing its field name, and the head of
// the per-data offset-array chain of every entry that references it.
type Data struct {
	Header           format.ObjectHeader
	Hash             uint64
	NextHashOffset   uint64
	NextFieldOffset  uint64
	EntryOffset      uint64
	EntryArrayOffset uint64
	NEntries         uint64

	rawPayload []byte
	offset     uint64
}

// ParseData parses the Data object at offset within data, given its
// already-validated header h (see Load). compact controls whether a
// compact-mode "maybe" padding field precedes the payload.
func ParseData(h format.ObjectHeader, data []byte, offset uint64, compact bool) (Data, error) {
	if h.Size < format.DataObjectBaseSize {
		return Data{}, errs.NewOffsetError("parse data object", offset, errs.ErrSizeOverflow)
	}

	d := Data{Header: h, offset: offset}
	d.Hash = le64(data[16:24])
	d.NextHashOffset = le64(data[24:32])
	d.NextFieldOffset = le64(data[32:40])
	d.EntryOffset = le64(data[40:48])
	d.EntryArrayOffset = le64(data[48:56])
	d.NEntries = le64(data[56:64])

	skip := uint64(0)
	if compact {
		skip = format.MaxDataPayloadSkip
	}

	payloadStart := format.DataObjectBaseSize + skip
	if h.Size < payloadStart {
		return Data{}, errs.NewOffsetError("parse data object", offset, errs.ErrSizeOverflow)
	}

	d.rawPayload = data[payloadStart:h.Size]

	return d, nil
}

// Payload returns the object's decompressed "field=value" bytes.
func (d Data) Payload() ([]byte, error) {
	return decompressPayload(d.offset, d.Header.Flags, d.rawPayload)
}
