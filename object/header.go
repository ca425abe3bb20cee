// Package object provides zero-copy, validating views over the objects
// stored in a journal file's arena: Data, Field, Entry, EntryArray, and the
// two hash tables. Every view is built over an already-mapped byte slice
// (see package mmio) and never copies the payload unless it must be
// decompressed.
package object

import (
	"encoding/binary"

	"github.com/netdata/journal/compress"
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
)

// Header parses the 16-byte ObjectHeader at the start of data and validates
// that its declared size fits within data and that its type matches want
// (pass format.ObjectUnused to skip the type check).
func Header(data []byte, offset uint64, want format.ObjectType) (format.ObjectHeader, error) {
	var h format.ObjectHeader

	if uint64(len(data)) < format.ObjectHeaderSize {
		return h, errs.NewOffsetError("read object header", offset, errs.ErrSizeOverflow)
	}
	if err := h.Parse(data); err != nil {
		return h, errs.NewOffsetError("read object header", offset, err)
	}
	if h.Size < format.ObjectHeaderSize || uint64(len(data)) < h.Size {
		return h, errs.NewOffsetError("read object header", offset, errs.ErrSizeOverflow)
	}
	if want != format.ObjectUnused && h.Type != want {
		return h, errs.NewOffsetError("read object header", offset, errs.ErrWrongObjectType).
			WithDetail("want", want.String()).WithDetail("got", h.Type.String())
	}

	return h, nil
}

// PeekSize reads only the declared size out of an object header, so a
// caller backed by a windowed mmap (package mmio) knows how many bytes to
// map before validating the full object.
func PeekSize(data []byte, offset uint64) (uint64, format.ObjectType, error) {
	if uint64(len(data)) < format.ObjectHeaderSize {
		return 0, 0, errs.NewOffsetError("peek object size", offset, errs.ErrSizeOverflow)
	}
	var h format.ObjectHeader
	if err := h.Parse(data); err != nil {
		return 0, 0, errs.NewOffsetError("peek object size", offset, err)
	}
	return h.Size, h.Type, nil
}

func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func readItem(b []byte, compact bool) uint64 {
	if compact {
		return uint64(le32(b))
	}
	return le64(b)
}

func decompressPayload(offset uint64, flags uint8, payload []byte) ([]byte, error) {
	algo := format.ObjectFlagCompression(flags)
	if algo == format.CompressionNone {
		return payload, nil
	}

	codec, err := compress.Get(algo)
	if err != nil {
		return nil, errs.NewOffsetError("decompress payload", offset, err)
	}

	out, err := codec.Decompress(payload)
	if err != nil {
		return nil, errs.NewPayloadDecompressionError(offset, algo.String(), len(payload), err)
	}

	return out, nil
}
