package format

import (
	"encoding/binary"

	"github.com/netdata/journal/errs"
)

// ObjectHeaderSize is the fixed size, in bytes, of every object's header.
const ObjectHeaderSize = 16

// ObjectHeader is the 16-byte prefix shared by every object in the arena:
// { type, flags, reserved[6], size }.
type ObjectHeader struct {
	Type  ObjectType
	Flags uint8
	Size  uint64
}

// Parse decodes an ObjectHeader from the first ObjectHeaderSize bytes of data.
func (h *ObjectHeader) Parse(data []byte) error {
	if len(data) < ObjectHeaderSize {
		return errs.NewFormatError("parse object header", 0, errs.ErrInvalidHeaderSize)
	}

	h.Type = ObjectType(data[0])
	h.Flags = data[1]
	// bytes 2..8 are reserved
	h.Size = binary.LittleEndian.Uint64(data[8:16])

	return nil
}

// Bytes serializes the ObjectHeader into a freshly allocated ObjectHeaderSize buffer.
func (h ObjectHeader) Bytes() []byte {
	b := make([]byte, ObjectHeaderSize)
	b[0] = uint8(h.Type)
	b[1] = h.Flags

	binary.LittleEndian.PutUint64(b[8:16], h.Size)

	return b
}

// Compression returns the compression algorithm this object's payload was
// stored with, per its flags byte.
func (h ObjectHeader) Compression() CompressionAlgorithm {
	return ObjectFlagCompression(h.Flags)
}
