package format

import (
	"encoding/binary"

	"github.com/netdata/journal/errs"
)

// HeaderSize is the fixed, on-disk size of a JournalHeader, bit-exact with the
// systemd journal file format.
const HeaderSize = 208

// JournalHeader is the fixed-size prefix of every journal file.
type JournalHeader struct {
	Signature          [8]byte
	CompatibleFlags    uint32
	IncompatibleFlags  uint32
	State              State
	FileID             [16]byte
	MachineID          [16]byte
	TailEntryBootID    [16]byte
	SeqnumID           [16]byte
	HeaderSize         uint64
	ArenaSize          uint64
	DataHashTableOffset  uint64
	DataHashTableSize    uint64
	FieldHashTableOffset uint64
	FieldHashTableSize   uint64
	TailObjectOffset   uint64
	NObjects           uint64
	NEntries           uint64
	TailEntrySeqnum    uint64
	HeadEntrySeqnum    uint64
	EntryArrayOffset   uint64
	HeadEntryRealtime  uint64
	TailEntryRealtime  uint64
	TailEntryMonotonic uint64
}

// Parse decodes a JournalHeader from data, which must be at least HeaderSize
// bytes long. It validates the signature and the incompatible-flags set.
func (h *JournalHeader) Parse(data []byte) error {
	if len(data) < HeaderSize {
		return errs.NewFormatError("parse journal header", 0, errs.ErrInvalidHeaderSize)
	}

	copy(h.Signature[:], data[0:8])
	if h.Signature != Signature {
		return errs.NewFormatError("parse journal header", 0, errs.ErrInvalidMagic)
	}

	h.CompatibleFlags = binary.LittleEndian.Uint32(data[8:12])
	h.IncompatibleFlags = binary.LittleEndian.Uint32(data[12:16])
	if h.IncompatibleFlags&^uint32(SupportedIncompatibleFlags) != 0 {
		return errs.NewFormatError("parse journal header", 0, errs.ErrUnsupportedIncompatibleFlags)
	}

	h.State = State(data[16])
	// data[17:24] is padding.

	off := 24
	copy(h.FileID[:], data[off:off+16])
	off += 16
	copy(h.MachineID[:], data[off:off+16])
	off += 16
	copy(h.TailEntryBootID[:], data[off:off+16])
	off += 16
	copy(h.SeqnumID[:], data[off:off+16])
	off += 16

	fields := []*uint64{
		&h.HeaderSize, &h.ArenaSize,
		&h.DataHashTableOffset, &h.DataHashTableSize,
		&h.FieldHashTableOffset, &h.FieldHashTableSize,
		&h.TailObjectOffset, &h.NObjects, &h.NEntries,
		&h.TailEntrySeqnum, &h.HeadEntrySeqnum,
		&h.EntryArrayOffset,
		&h.HeadEntryRealtime, &h.TailEntryRealtime, &h.TailEntryMonotonic,
	}
	for _, f := range fields {
		*f = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}

	return nil
}

// Bytes serializes the JournalHeader into a freshly allocated HeaderSize buffer.
func (h JournalHeader) Bytes() []byte {
	b := make([]byte, HeaderSize)

	copy(b[0:8], h.Signature[:])
	binary.LittleEndian.PutUint32(b[8:12], h.CompatibleFlags)
	binary.LittleEndian.PutUint32(b[12:16], h.IncompatibleFlags)
	b[16] = uint8(h.State)

	off := 24
	copy(b[off:off+16], h.FileID[:])
	off += 16
	copy(b[off:off+16], h.MachineID[:])
	off += 16
	copy(b[off:off+16], h.TailEntryBootID[:])
	off += 16
	copy(b[off:off+16], h.SeqnumID[:])
	off += 16

	values := []uint64{
		h.HeaderSize, h.ArenaSize,
		h.DataHashTableOffset, h.DataHashTableSize,
		h.FieldHashTableOffset, h.FieldHashTableSize,
		h.TailObjectOffset, h.NObjects, h.NEntries,
		h.TailEntrySeqnum, h.HeadEntrySeqnum,
		h.EntryArrayOffset,
		h.HeadEntryRealtime, h.TailEntryRealtime, h.TailEntryMonotonic,
	}
	for _, v := range values {
		binary.LittleEndian.PutUint64(b[off:off+8], v)
		off += 8
	}

	return b
}

// HasKeyedHash reports whether the file uses xxh3 keyed hashing for its hash
// tables rather than the legacy Jenkins lookup3 hash.
func (h JournalHeader) HasKeyedHash() bool {
	return h.IncompatibleFlags&IncompatibleKeyedHash != 0
}

// HasCompactMode reports whether offset-array and entry items use the
// 4-byte compact encoding rather than 8-byte absolute offsets.
func (h JournalHeader) HasCompactMode() bool {
	return h.IncompatibleFlags&IncompatibleCompact != 0
}

// IsSealed reports whether the file has been sealed (FSS or final rotation seal).
func (h JournalHeader) IsSealed() bool {
	return h.CompatibleFlags&CompatibleSealed != 0
}
