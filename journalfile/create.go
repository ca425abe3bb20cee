package journalfile

import (
	"encoding/binary"
	"os"

	"github.com/netdata/journal/format"
	"github.com/oklog/ulid/v2"
)

// DefaultDataHashTableBuckets and DefaultFieldHashTableBuckets size the hash
// tables a freshly created file starts with. Real journal files grow these
// via journald's rotation policy; this implementation picks a fixed size
// appropriate for a single collector/agent's worth of traffic and relies on
// file rotation (package repository), not in-place rehashing, to bound
// chain length over the file's lifetime.
const (
	DefaultDataHashTableBuckets  = 2047
	DefaultFieldHashTableBuckets = 333
)

// Create creates a new, empty, keyed-hash journal file at path and opens it
// for writing.
func Create(path string, opts ...Option) (*JournalFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}

	if err := initEmptyFile(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}

	jf := newJournalFile(path, f, true, opts...)
	if err := jf.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return jf, nil
}

func initEmptyFile(f *os.File) error {
	dataTableSize := uint64(format.ObjectHeaderSize) + DefaultDataHashTableBuckets*format.HashItemSize
	fieldTableSize := uint64(format.ObjectHeaderSize) + DefaultFieldHashTableBuckets*format.HashItemSize

	dataTableOffset := align8(format.HeaderSize)
	fieldTableOffset := align8(dataTableOffset + dataTableSize)
	arenaEnd := align8(fieldTableOffset + fieldTableSize)

	buf := make([]byte, arenaEnd)

	fileID := newRandomID()
	machineID := newRandomID()
	seqnumID := newRandomID()

	h := format.JournalHeader{
		Signature:            format.Signature,
		IncompatibleFlags:    format.IncompatibleKeyedHash,
		State:                format.StateOnline,
		FileID:               fileID,
		MachineID:            machineID,
		SeqnumID:             seqnumID,
		HeaderSize:           format.HeaderSize,
		ArenaSize:            arenaEnd - format.HeaderSize,
		DataHashTableOffset:  dataTableOffset,
		DataHashTableSize:    dataTableSize,
		FieldHashTableOffset: fieldTableOffset,
		FieldHashTableSize:   fieldTableSize,
		TailObjectOffset:     fieldTableOffset, // the field hash table is the last object written so far
		NObjects:             2,
	}
	copy(buf[0:format.HeaderSize], h.Bytes())

	putHashTableHeader(buf, dataTableOffset, format.ObjectDataHashTable, dataTableSize)
	putHashTableHeader(buf, fieldTableOffset, format.ObjectFieldHashTable, fieldTableSize)

	if err := f.Truncate(int64(arenaEnd)); err != nil {
		return err
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}

	return f.Sync()
}

func putHashTableHeader(buf []byte, offset uint64, typ format.ObjectType, size uint64) {
	buf[offset] = uint8(typ)
	binary.LittleEndian.PutUint64(buf[offset+8:offset+16], size)
}

func align8(n uint64) uint64 {
	if n%format.Alignment == 0 {
		return n
	}
	return n + (format.Alignment - n%format.Alignment)
}

func newRandomID() [16]byte {
	var id [16]byte
	u := ulid.Make()
	copy(id[:], u[:])
	return id
}
