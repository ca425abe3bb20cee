package object

import (
	"encoding/binary"
	"testing"

	"github.com/netdata/journal/format"
	"github.com/stretchr/testify/require"
)

// memSource is a Source backed by a single in-memory buffer, for tests.
type memSource struct {
	buf []byte
}

func (s *memSource) View(offset uint64, length int) ([]byte, func(), error) {
	return s.buf[offset : offset+uint64(length)], func() {}, nil
}

func putObjectHeader(buf []byte, off int, typ format.ObjectType, flags uint8, size uint64) {
	buf[off] = uint8(typ)
	buf[off+1] = flags
	binary.LittleEndian.PutUint64(buf[off+8:off+16], size)
}

func TestLoadData(t *testing.T) {
	size := uint64(format.DataObjectBaseSize + 16)
	buf := make([]byte, size)
	putObjectHeader(buf, 0, format.ObjectData, 0, size)
	binary.LittleEndian.PutUint64(buf[16:24], 0xC0FFEE)
	copy(buf[format.DataObjectBaseSize:], []byte("MESSAGE=hi there"))

	src := &memSource{buf: buf}

	h, data, release, err := Load(src, 0, format.ObjectData)
	require.NoError(t, err)
	defer release()

	d, err := ParseData(h, data, 0, false)
	require.NoError(t, err)
	require.Equal(t, uint64(0xC0FFEE), d.Hash)

	payload, err := d.Payload()
	require.NoError(t, err)
	require.Equal(t, []byte("MESSAGE=hi there"), payload)
}

func TestLoadWrongType(t *testing.T) {
	size := uint64(format.FieldObjectBaseSize)
	buf := make([]byte, size)
	putObjectHeader(buf, 0, format.ObjectField, 0, size)

	src := &memSource{buf: buf}

	_, _, _, err := Load(src, 0, format.ObjectData)
	require.Error(t, err)
}

func TestParseEntryCompactItems(t *testing.T) {
	size := uint64(format.EntryObjectBaseSize + 8) // two compact items
	buf := make([]byte, size)
	putObjectHeader(buf, 0, format.ObjectEntry, 0, size)
	binary.LittleEndian.PutUint32(buf[format.EntryObjectBaseSize:], 128)
	binary.LittleEndian.PutUint32(buf[format.EntryObjectBaseSize+4:], 256)

	h, err := Header(buf, 0, format.ObjectEntry)
	require.NoError(t, err)

	e, err := ParseEntry(h, buf, 0, true)
	require.NoError(t, err)
	require.Equal(t, 2, e.NumDataOffsets())
	require.Equal(t, []uint64{128, 256}, e.DataOffsets())
}

func TestHashTableBucket(t *testing.T) {
	size := uint64(format.ObjectHeaderSize + format.HashItemSize*2)
	buf := make([]byte, size)
	putObjectHeader(buf, 0, format.ObjectDataHashTable, 0, size)
	binary.LittleEndian.PutUint64(buf[format.ObjectHeaderSize+16:format.ObjectHeaderSize+24], 777)

	h, err := Header(buf, 0, format.ObjectDataHashTable)
	require.NoError(t, err)

	ht, err := ParseHashTable(h, buf, 0)
	require.NoError(t, err)
	require.Equal(t, 2, ht.NumBuckets())

	head, tail, err := ht.Bucket(1)
	require.NoError(t, err)
	require.Equal(t, uint64(777), head)
	require.Equal(t, uint64(0), tail)
}
