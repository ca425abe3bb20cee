package object

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
)

// HashTable is a zero-copy view over a DataHashTable or FieldHashTable
// object: a fixed-size table of (head, tail) offset pairs into the
// corresponding object's hash collision chains.
type HashTable struct {
	Header format.ObjectHeader

	buckets []byte
}

// ParseHashTable parses the hash-table object at offset within data, given
// its already-validated header h. It does not check h's object type.
func ParseHashTable(h format.ObjectHeader, data []byte, offset uint64) (HashTable, error) {
	size := h.Size - format.ObjectHeaderSize
	if size%format.HashItemSize != 0 {
		return HashTable{}, errs.NewOffsetError("parse hash table object", offset, errs.ErrSizeOverflow)
	}

	return HashTable{Header: h, buckets: data[format.ObjectHeaderSize:h.Size]}, nil
}

// NumBuckets returns the number of buckets in the table.
func (t HashTable) NumBuckets() int {
	return len(t.buckets) / format.HashItemSize
}

// Bucket returns the head and tail hash-chain offsets for bucket i.
func (t HashTable) Bucket(i int) (head, tail uint64, err error) {
	start := i * format.HashItemSize
	if i < 0 || start+format.HashItemSize > len(t.buckets) {
		return 0, 0, errs.ErrInvalidArrayIndex
	}
	head = le64(t.buckets[start : start+8])
	tail = le64(t.buckets[start+8 : start+16])
	return head, tail, nil
}

// BucketIndex maps a 64-bit hash onto a bucket slot in this table.
func (t HashTable) BucketIndex(hash uint64) uint64 {
	n := uint64(t.NumBuckets())
	if n == 0 {
		return 0
	}
	return hash % n
}
