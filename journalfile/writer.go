package journalfile

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"

	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
	"github.com/netdata/journal/internal/jenkins"
	"github.com/netdata/journal/internal/pool"
	"github.com/netdata/journal/mmio"
	"github.com/netdata/journal/object"
)

// Writer appends entries to a JournalFile opened with OpenForWrite or
// Create. Only one append may be in flight against a given file at a time;
// AddEntry enforces that with an mmio.GuardedCell rather than blocking, so a
// concurrent caller fails fast with errs.ErrValueGuardInUse instead of
// queuing behind a mutex.
type Writer struct {
	jf    *JournalFile
	guard *mmio.GuardedCell[struct{}]
}

// NewWriter wraps jf for appending. jf must have been opened with
// OpenForWrite or Create.
func NewWriter(jf *JournalFile) (*Writer, error) {
	if !jf.writable {
		return nil, errs.ErrFileOffline
	}
	if !jf.header.HasKeyedHash() {
		return nil, errs.ErrKeyedHashRequired
	}
	return &Writer{jf: jf, guard: mmio.NewGuardedCell(struct{}{})}, nil
}

// maxFieldNameLength bounds how long a field name may be before AddEntry
// rewrites it to a short ND_<md5> alias and records the original name in a
// one-time ND_REMAPPING side entry (see ensureFieldRemapped and the reader's
// ensureFieldRemappingsLoaded).
const maxFieldNameLength = 64

// remappingMarkerField tags the one-time side entries ensureFieldRemapped
// writes, so the reader can find them through the ND_REMAPPING=1 Data object
// in the data hash table without scanning every entry in the file.
const remappingMarkerField = "ND_REMAPPING"

// Field is one field=value pair of an appended entry.
type Field struct {
	Name  string
	Value []byte
}

// AddEntryNow appends one entry built from fields, stamping it with the
// JournalFile's monotone append clock rather than a caller-supplied
// timestamp. monotonic is set equal to realtime since this writer tracks no
// separate per-boot monotonic clock source.
func (w *Writer) AddEntryNow(fields []Field, bootID [16]byte) (seqnum uint64, err error) {
	realtime := w.jf.NowUsec()
	return w.AddEntry(fields, realtime, realtime, bootID)
}

// AddEntry appends one entry built from fields, at the given timestamps, and
// returns its assigned sequence number.
func (w *Writer) AddEntry(fields []Field, realtime, monotonic uint64, bootID [16]byte) (seqnum uint64, err error) {
	g, err := w.guard.TryGuard()
	if err != nil {
		return 0, err
	}
	defer g.Release()

	return w.addEntryLocked(fields, realtime, monotonic, bootID)
}

// addEntryLocked does the actual append. It's factored out of AddEntry so
// ensureFieldRemapped can recursively append a remapping marker entry while
// the guard from the outer AddEntry call is still held.
func (w *Writer) addEntryLocked(fields []Field, realtime, monotonic uint64, bootID [16]byte) (seqnum uint64, err error) {
	dataOffsets := make([]uint64, 0, len(fields))
	xorInputs := make([]uint64, 0, len(fields))

	bb := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(bb)

	for _, f := range fields {
		name := f.Name
		if len(name) > maxFieldNameLength {
			remapped, err := w.ensureFieldRemapped(name, bootID)
			if err != nil {
				return 0, err
			}
			name = remapped
		}

		bb.Reset()
		bb.MustWrite([]byte(name))
		bb.MustWrite([]byte{'='})
		bb.MustWrite(f.Value)
		payload := append([]byte(nil), bb.Bytes()...)

		offset, _, err := w.internDataAndField(name, payload)
		if err != nil {
			return 0, err
		}
		dataOffsets = append(dataOffsets, offset)
		// xor_hash always folds Jenkins lookup3 regardless of the file's
		// bucket-hashing mode, matching journal_file_hash_data's split
		// between bucket hashing and entry integrity hashing.
		xorInputs = append(xorInputs, jenkinsHash(payload))
	}

	xorHash := XorHash(xorInputs)

	entryOffset, err := w.appendEntryObject(dataOffsets, realtime, monotonic, bootID, xorHash)
	if err != nil {
		return 0, err
	}

	for _, off := range dataOffsets {
		if err := w.linkEntryIntoDataChain(off, entryOffset); err != nil {
			return 0, err
		}
	}

	if err := w.appendToGlobalChain(entryOffset); err != nil {
		return 0, err
	}

	return w.bumpHeaderAfterEntry(realtime, monotonic, bootID)
}

// ensureFieldRemapped returns the short "ND_<md5>" alias for an overlong
// field name, writing a one-time marker entry the first time this exact name
// is seen so the reader can recover the original name later. The marker
// entry carries ND_REMAPPING=1 plus ND_<md5>=<name>, an ordinary entry like
// any other, which is why this can simply recurse into addEntryLocked.
func (w *Writer) ensureFieldRemapped(name string, bootID [16]byte) (string, error) {
	sum := md5.Sum([]byte(name))
	remapped := "ND_" + hex.EncodeToString(sum[:])

	marker := remapped + "=" + name
	if _, ok, err := w.jf.lookupData([]byte(marker)); err != nil {
		return "", err
	} else if ok {
		return remapped, nil
	}

	markerFields := []Field{
		{Name: remappingMarkerField, Value: []byte("1")},
		{Name: remapped, Value: []byte(name)},
	}
	now := w.jf.NowUsec()
	if _, err := w.addEntryLocked(markerFields, now, now, bootID); err != nil {
		return "", err
	}

	return remapped, nil
}

// internDataAndField finds or creates the Data object for payload and its
// owning Field object, linking both into their respective hash tables, and
// returns the Data object's offset and hash.
func (w *Writer) internDataAndField(field string, payload []byte) (offset, hash uint64, err error) {
	hash = w.jf.Hash(payload)

	if existing, ok, err := w.jf.lookupData(payload); err != nil {
		return 0, 0, err
	} else if ok {
		return existing, hash, nil
	}

	fieldOffset, err := w.internField(field)
	if err != nil {
		return 0, 0, err
	}

	dataOffset, err := w.appendDataObject(payload, hash, fieldOffset)
	if err != nil {
		return 0, 0, err
	}

	if err := w.linkIntoHashTable(w.jf.header.DataHashTableOffset, hash, dataOffset, dataNextHashOffsetField); err != nil {
		return 0, 0, err
	}

	return dataOffset, hash, nil
}

func (w *Writer) internField(field string) (uint64, error) {
	name := []byte(field)
	if offset, ok, err := w.jf.lookupField(name); err != nil {
		return 0, err
	} else if ok {
		return offset, nil
	}

	hash := w.jf.Hash(name)
	offset, err := w.appendFieldObject(name, hash)
	if err != nil {
		return 0, err
	}

	if err := w.linkIntoHashTable(w.jf.header.FieldHashTableOffset, hash, offset, fieldNextHashOffsetField); err != nil {
		return 0, err
	}

	return offset, nil
}

// hashChainField identifies which kind of object (Data or Field) a
// next-hash-offset is rewritten in. Both keep next_hash_offset directly after
// their hash, at the same byte offset within the object.
type hashChainField int

const (
	dataNextHashOffsetField hashChainField = iota
	fieldNextHashOffsetField
)

// linkIntoHashTable appends offset to the bucket chain hash maps to in the
// hash-table object at tableOffset: it rewrites the next-hash-offset of the
// object the bucket's stored tail points at and moves the tail to offset, or
// sets the bucket's head/tail pair if the chain was empty.
func (w *Writer) linkIntoHashTable(tableOffset, hash, offset uint64, which hashChainField) error {
	h, data, release, err := object.Load(w.jf.Source(), tableOffset, format.ObjectUnused)
	if err != nil {
		return err
	}
	table, err := object.ParseHashTable(h, data, tableOffset)
	if err != nil {
		release()
		return err
	}

	idx := int(table.BucketIndex(hash))
	head, tail, err := table.Bucket(idx)
	release()
	if err != nil {
		return err
	}

	if head == 0 {
		return w.setBucket(tableOffset, idx, offset, offset)
	}

	if err := w.setNextHashOffset(tail, offset, which); err != nil {
		return err
	}
	return w.setBucket(tableOffset, idx, head, offset)
}

func (w *Writer) setBucket(tableOffset uint64, idx int, head, tail uint64) error {
	at := tableOffset + format.ObjectHeaderSize + uint64(idx)*format.HashItemSize
	buf, release, err := w.jf.mgr.View(at, format.HashItemSize)
	if err != nil {
		return err
	}
	defer release()
	binary.LittleEndian.PutUint64(buf[0:8], head)
	binary.LittleEndian.PutUint64(buf[8:16], tail)
	return nil
}

// setNextHashOffset rewrites the next-hash-offset field of the Data or Field
// object at offset, linking it to next.
func (w *Writer) setNextHashOffset(offset, next uint64, which hashChainField) error {
	var at uint64
	switch which {
	case dataNextHashOffsetField:
		at = offset + format.ObjectHeaderSize + 8 // hash, then next_hash_offset
	case fieldNextHashOffsetField:
		at = offset + format.ObjectHeaderSize + 8
	}
	buf, release, err := w.jf.mgr.View(at, 8)
	if err != nil {
		return err
	}
	defer release()
	binary.LittleEndian.PutUint64(buf, next)
	return nil
}

// linkEntryIntoDataChain appends entryOffset to the Data object's own
// per-value offset-array chain (the set of entries that reference it), and
// bumps its NEntries counter.
func (w *Writer) linkEntryIntoDataChain(dataOffset, entryOffset uint64) error {
	h, data, release, err := object.Load(w.jf.Source(), dataOffset, format.ObjectData)
	if err != nil {
		return err
	}
	d, err := object.ParseData(h, data, dataOffset, w.jf.Compact())
	release()
	if err != nil {
		return err
	}

	arrayHeadAt := dataOffset + format.ObjectHeaderSize + 3*8 + 8 // hash,next_hash,next_field,entry_offset | entry_array_offset
	entryOffsetAt := dataOffset + format.ObjectHeaderSize + 3*8
	nEntriesAt := dataOffset + format.ObjectHeaderSize + 5*8

	if d.NEntries == 0 {
		buf, release, err := w.jf.mgr.View(entryOffsetAt, 8)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf, entryOffset)
		release()
	} else {
		if err := w.appendToChain(arrayHeadAt, d.EntryArrayOffset, entryOffset); err != nil {
			return err
		}
	}

	buf, release, err := w.jf.mgr.View(nEntriesAt, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf, d.NEntries+1)
	release()

	return nil
}

// appendToGlobalChain appends entryOffset to the file-wide entry array
// chain rooted at the journal header's entry_array_offset.
func (w *Writer) appendToGlobalChain(entryOffset uint64) error {
	return w.appendToChain(0, w.jf.header.EntryArrayOffset, entryOffset)
}

// appendToChain appends item to the offset-array chain rooted at head,
// creating the chain's first node if head is zero (headFieldAt, when
// nonzero, is the file offset of the pointer that must be updated to point
// at a freshly created first node).
func (w *Writer) appendToChain(headFieldAt, head, item uint64) error {
	if head == 0 {
		node, err := w.appendEntryArrayNode(0, []uint64{item})
		if err != nil {
			return err
		}
		return w.setHeadPointer(headFieldAt, node)
	}

	offset := head
	for {
		h, data, release, err := object.Load(w.jf.Source(), offset, format.ObjectEntryArray)
		if err != nil {
			return err
		}
		node, err := object.ParseEntryArray(h, data, offset, w.jf.Compact())
		if err != nil {
			release()
			return err
		}

		slot, ok := firstFreeSlot(node)
		release()
		if ok {
			return w.setArrayItem(offset, slot, item)
		}
		if node.NextEntryArrayOffset == 0 {
			next, err := w.appendEntryArrayNode(0, []uint64{item})
			if err != nil {
				return err
			}
			return w.setNextEntryArrayOffset(offset, next)
		}
		offset = node.NextEntryArrayOffset
	}
}

func firstFreeSlot(node object.EntryArray) (int, bool) {
	for i := 0; i < node.Capacity(); i++ {
		v, err := node.Item(i)
		if err != nil {
			return 0, false
		}
		if v == 0 {
			return i, true
		}
	}
	return 0, false
}

func (w *Writer) setArrayItem(nodeOffset uint64, slot int, value uint64) error {
	width := format.ItemSize(w.jf.Compact())
	at := nodeOffset + format.EntryArrayObjectBaseSize + uint64(slot)*uint64(width)
	buf, release, err := w.jf.mgr.View(at, width)
	if err != nil {
		return err
	}
	defer release()
	putItem(buf, value, w.jf.Compact())
	return nil
}

func (w *Writer) setNextEntryArrayOffset(nodeOffset, next uint64) error {
	buf, release, err := w.jf.mgr.View(nodeOffset+format.ObjectHeaderSize, 8)
	if err != nil {
		return err
	}
	defer release()
	binary.LittleEndian.PutUint64(buf, next)
	return nil
}

func (w *Writer) setHeadPointer(fieldAt uint64, node uint64) error {
	if fieldAt == 0 {
		return w.setHeaderEntryArrayOffset(node)
	}
	buf, release, err := w.jf.mgr.View(fieldAt, 8)
	if err != nil {
		return err
	}
	defer release()
	binary.LittleEndian.PutUint64(buf, node)
	return nil
}

func putItem(buf []byte, value uint64, compact bool) {
	if compact {
		binary.LittleEndian.PutUint32(buf, uint32(value))
		return
	}
	binary.LittleEndian.PutUint64(buf, value)
}

// entryArrayNodeCapacity bounds how many item slots a freshly created node
// reserves. Real journal files grow this geometrically per generation; a
// single fixed size keeps this writer's allocator simple at the cost of
// longer chains on very large files.
const entryArrayNodeCapacity = 64

func (w *Writer) appendEntryArrayNode(next uint64, seed []uint64) (uint64, error) {
	width := format.ItemSize(w.jf.Compact())
	size := format.EntryArrayObjectBaseSize + uint64(entryArrayNodeCapacity*width)

	offset, err := w.growArena(size)
	if err != nil {
		return 0, err
	}

	buf, release, err := w.jf.mgr.View(offset, int(size))
	if err != nil {
		return 0, err
	}
	defer release()

	putObjectHeader(buf, format.ObjectEntryArray, size)
	binary.LittleEndian.PutUint64(buf[16:24], next)
	for i, v := range seed {
		putItem(buf[format.EntryArrayObjectBaseSize+uint64(i*width):], v, w.jf.Compact())
	}

	return offset, nil
}

func (w *Writer) appendDataObject(payload []byte, hash, fieldOffset uint64) (uint64, error) {
	size := uint64(format.DataObjectBaseSize) + uint64(len(payload))
	offset, err := w.growArena(size)
	if err != nil {
		return 0, err
	}

	buf, release, err := w.jf.mgr.View(offset, int(size))
	if err != nil {
		return 0, err
	}
	defer release()

	putObjectHeader(buf, format.ObjectData, size)
	binary.LittleEndian.PutUint64(buf[16:24], hash)
	// next_hash_offset(24:32)=0, next_field_offset written below
	binary.LittleEndian.PutUint64(buf[32:40], 0)
	// entry_offset(40:48)=0, entry_array_offset(48:56)=0, n_entries(56:64)=0
	copy(buf[format.DataObjectBaseSize:], payload)

	if err := w.chainFieldData(fieldOffset, offset); err != nil {
		return 0, err
	}

	return offset, nil
}

// chainFieldData links dataOffset into field's per-field chain of Data
// objects (the set of values ever seen for that field name).
func (w *Writer) chainFieldData(fieldOffset, dataOffset uint64) error {
	h, data, release, err := object.Load(w.jf.Source(), fieldOffset, format.ObjectField)
	if err != nil {
		return err
	}
	f, err := object.ParseField(h, data, fieldOffset)
	release()
	if err != nil {
		return err
	}

	if f.HeadDataOffset == 0 {
		buf, release, err := w.jf.mgr.View(fieldOffset+format.ObjectHeaderSize+16, 8)
		if err != nil {
			return err
		}
		defer release()
		binary.LittleEndian.PutUint64(buf, dataOffset)
		return nil
	}

	// Walk to the tail of the field's data chain via next_field_offset.
	cur := f.HeadDataOffset
	for {
		h, data, release, err := object.Load(w.jf.Source(), cur, format.ObjectData)
		if err != nil {
			return err
		}
		d, err := object.ParseData(h, data, cur, w.jf.Compact())
		release()
		if err != nil {
			return err
		}
		if d.NextFieldOffset == 0 {
			buf, release, err := w.jf.mgr.View(cur+format.ObjectHeaderSize+16, 8)
			if err != nil {
				return err
			}
			defer release()
			binary.LittleEndian.PutUint64(buf, dataOffset)
			return nil
		}
		cur = d.NextFieldOffset
	}
}

func (w *Writer) appendFieldObject(name []byte, hash uint64) (uint64, error) {
	size := uint64(format.FieldObjectBaseSize) + uint64(len(name))
	offset, err := w.growArena(size)
	if err != nil {
		return 0, err
	}

	buf, release, err := w.jf.mgr.View(offset, int(size))
	if err != nil {
		return 0, err
	}
	defer release()

	putObjectHeader(buf, format.ObjectField, size)
	binary.LittleEndian.PutUint64(buf[16:24], hash)
	copy(buf[format.FieldObjectBaseSize:], name)

	return offset, nil
}

func (w *Writer) appendEntryObject(dataOffsets []uint64, realtime, monotonic uint64, bootID [16]byte, xorHash uint64) (uint64, error) {
	width := format.ItemSize(w.jf.Compact())
	size := uint64(format.EntryObjectBaseSize) + uint64(len(dataOffsets)*width)

	offset, err := w.growArena(size)
	if err != nil {
		return 0, err
	}

	seqnum := w.jf.header.TailEntrySeqnum + 1

	buf, release, err := w.jf.mgr.View(offset, int(size))
	if err != nil {
		return 0, err
	}
	defer release()

	putObjectHeader(buf, format.ObjectEntry, size)
	binary.LittleEndian.PutUint64(buf[16:24], seqnum)
	binary.LittleEndian.PutUint64(buf[24:32], realtime)
	binary.LittleEndian.PutUint64(buf[32:40], monotonic)
	copy(buf[40:56], bootID[:])
	binary.LittleEndian.PutUint64(buf[56:64], xorHash)
	for i, do := range dataOffsets {
		putItem(buf[format.EntryObjectBaseSize+uint64(i*width):], do, w.jf.Compact())
	}

	return offset, nil
}

func putObjectHeader(buf []byte, typ format.ObjectType, size uint64) {
	buf[0] = uint8(typ)
	binary.LittleEndian.PutUint64(buf[8:16], size)
}

// growArena extends the file by size bytes, 8-byte aligned, and returns the
// offset the new object starts at (immediately after the current end of the
// arena, not after the tail object's own offset). It invalidates the window
// manager's cache so the freshly extended region is visible to subsequent
// mappings.
func (w *Writer) growArena(size uint64) (uint64, error) {
	arenaEnd := w.jf.header.HeaderSize + w.jf.header.ArenaSize
	offset := align8(arenaEnd)
	newEnd := offset + align8(size)

	if err := w.jf.file.Truncate(int64(newEnd)); err != nil {
		return 0, err
	}
	w.jf.mgr.Invalidate()

	w.jf.header.TailObjectOffset = offset
	w.jf.header.ArenaSize = newEnd - w.jf.header.HeaderSize
	w.jf.header.NObjects++

	return offset, nil
}

func (w *Writer) setHeaderEntryArrayOffset(offset uint64) error {
	w.jf.header.EntryArrayOffset = offset
	return w.flushHeader()
}

// bumpHeaderAfterEntry updates the journal header's entry-count and
// timestamp bookkeeping fields after a successful append, and persists the
// header to disk.
func (w *Writer) bumpHeaderAfterEntry(realtime, monotonic uint64, bootID [16]byte) (uint64, error) {
	h := &w.jf.header

	h.TailEntrySeqnum++
	if h.HeadEntrySeqnum == 0 {
		h.HeadEntrySeqnum = h.TailEntrySeqnum
	}
	h.NEntries++
	if h.HeadEntryRealtime == 0 {
		h.HeadEntryRealtime = realtime
	}
	h.TailEntryRealtime = realtime
	h.TailEntryMonotonic = monotonic
	h.TailEntryBootID = bootID

	if err := w.flushHeader(); err != nil {
		return 0, err
	}

	return h.TailEntrySeqnum, nil
}

func (w *Writer) flushHeader() error {
	buf, release, err := w.jf.mgr.View(0, format.HeaderSize)
	if err != nil {
		return err
	}
	defer release()
	copy(buf, w.jf.header.Bytes())
	return nil
}

// jenkinsHash exposes the always-Jenkins hash used for XorHash folding, kept
// alongside the writer since it's the only caller that computes it from raw
// payload bytes rather than via JournalFile.Hash (which may be keyed).
func jenkinsHash(payload []byte) uint64 {
	return jenkins.Hash64(payload)
}
