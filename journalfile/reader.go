package journalfile

import (
	"bytes"
	"fmt"

	"github.com/netdata/journal/cursor"
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/filter"
	"github.com/netdata/journal/format"
	"github.com/netdata/journal/object"
)

// remappingMarkerPayload is the Data object payload that tags a one-time
// field-name-remapping side entry (see journalfile/writer.go's
// ensureFieldRemapped). remappedFieldPrefix is the prefix every aliased
// field name carries.
const (
	remappingMarkerPayload = remappingMarkerField + "=1"
	remappedFieldPrefix    = "ND_"
)

// Reader is a single file's read cursor: a filtered walk over its global
// entry array, plus the field/value enumeration calls a journal client needs
// to build UI pickers independently of any active filter.
type Reader struct {
	jf      *JournalFile
	cur     *cursor.Cursor
	builder *filter.Builder

	fieldsIter   *object.HashTable
	fieldsBucket int
	fieldsChain  uint64

	entryDataIdx int

	remapLoaded           bool
	remapOriginalToNew    map[string]string
	remapNewToOriginal    map[string]string
	warnOnUnresolvedAlias bool
}

// ReaderOption configures NewReader.
type ReaderOption func(*Reader)

// WithWarnOnUnresolvedAlias controls what happens when an entry carries a
// ND_<md5> field-name alias with no corresponding ND_REMAPPING marker (a
// partial or corrupted remapping record): by default the alias is passed
// through untranslated with no log output; passing true logs a warning each
// time instead. Neither behavior treats it as an error, since the alias is
// itself a valid field name and the data is not lost.
func WithWarnOnUnresolvedAlias(warn bool) ReaderOption {
	return func(r *Reader) { r.warnOnUnresolvedAlias = warn }
}

// NewReader creates a Reader over jf's global entry array chain.
func NewReader(jf *JournalFile, opts ...ReaderOption) *Reader {
	r := &Reader{
		jf:      jf,
		cur:     cursor.New(jf.Source(), jf.header.EntryArrayOffset, jf.Compact()),
		builder: filter.NewBuilder(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// materializeFieldName returns the original field name for an ND_<md5>
// alias, or field unchanged if it isn't an alias at all. An alias missing
// from the remapping table (its ND_REMAPPING marker is missing or not yet
// loaded) is passed through as-is; see WithWarnOnUnresolvedAlias.
func (r *Reader) materializeFieldName(field []byte) []byte {
	if original, ok := r.remapNewToOriginal[string(field)]; ok {
		return []byte(original)
	}
	if r.warnOnUnresolvedAlias && bytes.HasPrefix(field, []byte(remappedFieldPrefix)) {
		r.jf.log.Warnw("field alias has no recorded ND_REMAPPING mapping", "field", string(field))
	}
	return field
}

// ensureFieldRemappingsLoaded loads the file's field-name-remapping table
// once, by finding the ND_REMAPPING=1 Data object (if any field was ever
// remapped) and walking every entry that references it: each such entry is
// itself a one-time marker carrying ND_REMAPPING=1 plus a single
// ND_<md5>=<original name> field.
func (r *Reader) ensureFieldRemappingsLoaded() error {
	if r.remapLoaded {
		return nil
	}
	r.remapLoaded = true

	offset, ok, err := r.jf.lookupData([]byte(remappingMarkerPayload))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	h, data, release, err := object.Load(r.jf.Source(), offset, format.ObjectData)
	if err != nil {
		return err
	}
	d, err := object.ParseData(h, data, offset, r.jf.Compact())
	release()
	if err != nil {
		return err
	}

	entryOffsets, err := r.entriesReferencingData(d)
	if err != nil {
		return err
	}

	originalToNew := make(map[string]string, len(entryOffsets))
	newToOriginal := make(map[string]string, len(entryOffsets))

	for _, eoff := range entryOffsets {
		h, data, release, err := object.Load(r.jf.Source(), eoff, format.ObjectEntry)
		if err != nil {
			return err
		}
		e, err := object.ParseEntry(h, data, eoff, r.jf.Compact())
		if err != nil {
			release()
			return err
		}
		dataOffsets := e.DataOffsets()
		release()

		for _, doff := range dataOffsets {
			dh, ddata, drelease, derr := object.Load(r.jf.Source(), doff, format.ObjectData)
			if derr != nil {
				return derr
			}
			dobj, derr := object.ParseData(dh, ddata, doff, r.jf.Compact())
			if derr != nil {
				drelease()
				return derr
			}
			payload, derr := dobj.Payload()
			if derr != nil {
				drelease()
				return derr
			}
			payload = append([]byte(nil), payload...)
			drelease()

			field, value, serr := splitRawFieldValue(payload)
			if serr != nil || string(field) == remappingMarkerField {
				continue
			}
			if !bytes.HasPrefix(field, []byte(remappedFieldPrefix)) {
				continue
			}
			newToOriginal[string(field)] = string(value)
			originalToNew[string(value)] = string(field)
		}
	}

	r.remapOriginalToNew = originalToNew
	r.remapNewToOriginal = newToOriginal

	return nil
}

// entriesReferencingData returns every entry offset in d's own per-data
// entry chain: the first entry lives directly in d.EntryOffset, and any
// further ones are threaded through the offset-array chain rooted at
// d.EntryArrayOffset (mirroring how Writer.linkEntryIntoDataChain links
// them in).
func (r *Reader) entriesReferencingData(d object.Data) ([]uint64, error) {
	if d.NEntries == 0 {
		return nil, nil
	}

	offsets := []uint64{d.EntryOffset}
	if d.NEntries == 1 {
		return offsets, nil
	}

	ac := cursor.NewArrayCursor(r.jf.Source(), d.EntryArrayOffset, r.jf.Compact())
	defer ac.Close()

	v, err := ac.First()
	if err == errs.ErrEmptyArrayChain {
		return offsets, nil
	}
	if err != nil {
		return nil, err
	}
	offsets = append(offsets, v)

	for {
		v, err = ac.Next()
		if err == errs.ErrInvalidArrayIndex {
			break
		}
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, v)
	}

	return offsets, nil
}

// Close releases resources held by the underlying cursor.
func (r *Reader) Close() {
	r.cur.Close()
}

// SetVerifyXorHash toggles recomputing and checking each resolved entry's
// xor_hash against its referenced Data objects, surfacing a mismatch as a
// FormatError from Step. On by default.
func (r *Reader) SetVerifyXorHash(enabled bool) {
	r.cur.SetVerifyXorHash(enabled)
}

// SeekHead, SeekTail, SeekRealtime, SeekMonotonic and SeekSeqnum position the
// reader before Step is first called.
func (r *Reader) SeekHead() error { return r.cur.SeekHead() }
func (r *Reader) SeekTail() error { return r.cur.SeekTail() }

func (r *Reader) SeekRealtime(usec uint64) error {
	return r.cur.SeekRealtime(usec)
}

func (r *Reader) SeekMonotonic(bootID [16]byte, usec uint64) error {
	return r.cur.SeekMonotonic(bootID, usec)
}

func (r *Reader) SeekSeqnum(seqnum uint64) error {
	return r.cur.SeekSeqnum(seqnum)
}

// AddMatch resolves "field=value" against this file's data hash table and
// adds it to the pending filter group. A field=value pair absent from this
// file contributes a leaf that never matches, mirroring add_match's
// behavior of accepting matches that happen not to occur in a given file
// (the match may still occur in sibling files of the same query). field is
// translated through the file's long-field-name remapping table first, if
// it was ever remapped in this file.
func (r *Reader) AddMatch(field, value string) error {
	if err := r.ensureFieldRemappingsLoaded(); err != nil {
		return err
	}

	lookupField := field
	if remapped, ok := r.remapOriginalToNew[field]; ok {
		lookupField = remapped
	}

	fv := fmt.Sprintf("%s=%s", lookupField, value)
	offset, ok, err := r.jf.lookupData([]byte(fv))
	if err != nil {
		return err
	}
	if !ok {
		offset = 0 // a zero data offset never appears in a real entry's DataOffsets()
	}
	r.builder.AddMatch(field, value, offset)
	return nil
}

// AddConjunction starts a new AND-group, OR'd against every prior group.
func (r *Reader) AddConjunction() { r.builder.AddConjunction() }

// AddDisjunction starts a new top-level OR alternative.
func (r *Reader) AddDisjunction() { r.builder.AddDisjunction() }

// FlushMatches discards every pending match and disables filtering.
func (r *Reader) FlushMatches() {
	r.builder.Reset()
	r.cur.SetFilter(filter.None)
}

// ApplyMatches compiles the matches accumulated via AddMatch/AddConjunction/
// AddDisjunction and installs them on the cursor. Callers must call this
// after building a match set and before Step.
func (r *Reader) ApplyMatches() {
	r.cur.SetFilter(r.builder.Build())
}

// Step advances the cursor forward (forward=true) or backward, returning
// false once the chain is exhausted in that direction.
func (r *Reader) Step(forward bool) (bool, error) {
	if forward {
		return r.cur.Next()
	}
	return r.cur.Previous()
}

// GetEntryOffset returns the file offset of the currently resolved entry.
func (r *Reader) GetEntryOffset() (uint64, error) {
	_, offset, err := r.cur.Entry()
	return offset, err
}

// GetSeqnum returns the currently resolved entry's sequence number.
func (r *Reader) GetSeqnum() (uint64, error) {
	e, _, err := r.cur.Entry()
	return e.Seqnum, err
}

// GetRealtimeUsec returns the currently resolved entry's wallclock timestamp.
func (r *Reader) GetRealtimeUsec() (uint64, error) {
	e, _, err := r.cur.Entry()
	return e.Realtime, err
}

// GetMonotonicUsec returns the currently resolved entry's boot-relative
// timestamp and the boot it was recorded under.
func (r *Reader) GetMonotonicUsec() (usec uint64, bootID [16]byte, err error) {
	e, _, err := r.cur.Entry()
	return e.Monotonic, e.BootID, err
}

// EntryDataRestart rewinds EntryDataEnumerate to the first Data object
// referenced by the currently resolved entry.
func (r *Reader) EntryDataRestart() {
	r.entryDataIdx = 0
}

// EntryDataEnumerate returns the next (field, value) pair referenced by the
// currently resolved entry, materializing the original field name in place
// of any ND_<md5> remapping alias transparently. It returns ok=false once
// every referenced Data object has been visited.
func (r *Reader) EntryDataEnumerate() (field, value []byte, ok bool, err error) {
	if err := r.ensureFieldRemappingsLoaded(); err != nil {
		return nil, nil, false, err
	}

	e, _, err := r.cur.Entry()
	if err != nil {
		return nil, nil, false, err
	}

	for r.entryDataIdx < e.NumDataOffsets() {
		offset, derr := e.DataOffset(r.entryDataIdx)
		r.entryDataIdx++
		if derr != nil {
			return nil, nil, false, derr
		}

		h, data, release, lerr := object.Load(r.jf.Source(), offset, format.ObjectData)
		if lerr != nil {
			return nil, nil, false, lerr
		}
		d, perr := object.ParseData(h, data, offset, r.jf.Compact())
		if perr != nil {
			release()
			return nil, nil, false, perr
		}
		payload, perr := d.Payload()
		if perr != nil {
			release()
			return nil, nil, false, perr
		}
		payload = append([]byte(nil), payload...)
		release()

		f, v, serr := splitRawFieldValue(payload)
		if serr != nil {
			continue
		}
		return r.materializeFieldName(f), v, true, nil
	}

	return nil, nil, false, nil
}

// FieldsRestart rewinds FieldsEnumerate to the first bucket of the field
// hash table.
func (r *Reader) FieldsRestart() {
	r.fieldsIter = nil
	r.fieldsBucket = 0
	r.fieldsChain = 0
}

// FieldsEnumerate returns the next distinct field name declared anywhere in
// the file (e.g. "MESSAGE", "PRIORITY"), walking every bucket of the field
// hash table exactly once. The internal ND_REMAPPING marker field and its
// ND_<md5> aliases are never surfaced directly: aliases are materialized
// back to the field name they stand in for.
func (r *Reader) FieldsEnumerate() (name []byte, ok bool, err error) {
	if err := r.ensureFieldRemappingsLoaded(); err != nil {
		return nil, false, err
	}

	if r.fieldsIter == nil {
		h, data, release, lerr := object.Load(r.jf.Source(), r.jf.header.FieldHashTableOffset, format.ObjectFieldHashTable)
		if lerr != nil {
			return nil, false, lerr
		}
		data = append([]byte(nil), data...)
		release()
		table, perr := object.ParseHashTable(h, data, r.jf.header.FieldHashTableOffset)
		if perr != nil {
			return nil, false, perr
		}
		r.fieldsIter = &table
		r.fieldsBucket = 0
		r.fieldsChain = 0
	}

	for {
		if r.fieldsChain == 0 {
			if r.fieldsBucket >= r.fieldsIter.NumBuckets() {
				return nil, false, nil
			}
			head, _, berr := r.fieldsIter.Bucket(r.fieldsBucket)
			r.fieldsBucket++
			if berr != nil {
				return nil, false, berr
			}
			r.fieldsChain = head
			if r.fieldsChain == 0 {
				continue
			}
		}

		offset := r.fieldsChain
		h, data, release, lerr := object.Load(r.jf.Source(), offset, format.ObjectField)
		if lerr != nil {
			return nil, false, lerr
		}
		fo, perr := object.ParseField(h, data, offset)
		if perr != nil {
			release()
			return nil, false, perr
		}
		fo.Name = append([]byte(nil), fo.Name...)
		release()

		r.fieldsChain = fo.NextHashOffset

		if string(fo.Name) == remappingMarkerField {
			continue
		}
		return r.materializeFieldName(fo.Name), true, nil
	}
}

// FieldDataRestart rewinds FieldDataEnumerate for field to its first value.
// field is translated through the remapping table first, so callers always
// address fields by their original name regardless of how long it is.
func (r *Reader) FieldDataRestart(field []byte) (*fieldValueIter, error) {
	if err := r.ensureFieldRemappingsLoaded(); err != nil {
		return nil, err
	}

	lookupName := field
	if remapped, ok := r.remapOriginalToNew[string(field)]; ok {
		lookupName = []byte(remapped)
	}

	offset, ok, err := r.jf.lookupField(lookupName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &fieldValueIter{done: true}, nil
	}

	h, data, release, err := object.Load(r.jf.Source(), offset, format.ObjectField)
	if err != nil {
		return nil, err
	}
	fo, err := object.ParseField(h, data, offset)
	release()
	if err != nil {
		return nil, err
	}

	return &fieldValueIter{r: r, next: fo.HeadDataOffset}, nil
}

// fieldValueIter walks the per-field chain of Data objects sharing one field
// name, used by FieldDataEnumerate (every value a field has ever taken) and
// FieldDataQueryUnique (the same, deduplicated by the caller).
type fieldValueIter struct {
	r    *Reader
	next uint64
	done bool
}

// Next returns the next "field=value" payload in the chain.
func (it *fieldValueIter) Next() (value []byte, ok bool, err error) {
	if it.done || it.next == 0 {
		return nil, false, nil
	}

	offset := it.next
	h, data, release, err := object.Load(it.r.jf.Source(), offset, format.ObjectData)
	if err != nil {
		return nil, false, err
	}
	d, err := object.ParseData(h, data, offset, it.r.jf.Compact())
	if err != nil {
		release()
		return nil, false, err
	}
	payload, err := d.Payload()
	if err != nil {
		release()
		return nil, false, err
	}
	payload = append([]byte(nil), payload...)
	release()

	it.next = d.NextFieldOffset

	_, v, serr := splitRawFieldValue(payload)
	if serr != nil {
		return payload, true, nil
	}
	return v, true, nil
}

// FieldDataQueryUnique returns every distinct value field has ever taken in
// this file.
func (r *Reader) FieldDataQueryUnique(field []byte) ([][]byte, error) {
	it, err := r.FieldDataRestart(field)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out [][]byte
	for {
		v, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		key := string(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}

	return out, nil
}

// splitRawFieldValue splits a Data object's raw "field=value" payload on its
// first '=', with no remapping-alias translation: callers that need the
// original long field name back do that translation themselves via the
// remapping table, since whether "field" here is an alias depends on
// context (e.g. fieldValueIter.Next never needs the field half at all).
func splitRawFieldValue(payload []byte) (field, value []byte, err error) {
	idx := bytes.IndexByte(payload, '=')
	if idx < 0 {
		return nil, nil, errs.ErrInvalidField
	}
	return payload[:idx], payload[idx+1:], nil
}
