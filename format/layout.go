package format

// Fixed sizes of each object's header fields, not counting its variable-
// length payload (a Data or Field object's trailing bytes, an EntryArray's
// or HashTable's trailing item array). Bit-exact with systemd's
// journal-def.h so files this implementation writes are readable by any
// systemd journal tool, and vice versa.
const (
	// DataObjectBaseSize is ObjectHeaderSize + hash + next_hash_offset +
	// next_field_offset + entry_offset + entry_array_offset + n_entries.
	DataObjectBaseSize = ObjectHeaderSize + 6*8

	// FieldObjectBaseSize is ObjectHeaderSize + hash + next_hash_offset + head_data_offset.
	FieldObjectBaseSize = ObjectHeaderSize + 3*8

	// EntryObjectBaseSize is ObjectHeaderSize + seqnum + realtime + monotonic + boot_id[16] + xor_hash.
	EntryObjectBaseSize = ObjectHeaderSize + 3*8 + 16 + 8

	// EntryArrayObjectBaseSize is ObjectHeaderSize + next_entry_array_offset.
	EntryArrayObjectBaseSize = ObjectHeaderSize + 8

	// HashItemSize is the size of one bucket slot in a hash-table object:
	// head_hash_offset + tail_hash_offset.
	HashItemSize = 16

	// RegularItemSize is the width of one offset-array / entry data item
	// when the file is not in compact mode.
	RegularItemSize = 8
	// CompactItemSize is the width of one offset-array / entry data item
	// when the file's incompatible flags set IncompatibleCompact.
	CompactItemSize = 4

	// MaxDataPayloadSkip is the extra bytes compact-mode data objects may
	// reserve ahead of their payload (the "maybe" fields systemd added for
	// future use); this implementation never writes them but must skip
	// them when reading a compact-mode file produced elsewhere.
	MaxDataPayloadSkip = 8
)

// ItemSize returns the offset-array / entry item width for a file, given
// whether its incompatible flags set IncompatibleCompact.
func ItemSize(compact bool) int {
	if compact {
		return CompactItemSize
	}
	return RegularItemSize
}
