// Package format defines the on-disk object model of a journal file: the
// object header, the object type enumeration, compression and feature-flag
// bits, and the fixed-size journal header. Every type here is a pure,
// zero-logic description of bytes on disk; the object layer (package object)
// provides the zero-copy views and validation built on top of it.
package format

import "fmt"

// ObjectType identifies the kind of object an arena entry holds.
type ObjectType uint8

const (
	ObjectUnused         ObjectType = 0
	ObjectData           ObjectType = 1
	ObjectField          ObjectType = 2
	ObjectEntry          ObjectType = 3
	ObjectDataHashTable  ObjectType = 4
	ObjectFieldHashTable ObjectType = 5
	ObjectEntryArray     ObjectType = 6
	ObjectTag            ObjectType = 7
)

func (t ObjectType) String() string {
	switch t {
	case ObjectUnused:
		return "Unused"
	case ObjectData:
		return "Data"
	case ObjectField:
		return "Field"
	case ObjectEntry:
		return "Entry"
	case ObjectDataHashTable:
		return "DataHashTable"
	case ObjectFieldHashTable:
		return "FieldHashTable"
	case ObjectEntryArray:
		return "EntryArray"
	case ObjectTag:
		return "Tag"
	default:
		return fmt.Sprintf("ObjectType(%d)", uint8(t))
	}
}

// CompressionAlgorithm identifies the payload compression algorithm encoded in
// an object header's flags byte. At most one bit is set at a time.
type CompressionAlgorithm uint8

const (
	CompressionNone CompressionAlgorithm = 0
	CompressionXZ   CompressionAlgorithm = 1 << 0
	CompressionLZ4  CompressionAlgorithm = 1 << 1
	CompressionZstd CompressionAlgorithm = 1 << 2

	compressionMask = CompressionXZ | CompressionLZ4 | CompressionZstd
)

func (c CompressionAlgorithm) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionXZ:
		return "XZ"
	case CompressionLZ4:
		return "LZ4"
	case CompressionZstd:
		return "Zstd"
	default:
		return fmt.Sprintf("CompressionAlgorithm(%d)", uint8(c))
	}
}

// ObjectFlagCompression extracts the compression algorithm from an object
// header's flags byte.
func ObjectFlagCompression(flags uint8) CompressionAlgorithm {
	return CompressionAlgorithm(flags) & compressionMask
}

// Incompatible feature flags, stored in the journal header. Files declaring a
// bit this implementation doesn't understand must be rejected (ErrUnsupportedIncompatibleFlags).
const (
	IncompatibleCompressedXZ   uint32 = 1 << 0
	IncompatibleCompressedLZ4  uint32 = 1 << 1
	IncompatibleKeyedHash      uint32 = 1 << 2
	IncompatibleCompressedZstd uint32 = 1 << 3
	IncompatibleCompact        uint32 = 1 << 4

	// SupportedIncompatibleFlags is the set of incompatible bits this implementation
	// understands; anything else in a file's incompatible_flags is a hard error.
	SupportedIncompatibleFlags = IncompatibleCompressedXZ | IncompatibleCompressedLZ4 |
		IncompatibleKeyedHash | IncompatibleCompressedZstd | IncompatibleCompact
)

// Compatible feature flags: a reader may ignore bits it doesn't understand.
const (
	CompatibleSealed uint32 = 1 << 0
)

// State is the journal header's online/offline/archived indicator.
type State uint8

const (
	StateOffline  State = 0
	StateOnline   State = 1
	StateArchived State = 2
	StateFailed   State = 3
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "Offline"
	case StateOnline:
		return "Online"
	case StateArchived:
		return "Archived"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Signature is the fixed 8-byte magic at the start of every journal file,
// preserved byte-for-byte for compatibility with existing journal readers.
var Signature = [8]byte{'L', 'P', 'K', 'S', 'H', 'H', 'R', 'H'}

// Alignment all object offsets must satisfy.
const Alignment = 8

// IsAligned reports whether offset is a valid non-null object offset.
func IsAligned(offset uint64) bool {
	return offset != 0 && offset%Alignment == 0
}
