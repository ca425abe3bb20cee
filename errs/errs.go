// Package errs collects the sentinel errors returned by the journal engine.
//
// Callers compare against these with errors.Is; structured variants that carry
// additional context (offsets, field names, chain lengths) live alongside the
// sentinels in this package and wrap one of them so errors.Is still matches.
package errs

import "errors"

var (
	// ErrInvalidMagic is returned when a journal file's signature doesn't match
	// the expected "LPKSHHRH" magic.
	ErrInvalidMagic = errors.New("journal: invalid file signature")
	// ErrUnsupportedIncompatibleFlags is returned when a file declares incompatible
	// feature flags this implementation doesn't understand.
	ErrUnsupportedIncompatibleFlags = errors.New("journal: unsupported incompatible flags")
	// ErrMisalignedOffset is returned when an object offset isn't 8-byte aligned.
	ErrMisalignedOffset = errors.New("journal: misaligned object offset")
	// ErrSizeOverflow is returned when an object's declared size doesn't fit in the file.
	ErrSizeOverflow = errors.New("journal: object size overflows file bounds")
	// ErrWrongObjectType is returned when an accessor is used against an object of a
	// different type than expected.
	ErrWrongObjectType = errors.New("journal: wrong object type for accessor")
	// ErrInvalidHeaderSize is returned when a journal header's byte slice isn't
	// exactly the expected size.
	ErrInvalidHeaderSize = errors.New("journal: invalid header size")

	// ErrPayloadDecompression is returned when decompressing an object's payload fails.
	ErrPayloadDecompression = errors.New("journal: payload decompression failed")

	// ErrNullOffset is returned when a non-null offset was required but zero was given.
	ErrNullOffset = errors.New("journal: unexpected null offset")
	// ErrInvalidArrayIndex is returned when an offset-array index is out of bounds.
	ErrInvalidArrayIndex = errors.New("journal: invalid offset-array index")
	// ErrEmptyArrayChain is returned when an offset-array chain has no nodes or no items.
	ErrEmptyArrayChain = errors.New("journal: empty offset-array chain")
	// ErrInvalidArrayChain is returned when an offset-array chain is structurally broken
	// (a node claims more/less capacity than its size allows, or a cycle is detected).
	ErrInvalidArrayChain = errors.New("journal: invalid offset-array chain")

	// ErrValueGuardInUse is returned by GuardedCell.TryGuard when a guard over the
	// same cell is still live.
	ErrValueGuardInUse = errors.New("journal: value guard already in use")

	// ErrUnsetCursor is returned when a cursor field is read before any successful step.
	ErrUnsetCursor = errors.New("journal: cursor has no resolved entry")

	// ErrInvalidField is returned when a payload doesn't look like "field=value".
	ErrInvalidField = errors.New("journal: invalid field payload")
	// ErrInvalidFieldPrefix is returned, wrapped in a FormatError, when a journal file basename
	// doesn't match the naming grammar (package repository). Field names are not checked against it.
	ErrInvalidFieldPrefix = errors.New("journal: invalid field name")
	// ErrNonUTF8Payload is returned when a payload expected to be UTF-8 text isn't.
	ErrNonUTF8Payload = errors.New("journal: payload is not valid UTF-8")
	// ErrNonIntegerPayload is returned when a payload expected to parse as an integer doesn't.
	ErrNonIntegerPayload = errors.New("journal: payload is not a valid integer")

	// ErrMalformedFilter is returned when a filter step is requested with no pending
	// matches and no compiled expression.
	ErrMalformedFilter = errors.New("journal: filter build requested with no pending matches")

	// ErrKeyedHashRequired is returned by the writer when asked to append to a file
	// that doesn't have the "keyed hash" incompatible flag set.
	ErrKeyedHashRequired = errors.New("journal: writer requires keyed-hash file format")

	// ErrFileOffline is returned by NewWriter when the file was opened read-only (Open)
	// rather than with OpenForWrite or Create.
	ErrFileOffline = errors.New("journal: file is not open for writing")

	// ErrNoFilesSucceeded is returned by the histogram engine when every file in a
	// request failed to evaluate.
	ErrNoFilesSucceeded = errors.New("journal: all files failed during histogram computation")

	// ErrXorHashMismatch is returned when an entry's recomputed xor_hash doesn't
	// match its stored value.
	ErrXorHashMismatch = errors.New("journal: entry xor_hash mismatch")
)
