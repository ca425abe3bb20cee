package errs

import "fmt"

// FormatError reports a structural problem with a journal file: bad magic,
// unsupported flags, misaligned offsets, size overflow, or a type mismatch
// between an accessor and the object it addressed.
type FormatError struct {
	Op     string
	Offset uint64
	Err    error
}

func NewFormatError(op string, offset uint64, err error) *FormatError {
	return &FormatError{Op: op, Offset: offset, Err: err}
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("journal format: %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// OffsetError reports a problem resolving or walking an offset or offset-array chain.
type OffsetError struct {
	Op      string
	Offset  uint64
	Index   int
	Err     error
	Details map[string]any
}

func NewOffsetError(op string, offset uint64, err error) *OffsetError {
	return &OffsetError{Op: op, Offset: offset, Err: err}
}

func (e *OffsetError) WithIndex(i int) *OffsetError {
	e.Index = i
	return e
}

func (e *OffsetError) WithDetail(key string, value any) *OffsetError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("journal offset: %s at offset %d (index %d): %v", e.Op, e.Offset, e.Index, e.Err)
}

func (e *OffsetError) Unwrap() error { return e.Err }

// PayloadDecompressionError reports a failure decompressing a data object's payload.
type PayloadDecompressionError struct {
	Offset      uint64
	Algorithm   string
	PayloadSize int
	Err         error
}

func NewPayloadDecompressionError(offset uint64, algorithm string, payloadSize int, err error) *PayloadDecompressionError {
	return &PayloadDecompressionError{Offset: offset, Algorithm: algorithm, PayloadSize: payloadSize, Err: err}
}

func (e *PayloadDecompressionError) Error() string {
	return fmt.Sprintf("journal: %s decompression of %d-byte payload at offset %d failed: %v",
		e.Algorithm, e.PayloadSize, e.Offset, e.Err)
}

func (e *PayloadDecompressionError) Unwrap() error { return ErrPayloadDecompression }

// HashChainWarning is not an error; it's the payload logged when a hash-table
// bucket chain grows past the pathology threshold (spec design note: the file
// format places no upper bound on chain length).
type HashChainWarning struct {
	Table       string
	BucketIndex uint64
	ChainLength int
}

func (w HashChainWarning) String() string {
	return fmt.Sprintf("%s hash table bucket %d has a chain of %d objects", w.Table, w.BucketIndex, w.ChainLength)
}
