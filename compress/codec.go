// Package compress provides the payload codecs a journal object's flags byte
// can select: none, XZ, LZ4, or Zstd, mirroring the three compression bits
// the on-disk format reserves.
package compress

import (
	"fmt"

	"github.com/netdata/journal/format"
)

// Compressor compresses a data object payload before it's written to the arena.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses a data object payload read from the arena.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions for a single algorithm.
type Codec interface {
	Compressor
	Decompressor
}

// NoOpCodec implements Codec for format.CompressionNone: it never touches
// the payload.
type NoOpCodec struct{}

var _ Codec = NoOpCodec{}

func (NoOpCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoOpCodec) Decompress(data []byte) ([]byte, error) { return data, nil }

// Get returns the Codec registered for algo.
func Get(algo format.CompressionAlgorithm) (Codec, error) {
	switch algo {
	case format.CompressionNone:
		return NoOpCodec{}, nil
	case format.CompressionXZ:
		return XZCodec{}, nil
	case format.CompressionLZ4:
		return LZ4Codec{}, nil
	case format.CompressionZstd:
		return ZstdCodec{}, nil
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", algo)
	}
}
