package compress

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz"
)

// XZCodec implements Codec for format.CompressionXZ. XZ yields the best
// ratio of the three on-disk algorithms and is reserved for large text
// payloads (long log lines, stack traces) where the extra CPU cost pays for
// itself in arena space.
type XZCodec struct{}

var _ Codec = XZCodec{}

func (XZCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (XZCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return io.ReadAll(r)
}
