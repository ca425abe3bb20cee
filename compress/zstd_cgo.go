//go:build nobuild

package compress

import "github.com/valyala/gozstd"

// ZstdCodec is the cgo-backed variant, built only when explicitly requested
// (build tag nobuild is never set by default) since it requires a C
// toolchain and static libzstd at build time.
type ZstdCodec struct{}

var _ Codec = ZstdCodec{}

func (c ZstdCodec) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, 3), nil
}

func (c ZstdCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return gozstd.Decompress(nil, data)
}
