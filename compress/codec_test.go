package compress

import (
	"testing"

	"github.com/netdata/journal/format"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	cases := []struct {
		name string
		algo format.CompressionAlgorithm
		want Codec
	}{
		{"none", format.CompressionNone, NoOpCodec{}},
		{"xz", format.CompressionXZ, XZCodec{}},
		{"lz4", format.CompressionLZ4, LZ4Codec{}},
		{"zstd", format.CompressionZstd, ZstdCodec{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			codec, err := Get(tc.algo)
			require.NoError(t, err)
			require.IsType(t, tc.want, codec)
		})
	}
}

func TestGetUnsupported(t *testing.T) {
	_, err := Get(format.CompressionAlgorithm(0xFF))
	require.Error(t, err)
}

func roundTrip(t *testing.T, codec Codec, data []byte) {
	t.Helper()

	compressed, err := codec.Compress(data)
	require.NoError(t, err)

	decompressed, err := codec.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)
}

func TestNoOpRoundTrip(t *testing.T) {
	roundTrip(t, NoOpCodec{}, []byte("COMM=sshd\x1ePRIORITY=6"))
}

func TestXZRoundTrip(t *testing.T) {
	roundTrip(t, XZCodec{}, []byte("a fairly repetitive log line, a fairly repetitive log line"))
}

func TestLZ4RoundTrip(t *testing.T) {
	roundTrip(t, LZ4Codec{}, []byte("MESSAGE=connection reset by peer"))
}

func TestZstdRoundTrip(t *testing.T) {
	roundTrip(t, ZstdCodec{}, []byte("MESSAGE=connection reset by peer"))
}

func TestLZ4EmptyInput(t *testing.T) {
	out, err := LZ4Codec{}.Compress(nil)
	require.NoError(t, err)
	require.Nil(t, out)
}
