package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPartitionPointFixture lays out a three-node chain of capacities 4, 8,
// and 16, filled end to end with offsets 1..28.
func buildPartitionPointFixture(t *testing.T) (*buf, uint64) {
	t.Helper()

	b := newBuf(4096)

	items := func(start, n int) []uint64 {
		out := make([]uint64, n)
		for i := range out {
			out[i] = uint64(start + i)
		}
		return out
	}

	b.putEntryArray(3000, 0, items(13, 16))
	b.putEntryArray(2000, 3000, items(5, 8))
	b.putEntryArray(1000, 2000, items(1, 4))

	return b, 1000
}

func TestDirectedPartitionPointForwardAcrossNodes(t *testing.T) {
	b, head := buildPartitionPointFixture(t)
	c := NewArrayCursor(b, head, false)
	defer c.Close()

	v, ok, err := c.DirectedPartitionPoint(func(item uint64) bool { return item >= 17 }, Forward)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(17), v)
}

func TestDirectedPartitionPointBackwardAcrossNodes(t *testing.T) {
	b, head := buildPartitionPointFixture(t)
	c := NewArrayCursor(b, head, false)
	defer c.Close()

	v, ok, err := c.DirectedPartitionPoint(func(item uint64) bool { return item >= 17 }, Backward)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(16), v)
}
