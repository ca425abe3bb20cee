package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowUsecIsStrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMicro(1000)
	c := NewWithSource(func() time.Time { return fixed })

	first := c.NowUsec()
	second := c.NowUsec()
	third := c.NowUsec()

	require.Equal(t, uint64(1000), first)
	require.Greater(t, second, first)
	require.Greater(t, third, second)
}

func TestNowUsecAdvancesWithSource(t *testing.T) {
	now := time.UnixMicro(1000)
	c := NewWithSource(func() time.Time { return now })

	first := c.NowUsec()
	now = time.UnixMicro(5000)
	second := c.NowUsec()

	require.Equal(t, uint64(1000), first)
	require.Equal(t, uint64(5000), second)
}

func TestObserveRaisesFloorWithoutEmitting(t *testing.T) {
	fixed := time.UnixMicro(1000)
	c := NewWithSource(func() time.Time { return fixed })

	c.Observe(50_000)

	next := c.NowUsec()
	require.Equal(t, uint64(50_001), next)
}

func TestObserveIgnoresLowerValue(t *testing.T) {
	fixed := time.UnixMicro(1000)
	c := NewWithSource(func() time.Time { return fixed })

	c.Observe(50_000)
	c.Observe(10)

	next := c.NowUsec()
	require.Equal(t, uint64(50_001), next)
}
