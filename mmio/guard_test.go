package mmio

import (
	"testing"

	"github.com/netdata/journal/errs"
	"github.com/stretchr/testify/require"
)

func TestGuardedCellExclusiveBorrow(t *testing.T) {
	cell := NewGuardedCell(42)

	g1, err := cell.TryGuard()
	require.NoError(t, err)
	require.Equal(t, 42, g1.Value())
	require.True(t, cell.InUse())

	_, err = cell.TryGuard()
	require.ErrorIs(t, err, errs.ErrValueGuardInUse)

	g1.Release()
	require.False(t, cell.InUse())

	g2, err := cell.TryGuard()
	require.NoError(t, err)
	g2.Set(99)
	require.Equal(t, 99, g2.Value())
	g2.Release()
}

func TestGuardedCellReleaseNilIsNoop(t *testing.T) {
	var g *Guard[int]
	require.NotPanics(t, func() { g.Release() })
}
