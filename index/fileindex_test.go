package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netdata/journal/journalfile"
)

func buildTestIndex(t *testing.T) *FileIndex {
	t.Helper()

	path := filepath.Join(t.TempDir(), "system.journal")
	jf, err := journalfile.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = jf.Close() })

	w, err := journalfile.NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{}
	entries := []struct {
		realtime uint64
		priority string
		unit     string
		message  string
	}{
		{1_000_000, "6", "a.service", "first"},
		{2_000_000, "3", "b.service", "second"},
		{3_000_000, "6", "a.service", "third"},
	}
	for _, e := range entries {
		_, err := w.AddEntry([]journalfile.Field{
			{Name: "PRIORITY", Value: []byte(e.priority)},
			{Name: "_SYSTEMD_UNIT", Value: []byte(e.unit)},
			{Name: "MESSAGE", Value: []byte(e.message)},
		}, e.realtime, e.realtime, bootID)
		require.NoError(t, err)
	}

	fi, err := Build(jf)
	require.NoError(t, err)
	return fi
}

func TestBuildIndexesAllowlistedFields(t *testing.T) {
	fi := buildTestIndex(t)

	require.EqualValues(t, 3, fi.NEntries())
	require.Equal(t, uint64(1_000_000), fi.HeadRealtime())
	require.Equal(t, uint64(3_000_000), fi.TailRealtime())

	aService := fi.ValueBitmap("_SYSTEMD_UNIT", "a.service")
	require.EqualValues(t, 2, aService.GetCardinality())

	priority6 := fi.ValueBitmap("PRIORITY", "6")
	require.EqualValues(t, 2, priority6.GetCardinality())

	require.Contains(t, fi.UnindexedFields(), "MESSAGE")
}

func TestFieldBitmapUnionsValues(t *testing.T) {
	fi := buildTestIndex(t)

	unit := fi.FieldBitmap("_SYSTEMD_UNIT")
	require.EqualValues(t, 3, unit.GetCardinality())
}

func TestCountEntriesInTimeRange(t *testing.T) {
	fi := buildTestIndex(t)

	universe := fi.Universe()
	count := fi.CountEntriesInTimeRange(universe, 0, 2)
	require.EqualValues(t, 1, count)

	countAll := fi.CountEntriesInTimeRange(universe, 0, 10)
	require.EqualValues(t, 3, countAll)
}

func TestValueBitmapMissingReturnsEmpty(t *testing.T) {
	fi := buildTestIndex(t)

	b := fi.ValueBitmap("PRIORITY", "9")
	require.True(t, b.IsEmpty())
}
