package histogram

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netdata/journal/filter"
	"github.com/netdata/journal/index"
	"github.com/netdata/journal/journalfile"
)

func buildHistogramIndex(t *testing.T) *index.FileIndex {
	t.Helper()

	path := filepath.Join(t.TempDir(), "system.journal")
	jf, err := journalfile.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = jf.Close() })

	w, err := journalfile.NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{}
	for i, rt := range []uint64{1_000_000, 2_000_000, 3_000_000} {
		priority := "6"
		if i == 1 {
			priority = "3"
		}
		_, err := w.AddEntry([]journalfile.Field{
			{Name: "PRIORITY", Value: []byte(priority)},
		}, rt, rt, bootID)
		require.NoError(t, err)
	}

	fi, err := index.Build(jf)
	require.NoError(t, err)
	return fi
}

func TestComputeFromIndexesUnfilteredCounts(t *testing.T) {
	fi := buildHistogramIndex(t)

	e := New()
	entries, err := e.ComputeFromIndexes(context.Background(),
		[]IndexedFile{{Index: fi, Online: false}},
		0, 10, 10, "facets-v1", filter.NoneFilter)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	c := entries[0].Response.Counts["PRIORITY=6"]
	require.EqualValues(t, 2, c.Unfiltered)

	c3 := entries[0].Response.Counts["PRIORITY=3"]
	require.EqualValues(t, 1, c3.Unfiltered)
}

func TestComputeFromIndexesCachesOfflineBuckets(t *testing.T) {
	fi := buildHistogramIndex(t)
	e := New()

	ctx := context.Background()
	_, err := e.ComputeFromIndexes(ctx, []IndexedFile{{Index: fi, Online: false}}, 0, 10, 10, "facets-v1", filter.NoneFilter)
	require.NoError(t, err)

	key := keyOf(BucketRequest{StartSec: 0, EndSec: 10, Facets: "facets-v1", Filter: filter.NoneFilter})
	_, ok := e.cache.Get(key)
	require.True(t, ok)
}

func TestKeyOfDistinguishesFilters(t *testing.T) {
	base := BucketRequest{StartSec: 0, EndSec: 10, Facets: "facets-v1", Filter: filter.NoneFilter}
	withMatch := BucketRequest{StartSec: 0, EndSec: 10, Facets: "facets-v1", Filter: filter.MatchFieldValuePair{Field: "PRIORITY", Value: "3"}}

	require.NotEqual(t, keyOf(base), keyOf(withMatch), "two requests differing only by filter must not collide in the cache")
}

func TestComputeFromIndexesCachesPerFilter(t *testing.T) {
	fi := buildHistogramIndex(t)
	e := New()
	ctx := context.Background()

	_, err := e.ComputeFromIndexes(ctx, []IndexedFile{{Index: fi, Online: false}}, 0, 10, 10, "facets-v1", filter.NoneFilter)
	require.NoError(t, err)

	entries, err := e.ComputeFromIndexes(ctx, []IndexedFile{{Index: fi, Online: false}}, 0, 10, 10, "facets-v1",
		filter.MatchFieldValuePair{Field: "PRIORITY", Value: "3"})
	require.NoError(t, err)

	c := entries[0].Response.Counts["PRIORITY=6"]
	require.EqualValues(t, 2, c.Unfiltered, "unfiltered counts are filter-independent")
	require.EqualValues(t, 0, c.Filtered, "PRIORITY=6 entries must not match a PRIORITY=3 filter")

	c3 := entries[0].Response.Counts["PRIORITY=3"]
	require.EqualValues(t, 1, c3.Filtered, "the PRIORITY=3 entry must match its own filter")
}

func TestComputeFromIndexesNoFilesReturnsEmpty(t *testing.T) {
	e := New()
	entries, err := e.ComputeFromIndexes(context.Background(), nil, 0, 10, 10, "facets-v1", filter.NoneFilter)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
