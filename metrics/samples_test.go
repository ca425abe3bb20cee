package metrics

import "testing"

import "github.com/stretchr/testify/require"

const second = int64(1_000_000_000)

func TestIngestScalarAccumulatesDeltaWithinSlot(t *testing.T) {
	table := NewSamplesTable("chart1", second, second, 3600*second)

	table.IngestScalar("value", KindSumDeltaMonotonic, 100, 5, 100)
	table.IngestScalar("value", KindSumDeltaMonotonic, 500_000_000, 3, 100)

	d := table.dims["value"]
	s := d.slots[0]
	require.Equal(t, float64(8), s.value)
}

func TestIngestScalarGaugeKeepsLatestByTimestamp(t *testing.T) {
	table := NewSamplesTable("chart1", second, second, 3600*second)

	table.IngestScalar("value", KindGauge, 100, 5, 100)
	table.IngestScalar("value", KindGauge, 500_000_000, 9, 100)

	d := table.dims["value"]
	s := d.slots[0]
	require.Equal(t, float64(9), s.value)
}

func TestIngestScalarRejectsPastGracePeriod(t *testing.T) {
	table := NewSamplesTable("chart1", second, second, 3600*second)

	accepted := table.IngestScalar("value", KindGauge, 0, 5, 3*second)
	require.False(t, accepted)
}

func TestArchiveRemovesStaleDimensions(t *testing.T) {
	table := NewSamplesTable("chart1", second, second, 100*second)

	table.IngestScalar("a", KindGauge, 0, 1, 0)
	table.IngestScalar("b", KindGauge, 200*uint64(second), 1, 200*second)

	removed := table.Archive(200 * second)
	require.Contains(t, removed, "a")
	require.NotContains(t, removed, "b")
}

func TestIngestHistogramAccumulatesBucketCounts(t *testing.T) {
	table := NewSamplesTable("chart1", second, second, 3600*second)

	table.IngestHistogram("latency", KindHistogramDelta, 0, []uint64{1, 2, 3}, 6, 12.5, 0)
	table.IngestHistogram("latency", KindHistogramDelta, 100, []uint64{0, 1, 1}, 2, 3.0, 0)

	d := table.dims["latency"]
	s := d.slots[0]
	require.Equal(t, []uint64{1, 3, 4}, s.bucketCounts)
	require.EqualValues(t, 8, s.histCount)
}
