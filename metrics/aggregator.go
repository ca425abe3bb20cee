package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"go.uber.org/zap"
)

// restartState tracks the last-seen raw cumulative value per dimension, used
// to detect a counter restart (the pending observation's start time differs
// from the one recorded for the previous observation) and to compute the
// delta against the running baseline.
type restartState struct {
	lastRaw          float64
	lastStartNs      uint64
	hasLastRaw       bool
	lastBucketCounts []uint64
	lastSum          float64
	lastCount        uint64
}

// Aggregator consumes OTLP ResourceMetrics/ScopeMetrics/Metric trees and
// folds their data points into one SamplesTable per chart identity,
// converting cumulative sums and histograms to deltas via restart detection.
type Aggregator struct {
	mu sync.Mutex

	intervalNanos  int64
	gracePeriodNs  int64
	archiveTimeout int64

	tables   map[string]*SamplesTable
	restarts map[string]*restartState // chartID/dimension -> restart tracking

	log *zap.SugaredLogger
}

// Option configures NewAggregator.
type Option func(*Aggregator)

func WithInterval(nanos int64) Option        { return func(a *Aggregator) { a.intervalNanos = nanos } }
func WithGracePeriod(nanos int64) Option     { return func(a *Aggregator) { a.gracePeriodNs = nanos } }
func WithArchiveTimeout(nanos int64) Option  { return func(a *Aggregator) { a.archiveTimeout = nanos } }
func WithAggregatorLogger(l *zap.SugaredLogger) Option { return func(a *Aggregator) { a.log = l } }

const (
	defaultIntervalNanos  = int64(1_000_000_000)
	defaultGracePeriodNs  = int64(2_000_000_000)
	defaultArchiveTimeout = int64(3600 * 1_000_000_000)
)

// NewAggregator builds an Aggregator with a fixed sample interval.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		intervalNanos:  defaultIntervalNanos,
		gracePeriodNs:  defaultGracePeriodNs,
		archiveTimeout: defaultArchiveTimeout,
		tables:         make(map[string]*SamplesTable),
		restarts:       make(map[string]*restartState),
		log:            zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest folds one MetricsData payload's data points into their charts,
// returning the set of chart ids touched so the caller can re-emit them.
func (a *Aggregator) Ingest(data *metricspb.MetricsData, nowNano int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	touched := make(map[string]struct{})

	for _, rm := range data.GetResourceMetrics() {
		resourceAttrs := flattenAttributes(rm.GetResource().GetAttributes())

		for _, sm := range rm.GetScopeMetrics() {
			for _, metric := range sm.GetMetrics() {
				chartID := chartIdentity(resourceAttrs, metric.GetName())
				table := a.tableFor(chartID)

				switch d := metric.GetData().(type) {
				case *metricspb.Metric_Gauge:
					a.ingestGauge(table, chartID, d.Gauge, nowNano)
				case *metricspb.Metric_Sum:
					a.ingestSum(table, chartID, d.Sum, nowNano)
				case *metricspb.Metric_Histogram:
					a.ingestHistogram(table, chartID, d.Histogram, nowNano)
				default:
					a.log.Debugw("skipping unsupported metric type", "chart", chartID, "metric", metric.GetName())
					continue
				}

				touched[chartID] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(touched))
	for id := range touched {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (a *Aggregator) tableFor(chartID string) *SamplesTable {
	t, ok := a.tables[chartID]
	if !ok {
		t = NewSamplesTable(chartID, a.intervalNanos, a.gracePeriodNs, a.archiveTimeout)
		a.tables[chartID] = t
	}
	return t
}

func (a *Aggregator) ingestGauge(t *SamplesTable, chartID string, g *metricspb.Gauge, nowNano int64) {
	for _, dp := range g.GetDataPoints() {
		name := dimensionName(dp.GetAttributes())
		t.IngestScalar(name, KindGauge, dp.GetTimeUnixNano(), numberValue(dp), nowNano)
	}
}

func (a *Aggregator) ingestSum(t *SamplesTable, chartID string, s *metricspb.Sum, nowNano int64) {
	cumulative := s.GetAggregationTemporality() == metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE

	for _, dp := range s.GetDataPoints() {
		name := dimensionName(dp.GetAttributes())
		raw := numberValue(dp)

		if !cumulative {
			kind := KindSumDeltaMonotonic
			if !s.GetIsMonotonic() {
				kind = KindSumCumulativeNonMonotonic
			}
			t.IngestScalar(name, kind, dp.GetTimeUnixNano(), raw, nowNano)
			continue
		}

		kind := KindSumCumulativeMonotonic
		if !s.GetIsMonotonic() {
			kind = KindSumCumulativeNonMonotonic
			t.IngestScalar(name, kind, dp.GetTimeUnixNano(), raw, nowNano)
			continue
		}

		delta, emit := a.toDelta(chartID, name, raw, dp.GetStartTimeUnixNano())
		if emit {
			t.IngestScalar(name, KindSumDeltaMonotonic, dp.GetTimeUnixNano(), delta, nowNano)
		}
	}
}

func (a *Aggregator) ingestHistogram(t *SamplesTable, chartID string, h *metricspb.Histogram, nowNano int64) {
	cumulative := h.GetAggregationTemporality() == metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE

	for _, dp := range h.GetDataPoints() {
		name := dimensionName(dp.GetAttributes())
		bucketCounts := dp.GetBucketCounts()

		if !cumulative {
			t.IngestHistogram(name, KindHistogramDelta, dp.GetTimeUnixNano(), bucketCounts, dp.GetCount(), dp.GetSum(), nowNano)
			continue
		}

		deltaCounts, deltaCount, deltaSum, emit := a.toHistogramDelta(chartID, name, bucketCounts, dp.GetCount(), dp.GetSum(), dp.GetStartTimeUnixNano())
		if emit {
			t.IngestHistogram(name, KindHistogramDelta, dp.GetTimeUnixNano(), deltaCounts, deltaCount, deltaSum, nowNano)
		}
	}
}

// toDelta converts a cumulative monotonic sum's raw reading to a delta
// against the last raw value seen for this dimension. The first-ever
// observation only records the baseline and emits nothing; a changed start
// time marks a counter restart and emits 0 while rebasing on the new
// reading; otherwise it emits the raw difference against the baseline.
func (a *Aggregator) toDelta(chartID, dimName string, raw float64, startTimeNs uint64) (delta float64, emit bool) {
	key := chartID + "\x00" + dimName
	st, ok := a.restarts[key]
	if !ok {
		st = &restartState{}
		a.restarts[key] = st
	}

	switch {
	case !st.hasLastRaw:
		emit = false
	case startTimeNs != st.lastStartNs:
		delta, emit = 0, true
	default:
		delta, emit = raw-st.lastRaw, true
	}

	st.lastRaw = raw
	st.lastStartNs = startTimeNs
	st.hasLastRaw = true

	return delta, emit
}

// toHistogramDelta applies the same baseline/restart logic as toDelta, but
// vector-wise across the histogram's bucket counts plus its count and sum.
func (a *Aggregator) toHistogramDelta(chartID, dimName string, bucketCounts []uint64, count uint64, sum float64, startTimeNs uint64) (deltaCounts []uint64, deltaCount uint64, deltaSum float64, emit bool) {
	key := chartID + "\x00" + dimName + "\x00hist"
	st, ok := a.restarts[key]
	if !ok {
		st = &restartState{}
		a.restarts[key] = st
	}

	deltaCounts = make([]uint64, len(bucketCounts))

	switch {
	case !st.hasLastRaw:
		emit = false
	case startTimeNs != st.lastStartNs:
		emit = true // deltaCounts/deltaCount/deltaSum stay at their zero values
	default:
		emit = true
		for i, c := range bucketCounts {
			if i < len(st.lastBucketCounts) {
				deltaCounts[i] = c - st.lastBucketCounts[i]
			} else {
				deltaCounts[i] = c
			}
		}
		deltaCount = count - st.lastCount
		deltaSum = sum - st.lastSum
	}

	st.lastBucketCounts = append([]uint64(nil), bucketCounts...)
	st.lastCount = count
	st.lastSum = sum
	st.lastStartNs = startTimeNs
	st.hasLastRaw = true

	return deltaCounts, deltaCount, deltaSum, emit
}

// Tables returns every chart's SamplesTable, for the chart writer to drain.
func (a *Aggregator) Tables() map[string]*SamplesTable {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]*SamplesTable, len(a.tables))
	for k, v := range a.tables {
		out[k] = v
	}
	return out
}

func numberValue(dp *metricspb.NumberDataPoint) float64 {
	switch v := dp.GetValue().(type) {
	case *metricspb.NumberDataPoint_AsDouble:
		return v.AsDouble
	case *metricspb.NumberDataPoint_AsInt:
		return float64(v.AsInt)
	default:
		return 0
	}
}

func flattenAttributes(attrs []*commonpb.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[kv.GetKey()] = attrValueString(kv)
	}
	return out
}

func dimensionName(attrs []*commonpb.KeyValue) string {
	if len(attrs) == 0 {
		return "value"
	}
	parts := make([]string, 0, len(attrs))
	for _, kv := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", kv.GetKey(), attrValueString(kv)))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func attrValueString(kv *commonpb.KeyValue) string {
	v := kv.GetValue()
	switch {
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetBoolValue():
		return "true"
	case v.GetIntValue() != 0:
		return fmt.Sprintf("%d", v.GetIntValue())
	case v.GetDoubleValue() != 0:
		return fmt.Sprintf("%g", v.GetDoubleValue())
	default:
		return v.GetStringValue()
	}
}

func chartIdentity(resourceAttrs map[string]string, metricName string) string {
	return resourceAttrs["service.name"] + "." + metricName
}
