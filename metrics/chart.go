package metrics

import (
	"bufio"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// scaleStep is one entry in the fixed ladder of (multiplier, divisor) pairs
// a chart writer chooses from so that Netdata's integer line protocol can
// represent a chart's typical value range without losing precision.
type scaleStep struct {
	multiplier int64
	divisor    int64
}

var scaleLadder = []scaleStep{
	{1, 1000},
	{1, 100},
	{1, 10},
	{1, 1},
	{10, 1},
	{100, 1},
	{1000, 1},
}

// chooseScale picks the smallest scaleLadder step whose multiplier/divisor
// keeps sample in the range [1, 1000) once converted to Netdata's scaled
// integer representation, defaulting to 1:1 when sample is zero or already
// well within range.
func chooseScale(sample float64) scaleStep {
	abs := decimal.NewFromFloat(sample).Abs()
	if abs.IsZero() {
		return scaleStep{1, 1}
	}

	for _, step := range scaleLadder {
		scaled := abs.Mul(decimal.NewFromInt(step.multiplier)).Div(decimal.NewFromInt(step.divisor))
		if scaled.GreaterThanOrEqual(decimal.NewFromInt(1)) && scaled.LessThan(decimal.NewFromInt(1000)) {
			return step
		}
	}
	return scaleStep{1, 1}
}

// ChartWriter renders SamplesTable contents as Netdata external-plugin
// line protocol: CHART/CLABEL/DIMENSION definitions followed by
// BEGIN/SET/END data sections, redefining a chart whenever its dimension
// set or scale changes.
type ChartWriter struct {
	w *bufio.Writer

	defined map[string]chartDef
}

type chartDef struct {
	dims  map[string]struct{}
	scale scaleStep
}

// NewChartWriter wraps w for Netdata protocol emission.
func NewChartWriter(w *bufio.Writer) *ChartWriter {
	return &ChartWriter{w: w, defined: make(map[string]chartDef)}
}

// ChartMeta carries the static identity of a chart, independent of its
// current sample data.
type ChartMeta struct {
	ID       string
	Title    string
	Units    string
	Family   string
	Context  string
	Priority int
	Labels   map[string]string
}

// WriteSlot emits one finalized time slot for chart meta, defining or
// redefining the chart first if its dimension set or chosen scale changed
// since the last WriteSlot for this chart id.
func (cw *ChartWriter) WriteSlot(meta ChartMeta, values map[string]float64, timestampSec int64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var sample float64
	for _, v := range values {
		if v > sample {
			sample = v
		}
	}
	scale := chooseScale(sample)

	if cw.needsRedefine(meta.ID, names, scale) {
		if err := cw.defineChart(meta, names, scale); err != nil {
			return err
		}
	}

	fmt.Fprintf(cw.w, "BEGIN %s %d\n", meta.ID, timestampSec)
	for _, name := range names {
		scaled := decimal.NewFromFloat(values[name]).
			Mul(decimal.NewFromInt(scale.multiplier)).
			Div(decimal.NewFromInt(scale.divisor))
		fmt.Fprintf(cw.w, "SET %s = %s\n", name, scaled.StringFixed(0))
	}
	fmt.Fprintf(cw.w, "END\n")

	return cw.w.Flush()
}

func (cw *ChartWriter) needsRedefine(chartID string, names []string, scale scaleStep) bool {
	def, ok := cw.defined[chartID]
	if !ok {
		return true
	}
	if def.scale != scale {
		return true
	}
	if len(def.dims) != len(names) {
		return true
	}
	for _, n := range names {
		if _, ok := def.dims[n]; !ok {
			return true
		}
	}
	return false
}

func (cw *ChartWriter) defineChart(meta ChartMeta, names []string, scale scaleStep) error {
	fmt.Fprintf(cw.w, "CHART %s '' '%s' '%s' '%s' '%s' line %d %d\n",
		meta.ID, meta.Title, meta.Units, meta.Family, meta.Context, meta.Priority, int64(cw.intervalSeconds()))

	labelKeys := make([]string, 0, len(meta.Labels))
	for k := range meta.Labels {
		labelKeys = append(labelKeys, k)
	}
	sort.Strings(labelKeys)
	for _, k := range labelKeys {
		fmt.Fprintf(cw.w, "CLABEL %s %s 1\n", k, meta.Labels[k])
	}
	if len(labelKeys) > 0 {
		fmt.Fprintf(cw.w, "CLABEL_COMMIT\n")
	}

	dims := make(map[string]struct{}, len(names))
	for _, name := range names {
		fmt.Fprintf(cw.w, "DIMENSION %s '' absolute %d %d\n", name, scale.multiplier, scale.divisor)
		dims[name] = struct{}{}
	}

	cw.defined[meta.ID] = chartDef{dims: dims, scale: scale}
	return nil
}

// intervalSeconds is fixed at one second and is written as CHART's
// update_every field; it does not read the SamplesTable interval.
func (cw *ChartWriter) intervalSeconds() int64 { return 1 }
