package metrics

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChooseScaleKeepsValueInRange(t *testing.T) {
	step := chooseScale(0.005)
	require.Equal(t, scaleStep{1000, 1}, step)

	step = chooseScale(500)
	require.Equal(t, scaleStep{1, 100}, step)
}

func TestChartWriterDefinesChartOnce(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	cw := NewChartWriter(w)

	meta := ChartMeta{ID: "svc.cpu", Title: "CPU usage", Units: "percentage", Family: "cpu", Context: "svc.cpu", Priority: 1}

	require.NoError(t, cw.WriteSlot(meta, map[string]float64{"used": 10}, 100))
	require.NoError(t, cw.WriteSlot(meta, map[string]float64{"used": 12}, 101))

	text := out.String()
	require.Equal(t, 1, strings.Count(text, "CHART svc.cpu"))
	require.Equal(t, 2, strings.Count(text, "BEGIN svc.cpu"))
}

func TestChartWriterRedefinesOnDimensionChange(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	cw := NewChartWriter(w)

	meta := ChartMeta{ID: "svc.disk", Title: "Disk", Units: "bytes", Family: "disk", Context: "svc.disk", Priority: 1}

	require.NoError(t, cw.WriteSlot(meta, map[string]float64{"read": 10}, 100))
	require.NoError(t, cw.WriteSlot(meta, map[string]float64{"read": 10, "write": 5}, 101))

	text := out.String()
	require.Equal(t, 2, strings.Count(text, "CHART svc.disk"))
}
