package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBarChart(t *testing.T) {
	catalog := []string{"Atelectasis", "Effusion", "Mass"}
	scores := map[string]float64{"Atelectasis": 0.62, "Effusion": 0.1, "Mass": 0.5}

	c := newBarChart(catalog, scores, []float64{0.5, 0.3, 0.5})
	require.Len(t, c.Bars, 3)
	require.Len(t, c.Markers, 3)

	assert.Equal(t, colorAbove, c.Bars[0].Fill)
	assert.Equal(t, colorBelow, c.Bars[1].Fill)
	assert.Equal(t, colorAbove, c.Bars[2].Fill, "score equal to threshold is above")

	for _, b := range c.Bars {
		assert.InDelta(t, plotBottom, b.Y+b.Height, 1e-9, "bars stand on the axis")
		assert.GreaterOrEqual(t, b.X, plotLeft)
		assert.LessOrEqual(t, b.X+b.Width, plotRight)
	}
	assert.Greater(t, c.Bars[0].Height, c.Bars[1].Height)
	assert.Len(t, strings.Fields(c.Polyline), 3)
	assert.Len(t, c.Ticks, 6)
}

func TestNewBarChartEmptyCatalog(t *testing.T) {
	c := newBarChart(nil, nil, nil)
	assert.Empty(t, c.Bars)
	assert.Empty(t, c.Polyline)
}

func TestScaleYClamps(t *testing.T) {
	assert.Equal(t, plotBottom, scaleY(0))
	assert.Equal(t, plotTop, scaleY(1))
	assert.Equal(t, plotBottom, scaleY(-0.5))
	assert.Equal(t, plotTop, scaleY(3))
}
