package handlers

import (
	"fmt"
	"strings"
)

const (
	chartWidth  = 960.0
	chartHeight = 420.0
	plotLeft    = 60.0
	plotRight   = chartWidth - 20
	plotTop     = 40.0
	plotBottom  = chartHeight - 120

	colorAbove = "#4CAF50"
	colorBelow = "#9E9E9E"
)

type chartBar struct {
	X, Y, Width, Height float64
	Fill                string
	Label               string
	LabelX, LabelY      float64
	Title               string
}

type chartTick struct {
	Y     float64
	Label string
}

type chartPoint struct {
	X, Y float64
}

// barChart is the SVG geometry of the score vs threshold chart. Scores and thresholds
// share one axis fixed to [0, 1].
type barChart struct {
	Width, Height            float64
	Left, Right, Top, Bottom float64
	Bars                     []chartBar
	Ticks                    []chartTick
	Markers                  []chartPoint
	Polyline                 string
}

func newBarChart(catalog []string, scores map[string]float64, thresholds []float64) *barChart {
	c := &barChart{
		Width:  chartWidth,
		Height: chartHeight,
		Left:   plotLeft,
		Right:  plotRight,
		Top:    plotTop,
		Bottom: plotBottom,
	}

	for i := 0; i <= 5; i++ {
		v := float64(i) / 5
		c.Ticks = append(c.Ticks, chartTick{Y: scaleY(v), Label: fmt.Sprintf("%.1f", v)})
	}

	if len(catalog) == 0 {
		return c
	}

	slot := (plotRight - plotLeft) / float64(len(catalog))
	barWidth := slot * 0.7

	points := make([]string, 0, len(catalog))
	for i, name := range catalog {
		score := scores[name]
		threshold := thresholds[i]
		center := plotLeft + slot*(float64(i)+0.5)

		fill := colorBelow
		if score >= threshold {
			fill = colorAbove
		}

		top := scaleY(score)
		c.Bars = append(c.Bars, chartBar{
			X:      center - barWidth/2,
			Y:      top,
			Width:  barWidth,
			Height: plotBottom - top,
			Fill:   fill,
			Label:  name,
			LabelX: center,
			LabelY: plotBottom + 12,
			Title:  fmt.Sprintf("%s: %.4f (threshold %.4f)", name, score, threshold),
		})

		p := chartPoint{X: center, Y: scaleY(threshold)}
		c.Markers = append(c.Markers, p)
		points = append(points, fmt.Sprintf("%.1f,%.1f", p.X, p.Y))
	}
	c.Polyline = strings.Join(points, " ")
	return c
}

// scaleY maps a value in [0, 1] to a y coordinate, clamping out of range values.
func scaleY(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return plotBottom - v*(plotBottom-plotTop)
}
