package utils

import (
	"math"
	"time"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"
)

func SleepFor(milliseconds int) {
	time.Sleep(time.Duration(milliseconds) * time.Millisecond)
}

type LineChart struct {
	Chart    *chart2d.Chart2D
	ColorMap *utils2.ColorMap
}

func NewLineChart(width, height int, xmin, xmax, fmin, fmax float64) (lc *LineChart) {
	lc = &LineChart{
		Chart:    chart2d.NewChart2D(width, height, float32(xmin), float32(xmax), float32(fmin), float32(fmax)),
		ColorMap: utils2.NewColorMap(-1, 1, 1),
	}
	go lc.Chart.Plot()
	return
}

func (lc *LineChart) Plot(graphDelay time.Duration, x, f []float64, lineColor float64, lineName string) {
	/*
		lineColor goes from -1 (red) to 1 (blue)
	*/
	if err := lc.Chart.AddSeries(lineName, x, f,
		chart2d.NoGlyph, chart2d.Solid, lc.ColorMap.GetRGB(float32(lineColor))); err != nil {
		panic("unable to add graph series")
	}
	time.Sleep(graphDelay)
}

// ResidualHistory converts a residual norm history into the (cycle,
// log10 residual) pair plotted by PlotResidualHistory.
func ResidualHistory(norms []float64) (x, f []float64) {
	x = make([]float64, len(norms))
	f = make([]float64, len(norms))
	for i, r := range norms {
		x[i] = float64(i)
		f[i] = math.Log10(math.Max(r, math.SmallestNonzeroFloat64))
	}
	return
}

func PlotResidualHistory(norms []float64, graphDelay time.Duration) {
	if len(norms) == 0 {
		return
	}
	x, f := ResidualHistory(norms)
	fmin, fmax := f[0], f[0]
	for _, v := range f {
		fmin, fmax = math.Min(fmin, v), math.Max(fmax, v)
	}
	lc := NewLineChart(1280, 1024, 0, math.Max(1, float64(len(f)-1)), math.Floor(fmin)-1, math.Ceil(fmax)+1)
	lc.Plot(graphDelay, x, f, -1, "log10 |r|")
}
