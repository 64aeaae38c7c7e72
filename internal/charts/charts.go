// Package charts draws the diagnostic figures attached to a fit.
package charts

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// histogramBins is the number of bins of the residual histogram
const histogramBins = 30

var (
	zeroLineColor = color.RGBA{R: 220, A: 255}
	fittedColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	observedColor = color.RGBA{G: 90, B: 180, A: 255}
	dashes        = []vg.Length{vg.Points(5), vg.Points(3)}
)

// Renderer draws fit diagnostics as PNG images. Each call holds the
// renderer's lock for the whole draw, so a Renderer can be shared between
// requests.
type Renderer struct {
	mu sync.Mutex

	Width  vg.Length
	Height vg.Length
}

// NewRenderer creates a renderer with the default figure size
func NewRenderer() *Renderer {
	return &Renderer{
		Width:  12 * vg.Inch,
		Height: 10 * vg.Inch,
	}
}

// Diagnostics draws a 2x2 residual panel: residuals vs fitted, normal Q-Q,
// residual histogram and scale-location.
func (r *Renderer) Diagnostics(fitted, residuals []float64) ([]byte, error) {
	if len(fitted) != len(residuals) {
		return nil, fmt.Errorf("fitted has %d values but residuals has %d", len(fitted), len(residuals))
	}
	if len(residuals) == 0 {
		return nil, fmt.Errorf("no residuals to plot")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rvf, err := residualsVsFitted(fitted, residuals)
	if err != nil {
		return nil, err
	}
	qq, err := normalQQ(residuals)
	if err != nil {
		return nil, err
	}
	hist, err := histogram(residuals)
	if err != nil {
		return nil, err
	}
	sl, err := scaleLocation(fitted, residuals)
	if err != nil {
		return nil, err
	}

	return r.compose([][]*plot.Plot{{rvf, qq}, {hist, sl}}, r.Height)
}

// Series draws the observed and fitted series on top and the residual
// series below, indexed by position.
func (r *Renderer) Series(observed, fitted, residuals []float64) ([]byte, error) {
	if len(observed) != len(fitted) || len(fitted) != len(residuals) {
		return nil, fmt.Errorf("series lengths differ: observed %d, fitted %d, residuals %d",
			len(observed), len(fitted), len(residuals))
	}
	if len(observed) == 0 {
		return nil, fmt.Errorf("no observations to plot")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	top := plot.New()
	top.Title.Text = "Original vs Fitted"
	top.X.Label.Text = "Observation"
	top.Y.Label.Text = "Value"

	obsLine, err := plotter.NewLine(indexed(observed))
	if err != nil {
		return nil, fmt.Errorf("failed to plot observed series: %w", err)
	}
	obsLine.LineStyle.Color = observedColor

	fitLine, err := plotter.NewLine(indexed(fitted))
	if err != nil {
		return nil, fmt.Errorf("failed to plot fitted series: %w", err)
	}
	fitLine.LineStyle.Color = fittedColor
	fitLine.LineStyle.Dashes = dashes

	top.Add(obsLine, fitLine)
	top.Legend.Add("Original", obsLine)
	top.Legend.Add("Fitted", fitLine)
	top.Legend.Top = true

	bottom := plot.New()
	bottom.Title.Text = "Residuals"
	bottom.X.Label.Text = "Observation"
	bottom.Y.Label.Text = "Residual"

	resLine, err := plotter.NewLine(indexed(residuals))
	if err != nil {
		return nil, fmt.Errorf("failed to plot residual series: %w", err)
	}
	bottom.Add(resLine, zeroLine())

	return r.compose([][]*plot.Plot{{top}, {bottom}}, r.Height*4/5)
}

// compose aligns the plots on a grid and encodes the canvas as PNG
func (r *Renderer) compose(plots [][]*plot.Plot, height vg.Length) ([]byte, error) {
	img := vgimg.New(r.Width, height)
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      len(plots[0]),
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}

	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j := range plots[i] {
			if plots[i][j] != nil {
				plots[i][j].Draw(canvases[i][j])
			}
		}
	}

	var buf bytes.Buffer
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func residualsVsFitted(fitted, residuals []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Residuals vs Fitted"
	p.X.Label.Text = "Fitted values"
	p.Y.Label.Text = "Residuals"

	s, err := plotter.NewScatter(paired(fitted, residuals))
	if err != nil {
		return nil, fmt.Errorf("failed to plot residuals: %w", err)
	}
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s, zeroLine())
	return p, nil
}

// normalQQ plots sorted standardized residuals against normal quantiles at
// Blom plotting positions, with a least squares reference line.
func normalQQ(residuals []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Normal Q-Q"
	p.X.Label.Text = "Theoretical quantiles"
	p.Y.Label.Text = "Sample quantiles"

	mean, std := stat.PopMeanStdDev(residuals, nil)
	if std == 0 {
		std = 1
	}
	sample := make([]float64, len(residuals))
	for i, v := range residuals {
		sample[i] = (v - mean) / std
	}
	sort.Float64s(sample)

	n := float64(len(sample))
	theory := make([]float64, len(sample))
	for i := range theory {
		theory[i] = distuv.UnitNormal.Quantile((float64(i) + 1 - 0.375) / (n + 0.25))
	}

	s, err := plotter.NewScatter(paired(theory, sample))
	if err != nil {
		return nil, fmt.Errorf("failed to plot Q-Q points: %w", err)
	}
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)

	if len(sample) > 1 {
		alpha, beta := stat.LinearRegression(theory, sample, nil, false)
		ref := plotter.NewFunction(func(x float64) float64 { return alpha + beta*x })
		ref.LineStyle.Color = zeroLineColor
		ref.XMin, ref.XMax = theory[0], theory[len(theory)-1]
		p.Add(ref)
	}
	return p, nil
}

func histogram(residuals []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Residual Distribution"
	p.X.Label.Text = "Residuals"
	p.Y.Label.Text = "Frequency"

	lo, hi := residuals[0], residuals[0]
	for _, v := range residuals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	// A constant series has no spread to bin
	if hi == lo {
		return p, nil
	}

	h, err := plotter.NewHist(plotter.Values(residuals), histogramBins)
	if err != nil {
		return nil, fmt.Errorf("failed to plot histogram: %w", err)
	}
	h.FillColor = observedColor
	p.Add(h)
	return p, nil
}

func scaleLocation(fitted, residuals []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Scale-Location"
	p.X.Label.Text = "Fitted values"
	p.Y.Label.Text = "sqrt(|Standardized residuals|)"

	_, std := stat.PopMeanStdDev(residuals, nil)
	if std == 0 {
		std = 1
	}
	scaled := make([]float64, len(residuals))
	for i, v := range residuals {
		scaled[i] = math.Sqrt(math.Abs(v / std))
	}

	s, err := plotter.NewScatter(paired(fitted, scaled))
	if err != nil {
		return nil, fmt.Errorf("failed to plot scale-location: %w", err)
	}
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)
	return p, nil
}

func zeroLine() *plotter.Function {
	f := plotter.NewFunction(func(float64) float64 { return 0 })
	f.LineStyle.Color = zeroLineColor
	f.LineStyle.Dashes = dashes
	return f
}

func paired(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}
	return pts
}

func indexed(y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(y))
	for i, v := range y {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return pts
}
