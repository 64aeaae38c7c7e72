// Package report renders stored fit results as downloadable documents.
package report

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strconv"
	"strings"

	"github.com/kartoza/econometric-lab/internal/results"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"
)

// ErrInvalidChart is returned when a chart is not base64 encoded PNG data
var ErrInvalidChart = errors.New("invalid chart")

const (
	pageWidth  = 8.5 * vg.Inch
	pageHeight = 11 * vg.Inch
	margin     = vg.Inch
	lineHeight = 18
	rowHeight  = 22
)

var (
	accent    = color.RGBA{R: 0x25, G: 0x63, B: 0xEB, A: 0xFF}
	rowFill   = color.RGBA{R: 0xF5, G: 0xF5, B: 0xDC, A: 0xFF}
	gridStyle = draw.LineStyle{Color: color.Black, Width: vg.Points(0.75)}

	coefficientHeader = []string{"Variable", "Coefficient", "Std. Error", "t Statistic", "p-value"}
)

// PNG decodes a base64 chart and checks that it is a PNG image.
func PNG(chart string) ([]byte, error) {
	if chart == "" {
		return nil, fmt.Errorf("%w: chart data missing", ErrInvalidChart)
	}
	data, err := base64.StdEncoding.DecodeString(chart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChart, err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: not a PNG image: %v", ErrInvalidChart, err)
	}
	return data, nil
}

// PDF renders a letter-size report: a coefficient table and the fit
// statistics on the first page, then one page per chart.
func PDF(res *results.FitResult) ([]byte, error) {
	c := vgpdf.New(pageWidth, pageHeight)
	c.EmbedFonts(true)
	p := &page{canvas: c, dc: draw.New(c)}
	p.top()

	p.text(textStyle(18, accent, text.XCenter), pageWidth/2, "Econometric Analysis Report")
	p.y -= lineHeight
	if res.ModelType != "" {
		p.text(textStyle(11, color.Black, text.XCenter), pageWidth/2, "Model: "+res.ModelType)
	}
	p.y -= lineHeight

	if len(res.Coefficients) > 0 {
		p.heading("Coefficients")
		p.coefficients(res.Coefficients)
		p.y -= lineHeight
	}

	if len(res.Statistics) > 0 {
		p.heading("Model Statistics")
		keys := make([]string, 0, len(res.Statistics))
		for k := range res.Statistics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		body := textStyle(11, color.Black, text.XLeft)
		for _, k := range keys {
			p.ensure(lineHeight)
			p.text(body, margin, fmt.Sprintf("%s: %s", k, formatStatistic(res.Statistics[k])))
		}
	}

	names := make([]string, 0, len(res.Charts))
	for name := range res.Charts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := PNG(res.Charts[name])
		if err != nil {
			return nil, fmt.Errorf("chart %q: %w", name, err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("chart %q: %w: %v", name, ErrInvalidChart, err)
		}
		p.newPage()
		p.heading(chartTitle(name))
		p.image(img)
	}

	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// page tracks the drawing cursor; y is the baseline of the next line
type page struct {
	canvas *vgpdf.Canvas
	dc     draw.Canvas
	y      vg.Length
}

func (p *page) top() { p.y = pageHeight - margin }

func (p *page) newPage() {
	p.canvas.NextPage()
	p.top()
}

// ensure starts a new page when h does not fit above the bottom margin
func (p *page) ensure(h vg.Length) {
	if p.y-h < margin {
		p.newPage()
	}
}

func (p *page) text(sty text.Style, x vg.Length, s string) {
	p.dc.FillText(sty, vg.Point{X: x, Y: p.y}, s)
	p.y -= lineHeight
}

func (p *page) heading(s string) {
	p.ensure(2 * lineHeight)
	p.text(textStyle(14, color.Black, text.XLeft), margin, s)
	p.y -= lineHeight / 2
}

func (p *page) coefficients(coefs []results.Coefficient) {
	width := pageWidth - 2*margin
	colWidth := width / vg.Length(len(coefficientHeader))

	row := func(cells []string, fill, ink color.Color) {
		p.ensure(rowHeight)
		bottom := p.y - rowHeight
		p.dc.FillPolygon(fill, []vg.Point{
			{X: margin, Y: bottom}, {X: margin + width, Y: bottom},
			{X: margin + width, Y: p.y}, {X: margin, Y: p.y},
		})
		sty := textStyle(10, ink, text.XCenter)
		sty.YAlign = text.YCenter
		for i, cell := range cells {
			x := margin + colWidth*vg.Length(i)
			p.dc.FillText(sty, vg.Point{X: x + colWidth/2, Y: bottom + rowHeight/2}, cell)
			p.dc.StrokeLine2(gridStyle, x, bottom, x, p.y)
		}
		p.dc.StrokeLine2(gridStyle, margin+width, bottom, margin+width, p.y)
		p.dc.StrokeLine2(gridStyle, margin, p.y, margin+width, p.y)
		p.dc.StrokeLine2(gridStyle, margin, bottom, margin+width, bottom)
		p.y = bottom
	}

	row(coefficientHeader, accent, color.White)
	for _, c := range coefs {
		row([]string{
			c.Variable,
			fmt.Sprintf("%.4f", c.Coefficient),
			fmt.Sprintf("%.4f", c.StdError),
			fmt.Sprintf("%.4f", c.TStatistic),
			fmt.Sprintf("%.4f", c.PValue),
		}, rowFill, color.Black)
	}
}

// image draws img 6 inches wide, keeping its aspect ratio
func (p *page) image(img image.Image) {
	b := img.Bounds()
	w := 6 * vg.Inch
	h := w * vg.Length(b.Dy()) / vg.Length(b.Dx())
	if maxH := p.y - margin; h > maxH {
		w = w * maxH / h
		h = maxH
	}
	x := (pageWidth - w) / 2
	p.dc.DrawImage(vg.Rectangle{
		Min: vg.Point{X: x, Y: p.y - h},
		Max: vg.Point{X: x + w, Y: p.y},
	}, img)
	p.y -= h
}

func textStyle(size vg.Length, clr color.Color, align text.XAlignment) text.Style {
	return text.Style{
		Color:   clr,
		Font:    font.From(plot.DefaultFont, size),
		XAlign:  align,
		Handler: plot.DefaultTextHandler,
	}
}

func formatStatistic(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "n/a"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// chartTitle turns a chart key such as "timeseries" into a heading
func chartTitle(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
