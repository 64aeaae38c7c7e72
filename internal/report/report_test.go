package report

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/kartoza/econometric-lab/internal/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChart(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, 15, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testResult(t *testing.T) *results.FitResult {
	return &results.FitResult{
		ID:         "r1",
		AnalysisID: "d1",
		ModelType:  "linear",
		Coefficients: []results.Coefficient{
			{Variable: "const", Coefficient: 1.25, StdError: 0.1, TStatistic: 12.5, PValue: 0},
			{Variable: "x", Coefficient: -0.5, StdError: 0.05, TStatistic: -10, PValue: 0.0001},
		},
		Statistics: map[string]interface{}{"r_squared": 0.91, "observations": 100, "f_pvalue": nil},
		Charts:     map[string]string{"diagnostics": testChart(t)},
		Timestamp:  time.Now().UTC(),
	}
}

func TestPDF(t *testing.T) {
	doc, err := PDF(testResult(t))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestPDFPaginatesLongTables(t *testing.T) {
	res := testResult(t)
	for i := 0; i < 60; i++ {
		res.Coefficients = append(res.Coefficients, results.Coefficient{Variable: "param", Coefficient: math.Pi})
	}

	doc, err := PDF(res)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestPDFRejectsBadChart(t *testing.T) {
	res := testResult(t)
	res.Charts["broken"] = "not base64!"

	_, err := PDF(res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidChart))
}

func TestPNG(t *testing.T) {
	chart := testChart(t)

	data, err := PNG(chart)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	for _, bad := range []string{"", "%%%", base64.StdEncoding.EncodeToString([]byte("plain text"))} {
		_, err := PNG(bad)
		assert.True(t, errors.Is(err, ErrInvalidChart), "input %q", bad)
	}
}

func TestChartTitle(t *testing.T) {
	assert.Equal(t, "Diagnostics", chartTitle("diagnostics"))
	assert.Equal(t, "Residual Series", chartTitle("residual_series"))
}
