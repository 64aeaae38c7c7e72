package charts

import (
	"bytes"
	"image/png"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func sample(n int) (fitted, residuals []float64) {
	fitted = make([]float64, n)
	residuals = make([]float64, n)
	for i := range fitted {
		fitted[i] = float64(i) * 0.5
		residuals[i] = math.Sin(float64(i))
	}
	return fitted, residuals
}

func TestDiagnosticsProducesPNG(t *testing.T) {
	r := NewRenderer()
	fitted, residuals := sample(50)

	img, err := r.Diagnostics(fitted, residuals)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(img, pngMagic))

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Greater(t, decoded.Bounds().Dx(), decoded.Bounds().Dy())
}

func TestDiagnosticsConstantResiduals(t *testing.T) {
	r := NewRenderer()

	img, err := r.Diagnostics([]float64{1, 2, 3}, []float64{0, 0, 0})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, pngMagic))
}

func TestSeriesProducesPNG(t *testing.T) {
	r := NewRenderer()
	fitted, residuals := sample(40)
	observed := make([]float64, len(fitted))
	for i := range observed {
		observed[i] = fitted[i] + residuals[i]
	}

	img, err := r.Series(observed, fitted, residuals)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, pngMagic))
}

func TestRejectsMismatchedInput(t *testing.T) {
	r := NewRenderer()

	_, err := r.Diagnostics([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
	_, err = r.Diagnostics(nil, nil)
	assert.Error(t, err)
	_, err = r.Series([]float64{1, 2}, []float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestConcurrentRendering(t *testing.T) {
	r := NewRenderer()
	fitted, residuals := sample(20)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Diagnostics(fitted, residuals)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
