package estimate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/kartoza/econometric-lab/internal/classify"
	"github.com/kartoza/econometric-lab/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// linearDataset draws y = 1 + 2 x1 - 3 x2 + noise
func linearDataset(t *testing.T, n int, seed int64) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]string, n)
	for i := range rows {
		x1 := rng.Float64() * 10
		x2 := rng.Float64() * 5
		y := 1 + 2*x1 - 3*x2 + rng.NormFloat64()*0.1
		rows[i] = []string{ff(y), ff(x1), ff(x2)}
	}
	ds, err := dataset.New("linear.csv", []string{"y", "x1", "x2"}, rows)
	require.NoError(t, err)
	return ds
}

func TestLinearRecoversCoefficients(t *testing.T) {
	ds := linearDataset(t, 100, 1)

	fit, err := Linear(ds, "y", []string{"x1", "x2"})
	require.NoError(t, err)

	require.Len(t, fit.Terms, 3)
	assert.Equal(t, "const", fit.Terms[0].Variable)
	assert.Equal(t, "x1", fit.Terms[1].Variable)
	assert.Equal(t, "x2", fit.Terms[2].Variable)

	assert.InDelta(t, 1.0, fit.Terms[0].Coefficient, 0.1)
	assert.InDelta(t, 2.0, fit.Terms[1].Coefficient, 0.02)
	assert.InDelta(t, -3.0, fit.Terms[2].Coefficient, 0.03)
	for _, term := range fit.Terms {
		assert.Greater(t, term.StdError, 0.0)
		assert.Less(t, term.PValue, 0.01)
	}

	assert.Greater(t, fit.RSquared, 0.99)
	assert.LessOrEqual(t, fit.AdjRSquared, fit.RSquared)
	assert.Greater(t, fit.FStatistic, 100.0)
	assert.Less(t, fit.FPValue, 1e-6)
	assert.Equal(t, 100, fit.Observations)
	assert.Len(t, fit.Fitted, 100)
	assert.Len(t, fit.Residuals, 100)
	assert.Greater(t, fit.BIC, fit.AIC)
}

func TestLinearTermOrderFollowsRequest(t *testing.T) {
	ds := linearDataset(t, 50, 2)

	fit, err := Linear(ds, "y", []string{"x2", "x1"})
	require.NoError(t, err)

	names := make([]string, len(fit.Terms))
	for i, term := range fit.Terms {
		names[i] = term.Variable
	}
	assert.Equal(t, []string{"const", "x2", "x1"}, names)
	assert.InDelta(t, -3.0, fit.Terms[1].Coefficient, 0.05)
}

func TestLinearIsDeterministic(t *testing.T) {
	ds := linearDataset(t, 60, 3)

	a, err := Linear(ds, "y", []string{"x1", "x2"})
	require.NoError(t, err)
	b, err := Linear(ds, "y", []string{"x1", "x2"})
	require.NoError(t, err)

	assert.Equal(t, a.Terms, b.Terms)
}

func TestLinearLargeScaleRegressors(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	rows := make([][]string, 100)
	for i := range rows {
		population := 5e7 + rng.NormFloat64()*2e6
		income := 4e4 + rng.NormFloat64()*5e3
		gdp := 1e12 + rng.NormFloat64()*5e10
		y := 3 + 2e-6*population + 0.001*income + 4e-11*gdp + rng.NormFloat64()*0.5
		rows[i] = []string{ff(y), ff(population), ff(income), ff(gdp)}
	}
	ds, err := dataset.New("macro.csv", []string{"y", "population", "income", "gdp"}, rows)
	require.NoError(t, err)

	fit, err := Linear(ds, "y", []string{"population", "income", "gdp"})
	require.NoError(t, err)

	require.Len(t, fit.Terms, 4)
	assert.InDelta(t, 2e-6, fit.Terms[1].Coefficient, 5e-7)
	assert.InDelta(t, 0.001, fit.Terms[2].Coefficient, 2e-4)
	assert.InDelta(t, 4e-11, fit.Terms[3].Coefficient, 2e-11)
	for _, term := range fit.Terms {
		assert.Greater(t, term.StdError, 0.0)
		assert.False(t, math.IsNaN(term.PValue))
	}
	assert.Greater(t, fit.RSquared, 0.5)
}

func TestLinearFailures(t *testing.T) {
	collinear, err := dataset.New("c.csv", []string{"y", "a", "b", "label"}, [][]string{
		{"1", "1", "2", "u"}, {"2", "2", "4", "v"}, {"3", "3", "6", "w"}, {"5", "4", "8", "x"},
	})
	require.NoError(t, err)
	missing, err := dataset.New("m.csv", []string{"y", "a"}, [][]string{
		{"1", "1"}, {"2", ""}, {"3", "3"}, {"4", "5"},
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		ds    *dataset.Dataset
		indep []string
	}{
		{"singular design", collinear, []string{"a", "b"}},
		{"unknown column", collinear, []string{"nope"}},
		{"categorical regressor", collinear, []string{"label"}},
		{"missing value", missing, []string{"a"}},
		{"too few observations", collinear, []string{"a", "b", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Linear(tt.ds, "y", tt.indep)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEstimation), "expected ErrEstimation, got %v", err)
		})
	}
}

// panelDataset draws y_it = a_i + 1.5 x_it + noise for entities x periods
func panelDataset(t *testing.T, entities, periods int, seed int64) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var rows [][]string
	for e := 0; e < entities; e++ {
		alpha := float64(e) * 3
		for p := 0; p < periods; p++ {
			x := rng.Float64()*4 + float64(e)
			z := rng.Float64()
			y := alpha + 1.5*x - 0.5*z + rng.NormFloat64()*0.05
			date := fmt.Sprintf("2020-%02d-01", p+1)
			rows = append(rows, []string{fmt.Sprintf("E%d", e), date, ff(y), ff(x), ff(z)})
		}
	}
	ds, err := dataset.New("panel.csv", []string{"firm_id", "date", "y", "x", "z"}, rows)
	require.NoError(t, err)
	return ds
}

func TestPanelFixedEffects(t *testing.T) {
	ds := panelDataset(t, 8, 6, 4)

	fit, err := PanelRegression(ds, "y", []string{"x", "z"}, "firm_id", "date", "")
	require.NoError(t, err)

	assert.Equal(t, FixedEffects, fit.Effect)
	require.Len(t, fit.Terms, 2)
	assert.Equal(t, "x", fit.Terms[0].Variable)
	assert.Equal(t, "z", fit.Terms[1].Variable)
	assert.InDelta(t, 1.5, fit.Terms[0].Coefficient, 0.05)
	assert.InDelta(t, -0.5, fit.Terms[1].Coefficient, 0.1)
	assert.Greater(t, fit.Terms[0].StdError, 0.0)
	assert.Equal(t, 48, fit.Observations)
	assert.Equal(t, 8, fit.Entities)
	assert.Greater(t, fit.RSquared, 0.9)
	assert.Len(t, fit.Residuals, 48)
}

func TestPanelRandomEffects(t *testing.T) {
	ds := panelDataset(t, 10, 5, 5)

	fit, err := PanelRegression(ds, "y", []string{"x", "z"}, "firm_id", "date", RandomEffects)
	require.NoError(t, err)

	assert.Equal(t, RandomEffects, fit.Effect)
	require.Len(t, fit.Terms, 2)
	assert.InDelta(t, 1.5, fit.Terms[0].Coefficient, 0.2)

	report := fit.Report()
	assert.Contains(t, report.Statistics, Statistic{"effect_type", "random"})
}

func TestPanelRejectsDuplicatePairs(t *testing.T) {
	ds, err := dataset.New("dup.csv", []string{"id", "t", "y", "x"}, [][]string{
		{"a", "1", "1", "2"}, {"a", "2", "2", "3"}, {"a", "2", "3", "4"},
		{"b", "1", "1", "1"}, {"b", "2", "2", "5"},
	})
	require.NoError(t, err)

	_, err = PanelRegression(ds, "y", []string{"x"}, "id", "t", FixedEffects)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEstimation))
	assert.Contains(t, err.Error(), "duplicate (entity, time) pair (a, 2)")
}

func TestPanelRejectsSinglePeriodEntity(t *testing.T) {
	ds, err := dataset.New("short.csv", []string{"id", "t", "y", "x"}, [][]string{
		{"a", "1", "1", "2"}, {"a", "2", "2", "3"}, {"b", "1", "1", "1"},
	})
	require.NoError(t, err)

	_, err = PanelRegression(ds, "y", []string{"x"}, "id", "t", FixedEffects)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEstimation))
	assert.Contains(t, err.Error(), `entity "b"`)
}

func TestPanelRejectsTimeInvariantRegressor(t *testing.T) {
	ds, err := dataset.New("inv.csv", []string{"id", "t", "y", "x", "size"}, [][]string{
		{"a", "1", "1", "2", "10"}, {"a", "2", "2", "3", "10"}, {"a", "3", "4", "1", "10"},
		{"b", "1", "1", "1", "20"}, {"b", "2", "2", "5", "20"}, {"b", "3", "1", "2", "20"},
	})
	require.NoError(t, err)

	_, err = PanelRegression(ds, "y", []string{"x", "size"}, "id", "t", FixedEffects)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEstimation))
}

// arDataset draws an AR(1) y_t = 0.6 y_{t-1} + e_t, rows in reverse time order
func arDataset(t *testing.T, n int, seed int64) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	y := make([]float64, n)
	for i := 1; i < n; i++ {
		y[i] = 0.6*y[i-1] + rng.NormFloat64()
	}
	rows := make([][]string, n)
	for i := range y {
		rows[n-1-i] = []string{strconv.Itoa(2000 + i), ff(y[i] + 10)}
	}
	ds, err := dataset.New("ar.csv", []string{"year", "value"}, rows)
	require.NoError(t, err)
	return ds
}

func TestARIMARecoversAR1(t *testing.T) {
	ds := arDataset(t, 300, 6)

	fit, err := ARIMA(ds, "value", "year", Order{P: 1, D: 0, Q: 0})
	require.NoError(t, err)

	// AR(1), const, sigma2
	require.Len(t, fit.Params, 3)
	assert.InDelta(t, 0.6, fit.Params[0], 0.12)
	assert.InDelta(t, 10, fit.Params[1], 0.5)
	assert.InDelta(t, 1, fit.Params[2], 0.3)
	assert.Equal(t, 300, fit.Observations)
}

func TestARIMASortsByTime(t *testing.T) {
	ds := arDataset(t, 80, 7)
	col, err := ds.Column("value")
	require.NoError(t, err)

	fit, err := ARIMA(ds, "value", "year", DefaultOrder)
	require.NoError(t, err)

	// rows were stored newest first
	assert.Equal(t, col.Float(ds.Rows()-1), fit.Observed[0])
	assert.Equal(t, col.Float(0), fit.Observed[len(fit.Observed)-1])
	assert.Len(t, fit.Observed, ds.Rows())
	assert.Len(t, fit.Fitted, ds.Rows())
	assert.Len(t, fit.Residuals, ds.Rows())

	// the first d observations are not fitted
	assert.Equal(t, 0.0, fit.Fitted[0])
	assert.Equal(t, fit.Observed[0], fit.Residuals[0])
	for i := range fit.Observed {
		assert.InDelta(t, fit.Observed[i], fit.Fitted[i]+fit.Residuals[i], 1e-9)
	}
}

func TestARIMAStableSortKeepsTies(t *testing.T) {
	ds, err := dataset.New("ties.csv", []string{"t", "v"}, [][]string{
		{"2", "5"}, {"1", "1"}, {"2", "6"}, {"1", "2"}, {"3", "7"}, {"3", "8"},
		{"4", "3"}, {"4", "9"}, {"5", "4"}, {"5", "1"},
	})
	require.NoError(t, err)

	fit, err := ARIMA(ds, "v", "t", Order{P: 0, D: 1, Q: 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 5, 6, 7, 8, 3, 9, 4, 1}, fit.Observed)
}

func TestARIMAReportZeroesInference(t *testing.T) {
	ds := arDataset(t, 120, 8)

	fit, err := ARIMA(ds, "value", "year", DefaultOrder)
	require.NoError(t, err)

	report := fit.Report()
	assert.Equal(t, classify.TimeSeries, report.Family)
	// AR, MA, sigma2: no constant once differenced
	require.Len(t, report.Terms, 3)
	for i, term := range report.Terms {
		assert.Equal(t, fmt.Sprintf("param_%d", i), term.Variable)
		assert.Equal(t, 0.0, term.StdError)
		assert.Equal(t, 0.0, term.TStatistic)
		assert.Equal(t, 0.0, term.PValue)
	}
	assert.Contains(t, report.Statistics, Statistic{"order", []int{1, 1, 1}})
	assert.Contains(t, report.Statistics, Statistic{"observations", 120})
}

func TestARIMAFailures(t *testing.T) {
	short, err := dataset.New("s.csv", []string{"t", "v"}, [][]string{{"1", "1"}, {"2", "2"}, {"3", "4"}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		order Order
		dep   string
		time  string
	}{
		{"negative order", Order{P: -1, D: 1, Q: 1}, "v", "t"},
		{"too few observations", Order{P: 2, D: 1, Q: 1}, "v", "t"},
		{"unknown time column", DefaultOrder, "v", "when"},
		{"unknown dependent", DefaultOrder, "w", "t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ARIMA(short, tt.dep, tt.time, tt.order)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEstimation))
		})
	}
}

func TestARIMADegenerateSeries(t *testing.T) {
	rows := make([][]string, 40)
	for i := range rows {
		rows[i] = []string{strconv.Itoa(2000 + i), "7"}
	}
	flat, err := dataset.New("flat.csv", []string{"year", "v"}, rows)
	require.NoError(t, err)

	// Differencing leaves a zero series whose residuals vanish for every
	// parameter value.
	for _, order := range []Order{{P: 1, D: 1, Q: 1}, {P: 2, D: 1, Q: 0}, {P: 0, D: 1, Q: 1}} {
		t.Run(order.String(), func(t *testing.T) {
			_, err := ARIMA(flat, "v", "year", order)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEstimation), "expected ErrEstimation, got %v", err)
		})
	}
}

func TestARMAMaximizeFailures(t *testing.T) {
	ds := arDataset(t, 120, 4)
	w, err := numericColumn(ds, "value")
	require.NoError(t, err)

	t.Run("iteration limit", func(t *testing.T) {
		model := armaModel{p: 1, q: 1, w: difference(w, 1), iterations: 1}
		_, err := model.maximize([]float64{0, 0})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEstimation), "expected ErrEstimation, got %v", err)
	})

	t.Run("no admissible parameters", func(t *testing.T) {
		// Every point of a zero series scores the penalty, so the search
		// cannot leave the explosive starting point.
		model := armaModel{p: 1, q: 1, w: make([]float64, 50), iterations: maxIterations}
		_, err := model.maximize([]float64{2, 2})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEstimation), "expected ErrEstimation, got %v", err)
	})
}

func TestRootsInsideUnitCircle(t *testing.T) {
	assert.True(t, rootsInsideUnitCircle(nil))
	assert.True(t, rootsInsideUnitCircle([]float64{0.5}))
	assert.False(t, rootsInsideUnitCircle([]float64{1.0}))
	assert.True(t, rootsInsideUnitCircle([]float64{0.5, 0.3}))
	assert.False(t, rootsInsideUnitCircle([]float64{0.5, 0.6}))
}

func TestEstimateDispatch(t *testing.T) {
	ds := linearDataset(t, 30, 9)

	fit, err := Estimate(ds, classify.Linear, Spec{Dependent: "y", Independent: []string{"x1"}})
	require.NoError(t, err)
	assert.Equal(t, classify.Linear, fit.Family())
	assert.Len(t, fit.Report().Terms, 2)

	_, err = Estimate(ds, classify.Family("var"), Spec{})
	assert.Error(t, err)
}

type fakeRenderer struct {
	diagnostics, series int
}

func (f *fakeRenderer) Diagnostics(fitted, residuals []float64) ([]byte, error) {
	f.diagnostics++
	return []byte("diag"), nil
}

func (f *fakeRenderer) Series(observed, fitted, residuals []float64) ([]byte, error) {
	f.series++
	if len(observed) != len(fitted) || len(fitted) != len(residuals) {
		return nil, errors.New("length mismatch")
	}
	return []byte("series"), nil
}

func TestChartsByFamily(t *testing.T) {
	r := &fakeRenderer{}

	lin, err := Linear(linearDataset(t, 30, 10), "y", []string{"x1", "x2"})
	require.NoError(t, err)
	charts, err := lin.Charts(r)
	require.NoError(t, err)
	assert.Contains(t, charts, "diagnostics")

	ts, err := ARIMA(arDataset(t, 60, 11), "value", "year", DefaultOrder)
	require.NoError(t, err)
	charts, err = ts.Charts(r)
	require.NoError(t, err)
	assert.Contains(t, charts, "timeseries")

	assert.Equal(t, 1, r.diagnostics)
	assert.Equal(t, 1, r.series)
}

func TestLinearSummaryMentionsTerms(t *testing.T) {
	fit, err := Linear(linearDataset(t, 40, 12), "y", []string{"x1", "x2"})
	require.NoError(t, err)

	summary := fit.Report().Summary
	assert.Contains(t, summary, "OLS Regression Results")
	assert.Contains(t, summary, "x2")
	assert.False(t, math.IsNaN(fit.AIC))
}
