package estimate

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/kartoza/econometric-lab/internal/classify"
	"github.com/kartoza/econometric-lab/internal/dataset"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// penalty replaces the objective outside the causal and invertible region
const penalty = 1e100

// maxIterations bounds the Nelder-Mead major iterations of one fit
const maxIterations = 5000

// TimeSeriesFit is an ARIMA(p, d, q) fit. Parameter inference is not
// computed: the reported standard errors, t statistics and p-values are
// always zero.
type TimeSeriesFit struct {
	Dependent string
	Order     Order

	// Params in order: AR(1..p), MA(1..q), const (only when d = 0), sigma2
	Params       []float64
	AIC          float64
	BIC          float64
	Observations int

	// Observed, Fitted and Residuals are on the original scale, sorted by
	// time, one entry per input row
	Observed  []float64
	Fitted    []float64
	Residuals []float64
}

// ARIMA sorts the rows by timeVar (stable) and fits an ARIMA model to
// dependent by conditional Gaussian maximum likelihood. No order search is
// done.
func ARIMA(ds *dataset.Dataset, dependent, timeVar string, order Order) (*TimeSeriesFit, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, estimationError("ARIMA order %s must be non-negative", order)
	}

	raw, err := numericColumn(ds, dependent)
	if err != nil {
		return nil, err
	}
	tm, err := ds.Column(timeVar)
	if err != nil {
		return nil, estimationError("time variable: %v", err)
	}

	idx := make([]int, len(raw))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return tm.Less(idx[a], idx[b]) })
	y := make([]float64, len(raw))
	for i, j := range idx {
		y[i] = raw[j]
	}

	w := difference(y, order.D)
	hasConst := order.D == 0
	nParams := order.P + order.Q
	if hasConst {
		nParams++
	}
	m := len(w)
	if m <= nParams+1 || m <= order.P || m <= order.Q {
		return nil, estimationError("%d observations after differencing are not enough for ARIMA%s", m, order)
	}

	model := armaModel{p: order.P, q: order.Q, hasConst: hasConst, w: w, iterations: maxIterations}

	x := make([]float64, nParams)
	if hasConst {
		x[nParams-1] = stat.Mean(w, nil)
	}
	if nParams > 0 {
		x, err = model.maximize(x)
		if err != nil {
			return nil, err
		}
	}
	resid, ssr := model.residuals(x)
	if ssr <= 0 || math.IsNaN(ssr) || math.IsInf(ssr, 0) {
		return nil, estimationError("ARIMA%s likelihood is degenerate (residual sum of squares %g)", order, ssr)
	}
	sigma2 := ssr / float64(m)
	ll := gaussianLogLik(ssr, m)
	k := float64(nParams + 1)

	fit := &TimeSeriesFit{
		Dependent:    dependent,
		Order:        order,
		Params:       append(append([]float64(nil), x...), sigma2),
		AIC:          -2*ll + 2*k,
		BIC:          -2*ll + k*math.Log(float64(m)),
		Observations: len(y),
		Observed:     y,
		Fitted:       make([]float64, len(y)),
		Residuals:    make([]float64, len(y)),
	}
	// The first d values have no differenced counterpart: fitted is zero and
	// the residual is the observation itself.
	for t := range y {
		if t < order.D {
			fit.Residuals[t] = y[t]
			continue
		}
		e := resid[t-order.D]
		fit.Residuals[t] = e
		fit.Fitted[t] = y[t] - e
	}
	return fit, nil
}

// difference applies d rounds of first differencing
func difference(y []float64, d int) []float64 {
	w := append([]float64(nil), y...)
	for r := 0; r < d && len(w) > 0; r++ {
		next := make([]float64, len(w)-1)
		for i := range next {
			next[i] = w[i+1] - w[i]
		}
		w = next
	}
	return w
}

// armaModel evaluates the conditional sum of squares of an ARMA(p, q) on a
// differenced series with pre-sample values set to their mean.
type armaModel struct {
	p, q       int
	hasConst   bool
	w          []float64
	iterations int
}

func (a armaModel) split(x []float64) (ar, ma []float64, c float64) {
	ar = x[:a.p]
	ma = x[a.p : a.p+a.q]
	if a.hasConst {
		c = x[a.p+a.q]
	}
	return ar, ma, c
}

func (a armaModel) residuals(x []float64) ([]float64, float64) {
	ar, ma, c := a.split(x)
	e := make([]float64, len(a.w))
	var ssr float64
	for t := range a.w {
		v := a.w[t] - c
		for i, phi := range ar {
			if t-i-1 >= 0 {
				v -= phi * (a.w[t-i-1] - c)
			}
		}
		for j, theta := range ma {
			if t-j-1 >= 0 {
				v -= theta * e[t-j-1]
			}
		}
		e[t] = v
		ssr += v * v
	}
	return e, ssr
}

// admissible reports whether the AR part is causal and the MA part
// invertible.
func (a armaModel) admissible(x []float64) bool {
	ar, ma, _ := a.split(x)
	neg := make([]float64, len(ma))
	for i, theta := range ma {
		neg[i] = -theta
	}
	return rootsInsideUnitCircle(ar) && rootsInsideUnitCircle(neg)
}

func (a armaModel) maximize(x0 []float64) ([]float64, error) {
	m := float64(len(a.w))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if !a.admissible(x) {
				return penalty
			}
			_, ssr := a.residuals(x)
			if ssr <= 0 {
				return penalty
			}
			// Negative concentrated log-likelihood, up to a constant
			return m / 2 * math.Log(ssr/m)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: a.iterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 200,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, estimationError("likelihood maximization did not converge: %v", err)
	}
	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.Failure:
		return nil, estimationError("likelihood maximization did not converge: %v", result.Status)
	}
	if result.F >= penalty || !a.admissible(result.X) {
		return nil, estimationError("no stationary and invertible parameters found")
	}
	return result.X, nil
}

// rootsInsideUnitCircle checks that the companion matrix of
// z^p - c1 z^(p-1) - ... - cp has all eigenvalues strictly inside the unit
// circle, i.e. that 1 - c1 z - ... - cp z^p has its roots outside it.
func rootsInsideUnitCircle(coef []float64) bool {
	p := len(coef)
	switch p {
	case 0:
		return true
	case 1:
		return math.Abs(coef[0]) < 1
	}

	companion := mat.NewDense(p, p, nil)
	for j, c := range coef {
		companion.Set(0, j, c)
	}
	for i := 1; i < p; i++ {
		companion.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= 1 {
			return false
		}
	}
	return true
}

func (f *TimeSeriesFit) Family() classify.Family { return classify.TimeSeries }

// Report lists the parameters positionally as param_0, param_1, ... with
// zero inference statistics.
func (f *TimeSeriesFit) Report() Report {
	terms := make([]Term, len(f.Params))
	for i, v := range f.Params {
		terms[i] = Term{Variable: fmt.Sprintf("param_%d", i), Coefficient: v}
	}
	stats := []Statistic{
		{"aic", f.AIC},
		{"bic", f.BIC},
		{"observations", f.Observations},
		{"order", f.Order.Ints()},
	}
	return Report{
		Family:     classify.TimeSeries,
		Terms:      terms,
		Statistics: stats,
		Summary:    summarize("ARIMA"+f.Order.String()+" Results", f.Dependent, terms, stats),
	}
}

func (f *TimeSeriesFit) Charts(r Renderer) (map[string][]byte, error) {
	img, err := r.Series(f.Observed, f.Fitted, f.Residuals)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{"timeseries": img}, nil
}
