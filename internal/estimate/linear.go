package estimate

import (
	"math"

	"github.com/kartoza/econometric-lab/internal/classify"
	"github.com/kartoza/econometric-lab/internal/dataset"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ConstTerm names the intercept of a linear fit
const ConstTerm = "const"

// LinearFit is an ordinary least squares fit with an intercept
type LinearFit struct {
	Dependent    string
	Terms        []Term
	RSquared     float64
	AdjRSquared  float64
	FStatistic   float64
	FPValue      float64
	AIC          float64
	BIC          float64
	Observations int
	Fitted       []float64
	Residuals    []float64
}

// Linear regresses dependent on a constant plus the independent columns.
func Linear(ds *dataset.Dataset, dependent string, independent []string) (*LinearFit, error) {
	y, err := numericColumn(ds, dependent)
	if err != nil {
		return nil, err
	}

	n := len(y)
	k := len(independent)
	df := n - k - 1
	if df <= 0 {
		return nil, estimationError("%d observations are not enough for %d regressors plus a constant", n, k)
	}

	x := mat.NewDense(n, k+1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	for j, name := range independent {
		col, err := numericColumn(ds, name)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			x.Set(i, j+1, v)
		}
	}

	ols, err := fitOLS(x, y)
	if err != nil {
		return nil, err
	}

	dff := float64(df)
	s2 := ols.ssr / dff
	se := ols.conventionalErrors(s2)

	names := append([]string{ConstTerm}, independent...)
	terms := make([]Term, len(names))
	for j, name := range names {
		t, p := tTest(ols.beta[j], se[j], dff)
		terms[j] = Term{
			Variable:    name,
			Coefficient: ols.beta[j],
			StdError:    se[j],
			TStatistic:  t,
			PValue:      p,
		}
	}

	sst := centeredSS(y)
	r2 := 1 - ols.ssr/sst
	adj := 1 - (1-r2)*float64(n-1)/dff

	fStat, fP := math.NaN(), math.NaN()
	if k > 0 {
		fStat = ((sst - ols.ssr) / float64(k)) / s2
		fP = 1 - distuv.F{D1: float64(k), D2: dff}.CDF(fStat)
	}

	ll := gaussianLogLik(ols.ssr, n)
	params := float64(k + 1)

	return &LinearFit{
		Dependent:    dependent,
		Terms:        terms,
		RSquared:     r2,
		AdjRSquared:  adj,
		FStatistic:   fStat,
		FPValue:      fP,
		AIC:          -2*ll + 2*params,
		BIC:          -2*ll + params*math.Log(float64(n)),
		Observations: n,
		Fitted:       ols.fitted,
		Residuals:    ols.residuals,
	}, nil
}

func (f *LinearFit) Family() classify.Family { return classify.Linear }

func (f *LinearFit) Report() Report {
	stats := []Statistic{
		{"r_squared", f.RSquared},
		{"adj_r_squared", f.AdjRSquared},
		{"f_statistic", f.FStatistic},
		{"f_pvalue", f.FPValue},
		{"aic", f.AIC},
		{"bic", f.BIC},
		{"observations", f.Observations},
	}
	return Report{
		Family:     classify.Linear,
		Terms:      f.Terms,
		Statistics: stats,
		Summary:    summarize("OLS Regression Results", f.Dependent, f.Terms, stats),
	}
}

func (f *LinearFit) Charts(r Renderer) (map[string][]byte, error) {
	img, err := r.Diagnostics(f.Fitted, f.Residuals)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{"diagnostics": img}, nil
}
