package estimate

import (
	"math"

	"github.com/kartoza/econometric-lab/internal/classify"
	"github.com/kartoza/econometric-lab/internal/dataset"
	"gonum.org/v1/gonum/mat"
)

// PanelFit is a fixed or random effects panel regression. The intercept and
// entity effects are not part of Terms.
type PanelFit struct {
	Dependent    string
	Effect       EffectType
	Terms        []Term
	RSquared     float64
	Observations int
	Entities     int
	Fitted       []float64
	Residuals    []float64
}

// panelData is the regression data grouped by entity in order of first
// appearance
type panelData struct {
	y      []float64
	x      [][]float64 // x[j][i] is regressor j at row i
	groups [][]int     // row indices per entity
}

// PanelRegression fits dependent on independent with entity effects.
// Every (entity, time) pair must be unique and every entity needs at least
// two time periods.
func PanelRegression(ds *dataset.Dataset, dependent string, independent []string, entity, timeVar string, effect EffectType) (*PanelFit, error) {
	if effect == "" {
		effect = FixedEffects
	}
	if effect != FixedEffects && effect != RandomEffects {
		return nil, estimationError("unknown panel effect type %q", effect)
	}
	if len(independent) == 0 {
		return nil, estimationError("panel regression needs at least one regressor")
	}

	data, err := loadPanel(ds, dependent, independent, entity, timeVar)
	if err != nil {
		return nil, err
	}

	var fit *PanelFit
	if effect == FixedEffects {
		fit, err = fixedEffects(data, independent)
	} else {
		fit, err = randomEffects(data, independent)
	}
	if err != nil {
		return nil, err
	}
	fit.Dependent = dependent
	fit.Effect = effect
	fit.Observations = len(data.y)
	fit.Entities = len(data.groups)
	return fit, nil
}

func loadPanel(ds *dataset.Dataset, dependent string, independent []string, entity, timeVar string) (*panelData, error) {
	ent, err := ds.Column(entity)
	if err != nil {
		return nil, estimationError("entity variable: %v", err)
	}
	tm, err := ds.Column(timeVar)
	if err != nil {
		return nil, estimationError("time variable: %v", err)
	}

	y, err := numericColumn(ds, dependent)
	if err != nil {
		return nil, err
	}
	x := make([][]float64, len(independent))
	for j, name := range independent {
		if x[j], err = numericColumn(ds, name); err != nil {
			return nil, err
		}
	}

	type key struct{ entity, time string }
	seen := make(map[key]bool, ds.Rows())
	groupOf := make(map[string]int)
	var groups [][]int

	for i := 0; i < ds.Rows(); i++ {
		k := key{ent.Cell(i), tm.Cell(i)}
		if seen[k] {
			return nil, estimationError("duplicate (entity, time) pair (%s, %s) at row %d", k.entity, k.time, i+1)
		}
		seen[k] = true

		g, ok := groupOf[k.entity]
		if !ok {
			g = len(groups)
			groupOf[k.entity] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}

	for _, rows := range groups {
		if len(rows) < 2 {
			return nil, estimationError("entity %q has %d time period; at least 2 are required", ent.Cell(rows[0]), len(rows))
		}
	}

	return &panelData{y: y, x: x, groups: groups}, nil
}

func groupMean(values []float64, rows []int) float64 {
	var sum float64
	for _, i := range rows {
		sum += values[i]
	}
	return sum / float64(len(rows))
}

// fixedEffects runs OLS on entity-demeaned data with standard errors
// clustered by entity.
func fixedEffects(d *panelData, names []string) (*PanelFit, error) {
	n, k, g := len(d.y), len(d.x), len(d.groups)
	if g < 2 {
		return nil, estimationError("entity-clustered standard errors need at least 2 entities, got %d", g)
	}
	if n-g-k <= 0 {
		return nil, estimationError("%d observations over %d entities are not enough for %d regressors", n, g, k)
	}

	yw := make([]float64, n)
	xw := mat.NewDense(n, k, nil)
	for _, rows := range d.groups {
		ym := groupMean(d.y, rows)
		for _, i := range rows {
			yw[i] = d.y[i] - ym
		}
		for j := 0; j < k; j++ {
			xm := groupMean(d.x[j], rows)
			for _, i := range rows {
				xw.Set(i, j, d.x[j][i]-xm)
			}
		}
	}

	// Demeaning leaves rounding residue, not zeros, in a time-invariant column
	for j := 0; j < k; j++ {
		raw := mat.Norm(mat.NewVecDense(n, d.x[j]), 2)
		if mat.Norm(xw.ColView(j), 2) <= 1e-10*raw {
			return nil, estimationError("regressor %q does not vary within entities", names[j])
		}
	}

	ols, err := fitOLS(xw, yw)
	if err != nil {
		return nil, estimationError("within-entity design is singular; a regressor may not vary within entities")
	}

	// Sandwich: (X'X)^-1 [sum_g X_g' e_g e_g' X_g] (X'X)^-1, scaled by G/(G-1)
	meat := mat.NewDense(k, k, nil)
	score := mat.NewVecDense(k, nil)
	for _, rows := range d.groups {
		score.Zero()
		for _, i := range rows {
			for j := 0; j < k; j++ {
				score.SetVec(j, score.AtVec(j)+xw.At(i, j)*ols.residuals[i])
			}
		}
		var outer mat.Dense
		outer.Outer(1, score, score)
		meat.Add(meat, &outer)
	}
	var cov mat.Dense
	cov.Product(ols.xtxInv, meat, ols.xtxInv)
	cov.Scale(float64(g)/float64(g-1), &cov)

	df := float64(g - 1)
	terms := make([]Term, k)
	for j, name := range names {
		se := math.Sqrt(cov.At(j, j))
		t, p := tTest(ols.beta[j], se, df)
		terms[j] = Term{Variable: name, Coefficient: ols.beta[j], StdError: se, TStatistic: t, PValue: p}
	}

	return &PanelFit{
		Terms:     terms,
		RSquared:  1 - ols.ssr/centeredSS(yw),
		Fitted:    ols.fitted,
		Residuals: ols.residuals,
	}, nil
}

// randomEffects is the Swamy-Arora GLS estimator: data are quasi-demeaned by
// theta_i = 1 - sqrt(s2e / (T_i s2u + s2e)) and fitted by OLS with a
// constant. Standard errors are conventional, not clustered.
func randomEffects(d *panelData, names []string) (*PanelFit, error) {
	n, k, g := len(d.y), len(d.x), len(d.groups)
	if n-g-k <= 0 {
		return nil, estimationError("%d observations over %d entities are not enough for %d regressors", n, g, k)
	}
	if g-k-1 <= 0 {
		return nil, estimationError("random effects needs more than %d entities for %d regressors, got %d", k+1, k, g)
	}

	within, err := fixedEffects(d, names)
	if err != nil {
		return nil, err
	}
	var ssrWithin float64
	for _, e := range within.Residuals {
		ssrWithin += e * e
	}
	s2e := ssrWithin / float64(n-g-k)

	// Between regression on entity means
	yb := make([]float64, g)
	xb := mat.NewDense(g, k+1, nil)
	var invT float64
	for gi, rows := range d.groups {
		yb[gi] = groupMean(d.y, rows)
		xb.Set(gi, 0, 1)
		for j := 0; j < k; j++ {
			xb.Set(gi, j+1, groupMean(d.x[j], rows))
		}
		invT += 1 / float64(len(rows))
	}
	between, err := fitOLS(xb, yb)
	if err != nil {
		return nil, estimationError("between-entity design is singular; a regressor may not vary across entities")
	}
	tBar := float64(g) / invT
	s2u := math.Max(0, between.ssr/float64(g-k-1)-s2e/tBar)

	z := mat.NewDense(n, k+1, nil)
	yt := make([]float64, n)
	for _, rows := range d.groups {
		theta := 0.0
		if denom := float64(len(rows))*s2u + s2e; denom > 0 {
			theta = 1 - math.Sqrt(s2e/denom)
		}
		ym := groupMean(d.y, rows)
		for _, i := range rows {
			yt[i] = d.y[i] - theta*ym
			z.Set(i, 0, 1-theta)
		}
		for j := 0; j < k; j++ {
			xm := groupMean(d.x[j], rows)
			for _, i := range rows {
				z.Set(i, j+1, d.x[j][i]-theta*xm)
			}
		}
	}

	ols, err := fitOLS(z, yt)
	if err != nil {
		return nil, err
	}
	df := float64(n - k - 1)
	se := ols.conventionalErrors(ols.ssr / df)

	terms := make([]Term, k)
	for j, name := range names {
		t, p := tTest(ols.beta[j+1], se[j+1], df)
		terms[j] = Term{Variable: name, Coefficient: ols.beta[j+1], StdError: se[j+1], TStatistic: t, PValue: p}
	}

	return &PanelFit{
		Terms:     terms,
		RSquared:  1 - ols.ssr/centeredSS(yt),
		Fitted:    ols.fitted,
		Residuals: ols.residuals,
	}, nil
}

func (f *PanelFit) Family() classify.Family { return classify.Panel }

func (f *PanelFit) Report() Report {
	stats := []Statistic{
		{"r_squared", f.RSquared},
		{"observations", f.Observations},
		{"entities", f.Entities},
		{"effect_type", string(f.Effect)},
	}
	return Report{
		Family:     classify.Panel,
		Terms:      f.Terms,
		Statistics: stats,
		Summary:    summarize("Panel Regression Results ("+string(f.Effect)+" effects)", f.Dependent, f.Terms, stats),
	}
}

func (f *PanelFit) Charts(r Renderer) (map[string][]byte, error) {
	img, err := r.Diagnostics(f.Fitted, f.Residuals)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{"diagnostics": img}, nil
}
