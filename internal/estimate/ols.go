package estimate

import (
	"math"

	"github.com/kartoza/econometric-lab/internal/dataset"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// numericColumn returns the values of a numeric column with no missing cells
func numericColumn(ds *dataset.Dataset, name string) ([]float64, error) {
	col, err := ds.Column(name)
	if err != nil {
		return nil, estimationError("%v", err)
	}
	values, err := col.Floats()
	if err != nil {
		return nil, estimationError("%v", err)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, estimationError("column %q has a missing value at row %d", name, i+1)
		}
	}
	return values, nil
}

// rankTolerance is the smallest singular value, relative to the largest,
// that still counts towards the rank of the equilibrated design
const rankTolerance = 1e-12

// olsFit is a least squares solution of y = X b
type olsFit struct {
	beta      []float64
	xtxInv    *mat.Dense
	fitted    []float64
	residuals []float64
	ssr       float64
	n, k      int
}

// fitOLS solves min ||y - X b|| through the SVD of X with every column
// scaled to unit length, so regressors measured in millions or billions
// next to a constant do not look collinear. A design whose numerical rank
// is below its column count is an estimation error.
func fitOLS(x *mat.Dense, y []float64) (*olsFit, error) {
	n, k := x.Dims()
	if n != len(y) {
		return nil, estimationError("design has %d rows but response has %d", n, len(y))
	}
	if n < k {
		return nil, estimationError("design has %d rows for %d parameters", n, k)
	}

	scale := make([]float64, k)
	xs := mat.NewDense(n, k, nil)
	for j := 0; j < k; j++ {
		norm := mat.Norm(x.ColView(j), 2)
		if norm == 0 || math.IsInf(norm, 0) || math.IsNaN(norm) {
			return nil, estimationError("design matrix is singular (perfect collinearity among regressors): column %d is zero", j)
		}
		scale[j] = 1 / norm
		for i := 0; i < n; i++ {
			xs.Set(i, j, x.At(i, j)*scale[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(xs, mat.SVDThin); !ok {
		return nil, estimationError("failed to factorize design matrix")
	}
	if rank := svd.Rank(rankTolerance); rank < k {
		return nil, estimationError("design matrix is singular (perfect collinearity among regressors): rank %d of %d", rank, k)
	}

	yVec := mat.NewVecDense(n, y)
	var bs mat.VecDense
	svd.SolveVecTo(&bs, yVec, k)

	// (X'X)^-1 = D V S^-2 V' D with D the column scaling
	var v mat.Dense
	svd.VTo(&v)
	sv := svd.Values(nil)
	xtxInv := mat.NewDense(k, k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			var sum float64
			for l := 0; l < k; l++ {
				sum += v.At(a, l) * v.At(b, l) / (sv[l] * sv[l])
			}
			sum *= scale[a] * scale[b]
			xtxInv.Set(a, b, sum)
			xtxInv.Set(b, a, sum)
		}
	}

	f := &olsFit{
		beta:      make([]float64, k),
		xtxInv:    xtxInv,
		fitted:    make([]float64, n),
		residuals: make([]float64, n),
		n:         n,
		k:         k,
	}
	for j := 0; j < k; j++ {
		f.beta[j] = bs.AtVec(j) * scale[j]
	}
	b := mat.NewVecDense(k, f.beta)
	var yhat mat.VecDense
	yhat.MulVec(x, b)
	for i := 0; i < n; i++ {
		f.fitted[i] = yhat.AtVec(i)
		f.residuals[i] = y[i] - f.fitted[i]
		f.ssr += f.residuals[i] * f.residuals[i]
	}
	return f, nil
}

// conventionalErrors returns sqrt(s2 * diag((X'X)^-1))
func (f *olsFit) conventionalErrors(s2 float64) []float64 {
	se := make([]float64, f.k)
	for j := range se {
		se[j] = math.Sqrt(s2 * f.xtxInv.At(j, j))
	}
	return se
}

// centeredSS is the total sum of squares around the mean
func centeredSS(y []float64) float64 {
	mean := stat.Mean(y, nil)
	var ss float64
	for _, v := range y {
		ss += (v - mean) * (v - mean)
	}
	return ss
}

// tTest returns the t statistic and two-sided p-value of an estimate
func tTest(coef, se, df float64) (float64, float64) {
	t := coef / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * (1 - dist.CDF(math.Abs(t)))
	return t, p
}

// gaussianLogLik is the concentrated Gaussian log-likelihood of n residuals
func gaussianLogLik(ssr float64, n int) float64 {
	nf := float64(n)
	return -nf / 2 * (math.Log(2*math.Pi) + math.Log(ssr/nf) + 1)
}
