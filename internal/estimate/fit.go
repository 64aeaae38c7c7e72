package estimate

import (
	"errors"
	"fmt"

	"github.com/kartoza/econometric-lab/internal/classify"
	"github.com/kartoza/econometric-lab/internal/dataset"
)

// ErrEstimation marks a numeric failure inside an estimator: singular
// designs, non-convergence, duplicate panel keys and the like.
var ErrEstimation = errors.New("estimation failed")

func estimationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrEstimation, fmt.Sprintf(format, args...))
}

// Term is one estimated parameter with its inference statistics
type Term struct {
	Variable    string
	Coefficient float64
	StdError    float64
	TStatistic  float64
	PValue      float64
}

// Statistic is a named fit statistic. Values are float64, int, string or
// []int.
type Statistic struct {
	Name  string
	Value interface{}
}

// Report is the family-independent projection of a fit
type Report struct {
	Family     classify.Family
	Terms      []Term
	Statistics []Statistic
	Summary    string
}

// Renderer draws the diagnostic charts of a fit as PNG bytes
type Renderer interface {
	Diagnostics(fitted, residuals []float64) ([]byte, error)
	Series(observed, fitted, residuals []float64) ([]byte, error)
}

// Fit is the tagged result of one estimator
type Fit interface {
	Family() classify.Family
	Report() Report
	Charts(r Renderer) (map[string][]byte, error)
}

// EffectType selects the panel estimator
type EffectType string

const (
	FixedEffects  EffectType = "fixed"
	RandomEffects EffectType = "random"
)

// Order is an ARIMA (p, d, q) order
type Order struct {
	P, D, Q int
}

// DefaultOrder is used when a time-series request gives no order
var DefaultOrder = Order{P: 1, D: 1, Q: 1}

// Ints returns the order as [p, d, q]
func (o Order) Ints() []int { return []int{o.P, o.D, o.Q} }

func (o Order) String() string { return fmt.Sprintf("(%d, %d, %d)", o.P, o.D, o.Q) }

// Spec names the variables an estimator works on
type Spec struct {
	Dependent   string
	Independent []string
	Entity      string
	Time        string
	Effect      EffectType
	Order       Order
}

// Estimate dispatches to the estimator of the given family.
func Estimate(ds *dataset.Dataset, family classify.Family, spec Spec) (Fit, error) {
	switch family {
	case classify.Linear:
		return Linear(ds, spec.Dependent, spec.Independent)
	case classify.Panel:
		return PanelRegression(ds, spec.Dependent, spec.Independent, spec.Entity, spec.Time, spec.Effect)
	case classify.TimeSeries:
		return ARIMA(ds, spec.Dependent, spec.Time, spec.Order)
	}
	return nil, fmt.Errorf("unsupported model family %q", family)
}
