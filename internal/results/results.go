// Package results turns estimator output into the stored, JSON-safe result
// record.
package results

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kartoza/econometric-lab/internal/estimate"
)

// significantDigits is the precision every float is rounded to
const significantDigits = 10

// Coefficient is one row of the coefficient table
type Coefficient struct {
	Variable    string  `json:"variable"`
	Coefficient float64 `json:"coefficient"`
	StdError    float64 `json:"std_error"`
	TStatistic  float64 `json:"t_statistic"`
	PValue      float64 `json:"p_value"`
}

// FitResult is the immutable outcome of one analysis
type FitResult struct {
	ID           string                 `json:"id"`
	AnalysisID   string                 `json:"analysis_id"`
	ModelType    string                 `json:"model_type"`
	Summary      string                 `json:"summary"`
	Coefficients []Coefficient          `json:"coefficients"`
	Statistics   map[string]interface{} `json:"statistics"`
	Charts       map[string]string      `json:"charts"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Assembler builds FitResults. The clock and identifier source are fields
// so tests can pin them.
type Assembler struct {
	now   func() time.Time
	newID func() string
}

// NewAssembler creates an assembler using UUIDs and the UTC wall clock
func NewAssembler() *Assembler {
	return &Assembler{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Assemble projects fit into a FitResult. Charts are PNG bytes keyed by
// chart name and are stored base64 encoded.
func (a *Assembler) Assemble(analysisID string, fit estimate.Fit, charts map[string][]byte) (*FitResult, error) {
	report := fit.Report()

	coefs := make([]Coefficient, len(report.Terms))
	for i, t := range report.Terms {
		fields := []float64{t.Coefficient, t.StdError, t.TStatistic, t.PValue}
		for _, v := range fields {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: term %q has a non-finite estimate", estimate.ErrEstimation, t.Variable)
			}
		}
		coefs[i] = Coefficient{
			Variable:    t.Variable,
			Coefficient: round(t.Coefficient),
			StdError:    round(t.StdError),
			TStatistic:  round(t.TStatistic),
			PValue:      round(t.PValue),
		}
	}

	stats := make(map[string]interface{}, len(report.Statistics))
	for _, s := range report.Statistics {
		stats[s.Name] = normalize(s.Value)
	}

	encoded := make(map[string]string, len(charts))
	for name, img := range charts {
		encoded[name] = base64.StdEncoding.EncodeToString(img)
	}

	return &FitResult{
		ID:           a.newID(),
		AnalysisID:   analysisID,
		ModelType:    string(report.Family),
		Summary:      report.Summary,
		Coefficients: coefs,
		Statistics:   stats,
		Charts:       encoded,
		Timestamp:    a.now(),
	}, nil
}

// normalize rounds floats and replaces NaN and infinities with nil so the
// value encodes as JSON null
func normalize(v interface{}) interface{} {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return round(f)
}

func round(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', significantDigits, 64), 64)
	if err != nil {
		return v
	}
	return r
}
