package classify

import (
	"fmt"
	"strings"

	"github.com/kartoza/econometric-lab/internal/dataset"
)

// Family is an econometric model family
type Family string

const (
	Linear     Family = "linear"
	Panel      Family = "panel"
	TimeSeries Family = "timeseries"
)

// ParseFamily resolves a model type name. "arima" is accepted as an alias
// for the time-series family.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Linear):
		return Linear, nil
	case string(Panel):
		return Panel, nil
	case string(TimeSeries), "arima":
		return TimeSeries, nil
	}
	return "", fmt.Errorf("unsupported model type %q", s)
}

// Classification is the recommended family for a dataset and why
type Classification struct {
	Family    Family `json:"suggested_model"`
	Rationale string `json:"model_reasoning"`
}

// Profile is the schema summary the rules look at
type Profile struct {
	NumericColumns int
	HasDatetime    bool
	EntityNamed    bool
}

// entityMarkers are matched as case-insensitive substrings of column names.
// "identification_number" matches through "id"; "key" does not.
var entityMarkers = []string{"id", "entity", "group"}

// ProfileOf summarizes a dataset schema for classification
func ProfileOf(schema dataset.Schema) Profile {
	var p Profile
	for _, c := range schema.Columns {
		switch c.Type {
		case dataset.TypeNumeric:
			p.NumericColumns++
		case dataset.TypeDatetime:
			p.HasDatetime = true
		}
		name := strings.ToLower(c.Name)
		for _, m := range entityMarkers {
			if strings.Contains(name, m) {
				p.EntityNamed = true
			}
		}
	}
	return p
}

// Rule maps a schema profile to a family
type Rule struct {
	Name      string
	Family    Family
	Rationale string
	Match     func(Profile) bool
}

// Rules are evaluated in order; the first match wins.
var Rules = []Rule{
	{
		Name:      "panel",
		Family:    Panel,
		Rationale: "Data has a panel structure: entities observed over time",
		Match: func(p Profile) bool {
			return p.NumericColumns >= 3 && p.HasDatetime && p.EntityNamed
		},
	},
	{
		Name:      "timeseries",
		Family:    TimeSeries,
		Rationale: "Temporal data detected, suitable for ARIMA",
		Match: func(p Profile) bool {
			return p.NumericColumns >= 3 && p.HasDatetime
		},
	},
	{
		Name:      "cross-section",
		Family:    Linear,
		Rationale: "Cross-sectional data with multiple variables, suitable for linear regression",
		Match: func(p Profile) bool {
			return p.NumericColumns >= 2
		},
	},
}

// Fallback is returned when no rule matches
var Fallback = Classification{
	Family:    Linear,
	Rationale: "Linear regression recommended as the default model; no specific structure detected",
}

// Classify recommends a model family for a dataset schema. It never fails.
func Classify(schema dataset.Schema) Classification {
	p := ProfileOf(schema)
	for _, r := range Rules {
		if r.Match(p) {
			return Classification{Family: r.Family, Rationale: r.Rationale}
		}
	}
	return Fallback
}
