package models

import (
	"time"

	"github.com/kartoza/econometric-lab/internal/results"
)

// AnalysisRequest asks for one model to be fitted on an uploaded dataset
type AnalysisRequest struct {
	AnalysisID      string   `json:"analysis_id"`
	ModelType       string   `json:"model_type"`
	DependentVar    string   `json:"dependent_var"`
	IndependentVars []string `json:"independent_vars"`
	EntityVar       string   `json:"entity_var,omitempty"`
	TimeVar         string   `json:"time_var,omitempty"`
	ARIMAOrder      []int    `json:"arima_order,omitempty"`
	EffectType      string   `json:"effect_type,omitempty"`
}

// DatasetMetadata describes an uploaded dataset
type DatasetMetadata struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	Rows           int       `json:"rows"`
	Columns        []string  `json:"columns"`
	SuggestedModel string    `json:"suggested_model"`
	ModelReasoning string    `json:"model_reasoning"`
	Timestamp      time.Time `json:"timestamp"`
}

// DatasetView is a dataset's metadata with a preview of its first rows
type DatasetView struct {
	Metadata DatasetMetadata          `json:"metadata"`
	Preview  []map[string]interface{} `json:"preview"`
}

// AnalysisResponse is returned after a successful fit
type AnalysisResponse struct {
	ResultID     string                 `json:"result_id"`
	Coefficients []results.Coefficient  `json:"coefficients"`
	Statistics   map[string]interface{} `json:"statistics"`
	Charts       map[string]string      `json:"charts"`
}

// ChartExportRequest carries one base64 encoded chart
type ChartExportRequest struct {
	Chart string `json:"chart"`
}
