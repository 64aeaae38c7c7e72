// Package analysis runs the upload, classify, estimate and report pipeline
// over the persistence store.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/kartoza/econometric-lab/internal/classify"
	"github.com/kartoza/econometric-lab/internal/dataset"
	"github.com/kartoza/econometric-lab/internal/estimate"
	"github.com/kartoza/econometric-lab/internal/models"
	"github.com/kartoza/econometric-lab/internal/results"
	"github.com/kartoza/econometric-lab/internal/store"
)

// PreviewRows is the number of rows returned with a dataset view
const PreviewRows = 100

// ErrInvalidRequest is returned when an analysis request is malformed or
// inconsistent with its model family
var ErrInvalidRequest = errors.New("invalid analysis request")

// Store is the persistence the service needs
type Store interface {
	InsertDataset(ctx context.Context, rec *store.DatasetRecord) error
	FindDataset(ctx context.Context, id string) (*store.DatasetRecord, error)
	InsertResult(ctx context.Context, res *results.FitResult) error
	FindResult(ctx context.Context, id string) (*results.FitResult, error)
}

// Service ties the dataset, estimation and result packages together
type Service struct {
	store     Store
	renderer  estimate.Renderer
	assembler *results.Assembler
}

// NewService creates a service persisting to st and drawing charts with
// renderer
func NewService(st Store, renderer estimate.Renderer) *Service {
	return &Service{
		store:     st,
		renderer:  renderer,
		assembler: results.NewAssembler(),
	}
}

// Upload parses a CSV upload, classifies it and stores it.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*models.DatasetMetadata, error) {
	ds, err := dataset.Parse(filename, r)
	if err != nil {
		return nil, err
	}

	rec := &store.DatasetRecord{
		Filename:       filename,
		Classification: classify.Classify(ds.Schema()),
		Data:           ds,
	}
	if err := s.store.InsertDataset(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store dataset: %w", err)
	}

	log.Printf("Stored dataset %s (%s): %d rows, %d columns, suggested %s",
		rec.ID, filename, ds.Rows(), len(ds.Columns()), rec.Classification.Family)
	return metadataOf(rec), nil
}

// Dataset returns a stored dataset's metadata and its first rows
func (s *Service) Dataset(ctx context.Context, id string) (*models.DatasetView, error) {
	rec, err := s.store.FindDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.DatasetView{
		Metadata: *metadataOf(rec),
		Preview:  rec.Data.Records(PreviewRows),
	}, nil
}

// Analyze fits the requested model and stores the result. Nothing is
// stored when any step fails.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	family, spec, err := specOf(req)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.FindDataset(ctx, req.AnalysisID)
	if err != nil {
		return nil, err
	}

	fit, err := estimate.Estimate(rec.Data, family, spec)
	if err != nil {
		log.Printf("Analysis of %s (%s) failed: %v", req.AnalysisID, family, err)
		return nil, err
	}

	charts, err := fit.Charts(s.renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to render charts: %w", err)
	}

	res, err := s.assembler.Assemble(req.AnalysisID, fit, charts)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertResult(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	log.Printf("Stored %s result %s for dataset %s", family, res.ID, req.AnalysisID)
	return &models.AnalysisResponse{
		ResultID:     res.ID,
		Coefficients: res.Coefficients,
		Statistics:   res.Statistics,
		Charts:       res.Charts,
	}, nil
}

// Result returns a stored fit result
func (s *Service) Result(ctx context.Context, id string) (*results.FitResult, error) {
	return s.store.FindResult(ctx, id)
}

func metadataOf(rec *store.DatasetRecord) *models.DatasetMetadata {
	return &models.DatasetMetadata{
		ID:             rec.ID,
		Filename:       rec.Filename,
		Rows:           rec.Data.Rows(),
		Columns:        rec.Data.Columns(),
		SuggestedModel: string(rec.Classification.Family),
		ModelReasoning: rec.Classification.Rationale,
		Timestamp:      rec.Timestamp,
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// specOf validates a request against its model family
func specOf(req models.AnalysisRequest) (classify.Family, estimate.Spec, error) {
	family, err := classify.ParseFamily(req.ModelType)
	if err != nil {
		return "", estimate.Spec{}, invalid("%v", err)
	}
	if req.DependentVar == "" {
		return "", estimate.Spec{}, invalid("dependent_var is required")
	}

	spec := estimate.Spec{
		Dependent:   req.DependentVar,
		Independent: req.IndependentVars,
		Entity:      req.EntityVar,
		Time:        req.TimeVar,
	}

	switch family {
	case classify.Linear:
		if len(req.IndependentVars) == 0 {
			return "", spec, invalid("linear models need at least one independent variable")
		}
	case classify.Panel:
		if req.EntityVar == "" || req.TimeVar == "" {
			return "", spec, invalid("entity_var and time_var are required for panel models")
		}
		if len(req.IndependentVars) == 0 {
			return "", spec, invalid("panel models need at least one independent variable")
		}
		switch estimate.EffectType(req.EffectType) {
		case "", estimate.FixedEffects:
			spec.Effect = estimate.FixedEffects
		case estimate.RandomEffects:
			spec.Effect = estimate.RandomEffects
		default:
			return "", spec, invalid("effect_type must be %q or %q, got %q",
				estimate.FixedEffects, estimate.RandomEffects, req.EffectType)
		}
	case classify.TimeSeries:
		if req.TimeVar == "" {
			return "", spec, invalid("time_var is required for time-series models")
		}
		spec.Order = estimate.DefaultOrder
		if req.ARIMAOrder != nil {
			if len(req.ARIMAOrder) != 3 {
				return "", spec, invalid("arima_order must have 3 values [p, d, q], got %d", len(req.ARIMAOrder))
			}
			for _, v := range req.ARIMAOrder {
				if v < 0 {
					return "", spec, invalid("arima_order values must be non-negative, got %v", req.ARIMAOrder)
				}
			}
			spec.Order = estimate.Order{P: req.ARIMAOrder[0], D: req.ARIMAOrder[1], Q: req.ARIMAOrder[2]}
		}
	}
	return family, spec, nil
}
