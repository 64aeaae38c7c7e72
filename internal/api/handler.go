package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kartoza/econometric-lab/internal/analysis"
	"github.com/kartoza/econometric-lab/internal/config"
	"github.com/kartoza/econometric-lab/internal/dataset"
	"github.com/kartoza/econometric-lab/internal/estimate"
	"github.com/kartoza/econometric-lab/internal/models"
	"github.com/kartoza/econometric-lab/internal/report"
	"github.com/kartoza/econometric-lab/internal/results"
	"github.com/kartoza/econometric-lab/internal/store"
)

// Counter reports how many documents the store holds
type Counter interface {
	Counts(ctx context.Context) (datasets, fits int, err error)
}

// Handler provides HTTP API endpoints
type Handler struct {
	service *analysis.Service
	counter Counter
	cfg     config.Config
}

// NewHandler creates a new API handler
func NewHandler(service *analysis.Service, counter Counter, cfg config.Config) *Handler {
	return &Handler{
		service: service,
		counter: counter,
		cfg:     cfg,
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/", h.handleRoot).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	// Datasets and analyses
	r.HandleFunc("/upload-csv", h.handleUpload).Methods("POST")
	r.HandleFunc("/analysis/{id}", h.handleDataset).Methods("GET")
	r.HandleFunc("/analyze", h.handleAnalyze).Methods("POST")
	r.HandleFunc("/results/{id}", h.handleResult).Methods("GET")

	// Export
	r.HandleFunc("/export/png", h.handleExportPNG).Methods("POST")
	r.HandleFunc("/export/pdf", h.handleExportPDF).Methods("POST")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps err to a status code and sends it as a JSON error
func respondFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Error handling request: %v", err)
	}
	respondError(w, status, err.Error())
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest),
		errors.Is(err, dataset.ErrInvalidInput),
		errors.Is(err, report.ErrInvalidChart):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, estimate.ErrEstimation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondFile sends binary content as a download
func respondFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing %s: %v", filename, err)
	}
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Econometric Analysis API"})
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns server information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"version":      h.cfg.Version,
		"store_codec":  h.cfg.StoreCodec,
		"store_loaded": h.counter != nil,
	}
	if h.counter != nil {
		datasets, fits, err := h.counter.Counts(r.Context())
		if err != nil {
			log.Printf("Warning: could not count stored documents: %v", err)
		} else {
			info["datasets"] = datasets
			info["results"] = fits
		}
	}
	respondJSON(w, http.StatusOK, info)
}

// handleUpload stores a multipart CSV upload in the "file" field
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", h.cfg.MaxUploadBytes))
			return
		}
		respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	meta, err := h.service.Upload(r.Context(), header.Filename, file)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

// handleDataset returns dataset metadata and a preview of its rows
func (h *Handler) handleDataset(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Dataset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// handleAnalyze fits a model on a stored dataset
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.Analyze(r.Context(), req)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleResult returns a stored fit result
func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleExportPNG decodes a base64 chart and sends it as a PNG file
func (h *Handler) handleExportPNG(w http.ResponseWriter, r *http.Request) {
	var req models.ChartExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	img, err := report.PNG(req.Chart)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondFile(w, "image/png", "chart.png", img)
}

// handleExportPDF renders a fit result as a PDF report
func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	var res results.FitResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc, err := report.PDF(&res)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondFile(w, "application/pdf", "econometric_analysis.pdf", doc)
}
