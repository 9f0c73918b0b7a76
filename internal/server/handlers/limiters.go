package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pacelens/pacelens/internal/core"
	"github.com/pacelens/pacelens/internal/core/engine"
	apperrors "github.com/pacelens/pacelens/internal/errors"
)

// LimiterHandlers exposes limiter status and outcome reporting over HTTP.
type LimiterHandlers struct {
	manager *engine.Manager
}

// NewLimiterHandlers creates handlers backed by the given manager.
func NewLimiterHandlers(manager *engine.Manager) *LimiterHandlers {
	return &LimiterHandlers{manager: manager}
}

// LimiterListResponse wraps the limiter status collection.
type LimiterListResponse struct {
	Limiters []core.LimiterStatus `json:"limiters"`
	Count    int                  `json:"count"`
}

// ReportRequest is the body of a POST outcome report.
type ReportRequest struct {
	Outcome string `json:"outcome"`
}

// ReportResponse echoes the limiter status after the report is applied.
type ReportResponse struct {
	Endpoint string             `json:"endpoint"`
	Outcome  string             `json:"outcome"`
	Status   core.LimiterStatus `json:"status"`
}

// ListHandler handles GET /v1/limiters.
func (h *LimiterHandlers) ListHandler(w http.ResponseWriter, r *http.Request) {
	statuses := h.manager.Statuses()

	response := LimiterListResponse{
		Limiters: statuses,
		Count:    len(statuses),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler handles GET /v1/limiters/{endpoint}.
func (h *LimiterHandlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	if endpoint == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("endpoint is required"))
		return
	}

	status, ok := h.manager.Status(endpoint)
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError("no limiter for endpoint "+endpoint))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}

// ReportHandler handles POST /v1/limiters/{endpoint}/report. It applies a
// success or rate_limited outcome to the endpoint's limiter.
func (h *LimiterHandlers) ReportHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	if endpoint == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("endpoint is required"))
		return
	}

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid report body"))
		return
	}

	outcome := core.Outcome(req.Outcome)
	if outcome != core.OutcomeSuccess && outcome != core.OutcomeRateLimited {
		respondWithError(w, r, apperrors.NewValidationError("outcome must be success or rate_limited"))
		return
	}

	if err := h.manager.Report(endpoint, outcome); err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to apply outcome report"))
		return
	}

	status, _ := h.manager.Status(endpoint)
	response := ReportResponse{
		Endpoint: endpoint,
		Outcome:  req.Outcome,
		Status:   status,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
