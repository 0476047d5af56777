package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cardposter/api/dto"
	"cardposter/api/middleware"
	"cardposter/api/validation"
)

// maxRequestBytes bounds a job submission body; even a 2000-card list
// with long URLs stays well under this.
const maxRequestBytes = 8 << 20

// ExportService is what the handler needs from the service layer.
type ExportService interface {
	CreateExport(ctx context.Context, traceID string, req *dto.CreateExportRequest) (*dto.ExportJobResponse, error)
	GetExportStatus(ctx context.Context, jobID string) (*dto.ExportJobResponse, error)
}

type ExportHandler struct {
	service ExportService
	logger  *zap.Logger
}

func NewExportHandler(service ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		logger:  logger,
	}
}

// Create handles POST /exports: a JSON body with the card list and
// export config.
func (h *ExportHandler) Create(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.CreateExportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	if err := validation.ValidateRequest(&req); err != nil {
		h.handleError(w, "Invalid export request", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreateExport(r.Context(), traceID, &req)
	if err != nil {
		h.handleError(w, "Failed to create export job", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Export job submitted",
		zap.String("trace_id", traceID),
		zap.String("job_id", resp.ID),
		zap.Int("cards", len(req.Cards)),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

// Status handles GET /exports/{id}.
func (h *ExportHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID := strings.TrimPrefix(r.URL.Path, "/exports/")
	if jobID == "" || strings.Contains(jobID, "/") {
		h.handleError(w, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetExportStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, dto.ErrJobNotFound) {
			h.handleError(w, "Export job not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get export status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *ExportHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *ExportHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
