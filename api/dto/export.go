package dto

import (
	"errors"

	"cardposter/worker/model"
)

var ErrJobNotFound = errors.New("export job not found")

// CreateExportRequest is the full job submission: the external data
// layer's card list plus the export configuration.
type CreateExportRequest struct {
	Config model.ExportConfig `json:"config"`
	Cards  []model.CardRef    `json:"cards"`
}

type ExportJobResponse struct {
	ID           string          `json:"id"`
	TraceID      string          `json:"trace_id,omitempty"`
	Status       string          `json:"status"`
	Progress     *model.Progress `json:"progress,omitempty"`
	Result       *model.Result   `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	CompletedAt  *string         `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
