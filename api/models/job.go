package models

import (
	"time"

	"cardposter/worker/model"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusCancelled  JobStatus = "cancelled"
	StatusEmpty      JobStatus = "empty"
	StatusFailed     JobStatus = "failed"
)

// ExportJob is one submitted poster export: the card list and config
// as received, plus bookkeeping filled in as the worker progresses.
type ExportJob struct {
	ID           string
	TraceID      string
	Cards        []model.CardRef
	Config       model.ExportConfig
	Status       JobStatus
	ErrorMessage string
	Result       *model.Result
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
