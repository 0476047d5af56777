package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"cardposter/api/cache"
	"cardposter/api/dto"
	"cardposter/api/kafka"
	"cardposter/api/models"
	"cardposter/api/repository"
)

type ExportService struct {
	repo     repository.Repository
	cache    *cache.StatusCache
	producer kafka.Producer
	topic    string
}

func NewExportService(repo repository.Repository, statusCache *cache.StatusCache, producer kafka.Producer, topic string) *ExportService {
	return &ExportService{
		repo:     repo,
		cache:    statusCache,
		producer: producer,
		topic:    topic,
	}
}

// CreateExport persists the job, mirrors its pending status, and
// enqueues it for the worker.
func (s *ExportService) CreateExport(ctx context.Context, traceID string, req *dto.CreateExportRequest) (*dto.ExportJobResponse, error) {
	job := &models.ExportJob{
		ID:      uuid.New().String(),
		TraceID: traceID,
		Cards:   req.Cards,
		Config:  req.Config,
		Status:  models.StatusPending,
	}

	if err := s.repo.CreateExportJob(ctx, job); err != nil {
		return nil, err
	}

	// Best-effort: a missed mirror write just means the first status
	// poll falls through to Postgres.
	s.cache.SetStatus(ctx, job.ID, models.StatusPending)

	msg := &kafka.ExportMessage{
		JobID:   job.ID,
		TraceID: traceID,
	}
	if err := s.producer.SendExportMessage(ctx, s.topic, msg); err != nil {
		return nil, err
	}

	return s.toResponse(job), nil
}

// GetExportStatus answers a poll, preferring the Redis mirror for jobs
// still in flight and falling back to the job row for terminal state
// and the full result.
func (s *ExportService) GetExportStatus(ctx context.Context, jobID string) (*dto.ExportJobResponse, error) {
	if snap, err := s.cache.Get(ctx, jobID); err == nil {
		switch snap.Status {
		case models.StatusPending, models.StatusProcessing:
			return &dto.ExportJobResponse{
				ID:       jobID,
				Status:   string(snap.Status),
				Progress: snap.Progress,
			}, nil
		}
	}

	job, err := s.repo.GetExportJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, dto.ErrJobNotFound
		}
		return nil, err
	}

	s.cache.SetStatus(ctx, job.ID, job.Status)

	return s.toResponse(job), nil
}

func (s *ExportService) toResponse(job *models.ExportJob) *dto.ExportJobResponse {
	var completedAt *string
	if job.CompletedAt != nil {
		formatted := job.CompletedAt.Format("2006-01-02T15:04:05Z")
		completedAt = &formatted
	}

	return &dto.ExportJobResponse{
		ID:           job.ID,
		TraceID:      job.TraceID,
		Status:       string(job.Status),
		Result:       job.Result,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format("2006-01-02T15:04:05Z"),
		CompletedAt:  completedAt,
	}
}
