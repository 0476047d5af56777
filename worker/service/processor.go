package service

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"cardposter/worker/compose"
	"cardposter/worker/export"
	"cardposter/worker/fetch"
	"cardposter/worker/kafka"
	"cardposter/worker/model"
	"cardposter/worker/repository"
	"cardposter/worker/status"
)

// Processor turns one queued export message into a finished job row:
// it loads the payload, runs a coordinator, and writes the outcome
// back to Postgres and the Redis status mirror. A fresh coordinator is
// built per job so concurrent jobs never share mutable state.
type Processor struct {
	repo            repository.Repository
	status          *status.Cache
	fetcher         *fetch.Fetcher
	compositor      *compose.Compositor
	outputDir       string
	downloadWorkers int
	logger          *zap.Logger
}

func NewProcessor(repo repository.Repository, statusCache *status.Cache, fetcher *fetch.Fetcher, compositor *compose.Compositor, outputDir string, downloadWorkers int, logger *zap.Logger) *Processor {
	return &Processor{
		repo:            repo,
		status:          statusCache,
		fetcher:         fetcher,
		compositor:      compositor,
		outputDir:       outputDir,
		downloadWorkers: downloadWorkers,
		logger:          logger,
	}
}

func (p *Processor) Process(ctx context.Context, msg *kafka.ExportMessage) error {
	log := p.logger.With(
		zap.String("job_id", msg.JobID),
		zap.String("trace_id", msg.TraceID),
	)

	job, err := p.repo.GetExportJob(ctx, msg.JobID)
	if err != nil {
		log.Error("Failed to load export job", zap.Error(err))
		return err
	}

	if err := p.markRunning(ctx, msg.JobID); err != nil {
		return err
	}

	coordinator := export.NewCoordinator(p.fetcher, p.compositor, log)
	if p.downloadWorkers > 0 {
		coordinator.DownloadWorkers = p.downloadWorkers
	}
	coordinator.OnProgress = func(prog model.Progress) {
		if err := p.status.SetProgress(ctx, msg.JobID, prog); err != nil {
			log.Warn("Failed to publish progress", zap.Error(err))
		}
	}

	// Each job writes into its own directory so artifact names never
	// collide across jobs.
	outDir := filepath.Join(p.outputDir, msg.JobID)
	result, runErr := coordinator.Run(ctx, job.Cards, job.Config, outDir)
	if result == nil {
		// Rejected before planning (bad config).
		log.Error("Export rejected", zap.Error(runErr))
		return p.finish(ctx, msg.JobID, "failed", runErr.Error(), nil)
	}

	jobStatus := statusFor(result, runErr)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		log.Error("Export finished with storage errors", zap.Error(runErr))
	}

	log.Info("Export job finished",
		zap.String("status", jobStatus),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("placeholders", result.Placeholders),
		zap.Int("failed", result.Failed),
	)
	return p.finish(ctx, msg.JobID, jobStatus, errMsg, result)
}

func statusFor(result *model.Result, runErr error) string {
	switch {
	case errors.Is(runErr, export.ErrRenderFailed):
		return "failed"
	case result.Outcome == model.OutcomeCancelled:
		return "cancelled"
	case result.Outcome == model.OutcomeEmpty:
		return "empty"
	default:
		return "completed"
	}
}

func (p *Processor) markRunning(ctx context.Context, jobID string) error {
	if err := p.repo.UpdateJobStatus(ctx, jobID, "processing", ""); err != nil {
		return err
	}
	if err := p.status.SetStatus(ctx, jobID, "processing"); err != nil {
		p.logger.Warn("Failed to mirror processing status", zap.Error(err))
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, jobID, jobStatus, errMsg string, result *model.Result) error {
	var err error
	if result != nil {
		err = p.repo.SaveJobResult(ctx, jobID, jobStatus, result)
	} else {
		err = p.repo.UpdateJobStatus(ctx, jobID, jobStatus, errMsg)
	}
	if err != nil {
		return err
	}
	if err := p.status.SetStatus(ctx, jobID, jobStatus); err != nil {
		p.logger.Warn("Failed to mirror terminal status", zap.Error(err))
	}
	return nil
}
