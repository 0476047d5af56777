package repository

import (
	"context"
	"errors"

	"cardposter/api/models"
)

var ErrJobNotFound = errors.New("export job not found")

type Repository interface {
	CreateExportJob(ctx context.Context, job *models.ExportJob) error
	GetExportJob(ctx context.Context, id string) (*models.ExportJob, error)
}
