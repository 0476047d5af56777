package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardposter/worker/model"
)

var ErrJobNotFound = errors.New("export job not found")

// ExportJob is the worker's view of a job row: the payload it needs to
// run the pipeline.
type ExportJob struct {
	ID      string
	TraceID string
	Cards   []model.CardRef
	Config  model.ExportConfig
}

type Repository interface {
	GetExportJob(ctx context.Context, jobID string) (*ExportJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, errMsg string) error
	SaveJobResult(ctx context.Context, jobID string, status string, result *model.Result) error
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetExportJob(ctx context.Context, jobID string) (*ExportJob, error) {
	query := `
		SELECT id, trace_id, cards, config
		FROM export_jobs
		WHERE id = $1
	`

	var (
		job        ExportJob
		cardsJSON  []byte
		configJSON []byte
	)
	err := r.db.QueryRow(ctx, query, jobID).Scan(&job.ID, &job.TraceID, &cardsJSON, &configJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(cardsJSON, &job.Cards); err != nil {
		return nil, fmt.Errorf("decode job cards: %w", err)
	}
	if err := json.Unmarshal(configJSON, &job.Config); err != nil {
		return nil, fmt.Errorf("decode job config: %w", err)
	}
	return &job, nil
}

func (r *PostgresRepo) UpdateJobStatus(ctx context.Context, jobID string, status string, errMsg string) error {
	query := `UPDATE export_jobs SET status = $1, error_message = $2, updated_at = NOW()`
	if status == "completed" || status == "failed" || status == "cancelled" || status == "empty" {
		query += `, completed_at = NOW()`
	}
	query += ` WHERE id = $3`

	result, err := r.db.Exec(ctx, query, status, errMsg, jobID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PostgresRepo) SaveJobResult(ctx context.Context, jobID string, status string, result *model.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}

	query := `
		UPDATE export_jobs
		SET status = $1, result = $2, updated_at = NOW(), completed_at = NOW()
		WHERE id = $3
	`
	tag, err := r.db.Exec(ctx, query, status, resultJSON, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
