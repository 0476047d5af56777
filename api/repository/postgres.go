package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cardposter/api/database"
	"cardposter/api/models"
	"cardposter/worker/model"
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateExportJob(ctx context.Context, job *models.ExportJob) error {
	cardsJSON, err := json.Marshal(job.Cards)
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	query := `
		INSERT INTO export_jobs (id, trace_id, cards, config, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return r.db.Pool.QueryRow(ctx, query,
		job.ID,
		job.TraceID,
		cardsJSON,
		configJSON,
		job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresRepo) GetExportJob(ctx context.Context, id string) (*models.ExportJob, error) {
	query := `
		SELECT id, trace_id, cards, config, status, COALESCE(error_message, ''), result,
		       created_at, updated_at, completed_at
		FROM export_jobs
		WHERE id = $1
	`

	row := r.db.Pool.QueryRow(ctx, query, id)

	var (
		job        models.ExportJob
		cardsJSON  []byte
		configJSON []byte
		resultJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&job.TraceID,
		&cardsJSON,
		&configJSON,
		&job.Status,
		&job.ErrorMessage,
		&resultJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(cardsJSON, &job.Cards); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	if err := json.Unmarshal(configJSON, &job.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(resultJSON) > 0 {
		var res model.Result
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &res
	}

	return &job, nil
}
