package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cardposter/worker/cachestore"
	"cardposter/worker/compose"
	"cardposter/worker/config"
	"cardposter/worker/fetch"
	"cardposter/worker/kafka"
	"cardposter/worker/pool"
	"cardposter/worker/repository"
	"cardposter/worker/service"
	"cardposter/worker/status"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("Export worker starting",
		zap.String("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
		zap.Int("job_workers", cfg.JobWorkers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	store, err := cachestore.Open(cfg.CacheDir, logger)
	if err != nil {
		logger.Fatal("Failed to open image cache", zap.Error(err))
	}

	fetcher := fetch.NewFetcher(store, nil, logger)
	compositor := compose.NewCompositor(logger)
	repo := repository.NewPostgresRepo(db)
	statusCache := status.NewCache(redisClient)
	processor := service.NewProcessor(repo, statusCache, fetcher, compositor, cfg.OutputDir, cfg.DownloadWorkers, logger)

	consumer, err := kafka.NewConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaGroupID)
	if err != nil {
		logger.Fatal("Failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	jobs := pool.NewWorkerPool(cfg.JobWorkers)

	handler := func(ctx context.Context, msg *kafka.ExportMessage) error {
		jobs.Submit(ctx, func(ctx context.Context) {
			if err := processor.Process(ctx, msg); err != nil {
				logger.Error("Export job failed",
					zap.String("job_id", msg.JobID),
					zap.Error(err),
				)
			}
		})
		return nil
	}

	for {
		if err := consumer.Consume(ctx, cfg.KafkaTopic, handler); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				break
			}
			logger.Error("Consumer error", zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("Shutting down, waiting for in-flight jobs")
	jobs.Wait()
	os.Exit(0)
}
