package main

import (
	"context"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/mikud/internal/config"
	"github.com/briangreenhill/mikud/internal/jobs"
	"github.com/briangreenhill/mikud/internal/logging"
	"github.com/briangreenhill/mikud/internal/setup"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}
	if !cfg.UsesRedis() {
		// an in-memory cache would die with the task
		logger.Fatal().Msg("worker requires CACHE_BACKEND=redis")
	}

	svc, err := setup.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init lookup service")
	}
	defer func() { _ = svc.Close() }()

	srv := asynq.NewServer(setup.RedisClientOpt(cfg), asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			jobs.QueuePrefetch: 5,
			"default":          1,
		},
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskPrefetchZipcode, jobs.NewPrefetchHandler(svc.Client, logger.With().Str("component", "prefetch").Logger()))

	logger.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
