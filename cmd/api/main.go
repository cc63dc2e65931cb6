// cmd/api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/mikud/internal/config"
	"github.com/briangreenhill/mikud/internal/http/routes"
	"github.com/briangreenhill/mikud/internal/logging"
	"github.com/briangreenhill/mikud/internal/setup"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}

	// Logger
	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := setup.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init lookup service")
	}
	defer func() { _ = svc.Close() }()

	// Prefetch only makes sense when workers share our cache
	var queue routes.Enqueuer
	if cfg.UsesRedis() {
		client := asynq.NewClient(setup.RedisClientOpt(cfg))
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("close asynq client")
			}
		}()
		queue = client
	}

	s := routes.New(routes.ServerOptions{
		Lookup:         svc.Client,
		Queue:          queue,
		RequestTimeout: cfg.IsraelPost.Timeout + 5*time.Second,
	})

	h := hlog.NewHandler(logger)(
		hlog.RequestIDHandler("req_id", "X-Request-Id")(
			hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
				hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Stringer("url", r.URL).
					Int("status", status).
					Int("size", size).
					Dur("duration", duration).
					Msg("request")
			})(s.Router)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("port", cfg.Port).Str("cache", cfg.Cache.Backend).Msg("starting api")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("serve")
	}
}
