package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"modelshoot/internal/app"
	"modelshoot/internal/infra"
	"modelshoot/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("worker_id", cfg.Worker.ID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build services")
	}
	defer services.Close()
	if err := services.EnableWorker(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure renderer")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.Processor.Run(gctx)
	})
	if port := cfg.Worker.MetricsPort; port != "" {
		srv := infra.NewMetricsServer(port, metrics.Handler())
		logger.Info().Str("addr", srv.Addr()).Msg("worker: metrics listening")
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
