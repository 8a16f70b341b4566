package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"modelshoot/internal/app"
	httpapi "modelshoot/internal/http/httpapi"
	"modelshoot/internal/infra"
	"modelshoot/internal/infra/geoip"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	defer services.Close()

	// The tick endpoint is only useful when a worker secret guards it.
	if cfg.WorkerSecret != "" {
		if err := services.EnableWorker(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to configure worker")
		}
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	router := httpapi.NewRouter(services.Handlers(), httpapi.OptionsFromConfig(cfg, resolver.Lookup()))
	server := infra.NewHTTPServer(cfg, router)

	logger.Info().Str("addr", server.Addr()).Str("store", cfg.StoreDriver).Msg("API listening")
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
