package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"modelshoot/internal/infra"
	"modelshoot/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var key, baseURL, model, actor string
	flag.StringVar(&key, "key", "", "render API key (falls back to RENDER_API_KEY)")
	flag.StringVar(&baseURL, "base-url", "", "render API base URL; blank keeps the stored one")
	flag.StringVar(&model, "model", "", "render model; blank keeps the stored one")
	flag.StringVar(&actor, "actor", os.Getenv("USER"), "operator recorded with the rotation")
	flag.Parse()

	if strings.TrimSpace(key) == "" {
		key = os.Getenv("RENDER_API_KEY")
	}
	if strings.TrimSpace(key) == "" {
		fmt.Fprintln(os.Stderr, "render API key is required via -key or RENDER_API_KEY")
		os.Exit(1)
	}
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger(os.Getenv("APP_ENV")).With().Str("cmd", "renderkey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	err = store.Rotate(ctx, credentials.ProviderRender, credentials.Credential{
		APIKey:  key,
		BaseURL: baseURL,
		Model:   model,
	}, actor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rotate render credential: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Str("actor", actor).Msg("render credential rotated")
}
