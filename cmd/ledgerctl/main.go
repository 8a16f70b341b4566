// Command ledgerctl runs operator tasks against the ledger and the job queue:
// manual adjustments, reconciliation, batch recounts and lease recovery.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"modelshoot/internal/app"
	"modelshoot/internal/infra"
)

func main() {
	_ = godotenv.Load()
	root := newRootCmd(buildServices, os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func buildServices(ctx context.Context) (*app.Services, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "ledgerctl").Logger()
	return app.Build(ctx, cfg, logger)
}
