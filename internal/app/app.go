// Package app assembles the services shared by the API, the worker and the
// ledgerctl CLI from a loaded config.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"modelshoot/internal/adapter/repo"
	"modelshoot/internal/domain"
	"modelshoot/internal/http/handlers"
	"modelshoot/internal/infra"
	"modelshoot/internal/infra/credentials"
	"modelshoot/internal/ledger"
	"modelshoot/internal/payout"
	"modelshoot/internal/providers/render"
	"modelshoot/internal/queue"
	"modelshoot/internal/status"
	"modelshoot/internal/storage"
	"modelshoot/internal/store/memory"
	"modelshoot/internal/worker"
)

// Services is the wired object graph.
type Services struct {
	Config    *infra.Config
	Logger    infra.Logger
	Store     domain.Store
	Ledger    *ledger.Service
	Scheduler *queue.Scheduler
	Status    *status.Reader
	Payouts   *payout.Service
	Files     *storage.FileStore
	Processor *worker.Processor

	pool *pgxpool.Pool
	sql  infra.SQLExecutor
}

// Build opens the configured store and wires every service on top of it.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Services, error) {
	s := &Services{Config: cfg, Logger: logger}

	switch cfg.StoreDriver {
	case infra.StoreDriverMemory:
		logger.Warn().Msg("using in-memory store; state is lost on exit")
		s.Store = memory.New()
	default:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pgStore := repo.NewStore(pool, logger)
		if cfg.AutoMigrate {
			if err := repo.Migrate(ctx, pgStore.SQL()); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Msg("schema migrated")
		}
		s.pool = pool
		s.sql = pgStore.SQL()
		s.Store = pgStore
	}

	s.Ledger = ledger.NewService(s.Store, logger)

	fee, err := payout.NewFeePolicy(cfg.Payout.FeePercent, cfg.Payout.FeeFixed)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Payouts = payout.NewService(s.Store, s.Ledger, payout.Config{
		MinAmount: cfg.Payout.MinAmount,
		Currency:  cfg.Payout.Currency,
		Fee:       fee,
	}, logger)

	transitions := queue.NewTransitions(s.Store, s.Ledger, domain.BackoffPolicy{
		Base: cfg.Queue.BackoffBase,
		Max:  cfg.Queue.BackoffMax,
	}, logger, nil)
	s.Scheduler = queue.NewScheduler(s.Store, transitions, queue.Config{
		MaxPerOwner:  cfg.Queue.MaxPerOwner,
		MaxGlobal:    cfg.Queue.MaxGlobal,
		MaxRetries:   cfg.Queue.MaxRetries,
		LeaseTimeout: cfg.Queue.LeaseTimeout,
	}, queue.Pricing{
		AvatarCost:           cfg.Pricing.AvatarCost,
		HumanModelCost:       cfg.Pricing.HumanModelCost,
		RoyaltyPerGeneration: cfg.Pricing.RoyaltyPerGeneration,
	}, logger)

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Files = files
	s.Status = status.NewReader(s.Store, files)
	return s, nil
}

// EnableWorker builds the render client and the job processor.
func (s *Services) EnableWorker(ctx context.Context) error {
	renderer, err := s.renderer(ctx)
	if err != nil {
		return err
	}
	s.Processor = worker.NewProcessor(s.Scheduler, renderer, s.Files, worker.Config{
		WorkerID:      s.Config.Worker.ID,
		Concurrency:   s.Config.Worker.Concurrency,
		RenderTimeout: s.Config.Worker.RenderTimeout,
		PollInterval:  s.Config.Worker.PollInterval,
		RatePerSecond: s.Config.Worker.RatePerSecond,
		Burst:         s.Config.Worker.Burst,
	}, s.Logger)
	return nil
}

// renderer prefers the configured key, then the stored provider credential,
// and falls back to synthetic output when neither exists.
func (s *Services) renderer(ctx context.Context) (render.Renderer, error) {
	cred := credentials.Credential{
		APIKey:  strings.TrimSpace(s.Config.Render.APIKey),
		BaseURL: s.Config.Render.BaseURL,
		Model:   s.Config.Render.Model,
	}
	if store := s.Credentials(); cred.APIKey == "" && store != nil {
		stored, err := store.Render(ctx)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("failed to load render credential from store")
		}
		cred.APIKey = stored.APIKey
		if stored.BaseURL != "" {
			cred.BaseURL = stored.BaseURL
		}
		if stored.Model != "" {
			cred.Model = stored.Model
		}
	}
	if cred.APIKey == "" {
		s.Logger.Warn().Msg("render api key missing, using synthetic renders")
		return render.Synthetic{}, nil
	}
	return render.NewClient(render.Options{
		APIKey:         cred.APIKey,
		BaseURL:        cred.BaseURL,
		Model:          cred.Model,
		Logger:         &s.Logger,
		RequestTimeout: s.Config.Worker.RenderTimeout,
	})
}

// SQL returns the Postgres executor, or nil on the memory driver.
func (s *Services) SQL() infra.SQLExecutor {
	return s.sql
}

// Credentials returns the provider credential store, or nil on the memory driver.
func (s *Services) Credentials() *credentials.Store {
	if s.sql == nil {
		return nil
	}
	return credentials.NewStore(s.sql)
}

// Handlers returns the HTTP handler container.
func (s *Services) Handlers() *handlers.App {
	a := &handlers.App{
		Logger:    s.Logger,
		Scheduler: s.Scheduler,
		Status:    s.Status,
		Ledger:    s.Ledger,
		Payouts:   s.Payouts,
	}
	if s.Files != nil {
		a.Outputs = s.Files
	}
	if s.Processor != nil {
		a.Worker = s.Processor
	}
	if s.pool != nil {
		a.Ping = s.pool.Ping
	}
	return a
}

// Close releases the database pool.
func (s *Services) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
