// Package repo implements domain.Store on PostgreSQL. Atomic units run in a
// READ COMMITTED transaction and take row locks with FOR UPDATE.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
)

// Store is the PostgreSQL-backed store.
type Store struct {
	pool   *pgxpool.Pool
	sql    *infra.SQLRunner
	logger infra.Logger
}

// NewStore wraps a connection pool.
func NewStore(pool *pgxpool.Pool, logger infra.Logger) *Store {
	return &Store{
		pool:   pool,
		sql:    infra.NewSQLRunner(pool, logger),
		logger: logger,
	}
}

// Repos returns repositories that run each statement on its own.
func (s *Store) Repos() domain.Repositories {
	return newRepositories(s.sql)
}

// SQL exposes the pool-bound runner for auxiliary stores sharing the schema.
func (s *Store) SQL() infra.SQLExecutor {
	return s.sql
}

// WithAtomic runs fn in one transaction and commits when fn returns nil.
func (s *Store) WithAtomic(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
	}()

	if err := fn(ctx, newRepositories(s.sql.WithQuerier(tx))); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func newRepositories(sql infra.SQLExecutor) domain.Repositories {
	return domain.Repositories{
		Accounts: &AccountRepositoryPG{sql: sql},
		Ledger:   &LedgerRepositoryPG{sql: sql},
		Jobs:     &JobRepositoryPG{sql: sql},
		Batches:  &BatchRepositoryPG{sql: sql},
		Payouts:  &PayoutRepositoryPG{sql: sql},
	}
}

func notFound(err error) error {
	if infra.IsNoRows(err) {
		return domain.ErrNotFound
	}
	return err
}

var _ domain.Store = (*Store)(nil)
