package repo

import (
	"context"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/sqlinline"
)

const idempotencyConstraint = "ledger_entries_idempotency_key_key"

// LedgerRepositoryPG implements domain.LedgerRepository.
type LedgerRepositoryPG struct {
	sql infra.SQLExecutor
}

// Append inserts an entry and stores the assigned sequence number on it.
func (r *LedgerRepositoryPG) Append(ctx context.Context, e *domain.LedgerEntry) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertLedgerEntry,
		e.ID,
		e.AccountID,
		e.Amount,
		e.BalanceAfter,
		string(e.Category),
		e.JobID,
		e.BatchID,
		e.PayoutID,
		e.ActorID,
		e.Reason,
		e.IdempotencyKey,
		e.CreatedAt,
	)
	if err := row.Scan(&e.Seq); err != nil {
		if infra.IsUniqueViolation(err, idempotencyConstraint) {
			return domain.ErrDuplicateOperation
		}
		return err
	}
	return nil
}

// GetByIdempotencyKey returns the entry written under key.
func (r *LedgerRepositoryPG) GetByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	e, err := scanEntry(r.sql.QueryRow(ctx, sqlinline.QSelectLedgerEntryByKey, key))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// ListByAccount returns the account's entries in sequence order.
func (r *LedgerRepositoryPG) ListByAccount(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectLedgerEntriesByAccount, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var category string
	if err := row.Scan(
		&e.Seq,
		&e.ID,
		&e.AccountID,
		&e.Amount,
		&e.BalanceAfter,
		&category,
		&e.JobID,
		&e.BatchID,
		&e.PayoutID,
		&e.ActorID,
		&e.Reason,
		&e.IdempotencyKey,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Category = domain.EntryCategory(category)
	return &e, nil
}
