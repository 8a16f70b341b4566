package repo

import (
	"context"
	"time"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/sqlinline"
)

// AccountRepositoryPG implements domain.AccountRepository.
type AccountRepositoryPG struct {
	sql infra.SQLExecutor
}

// Create inserts a new account.
func (r *AccountRepositoryPG) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertAccount,
		a.ID,
		a.UserID,
		string(a.Role),
		a.Balance,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if infra.IsUniqueViolation(err, "") {
		return domain.ErrDuplicateOperation
	}
	return err
}

// Get fetches an account by id.
func (r *AccountRepositoryPG) Get(ctx context.Context, id string) (*domain.Account, error) {
	return r.scan(r.sql.QueryRow(ctx, sqlinline.QSelectAccount, id))
}

// GetForUpdate fetches and row-locks an account.
func (r *AccountRepositoryPG) GetForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return r.scan(r.sql.QueryRow(ctx, sqlinline.QSelectAccountForUpdate, id))
}

// SetBalance overwrites the stored balance.
func (r *AccountRepositoryPG) SetBalance(ctx context.Context, id string, balance int64, at time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateAccountBalance, id, balance, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *AccountRepositoryPG) scan(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var role string
	if err := row.Scan(&a.ID, &a.UserID, &role, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	a.Role = domain.AccountRole(role)
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
