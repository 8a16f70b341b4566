// Package ledger is the only writer of account balances. Every balance
// change is a check-and-apply inside one atomic unit that also appends the
// matching ledger entry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/metrics"
)

// ApplyRequest describes one signed balance change.
type ApplyRequest struct {
	AccountID      string
	Amount         int64
	Category       domain.EntryCategory
	JobID          string
	BatchID        string
	PayoutID       string
	ActorID        string
	Reason         string
	IdempotencyKey string
	// AllowOverdraw lets an admin adjustment take the balance below zero.
	AllowOverdraw bool
}

// AdjustRequest is an administrative correction.
type AdjustRequest struct {
	AccountID      string
	Amount         int64
	Reason         string
	ActorID        string
	AllowOverdraw  bool
	IdempotencyKey string
}

// AdjustResult reports the balance before and after an adjustment.
type AdjustResult struct {
	PreviousBalance int64               `json:"previous_balance"`
	NewBalance      int64               `json:"new_balance"`
	Entry           *domain.LedgerEntry `json:"entry"`
}

// Service applies and audits balance changes.
type Service struct {
	store  domain.Store
	logger infra.Logger
	now    func() time.Time
}

// NewService builds a ledger over the given store.
func NewService(store domain.Store, logger infra.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "ledger").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OpenAccount creates a zero-balance account.
func (s *Service) OpenAccount(ctx context.Context, userID string, role domain.AccountRole) (*domain.Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("open account: role %q: %w", role, domain.ErrInvalidRequest)
	}
	now := s.now()
	acct := &domain.Account{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Repos().Accounts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}
	return acct, nil
}

// Account returns the committed account state.
func (s *Service) Account(ctx context.Context, id string) (*domain.Account, error) {
	return s.store.Repos().Accounts.Get(ctx, id)
}

// Entries lists the account's entries in sequence order.
func (s *Service) Entries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	if _, err := s.store.Repos().Accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Repos().Ledger.ListByAccount(ctx, accountID)
}

// AvailableBalance is the balance minus open payout reservations.
func (s *Service) AvailableBalance(ctx context.Context, accountID string) (balance, available int64, err error) {
	repos := s.store.Repos()
	acct, err := repos.Accounts.Get(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	reserved, err := repos.Payouts.SumReserved(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	return acct.Balance, acct.Balance - reserved, nil
}

// Apply runs ApplyTx in its own atomic unit.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		entry, err = s.ApplyTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyTx applies req inside the caller's atomic unit. A request whose
// idempotency key was already applied returns the original entry and
// changes nothing.
func (s *Service) ApplyTx(ctx context.Context, tx domain.Repositories, req ApplyRequest) (*domain.LedgerEntry, error) {
	if err := validate(req); err != nil {
		metrics.LedgerApplies.WithLabelValues(string(req.Category), "invalid").Inc()
		return nil, err
	}
	// The key is checked under the account lock so a concurrent applier of
	// the same key has either committed or not started.
	acct, err := tx.Accounts.GetForUpdate(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load account %s: %w", req.AccountID, err)
	}
	if req.IdempotencyKey != "" {
		prior, err := tx.Ledger.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			metrics.LedgerApplies.WithLabelValues(string(req.Category), "replayed").Inc()
			return prior, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("ledger: lookup idempotency key: %w", err)
		}
	}
	next := acct.Balance + req.Amount
	overdraw := req.Category == domain.CategoryAdminAdjustment && req.AllowOverdraw
	if req.Amount < 0 && next < 0 && !overdraw {
		metrics.LedgerApplies.WithLabelValues(string(req.Category), "rejected").Inc()
		return nil, fmt.Errorf("ledger: account %s balance %d, delta %d: %w", acct.ID, acct.Balance, req.Amount, domain.ErrInsufficientBalance)
	}

	now := s.now()
	entry := &domain.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      acct.ID,
		Amount:         req.Amount,
		BalanceAfter:   next,
		Category:       req.Category,
		JobID:          req.JobID,
		BatchID:        req.BatchID,
		PayoutID:       req.PayoutID,
		ActorID:        req.ActorID,
		Reason:         strings.TrimSpace(req.Reason),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := tx.Accounts.SetBalance(ctx, acct.ID, next, now); err != nil {
		return nil, fmt.Errorf("ledger: set balance: %w", err)
	}
	if err := tx.Ledger.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("ledger: append entry: %w", err)
	}
	metrics.LedgerApplies.WithLabelValues(string(req.Category), "applied").Inc()
	s.logger.Debug().
		Str("account_id", acct.ID).
		Str("category", string(req.Category)).
		Int64("amount", req.Amount).
		Int64("balance_after", next).
		Msg("ledger entry applied")
	return entry, nil
}

// AdminAdjust applies a manual correction with a mandatory reason.
func (s *Service) AdminAdjust(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domain.ErrReasonRequired
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("adjust: amount must be non-zero: %w", domain.ErrInvalidAmount)
	}
	entry, err := s.Apply(ctx, ApplyRequest{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Category:       domain.CategoryAdminAdjustment,
		ActorID:        req.ActorID,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		AllowOverdraw:  req.AllowOverdraw,
	})
	if err != nil {
		return nil, err
	}
	// A replayed key reports the balances around the original entry.
	res := AdjustResult{
		PreviousBalance: entry.BalanceAfter - entry.Amount,
		NewBalance:      entry.BalanceAfter,
		Entry:           entry,
	}
	s.logger.Info().
		Str("account_id", req.AccountID).
		Str("actor_id", req.ActorID).
		Int64("amount", req.Amount).
		Int64("new_balance", res.NewBalance).
		Msg("admin adjustment applied")
	return &res, nil
}

func validate(req ApplyRequest) error {
	if strings.TrimSpace(req.AccountID) == "" {
		return fmt.Errorf("ledger: account id required: %w", domain.ErrInvalidRequest)
	}
	if !req.Category.Valid() {
		return fmt.Errorf("ledger: category %q: %w", req.Category, domain.ErrInvalidRequest)
	}
	if req.Amount == 0 {
		return fmt.Errorf("ledger: zero amount: %w", domain.ErrInvalidAmount)
	}
	switch req.Category {
	case domain.CategoryGenerationDebit, domain.CategoryPayoutDebit:
		if req.Amount > 0 {
			return fmt.Errorf("ledger: %s must be negative: %w", req.Category, domain.ErrInvalidAmount)
		}
	case domain.CategoryPurchase, domain.CategoryRoyaltyCredit, domain.CategoryRefund:
		if req.Amount < 0 {
			return fmt.Errorf("ledger: %s must be positive: %w", req.Category, domain.ErrInvalidAmount)
		}
	case domain.CategoryAdminAdjustment:
		if strings.TrimSpace(req.Reason) == "" {
			return domain.ErrReasonRequired
		}
	}
	return nil
}

// RecordPurchase credits a payer for a settled credit purchase. The payment
// reference makes the credit idempotent.
func (s *Service) RecordPurchase(ctx context.Context, accountID string, amount int64, paymentRef, actorID string) (*domain.LedgerEntry, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, fmt.Errorf("purchase: payment reference required: %w", domain.ErrInvalidRequest)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("purchase: amount must be positive: %w", domain.ErrInvalidAmount)
	}
	return s.Apply(ctx, ApplyRequest{
		AccountID:      accountID,
		Amount:         amount,
		Category:       domain.CategoryPurchase,
		ActorID:        actorID,
		Reason:         "purchase " + paymentRef,
		IdempotencyKey: "purchase:" + paymentRef,
	})
}
