// Package payout runs the payee withdrawal workflow. Open requests reserve
// part of the payee balance; only completion debits the ledger.
package payout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/ledger"
)

// Config holds payout limits and fees.
type Config struct {
	MinAmount int64
	Currency  string
	Fee       FeePolicy
}

// SubmitRequest is a payee's withdrawal request.
type SubmitRequest struct {
	AccountID      string
	Amount         int64
	Method         domain.PayoutMethod
	AccountDetails map[string]string
	Notes          string
	Country        string
}

// Action is an operation on an existing request.
type Action string

const (
	ActionReview   Action = "review"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionProcess  Action = "process"
	ActionComplete Action = "complete"
	ActionFail     Action = "fail"
	ActionCancel   Action = "cancel"
)

// ActionRequest applies an Action on behalf of an actor.
type ActionRequest struct {
	PayoutID       string
	ActorID        string
	ActorIsAdmin   bool
	Action         Action
	TransactionRef string
	Reason         string
	Notes          string
	Country        string
}

// Service manages payout requests.
type Service struct {
	store  domain.Store
	ledger *ledger.Service
	cfg    Config
	logger infra.Logger
	now    func() time.Time
}

// NewService builds the payout service.
func NewService(store domain.Store, ledgerSvc *ledger.Service, cfg Config, logger infra.Logger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Service{
		store:  store,
		ledger: ledgerSvc,
		cfg:    cfg,
		logger: logger.With().Str("component", "payout").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a pending request if the amount fits the available balance.
// The payee row lock serializes concurrent submissions of one payee.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.PayoutRequest, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payout amount must be positive: %w", domain.ErrInvalidAmount)
	}
	if req.Amount < s.cfg.MinAmount {
		return nil, fmt.Errorf("payout amount below minimum %d: %w", s.cfg.MinAmount, domain.ErrInvalidAmount)
	}
	if !req.Method.Valid() {
		return nil, fmt.Errorf("payout method %q: %w", req.Method, domain.ErrInvalidRequest)
	}
	var created *domain.PayoutRequest
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		acct, err := tx.Accounts.GetForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if acct.Role != domain.AccountRolePayee {
			return fmt.Errorf("account %s is not a payee: %w", acct.ID, domain.ErrForbidden)
		}
		reserved, err := tx.Payouts.SumReserved(ctx, acct.ID)
		if err != nil {
			return err
		}
		if available := acct.Balance - reserved; req.Amount > available {
			return fmt.Errorf("payout %d exceeds available %d: %w", req.Amount, available, domain.ErrInsufficientBalance)
		}
		now := s.now()
		fee := s.cfg.Fee.Fee(req.Amount)
		p := &domain.PayoutRequest{
			ID:             uuid.NewString(),
			AccountID:      acct.ID,
			Amount:         req.Amount,
			Fee:            fee,
			NetAmount:      req.Amount - fee,
			Currency:       s.cfg.Currency,
			Method:         req.Method,
			AccountDetails: req.AccountDetails,
			Status:         domain.PayoutStatusPending,
			Notes:          strings.TrimSpace(req.Notes),
			History: []domain.PayoutHistoryEntry{{
				To:      domain.PayoutStatusPending,
				ActorID: acct.ID,
				Reason:  "requested",
				Country: req.Country,
				At:      now,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Payouts.Create(ctx, p); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("payout_id", created.ID).Str("account_id", created.AccountID).Int64("amount", created.Amount).Msg("payout requested")
	return created, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	return s.store.Repos().Payouts.Get(ctx, id)
}

// List returns the payee's requests, newest first.
func (s *Service) List(ctx context.Context, accountID string) ([]domain.PayoutRequest, error) {
	return s.store.Repos().Payouts.ListByAccount(ctx, accountID)
}

// Act applies an action. Completing an approved request passes through
// processing and records both steps. Completion debits the ledger in the
// same atomic unit.
func (s *Service) Act(ctx context.Context, req ActionRequest) (*domain.PayoutRequest, error) {
	if req.Action != ActionCancel && !req.ActorIsAdmin {
		return nil, domain.ErrForbidden
	}
	var out *domain.PayoutRequest
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		p, err := tx.Payouts.GetForUpdate(ctx, req.PayoutID)
		if err != nil {
			return err
		}
		now := s.now()
		step := func(to domain.PayoutStatus, reason string) error {
			return p.Transition(to, req.ActorID, reason, req.Country, now)
		}
		switch req.Action {
		case ActionCancel:
			if p.AccountID != req.ActorID && !req.ActorIsAdmin {
				return domain.ErrNotFound
			}
			err = step(domain.PayoutStatusCancelled, req.Reason)
		case ActionReview:
			err = step(domain.PayoutStatusUnderReview, req.Reason)
		case ActionApprove:
			err = step(domain.PayoutStatusApproved, req.Reason)
		case ActionReject:
			p.FailureReason = strings.TrimSpace(req.Reason)
			err = step(domain.PayoutStatusRejected, req.Reason)
		case ActionProcess:
			err = step(domain.PayoutStatusProcessing, req.Reason)
		case ActionFail:
			p.FailureReason = strings.TrimSpace(req.Reason)
			err = step(domain.PayoutStatusFailed, req.Reason)
		case ActionComplete:
			if strings.TrimSpace(req.TransactionRef) == "" {
				return fmt.Errorf("transaction reference required: %w", domain.ErrInvalidRequest)
			}
			if p.Status == domain.PayoutStatusApproved {
				if err := step(domain.PayoutStatusProcessing, "processing started on completion"); err != nil {
					return err
				}
			}
			if err := step(domain.PayoutStatusCompleted, req.Reason); err != nil {
				return err
			}
			p.TransactionRef = strings.TrimSpace(req.TransactionRef)
			_, err = s.ledger.ApplyTx(ctx, tx, ledger.ApplyRequest{
				AccountID:      p.AccountID,
				Amount:         -p.Amount,
				Category:       domain.CategoryPayoutDebit,
				PayoutID:       p.ID,
				ActorID:        req.ActorID,
				Reason:         "payout " + p.TransactionRef,
				IdempotencyKey: domain.PayoutLedgerKey(p.ID, domain.PayoutStatusCompleted),
			})
		default:
			return fmt.Errorf("unknown payout action %q: %w", req.Action, domain.ErrInvalidRequest)
		}
		if err != nil {
			return err
		}
		if n := strings.TrimSpace(req.Notes); n != "" {
			p.Notes = n
		}
		if err := tx.Payouts.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("payout_id", out.ID).
		Str("action", string(req.Action)).
		Str("status", string(out.Status)).
		Str("actor_id", req.ActorID).
		Msg("payout updated")
	return out, nil
}
