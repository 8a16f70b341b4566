package domain

import (
	"context"
	"time"
)

// AccountRepository persists accounts. SetBalance is reserved for the ledger.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	// GetForUpdate locks the account row for the rest of the atomic unit.
	GetForUpdate(ctx context.Context, id string) (*Account, error)
	SetBalance(ctx context.Context, id string, balance int64, at time.Time) error
}

// LedgerRepository appends and reads ledger entries.
type LedgerRepository interface {
	// Append stores the entry and assigns its sequence number. A reused
	// idempotency key yields ErrDuplicateOperation.
	Append(ctx context.Context, entry *LedgerEntry) error
	GetByIdempotencyKey(ctx context.Context, key string) (*LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string) ([]LedgerEntry, error)
}

// JobRepository persists jobs.
type JobRepository interface {
	CreateMany(ctx context.Context, jobs []Job) error
	Get(ctx context.Context, id string) (*Job, error)
	GetForUpdate(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	// ClaimPending flips a pending job to processing as a single
	// compare-and-swap. It returns ErrClaimConflict when the job is no longer
	// pending.
	ClaimPending(ctx context.Context, id, workerID string, now time.Time) (*Job, error)
	// NextClaimable returns the first pending member of the batch whose
	// backoff has elapsed, skipping rows locked by other claimers. It
	// returns nil when there is none.
	NextClaimable(ctx context.Context, batchID string, now time.Time) (*Job, error)
	ListByBatch(ctx context.Context, batchID string) ([]Job, error)
	// CountProcessing counts processing jobs for an owner, or globally when
	// ownerID is empty.
	CountProcessing(ctx context.Context, ownerID string) (int, error)
	ListExpired(ctx context.Context, claimedBefore time.Time, limit int) ([]Job, error)
	// LockOwner serializes claimers of the same owner for the rest of the
	// atomic unit; an empty owner takes the global claim lock.
	LockOwner(ctx context.Context, ownerID string) error
}

// BatchRepository persists batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *Batch) error
	Get(ctx context.Context, id string) (*Batch, error)
	GetForUpdate(ctx context.Context, id string) (*Batch, error)
	Update(ctx context.Context, batch *Batch) error
	// ListEligible returns batches holding at least one pending member whose
	// backoff has elapsed, ordered by priority desc then creation time.
	ListEligible(ctx context.Context, now time.Time, limit int) ([]Batch, error)
}

// PayoutRepository persists payout requests and their history.
type PayoutRepository interface {
	Create(ctx context.Context, payout *PayoutRequest) error
	Get(ctx context.Context, id string) (*PayoutRequest, error)
	GetForUpdate(ctx context.Context, id string) (*PayoutRequest, error)
	// Update writes the new status fields and appends history entries that
	// are not stored yet.
	Update(ctx context.Context, payout *PayoutRequest) error
	ListByAccount(ctx context.Context, accountID string) ([]PayoutRequest, error)
	SumReserved(ctx context.Context, accountID string) (int64, error)
}

// Repositories bundles the typed repositories of one store or atomic unit.
type Repositories struct {
	Accounts AccountRepository
	Ledger   LedgerRepository
	Jobs     JobRepository
	Batches  BatchRepository
	Payouts  PayoutRepository
}

// Store exposes committed reads and atomic units of work.
type Store interface {
	Repos() Repositories
	// WithAtomic runs fn in one all-or-nothing unit. Returning an error
	// discards every write made through tx.
	WithAtomic(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
