package domain

import (
	"fmt"
	"time"
)

// EntryCategory classifies why a balance moved.
type EntryCategory string

const (
	CategoryPurchase        EntryCategory = "purchase"
	CategoryGenerationDebit EntryCategory = "generation_debit"
	CategoryRoyaltyCredit   EntryCategory = "royalty_credit"
	CategoryAdminAdjustment EntryCategory = "admin_adjustment"
	CategoryRefund          EntryCategory = "refund"
	CategoryPayoutDebit     EntryCategory = "payout_debit"
)

// Valid reports whether the category is known.
func (c EntryCategory) Valid() bool {
	switch c {
	case CategoryPurchase, CategoryGenerationDebit, CategoryRoyaltyCredit,
		CategoryAdminAdjustment, CategoryRefund, CategoryPayoutDebit:
		return true
	}
	return false
}

// LedgerEntry is an append-only record of a single balance change.
type LedgerEntry struct {
	ID             string        `json:"id"`
	Seq            int64         `json:"seq"`
	AccountID      string        `json:"account_id"`
	Amount         int64         `json:"amount"`
	BalanceAfter   int64         `json:"balance_after"`
	Category       EntryCategory `json:"category"`
	JobID          string        `json:"job_id,omitempty"`
	BatchID        string        `json:"batch_id,omitempty"`
	PayoutID       string        `json:"payout_id,omitempty"`
	ActorID        string        `json:"actor_id,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	IdempotencyKey string        `json:"idempotency_key"`
	CreatedAt      time.Time     `json:"created_at"`
}

// JobLedgerKey builds the idempotency key for a job outcome leg, e.g.
// job:<id>:completed:debit.
func JobLedgerKey(jobID string, outcome JobStatus, leg string) string {
	return fmt.Sprintf("job:%s:%s:%s", jobID, outcome, leg)
}

// PayoutLedgerKey builds the idempotency key for a payout outcome.
func PayoutLedgerKey(payoutID string, outcome PayoutStatus) string {
	return fmt.Sprintf("payout:%s:%s", payoutID, outcome)
}
