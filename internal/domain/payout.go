package domain

import (
	"fmt"
	"time"
)

// PayoutStatus enumerates payout request states.
type PayoutStatus string

const (
	PayoutStatusPending     PayoutStatus = "pending"
	PayoutStatusUnderReview PayoutStatus = "under_review"
	PayoutStatusApproved    PayoutStatus = "approved"
	PayoutStatusProcessing  PayoutStatus = "processing"
	PayoutStatusCompleted   PayoutStatus = "completed"
	PayoutStatusFailed      PayoutStatus = "failed"
	PayoutStatusRejected    PayoutStatus = "rejected"
	PayoutStatusCancelled   PayoutStatus = "cancelled"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:     {PayoutStatusUnderReview, PayoutStatusRejected, PayoutStatusCancelled},
	PayoutStatusUnderReview: {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved:    {PayoutStatusProcessing, PayoutStatusRejected},
	PayoutStatusProcessing:  {PayoutStatusCompleted, PayoutStatusFailed},
}

// Terminal reports whether the status releases the reservation for good.
func (s PayoutStatus) Terminal() bool {
	switch s {
	case PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusRejected, PayoutStatusCancelled:
		return true
	}
	return false
}

// Reserving reports whether a request in this status holds part of the balance.
func (s PayoutStatus) Reserving() bool {
	return !s.Terminal()
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to PayoutStatus) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PayoutMethod is the rail used to pay the payee.
type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodPayPal       PayoutMethod = "paypal"
	PayoutMethodWise         PayoutMethod = "wise"
)

// Valid reports whether the method is supported.
func (m PayoutMethod) Valid() bool {
	switch m {
	case PayoutMethodBankTransfer, PayoutMethodPayPal, PayoutMethodWise:
		return true
	}
	return false
}

// PayoutHistoryEntry is one audited status change.
type PayoutHistoryEntry struct {
	From    PayoutStatus `json:"from,omitempty"`
	To      PayoutStatus `json:"to"`
	ActorID string       `json:"actor_id"`
	Reason  string       `json:"reason,omitempty"`
	Country string       `json:"country,omitempty"`
	At      time.Time    `json:"at"`
}

// PayoutRequest is a payee's request to withdraw royalty earnings.
type PayoutRequest struct {
	ID             string               `json:"id"`
	AccountID      string               `json:"account_id"`
	Amount         int64                `json:"amount"`
	Fee            int64                `json:"fee"`
	NetAmount      int64                `json:"net_amount"`
	Currency       string               `json:"currency"`
	Method         PayoutMethod         `json:"method"`
	AccountDetails map[string]string    `json:"account_details,omitempty"`
	Status         PayoutStatus         `json:"status"`
	History        []PayoutHistoryEntry `json:"history"`
	TransactionRef string               `json:"transaction_id,omitempty"`
	Notes          string               `json:"notes,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	ProcessedAt    *time.Time           `json:"processed_at,omitempty"`
}

// Clone returns a deep copy.
func (p PayoutRequest) Clone() PayoutRequest {
	p.History = append([]PayoutHistoryEntry(nil), p.History...)
	if p.AccountDetails != nil {
		details := make(map[string]string, len(p.AccountDetails))
		for k, v := range p.AccountDetails {
			details[k] = v
		}
		p.AccountDetails = details
	}
	p.ProcessedAt = cloneTime(p.ProcessedAt)
	return p
}

// Transition performs one legal status step and appends the audit entry.
func (p *PayoutRequest) Transition(to PayoutStatus, actorID, reason, country string, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("payout %s: %s -> %s: %w", p.ID, p.Status, to, ErrInvalidTransition)
	}
	p.History = append(p.History, PayoutHistoryEntry{
		From:    p.Status,
		To:      to,
		ActorID: actorID,
		Reason:  reason,
		Country: country,
		At:      now,
	})
	p.Status = to
	p.UpdatedAt = now
	if to.Terminal() {
		p.ProcessedAt = &now
	}
	return nil
}
