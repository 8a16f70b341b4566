package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"modelshoot/internal/domain"
	"modelshoot/internal/ledger"
)

type accountResponse struct {
	*domain.Account
	Available int64 `json:"available"`
}

type adjustRequest struct {
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	AllowOverdraw  bool   `json:"allow_overdraw"`
	IdempotencyKey string `json:"idempotency_key"`
}

type openAccountRequest struct {
	UserID string             `json:"user_id"`
	Role   domain.AccountRole `json:"role"`
}

type purchaseRequest struct {
	Amount     int64  `json:"amount"`
	PaymentRef string `json:"payment_ref"`
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentAccountID(r)
	acct, err := a.Ledger.Account(r.Context(), accountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	_, available, err := a.Ledger.AvailableBalance(r.Context(), accountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, accountResponse{Account: acct, Available: available})
}

func (a *App) MyEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Ledger.Entries(r.Context(), a.currentAccountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	a.json(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *App) AdjustAccount(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Ledger.AdminAdjust(r.Context(), ledger.AdjustRequest{
		AccountID:      chi.URLParam(r, "id"),
		Amount:         req.Amount,
		Reason:         req.Reason,
		ActorID:        a.currentAccountID(r),
		AllowOverdraw:  req.AllowOverdraw,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}

func (a *App) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	acct, err := a.Ledger.OpenAccount(r.Context(), req.UserID, req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, acct)
}

func (a *App) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !a.decode(w, r, &req) {
		return
	}
	entry, err := a.Ledger.RecordPurchase(r.Context(), chi.URLParam(r, "id"), req.Amount, req.PaymentRef, a.currentAccountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, entry)
}

func (a *App) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	report, err := a.Ledger.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, report)
}
