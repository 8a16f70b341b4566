package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"modelshoot/internal/domain"
	"modelshoot/internal/middleware"
	"modelshoot/internal/payout"
)

type createPayoutRequest struct {
	Amount         int64               `json:"amount"`
	Method         domain.PayoutMethod `json:"method"`
	AccountDetails map[string]string   `json:"account_details"`
	Notes          string              `json:"notes"`
}

type payoutActionRequest struct {
	Action        payout.Action `json:"action"`
	TransactionID string        `json:"transaction_id"`
	Notes         string        `json:"notes"`
	FailureReason string        `json:"failure_reason"`
}

type cancelPayoutRequest struct {
	Reason string `json:"reason"`
}

func (a *App) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req createPayoutRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.Payouts.Submit(r.Context(), payout.SubmitRequest{
		AccountID:      a.currentAccountID(r),
		Amount:         req.Amount,
		Method:         req.Method,
		AccountDetails: req.AccountDetails,
		Notes:          req.Notes,
		Country:        middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, p)
}

func (a *App) ListPayouts(w http.ResponseWriter, r *http.Request) {
	items, err := a.Payouts.List(r.Context(), a.currentAccountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.PayoutRequest{}
	}
	a.json(w, http.StatusOK, map[string]any{"payouts": items})
}

func (a *App) GetPayout(w http.ResponseWriter, r *http.Request) {
	p, err := a.Payouts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if p.AccountID != a.currentAccountID(r) && !middleware.IsAdmin(r.Context()) {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	a.json(w, http.StatusOK, p)
}

func (a *App) CancelPayout(w http.ResponseWriter, r *http.Request) {
	var req cancelPayoutRequest
	if r.ContentLength > 0 && !a.decode(w, r, &req) {
		return
	}
	p, err := a.Payouts.Act(r.Context(), payout.ActionRequest{
		PayoutID:     chi.URLParam(r, "id"),
		ActorID:      a.currentAccountID(r),
		ActorIsAdmin: middleware.IsAdmin(r.Context()),
		Action:       payout.ActionCancel,
		Reason:       req.Reason,
		Country:      middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, p)
}

func (a *App) PayoutAction(w http.ResponseWriter, r *http.Request) {
	var req payoutActionRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.Payouts.Act(r.Context(), payout.ActionRequest{
		PayoutID:       chi.URLParam(r, "id"),
		ActorID:        a.currentAccountID(r),
		ActorIsAdmin:   middleware.IsAdmin(r.Context()),
		Action:         req.Action,
		TransactionRef: req.TransactionID,
		Reason:         req.FailureReason,
		Notes:          req.Notes,
		Country:        middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, p)
}
