package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"modelshoot/internal/domain"
	"modelshoot/internal/i18n"
	"modelshoot/internal/middleware"
	"modelshoot/internal/queue"
	"modelshoot/internal/status"
)

// submitJobsRequest accepts either a list of items or a single job inline.
type submitJobsRequest struct {
	Name     string             `json:"name"`
	Priority int                `json:"priority"`
	Items    []queue.SubmitItem `json:"items"`

	Kind           domain.JobKind `json:"kind"`
	GarmentRef     string         `json:"garment_ref"`
	TargetRef      string         `json:"target_ref"`
	PayeeAccountID string         `json:"payee_account_id"`
}

type submitJobsResponse struct {
	JobID   string             `json:"job_id,omitempty"`
	BatchID string             `json:"batch_id"`
	JobIDs  []string           `json:"job_ids"`
	Status  domain.BatchStatus `json:"status"`
}

func (a *App) SubmitJobs(w http.ResponseWriter, r *http.Request) {
	accountID := a.currentAccountID(r)
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing account context")
		return
	}
	var req submitJobsRequest
	if !a.decode(w, r, &req) {
		return
	}
	single := len(req.Items) == 0
	if single {
		req.Items = []queue.SubmitItem{{
			Kind:           req.Kind,
			InputRef:       req.GarmentRef,
			TargetRef:      req.TargetRef,
			PayeeAccountID: req.PayeeAccountID,
		}}
	}
	res, err := a.Scheduler.Submit(r.Context(), queue.SubmitRequest{
		OwnerID:  accountID,
		Name:     req.Name,
		Priority: req.Priority,
		Items:    req.Items,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := submitJobsResponse{BatchID: res.BatchID, JobIDs: res.JobIDs, Status: res.Status}
	if single {
		out.JobID = res.JobIDs[0]
	}
	a.json(w, http.StatusAccepted, out)
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Status.GetJobStatus(r.Context(), a.ownerScope(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	localize(r, view)
	a.json(w, http.StatusOK, view)
}

func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := a.Scheduler.Cancel(r.Context(), a.currentAccountID(r), jobID); err != nil {
		a.fail(w, r, err)
		return
	}
	view, err := a.Status.GetJobStatus(r.Context(), a.currentAccountID(r), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	localize(r, view)
	a.json(w, http.StatusOK, view)
}

func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	view, err := a.Status.GetBatchStatus(r.Context(), a.ownerScope(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	for i := range view.Jobs {
		localize(r, &view.Jobs[i])
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	if _, err := a.Scheduler.CancelBatch(r.Context(), a.currentAccountID(r), batchID); err != nil {
		a.fail(w, r, err)
		return
	}
	view, err := a.Status.GetBatchStatus(r.Context(), a.currentAccountID(r), batchID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	for i := range view.Jobs {
		localize(r, &view.Jobs[i])
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) ReconcileBatch(w http.ResponseWriter, r *http.Request) {
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))
	report, err := a.Scheduler.ReconcileBatch(r.Context(), chi.URLParam(r, "id"), repair)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, report)
}

// ownerScope lets admins read any job; everyone else sees only their own.
func (a *App) ownerScope(r *http.Request) string {
	if middleware.IsAdmin(r.Context()) {
		return ""
	}
	if id := a.currentAccountID(r); id != "" {
		return id
	}
	// Unreachable behind AuthJWT; never widen the scope.
	return "\x00"
}

func localize(r *http.Request, view *status.JobStatus) {
	view.FailureMessage = i18n.FailureMessage(middleware.LocaleFromContext(r.Context()), view.FailureCode)
}
