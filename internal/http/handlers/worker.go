package handlers

import (
	"context"
	"net/http"
)

// WorkerTick runs a single worker pass; used by external schedulers that
// drive the queue over HTTP instead of a long-running worker. The pass is
// detached from the request so a dropped client does not abandon claimed jobs.
func (a *App) WorkerTick(w http.ResponseWriter, r *http.Request) {
	if a.Worker == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "worker not configured")
		return
	}
	didWork, err := a.Worker.ProcessNextBatch(context.WithoutCancel(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"did_work": didWork})
}
