package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"modelshoot/internal/domain"
	"modelshoot/internal/storage"
	"modelshoot/pkg/zip"
)

// OutputReader loads stored render outputs; storage.FileStore satisfies it.
type OutputReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// BatchArchive downloads every completed output of a batch as one zip.
func (a *App) BatchArchive(w http.ResponseWriter, r *http.Request) {
	if a.Outputs == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "output storage not configured")
		return
	}
	view, err := a.Status.GetBatchStatus(r.Context(), a.ownerScope(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	entries := make([]zip.Entry, 0, len(view.Jobs))
	for _, j := range view.Jobs {
		if j.Status != domain.JobStatusCompleted || j.OutputRef == "" {
			continue
		}
		data, err := a.Outputs.Read(r.Context(), j.OutputRef)
		if errors.Is(err, storage.ErrNotFound) {
			a.Logger.Warn().Str("job_id", j.ID).Str("output_ref", j.OutputRef).Msg("archive: output missing from storage")
			continue
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}
		modified := j.UpdatedAt
		if j.CompletedAt != nil {
			modified = *j.CompletedAt
		}
		entries = append(entries, zip.Entry{Name: j.OutputRef, Data: data, Modified: modified})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "batch has no completed outputs")
		return
	}
	var buf bytes.Buffer
	if err := zip.Write(&buf, entries); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="batch-%s.zip"`, view.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
