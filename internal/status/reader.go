// Package status serves read-only views of jobs and batches for polling
// clients. Views are built from committed state only.
package status

import (
	"context"
	"time"

	"modelshoot/internal/domain"
)

// URLResolver turns a stored output reference into a client-facing URL.
type URLResolver interface {
	URL(key string) string
}

// JobStatus is the client view of one job.
type JobStatus struct {
	ID             string             `json:"id"`
	BatchID        string             `json:"batch_id"`
	Kind           domain.JobKind     `json:"kind"`
	Status         domain.JobStatus   `json:"status"`
	OutputRef      string             `json:"output_ref,omitempty"`
	OutputURL      string             `json:"output_url,omitempty"`
	FailureCode    domain.FailureCode `json:"failure_code,omitempty"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	// FailureMessage is a localized explanation of FailureCode, filled in
	// by the HTTP layer.
	FailureMessage string             `json:"failure_message,omitempty"`
	RetryCount     int                `json:"retry_count"`
	MaxRetries     int                `json:"max_retries"`
	CreditCost     int64              `json:"credit_cost"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	LastRetryAt    *time.Time         `json:"last_retry_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// BatchStatus is the client view of a batch and its members.
type BatchStatus struct {
	ID              string             `json:"id"`
	Name            string             `json:"name,omitempty"`
	Status          domain.BatchStatus `json:"status"`
	TotalRequests   int                `json:"total_requests"`
	PendingCount    int                `json:"pending_count"`
	ProcessingCount int                `json:"processing_count"`
	CompletedCount  int                `json:"completed_count"`
	FailedCount     int                `json:"failed_count"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	Jobs            []JobStatus        `json:"jobs"`
}

// Reader builds status views.
type Reader struct {
	store domain.Store
	urls  URLResolver
}

// NewReader builds a reader; urls may be nil.
func NewReader(store domain.Store, urls URLResolver) *Reader {
	return &Reader{store: store, urls: urls}
}

// GetJobStatus returns the job view. Callers restrict by owner with ownerID;
// an empty ownerID skips the check.
func (r *Reader) GetJobStatus(ctx context.Context, ownerID, jobID string) (*JobStatus, error) {
	job, err := r.store.Repos().Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && job.OwnerAccountID != ownerID {
		return nil, domain.ErrNotFound
	}
	view := r.jobView(*job)
	return &view, nil
}

// GetBatchStatus returns the batch view with member summaries. Its counters
// always agree with the summaries it carries.
func (r *Reader) GetBatchStatus(ctx context.Context, ownerID, batchID string) (*BatchStatus, error) {
	repos := r.store.Repos()
	b, err := repos.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && b.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	members, err := repos.Jobs.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	// The batch row and the member list are separate reads, so a member may
	// have moved in between. Counters follow the members actually returned.
	view := b.Clone()
	view.Recount(members, b.UpdatedAt)
	b = &view
	out := &BatchStatus{
		ID:              b.ID,
		Name:            b.Name,
		Status:          b.Status,
		TotalRequests:   b.Total,
		PendingCount:    b.Pending,
		ProcessingCount: b.Processing,
		CompletedCount:  b.Completed,
		FailedCount:     b.Failed,
		CreatedAt:       b.CreatedAt,
		StartedAt:       b.StartedAt,
		CompletedAt:     b.CompletedAt,
		Jobs:            make([]JobStatus, 0, len(members)),
	}
	for _, m := range members {
		out.Jobs = append(out.Jobs, r.jobView(m))
	}
	return out, nil
}

func (r *Reader) jobView(j domain.Job) JobStatus {
	view := JobStatus{
		ID:          j.ID,
		BatchID:     j.BatchID,
		Kind:        j.Kind,
		Status:      j.Status,
		RetryCount:  j.RetryCount,
		MaxRetries:  j.MaxRetries,
		CreditCost:  j.CreditCost,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		LastRetryAt: j.LastRetryAt,
		CompletedAt: j.CompletedAt,
	}
	switch j.Status {
	case domain.JobStatusCompleted:
		view.OutputRef = j.OutputRef
		if r.urls != nil {
			view.OutputURL = r.urls.URL(j.OutputRef)
		}
	case domain.JobStatusFailed:
		view.FailureCode = j.FailureCode
		view.FailureReason = j.FailureReason
	case domain.JobStatusPending:
		// A requeued job keeps its last failure visible while it waits.
		if j.RetryCount > 0 {
			view.FailureCode = j.FailureCode
			view.FailureReason = j.FailureReason
		}
	}
	return view
}
