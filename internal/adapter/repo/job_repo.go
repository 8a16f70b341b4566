package repo

import (
	"context"
	"time"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/sqlinline"
)

const globalClaimScope = "claim:global"

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// CreateMany inserts the jobs of one submission.
func (r *JobRepositoryPG) CreateMany(ctx context.Context, jobs []domain.Job) error {
	for i := range jobs {
		j := &jobs[i]
		_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
			j.ID,
			j.OwnerAccountID,
			j.BatchID,
			j.Position,
			string(j.Kind),
			j.InputRef,
			j.TargetRef,
			j.PayeeAccountID,
			j.OutputRef,
			string(j.Status),
			j.RetryCount,
			j.MaxRetries,
			string(j.FailureCode),
			j.FailureReason,
			j.CreditCost,
			j.RoyaltyAmount,
			j.Priority,
			j.NextAttemptAt,
			j.ClaimedBy,
			j.ClaimedAt,
			j.CancelRequested,
			j.CreatedAt,
			j.UpdatedAt,
			j.LastRetryAt,
			j.CompletedAt,
		)
		if err != nil {
			if infra.IsUniqueViolation(err, "") {
				return domain.ErrDuplicateOperation
			}
			return err
		}
	}
	return nil
}

// Get fetches a job by id.
func (r *JobRepositoryPG) Get(ctx context.Context, id string) (*domain.Job, error) {
	j, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, id))
	if err != nil {
		return nil, notFound(err)
	}
	return j, nil
}

// GetForUpdate fetches and row-locks a job.
func (r *JobRepositoryPG) GetForUpdate(ctx context.Context, id string) (*domain.Job, error) {
	j, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobForUpdate, id))
	if err != nil {
		return nil, notFound(err)
	}
	return j, nil
}

// Update writes the mutable job fields.
func (r *JobRepositoryPG) Update(ctx context.Context, j *domain.Job) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateJob,
		j.ID,
		j.OutputRef,
		string(j.Status),
		j.RetryCount,
		string(j.FailureCode),
		j.FailureReason,
		j.NextAttemptAt,
		j.ClaimedBy,
		j.ClaimedAt,
		j.CancelRequested,
		j.UpdatedAt,
		j.LastRetryAt,
		j.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimPending runs the claim compare-and-swap.
func (r *JobRepositoryPG) ClaimPending(ctx context.Context, id, workerID string, now time.Time) (*domain.Job, error) {
	j, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimPendingJob, id, workerID, now))
	if err == nil {
		return j, nil
	}
	if !infra.IsNoRows(err) {
		return nil, err
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrClaimConflict
}

// NextClaimable locks the first due pending member, skipping locked rows.
func (r *JobRepositoryPG) NextClaimable(ctx context.Context, batchID string, now time.Time) (*domain.Job, error) {
	j, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectNextClaimableJob, batchID, now))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

// ListByBatch returns batch members in submission order.
func (r *JobRepositoryPG) ListByBatch(ctx context.Context, batchID string) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectJobsByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountProcessing counts in-flight jobs for an owner or globally.
func (r *JobRepositoryPG) CountProcessing(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountProcessingJobs, ownerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListExpired returns processing jobs claimed before the cutoff.
func (r *JobRepositoryPG) ListExpired(ctx context.Context, claimedBefore time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectExpiredJobs, claimedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// LockOwner takes the transaction-scoped claim lock for ownerID.
func (r *JobRepositoryPG) LockOwner(ctx context.Context, ownerID string) error {
	scope := globalClaimScope
	if ownerID != "" {
		scope = "claim:owner:" + ownerID
	}
	_, err := r.sql.Exec(ctx, sqlinline.QLockClaimScope, scope)
	return err
}

type rowsScanner interface {
	rowScanner
	Next() bool
	Err() error
}

func collectJobs(rows rowsScanner) ([]domain.Job, error) {
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j           domain.Job
		kind        string
		status      string
		failureCode string
	)
	if err := row.Scan(
		&j.ID,
		&j.OwnerAccountID,
		&j.BatchID,
		&j.Position,
		&kind,
		&j.InputRef,
		&j.TargetRef,
		&j.PayeeAccountID,
		&j.OutputRef,
		&status,
		&j.RetryCount,
		&j.MaxRetries,
		&failureCode,
		&j.FailureReason,
		&j.CreditCost,
		&j.RoyaltyAmount,
		&j.Priority,
		&j.NextAttemptAt,
		&j.ClaimedBy,
		&j.ClaimedAt,
		&j.CancelRequested,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.LastRetryAt,
		&j.CompletedAt,
	); err != nil {
		return nil, err
	}
	j.Kind = domain.JobKind(kind)
	j.Status = domain.JobStatus(status)
	j.FailureCode = domain.FailureCode(failureCode)
	return &j, nil
}
