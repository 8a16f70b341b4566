package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/ledger"
	"modelshoot/internal/metrics"
)

// Transitions is the single writer of job status and batch counters. Every
// method runs one atomic unit that updates the job and its batch together.
type Transitions struct {
	store   domain.Store
	ledger  *ledger.Service
	backoff domain.BackoffPolicy
	logger  infra.Logger
	now     func() time.Time
}

// NewTransitions builds the transition handler. A nil clock uses UTC wall time.
func NewTransitions(store domain.Store, ledgerSvc *ledger.Service, backoff domain.BackoffPolicy, logger infra.Logger, clock func() time.Time) *Transitions {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Transitions{
		store:   store,
		ledger:  ledgerSvc,
		backoff: backoff,
		logger:  logger.With().Str("component", "transitions").Logger(),
		now:     clock,
	}
}

// Now returns the handler's current time.
func (t *Transitions) Now() time.Time {
	return t.now()
}

// Claim moves a pending job to processing. Concurrent claims of one job
// yield exactly one winner; the others get ErrClaimConflict.
func (t *Transitions) Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	var claimed *domain.Job
	err := t.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		claimed, err = t.claimTx(ctx, tx, jobID, workerID, t.now())
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrClaimConflict) {
			metrics.ClaimConflicts.Inc()
			t.logger.Debug().Str("job_id", jobID).Str("worker_id", workerID).Msg("claim lost")
		}
		return nil, err
	}
	return claimed, nil
}

func (t *Transitions) claimTx(ctx context.Context, tx domain.Repositories, jobID, workerID string, now time.Time) (*domain.Job, error) {
	job, err := tx.Jobs.ClaimPending(ctx, jobID, workerID, now)
	if err != nil {
		return nil, err
	}
	if err := settleBatch(ctx, tx, job.BatchID, now, move{domain.JobStatusPending, domain.JobStatusProcessing}); err != nil {
		return nil, err
	}
	return job, nil
}

// RecordOutput durably stores the output locator of a job processing under
// workerID's lease.
func (t *Transitions) RecordOutput(ctx context.Context, jobID, workerID, ref string) error {
	return t.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		job, err := tx.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := job.HeldBy(workerID); err != nil {
			return err
		}
		if err := job.RecordOutput(ref, t.now()); err != nil {
			return err
		}
		return tx.Jobs.Update(ctx, job)
	})
}

// ledgerRejection marks a ledger error that must terminate the job instead
// of leaving it for a retry.
type ledgerRejection struct {
	err error
}

func (r *ledgerRejection) Error() string { return r.err.Error() }
func (r *ledgerRejection) Unwrap() error { return r.err }

// Complete charges the owner, credits the royalty for human-model jobs, and
// marks the job completed, all in one atomic unit. If the ledger rejects
// either leg the job is forced to failed with its output cleared and the
// failed job is returned with a nil error. Only the lease holder may complete.
func (t *Transitions) Complete(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	var done *domain.Job
	err := t.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		job, err := tx.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := job.HeldBy(workerID); err != nil {
			return err
		}
		now := t.now()
		if job.Status != domain.JobStatusProcessing || job.OutputRef == "" {
			return fmt.Errorf("complete job %s (%s): %w", job.ID, job.Status, domain.ErrInvalidTransition)
		}
		if job.CreditCost > 0 {
			_, err := t.ledger.ApplyTx(ctx, tx, ledger.ApplyRequest{
				AccountID:      job.OwnerAccountID,
				Amount:         -job.CreditCost,
				Category:       domain.CategoryGenerationDebit,
				JobID:          job.ID,
				BatchID:        job.BatchID,
				Reason:         fmt.Sprintf("%s generation", job.Kind),
				IdempotencyKey: domain.JobLedgerKey(job.ID, domain.JobStatusCompleted, "debit"),
			})
			if err != nil {
				return rejectOrPass(err)
			}
		}
		if job.Kind == domain.JobKindHumanModel && job.PayeeAccountID != "" && job.RoyaltyAmount > 0 {
			_, err := t.ledger.ApplyTx(ctx, tx, ledger.ApplyRequest{
				AccountID:      job.PayeeAccountID,
				Amount:         job.RoyaltyAmount,
				Category:       domain.CategoryRoyaltyCredit,
				JobID:          job.ID,
				BatchID:        job.BatchID,
				Reason:         "human model royalty",
				IdempotencyKey: domain.JobLedgerKey(job.ID, domain.JobStatusCompleted, "royalty"),
			})
			if err != nil {
				return rejectOrPass(err)
			}
		}
		if err := job.Complete(now); err != nil {
			return err
		}
		if err := tx.Jobs.Update(ctx, job); err != nil {
			return err
		}
		if err := settleBatch(ctx, tx, job.BatchID, now, move{domain.JobStatusProcessing, domain.JobStatusCompleted}); err != nil {
			return err
		}
		done = job
		return nil
	})
	var rej *ledgerRejection
	if errors.As(err, &rej) {
		code := domain.FailureLedgerRejected
		if errors.Is(rej.err, domain.ErrInsufficientBalance) {
			code = domain.FailureInsufficientBalance
		}
		t.logger.Warn().Err(rej.err).Str("job_id", jobID).Str("failure_code", string(code)).Msg("completion rejected by ledger")
		return t.forceFail(ctx, jobID, workerID, code, rej.err.Error())
	}
	if err != nil {
		return nil, err
	}
	return done, nil
}

func rejectOrPass(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRequest):
		return &ledgerRejection{err: err}
	}
	return err
}

func (t *Transitions) forceFail(ctx context.Context, jobID, workerID string, code domain.FailureCode, reason string) (*domain.Job, error) {
	var failed *domain.Job
	err := t.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		job, err := tx.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := job.HeldBy(workerID); err != nil {
			return err
		}
		now := t.now()
		if err := job.ForceFail(code, reason, now); err != nil {
			return err
		}
		if err := tx.Jobs.Update(ctx, job); err != nil {
			return err
		}
		if err := settleBatch(ctx, tx, job.BatchID, now, move{domain.JobStatusProcessing, domain.JobStatusFailed}); err != nil {
			return err
		}
		failed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

// Fail records a failed attempt of a processing job. Transient failures
// requeue the job with backoff until its retry cap is reached. Only the
// lease holder may fail the attempt.
func (t *Transitions) Fail(ctx context.Context, jobID, workerID string, f domain.Failure) (*domain.Job, error) {
	var failed *domain.Job
	err := t.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		job, err := tx.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := job.HeldBy(workerID); err != nil {
			return err
		}
		var cause error
		failed, cause = t.failTx(ctx, tx, job, f, t.now())
		return cause
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info().
		Str("job_id", failed.ID).
		Str("status", string(failed.Status)).
		Str("failure_code", string(f.Code)).
		Int("retry_count", failed.RetryCount).
		Msg("job attempt failed")
	return failed, nil
}

func (t *Transitions) failTx(ctx context.Context, tx domain.Repositories, job *domain.Job, f domain.Failure, now time.Time) (*domain.Job, error) {
	from := job.Status
	if err := job.Fail(f, now, t.backoff); err != nil {
		return nil, err
	}
	if err := tx.Jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	if err := settleBatch(ctx, tx, job.BatchID, now, move{from, job.Status}); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel cancels one job of the owner. Pending jobs fail with CANCELLED;
// processing jobs only record the request.
func (t *Transitions) Cancel(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	var out *domain.Job
	err := t.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		job, err := tx.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.OwnerAccountID != ownerID {
			return domain.ErrNotFound
		}
		now := t.now()
		from := job.Status
		if job.Cancel(now) || job.CancelRequested {
			if err := tx.Jobs.Update(ctx, job); err != nil {
				return err
			}
		}
		if err := settleBatch(ctx, tx, job.BatchID, now, move{from, job.Status}); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelBatch cancels every member of the owner's batch. Member rows are
// locked before the batch row so claimers are never waited on while the
// batch is held.
func (t *Transitions) CancelBatch(ctx context.Context, ownerID, batchID string) (*domain.Batch, error) {
	var out *domain.Batch
	err := t.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		b, err := tx.Batches.Get(ctx, batchID)
		if err != nil {
			return err
		}
		if b.OwnerID != ownerID {
			return domain.ErrNotFound
		}
		now := t.now()
		var moves []move
		for _, id := range b.JobIDs {
			job, err := tx.Jobs.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			from := job.Status
			if job.Cancel(now) || job.CancelRequested {
				if err := tx.Jobs.Update(ctx, job); err != nil {
					return err
				}
			}
			moves = append(moves, move{from, job.Status})
		}
		if err := settleBatch(ctx, tx, batchID, now, moves...); err != nil {
			return err
		}
		out, err = tx.Batches.Get(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type move struct {
	from, to domain.JobStatus
}

// settleBatch applies member moves to the batch counters.
func settleBatch(ctx context.Context, tx domain.Repositories, batchID string, now time.Time, moves ...move) error {
	changed := false
	for _, m := range moves {
		if m.from != m.to {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}
	b, err := tx.Batches.GetForUpdate(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batchID, err)
	}
	for _, m := range moves {
		if err := b.ApplyTransition(m.from, m.to, now); err != nil {
			return err
		}
	}
	return tx.Batches.Update(ctx, b)
}
