// Package queue owns job submission, scheduling and every job/batch state
// transition.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/metrics"
)

// MaxBatchSize bounds the number of jobs in one submission.
const MaxBatchSize = 100

// Config tunes eligibility and retries.
type Config struct {
	MaxPerOwner  int
	MaxGlobal    int
	MaxRetries   int
	LeaseTimeout time.Duration
	ScanLimit    int
}

// Pricing snapshots costs onto jobs at submission.
type Pricing struct {
	AvatarCost           int64
	HumanModelCost       int64
	RoyaltyPerGeneration int64
}

// CostFor returns the credit cost of one job of the kind.
func (p Pricing) CostFor(kind domain.JobKind) int64 {
	if kind == domain.JobKindHumanModel {
		return p.HumanModelCost
	}
	return p.AvatarCost
}

// SubmitItem is one requested render.
type SubmitItem struct {
	Kind           domain.JobKind `json:"kind"`
	InputRef       string         `json:"garment_ref"`
	TargetRef      string         `json:"target_ref"`
	PayeeAccountID string         `json:"payee_account_id,omitempty"`
}

// SubmitRequest creates a batch of jobs for one owner.
type SubmitRequest struct {
	OwnerID  string
	Name     string
	Priority int
	Items    []SubmitItem
}

// SubmitResult identifies what was created.
type SubmitResult struct {
	BatchID string             `json:"batch_id"`
	JobIDs  []string           `json:"job_ids"`
	Status  domain.BatchStatus `json:"status"`
}

// BatchReport compares incremental counters with a recount from members.
type BatchReport struct {
	BatchID     string               `json:"batch_id"`
	Incremental domain.BatchCounters `json:"incremental"`
	Recounted   domain.BatchCounters `json:"recounted"`
	Consistent  bool                 `json:"consistent"`
	Repaired    bool                 `json:"repaired"`
}

// Scheduler accepts submissions and hands eligible work to workers.
type Scheduler struct {
	store       domain.Store
	transitions *Transitions
	cfg         Config
	pricing     Pricing
	logger      infra.Logger
}

// NewScheduler builds a scheduler sharing the transition handler's clock.
func NewScheduler(store domain.Store, transitions *Transitions, cfg Config, pricing Pricing, logger infra.Logger) *Scheduler {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = domain.DefaultMaxRetries
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 50
	}
	return &Scheduler{
		store:       store,
		transitions: transitions,
		cfg:         cfg,
		pricing:     pricing,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
}

// Transitions exposes the shared transition handler.
func (s *Scheduler) Transitions() *Transitions {
	return s.transitions
}

// Submit validates the items and creates the jobs and their batch in one
// atomic unit. Balances are not checked here; owners are charged on success.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}
	now := s.transitions.now()
	batchID := uuid.NewString()
	jobs := make([]domain.Job, 0, len(req.Items))
	ids := make([]string, 0, len(req.Items))
	for i, item := range req.Items {
		id := uuid.NewString()
		job := domain.Job{
			ID:             id,
			OwnerAccountID: req.OwnerID,
			BatchID:        batchID,
			Position:       i,
			Kind:           item.Kind,
			InputRef:       strings.TrimSpace(item.InputRef),
			TargetRef:      strings.TrimSpace(item.TargetRef),
			Status:         domain.JobStatusPending,
			MaxRetries:     s.cfg.MaxRetries,
			CreditCost:     s.pricing.CostFor(item.Kind),
			Priority:       req.Priority,
			NextAttemptAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if item.Kind == domain.JobKindHumanModel {
			job.PayeeAccountID = strings.TrimSpace(item.PayeeAccountID)
			job.RoyaltyAmount = s.pricing.RoyaltyPerGeneration
		}
		jobs = append(jobs, job)
		ids = append(ids, id)
	}
	batch := domain.NewBatch(batchID, req.OwnerID, strings.TrimSpace(req.Name), req.Priority, ids, now)

	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		owner, err := tx.Accounts.Get(ctx, req.OwnerID)
		if err != nil {
			return fmt.Errorf("owner account: %w", err)
		}
		if owner.Role != domain.AccountRolePayer {
			return fmt.Errorf("owner account %s is not a payer: %w", owner.ID, domain.ErrForbidden)
		}
		seen := map[string]bool{}
		for _, j := range jobs {
			if j.PayeeAccountID == "" || seen[j.PayeeAccountID] {
				continue
			}
			payee, err := tx.Accounts.Get(ctx, j.PayeeAccountID)
			if err != nil {
				return fmt.Errorf("payee account %s: %w", j.PayeeAccountID, err)
			}
			if payee.Role != domain.AccountRolePayee {
				return fmt.Errorf("account %s is not a payee: %w", payee.ID, domain.ErrInvalidRequest)
			}
			seen[j.PayeeAccountID] = true
		}
		if err := tx.Batches.Create(ctx, &batch); err != nil {
			return err
		}
		return tx.Jobs.CreateMany(ctx, jobs)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("batch_id", batchID).Str("account_id", req.OwnerID).Int("jobs", len(jobs)).Msg("batch submitted")
	return &SubmitResult{BatchID: batchID, JobIDs: ids, Status: batch.Status}, nil
}

func validateSubmit(req SubmitRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" {
		return fmt.Errorf("owner required: %w", domain.ErrInvalidRequest)
	}
	if len(req.Items) == 0 || len(req.Items) > MaxBatchSize {
		return fmt.Errorf("batch must hold 1..%d jobs: %w", MaxBatchSize, domain.ErrInvalidRequest)
	}
	for i, item := range req.Items {
		if !item.Kind.Valid() {
			return fmt.Errorf("item %d: kind %q: %w", i, item.Kind, domain.ErrInvalidRequest)
		}
		if strings.TrimSpace(item.InputRef) == "" || strings.TrimSpace(item.TargetRef) == "" {
			return fmt.Errorf("item %d: garment_ref and target_ref are required: %w", i, domain.ErrInvalidRequest)
		}
		if item.Kind == domain.JobKindHumanModel && strings.TrimSpace(item.PayeeAccountID) == "" {
			return fmt.Errorf("item %d: human_model requires payee_account_id: %w", i, domain.ErrInvalidRequest)
		}
	}
	return nil
}

// NextEligibleBatch returns the highest-priority, oldest batch with claimable
// work whose owner is below the concurrency cap, or nil when there is none.
func (s *Scheduler) NextEligibleBatch(ctx context.Context) (*domain.Batch, error) {
	repos := s.store.Repos()
	if s.cfg.MaxGlobal > 0 {
		n, err := repos.Jobs.CountProcessing(ctx, "")
		if err != nil {
			return nil, err
		}
		if n >= s.cfg.MaxGlobal {
			metrics.EmptyPolls.Inc()
			return nil, nil
		}
	}
	batches, err := repos.Batches.ListEligible(ctx, s.transitions.now(), s.cfg.ScanLimit)
	if err != nil {
		return nil, err
	}
	for i := range batches {
		b := batches[i]
		if s.cfg.MaxPerOwner > 0 {
			n, err := repos.Jobs.CountProcessing(ctx, b.OwnerID)
			if err != nil {
				return nil, err
			}
			if n >= s.cfg.MaxPerOwner {
				continue
			}
		}
		return &b, nil
	}
	metrics.EmptyPolls.Inc()
	return nil, nil
}

// ClaimNext atomically claims the next eligible member of the batch while
// honouring the concurrency caps. It returns nil when nothing can be claimed.
func (s *Scheduler) ClaimNext(ctx context.Context, batchID, workerID string) (*domain.Job, error) {
	var claimed *domain.Job
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		b, err := tx.Batches.Get(ctx, batchID)
		if err != nil {
			return err
		}
		if s.cfg.MaxGlobal > 0 {
			if err := tx.Jobs.LockOwner(ctx, ""); err != nil {
				return err
			}
			n, err := tx.Jobs.CountProcessing(ctx, "")
			if err != nil {
				return err
			}
			if n >= s.cfg.MaxGlobal {
				return nil
			}
		}
		if s.cfg.MaxPerOwner > 0 {
			if err := tx.Jobs.LockOwner(ctx, b.OwnerID); err != nil {
				return err
			}
			n, err := tx.Jobs.CountProcessing(ctx, b.OwnerID)
			if err != nil {
				return err
			}
			if n >= s.cfg.MaxPerOwner {
				return nil
			}
		}
		now := s.transitions.now()
		next, err := tx.Jobs.NextClaimable(ctx, batchID, now)
		if err != nil || next == nil {
			return err
		}
		claimed, err = s.transitions.claimTx(ctx, tx, next.ID, workerID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrClaimConflict) {
			metrics.ClaimConflicts.Inc()
			return nil, nil
		}
		return nil, err
	}
	if claimed != nil {
		s.logger.Debug().Str("job_id", claimed.ID).Str("batch_id", batchID).Str("worker_id", workerID).Msg("job claimed")
	}
	return claimed, nil
}

// RequeueExpired fails processing jobs whose lease ran out with a transient
// LEASE_EXPIRED failure so they re-enter the queue within their retry budget.
func (s *Scheduler) RequeueExpired(ctx context.Context) (int, error) {
	if s.cfg.LeaseTimeout <= 0 {
		return 0, nil
	}
	now := s.transitions.now()
	cutoff := now.Add(-s.cfg.LeaseTimeout)
	expired, err := s.store.Repos().Jobs.ListExpired(ctx, cutoff, s.cfg.ScanLimit)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, candidate := range expired {
		err := s.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
			job, err := tx.Jobs.GetForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if job.Status != domain.JobStatusProcessing || job.ClaimedAt == nil || !job.ClaimedAt.Before(cutoff) {
				return nil
			}
			failure := domain.Transient(domain.FailureLeaseExpired, fmt.Sprintf("lease held by %s expired", job.ClaimedBy))
			if _, err := s.transitions.failTx(ctx, tx, job, failure, now); err != nil {
				return err
			}
			requeued++
			return nil
		})
		if err != nil {
			return requeued, err
		}
	}
	if requeued > 0 {
		metrics.LeasesRequeued.Add(float64(requeued))
		s.logger.Warn().Int("jobs", requeued).Msg("expired leases requeued")
	}
	return requeued, nil
}

// ReconcileBatch recounts the batch from its members and, when repair is
// set, overwrites drifted counters.
func (s *Scheduler) ReconcileBatch(ctx context.Context, batchID string, repair bool) (*BatchReport, error) {
	var report BatchReport
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		b, err := tx.Batches.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		members, err := tx.Jobs.ListByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		recount := b.Clone()
		recount.Recount(members, s.transitions.now())
		report = BatchReport{
			BatchID:     batchID,
			Incremental: b.Counters(),
			Recounted:   recount.Counters(),
		}
		report.Consistent = report.Incremental == report.Recounted
		if report.Consistent || !repair {
			return nil
		}
		report.Repaired = true
		return tx.Batches.Update(ctx, &recount)
	})
	if err != nil {
		return nil, err
	}
	if !report.Consistent {
		s.logger.Warn().Str("batch_id", batchID).Bool("repaired", report.Repaired).Msg("batch counters drifted")
	}
	return &report, nil
}

// Cancel cancels a single job of the owner.
func (s *Scheduler) Cancel(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	return s.transitions.Cancel(ctx, ownerID, jobID)
}

// CancelBatch cancels all members of the owner's batch.
func (s *Scheduler) CancelBatch(ctx context.Context, ownerID, batchID string) (*domain.Batch, error) {
	return s.transitions.CancelBatch(ctx, ownerID, batchID)
}
