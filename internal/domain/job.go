package domain

import (
	"fmt"
	"time"
)

// JobKind enumerates the supported render targets.
type JobKind string

const (
	JobKindAvatar     JobKind = "avatar"
	JobKindHumanModel JobKind = "human_model"
)

// Valid reports whether the kind is known.
func (k JobKind) Valid() bool {
	return k == JobKindAvatar || k == JobKindHumanModel
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DefaultMaxRetries caps transient retries per job.
const DefaultMaxRetries = 3

// Job is one render of a garment onto an avatar or human model.
type Job struct {
	ID              string
	OwnerAccountID  string
	BatchID         string
	Position        int
	Kind            JobKind
	InputRef        string
	TargetRef       string
	PayeeAccountID  string
	OutputRef       string
	Status          JobStatus
	RetryCount      int
	MaxRetries      int
	FailureCode     FailureCode
	FailureReason   string
	CreditCost      int64
	RoyaltyAmount   int64
	Priority        int
	NextAttemptAt   time.Time
	ClaimedBy       string
	ClaimedAt       *time.Time
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastRetryAt     *time.Time
	CompletedAt     *time.Time
}

// Clone returns a copy that shares no pointers with j.
func (j Job) Clone() Job {
	j.ClaimedAt = cloneTime(j.ClaimedAt)
	j.LastRetryAt = cloneTime(j.LastRetryAt)
	j.CompletedAt = cloneTime(j.CompletedAt)
	return j
}

// Claim moves a pending job to processing on behalf of workerID.
func (j *Job) Claim(workerID string, now time.Time) error {
	if j.Status != JobStatusPending {
		return ErrClaimConflict
	}
	j.Status = JobStatusProcessing
	j.ClaimedBy = workerID
	j.ClaimedAt = &now
	j.UpdatedAt = now
	return nil
}

// HeldBy returns ErrClaimConflict when a processing job's lease belongs to
// another worker, which happens after the lease expired and was re-claimed.
func (j *Job) HeldBy(workerID string) error {
	if j.Status == JobStatusProcessing && j.ClaimedBy != workerID {
		return fmt.Errorf("job %s is held by %q, not %q: %w", j.ID, j.ClaimedBy, workerID, ErrClaimConflict)
	}
	return nil
}

// RecordOutput stores the durable output locator while the job is still processing.
func (j *Job) RecordOutput(ref string, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("record output on %s job: %w", j.Status, ErrInvalidTransition)
	}
	if ref == "" {
		return fmt.Errorf("record output: empty reference: %w", ErrInvalidRequest)
	}
	j.OutputRef = ref
	j.UpdatedAt = now
	return nil
}

// Complete marks a processing job completed. The output must already be recorded.
func (j *Job) Complete(now time.Time) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("complete %s job: %w", j.Status, ErrInvalidTransition)
	}
	if j.OutputRef == "" {
		return fmt.Errorf("complete job without output: %w", ErrInvalidTransition)
	}
	j.Status = JobStatusCompleted
	j.FailureCode = ""
	j.FailureReason = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail applies a failure to a processing job. Transient failures consume one
// retry and requeue the job until the retry cap is reached; permanent
// failures are terminal immediately.
func (j *Job) Fail(f Failure, now time.Time, backoff BackoffPolicy) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("fail %s job: %w", j.Status, ErrInvalidTransition)
	}
	j.FailureCode = f.Code
	j.FailureReason = f.Reason
	j.OutputRef = ""
	j.ClaimedBy = ""
	j.ClaimedAt = nil
	j.UpdatedAt = now

	if f.Class != FailureTransient {
		j.terminate(now)
		return nil
	}

	j.RetryCount++
	j.LastRetryAt = &now
	if j.RetryCount < j.maxRetries() && !j.CancelRequested {
		j.Status = JobStatusPending
		j.NextAttemptAt = now.Add(backoff.Delay(j.RetryCount))
		return nil
	}
	if j.CancelRequested {
		j.FailureCode = FailureCancelled
		j.FailureReason = "cancelled while processing"
	}
	j.terminate(now)
	return nil
}

// ForceFail terminates a processing job without consuming retries. Used when
// the completion side effects are rejected.
func (j *Job) ForceFail(code FailureCode, reason string, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("force fail %s job: %w", j.Status, ErrInvalidTransition)
	}
	j.FailureCode = code
	j.FailureReason = reason
	j.OutputRef = ""
	j.UpdatedAt = now
	j.terminate(now)
	return nil
}

// Cancel fails a pending job with FailureCancelled. A processing job only
// records the request and finishes on its own. Terminal jobs are untouched.
// The returned flag reports whether the status changed.
func (j *Job) Cancel(now time.Time) bool {
	switch j.Status {
	case JobStatusPending:
		j.FailureCode = FailureCancelled
		j.FailureReason = "cancelled by owner"
		j.UpdatedAt = now
		j.terminate(now)
		return true
	case JobStatusProcessing:
		if !j.CancelRequested {
			j.CancelRequested = true
			j.UpdatedAt = now
		}
	}
	return false
}

func (j *Job) terminate(now time.Time) {
	j.Status = JobStatusFailed
	j.CompletedAt = &now
}

func (j *Job) maxRetries() int {
	if j.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return j.MaxRetries
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
