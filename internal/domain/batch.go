package domain

import (
	"fmt"
	"time"
)

// BatchStatus is derived from the member counters.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// Batch groups jobs submitted together. Counters always sum to Total.
type Batch struct {
	ID          string
	OwnerID     string
	Name        string
	Priority    int
	JobIDs      []string
	Total       int
	Pending     int
	Processing  int
	Completed   int
	Failed      int
	Status      BatchStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// BatchCounters is the counter snapshot used for reconciliation.
type BatchCounters struct {
	Total      int         `json:"total"`
	Pending    int         `json:"pending"`
	Processing int         `json:"processing"`
	Completed  int         `json:"completed"`
	Failed     int         `json:"failed"`
	Status     BatchStatus `json:"status"`
}

// NewBatch creates a pending batch over the given member ids.
func NewBatch(id, ownerID, name string, priority int, jobIDs []string, now time.Time) Batch {
	ids := append([]string(nil), jobIDs...)
	b := Batch{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Priority:  priority,
		JobIDs:    ids,
		Total:     len(ids),
		Pending:   len(ids),
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.Status = b.derive()
	return b
}

// Clone returns a deep copy.
func (b Batch) Clone() Batch {
	b.JobIDs = append([]string(nil), b.JobIDs...)
	b.StartedAt = cloneTime(b.StartedAt)
	b.CompletedAt = cloneTime(b.CompletedAt)
	return b
}

// Counters returns the current counter snapshot.
func (b Batch) Counters() BatchCounters {
	return BatchCounters{
		Total:      b.Total,
		Pending:    b.Pending,
		Processing: b.Processing,
		Completed:  b.Completed,
		Failed:     b.Failed,
		Status:     b.Status,
	}
}

// Consistent reports whether the counters cover exactly Total members.
func (b Batch) Consistent() bool {
	if b.Pending < 0 || b.Processing < 0 || b.Completed < 0 || b.Failed < 0 {
		return false
	}
	return b.Pending+b.Processing+b.Completed+b.Failed == b.Total
}

// ApplyTransition moves one member from one status counter to another and
// re-derives the overall status.
func (b *Batch) ApplyTransition(from, to JobStatus, now time.Time) error {
	if from == to {
		return nil
	}
	src := b.counter(from)
	dst := b.counter(to)
	if src == nil || dst == nil {
		return fmt.Errorf("batch %s: transition %s -> %s: %w", b.ID, from, to, ErrInvalidTransition)
	}
	if *src <= 0 {
		return fmt.Errorf("batch %s: no %s member to move: %w", b.ID, from, ErrBatchInconsistent)
	}
	*src--
	*dst++
	if to == JobStatusProcessing && b.StartedAt == nil {
		b.StartedAt = &now
	}
	b.settle(now)
	return nil
}

// Recount recomputes the counters from the member jobs.
func (b *Batch) Recount(members []Job, now time.Time) {
	b.Total = len(members)
	b.Pending, b.Processing, b.Completed, b.Failed = 0, 0, 0, 0
	for _, m := range members {
		if c := b.counter(m.Status); c != nil {
			*c++
		}
		if m.Status != JobStatusPending && m.ClaimedAt != nil && b.StartedAt == nil {
			t := *m.ClaimedAt
			b.StartedAt = &t
		}
	}
	b.settle(now)
}

func (b *Batch) settle(now time.Time) {
	b.Status = b.derive()
	b.UpdatedAt = now
	switch b.Status {
	case BatchStatusCompleted, BatchStatusFailed:
		if b.CompletedAt == nil {
			b.CompletedAt = &now
		}
	default:
		b.CompletedAt = nil
	}
}

func (b Batch) derive() BatchStatus {
	if b.Pending+b.Processing > 0 {
		if b.StartedAt == nil {
			return BatchStatusPending
		}
		return BatchStatusProcessing
	}
	if b.Completed > 0 {
		return BatchStatusCompleted
	}
	return BatchStatusFailed
}

func (b *Batch) counter(s JobStatus) *int {
	switch s {
	case JobStatusPending:
		return &b.Pending
	case JobStatusProcessing:
		return &b.Processing
	case JobStatusCompleted:
		return &b.Completed
	case JobStatusFailed:
		return &b.Failed
	}
	return nil
}
