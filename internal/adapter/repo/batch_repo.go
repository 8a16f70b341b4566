package repo

import (
	"context"
	"time"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/sqlinline"
)

// BatchRepositoryPG implements domain.BatchRepository.
type BatchRepositoryPG struct {
	sql infra.SQLExecutor
}

// Create inserts a batch with its member ids.
func (r *BatchRepositoryPG) Create(ctx context.Context, b *domain.Batch) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertBatch,
		b.ID,
		b.OwnerID,
		b.Name,
		b.Priority,
		b.JobIDs,
		b.Total,
		b.Pending,
		b.Processing,
		b.Completed,
		b.Failed,
		string(b.Status),
		b.CreatedAt,
		b.UpdatedAt,
		b.StartedAt,
		b.CompletedAt,
	)
	if infra.IsUniqueViolation(err, "") {
		return domain.ErrDuplicateOperation
	}
	return err
}

// Get fetches a batch by id.
func (r *BatchRepositoryPG) Get(ctx context.Context, id string) (*domain.Batch, error) {
	b, err := scanBatch(r.sql.QueryRow(ctx, sqlinline.QSelectBatch, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// GetForUpdate fetches and row-locks a batch.
func (r *BatchRepositoryPG) GetForUpdate(ctx context.Context, id string) (*domain.Batch, error) {
	b, err := scanBatch(r.sql.QueryRow(ctx, sqlinline.QSelectBatchForUpdate, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// Update writes counters, status and timestamps.
func (r *BatchRepositoryPG) Update(ctx context.Context, b *domain.Batch) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateBatch,
		b.ID,
		b.Pending,
		b.Processing,
		b.Completed,
		b.Failed,
		string(b.Status),
		b.UpdatedAt,
		b.StartedAt,
		b.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListEligible returns batches with due pending work in scheduling order.
func (r *BatchRepositoryPG) ListEligible(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectEligibleBatches, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBatch(row rowScanner) (*domain.Batch, error) {
	var b domain.Batch
	var status string
	if err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&b.Priority,
		&b.JobIDs,
		&b.Total,
		&b.Pending,
		&b.Processing,
		&b.Completed,
		&b.Failed,
		&status,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.StartedAt,
		&b.CompletedAt,
	); err != nil {
		return nil, err
	}
	b.Status = domain.BatchStatus(status)
	return &b, nil
}
