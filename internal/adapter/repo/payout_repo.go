package repo

import (
	"context"
	"encoding/json"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/sqlinline"
)

// PayoutRepositoryPG implements domain.PayoutRepository. History rows live
// in payout_history keyed by position.
type PayoutRepositoryPG struct {
	sql infra.SQLExecutor
}

// Create inserts the request and its initial history.
func (r *PayoutRepositoryPG) Create(ctx context.Context, p *domain.PayoutRequest) error {
	details, err := marshalDetails(p.AccountDetails)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertPayoutRequest,
		p.ID,
		p.AccountID,
		p.Amount,
		p.Fee,
		p.NetAmount,
		p.Currency,
		string(p.Method),
		details,
		string(p.Status),
		p.TransactionRef,
		p.Notes,
		p.FailureReason,
		p.CreatedAt,
		p.UpdatedAt,
		p.ProcessedAt,
	)
	if err != nil {
		if infra.IsUniqueViolation(err, "") {
			return domain.ErrDuplicateOperation
		}
		return err
	}
	return r.appendHistory(ctx, p.ID, 0, p.History)
}

// Get fetches a request with its history.
func (r *PayoutRepositoryPG) Get(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	return r.load(ctx, sqlinline.QSelectPayoutRequest, id)
}

// GetForUpdate fetches and row-locks a request.
func (r *PayoutRepositoryPG) GetForUpdate(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	return r.load(ctx, sqlinline.QSelectPayoutRequestForUpdate, id)
}

// Update writes status fields and appends unseen history entries.
func (r *PayoutRepositoryPG) Update(ctx context.Context, p *domain.PayoutRequest) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdatePayoutRequest,
		p.ID,
		string(p.Status),
		p.TransactionRef,
		p.Notes,
		p.FailureReason,
		p.UpdatedAt,
		p.ProcessedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	var stored int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountPayoutHistory, p.ID).Scan(&stored); err != nil {
		return err
	}
	if len(p.History) < stored {
		return domain.ErrInvalidTransition
	}
	return r.appendHistory(ctx, p.ID, stored, p.History[stored:])
}

// ListByAccount returns the payee's requests, newest first.
func (r *PayoutRepositoryPG) ListByAccount(ctx context.Context, accountID string) ([]domain.PayoutRequest, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectPayoutRequestsByAccount, accountID)
	if err != nil {
		return nil, err
	}
	var out []domain.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].History, err = r.history(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SumReserved totals the amounts of the payee's open requests.
func (r *PayoutRepositoryPG) SumReserved(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	if err := r.sql.QueryRow(ctx, sqlinline.QSumReservedPayouts, accountID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *PayoutRepositoryPG) load(ctx context.Context, query, id string) (*domain.PayoutRequest, error) {
	p, err := scanPayout(r.sql.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	if p.History, err = r.history(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PayoutRepositoryPG) history(ctx context.Context, id string) ([]domain.PayoutHistoryEntry, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectPayoutHistory, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PayoutHistoryEntry
	for rows.Next() {
		var h domain.PayoutHistoryEntry
		var from, to string
		if err := rows.Scan(&from, &to, &h.ActorID, &h.Reason, &h.Country, &h.At); err != nil {
			return nil, err
		}
		h.From = domain.PayoutStatus(from)
		h.To = domain.PayoutStatus(to)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PayoutRepositoryPG) appendHistory(ctx context.Context, id string, offset int, entries []domain.PayoutHistoryEntry) error {
	for i, h := range entries {
		if _, err := r.sql.Exec(ctx, sqlinline.QInsertPayoutHistory,
			id,
			offset+i,
			string(h.From),
			string(h.To),
			h.ActorID,
			h.Reason,
			h.Country,
			h.At,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanPayout(row rowScanner) (*domain.PayoutRequest, error) {
	var (
		p       domain.PayoutRequest
		method  string
		status  string
		details []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.Amount,
		&p.Fee,
		&p.NetAmount,
		&p.Currency,
		&method,
		&details,
		&status,
		&p.TransactionRef,
		&p.Notes,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ProcessedAt,
	); err != nil {
		return nil, err
	}
	p.Method = domain.PayoutMethod(method)
	p.Status = domain.PayoutStatus(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &p.AccountDetails); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func marshalDetails(details map[string]string) ([]byte, error) {
	if details == nil {
		details = map[string]string{}
	}
	return json.Marshal(details)
}
