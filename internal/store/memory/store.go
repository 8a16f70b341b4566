// Package memory is a single-writer in-process implementation of
// domain.Store. Atomic units run under an exclusive lock against a
// snapshot of the state and are committed only when fn returns nil.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"modelshoot/internal/domain"
)

type state struct {
	accounts map[string]domain.Account
	entries  []domain.LedgerEntry
	keys     map[string]int
	jobs     map[string]domain.Job
	batches  map[string]domain.Batch
	payouts  map[string]domain.PayoutRequest
	seq      int64
}

func newState() *state {
	return &state{
		accounts: make(map[string]domain.Account),
		keys:     make(map[string]int),
		jobs:     make(map[string]domain.Job),
		batches:  make(map[string]domain.Batch),
		payouts:  make(map[string]domain.PayoutRequest),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts: make(map[string]domain.Account, len(s.accounts)),
		entries:  append([]domain.LedgerEntry(nil), s.entries...),
		keys:     make(map[string]int, len(s.keys)),
		jobs:     make(map[string]domain.Job, len(s.jobs)),
		batches:  make(map[string]domain.Batch, len(s.batches)),
		payouts:  make(map[string]domain.PayoutRequest, len(s.payouts)),
		seq:      s.seq,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	// Stored values never share mutable memory with callers, so a shallow
	// map copy is enough.
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	return c
}

// Store is the in-process store.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Repos returns repositories for committed reads and single-statement writes.
func (s *Store) Repos() domain.Repositories {
	return s.repos(&view{store: s})
}

// WithAtomic runs fn against a private snapshot while holding the writer
// lock and swaps the snapshot in when fn succeeds.
func (s *Store) WithAtomic(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, s.repos(&view{tx: work})); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) repos(v *view) domain.Repositories {
	return domain.Repositories{
		Accounts: accountRepo{v},
		Ledger:   ledgerRepo{v},
		Jobs:     jobRepo{v},
		Batches:  batchRepo{v},
		Payouts:  payoutRepo{v},
	}
}

// view is either bound to a transaction snapshot or reads the committed
// state under the store lock.
type view struct {
	store *Store
	tx    *state
}

func (v *view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.state)
}

func (v *view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	work := v.store.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	v.store.state = work
	return nil
}

type accountRepo struct{ v *view }

func (r accountRepo) Create(ctx context.Context, a *domain.Account) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.accounts[a.ID]; ok {
			return domain.ErrDuplicateOperation
		}
		st.accounts[a.ID] = *a
		return nil
	})
}

func (r accountRepo) Get(ctx context.Context, id string) (*domain.Account, error) {
	var out domain.Account
	err := r.v.read(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r accountRepo) GetForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return r.Get(ctx, id)
}

func (r accountRepo) SetBalance(ctx context.Context, id string, balance int64, at time.Time) error {
	return r.v.write(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrNotFound
		}
		a.Balance = balance
		a.UpdatedAt = at
		st.accounts[id] = a
		return nil
	})
}

type ledgerRepo struct{ v *view }

func (r ledgerRepo) Append(ctx context.Context, e *domain.LedgerEntry) error {
	return r.v.write(func(st *state) error {
		if e.IdempotencyKey != "" {
			if _, ok := st.keys[e.IdempotencyKey]; ok {
				return domain.ErrDuplicateOperation
			}
		}
		st.seq++
		e.Seq = st.seq
		st.entries = append(st.entries, *e)
		if e.IdempotencyKey != "" {
			st.keys[e.IdempotencyKey] = len(st.entries) - 1
		}
		return nil
	})
}

func (r ledgerRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	var out domain.LedgerEntry
	err := r.v.read(func(st *state) error {
		idx, ok := st.keys[key]
		if !ok {
			return domain.ErrNotFound
		}
		out = st.entries[idx]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r ledgerRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.v.read(func(st *state) error {
		for _, e := range st.entries {
			if e.AccountID == accountID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

type jobRepo struct{ v *view }

func (r jobRepo) CreateMany(ctx context.Context, jobs []domain.Job) error {
	return r.v.write(func(st *state) error {
		for _, j := range jobs {
			if _, ok := st.jobs[j.ID]; ok {
				return domain.ErrDuplicateOperation
			}
		}
		for _, j := range jobs {
			st.jobs[j.ID] = j.Clone()
		}
		return nil
	})
}

func (r jobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	var out domain.Job
	err := r.v.read(func(st *state) error {
		j, ok := st.jobs[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = j.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r jobRepo) GetForUpdate(ctx context.Context, id string) (*domain.Job, error) {
	return r.Get(ctx, id)
}

func (r jobRepo) Update(ctx context.Context, job *domain.Job) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.jobs[job.ID]; !ok {
			return domain.ErrNotFound
		}
		st.jobs[job.ID] = job.Clone()
		return nil
	})
}

func (r jobRepo) ClaimPending(ctx context.Context, id, workerID string, now time.Time) (*domain.Job, error) {
	var out domain.Job
	err := r.v.write(func(st *state) error {
		j, ok := st.jobs[id]
		if !ok {
			return domain.ErrNotFound
		}
		j = j.Clone()
		if err := j.Claim(workerID, now); err != nil {
			return err
		}
		st.jobs[id] = j
		out = j.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r jobRepo) NextClaimable(ctx context.Context, batchID string, now time.Time) (*domain.Job, error) {
	var out *domain.Job
	err := r.v.read(func(st *state) error {
		b, ok := st.batches[batchID]
		if !ok {
			return domain.ErrNotFound
		}
		for _, id := range b.JobIDs {
			j, ok := st.jobs[id]
			if !ok || j.Status != domain.JobStatusPending || j.NextAttemptAt.After(now) {
				continue
			}
			c := j.Clone()
			out = &c
			return nil
		}
		return nil
	})
	return out, err
}

func (r jobRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.Job, error) {
	var out []domain.Job
	err := r.v.read(func(st *state) error {
		b, ok := st.batches[batchID]
		if !ok {
			return domain.ErrNotFound
		}
		for _, id := range b.JobIDs {
			if j, ok := st.jobs[id]; ok {
				out = append(out, j.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (r jobRepo) CountProcessing(ctx context.Context, ownerID string) (int, error) {
	n := 0
	err := r.v.read(func(st *state) error {
		for _, j := range st.jobs {
			if j.Status != domain.JobStatusProcessing {
				continue
			}
			if ownerID == "" || j.OwnerAccountID == ownerID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r jobRepo) ListExpired(ctx context.Context, claimedBefore time.Time, limit int) ([]domain.Job, error) {
	var out []domain.Job
	err := r.v.read(func(st *state) error {
		for _, j := range st.jobs {
			if j.Status == domain.JobStatusProcessing && j.ClaimedAt != nil && j.ClaimedAt.Before(claimedBefore) {
				out = append(out, j.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool { return out[i].ClaimedAt.Before(*out[k].ClaimedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// LockOwner is a no-op: atomic units already run one at a time.
func (r jobRepo) LockOwner(ctx context.Context, ownerID string) error {
	return nil
}

type batchRepo struct{ v *view }

func (r batchRepo) Create(ctx context.Context, b *domain.Batch) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.batches[b.ID]; ok {
			return domain.ErrDuplicateOperation
		}
		st.batches[b.ID] = b.Clone()
		return nil
	})
}

func (r batchRepo) Get(ctx context.Context, id string) (*domain.Batch, error) {
	var out domain.Batch
	err := r.v.read(func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r batchRepo) GetForUpdate(ctx context.Context, id string) (*domain.Batch, error) {
	return r.Get(ctx, id)
}

func (r batchRepo) Update(ctx context.Context, b *domain.Batch) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.batches[b.ID]; !ok {
			return domain.ErrNotFound
		}
		st.batches[b.ID] = b.Clone()
		return nil
	})
}

func (r batchRepo) ListEligible(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error) {
	var out []domain.Batch
	err := r.v.read(func(st *state) error {
		for _, b := range st.batches {
			if b.Pending == 0 {
				continue
			}
			for _, id := range b.JobIDs {
				j := st.jobs[id]
				if j.Status == domain.JobStatusPending && !j.NextAttemptAt.After(now) {
					out = append(out, b.Clone())
					break
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool {
		if out[i].Priority != out[k].Priority {
			return out[i].Priority > out[k].Priority
		}
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type payoutRepo struct{ v *view }

func (r payoutRepo) Create(ctx context.Context, p *domain.PayoutRequest) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.payouts[p.ID]; ok {
			return domain.ErrDuplicateOperation
		}
		st.payouts[p.ID] = p.Clone()
		return nil
	})
}

func (r payoutRepo) Get(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	var out domain.PayoutRequest
	err := r.v.read(func(st *state) error {
		p, ok := st.payouts[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r payoutRepo) GetForUpdate(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	return r.Get(ctx, id)
}

func (r payoutRepo) Update(ctx context.Context, p *domain.PayoutRequest) error {
	return r.v.write(func(st *state) error {
		prev, ok := st.payouts[p.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if len(p.History) < len(prev.History) {
			return domain.ErrInvalidTransition
		}
		st.payouts[p.ID] = p.Clone()
		return nil
	})
}

func (r payoutRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.PayoutRequest, error) {
	var out []domain.PayoutRequest
	err := r.v.read(func(st *state) error {
		for _, p := range st.payouts {
			if p.AccountID == accountID {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, err
}

func (r payoutRepo) SumReserved(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := r.v.read(func(st *state) error {
		for _, p := range st.payouts {
			if p.AccountID == accountID && p.Status.Reserving() {
				sum += p.Amount
			}
		}
		return nil
	})
	return sum, err
}

var _ domain.Store = (*Store)(nil)
