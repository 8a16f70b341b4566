package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelshoot/internal/domain"
)

func seedAccount(t *testing.T, s *Store, id string, balance int64) {
	t.Helper()
	require.NoError(t, s.Repos().Accounts.Create(context.Background(), &domain.Account{
		ID: id, UserID: "user-" + id, Role: domain.AccountRolePayer, Balance: balance,
	}))
}

func TestWithAtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "a1", 10)

	boom := errors.New("boom")
	err := s.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		require.NoError(t, tx.Accounts.SetBalance(ctx, "a1", 3, time.Now()))
		require.NoError(t, tx.Ledger.Append(ctx, &domain.LedgerEntry{ID: "e1", AccountID: "a1", Amount: -7, IdempotencyKey: "k1"}))
		got, err := tx.Accounts.Get(ctx, "a1")
		require.NoError(t, err)
		assert.EqualValues(t, 3, got.Balance)
		return boom
	})
	require.ErrorIs(t, err, boom)

	acct, err := s.Repos().Accounts.Get(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, acct.Balance)
	_, err = s.Repos().Ledger.GetByIdempotencyKey(ctx, "k1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerAppendAssignsSeqAndRejectsReusedKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	repos := s.Repos()

	first := &domain.LedgerEntry{ID: "e1", AccountID: "a1", Amount: 5, IdempotencyKey: "purchase:p1"}
	second := &domain.LedgerEntry{ID: "e2", AccountID: "a1", Amount: -1}
	require.NoError(t, repos.Ledger.Append(ctx, first))
	require.NoError(t, repos.Ledger.Append(ctx, second))
	assert.Less(t, first.Seq, second.Seq)

	err := repos.Ledger.Append(ctx, &domain.LedgerEntry{ID: "e3", AccountID: "a1", Amount: 5, IdempotencyKey: "purchase:p1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateOperation)

	entries, err := repos.Ledger.ListByAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClaimPendingIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	require.NoError(t, s.Repos().Jobs.CreateMany(ctx, []domain.Job{{
		ID: "j1", BatchID: "b1", OwnerAccountID: "a1", Kind: domain.JobKindAvatar,
		Status: domain.JobStatusPending, CreatedAt: now, UpdatedAt: now, NextAttemptAt: now,
	}}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for _, worker := range []string{"w1", "w2", "w3", "w4"} {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			job, err := s.Repos().Jobs.ClaimPending(ctx, "j1", worker, now)
			if err != nil {
				return
			}
			mu.Lock()
			winners = append(winners, job.ClaimedBy)
			mu.Unlock()
		}(worker)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	stored, err := s.Repos().Jobs.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, stored.Status)
	assert.Equal(t, winners[0], stored.ClaimedBy)

	_, err = s.Repos().Jobs.ClaimPending(ctx, "j1", "late", now)
	assert.ErrorIs(t, err, domain.ErrClaimConflict)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "a1", 10)

	acct, err := s.Repos().Accounts.Get(ctx, "a1")
	require.NoError(t, err)
	acct.Balance = 999

	again, err := s.Repos().Accounts.Get(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, again.Balance)
}

func TestSumReservedCountsOpenPayoutsOnly(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	repos := s.Repos()
	for _, p := range []domain.PayoutRequest{
		{ID: "p1", AccountID: "a1", Amount: 100, Status: domain.PayoutStatusPending, CreatedAt: now},
		{ID: "p2", AccountID: "a1", Amount: 50, Status: domain.PayoutStatusApproved, CreatedAt: now.Add(time.Second)},
		{ID: "p3", AccountID: "a1", Amount: 70, Status: domain.PayoutStatusRejected, CreatedAt: now.Add(2 * time.Second)},
		{ID: "p4", AccountID: "a2", Amount: 30, Status: domain.PayoutStatusPending, CreatedAt: now},
	} {
		p := p
		require.NoError(t, repos.Payouts.Create(ctx, &p))
	}

	sum, err := repos.Payouts.SumReserved(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 150, sum)

	list, err := repos.Payouts.ListByAccount(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "p3", list[0].ID)
}

func TestWithAtomicHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().WithAtomic(ctx, func(context.Context, domain.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
