package payout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/ledger"
	"modelshoot/internal/store/memory"
)

type payoutFixture struct {
	svc    *Service
	ledger *ledger.Service
	payee  *domain.Account
}

func newPayoutFixture(t *testing.T, earned int64) *payoutFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	led := ledger.NewService(store, infra.NopLogger())
	fee, err := NewFeePolicy("2.5", 0)
	require.NoError(t, err)
	svc := NewService(store, led, Config{MinAmount: 100, Fee: fee}, infra.NopLogger())

	payee, err := led.OpenAccount(ctx, "model", domain.AccountRolePayee)
	require.NoError(t, err)
	if earned > 0 {
		_, err = led.Apply(ctx, ledger.ApplyRequest{
			AccountID: payee.ID,
			Amount:    earned,
			Category:  domain.CategoryRoyaltyCredit,
			JobID:     "job-1",
		})
		require.NoError(t, err)
	}
	return &payoutFixture{svc: svc, ledger: led, payee: payee}
}

func (f *payoutFixture) submit(t *testing.T, amount int64) *domain.PayoutRequest {
	t.Helper()
	p, err := f.svc.Submit(context.Background(), SubmitRequest{
		AccountID:      f.payee.ID,
		Amount:         amount,
		Method:         domain.PayoutMethodBankTransfer,
		AccountDetails: map[string]string{"iban": "DE00"},
		Country:        "ID",
	})
	require.NoError(t, err)
	return p
}

func (f *payoutFixture) admin(t *testing.T, id string, action Action, opts ...func(*ActionRequest)) (*domain.PayoutRequest, error) {
	t.Helper()
	req := ActionRequest{PayoutID: id, ActorID: "admin-1", ActorIsAdmin: true, Action: action}
	for _, o := range opts {
		o(&req)
	}
	return f.svc.Act(context.Background(), req)
}

func TestSubmitReservesAvailableBalance(t *testing.T) {
	f := newPayoutFixture(t, 1000)
	ctx := context.Background()

	p := f.submit(t, 600)
	assert.Equal(t, domain.PayoutStatusPending, p.Status)
	assert.Equal(t, int64(15), p.Fee)
	assert.Equal(t, int64(585), p.NetAmount)
	require.Len(t, p.History, 1)
	assert.Equal(t, "ID", p.History[0].Country)

	balance, available, err := f.ledger.AvailableBalance(ctx, f.payee.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, int64(400), available)

	_, err = f.svc.Submit(ctx, SubmitRequest{AccountID: f.payee.ID, Amount: 500, Method: domain.PayoutMethodWise})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestSubmitValidation(t *testing.T) {
	f := newPayoutFixture(t, 1000)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitRequest{AccountID: f.payee.ID, Amount: 50, Method: domain.PayoutMethodPayPal})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Submit(ctx, SubmitRequest{AccountID: f.payee.ID, Amount: 200, Method: "cash"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	payer, err := f.ledger.OpenAccount(ctx, "brand", domain.AccountRolePayer)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, SubmitRequest{AccountID: payer.ID, Amount: 200, Method: domain.PayoutMethodPayPal})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCompleteDebitsLedgerOnce(t *testing.T) {
	f := newPayoutFixture(t, 1000)
	ctx := context.Background()
	p := f.submit(t, 600)

	_, err := f.admin(t, p.ID, ActionReview)
	require.NoError(t, err)
	_, err = f.admin(t, p.ID, ActionApprove)
	require.NoError(t, err)

	_, err = f.admin(t, p.ID, ActionComplete)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest, "transaction reference is required")

	done, err := f.admin(t, p.ID, ActionComplete, func(r *ActionRequest) { r.TransactionRef = "tx-42" })
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, done.Status)
	assert.Equal(t, "tx-42", done.TransactionRef)
	require.NotNil(t, done.ProcessedAt)

	var steps []domain.PayoutStatus
	for _, h := range done.History {
		steps = append(steps, h.To)
	}
	assert.Equal(t, []domain.PayoutStatus{
		domain.PayoutStatusPending,
		domain.PayoutStatusUnderReview,
		domain.PayoutStatusApproved,
		domain.PayoutStatusProcessing,
		domain.PayoutStatusCompleted,
	}, steps)

	balance, available, err := f.ledger.AvailableBalance(ctx, f.payee.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
	assert.Equal(t, int64(400), available)

	_, err = f.admin(t, p.ID, ActionComplete, func(r *ActionRequest) { r.TransactionRef = "tx-42" })
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRejectReleasesReservation(t *testing.T) {
	f := newPayoutFixture(t, 1000)
	ctx := context.Background()
	p := f.submit(t, 600)

	rejected, err := f.admin(t, p.ID, ActionReject, func(r *ActionRequest) { r.Reason = " details mismatch " })
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusRejected, rejected.Status)
	assert.Equal(t, "details mismatch", rejected.FailureReason)

	_, available, err := f.ledger.AvailableBalance(ctx, f.payee.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), available)

	second := f.submit(t, 300)
	rejected, err = f.admin(t, second.ID, ActionReject)
	require.NoError(t, err, "a failure reason is optional")
	assert.Equal(t, domain.PayoutStatusRejected, rejected.Status)
	assert.Empty(t, rejected.FailureReason)
}

func TestConcurrentSubmitsNeverOverReserve(t *testing.T) {
	f := newPayoutFixture(t, 1000)
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		refused atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, SubmitRequest{AccountID: f.payee.ID, Amount: 600, Method: domain.PayoutMethodPayPal})
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, domain.ErrInsufficientBalance):
				refused.Add(1)
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
	assert.Equal(t, int32(n-1), refused.Load())

	requests, err := f.svc.List(ctx, f.payee.ID)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
	_, available, err := f.ledger.AvailableBalance(ctx, f.payee.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), available)
}

func TestFailedPayoutKeepsBalance(t *testing.T) {
	f := newPayoutFixture(t, 1000)
	ctx := context.Background()
	p := f.submit(t, 300)
	for _, a := range []Action{ActionReview, ActionApprove, ActionProcess} {
		_, err := f.admin(t, p.ID, a)
		require.NoError(t, err)
	}
	failed, err := f.admin(t, p.ID, ActionFail, func(r *ActionRequest) { r.Reason = "bank bounced" })
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, failed.Status)

	acct, err := f.ledger.Account(ctx, f.payee.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acct.Balance)
}

func TestCancelByOwnerOnlyWhilePending(t *testing.T) {
	f := newPayoutFixture(t, 1000)
	ctx := context.Background()
	p := f.submit(t, 300)

	_, err := f.svc.Act(ctx, ActionRequest{PayoutID: p.ID, ActorID: "someone-else", Action: ActionCancel})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Act(ctx, ActionRequest{PayoutID: p.ID, ActorID: f.payee.ID, Action: ActionApprove})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := f.svc.Act(ctx, ActionRequest{PayoutID: p.ID, ActorID: f.payee.ID, Action: ActionCancel})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCancelled, cancelled.Status)

	second := f.submit(t, 300)
	_, err = f.admin(t, second.ID, ActionReview)
	require.NoError(t, err)
	_, err = f.svc.Act(ctx, ActionRequest{PayoutID: second.ID, ActorID: f.payee.ID, Action: ActionCancel})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}
