package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/ledger"
	"modelshoot/internal/providers/render"
	"modelshoot/internal/queue"
	"modelshoot/internal/storage"
	"modelshoot/internal/store/memory"
)

// scriptedRenderer returns queued errors per input before falling back to a
// synthetic render. A hook registered for an input runs first.
type scriptedRenderer struct {
	mu     sync.Mutex
	errs   map[string][]error
	hooks  map[string]func(ctx context.Context) error
	calls  map[string]int
	render render.Synthetic
}

func newScriptedRenderer() *scriptedRenderer {
	return &scriptedRenderer{errs: map[string][]error{}, hooks: map[string]func(context.Context) error{}, calls: map[string]int{}}
}

func (r *scriptedRenderer) failWith(input string, errs ...error) {
	r.errs[input] = append(r.errs[input], errs...)
}

func (r *scriptedRenderer) onRender(input string, hook func(ctx context.Context) error) {
	r.hooks[input] = hook
}

func (r *scriptedRenderer) Render(ctx context.Context, req render.Request) (*render.Result, error) {
	r.mu.Lock()
	r.calls[req.InputRef]++
	var err error
	if q := r.errs[req.InputRef]; len(q) > 0 {
		err, r.errs[req.InputRef] = q[0], q[1:]
	}
	hook := r.hooks[req.InputRef]
	r.mu.Unlock()
	if err == nil && hook != nil {
		err = hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	return r.render.Render(ctx, req)
}

var errClaimStore = errors.New("transient db error")

// flakyClaims fails the next claim lookup once armed.
type flakyClaims struct {
	*memory.Store
	armed atomic.Bool
	fired chan struct{}
}

func newFlakyClaims() *flakyClaims {
	return &flakyClaims{Store: memory.New(), fired: make(chan struct{})}
}

func (s *flakyClaims) WithAtomic(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	return s.Store.WithAtomic(ctx, func(ctx context.Context, tx domain.Repositories) error {
		tx.Jobs = flakyJobs{JobRepository: tx.Jobs, owner: s}
		return fn(ctx, tx)
	})
}

type flakyJobs struct {
	domain.JobRepository
	owner *flakyClaims
}

func (j flakyJobs) NextClaimable(ctx context.Context, batchID string, now time.Time) (*domain.Job, error) {
	if j.owner.armed.CompareAndSwap(true, false) {
		close(j.owner.fired)
		return nil, errClaimStore
	}
	return j.JobRepository.NextClaimable(ctx, batchID, now)
}

type harness struct {
	ledger    *ledger.Service
	scheduler *queue.Scheduler
	processor *Processor
	renderer  *scriptedRenderer
	store     domain.Store
	payer     *domain.Account
	payee     *domain.Account
}

func newHarness(t *testing.T, balance int64) *harness {
	return newHarnessOn(t, memory.New(), balance)
}

func newHarnessOn(t *testing.T, store domain.Store, balance int64) *harness {
	t.Helper()
	ctx := context.Background()
	led := ledger.NewService(store, infra.NopLogger())
	transitions := queue.NewTransitions(store, led, domain.BackoffPolicy{}, infra.NopLogger(), nil)
	scheduler := queue.NewScheduler(store, transitions, queue.Config{MaxPerOwner: 4, MaxRetries: 3},
		queue.Pricing{AvatarCost: 1, HumanModelCost: 1, RoyaltyPerGeneration: 50}, infra.NopLogger())
	files, err := storage.NewFileStore(t.TempDir(), "http://cdn.test/static")
	require.NoError(t, err)
	renderer := newScriptedRenderer()
	proc := NewProcessor(scheduler, renderer, files, Config{
		WorkerID:      "test-worker",
		Concurrency:   2,
		RenderTimeout: 5 * time.Second,
		PollInterval:  10 * time.Millisecond,
	}, infra.NopLogger())

	payer, err := led.OpenAccount(ctx, "brand", domain.AccountRolePayer)
	require.NoError(t, err)
	if balance > 0 {
		_, err = led.RecordPurchase(ctx, payer.ID, balance, "seed", "test")
		require.NoError(t, err)
	}
	payee, err := led.OpenAccount(ctx, "model", domain.AccountRolePayee)
	require.NoError(t, err)
	return &harness{ledger: led, scheduler: scheduler, processor: proc, renderer: renderer, store: store, payer: payer, payee: payee}
}

func (h *harness) submit(t *testing.T, inputs ...string) *queue.SubmitResult {
	t.Helper()
	items := make([]queue.SubmitItem, len(inputs))
	for i, in := range inputs {
		items[i] = queue.SubmitItem{Kind: domain.JobKindAvatar, InputRef: in, TargetRef: "avatar-1"}
	}
	return h.submitItems(t, items...)
}

func (h *harness) submitItems(t *testing.T, items ...queue.SubmitItem) *queue.SubmitResult {
	t.Helper()
	res, err := h.scheduler.Submit(context.Background(), queue.SubmitRequest{OwnerID: h.payer.ID, Items: items})
	require.NoError(t, err)
	return res
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 10; i++ {
		did, err := h.processor.ProcessNextBatch(context.Background())
		require.NoError(t, err)
		if !did {
			return
		}
	}
}

func (h *harness) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	j, err := h.store.Repos().Jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return j
}

func TestProcessBatchChargesOnlySuccessfulJobs(t *testing.T) {
	h := newHarness(t, 5)
	h.renderer.failWith("garments/torn.png", &render.Error{Class: render.ClassInvalid, Code: "bad_image", Message: "unreadable"})
	res := h.submitItems(t,
		queue.SubmitItem{Kind: domain.JobKindAvatar, InputRef: "garments/a.png", TargetRef: "avatar-1"},
		queue.SubmitItem{Kind: domain.JobKindAvatar, InputRef: "garments/torn.png", TargetRef: "avatar-1"},
		queue.SubmitItem{Kind: domain.JobKindHumanModel, InputRef: "garments/b.png", TargetRef: "model-7", PayeeAccountID: h.payee.ID},
	)

	h.drain(t)

	statuses := map[domain.JobStatus]int{}
	for _, id := range res.JobIDs {
		statuses[h.job(t, id).Status]++
	}
	assert.Equal(t, 2, statuses[domain.JobStatusCompleted])
	assert.Equal(t, 1, statuses[domain.JobStatusFailed])

	torn := h.job(t, res.JobIDs[1])
	assert.Equal(t, domain.FailureInvalidInput, torn.FailureCode)
	assert.Zero(t, torn.RetryCount)

	acct, err := h.ledger.Account(context.Background(), h.payer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), acct.Balance)

	b, err := h.store.Repos().Batches.Get(context.Background(), res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, b.Status)
	assert.Equal(t, 2, b.Completed)
	assert.Equal(t, 1, b.Failed)
	assert.True(t, b.Consistent())

	royalties, err := h.ledger.Entries(context.Background(), h.payee.ID)
	require.NoError(t, err)
	require.Len(t, royalties, 1)
	assert.Equal(t, domain.CategoryRoyaltyCredit, royalties[0].Category)
	assert.Equal(t, int64(50), royalties[0].Amount)
	assert.Equal(t, res.JobIDs[2], royalties[0].JobID)
}

func TestProcessBatchWithoutCredits(t *testing.T) {
	h := newHarness(t, 0)
	res := h.submit(t, "garments/a.png")

	h.drain(t)

	j := h.job(t, res.JobIDs[0])
	assert.Equal(t, domain.JobStatusFailed, j.Status)
	assert.Equal(t, domain.FailureInsufficientBalance, j.FailureCode)
	assert.Empty(t, j.OutputRef)
}

func TestTransientFailureRetriesThenCompletes(t *testing.T) {
	h := newHarness(t, 1)
	h.renderer.failWith("garments/a.png", &render.Error{Class: render.ClassUnavailable, Code: "busy", Message: "try later", StatusCode: 503})
	res := h.submit(t, "garments/a.png")

	h.drain(t)

	j := h.job(t, res.JobIDs[0])
	assert.Equal(t, domain.JobStatusCompleted, j.Status)
	assert.Equal(t, 1, j.RetryCount)
	assert.NotEmpty(t, j.OutputRef)
	assert.Equal(t, 2, h.renderer.calls["garments/a.png"])
}

func TestTransientFailuresExhaustRetries(t *testing.T) {
	h := newHarness(t, 1)
	unavailable := &render.Error{Class: render.ClassUnavailable, Code: "busy", Message: "down", StatusCode: 502}
	h.renderer.failWith("garments/a.png", unavailable, unavailable, unavailable)
	res := h.submit(t, "garments/a.png")

	h.drain(t)

	j := h.job(t, res.JobIDs[0])
	assert.Equal(t, domain.JobStatusFailed, j.Status)
	assert.Equal(t, domain.FailureUpstreamUnavailable, j.FailureCode)
	assert.Equal(t, 3, j.RetryCount)

	acct, err := h.ledger.Account(context.Background(), h.payer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.Balance)
}

func TestProcessNextBatchOnEmptyQueue(t *testing.T) {
	h := newHarness(t, 0)
	did, err := h.processor.ProcessNextBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, did)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, 1)
	res := h.submit(t, "garments/a.png")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.processor.Run(ctx) }()

	require.Eventually(t, func() bool {
		j, err := h.store.Repos().Jobs.Get(context.Background(), res.JobIDs[0])
		return err == nil && j.Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClaimErrorLeavesSiblingRenderToFinish(t *testing.T) {
	store := newFlakyClaims()
	h := newHarnessOn(t, store, 2)
	started := make(chan struct{})
	release := make(chan struct{})
	h.renderer.onRender("garments/slow.png", func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	// The next claim after the fast render is the fast lane's own.
	h.renderer.onRender("garments/fast.png", func(context.Context) error {
		store.armed.Store(true)
		return nil
	})
	res := h.submit(t, "garments/slow.png", "garments/fast.png")

	type outcome struct {
		did bool
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		did, err := h.processor.ProcessNextBatch(context.Background())
		done <- outcome{did, err}
	}()

	waitClosed(t, started, "slow render")
	waitClosed(t, store.fired, "failed claim")
	close(release)

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch pass did not return")
	}
	assert.True(t, got.did)
	assert.ErrorIs(t, got.err, errClaimStore)

	for _, id := range res.JobIDs {
		j := h.job(t, id)
		assert.Equal(t, domain.JobStatusCompleted, j.Status, j.InputRef)
		assert.NotEmpty(t, j.OutputRef, j.InputRef)
	}
	acct, err := h.ledger.Account(context.Background(), h.payer.ID)
	require.NoError(t, err)
	assert.Zero(t, acct.Balance)
}

func TestCancelledPassFinishesClaimedJob(t *testing.T) {
	h := newHarness(t, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	h.renderer.onRender("garments/slow.png", func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	res := h.submit(t, "garments/slow.png")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.processor.ProcessNextBatch(ctx)
		done <- err
	}()

	waitClosed(t, started, "slow render")
	cancel()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch pass did not return")
	}
	j := h.job(t, res.JobIDs[0])
	assert.Equal(t, domain.JobStatusCompleted, j.Status)
	assert.NotEmpty(t, j.OutputRef)
}
