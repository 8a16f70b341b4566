package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelshoot/internal/app"
	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/middleware"
)

const (
	testJWTSecret    = "router-test-secret"
	testWorkerSecret = "tick-secret"
)

type apiHarness struct {
	t        *testing.T
	server   *httptest.Server
	services *app.Services
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := &infra.Config{
		StoreDriver:    infra.StoreDriverMemory,
		StoragePath:    t.TempDir(),
		StorageBaseURL: "http://cdn.test/static",
		JWTSecret:      testJWTSecret,
		WorkerSecret:   testWorkerSecret,
		DefaultLocale:  "en",
		Worker:         infra.WorkerConfig{ID: "api-test", Concurrency: 1, RenderTimeout: 5 * time.Second},
		Queue:          infra.QueueConfig{MaxPerOwner: 4, MaxRetries: 3},
		Pricing:        infra.PricingConfig{AvatarCost: 1, HumanModelCost: 1, RoyaltyPerGeneration: 50},
		Payout:         infra.PayoutConfig{MinAmount: 10, FeePercent: "0"},
	}
	services, err := app.Build(context.Background(), cfg, infra.NopLogger())
	require.NoError(t, err)
	require.NoError(t, services.EnableWorker(context.Background()))

	srv := httptest.NewServer(NewRouter(services.Handlers(), OptionsFromConfig(cfg, nil)))
	t.Cleanup(srv.Close)
	return &apiHarness{t: t, server: srv, services: services}
}

func (h *apiHarness) token(accountID, role string) string {
	tok, err := middleware.SignToken(testJWTSecret, accountID, role, time.Hour)
	require.NoError(h.t, err)
	return tok
}

func (h *apiHarness) do(method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(h.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (h *apiHarness) openAccount(admin string, role domain.AccountRole) string {
	h.t.Helper()
	resp, body := h.do(http.MethodPost, "/v1/admin/accounts", admin, map[string]any{"user_id": "u-" + string(role), "role": role})
	require.Equal(h.t, http.StatusCreated, resp.StatusCode, body)
	return body["id"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthz(t *testing.T) {
	h := newAPIHarness(t)
	resp, body := h.do(http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthAndAdminGuards(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(body))

	resp, body = h.do(http.MethodPost, "/v1/admin/accounts", h.token("acct", middleware.RoleUser), map[string]any{"user_id": "x", "role": "payer"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", errorCode(body))

	resp, _ = h.do(http.MethodPost, "/internal/worker/tick", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitProcessAndPoll(t *testing.T) {
	h := newAPIHarness(t)
	admin := h.token("admin-1", middleware.RoleAdmin)
	payerID := h.openAccount(admin, domain.AccountRolePayer)
	payer := h.token(payerID, middleware.RoleUser)

	resp, body := h.do(http.MethodPost, "/v1/admin/accounts/"+payerID+"/purchases", admin, map[string]any{"amount": 5, "payment_ref": "pay_1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = h.do(http.MethodPost, "/v1/jobs", payer, map[string]any{
		"kind":        "avatar",
		"garment_ref": "garments/dress.png",
		"target_ref":  "avatar-2",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	jobID := body["job_id"].(string)
	batchID := body["batch_id"].(string)
	assert.NotEmpty(t, batchID)

	resp, body = h.do(http.MethodGet, "/v1/jobs/"+jobID, payer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])

	resp, body = h.do(http.MethodPost, "/internal/worker/tick", "", nil, "X-Worker-Secret", testWorkerSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["did_work"])

	resp, body = h.do(http.MethodGet, "/v1/jobs/"+jobID, payer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Contains(t, body["output_url"], "http://cdn.test/static/renders/")

	resp, body = h.do(http.MethodGet, "/v1/me", payer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, body["balance"])
	assert.EqualValues(t, 4, body["available"])

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/v1/batches/"+batchID+"/archive", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+payer)
	archive, err := h.server.Client().Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(archive.Body)
	require.NoError(t, archive.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, archive.StatusCode)
	assert.Equal(t, "application/zip", archive.Header.Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 1)

	other := h.token("someone-else", middleware.RoleUser)
	resp, body = h.do(http.MethodGet, "/v1/jobs/"+jobID, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(body))
}

func TestFailureMessageIsLocalized(t *testing.T) {
	h := newAPIHarness(t)
	admin := h.token("admin-1", middleware.RoleAdmin)
	payerID := h.openAccount(admin, domain.AccountRolePayer)
	payer := h.token(payerID, middleware.RoleUser)

	resp, body := h.do(http.MethodPost, "/v1/jobs", payer, map[string]any{
		"name": "no credits",
		"items": []map[string]any{
			{"kind": "avatar", "garment_ref": "garments/a.png", "target_ref": "avatar-1"},
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	ids := body["job_ids"].([]any)
	jobID := ids[0].(string)
	_, hasSingle := body["job_id"]
	assert.False(t, hasSingle)

	resp, _ = h.do(http.MethodPost, "/internal/worker/tick", "", nil, "X-Worker-Secret", testWorkerSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, en := h.do(http.MethodGet, "/v1/jobs/"+jobID, payer, nil, "Accept-Language", "en-US")
	_, id := h.do(http.MethodGet, "/v1/jobs/"+jobID, payer, nil, "Accept-Language", "id-ID,id;q=0.9")
	assert.Equal(t, "failed", en["status"])
	assert.Equal(t, string(domain.FailureInsufficientBalance), en["failure_code"])
	assert.NotEmpty(t, en["failure_message"])
	assert.NotEmpty(t, id["failure_message"])
	assert.NotEqual(t, en["failure_message"], id["failure_message"])
}

func TestSubmitValidationErrors(t *testing.T) {
	h := newAPIHarness(t)
	admin := h.token("admin-1", middleware.RoleAdmin)
	payerID := h.openAccount(admin, domain.AccountRolePayer)
	payer := h.token(payerID, middleware.RoleUser)

	resp, body := h.do(http.MethodPost, "/v1/jobs", payer, map[string]any{"kind": "avatar"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", errorCode(body))

	resp, body = h.do(http.MethodPost, "/v1/jobs", payer, map[string]any{"unexpected": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", errorCode(body))
}

func TestAdminAdjustNeedsReason(t *testing.T) {
	h := newAPIHarness(t)
	admin := h.token("admin-1", middleware.RoleAdmin)
	payerID := h.openAccount(admin, domain.AccountRolePayer)

	resp, body := h.do(http.MethodPost, "/v1/admin/accounts/"+payerID+"/adjust", admin, map[string]any{"amount": 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "reason_required", errorCode(body))

	resp, body = h.do(http.MethodPost, "/v1/admin/accounts/"+payerID+"/adjust", admin, map[string]any{"amount": -10, "reason": "chargeback"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", errorCode(body))

	resp, body = h.do(http.MethodPost, "/v1/admin/accounts/"+payerID+"/adjust", admin, map[string]any{"amount": 10, "reason": "goodwill"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 10, body["new_balance"])

	resp, body = h.do(http.MethodGet, "/v1/admin/accounts/"+payerID+"/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["consistent"])
}

func TestPayoutLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	admin := h.token("admin-1", middleware.RoleAdmin)
	payeeID := h.openAccount(admin, domain.AccountRolePayee)
	payee := h.token(payeeID, middleware.RoleUser)

	resp, _ := h.do(http.MethodPost, "/v1/admin/accounts/"+payeeID+"/adjust", admin, map[string]any{"amount": 200, "reason": "royalty backfill"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(http.MethodPost, "/v1/payouts", payee, map[string]any{
		"amount":          150,
		"method":          "paypal",
		"account_details": map[string]string{"email": "model@example.com"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	payoutID := body["id"].(string)
	assert.Equal(t, "pending", body["status"])

	resp, body = h.do(http.MethodPost, "/v1/payouts", payee, map[string]any{"amount": 100, "method": "paypal"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", errorCode(body))

	resp, body = h.do(http.MethodPost, "/v1/admin/payouts/"+payoutID+"/actions", admin, map[string]any{"action": "review"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	resp, body = h.do(http.MethodPost, "/v1/admin/payouts/"+payoutID+"/actions", admin, map[string]any{"action": "approve"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	resp, body = h.do(http.MethodPost, "/v1/admin/payouts/"+payoutID+"/actions", admin, map[string]any{"action": "complete", "transaction_id": "pp-991"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "completed", body["status"])

	resp, body = h.do(http.MethodPost, "/v1/payouts/"+payoutID+"/cancel", payee, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(body))

	resp, body = h.do(http.MethodGet, "/v1/me", payee, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 50, body["balance"])

	resp, body = h.do(http.MethodGet, "/v1/payouts", payee, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["payouts"], 1)
}
