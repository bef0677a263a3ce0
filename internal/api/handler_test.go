package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/ledger-core/internal/api"
	"github.com/ayo6706/ledger-core/internal/api/middleware"
	"github.com/ayo6706/ledger-core/internal/config"
	"github.com/ayo6706/ledger-core/internal/domain"
	"github.com/ayo6706/ledger-core/internal/idempotency"
	"github.com/ayo6706/ledger-core/internal/repository"
	"github.com/ayo6706/ledger-core/internal/service"
	"github.com/ayo6706/ledger-core/internal/testutil/pgtest"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "ledger-core-test"
	testJWTAudience = "ledger-api-test"
)

func TestMain(m *testing.M) {
	pgtest.Main(m)
}

type testAPI struct {
	router   chi.Router
	store    *repository.Store
	auth     *middleware.Authenticator
	accounts *service.AccountService
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	pool := pgtest.Pool(t)
	store := repository.NewStore(pool, 200*time.Millisecond)

	cfg := &config.Config{
		HTTPPort:                "0",
		JWTSecret:               testJWTSecret,
		JWTIssuer:               testJWTIssuer,
		JWTAudience:             testJWTAudience,
		PublicRateLimitRPS:      1000,
		AuthRateLimitRPS:        1000,
		IdempotencyTTL:          time.Hour,
		DefaultTransferStrategy: domain.StrategyPessimistic,
	}
	auth, err := middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	require.NoError(t, err)

	services := api.Services{
		Accounts:       service.NewAccountService(store),
		Transfers:      service.NewTransferService(store, service.TransferOptions{DefaultStrategy: cfg.DefaultTransferStrategy}),
		Outbox:         service.NewOutboxService(store, service.OutboxOptions{}),
		Reconciliation: service.NewReconciliationService(store),
	}
	idemStore := idempotency.NewStore(nil, pool, cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), pool, nil, services, auth, idemStore)

	return &testAPI{router: router.Routes(), store: store, auth: auth, accounts: services.Accounts}
}

type call struct {
	method  string
	path    string
	token   string
	idemKey string
	body    any
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.idemKey != "" {
		req.Header.Set("Idempotency-Key", c.idemKey)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type party struct {
	ownerID   string
	accountID string
	token     string
}

func (a *testAPI) register(t *testing.T, email, balance string) party {
	t.Helper()
	w := a.do(t, call{method: http.MethodPost, path: "/v1/owners", body: map[string]string{
		"email":           email,
		"full_name":       "Test Owner",
		"opening_balance": balance,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Owner   struct{ ID string }
		Account struct{ ID string }
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return party{ownerID: resp.Owner.ID, accountID: resp.Account.ID, token: a.token(t, resp.Owner.ID, domain.RoleUser)}
}

func (a *testAPI) token(t *testing.T, ownerID, role string) string {
	t.Helper()
	token, _, err := a.auth.Issue(uuid.MustParse(ownerID), role)
	require.NoError(t, err)
	return token
}

func (a *testAPI) transfer(t *testing.T, from party, to string, amount, key string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, call{method: http.MethodPost, path: "/v1/transfers", token: from.token, idemKey: key, body: map[string]string{
		"sender_account_id":   from.accountID,
		"receiver_account_id": to,
		"amount":              amount,
	}})
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func balanceOf(t *testing.T, a *testAPI, p party) string {
	t.Helper()
	w := a.do(t, call{method: http.MethodGet, path: "/v1/accounts/" + p.accountID, token: p.token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var acct struct{ Balance string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acct))
	return acct.Balance
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)

	accountID := uuid.New().String()
	w := a.do(t, call{method: http.MethodGet, path: "/v1/accounts/" + accountID})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	body := decodeProblem(t, w)
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, "auth/authorization-header-required", body["code"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/accounts/"+accountID, body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestOwnerRegistrationAndToken(t *testing.T) {
	a := setupAPI(t)
	alice := a.register(t, "alice@example.com", "1000")

	assert.Equal(t, "1000.0000", balanceOf(t, a, alice))

	w := a.do(t, call{method: http.MethodPost, path: "/v1/owners", body: map[string]string{"email": "ALICE@example.com"}})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "owner/duplicate-email", decodeProblem(t, w)["code"])

	w = a.do(t, call{method: http.MethodPost, path: "/v1/owners", body: map[string]string{"email": "bob@example.com", "opening_balance": "-5"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/v1/auth/token", body: map[string]string{"owner_id": alice.ownerID}})
	require.Equal(t, http.StatusOK, w.Code)
	var tok struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	assert.Equal(t, "Bearer", tok.TokenType)

	w = a.do(t, call{method: http.MethodGet, path: "/v1/accounts/" + alice.accountID, token: tok.Token})
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/v1/auth/token", body: map[string]string{"owner_id": uuid.NewString()}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/v1/accounts/" + alice.accountID, token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransfer_CompletesAndReplays(t *testing.T) {
	a := setupAPI(t)
	alice := a.register(t, "alice@example.com", "1000")
	bob := a.register(t, "bob@example.com", "500")
	carol := a.register(t, "carol@example.com", "0")

	w := a.transfer(t, alice, bob.accountID, "100.5", "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID                string `json:"id"`
		SenderAccountID   string `json:"sender_account_id"`
		ReceiverAccountID string `json:"receiver_account_id"`
		Amount            string `json:"amount"`
		Status            string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "100.5000", created.Amount)
	assert.Equal(t, domain.TransferStatusCompleted, created.Status)
	assert.Equal(t, alice.accountID, created.SenderAccountID)
	assert.Equal(t, bob.accountID, created.ReceiverAccountID)

	assert.Equal(t, "899.5000", balanceOf(t, a, alice))
	assert.Equal(t, "600.5000", balanceOf(t, a, bob))

	replay := a.transfer(t, alice, bob.accountID, "100.5", "key-1")
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "postgres", replay.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, w.Body.String(), replay.Body.String())
	assert.Equal(t, "899.5000", balanceOf(t, a, alice))

	reused := a.transfer(t, alice, bob.accountID, "1", "key-1")
	require.Equal(t, http.StatusUnprocessableEntity, reused.Code)
	assert.Equal(t, "idempotency/key-reused", decodeProblem(t, reused)["code"])

	// Keys are scoped per owner.
	w = a.transfer(t, bob, alice.accountID, "0.5", "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, call{method: http.MethodGet, path: "/v1/transfers/" + created.ID, token: bob.token})
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, call{method: http.MethodGet, path: "/v1/transfers/" + created.ID, token: carol.token})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(t, call{method: http.MethodGet, path: "/v1/transfers/" + uuid.NewString(), token: carol.token})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransfer_ErrorMapping(t *testing.T) {
	a := setupAPI(t)
	alice := a.register(t, "alice@example.com", "1000")
	bob := a.register(t, "bob@example.com", "0")

	cases := []struct {
		name   string
		from   party
		to     string
		amount string
		status int
		code   string
	}{
		{"insufficient funds", alice, bob.accountID, "1500", http.StatusBadRequest, "transfer/insufficient-funds"},
		{"self transfer", alice, alice.accountID, "10", http.StatusBadRequest, "transfer/self-transfer"},
		{"zero amount", alice, bob.accountID, "0", http.StatusBadRequest, "transfer/invalid-amount"},
		{"negative amount", alice, bob.accountID, "-1", http.StatusBadRequest, "transfer/invalid-amount"},
		{"too precise", alice, bob.accountID, "1.00001", http.StatusBadRequest, "request/invalid-amount"},
		{"malformed", alice, bob.accountID, "ten", http.StatusBadRequest, "request/invalid-amount"},
		{"unknown receiver", alice, uuid.NewString(), "10", http.StatusNotFound, "account/not-found"},
		{"foreign sender", party{accountID: alice.accountID, token: bob.token}, bob.accountID, "10", http.StatusForbidden, "auth/insufficient-permissions"},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.transfer(t, tc.from, tc.to, tc.amount, fmt.Sprintf("err-%d", i))
			require.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, decodeProblem(t, w)["code"])
		})
	}

	// Nothing moved.
	assert.Equal(t, "1000.0000", balanceOf(t, a, alice))
	assert.Equal(t, "0.0000", balanceOf(t, a, bob))

	w := a.transfer(t, alice, bob.accountID, "10", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/v1/transfers", token: alice.token, idemKey: "bad-strategy", body: map[string]string{
		"sender_account_id":   alice.accountID,
		"receiver_account_id": bob.accountID,
		"amount":              "1",
		"strategy":            "yolo",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "transfer/unsupported-strategy", decodeProblem(t, w)["code"])
}

func TestTransfer_OptimisticStrategy(t *testing.T) {
	a := setupAPI(t)
	alice := a.register(t, "alice@example.com", "1000")
	bob := a.register(t, "bob@example.com", "500")

	w := a.do(t, call{method: http.MethodPost, path: "/v1/transfers", token: alice.token, idemKey: "opt-1", body: map[string]string{
		"sender_account_id":   alice.accountID,
		"receiver_account_id": bob.accountID,
		"amount":              "100",
		"strategy":            "optimistic",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "900.0000", balanceOf(t, a, alice))
	assert.Equal(t, "600.0000", balanceOf(t, a, bob))
}

func TestTransfer_LockTimeoutIsRetryable(t *testing.T) {
	a := setupAPI(t)
	alice := a.register(t, "alice@example.com", "1000")
	bob := a.register(t, "bob@example.com", "0")
	ctx := context.Background()

	tx, err := a.store.Pool().Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "SELECT id FROM accounts WHERE id = $1 FOR UPDATE", uuid.MustParse(alice.accountID))
	require.NoError(t, err)

	w := a.transfer(t, alice, bob.accountID, "10", "busy-1")
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "transfer/lock-timeout", decodeProblem(t, w)["code"])

	require.NoError(t, tx.Rollback(ctx))

	// The 503 was not stored, so the same key goes through once the lock is gone.
	w = a.transfer(t, alice, bob.accountID, "10", "busy-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "990.0000", balanceOf(t, a, alice))
}

func TestListAccountTransfers(t *testing.T) {
	a := setupAPI(t)
	alice := a.register(t, "alice@example.com", "1000")
	bob := a.register(t, "bob@example.com", "0")

	for i := 0; i < 3; i++ {
		w := a.transfer(t, alice, bob.accountID, "1", fmt.Sprintf("list-%d", i))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := a.do(t, call{method: http.MethodGet, path: "/v1/accounts/" + bob.accountID + "/transfers?page_size=2", token: bob.token})
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items    []map[string]any `json:"items"`
		Page     int              `json:"page"`
		PageSize int              `json:"page_size"`
		Total    int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "1.0000", page.Items[0]["amount"])

	w = a.do(t, call{method: http.MethodGet, path: "/v1/accounts/" + bob.accountID + "/transfers", token: alice.token})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	a := setupAPI(t)
	alice := a.register(t, "alice@example.com", "10")

	admin, _, err := a.accounts.OpenAccount(context.Background(), service.OpenAccountRequest{
		Email:          "ops@example.com",
		OpeningBalance: decimal.Zero,
		Role:           domain.RoleAdmin,
	})
	require.NoError(t, err)
	adminToken := a.token(t, admin.ID.String(), domain.RoleAdmin)

	w := a.do(t, call{method: http.MethodPost, path: "/v1/admin/reconciliation", token: alice.token})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, call{method: http.MethodPost, path: "/v1/admin/reconciliation", token: adminToken})
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		Balanced bool  `json:"balanced"`
		Accounts int64 `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(2), report.Accounts)

	w = a.do(t, call{method: http.MethodPost, path: "/v1/admin/outbox/" + uuid.NewString() + "/requeue", token: adminToken})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Admins may read any account.
	w = a.do(t, call{method: http.MethodGet, path: "/v1/accounts/" + alice.accountID, token: adminToken})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, call{method: http.MethodGet, path: "/health/live"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, call{method: http.MethodGet, path: "/openapi.yaml"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/transfers")
}
