package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelzar/paylink/internal/auth"
	"github.com/pavelzar/paylink/internal/domain"
	"github.com/pavelzar/paylink/internal/httpapi"
	"github.com/pavelzar/paylink/internal/memstore"
)

type testServer struct {
	srv   *httpapi.Server
	store *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	engine := domain.NewLedgerEngine(store, store, store, nil, nil, nil)
	gate := auth.NewGate(memstore.NewCredentials())
	return &testServer{
		srv:   httpapi.NewServer(engine, gate, nil, nil, nil),
		store: store,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.srv.App().Test(req, -1)
	require.NoError(t, err)

	payload := map[string]json.RawMessage{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), "body: %s", raw)
	}
	return resp, payload
}

// signup registers a user, seeds the balance directly in storage, and returns
// the account id and bearer token.
func (ts *testServer) signup(t *testing.T, username string, balance int64) (string, string) {
	t.Helper()
	resp, payload := ts.do(t, http.MethodPost, "/api/v1/user/signup", "", map[string]any{
		"username":  username,
		"password":  "password123",
		"firstName": username,
		"lastName":  "Test",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	accountID := rawString(t, payload["accountId"])
	token := rawString(t, payload["token"])
	require.NotEmpty(t, token)

	if balance > 0 {
		account, err := ts.store.GetByUsername(t.Context(), username)
		require.NoError(t, err)
		_, err = ts.store.ApplyDelta(t.Context(), account.ID, balance)
		require.NoError(t, err)
	}
	return accountID, token
}

func rawString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func TestSignup(t *testing.T) {
	ts := newTestServer(t)

	resp, payload := ts.do(t, http.MethodPost, "/api/v1/user/signup", "", map[string]any{
		"username": "alice", "password": "password123", "firstName": "Alice", "lastName": "Smith",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, rawString(t, payload["token"]))

	// Same username again is a conflict.
	resp, payload = ts.do(t, http.MethodPost, "/api/v1/user/signup", "", map[string]any{
		"username": "alice", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ACCOUNT_EXISTS", rawString(t, payload["code"]))

	// Validation failures.
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/user/signup", "", map[string]any{
		"username": "ab", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/user/signup", "", map[string]any{
		"username": "carol", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignin(t *testing.T) {
	ts := newTestServer(t)
	accountID, _ := ts.signup(t, "alice", 0)

	resp, payload := ts.do(t, http.MethodPost, "/api/v1/user/signin", "", map[string]any{
		"username": "alice", "password": "password123",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, accountID, rawString(t, payload["accountId"]))
	assert.NotEmpty(t, rawString(t, payload["token"]))

	// Wrong password and unknown user produce the same response.
	for _, body := range []map[string]any{
		{"username": "alice", "password": "wrong"},
		{"username": "nobody", "password": "password123"},
	} {
		resp, payload = ts.do(t, http.MethodPost, "/api/v1/user/signin", "", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", rawString(t, payload["code"]))
	}
}

func TestBalanceRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.signup(t, "alice", 700)

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/account/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/account/balance", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, payload := ts.do(t, http.MethodGet, "/api/v1/account/balance", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var balance int64
	require.NoError(t, json.Unmarshal(payload["balance"], &balance))
	assert.Equal(t, int64(700), balance)
}

func TestTransfer(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := ts.signup(t, "alice", 1000)
	bobID, bobToken := ts.signup(t, "bob", 0)

	body := map[string]any{"to": bobID, "amount": 250, "idempotencyKey": "tr-1"}
	resp, payload := ts.do(t, http.MethodPost, "/api/v1/account/transfer", aliceToken, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", payload)

	var tx map[string]any
	require.NoError(t, json.Unmarshal(payload["transaction"], &tx))
	assert.Equal(t, "COMPLETED", tx["status"])
	assert.Equal(t, aliceID, tx["fromAccount"])
	assert.Equal(t, bobID, tx["toAccount"])
	assert.Equal(t, float64(750), tx["resultingFromBalance"])
	assert.Equal(t, float64(250), tx["resultingToBalance"])

	// Retrying the same key returns the stored outcome without moving funds.
	resp, payload = ts.do(t, http.MethodPost, "/api/v1/account/transfer", aliceToken, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var replayed map[string]any
	require.NoError(t, json.Unmarshal(payload["transaction"], &replayed))
	assert.Equal(t, tx, replayed)

	resp, payload = ts.do(t, http.MethodGet, "/api/v1/account/balance", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var balance int64
	require.NoError(t, json.Unmarshal(payload["balance"], &balance))
	assert.Equal(t, int64(250), balance)
}

func TestTransferIdempotencyKeyHeader(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.signup(t, "alice", 100)
	bobID, _ := ts.signup(t, "bob", 0)

	raw, err := json.Marshal(map[string]any{"to": bobID, "amount": 40})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, "/api/v1/account/transfer", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set("Idempotency-Key", "hdr-1")

	resp, err := ts.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rec, err := ts.store.Find(t.Context(), "hdr-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(40), rec.Amount)
}

func TestTransferRejections(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := ts.signup(t, "alice", 100)
	bobID, _ := ts.signup(t, "bob", 0)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing idempotency key",
			body:       map[string]any{"to": bobID, "amount": 10},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_IDEMPOTENCY_KEY",
		},
		{
			name:       "self transfer",
			body:       map[string]any{"to": aliceID, "amount": 10, "idempotencyKey": "k-self"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "SELF_TRANSFER",
		},
		{
			name:       "zero amount",
			body:       map[string]any{"to": bobID, "amount": 0, "idempotencyKey": "k-zero"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_AMOUNT",
		},
		{
			name:       "malformed recipient",
			body:       map[string]any{"to": "not-a-uuid", "amount": 10, "idempotencyKey": "k-bad"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_RECIPIENT",
		},
		{
			name:       "unknown recipient",
			body:       map[string]any{"to": "00000000-0000-0000-0000-000000000001", "amount": 10, "idempotencyKey": "k-gone"},
			wantStatus: http.StatusNotFound,
			wantCode:   "ACCOUNT_NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, payload := ts.do(t, http.MethodPost, "/api/v1/account/transfer", aliceToken, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, rawString(t, payload["code"]))
		})
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.signup(t, "alice", 30)
	bobID, _ := ts.signup(t, "bob", 0)

	body := map[string]any{"to": bobID, "amount": 100, "idempotencyKey": "over-1"}
	resp, payload := ts.do(t, http.MethodPost, "/api/v1/account/transfer", aliceToken, body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_FUNDS", rawString(t, payload["code"]))

	var tx map[string]any
	require.NoError(t, json.Unmarshal(payload["transaction"], &tx))
	assert.Equal(t, "FAILED", tx["status"])
	// The response code comes from the stored record, whatever its reason.
	assert.Equal(t, tx["failureReason"], rawString(t, payload["code"]))

	// The retry replays the stored failure.
	resp, replayed := ts.do(t, http.MethodPost, "/api/v1/account/transfer", aliceToken, body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var tx2 map[string]any
	require.NoError(t, json.Unmarshal(replayed["transaction"], &tx2))
	assert.Equal(t, tx, tx2)
}

func TestListUsers(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "alice", 0)
	ts.signup(t, "bob", 0)
	ts.signup(t, "carol", 0)

	resp, payload := ts.do(t, http.MethodGet, "/api/v1/user/bulk", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []map[string]string
	require.NoError(t, json.Unmarshal(payload["users"], &users))
	assert.Len(t, users, 3)

	resp, payload = ts.do(t, http.MethodGet, "/api/v1/user/bulk?filter=bo", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(payload["users"], &users))
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0]["username"])
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	_, aliceToken := ts.signup(t, "alice", 1000)
	bobID, _ := ts.signup(t, "bob", 0)

	for i := 0; i < 3; i++ {
		body := map[string]any{"to": bobID, "amount": 10 + i, "idempotencyKey": fmt.Sprintf("h-%d", i)}
		resp, _ := ts.do(t, http.MethodPost, "/api/v1/account/transfer", aliceToken, body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, payload := ts.do(t, http.MethodGet, "/api/v1/account/history", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(payload["transactions"], &records))
	require.Len(t, records, 3)
	assert.Equal(t, "h-2", records[0]["idempotencyKey"])
	assert.Equal(t, "h-0", records[2]["idempotencyKey"])

	resp, payload = ts.do(t, http.MethodGet, "/api/v1/account/history?limit=1", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(payload["transactions"], &records))
	assert.Len(t, records, 1)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/account/history?limit=zero", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// unavailableAccounts wraps the in-memory store and fails reads on demand.
type unavailableAccounts struct {
	*memstore.Store
	fail bool
}

func (s *unavailableAccounts) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if s.fail {
		return nil, fmt.Errorf("get account: %w", domain.ErrStorageUnavailable)
	}
	return s.Store.Get(ctx, id)
}

func TestStorageUnavailableMapsTo503(t *testing.T) {
	store := &unavailableAccounts{Store: memstore.New()}
	engine := domain.NewLedgerEngine(store, store, store, nil, nil, nil)
	gate := auth.NewGate(memstore.NewCredentials())
	ts := &testServer{
		srv:   httpapi.NewServer(engine, gate, nil, nil, nil),
		store: store.Store,
	}
	_, token := ts.signup(t, "alice", 0)

	store.fail = true
	resp, payload := ts.do(t, http.MethodGet, "/api/v1/account/balance", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "STORAGE_UNAVAILABLE", rawString(t, payload["code"]))
	// Retriable: the client is told to back off and try again.
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, payload := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", rawString(t, payload["status"]))
}
