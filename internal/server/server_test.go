package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giftrelay/internal/auth"
	"giftrelay/internal/config"
	"giftrelay/internal/exchange"
	"giftrelay/internal/gifttask"
	"giftrelay/internal/gifttask/gifttaskmock"
	"giftrelay/internal/ledger"
	"giftrelay/internal/ledger/ledgermock"
	"giftrelay/internal/reclaimer"
	"giftrelay/internal/signature"
)

const testJWTSecret = "test-jwt-secret"

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func newTestServer(t *testing.T, db Pinger) (*Server, *ledgermock.Repository, *gifttaskmock.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Port: "0", JWTSecret: testJWTSecret, RateLimitRPS: 100, RateLimitBurst: 100}

	v, err := signature.NewVerifier(signature.Config{
		Secret:    "signing-secret",
		AgentKeys: map[string]string{"agent-key": "agent-1"},
	}, signature.NewMemoryNonceStore())
	require.NoError(t, err)

	catalog, err := exchange.ParseCatalog([]byte("gifts:\n  - id: rose\n    name: Rose\n    unit_cost: 1\n"))
	require.NoError(t, err)

	l := new(ledgermock.Repository)
	store := new(gifttaskmock.Store)

	srv := New(Deps{
		Config:    cfg,
		DB:        db,
		Verifier:  v,
		Ledger:    ledger.NewHandler(l),
		Exchange:  exchange.NewHandler(exchange.NewService(nil, l, store, catalog, 100)),
		Tasks:     gifttask.NewHandler(store),
		Worker:    gifttask.NewWorkerHandler(store),
		Reclaimer: reclaimer.NewHandler(reclaimer.New(store, reclaimer.Config{})),
	})
	return srv, l, store
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(1, role, testJWTSecret, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(srv *Server, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestRoutes_WorkerRequiresSignature(t *testing.T) {
	srv, _, store := newTestServer(t, fakePinger{})

	// a UI token is not accepted on the worker surface
	w := do(srv, http.MethodPost, "/api/gift-tasks/claim", bearer(t, auth.RoleAdmin))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized","reason":"malformed"}`, w.Body.String())
	store.AssertNotCalled(t, "ClaimNext", mock.Anything, mock.Anything)
}

func TestRoutes_UIRequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t, fakePinger{})

	assert.Equal(t, http.StatusUnauthorized, do(srv, http.MethodGet, "/api/wallet", "").Code)
	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/api/gifts/catalog", bearer(t, auth.RoleUser)).Code)
}

func TestRoutes_WalletForUser(t *testing.T) {
	srv, l, _ := newTestServer(t, fakePinger{})
	l.On("GetAccount", mock.Anything, int64(1)).Return(&ledger.Account{ID: 1, Balance: 910}, nil)

	w := do(srv, http.MethodGet, "/api/wallet", bearer(t, auth.RoleUser))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "910")
}

func TestRoutes_AdminRequiresRole(t *testing.T) {
	srv, _, store := newTestServer(t, fakePinger{})

	w := do(srv, http.MethodPost, "/admin/gift-tasks/reclaim", bearer(t, auth.RoleUser))
	assert.Equal(t, http.StatusForbidden, w.Code)
	store.AssertNotCalled(t, "ReclaimStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoutes_AdminReclaim(t *testing.T) {
	srv, _, store := newTestServer(t, fakePinger{})
	store.On("ReclaimStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&gifttask.ReclaimReport{}, nil)
	store.On("ExpirePending", mock.Anything, mock.Anything, mock.Anything).
		Return(&gifttask.ReclaimReport{}, nil)

	w := do(srv, http.MethodPost, "/admin/gift-tasks/reclaim", bearer(t, auth.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, fakePinger{})
	w := do(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	srv, _, _ = newTestServer(t, fakePinger{err: errors.New("connection refused")})
	w = do(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
