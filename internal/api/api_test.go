package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maze-rewards/internal/auth"
	"maze-rewards/internal/model"
	"maze-rewards/internal/service"
)

type fakeVerifier struct {
	identities map[string]auth.Identity
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	id, ok := f.identities[token]
	if !ok {
		return auth.Identity{}, auth.ErrAuth
	}
	return id, nil
}

type fakeAccounts struct {
	ensureErr error
	ensured   []string
}

func (f *fakeAccounts) EnsureAccount(_ context.Context, uid, username string) (*model.Account, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	f.ensured = append(f.ensured, uid)
	return &model.Account{UID: uid, Username: username, Coins: 7, MonthlyKey: "2026-01"}, nil
}

func (f *fakeAccounts) Transactions(_ context.Context, uid string, limit, offset int) ([]*model.Transaction, error) {
	return []*model.Transaction{{ID: 1, UID: uid, Amount: 5, Reason: model.ReasonDailyLogin}}, nil
}

func (f *fakeAccounts) Levels(_ context.Context, uid string) ([]model.LevelReward, error) {
	return []model.LevelReward{{UID: uid, Level: 1, Amount: 1}}, nil
}

type fakeRewards struct {
	err       error
	applied   bool
	lastLevel int
	lastNonce string
	inviter   string
	invitee   string
}

func (f *fakeRewards) result(uid string, amount int64) (*service.ClaimResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &service.ClaimResult{Applied: f.applied, Account: &model.Account{UID: uid, Coins: 12}}
	if f.applied {
		res.Amount = amount
	}
	return res, nil
}

func (f *fakeRewards) ClaimDailyLogin(_ context.Context, uid string) (*service.ClaimResult, error) {
	return f.result(uid, 5)
}

func (f *fakeRewards) ClaimLevelComplete(_ context.Context, uid string, level int) (*service.ClaimResult, error) {
	f.lastLevel = level
	return f.result(uid, 1)
}

func (f *fakeRewards) ClaimAdReward(_ context.Context, uid, nonce string) (*service.ClaimResult, error) {
	f.lastNonce = nonce
	return f.result(uid, 50)
}

func (f *fakeRewards) RecordInvite(_ context.Context, inviter, invitee string) (*service.ClaimResult, error) {
	f.inviter, f.invitee = inviter, invitee
	return f.result(inviter, 10)
}

func (f *fakeRewards) Consume(_ context.Context, uid string, kind model.ConsumableKind, mode model.ConsumeMode, nonce string) (*service.ConsumeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ConsumeResult{OK: true, Mode: mode, Account: &model.Account{UID: uid}}, nil
}

type fakeAdmin struct {
	err       error
	lastDelta int64
	lastQuery string
	lastMonth string
	purged    string
}

func (f *fakeAdmin) Stats(context.Context) (*model.Stats, error) {
	return &model.Stats{Accounts: 3, TotalCoins: 42}, f.err
}

func (f *fakeAdmin) SearchAccounts(_ context.Context, q string, limit, offset int) ([]*model.Account, int, error) {
	f.lastQuery = q
	return []*model.Account{{UID: "u1", Username: "alice"}}, 1, f.err
}

func (f *fakeAdmin) FindAccount(_ context.Context, key string) (*model.Account, error) {
	if key != "u1" {
		return nil, service.ErrNotFound
	}
	return &model.Account{UID: "u1"}, nil
}

func (f *fakeAdmin) AdjustCoins(_ context.Context, uid string, delta int64) (*model.Account, error) {
	f.lastDelta = delta
	if f.err != nil {
		return nil, f.err
	}
	return &model.Account{UID: uid, Coins: delta}, nil
}

func (f *fakeAdmin) PurgeAccount(_ context.Context, uid string) error {
	f.purged = uid
	return f.err
}

func (f *fakeAdmin) Online(context.Context, int) ([]*model.Account, error) {
	return []*model.Account{{UID: "u1"}}, f.err
}

func (f *fakeAdmin) Charts(_ context.Context, days int) ([]model.DailyPoint, error) {
	return make([]model.DailyPoint, days), f.err
}

func (f *fakeAdmin) Top(context.Context, int) ([]*model.Account, error) {
	return nil, f.err
}

func (f *fakeAdmin) Earners(_ context.Context, period string, limit int) ([]model.EarnerRank, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.EarnerRank{{Rank: 1, UID: "u1", Username: "alice", Earned: 55}}, nil
}

func (f *fakeAdmin) CloseMonth(_ context.Context, month string) (*service.CloseSummary, error) {
	f.lastMonth = month
	if f.err != nil {
		return nil, f.err
	}
	return &service.CloseSummary{Month: "2026-01", Snapshotted: 2, TotalCoins: 300}, nil
}

func (f *fakeAdmin) Payouts(_ context.Context, month string) ([]*model.MonthlyPayout, error) {
	return []*model.MonthlyPayout{}, f.err
}

type fakeAdminAuth struct{}

func (fakeAdminAuth) Login(password string) (string, time.Time, error) {
	if password != "secret" {
		return "", time.Time{}, auth.ErrInvalidCredentials
	}
	return "admin-token", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func (fakeAdminAuth) ValidateToken(token string) (*auth.AdminClaims, error) {
	if token != "admin-token" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.AdminClaims{Role: "admin"}, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

type testServer struct {
	handler  http.Handler
	accounts *fakeAccounts
	rewards  *fakeRewards
	admin    *fakeAdmin
}

func newTestServer() *testServer {
	ts := &testServer{
		accounts: &fakeAccounts{},
		rewards:  &fakeRewards{applied: true},
		admin:    &fakeAdmin{},
	}
	ts.handler = NewRouter(RouterConfig{
		Verifier: &fakeVerifier{identities: map[string]auth.Identity{
			"player-token": {UID: "u1", Username: "alice"},
		}},
		Accounts:  ts.accounts,
		Rewards:   ts.rewards,
		Admin:     ts.admin,
		AdminAuth: fakeAdminAuth{},
		Health:    fakeHealth{},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer()
	id := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, id)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func TestPlayerAuthRequired(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeAuthRequired, decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/me", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.accounts.ensured)
}

func TestMeBootstrapsAccount(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/api/me", "player-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acc := decode[model.Account](t, rec)
	assert.Equal(t, "u1", acc.UID)
	assert.Equal(t, int64(7), acc.Coins)
	assert.Equal(t, []string{"u1"}, ts.accounts.ensured)
}

func TestUsernameConflictOnBootstrap(t *testing.T) {
	ts := newTestServer()
	ts.accounts.ensureErr = service.ErrConflict

	rec := ts.do(t, http.MethodGet, "/api/me", "player-token", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeUsernameTaken, decode[ErrorResponse](t, rec).Code)
}

func TestClaimDaily(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/rewards/daily", "player-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ClaimResponse](t, rec)
	assert.False(t, res.Already)
	assert.Equal(t, int64(5), res.Amount)
	assert.Equal(t, int64(12), res.User.Coins)

	ts.rewards.applied = false
	rec = ts.do(t, http.MethodPost, "/api/rewards/daily", "player-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[ClaimResponse](t, rec)
	assert.True(t, res.Already)
	assert.Zero(t, res.Amount)
}

func TestClaimLevel(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/rewards/level", "player-token", map[string]int{"level": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, ts.rewards.lastLevel)

	rec = ts.do(t, http.MethodPost, "/api/rewards/level", "player-token", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/rewards/level", "player-token", map[string]any{"level": 1, "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidJSON, decode[ErrorResponse](t, rec).Code)
}

func TestClaimAdCooldown(t *testing.T) {
	ts := newTestServer()
	ts.rewards.err = &service.CooldownError{Remaining: 1500 * time.Millisecond}

	rec := ts.do(t, http.MethodPost, "/api/rewards/ad", "player-token", map[string]string{"nonce": "n1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, CodeCooldown, decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, "n1", ts.rewards.lastNonce)
}

func TestInviteCreditsInviter(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/rewards/invite", "player-token", map[string]string{"inviterUid": "u9"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u9", ts.rewards.inviter)
	assert.Equal(t, "u1", ts.rewards.invitee)
	res := decode[InviteResponse](t, rec)
	assert.False(t, res.Already)
}

func TestConsumeErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no free uses", service.ErrNoFreeUsesLeft, http.StatusBadRequest, CodeNoFreeUsesLeft},
		{"insufficient funds", service.ErrInsufficientFunds, http.StatusBadRequest, CodeInsufficientFunds},
		{"invalid kind", fmt.Errorf("%w: unknown consumable", service.ErrInvalidArgument), http.StatusBadRequest, CodeValidation},
		{"not found", service.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, CodeInternal},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.rewards.err = tt.err

			rec := ts.do(t, http.MethodPost, "/api/consume", "player-token",
				map[string]string{"kind": "skip", "mode": "coins"})
			assert.Equal(t, tt.status, rec.Code)
			body := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, body.Code)
			if tt.code == CodeInternal {
				assert.NotContains(t, body.Error, "connection reset")
			}
		})
	}
}

func TestConsumeSuccess(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/consume", "player-token",
		map[string]string{"kind": "hint", "mode": "free"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[service.ConsumeResult](t, rec)
	assert.True(t, res.OK)
	assert.Equal(t, model.ModeFree, res.Mode)
}

func TestTransactionsPaging(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/api/me/transactions?limit=5", "player-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/me/transactions?limit=abc", "player-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLogin(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidCredentials, decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-token", decode[loginResponse](t, rec).Token)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer()

	for _, path := range []string{"/api/admin/stats", "/api/admin/users", "/api/admin/online"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		// A player token is not an admin token
		rec = ts.do(t, http.MethodGet, path, "player-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer()
	const token = "admin-token"

	rec := ts.do(t, http.MethodGet, "/api/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), decode[model.Stats](t, rec).TotalCoins)

	rec = ts.do(t, http.MethodGet, "/api/admin/users?q=ali&limit=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[UserPage](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, "ali", ts.admin.lastQuery)

	rec = ts.do(t, http.MethodGet, "/api/admin/users/u1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/admin/users/ghost", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/users/u1/coins", token, map[string]int64{"delta": -30})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(-30), ts.admin.lastDelta)

	rec = ts.do(t, http.MethodDelete, "/api/admin/users/u1", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", ts.admin.purged)

	rec = ts.do(t, http.MethodGet, "/api/admin/charts?days=3", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	charts := decode[map[string][]model.DailyPoint](t, rec)
	assert.Len(t, charts["days"], 3)

	rec = ts.do(t, http.MethodGet, "/api/admin/earners?period=2026-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	earners := decode[map[string][]model.EarnerRank](t, rec)
	require.Len(t, earners["earners"], 1)
	assert.Equal(t, int64(55), earners["earners"][0].Earned)

	rec = ts.do(t, http.MethodPost, "/api/admin/month/close", token, map[string]string{"month": "2026-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-01", ts.admin.lastMonth)
	assert.Equal(t, 2, decode[service.CloseSummary](t, rec).Snapshotted)

	// Body is optional
	rec = ts.do(t, http.MethodPost, "/api/admin/month/close", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", ts.admin.lastMonth)

	rec = ts.do(t, http.MethodGet, "/api/admin/payouts?month=2026-01", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminCloseInProgress(t *testing.T) {
	ts := newTestServer()
	ts.admin.err = service.ErrCloseInProgress

	rec := ts.do(t, http.MethodPost, "/api/admin/month/close", "admin-token", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeCloseInProgress, decode[ErrorResponse](t, rec).Code)
}

func TestHealthUnavailable(t *testing.T) {
	handler := NewRouter(RouterConfig{
		Verifier:  &fakeVerifier{},
		Accounts:  &fakeAccounts{},
		Rewards:   &fakeRewards{},
		Admin:     &fakeAdmin{},
		AdminAuth: fakeAdminAuth{},
		Health:    fakeHealth{err: errors.New("down")},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
