package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/oracle"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *ledger.Engine
	prices *oracle.Static
	server *Server
	http   *httptest.Server
}

var testTokens = map[string]string{
	"tok-alice": "alice",
	"tok-bob":   "bob",
	"tok-ghost": "ghost",
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := journal.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	prices := oracle.NewStatic(map[string]decimal.Decimal{
		"BTC-USD": decimal.NewFromInt(50000),
		"ETH-USD": decimal.NewFromInt(2000),
	})
	engine := ledger.NewEngine(store, prices, ledger.Options{})

	ctx := context.Background()
	_, err = engine.OpenAccount(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = engine.OpenAccount(ctx, "bob", "Bob")
	require.NoError(t, err)

	srv := NewServer(engine, NewAuthenticator(testTokens))
	engine.SetListener(srv.Hub())

	hubCtx, cancel := context.WithCancel(context.Background())
	go srv.Hub().Run(hubCtx)
	t.Cleanup(cancel)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{engine: engine, prices: prices, server: srv, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"unknown token", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, "GET", "/api/v1/portfolio", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Unauthorized", decode[ErrorResponse](t, resp).Error)
		})
	}

	req := httptest.NewRequest("GET", "/api/v1/portfolio", nil)
	req.Header.Set("Authorization", "Basic dG9rLWFsaWNl")
	_, ok := NewAuthenticator(testTokens).Authenticate(req)
	assert.False(t, ok)

	req = httptest.NewRequest("GET", "/api/v1/ws?token=tok-bob", nil)
	acct, ok := NewAuthenticator(testTokens).Authenticate(req)
	assert.True(t, ok)
	assert.Equal(t, "bob", acct)
}

func TestSubmitOrder(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "POST", "/api/v1/orders", "tok-alice", `{"symbol":"btc","side":"buy","amount":"5000","mode":"notional"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[ledger.TradeResult](t, resp)
	assert.Equal(t, "BTC", res.Transaction.Symbol)
	assert.Equal(t, ledger.Buy, res.Transaction.Side)
	assert.True(t, res.Transaction.Quantity.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, res.Cash.Equal(decimal.NewFromInt(5000)))

	resp = f.do(t, "POST", "/api/v1/orders", "tok-alice", `{"symbol":"BTC","side":"sell","amount":0.1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decode[ledger.TradeResult](t, resp)
	assert.Nil(t, res.Position)
	assert.True(t, res.Cash.Equal(decimal.NewFromInt(10000)))
}

func TestSubmitOrderErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		token  string
		body   string
		status int
		kind   string
	}{
		{"insufficient funds", "tok-alice", `{"symbol":"BTC","side":"buy","amount":1}`, http.StatusUnprocessableEntity, "InsufficientFunds"},
		{"insufficient holdings", "tok-alice", `{"symbol":"ETH","side":"sell","amount":1}`, http.StatusUnprocessableEntity, "InsufficientHoldings"},
		{"zero amount", "tok-alice", `{"symbol":"BTC","side":"buy","amount":0}`, http.StatusBadRequest, "InvalidAmount"},
		{"missing amount", "tok-alice", `{"symbol":"BTC","side":"buy"}`, http.StatusBadRequest, "InvalidAmount"},
		{"unknown price", "tok-alice", `{"symbol":"NOPE","side":"buy","amount":1}`, http.StatusServiceUnavailable, "PriceUnavailable"},
		{"bad side", "tok-alice", `{"symbol":"BTC","side":"hold","amount":1}`, http.StatusBadRequest, "InvalidRequest"},
		{"bad mode", "tok-alice", `{"symbol":"BTC","side":"buy","amount":1,"mode":"lots"}`, http.StatusBadRequest, "InvalidRequest"},
		{"bad json", "tok-alice", `{"symbol":`, http.StatusBadRequest, "InvalidRequest"},
		{"unknown field", "tok-alice", `{"symbol":"BTC","side":"buy","amount":1,"account":"bob"}`, http.StatusBadRequest, "InvalidRequest"},
		{"no account", "tok-ghost", `{"symbol":"BTC","side":"buy","amount":0.01}`, http.StatusNotFound, "AccountNotFound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, "POST", "/api/v1/orders", tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, decode[ErrorResponse](t, resp).Error)
		})
	}
}

func TestOpenAccount(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "POST", "/api/v1/account", "tok-ghost", `{"name":"Casper"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	a := decode[ledger.Account](t, resp)
	assert.Equal(t, "ghost", a.ID)
	assert.True(t, a.Cash.Equal(decimal.NewFromInt(10000)))

	resp = f.do(t, "POST", "/api/v1/account", "tok-ghost", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "AccountExists", decode[ErrorResponse](t, resp).Error)
}

func TestPortfolioHistoryReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteBuy(ctx, "alice", "ETH", decimal.NewFromInt(1), ledger.Units)
	require.NoError(t, err)
	_, err = f.engine.ExecuteBuy(ctx, "alice", "ETH", decimal.NewFromInt(1), ledger.Units)
	require.NoError(t, err)
	f.prices.Set("ETH-USD", decimal.NewFromInt(2500))

	resp := f.do(t, "GET", "/api/v1/portfolio", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[ledger.Valuation](t, resp)
	require.Len(t, v.Holdings, 1)
	assert.True(t, v.Holdings[0].Value.Equal(decimal.NewFromInt(5000)))
	assert.True(t, v.NetWorth.Equal(decimal.NewFromInt(11000)))

	resp = f.do(t, "GET", "/api/v1/history?limit=1", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]ledger.Transaction](t, resp), 1)

	resp = f.do(t, "GET", "/api/v1/history?limit=-2", "tok-alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, "POST", "/api/v1/reset", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[ledger.Account](t, resp).Cash.Equal(decimal.NewFromInt(10000)))

	resp = f.do(t, "GET", "/api/v1/history", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]ledger.Transaction](t, resp))
}

func TestCopyEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteBuy(ctx, "bob", "BTC", decimal.RequireFromString("0.05"), ledger.Units)
	require.NoError(t, err)

	resp := f.do(t, "GET", "/api/v1/copy/bob", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[ledger.CopyPreview](t, resp)
	assert.True(t, p.TotalCost.Equal(decimal.NewFromInt(2500)))
	assert.True(t, p.CanMerge)

	resp = f.do(t, "POST", "/api/v1/copy/bob", "tok-alice", `{"mode":"replace"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[ledger.CopyResult](t, resp)
	assert.Equal(t, "replace", res.Mode)
	require.Len(t, res.Bought, 1)
	assert.True(t, res.Cash.Equal(decimal.NewFromInt(7500)))

	resp = f.do(t, "POST", "/api/v1/copy/alice", "tok-alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidCopySource", decode[ErrorResponse](t, resp).Error)

	resp = f.do(t, "POST", "/api/v1/copy/bob", "tok-alice", `{"mode":"yolo"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLeaderboardAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ExecuteBuy(ctx, "bob", "ETH", decimal.NewFromInt(2), ledger.Units)
	require.NoError(t, err)
	f.prices.Set("ETH-USD", decimal.NewFromInt(3000))

	resp := f.do(t, "GET", "/api/v1/leaderboard", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decode[[]ledger.Standing](t, resp)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].AccountID)
	assert.Equal(t, 1, board[0].Rank)
	assert.True(t, board[0].NetWorth.Equal(decimal.NewFromInt(12000)))

	resp = f.do(t, "GET", "/api/v1/accounts/bob", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[ledger.Valuation](t, resp)
	assert.Equal(t, "bob", v.Account.ID)

	resp = f.do(t, "GET", "/api/v1/accounts/nobody", "tok-alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{ledger.ErrInvalidCopySource, http.StatusBadRequest},
		{ledger.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{ledger.ErrInsufficientHoldings, http.StatusUnprocessableEntity},
		{ledger.ErrPriceUnavailable, http.StatusServiceUnavailable},
		{ledger.ErrAccountNotFound, http.StatusNotFound},
		{ledger.ErrPersistence, http.StatusInternalServerError},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusOf(tt.err))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	store, err := journal.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	engine := ledger.NewEngine(store, oracle.NewStatic(nil), ledger.Options{})
	srv := NewServer(engine, NewAuthenticator(nil), WithAllowedOrigins("http://app.test"))

	req := httptest.NewRequest("OPTIONS", "/api/v1/orders", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST"))
}
