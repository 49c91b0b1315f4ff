package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	nativecommon "github.com/mars-protocol/v1-core-sub000/native/common"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/native/redbank/ledger"
	"github.com/mars-protocol/v1-core-sub000/services/redbankd/config"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var (
	contract = crypto.ModuleAddress("redbankd-test/contract")
	owner    = crypto.ModuleAddress("redbankd-test/owner")
	alice    = crypto.ModuleAddress("redbankd-test/alice")
	bob      = crypto.ModuleAddress("redbankd-test/bob")
	carol    = crypto.ModuleAddress("redbankd-test/carol")
	treasury = crypto.ModuleAddress("redbankd-test/treasury")
)

func decimalPtr(s string) *numeric.Decimal {
	d := numeric.MustParseDecimal(s)
	return &d
}

func listingParams() redbank.AssetParams {
	strategy := redbank.NewLinearStrategy(redbank.LinearParams{
		OptimalUtilizationRate: numeric.MustParseDecimal("0.8"),
		Base:                   numeric.MustParseDecimal("0.2"),
		Slope1:                 numeric.MustParseDecimal("0.5"),
		Slope2:                 numeric.MustParseDecimal("1"),
	})
	return redbank.AssetParams{
		ReserveFactor:        decimalPtr("0.2"),
		MaxLoanToValue:       decimalPtr("0.5"),
		MaintenanceMargin:    decimalPtr("0.6"),
		LiquidationBonus:     decimalPtr("0.1"),
		InterestRateStrategy: &strategy,
	}
}

type fixture struct {
	t       *testing.T
	db      *storage.MemDB
	runtime *Runtime
	server  *httptest.Server
	pauses  *nativecommon.PauseSet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := storage.NewMemDB()
	pauses := nativecommon.NewPauseSet()
	rt, err := NewRuntime(db, RuntimeConfig{
		Contract: contract,
		Registry: ledger.StaticRegistry{redbank.RoleTreasury: treasury},
		Pauses:   pauses,
		Logger:   logger,
		Now:      func() int64 { return 1_600_000_000 },
	})
	require.NoError(t, err)

	genesis := &redbank.Genesis{
		Config: redbank.Config{
			Owner:              owner,
			CloseFactor:        numeric.NewPercent(50),
			SafetyFundFeeShare: numeric.NewPercent(10),
			TreasuryFeeShare:   numeric.NewPercent(20),
			MarketCapacity:     8,
		},
		Markets: []redbank.MarketListing{
			{Asset: redbank.NativeAsset("uusd"), Params: listingParams()},
			{Asset: redbank.NativeAsset("uluna"), Params: listingParams()},
		},
	}
	prices := []config.PriceEntry{
		{Asset: redbank.NativeAsset("uusd"), Price: numeric.OneDecimal()},
		{Asset: redbank.NativeAsset("uluna"), Price: numeric.OneDecimal()},
	}
	require.NoError(t, rt.Bootstrap(context.Background(), genesis, prices))

	srv, err := New(Config{Auth: AuthConfig{HMACSecret: testSecret}}, rt, logger)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{t: t, db: db, runtime: rt, server: ts, pauses: pauses}
}

func token(t *testing.T, subject crypto.Address, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(method, path string, as crypto.Address, body interface{}) (int, map[string]interface{}) {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	if !as.IsZero() {
		req.Header.Set("Authorization", "Bearer "+token(f.t, as, testSecret))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	var out map[string]interface{}
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		require.NoError(f.t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (f *fixture) ok(method, path string, as crypto.Address, body interface{}) map[string]interface{} {
	f.t.Helper()
	status, out := f.do(method, path, as, body)
	require.Equal(f.t, http.StatusOK, status, "%s %s: %v", method, path, out)
	return out
}

func (f *fixture) credit(to crypto.Address, asset string, amount string) {
	f.ok(http.MethodPost, "/v1/admin/credit", owner, map[string]string{"asset": asset, "to": to.String(), "amount": amount})
}

func (f *fixture) balances(holder crypto.Address, asset string) map[string]interface{} {
	return f.ok(http.MethodGet, fmt.Sprintf("/v1/users/%s/balances/%s", holder, asset), holder, nil)
}

func TestHealthAndAuthentication(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(http.MethodGet, "/healthz", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(http.MethodGet, "/v1/config", crypto.Address{}, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "missing bearer token", body["error"])

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/v1/config", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, alice, "another-secret-another-secret-xx"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(headerRequestID))

	cfg := f.ok(http.MethodGet, "/v1/config", alice, nil)
	require.Equal(t, owner.String(), cfg["owner"])
	require.Equal(t, "0.5", cfg["close_factor"])
}

func TestGenesisActivatesMarkets(t *testing.T) {
	f := newFixture(t)
	market := f.ok(http.MethodGet, "/v1/markets/uusd", alice, nil)
	require.Equal(t, "active", market["status"])
	require.Equal(t, ledger.TokenAddress(redbank.NativeAsset("uusd")).String(), market["liquidity_token"])

	// A second bootstrap must leave the existing state alone.
	require.NoError(t, f.runtime.Bootstrap(context.Background(), nil, nil))
}

func TestDepositBorrowFlow(t *testing.T) {
	f := newFixture(t)
	f.credit(alice, "uusd", "1000")
	f.credit(bob, "uluna", "1000")

	out := f.ok(http.MethodPost, "/v1/deposit", alice, map[string]string{"asset": "uusd", "amount": "1000"})
	effects := out["effects"].([]interface{})
	require.Len(t, effects, 1)
	require.Equal(t, "mint", effects[0].(map[string]interface{})["kind"])
	require.Equal(t, "1000", effects[0].(map[string]interface{})["amount"])

	bal := f.balances(alice, "uusd")
	require.Equal(t, "0", bal["underlying"])
	require.Equal(t, "1000", bal["scaled"])
	require.Equal(t, "1000", bal["deposited"])

	f.ok(http.MethodPost, "/v1/deposit", bob, map[string]string{"asset": "uluna", "amount": "1000"})

	status, body := f.do(http.MethodPost, "/v1/borrow", bob, map[string]string{"asset": "uusd", "amount": "600"})
	require.Equal(t, http.StatusUnprocessableEntity, status, "%v", body)

	f.ok(http.MethodPost, "/v1/borrow", bob, map[string]string{"asset": "uusd", "amount": "400"})
	require.Equal(t, "400", f.balances(bob, "uusd")["underlying"])

	position := f.ok(http.MethodGet, fmt.Sprintf("/v1/users/%s/position", bob), bob, nil)
	health := position["health"].(map[string]interface{})
	require.Equal(t, "borrowing", health["status"])

	conv := f.ok(http.MethodGet, "/v1/markets/uusd/scaled-debt?amount=400", bob, nil)
	require.Equal(t, "400", conv["result"])
}

func TestFailedActionLeavesWalletUntouched(t *testing.T) {
	f := newFixture(t)
	f.credit(alice, "uusd", "500")

	f.pauses.Pause("redbank")
	status, _ := f.do(http.MethodPost, "/v1/deposit", alice, map[string]string{"asset": "uusd", "amount": "500"})
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "500", f.balances(alice, "uusd")["underlying"])

	f.pauses.Resume("redbank")
	f.ok(http.MethodPost, "/v1/deposit", alice, map[string]string{"asset": "uusd", "amount": "500"})
	require.Equal(t, "0", f.balances(alice, "uusd")["underlying"])
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(http.MethodPost, "/v1/deposit", alice, map[string]string{"asset": "uusd", "amount": "abc"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(http.MethodPost, "/v1/deposit", alice, map[string]string{"asset": "uusd", "amount": "1", "extra": "x"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(http.MethodPost, "/v1/withdraw", alice, map[string]string{"asset": "uatom"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(http.MethodPost, "/v1/deposit", alice, map[string]string{"asset": "uusd", "amount": "10"})
	require.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = f.do(http.MethodPost, "/v1/admin/credit", alice, map[string]string{"asset": "uusd", "to": alice.String(), "amount": "10"})
	require.Equal(t, http.StatusForbidden, status)
}

func TestAdminListsAndUpdatesMarket(t *testing.T) {
	f := newFixture(t)
	params := listingParams()

	status, _ := f.do(http.MethodPost, "/v1/admin/assets", alice, map[string]interface{}{"asset": "uatom", "params": params})
	require.Equal(t, http.StatusForbidden, status)

	out := f.ok(http.MethodPost, "/v1/admin/assets", owner, map[string]interface{}{"asset": "uatom", "params": params})
	tokens := out["liquidity_tokens"].([]interface{})
	require.Len(t, tokens, 1)
	require.Equal(t, "active", f.ok(http.MethodGet, "/v1/markets/uatom", alice, nil)["status"])

	f.ok(http.MethodPut, "/v1/admin/assets", owner, map[string]interface{}{
		"asset":  "uatom",
		"params": map[string]string{"max_loan_to_value": "0.4"},
	})
	require.Equal(t, "0.4", f.ok(http.MethodGet, "/v1/markets/uatom", alice, nil)["max_loan_to_value"])

	f.ok(http.MethodPut, "/v1/admin/config", owner, map[string]string{"close_factor": "0.25"})
	require.Equal(t, "0.25", f.ok(http.MethodGet, "/v1/config", alice, nil)["close_factor"])

	f.ok(http.MethodPut, "/v1/admin/limits", owner, map[string]string{"user": bob.String(), "asset": "uatom", "limit": "700"})
	limit := f.ok(http.MethodGet, fmt.Sprintf("/v1/users/%s/limits/uatom", bob), bob, nil)
	require.Equal(t, "700", limit["limit"])

	f.ok(http.MethodPut, "/v1/admin/prices", owner, map[string]interface{}{"prices": map[string]string{"uatom": "12.5"}})
	var price numeric.Decimal
	require.NoError(t, f.runtime.View(context.Background(), func(s *Session) error {
		var err error
		price, err = s.Prices.Price(redbank.NativeAsset("uatom"))
		return err
	}))
	require.Equal(t, "12.5", price.String())
}

func TestLiquidityTokenTransfer(t *testing.T) {
	f := newFixture(t)
	f.credit(alice, "uusd", "1000")
	f.ok(http.MethodPost, "/v1/deposit", alice, map[string]string{"asset": "uusd", "amount": "1000"})

	out := f.ok(http.MethodPost, "/v1/transfer", alice, map[string]string{"asset": "uusd", "to": carol.String(), "amount": "400"})
	evts := out["events"].([]interface{})
	require.NotEmpty(t, evts)

	require.Equal(t, "400", f.balances(carol, "uusd")["scaled"])
	require.Equal(t, "600", f.balances(alice, "uusd")["scaled"])

	status, _ := f.do(http.MethodPost, "/v1/transfer", alice, map[string]string{"asset": "uusd", "to": carol.String(), "amount": "601"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "600", f.balances(alice, "uusd")["scaled"])
}

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	now := time.Unix(1_600_000_000, 0)
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2}, nil)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.allow("10.0.0.1"))
	require.True(t, limiter.allow("10.0.0.1"))
	require.False(t, limiter.allow("10.0.0.1"))
	require.True(t, limiter.allow("10.0.0.2"))

	now = now.Add(time.Second)
	require.True(t, limiter.allow("10.0.0.1"))

	now = now.Add(10 * time.Minute)
	limiter.allow("10.0.0.3")
	limiter.mu.Lock()
	_, kept := limiter.visitors["10.0.0.2"]
	limiter.mu.Unlock()
	require.False(t, kept, "idle visitors should be evicted")
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		redbank.ErrInvalidAmount:           http.StatusBadRequest,
		redbank.ErrNotOwner:                http.StatusForbidden,
		redbank.ErrHealthFactorBelowOne:    http.StatusUnprocessableEntity,
		redbank.ErrDebtTotalExceeded:       http.StatusConflict,
		nativecommon.ErrModulePaused:       http.StatusServiceUnavailable,
		ledger.ErrPriceNotFound:            http.StatusFailedDependency,
		ledger.ErrInsufficientBalance:      http.StatusUnprocessableEntity,
		errors.New("disk on fire"):         http.StatusInternalServerError,
		fmt.Errorf("%w: x", errBadRequest): http.StatusBadRequest,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), "%v", err)
	}
}
