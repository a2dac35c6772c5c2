package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lvlup-backend/apperr"
	"lvlup-backend/blockchain"
	"lvlup-backend/middleware"
	"lvlup-backend/services"
	"lvlup-backend/storage/storagetest"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testKey    = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	testWallet = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	testEscrow = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testToken  = "gateway-secret"
)

func newTestApp(t *testing.T) (*fiber.App, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC))
	store := storagetest.New(t)
	signer, err := blockchain.NewAuthority(testKey, clock)
	require.NoError(t, err)
	log := zap.NewNop()

	payout := services.NewPayoutCalculator(store, store, clock)
	deposit, _ := new(big.Int).SetString("1000000000000000000", 10)

	app := fiber.New()
	app.Use(middleware.Metrics())
	app.Use(middleware.GatewayAuthMiddleware(testToken, log))

	SetupSystemRoutes(app, store, signer.Address(), log)
	SetupStakingRoutes(app, services.NewStakeService(store, store, signer, clock, log), log)
	SetupFinanceRoutes(app, services.NewSettlementService(store, payout, signer, nil, services.SettlementConfig{
		EscrowAddress:  testEscrow,
		ChainID:        84532,
		DefaultDeposit: deposit,
		SignatureTTL:   time.Hour,
	}, clock, log), log)
	SetupRewardRoutes(app, services.NewRewardService(store, store, signer, nil, big.NewInt(100), clock, log), log)
	SetupExtraLifeRoutes(app, services.NewExtraLifeArbiter(store, nil, clock, log), log)
	SetupTimeblockRoutes(app, services.NewActivityService(store, log), services.NewPlannerService(store), log)
	return app, clock
}

func call(t *testing.T, app *fiber.App, method, path, userID string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestStakingRoutes(t *testing.T) {
	app, clock := newTestApp(t)

	stake := map[string]any{
		"user_address":    testWallet,
		"amount":          "1000000000000000000",
		"habits_required": 2,
		"stake_tx_hash":   "0xstake",
	}

	status, _ := call(t, app, http.MethodPost, "/staking/stake", "", stake)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := call(t, app, http.MethodPost, "/staking/stake", "u1", stake)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "active", body["status"])

	status, body = call(t, app, http.MethodPost, "/staking/stake", "u1", stake)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_active_stake", body["error"])

	status, body = call(t, app, http.MethodPost, "/staking/claim", "u1", nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, float64(7*24*3600), body["remaining_seconds"])

	status, body = call(t, app, http.MethodPost, "/staking/report-habit", "u1", map[string]string{"task_id": "missing"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "task_not_found", body["reason"])

	clock.Advance(8 * 24 * time.Hour)
	status, body = call(t, app, http.MethodPost, "/staking/claim", "u1", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["signature"])

	status, body = call(t, app, http.MethodPost, "/staking/confirm-claim", "u1", map[string]string{"claim_tx_hash": "0xclaim"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["already_confirmed"])

	status, body = call(t, app, http.MethodGet, "/staking/active", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["active"])

	status, body = call(t, app, http.MethodGet, "/staking/stats", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["sessions_count"])
}

func TestFinanceRoutes(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, http.MethodPost, "/finance/settlement/sign", "", map[string]any{
		"wallet_address": testWallet,
		"period_id":      10,
		"deposit_amount": "1.5",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_amount_format", body["error"])

	status, body = call(t, app, http.MethodPut, "/finance/commitments", "", map[string]any{
		"wallet_address": testWallet,
		"period_id":      10,
		"mode":           "CUSTOM",
		"category_ids":   []string{"Health"},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"health"}, body["category_ids"])

	status, body = call(t, app, http.MethodGet, "/finance/commitments/"+testWallet+"/10", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "CUSTOM", body["mode"])

	status, _ = call(t, app, http.MethodGet, "/finance/payout/"+testWallet+"/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, app, http.MethodGet, "/finance/payout/"+testWallet+"/10?deposit=1000", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1000), body["amount"])

	status, body = call(t, app, http.MethodPost, "/finance/settlement/sign", "", map[string]any{
		"wallet_address": testWallet,
		"period_id":      10,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["signed"])
	assert.Equal(t, "1000000000000000000", body["amount_to_return"])

	confirm := map[string]any{"wallet_address": testWallet, "period_id": 10, "tx_hash": "0xsettle"}
	status, body = call(t, app, http.MethodPost, "/finance/settlement/confirm", "", confirm)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["already_settled"])

	status, body = call(t, app, http.MethodPost, "/finance/settlement/confirm", "", confirm)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["already_settled"])
}

func TestRewardAndPlannerRoutes(t *testing.T) {
	app, _ := newTestApp(t)

	status, block := call(t, app, http.MethodPost, "/timeblocks", "u1", map[string]any{
		"title":       "Run",
		"date":        "2026-03-11",
		"start_time":  "07:00",
		"end_time":    "08:00",
		"category_id": "health",
	})
	require.Equal(t, http.StatusCreated, status, block)
	id, _ := block["id"].(string)

	status, body := call(t, app, http.MethodGet, "/rewards/validate/"+id, "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "incomplete", body["status"])

	status, _ = call(t, app, http.MethodPatch, "/timeblocks/"+id, "u1", map[string]bool{"completed": true})
	assert.Equal(t, http.StatusOK, status)

	claim := map[string]string{"task_id": id, "user_address": testWallet}
	status, body = call(t, app, http.MethodPost, "/rewards/claim", "u1", claim)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "100", body["reward_amount"])

	status, body = call(t, app, http.MethodPost, "/rewards/claim", "u1", claim)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_task_claim", body["error"])

	status, body = call(t, app, http.MethodGet, "/timeblocks?date=2026-03-11", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["timeblocks"], 1)

	status, body = call(t, app, http.MethodPut, "/config", "u1", map[string]int{"start_hour": 22, "end_hour": 6})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_hour_range", body["error"])

	status, body = call(t, app, http.MethodGet, "/config", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(5), body["start_hour"])

	status, _ = call(t, app, http.MethodDelete, "/timeblocks/"+id, "u1", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestExtraLifeRoutes(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, http.MethodPost, "/extra-life/use", "u1", nil)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "saved", body["result"])
	assert.Nil(t, body["coin_flip"])

	status, body = call(t, app, http.MethodGet, "/extra-life/status", "u1", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["uses_count"])
	assert.Equal(t, false, body["next_is_guaranteed"])
}

func TestSystemRoutes(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ := call(t, app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "lvlup_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(apperr.Unavailable(errors.New("conn refused"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperr.ErrMissingSigningKey))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusPreconditionFailed, statusFor(&apperr.PeriodNotEndedError{Remaining: time.Hour}))
}
