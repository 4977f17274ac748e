package handlers_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spendregistry/internal/handlers"
	"spendregistry/internal/handlers/testutils"
	"spendregistry/internal/registry"
)

var (
	central = testAddr(0xa)
	deptA   = testAddr(0xb)
	deptB   = testAddr(0xc)
)

func testAddr(n int64) string {
	return fmt.Sprintf("0x%040x", n)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandler builds a memory-only registry with two active entities
// and a fixed clock.
func newTestHandler(t *testing.T) *handlers.Handler {
	t.Helper()
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	reg, err := registry.New(ctx, central, nil,
		registry.WithClock(func() time.Time { return now }),
		registry.WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = reg.RegisterEntity(ctx, central, deptA, "Dept of Roads")
	require.NoError(t, err)
	_, err = reg.RegisterEntity(ctx, central, deptB, "Dept of Health")
	require.NoError(t, err)

	return handlers.NewHandler(reg, discardLogger())
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target, callerAddr, body string, params map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if callerAddr != "" {
		req.Header.Set("X-Caller-Address", callerAddr)
	}
	if params != nil {
		req = testutils.WithChiURLParams(req, params)
	}

	w := httptest.NewRecorder()
	h(w, req)
	return w.Result()
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRegisterEntityHandler(t *testing.T) {
	h := newTestHandler(t)

	addr := testAddr(0xd)
	res := doJSON(t, h.RegisterEntityHandler, http.MethodPost, "/api/entities", central,
		fmt.Sprintf(`{"address":%q,"name":"Dept of Energy"}`, addr), nil)
	body := readBody(t, res)

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, body, addr)
	require.Contains(t, body, `"isActive":true`)
}

func TestRegisterEntityHandlerSelfIsPending(t *testing.T) {
	h := newTestHandler(t)

	addr := testAddr(0xe)
	res := doJSON(t, h.RegisterEntityHandler, http.MethodPost, "/api/entities", addr,
		fmt.Sprintf(`{"address":%q,"name":"Self Registered"}`, addr), nil)
	body := readBody(t, res)

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, body, `"isPending":true`)
	require.Contains(t, body, `"isActive":false`)
}

func TestRegisterEntityHandlerForbidden(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.RegisterEntityHandler, http.MethodPost, "/api/entities", deptA,
		fmt.Sprintf(`{"address":%q,"name":"Someone Else"}`, testAddr(0xf)), nil)
	readBody(t, res)

	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestRegisterEntityHandlerBadBody(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.RegisterEntityHandler, http.MethodPost, "/api/entities", central, `{"address":`, nil)
	readBody(t, res)

	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetEntityHandler(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.GetEntityHandler, http.MethodGet, "/api/entities/"+deptA, "", "",
		map[string]string{"address": deptA})
	body := readBody(t, res)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, "Dept of Roads")
}

func TestGetEntityHandlerNotFound(t *testing.T) {
	h := newTestHandler(t)

	unknown := testAddr(0x99)
	res := doJSON(t, h.GetEntityHandler, http.MethodGet, "/api/entities/"+unknown, "", "",
		map[string]string{"address": unknown})
	readBody(t, res)

	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestIssueFundsHandler(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.IssueFundsHandler, http.MethodPost, "/api/funds/issue", central,
		fmt.Sprintf(`{"entity":%q,"amount":1000}`, deptA), nil)
	body := readBody(t, res)

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, body, `"amount":1000`)

	e, err := h.Registry.GetEntityDetails(deptA)
	require.NoError(t, err)
	require.Equal(t, int64(1000), e.Balance)
}

func TestIssueFundsHandlerForbidden(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.IssueFundsHandler, http.MethodPost, "/api/funds/issue", deptA,
		fmt.Sprintf(`{"entity":%q,"amount":1000}`, deptB), nil)
	readBody(t, res)

	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestRecordSpendingHandlerInsufficientFunds(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.RecordSpendingHandler, http.MethodPost, "/api/spending", deptA,
		`{"purpose":"road repair","amount":500}`, nil)
	readBody(t, res)

	require.Equal(t, http.StatusPaymentRequired, res.StatusCode)
}

func TestRecordSpendingHandler(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Registry.IssueFunds(ctx, central, deptA, 1000)
	require.NoError(t, err)

	res := doJSON(t, h.RecordSpendingHandler, http.MethodPost, "/api/spending", deptA,
		`{"purpose":"road repair","amount":400,"documentHash":"abc123"}`, nil)
	body := readBody(t, res)

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, body, "road repair")
	require.Contains(t, body, `"needToSpend":400`)
}

func TestGetSpendingRecordsHandlerBadLimit(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.GetSpendingRecordsHandler, http.MethodGet, "/api/spending?limit=abc", "", "", nil)
	readBody(t, res)

	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPlaceBidHandler(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Registry.IssueFunds(ctx, central, deptA, 5000)
	require.NoError(t, err)
	_, err = h.Registry.IssueFunds(ctx, central, deptB, 5000)
	require.NoError(t, err)

	tender, err := h.Registry.IssueTender(ctx, deptA, "Bridge", "Build a bridge over the river", 3000, 1_700_100_000, 100, 1000)
	require.NoError(t, err)

	res := doJSON(t, h.PlaceBidHandler, http.MethodPost, "/api/tenders/1/bids", deptB,
		`{"amount":500}`, map[string]string{"tenderId": fmt.Sprint(tender.ID)})
	body := readBody(t, res)

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, body, `"amount":500`)
	require.Equal(t, int64(500), h.Registry.EscrowHeld())
}

func TestPlaceBidHandlerIssuerForbidden(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Registry.IssueFunds(ctx, central, deptA, 5000)
	require.NoError(t, err)
	_, err = h.Registry.IssueTender(ctx, deptA, "Bridge", "Build a bridge over the river", 3000, 1_700_100_000, 100, 1000)
	require.NoError(t, err)

	res := doJSON(t, h.PlaceBidHandler, http.MethodPost, "/api/tenders/1/bids", deptA,
		`{"amount":500}`, map[string]string{"tenderId": "1"})
	readBody(t, res)

	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestGetTenderHandlerInvalidID(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.GetTenderHandler, http.MethodGet, "/api/tenders/zero", "", "",
		map[string]string{"tenderId": "zero"})
	readBody(t, res)

	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestVoteHandlerDoubleVoteConflict(t *testing.T) {
	h := newTestHandler(t)

	params := map[string]string{"address": deptB}
	res := doJSON(t, h.VoteHandler, http.MethodPost, "/api/entities/"+deptB+"/vote", deptA,
		`{"rating":4}`, params)
	readBody(t, res)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = doJSON(t, h.VoteHandler, http.MethodPost, "/api/entities/"+deptB+"/vote", deptA,
		`{"rating":5}`, params)
	readBody(t, res)
	require.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestVoteHandlerRatingOutOfRange(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.VoteHandler, http.MethodPost, "/api/entities/"+deptB+"/vote", deptA,
		`{"rating":6}`, map[string]string{"address": deptB})
	readBody(t, res)

	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestBalanceHandler(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.Registry.FundBonusPool(ctx, central, 900))

	res := doJSON(t, h.BalanceHandler, http.MethodGet, "/api/balance", "", "", nil)
	body := readBody(t, res)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, `"bonusPool":900`)
	require.Contains(t, body, `"contractBalance":900`)
}

func TestDistributeBonusHandlerTooEarly(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.Registry.FundBonusPool(ctx, central, 900))
	require.NoError(t, h.Registry.VoteForEntity(ctx, deptA, deptB, 5))

	res := doJSON(t, h.DistributeBonusHandler, http.MethodPost, "/api/bonus/distribute", central, "", nil)
	readBody(t, res)

	require.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestFundRequestLifecycle(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.RequestFundsHandler, http.MethodPost, "/api/fund-requests", deptA,
		`{"amount":700,"reason":"equipment"}`, nil)
	body := readBody(t, res)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, body, "equipment")

	res = doJSON(t, h.ApproveFundRequestHandler, http.MethodPost, "/api/fund-requests/1/approve", central,
		"", map[string]string{"requestId": "1"})
	readBody(t, res)
	require.Equal(t, http.StatusOK, res.StatusCode)

	// resolving twice conflicts
	res = doJSON(t, h.RejectFundRequestHandler, http.MethodPost, "/api/fund-requests/1/reject", central,
		"", map[string]string{"requestId": "1"})
	readBody(t, res)
	require.Equal(t, http.StatusConflict, res.StatusCode)

	e, err := h.Registry.GetEntityDetails(deptA)
	require.NoError(t, err)
	require.Equal(t, int64(700), e.Balance)
}

func TestPingHandler(t *testing.T) {
	h := newTestHandler(t)

	res := doJSON(t, h.PingHandler, http.MethodGet, "/api/ping", "", "", nil)
	body := readBody(t, res)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", body)
}
