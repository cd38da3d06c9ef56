package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/audit"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/metrics"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/notify"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/service"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/signal"
	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/txstore"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var (
	ethFrom = "0x" + strings.Repeat("1", 40)
	ethTo   = "0x" + strings.Repeat("2", 40)
)

type testEnv struct {
	ts    *httptest.Server
	bus   *notify.Bus
	clock *clockwork.FakeClock
	svc   *service.Service
}

func newTestEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	d, err := signal.NewDeriver([]byte("SECRET"))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	env := &testEnv{
		bus:   notify.NewBus(nil),
		clock: clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	env.svc, err = service.New(service.Deps{
		Transactions:    txstore.NewMemoryRepository(),
		Signals:         signal.NewStore(signal.NewMemoryBackend(), d, nil, nil),
		Audit:           audit.NewMemoryStore(),
		Bus:             env.bus,
		Metrics:         metrics.New(reg),
		Clock:           env.clock,
		RefreshInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(env.svc.Close)
	env.ts = httptest.NewServer(NewServer(cfg, env.svc, WithGatherer(reg)).Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, header map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) createAndIssue(t *testing.T) (txID string, sig map[string]interface{}) {
	t.Helper()
	code, tx := e.do(t, http.MethodPost, "/api/transactions", service.CreateInput{Sender: ethFrom, Recipient: ethTo, Amount: "2", Network: "ETH"}, nil)
	require.Equal(t, http.StatusCreated, code)
	txID = tx["id"].(string)
	code, sig = e.do(t, http.MethodPost, "/api/signals", IssueRequest{TransactionID: txID}, nil)
	require.Equal(t, http.StatusCreated, code)
	return txID, sig
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	for _, p := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(env.ts.URL + p)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, p)
	}
}

func TestFlow_IssueValidateAndLog(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	txID, sig := env.createAndIssue(t)

	code, got := env.do(t, http.MethodGet, "/api/signals/"+txID, nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, sig["code"], got["code"])

	env.clock.Advance(30 * time.Second)
	code, out := env.do(t, http.MethodPost, "/api/validate", service.ValidateInput{
		TransactionID: txID, Code: sig["code"].(string), IssuedAt: sig["issued_at"].(string),
	}, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, out["approved"])
	require.Equal(t, "Valid signal. Verified in 30.0s", out["reason"])

	code, out = env.do(t, http.MethodPost, "/api/validate", service.ValidateInput{
		TransactionID: txID, Code: sig["code"].(string), IssuedAt: sig["issued_at"].(string),
	}, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, string(models.OutcomeReplay), out["kind"])

	code, logs := env.do(t, http.MethodGet, "/api/logs?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, logs["entries"], 1)

	code, logs = env.do(t, http.MethodGet, "/api/logs?transaction_id="+txID, nil, nil)
	require.Equal(t, http.StatusOK, code)
	byTx := logs["entries"].([]interface{})
	require.Len(t, byTx, 2)
	require.Equal(t, string(models.OutcomeApproved), byTx[0].(map[string]interface{})["kind"])

	code, logs = env.do(t, http.MethodGet, "/api/logs?transaction_id=unknown", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, logs["entries"])

	code, _ = env.do(t, http.MethodPost, "/api/signals", IssueRequest{TransactionID: txID}, nil)
	require.Equal(t, http.StatusConflict, code)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown network", http.MethodPost, "/api/transactions", service.CreateInput{Sender: ethFrom, Recipient: ethTo, Amount: "1", Network: "XRP"}, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/api/transactions", service.CreateInput{Sender: ethFrom, Recipient: ethTo, Amount: "-1", Network: "ETH"}, http.StatusBadRequest},
		{"issue unknown tx", http.MethodPost, "/api/signals", IssueRequest{TransactionID: "nope"}, http.StatusNotFound},
		{"issue missing id", http.MethodPost, "/api/signals", IssueRequest{}, http.StatusBadRequest},
		{"validate unknown tx", http.MethodPost, "/api/validate", service.ValidateInput{TransactionID: "nope"}, http.StatusNotFound},
		{"no signal", http.MethodGet, "/api/signals/nope", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := env.do(t, tc.method, tc.path, tc.body, nil)
			require.Equal(t, tc.want, code)
		})
	}
}

func TestAdminToken(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{AdminToken: "s3cret"})
	txID, _ := env.createAndIssue(t)

	code, _ := env.do(t, http.MethodDelete, "/api/transactions", nil, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodDelete, "/api/transactions", nil, map[string]string{"X-Admin-Token": "s3cret"})
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodGet, "/api/signals/"+txID, nil, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodDelete, "/api/logs", nil, map[string]string{"X-Admin-Token": "s3cret"})
	require.Equal(t, http.StatusOK, code)
}

func TestValidateRateLimit(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{ValidateRatePerSecond: 0.001, ValidateBurst: 1})
	in := service.ValidateInput{TransactionID: "nope", Code: "X", IssuedAt: "2025-01-01T00:00:00.000Z"}
	code, _ := env.do(t, http.MethodPost, "/api/validate", in, nil)
	require.Equal(t, http.StatusNotFound, code)
	code, _ = env.do(t, http.MethodPost, "/api/validate", in, nil)
	require.Equal(t, http.StatusTooManyRequests, code)
}

func TestEvents_PushesConfirmation(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	txID, _ := env.createAndIssue(t)

	wsURL := "ws" + env.ts.URL[4:] + "/api/events?transaction_id=" + txID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// service 自身一个订阅 + 本连接一个
	require.Eventually(t, func() bool { return env.bus.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, env.svc.PublishConfirmation(ctx, models.ConfirmationEvent{TransactionID: "other", Confirmed: true}))
	require.NoError(t, env.svc.PublishConfirmation(ctx, models.ConfirmationEvent{TransactionID: txID, Confirmed: true, BlockNumber: 7}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "confirmation", msg.Type)
	require.Equal(t, txID, msg.Confirmation.TransactionID)
	require.Equal(t, uint64(7), msg.Confirmation.BlockNumber)

	conn.Close()
	require.Eventually(t, func() bool { return env.bus.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeishuCardReissue(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	txID, _ := env.createAndIssue(t)
	body := map[string]interface{}{
		"action": map[string]interface{}{"value": map[string]interface{}{"transaction_id": txID, "action": "reissue"}},
	}
	code, out := env.do(t, http.MethodPost, "/feishu/card", body, nil)
	require.Equal(t, http.StatusOK, code)
	toast := out["toast"].(map[string]interface{})
	require.Equal(t, "success", toast["type"])
}
