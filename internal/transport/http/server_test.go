package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"riptide/internal/bridge"
	"riptide/internal/config"
	"riptide/internal/events"
	"riptide/internal/exchange/paper"
	"riptide/internal/feed"
	"riptide/internal/order"
	"riptide/internal/position"
	"riptide/internal/risk"
)

func newTestServer(t *testing.T) (*Server, *position.Ledger, *risk.Manager) {
	t.Helper()
	ledger := position.NewLedger(10000)
	window := feed.NewWindow(32)
	engine := order.NewEngine(order.Config{})
	rm := risk.NewManager(risk.Options{
		Ledger:  ledger,
		History: window,
		Bus:     events.NewBus(),
		Limits:  config.RiskConfig{MaxPositionSize: 0.1, MaxDailyLoss: 0.05, MaxDrawdown: 0.2, MaxLeverage: 3, MaxCorrelation: 0.7},
	})
	b := bridge.New(bridge.Options{
		Trading:   config.TradingConfig{MaxConcurrentExecutions: 1, QueueCapacity: 8, ExecutionTimeoutSeconds: 5},
		Risk:      rm,
		Orders:    engine,
		Ledger:    ledger,
		Submitter: paper.New(paper.Config{}),
		Window:    window,
	})
	s, err := NewServer(Config{Addr: ":0", Bridge: b, Risk: rm, Orders: engine, Ledger: ledger})
	assert.NoError(t, err)
	return s, ledger, rm
}

func doGet(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestStatusEndpoint(t *testing.T) {
	s, ledger, _ := newTestServer(t)
	ledger.ApplyFill("BTCUSDT", true, 1, 100, 0)

	rec, body := doGet(t, s, "/api/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10000.0, body["balance"])
	assert.Equal(t, false, body["paused"])
}

func TestPositionsEndpoint(t *testing.T) {
	s, ledger, _ := newTestServer(t)
	ledger.ApplyFill("BTCUSDT", true, 1, 100, 0)
	ledger.ApplyFill("ETHUSDT", true, 1, 50, 0)
	ledger.ApplyFill("ETHUSDT", false, 1, 50, 0) // closed

	rec, body := doGet(t, s, "/api/positions?open=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body, 1)
	assert.Contains(t, body, "BTCUSDT")

	_, all := doGet(t, s, "/api/positions")
	assert.Len(t, all, 2)
}

func TestRiskEndpoints(t *testing.T) {
	s, _, rm := newTestServer(t)

	rec, body := doGet(t, s, "/api/risk/limits")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.1, body["max_position_size"])

	rm.RaiseEvent(risk.Event{Type: "manual_halt", Severity: risk.SeverityExtreme, Message: "halt"})
	assert.True(t, rm.Paused())

	req := httptest.NewRequest(http.MethodPost, "/api/risk/resume", nil)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.False(t, rm.Paused())
}

func TestHistoryDisabled(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec, _ := doGet(t, s, "/api/history/orders")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignalIngest(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/signal",
		strings.NewReader(`{"symbol": "BTCUSDT", "action": "open_long", "size": 1}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	bad := httptest.NewRequest(http.MethodPost, "/api/signal",
		strings.NewReader(`{"symbol": "BTCUSDT", "action": "hold"}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec, body := doGet(t, s, "/api/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "bridge")
	assert.Contains(t, body, "orders")
	assert.Contains(t, body, "risk")
	assert.Contains(t, rec.Body.String(), `"breaker_state":"CLOSED"`)
}
