package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"exchange/internal/engine"
	"exchange/internal/metrics"
	"exchange/internal/orderbook"
	"exchange/internal/store"
)

func newTestServer(t *testing.T) (http.Handler, *engine.MatchingEngine) {
	t.Helper()
	log := zap.NewNop()

	eng, err := engine.New(engine.Settings{
		StartTime:               9 * time.Hour,
		StopTime:                17 * time.Hour,
		OpeningAuctionDuration:  2 * time.Minute,
		ClosingAuctionDuration:  2 * time.Minute,
		IntradayAuctionDuration: time.Minute,
		MaxPriceDeviation:       5,
		CancelOnClose:           true,
	}, nil, log)
	require.NoError(t, err)
	require.NoError(t, eng.AddInstrument("ACME", 1, 100))

	st, err := store.New(filepath.Join(t.TempDir(), "exchange.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.New(registry, func() float64 { return 0 })

	srv := NewServer(eng, st, NewHub(), m, registry, nil, log)
	return srv.Router(), eng
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestSubmitOrderClosedMarket(t *testing.T) {
	h, _ := newTestServer(t)

	w, body := doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":1,"client_id":1,"order_id":1,"way":"buy","price":100,"quantity":10}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "MARKET_NOT_OPENED", body["status"])
}

func TestSubmitOrderAndTrade(t *testing.T) {
	h, eng := newTestServer(t)
	require.True(t, eng.SetGlobalPhase(orderbook.ContinuousTrading))

	w, body := doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":1,"client_id":1,"order_id":1,"way":"sell","price":100,"quantity":10}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", body["status"])

	w, _ = doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":1,"client_id":2,"order_id":1,"way":"buy","price":100,"quantity":4}`)
	require.Equal(t, http.StatusOK, w.Code)

	book, ok := eng.GetOrderBook(1)
	require.True(t, ok)
	assert.Equal(t, orderbook.Price(100), book.LastPrice())
	assert.Equal(t, orderbook.Volume(4), book.DailyVolume())
}

func TestSubmitOrderValidation(t *testing.T) {
	h, eng := newTestServer(t)
	require.True(t, eng.SetGlobalPhase(orderbook.ContinuousTrading))

	w, _ := doJSON(t, h, http.MethodPost, "/api/orders", `{"way":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":1,"client_id":1,"order_id":1,"way":"buy","price":0,"quantity":10}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PRICE", body["status"])

	w, body = doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":99,"client_id":1,"order_id":1,"way":"buy","price":100,"quantity":10}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "INSTRUMENT_NOT_FOUND", body["status"])
}

func TestReplaceAndCancel(t *testing.T) {
	h, eng := newTestServer(t)
	require.True(t, eng.SetGlobalPhase(orderbook.ContinuousTrading))

	w, _ := doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":1,"client_id":1,"order_id":1,"way":"sell","price":104,"quantity":10}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, h, http.MethodPost, "/api/orders/replace",
		`{"instrument_id":1,"client_id":1,"existing_order_id":1,"replaced_order_id":2,"way":"sell","price":103,"quantity":8}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", body["status"])

	w, body = doJSON(t, h, http.MethodDelete,
		"/api/orders?instrument_id=1&client_id=1&order_id=2&way=sell", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", body["status"])

	w, body = doJSON(t, h, http.MethodDelete,
		"/api/orders?instrument_id=1&client_id=1&order_id=2&way=sell", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", body["status"])
}

func TestMarketDataEndpoints(t *testing.T) {
	h, eng := newTestServer(t)
	require.True(t, eng.SetGlobalPhase(orderbook.ContinuousTrading))

	doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":1,"client_id":1,"order_id":1,"way":"sell","price":104,"quantity":10}`)
	doJSON(t, h, http.MethodPost, "/api/orders",
		`{"instrument_id":1,"client_id":2,"order_id":1,"way":"buy","price":96,"quantity":5}`)

	w, body := doJSON(t, h, http.MethodGet, "/api/phase", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CONTINUOUS_TRADING", body["phase"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var books []bookSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "ACME", books[0].Security)
	assert.Equal(t, 1, books[0].BidCount)
	assert.Equal(t, 1, books[0].AskCount)

	w, body = doJSON(t, h, http.MethodGet, "/api/books/1/depth", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["bids"], 1)
	assert.Len(t, body["asks"], 1)

	w, _ = doJSON(t, h, http.MethodGet, "/api/books/1/orders", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, h, http.MethodGet, "/api/books/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books/1/deals", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "exchange_deals_total")
	assert.Contains(t, w.Body.String(), "exchange_monitored_books")
}
