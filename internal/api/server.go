// Package api serves the daemon's HTTP surface: order entry for testing and
// operations, market data queries, the websocket stream and Prometheus
// metrics.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"exchange/internal/engine"
	"exchange/internal/metrics"
	"exchange/internal/orderbook"
	"exchange/internal/store"
)

// Server exposes one matching engine over HTTP. The engine itself is not
// concurrency safe, so every access from a handler or from the session
// ticker goes through the server's mutex.
type Server struct {
	mu       sync.Mutex
	engine   *engine.MatchingEngine
	store    *store.Store
	hub      *Hub
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	log      *zap.Logger

	corsOrigins []string
	upgrader    websocket.Upgrader
}

func NewServer(eng *engine.MatchingEngine, st *store.Store, hub *Hub,
	m *metrics.Metrics, registry *prometheus.Registry,
	corsOrigins []string, log *zap.Logger) *Server {

	s := &Server{
		engine:      eng,
		store:       st,
		hub:         hub,
		metrics:     m,
		registry:    registry,
		log:         log.Named("api"),
		corsOrigins: corsOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// WithEngine runs fn holding the engine lock. The session ticker uses this
// so phase transitions never race with order entry handlers.
func (s *Server) WithEngine(fn func(*engine.MatchingEngine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

func (s *Server) checkCORSOrigin(origin string) bool {
	if len(s.corsOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/phase", s.getPhase)
		r.Get("/books", s.listBooks)
		r.Get("/books/{id}", s.getBook)
		r.Get("/books/{id}/depth", s.getDepth)
		r.Get("/books/{id}/orders", s.getOrders)
		r.Get("/books/{id}/deals", s.getDeals)

		r.Post("/orders", s.submitOrder)
		r.Post("/orders/replace", s.replaceOrder)
		r.Delete("/orders", s.cancelOrder)
	})

	r.Get("/ws", s.handleWebSocket)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

type orderRequest struct {
	InstrumentID uint32 `json:"instrument_id"`
	ClientID     uint32 `json:"client_id"`
	OrderID      uint32 `json:"order_id"`
	Way          string `json:"way"`
	Price        uint32 `json:"price"`
	Quantity     uint32 `json:"quantity"`
}

type replaceRequest struct {
	InstrumentID    uint32 `json:"instrument_id"`
	ClientID        uint32 `json:"client_id"`
	ExistingOrderID uint32 `json:"existing_order_id"`
	ReplacedOrderID uint32 `json:"replaced_order_id"`
	Way             string `json:"way"`
	Price           uint32 `json:"price"`
	Quantity        uint32 `json:"quantity"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func parseWay(s string) (orderbook.Way, bool) {
	switch strings.ToLower(s) {
	case "buy":
		return orderbook.Buy, true
	case "sell":
		return orderbook.Sell, true
	default:
		return orderbook.Way(-1), false
	}
}

// httpStatus maps an engine status onto an HTTP status code.
func httpStatus(st orderbook.Status) int {
	switch st {
	case orderbook.StatusOK:
		return http.StatusOK
	case orderbook.StatusInvalidPrice, orderbook.StatusInvalidQuantity, orderbook.StatusInvalidWay:
		return http.StatusBadRequest
	case orderbook.StatusOrderNotFound, orderbook.StatusInstrumentNotFound:
		return http.StatusNotFound
	case orderbook.StatusMarketNotOpened:
		return http.StatusConflict
	case orderbook.StatusPriceOutOfReservationRange:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	way, ok := parseWay(req.Way)
	if !ok {
		writeError(w, http.StatusBadRequest, "way must be buy or sell")
		return
	}
	o := &orderbook.Order{
		Way:      way,
		Qty:      orderbook.Quantity(req.Quantity),
		Price:    orderbook.Price(req.Price),
		OrderID:  orderbook.OrderID(req.OrderID),
		ClientID: orderbook.ClientID(req.ClientID),
	}

	s.mu.Lock()
	st := s.engine.Insert(o, req.InstrumentID)
	s.mu.Unlock()

	s.metrics.OrdersTotal.WithLabelValues("insert", st.String()).Inc()
	writeJSON(w, httpStatus(st), statusResponse{Status: st.String()})
}

func (s *Server) replaceOrder(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	way, ok := parseWay(req.Way)
	if !ok {
		writeError(w, http.StatusBadRequest, "way must be buy or sell")
		return
	}
	rep := &orderbook.OrderReplace{
		Way:             way,
		Qty:             orderbook.Quantity(req.Quantity),
		Price:           orderbook.Price(req.Price),
		ExistingOrderID: orderbook.OrderID(req.ExistingOrderID),
		ReplacedOrderID: orderbook.OrderID(req.ReplacedOrderID),
		ClientID:        orderbook.ClientID(req.ClientID),
	}

	s.mu.Lock()
	st := s.engine.Modify(rep, req.InstrumentID)
	s.mu.Unlock()

	s.metrics.OrdersTotal.WithLabelValues("replace", st.String()).Inc()
	writeJSON(w, httpStatus(st), statusResponse{Status: st.String()})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	instrumentID, err1 := strconv.ParseUint(q.Get("instrument_id"), 10, 32)
	clientID, err2 := strconv.ParseUint(q.Get("client_id"), 10, 32)
	orderID, err3 := strconv.ParseUint(q.Get("order_id"), 10, 32)
	way, ok := parseWay(q.Get("way"))
	if err1 != nil || err2 != nil || err3 != nil || !ok {
		writeError(w, http.StatusBadRequest, "need instrument_id, client_id, order_id and way")
		return
	}

	s.mu.Lock()
	st := s.engine.Delete(orderbook.OrderID(orderID), orderbook.ClientID(clientID),
		way, uint32(instrumentID))
	s.mu.Unlock()

	s.metrics.OrdersTotal.WithLabelValues("delete", st.String()).Inc()
	writeJSON(w, httpStatus(st), statusResponse{Status: st.String()})
}

func (s *Server) getPhase(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	phase := s.engine.GlobalPhase()
	start, stop := s.engine.SessionWindow()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"phase":         phase.String(),
		"session_start": start,
		"session_stop":  stop,
	})
}

type bookSummary struct {
	InstrumentID     uint32 `json:"instrument_id"`
	Security         string `json:"security"`
	Phase            string `json:"phase"`
	LastPrice        uint32 `json:"last_price"`
	OpenPrice        uint32 `json:"open_price"`
	ClosePrice       uint32 `json:"close_price"`
	LastClosePrice   uint32 `json:"last_close_price"`
	PostAuctionPrice uint32 `json:"post_auction_price"`
	Turnover         uint64 `json:"turnover"`
	DailyVolume      uint64 `json:"daily_volume"`
	BidCount         int    `json:"bid_count"`
	AskCount         int    `json:"ask_count"`
}

func summarize(b *orderbook.OrderBook) bookSummary {
	bids, asks := b.Orders().Sizes()
	return bookSummary{
		InstrumentID:     b.InstrumentID(),
		Security:         b.SecurityName(),
		Phase:            b.TradingPhase().String(),
		LastPrice:        uint32(b.LastPrice()),
		OpenPrice:        uint32(b.OpenPrice()),
		ClosePrice:       uint32(b.ClosePrice()),
		LastClosePrice:   uint32(b.LastClosePrice()),
		PostAuctionPrice: uint32(b.PostAuctionPrice()),
		Turnover:         uint64(b.Turnover()),
		DailyVolume:      uint64(b.DailyVolume()),
		BidCount:         bids,
		AskCount:         asks,
	}
}

func (s *Server) listBooks(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	books := s.engine.Books()
	out := make([]bookSummary, 0, len(books))
	for _, b := range books {
		out = append(out, summarize(b))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) bookFromURL(w http.ResponseWriter, r *http.Request) (*orderbook.OrderBook, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instrument id")
		return nil, false
	}
	b, ok := s.engine.GetOrderBook(uint32(id))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown instrument")
		return nil, false
	}
	return b, true
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b, ok := s.bookFromURL(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	summary := summarize(b)
	auctionPrice, auctionVolume := b.Orders().GetTheoreticalAuctionInfo()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"book":                      summary,
		"theoretical_auction_price": uint32(auctionPrice),
		"theoretical_auction_qty":   uint64(auctionVolume),
	})
}

func (s *Server) getDepth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b, ok := s.bookFromURL(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	bids, asks := b.Orders().AggregatedView()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"bids": bids, "asks": asks})
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b, ok := s.bookFromURL(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	bids, asks := b.Orders().ByOrderView()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"bids": bids, "asks": asks})
}

func (s *Server) getDeals(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instrument id")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	deals, err := s.store.RecentDeals(uint32(id), limit)
	if err != nil {
		s.log.Error("deal history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "deal history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, deals)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, 64)}
	s.hub.register(c)
	go c.writePump()
	go c.readPump()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
