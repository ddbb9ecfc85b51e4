package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"exchange/internal/instrument"
	"exchange/internal/orderbook"
)

// Settings configures the trading session and the auction machinery.
// Start and stop times are wall-clock offsets from local midnight.
type Settings struct {
	StartTime time.Duration
	StopTime  time.Duration

	OpeningAuctionDuration  time.Duration
	ClosingAuctionDuration  time.Duration
	IntradayAuctionDuration time.Duration

	// AuctionDurationOffsetRange is the half-width of the random jitter
	// applied to every auction duration, making auction ends hard to
	// predict. Must be shorter than every auction duration.
	AuctionDurationOffsetRange time.Duration

	// MaxPriceDeviation is the circuit breaker band in percent around the
	// last auction price.
	MaxPriceDeviation float64

	// CancelOnClose removes every resting order when the session closes.
	CancelOnClose bool
}

func (s Settings) validate() error {
	if s.StartTime >= s.StopTime {
		return fmt.Errorf("session start %v is not before stop %v", s.StartTime, s.StopTime)
	}
	if s.MaxPriceDeviation <= 0 || s.MaxPriceDeviation >= 100 {
		return fmt.Errorf("max price deviation %v%% outside (0, 100)", s.MaxPriceDeviation)
	}
	shortest := s.OpeningAuctionDuration
	for _, d := range []time.Duration{s.ClosingAuctionDuration, s.IntradayAuctionDuration} {
		if d < shortest {
			shortest = d
		}
	}
	if shortest <= 0 {
		return fmt.Errorf("auction durations must be positive")
	}
	if s.AuctionDurationOffsetRange >= shortest {
		return fmt.Errorf("auction duration offset range %v not below shortest auction duration %v",
			s.AuctionDurationOffsetRange, shortest)
	}
	return nil
}

// MatchingEngine owns every instrument's order book and drives the global
// session phase schedule. It is not safe for concurrent use; the hosting
// process serializes all calls.
type MatchingEngine struct {
	log   *zap.Logger
	clock Clock
	rng   *rand.Rand

	settings    Settings
	books       map[uint32]*orderbook.OrderBook
	monitored   map[*orderbook.OrderBook]struct{}
	obs         orderbook.DealObserver
	instruments *instrument.Manager

	startTime  time.Time
	stopTime   time.Time
	auctionEnd time.Time

	openingDuration  time.Duration
	closingDuration  time.Duration
	intradayDuration time.Duration

	devLower float64
	devUpper float64

	phase orderbook.TradingPhase
}

// New builds a closed engine for today's session. A nil clock selects the
// system clock.
func New(settings Settings, clock Clock, log *zap.Logger) (*MatchingEngine, error) {
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("auction configuration: %w", err)
	}
	if clock == nil {
		clock = SystemClock()
	}
	e := &MatchingEngine{
		log:       log.Named("engine"),
		clock:     clock,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		settings:  settings,
		books:     make(map[uint32]*orderbook.OrderBook),
		monitored: make(map[*orderbook.OrderBook]struct{}),
		devLower:  1 - settings.MaxPriceDeviation/100,
		devUpper:  1 + settings.MaxPriceDeviation/100,
		phase:     orderbook.Close,
	}
	now := clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	e.startTime = midnight.Add(settings.StartTime)
	e.stopTime = midnight.Add(settings.StopTime)

	e.openingDuration = settings.OpeningAuctionDuration + e.durationOffset()
	e.closingDuration = settings.ClosingAuctionDuration + e.durationOffset()
	e.intradayDuration = settings.IntradayAuctionDuration + e.durationOffset()
	e.log.Info("session configured",
		zap.Time("start", e.startTime), zap.Time("stop", e.stopTime),
		zap.Duration("opening_auction", e.openingDuration),
		zap.Duration("closing_auction", e.closingDuration),
		zap.Duration("intraday_auction", e.intradayDuration))
	return e, nil
}

// durationOffset draws a jitter uniformly from [-range, +range].
func (e *MatchingEngine) durationOffset() time.Duration {
	r := int64(e.settings.AuctionDurationOffsetRange)
	if r == 0 {
		return 0
	}
	return time.Duration(e.rng.Int63n(2*r+1) - r)
}

// SetDealObserver wires the publication sink into every book, present and
// future.
func (e *MatchingEngine) SetDealObserver(obs orderbook.DealObserver) {
	e.obs = obs
	for _, b := range e.books {
		b.SetDealObserver(obs)
	}
}

// AddInstrument registers one instrument and creates its book, seeded with
// the previous session's close price.
func (e *MatchingEngine) AddInstrument(name string, id uint32, lastClose orderbook.Price) error {
	if _, dup := e.books[id]; dup {
		return fmt.Errorf("instrument id %d registered twice", id)
	}
	b := orderbook.NewOrderBook(e.log, e, name, id, lastClose, e.clock.Now)
	if e.obs != nil {
		b.SetDealObserver(e.obs)
	}
	e.books[id] = b
	e.log.Info("instrument registered",
		zap.String("security", name), zap.Uint32("id", id),
		zap.Uint32("last_close", uint32(lastClose)))
	return nil
}

// LoadInstruments registers every instrument in the store and keeps the
// manager for the close price write-back at session end.
func (e *MatchingEngine) LoadInstruments(m *instrument.Manager) error {
	e.instruments = m
	return m.Load(func(inst instrument.Instrument) error {
		return e.AddInstrument(inst.Name, inst.ProductID, inst.ClosePrice)
	})
}

// Insert routes an order to its instrument's book.
func (e *MatchingEngine) Insert(o *orderbook.Order, instrumentID uint32) orderbook.Status {
	b, ok := e.books[instrumentID]
	if !ok {
		return orderbook.StatusInstrumentNotFound
	}
	return b.Insert(o)
}

// Modify routes an order replacement to its instrument's book.
func (e *MatchingEngine) Modify(r *orderbook.OrderReplace, instrumentID uint32) orderbook.Status {
	b, ok := e.books[instrumentID]
	if !ok {
		return orderbook.StatusInstrumentNotFound
	}
	return b.Modify(r)
}

// Delete routes an order cancellation to its instrument's book.
func (e *MatchingEngine) Delete(orderID orderbook.OrderID, clientID orderbook.ClientID,
	w orderbook.Way, instrumentID uint32) orderbook.Status {

	b, ok := e.books[instrumentID]
	if !ok {
		return orderbook.StatusInstrumentNotFound
	}
	return b.Delete(orderID, clientID, w)
}

// SetGlobalPhase forces every book into phase. The intraday auction is per
// book only and cannot be set globally.
func (e *MatchingEngine) SetGlobalPhase(phase orderbook.TradingPhase) bool {
	if !phase.Valid() || phase == orderbook.IntradayAuction {
		e.log.Error("rejecting global phase", zap.Int("phase", int(phase)))
		return false
	}
	now := e.clock.Now()
	switch phase {
	case orderbook.OpeningAuction:
		e.auctionEnd = now.Add(e.openingDuration)
	case orderbook.ClosingAuction:
		e.auctionEnd = now.Add(e.closingDuration)
	}
	e.applyPhase(phase)
	return true
}

func (e *MatchingEngine) applyPhase(phase orderbook.TradingPhase) {
	if phase == e.phase {
		return
	}
	e.log.Info("global phase transition",
		zap.Stringer("from", e.phase), zap.Stringer("to", phase))
	e.phase = phase
	for _, b := range e.books {
		b.SetTradingPhase(phase)
	}
	if phase == orderbook.Close {
		if err := e.saveClosePrices(); err != nil {
			e.log.Error("close price write-back failed", zap.Error(err))
		}
		if e.settings.CancelOnClose {
			e.CancelAllOrders()
		}
	}
}

// EngineListen advances the session state machine by one tick: expired
// intraday auctions resume first, then the global schedule moves along
// CLOSE, OPENING_AUCTION, CONTINUOUS_TRADING, CLOSING_AUCTION and back.
func (e *MatchingEngine) EngineListen() {
	now := e.clock.Now()
	e.checkMonitoredBooks(now)

	inWindow := !now.Before(e.startTime) && now.Before(e.stopTime)
	switch e.phase {
	case orderbook.Close:
		if inWindow {
			e.auctionEnd = now.Add(e.openingDuration)
			e.applyPhase(orderbook.OpeningAuction)
		}
	case orderbook.OpeningAuction:
		if now.After(e.auctionEnd) {
			e.applyPhase(orderbook.ContinuousTrading)
		}
	case orderbook.ContinuousTrading:
		if !inWindow {
			e.auctionEnd = now.Add(e.closingDuration)
			e.applyPhase(orderbook.ClosingAuction)
		}
	case orderbook.ClosingAuction:
		if now.After(e.auctionEnd) {
			e.applyPhase(orderbook.Close)
		}
	}
}

// checkMonitoredBooks resumes every halted book whose intraday auction has
// expired, rejoining the global phase. A book whose halt outlived the
// session steps through the closing auction so its uncross still happens.
func (e *MatchingEngine) checkMonitoredBooks(now time.Time) {
	for b := range e.monitored {
		if !now.After(b.AuctionEnd()) {
			continue
		}
		target := e.phase
		if target == orderbook.Close {
			b.SetTradingPhase(orderbook.ClosingAuction)
		}
		b.SetTradingPhase(target)
		delete(e.monitored, b)
	}
}

// saveClosePrices writes every book's close price back to the instrument
// store for the next session's reference price.
func (e *MatchingEngine) saveClosePrices() error {
	if e.instruments == nil {
		return nil
	}
	for _, b := range e.books {
		inst, ok, err := e.instruments.Get(b.SecurityName())
		if err != nil {
			return fmt.Errorf("load %s: %w", b.SecurityName(), err)
		}
		if !ok {
			continue
		}
		inst.ClosePrice = b.ClosePrice()
		if err := e.instruments.Write(inst, true); err != nil {
			return fmt.Errorf("write %s: %w", b.SecurityName(), err)
		}
		e.log.Info("close price saved",
			zap.String("security", inst.Name),
			zap.Uint32("close", uint32(inst.ClosePrice)))
	}
	return nil
}

// CancelAllOrders drains every book.
func (e *MatchingEngine) CancelAllOrders() {
	for _, b := range e.books {
		b.CancelAllOrders()
	}
}

// PriceDevFactors returns the multiplicative circuit breaker band.
func (e *MatchingEngine) PriceDevFactors() (lower, upper float64) {
	return e.devLower, e.devUpper
}

// IntradayAuctionDuration returns the current jittered halt duration.
func (e *MatchingEngine) IntradayAuctionDuration() time.Duration {
	return e.intradayDuration
}

// RefreshIntradayAuctionDuration redraws the halt duration jitter. Called
// by a book each time its circuit breaker trips.
func (e *MatchingEngine) RefreshIntradayAuctionDuration() {
	e.intradayDuration = e.settings.IntradayAuctionDuration + e.durationOffset()
	e.log.Info("intraday auction duration refreshed",
		zap.Duration("duration", e.intradayDuration))
}

// MonitorOrderBook registers a halted book for the per-tick expiry sweep.
func (e *MatchingEngine) MonitorOrderBook(b *orderbook.OrderBook) {
	e.monitored[b] = struct{}{}
}

// GetOrderBook returns the book of one instrument.
func (e *MatchingEngine) GetOrderBook(instrumentID uint32) (*orderbook.OrderBook, bool) {
	b, ok := e.books[instrumentID]
	return b, ok
}

// Books returns every book ordered by instrument id.
func (e *MatchingEngine) Books() []*orderbook.OrderBook {
	out := make([]*orderbook.OrderBook, 0, len(e.books))
	for _, b := range e.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID() < out[j].InstrumentID() })
	return out
}

// GlobalPhase returns the engine-wide session phase.
func (e *MatchingEngine) GlobalPhase() orderbook.TradingPhase { return e.phase }

// MonitoredBookCount returns how many books sit in an intraday auction.
func (e *MatchingEngine) MonitoredBookCount() int { return len(e.monitored) }

// SessionWindow returns today's trading window.
func (e *MatchingEngine) SessionWindow() (start, stop time.Time) {
	return e.startTime, e.stopTime
}
