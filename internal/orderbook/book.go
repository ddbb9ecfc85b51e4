package orderbook

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// Order quantities and prices must stay strictly inside the 32-bit range;
// the extremes are reserved.
const (
	minOrderQty   = Quantity(1)
	maxOrderQty   = Quantity(math.MaxUint32 - 1)
	minOrderPrice = Price(1)
	maxOrderPrice = Price(math.MaxUint32 - 1)
)

// Supervisor is the engine-side surface a book relies on while trading:
// deviation bounds for the circuit breaker, intraday auction timing and
// registration for monitoring until the auction expires.
type Supervisor interface {
	PriceDevFactors() (lower, upper float64)
	IntradayAuctionDuration() time.Duration
	RefreshIntradayAuctionDuration()
	MonitorOrderBook(b *OrderBook)
}

// OrderBook is one instrument's book: validation, phase gating, statistics
// and the price deviation circuit breaker around a Container.
type OrderBook struct {
	log          *zap.Logger
	sup          Supervisor
	obs          DealObserver
	orders       *Container
	deals        *DealHandler
	now          func() time.Time
	securityName string
	instrumentID uint32

	phase      TradingPhase
	auctionEnd time.Time

	turnover         Nominal
	dailyVolume      Volume
	openPrice        Price
	closePrice       Price
	lastPrice        Price
	postAuctionPrice Price
	lastClosePrice   Price
}

// NewOrderBook builds a closed book for one instrument. lastClose seeds the
// reference price used by the circuit breaker until the first auction
// uncrosses. now supplies the clock; a nil now falls back to time.Now.
func NewOrderBook(log *zap.Logger, sup Supervisor, name string, instrumentID uint32,
	lastClose Price, now func() time.Time) *OrderBook {

	if now == nil {
		now = time.Now
	}
	b := &OrderBook{
		log:              log.Named("book").With(zap.String("security", name)),
		sup:              sup,
		deals:            NewDealHandler(instrumentID),
		now:              now,
		securityName:     name,
		instrumentID:     instrumentID,
		phase:            Close,
		lastPrice:        lastClose,
		postAuctionPrice: lastClose,
		lastClosePrice:   lastClose,
	}
	b.orders = NewContainer(b)
	return b
}

// SetDealObserver wires the sink deals and unsolicited cancellations are
// published to. Must be called before any order flow.
func (b *OrderBook) SetDealObserver(obs DealObserver) { b.obs = obs }

func (b *OrderBook) checkOrder(qty Quantity, price Price, w Way) Status {
	if qty < minOrderQty || qty > maxOrderQty {
		return StatusInvalidQuantity
	}
	if price < minOrderPrice || price > maxOrderPrice {
		return StatusInvalidPrice
	}
	if !w.Valid() {
		return StatusInvalidWay
	}
	return StatusOK
}

// Insert validates and adds an order. During continuous trading the order
// matches immediately; during auctions it only accumulates. A closed book
// accepts nothing.
func (b *OrderBook) Insert(o *Order) Status {
	if b.phase == Close {
		return StatusMarketNotOpened
	}
	if st := b.checkOrder(o.Qty, o.Price, o.Way); st != StatusOK {
		return st
	}
	return b.orders.Insert(o, b.phase == ContinuousTrading)
}

// Modify validates and applies an order replacement. The replaced order is
// treated like a fresh submission: it can match during continuous trading
// and always loses its queue position.
func (b *OrderBook) Modify(r *OrderReplace) Status {
	if b.phase == Close {
		return StatusMarketNotOpened
	}
	if st := b.checkOrder(r.Qty, r.Price, r.Way); st != StatusOK {
		return st
	}
	return b.orders.Modify(r, b.phase == ContinuousTrading)
}

// Delete removes the resting order identified by (client, id, way).
func (b *OrderBook) Delete(id OrderID, client ClientID, w Way) Status {
	if b.phase == Close {
		return StatusMarketNotOpened
	}
	if !w.Valid() {
		return StatusInvalidWay
	}
	return b.orders.Delete(id, client, w)
}

// SetTradingPhase moves the book to phase. Leaving an auction phase for a
// trading phase uncrosses the book first and re-anchors the circuit
// breaker's reference price. An intraday auction may only end in continuous
// trading or the closing auction.
func (b *OrderBook) SetTradingPhase(phase TradingPhase) bool {
	if phase == b.phase {
		return true
	}
	if !phase.Valid() {
		b.log.Error("rejecting undefined trading phase", zap.Int("phase", int(phase)))
		return false
	}
	if b.phase == IntradayAuction && phase != ContinuousTrading && phase != ClosingAuction {
		b.log.Error("illegal transition out of intraday auction",
			zap.Stringer("to", phase))
		return false
	}
	b.log.Info("trading phase transition",
		zap.Stringer("from", b.phase), zap.Stringer("to", phase))

	opened := b.phase == OpeningAuction && phase == ContinuousTrading
	closed := phase == Close

	// Uncross while still in the auction phase so the crossing deals are
	// exempt from the deviation check.
	if b.phase.IsAuction() && !phase.IsAuction() {
		b.orders.MatchOrders()
		b.postAuctionPrice = b.lastPrice
	}
	b.phase = phase
	if opened {
		b.openPrice = b.lastPrice
	}
	if closed {
		b.closePrice = b.lastPrice
	}
	return true
}

// OnDeal records one execution, updates the book statistics, runs the
// circuit breaker and forwards the deal to the observer.
func (b *OrderBook) OnDeal(price Price, qty Quantity,
	buyerClient ClientID, buyerOrder OrderID,
	sellerClient ClientID, sellerOrder OrderID) {

	d := b.deals.record(price, qty, buyerClient, buyerOrder, sellerClient, sellerOrder)
	b.processDeal(d)
	if b.obs != nil {
		b.obs.OnDeal(b.instrumentID, d)
	}
}

// OnUnsolicitedCancelledOrder forwards a book-initiated cancellation.
func (b *OrderBook) OnUnsolicitedCancelledOrder(o Order) {
	if b.obs != nil {
		b.obs.OnUnsolicitedCancelledOrder(b.instrumentID, o)
	}
}

// processDeal folds d into turnover, volume and last price, then checks the
// deviation band around the last auction price. A continuous-trading deal
// outside the band halts the book in an intraday auction.
func (b *OrderBook) processDeal(d *Deal) {
	b.turnover += d.Price.Notional(d.Qty)
	b.dailyVolume += d.Qty.Volume()
	b.lastPrice = d.Price

	lower, upper := b.sup.PriceDevFactors()
	min := Price(math.Round(float64(b.postAuctionPrice) * lower))
	max := Price(math.Round(float64(b.postAuctionPrice) * upper))
	if (d.Price < min || d.Price > max) && !b.phase.IsAuction() {
		b.sup.RefreshIntradayAuctionDuration()
		b.phase = IntradayAuction
		b.auctionEnd = b.now().Add(b.sup.IntradayAuctionDuration())
		b.sup.MonitorOrderBook(b)
		b.log.Info("price deviation triggered intraday auction",
			zap.Uint32("deal_price", uint32(d.Price)),
			zap.Uint32("reference_price", uint32(b.postAuctionPrice)),
			zap.Time("auction_end", b.auctionEnd))
	}
}

// CancelAllOrders empties the book, reporting every order as unsolicited.
func (b *OrderBook) CancelAllOrders() { b.orders.CancelAllOrders() }

// ResetDeals clears the per-session deal indexes.
func (b *OrderBook) ResetDeals() { b.deals.Reset() }

func (b *OrderBook) SecurityName() string       { return b.securityName }
func (b *OrderBook) InstrumentID() uint32       { return b.instrumentID }
func (b *OrderBook) TradingPhase() TradingPhase { return b.phase }
func (b *OrderBook) AuctionEnd() time.Time      { return b.auctionEnd }
func (b *OrderBook) Turnover() Nominal          { return b.turnover }
func (b *OrderBook) DailyVolume() Volume        { return b.dailyVolume }
func (b *OrderBook) OpenPrice() Price           { return b.openPrice }
func (b *OrderBook) ClosePrice() Price          { return b.closePrice }
func (b *OrderBook) LastPrice() Price           { return b.lastPrice }
func (b *OrderBook) PostAuctionPrice() Price    { return b.postAuctionPrice }
func (b *OrderBook) LastClosePrice() Price      { return b.lastClosePrice }
func (b *OrderBook) Deals() *DealHandler        { return b.deals }
func (b *OrderBook) Orders() *Container         { return b.orders }
