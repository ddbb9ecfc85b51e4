package orderbook

import "math"

const maxVolume = Volume(math.MaxUint64)

// EventHandler receives the executions and cancellations a Container
// produces while it mutates the book.
type EventHandler interface {
	// OnDeal reports one execution at the resting order's price.
	OnDeal(price Price, qty Quantity,
		buyerClient ClientID, buyerOrder OrderID,
		sellerClient ClientID, sellerOrder OrderID)
	// OnUnsolicitedCancelledOrder reports an order removed by the book
	// itself rather than by its owner.
	OnUnsolicitedCancelledOrder(o Order)
}

// Limit summarizes one price level of one side of the book.
type Limit struct {
	Count int      `json:"count"`
	Qty   Quantity `json:"quantity"`
	Price Price    `json:"price"`
}

// level keeps the resting orders of one price in arrival order.
type level struct {
	price  Price
	orders []*Order
}

func (l *level) qty() Volume {
	var q Volume
	for _, o := range l.orders {
		q += o.Qty.Volume()
	}
	return q
}

// Container stores both sides of a book and runs the matching algorithms.
// It performs no validation and no phase logic; the OrderBook wrapping it
// owns those concerns.
type Container struct {
	bids    side
	asks    side
	handler EventHandler
}

func NewContainer(handler EventHandler) *Container {
	c := &Container{handler: handler}
	c.bids.init(Buy)
	c.asks.init(Sell)
	return c
}

func (c *Container) sideOf(w Way) *side {
	if w == Buy {
		return &c.bids
	}
	return &c.asks
}

// Insert adds o to the book. With match set, the order first trades against
// the opposite side at the resting orders' prices; only the unfilled
// remainder rests. A duplicate (ClientID, OrderID) pair on the order's side
// is rejected without touching the book.
func (c *Container) Insert(o *Order, match bool) Status {
	if !o.Way.Valid() {
		return StatusInternalError
	}
	s := c.sideOf(o.Way)
	if _, dup := s.byKey[o.key()]; dup {
		return StatusInternalError
	}
	if match {
		opp := c.sideOf(o.Way.Opposite())
		if qty := opp.executableQty(o.Price, o.Qty.Volume()); qty > 0 {
			c.processDeals(o, qty)
		}
	}
	if o.Qty > 0 {
		s.insert(o)
	}
	return StatusOK
}

// Modify applies r to the resting order it names. The order is pulled out of
// its queue, rewritten, optionally matched like a fresh order and re-queued
// at the back of its price level if anything is left.
func (c *Container) Modify(r *OrderReplace, match bool) Status {
	if !r.Way.Valid() {
		return StatusInternalError
	}
	s := c.sideOf(r.Way)
	o, ok := s.byKey[keyOf(r.ClientID, r.ExistingOrderID)]
	if !ok {
		return StatusOrderNotFound
	}
	if _, dup := s.byKey[keyOf(r.ClientID, r.ReplacedOrderID)]; dup && r.ReplacedOrderID != r.ExistingOrderID {
		return StatusInternalError
	}
	s.remove(o)
	o.Qty = r.Qty
	o.Price = r.Price
	o.OrderID = r.ReplacedOrderID
	if match {
		opp := c.sideOf(r.Way.Opposite())
		if qty := opp.executableQty(o.Price, o.Qty.Volume()); qty > 0 {
			c.processDeals(o, qty)
		}
	}
	if o.Qty > 0 {
		s.insert(o)
	}
	return StatusOK
}

// Delete removes the resting order identified by (client, id) on the given
// side.
func (c *Container) Delete(id OrderID, client ClientID, w Way) Status {
	if !w.Valid() {
		return StatusInternalError
	}
	s := c.sideOf(w)
	o, ok := s.byKey[keyOf(client, id)]
	if !ok {
		return StatusOrderNotFound
	}
	s.remove(o)
	return StatusOK
}

// processDeals trades the aggressor against best opposite orders until
// matchQty is consumed. matchQty must not exceed what executableQty
// reported for the aggressor's limit.
func (c *Container) processDeals(agg *Order, matchQty Volume) {
	opp := c.sideOf(agg.Way.Opposite())
	for matchQty > 0 {
		resting := opp.front()
		exec := resting.Qty
		if agg.Qty < exec {
			exec = agg.Qty
		}
		resting.Qty -= exec
		agg.Qty -= exec
		matchQty -= exec.Volume()
		if agg.Way == Buy {
			c.handler.OnDeal(resting.Price, exec,
				agg.ClientID, agg.OrderID,
				resting.ClientID, resting.OrderID)
		} else {
			c.handler.OnDeal(resting.Price, exec,
				resting.ClientID, resting.OrderID,
				agg.ClientID, agg.OrderID)
		}
		if resting.Qty == 0 {
			opp.remove(resting)
		}
	}
}

// GetExecutableQuantity returns how much volume an order of the given way
// and limit price could trade against the book right now.
func (c *Container) GetExecutableQuantity(price Price, w Way) Volume {
	if !w.Valid() {
		return 0
	}
	return c.sideOf(w.Opposite()).executableQty(price, maxVolume)
}

// GetTheoreticalAuctionInfo computes the auction uncrossing price and the
// volume tradable at it. Candidate prices are the distinct ask levels,
// scanned from the lowest; the first price maximizing the executable volume
// wins. A zero volume means the book does not cross.
func (c *Container) GetTheoreticalAuctionInfo() (Price, Volume) {
	var (
		bestPrice Price
		bestQty   Volume
	)
	c.asks.levels.Scan(func(p Price, _ *level) bool {
		bidQty := c.bids.executableQty(p, maxVolume)
		askQty := c.asks.executableQty(p, maxVolume)
		qty := bidQty
		if askQty < qty {
			qty = askQty
		}
		if qty > bestQty {
			bestQty, bestPrice = qty, p
		}
		return true
	})
	return bestPrice, bestQty
}

// MatchOrders uncrosses the book: every execution happens at the single
// theoretical auction price, pairing best bids with best asks in time
// priority until the auction volume is exhausted.
func (c *Container) MatchOrders() {
	price, volume := c.GetTheoreticalAuctionInfo()
	for volume > 0 {
		bid := c.bids.front()
		for bid.Qty > 0 && volume > 0 {
			ask := c.asks.front()
			exec := ask.Qty
			if bid.Qty < exec {
				exec = bid.Qty
			}
			bid.Qty -= exec
			ask.Qty -= exec
			volume -= exec.Volume()
			c.handler.OnDeal(price, exec,
				bid.ClientID, bid.OrderID,
				ask.ClientID, ask.OrderID)
			if ask.Qty == 0 {
				c.asks.remove(ask)
			}
		}
		if bid.Qty == 0 {
			c.bids.remove(bid)
		}
	}
}

// CancelAllOrders empties both sides, reporting every removed order as
// unsolicited, asks first.
func (c *Container) CancelAllOrders() {
	c.asks.drain(c.handler)
	c.bids.drain(c.handler)
}

// AggregatedView returns both sides collapsed to price levels, best first.
func (c *Container) AggregatedView() (bids, asks []Limit) {
	collect := func(s *side) []Limit {
		out := make([]Limit, 0, s.levels.Len())
		s.walk(func(l *level) bool {
			var q Quantity
			for _, o := range l.orders {
				q += o.Qty
			}
			out = append(out, Limit{Count: len(l.orders), Qty: q, Price: l.price})
			return true
		})
		return out
	}
	return collect(&c.bids), collect(&c.asks)
}

// ByOrderView returns copies of every resting order in price-time priority
// order, best first.
func (c *Container) ByOrderView() (bids, asks []Order) {
	collect := func(s *side) []Order {
		out := make([]Order, 0, len(s.byKey))
		s.walk(func(l *level) bool {
			for _, o := range l.orders {
				out = append(out, *o)
			}
			return true
		})
		return out
	}
	return collect(&c.bids), collect(&c.asks)
}

// Find returns a copy of the resting order identified by (client, id, way).
func (c *Container) Find(id OrderID, client ClientID, w Way) (Order, bool) {
	if !w.Valid() {
		return Order{}, false
	}
	o, ok := c.sideOf(w).byKey[keyOf(client, id)]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Sizes returns the number of resting orders per side.
func (c *Container) Sizes() (bids, asks int) {
	return len(c.bids.byKey), len(c.asks.byKey)
}

// BestBid returns the highest resting bid price, if any.
func (c *Container) BestBid() (Price, bool) { return c.bids.bestPrice() }

// BestAsk returns the lowest resting ask price, if any.
func (c *Container) BestAsk() (Price, bool) { return c.asks.bestPrice() }
