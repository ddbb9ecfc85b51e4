package orderbook

import "github.com/tidwall/btree"

// side holds one half of the book: a price-ordered level index plus hash
// lookups by order key and by client.
type side struct {
	way      Way
	levels   *btree.Map[Price, *level]
	byKey    map[orderKey]*Order
	byClient map[ClientID]map[orderKey]*Order
}

func (s *side) init(w Way) {
	s.way = w
	s.levels = btree.NewMap[Price, *level](32)
	s.byKey = make(map[orderKey]*Order)
	s.byClient = make(map[ClientID]map[orderKey]*Order)
}

// walk visits levels in priority order: descending prices for bids,
// ascending for asks.
func (s *side) walk(fn func(*level) bool) {
	if s.way == Buy {
		s.levels.Reverse(func(_ Price, l *level) bool { return fn(l) })
	} else {
		s.levels.Scan(func(_ Price, l *level) bool { return fn(l) })
	}
}

// crosses reports whether a resting order at price p can trade against an
// incoming opposite order limited at limit.
func (s *side) crosses(p, limit Price) bool {
	if s.way == Buy {
		return p >= limit
	}
	return p <= limit
}

// executableQty sums the resting volume tradable against an opposite order
// limited at limit, clamped to max. The scan stops at the first level that
// no longer crosses or once max is reached.
func (s *side) executableQty(limit Price, max Volume) Volume {
	var qty Volume
	s.walk(func(l *level) bool {
		if !s.crosses(l.price, limit) {
			return false
		}
		qty += l.qty()
		return qty < max
	})
	if qty > max {
		return max
	}
	return qty
}

// front returns the order with the highest price-time priority. The caller
// guarantees the side is not empty.
func (s *side) front() *Order {
	var o *Order
	s.walk(func(l *level) bool {
		o = l.orders[0]
		return false
	})
	return o
}

func (s *side) bestPrice() (Price, bool) {
	var (
		p  Price
		ok bool
	)
	s.walk(func(l *level) bool {
		p, ok = l.price, true
		return false
	})
	return p, ok
}

func (s *side) insert(o *Order) {
	l, ok := s.levels.Get(o.Price)
	if !ok {
		l = &level{price: o.Price}
		s.levels.Set(o.Price, l)
	}
	l.orders = append(l.orders, o)
	s.byKey[o.key()] = o
	clientOrders, ok := s.byClient[o.ClientID]
	if !ok {
		clientOrders = make(map[orderKey]*Order)
		s.byClient[o.ClientID] = clientOrders
	}
	clientOrders[o.key()] = o
}

func (s *side) remove(o *Order) {
	if l, ok := s.levels.Get(o.Price); ok {
		for i, ro := range l.orders {
			if ro == o {
				l.orders = append(l.orders[:i], l.orders[i+1:]...)
				break
			}
		}
		if len(l.orders) == 0 {
			s.levels.Delete(o.Price)
		}
	}
	delete(s.byKey, o.key())
	if clientOrders, ok := s.byClient[o.ClientID]; ok {
		delete(clientOrders, o.key())
		if len(clientOrders) == 0 {
			delete(s.byClient, o.ClientID)
		}
	}
}

// drain removes every order in priority order, reporting each one as an
// unsolicited cancellation.
func (s *side) drain(h EventHandler) {
	for len(s.byKey) > 0 {
		o := s.front()
		s.remove(o)
		h.OnUnsolicitedCancelledOrder(*o)
	}
}
