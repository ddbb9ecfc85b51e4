// Package orderbook implements per-instrument limit order books: price-time
// priority storage, continuous matching, auction uncrossing and the trading
// phase state machine.
package orderbook

// Price is expressed in the instrument's smallest price increment.
type Price uint32

// Quantity is a number of units of the traded instrument.
type Quantity uint32

// Volume accumulates quantities across many orders and cannot overflow for
// any book the 32-bit quantity type can describe.
type Volume uint64

// Nominal is a traded cash amount, price times quantity.
type Nominal uint64

// ClientID identifies a trading participant.
type ClientID uint32

// OrderID identifies an order within one client's namespace. Only the
// (ClientID, OrderID) pair is unique book-wide.
type OrderID uint32

// Volume widens a quantity for aggregation.
func (q Quantity) Volume() Volume { return Volume(q) }

// Notional returns the cash amount of a fill of qty units at price p.
func (p Price) Notional(qty Quantity) Nominal {
	return Nominal(uint64(p) * uint64(qty))
}

// orderKey packs a (client, order) pair into a single 64-bit map key,
// client id in the high word.
type orderKey uint64

func keyOf(client ClientID, id OrderID) orderKey {
	return orderKey(uint64(client)<<32 | uint64(id))
}
