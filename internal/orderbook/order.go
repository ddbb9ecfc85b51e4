package orderbook

// Way is the side of an order.
type Way int

const (
	Buy Way = iota
	Sell
)

func (w Way) String() string {
	switch w {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN_WAY"
	}
}

// Valid reports whether w is one of the two tradable sides.
func (w Way) Valid() bool { return w == Buy || w == Sell }

// Opposite returns the side a matching counterparty rests on.
func (w Way) Opposite() Way {
	if w == Buy {
		return Sell
	}
	return Buy
}

// Order is a resting limit order. Qty is the remaining open quantity and
// shrinks as the order fills; the container removes the order once it
// reaches zero.
type Order struct {
	Way      Way      `json:"way"`
	Qty      Quantity `json:"quantity"`
	Price    Price    `json:"price"`
	OrderID  OrderID  `json:"order_id"`
	ClientID ClientID `json:"client_id"`
}

func (o *Order) key() orderKey { return keyOf(o.ClientID, o.OrderID) }

// OrderReplace modifies the resting order identified by
// (ClientID, ExistingOrderID), giving it a new id, price and quantity.
// The replaced order always loses its time priority.
type OrderReplace struct {
	Way             Way
	Qty             Quantity
	Price           Price
	ExistingOrderID OrderID
	ReplacedOrderID OrderID
	ClientID        ClientID
}
