package orderbook

// Status is the outcome of an order entry operation. Every operation returns
// exactly one status; a non-OK status means the book was left untouched.
type Status int

const (
	StatusOK Status = iota
	StatusPriceOutOfReservationRange
	StatusInstrumentNotFound
	StatusMarketNotOpened
	StatusInvalidPrice
	StatusInvalidQuantity
	StatusInvalidWay
	StatusOrderNotFound
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusPriceOutOfReservationRange:
		return "PRICE_OUT_OF_RESERVATION_RANGE"
	case StatusInstrumentNotFound:
		return "INSTRUMENT_NOT_FOUND"
	case StatusMarketNotOpened:
		return "MARKET_NOT_OPENED"
	case StatusInvalidPrice:
		return "INVALID_PRICE"
	case StatusInvalidQuantity:
		return "INVALID_QUANTITY"
	case StatusInvalidWay:
		return "INVALID_WAY"
	case StatusOrderNotFound:
		return "ORDER_NOT_FOUND"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_STATUS"
	}
}
