package orderbook

// TradingPhase is the session state of a book. The engine drives the global
// schedule; IntradayAuction is entered per book by the circuit breaker and
// never set globally.
type TradingPhase int

const (
	OpeningAuction TradingPhase = iota
	ContinuousTrading
	ClosingAuction
	Close
	IntradayAuction

	phaseCount
)

func (p TradingPhase) String() string {
	switch p {
	case OpeningAuction:
		return "OPENING_AUCTION"
	case ContinuousTrading:
		return "CONTINUOUS_TRADING"
	case ClosingAuction:
		return "CLOSING_AUCTION"
	case Close:
		return "CLOSE"
	case IntradayAuction:
		return "INTRADAY_AUCTION"
	default:
		return "UNKNOWN_PHASE"
	}
}

// Valid reports whether p is a defined phase.
func (p TradingPhase) Valid() bool { return p >= OpeningAuction && p < phaseCount }

// IsAuction reports whether orders accumulate without matching in p.
func (p TradingPhase) IsAuction() bool {
	return p == OpeningAuction || p == ClosingAuction || p == IntradayAuction
}
