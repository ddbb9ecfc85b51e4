package orderbook

import "time"

// Deal is the immutable record of one execution. Both aggressive fills and
// auction crossings produce deals; the reference is unique per instrument.
type Deal struct {
	Reference      string    `json:"reference"`
	Price          Price     `json:"price"`
	Qty            Quantity  `json:"quantity"`
	BuyerClientID  ClientID  `json:"buyer_client_id"`
	BuyerOrderID   OrderID   `json:"buyer_order_id"`
	SellerClientID ClientID  `json:"seller_client_id"`
	SellerOrderID  OrderID   `json:"seller_order_id"`
	Timestamp      time.Time `json:"timestamp"`
}

func (d *Deal) reset() {
	*d = Deal{}
}
