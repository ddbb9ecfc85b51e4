package orderbook

import (
	"fmt"
	"sync"
	"time"
)

// DealObserver receives completed deals and unsolicited cancellations for
// publication outside the matching core.
type DealObserver interface {
	OnDeal(instrumentID uint32, d *Deal)
	OnUnsolicitedCancelledOrder(instrumentID uint32, o Order)
}

var dealPool = sync.Pool{New: func() any { return new(Deal) }}

// DealHandler allocates deals from a shared pool and indexes them by
// reference and by counterparty. Indexed deals stay alive until Reset
// returns them to the pool.
type DealHandler struct {
	instrumentID uint32
	counter      uint64
	byRef        map[string]*Deal
	byBuyer      map[ClientID][]*Deal
	bySeller     map[ClientID][]*Deal
}

func NewDealHandler(instrumentID uint32) *DealHandler {
	return &DealHandler{
		instrumentID: instrumentID,
		byRef:        make(map[string]*Deal),
		byBuyer:      make(map[ClientID][]*Deal),
		bySeller:     make(map[ClientID][]*Deal),
	}
}

// record builds a deal out of the pool, stamps it with a fresh reference of
// the form instrumentID_timestamp_sequence and indexes it.
func (h *DealHandler) record(price Price, qty Quantity,
	buyerClient ClientID, buyerOrder OrderID,
	sellerClient ClientID, sellerOrder OrderID) *Deal {

	d := dealPool.Get().(*Deal)
	h.counter++
	now := time.Now()
	d.Reference = fmt.Sprintf("%d_%d_%d", h.instrumentID, now.UnixNano(), h.counter)
	d.Price = price
	d.Qty = qty
	d.BuyerClientID = buyerClient
	d.BuyerOrderID = buyerOrder
	d.SellerClientID = sellerClient
	d.SellerOrderID = sellerOrder
	d.Timestamp = now

	h.byRef[d.Reference] = d
	h.byBuyer[buyerClient] = append(h.byBuyer[buyerClient], d)
	h.bySeller[sellerClient] = append(h.bySeller[sellerClient], d)
	return d
}

// DealCount returns how many deals were recorded since the last Reset.
func (h *DealHandler) DealCount() uint64 { return h.counter }

// DealByRef looks a deal up by its reference.
func (h *DealHandler) DealByRef(ref string) (*Deal, bool) {
	d, ok := h.byRef[ref]
	return d, ok
}

// DealsByBuyer returns the recorded deals in which the client bought.
func (h *DealHandler) DealsByBuyer(client ClientID) []*Deal { return h.byBuyer[client] }

// DealsBySeller returns the recorded deals in which the client sold.
func (h *DealHandler) DealsBySeller(client ClientID) []*Deal { return h.bySeller[client] }

// Reset drops every index and hands the deals back to the pool. Callers must
// not hold on to deal pointers across a Reset.
func (h *DealHandler) Reset() {
	for ref, d := range h.byRef {
		delete(h.byRef, ref)
		d.reset()
		dealPool.Put(d)
	}
	h.byBuyer = make(map[ClientID][]*Deal)
	h.bySeller = make(map[ClientID][]*Deal)
	h.counter = 0
}
