package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedDeal struct {
	price        Price
	qty          Quantity
	buyerClient  ClientID
	buyerOrder   OrderID
	sellerClient ClientID
	sellerOrder  OrderID
}

// recorder captures container events for assertions.
type recorder struct {
	deals   []recordedDeal
	cancels []Order
}

func (r *recorder) OnDeal(price Price, qty Quantity,
	buyerClient ClientID, buyerOrder OrderID,
	sellerClient ClientID, sellerOrder OrderID) {
	r.deals = append(r.deals, recordedDeal{price, qty, buyerClient, buyerOrder, sellerClient, sellerOrder})
}

func (r *recorder) OnUnsolicitedCancelledOrder(o Order) {
	r.cancels = append(r.cancels, o)
}

func newTestContainer() (*Container, *recorder) {
	rec := &recorder{}
	return NewContainer(rec), rec
}

func order(w Way, qty Quantity, price Price, id OrderID, client ClientID) *Order {
	return &Order{Way: w, Qty: qty, Price: price, OrderID: id, ClientID: client}
}

func TestInsertAndFind(t *testing.T) {
	c, _ := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 1, 7), false))

	o, ok := c.Find(1, 7, Buy)
	require.True(t, ok)
	assert.Equal(t, Quantity(10), o.Qty)
	assert.Equal(t, Price(100), o.Price)

	_, ok = c.Find(1, 7, Sell)
	assert.False(t, ok, "order must only be visible on its own side")

	bids, asks := c.Sizes()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 0, asks)
}

func TestInsertDuplicateLeavesBookUntouched(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 5, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 5, 100, 1, 2), false))

	// Same (client, order id) pair on the same side, crossing the book:
	// rejected before any matching happens.
	dup := order(Sell, 9, 90, 1, 1)
	assert.Equal(t, StatusInternalError, c.Insert(dup, true))
	assert.Empty(t, rec.deals)

	o, ok := c.Find(1, 1, Sell)
	require.True(t, ok)
	assert.Equal(t, Quantity(5), o.Qty)
	assert.Equal(t, Price(100), o.Price)
}

func TestDeleteOrder(t *testing.T) {
	c, _ := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 1, 7), false))
	assert.Equal(t, StatusOrderNotFound, c.Delete(1, 7, Sell))
	assert.Equal(t, StatusOK, c.Delete(1, 7, Buy))
	assert.Equal(t, StatusOrderNotFound, c.Delete(1, 7, Buy))

	bids, _ := c.Sizes()
	assert.Equal(t, 0, bids)
}

func TestContinuousMatchingPriceTimePriority(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 20, 100, 2, 2), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 30, 101, 3, 3), false))

	require.Equal(t, StatusOK, c.Insert(order(Buy, 25, 102, 9, 8), true))

	require.Len(t, rec.deals, 2)
	assert.Equal(t, recordedDeal{100, 10, 8, 9, 1, 1}, rec.deals[0])
	assert.Equal(t, recordedDeal{100, 15, 8, 9, 2, 2}, rec.deals[1])

	// Second ask at 100 keeps its remainder, level 101 untouched.
	o, ok := c.Find(2, 2, Sell)
	require.True(t, ok)
	assert.Equal(t, Quantity(5), o.Qty)

	bids, asks := c.Sizes()
	assert.Equal(t, 0, bids, "aggressor fully filled, nothing rests")
	assert.Equal(t, 2, asks)
}

func TestPartialFillRests(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 4, 99, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 2, 2), true))

	require.Len(t, rec.deals, 1)
	assert.Equal(t, recordedDeal{99, 4, 2, 2, 1, 1}, rec.deals[0])

	o, ok := c.Find(2, 2, Buy)
	require.True(t, ok)
	assert.Equal(t, Quantity(6), o.Qty)
	assert.Equal(t, Price(100), o.Price)
}

func TestNonCrossingInsertDoesNotTrade(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 101, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 2, 2), true))

	assert.Empty(t, rec.deals)
	bids, asks := c.Sizes()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 1, asks)
}

func TestGetExecutableQuantity(t *testing.T) {
	c, _ := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 20, 101, 2, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 5, 99, 3, 2), false))

	assert.Equal(t, Volume(0), c.GetExecutableQuantity(99, Buy))
	assert.Equal(t, Volume(10), c.GetExecutableQuantity(100, Buy))
	assert.Equal(t, Volume(30), c.GetExecutableQuantity(101, Buy))
	assert.Equal(t, Volume(5), c.GetExecutableQuantity(99, Sell))
	assert.Equal(t, Volume(0), c.GetExecutableQuantity(100, Sell))
}

func TestTheoreticalAuctionPriceMaximizesVolume(t *testing.T) {
	c, _ := newTestContainer()

	asks := []struct {
		price Price
		qty   Quantity
	}{{90, 900}, {91, 650}, {92, 500}, {93, 350}, {94, 400}}
	bids := []struct {
		price Price
		qty   Quantity
	}{{90, 1200}, {89, 350}, {88, 150}, {87, 230}}

	id := OrderID(1)
	for _, a := range asks {
		require.Equal(t, StatusOK, c.Insert(order(Sell, a.qty, a.price, id, 1), false))
		id++
	}
	for _, b := range bids {
		require.Equal(t, StatusOK, c.Insert(order(Buy, b.qty, b.price, id, 2), false))
		id++
	}

	price, volume := c.GetTheoreticalAuctionInfo()
	assert.Equal(t, Price(90), price)
	assert.Equal(t, Volume(900), volume)
}

func TestTheoreticalAuctionTieBreaksToFirstPrice(t *testing.T) {
	c, _ := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 101, 2, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 105, 3, 2), false))

	// 100 and 101 both clear 10 units; the scan keeps the first.
	price, volume := c.GetTheoreticalAuctionInfo()
	assert.Equal(t, Price(100), price)
	assert.Equal(t, Volume(10), volume)
}

func TestTheoreticalAuctionEmptyWhenNotCrossed(t *testing.T) {
	c, _ := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 101, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 2, 2), false))

	_, volume := c.GetTheoreticalAuctionInfo()
	assert.Equal(t, Volume(0), volume)
}

func TestMatchOrdersUncrossesAtSinglePrice(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Buy, 5, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 7, 100, 2, 2), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 4, 99, 3, 3), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 6, 99, 4, 4), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 2, 100, 5, 5), false))

	c.MatchOrders()

	require.Len(t, rec.deals, 4)
	assert.Equal(t, recordedDeal{100, 4, 1, 1, 3, 3}, rec.deals[0])
	assert.Equal(t, recordedDeal{100, 1, 1, 1, 4, 4}, rec.deals[1])
	assert.Equal(t, recordedDeal{100, 5, 2, 2, 4, 4}, rec.deals[2])
	assert.Equal(t, recordedDeal{100, 2, 2, 2, 5, 5}, rec.deals[3])

	bids, asks := c.Sizes()
	assert.Equal(t, 0, bids)
	assert.Equal(t, 0, asks)
}

func TestMatchOrdersLeavesImbalance(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 4, 100, 2, 2), false))

	c.MatchOrders()

	require.Len(t, rec.deals, 1)
	o, ok := c.Find(1, 1, Buy)
	require.True(t, ok)
	assert.Equal(t, Quantity(6), o.Qty)
	_, asks := c.Sizes()
	assert.Equal(t, 0, asks)
}

func TestReplaceLosesTimePriority(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 100, 2, 2), false))

	// Same price, same quantity: the replace still re-queues at the back.
	st := c.Modify(&OrderReplace{
		Way: Sell, Qty: 10, Price: 100,
		ExistingOrderID: 1, ReplacedOrderID: 3, ClientID: 1,
	}, true)
	require.Equal(t, StatusOK, st)

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 9, 8), true))

	require.Len(t, rec.deals, 1)
	assert.Equal(t, ClientID(2), rec.deals[0].sellerClient)
	assert.Equal(t, OrderID(2), rec.deals[0].sellerOrder)

	_, ok := c.Find(3, 1, Sell)
	assert.True(t, ok, "replaced order rests under its new id")
	_, ok = c.Find(1, 1, Sell)
	assert.False(t, ok)
}

func TestReplaceUnknownOrder(t *testing.T) {
	c, _ := newTestContainer()

	st := c.Modify(&OrderReplace{
		Way: Buy, Qty: 10, Price: 100,
		ExistingOrderID: 42, ReplacedOrderID: 43, ClientID: 1,
	}, false)
	assert.Equal(t, StatusOrderNotFound, st)
}

func TestReplaceCanFullyExecute(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 90, 2, 2), false))

	// Repricing the bid to cross consumes it entirely; nothing re-rests.
	st := c.Modify(&OrderReplace{
		Way: Buy, Qty: 10, Price: 100,
		ExistingOrderID: 2, ReplacedOrderID: 4, ClientID: 2,
	}, true)
	require.Equal(t, StatusOK, st)

	require.Len(t, rec.deals, 1)
	assert.Equal(t, recordedDeal{100, 10, 2, 4, 1, 1}, rec.deals[0])

	bids, asks := c.Sizes()
	assert.Equal(t, 0, bids)
	assert.Equal(t, 0, asks)
}

func TestCancelAllOrdersReportsEverything(t *testing.T) {
	c, rec := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 5, 99, 2, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 7, 101, 3, 2), false))

	c.CancelAllOrders()

	require.Len(t, rec.cancels, 3)
	// Asks drain first, then bids in priority order.
	assert.Equal(t, OrderID(3), rec.cancels[0].OrderID)
	assert.Equal(t, OrderID(1), rec.cancels[1].OrderID)
	assert.Equal(t, OrderID(2), rec.cancels[2].OrderID)

	bids, asks := c.Sizes()
	assert.Equal(t, 0, bids)
	assert.Equal(t, 0, asks)
}

func TestAggregatedView(t *testing.T) {
	c, _ := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 5, 100, 2, 2), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 8, 99, 3, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 3, 101, 4, 3), false))

	bids, asks := c.AggregatedView()
	require.Len(t, bids, 2)
	assert.Equal(t, Limit{Count: 2, Qty: 15, Price: 100}, bids[0])
	assert.Equal(t, Limit{Count: 1, Qty: 8, Price: 99}, bids[1])
	require.Len(t, asks, 1)
	assert.Equal(t, Limit{Count: 1, Qty: 3, Price: 101}, asks[0])
}

func TestByOrderViewKeepsPriorityOrder(t *testing.T) {
	c, _ := newTestContainer()

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 99, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 5, 100, 2, 2), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 8, 100, 3, 3), false))

	bids, _ := c.ByOrderView()
	require.Len(t, bids, 3)
	assert.Equal(t, OrderID(2), bids[0].OrderID)
	assert.Equal(t, OrderID(3), bids[1].OrderID)
	assert.Equal(t, OrderID(1), bids[2].OrderID)
}

func TestBestPrices(t *testing.T) {
	c, _ := newTestContainer()

	_, ok := c.BestBid()
	assert.False(t, ok)

	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 99, 1, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Buy, 10, 100, 2, 1), false))
	require.Equal(t, StatusOK, c.Insert(order(Sell, 10, 105, 3, 2), false))

	bid, ok := c.BestBid()
	require.True(t, ok)
	assert.Equal(t, Price(100), bid)
	ask, ok := c.BestAsk()
	require.True(t, ok)
	assert.Equal(t, Price(105), ask)
}
