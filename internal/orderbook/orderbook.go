// Package orderbook implements the per-market resting-order structure of
// spec §4.2: two sides, each an ordered map from price level to a FIFO queue,
// plus an order_id index supporting O(1) cancellation. It is mutated only by
// the MatchingEngine (spec §5).
package orderbook

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// PriceLevel is the external, read-only view of a price level used for
// market-data snapshots (spec §4.2's snapshot(depth)).
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Orders   int
}

// OrderBook is a price-time-priority order book for one market. Only the
// MatchingEngine that owns a given market touches its OrderBook; no internal
// synchronization is needed (spec §5: single-writer per market).
type OrderBook struct {
	market Market
	bids   PriceTreeInterface // buy orders, descending price
	asks   PriceTreeInterface // sell orders, ascending price
	orders map[domain.OrderID]*domain.Order
}

// Market is a local alias so callers don't need to import domain just to
// construct an OrderBook.
type Market = domain.Market

// Config controls which PriceTreeInterface implementation backs each side.
type Config struct {
	TreeType   PriceTreeType
	TickSize   decimal.Decimal
	BucketSpan int64 // only meaningful for ShardedType
}

// New creates an order book for market using cfg's tree implementation.
func New(market Market, cfg Config) *OrderBook {
	bucketSpan := cfg.BucketSpan
	if bucketSpan <= 0 {
		bucketSpan = 4096
	}
	return &OrderBook{
		market: market,
		bids:   NewPriceTreeWithType(cfg.TreeType, true, cfg.TickSize, bucketSpan),
		asks:   NewPriceTreeWithType(cfg.TreeType, false, cfg.TickSize, bucketSpan),
		orders: make(map[domain.OrderID]*domain.Order),
	}
}

func (ob *OrderBook) sideTree(side domain.Side) PriceTreeInterface {
	if side == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Insert adds a resting order to the book. O(1) at an existing price level;
// opening a new level walks the side's level list, so it is not O(log P).
func (ob *OrderBook) Insert(order *domain.Order) {
	ob.orders[order.ID] = order
	ob.sideTree(order.Side).Insert(order)
}

// Remove deletes orderID from the book, if present. O(log P + 1).
func (ob *OrderBook) Remove(orderID domain.OrderID) *domain.Order {
	order, exists := ob.orders[orderID]
	if !exists {
		return nil
	}
	ob.sideTree(order.Side).Remove(order)
	delete(ob.orders, orderID)
	return order
}

// Get returns the resting order for orderID, or nil.
func (ob *OrderBook) Get(orderID domain.OrderID) *domain.Order {
	return ob.orders[orderID]
}

// AdjustFilled reduces order's price level's aggregate Volume by qty,
// reflecting a partial fill against a resting order without removing it
// from the book. Callers apply this on every fill and still call Remove
// once the order is fully filled; Remove's own subtraction of the (by then
// zero) Remaining() is a no-op, so volume is never double-counted.
func (ob *OrderBook) AdjustFilled(order *domain.Order, qty decimal.Decimal) {
	level := ob.sideTree(order.Side).GetLevel(order.Price)
	if level == nil {
		return
	}
	level.Volume = level.Volume.Sub(qty)
}

// BestBid returns the highest resting buy price, or the zero Decimal if none.
func (ob *OrderBook) BestBid() decimal.Decimal {
	return ob.bids.GetBestPrice()
}

// BestAsk returns the lowest resting sell price, or the zero Decimal if none.
func (ob *OrderBook) BestAsk() decimal.Decimal {
	return ob.asks.GetBestPrice()
}

// BestOppositeOrders returns the FIFO queue of orders resting at the best
// price on the side opposite takerSide — the first candidates a taker of
// takerSide would match against.
func (ob *OrderBook) BestOppositeOrders(takerSide domain.Side) []*domain.Order {
	return ob.sideTree(takerSide.Opposite()).GetBestOrders()
}

// BestOppositeLevel returns the best price level opposite takerSide, or nil.
func (ob *OrderBook) BestOppositeLevel(takerSide domain.Side) *PriceLevel_ {
	return ob.sideTree(takerSide.Opposite()).GetBestLevel()
}

// Snapshot returns up to depth aggregated price levels per side, best first,
// for market-data emission (spec §4.2 snapshot(depth)).
func (ob *OrderBook) Snapshot(depth int) (bids, asks []PriceLevel) {
	bidLevels := ob.bids.GetDepth(depth)
	askLevels := ob.asks.GetDepth(depth)

	bids = make([]PriceLevel, len(bidLevels))
	for i, l := range bidLevels {
		bids[i] = PriceLevel{Price: l.Price, Quantity: l.Volume, Orders: l.Orders.Len()}
	}
	asks = make([]PriceLevel, len(askLevels))
	for i, l := range askLevels {
		asks[i] = PriceLevel{Price: l.Price, Quantity: l.Volume, Orders: l.Orders.Len()}
	}
	return bids, asks
}

// Size returns the number of resting orders across both sides.
func (ob *OrderBook) Size() int {
	return len(ob.orders)
}
