package orderbook

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// PriceTreeInterface is the pluggable price-level index behind one side of an
// OrderBook. Two implementations are provided: HashMapListPriceTree (default,
// best for markets with few distinct price levels) and ShardedPriceTree
// (opt-in, for markets configured with a fine price_tick and consequently
// many distinct levels).
type PriceTreeInterface interface {
	// Insert adds order to the tree at order.Price.
	Insert(order *domain.Order)

	// Remove deletes order from the tree.
	Remove(order *domain.Order)

	// GetBestPrice returns the best price in the tree, or the zero Decimal if
	// empty.
	GetBestPrice() decimal.Decimal

	// GetBestLevel returns the best price level, or nil if empty.
	GetBestLevel() *PriceLevel_

	// GetBestOrders returns all orders resting at the best price level, in
	// FIFO arrival order.
	GetBestOrders() []*domain.Order

	// GetLevel returns the price level at price, or nil if none.
	GetLevel(price decimal.Decimal) *PriceLevel_

	// GetDepth returns up to maxLevels price levels starting from the best.
	GetDepth(maxLevels int) []PriceLevel_

	IsEmpty() bool
	Size() int
}
