package orderbook

import (
	"container/list"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// HashMapListPriceTree is a price-ordered structure of orders.
// Architecture: NASDAQ-style HashMap + doubly linked list.
//
// Design rationale (NASDAQ ITCH-style):
//   - map for O(1) price level lookup
//   - doubly linked list for O(1) best-price access and O(1) price-level
//     removal
//   - a direct pointer to the best price level, no traversal needed
//
// Insertion of a brand-new price level is O(n) in the number of distinct
// levels (rare once the book is warm; most orders land near the best price).
// This is the default PriceTreeInterface implementation; for markets with
// many distinct levels, see ShardedPriceTree.
type HashMapListPriceTree struct {
	levels     map[string]*PriceLevel_ // decimal.String() -> level (O(1) lookup)
	bestPrice  *PriceLevel_            // pointer to best price level (O(1) access)
	descending bool                    // true for bids (high to low), false for asks
}

var _ PriceTreeInterface = (*HashMapListPriceTree)(nil)

// NewHashMapListPriceTree creates a new HashMap+list price tree.
func NewHashMapListPriceTree(descending bool) *HashMapListPriceTree {
	return &HashMapListPriceTree{
		levels:     make(map[string]*PriceLevel_),
		descending: descending,
	}
}

// PriceLevel_ represents all orders resting at a specific price level and
// forms a doubly linked list for efficient price ordering. Orders store their
// list.Element for O(1) deletion.
type PriceLevel_ struct {
	Price  decimal.Decimal
	Orders *list.List // FIFO queue for time priority
	Volume decimal.Decimal

	NextPrice *PriceLevel_ // next price level (higher for asks, lower for bids)
	PrevPrice *PriceLevel_
}

func (pt *HashMapListPriceTree) Insert(order *domain.Order) {
	key := order.Price.String()
	level, exists := pt.levels[key]
	if !exists {
		level = &PriceLevel_{
			Price:  order.Price,
			Orders: list.New(),
			Volume: decimal.Zero,
		}
		pt.levels[key] = level
		pt.insertPriceLevel(level)
	}

	elem := level.Orders.PushBack(order)
	order.ListElement = elem
	level.Volume = level.Volume.Add(order.Remaining())
}

func (pt *HashMapListPriceTree) Remove(order *domain.Order) {
	key := order.Price.String()
	level, exists := pt.levels[key]
	if !exists {
		return
	}

	if order.ListElement != nil {
		elem := order.ListElement.(*list.Element)
		level.Orders.Remove(elem)
		order.ListElement = nil
		level.Volume = level.Volume.Sub(order.Remaining())
	}

	if level.Orders.Len() == 0 {
		pt.removePriceLevel(level)
	}
}

func (pt *HashMapListPriceTree) GetBestPrice() decimal.Decimal {
	if pt.bestPrice == nil {
		return decimal.Zero
	}
	return pt.bestPrice.Price
}

func (pt *HashMapListPriceTree) GetBestLevel() *PriceLevel_ {
	return pt.bestPrice
}

func (pt *HashMapListPriceTree) GetBestOrders() []*domain.Order {
	bestLevel := pt.GetBestLevel()
	if bestLevel == nil {
		return nil
	}
	orders := make([]*domain.Order, 0, bestLevel.Orders.Len())
	for e := bestLevel.Orders.Front(); e != nil; e = e.Next() {
		orders = append(orders, e.Value.(*domain.Order))
	}
	return orders
}

func (pt *HashMapListPriceTree) GetLevel(price decimal.Decimal) *PriceLevel_ {
	return pt.levels[price.String()]
}

func (pt *HashMapListPriceTree) GetDepth(maxLevels int) []PriceLevel_ {
	if pt.bestPrice == nil {
		return nil
	}
	depth := make([]PriceLevel_, 0, maxLevels)
	current := pt.bestPrice
	for current != nil && len(depth) < maxLevels {
		depth = append(depth, *current)
		current = current.NextPrice
	}
	return depth
}

func (pt *HashMapListPriceTree) IsEmpty() bool {
	return pt.bestPrice == nil
}

func (pt *HashMapListPriceTree) Size() int {
	return len(pt.levels)
}

// insertPriceLevel inserts a new price level into the doubly linked list in
// price-priority order. O(n) worst case, but typically O(1) since new orders
// tend to land near the best price.
func (pt *HashMapListPriceTree) insertPriceLevel(newLevel *PriceLevel_) {
	if pt.bestPrice == nil {
		pt.bestPrice = newLevel
		return
	}

	if pt.isBetterPrice(newLevel.Price, pt.bestPrice.Price) {
		newLevel.NextPrice = pt.bestPrice
		pt.bestPrice.PrevPrice = newLevel
		pt.bestPrice = newLevel
		return
	}

	current := pt.bestPrice
	for current.NextPrice != nil {
		if pt.isBetterPrice(newLevel.Price, current.NextPrice.Price) {
			break
		}
		current = current.NextPrice
	}

	newLevel.NextPrice = current.NextPrice
	newLevel.PrevPrice = current
	if current.NextPrice != nil {
		current.NextPrice.PrevPrice = newLevel
	}
	current.NextPrice = newLevel
}

func (pt *HashMapListPriceTree) removePriceLevel(level *PriceLevel_) {
	delete(pt.levels, level.Price.String())

	if level.PrevPrice != nil {
		level.PrevPrice.NextPrice = level.NextPrice
	}
	if level.NextPrice != nil {
		level.NextPrice.PrevPrice = level.PrevPrice
	}

	if pt.bestPrice == level {
		pt.bestPrice = level.NextPrice
	}
}

func (pt *HashMapListPriceTree) isBetterPrice(price1, price2 decimal.Decimal) bool {
	if pt.descending {
		return price1.GreaterThan(price2)
	}
	return price1.LessThan(price2)
}
