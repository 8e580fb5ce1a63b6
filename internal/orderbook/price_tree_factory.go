package orderbook

import (
	"container/list"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// PriceTreeType selects the PriceTreeInterface implementation.
type PriceTreeType int

const (
	// HashMapListType: map + doubly linked list. Best for price levels < ~100.
	HashMapListType PriceTreeType = iota

	// ShardedType: sharded red-black tree of buckets. Best once a market's
	// price_tick is fine enough to produce many distinct levels.
	ShardedType
)

// NewPriceTreeWithType creates a price tree of the requested type. tickSize
// and bucketSpan are only used by ShardedType.
func NewPriceTreeWithType(treeType PriceTreeType, descending bool, tickSize decimal.Decimal, bucketSpan int64) PriceTreeInterface {
	switch treeType {
	case ShardedType:
		return &ShardedPriceTreeAdapter{tree: NewShardedPriceTree(descending, tickSize, bucketSpan)}
	case HashMapListType:
		fallthrough
	default:
		return NewHashMapListPriceTree(descending)
	}
}

// ShardedPriceTreeAdapter adapts ShardedPriceTree to PriceTreeInterface.
type ShardedPriceTreeAdapter struct {
	tree *ShardedPriceTree
}

var _ PriceTreeInterface = (*ShardedPriceTreeAdapter)(nil)

func (s *ShardedPriceTreeAdapter) Insert(order *domain.Order) {
	level := s.GetLevel(order.Price)
	if level == nil {
		level = &PriceLevel_{
			Price:  order.Price,
			Orders: list.New(),
			Volume: decimal.Zero,
		}
		s.tree.Insert(order.Price, level)
	}

	elem := level.Orders.PushBack(order)
	order.ListElement = elem
	level.Volume = level.Volume.Add(order.Remaining())
}

func (s *ShardedPriceTreeAdapter) Remove(order *domain.Order) {
	level := s.GetLevel(order.Price)
	if level == nil {
		return
	}

	if order.ListElement != nil {
		elem := order.ListElement.(*list.Element)
		level.Orders.Remove(elem)
		order.ListElement = nil
		level.Volume = level.Volume.Sub(order.Remaining())
	}

	if level.Orders.Len() == 0 {
		s.tree.Remove(order.Price)
	}
}

func (s *ShardedPriceTreeAdapter) GetBestPrice() decimal.Decimal {
	best := s.tree.GetBestPrice()
	if best == nil {
		return decimal.Zero
	}
	return best.Price
}

func (s *ShardedPriceTreeAdapter) GetBestLevel() *PriceLevel_ {
	return s.tree.GetBestPrice()
}

func (s *ShardedPriceTreeAdapter) GetBestOrders() []*domain.Order {
	bestLevel := s.tree.GetBestPrice()
	if bestLevel == nil {
		return nil
	}
	orders := make([]*domain.Order, 0, bestLevel.Orders.Len())
	for e := bestLevel.Orders.Front(); e != nil; e = e.Next() {
		orders = append(orders, e.Value.(*domain.Order))
	}
	return orders
}

func (s *ShardedPriceTreeAdapter) GetLevel(price decimal.Decimal) *PriceLevel_ {
	ticks := s.tree.tickCount(price)
	bucketID := ticks / s.tree.bucketSpan
	bucket, exists := s.tree.buckets.Get(bucketID)
	if !exists {
		return nil
	}
	return bucket.levels[ticks]
}

func (s *ShardedPriceTreeAdapter) GetDepth(maxLevels int) []PriceLevel_ {
	if maxLevels <= 0 || s.tree.buckets.Empty() {
		return nil
	}

	result := make([]PriceLevel_, 0, maxLevels)
	count := 0

	it := s.tree.buckets.Iterator()
	for it.Next() && count < maxLevels {
		bucket := it.Value()
		current := bucket.best
		for current != nil && count < maxLevels {
			result = append(result, *current)
			count++
			current = current.NextPrice
		}
	}

	return result
}

func (s *ShardedPriceTreeAdapter) IsEmpty() bool {
	return s.tree.buckets.Empty()
}

func (s *ShardedPriceTreeAdapter) Size() int {
	count := 0
	it := s.tree.buckets.Iterator()
	for it.Next() {
		count += len(it.Value().levels)
	}
	return count
}
