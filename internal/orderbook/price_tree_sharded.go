package orderbook

import (
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/shopspring/decimal"
)

// ShardedPriceTree uses a sharded Ordered Map architecture:
//   - outer: a red-black tree over bucket IDs (O(log m), m = bucket count)
//   - inner: a map keyed by the level's full tick count (O(1))
//
// Both keys are derived from price via an integer tick count
// (price / tickSize): bucketID = tickCount / bucketSpan, and the inner map is
// keyed by tickCount itself. This generalizes the power-of-two bit-mask
// indexing a fixed-point int64 price allows: decimal.Decimal cannot be
// bit-shifted, so bucket indexing here is plain integer division/modulo on
// tick counts, one dependency (gods/v2's red-black tree) serving both this
// tree and the stop-trigger table in internal/matching.
type ShardedPriceTree struct {
	buckets    *rbt.Tree[int64, *Bucket]
	bestBucket *Bucket
	bestPrice  *PriceLevel_
	isBuy      bool
	tickSize   decimal.Decimal
	bucketSpan int64
}

// Bucket is a shard of price levels, indexed by full tick count and kept in
// price-priority order via a doubly linked list.
type Bucket struct {
	bucketID int64
	levels   map[int64]*PriceLevel_
	best     *PriceLevel_
	size     int
	isBuy    bool
}

// NewShardedPriceTree creates a sharded price tree. tickSize is the smallest
// meaningful price increment for the market (spec §6's price_tick);
// bucketSpan is the number of ticks grouped per bucket.
func NewShardedPriceTree(isBuy bool, tickSize decimal.Decimal, bucketSpan int64) *ShardedPriceTree {
	var comparator func(a, b int64) int
	if isBuy {
		comparator = func(a, b int64) int {
			switch {
			case a > b:
				return -1
			case a < b:
				return 1
			default:
				return 0
			}
		}
	} else {
		comparator = func(a, b int64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}
	}

	return &ShardedPriceTree{
		buckets:    rbt.NewWith[int64, *Bucket](comparator),
		isBuy:      isBuy,
		tickSize:   tickSize,
		bucketSpan: bucketSpan,
	}
}

func NewBucket(bucketID int64, isBuy bool) *Bucket {
	return &Bucket{
		bucketID: bucketID,
		levels:   make(map[int64]*PriceLevel_),
		isBuy:    isBuy,
	}
}

func (spt *ShardedPriceTree) tickCount(price decimal.Decimal) int64 {
	return price.DivRound(spt.tickSize, 0).IntPart()
}

// Insert inserts level at price. O(log m) to find or create the bucket, then
// a walk of the bucket's level list to place a new level in price order.
func (spt *ShardedPriceTree) Insert(price decimal.Decimal, level *PriceLevel_) {
	ticks := spt.tickCount(price)
	bucketID := ticks / spt.bucketSpan

	bucket, found := spt.buckets.Get(bucketID)
	if !found {
		bucket = NewBucket(bucketID, spt.isBuy)
		spt.buckets.Put(bucketID, bucket)
	}

	bucket.insert(ticks, level)
	spt.updateBestPrice(bucket)
}

// Remove deletes the level at price.
func (spt *ShardedPriceTree) Remove(price decimal.Decimal) {
	ticks := spt.tickCount(price)
	bucketID := ticks / spt.bucketSpan

	bucket, found := spt.buckets.Get(bucketID)
	if !found {
		return
	}

	bucket.remove(ticks)

	if bucket.size == 0 {
		spt.buckets.Remove(bucketID)
		if spt.bestBucket == bucket {
			spt.bestBucket = nil
			spt.bestPrice = nil
			spt.updateBestPriceFromTree()
		}
	} else if spt.bestPrice != nil && spt.bestPrice.Price.Equal(price) {
		spt.updateBestPriceFromTree()
	}
}

// GetBestPrice returns the best price level in the tree, or nil if empty.
func (spt *ShardedPriceTree) GetBestPrice() *PriceLevel_ {
	return spt.bestPrice
}

func (spt *ShardedPriceTree) updateBestPrice(bucket *Bucket) {
	if spt.bestBucket == nil {
		spt.bestBucket = bucket
		spt.bestPrice = bucket.best
		return
	}

	if spt.isBetterBucket(bucket.bucketID, spt.bestBucket.bucketID) {
		spt.bestBucket = bucket
		spt.bestPrice = bucket.best
	} else if bucket == spt.bestBucket {
		spt.bestPrice = bucket.best
	}
}

func (spt *ShardedPriceTree) updateBestPriceFromTree() {
	if spt.buckets.Empty() {
		spt.bestBucket = nil
		spt.bestPrice = nil
		return
	}

	node := spt.buckets.Left()
	if node != nil {
		spt.bestBucket = node.Value
		spt.bestPrice = node.Value.best
	}
}

func (spt *ShardedPriceTree) isBetterBucket(newBucketID, existingBucketID int64) bool {
	if spt.isBuy {
		return newBucketID > existingBucketID
	}
	return newBucketID < existingBucketID
}

// ===== Bucket methods =====

func (b *Bucket) insert(ticks int64, level *PriceLevel_) {
	b.levels[ticks] = level
	b.size++

	if b.best == nil {
		b.best = level
		return
	}

	if b.isBetterPrice(level.Price, b.best.Price) {
		level.NextPrice = b.best
		b.best.PrevPrice = level
		b.best = level
		return
	}

	current := b.best
	for current.NextPrice != nil {
		if b.isBetterPrice(level.Price, current.NextPrice.Price) {
			break
		}
		current = current.NextPrice
	}

	level.NextPrice = current.NextPrice
	level.PrevPrice = current
	if current.NextPrice != nil {
		current.NextPrice.PrevPrice = level
	}
	current.NextPrice = level
}

func (b *Bucket) remove(ticks int64) {
	level, ok := b.levels[ticks]
	if !ok {
		return
	}

	delete(b.levels, ticks)
	b.size--

	if level.PrevPrice != nil {
		level.PrevPrice.NextPrice = level.NextPrice
	} else {
		b.best = level.NextPrice
	}
	if level.NextPrice != nil {
		level.NextPrice.PrevPrice = level.PrevPrice
	}

	level.NextPrice = nil
	level.PrevPrice = nil
}

func (b *Bucket) isBetterPrice(newPrice, existingPrice decimal.Decimal) bool {
	if b.isBuy {
		return newPrice.GreaterThan(existingPrice)
	}
	return newPrice.LessThan(existingPrice)
}
