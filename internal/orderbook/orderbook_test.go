package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func limitOrder(id domain.OrderID, side domain.Side, price, amount string) *domain.Order {
	return &domain.Order{
		ID:        id,
		Side:      side,
		Kind:      domain.KindLimit,
		Price:     dec(price),
		Amount:    dec(amount),
		Status:    domain.StatusOpen,
		CreatedAt: time.Now(),
	}
}

func TestInsertAndBestPrice(t *testing.T) {
	for _, tt := range []PriceTreeType{HashMapListType, ShardedType} {
		ob := New("BTC-USDT", Config{TreeType: tt, TickSize: dec("0.01"), BucketSpan: 4096})

		ob.Insert(limitOrder(1, domain.SideSell, "50000", "1"))
		if !ob.BestAsk().Equal(dec("50000")) {
			t.Errorf("tree %v: expected best ask 50000, got %s", tt, ob.BestAsk())
		}

		ob.Insert(limitOrder(2, domain.SideBuy, "49000", "1"))
		if !ob.BestBid().Equal(dec("49000")) {
			t.Errorf("tree %v: expected best bid 49000, got %s", tt, ob.BestBid())
		}
	}
}

func TestPricePriority(t *testing.T) {
	for _, tt := range []PriceTreeType{HashMapListType, ShardedType} {
		ob := New("BTC-USDT", Config{TreeType: tt, TickSize: dec("0.01"), BucketSpan: 4096})

		ob.Insert(limitOrder(1, domain.SideSell, "51000", "1"))
		ob.Insert(limitOrder(2, domain.SideSell, "50000", "1")) // best
		ob.Insert(limitOrder(3, domain.SideSell, "52000", "1"))

		if !ob.BestAsk().Equal(dec("50000")) {
			t.Errorf("tree %v: expected best ask 50000, got %s", tt, ob.BestAsk())
		}
	}
}

func TestRemoveEmptiesLevel(t *testing.T) {
	ob := New("BTC-USDT", Config{TreeType: HashMapListType, TickSize: dec("0.01")})
	order := limitOrder(1, domain.SideSell, "50000", "1")
	ob.Insert(order)
	if ob.Remove(order.ID) == nil {
		t.Fatal("expected Remove to return the removed order")
	}
	if !ob.BestAsk().IsZero() {
		t.Errorf("expected empty book after removing only order, got best ask %s", ob.BestAsk())
	}
	if ob.Size() != 0 {
		t.Errorf("expected size 0, got %d", ob.Size())
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	ob := New("BTC-USDT", Config{TreeType: HashMapListType, TickSize: dec("0.01")})
	first := limitOrder(1, domain.SideSell, "50000", "1")
	second := limitOrder(2, domain.SideSell, "50000", "1")
	ob.Insert(first)
	ob.Insert(second)

	orders := ob.BestOppositeOrders(domain.SideBuy)
	if len(orders) != 2 || orders[0].ID != 1 || orders[1].ID != 2 {
		t.Fatalf("expected FIFO order [1,2], got %+v", orders)
	}
}

func TestSnapshotAggregatesVolume(t *testing.T) {
	ob := New("BTC-USDT", Config{TreeType: HashMapListType, TickSize: dec("0.01")})
	ob.Insert(limitOrder(1, domain.SideSell, "50000", "1"))
	ob.Insert(limitOrder(2, domain.SideSell, "50000", "2"))

	_, asks := ob.Snapshot(10)
	if len(asks) != 1 {
		t.Fatalf("expected 1 aggregated level, got %d", len(asks))
	}
	if !asks[0].Quantity.Equal(dec("3")) {
		t.Errorf("expected aggregated volume 3, got %s", asks[0].Quantity)
	}
	if asks[0].Orders != 2 {
		t.Errorf("expected 2 orders at level, got %d", asks[0].Orders)
	}
}

func TestAdjustFilledReducesVolume(t *testing.T) {
	ob := New("BTC-USDT", Config{TreeType: HashMapListType, TickSize: dec("0.01")})
	order := limitOrder(1, domain.SideSell, "50000", "1")
	ob.Insert(order)

	order.Fill(dec("0.4"))
	ob.AdjustFilled(order, dec("0.4"))

	_, asks := ob.Snapshot(10)
	if !asks[0].Quantity.Equal(dec("0.6")) {
		t.Errorf("expected remaining volume 0.6, got %s", asks[0].Quantity)
	}
}
