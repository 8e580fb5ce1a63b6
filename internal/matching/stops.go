package matching

import (
	"container/list"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// stopLevel is the stop-table counterpart of orderbook.PriceLevel_: every
// armed stop order sharing a stop_price tick waits here sorted by ascending
// order ID, so that when several stops trigger on the same tick they
// activate in ascending order_id order.
type stopLevel struct {
	price  decimal.Decimal
	orders *list.List
}

// StopTable holds one side's armed stop/stop-limit orders, ordered by
// stop_price, so a single scan after each trade finds everything the last
// trade price has triggered (spec §4.3: "after every trade ... scan for all
// stop orders whose trigger condition is satisfied"). Buy-stops are kept
// ascending (the lowest stop_price is the first one a rising price
// satisfies); sell-stops are kept descending (the highest stop_price is the
// first one a falling price satisfies) — the same ascending/descending
// convention internal/orderbook uses for asks and bids, reused here via the
// same red-black tree dependency rather than hand-rolling a second ordered
// structure.
type StopTable struct {
	tree      *rbt.Tree[int64, *stopLevel]
	tickSize  decimal.Decimal
	triggered func(stopPrice, lastPrice decimal.Decimal) bool
	index     map[domain.OrderID]*domain.Order
}

// NewStopTable creates an empty table. ascending selects the buy-stop
// ordering/trigger rule; sell-stops use the descending rule.
func NewStopTable(ascending bool, tickSize decimal.Decimal) *StopTable {
	var cmp func(a, b int64) int
	var triggered func(stopPrice, lastPrice decimal.Decimal) bool
	if ascending {
		cmp = func(a, b int64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}
		triggered = func(stopPrice, lastPrice decimal.Decimal) bool { return stopPrice.LessThanOrEqual(lastPrice) }
	} else {
		cmp = func(a, b int64) int {
			switch {
			case a > b:
				return -1
			case a < b:
				return 1
			default:
				return 0
			}
		}
		triggered = func(stopPrice, lastPrice decimal.Decimal) bool { return stopPrice.GreaterThanOrEqual(lastPrice) }
	}
	return &StopTable{
		tree:      rbt.NewWith[int64, *stopLevel](cmp),
		tickSize:  tickSize,
		triggered: triggered,
		index:     make(map[domain.OrderID]*domain.Order),
	}
}

func (st *StopTable) ticks(price decimal.Decimal) int64 {
	return price.DivRound(st.tickSize, 0).IntPart()
}

// Arm registers o as waiting on its StopPrice.
func (st *StopTable) Arm(o *domain.Order) {
	ticks := st.ticks(o.StopPrice)
	level, ok := st.tree.Get(ticks)
	if !ok {
		level = &stopLevel{price: o.StopPrice, orders: list.New()}
		st.tree.Put(ticks, level)
	}
	o.ListElement = nil
	for e := level.orders.Back(); e != nil; e = e.Prev() {
		if e.Value.(*domain.Order).ID < o.ID {
			o.ListElement = level.orders.InsertAfter(o, e)
			break
		}
	}
	if o.ListElement == nil {
		o.ListElement = level.orders.PushFront(o)
	}
	st.index[o.ID] = o
}

// Disarm removes o before it has triggered (explicit cancel, or OCO sibling
// resolution).
func (st *StopTable) Disarm(o *domain.Order) {
	ticks := st.ticks(o.StopPrice)
	level, ok := st.tree.Get(ticks)
	if !ok {
		return
	}
	if elem, ok := o.ListElement.(*list.Element); ok && elem != nil {
		level.orders.Remove(elem)
		o.ListElement = nil
	}
	delete(st.index, o.ID)
	if level.orders.Len() == 0 {
		st.tree.Remove(ticks)
	}
}

// Find returns the armed order for orderID, or nil.
func (st *StopTable) Find(orderID domain.OrderID) *domain.Order {
	return st.index[orderID]
}

// PopTriggered removes and returns, in trigger order, every armed order
// whose stop_price is satisfied by lastPrice.
func (st *StopTable) PopTriggered(lastPrice decimal.Decimal) []*domain.Order {
	var out []*domain.Order
	for {
		node := st.tree.Left()
		if node == nil || !st.triggered(node.Value.price, lastPrice) {
			return out
		}
		level := node.Value
		for e := level.orders.Front(); e != nil; e = e.Next() {
			o := e.Value.(*domain.Order)
			delete(st.index, o.ID)
			o.ListElement = nil
			out = append(out, o)
		}
		st.tree.Remove(node.Key)
	}
}

// Size returns the number of armed orders.
func (st *StopTable) Size() int {
	return len(st.index)
}
