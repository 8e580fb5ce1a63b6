package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind replaces the deep order-type inheritance of the source with a
// tagged variant, per the design note in spec §9.
type OrderKind int

const (
	KindLimit OrderKind = iota
	KindMarket
	KindStop
	KindStopLimit
)

func (k OrderKind) String() string {
	switch k {
	case KindLimit:
		return "limit"
	case KindMarket:
		return "market"
	case KindStop:
		return "stop"
	case KindStopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// TimeInForce is the TIF mode of an order.
type TimeInForce int

const (
	TIFGTC TimeInForce = iota
	TIFIOC
	TIFFOK
)

// OrderStatus is the Order.status enum of spec §3. A stop order additionally
// visits Triggered between Open and its subsequent states.
type OrderStatus int

const (
	StatusPending OrderStatus = iota
	StatusOpen
	StatusPartial
	StatusFilled
	StatusCanceled
	StatusRejected
	StatusTriggered
)

func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// LinkGroup is the orthogonal axis to OrderKind representing OCO membership,
// per the design note in spec §9 ("tagged variant OrderKind plus an
// orthogonal LinkGroup").
type LinkGroup struct {
	Linked bool
	LinkID LinkID
}

// NoLink is the zero-value LinkGroup: not part of an OCO pair.
var NoLink = LinkGroup{}

// Order is the mutable resting/working order. AccountService owns creation
// and pre-admission state; the MatchingEngine owns Filled/Status from
// admission onward (spec §3 Ownership).
type Order struct {
	ID        OrderID
	AccountID AccountID
	Market    Market
	Side      Side
	Kind      OrderKind
	TIF       TimeInForce

	Price     decimal.Decimal // required iff Kind in {Limit, StopLimit}
	StopPrice decimal.Decimal // required iff Kind in {Stop, StopLimit}
	Amount    decimal.Decimal
	Filled    decimal.Decimal

	// MaxQuote is the pre-reserved budget for a market buy order (spec §4.4):
	// the caller supplies it, the service locks it at admission, and any
	// residue not spent is unlocked on completion. Meaningful only for a buy
	// order of Kind Market, or Kind Stop before activation.
	MaxQuote   decimal.Decimal
	QuoteSpent decimal.Decimal // running total of quote consumed against MaxQuote

	Status OrderStatus
	Link   LinkGroup

	CreatedAt time.Time

	// ListElement is the order book's *list.Element for this order within its
	// current price level (or of its stop level while armed), opaque to domain
	// and set by internal/orderbook and internal/matching's stop table, so
	// Remove is O(1) instead of a linear scan (spec §4.2).
	ListElement any
}

// Remaining returns Amount - Filled.
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

// IsFilled reports whether the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.Filled.GreaterThanOrEqual(o.Amount)
}

// Fill records a fill and updates Status accordingly. Callers are responsible
// for clamping q = min(remaining_taker, remaining_maker) as spec §4.3
// requires; Fill itself does not validate q against Remaining().
func (o *Order) Fill(q decimal.Decimal) {
	o.Filled = o.Filled.Add(q)
	if o.IsFilled() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartial
	}
}

// Cancel marks the order canceled; callers handle ledger unlocking.
func (o *Order) Cancel() {
	o.Status = StatusCanceled
}

// Reject marks the order rejected before any ledger effect.
func (o *Order) Reject() {
	o.Status = StatusRejected
}

// IsStop reports whether the order starts life in the stop-trigger table
// rather than the book.
func (o *Order) IsStop() bool {
	return o.Kind == KindStop || o.Kind == KindStopLimit
}

// Activate converts a triggered stop order into its executable form: a stop
// becomes a market order, a stop-limit becomes a limit at its configured
// price (spec §4.3).
func (o *Order) Activate() {
	o.Status = StatusTriggered
	switch o.Kind {
	case KindStop:
		o.Kind = KindMarket
	case KindStopLimit:
		o.Kind = KindLimit
	}
}
