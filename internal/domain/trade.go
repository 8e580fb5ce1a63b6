package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an append-only record of a match between a maker and a taker
// (spec §3). Price is always the maker's price at match time; price
// improvement accrues to the taker and is never reflected here.
type Trade struct {
	ID            TradeID
	MakerOrderID  OrderID
	TakerOrderID  OrderID
	TakerSide     Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
	FeeMaker      decimal.Decimal
	FeeTaker      decimal.Decimal
	CreatedAt     time.Time
}

// NewTrade builds a Trade record for a match at the maker's price
// (maker.Price) between the given maker/taker orders, with the given fees.
// The trade ID is filled in by the caller.
func NewTrade(market Market, maker, taker *Order, amount, feeMaker, feeTaker decimal.Decimal, at time.Time) *Trade {
	return &Trade{
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		TakerSide:    taker.Side,
		Price:        maker.Price,
		Amount:       amount,
		FeeMaker:     feeMaker,
		FeeTaker:     feeTaker,
		CreatedAt:    at,
	}
}
