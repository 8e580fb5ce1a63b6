// Package feeschedule computes the deterministic per-trade fee owed by a
// maker or taker. The algorithm is intentionally a pure function of
// (role, market, amount): spec §4.3 requires it be deterministic and leaves
// the exact schedule out of scope beyond that.
package feeschedule

import (
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// Role distinguishes the maker and taker legs of a trade, which commonly
// carry different basis-point rates (maker rebates are a common exchange
// policy).
type Role int

const (
	RoleMaker Role = iota
	RoleTaker
)

// MarketRate is the maker/taker basis-points pair for one market (spec §6's
// fee_schedule config option).
type MarketRate struct {
	MakerBps int64
	TakerBps int64
}

// Schedule is the per-market fee table, keyed by market.
type Schedule struct {
	rates map[domain.Market]MarketRate
	// Default applies to any market absent from rates.
	Default MarketRate
}

// NewSchedule builds a Schedule from a map of per-market rates.
func NewSchedule(rates map[domain.Market]MarketRate, fallback MarketRate) *Schedule {
	return &Schedule{rates: rates, Default: fallback}
}

// Compute returns the fee owed for a fill of amount at the given role in
// market. The result is always in [0, amount].
func (s *Schedule) Compute(role Role, market domain.Market, amount decimal.Decimal) decimal.Decimal {
	rate, ok := s.rates[market]
	if !ok {
		rate = s.Default
	}

	bps := rate.TakerBps
	if role == RoleMaker {
		bps = rate.MakerBps
	}
	if bps <= 0 {
		return decimal.Zero
	}

	fee := amount.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
	if fee.GreaterThan(amount) {
		return amount
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}
