package domain

import "github.com/shopspring/decimal"

// All monetary quantities are fixed-point decimals with 18 fractional
// digits and exact arithmetic (spec §3); this raises shopspring/decimal's
// default division precision (16) to match before any arithmetic happens.
func init() {
	decimal.DivisionPrecision = 18
}

// Market identifies a trading pair, e.g. "BTC-USDT". The matching engine is
// specified per market (spec §1 Non-goals: no multi-market cross-matching).
type Market string

// UserID, AccountID, OrderID, TradeID, TransactionID and AuditLogID are the
// monotonically assigned 64-bit integers the repository issues (spec §3:
// "IDs are monotonically assigned 64-bit integers issued by the repository").
type UserID int64
type AccountID int64
type OrderID int64
type TradeID int64
type TransactionID int64
type AuditLogID int64

// LinkID groups an OCO pair's two legs. It is a separate key, not a pointer
// between Order values, per the design note in spec §9.
type LinkID int64
