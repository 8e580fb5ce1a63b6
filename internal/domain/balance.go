package domain

import "github.com/shopspring/decimal"

// Balance is keyed by (AccountID, Asset). It is created with zero available
// and zero locked on first reference (spec §3: "Balances are created on first
// reference to an (account, asset) pair").
type Balance struct {
	AccountID AccountID
	Asset     Asset
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// ZeroBalance returns a fresh zero-value balance for (accountID, asset).
func ZeroBalance(accountID AccountID, asset Asset) Balance {
	return Balance{
		AccountID: accountID,
		Asset:     asset,
		Available: decimal.Zero,
		Locked:    decimal.Zero,
	}
}

// Total is available + locked.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}
