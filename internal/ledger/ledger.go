// Package ledger is the only component permitted to mutate balances. It
// provides atomic compound postings and guarantees that a failed posting
// leaves every account involved exactly as it was before the call (spec
// §4.1).
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// key is the per-(account, asset) lock granularity: two concurrent postings
// against the same account never interleave, but postings against unrelated
// accounts proceed independently (spec §5).
type key struct {
	account domain.AccountID
	asset   domain.Asset
}

// Ledger is the AccountLedger of spec §4.1.
type Ledger struct {
	mu       sync.Mutex // guards creation of new per-key locks and the balances map
	locks    map[key]*sync.Mutex
	balances map[key]*domain.Balance

	// feeAccounts holds the per-asset system account that receives fee legs
	// (spec §9 open question (a)). Populated via RegisterFeeAccount.
	feeAccounts map[domain.Asset]domain.AccountID

	onChange func(domain.AccountID, domain.Asset, decimal.Decimal, decimal.Decimal)
}

// New creates an empty Ledger. onChange, if non-nil, is invoked after every
// committed mutation with the new available/locked values; the application
// context wires this to publish balance.changed events.
func New(onChange func(domain.AccountID, domain.Asset, decimal.Decimal, decimal.Decimal)) *Ledger {
	return &Ledger{
		locks:       make(map[key]*sync.Mutex),
		balances:    make(map[key]*domain.Balance),
		feeAccounts: make(map[domain.Asset]domain.AccountID),
		onChange:    onChange,
	}
}

// RegisterFeeAccount designates accountID as the fee-collection account for
// asset. Must be called once per asset during startup.
func (l *Ledger) RegisterFeeAccount(asset domain.Asset, accountID domain.AccountID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeAccounts[asset] = accountID
}

func (l *Ledger) FeeAccount(asset domain.Asset) (domain.AccountID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.feeAccounts[asset]
	return id, ok
}

// lockFor returns (creating if necessary) the mutex serializing mutations of
// (accountID, asset).
func (l *Ledger) lockFor(accountID domain.AccountID, asset domain.Asset) *sync.Mutex {
	k := key{accountID, asset}
	l.mu.Lock()
	m, ok := l.locks[k]
	if !ok {
		m = &sync.Mutex{}
		l.locks[k] = m
	}
	l.mu.Unlock()
	return m
}

// balanceLocked returns a pointer to the balance row for k, creating a zero
// row on first reference. Caller must hold lockFor(k).
func (l *Ledger) balanceLocked(accountID domain.AccountID, asset domain.Asset) *domain.Balance {
	k := key{accountID, asset}
	l.mu.Lock()
	b, ok := l.balances[k]
	if !ok {
		zero := domain.ZeroBalance(accountID, asset)
		b = &zero
		l.balances[k] = b
	}
	l.mu.Unlock()
	return b
}

// GetBalance returns a snapshot of the balance for (accountID, asset),
// creating a zero row on first read.
func (l *Ledger) GetBalance(accountID domain.AccountID, asset domain.Asset) domain.Balance {
	m := l.lockFor(accountID, asset)
	m.Lock()
	defer m.Unlock()
	return *l.balanceLocked(accountID, asset)
}

func (l *Ledger) notify(b *domain.Balance) {
	if l.onChange != nil {
		l.onChange(b.AccountID, b.Asset, b.Available, b.Locked)
	}
}

// Lock moves qty from available to locked. Fails with ErrInsufficientBal
// carrying (account_id, asset, required, available) if available < qty.
func (l *Ledger) Lock(accountID domain.AccountID, asset domain.Asset, qty decimal.Decimal) error {
	m := l.lockFor(accountID, asset)
	m.Lock()
	defer m.Unlock()

	b := l.balanceLocked(accountID, asset)
	if b.Available.LessThan(qty) {
		return domain.NewError(domain.ErrInsufficientBal, "insufficient available balance",
			"account_id", accountID, "asset", asset, "required", qty, "available", b.Available)
	}
	b.Available = b.Available.Sub(qty)
	b.Locked = b.Locked.Add(qty)
	l.notify(b)
	return nil
}

// Unlock moves qty from locked back to available. Requires locked >= qty.
func (l *Ledger) Unlock(accountID domain.AccountID, asset domain.Asset, qty decimal.Decimal) error {
	m := l.lockFor(accountID, asset)
	m.Lock()
	defer m.Unlock()

	b := l.balanceLocked(accountID, asset)
	if b.Locked.LessThan(qty) {
		return domain.NewError(domain.ErrLedgerInconsistency, "unlock exceeds locked balance",
			"account_id", accountID, "asset", asset, "qty", qty, "locked", b.Locked)
	}
	b.Locked = b.Locked.Sub(qty)
	b.Available = b.Available.Add(qty)
	l.notify(b)
	return nil
}

// Credit increases available balance. Used for deposits and for crediting the
// receiving leg of a trade/settlement.
func (l *Ledger) Credit(accountID domain.AccountID, asset domain.Asset, qty decimal.Decimal) error {
	m := l.lockFor(accountID, asset)
	m.Lock()
	defer m.Unlock()

	b := l.balanceLocked(accountID, asset)
	b.Available = b.Available.Add(qty)
	l.notify(b)
	return nil
}

// DebitLocked decreases locked balance (outflow after trade/withdrawal).
// Requires locked >= qty.
func (l *Ledger) DebitLocked(accountID domain.AccountID, asset domain.Asset, qty decimal.Decimal) error {
	m := l.lockFor(accountID, asset)
	m.Lock()
	defer m.Unlock()

	b := l.balanceLocked(accountID, asset)
	if b.Locked.LessThan(qty) {
		return domain.NewError(domain.ErrLedgerInconsistency, "debit exceeds locked balance",
			"account_id", accountID, "asset", asset, "qty", qty, "locked", b.Locked)
	}
	b.Locked = b.Locked.Sub(qty)
	l.notify(b)
	return nil
}

// SettleTrade is the compound posting of spec §4.1: it moves base and quote
// between the buyer and seller in one atomic group, deducting fees from the
// received leg of each side into the asset's fee account, and posts nothing
// at all if any leg would be invalid.
//
// buyerID/sellerID are the two accounts; base/quote identify the two assets;
// price/qty identify the trade; feeBuyer is taken from the base the buyer
// receives, feeSeller from the quote the seller receives.
func (l *Ledger) SettleTrade(
	buyerID, sellerID domain.AccountID,
	base, quote domain.Asset,
	price, qty, feeBuyer, feeSeller decimal.Decimal,
) error {
	quoteAmount := price.Mul(qty)

	// Lock ordering: always acquire in a fixed global order (by account then
	// asset) to avoid deadlock between two concurrent SettleTrade calls that
	// touch the same pair of accounts in opposite roles.
	legs := []key{
		{sellerID, base},
		{buyerID, base},
		{buyerID, quote},
		{sellerID, quote},
	}
	if feeAcct, ok := l.FeeAccount(base); ok {
		legs = append(legs, key{feeAcct, base})
	}
	if feeAcct, ok := l.FeeAccount(quote); ok {
		legs = append(legs, key{feeAcct, quote})
	}
	locked := make(map[key]*sync.Mutex, len(legs))
	for _, k := range legs {
		if _, ok := locked[k]; ok {
			continue
		}
		locked[k] = l.lockFor(k.account, k.asset)
	}
	ordered := orderedKeys(locked)
	for _, k := range ordered {
		locked[k].Lock()
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			locked[ordered[i]].Unlock()
		}
	}()

	sellerBase := l.balanceLocked(sellerID, base)
	buyerQuote := l.balanceLocked(buyerID, quote)

	// Pre-validate both outflows before mutating anything, so a failure here
	// leaves every account exactly as it was (spec §4.1 guarantee ii).
	if sellerBase.Locked.LessThan(qty) {
		return domain.NewError(domain.ErrLedgerInconsistency, "seller locked base insufficient for settlement",
			"account_id", sellerID, "asset", base, "qty", qty, "locked", sellerBase.Locked)
	}
	if buyerQuote.Locked.LessThan(quoteAmount) {
		return domain.NewError(domain.ErrLedgerInconsistency, "buyer locked quote insufficient for settlement",
			"account_id", buyerID, "asset", quote, "required", quoteAmount, "locked", buyerQuote.Locked)
	}
	if feeBuyer.GreaterThan(qty) {
		return domain.NewError(domain.ErrLedgerInconsistency, "buyer fee exceeds received base amount")
	}
	if feeSeller.GreaterThan(quoteAmount) {
		return domain.NewError(domain.ErrLedgerInconsistency, "seller fee exceeds received quote amount")
	}

	buyerBase := l.balanceLocked(buyerID, base)
	sellerQuote := l.balanceLocked(sellerID, quote)

	// Base: seller's locked -> buyer's available, minus buyer's fee.
	sellerBase.Locked = sellerBase.Locked.Sub(qty)
	buyerBase.Available = buyerBase.Available.Add(qty.Sub(feeBuyer))

	// Quote: buyer's locked -> seller's available, minus seller's fee.
	buyerQuote.Locked = buyerQuote.Locked.Sub(quoteAmount)
	sellerQuote.Available = sellerQuote.Available.Add(quoteAmount.Sub(feeSeller))

	if feeBuyer.IsPositive() {
		if feeAcct, ok := l.feeAccounts[base]; ok {
			feeBal := l.balanceLocked(feeAcct, base)
			feeBal.Available = feeBal.Available.Add(feeBuyer)
			l.notify(feeBal)
		}
	}
	if feeSeller.IsPositive() {
		if feeAcct, ok := l.feeAccounts[quote]; ok {
			feeBal := l.balanceLocked(feeAcct, quote)
			feeBal.Available = feeBal.Available.Add(feeSeller)
			l.notify(feeBal)
		}
	}

	l.notify(sellerBase)
	l.notify(buyerBase)
	l.notify(buyerQuote)
	l.notify(sellerQuote)
	return nil
}

// orderedKeys returns m's keys in a deterministic order (account, then
// asset), so two SettleTrade calls sharing accounts always lock in the same
// global order.
func orderedKeys(m map[key]*sync.Mutex) []key {
	out := make([]key, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && less(out[j], out[j-1]) {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func less(a, b key) bool {
	if a.account != b.account {
		return a.account < b.account
	}
	return a.asset < b.asset
}
