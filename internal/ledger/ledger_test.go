package ledger

import (
	"testing"

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

func TestLockUnlock(t *testing.T) {
	l := New(nil)
	acct := domain.AccountID(1)

	if err := l.Credit(acct, "USDT", dec("100")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Lock(acct, "USDT", dec("60")); err != nil {
		t.Fatalf("lock: %v", err)
	}

	bal := l.GetBalance(acct, "USDT")
	if !bal.Available.Equal(dec("40")) || !bal.Locked.Equal(dec("60")) {
		t.Fatalf("expected available=40 locked=60, got available=%s locked=%s", bal.Available, bal.Locked)
	}

	if err := l.Unlock(acct, "USDT", dec("60")); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	bal = l.GetBalance(acct, "USDT")
	if !bal.Available.Equal(dec("100")) || !bal.Locked.IsZero() {
		t.Fatalf("expected available=100 locked=0, got available=%s locked=%s", bal.Available, bal.Locked)
	}
}

func TestLockInsufficientBalance(t *testing.T) {
	l := New(nil)
	acct := domain.AccountID(1)
	l.Credit(acct, "USDT", dec("10"))

	err := l.Lock(acct, "USDT", dec("20"))
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	if kind, _ := domain.KindOf(err); kind != domain.ErrInsufficientBal {
		t.Errorf("expected ErrInsufficientBal, got %v", kind)
	}

	bal := l.GetBalance(acct, "USDT")
	if !bal.Available.Equal(dec("10")) || !bal.Locked.IsZero() {
		t.Errorf("expected balance unchanged after failed lock, got available=%s locked=%s", bal.Available, bal.Locked)
	}
}

func TestSettleTradeMovesBothLegsAndFees(t *testing.T) {
	l := New(nil)
	buyer := domain.AccountID(1)
	seller := domain.AccountID(2)
	feeAcct := domain.AccountID(99)
	l.RegisterFeeAccount("BTC", feeAcct)
	l.RegisterFeeAccount("USDT", feeAcct)

	l.Credit(buyer, "USDT", dec("50000"))
	l.Lock(buyer, "USDT", dec("50000"))
	l.Credit(seller, "BTC", dec("1"))
	l.Lock(seller, "BTC", dec("1"))

	err := l.SettleTrade(buyer, seller, "BTC", "USDT", dec("50000"), dec("1"), dec("0.001"), dec("50"))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	buyerBTC := l.GetBalance(buyer, "BTC")
	if !buyerBTC.Available.Equal(dec("0.999")) {
		t.Errorf("expected buyer BTC 0.999 after fee, got %s", buyerBTC.Available)
	}
	sellerUSDT := l.GetBalance(seller, "USDT")
	if !sellerUSDT.Available.Equal(dec("49950")) {
		t.Errorf("expected seller USDT 49950 after fee, got %s", sellerUSDT.Available)
	}
	feeBTC := l.GetBalance(feeAcct, "BTC")
	feeUSDT := l.GetBalance(feeAcct, "USDT")
	if !feeBTC.Available.Equal(dec("0.001")) || !feeUSDT.Available.Equal(dec("50")) {
		t.Errorf("expected fee account to collect 0.001 BTC and 50 USDT, got %s BTC %s USDT", feeBTC.Available, feeUSDT.Available)
	}

	buyerUSDT := l.GetBalance(buyer, "USDT")
	sellerBTC := l.GetBalance(seller, "BTC")
	if !buyerUSDT.Locked.IsZero() || !sellerBTC.Locked.IsZero() {
		t.Errorf("expected both locked legs fully consumed, got buyerUSDT.Locked=%s sellerBTC.Locked=%s", buyerUSDT.Locked, sellerBTC.Locked)
	}
}

func TestSettleTradeFailsAtomicallyOnInsufficientLocked(t *testing.T) {
	l := New(nil)
	buyer := domain.AccountID(1)
	seller := domain.AccountID(2)

	l.Credit(buyer, "USDT", dec("100"))
	l.Lock(buyer, "USDT", dec("100")) // not enough to cover a 50000 trade
	l.Credit(seller, "BTC", dec("1"))
	l.Lock(seller, "BTC", dec("1"))

	err := l.SettleTrade(buyer, seller, "BTC", "USDT", dec("50000"), dec("1"), decimal.Zero, decimal.Zero)
	if err == nil {
		t.Fatal("expected settlement failure")
	}

	// Nothing should have moved: both legs remain exactly as locked before.
	buyerUSDT := l.GetBalance(buyer, "USDT")
	sellerBTC := l.GetBalance(seller, "BTC")
	if !buyerUSDT.Locked.Equal(dec("100")) || !sellerBTC.Locked.Equal(dec("1")) {
		t.Errorf("expected no partial effect, got buyerUSDT.Locked=%s sellerBTC.Locked=%s", buyerUSDT.Locked, sellerBTC.Locked)
	}
}

func TestOnChangeNotified(t *testing.T) {
	var calls int
	l := New(func(domain.AccountID, domain.Asset, decimal.Decimal, decimal.Decimal) { calls++ })
	acct := domain.AccountID(1)
	l.Credit(acct, "USDT", dec("10"))
	l.Lock(acct, "USDT", dec("5"))
	if calls != 2 {
		t.Errorf("expected 2 onChange calls, got %d", calls)
	}
}
