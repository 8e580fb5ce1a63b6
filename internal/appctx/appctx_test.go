package appctx

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradecore/internal/config"
	"tradecore/internal/domain"
	"tradecore/internal/repository"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testConfig() *config.Config {
	return &config.Config{
		Markets: []config.MarketConfig{
			{Symbol: "BTC-USDT", Base: "BTC", Quote: "USDT", PriceTick: "0.01", SizeTick: "0.0001", MinSize: "0.0001", MaxSize: "100"},
		},
		FeeSchedule:          []config.FeeRate{{Market: "BTC-USDT", MakerBps: 10, TakerBps: 20}},
		DefaultMakerBps:      5,
		DefaultTakerBps:      15,
		DepositConfirmations: []config.ConfirmationThreshold{{Asset: "BTC", Confirmations: 3}},
		WithdrawalNetworkFees: []config.NetworkFee{{Asset: "BTC", Fee: "0.0005"}},
	}
}

func TestNewRegistersConfiguredMarkets(t *testing.T) {
	cfg := testConfig()
	ctx, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Shutdown()

	markets := ctx.Exchange.Markets()
	if len(markets) != 1 || string(markets[0]) != "BTC-USDT" {
		t.Fatalf("expected [BTC-USDT], got %v", markets)
	}
	if ctx.Accounts == nil || ctx.Wallet == nil || ctx.Admin == nil {
		t.Fatal("expected all services wired")
	}
}

func TestNewRejectsBadDecimalFields(t *testing.T) {
	cfg := testConfig()
	cfg.Markets[0].PriceTick = "not-a-decimal"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for invalid price_tick")
	}
}

func TestNewRejectsBadNetworkFee(t *testing.T) {
	cfg := testConfig()
	cfg.WithdrawalNetworkFees[0].Fee = "garbage"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for invalid withdrawal network fee")
	}
}

func newActiveAccount(t *testing.T, ctx *Context, asset domain.Asset, credit decimal.Decimal) domain.AccountID {
	t.Helper()
	bg := context.Background()
	id, err := ctx.Repo.NextID(bg, repository.KindAccount)
	if err != nil {
		t.Fatalf("next account id: %v", err)
	}
	acct := &domain.Account{ID: domain.AccountID(id), Status: domain.AccountActive}
	if _, err := ctx.Repo.Accounts().Insert(bg, acct); err != nil {
		t.Fatalf("insert account: %v", err)
	}
	if err := ctx.Ledger.Credit(acct.ID, asset, credit); err != nil {
		t.Fatalf("credit: %v", err)
	}
	return acct.ID
}

// TestTradeCreditsFeeAccount exercises a matched trade end to end through
// Context with a nonzero fee schedule, the gap the bare-ledger unit test
// couldn't catch because it registers fee accounts directly on a Ledger
// instead of going through New.
func TestTradeCreditsFeeAccount(t *testing.T) {
	cfg := testConfig()
	cfg.FeeAccounts = []config.FeeAccountConfig{
		{Asset: "BTC", AccountID: 100},
		{Asset: "USDT", AccountID: 101},
	}
	ctx, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Shutdown()

	bg := context.Background()
	seller := newActiveAccount(t, ctx, "BTC", dec("1"))
	buyer := newActiveAccount(t, ctx, "USDT", dec("50000"))

	sell := &domain.Order{AccountID: seller, Market: "BTC-USDT", Side: domain.SideSell, Kind: domain.KindLimit, TIF: domain.TIFGTC, Price: dec("50000"), Amount: dec("1")}
	if _, err := ctx.Accounts.SubmitOrder(bg, sell); err != nil {
		t.Fatalf("submit sell: %v", err)
	}

	buy := &domain.Order{AccountID: buyer, Market: "BTC-USDT", Side: domain.SideBuy, Kind: domain.KindLimit, TIF: domain.TIFGTC, Price: dec("50000"), Amount: dec("1")}
	out, err := ctx.Accounts.SubmitOrder(bg, buy)
	if err != nil {
		t.Fatalf("submit buy: %v", err)
	}
	if len(out.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(out.Trades))
	}

	btcFees := ctx.Ledger.GetBalance(domain.AccountID(100), "BTC")
	if !btcFees.Available.IsPositive() {
		t.Errorf("expected BTC fee account to be credited, got available=%s", btcFees.Available)
	}
	usdtFees := ctx.Ledger.GetBalance(domain.AccountID(101), "USDT")
	if !usdtFees.Available.IsPositive() {
		t.Errorf("expected USDT fee account to be credited, got available=%s", usdtFees.Available)
	}

	buyerBTC := ctx.Ledger.GetBalance(buyer, "BTC")
	if !buyerBTC.Available.Add(btcFees.Available).Equal(dec("1")) {
		t.Errorf("expected buyer BTC + fee to sum to traded quantity, got buyer=%s fee=%s", buyerBTC.Available, btcFees.Available)
	}
}
