package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/feeschedule"
	"tradecore/internal/ledger"
	"tradecore/internal/orderbook"
)

const testMarket domain.Market = "BTC-USDT"

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(t *testing.T) (*MatchingEngine, *ledger.Ledger, *eventbus.Bus) {
	t.Helper()
	l := ledger.New(nil)
	bus := eventbus.New()
	fees := feeschedule.NewSchedule(nil, feeschedule.MarketRate{})
	eng := NewMatchingEngine(MarketConfig{
		Market:    testMarket,
		Base:      "BTC",
		Quote:     "USDT",
		PriceTick: dec("0.01"),
		TreeType:  orderbook.HashMapListType,
	}, l, bus, fees)
	eng.Start()
	t.Cleanup(eng.Stop)
	return eng, l, bus
}

// fund credits accountID with qty of asset and immediately locks it, as
// AccountService does at order admission.
func fund(t *testing.T, l *ledger.Ledger, accountID domain.AccountID, asset domain.Asset, qty decimal.Decimal) {
	t.Helper()
	if err := l.Credit(accountID, asset, qty); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Lock(accountID, asset, qty); err != nil {
		t.Fatalf("lock: %v", err)
	}
}

var nextOrderID int64

func newOrder(accountID domain.AccountID, side domain.Side, kind domain.OrderKind, tif domain.TimeInForce, price, amount decimal.Decimal) *domain.Order {
	nextOrderID++
	return &domain.Order{
		ID:        domain.OrderID(nextOrderID),
		AccountID: accountID,
		Market:    testMarket,
		Side:      side,
		Kind:      kind,
		TIF:       tif,
		Price:     price,
		Amount:    amount,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
}

func TestSimpleMatch(t *testing.T) {
	eng, l, _ := newTestEngine(t)

	seller := domain.AccountID(1)
	buyer := domain.AccountID(2)
	fund(t, l, seller, "BTC", dec("1"))
	fund(t, l, buyer, "USDT", dec("50000"))

	sell := newOrder(seller, domain.SideSell, domain.KindLimit, domain.TIFGTC, dec("50000"), dec("1"))
	if out := eng.Submit(sell); out.Err != nil {
		t.Fatalf("submit sell: %v", out.Err)
	}

	buy := newOrder(buyer, domain.SideBuy, domain.KindLimit, domain.TIFGTC, dec("50000"), dec("1"))
	out := eng.Submit(buy)
	if out.Err != nil {
		t.Fatalf("submit buy: %v", out.Err)
	}
	if len(out.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(out.Trades))
	}
	if !out.Trades[0].Price.Equal(dec("50000")) {
		t.Errorf("expected trade price 50000, got %s", out.Trades[0].Price)
	}
	if !buy.IsFilled() || !sell.IsFilled() {
		t.Errorf("expected both orders filled")
	}

	bBTC := l.GetBalance(buyer, "BTC")
	if !bBTC.Available.Equal(dec("1")) {
		t.Errorf("expected buyer to receive 1 BTC, got %s", bBTC.Available)
	}
	sUSDT := l.GetBalance(seller, "USDT")
	if !sUSDT.Available.Equal(dec("50000")) {
		t.Errorf("expected seller to receive 50000 USDT, got %s", sUSDT.Available)
	}
}

func TestPriceImprovement(t *testing.T) {
	eng, l, _ := newTestEngine(t)

	seller := domain.AccountID(1)
	buyer := domain.AccountID(2)
	fund(t, l, seller, "BTC", dec("1"))
	fund(t, l, buyer, "USDT", dec("60000"))

	// Resting sell at 49000; an aggressive buy at 60000 must execute at the
	// maker's 49000, not its own limit (spec §3: trade price is always the
	// maker's price).
	sell := newOrder(seller, domain.SideSell, domain.KindLimit, domain.TIFGTC, dec("49000"), dec("1"))
	eng.Submit(sell)

	buy := newOrder(buyer, domain.SideBuy, domain.KindLimit, domain.TIFGTC, dec("60000"), dec("1"))
	out := eng.Submit(buy)
	if out.Err != nil {
		t.Fatalf("submit buy: %v", out.Err)
	}
	if len(out.Trades) != 1 || !out.Trades[0].Price.Equal(dec("49000")) {
		t.Fatalf("expected trade at maker price 49000, got %+v", out.Trades)
	}
}

func TestFOKRejectedWhenUnfillable(t *testing.T) {
	eng, l, _ := newTestEngine(t)

	seller := domain.AccountID(1)
	buyer := domain.AccountID(2)
	fund(t, l, seller, "BTC", dec("0.5"))
	fund(t, l, buyer, "USDT", dec("50000"))

	sell := newOrder(seller, domain.SideSell, domain.KindLimit, domain.TIFGTC, dec("50000"), dec("0.5"))
	eng.Submit(sell)

	buy := newOrder(buyer, domain.SideBuy, domain.KindLimit, domain.TIFFOK, dec("50000"), dec("1"))
	out := eng.Submit(buy)
	if out.Err == nil {
		t.Fatalf("expected FOK rejection, got nil error")
	}
	if kind, _ := domain.KindOf(out.Err); kind != domain.ErrFOKUnfillable {
		t.Errorf("expected ErrFOKUnfillable, got %v", kind)
	}
	if buy.Status != domain.StatusRejected {
		t.Errorf("expected order rejected, got %v", buy.Status)
	}
	if len(out.Trades) != 0 {
		t.Errorf("expected no trades on FOK rejection")
	}
}

func TestIOCCancelsResidual(t *testing.T) {
	eng, l, _ := newTestEngine(t)

	seller := domain.AccountID(1)
	buyer := domain.AccountID(2)
	fund(t, l, seller, "BTC", dec("0.5"))
	fund(t, l, buyer, "USDT", dec("50000"))

	sell := newOrder(seller, domain.SideSell, domain.KindLimit, domain.TIFGTC, dec("50000"), dec("0.5"))
	eng.Submit(sell)

	buy := newOrder(buyer, domain.SideBuy, domain.KindLimit, domain.TIFIOC, dec("50000"), dec("1"))
	out := eng.Submit(buy)
	if out.Err != nil {
		t.Fatalf("submit buy: %v", out.Err)
	}
	if len(out.Trades) != 1 {
		t.Fatalf("expected 1 partial trade, got %d", len(out.Trades))
	}
	if buy.Status != domain.StatusCanceled {
		t.Errorf("expected IOC residue canceled, got %v", buy.Status)
	}

	bUSDT := l.GetBalance(buyer, "USDT")
	if !bUSDT.Locked.IsZero() {
		t.Errorf("expected residual quote unlocked, still locked %s", bUSDT.Locked)
	}
}

func TestStopOrderActivatesOnTrade(t *testing.T) {
	eng, l, _ := newTestEngine(t)

	seller1 := domain.AccountID(1)
	buyer1 := domain.AccountID(2)
	stopSeller := domain.AccountID(3)
	buyer2 := domain.AccountID(4)

	fund(t, l, seller1, "BTC", dec("1"))
	fund(t, l, buyer1, "USDT", dec("49000"))
	fund(t, l, stopSeller, "BTC", dec("1"))
	fund(t, l, buyer2, "USDT", dec("48000"))

	// Arm a sell-stop at 49500: triggers once the last trade price falls to
	// or below it.
	stop := newOrder(stopSeller, domain.SideSell, domain.KindStop, domain.TIFGTC, decimal.Zero, dec("1"))
	stop.StopPrice = dec("49500")
	if out := eng.Submit(stop); out.Err != nil {
		t.Fatalf("arm stop: %v", out.Err)
	}
	if stop.Status != domain.StatusOpen {
		t.Errorf("expected armed stop status Open, got %v", stop.Status)
	}

	// Resting bid for the stop to execute against once activated.
	restingBid := newOrder(buyer2, domain.SideBuy, domain.KindLimit, domain.TIFGTC, dec("48000"), dec("1"))
	eng.Submit(restingBid)

	// A trade at 49000 (below the stop's 49500 trigger) should activate it.
	sell1 := newOrder(seller1, domain.SideSell, domain.KindLimit, domain.TIFGTC, dec("49000"), dec("1"))
	eng.Submit(sell1)
	buy1 := newOrder(buyer1, domain.SideBuy, domain.KindLimit, domain.TIFGTC, dec("49000"), dec("1"))
	out := eng.Submit(buy1)
	if out.Err != nil {
		t.Fatalf("submit buy1: %v", out.Err)
	}

	if stop.Kind != domain.KindMarket {
		t.Errorf("expected stop to convert to a market order on activation, got kind %v", stop.Kind)
	}
	if stop.Status != domain.StatusFilled {
		t.Errorf("expected activated stop to match the resting bid and fill, got %v", stop.Status)
	}
}

func TestOCOCancelsOtherLegOnFill(t *testing.T) {
	eng, l, _ := newTestEngine(t)

	holder := domain.AccountID(1)
	counterparty := domain.AccountID(2)

	fund(t, l, holder, "BTC", dec("2")) // one unit reserved per leg
	fund(t, l, counterparty, "USDT", dec("51000"))

	linkID := domain.LinkID(1)
	takeProfit := newOrder(holder, domain.SideSell, domain.KindLimit, domain.TIFGTC, dec("51000"), dec("1"))
	takeProfit.Link = domain.LinkGroup{Linked: true, LinkID: linkID}
	stopLoss := newOrder(holder, domain.SideSell, domain.KindStop, domain.TIFGTC, decimal.Zero, dec("1"))
	stopLoss.StopPrice = dec("45000")
	stopLoss.Link = domain.LinkGroup{Linked: true, LinkID: linkID}

	out := eng.SubmitOCO(takeProfit, stopLoss)
	if out.Err != nil {
		t.Fatalf("submit OCO: %v", out.Err)
	}
	if stopLoss.Status != domain.StatusOpen {
		t.Fatalf("expected stop leg armed, got %v", stopLoss.Status)
	}

	taker := newOrder(counterparty, domain.SideBuy, domain.KindLimit, domain.TIFGTC, dec("51000"), dec("1"))
	tOut := eng.Submit(taker)
	if tOut.Err != nil {
		t.Fatalf("submit taker: %v", tOut.Err)
	}
	if takeProfit.Status != domain.StatusFilled {
		t.Fatalf("expected take-profit leg filled, got %v", takeProfit.Status)
	}
	if stopLoss.Status != domain.StatusCanceled {
		t.Errorf("expected stop-loss leg auto-canceled, got %v", stopLoss.Status)
	}

	hBTC := l.GetBalance(holder, "BTC")
	if !hBTC.Locked.IsZero() {
		t.Errorf("expected stop leg's reserved BTC unlocked, still locked %s", hBTC.Locked)
	}
}

func TestCancelRestingOrderUnlocksResidual(t *testing.T) {
	eng, l, _ := newTestEngine(t)

	account := domain.AccountID(1)
	fund(t, l, account, "USDT", dec("50000"))

	buy := newOrder(account, domain.SideBuy, domain.KindLimit, domain.TIFGTC, dec("50000"), dec("1"))
	eng.Submit(buy)

	out := eng.Cancel(buy.ID)
	if out.Err != nil {
		t.Fatalf("cancel: %v", out.Err)
	}
	if buy.Status != domain.StatusCanceled {
		t.Errorf("expected canceled, got %v", buy.Status)
	}
	bal := l.GetBalance(account, "USDT")
	if !bal.Available.Equal(dec("50000")) || !bal.Locked.IsZero() {
		t.Errorf("expected full balance unlocked, got available=%s locked=%s", bal.Available, bal.Locked)
	}
}
