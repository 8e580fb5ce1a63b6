// Package matching implements the MatchingEngine of spec §4.3: one
// single-writer command loop per market, running the price-time-priority
// algorithm against an internal/orderbook.OrderBook and posting every fill
// through internal/ledger.Ledger's atomic SettleTrade. Architecture kept
// from the source: each market gets its own goroutine locked to an OS
// thread via runtime.LockOSThread, fed by a buffered channel of commands;
// Submit, SubmitOCO and Cancel wait for the loop's reply; the ExchangeEngine registry
// multiplexes markets behind a lock-free, copy-on-write atomic.Value map.
package matching

import (
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/feeschedule"
	"tradecore/internal/ledger"
	"tradecore/internal/orderbook"
)

// MarketConfig is the static, per-market configuration a MatchingEngine is
// built from (spec §6: markets, price_tick, size_tick).
type MarketConfig struct {
	Market     domain.Market
	Base       domain.Asset
	Quote      domain.Asset
	PriceTick  decimal.Decimal
	SizeTick   decimal.Decimal
	MinSize    decimal.Decimal
	MaxSize    decimal.Decimal
	TreeType   orderbook.PriceTreeType
	BucketSpan int64 // only meaningful for orderbook.ShardedType
}

// MatchingEngine owns exactly one market's OrderBook, stop table and OCO
// linkage, and is the only writer of any of them (spec §5). Every mutating
// operation enters through a single command channel so that concurrent
// callers never interleave.
type MatchingEngine struct {
	market domain.Market
	cfg    MarketConfig

	book      *orderbook.OrderBook
	buyStops  *StopTable
	sellStops *StopTable
	ocoLinks  map[domain.LinkID]*ocoPair

	ledger *ledger.Ledger
	bus    *eventbus.Bus
	fees   *feeschedule.Schedule
	idGen  *TradeIDGenerator

	cmdCh  chan Command
	stopCh chan struct{}

	// halted is set once a matching-internal error (spec §4.3 failure
	// semantics) is observed; every subsequent command is rejected without
	// touching book/ledger state again.
	halted  bool
	haltErr error

	// stopDepth bounds a single trade's cascade of stop activations, guarding
	// against the degenerate case ErrStopTriggerLoop names. In practice it
	// never approaches this bound: each cascade step permanently removes one
	// armed order, so it terminates on its own.
	stopDepth int
}

const maxStopCascade = 100000

// NewMatchingEngine builds an engine for cfg.Market. Call Start to begin
// processing commands.
func NewMatchingEngine(cfg MarketConfig, l *ledger.Ledger, bus *eventbus.Bus, fees *feeschedule.Schedule) *MatchingEngine {
	bucketSpan := cfg.BucketSpan
	if bucketSpan <= 0 {
		bucketSpan = 4096
	}
	return &MatchingEngine{
		market: cfg.Market,
		cfg:    cfg,
		book: orderbook.New(cfg.Market, orderbook.Config{
			TreeType:   cfg.TreeType,
			TickSize:   cfg.PriceTick,
			BucketSpan: bucketSpan,
		}),
		buyStops:  NewStopTable(true, cfg.PriceTick),
		sellStops: NewStopTable(false, cfg.PriceTick),
		ocoLinks:  make(map[domain.LinkID]*ocoPair),
		ledger:    l,
		bus:       bus,
		fees:      fees,
		idGen:     NewTradeIDGenerator(),
		cmdCh:     make(chan Command, 4096),
		stopCh:    make(chan struct{}),
	}
}

// Start runs the command loop in a dedicated, OS-thread-locked goroutine.
func (me *MatchingEngine) Start() {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		for {
			select {
			case <-me.stopCh:
				return
			case cmd := <-me.cmdCh:
				me.process(cmd)
			}
		}
	}()
}

// Stop signals the command loop to exit after its current command.
func (me *MatchingEngine) Stop() {
	close(me.stopCh)
}

// OrderBook exposes the read-only book for market-data snapshots. Only the
// engine's own goroutine mutates it, so concurrent reads of Snapshot/BestBid
// /BestAsk from other goroutines race with it. No engine command returns a
// consistent snapshot of the book.
func (me *MatchingEngine) OrderBook() *orderbook.OrderBook { return me.book }

// Config returns the market configuration this engine was built from, so
// callers like internal/account can validate and size-lock orders against
// the same tick/size rules the engine itself uses.
func (me *MatchingEngine) Config() MarketConfig { return me.cfg }

// Submit enqueues a fresh limit/market/stop/stop-limit order and blocks
// until the engine has processed it.
func (me *MatchingEngine) Submit(o *domain.Order) Outcome {
	return me.do(Command{Kind: CmdSubmit, Order: o})
}

// SubmitOCO enqueues an OCO pair atomically: if legA fills at all (even
// partially) on admission, legB is never admitted; otherwise both are
// admitted and linked so that a later fill on either cancels the other.
func (me *MatchingEngine) SubmitOCO(legA, legB *domain.Order) Outcome {
	return me.do(Command{Kind: CmdSubmitOCO, Order: legA, OCOLeg: legB})
}

// Cancel requests cancellation of orderID, wherever it currently rests.
func (me *MatchingEngine) Cancel(orderID domain.OrderID) Outcome {
	return me.do(Command{Kind: CmdCancel, OrderID: orderID})
}

func (me *MatchingEngine) do(cmd Command) Outcome {
	cmd.reply = make(chan Outcome, 1)
	me.cmdCh <- cmd
	return <-cmd.reply
}

func (me *MatchingEngine) process(cmd Command) {
	if me.halted {
		cmd.reply <- Outcome{Order: cmd.Order, Err: me.haltErr}
		return
	}
	switch cmd.Kind {
	case CmdSubmit:
		cmd.reply <- me.submit(cmd.Order)
	case CmdSubmitOCO:
		cmd.reply <- me.submitOCO(cmd.Order, cmd.OCOLeg)
	case CmdCancel:
		cmd.reply <- me.cancel(cmd.OrderID)
	}
}

// submit is the admission path shared by a fresh order and a reactivated
// stop order (spec §4.3).
func (me *MatchingEngine) submit(o *domain.Order) Outcome {
	o.Status = domain.StatusOpen

	if o.IsStop() {
		if o.Side == domain.SideBuy {
			me.buyStops.Arm(o)
		} else {
			me.sellStops.Arm(o)
		}
		me.publish(domain.TopicOrderAccepted, domain.OrderAcceptedPayload{OrderID: o.ID})
		return Outcome{Order: o}
	}

	if o.TIF == domain.TIFFOK && !me.fokFillable(o) {
		o.Reject()
		me.publish(domain.TopicOrderRejected, domain.OrderRejectedPayload{OrderID: o.ID, Reason: domain.ErrFOKUnfillable})
		return Outcome{Order: o, Err: domain.NewError(domain.ErrFOKUnfillable, "order cannot be fully filled immediately", "order_id", o.ID)}
	}

	var trades []*domain.Trade
	if o.Side == domain.SideBuy {
		trades = me.matchBuy(o)
	} else {
		trades = me.matchSell(o)
	}
	if me.halted {
		return Outcome{Order: o, Trades: trades, Err: me.haltErr}
	}

	rested := false
	if !o.IsFilled() {
		if o.Kind == domain.KindLimit && o.TIF == domain.TIFGTC {
			me.book.Insert(o)
			rested = true
		} else {
			o.Cancel()
			me.unlockResidual(o)
			me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: o.ID, Reason: "residual"})
		}
	} else if o.Side == domain.SideBuy && o.Kind == domain.KindMarket {
		me.unlockResidual(o)
	}

	if o.Filled.IsPositive() || !rested {
		me.resolveOCO(o)
	}
	return Outcome{Order: o, Trades: trades}
}

// submitOCO admits legA first; legB is only admitted if legA took no fill at
// all, per spec §4.3's "even partially" rule.
func (me *MatchingEngine) submitOCO(legA, legB *domain.Order) Outcome {
	outA := me.submit(legA)
	if me.halted {
		return outA
	}

	if legA.Filled.IsPositive() {
		legB.Reject()
		me.publish(domain.TopicOrderRejected, domain.OrderRejectedPayload{OrderID: legB.ID, Reason: domain.ErrInvalidOrder})
		return Outcome{Order: legA, OtherLeg: legB, Trades: outA.Trades, Err: outA.Err}
	}

	linkID := legA.Link.LinkID
	me.ocoLinks[linkID] = &ocoPair{legA: legA.ID, legB: legB.ID}

	outB := me.submit(legB)
	return Outcome{Order: legA, OtherLeg: legB, Trades: append(outA.Trades, outB.Trades...), Err: outB.Err}
}

func (me *MatchingEngine) cancel(orderID domain.OrderID) Outcome {
	if o := me.book.Get(orderID); o != nil {
		me.book.Remove(orderID)
		o.Cancel()
		me.unlockResidual(o)
		me.resolveOCO(o)
		me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: orderID, Reason: "requested"})
		return Outcome{Order: o}
	}
	if o := me.buyStops.Find(orderID); o != nil {
		me.buyStops.Disarm(o)
		o.Cancel()
		me.unlockResidual(o)
		me.resolveOCO(o)
		me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: orderID, Reason: "requested"})
		return Outcome{Order: o}
	}
	if o := me.sellStops.Find(orderID); o != nil {
		me.sellStops.Disarm(o)
		o.Cancel()
		me.unlockResidual(o)
		me.resolveOCO(o)
		me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: orderID, Reason: "requested"})
		return Outcome{Order: o}
	}
	return Outcome{Err: domain.NewError(domain.ErrInvalidOrder, "order not found or already terminal", "order_id", orderID)}
}

// matchBuy walks the ask side while taker is a buy order.
func (me *MatchingEngine) matchBuy(taker *domain.Order) []*domain.Trade {
	var trades []*domain.Trade
	for !taker.IsFilled() && !me.halted {
		level := me.book.BestOppositeLevel(domain.SideBuy)
		if level == nil || level.Orders.Len() == 0 {
			break
		}
		if taker.Kind == domain.KindLimit && taker.Price.LessThan(level.Price) {
			break
		}

		maker := firstOrder(level)
		qty := decimal.Min(taker.Remaining(), maker.Remaining())
		if taker.Kind == domain.KindMarket {
			budget := taker.MaxQuote.Sub(taker.QuoteSpent)
			maxByBudget := budget.Div(level.Price)
			if maxByBudget.LessThan(qty) {
				qty = maxByBudget
			}
			if !qty.IsPositive() {
				break
			}
		}

		trade := me.execute(taker, maker, level.Price, qty)
		if trade == nil {
			break
		}
		trades = append(trades, trade)
	}
	return trades
}

// matchSell walks the bid side while taker is a sell order.
func (me *MatchingEngine) matchSell(taker *domain.Order) []*domain.Trade {
	var trades []*domain.Trade
	for !taker.IsFilled() && !me.halted {
		level := me.book.BestOppositeLevel(domain.SideSell)
		if level == nil || level.Orders.Len() == 0 {
			break
		}
		if taker.Kind == domain.KindLimit && taker.Price.GreaterThan(level.Price) {
			break
		}

		maker := firstOrder(level)
		qty := decimal.Min(taker.Remaining(), maker.Remaining())

		trade := me.execute(taker, maker, level.Price, qty)
		if trade == nil {
			break
		}
		trades = append(trades, trade)
	}
	return trades
}

func firstOrder(level *orderbook.PriceLevel_) *domain.Order {
	return level.Orders.Front().Value.(*domain.Order)
}

// execute settles one match at price (always the maker's price, spec §3)
// between taker and maker for qty, then removes/adjusts the maker in the
// book, resolves any OCO links either side belongs to, and scans the stop
// tables against the new last trade price.
func (me *MatchingEngine) execute(taker, maker *domain.Order, price, qty decimal.Decimal) *domain.Trade {
	taker.Fill(qty)
	maker.Fill(qty)
	if taker.Side == domain.SideBuy && taker.Kind == domain.KindMarket {
		taker.QuoteSpent = taker.QuoteSpent.Add(price.Mul(qty))
	}

	var buyer, seller *domain.Order
	var buyerRole, sellerRole feeschedule.Role
	if taker.Side == domain.SideBuy {
		buyer, seller = taker, maker
		buyerRole, sellerRole = feeschedule.RoleTaker, feeschedule.RoleMaker
	} else {
		buyer, seller = maker, taker
		buyerRole, sellerRole = feeschedule.RoleMaker, feeschedule.RoleTaker
	}

	quoteAmount := price.Mul(qty)
	feeBuyer := me.fees.Compute(buyerRole, me.market, qty)
	feeSeller := me.fees.Compute(sellerRole, me.market, quoteAmount)

	if err := me.ledger.SettleTrade(buyer.AccountID, seller.AccountID, me.cfg.Base, me.cfg.Quote, price, qty, feeBuyer, feeSeller); err != nil {
		me.halt(err)
		return nil
	}

	feeMaker, feeTaker := feeSeller, feeBuyer
	if maker == buyer {
		feeMaker, feeTaker = feeBuyer, feeSeller
	}
	trade := domain.NewTrade(me.market, maker, taker, qty, feeMaker, feeTaker, time.Now())
	trade.ID = me.idGen.Next()
	me.publish(domain.TopicTradeExecuted, domain.TradeExecutedPayload{Trade: trade})

	me.book.AdjustFilled(maker, qty)
	if maker.IsFilled() {
		me.book.Remove(maker.ID)
	}
	me.resolveOCO(maker)
	me.resolveOCO(taker)

	me.scanStops(price)
	return trade
}

// scanStops activates every stop order lastPrice has triggered, recursively
// re-entering the matching loop for each (spec §4.3). stopDepth guards
// against a pathological cascade; it is never expected to trip since every
// step permanently consumes one armed order.
func (me *MatchingEngine) scanStops(lastPrice decimal.Decimal) {
	if me.halted {
		return
	}
	triggered := append(me.buyStops.PopTriggered(lastPrice), me.sellStops.PopTriggered(lastPrice)...)
	for _, o := range triggered {
		me.stopDepth++
		if me.stopDepth > maxStopCascade {
			me.halt(domain.NewError(domain.ErrStopTriggerLoop, "stop activation cascade exceeded bound", "market", me.market))
			me.stopDepth--
			return
		}
		me.activateStop(o)
		me.stopDepth--
		if me.halted {
			return
		}
	}
}

func (me *MatchingEngine) activateStop(o *domain.Order) {
	if o.Link.Linked {
		if pair, ok := me.ocoLinks[o.Link.LinkID]; ok && pair.resolved {
			o.Cancel()
			me.unlockResidual(o)
			me.publish(domain.TopicOrderCanceled, domain.OrderCanceledPayload{OrderID: o.ID, Reason: "oco"})
			return
		}
	}
	o.Activate()
	me.submit(o)
}

// unlockResidual returns to available whatever is still locked against o's
// remaining, un-executed quantity — used for IOC/market residue
// cancellation, the unspent budget of a filled market buy, explicit Cancel,
// and automatic OCO-sibling cancellation.
func (me *MatchingEngine) unlockResidual(o *domain.Order) {
	asset, qty := me.lockedLeg(o)
	if !qty.IsPositive() {
		return
	}
	if err := me.ledger.Unlock(o.AccountID, asset, qty); err != nil {
		me.halt(err)
	}
}

func (me *MatchingEngine) lockedLeg(o *domain.Order) (domain.Asset, decimal.Decimal) {
	return LockAmount(me.cfg, o)
}

// LockAmount returns the (asset, quantity) an order of o's shape reserves
// against its remaining, un-executed size under cfg: the base asset for any
// sell, the quote asset sized by price for a buy limit/stop-limit, and the
// quote asset sized by the remaining max_quote budget for a buy market/stop
// (spec §4.4). internal/account locks this exact amount at admission; the
// engine itself uses the same function to compute what to return on IOC/
// market residue cancellation, explicit Cancel, and OCO-sibling cancellation.
func LockAmount(cfg MarketConfig, o *domain.Order) (domain.Asset, decimal.Decimal) {
	if o.Side == domain.SideSell {
		return cfg.Base, o.Remaining()
	}
	switch o.Kind {
	case domain.KindMarket, domain.KindStop:
		return cfg.Quote, o.MaxQuote.Sub(o.QuoteSpent)
	default: // Limit, StopLimit
		return cfg.Quote, o.Remaining().Mul(o.Price)
	}
}

// fokFillable reports whether o (TIF fill-or-kill) can be completely filled
// against the book's current state, without mutating anything (spec §4.3:
// FOK must pre-scan available depth before committing any fill).
func (me *MatchingEngine) fokFillable(o *domain.Order) bool {
	bids, asks := me.book.Snapshot(math.MaxInt32)
	levels := asks
	if o.Side == domain.SideSell {
		levels = bids
	}

	remaining := o.Amount
	budget := o.MaxQuote
	isMarketBuy := o.Side == domain.SideBuy && o.Kind == domain.KindMarket

	for _, lvl := range levels {
		if o.Kind == domain.KindLimit {
			if o.Side == domain.SideBuy && lvl.Price.GreaterThan(o.Price) {
				break
			}
			if o.Side == domain.SideSell && lvl.Price.LessThan(o.Price) {
				break
			}
		}

		qty := lvl.Quantity
		if isMarketBuy {
			maxByBudget := budget.Div(lvl.Price)
			if maxByBudget.LessThan(qty) {
				qty = maxByBudget
			}
		}
		if qty.GreaterThan(remaining) {
			qty = remaining
		}
		remaining = remaining.Sub(qty)
		if isMarketBuy {
			budget = budget.Sub(qty.Mul(lvl.Price))
		}
		if !remaining.IsPositive() {
			return true
		}
	}
	return !remaining.IsPositive()
}

func (me *MatchingEngine) halt(err error) {
	if me.halted {
		return
	}
	me.halted = true
	me.haltErr = err
	kind, _ := domain.KindOf(err)
	log.Error().Str("market", string(me.market)).Str("kind", string(kind)).Err(err).Msg("matching engine halted")
	me.publish(domain.TopicSystemAlert, domain.SystemAlertPayload{Kind: kind, Message: err.Error()})
}

func (me *MatchingEngine) publish(topic domain.Topic, payload any) {
	if me.bus == nil {
		return
	}
	me.bus.Publish(domain.Event{Topic: topic, Market: me.market, Payload: payload, Timestamp: time.Now()})
}
