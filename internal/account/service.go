// Package account implements the pre-admission gate in front of the matching
// engine: validate an order against its market's configured bounds, lock the
// funds it commits, issue its ID, persist it, and only then hand it to the
// engine. The engine itself trusts every order it receives (spec §4.4
// "admission is the service's responsibility, not the engine's"); this is the
// one place that responsibility is discharged.
package account

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/ledger"
	"tradecore/internal/matching"
	"tradecore/internal/repository"
)

// Service validates, locks, and routes orders to the per-market matching
// engines, and reverses the lock when an order never takes effect.
type Service struct {
	exchange *matching.ExchangeEngine
	ledger   *ledger.Ledger
	repo     repository.Repository
	bus      *eventbus.Bus
}

func NewService(exchange *matching.ExchangeEngine, l *ledger.Ledger, repo repository.Repository, bus *eventbus.Bus) *Service {
	return &Service{exchange: exchange, ledger: l, repo: repo, bus: bus}
}

// SubmitOrder validates o, locks its committed funds, assigns it an ID,
// persists it, and submits it to its market's engine. On any admission
// failure (including the engine rejecting it, e.g. FOK with no fill
// available) the lock taken here is reversed before returning.
func (s *Service) SubmitOrder(ctx context.Context, o *domain.Order) (matching.Outcome, error) {
	eng, cfg, err := s.admit(ctx, o)
	if err != nil {
		return matching.Outcome{}, err
	}

	out := eng.Submit(o)
	return s.finish(ctx, cfg, out, o)
}

// SubmitOCOOrder admits both legs of a one-cancels-other pair under the same
// market and submits them together, so the engine can reject the second leg
// atomically if the first fills immediately on admission (spec §4.3 OCO
// atomicity note).
func (s *Service) SubmitOCOOrder(ctx context.Context, legA, legB *domain.Order) (matching.Outcome, error) {
	if legA.Market != legB.Market {
		return matching.Outcome{}, domain.NewError(domain.ErrInvalidOrder, "OCO legs must share a market")
	}

	eng, cfgA, err := s.admit(ctx, legA)
	if err != nil {
		return matching.Outcome{}, err
	}
	_, cfgB, err := s.admit(ctx, legB)
	if err != nil {
		s.unlock(legA, cfgA)
		return matching.Outcome{}, err
	}

	out := eng.SubmitOCO(legA, legB)

	var persistErr error
	if legA.Status == domain.StatusRejected {
		s.unlock(legA, cfgA)
	} else if err := s.persist(ctx, legA); err != nil {
		persistErr = err
	}
	if legB.Status == domain.StatusRejected {
		s.unlock(legB, cfgB)
	} else if err := s.persist(ctx, legB); err != nil && persistErr == nil {
		persistErr = err
	}
	for _, tr := range out.Trades {
		s.persistTrade(ctx, tr)
	}
	if persistErr != nil {
		return out, persistErr
	}
	return out, out.Err
}

// CancelOrder forwards a cancellation to the order's market engine and
// persists the resulting status. The caller is not required to know which
// market the order belongs to; it is looked up from the persisted order.
func (s *Service) CancelOrder(ctx context.Context, orderID domain.OrderID) error {
	o, ok, err := s.repo.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	if !ok {
		return domain.NewError(domain.ErrInvalidOrder, "order not found", "order_id", orderID)
	}

	eng, ok := s.exchange.Engine(o.Market)
	if !ok {
		return domain.NewError(domain.ErrMarketUnknown, string(o.Market))
	}

	out := eng.Cancel(orderID)
	if out.Err != nil {
		return out.Err
	}
	return s.persist(ctx, out.Order)
}

// admit runs every pre-engine check and, if they all pass, locks o's
// committed funds and assigns it a persisted ID. It returns the market's
// engine and config so the caller can submit and, on later rejection, reverse
// the lock with the same config.
func (s *Service) admit(ctx context.Context, o *domain.Order) (*matching.MatchingEngine, matching.MarketConfig, error) {
	eng, ok := s.exchange.Engine(o.Market)
	if !ok {
		return nil, matching.MarketConfig{}, domain.NewError(domain.ErrMarketUnknown, string(o.Market))
	}
	cfg := eng.Config()

	acct, ok, err := s.repo.Accounts().Get(ctx, o.AccountID)
	if err != nil {
		return nil, cfg, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	if !ok {
		return nil, cfg, domain.NewError(domain.ErrAccountNotFound, "", "account_id", o.AccountID)
	}
	if !acct.IsActive() {
		return nil, cfg, domain.NewError(domain.ErrAccountNotActive, string(acct.Status), "account_id", o.AccountID)
	}

	if err := validateOrder(cfg, o); err != nil {
		log.Warn().Str("market", string(o.Market)).Str("account_id", fmt.Sprint(o.AccountID)).Err(err).Msg("order rejected at admission")
		return nil, cfg, err
	}

	asset, qty := matching.LockAmount(cfg, o)
	if err := s.ledger.Lock(o.AccountID, asset, qty); err != nil {
		return nil, cfg, err
	}

	id, err := s.repo.NextID(ctx, repository.KindOrder)
	if err != nil {
		s.ledger.Unlock(o.AccountID, asset, qty)
		return nil, cfg, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	o.ID = domain.OrderID(id)
	o.Status = domain.StatusPending

	if _, err := s.repo.Orders().Insert(ctx, o); err != nil {
		s.ledger.Unlock(o.AccountID, asset, qty)
		return nil, cfg, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}

	s.publish(o, cfg)
	return eng, cfg, nil
}

// finish reconciles a completed Submit: persisting the order's final state,
// persisting any trades, and reversing the admission lock if the engine
// rejected the order outright (e.g. FOK unfillable, spec §4.4's one seam the
// engine leaves to its caller).
func (s *Service) finish(ctx context.Context, cfg matching.MarketConfig, out matching.Outcome, o *domain.Order) (matching.Outcome, error) {
	if o.Status == domain.StatusRejected || o.Status == domain.StatusPending {
		s.unlock(o, cfg)
		log.Warn().Str("market", string(o.Market)).Int64("order_id", int64(o.ID)).Err(out.Err).Msg("order rejected by engine, admission lock reversed")
	}
	if err := s.persist(ctx, o); err != nil {
		return out, err
	}
	for _, tr := range out.Trades {
		s.persistTrade(ctx, tr)
	}
	return out, out.Err
}

func (s *Service) unlock(o *domain.Order, cfg matching.MarketConfig) {
	asset, qty := matching.LockAmount(cfg, o)
	s.ledger.Unlock(o.AccountID, asset, qty)
}

func (s *Service) persist(ctx context.Context, o *domain.Order) error {
	if err := s.repo.Orders().Update(ctx, o.ID, o); err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	return nil
}

func (s *Service) persistTrade(ctx context.Context, tr *domain.Trade) {
	id, err := s.repo.NextID(ctx, repository.KindTrade)
	if err != nil {
		return
	}
	stored := *tr
	stored.ID = domain.TradeID(id)
	s.repo.Trades().Insert(ctx, &stored)
}

func (s *Service) publish(o *domain.Order, cfg matching.MarketConfig) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.Event{
		Topic:   domain.TopicOrderSubmitted,
		Market:  o.Market,
		Payload: domain.OrderAcceptedPayload{OrderID: o.ID},
	})
}

// validateOrder enforces spec §4.4's admission bounds: positive price/amount,
// tick alignment, and min/max size, ahead of any ledger effect.
func validateOrder(cfg matching.MarketConfig, o *domain.Order) error {
	if !o.Amount.IsPositive() {
		return domain.NewError(domain.ErrInvalidOrder, "amount must be positive")
	}
	if !cfg.MinSize.IsZero() && o.Amount.LessThan(cfg.MinSize) {
		return domain.NewError(domain.ErrSizeBounds, fmt.Sprintf("amount %s below minimum %s", o.Amount, cfg.MinSize))
	}
	if !cfg.MaxSize.IsZero() && o.Amount.GreaterThan(cfg.MaxSize) {
		return domain.NewError(domain.ErrSizeBounds, fmt.Sprintf("amount %s above maximum %s", o.Amount, cfg.MaxSize))
	}
	if !cfg.SizeTick.IsZero() && !o.Amount.Mod(cfg.SizeTick).IsZero() {
		return domain.NewError(domain.ErrTickViolation, fmt.Sprintf("amount %s not a multiple of size tick %s", o.Amount, cfg.SizeTick))
	}

	switch o.Kind {
	case domain.KindLimit, domain.KindStopLimit:
		if !o.Price.IsPositive() {
			return domain.NewError(domain.ErrInvalidOrder, "price must be positive")
		}
		if !cfg.PriceTick.IsZero() && !o.Price.Mod(cfg.PriceTick).IsZero() {
			return domain.NewError(domain.ErrTickViolation, fmt.Sprintf("price %s not a multiple of price tick %s", o.Price, cfg.PriceTick))
		}
	}

	switch o.Kind {
	case domain.KindStop, domain.KindStopLimit:
		if !o.StopPrice.IsPositive() {
			return domain.NewError(domain.ErrInvalidOrder, "stop_price must be positive")
		}
	}

	if o.Side == domain.SideBuy && (o.Kind == domain.KindMarket || o.Kind == domain.KindStop) {
		if !o.MaxQuote.IsPositive() {
			return domain.NewError(domain.ErrInvalidOrder, "max_quote must be positive for a market/stop buy")
		}
	}

	if o.Kind == domain.KindStopLimit && !cfg.PriceTick.IsZero() && !o.StopPrice.Mod(cfg.PriceTick).IsZero() {
		return domain.NewError(domain.ErrTickViolation, fmt.Sprintf("stop_price %s not a multiple of price tick %s", o.StopPrice, cfg.PriceTick))
	}

	return nil
}
