// Package appctx builds the application context: the single long-lived
// value wiring the ledger, the per-market matching engines, the account,
// wallet and admin services, the event bus, and the repository together
// from a loaded config.Config, in place of package-level singletons (spec
// §9's explicit design note). cmd/tradecored constructs exactly one of
// these at startup and tears it down on shutdown.
package appctx

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradecore/internal/account"
	"tradecore/internal/admin"
	"tradecore/internal/config"
	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/feeschedule"
	"tradecore/internal/ledger"
	"tradecore/internal/matching"
	"tradecore/internal/orderbook"
	"tradecore/internal/repository"
	"tradecore/internal/repository/memstore"
	"tradecore/internal/wallet"
)

// Context holds every shared component a running tradecored process needs.
type Context struct {
	Ledger   *ledger.Ledger
	Exchange *matching.ExchangeEngine
	Bus      *eventbus.Bus
	Repo     repository.Repository

	Accounts    *account.Service
	Wallet      *wallet.Service
	Admin       *admin.Service
	FeeSchedule *feeschedule.Schedule
}

// New builds a Context from cfg. cfg must already have passed Validate.
// repo is the persistence backend to use; pass memstore.New() for the
// in-memory reference stack (the only backend this module ships).
func New(cfg *config.Config, repo repository.Repository) (*Context, error) {
	if repo == nil {
		repo = memstore.New()
	}

	bus := eventbus.New()
	led := ledger.New(func(acct domain.AccountID, asset domain.Asset, available, locked decimal.Decimal) {
		bus.Publish(domain.Event{
			Topic:     domain.TopicBalanceChanged,
			Payload:   domain.BalanceChangedPayload{AccountID: acct, Asset: asset, Available: available, Locked: locked},
			Timestamp: time.Now(),
		})
	})

	for _, f := range cfg.FeeAccounts {
		led.RegisterFeeAccount(domain.Asset(f.Asset), domain.AccountID(f.AccountID))
		log.Info().Str("asset", f.Asset).Int64("account_id", f.AccountID).Msg("fee account registered")
	}

	fees := buildFeeSchedule(cfg)

	exchange := matching.NewExchangeEngine(led, bus, fees)
	for _, m := range cfg.Markets {
		mcfg, err := marketConfig(m)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", m.Symbol, err)
		}
		exchange.Register(mcfg)
		log.Info().Str("market", m.Symbol).Str("base", m.Base).Str("quote", m.Quote).Msg("market registered")
	}

	thresholds := depositThresholds(cfg)
	networkFees, err := withdrawalNetworkFees(cfg)
	if err != nil {
		return nil, err
	}

	return &Context{
		Ledger:      led,
		Exchange:    exchange,
		Bus:         bus,
		Repo:        repo,
		Accounts:    account.NewService(exchange, led, repo, bus),
		Wallet:      wallet.NewService(led, repo, bus, thresholds),
		Admin:       admin.NewService(led, repo, bus, networkFees),
		FeeSchedule: fees,
	}, nil
}

// Shutdown stops every registered matching engine's command loop.
func (c *Context) Shutdown() {
	c.Exchange.Shutdown()
}

func marketConfig(m config.MarketConfig) (matching.MarketConfig, error) {
	priceTick, err := decimal.NewFromString(m.PriceTick)
	if err != nil {
		return matching.MarketConfig{}, fmt.Errorf("price_tick: %w", err)
	}
	sizeTick, err := decimal.NewFromString(m.SizeTick)
	if err != nil {
		return matching.MarketConfig{}, fmt.Errorf("size_tick: %w", err)
	}
	minSize := decimal.Zero
	if m.MinSize != "" {
		if minSize, err = decimal.NewFromString(m.MinSize); err != nil {
			return matching.MarketConfig{}, fmt.Errorf("min_order_size: %w", err)
		}
	}
	maxSize := decimal.Zero
	if m.MaxSize != "" {
		if maxSize, err = decimal.NewFromString(m.MaxSize); err != nil {
			return matching.MarketConfig{}, fmt.Errorf("max_order_size: %w", err)
		}
	}

	treeType := orderbook.HashMapListType
	if m.Sharded {
		treeType = orderbook.ShardedType
	}

	return matching.MarketConfig{
		Market:     domain.Market(m.Symbol),
		Base:       domain.Asset(m.Base),
		Quote:      domain.Asset(m.Quote),
		PriceTick:  priceTick,
		SizeTick:   sizeTick,
		MinSize:    minSize,
		MaxSize:    maxSize,
		TreeType:   treeType,
		BucketSpan: m.BucketSpan,
	}, nil
}

func buildFeeSchedule(cfg *config.Config) *feeschedule.Schedule {
	rates := make(map[domain.Market]feeschedule.MarketRate, len(cfg.FeeSchedule))
	for _, f := range cfg.FeeSchedule {
		rates[domain.Market(f.Market)] = feeschedule.MarketRate{MakerBps: f.MakerBps, TakerBps: f.TakerBps}
	}
	fallback := feeschedule.MarketRate{MakerBps: cfg.DefaultMakerBps, TakerBps: cfg.DefaultTakerBps}
	return feeschedule.NewSchedule(rates, fallback)
}

func depositThresholds(cfg *config.Config) map[domain.Asset]int {
	out := make(map[domain.Asset]int, len(cfg.DepositConfirmations))
	for _, d := range cfg.DepositConfirmations {
		out[domain.Asset(d.Asset)] = d.Confirmations
	}
	return out
}

func withdrawalNetworkFees(cfg *config.Config) (map[domain.Asset]decimal.Decimal, error) {
	out := make(map[domain.Asset]decimal.Decimal, len(cfg.WithdrawalNetworkFees))
	for _, n := range cfg.WithdrawalNetworkFees {
		fee, err := decimal.NewFromString(n.Fee)
		if err != nil {
			return nil, fmt.Errorf("withdrawal_network_fee[%s]: %w", n.Asset, err)
		}
		out[domain.Asset(n.Asset)] = fee
	}
	return out, nil
}
