// Package wallet implements the deposit half of spec §4.5: crediting a
// Transaction once the external blockchain watcher's reported confirmations
// reach the configured per-asset threshold, keyed on tx_hash so re-delivery
// of the same deposit is a no-op.
package wallet

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/ledger"
	"tradecore/internal/repository"
)

// Service credits confirmed deposits. It owns no state beyond its
// dependencies; every Transaction it produces is persisted through repo.
type Service struct {
	ledger     *ledger.Ledger
	repo       repository.Repository
	bus        *eventbus.Bus
	thresholds map[domain.Asset]int // minimum confirmations before crediting
}

// defaultThreshold applies to any asset absent from thresholds.
const defaultThreshold = 1

func NewService(l *ledger.Ledger, repo repository.Repository, bus *eventbus.Bus, thresholds map[domain.Asset]int) *Service {
	return &Service{ledger: l, repo: repo, bus: bus, thresholds: thresholds}
}

func (s *Service) threshold(asset domain.Asset) int {
	if n, ok := s.thresholds[asset]; ok {
		return n
	}
	return defaultThreshold
}

// ObserveDeposit records (or updates) the Transaction for a watcher-reported
// deposit and credits it once confirmations reach the asset's threshold.
// Re-delivery of an already-confirmed tx_hash is a no-op (spec §4.5).
func (s *Service) ObserveDeposit(ctx context.Context, userID domain.UserID, accountID domain.AccountID, asset domain.Asset, amount decimal.Decimal, txHash string, confirmations int) (*domain.Transaction, error) {
	existing, err := s.findByTxHash(ctx, txHash)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}

	if existing != nil {
		if existing.Status == domain.TxConfirmed {
			return existing, nil
		}
		existing.Confirmations = confirmations
		existing.UpdatedAt = time.Now()
		return existing, s.maybeConfirm(ctx, existing)
	}

	now := time.Now()
	tx := &domain.Transaction{
		UserID:        userID,
		AccountID:     accountID,
		Asset:         asset,
		Type:          domain.TxDeposit,
		Status:        domain.TxPending,
		Amount:        amount,
		TxHash:        txHash,
		Confirmations: confirmations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	id, err := s.repo.NextID(ctx, repository.KindTransaction)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	tx.ID = domain.TransactionID(id)

	if _, err := s.repo.Transactions().Insert(ctx, tx); err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}

	return tx, s.maybeConfirm(ctx, tx)
}

// maybeConfirm credits and persists tx as confirmed once it has reached its
// asset's confirmation threshold, otherwise just persists its current state.
func (s *Service) maybeConfirm(ctx context.Context, tx *domain.Transaction) error {
	tx.UpdatedAt = time.Now()
	if tx.Confirmations < s.threshold(tx.Asset) {
		return s.persist(ctx, tx)
	}

	if err := s.ledger.Credit(tx.AccountID, tx.Asset, tx.Amount); err != nil {
		tx.LastError = err.Error()
		s.persist(ctx, tx)
		log.Error().Int64("transaction_id", int64(tx.ID)).Str("tx_hash", tx.TxHash).Err(err).Msg("deposit credit failed")
		return err
	}

	tx.Status = domain.TxConfirmed
	tx.LastError = ""
	if err := s.persist(ctx, tx); err != nil {
		return err
	}

	log.Info().Int64("transaction_id", int64(tx.ID)).Str("asset", string(tx.Asset)).Str("amount", tx.Amount.String()).Str("tx_hash", tx.TxHash).Msg("deposit confirmed")
	s.publish(tx)
	return nil
}

func (s *Service) findByTxHash(ctx context.Context, txHash string) (*domain.Transaction, error) {
	matches, err := s.repo.Transactions().Query(ctx, func(t *domain.Transaction) bool {
		return t.TxHash == txHash && t.Type == domain.TxDeposit
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (s *Service) persist(ctx context.Context, tx *domain.Transaction) error {
	if err := s.repo.Transactions().Update(ctx, tx.ID, tx); err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	return nil
}

func (s *Service) publish(tx *domain.Transaction) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.Event{
		Topic: domain.TopicDepositConfirmed,
		Payload: domain.DepositConfirmedPayload{
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
			Asset:         tx.Asset,
			Amount:        tx.Amount,
		},
		Timestamp: time.Now(),
	})
}
