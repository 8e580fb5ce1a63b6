// Package admin implements the withdrawal two-eyes approval state machine of
// spec §4.5: pending -> approved_pending_second -> approved -> confirmed, with
// rejection possible at any pre-broadcast stage and the "same admin cannot
// satisfy both approval slots" invariant enforced by comparing approver
// identities.
package admin

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/ledger"
	"tradecore/internal/repository"
)

// Service owns the withdrawal lifecycle and the AuditLog append path. The
// per-transaction approval history lives in-process (ApprovalRecord has no
// single-field ID and spec §6 does not name it as a repository-backed
// entity); it exists only to enforce the same-admin check and is rebuilt from
// nothing on restart, same as the rest of the in-memory reference stack.
type Service struct {
	ledger      *ledger.Ledger
	repo        repository.Repository
	bus         *eventbus.Bus
	networkFees map[domain.Asset]decimal.Decimal

	mu        sync.Mutex
	approvals map[domain.TransactionID][]domain.ApprovalRecord
}

func NewService(l *ledger.Ledger, repo repository.Repository, bus *eventbus.Bus, networkFees map[domain.Asset]decimal.Decimal) *Service {
	return &Service{
		ledger:      l,
		repo:        repo,
		bus:         bus,
		networkFees: networkFees,
		approvals:   make(map[domain.TransactionID][]domain.ApprovalRecord),
	}
}

func (s *Service) networkFee(asset domain.Asset) decimal.Decimal {
	if fee, ok := s.networkFees[asset]; ok {
		return fee
	}
	return decimal.Zero
}

// RequestWithdrawal locks amount + the asset's configured network fee and
// creates the withdrawal Transaction in pending (spec §4.5 step 1).
func (s *Service) RequestWithdrawal(ctx context.Context, userID domain.UserID, accountID domain.AccountID, asset domain.Asset, amount decimal.Decimal, address string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.NewError(domain.ErrInvalidOrder, "withdrawal amount must be positive")
	}
	fee := s.networkFee(asset)
	total := amount.Add(fee)

	if err := s.ledger.Lock(accountID, asset, total); err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &domain.Transaction{
		UserID:     userID,
		AccountID:  accountID,
		Asset:      asset,
		Type:       domain.TxWithdrawal,
		Status:     domain.TxPending,
		Amount:     amount,
		NetworkFee: fee,
		Address:    address,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	id, err := s.repo.NextID(ctx, repository.KindTransaction)
	if err != nil {
		s.ledger.Unlock(accountID, asset, total)
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	tx.ID = domain.TransactionID(id)

	if _, err := s.repo.Transactions().Insert(ctx, tx); err != nil {
		s.ledger.Unlock(accountID, asset, total)
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}

	s.audit(ctx, "system", "withdrawal_requested", tx.ID)
	log.Info().Int64("transaction_id", int64(tx.ID)).Str("asset", string(asset)).Str("amount", amount.String()).Msg("withdrawal requested")
	return tx, nil
}

// ApproveWithdrawal records adminID's approval. The first approval moves the
// transaction to approved_pending_second; a second approval from a different
// admin moves it to approved and enqueues the broadcast (spec §4.5 steps 2-3).
// A second approval attempt from the same admin is rejected with
// admin_same_approver and leaves the transaction's state untouched.
func (s *Service) ApproveWithdrawal(ctx context.Context, txID domain.TransactionID, adminID string) (*domain.Transaction, error) {
	tx, ok, err := s.repo.Transactions().Get(ctx, txID)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "transaction not found", "transaction_id", txID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch tx.Status {
	case domain.TxPending:
		// first approval
	case domain.TxApprovedPendingSecond:
		for _, rec := range s.approvals[txID] {
			if rec.Approved && rec.AdminID == adminID {
				return tx, domain.NewError(domain.ErrAdminSameApprover, "", "transaction_id", txID, "admin_id", adminID)
			}
		}
	default:
		return tx, domain.NewError(domain.ErrInvalidTransition, "withdrawal not awaiting approval", "status", tx.Status)
	}

	rec := domain.ApprovalRecord{TransactionID: txID, AdminID: adminID, Approved: true, CreatedAt: time.Now()}
	s.approvals[txID] = append(s.approvals[txID], rec)

	if tx.Status == domain.TxPending {
		tx.Status = domain.TxApprovedPendingSecond
	} else {
		tx.Status = domain.TxApproved
		tx.BroadcastRef = uuid.New().String()
	}
	tx.UpdatedAt = time.Now()

	if err := s.persist(ctx, tx); err != nil {
		return tx, err
	}
	s.audit(ctx, adminID, "withdrawal_approved", tx.ID)

	log.Info().Int64("transaction_id", int64(tx.ID)).Str("admin_id", adminID).Str("status", string(tx.Status)).Msg("withdrawal approved")
	if tx.Status == domain.TxApproved {
		s.publish(domain.TopicWithdrawalApproved, domain.WithdrawalApprovedPayload{TransactionID: tx.ID})
	}
	return tx, nil
}

// RejectWithdrawal unlocks amount + fee and moves the transaction to rejected
// from any pre-broadcast state (spec §4.5 step 5).
func (s *Service) RejectWithdrawal(ctx context.Context, txID domain.TransactionID, adminID, reason string) (*domain.Transaction, error) {
	tx, ok, err := s.repo.Transactions().Get(ctx, txID)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "transaction not found", "transaction_id", txID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch tx.Status {
	case domain.TxPending, domain.TxApprovedPendingSecond, domain.TxApproved:
	default:
		return tx, domain.NewError(domain.ErrInvalidTransition, "withdrawal already broadcast or resolved", "status", tx.Status)
	}

	total := tx.Amount.Add(tx.NetworkFee)
	if err := s.ledger.Unlock(tx.AccountID, tx.Asset, total); err != nil {
		return tx, err
	}

	tx.Status = domain.TxRejected
	tx.LastError = reason
	tx.UpdatedAt = time.Now()
	if err := s.persist(ctx, tx); err != nil {
		return tx, err
	}
	s.audit(ctx, adminID, "withdrawal_rejected", tx.ID)
	log.Warn().Int64("transaction_id", int64(tx.ID)).Str("admin_id", adminID).Str("reason", reason).Msg("withdrawal rejected")
	return tx, nil
}

// ConfirmBroadcast debits the locked amount + fee once the broadcaster
// reports success, terminating the withdrawal (spec §4.5 step 4). A
// broadcast failure is an external-integration error: the caller should
// leave tx in approved with a last_error and retry, not call this.
func (s *Service) ConfirmBroadcast(ctx context.Context, txID domain.TransactionID) (*domain.Transaction, error) {
	tx, ok, err := s.repo.Transactions().Get(ctx, txID)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "transaction not found", "transaction_id", txID)
	}
	if tx.Status != domain.TxApproved {
		return tx, domain.NewError(domain.ErrInvalidTransition, "withdrawal not approved", "status", tx.Status)
	}

	total := tx.Amount.Add(tx.NetworkFee)
	if err := s.ledger.DebitLocked(tx.AccountID, tx.Asset, total); err != nil {
		return tx, err
	}

	tx.Status = domain.TxConfirmed
	tx.UpdatedAt = time.Now()
	if err := s.persist(ctx, tx); err != nil {
		return tx, err
	}
	s.publish(domain.TopicWithdrawalConfirmed, domain.WithdrawalConfirmedPayload{TransactionID: tx.ID})
	log.Info().Int64("transaction_id", int64(tx.ID)).Msg("withdrawal broadcast confirmed")
	return tx, nil
}

// ReportBroadcastFailure records a retryable broadcast failure without
// changing tx's state (spec §7: external-integration errors "keep the
// transaction in its current state with a last_error field").
func (s *Service) ReportBroadcastFailure(ctx context.Context, txID domain.TransactionID, reason string) error {
	tx, ok, err := s.repo.Transactions().Get(ctx, txID)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	if !ok {
		return domain.NewError(domain.ErrNotFound, "transaction not found", "transaction_id", txID)
	}
	tx.LastError = reason
	tx.UpdatedAt = time.Now()
	log.Error().Int64("transaction_id", int64(tx.ID)).Str("reason", reason).Msg("withdrawal broadcast failed")
	return s.persist(ctx, tx)
}

// ListPendingWithdrawals returns every withdrawal not yet in a terminal state
// (spec §6 admin surface: "list pending withdrawals").
func (s *Service) ListPendingWithdrawals(ctx context.Context) ([]*domain.Transaction, error) {
	return s.repo.Transactions().Query(ctx, func(t *domain.Transaction) bool {
		if t.Type != domain.TxWithdrawal {
			return false
		}
		switch t.Status {
		case domain.TxPending, domain.TxApprovedPendingSecond, domain.TxApproved:
			return true
		default:
			return false
		}
	})
}

// ListAuditEntries returns every AuditLog entry matching pred (spec §6 admin
// surface: "list audit entries").
func (s *Service) ListAuditEntries(ctx context.Context, pred func(*domain.AuditLog) bool) ([]*domain.AuditLog, error) {
	return s.repo.AuditLogs().Query(ctx, pred)
}

func (s *Service) persist(ctx context.Context, tx *domain.Transaction) error {
	if err := s.repo.Transactions().Update(ctx, tx.ID, tx); err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, err.Error())
	}
	return nil
}

func (s *Service) audit(ctx context.Context, actor, action string, txID domain.TransactionID) {
	entry := &domain.AuditLog{
		Actor:     actor,
		Action:    action,
		EntityRef: strconv.FormatInt(int64(txID), 10),
		CreatedAt: time.Now(),
	}
	id, err := s.repo.NextID(ctx, repository.KindAuditLog)
	if err != nil {
		return
	}
	entry.ID = domain.AuditLogID(id)
	if _, err := s.repo.AuditLogs().Insert(ctx, entry); err != nil {
		return
	}
	s.publish(domain.TopicAdminAudit, domain.AdminAuditPayload{Entry: entry})
}

func (s *Service) publish(topic domain.Topic, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.Event{Topic: topic, Payload: payload, Timestamp: time.Now()})
}
