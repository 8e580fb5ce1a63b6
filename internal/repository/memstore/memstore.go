// Package memstore is a minimal in-memory Repository/UnitOfWork, used by
// this module's own tests and by cmd/tradecored serve (it is appctx.New's
// default backend). Spec §1/§6 explicitly leave the persistence backend out
// of scope and do not prescribe an in-memory implementation either.
package memstore

import (
	"context"
	"sync"

	"tradecore/internal/domain"
	"tradecore/internal/repository"
)

type typedStore[ID comparable, T any] struct {
	mu   sync.RWMutex
	rows map[ID]T
}

func newStore[ID comparable, T any]() *typedStore[ID, T] {
	return &typedStore[ID, T]{rows: make(map[ID]T)}
}

func (s *typedStore[ID, T]) Insert(_ context.Context, id ID, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = entity
	return nil
}

func (s *typedStore[ID, T]) Update(_ context.Context, id ID, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = entity
	return nil
}

func (s *typedStore[ID, T]) Get(_ context.Context, id ID) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.rows[id]
	return v, ok, nil
}

func (s *typedStore[ID, T]) Query(_ context.Context, pred func(T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, v := range s.rows {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// idInsertStore adapts typedStore to repository.Store's Insert-returns-ID
// shape for stores whose ID is assigned by the caller before Insert (every
// store here: IDs come from Repository.NextID, assigned by the service layer
// before the entity is constructed).
type idInsertStore[ID comparable, T any] struct {
	*typedStore[ID, T]
	idOf func(T) ID
}

func (s *idInsertStore[ID, T]) Insert(ctx context.Context, entity T) (ID, error) {
	id := s.idOf(entity)
	return id, s.typedStore.Insert(ctx, id, entity)
}

// Store is the in-memory Repository. Zero value is not usable; use New.
type Store struct {
	users        *idInsertStore[domain.UserID, *domain.User]
	accounts     *idInsertStore[domain.AccountID, *domain.Account]
	orders       *idInsertStore[domain.OrderID, *domain.Order]
	trades       *idInsertStore[domain.TradeID, *domain.Trade]
	transactions *idInsertStore[domain.TransactionID, *domain.Transaction]
	auditLogs    *idInsertStore[domain.AuditLogID, *domain.AuditLog]

	seqMu sync.Mutex
	seq   map[repository.IDKind]int64
}

var _ repository.Repository = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:        &idInsertStore[domain.UserID, *domain.User]{typedStore: newStore[domain.UserID, *domain.User](), idOf: func(u *domain.User) domain.UserID { return u.ID }},
		accounts:     &idInsertStore[domain.AccountID, *domain.Account]{typedStore: newStore[domain.AccountID, *domain.Account](), idOf: func(a *domain.Account) domain.AccountID { return a.ID }},
		orders:       &idInsertStore[domain.OrderID, *domain.Order]{typedStore: newStore[domain.OrderID, *domain.Order](), idOf: func(o *domain.Order) domain.OrderID { return o.ID }},
		trades:       &idInsertStore[domain.TradeID, *domain.Trade]{typedStore: newStore[domain.TradeID, *domain.Trade](), idOf: func(t *domain.Trade) domain.TradeID { return t.ID }},
		transactions: &idInsertStore[domain.TransactionID, *domain.Transaction]{typedStore: newStore[domain.TransactionID, *domain.Transaction](), idOf: func(t *domain.Transaction) domain.TransactionID { return t.ID }},
		auditLogs:    &idInsertStore[domain.AuditLogID, *domain.AuditLog]{typedStore: newStore[domain.AuditLogID, *domain.AuditLog](), idOf: func(a *domain.AuditLog) domain.AuditLogID { return a.ID }},
		seq:          make(map[repository.IDKind]int64),
	}
}

func (s *Store) Users() repository.UserStore               { return s.users }
func (s *Store) Accounts() repository.AccountStore          { return s.accounts }
func (s *Store) Orders() repository.OrderStore              { return s.orders }
func (s *Store) Trades() repository.TradeStore              { return s.trades }
func (s *Store) Transactions() repository.TransactionStore  { return s.transactions }
func (s *Store) AuditLogs() repository.AuditLogStore        { return s.auditLogs }

func (s *Store) NextID(_ context.Context, kind repository.IDKind) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq[kind]++
	return s.seq[kind], nil
}

// UnitOfWork is a no-op unit of work: memstore has no rollback support beyond
// "don't write anything if fn returns an error", which every caller in this
// module already guarantees by constructing entities before calling Insert.
type UnitOfWork struct {
	Store *Store
}

var _ repository.UnitOfWork = (*UnitOfWork)(nil)

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repo repository.Repository) error) error {
	return fn(ctx, u.Store)
}
