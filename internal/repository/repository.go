// Package repository defines the abstract persistence contract of spec §6:
// "a repository whose operations are (insert, update, get by id, query by
// indexed predicate) and a unit-of-work abstraction supporting begin / commit
// / rollback with serializable isolation semantics for any single unit. Any
// backend providing these contracts is acceptable." No concrete backend is
// specified here (spec §1: out of scope); internal/repository/memstore
// provides the minimal implementation this module's own tests run against.
package repository

import (
	"context"

	"tradecore/internal/domain"
)

// Store is a generic CRUD surface over one entity type T keyed by ID.
type Store[ID comparable, T any] interface {
	Insert(ctx context.Context, entity T) (ID, error)
	Update(ctx context.Context, id ID, entity T) error
	Get(ctx context.Context, id ID) (T, bool, error)
	// Query returns every entity for which pred returns true. Real backends
	// are expected to translate pred into an indexed predicate rather than a
	// full scan; that translation is backend-specific and out of scope here.
	Query(ctx context.Context, pred func(T) bool) ([]T, error)
}

type UserStore = Store[domain.UserID, *domain.User]
type AccountStore = Store[domain.AccountID, *domain.Account]
type OrderStore = Store[domain.OrderID, *domain.Order]
type TradeStore = Store[domain.TradeID, *domain.Trade]
type TransactionStore = Store[domain.TransactionID, *domain.Transaction]
type AuditLogStore = Store[domain.AuditLogID, *domain.AuditLog]

// IDKind selects which entity's sequence NextID advances, since every ID type
// in spec §3 is "monotonically assigned ... issued by the repository".
type IDKind string

const (
	KindUser        IDKind = "user"
	KindAccount     IDKind = "account"
	KindOrder       IDKind = "order"
	KindTrade       IDKind = "trade"
	KindTransaction IDKind = "transaction"
	KindAuditLog    IDKind = "audit_log"
)

// Repository groups the per-entity stores plus ID issuance.
type Repository interface {
	Users() UserStore
	Accounts() AccountStore
	Orders() OrderStore
	Trades() TradeStore
	Transactions() TransactionStore
	AuditLogs() AuditLogStore

	// NextID issues the next monotonic 64-bit ID for kind.
	NextID(ctx context.Context, kind IDKind) (int64, error)
}

// UnitOfWork runs fn within a single serializable-isolation transaction.
// Any error returned by fn rolls the transaction back; fn must not retain
// repo beyond its own call.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
