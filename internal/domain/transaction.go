package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the Transaction.type enum of spec §3.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxFee        TransactionType = "fee"
)

// TransactionStatus covers both the deposit and withdrawal state machines.
// Deposits only ever use Pending/Confirmed/Failed; withdrawals additionally
// use the two-eyes states (spec §4.5/§4.6).
type TransactionStatus string

const (
	TxPending                TransactionStatus = "pending"
	TxApprovedPendingSecond  TransactionStatus = "approved_pending_second"
	TxApproved               TransactionStatus = "approved"
	TxConfirmed              TransactionStatus = "confirmed"
	TxFailed                 TransactionStatus = "failed"
	TxRejected               TransactionStatus = "rejected"
)

// Transaction records a deposit, withdrawal, or fee movement.
type Transaction struct {
	ID            TransactionID
	UserID        UserID
	AccountID     AccountID
	Asset         Asset
	Type          TransactionType
	Status        TransactionStatus
	Amount        decimal.Decimal
	NetworkFee    decimal.Decimal
	Address       string
	TxHash        string // unique when present; guarantees deposit idempotency
	Confirmations int

	// BroadcastRef is an idempotency key handed to the external broadcaster
	// when a withdrawal reaches approved, so a retried broadcast request
	// after a reported failure can be recognized as the same request.
	BroadcastRef string

	// LastError holds the most recent external-integration failure reason
	// (spec §7: "external-integration errors ... keep the transaction in its
	// current state with a last_error field until the next operator action").
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditLog is an append-only record of an administrative action (spec §3,
// §4.6).
type AuditLog struct {
	ID        AuditLogID
	Actor     string
	Action    string
	EntityRef string
	Metadata  map[string]any
	CreatedAt time.Time
}

// ApprovalRecord backs the two-eyes withdrawal invariant: the same admin
// cannot satisfy both approval slots. One record per approval of a
// withdrawal transaction; rejections are not recorded here.
type ApprovalRecord struct {
	TransactionID TransactionID
	AdminID       string
	Approved      bool
	CreatedAt     time.Time
}
