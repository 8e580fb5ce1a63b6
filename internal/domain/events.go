package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topic is one of the event bus topics of spec §6.
type Topic string

const (
	TopicOrderSubmitted      Topic = "order.submitted"
	TopicOrderAccepted       Topic = "order.accepted"
	TopicOrderRejected       Topic = "order.rejected"
	TopicOrderCanceled       Topic = "order.canceled"
	TopicTradeExecuted       Topic = "trade.executed"
	TopicBalanceChanged      Topic = "balance.changed"
	TopicDepositConfirmed    Topic = "deposit.confirmed"
	TopicWithdrawalApproved  Topic = "withdrawal.approved"
	TopicWithdrawalConfirmed Topic = "withdrawal.confirmed"
	TopicAdminAudit          Topic = "admin.audit"
	TopicSystemAlert         Topic = "system.alert"
)

// Event is the envelope published on the event bus. Payload is one of the
// *Payload types below; consumers type-switch on it.
type Event struct {
	Topic     Topic
	Market    Market
	Payload   any
	Timestamp time.Time
	// Seq is a strictly increasing per-market sequence number, so subscribers
	// can detect gaps if a buffered channel drops events (spec §5 ordering
	// guarantees).
	Seq uint64
}

// OrderRejectedPayload is published when an order never reaches the book.
type OrderRejectedPayload struct {
	OrderID OrderID
	Reason  ErrorKind
}

// OrderAcceptedPayload is published when an order is admitted (resting in
// the book or armed in a stop table) without yet generating a trade.
type OrderAcceptedPayload struct {
	OrderID OrderID
}

// OrderCanceledPayload is published on cancellation, IOC residue cancellation,
// or market_no_liquidity residue cancellation.
type OrderCanceledPayload struct {
	OrderID OrderID
	Reason  string
}

// TradeExecutedPayload mirrors a committed Trade.
type TradeExecutedPayload struct {
	Trade *Trade
}

// BalanceChangedPayload is published after any ledger mutation commits.
type BalanceChangedPayload struct {
	AccountID AccountID
	Asset     Asset
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// SystemAlertPayload is published when the engine halts on a fatal
// matching-internal error (spec §4.3 failure semantics).
type SystemAlertPayload struct {
	Kind    ErrorKind
	Message string
}

// DepositConfirmedPayload is published when a deposit Transaction reaches its
// asset's confirmation threshold and is credited.
type DepositConfirmedPayload struct {
	TransactionID TransactionID
	AccountID     AccountID
	Asset         Asset
	Amount        decimal.Decimal
}

// WithdrawalApprovedPayload is published when a withdrawal's second, distinct
// admin approval lands (spec §4.5 step 3).
type WithdrawalApprovedPayload struct {
	TransactionID TransactionID
}

// WithdrawalConfirmedPayload is published when a withdrawal's broadcast
// succeeds and its locked funds are debited (spec §4.5 step 4).
type WithdrawalConfirmedPayload struct {
	TransactionID TransactionID
}

// AdminAuditPayload mirrors an AuditLog entry at the moment it is appended.
type AdminAuditPayload struct {
	Entry *AuditLog
}
