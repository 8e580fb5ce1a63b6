package domain

import (
	"strings"
	"time"
)

// AccountStatus is the Account.status enum of spec §3.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// User is created once and never destroyed; Accounts mirror Users 1:N.
type User struct {
	ID           UserID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser case-folds Email per spec §3's uniqueness invariant. The ID is
// assigned by the repository on insert, not here.
func NewUser(email, passwordHash string, createdAt time.Time) *User {
	return &User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}
}

// Account belongs to exactly one User.
type Account struct {
	ID       AccountID
	UserID   UserID
	Status   AccountStatus
	KYCLevel int
}

func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

// Asset is a currency/token symbol, e.g. "BTC", "USDT".
type Asset string
