// Package domain holds the persisted entities of the payment desk and the
// input rules that guard them.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the per-user ledger row. Balance changes only through a
// confirmed deposit or a completed withdrawal.
type Account struct {
	UserID           int64
	Username         string
	PublicID         string
	Balance          decimal.Decimal
	TotalDeposits    decimal.Decimal
	TotalWithdrawals decimal.Decimal
	CreatedAt        time.Time
}

// DepositStatus is the lifecycle tag of a deposit request.
type DepositStatus string

const (
	DepositRequested     DepositStatus = "REQUESTED"
	DepositPending       DepositStatus = "PENDING"
	DepositCompleted     DepositStatus = "COMPLETED"
	DepositAutoCancelled DepositStatus = "AUTO_CANCELLED"
	DepositCancelled     DepositStatus = "CANCELLED"
)

// Valid reports whether s is a known deposit status.
func (s DepositStatus) Valid() bool {
	switch s {
	case DepositRequested, DepositPending, DepositCompleted, DepositAutoCancelled, DepositCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s DepositStatus) Terminal() bool {
	return s == DepositCompleted || s == DepositAutoCancelled || s == DepositCancelled
}

// OpenDepositStatuses are the statuses an operator may still confirm or cancel.
var OpenDepositStatuses = []DepositStatus{DepositRequested, DepositPending}

// WithdrawalStatus is the lifecycle tag of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalRequested  WithdrawalStatus = "REQUESTED"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
)

// Valid reports whether s is a known withdrawal status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalRequested, WithdrawalProcessing, WithdrawalCompleted, WithdrawalRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalRejected
}

// OpenWithdrawalStatuses are the statuses an operator may still complete or reject.
var OpenWithdrawalStatuses = []WithdrawalStatus{WithdrawalRequested, WithdrawalProcessing}

// MessageRef points at an operator-facing message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// DepositRequest is one submitted deposit attempt.
type DepositRequest struct {
	ID              string
	UserID          int64
	Amount          decimal.Decimal
	Reference       string
	ProofFileID     string
	Status          DepositStatus
	CreatedAt       time.Time
	LastReminderAt  *time.Time
	ReminderCount   int
	OperatorMessage *MessageRef
	CompletedAt     *time.Time
}

// Age is the time elapsed since submission.
func (d DepositRequest) Age(now time.Time) time.Duration {
	return now.Sub(d.CreatedAt)
}

// SinceReminder is the time elapsed since the last reminder, or since
// submission when none was sent.
func (d DepositRequest) SinceReminder(now time.Time) time.Duration {
	if d.LastReminderAt == nil {
		return now.Sub(d.CreatedAt)
	}
	return now.Sub(*d.LastReminderAt)
}

// WithdrawalRequest is one submitted withdrawal attempt.
type WithdrawalRequest struct {
	ID              string
	UserID          int64
	Amount          decimal.Decimal
	Destination     string
	Status          WithdrawalStatus
	CreatedAt       time.Time
	OperatorMessage *MessageRef
	CompletedAt     *time.Time
}
