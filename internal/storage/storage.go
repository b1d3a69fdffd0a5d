// Package storage defines the persistence contract shared by the Postgres and
// in-memory stores. Every status transition is a conditional update on the
// expected prior status, so concurrent writers never both apply.
package storage

import (
	"context"
	"time"

	"github.com/m3rciful/paydesk/internal/domain"
)

// AccountStore persists user accounts.
type AccountStore interface {
	// UpsertAccount creates the account on first contact and refreshes the
	// username otherwise. Balances are never touched.
	UpsertAccount(ctx context.Context, userID int64, username string) (domain.Account, bool, error)
	GetAccount(ctx context.Context, userID int64) (domain.Account, error)
}

// DepositStore persists deposit requests.
type DepositStore interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	// CreateDeposit fails with domain.ErrDuplicateReference when the reference is taken.
	CreateDeposit(ctx context.Context, d domain.DepositRequest) error
	GetDepositByReference(ctx context.Context, reference string) (domain.DepositRequest, error)
	SetDepositOperatorMessage(ctx context.Context, id string, ref domain.MessageRef) error
	ListDepositsByStatus(ctx context.Context, statuses ...domain.DepositStatus) ([]domain.DepositRequest, error)

	// MarkDepositPending moves REQUESTED to PENDING and stamps the reminder clock.
	MarkDepositPending(ctx context.Context, id string, now time.Time) (bool, error)
	// RecordDepositReminder bumps the reminder count if it still equals expected.
	RecordDepositReminder(ctx context.Context, id string, expected int, now time.Time) (bool, error)
	// AutoCancelDeposit moves PENDING to AUTO_CANCELLED.
	AutoCancelDeposit(ctx context.Context, id string, now time.Time) (bool, error)

	// ConfirmDeposit completes an open deposit by reference and credits the
	// owner in one transaction. Returns domain.ErrNotFound when nothing matched.
	ConfirmDeposit(ctx context.Context, reference string, now time.Time) (domain.DepositRequest, domain.Account, error)
	// CancelDeposit moves an open deposit to CANCELLED.
	CancelDeposit(ctx context.Context, id string, now time.Time) (domain.DepositRequest, error)
}

// WithdrawalStore persists withdrawal requests.
type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, w domain.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error)
	SetWithdrawalOperatorMessage(ctx context.Context, id string, ref domain.MessageRef) error
	ListWithdrawalsByStatus(ctx context.Context, statuses ...domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error)

	// MarkWithdrawalProcessing moves REQUESTED to PROCESSING.
	MarkWithdrawalProcessing(ctx context.Context, id string) (domain.WithdrawalRequest, error)
	// CompleteWithdrawal completes an open withdrawal and debits the owner in
	// one transaction. Fails with domain.ErrInsufficientBalance if the debit
	// would overdraw the account.
	CompleteWithdrawal(ctx context.Context, id string, now time.Time) (domain.WithdrawalRequest, domain.Account, error)
	// RejectWithdrawal moves an open withdrawal to REJECTED.
	RejectWithdrawal(ctx context.Context, id string, now time.Time) (domain.WithdrawalRequest, error)
}

// Store is the full persistence surface.
type Store interface {
	AccountStore
	DepositStore
	WithdrawalStore
	Ping(ctx context.Context) error
	Close() error
}
