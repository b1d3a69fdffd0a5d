// Package notify delivers operator channel posts and user messages. Every
// method is fire-and-forget: it runs after the durable transition and its
// failures are logged, never returned to the caller.
package notify

import (
	"context"

	"github.com/m3rciful/paydesk/internal/domain"
)

// Notifier reports request lifecycle events to operators and users.
type Notifier interface {
	DepositRequested(ctx context.Context, d domain.DepositRequest, user domain.Account)
	DepositPending(ctx context.Context, d domain.DepositRequest)
	DepositReminder(ctx context.Context, d domain.DepositRequest, n int)
	DepositAutoCancelled(ctx context.Context, d domain.DepositRequest)
	DepositCompleted(ctx context.Context, d domain.DepositRequest, acc domain.Account)
	DepositCancelled(ctx context.Context, d domain.DepositRequest)

	WithdrawalRequested(ctx context.Context, w domain.WithdrawalRequest, user domain.Account)
	WithdrawalProcessing(ctx context.Context, w domain.WithdrawalRequest)
	WithdrawalCompleted(ctx context.Context, w domain.WithdrawalRequest, acc domain.Account)
	WithdrawalRejected(ctx context.Context, w domain.WithdrawalRequest)
}

// Channels maps operator feeds to chat ids.
type Channels struct {
	DepositRequested    int64
	DepositPending      int64
	DepositCompleted    int64
	WithdrawalRequested int64
	WithdrawalCompleted int64
}

// MessageRecorder persists where an operator post landed so it can be edited.
type MessageRecorder interface {
	SetDepositOperatorMessage(ctx context.Context, id string, ref domain.MessageRef) error
	SetWithdrawalOperatorMessage(ctx context.Context, id string, ref domain.MessageRef) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) DepositRequested(context.Context, domain.DepositRequest, domain.Account) {}
func (Nop) DepositPending(context.Context, domain.DepositRequest) {}
func (Nop) DepositReminder(context.Context, domain.DepositRequest, int) {}
func (Nop) DepositAutoCancelled(context.Context, domain.DepositRequest) {}
func (Nop) DepositCompleted(context.Context, domain.DepositRequest, domain.Account) {}
func (Nop) DepositCancelled(context.Context, domain.DepositRequest) {}
func (Nop) WithdrawalRequested(context.Context, domain.WithdrawalRequest, domain.Account) {}
func (Nop) WithdrawalProcessing(context.Context, domain.WithdrawalRequest) {}
func (Nop) WithdrawalCompleted(context.Context, domain.WithdrawalRequest, domain.Account) {}
func (Nop) WithdrawalRejected(context.Context, domain.WithdrawalRequest) {}
