// Package notifytest provides an in-memory notify.Notifier for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/notify"
)

var _ notify.Notifier = (*Recorder)(nil)

// Event is one recorded notification.
type Event struct {
	Kind       string
	Deposit    domain.DepositRequest
	Withdrawal domain.WithdrawalRequest
	Account    domain.Account
	Reminder   int
}

// Recorder captures every notification in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Recorder) DepositRequested(_ context.Context, d domain.DepositRequest, user domain.Account) {
	r.add(Event{Kind: "deposit_requested", Deposit: d, Account: user})
}

func (r *Recorder) DepositPending(_ context.Context, d domain.DepositRequest) {
	r.add(Event{Kind: "deposit_pending", Deposit: d})
}

func (r *Recorder) DepositReminder(_ context.Context, d domain.DepositRequest, n int) {
	r.add(Event{Kind: "deposit_reminder", Deposit: d, Reminder: n})
}

func (r *Recorder) DepositAutoCancelled(_ context.Context, d domain.DepositRequest) {
	r.add(Event{Kind: "deposit_auto_cancelled", Deposit: d})
}

func (r *Recorder) DepositCompleted(_ context.Context, d domain.DepositRequest, acc domain.Account) {
	r.add(Event{Kind: "deposit_completed", Deposit: d, Account: acc})
}

func (r *Recorder) DepositCancelled(_ context.Context, d domain.DepositRequest) {
	r.add(Event{Kind: "deposit_cancelled", Deposit: d})
}

func (r *Recorder) WithdrawalRequested(_ context.Context, w domain.WithdrawalRequest, user domain.Account) {
	r.add(Event{Kind: "withdrawal_requested", Withdrawal: w, Account: user})
}

func (r *Recorder) WithdrawalProcessing(_ context.Context, w domain.WithdrawalRequest) {
	r.add(Event{Kind: "withdrawal_processing", Withdrawal: w})
}

func (r *Recorder) WithdrawalCompleted(_ context.Context, w domain.WithdrawalRequest, acc domain.Account) {
	r.add(Event{Kind: "withdrawal_completed", Withdrawal: w, Account: acc})
}

func (r *Recorder) WithdrawalRejected(_ context.Context, w domain.WithdrawalRequest) {
	r.add(Event{Kind: "withdrawal_rejected", Withdrawal: w})
}
