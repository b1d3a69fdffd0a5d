package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/paydesk/core/telegram/state"
	"github.com/m3rciful/paydesk/internal/conversation"
	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/notify/notifytest"
	"github.com/m3rciful/paydesk/internal/storage/memory"
)

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newService() (*Service, *memory.Store, *notifytest.Recorder) {
	store := memory.New()
	notes := &notifytest.Recorder{}
	return New(store, notes, func() time.Time { return fixedNow }), store, notes
}

func seedDeposit(t *testing.T, store *memory.Store, ref string, amount int64) domain.DepositRequest {
	t.Helper()
	ctx := context.Background()
	_, _, _ = store.UpsertAccount(ctx, 1, "alice")
	d := domain.DepositRequest{
		ID: domain.NewRequestID(), UserID: 1, Amount: decimal.NewFromInt(amount),
		Reference: ref, Status: domain.DepositRequested, CreatedAt: fixedNow,
	}
	if err := store.CreateDeposit(ctx, d); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return d
}

func seedWithdrawal(t *testing.T, store *memory.Store, id string, amount int64) {
	t.Helper()
	w := domain.WithdrawalRequest{
		ID: id, UserID: 1, Amount: decimal.NewFromInt(amount),
		Destination: "alice@upi", Status: domain.WithdrawalRequested, CreatedAt: fixedNow,
	}
	if err := store.CreateWithdrawal(context.Background(), w); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestConfirmDepositCreditsOnce(t *testing.T) {
	svc, store, notes := newService()
	ctx := context.Background()
	seedDeposit(t, store, "123456789012", 100)

	d, acc, err := svc.ConfirmDeposit(ctx, "123456789012")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if d.Status != domain.DepositCompleted || d.CompletedAt == nil || !d.CompletedAt.Equal(fixedNow) {
		t.Fatalf("deposit = %+v", d)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(100)) || !acc.TotalDeposits.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("account = %+v", acc)
	}

	if _, _, err := svc.ConfirmDeposit(ctx, "123456789012"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second confirm err = %v", err)
	}
	if _, _, err := svc.ConfirmDeposit(ctx, "999999999999"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown reference err = %v", err)
	}
	if _, _, err := svc.ConfirmDeposit(ctx, "abc"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("malformed reference err = %v", err)
	}
	if notes.Count("deposit_completed") != 1 {
		t.Fatalf("events = %+v", notes.Events())
	}
}

func TestConfirmPendingDeposit(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()
	d := seedDeposit(t, store, "123456789012", 50)
	_, _ = store.MarkDepositPending(ctx, d.ID, fixedNow)

	if _, acc, err := svc.ConfirmDeposit(ctx, "123456789012"); err != nil || !acc.Balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("confirm pending: acc=%+v err=%v", acc, err)
	}
}

func TestCancelDeposit(t *testing.T) {
	svc, store, notes := newService()
	ctx := context.Background()
	d := seedDeposit(t, store, "123456789012", 50)

	if _, err := svc.CancelDeposit(ctx, d.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, _, err := svc.ConfirmDeposit(ctx, "123456789012"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("confirm after cancel err = %v", err)
	}
	acc, _ := store.GetAccount(ctx, 1)
	if !acc.Balance.IsZero() {
		t.Fatalf("balance = %s", acc.Balance)
	}
	if notes.Count("deposit_cancelled") != 1 {
		t.Fatalf("events = %+v", notes.Events())
	}
}

func TestWithdrawalLifecycle(t *testing.T) {
	svc, store, notes := newService()
	ctx := context.Background()
	seedDeposit(t, store, "123456789012", 300)
	_, _, _ = svc.ConfirmDeposit(ctx, "123456789012")
	seedWithdrawal(t, store, "W1", 120)

	if _, err := svc.ProcessWithdrawal(ctx, "W1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := svc.ProcessWithdrawal(ctx, "W1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("double process err = %v", err)
	}
	_, acc, err := svc.CompleteWithdrawal(ctx, "W1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(180)) || !acc.TotalWithdrawals.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("account = %+v", acc)
	}
	if _, err := svc.RejectWithdrawal(ctx, "W1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("reject completed err = %v", err)
	}
	if notes.Count("withdrawal_processing") != 1 || notes.Count("withdrawal_completed") != 1 {
		t.Fatalf("events = %+v", notes.Events())
	}
}

func TestCompleteWithdrawalInsufficientBalance(t *testing.T) {
	svc, store, notes := newService()
	ctx := context.Background()
	_, _, _ = store.UpsertAccount(ctx, 1, "alice")
	seedWithdrawal(t, store, "W1", 120)

	if _, _, err := svc.CompleteWithdrawal(ctx, "W1"); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v", err)
	}
	w, _ := store.GetWithdrawal(ctx, "W1")
	if w.Status != domain.WithdrawalRequested {
		t.Fatalf("status = %s", w.Status)
	}
	if len(notes.Events()) != 0 {
		t.Fatalf("notified on failure: %+v", notes.Events())
	}

	if _, err := svc.RejectWithdrawal(ctx, "W1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	acc, _ := store.GetAccount(ctx, 1)
	if !acc.Balance.IsZero() {
		t.Fatalf("reject changed balance: %s", acc.Balance)
	}
}

// TestDepositEndToEnd drives a user deposit through the dialog and confirms
// it twice from the operator side.
func TestDepositEndToEnd(t *testing.T) {
	store := memory.New()
	notes := &notifytest.Recorder{}
	engine := conversation.New(store, state.NewMemoryManager(), notes, nil, conversation.Options{})
	svc := New(store, notes, nil)
	ctx := context.Background()
	u := conversation.User{ID: 10, Username: "bob"}

	engine.Start(ctx, u)
	engine.Callback(ctx, u, conversation.ActionDeposit, "")
	engine.Callback(ctx, u, conversation.ActionToggleAmount, "100")
	engine.Callback(ctx, u, conversation.ActionPayNow, "")
	engine.Callback(ctx, u, conversation.ActionPaymentDone, "")
	engine.Photo(ctx, u, "proof")
	engine.Text(ctx, u, "123456789012")

	if _, _, err := svc.ConfirmDeposit(ctx, "123456789012"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, _, err := svc.ConfirmDeposit(ctx, "123456789012"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second confirm err = %v", err)
	}

	acc, _ := store.GetAccount(ctx, 10)
	if !acc.Balance.Equal(decimal.NewFromInt(100)) || !acc.TotalDeposits.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("account = %+v", acc)
	}
	d, _ := store.GetDepositByReference(ctx, "123456789012")
	if d.Status != domain.DepositCompleted {
		t.Fatalf("status = %s", d.Status)
	}
	if notes.Count("deposit_requested") != 1 || notes.Count("deposit_completed") != 1 {
		t.Fatalf("events = %+v", notes.Events())
	}
}
