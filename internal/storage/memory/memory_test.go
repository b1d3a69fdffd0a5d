package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/paydesk/internal/domain"
)

func seedDeposit(t *testing.T, s *Store, userID int64, ref string, amount int64) domain.DepositRequest {
	t.Helper()
	d := domain.DepositRequest{
		ID:        domain.NewRequestID(),
		UserID:    userID,
		Amount:    decimal.NewFromInt(amount),
		Reference: ref,
		Status:    domain.DepositRequested,
		CreatedAt: time.Now(),
	}
	if err := s.CreateDeposit(context.Background(), d); err != nil {
		t.Fatalf("create deposit: %v", err)
	}
	return d
}

func TestUpsertAccountIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, created, err := s.UpsertAccount(ctx, 10, "alice")
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	second, created, err := s.UpsertAccount(ctx, 10, "alice_new")
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if first.PublicID != second.PublicID {
		t.Fatal("public id changed on upsert")
	}
	if second.Username != "alice_new" {
		t.Fatalf("username not refreshed: %q", second.Username)
	}
	if !second.Balance.IsZero() {
		t.Fatal("new account must start with zero balance")
	}
}

func TestCreateDepositRejectsDuplicateReference(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, _ = s.UpsertAccount(ctx, 1, "u")
	seedDeposit(t, s, 1, "123456789012", 100)

	dup := domain.DepositRequest{ID: domain.NewRequestID(), UserID: 1, Reference: "123456789012", Status: domain.DepositRequested}
	if err := s.CreateDeposit(ctx, dup); !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("err = %v, want ErrDuplicateReference", err)
	}
	all, _ := s.ListDepositsByStatus(ctx, domain.DepositRequested)
	if len(all) != 1 {
		t.Fatalf("stored %d deposits, want 1", len(all))
	}
}

func TestConfirmDepositCreditsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, _ = s.UpsertAccount(ctx, 1, "u")
	seedDeposit(t, s, 1, "123456789012", 100)

	d, acc, err := s.ConfirmDeposit(ctx, "123456789012", time.Now())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if d.Status != domain.DepositCompleted {
		t.Fatalf("status = %s", d.Status)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(100)) || !acc.TotalDeposits.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance=%s total=%s", acc.Balance, acc.TotalDeposits)
	}

	if _, _, err := s.ConfirmDeposit(ctx, "123456789012", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second confirm err = %v", err)
	}
	acc, _ = s.GetAccount(ctx, 1)
	if !acc.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance changed by second confirm: %s", acc.Balance)
	}
}

func TestConfirmLosesToAutoCancel(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, _ = s.UpsertAccount(ctx, 1, "u")
	d := seedDeposit(t, s, 1, "123456789012", 100)

	if ok, _ := s.MarkDepositPending(ctx, d.ID, time.Now()); !ok {
		t.Fatal("mark pending failed")
	}
	if ok, _ := s.AutoCancelDeposit(ctx, d.ID, time.Now()); !ok {
		t.Fatal("auto cancel failed")
	}
	if _, _, err := s.ConfirmDeposit(ctx, d.Reference, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("confirm after auto cancel err = %v", err)
	}
	if ok, _ := s.AutoCancelDeposit(ctx, d.ID, time.Now()); ok {
		t.Fatal("second auto cancel applied")
	}
}

func TestRecordReminderChecksExpectedCount(t *testing.T) {
	s := New()
	ctx := context.Background()
	d := seedDeposit(t, s, 1, "123456789012", 100)
	_, _ = s.MarkDepositPending(ctx, d.ID, time.Now())

	if ok, _ := s.RecordDepositReminder(ctx, d.ID, 0, time.Now()); !ok {
		t.Fatal("first reminder not recorded")
	}
	if ok, _ := s.RecordDepositReminder(ctx, d.ID, 0, time.Now()); ok {
		t.Fatal("stale reminder count applied")
	}
	got, _ := s.GetDepositByReference(ctx, d.Reference)
	if got.ReminderCount != 1 {
		t.Fatalf("reminder count = %d", got.ReminderCount)
	}
}

func TestCompleteWithdrawalDebitsAndGuardsBalance(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, _ = s.UpsertAccount(ctx, 1, "u")
	seedDeposit(t, s, 1, "123456789012", 300)
	_, _, _ = s.ConfirmDeposit(ctx, "123456789012", time.Now())

	w := domain.WithdrawalRequest{ID: "w1", UserID: 1, Amount: decimal.NewFromInt(200), Destination: "u@upi", Status: domain.WithdrawalRequested}
	big := domain.WithdrawalRequest{ID: "w2", UserID: 1, Amount: decimal.NewFromInt(200), Destination: "u@upi", Status: domain.WithdrawalRequested}
	_ = s.CreateWithdrawal(ctx, w)
	_ = s.CreateWithdrawal(ctx, big)

	if _, err := s.MarkWithdrawalProcessing(ctx, "w1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	_, acc, err := s.CompleteWithdrawal(ctx, "w1", time.Now())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(100)) || !acc.TotalWithdrawals.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("balance=%s withdrawn=%s", acc.Balance, acc.TotalWithdrawals)
	}
	if _, _, err := s.CompleteWithdrawal(ctx, "w2", time.Now()); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("overdraw err = %v", err)
	}
	got, _ := s.GetWithdrawal(ctx, "w2")
	if got.Status != domain.WithdrawalRequested {
		t.Fatalf("failed completion changed status to %s", got.Status)
	}
	if _, err := s.RejectWithdrawal(ctx, "w1", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("reject completed err = %v", err)
	}
}
