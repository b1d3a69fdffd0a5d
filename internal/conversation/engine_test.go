package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/paydesk/core/telegram/state"
	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/notify/notifytest"
	"github.com/m3rciful/paydesk/internal/storage/memory"
)

type fakeQR struct{ err error }

func (q fakeQR) PNG(decimal.Decimal) ([]byte, error) {
	if q.err != nil {
		return nil, q.err
	}
	return []byte("png"), nil
}

type harness struct {
	engine   *Engine
	store    *memory.Store
	sessions state.Manager
	notes    *notifytest.Recorder
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		sessions: state.NewMemoryManager(),
		notes:    &notifytest.Recorder{},
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	h.engine = New(h.store, h.sessions, h.notes, fakeQR{}, Options{
		MinWithdrawal: decimal.NewFromInt(100),
		Payee:         "desk@bank",
		Now:           func() time.Time { return h.now },
	})
	return h
}

func (h *harness) step(t *testing.T, userID int64) state.State {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s.State
}

// driveToReference walks a user through amount selection, payment and proof.
func (h *harness) driveToReference(t *testing.T, u User, amounts ...string) {
	t.Helper()
	ctx := context.Background()
	h.engine.Start(ctx, u)
	h.engine.Callback(ctx, u, ActionDeposit, "")
	for _, a := range amounts {
		h.engine.Callback(ctx, u, ActionToggleAmount, a)
	}
	h.engine.Callback(ctx, u, ActionPayNow, "")
	h.engine.Callback(ctx, u, ActionPaymentDone, "")
	h.engine.Photo(ctx, u, "proof-file")
	if got := h.step(t, u.ID); got != StepDepositAwaitRef {
		t.Fatalf("step = %s, want %s", got, StepDepositAwaitRef)
	}
}

func (h *harness) credit(t *testing.T, userID int64, ref string, amount int64) {
	t.Helper()
	ctx := context.Background()
	d := domain.DepositRequest{
		ID: domain.NewRequestID(), UserID: userID, Amount: decimal.NewFromInt(amount),
		Reference: ref, Status: domain.DepositRequested, CreatedAt: h.now,
	}
	if err := h.store.CreateDeposit(ctx, d); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	if _, _, err := h.store.ConfirmDeposit(ctx, ref, h.now); err != nil {
		t.Fatalf("seed confirm: %v", err)
	}
}

func TestStartCreatesAccountAndShowsMenu(t *testing.T) {
	h := newHarness(t)
	r := h.engine.Start(context.Background(), User{ID: 1, Username: "alice"})

	if !strings.Contains(r.Text, "alice") || len(r.Keyboard) == 0 {
		t.Fatalf("reply = %+v", r)
	}
	acc, err := h.store.GetAccount(context.Background(), 1)
	if err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if !acc.Balance.IsZero() || len(acc.PublicID) != 8 {
		t.Fatalf("account = %+v", acc)
	}
}

func TestAmountToggleAccumulates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1}
	h.engine.Callback(ctx, u, ActionDeposit, "")

	h.engine.Callback(ctx, u, ActionToggleAmount, "100")
	r := h.engine.Callback(ctx, u, ActionToggleAmount, "50")
	if !r.Edit || !strings.Contains(r.Text, "₹150.00") {
		t.Fatalf("reply = %+v", r)
	}
	r = h.engine.Callback(ctx, u, ActionToggleAmount, "100")
	if !strings.Contains(r.Text, "₹50.00") {
		t.Fatalf("toggle off failed: %q", r.Text)
	}
	r = h.engine.Callback(ctx, u, ActionToggleAmount, "75")
	if !strings.Contains(r.Text, "₹50.00") {
		t.Fatalf("unknown denomination changed total: %q", r.Text)
	}
}

func TestPayNowRequiresSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1}
	h.engine.Callback(ctx, u, ActionDeposit, "")

	r := h.engine.Callback(ctx, u, ActionPayNow, "")
	if !strings.Contains(r.Text, "at least one amount") {
		t.Fatalf("reply = %q", r.Text)
	}
	if h.step(t, 1) != StepDepositSelectAmount {
		t.Fatal("step advanced without a selection")
	}

	h.engine.Callback(ctx, u, ActionToggleAmount, "200")
	r = h.engine.Callback(ctx, u, ActionPayNow, "")
	if len(r.Photo) == 0 || !strings.Contains(r.Text, "₹200.00") || !strings.Contains(r.Text, "desk@bank") {
		t.Fatalf("payment reply = %+v", r)
	}
	if h.step(t, 1) != StepDepositAwaitPayment {
		t.Fatalf("step = %s", h.step(t, 1))
	}
}

func TestPayNowFallsBackToTextWithoutQR(t *testing.T) {
	h := newHarness(t)
	h.engine.qr = fakeQR{err: errors.New("no payee")}
	ctx := context.Background()
	u := User{ID: 1}
	h.engine.Callback(ctx, u, ActionDeposit, "")
	h.engine.Callback(ctx, u, ActionToggleAmount, "10")

	r := h.engine.Callback(ctx, u, ActionPayNow, "")
	if len(r.Photo) != 0 || !strings.Contains(r.Text, "₹10.00") {
		t.Fatalf("reply = %+v", r)
	}
}

func TestProofStepRejectsText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1}
	h.engine.Callback(ctx, u, ActionDeposit, "")
	h.engine.Callback(ctx, u, ActionToggleAmount, "10")
	h.engine.Callback(ctx, u, ActionPayNow, "")
	h.engine.Callback(ctx, u, ActionPaymentDone, "")

	r := h.engine.Text(ctx, u, "here is my payment")
	if !strings.Contains(r.Text, "screenshot") {
		t.Fatalf("reply = %q", r.Text)
	}
	if h.step(t, 1) != StepDepositAwaitProof {
		t.Fatalf("step = %s", h.step(t, 1))
	}
}

func TestDepositSubmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1, Username: "alice"}
	h.driveToReference(t, u, "100")

	r := h.engine.Text(ctx, u, "12345")
	if !strings.Contains(r.Text, "12 to 18 digits") {
		t.Fatalf("invalid reference reply = %q", r.Text)
	}
	if h.step(t, 1) != StepDepositAwaitRef {
		t.Fatal("invalid reference lost progress")
	}

	r = h.engine.Text(ctx, u, "  123456789012  ")
	if !strings.Contains(r.Text, "submitted") {
		t.Fatalf("reply = %q", r.Text)
	}
	d, err := h.store.GetDepositByReference(ctx, "123456789012")
	if err != nil {
		t.Fatalf("deposit not stored: %v", err)
	}
	if d.Status != domain.DepositRequested || !d.Amount.Equal(decimal.NewFromInt(100)) || d.ProofFileID != "proof-file" {
		t.Fatalf("deposit = %+v", d)
	}
	if !d.CreatedAt.Equal(h.now) {
		t.Fatalf("created_at = %v", d.CreatedAt)
	}
	if h.notes.Count("deposit_requested") != 1 {
		t.Fatalf("events = %+v", h.notes.Events())
	}
	if got := h.notes.Events()[0].Account.Username; got != "alice" {
		t.Fatalf("notified account username = %q", got)
	}
	if h.step(t, 1) != StepMainMenu {
		t.Fatal("session not cleared after submission")
	}
}

func TestDuplicateReferenceRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := User{ID: 1}
	h.driveToReference(t, first, "100")
	h.engine.Text(ctx, first, "123456789012")

	second := User{ID: 2}
	h.driveToReference(t, second, "50")
	r := h.engine.Text(ctx, second, "123456789012")
	if !strings.Contains(r.Text, "already been submitted") {
		t.Fatalf("reply = %q", r.Text)
	}
	if h.step(t, 2) != StepMainMenu {
		t.Fatal("session kept after duplicate")
	}
	all, _ := h.store.ListDepositsByStatus(ctx, domain.DepositRequested)
	if len(all) != 1 || all[0].UserID != 1 {
		t.Fatalf("deposits = %+v", all)
	}
	acc, _ := h.store.GetAccount(ctx, 2)
	if !acc.Balance.IsZero() {
		t.Fatalf("balance changed: %s", acc.Balance)
	}
}

func TestWithdrawalFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1, Username: "alice"}
	h.engine.Start(ctx, u)
	h.credit(t, 1, "111111111111", 300)

	h.engine.Callback(ctx, u, ActionWithdraw, "")
	r := h.engine.Text(ctx, u, "not a handle")
	if h.step(t, 1) != StepWithdrawDestination || !strings.Contains(r.Text, "spaces") {
		t.Fatalf("bad handle accepted: %q", r.Text)
	}
	r = h.engine.Text(ctx, u, "alice@upi")
	if h.step(t, 1) != StepWithdrawAwaitAmount || !strings.Contains(r.Text, "₹300.00") {
		t.Fatalf("handle step reply = %q", r.Text)
	}

	r = h.engine.Text(ctx, u, "50")
	if !strings.Contains(r.Text, "minimum withdrawal is ₹100.00") {
		t.Fatalf("below minimum reply = %q", r.Text)
	}
	r = h.engine.Text(ctx, u, "500")
	if !strings.Contains(r.Text, "Insufficient balance") {
		t.Fatalf("overdraw reply = %q", r.Text)
	}
	r = h.engine.Text(ctx, u, "12.345")
	if h.step(t, 1) != StepWithdrawAwaitAmount || !strings.Contains(r.Text, "number") {
		t.Fatalf("bad amount reply = %q", r.Text)
	}

	h.engine.Text(ctx, u, "200.50")
	if h.step(t, 1) != StepWithdrawAwaitConfirm {
		t.Fatalf("step = %s", h.step(t, 1))
	}
	r = h.engine.Callback(ctx, u, ActionConfirmWithdraw, "")
	if !strings.Contains(r.Text, "submitted") {
		t.Fatalf("confirm reply = %q", r.Text)
	}

	open, _ := h.store.ListWithdrawalsByStatus(ctx, domain.WithdrawalRequested)
	if len(open) != 1 || !open[0].Amount.Equal(decimal.RequireFromString("200.50")) || open[0].Destination != "alice@upi" {
		t.Fatalf("withdrawals = %+v", open)
	}
	acc, _ := h.store.GetAccount(ctx, 1)
	if !acc.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance debited before completion: %s", acc.Balance)
	}
	if h.notes.Count("withdrawal_requested") != 1 {
		t.Fatalf("events = %+v", h.notes.Events())
	}
}

func TestWithdrawalRecheckedAtConfirm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1}
	h.engine.Start(ctx, u)
	h.credit(t, 1, "111111111111", 300)

	h.engine.Callback(ctx, u, ActionWithdraw, "")
	h.engine.Text(ctx, u, "alice@upi")
	h.engine.Text(ctx, u, "250")

	// Another withdrawal completes in between and drains the balance.
	other := domain.WithdrawalRequest{ID: "W0", UserID: 1, Amount: decimal.NewFromInt(200), Status: domain.WithdrawalRequested}
	_ = h.store.CreateWithdrawal(ctx, other)
	if _, _, err := h.store.CompleteWithdrawal(ctx, "W0", h.now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	r := h.engine.Callback(ctx, u, ActionConfirmWithdraw, "")
	if !strings.Contains(r.Text, "not submitted") {
		t.Fatalf("reply = %q", r.Text)
	}
	open, _ := h.store.ListWithdrawalsByStatus(ctx, domain.WithdrawalRequested)
	if len(open) != 0 {
		t.Fatalf("withdrawal created despite insufficient balance: %+v", open)
	}
}

func TestStaleCallbackDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1}

	r := h.engine.Callback(ctx, u, ActionPaymentDone, "")
	if r.Text != msgExpired {
		t.Fatalf("reply = %q", r.Text)
	}
	r = h.engine.Callback(ctx, u, ActionConfirmWithdraw, "")
	if r.Text != msgExpired {
		t.Fatalf("reply = %q", r.Text)
	}
	if h.step(t, 1) != StepMainMenu {
		t.Fatal("stale callback changed the step")
	}
}

func TestCancelClearsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := User{ID: 1}
	h.engine.Callback(ctx, u, ActionWithdraw, "")

	h.engine.Callback(ctx, u, ActionCancel, "")
	if h.step(t, 1) != StepMainMenu {
		t.Fatal("cancel kept the session")
	}
}

type flakyStore struct {
	*memory.Store
	down bool
}

func (f *flakyStore) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	if f.down {
		return domain.Account{}, domain.ErrStoreUnavailable
	}
	return f.Store.GetAccount(ctx, id)
}

func TestBalanceFallsBackToLastKnown(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	e := New(store, state.NewMemoryManager(), nil, nil, Options{})
	ctx := context.Background()
	u := User{ID: 1}

	e.Start(ctx, u)
	r := e.Balance(ctx, u)
	if strings.Contains(r.Text, "out of date") {
		t.Fatalf("fresh balance marked stale: %q", r.Text)
	}

	store.down = true
	r = e.Balance(ctx, u)
	if !strings.Contains(r.Text, "₹0.00") || !strings.Contains(r.Text, "out of date") {
		t.Fatalf("fallback reply = %q", r.Text)
	}

	r = e.Balance(ctx, User{ID: 2})
	if r.Text != msgError {
		t.Fatalf("unknown user reply = %q", r.Text)
	}
}
