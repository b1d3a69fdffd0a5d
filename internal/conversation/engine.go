// Package conversation implements the per-user deposit and withdrawal dialog.
// The engine is transport-free: it consumes user input and returns a Reply
// for the Telegram layer to render.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/paydesk/core/logger"
	"github.com/m3rciful/paydesk/core/telegram/keyboard"
	"github.com/m3rciful/paydesk/core/telegram/state"
	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/metrics"
	"github.com/m3rciful/paydesk/internal/notify"
)

const (
	keyAmounts     = "amounts"
	keyProof       = "proof"
	keyDestination = "destination"
	keyAmount      = "amount"
)

const (
	msgError   = "An error occurred, please try again."
	msgExpired = "This menu has expired. Please start again."
	msgMenu    = "Please choose an option from the menu."
)

// DefaultDenominations are the deposit amount buttons.
var DefaultDenominations = []int64{10, 50, 100, 200, 300}

// Store is the persistence the dialog needs.
type Store interface {
	UpsertAccount(ctx context.Context, userID int64, username string) (domain.Account, bool, error)
	GetAccount(ctx context.Context, userID int64) (domain.Account, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	CreateDeposit(ctx context.Context, d domain.DepositRequest) error
	CreateWithdrawal(ctx context.Context, w domain.WithdrawalRequest) error
}

// QRGenerator renders a payment QR code for an amount.
type QRGenerator interface {
	PNG(amount decimal.Decimal) ([]byte, error)
}

// Options tune the dialog.
type Options struct {
	Denominations []int64
	MinWithdrawal decimal.Decimal
	// Payee is shown next to the QR code so users can pay by handle.
	Payee string
	Now   func() time.Time
}

// Engine drives the conversation FSM for every user.
type Engine struct {
	store    Store
	sessions state.Manager
	notifier notify.Notifier
	qr       QRGenerator
	opts     Options

	locks     sync.Map // user id -> *sync.Mutex
	lastKnown sync.Map // user id -> domain.Account
}

// New builds an Engine. qr may be nil, in which case payment instructions are text only.
func New(store Store, sessions state.Manager, notifier notify.Notifier, qr QRGenerator, opts Options) *Engine {
	if len(opts.Denominations) == 0 {
		opts.Denominations = DefaultDenominations
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{store: store, sessions: sessions, notifier: notifier, qr: qr, opts: opts}
}

func (e *Engine) lock(userID int64) func() {
	v, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Start registers the user on first contact, resets the dialog and shows the menu.
func (e *Engine) Start(ctx context.Context, u User) Reply {
	defer e.lock(u.ID)()

	acc, created, err := e.store.UpsertAccount(ctx, u.ID, u.Username)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("upsert_account").Inc()
		logger.Warn(ctx, "service.accounts", "account.upsert",
			slog.String("status", "error"),
			slog.Int64("user_id", u.ID),
			slog.String("err", err.Error()),
		)
	} else {
		e.remember(acc)
		if created {
			logger.Info(ctx, "service.accounts", "account.create",
				slog.String("status", "ok"),
				slog.Int64("user_id", u.ID),
				slog.String("public_id", acc.PublicID),
			)
		}
	}
	e.reset(ctx, u.ID)

	name := u.Username
	if name == "" {
		name = "there"
	}
	return Reply{
		Text:     fmt.Sprintf("👋 Welcome, %s!\n\nDeposit and withdraw funds right here. Choose an option below.", name),
		Keyboard: mainMenu(),
	}
}

// Cancel discards the dialog and returns to the menu.
func (e *Engine) Cancel(ctx context.Context, u User) Reply {
	defer e.lock(u.ID)()
	e.reset(ctx, u.ID)
	return Reply{Text: "Cancelled. " + msgMenu, Keyboard: mainMenu()}
}

// Help returns the static help text.
func (e *Engine) Help() Reply {
	return Reply{Text: helpText(e.opts.MinWithdrawal), Keyboard: mainMenu()}
}

// Balance shows the account summary. When the store is unreachable the last
// known figures are shown and marked as possibly stale.
func (e *Engine) Balance(ctx context.Context, u User) Reply {
	defer e.lock(u.ID)()
	return e.balance(ctx, u)
}

func (e *Engine) balance(ctx context.Context, u User) Reply {
	acc, err := e.store.GetAccount(ctx, u.ID)
	if errors.Is(err, domain.ErrNotFound) {
		acc, _, err = e.store.UpsertAccount(ctx, u.ID, u.Username)
	}
	if err == nil {
		e.remember(acc)
		return Reply{Text: balanceText(acc, false), Keyboard: mainMenu()}
	}

	metrics.StoreErrors.WithLabelValues("get_account").Inc()
	logger.Warn(ctx, "service.accounts", "account.balance",
		slog.String("status", "error"),
		slog.Int64("user_id", u.ID),
		slog.String("err", err.Error()),
	)
	if errors.Is(err, domain.ErrStoreUnavailable) {
		if v, ok := e.lastKnown.Load(u.ID); ok {
			return Reply{Text: balanceText(v.(domain.Account), true), Keyboard: mainMenu()}
		}
	}
	return Reply{Text: msgError, Keyboard: mainMenu()}
}

// Callback handles an inline button press.
func (e *Engine) Callback(ctx context.Context, u User, action, payload string) Reply {
	switch action {
	case ActionBalance:
		return e.Balance(ctx, u)
	case ActionHelp:
		return e.Help()
	case ActionCancel:
		return e.Cancel(ctx, u)
	}

	defer e.lock(u.ID)()
	sess, err := e.sessions.Get(ctx, u.ID)
	if err != nil {
		return e.fail(ctx, u, "session_get", err)
	}

	switch action {
	case ActionDeposit:
		sess = state.NewSession()
		sess.State = StepDepositSelectAmount
		if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
			return e.fail(ctx, u, "session_save", err)
		}
		return e.amountPrompt(sess, "💰 Select one or more amounts to deposit, then tap Pay now.", false)

	case ActionWithdraw:
		sess = state.NewSession()
		sess.State = StepWithdrawDestination
		if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
			return e.fail(ctx, u, "session_save", err)
		}
		return e.prompt(sess)

	case ActionToggleAmount:
		if sess.State != StepDepositSelectAmount {
			return expired()
		}
		value, err := strconv.ParseInt(payload, 10, 64)
		if err != nil || !e.isDenomination(value) {
			return e.amountPrompt(sess, "Please pick one of the listed amounts.", true)
		}
		e.toggle(sess, value)
		if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
			return e.fail(ctx, u, "session_save", err)
		}
		return e.amountPrompt(sess, "💰 Select one or more amounts to deposit, then tap Pay now.", true)

	case ActionPayNow:
		if sess.State != StepDepositSelectAmount {
			return expired()
		}
		total := e.total(sess)
		if !total.IsPositive() {
			return e.amountPrompt(sess, "❗ Select at least one amount first.", true)
		}
		sess.State = StepDepositAwaitPayment
		if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
			return e.fail(ctx, u, "session_save", err)
		}
		return e.paymentPrompt(ctx, total)

	case ActionPaymentDone:
		if sess.State != StepDepositAwaitPayment {
			return expired()
		}
		sess.State = StepDepositAwaitProof
		if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
			return e.fail(ctx, u, "session_save", err)
		}
		return e.prompt(sess)

	case ActionConfirmWithdraw:
		if sess.State != StepWithdrawAwaitConfirm {
			return expired()
		}
		return e.submitWithdrawal(ctx, u, sess)
	}

	return expired()
}

// Text handles a free-text message from the user.
func (e *Engine) Text(ctx context.Context, u User, text string) Reply {
	defer e.lock(u.ID)()
	sess, err := e.sessions.Get(ctx, u.ID)
	if err != nil {
		return e.fail(ctx, u, "session_get", err)
	}

	switch sess.State {
	case StepDepositAwaitRef:
		return e.submitDeposit(ctx, u, sess, text)
	case StepWithdrawDestination:
		return e.acceptDestination(ctx, u, sess, text)
	case StepWithdrawAwaitAmount:
		return e.acceptAmount(ctx, u, sess, text)
	}
	return e.prompt(sess)
}

// Photo handles a photo message. Only the largest size's file id is passed in.
func (e *Engine) Photo(ctx context.Context, u User, fileID string) Reply {
	defer e.lock(u.ID)()
	sess, err := e.sessions.Get(ctx, u.ID)
	if err != nil {
		return e.fail(ctx, u, "session_get", err)
	}
	if sess.State != StepDepositAwaitProof || fileID == "" {
		return e.prompt(sess)
	}

	sess.SetTemp(keyProof, fileID)
	sess.State = StepDepositAwaitRef
	if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
		return e.fail(ctx, u, "session_save", err)
	}
	return e.prompt(sess)
}

func (e *Engine) submitDeposit(ctx context.Context, u User, sess *state.Session, text string) Reply {
	ref, err := domain.ValidateReference(text)
	if err != nil {
		return e.invalid(sess, err)
	}

	exists, err := e.store.ReferenceExists(ctx, ref)
	if err != nil {
		return e.fail(ctx, u, "reference_exists", err)
	}
	if exists {
		return e.duplicate(ctx, u, ref)
	}

	total := e.total(sess)
	proof, _ := sess.GetTemp(keyProof)
	if !total.IsPositive() || proof == "" {
		e.reset(ctx, u.ID)
		return expired()
	}

	d := domain.DepositRequest{
		ID:          domain.NewRequestID(),
		UserID:      u.ID,
		Amount:      total,
		Reference:   ref,
		ProofFileID: proof,
		Status:      domain.DepositRequested,
		CreatedAt:   e.opts.Now(),
	}
	if err := e.store.CreateDeposit(ctx, d); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return e.duplicate(ctx, u, ref)
		}
		return e.fail(ctx, u, "create_deposit", err)
	}

	metrics.Deposits.WithLabelValues(string(domain.DepositRequested)).Inc()
	logger.Info(ctx, "service.deposits", "deposit.create",
		slog.String("status", "ok"),
		slog.Int64("user_id", u.ID),
		slog.String("deposit_id", d.ID),
		slog.String("reference", d.Reference),
		slog.String("amount", d.Amount.StringFixed(2)),
	)
	e.notifier.DepositRequested(ctx, d, e.accountFor(ctx, u))
	e.reset(ctx, u.ID)

	return Reply{
		Text: fmt.Sprintf(
			"✅ Deposit request submitted.\n\nAmount: ₹%s\nReference: %s\n\nYou will be notified once the payment is verified.",
			d.Amount.StringFixed(2), d.Reference,
		),
		Keyboard: mainMenu(),
	}
}

func (e *Engine) duplicate(ctx context.Context, u User, ref string) Reply {
	metrics.DuplicateReferences.Inc()
	logger.Info(ctx, "service.deposits", "deposit.create",
		slog.String("status", "rejected"),
		slog.String("outcome", "duplicate"),
		slog.Int64("user_id", u.ID),
		slog.String("reference", ref),
	)
	e.reset(ctx, u.ID)
	return Reply{
		Text:     "❗ This payment reference has already been submitted. Each reference can be used only once.",
		Keyboard: mainMenu(),
	}
}

func (e *Engine) acceptDestination(ctx context.Context, u User, sess *state.Session, text string) Reply {
	handle, err := domain.ValidateHandle(text)
	if err != nil {
		return e.invalid(sess, err)
	}
	sess.SetTemp(keyDestination, handle)
	sess.State = StepWithdrawAwaitAmount
	if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
		return e.fail(ctx, u, "session_save", err)
	}

	r := e.prompt(sess)
	if acc, err := e.store.GetAccount(ctx, u.ID); err == nil {
		e.remember(acc)
		r.Text += fmt.Sprintf("\nYour balance: ₹%s", acc.Balance.StringFixed(2))
	}
	return r
}

func (e *Engine) acceptAmount(ctx context.Context, u User, sess *state.Session, text string) Reply {
	amount, err := domain.ParseAmount(text)
	if err != nil {
		return e.invalid(sess, err)
	}
	acc, err := e.store.GetAccount(ctx, u.ID)
	if err != nil {
		return e.fail(ctx, u, "get_account", err)
	}
	e.remember(acc)
	if err := domain.CheckWithdrawal(amount, e.opts.MinWithdrawal, acc.Balance); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return Reply{
				Text:     fmt.Sprintf("❗ Insufficient balance. Your balance is ₹%s. Enter a smaller amount.", acc.Balance.StringFixed(2)),
				Keyboard: [][]keyboard.InlineBtn{cancelRow()},
			}
		}
		return e.invalid(sess, err)
	}

	sess.SetTemp(keyAmount, amount.StringFixed(2))
	sess.State = StepWithdrawAwaitConfirm
	if err := e.sessions.Save(ctx, u.ID, sess); err != nil {
		return e.fail(ctx, u, "session_save", err)
	}
	return e.prompt(sess)
}

func (e *Engine) submitWithdrawal(ctx context.Context, u User, sess *state.Session) Reply {
	dest, _ := sess.GetTemp(keyDestination)
	raw, _ := sess.GetTemp(keyAmount)
	amount, err := decimal.NewFromString(raw)
	if err != nil || dest == "" {
		e.reset(ctx, u.ID)
		return expired()
	}

	acc, err := e.store.GetAccount(ctx, u.ID)
	if err != nil {
		return e.fail(ctx, u, "get_account", err)
	}
	e.remember(acc)
	if err := domain.CheckWithdrawal(amount, e.opts.MinWithdrawal, acc.Balance); err != nil {
		e.reset(ctx, u.ID)
		reason, ok := domain.Reason(err)
		if !ok {
			reason = fmt.Sprintf("insufficient balance, your balance is ₹%s", acc.Balance.StringFixed(2))
		}
		logger.Info(ctx, "service.withdrawals", "withdrawal.create",
			slog.String("status", "rejected"),
			slog.String("outcome", "invalid"),
			slog.Int64("user_id", u.ID),
			slog.String("amount", amount.StringFixed(2)),
		)
		return Reply{Text: "❗ Withdrawal not submitted: " + reason + ".", Keyboard: mainMenu()}
	}

	w := domain.WithdrawalRequest{
		ID:          domain.NewRequestID(),
		UserID:      u.ID,
		Amount:      amount,
		Destination: dest,
		Status:      domain.WithdrawalRequested,
		CreatedAt:   e.opts.Now(),
	}
	if err := e.store.CreateWithdrawal(ctx, w); err != nil {
		return e.fail(ctx, u, "create_withdrawal", err)
	}

	metrics.Withdrawals.WithLabelValues(string(domain.WithdrawalRequested)).Inc()
	logger.Info(ctx, "service.withdrawals", "withdrawal.create",
		slog.String("status", "ok"),
		slog.Int64("user_id", u.ID),
		slog.String("withdrawal_id", w.ID),
		slog.String("amount", w.Amount.StringFixed(2)),
	)
	if acc.Username == "" {
		acc.Username = u.Username
	}
	e.notifier.WithdrawalRequested(ctx, w, acc)
	e.reset(ctx, u.ID)

	return Reply{
		Text: fmt.Sprintf(
			"✅ Withdrawal request submitted.\n\nAmount: ₹%s\nTo: %s\nRequest: %s\n\nYou will be notified once it is paid out.",
			w.Amount.StringFixed(2), w.Destination, w.ID,
		),
		Keyboard: mainMenu(),
	}
}

// prompt re-asks for whatever the current step expects.
func (e *Engine) prompt(sess *state.Session) Reply {
	switch sess.State {
	case StepDepositSelectAmount:
		return e.amountPrompt(sess, "Please use the buttons to pick amounts, then tap Pay now.", false)
	case StepDepositAwaitPayment:
		return Reply{
			Text: fmt.Sprintf("Pay ₹%s, then tap Payment done.", e.total(sess).StringFixed(2)),
			Keyboard: [][]keyboard.InlineBtn{
				{btn("✅ Payment done", ActionPaymentDone, "")},
				cancelRow(),
			},
		}
	case StepDepositAwaitProof:
		return Reply{
			Text:     "📸 Send a screenshot of the completed payment as a photo.",
			Keyboard: [][]keyboard.InlineBtn{cancelRow()},
		}
	case StepDepositAwaitRef:
		return Reply{
			Text:     "🔢 Now send the 12-18 digit transaction reference (UTR) of the payment.",
			Keyboard: [][]keyboard.InlineBtn{cancelRow()},
		}
	case StepWithdrawDestination:
		return Reply{
			Text:     "💸 Send the UPI ID to withdraw to, e.g. name@bank.",
			Keyboard: [][]keyboard.InlineBtn{cancelRow()},
		}
	case StepWithdrawAwaitAmount:
		return Reply{
			Text:     fmt.Sprintf("Enter the amount to withdraw (minimum ₹%s).", e.opts.MinWithdrawal.StringFixed(2)),
			Keyboard: [][]keyboard.InlineBtn{cancelRow()},
		}
	case StepWithdrawAwaitConfirm:
		dest, _ := sess.GetTemp(keyDestination)
		amount, _ := sess.GetTemp(keyAmount)
		return Reply{
			Text: fmt.Sprintf("Please confirm the withdrawal.\n\nAmount: ₹%s\nTo: %s", amount, dest),
			Keyboard: [][]keyboard.InlineBtn{
				{btn("✅ Confirm", ActionConfirmWithdraw, "")},
				cancelRow(),
			},
		}
	}
	return Reply{Text: msgMenu, Keyboard: mainMenu()}
}

func (e *Engine) invalid(sess *state.Session, err error) Reply {
	reason, ok := domain.Reason(err)
	if !ok || reason == "" {
		reason = "invalid input"
	}
	r := e.prompt(sess)
	r.Text = "❗ " + strings.ToUpper(reason[:1]) + reason[1:] + ".\n\n" + r.Text
	return r
}

func (e *Engine) fail(ctx context.Context, u User, op string, err error) Reply {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	logger.Error(ctx, "app", "conversation.error",
		slog.String("status", "error"),
		slog.String("op", op),
		slog.Int64("user_id", u.ID),
		slog.String("err", err.Error()),
	)
	e.reset(ctx, u.ID)
	return Reply{Text: msgError, Keyboard: mainMenu()}
}

func (e *Engine) reset(ctx context.Context, userID int64) {
	if err := e.sessions.Clear(ctx, userID); err != nil {
		logger.Warn(ctx, "app", "session.clear",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) paymentPrompt(ctx context.Context, total decimal.Decimal) Reply {
	kb := [][]keyboard.InlineBtn{
		{btn("✅ Payment done", ActionPaymentDone, "")},
		cancelRow(),
	}
	text := fmt.Sprintf("💳 Pay ₹%s", total.StringFixed(2))
	if e.opts.Payee != "" {
		text += " to " + e.opts.Payee
	}
	text += ".\n\nAfter paying, tap Payment done and send the screenshot."

	if e.qr == nil {
		return Reply{Text: text, Keyboard: kb}
	}
	png, err := e.qr.PNG(total)
	if err != nil {
		logger.Warn(ctx, "service.deposits", "deposit.qr",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
		return Reply{Text: text, Keyboard: kb}
	}
	return Reply{Text: "Scan the QR code with any UPI app.\n" + text, Photo: png, Keyboard: kb}
}

func (e *Engine) amountPrompt(sess *state.Session, header string, edit bool) Reply {
	selected := selectedAmounts(sess)
	buttons := make([]keyboard.InlineBtn, 0, len(e.opts.Denominations))
	for _, d := range e.opts.Denominations {
		label := fmt.Sprintf("₹%d", d)
		if selected[d] {
			label = "✅ " + label
		}
		buttons = append(buttons, btn(label, ActionToggleAmount, strconv.FormatInt(d, 10)))
	}
	rows := keyboard.Chunk(buttons, 3)
	total := e.total(sess)
	rows = append(rows,
		[]keyboard.InlineBtn{btn(fmt.Sprintf("💳 Pay now (₹%s)", total.StringFixed(2)), ActionPayNow, "")},
		cancelRow(),
	)
	return Reply{
		Text:     fmt.Sprintf("%s\n\nSelected total: ₹%s", header, total.StringFixed(2)),
		Keyboard: rows,
		Edit:     edit,
	}
}

func (e *Engine) isDenomination(v int64) bool {
	for _, d := range e.opts.Denominations {
		if d == v {
			return true
		}
	}
	return false
}

func (e *Engine) toggle(sess *state.Session, v int64) {
	selected := selectedAmounts(sess)
	if selected[v] {
		delete(selected, v)
	} else {
		selected[v] = true
	}
	values := make([]int64, 0, len(selected))
	for k := range selected {
		values = append(values, k)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	parts := make([]string, len(values))
	for i, k := range values {
		parts[i] = strconv.FormatInt(k, 10)
	}
	sess.SetTemp(keyAmounts, strings.Join(parts, ","))
}

// total sums the selected denominations. Unknown values are ignored.
func (e *Engine) total(sess *state.Session) decimal.Decimal {
	sum := decimal.Zero
	for v := range selectedAmounts(sess) {
		if e.isDenomination(v) {
			sum = sum.Add(decimal.NewFromInt(v))
		}
	}
	return sum
}

func (e *Engine) remember(acc domain.Account) {
	e.lastKnown.Store(acc.UserID, acc)
}

func (e *Engine) accountFor(ctx context.Context, u User) domain.Account {
	acc, err := e.store.GetAccount(ctx, u.ID)
	if err != nil {
		return domain.Account{UserID: u.ID, Username: u.Username}
	}
	return acc
}

func selectedAmounts(sess *state.Session) map[int64]bool {
	out := make(map[int64]bool)
	raw, _ := sess.GetTemp(keyAmounts)
	for _, part := range strings.Split(raw, ",") {
		if v, err := strconv.ParseInt(part, 10, 64); err == nil {
			out[v] = true
		}
	}
	return out
}

func expired() Reply {
	return Reply{Text: msgExpired, Keyboard: mainMenu()}
}

func balanceText(acc domain.Account, stale bool) string {
	var b strings.Builder
	b.WriteString("📊 Your account\n\n")
	if acc.PublicID != "" {
		fmt.Fprintf(&b, "ID: %s\n", acc.PublicID)
	}
	fmt.Fprintf(&b, "Balance: ₹%s\n", acc.Balance.StringFixed(2))
	fmt.Fprintf(&b, "Total deposits: ₹%s\n", acc.TotalDeposits.StringFixed(2))
	fmt.Fprintf(&b, "Total withdrawals: ₹%s", acc.TotalWithdrawals.StringFixed(2))
	if stale {
		b.WriteString("\n\n⚠️ Figures may be out of date, the service is temporarily unavailable.")
	}
	return b.String()
}

func helpText(minWithdrawal decimal.Decimal) string {
	return fmt.Sprintf(`❓ How it works

Deposit: pick amounts, pay with UPI, tap Payment done, send the payment screenshot and then the 12-18 digit transaction reference (UTR). Your balance is credited once an operator verifies the payment.

Withdraw: send your UPI ID and the amount (minimum ₹%s). An operator pays it out and your balance is debited when it is done.

Commands:
/start - main menu
/balance - show your balance
/cancel - cancel the current action
/help - this message`, minWithdrawal.StringFixed(2))
}
