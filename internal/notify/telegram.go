package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
	"github.com/m3rciful/paydesk/core/telegram/format"
	"github.com/m3rciful/paydesk/internal/domain"
)

// Bot is the subset of *tele.Bot used for delivery.
type Bot interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
}

// Queue schedules outbound calls; *sender.Dispatcher satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func() error) error
}

var _ Notifier = (*Telegram)(nil)

// Telegram posts events to operator chats and users through the outbound queue.
// It drops events until Attach is called with a live bot.
type Telegram struct {
	channels Channels
	recorder MessageRecorder

	mu    sync.RWMutex
	bot   Bot
	queue Queue
}

// NewTelegram builds a notifier for the given operator channels.
func NewTelegram(channels Channels, recorder MessageRecorder) *Telegram {
	return &Telegram{channels: channels, recorder: recorder}
}

// Attach wires the running bot and dispatcher.
func (t *Telegram) Attach(bot Bot, queue Queue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bot = bot
	t.queue = queue
}

func (t *Telegram) transport() (Bot, Queue) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bot, t.queue
}

var mdOpts = &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}

func (t *Telegram) enqueue(ctx context.Context, action string, run func(Bot) error) {
	bot, queue := t.transport()
	if bot == nil || queue == nil {
		logger.Warn(ctx, "tg.sender", "notify.dropped",
			slog.String("action", action),
			slog.String("reason", "not_attached"),
		)
		return
	}
	if err := queue.Enqueue(ctx, action, "notify", func() error { return run(bot) }); err != nil {
		logger.Error(ctx, "tg.sender", "notify.enqueue",
			slog.String("action", action),
			slog.String("err", fmt.Errorf("%w: %w", domain.ErrDeliveryFailure, err).Error()),
		)
	}
}

func (t *Telegram) post(ctx context.Context, action string, chatID int64, what interface{}, onSent func(domain.MessageRef)) {
	if chatID == 0 {
		return
	}
	t.enqueue(ctx, action, func(bot Bot) error {
		msg, err := bot.Send(tele.ChatID(chatID), what, mdOpts)
		if err != nil {
			return err
		}
		if onSent != nil && msg != nil {
			onSent(domain.MessageRef{ChatID: chatID, MessageID: msg.ID})
		}
		return nil
	})
}

func (t *Telegram) toUser(ctx context.Context, action string, userID int64, text string) {
	t.post(ctx, action, userID, text, nil)
}

func (t *Telegram) edit(ctx context.Context, action string, ref *domain.MessageRef, text string, caption bool) {
	if ref == nil {
		return
	}
	stored := tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
	t.enqueue(ctx, action, func(bot Bot) error {
		var err error
		if caption {
			_, err = bot.EditCaption(stored, text, mdOpts)
		} else {
			_, err = bot.Edit(stored, text, mdOpts)
		}
		return err
	})
}

// DepositRequested posts the proof photo and confirm command to operators.
func (t *Telegram) DepositRequested(ctx context.Context, d domain.DepositRequest, user domain.Account) {
	text := format.Lines(
		format.Bold(format.V2("New deposit request")),
		userLine(user),
		depositLines(d),
		"",
		format.V2("Confirm with: ")+format.Code("CONFIRM "+d.Reference),
		format.V2("Cancel with: ")+format.Code("/cancel_deposit "+d.ID),
	)
	var what interface{} = text
	if d.ProofFileID != "" {
		what = &tele.Photo{File: tele.File{FileID: d.ProofFileID}, Caption: text}
	}
	t.post(ctx, "deposit.requested", t.channels.DepositRequested, what, func(ref domain.MessageRef) {
		t.record(ctx, ref, func(rctx context.Context) error {
			return t.recorder.SetDepositOperatorMessage(rctx, d.ID, ref)
		})
	})
}

// DepositPending tells operators a deposit outlived the request timeout.
func (t *Telegram) DepositPending(ctx context.Context, d domain.DepositRequest) {
	text := format.Lines(
		format.Bold(format.V2("Deposit pending confirmation")),
		depositLines(d),
		format.V2("Confirm with: ")+format.Code("CONFIRM "+d.Reference),
	)
	t.post(ctx, "deposit.pending", t.channels.DepositPending, text, nil)
}

// DepositReminder nudges operators about a still-pending deposit.
func (t *Telegram) DepositReminder(ctx context.Context, d domain.DepositRequest, n int) {
	text := format.Lines(
		format.Bold(format.V2(fmt.Sprintf("Reminder #%d: deposit still pending", n))),
		depositLines(d),
		format.V2("Confirm with: ")+format.Code("CONFIRM "+d.Reference),
	)
	t.post(ctx, "deposit.reminder", t.channels.DepositPending, text, nil)
}

// DepositAutoCancelled informs operators and the user of an expired deposit.
func (t *Telegram) DepositAutoCancelled(ctx context.Context, d domain.DepositRequest) {
	text := format.Lines(
		format.Bold(format.V2("Deposit auto-cancelled")),
		depositLines(d),
	)
	t.post(ctx, "deposit.auto_cancelled", t.channels.DepositPending, text, nil)
	t.edit(ctx, "deposit.edit", d.OperatorMessage, statusCaption(d, "❌ Auto-cancelled"), true)
	t.toUser(ctx, "deposit.user.auto_cancelled", d.UserID, format.V2(fmt.Sprintf(
		"Your deposit of %s (reference %s) was cancelled because it could not be verified in time. If you paid, contact support with the reference.",
		rupees(d.Amount), d.Reference,
	)))
}

// DepositCompleted announces a confirmed deposit and the credited balance.
func (t *Telegram) DepositCompleted(ctx context.Context, d domain.DepositRequest, acc domain.Account) {
	text := format.Lines(
		format.Bold(format.V2("Deposit confirmed")),
		depositLines(d),
		format.V2("New balance: "+rupees(acc.Balance)),
	)
	t.post(ctx, "deposit.completed", t.channels.DepositCompleted, text, nil)
	t.edit(ctx, "deposit.edit", d.OperatorMessage, statusCaption(d, "✅ Confirmed"), true)
	t.toUser(ctx, "deposit.user.completed", d.UserID, format.V2(fmt.Sprintf(
		"✅ Your deposit of %s has been confirmed. Balance: %s",
		rupees(d.Amount), rupees(acc.Balance),
	)))
}

// DepositCancelled informs the user an operator cancelled the deposit.
func (t *Telegram) DepositCancelled(ctx context.Context, d domain.DepositRequest) {
	t.edit(ctx, "deposit.edit", d.OperatorMessage, statusCaption(d, "🚫 Cancelled by operator"), true)
	t.toUser(ctx, "deposit.user.cancelled", d.UserID, format.V2(fmt.Sprintf(
		"Your deposit of %s (reference %s) was cancelled by the operator.",
		rupees(d.Amount), d.Reference,
	)))
}

// WithdrawalRequested posts the payout instructions to operators.
func (t *Telegram) WithdrawalRequested(ctx context.Context, w domain.WithdrawalRequest, user domain.Account) {
	text := format.Lines(
		format.Bold(format.V2("New withdrawal request")),
		userLine(user),
		withdrawalLines(w),
		"",
		format.V2("Pay out, then send: ")+format.Code("DONE "+w.ID),
		format.V2("Mark in progress: ")+format.Code("/process "+w.ID),
		format.V2("Reject with: ")+format.Code("/reject "+w.ID),
	)
	t.post(ctx, "withdrawal.requested", t.channels.WithdrawalRequested, text, func(ref domain.MessageRef) {
		t.record(ctx, ref, func(rctx context.Context) error {
			return t.recorder.SetWithdrawalOperatorMessage(rctx, w.ID, ref)
		})
	})
}

// WithdrawalProcessing tells the user the payout is underway.
func (t *Telegram) WithdrawalProcessing(ctx context.Context, w domain.WithdrawalRequest) {
	t.edit(ctx, "withdrawal.edit", w.OperatorMessage, statusText(w, "⏳ Processing"), false)
	t.toUser(ctx, "withdrawal.user.processing", w.UserID, format.V2(fmt.Sprintf(
		"Your withdrawal of %s to %s is being processed.",
		rupees(w.Amount), w.Destination,
	)))
}

// WithdrawalCompleted announces a paid-out withdrawal and the debited balance.
func (t *Telegram) WithdrawalCompleted(ctx context.Context, w domain.WithdrawalRequest, acc domain.Account) {
	text := format.Lines(
		format.Bold(format.V2("Withdrawal completed")),
		withdrawalLines(w),
		format.V2("Remaining balance: "+rupees(acc.Balance)),
	)
	t.post(ctx, "withdrawal.completed", t.channels.WithdrawalCompleted, text, nil)
	t.edit(ctx, "withdrawal.edit", w.OperatorMessage, statusText(w, "✅ Completed"), false)
	t.toUser(ctx, "withdrawal.user.completed", w.UserID, format.V2(fmt.Sprintf(
		"✅ %s has been sent to %s. Balance: %s",
		rupees(w.Amount), w.Destination, rupees(acc.Balance),
	)))
}

// WithdrawalRejected tells the user the request was declined.
func (t *Telegram) WithdrawalRejected(ctx context.Context, w domain.WithdrawalRequest) {
	t.edit(ctx, "withdrawal.edit", w.OperatorMessage, statusText(w, "🚫 Rejected"), false)
	t.toUser(ctx, "withdrawal.user.rejected", w.UserID, format.V2(fmt.Sprintf(
		"Your withdrawal of %s to %s was rejected. Your balance was not changed.",
		rupees(w.Amount), w.Destination,
	)))
}

func (t *Telegram) record(ctx context.Context, ref domain.MessageRef, save func(context.Context) error) {
	if t.recorder == nil {
		return
	}
	if err := save(ctx); err != nil {
		logger.Warn(ctx, "tg.sender", "notify.record",
			slog.Int64("chat_id", ref.ChatID),
			slog.Int("message_id", ref.MessageID),
			slog.String("err", err.Error()),
		)
	}
}

func rupees(d decimal.Decimal) string {
	return "₹" + d.StringFixed(2)
}

func userLine(acc domain.Account) string {
	name := acc.Username
	if name == "" {
		name = "no username"
	} else {
		name = "@" + name
	}
	return format.V2(fmt.Sprintf("User: %s (id %d, public %s)", name, acc.UserID, acc.PublicID))
}

func depositLines(d domain.DepositRequest) string {
	return format.Lines(
		format.V2("Amount: "+rupees(d.Amount)),
		format.V2("Reference: ")+format.Code(d.Reference),
		format.V2(fmt.Sprintf("User id: %d", d.UserID)),
		format.V2("Request: ")+format.Code(d.ID),
	)
}

func withdrawalLines(w domain.WithdrawalRequest) string {
	return format.Lines(
		format.V2("Amount: "+rupees(w.Amount)),
		format.V2("Destination: ")+format.Code(w.Destination),
		format.V2(fmt.Sprintf("User id: %d", w.UserID)),
		format.V2("Request: ")+format.Code(w.ID),
	)
}

func statusCaption(d domain.DepositRequest, status string) string {
	return format.Lines(depositLines(d), "", format.Bold(format.V2(status)))
}

func statusText(w domain.WithdrawalRequest, status string) string {
	return format.Lines(withdrawalLines(w), "", format.Bold(format.V2(status)))
}
