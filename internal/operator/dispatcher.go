package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/paydesk/core/logger"
	"github.com/m3rciful/paydesk/internal/domain"
)

// Ledger applies operator transitions; *ledger.Service satisfies it.
type Ledger interface {
	ConfirmDeposit(ctx context.Context, reference string) (domain.DepositRequest, domain.Account, error)
	CancelDeposit(ctx context.Context, id string) (domain.DepositRequest, error)
	ProcessWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error)
	CompleteWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, domain.Account, error)
	RejectWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error)
}

// Lister reads open requests for /pending.
type Lister interface {
	ListDepositsByStatus(ctx context.Context, statuses ...domain.DepositStatus) ([]domain.DepositRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, statuses ...domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error)
}

// maxListed caps each section of the /pending listing.
const maxListed = 20

// Dispatcher executes operator commands sent by the admin.
type Dispatcher struct {
	adminID int64
	ledger  Ledger
	lister  Lister
}

// New builds a Dispatcher. lister may be nil, which disables /pending.
func New(adminID int64, ledger Ledger, lister Lister) *Dispatcher {
	return &Dispatcher{adminID: adminID, ledger: ledger, lister: lister}
}

// IsAdmin reports whether userID is the configured operator.
func (d *Dispatcher) IsAdmin(userID int64) bool {
	return d.adminID != 0 && userID == d.adminID
}

// Handle runs text as an operator command. handled is false when the sender
// is not the admin or the text is not a command, so the caller can route it
// elsewhere.
func (d *Dispatcher) Handle(ctx context.Context, senderID int64, text string) (reply string, handled bool) {
	if !d.IsAdmin(senderID) {
		return "", false
	}
	cmd, ok := Parse(text)
	if !ok {
		return "", false
	}
	if cmd.Verb == VerbPending {
		return d.pending(ctx), true
	}
	if cmd.Arg == "" {
		return "Usage: " + cmd.Verb.usage(), true
	}

	logger.Info(ctx, "operator", "command.received",
		slog.String("verb", string(cmd.Verb)),
		slog.String("arg", logger.SanitizeLimit(cmd.Arg, 64)),
	)
	return d.run(ctx, cmd), true
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) string {
	switch cmd.Verb {
	case VerbConfirm:
		dep, acc, err := d.ledger.ConfirmDeposit(ctx, cmd.Arg)
		if err != nil {
			return failure(fmt.Sprintf("Deposit with reference %s", cmd.Arg), err)
		}
		return fmt.Sprintf("✅ Deposit %s confirmed: %s credited to user %d. Balance: %s",
			dep.Reference, rupees(dep.Amount.StringFixed(2)), dep.UserID, rupees(acc.Balance.StringFixed(2)))

	case VerbCancelDeposit:
		dep, err := d.ledger.CancelDeposit(ctx, cmd.Arg)
		if err != nil {
			return failure("Deposit "+cmd.Arg, err)
		}
		return fmt.Sprintf("🚫 Deposit %s (reference %s) cancelled.", dep.ID, dep.Reference)

	case VerbProcess:
		w, err := d.ledger.ProcessWithdrawal(ctx, cmd.Arg)
		if err != nil {
			return failure("Withdrawal "+cmd.Arg, err)
		}
		return fmt.Sprintf("⏳ Withdrawal %s marked as processing.", w.ID)

	case VerbDone:
		w, acc, err := d.ledger.CompleteWithdrawal(ctx, cmd.Arg)
		if err != nil {
			return failure("Withdrawal "+cmd.Arg, err)
		}
		return fmt.Sprintf("✅ Withdrawal %s completed: %s debited from user %d. Balance: %s",
			w.ID, rupees(w.Amount.StringFixed(2)), w.UserID, rupees(acc.Balance.StringFixed(2)))

	case VerbReject:
		w, err := d.ledger.RejectWithdrawal(ctx, cmd.Arg)
		if err != nil {
			return failure("Withdrawal "+cmd.Arg, err)
		}
		return fmt.Sprintf("🚫 Withdrawal %s rejected.", w.ID)
	}
	return "Unknown command."
}

func failure(subject string, err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return subject + " not found or already processed."
	case errors.Is(err, domain.ErrInsufficientBalance):
		return subject + " not completed: insufficient balance."
	}
	if reason, ok := domain.Reason(err); ok {
		return "Invalid input: " + reason
	}
	return "An error occurred, please try again."
}

func (d *Dispatcher) pending(ctx context.Context) string {
	if d.lister == nil {
		return "Listing is not available."
	}
	deposits, err := d.lister.ListDepositsByStatus(ctx, domain.OpenDepositStatuses...)
	if err != nil {
		logger.Error(ctx, "operator", "pending.list", slog.String("kind", "deposits"), slog.String("err", err.Error()))
		return "An error occurred, please try again."
	}
	withdrawals, err := d.lister.ListWithdrawalsByStatus(ctx, domain.OpenWithdrawalStatuses...)
	if err != nil {
		logger.Error(ctx, "operator", "pending.list", slog.String("kind", "withdrawals"), slog.String("err", err.Error()))
		return "An error occurred, please try again."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Open deposits: %d\n", len(deposits))
	for i, dep := range deposits {
		if i == maxListed {
			fmt.Fprintf(&b, "… and %d more\n", len(deposits)-maxListed)
			break
		}
		fmt.Fprintf(&b, "• %s %s ref %s user %d [%s]\n",
			dep.ID, rupees(dep.Amount.StringFixed(2)), dep.Reference, dep.UserID, dep.Status)
	}
	fmt.Fprintf(&b, "\nOpen withdrawals: %d\n", len(withdrawals))
	for i, w := range withdrawals {
		if i == maxListed {
			fmt.Fprintf(&b, "… and %d more\n", len(withdrawals)-maxListed)
			break
		}
		fmt.Fprintf(&b, "• %s %s to %s user %d [%s]\n",
			w.ID, rupees(w.Amount.StringFixed(2)), w.Destination, w.UserID, w.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func rupees(s string) string {
	return "₹" + s
}
