// Package ledger applies operator decisions to deposits and withdrawals and
// moves balances with them. Each transition is conditional on the request
// still being open; notifications follow the durable write.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/paydesk/core/logger"
	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/metrics"
	"github.com/m3rciful/paydesk/internal/notify"
)

// Store is the persistence the ledger needs.
type Store interface {
	ConfirmDeposit(ctx context.Context, reference string, now time.Time) (domain.DepositRequest, domain.Account, error)
	CancelDeposit(ctx context.Context, id string, now time.Time) (domain.DepositRequest, error)
	MarkWithdrawalProcessing(ctx context.Context, id string) (domain.WithdrawalRequest, error)
	CompleteWithdrawal(ctx context.Context, id string, now time.Time) (domain.WithdrawalRequest, domain.Account, error)
	RejectWithdrawal(ctx context.Context, id string, now time.Time) (domain.WithdrawalRequest, error)
}

// Service runs operator transitions.
type Service struct {
	store    Store
	notifier notify.Notifier
	now      func() time.Time
}

// New builds a Service. now may be nil to use the wall clock.
func New(store Store, notifier notify.Notifier, now func() time.Time) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, notifier: notifier, now: now}
}

// ConfirmDeposit completes the open deposit with reference and credits its
// owner. Returns domain.ErrNotFound when no open deposit matches.
func (s *Service) ConfirmDeposit(ctx context.Context, reference string) (domain.DepositRequest, domain.Account, error) {
	ref, err := domain.ValidateReference(reference)
	if err != nil {
		return domain.DepositRequest{}, domain.Account{}, err
	}
	d, acc, err := s.store.ConfirmDeposit(ctx, ref, s.now())
	if err != nil {
		s.logFailure(ctx, "service.deposits", "deposit.confirm", err, slog.String("reference", ref))
		return domain.DepositRequest{}, domain.Account{}, err
	}

	metrics.Deposits.WithLabelValues(string(domain.DepositCompleted)).Inc()
	logger.Info(ctx, "service.deposits", "deposit.confirm",
		slog.String("status", "ok"),
		slog.String("deposit_id", d.ID),
		slog.String("reference", d.Reference),
		slog.Int64("user_id", d.UserID),
		slog.String("amount", d.Amount.StringFixed(2)),
	)
	s.notifier.DepositCompleted(ctx, d, acc)
	return d, acc, nil
}

// CancelDeposit cancels an open deposit without touching the balance.
func (s *Service) CancelDeposit(ctx context.Context, id string) (domain.DepositRequest, error) {
	d, err := s.store.CancelDeposit(ctx, id, s.now())
	if err != nil {
		s.logFailure(ctx, "service.deposits", "deposit.cancel", err, slog.String("deposit_id", id))
		return domain.DepositRequest{}, err
	}

	metrics.Deposits.WithLabelValues(string(domain.DepositCancelled)).Inc()
	logger.Info(ctx, "service.deposits", "deposit.cancel",
		slog.String("status", "ok"),
		slog.String("deposit_id", d.ID),
		slog.Int64("user_id", d.UserID),
	)
	s.notifier.DepositCancelled(ctx, d)
	return d, nil
}

// ProcessWithdrawal marks a requested withdrawal as being paid out.
func (s *Service) ProcessWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error) {
	w, err := s.store.MarkWithdrawalProcessing(ctx, id)
	if err != nil {
		s.logFailure(ctx, "service.withdrawals", "withdrawal.process", err, slog.String("withdrawal_id", id))
		return domain.WithdrawalRequest{}, err
	}

	metrics.Withdrawals.WithLabelValues(string(domain.WithdrawalProcessing)).Inc()
	logger.Info(ctx, "service.withdrawals", "withdrawal.process",
		slog.String("status", "ok"),
		slog.String("withdrawal_id", w.ID),
		slog.Int64("user_id", w.UserID),
	)
	s.notifier.WithdrawalProcessing(ctx, w)
	return w, nil
}

// CompleteWithdrawal completes an open withdrawal and debits its owner.
// Fails with domain.ErrInsufficientBalance, leaving everything unchanged,
// when the debit would overdraw the account.
func (s *Service) CompleteWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, domain.Account, error) {
	w, acc, err := s.store.CompleteWithdrawal(ctx, id, s.now())
	if err != nil {
		s.logFailure(ctx, "service.withdrawals", "withdrawal.complete", err, slog.String("withdrawal_id", id))
		return domain.WithdrawalRequest{}, domain.Account{}, err
	}

	metrics.Withdrawals.WithLabelValues(string(domain.WithdrawalCompleted)).Inc()
	logger.Info(ctx, "service.withdrawals", "withdrawal.complete",
		slog.String("status", "ok"),
		slog.String("withdrawal_id", w.ID),
		slog.Int64("user_id", w.UserID),
		slog.String("amount", w.Amount.StringFixed(2)),
	)
	s.notifier.WithdrawalCompleted(ctx, w, acc)
	return w, acc, nil
}

// RejectWithdrawal rejects an open withdrawal without touching the balance.
func (s *Service) RejectWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error) {
	w, err := s.store.RejectWithdrawal(ctx, id, s.now())
	if err != nil {
		s.logFailure(ctx, "service.withdrawals", "withdrawal.reject", err, slog.String("withdrawal_id", id))
		return domain.WithdrawalRequest{}, err
	}

	metrics.Withdrawals.WithLabelValues(string(domain.WithdrawalRejected)).Inc()
	logger.Info(ctx, "service.withdrawals", "withdrawal.reject",
		slog.String("status", "ok"),
		slog.String("withdrawal_id", w.ID),
		slog.Int64("user_id", w.UserID),
	)
	s.notifier.WithdrawalRejected(ctx, w)
	return w, nil
}

func (s *Service) logFailure(ctx context.Context, component, event string, err error, attrs ...slog.Attr) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Info(ctx, component, event, append(attrs,
			slog.String("status", "not_found"),
			slog.String("outcome", "not_found"),
		)...)
	case errors.Is(err, domain.ErrInsufficientBalance):
		logger.Warn(ctx, component, event, append(attrs,
			slog.String("status", "rejected"),
			slog.String("err", err.Error()),
		)...)
	default:
		metrics.StoreErrors.WithLabelValues(event).Inc()
		logger.Error(ctx, component, event, append(attrs,
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)...)
	}
}
