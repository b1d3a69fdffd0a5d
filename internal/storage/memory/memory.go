// Package memory is a mutex-guarded Store used in development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps all records in process memory.
type Store struct {
	mu          sync.Mutex
	accounts    map[int64]*domain.Account
	deposits    map[string]*domain.DepositRequest
	byReference map[string]string
	withdrawals map[string]*domain.WithdrawalRequest
	now         func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:    make(map[int64]*domain.Account),
		deposits:    make(map[string]*domain.DepositRequest),
		byReference: make(map[string]string),
		withdrawals: make(map[string]*domain.WithdrawalRequest),
		now:         time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// UpsertAccount implements storage.AccountStore.
func (s *Store) UpsertAccount(_ context.Context, userID int64, username string) (domain.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[userID]; ok {
		acc.Username = username
		return *acc, false, nil
	}
	acc := &domain.Account{
		UserID:    userID,
		Username:  username,
		PublicID:  domain.NewPublicID(),
		CreatedAt: s.now(),
	}
	s.accounts[userID] = acc
	return *acc, true, nil
}

// GetAccount implements storage.AccountStore.
func (s *Store) GetAccount(_ context.Context, userID int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return *acc, nil
}

// ReferenceExists implements storage.DepositStore.
func (s *Store) ReferenceExists(_ context.Context, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byReference[reference]
	return ok, nil
}

// CreateDeposit implements storage.DepositStore.
func (s *Store) CreateDeposit(_ context.Context, d domain.DepositRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byReference[d.Reference]; ok {
		return domain.ErrDuplicateReference
	}
	cp := d
	s.deposits[d.ID] = &cp
	s.byReference[d.Reference] = d.ID
	return nil
}

// GetDepositByReference implements storage.DepositStore.
func (s *Store) GetDepositByReference(_ context.Context, reference string) (domain.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReference[reference]
	if !ok {
		return domain.DepositRequest{}, domain.ErrNotFound
	}
	return *s.deposits[id], nil
}

// SetDepositOperatorMessage implements storage.DepositStore.
func (s *Store) SetDepositOperatorMessage(_ context.Context, id string, ref domain.MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.OperatorMessage = &ref
	return nil
}

// ListDepositsByStatus implements storage.DepositStore. Results are ordered by creation time.
func (s *Store) ListDepositsByStatus(_ context.Context, statuses ...domain.DepositStatus) ([]domain.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.DepositRequest
	for _, d := range s.deposits {
		if containsStatus(statuses, d.Status) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkDepositPending implements storage.DepositStore.
func (s *Store) MarkDepositPending(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok || d.Status != domain.DepositRequested {
		return false, nil
	}
	d.Status = domain.DepositPending
	d.LastReminderAt = &now
	return true, nil
}

// RecordDepositReminder implements storage.DepositStore.
func (s *Store) RecordDepositReminder(_ context.Context, id string, expected int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok || d.Status != domain.DepositPending || d.ReminderCount != expected {
		return false, nil
	}
	d.ReminderCount++
	d.LastReminderAt = &now
	return true, nil
}

// AutoCancelDeposit implements storage.DepositStore.
func (s *Store) AutoCancelDeposit(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok || d.Status != domain.DepositPending {
		return false, nil
	}
	d.Status = domain.DepositAutoCancelled
	d.CompletedAt = &now
	return true, nil
}

// ConfirmDeposit implements storage.DepositStore.
func (s *Store) ConfirmDeposit(_ context.Context, reference string, now time.Time) (domain.DepositRequest, domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReference[reference]
	if !ok {
		return domain.DepositRequest{}, domain.Account{}, domain.ErrNotFound
	}
	d := s.deposits[id]
	if d.Status.Terminal() {
		return domain.DepositRequest{}, domain.Account{}, domain.ErrNotFound
	}
	acc, ok := s.accounts[d.UserID]
	if !ok {
		return domain.DepositRequest{}, domain.Account{}, domain.ErrNotFound
	}

	d.Status = domain.DepositCompleted
	d.CompletedAt = &now
	acc.Balance = acc.Balance.Add(d.Amount)
	acc.TotalDeposits = acc.TotalDeposits.Add(d.Amount)
	return *d, *acc, nil
}

// CancelDeposit implements storage.DepositStore.
func (s *Store) CancelDeposit(_ context.Context, id string, now time.Time) (domain.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok || d.Status.Terminal() {
		return domain.DepositRequest{}, domain.ErrNotFound
	}
	d.Status = domain.DepositCancelled
	d.CompletedAt = &now
	return *d, nil
}

// CreateWithdrawal implements storage.WithdrawalStore.
func (s *Store) CreateWithdrawal(_ context.Context, w domain.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := w
	s.withdrawals[w.ID] = &cp
	return nil
}

// GetWithdrawal implements storage.WithdrawalStore.
func (s *Store) GetWithdrawal(_ context.Context, id string) (domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return domain.WithdrawalRequest{}, domain.ErrNotFound
	}
	return *w, nil
}

// SetWithdrawalOperatorMessage implements storage.WithdrawalStore.
func (s *Store) SetWithdrawalOperatorMessage(_ context.Context, id string, ref domain.MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return domain.ErrNotFound
	}
	w.OperatorMessage = &ref
	return nil
}

// ListWithdrawalsByStatus implements storage.WithdrawalStore.
func (s *Store) ListWithdrawalsByStatus(_ context.Context, statuses ...domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.WithdrawalRequest
	for _, w := range s.withdrawals {
		for _, st := range statuses {
			if w.Status == st {
				out = append(out, *w)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkWithdrawalProcessing implements storage.WithdrawalStore.
func (s *Store) MarkWithdrawalProcessing(_ context.Context, id string) (domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok || w.Status != domain.WithdrawalRequested {
		return domain.WithdrawalRequest{}, domain.ErrNotFound
	}
	w.Status = domain.WithdrawalProcessing
	return *w, nil
}

// CompleteWithdrawal implements storage.WithdrawalStore.
func (s *Store) CompleteWithdrawal(_ context.Context, id string, now time.Time) (domain.WithdrawalRequest, domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok || w.Status.Terminal() {
		return domain.WithdrawalRequest{}, domain.Account{}, domain.ErrNotFound
	}
	acc, ok := s.accounts[w.UserID]
	if !ok {
		return domain.WithdrawalRequest{}, domain.Account{}, domain.ErrNotFound
	}
	if acc.Balance.LessThan(w.Amount) {
		return domain.WithdrawalRequest{}, domain.Account{}, domain.ErrInsufficientBalance
	}

	w.Status = domain.WithdrawalCompleted
	w.CompletedAt = &now
	acc.Balance = acc.Balance.Sub(w.Amount)
	acc.TotalWithdrawals = acc.TotalWithdrawals.Add(w.Amount)
	return *w, *acc, nil
}

// RejectWithdrawal implements storage.WithdrawalStore.
func (s *Store) RejectWithdrawal(_ context.Context, id string, now time.Time) (domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok || w.Status.Terminal() {
		return domain.WithdrawalRequest{}, domain.ErrNotFound
	}
	w.Status = domain.WithdrawalRejected
	w.CompletedAt = &now
	return *w, nil
}

func containsStatus(statuses []domain.DepositStatus, st domain.DepositStatus) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
