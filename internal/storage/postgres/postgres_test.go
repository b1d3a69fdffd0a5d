package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/paydesk/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, domain.ErrNotFound},
		{"bad conn", driver.ErrBadConn, domain.ErrStoreUnavailable},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), domain.ErrStoreUnavailable},
		{"connection exception", &pq.Error{Code: "08006"}, domain.ErrStoreUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, domain.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify("op", tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}

	syntax := classify("op", &pq.Error{Code: "42601"})
	if errors.Is(syntax, domain.ErrStoreUnavailable) || errors.Is(syntax, domain.ErrNotFound) {
		t.Fatalf("syntax error misclassified: %v", syntax)
	}
	if classify("op", nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: referenceConstraint})
	if !isUniqueViolation(err, referenceConstraint) {
		t.Fatal("expected reference violation")
	}
	if isUniqueViolation(err, publicIDConstraint) {
		t.Fatal("constraint name must match")
	}
	if isUniqueViolation(&pq.Error{Code: "23503", Constraint: referenceConstraint}, referenceConstraint) {
		t.Fatal("foreign key violation is not a unique violation")
	}
}

func TestMessageRef(t *testing.T) {
	if messageRef(sql.NullInt64{}, sql.NullInt64{Int64: 1, Valid: true}) != nil {
		t.Fatal("partial ref must be nil")
	}
	ref := messageRef(sql.NullInt64{Int64: -100, Valid: true}, sql.NullInt64{Int64: 7, Valid: true})
	if ref == nil || ref.ChatID != -100 || ref.MessageID != 7 {
		t.Fatalf("ref = %+v", ref)
	}
}

// openTestStore connects to PAYDESK_TEST_DATABASE_URL and recreates the schema.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PAYDESK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PAYDESK_TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, name := range []string{"0001_init.down.sql", "0001_init.up.sql"} {
		body, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if _, err := db.Exec(string(body)); err != nil {
			t.Fatalf("apply %s: %v", name, err)
		}
	}
	return New(db)
}

func TestPostgresDepositLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	acc, created, err := s.UpsertAccount(ctx, 42, "alice")
	if err != nil || !created {
		t.Fatalf("upsert: created=%v err=%v", created, err)
	}
	if _, created, _ := s.UpsertAccount(ctx, 42, "alice"); created {
		t.Fatal("second upsert reported creation")
	}

	d := domain.DepositRequest{
		ID: domain.NewRequestID(), UserID: acc.UserID, Amount: decimal.NewFromInt(100),
		Reference: "123456789012", ProofFileID: "file", Status: domain.DepositRequested, CreatedAt: now,
	}
	if err := s.CreateDeposit(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	d.ID = domain.NewRequestID()
	if err := s.CreateDeposit(ctx, d); !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("duplicate err = %v", err)
	}

	if err := s.SetDepositOperatorMessage(ctx, "missing", domain.MessageRef{ChatID: 1, MessageID: 2}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("set op message on missing = %v", err)
	}

	_, credited, err := s.ConfirmDeposit(ctx, d.Reference, now)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !credited.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance = %s", credited.Balance)
	}
	if _, _, err := s.ConfirmDeposit(ctx, d.Reference, now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second confirm err = %v", err)
	}
}

func TestPostgresCompleteWithdrawalRollsBackOnOverdraw(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, _, err := s.UpsertAccount(ctx, 7, "bob"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	w := domain.WithdrawalRequest{
		ID: domain.NewRequestID(), UserID: 7, Amount: decimal.NewFromInt(50),
		Destination: "bob@upi", Status: domain.WithdrawalRequested, CreatedAt: now,
	}
	if err := s.CreateWithdrawal(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := s.CompleteWithdrawal(ctx, w.ID, now); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("complete err = %v", err)
	}
	got, err := s.GetWithdrawal(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.WithdrawalRequested {
		t.Fatalf("status after rollback = %s", got.Status)
	}
}
