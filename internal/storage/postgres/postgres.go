// Package postgres implements storage.Store on top of sqlx and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/paydesk/core/logger"
	"github.com/m3rciful/paydesk/core/telegram/netutil"
	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const (
	referenceConstraint = "deposits_reference_key"
	publicIDConstraint  = "users_public_id_key"
	publicIDAttempts    = 3
)

// Store persists accounts and requests in Postgres.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("db close: %w", err)
	}
	return nil
}

type accountRow struct {
	TelegramID       int64           `db:"telegram_id"`
	Username         string          `db:"username"`
	PublicID         string          `db:"public_id"`
	Balance          decimal.Decimal `db:"balance"`
	TotalDeposits    decimal.Decimal `db:"total_deposits"`
	TotalWithdrawals decimal.Decimal `db:"total_withdrawals"`
	CreatedAt        time.Time       `db:"created_at"`
}

func (r accountRow) toDomain() domain.Account {
	return domain.Account{
		UserID:           r.TelegramID,
		Username:         r.Username,
		PublicID:         r.PublicID,
		Balance:          r.Balance,
		TotalDeposits:    r.TotalDeposits,
		TotalWithdrawals: r.TotalWithdrawals,
		CreatedAt:        r.CreatedAt,
	}
}

type depositRow struct {
	ID             string          `db:"id"`
	UserID         int64           `db:"user_id"`
	Amount         decimal.Decimal `db:"amount"`
	Reference      string          `db:"reference"`
	ProofFileID    sql.NullString  `db:"proof_file_id"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	LastReminderAt sql.NullTime    `db:"last_reminder_at"`
	ReminderCount  int             `db:"reminder_count"`
	OpChatID       sql.NullInt64   `db:"op_chat_id"`
	OpMessageID    sql.NullInt64   `db:"op_message_id"`
	CompletedAt    sql.NullTime    `db:"completed_at"`
}

func (r depositRow) toDomain() domain.DepositRequest {
	d := domain.DepositRequest{
		ID:              r.ID,
		UserID:          r.UserID,
		Amount:          r.Amount,
		Reference:       r.Reference,
		ProofFileID:     r.ProofFileID.String,
		Status:          domain.DepositStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		ReminderCount:   r.ReminderCount,
		LastReminderAt:  nullTime(r.LastReminderAt),
		CompletedAt:     nullTime(r.CompletedAt),
		OperatorMessage: messageRef(r.OpChatID, r.OpMessageID),
	}
	return d
}

type withdrawalRow struct {
	ID          string          `db:"id"`
	UserID      int64           `db:"user_id"`
	Amount      decimal.Decimal `db:"amount"`
	Destination string          `db:"destination"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	OpChatID    sql.NullInt64   `db:"op_chat_id"`
	OpMessageID sql.NullInt64   `db:"op_message_id"`
	CompletedAt sql.NullTime    `db:"completed_at"`
}

func (r withdrawalRow) toDomain() domain.WithdrawalRequest {
	return domain.WithdrawalRequest{
		ID:              r.ID,
		UserID:          r.UserID,
		Amount:          r.Amount,
		Destination:     r.Destination,
		Status:          domain.WithdrawalStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		CompletedAt:     nullTime(r.CompletedAt),
		OperatorMessage: messageRef(r.OpChatID, r.OpMessageID),
	}
}

const (
	accountColumns    = `telegram_id, username, public_id, balance, total_deposits, total_withdrawals, created_at`
	depositColumns    = `id, user_id, amount, reference, proof_file_id, status, created_at, last_reminder_at, reminder_count, op_chat_id, op_message_id, completed_at`
	withdrawalColumns = `id, user_id, amount, destination, status, created_at, op_chat_id, op_message_id, completed_at`
)

// UpsertAccount implements storage.AccountStore.
func (s *Store) UpsertAccount(ctx context.Context, userID int64, username string) (domain.Account, bool, error) {
	query := `
		INSERT INTO users (telegram_id, username, public_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE SET username = EXCLUDED.username
		RETURNING ` + accountColumns + `, (xmax = 0) AS inserted`

	var row struct {
		accountRow
		Inserted bool `db:"inserted"`
	}
	var err error
	for attempt := 0; attempt < publicIDAttempts; attempt++ {
		err = s.db.GetContext(ctx, &row, query, userID, username, domain.NewPublicID())
		if err == nil {
			return row.toDomain(), row.Inserted, nil
		}
		if !isUniqueViolation(err, publicIDConstraint) {
			break
		}
	}
	return domain.Account{}, false, classify("upsert account", err)
}

// GetAccount implements storage.AccountStore.
func (s *Store) GetAccount(ctx context.Context, userID int64) (domain.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM users WHERE telegram_id = $1`, userID)
	if err != nil {
		return domain.Account{}, classify("get account", err)
	}
	return row.toDomain(), nil
}

// ReferenceExists implements storage.DepositStore.
func (s *Store) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM deposits WHERE reference = $1)`, reference)
	if err != nil {
		return false, classify("reference exists", err)
	}
	return exists, nil
}

// CreateDeposit implements storage.DepositStore. The unique constraint on the
// reference backs up the pre-check when two submissions race.
func (s *Store) CreateDeposit(ctx context.Context, d domain.DepositRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, user_id, amount, reference, proof_file_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.UserID, d.Amount, d.Reference, nullString(d.ProofFileID), string(d.Status), d.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, referenceConstraint) {
			return domain.ErrDuplicateReference
		}
		return classify("create deposit", err)
	}
	return nil
}

// GetDepositByReference implements storage.DepositStore.
func (s *Store) GetDepositByReference(ctx context.Context, reference string) (domain.DepositRequest, error) {
	var row depositRow
	err := s.db.GetContext(ctx, &row, `SELECT `+depositColumns+` FROM deposits WHERE reference = $1`, reference)
	if err != nil {
		return domain.DepositRequest{}, classify("get deposit", err)
	}
	return row.toDomain(), nil
}

// SetDepositOperatorMessage implements storage.DepositStore.
func (s *Store) SetDepositOperatorMessage(ctx context.Context, id string, ref domain.MessageRef) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deposits SET op_chat_id = $2, op_message_id = $3 WHERE id = $1`,
		id, ref.ChatID, ref.MessageID,
	)
	if err != nil {
		return classify("set deposit operator message", err)
	}
	return requireAffected(res)
}

// ListDepositsByStatus implements storage.DepositStore.
func (s *Store) ListDepositsByStatus(ctx context.Context, statuses ...domain.DepositStatus) ([]domain.DepositRequest, error) {
	var rows []depositRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+depositColumns+` FROM deposits WHERE status = ANY($1) ORDER BY created_at`,
		pq.Array(depositStatusStrings(statuses)),
	)
	if err != nil {
		return nil, classify("list deposits", err)
	}
	out := make([]domain.DepositRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// MarkDepositPending implements storage.DepositStore.
func (s *Store) MarkDepositPending(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.applied(ctx, "mark deposit pending", `
		UPDATE deposits SET status = $2, last_reminder_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(domain.DepositPending), now, string(domain.DepositRequested),
	)
}

// RecordDepositReminder implements storage.DepositStore.
func (s *Store) RecordDepositReminder(ctx context.Context, id string, expected int, now time.Time) (bool, error) {
	return s.applied(ctx, "record deposit reminder", `
		UPDATE deposits SET reminder_count = reminder_count + 1, last_reminder_at = $2
		WHERE id = $1 AND status = $3 AND reminder_count = $4`,
		id, now, string(domain.DepositPending), expected,
	)
}

// AutoCancelDeposit implements storage.DepositStore.
func (s *Store) AutoCancelDeposit(ctx context.Context, id string, now time.Time) (bool, error) {
	return s.applied(ctx, "auto cancel deposit", `
		UPDATE deposits SET status = $2, completed_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(domain.DepositAutoCancelled), now, string(domain.DepositPending),
	)
}

// ConfirmDeposit implements storage.DepositStore.
func (s *Store) ConfirmDeposit(ctx context.Context, reference string, now time.Time) (domain.DepositRequest, domain.Account, error) {
	var (
		dep domain.DepositRequest
		acc domain.Account
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var d depositRow
		err := tx.GetContext(ctx, &d, `
			UPDATE deposits SET status = $2, completed_at = $3
			WHERE reference = $1 AND status = ANY($4)
			RETURNING `+depositColumns,
			reference, string(domain.DepositCompleted), now,
			pq.Array(depositStatusStrings(domain.OpenDepositStatuses)),
		)
		if err != nil {
			return classify("confirm deposit", err)
		}

		var a accountRow
		err = tx.GetContext(ctx, &a, `
			UPDATE users SET balance = balance + $2, total_deposits = total_deposits + $2
			WHERE telegram_id = $1
			RETURNING `+accountColumns,
			d.UserID, d.Amount,
		)
		if err != nil {
			return classify("credit account", err)
		}
		dep, acc = d.toDomain(), a.toDomain()
		return nil
	})
	return dep, acc, err
}

// CancelDeposit implements storage.DepositStore.
func (s *Store) CancelDeposit(ctx context.Context, id string, now time.Time) (domain.DepositRequest, error) {
	var row depositRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE deposits SET status = $2, completed_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+depositColumns,
		id, string(domain.DepositCancelled), now,
		pq.Array(depositStatusStrings(domain.OpenDepositStatuses)),
	)
	if err != nil {
		return domain.DepositRequest{}, classify("cancel deposit", err)
	}
	return row.toDomain(), nil
}

// CreateWithdrawal implements storage.WithdrawalStore.
func (s *Store) CreateWithdrawal(ctx context.Context, w domain.WithdrawalRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, destination, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.UserID, w.Amount, w.Destination, string(w.Status), w.CreatedAt,
	)
	if err != nil {
		return classify("create withdrawal", err)
	}
	return nil
}

// GetWithdrawal implements storage.WithdrawalStore.
func (s *Store) GetWithdrawal(ctx context.Context, id string) (domain.WithdrawalRequest, error) {
	var row withdrawalRow
	err := s.db.GetContext(ctx, &row, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	if err != nil {
		return domain.WithdrawalRequest{}, classify("get withdrawal", err)
	}
	return row.toDomain(), nil
}

// SetWithdrawalOperatorMessage implements storage.WithdrawalStore.
func (s *Store) SetWithdrawalOperatorMessage(ctx context.Context, id string, ref domain.MessageRef) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE withdrawals SET op_chat_id = $2, op_message_id = $3 WHERE id = $1`,
		id, ref.ChatID, ref.MessageID,
	)
	if err != nil {
		return classify("set withdrawal operator message", err)
	}
	return requireAffected(res)
}

// ListWithdrawalsByStatus implements storage.WithdrawalStore.
func (s *Store) ListWithdrawalsByStatus(ctx context.Context, statuses ...domain.WithdrawalStatus) ([]domain.WithdrawalRequest, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	var rows []withdrawalRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE status = ANY($1) ORDER BY created_at`,
		pq.Array(names),
	)
	if err != nil {
		return nil, classify("list withdrawals", err)
	}
	out := make([]domain.WithdrawalRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// MarkWithdrawalProcessing implements storage.WithdrawalStore.
func (s *Store) MarkWithdrawalProcessing(ctx context.Context, id string) (domain.WithdrawalRequest, error) {
	var row withdrawalRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE withdrawals SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING `+withdrawalColumns,
		id, string(domain.WithdrawalProcessing), string(domain.WithdrawalRequested),
	)
	if err != nil {
		return domain.WithdrawalRequest{}, classify("process withdrawal", err)
	}
	return row.toDomain(), nil
}

// CompleteWithdrawal implements storage.WithdrawalStore.
func (s *Store) CompleteWithdrawal(ctx context.Context, id string, now time.Time) (domain.WithdrawalRequest, domain.Account, error) {
	var (
		wd  domain.WithdrawalRequest
		acc domain.Account
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var w withdrawalRow
		err := tx.GetContext(ctx, &w, `
			UPDATE withdrawals SET status = $2, completed_at = $3
			WHERE id = $1 AND status = ANY($4)
			RETURNING `+withdrawalColumns,
			id, string(domain.WithdrawalCompleted), now,
			pq.Array([]string{string(domain.WithdrawalRequested), string(domain.WithdrawalProcessing)}),
		)
		if err != nil {
			return classify("complete withdrawal", err)
		}

		var a accountRow
		err = tx.GetContext(ctx, &a, `
			UPDATE users SET balance = balance - $2, total_withdrawals = total_withdrawals + $2
			WHERE telegram_id = $1 AND balance >= $2
			RETURNING `+accountColumns,
			w.UserID, w.Amount,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInsufficientBalance
		}
		if err != nil {
			return classify("debit account", err)
		}
		wd, acc = w.toDomain(), a.toDomain()
		return nil
	})
	return wd, acc, err
}

// RejectWithdrawal implements storage.WithdrawalStore.
func (s *Store) RejectWithdrawal(ctx context.Context, id string, now time.Time) (domain.WithdrawalRequest, error) {
	var row withdrawalRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE withdrawals SET status = $2, completed_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+withdrawalColumns,
		id, string(domain.WithdrawalRejected), now,
		pq.Array([]string{string(domain.WithdrawalRequested), string(domain.WithdrawalProcessing)}),
	)
	if err != nil {
		return domain.WithdrawalRequest{}, classify("reject withdrawal", err)
	}
	return row.toDomain(), nil
}

func (s *Store) applied(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(op, err)
	}
	return n == 1, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn(ctx, "db", "db.rollback", slog.String("err", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

// classify maps driver errors onto domain sentinels. No rows means the
// conditional update matched nothing: the record is absent or terminal.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case unavailable(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func unavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return pgerrcode.IsConnectionException(code) ||
			pgerrcode.IsOperatorIntervention(code) ||
			pgerrcode.IsInsufficientResources(code)
	}
	return netutil.ShouldRetry(err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pgerrcode.UniqueViolation && pqErr.Constraint == constraint
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func depositStatusStrings(statuses []domain.DepositStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func messageRef(chat, msg sql.NullInt64) *domain.MessageRef {
	if !chat.Valid || !msg.Valid {
		return nil
	}
	return &domain.MessageRef{ChatID: chat.Int64, MessageID: int(msg.Int64)}
}
