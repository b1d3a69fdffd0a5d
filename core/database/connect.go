package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/paydesk/core/logger"
)

const retryEvery = 2 * time.Second

// Connect opens the pool, retrying for up to cfg.WaitTimeout while Postgres
// is still starting.
func Connect(cfg Config) (*sqlx.DB, error) {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.WaitTimeout)
	defer cancel()

	start := time.Now()
	db, attempts, err := connectRetry(ctx, cfg.DSN(), retryEvery)
	attrs := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(attrs, slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(5 * time.Minute)
	logger.Info(ctx, "db", "db.connect", append(attrs, slog.Int("pool_open", cfg.MaxConnections))...)
	return db, nil
}

func connectRetry(ctx context.Context, dsn string, every time.Duration) (*sqlx.DB, int, error) {
	for attempt := 1; ; attempt++ {
		db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err == nil {
			return db, attempt, nil
		}
		if !notReady(err) {
			return nil, attempt, err
		}
		logger.Debug(ctx, "db", "db.wait", slog.Int("attempt", attempt), slog.String("err", err.Error()))

		timer := time.NewTimer(every)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// notReady reports errors a starting or restarting server produces.
// Authentication and unknown database errors are final.
func notReady(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return code == pgerrcode.CannotConnectNow || pgerrcode.IsConnectionException(code)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
