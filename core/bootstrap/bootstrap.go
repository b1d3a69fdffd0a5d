// Package bootstrap brings up process infrastructure before the bot starts:
// the structured logger first, then the database and its schema.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/paydesk/core/config"
	coredatabase "github.com/m3rciful/paydesk/core/database"
	"github.com/m3rciful/paydesk/core/logger"
)

// Options control the bootstrap pipeline. Nil stage funcs use the core
// implementations.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// DisableDatabase skips connect and migrate, e.g. for the in-memory store.
	DisableDatabase bool

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result holds what Run brought up. DB is nil when the database was disabled.
type Result struct {
	DB *sqlx.DB
}

// Close releases the database pool, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

func (o Options) withDefaults() Options {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
	return o
}

// Run initializes the logger, then connects to the database and applies
// migrations unless DisableDatabase is set.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	opts = opts.withDefaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	ctx := logger.Background()
	if opts.DisableDatabase {
		logger.Info(ctx, "db", "db.skip", slog.String("reason", "disabled"))
		return &Result{}, nil
	}

	start := time.Now()
	db, err := opts.Connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	if err := opts.Migrate(opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	logger.Info(ctx, "db", "db.ready",
		slog.String("host", opts.Database.Host),
		slog.String("name", opts.Database.Name),
		slog.Duration("took", logger.Took(start)),
	)
	return &Result{DB: db}, nil
}

