package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/paydesk/core/logger"
)

// RunMigrations applies every pending up migration from cfg.MigrationsDir.
func RunMigrations(cfg Config) error {
	cfg = cfg.WithDefaults()
	ctx := logger.Background()

	dir, err := filepath.Abs(cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	files := upFiles(dir)
	logger.Debug(ctx, "db.migrate", "migrate.resolve",
		slog.String("path", dir),
		slog.Int("files", len(files)),
	)

	m, err := migrate.New("file://"+dir, cfg.URL())
	if err != nil {
		logger.Error(ctx, "db.migrate", "migrate.init", slog.String("err", err.Error()))
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn(ctx, "db.migrate", "migrate.close", slog.Any("err", errors.Join(srcErr, dbErr)))
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error(ctx, "db.migrate", "migrate.apply",
			slog.Uint64("from_ver", uint64(from)),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}
	to, _, _ := m.Version()

	applied := between(files, uint64(from), uint64(to))
	logMigrated(ctx, from, to, applied, logger.Took(start))
	return nil
}

func logMigrated(ctx context.Context, from, to uint, applied []string, took time.Duration) {
	attrs := []slog.Attr{
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("applied", len(applied)),
		slog.Duration("duration", took),
	}
	if len(applied) > 0 {
		attrs = append(attrs, slog.String("files", strings.Join(applied, ",")))
	}
	logger.Info(ctx, "db.migrate", "migrate.summary", attrs...)
}

// upFiles lists *.up.sql names in dir in version order.
func upFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func version(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// between returns files with from < version <= to.
func between(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := version(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
