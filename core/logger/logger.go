// Package logger is the structured slog setup shared by every component:
// one-line JSON or key=value records with update correlation fields taken
// from the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/paydesk/core/buildinfo"
	coreconfig "github.com/m3rciful/paydesk/core/config"
)

// L is the base logger. Before InitLogger it is slog.Default().
var L = slog.Default()

var (
	initOnce sync.Once
	state    struct {
		sync.Mutex
		writer  *bufferedWriter
		files   []io.Closer
		stopped bool
	}
	levelVar  slog.LevelVar
	debugRate sampler
	traceAll  bool
)

// InitLogger installs the configured handler as the slog default. Only the
// first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		levelVar.Set(parseLevel(lc.Level))
		debugRate.set(debugRatio(lc.DebugSample))
		traceAll = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))

		sinks := []io.Writer{os.Stdout}
		var files []io.Closer
		f, ferr := openFile(lc)
		if ferr != nil {
			err = ferr
			return
		}
		if f != nil {
			sinks = append(sinks, f)
			files = append(files, f)
		}

		w := newBufferedWriter(sinks, 64*1024)
		state.Lock()
		state.writer, state.files = w, files
		state.Unlock()

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   w,
			format:   pickFormat(lc),
			keyOrder: keyOrder(lc.KeysOrder),
		}))
		slog.SetDefault(L)

		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("profile", profile(lc)),
		)
	})
	return err
}

// Shutdown flushes buffered records and closes log files.
func Shutdown() error {
	state.Lock()
	defer state.Unlock()
	if state.stopped {
		return nil
	}
	state.stopped = true

	var errs []error
	if state.writer != nil {
		errs = append(errs, state.writer.Close())
	}
	for _, f := range state.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

func openFile(lc coreconfig.LoggingConfig) (*os.File, error) {
	dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile)
	if dir == "" || name == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	return f, nil
}

func pickFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	if p := profile(lc); p == "debug" || p == "dev" {
		return formatKV
	}
	return formatJSON
}

func keyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func parseLevel(s string) slog.Level {
	switch levelName(strings.TrimSpace(s)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

// debugRatio defaults to 1/50 and treats "0" or "off" as no sampling.
func debugRatio(raw string) (int, int) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return 1, 50
	case "0", "off", "none":
		return 0, 0
	}
	if n, d := parseRatio(raw); d > 0 {
		return n, d
	}
	return 1, 50
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Background is the context for log calls made outside any update.
func Background() context.Context {
	return context.Background()
}

// Component returns L scoped to name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes a record keyed by event. A nil logg resolves to the
// logger stored in ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Event logs event for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug record should be
// written. TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return traceAll || debugRate.allow()
}
