// Package bot assembles paydesk: storage, sessions, the conversation engine,
// operator commands, the escalation sweeper and the health server, wired to
// the Telegram runtime.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/paydesk/core/logger"
	coretelegram "github.com/m3rciful/paydesk/core/telegram"
	"github.com/m3rciful/paydesk/core/telegram/middleware"
	"github.com/m3rciful/paydesk/core/telegram/router"
	"github.com/m3rciful/paydesk/core/telegram/sender"
	"github.com/m3rciful/paydesk/core/telegram/state"
	"github.com/m3rciful/paydesk/internal/config"
	"github.com/m3rciful/paydesk/internal/conversation"
	"github.com/m3rciful/paydesk/internal/escalation"
	"github.com/m3rciful/paydesk/internal/health"
	"github.com/m3rciful/paydesk/internal/ledger"
	"github.com/m3rciful/paydesk/internal/metrics"
	"github.com/m3rciful/paydesk/internal/notify"
	"github.com/m3rciful/paydesk/internal/operator"
	"github.com/m3rciful/paydesk/internal/payqr"
	"github.com/m3rciful/paydesk/internal/storage"
	"github.com/m3rciful/paydesk/internal/storage/memory"
	"github.com/m3rciful/paydesk/internal/storage/postgres"
)

// App owns every long-lived component of the bot.
type App struct {
	cfg *config.Config

	store    storage.Store
	sessions state.Manager
	redis    *redis.Client

	notifier  *notify.Telegram
	engine    *conversation.Engine
	ledger    *ledger.Service
	operators *operator.Dispatcher
	sweeper   *escalation.Sweeper
	health    *health.Server
}

// New wires the application. db is required for the postgres storage
// driver and ignored otherwise.
func New(cfg *config.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	store, err := openStore(cfg.Storage, db)
	if err != nil {
		return nil, err
	}
	sessions, rdb := openSessions(cfg.Sessions)
	return assemble(cfg, store, sessions, rdb), nil
}

func assemble(cfg *config.Config, store storage.Store, sessions state.Manager, rdb *redis.Client) *App {
	ch := cfg.Channels
	notifier := notify.NewTelegram(notify.Channels{
		DepositRequested:    ch.DepositRequested,
		DepositPending:      ch.DepositPending,
		DepositCompleted:    ch.DepositCompleted,
		WithdrawalRequested: ch.WithdrawalRequested,
		WithdrawalCompleted: ch.WithdrawalCompleted,
	}, store)

	var qr conversation.QRGenerator
	if cfg.Payments.Payee != "" {
		qr = payqr.Generator{Payee: cfg.Payments.Payee, Name: cfg.Payments.PayeeName, Size: cfg.Payments.QRSize}
	}
	engine := conversation.New(store, sessions, notifier, qr, conversation.Options{
		Denominations: cfg.Payments.Denominations,
		MinWithdrawal: cfg.Payments.MinWithdrawalAmount(),
		Payee:         cfg.Payments.Payee,
	})
	svc := ledger.New(store, notifier, nil)

	return &App{
		cfg:       cfg,
		store:     store,
		sessions:  sessions,
		redis:     rdb,
		notifier:  notifier,
		engine:    engine,
		ledger:    svc,
		operators: operator.New(cfg.Telegram.AdminID, svc, store),
		sweeper:   escalation.New(store, notifier, cfg.Escalation.Sweeper(), nil),
		health:    health.NewServer(cfg.Health.Listen, health.NewRouter(store)),
	}
}

func openStore(cfg config.StorageConfig, db *sqlx.DB) (storage.Store, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StoragePostgres:
		if db == nil {
			return nil, errors.New("bot: postgres storage selected but no database connection")
		}
		return postgres.New(db), nil
	}
	return nil, fmt.Errorf("bot: unknown storage driver %q", cfg.Driver)
}

func openSessions(cfg config.SessionsConfig) (state.Manager, *redis.Client) {
	if cfg.Driver != config.SessionsRedis {
		return state.NewMemoryManager(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return state.NewRedisManager(rdb, cfg.Redis.Namespace, cfg.TTL), rdb
}

// TelegramRunOptions builds the registry, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg, err := a.registry()
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		Admin: middleware.AdminOptions{AdminID: core.Telegram.AdminID},
	})
	routes = append(routes, router.CallbackRoute(reg))
	routes = append(routes, router.MessageRoutes(a, reg, router.MessageOptions{Intercept: a.operatorText})...)

	return coretelegram.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: sender.Options{MaxRetries: 2},
		Middlewares: coretelegram.DefaultMiddlewares(core, coretelegram.MiddlewareOptions{
			OnUpdate:        func(kind string) { metrics.Updates.WithLabelValues(kind).Inc() },
			OnPanic:         a.replyError,
			RateLimitBypass: a.operators.IsAdmin,
		}),
		Routes:  routes,
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	a.notifier.Attach(rt.Bot, rt.Dispatcher)
	failures := rt.Dispatcher.Failures
	if err := metrics.RegisterDeliveryFailures(func() float64 { return float64(failures()) }); err != nil {
		logger.Warn(ctx, "app", "metrics.register", slog.String("err", err.Error()))
	}
	if err := a.health.Start(ctx); err != nil {
		return fmt.Errorf("bot: health server: %w", err)
	}
	a.sweeper.Start(ctx)
	logger.Info(ctx, "app", "components.started",
		slog.String("storage", a.cfg.Storage.Driver),
		slog.String("sessions", a.cfg.Sessions.Driver),
		slog.String("health", a.health.Addr()),
	)
	return nil
}

func (a *App) stop(ctx context.Context, _ coretelegram.Runtime) error {
	a.sweeper.Stop()
	return a.Close(ctx)
}

// Close releases the health listener, Redis client and store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.health.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}
