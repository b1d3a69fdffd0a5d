// Package escalation ages unconfirmed deposits: REQUESTED becomes PENDING
// after the request timeout, PENDING deposits get numbered reminders, and
// after the last reminder the deposit is auto-cancelled.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/paydesk/core/logger"
	"github.com/m3rciful/paydesk/internal/domain"
	"github.com/m3rciful/paydesk/internal/metrics"
	"github.com/m3rciful/paydesk/internal/notify"
)

// Defaults applied to zero Config fields.
const (
	DefaultInterval         = 30 * time.Second
	DefaultRequestTimeout   = 2 * time.Minute
	DefaultReminderInterval = 60 * time.Second
	DefaultMaxReminders     = 5
)

// Store is the persistence the sweeper needs.
type Store interface {
	ListDepositsByStatus(ctx context.Context, statuses ...domain.DepositStatus) ([]domain.DepositRequest, error)
	MarkDepositPending(ctx context.Context, id string, now time.Time) (bool, error)
	RecordDepositReminder(ctx context.Context, id string, expected int, now time.Time) (bool, error)
	AutoCancelDeposit(ctx context.Context, id string, now time.Time) (bool, error)
}

// Config controls sweep timing.
type Config struct {
	Interval         time.Duration
	RequestTimeout   time.Duration
	ReminderInterval time.Duration
	MaxReminders     int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = DefaultReminderInterval
	}
	if c.MaxReminders <= 0 {
		c.MaxReminders = DefaultMaxReminders
	}
	return c
}

// Result summarizes one sweep cycle.
type Result struct {
	Scanned   int
	Pending   int
	Reminders int
	Cancelled int
	Failed    int
}

// Transitions is the number of records changed in the cycle.
func (r Result) Transitions() int {
	return r.Pending + r.Reminders + r.Cancelled
}

// Sweeper periodically escalates open deposits.
type Sweeper struct {
	store    Store
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Sweeper. now may be nil to use the wall clock.
func New(store Store, notifier notify.Notifier, cfg Config, now func() time.Time) *Sweeper {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, notifier: notifier, cfg: cfg.withDefaults(), now: now}
}

// Config returns the effective configuration.
func (s *Sweeper) Config() Config {
	return s.cfg
}

// Start runs the sweep loop in the background until Stop or ctx cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Run(runCtx)
	}()
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks, sweeping every interval until ctx is done. Errors never stop it.
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info(ctx, "sweeper", "sweeper.start",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("request_timeout", s.cfg.RequestTimeout),
		slog.Duration("reminder_interval", s.cfg.ReminderInterval),
		slog.Int("max_reminders", s.cfg.MaxReminders),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), "sweeper", "sweeper.stop")
			return
		case <-ticker.C:
			_, _ = s.Sweep(ctx)
		}
	}
}

// Sweep runs one escalation cycle. A listing failure aborts the cycle and is
// returned; per-record failures are logged and counted in Result.Failed.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	now := s.now()
	var res Result

	open, err := s.store.ListDepositsByStatus(ctx, domain.OpenDepositStatuses...)
	if err != nil {
		metrics.Sweeps.WithLabelValues("error").Inc()
		metrics.StoreErrors.WithLabelValues("list_deposits").Inc()
		logger.Error(ctx, "sweeper", "sweep.list",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
		return res, fmt.Errorf("list open deposits: %w", err)
	}

	for _, d := range open {
		if ctx.Err() != nil {
			break
		}
		res.Scanned++
		if err := s.process(ctx, d, now, &res); err != nil {
			res.Failed++
			logger.Error(ctx, "sweeper", "sweep.record",
				slog.String("status", "error"),
				slog.String("deposit_id", d.ID),
				slog.String("from_status", string(d.Status)),
				slog.String("err", err.Error()),
			)
		}
	}

	metrics.Sweeps.WithLabelValues("ok").Inc()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Int("scanned", res.Scanned),
		slog.Int("transitions", res.Transitions()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if res.Failed > 0 {
		attrs = append(attrs, slog.Int("failed", res.Failed))
	}
	if res.Transitions() > 0 || res.Failed > 0 {
		logger.Info(ctx, "sweeper", "sweep.done", attrs...)
	} else {
		logger.Debug(ctx, "sweeper", "sweep.done", attrs...)
	}
	return res, nil
}

var errPanic = errors.New("sweep record panicked")

func (s *Sweeper) process(ctx context.Context, d domain.DepositRequest, now time.Time, res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	switch d.Status {
	case domain.DepositRequested:
		if d.Age(now) <= s.cfg.RequestTimeout {
			return nil
		}
		ok, err := s.store.MarkDepositPending(ctx, d.ID, now)
		if err != nil {
			return fmt.Errorf("mark pending: %w", err)
		}
		if !ok {
			return nil
		}
		d.Status = domain.DepositPending
		d.LastReminderAt = &now
		res.Pending++
		metrics.Deposits.WithLabelValues(string(domain.DepositPending)).Inc()
		s.logTransition(ctx, d, domain.DepositRequested, 0)
		s.notifier.DepositPending(ctx, d)

	case domain.DepositPending:
		if d.SinceReminder(now) <= s.cfg.ReminderInterval {
			return nil
		}
		if d.ReminderCount < s.cfg.MaxReminders {
			ok, err := s.store.RecordDepositReminder(ctx, d.ID, d.ReminderCount, now)
			if err != nil {
				return fmt.Errorf("record reminder: %w", err)
			}
			if !ok {
				return nil
			}
			d.ReminderCount++
			d.LastReminderAt = &now
			res.Reminders++
			metrics.Reminders.Inc()
			s.logTransition(ctx, d, domain.DepositPending, d.ReminderCount)
			s.notifier.DepositReminder(ctx, d, d.ReminderCount)
			return nil
		}

		ok, err := s.store.AutoCancelDeposit(ctx, d.ID, now)
		if err != nil {
			return fmt.Errorf("auto cancel: %w", err)
		}
		if !ok {
			return nil
		}
		d.Status = domain.DepositAutoCancelled
		d.CompletedAt = &now
		res.Cancelled++
		metrics.Deposits.WithLabelValues(string(domain.DepositAutoCancelled)).Inc()
		s.logTransition(ctx, d, domain.DepositPending, 0)
		s.notifier.DepositAutoCancelled(ctx, d)
	}
	return nil
}

func (s *Sweeper) logTransition(ctx context.Context, d domain.DepositRequest, from domain.DepositStatus, reminder int) {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("deposit_id", d.ID),
		slog.String("reference", d.Reference),
		slog.String("from_status", string(from)),
		slog.String("to_status", string(d.Status)),
	}
	if reminder > 0 {
		attrs = append(attrs, slog.Int("reminder", reminder))
	}
	logger.Info(ctx, "sweeper", "deposit.escalate", attrs...)
}
