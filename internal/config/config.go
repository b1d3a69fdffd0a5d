// Package config loads the paydesk configuration: the shared bot settings
// from core/config plus storage, sessions, payments and escalation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	coreconfig "github.com/m3rciful/paydesk/core/config"
	coredatabase "github.com/m3rciful/paydesk/core/database"
	"github.com/m3rciful/paydesk/core/telegram/state"
	"github.com/m3rciful/paydesk/internal/escalation"
	"github.com/m3rciful/paydesk/internal/health"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	SessionsMemory = "memory"
	SessionsRedis  = "redis"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
}

// RedisConfig holds the session store connection.
type RedisConfig struct {
	Addr      string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" envconfig:"REDIS_DB"`
	Namespace string `yaml:"namespace" envconfig:"REDIS_NAMESPACE"`
}

// SessionsConfig selects where conversation sessions live.
type SessionsConfig struct {
	Driver string        `yaml:"driver" envconfig:"SESSIONS_DRIVER"`
	TTL    time.Duration `yaml:"ttl" envconfig:"SESSIONS_TTL"`
	Redis  RedisConfig   `yaml:"redis"`
}

// PaymentsConfig describes how users pay in and what they may take out.
type PaymentsConfig struct {
	Payee         string  `yaml:"payee" envconfig:"PAYMENTS_PAYEE"`
	PayeeName     string  `yaml:"payee_name" envconfig:"PAYMENTS_PAYEE_NAME"`
	QRSize        int     `yaml:"qr_size" envconfig:"PAYMENTS_QR_SIZE"`
	Denominations []int64 `yaml:"denominations" envconfig:"PAYMENTS_DENOMINATIONS"`
	// MinWithdrawal is a decimal string such as "100" or "99.50".
	MinWithdrawal string `yaml:"min_withdrawal" envconfig:"PAYMENTS_MIN_WITHDRAWAL"`

	minWithdrawal decimal.Decimal
}

// MinWithdrawalAmount is the parsed minimum withdrawal.
func (p PaymentsConfig) MinWithdrawalAmount() decimal.Decimal {
	return p.minWithdrawal
}

// EscalationConfig tunes the sweeper.
type EscalationConfig struct {
	Interval         time.Duration `yaml:"interval" envconfig:"ESCALATION_INTERVAL"`
	RequestTimeout   time.Duration `yaml:"request_timeout" envconfig:"ESCALATION_REQUEST_TIMEOUT"`
	ReminderInterval time.Duration `yaml:"reminder_interval" envconfig:"ESCALATION_REMINDER_INTERVAL"`
	MaxReminders     int           `yaml:"max_reminders" envconfig:"ESCALATION_MAX_REMINDERS"`
}

// Sweeper converts to the escalation package config.
func (e EscalationConfig) Sweeper() escalation.Config {
	return escalation.Config{
		Interval:         e.Interval,
		RequestTimeout:   e.RequestTimeout,
		ReminderInterval: e.ReminderInterval,
		MaxReminders:     e.MaxReminders,
	}
}

// ChannelsConfig lists operator chats per event. Zero values fall back to the admin.
type ChannelsConfig struct {
	DepositRequested    int64 `yaml:"deposit_requested" envconfig:"CHANNEL_DEPOSIT_REQUESTED"`
	DepositPending      int64 `yaml:"deposit_pending" envconfig:"CHANNEL_DEPOSIT_PENDING"`
	DepositCompleted    int64 `yaml:"deposit_completed" envconfig:"CHANNEL_DEPOSIT_COMPLETED"`
	WithdrawalRequested int64 `yaml:"withdrawal_requested" envconfig:"CHANNEL_WITHDRAWAL_REQUESTED"`
	WithdrawalCompleted int64 `yaml:"withdrawal_completed" envconfig:"CHANNEL_WITHDRAWAL_COMPLETED"`
}

// HealthConfig configures the HTTP surface.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database   coredatabase.Config `yaml:"database"`
	Storage    StorageConfig       `yaml:"storage"`
	Sessions   SessionsConfig      `yaml:"sessions"`
	Payments   PaymentsConfig      `yaml:"payments"`
	Escalation EscalationConfig    `yaml:"escalation"`
	Channels   ChannelsConfig      `yaml:"channels"`
	Health     HealthConfig        `yaml:"health"`
}

// CoreConfig exposes the shared runtime configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.ReadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	cfg.Database = cfg.Database.WithDefaults()

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", StoragePostgres:
		cfg.Storage.Driver = StoragePostgres
	case StorageMemory:
		cfg.Storage.Driver = d
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: postgres, memory", cfg.Storage.Driver)
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Sessions.Driver)); d {
	case "", SessionsMemory:
		cfg.Sessions.Driver = SessionsMemory
	case SessionsRedis:
		cfg.Sessions.Driver = d
		if strings.TrimSpace(cfg.Sessions.Redis.Addr) == "" {
			return fmt.Errorf("sessions.redis.addr is required when sessions.driver is 'redis'")
		}
	default:
		return fmt.Errorf("invalid sessions.driver %q; allowed: memory, redis", cfg.Sessions.Driver)
	}
	if cfg.Sessions.TTL <= 0 {
		cfg.Sessions.TTL = state.DefaultSessionTTL
	}

	if err := cfg.Payments.normalize(); err != nil {
		return err
	}

	if cfg.Escalation.Interval < 0 || cfg.Escalation.RequestTimeout < 0 ||
		cfg.Escalation.ReminderInterval < 0 || cfg.Escalation.MaxReminders < 0 {
		return fmt.Errorf("escalation settings must not be negative")
	}

	admin := cfg.Telegram.AdminID
	for _, ch := range []*int64{
		&cfg.Channels.DepositRequested,
		&cfg.Channels.DepositPending,
		&cfg.Channels.DepositCompleted,
		&cfg.Channels.WithdrawalRequested,
		&cfg.Channels.WithdrawalCompleted,
	} {
		if *ch == 0 {
			*ch = admin
		}
	}

	if strings.TrimSpace(cfg.Health.Listen) == "" {
		cfg.Health.Listen = health.DefaultListen
	}
	return nil
}

func (p *PaymentsConfig) normalize() error {
	p.Payee = strings.TrimSpace(p.Payee)
	for _, d := range p.Denominations {
		if d <= 0 {
			return fmt.Errorf("payments.denominations must be positive, got %d", d)
		}
	}

	raw := strings.TrimSpace(p.MinWithdrawal)
	if raw == "" {
		p.minWithdrawal = decimal.Zero
		return nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid payments.min_withdrawal %q: %w", p.MinWithdrawal, err)
	}
	if v.IsNegative() {
		return fmt.Errorf("payments.min_withdrawal must not be negative")
	}
	p.minWithdrawal = v
	return nil
}
