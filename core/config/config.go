package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"

	// DefaultLongPollTimeout applies when longpoll_timeout_seconds is 0.
	DefaultLongPollTimeout = 10 * time.Second
)

// Update classes accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

// TelegramConfig holds bot credentials and update delivery settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// 0 selects DefaultLongPollTimeout.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// LongPollTimeout returns the effective long polling timeout.
func (t TelegramConfig) LongPollTimeout() time.Duration {
	if t.LongPollTimeoutSeconds <= 0 {
		return DefaultLongPollTimeout
	}
	return time.Duration(t.LongPollTimeoutSeconds) * time.Second
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// Address is the host:port the webhook listener binds.
func (w WebhookConfig) Address() string {
	return fmt.Sprintf("%s:%d", w.Listen, w.Port)
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig throttles updates per user.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Interval is zero when rate limiting is off.
func (r RateLimitConfig) Interval() time.Duration {
	if r.IntervalMS <= 0 {
		return 0
	}
	return time.Duration(r.IntervalMS) * time.Millisecond
}

// Exclusions returns the excluded update classes as a set.
func (r RateLimitConfig) Exclusions() map[string]struct{} {
	set := make(map[string]struct{}, len(r.ExcludeUpdates))
	for _, u := range r.ExcludeUpdates {
		if u != "" {
			set[u] = struct{}{}
		}
	}
	return set
}

// Config aggregates the transport-level configuration shared by the runtime packages.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := ReadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadFile decodes the YAML file at path into dst and applies environment
// overrides on top of it.
func ReadFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Normalize validates required fields and fills defaults in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	if err := cfg.normalizeTelegram(); err != nil {
		return err
	}
	if err := cfg.normalizeRunMode(); err != nil {
		return err
	}
	return cfg.normalizeRateLimit()
}

func (c *Config) normalizeTelegram() error {
	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	if c.Telegram.Token == "" {
		return errors.New("config: telegram.token is required")
	}
	if c.Telegram.AdminID <= 0 {
		return errors.New("config: telegram.admin_id is required: operator commands are accepted from this user only")
	}
	return nil
}

func (c *Config) normalizeRunMode() error {
	mode := strings.ToLower(strings.TrimSpace(c.Telegram.RunMode))
	switch mode {
	case "", "polling":
		mode = RunModeLongpoll
	}

	switch mode {
	case RunModeWebhook:
		switch {
		case strings.TrimSpace(c.Webhook.URL) == "":
			return errors.New("config: webhook.url is required in webhook mode")
		case strings.TrimSpace(c.Webhook.Listen) == "":
			return errors.New("config: webhook.listen is required in webhook mode")
		case c.Webhook.Port <= 0:
			return errors.New("config: webhook.port must be > 0 in webhook mode")
		}
	case RunModeLongpoll:
		if c.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("config: telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("config: invalid telegram.run_mode %q; allowed: webhook, longpoll", c.Telegram.RunMode)
	}
	c.Telegram.RunMode = mode
	return nil
}

func (c *Config) normalizeRateLimit() error {
	if c.RateLimit.IntervalMS < 0 {
		return errors.New("config: rate_limit.interval_ms must be >= 0")
	}
	for i, v := range c.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		switch key {
		case "", UpdateCallback, UpdateMessage, UpdateInlineQuery:
			c.RateLimit.ExcludeUpdates[i] = key
		default:
			return fmt.Errorf("config: invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
	}
	return nil
}
