package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeDefaultsToLongpoll(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: " abc ", AdminID: 42, RunMode: "polling"}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Telegram.Token != "abc" {
		t.Fatalf("token not trimmed: %q", cfg.Telegram.Token)
	}
}

func TestNormalizeRejectsMissingCredentials(t *testing.T) {
	if err := Normalize(&Config{Telegram: TelegramConfig{AdminID: 1}}); err == nil {
		t.Fatal("expected error for empty token")
	}
	err := Normalize(&Config{Telegram: TelegramConfig{Token: "t"}})
	if err == nil || !strings.Contains(err.Error(), "admin_id") {
		t.Fatalf("expected admin_id error, got %v", err)
	}
}

func TestNormalizeWebhookRequiresListener(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t", AdminID: 1, RunMode: "webhook"}}
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected webhook validation error")
	}
}

func TestNormalizeRateLimitExclusions(t *testing.T) {
	cfg := &Config{
		Telegram:  TelegramConfig{Token: "t", AdminID: 1},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback ", ""}},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclusion not normalized: %q", cfg.RateLimit.ExcludeUpdates[0])
	}
	cfg.RateLimit.ExcludeUpdates = []string{"photo"}
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for unknown update kind")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "telegram:\n  token: from-file\n  admin_id: 7\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Telegram.AdminID != 7 {
		t.Fatalf("admin id = %d", cfg.Telegram.AdminID)
	}
}

func TestAccessors(t *testing.T) {
	tg := TelegramConfig{}
	if tg.LongPollTimeout() != DefaultLongPollTimeout {
		t.Fatalf("default timeout = %s", tg.LongPollTimeout())
	}
	tg.LongPollTimeoutSeconds = 25
	if tg.LongPollTimeout().Seconds() != 25 {
		t.Fatalf("timeout = %s", tg.LongPollTimeout())
	}

	if got := (WebhookConfig{Listen: "0.0.0.0", Port: 8443}).Address(); got != "0.0.0.0:8443" {
		t.Fatalf("address = %q", got)
	}

	rl := RateLimitConfig{IntervalMS: 250, ExcludeUpdates: []string{UpdateCallback, ""}}
	if rl.Interval().Milliseconds() != 250 {
		t.Fatalf("interval = %s", rl.Interval())
	}
	ex := rl.Exclusions()
	if _, ok := ex[UpdateCallback]; !ok || len(ex) != 1 {
		t.Fatalf("exclusions = %v", ex)
	}
	if (RateLimitConfig{}).Interval() != 0 {
		t.Fatal("disabled limit must have zero interval")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}
