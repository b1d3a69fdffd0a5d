package database

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestUpFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_withdrawals.up.sql", "0001_init.up.sql", "0001_init.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	got := upFiles(dir)
	if len(got) != 2 || got[0] != "0001_init.up.sql" || got[1] != "0002_withdrawals.up.sql" {
		t.Fatalf("upFiles = %v", got)
	}
	if upFiles(filepath.Join(dir, "absent")) != nil {
		t.Fatal("missing dir must yield nil")
	}
}

func TestBetween(t *testing.T) {
	files := []string{"0001_init.up.sql", "0002_operator_messages.up.sql", "0003_indexes.up.sql"}
	if got := between(files, 1, 3); len(got) != 2 || got[1] != "0003_indexes.up.sql" {
		t.Fatalf("between(1,3) = %v", got)
	}
	if got := between(files, 3, 3); len(got) != 0 {
		t.Fatalf("no change yielded %v", got)
	}
}

func TestConfigDefaultsAndDSN(t *testing.T) {
	cfg := Config{User: "bot", Password: "pw", Name: "paydesk"}.WithDefaults()
	if cfg.MaxConnections != 10 || cfg.MigrationsDir != "migrations" || cfg.WaitTimeout != 30*time.Second {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	want := "postgres://bot:pw@localhost:5432/paydesk?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Fatalf("URL = %q, want %q", got, want)
	}
	if got := cfg.DSN(); got != "user=bot password=pw host=localhost port=5432 dbname=paydesk sslmode=disable" {
		t.Fatalf("DSN = %q", got)
	}
}

func TestNotReady(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"starting up", &pq.Error{Code: "57P03"}, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"bad password", &pq.Error{Code: "28P01"}, false},
		{"unknown db", &pq.Error{Code: "3D000"}, false},
		{"refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("no route to host")}, true},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := notReady(tc.err); got != tc.want {
				t.Fatalf("notReady = %v, want %v", got, tc.want)
			}
		})
	}
}
