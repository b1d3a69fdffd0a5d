package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec, rec.Body.String()
}

func TestRoot(t *testing.T) {
	rec, body := get(t, NewRouter(nil), "/")
	if rec.Code != http.StatusOK || body != "OK" {
		t.Fatalf("GET / = %d %q", rec.Code, body)
	}
}

func TestHealth(t *testing.T) {
	rec, body := get(t, NewRouter(fakePinger{err: errors.New("down")}), "/health")
	if rec.Code != http.StatusOK || !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("GET /health = %d %q", rec.Code, body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(body, `"version":"dev (local)"`) {
		t.Fatalf("version missing: %q", body)
	}
}

func TestReady(t *testing.T) {
	rec, _ := get(t, NewRouter(fakePinger{}), "/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("ready with healthy store = %d", rec.Code)
	}
	rec, body := get(t, NewRouter(fakePinger{err: errors.New("down")}), "/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(body, "unavailable") {
		t.Fatalf("ready with failing store = %d %q", rec.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewRouter(nil)
	get(t, h, "/health")
	rec, body := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(body, `paydesk_http_requests_total{route="/health",status="200"}`) {
		t.Fatalf("request counter missing from exposition:\n%s", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	rec, _ := get(t, NewRouter(nil), "/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d", rec.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer("127.0.0.1:0", NewRouter(nil))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "OK" {
		t.Fatalf("body = %q", body)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewServerDefaultListen(t *testing.T) {
	if got := NewServer("", nil).Addr(); got != DefaultListen {
		t.Fatalf("addr = %q", got)
	}
}
