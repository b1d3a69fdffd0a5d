package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2})
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		if err := d.Enqueue(context.Background(), "test", "", func() error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	d.Close()
	if ran.Load() != 10 {
		t.Fatalf("ran = %d", ran.Load())
	}
	if d.Failures() != 0 {
		t.Fatalf("failures = %d", d.Failures())
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "retry", "", func() error {
		if calls.Add(1) < 3 {
			return fmt.Errorf("write: %w", syscall.ECONNRESET)
		}
		return nil
	})
	d.Close()
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if d.Failures() != 0 {
		t.Fatalf("failures = %d", d.Failures())
	}
}

func TestDispatcherCountsPermanentFailure(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	d := NewDispatcher(Options{
		Workers:      1,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		OnFailure: func(action string, err error) {
			mu.Lock()
			failed = append(failed, action)
			mu.Unlock()
		},
	})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "notify", "", func() error {
		calls.Add(1)
		return errors.New("telegram: Bad Request: chat not found (400)")
	})
	d.Close()

	if calls.Load() != 1 {
		t.Fatalf("permanent error retried: calls = %d", calls.Load())
	}
	if d.Failures() != 1 {
		t.Fatalf("failures = %d", d.Failures())
	}
	if len(failed) != 1 || failed[0] != "notify" {
		t.Fatalf("OnFailure calls = %v", failed)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	d.Close()
	if err := d.Enqueue(context.Background(), "late", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v", err)
	}
	if err := d.Enqueue(context.Background(), "nil", "", nil); err == nil {
		t.Fatal("nil run accepted")
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	_ = d.Enqueue(context.Background(), "block", "", func() error {
		close(started)
		<-release
		return nil
	})
	<-started
	_ = d.Enqueue(context.Background(), "buffered", "", func() error { return nil })
	if err := d.Enqueue(context.Background(), "overflow", "", func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v", err)
	}
	close(release)
	d.Close()
}

func TestRedactAndKind(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": EOF`)
	if got := redact(err); got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF` {
		t.Fatalf("redact = %q", got)
	}
	if errorKind(&net.OpError{Op: "dial", Err: errors.New("refused")}) != "dial" {
		t.Fatal("dial kind")
	}
	if errorKind(context.DeadlineExceeded) != "timeout" {
		t.Fatal("timeout kind")
	}
	if errorKind(errors.New("x")) != "unknown" {
		t.Fatal("unknown kind")
	}
}
