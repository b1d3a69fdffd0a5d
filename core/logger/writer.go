package logger

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// bufferedWriter fans lines out to several sinks through one buffer and
// flushes on a timer, on ERROR records and on Close.
type bufferedWriter struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	err    error
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	closed bool
}

const flushEvery = 500 * time.Millisecond

func newBufferedWriter(sinks []io.Writer, size int) *bufferedWriter {
	if size <= 0 {
		size = 64 * 1024
	}
	w := &bufferedWriter{
		buf:  bufio.NewWriterSize(io.MultiWriter(sinks...), size),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.flushLoop()
	return w
}

func (w *bufferedWriter) flushLoop() {
	defer close(w.done)
	t := time.NewTicker(flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = w.Flush()
		case <-w.stop:
			return
		}
	}
}

// Write buffers one line. After the first sink error every call fails.
func (w *bufferedWriter) Write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.New("logger: writer closed")
	}
	if _, err := w.buf.Write(p); err != nil {
		w.err = err
		return err
	}
	if bytes.Contains(p, []byte(`"level":"ERROR"`)) || bytes.Contains(p, []byte("level=ERROR")) {
		return w.flushLocked()
	}
	return nil
}

func (w *bufferedWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *bufferedWriter) flushLocked() error {
	if w.err != nil {
		return w.err
	}
	if err := w.buf.Flush(); err != nil {
		w.err = err
	}
	return w.err
}

// Close stops the flush timer and writes out what is buffered.
func (w *bufferedWriter) Close() error {
	w.once.Do(func() {
		close(w.stop)
		<-w.done
	})
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.flushLocked()
}
