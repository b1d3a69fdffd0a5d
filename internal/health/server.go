package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/paydesk/core/logger"
)

// DefaultListen is used when no listen address is configured.
const DefaultListen = ":10000"

// Server runs the HTTP surface in the background.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewServer prepares a server for handler on listen.
func NewServer(listen string, handler http.Handler) *Server {
	if listen == "" {
		listen = DefaultListen
	}
	return &Server{srv: &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start binds the listener and serves until Shutdown. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	logger.Info(ctx, "http", "server.start", slog.String("listen", ln.Addr().String()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http", "server.serve", slog.String("err", err.Error()))
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	logger.Info(ctx, "http", "server.stop")
	return err
}
