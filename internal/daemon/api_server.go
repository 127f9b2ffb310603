package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"mediapipe/internal/logging"
)

// apiServer owns the HTTP listener. Read and write deadlines are left unset:
// uploads stream through the request body and websocket connections are long
// lived.
type apiServer struct {
	bind   string
	logger *slog.Logger
	http   *http.Server
	addr   atomic.Pointer[string]
}

func newAPIServer(bind string, handler http.Handler, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       time.Minute,
		},
	}
}

// start binds synchronously so a port conflict fails daemon startup, then
// serves until ctx ends or stop is called.
func (s *apiServer) start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", s.bind, err)
	}
	addr := ln.Addr().String()
	s.addr.Store(&addr)

	go func() {
		err := s.http.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		logging.ErrorWithContext(s.logger, "api server stopped unexpectedly", "api_server_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check server.bind"),
		)
	}()
	context.AfterFunc(ctx, s.stop)

	s.logger.Info("api server listening", logging.String("address", addr))
	return nil
}

func (s *apiServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		logging.WarnWithContext(s.logger, "api server shutdown incomplete", "api_shutdown_incomplete",
			logging.Error(err),
			logging.String(logging.FieldImpact, "open connections were dropped"),
		)
	}
}

func (s *apiServer) address() string {
	if addr := s.addr.Load(); addr != nil {
		return *addr
	}
	return ""
}
