package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/b1naryth1ef/tilemap/logger"
	"golang.org/x/net/netutil"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	addr     string
	maxConns int
	handler  http.Handler
	log      *logger.Logger
}

func NewServer(bind string, port, maxConns int, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		addr:     net.JoinHostPort(bind, strconv.Itoa(port)),
		maxConns: maxConns,
		handler:  handler,
		log:      log,
	}
}

func (s *Server) Addr() string {
	return s.addr
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln, at most maxConns at a time, until ctx is
// done. Open requests get a grace period to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("[web] listening", "addr", ln.Addr().String(), "max_connections", s.maxConns)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	s.log.Info("[web] stopped", "addr", ln.Addr().String())
	return err
}
