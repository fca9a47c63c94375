package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/yllada/trusttunnel-desktop/common"
)

// Server serves /metrics on a local address.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts exposing m on addr. It returns once the listener is bound.
func Serve(m *Metrics, addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogError("Metrics server stopped: %v", err)
		}
	}()
	common.LogInfo("Serving metrics on http://%s/metrics", ln.Addr())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
