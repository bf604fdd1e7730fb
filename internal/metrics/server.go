package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer implements the Server interface. It serves Prometheus metrics
// plus the /live and /ready probes used by the orchestrator.
type HTTPServer struct {
	server *http.Server
	ready  func() bool
}

// NewHTTPServer creates an HTTPServer exposing the given registry at path,
// liveness at /live and readiness at /ready. ready may be nil, in which case
// the server always reports ready.
func NewHTTPServer(address, path string, reg *prometheus.Registry, ready func() bool) *HTTPServer {
	s := &HTTPServer{ready: ready}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)

	s.server = &http.Server{
		Addr:    address,
		Handler: mux,
	}
	return s
}

func (s *HTTPServer) handleLive(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, "liveness")
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeProbe(w, http.StatusServiceUnavailable, "readiness")
		return
	}
	writeProbe(w, http.StatusOK, "readiness")
}

func writeProbe(w http.ResponseWriter, code int, check string) {
	status := "ok"
	if code != http.StatusOK {
		status = "unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"check":  check,
	})
}

// Start begins serving. It blocks until the context is canceled or an error
// occurs. Returns nil when the server is shut down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Ensure HTTPServer implements Server.
var _ Server = (*HTTPServer)(nil)
