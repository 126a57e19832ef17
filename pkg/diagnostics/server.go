// Package diagnostics implements the dump() surface from spec.md §6: a
// plain-text snapshot of every open camera and its clients, exposed over
// HTTP. Grounded on the teacher's pkg/api.Server: same ServeMux-plus-
// middleware shape, stripped of everything Cloudflare/session-specific.
package diagnostics

import (
	"context"
	"net/http"
	"time"

	"github.com/ethan/evs-multiplexer/pkg/logger"
	"github.com/ethan/evs-multiplexer/pkg/registry"
)

// Server serves the multiplexer's diagnostics dump.
type Server struct {
	reg        *registry.Registry
	logger     *logger.Logger
	httpServer *http.Server
}

// NewServer constructs a diagnostics Server over reg.
func NewServer(reg *registry.Registry, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{reg: reg, logger: log}
}

// Start begins serving on addr in the background. It waits up to 100ms:
// a startup error reported in that window is returned, otherwise it
// returns nil.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/dump", s.handleDump)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withLogging(mux),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("diagnostics server error", "err", err)
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("diagnostics server started", "addr", addr)
		return nil
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, cam := range s.reg.Cameras() {
		cam.Dump(w)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("diagnostics request",
			"method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}
