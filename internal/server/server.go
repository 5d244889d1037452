// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ShayCichocki/appforge/internal/pipeline"
	"github.com/ShayCichocki/appforge/internal/state"
	"github.com/ShayCichocki/appforge/pkg/models"
)

// Runner accepts and executes task requests.
type Runner interface {
	Accept(req models.TaskRequest) (*pipeline.Ticket, error)
	Execute(ctx context.Context, t *pipeline.Ticket) (pipeline.Result, error)
}

// Config contains configuration for a Server.
type Config struct {
	Runner Runner
	// Runs backs the /runs endpoints. If nil they answer 503.
	Runs state.RunStore
	// Async acknowledges with 202 as soon as a request is accepted and
	// runs the pipeline in the background.
	Async   bool
	Version string
	// ShutdownTimeout bounds graceful shutdown. Defaults to 30s.
	ShutdownTimeout time.Duration
}

// Server serves the task endpoint and run inspection endpoints.
type Server struct {
	runner   Runner
	runs     state.RunStore
	async    bool
	version  string
	shutdown time.Duration
	mux      *http.ServeMux

	// background tracks async runs so shutdown can wait for them.
	background sync.WaitGroup
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}
	s := &Server{
		runner:   cfg.Runner,
		runs:     cfg.Runs,
		async:    cfg.Async,
		version:  cfg.Version,
		shutdown: shutdown,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/task", s.handleTask)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /runs", s.handleRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleRun)
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and waits for background runs to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("[server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		log.Printf("[server] shutdown timed out waiting for background runs")
		return shutdownCtx.Err()
	}
}

// Wait blocks until all background runs have finished.
func (s *Server) Wait() {
	s.background.Wait()
}
