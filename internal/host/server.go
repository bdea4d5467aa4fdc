// Package host serves HTTP requests through the script phase pipeline.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/cryguy/phasejs"
)

// Options configures a Server.
type Options struct {
	// Compression enables brotli for clients that accept it.
	Compression bool
	// MaxConnections caps concurrent connections. Zero means unlimited.
	MaxConnections int
	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server runs each request through the phases of its matching location.
type Server struct {
	engine *phasejs.Engine
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	gen     int64
	matcher []string // location prefixes, longest first
}

// New creates a Server backed by engine.
func New(engine *phasejs.Engine, opts Options, logger *slog.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, opts: opts, logger: logger}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	worker, err := s.engine.Acquire(r.Context())
	if err != nil {
		s.logger.Warn("no worker available", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	defer s.engine.Release(worker)

	resp := newResponse(w, r, s.opts.Compression)
	defer func() {
		if err := resp.finish(); err != nil {
			s.logger.Warn("finishing response", "path", r.URL.Path, "error", err)
		}
	}()

	location, ok := s.match(worker, r.URL.Path)
	if !ok {
		resp.sendError(http.StatusNotFound)
		return
	}
	logger := s.logger.With("method", r.Method, "path", r.URL.Path)
	s.runPipeline(worker, location, resp, logger)
}

// runPipeline runs the request phases in order. A phase error ends the
// pipeline with 500 unless a response was already started; an ok content
// phase or a completed response ends it normally. The log phase always runs.
func (s *Server) runPipeline(worker *phasejs.Worker, location string, resp *response, logger *slog.Logger) {
	contentRan := false

pipeline:
	for _, phase := range phasejs.Phases {
		if phase == phasejs.PhaseLog {
			break
		}
		out := s.runPhase(worker, location, phase, resp, logger)
		switch {
		case out == phasejs.OutcomeError:
			resp.sendError(http.StatusInternalServerError)
			break pipeline
		case phase == phasejs.PhaseContent && out == phasejs.OutcomeOK:
			contentRan = true
			break pipeline
		case resp.complete:
			break pipeline
		}
	}

	if !contentRan && !resp.headerSent {
		resp.sendError(http.StatusNotFound)
	}
	if err := resp.finish(); err != nil {
		logger.Warn("finishing response", "error", err)
	}

	s.runPhase(worker, location, phasejs.PhaseLog, resp, logger)
	logger.Debug("request done", "location", location, "status", resp.status)
}

// runPhase runs the file script and then the inline script of one phase.
// An error stops the phase; otherwise the last configured script decides.
func (s *Server) runPhase(worker *phasejs.Worker, location string, phase phasejs.Phase, resp *response, logger *slog.Logger) phasejs.Outcome {
	result := phasejs.OutcomeNotConfigured
	for _, origin := range []phasejs.Origin{phasejs.OriginFile, phasejs.OriginInline} {
		out := worker.Invoke(location, phase, origin, resp, logger)
		switch out {
		case phasejs.OutcomeNotConfigured:
			continue
		case phasejs.OutcomeError:
			return out
		}
		result = out
	}
	return result
}

// match returns the longest configured location prefix of path.
func (s *Server) match(worker *phasejs.Worker, path string) (string, bool) {
	s.mu.Lock()
	if s.matcher == nil || s.gen != worker.Generation() {
		locs := append([]string(nil), worker.Locations()...)
		sort.SliceStable(locs, func(i, j int) bool { return len(locs[i]) > len(locs[j]) })
		s.matcher = locs
		s.gen = worker.Generation()
	}
	matcher := s.matcher
	s.mu.Unlock()

	for _, prefix := range matcher {
		if strings.HasPrefix(path, prefix) {
			return prefix, true
		}
	}
	return "", false
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String(), "max_connections", s.opts.MaxConnections)

	select {
	case err := <-errc:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
