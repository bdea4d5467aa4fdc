// Package phasejs runs JavaScript phase handlers inside an HTTP server's
// request pipeline. Scripts are compiled once per configuration load and
// invoked per request with explicit request bindings.
package phasejs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cryguy/phasejs/internal/core"
	"github.com/cryguy/phasejs/internal/script"
)

// ErrNotLoaded is returned by Acquire before the first successful Load.
var ErrNotLoaded = errors.New("no configuration loaded")

// Engine owns the compiled scripts of the current configuration, one copy
// per worker, and hands workers out to requests.
type Engine struct {
	config  EngineConfig
	factory core.VMFactory
	loader  SourceLoader
	logger  *slog.Logger
	invoker script.Invoker

	mu      sync.RWMutex
	current *generation
	nextGen int64
	closed  bool

	compiles     atomic.Int64
	invocations  atomic.Int64
	replacements atomic.Int64
}

// NewEngine creates an Engine. A nil loader reads script files from disk; a
// nil logger uses slog.Default.
func NewEngine(cfg EngineConfig, loader SourceLoader, logger *slog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if loader == nil {
		loader = script.FileLoader{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		config:  cfg,
		factory: newFactory(),
		loader:  loader,
		logger:  logger,
		invoker: script.Invoker{FailOnException: cfg.FailOnException},
	}
}

// Backend names the VM backend the engine was built with.
func (e *Engine) Backend() string { return e.factory.Name() }

// Load compiles locs once per worker and makes the result current. Calling
// it again is a full reload: on success the previous generation is
// invalidated, idle workers are closed at once and busy ones when they are
// released. On failure the previous generation stays current.
func (e *Engine) Load(locs []LocationConfig) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return core.ErrPoolClosed
	}
	e.nextGen++
	id := e.nextGen
	e.mu.Unlock()

	g, err := newGeneration(e, id, locs)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	e.compiles.Add(int64(g.compiles))

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		g.invalidate()
		return core.ErrPoolClosed
	}
	old := e.current
	e.current = g
	e.mu.Unlock()

	if old != nil {
		old.invalidate()
	}
	e.logger.Info("configuration loaded",
		"generation", id,
		"backend", e.factory.Name(),
		"workers", g.size,
		"locations", len(g.locations),
		"scripts", g.compiles/g.size)
	return nil
}

// Acquire takes a worker for one request. It blocks until a worker is free
// or ctx is done. The caller must Release the worker.
func (e *Engine) Acquire(ctx context.Context) (*Worker, error) {
	for {
		e.mu.RLock()
		g, closed := e.current, e.closed
		e.mu.RUnlock()
		if closed {
			return nil, core.ErrPoolClosed
		}
		if g == nil {
			return nil, ErrNotLoaded
		}

		select {
		case w := <-g.workers:
			return w, nil
		case <-g.done:
			// Reloaded or shut down while waiting.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a worker taken with Acquire. A worker whose VM was
// poisoned by a panic is closed and replaced with a fresh compile of the
// same generation.
func (e *Engine) Release(w *Worker) {
	if w == nil {
		return
	}
	w.gen.put(w)
}

// Locations lists the location prefixes of the current configuration.
func (e *Engine) Locations() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil
	}
	return e.current.locations
}

// Stats is a snapshot of engine activity.
type Stats struct {
	Backend     string
	Generation  int64
	Workers     int
	Idle        int
	Compiles    int64
	Invocations int64

	// Replacements counts workers rebuilt after a VM failure.
	Replacements int64
}

// Stats reports engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Backend:     e.factory.Name(),
		Compiles:    e.compiles.Load(),
		Invocations: e.invocations.Load(),

		Replacements: e.replacements.Load(),
	}
	e.mu.RLock()
	if g := e.current; g != nil {
		s.Generation = g.id
		s.Workers = g.size
		s.Idle = g.idle()
	}
	e.mu.RUnlock()
	return s
}

// Shutdown invalidates the current generation. Workers still out are
// closed when released; Acquire fails with ErrPoolClosed from now on.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	g := e.current
	e.current = nil
	e.closed = true
	e.mu.Unlock()
	if g != nil {
		g.invalidate()
	}
}

// Worker is one compiled copy of the configuration. It serves a single
// request at a time.
type Worker struct {
	gen     *generation
	table   *script.PhaseTable
	invoker script.Invoker
	engine  *Engine
}

// Generation identifies the configuration load the worker belongs to.
func (w *Worker) Generation() int64 { return w.gen.id }

// Locations lists the worker's location prefixes.
func (w *Worker) Locations() []string { return w.table.Locations() }

// Configured reports whether a script exists for the slot.
func (w *Worker) Configured(location string, phase Phase, origin Origin) bool {
	return w.table.Lookup(location, phase, origin) != nil
}

// Invoke runs the script configured for (location, phase, origin) against
// req. Without a script it returns OutcomeNotConfigured.
func (w *Worker) Invoke(location string, phase Phase, origin Origin, req Request, logger *slog.Logger) Outcome {
	cs := w.table.Lookup(location, phase, origin)
	if cs == nil {
		return core.OutcomeNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}
	w.engine.invocations.Add(1)
	return w.invoker.Invoke(cs, req, logger.With("location", location, "phase", phase.String()))
}

// VMStats reports heap statistics for each of the worker's VMs.
func (w *Worker) VMStats() []VMStats {
	vms := w.table.VMs()
	out := make([]VMStats, len(vms))
	for i, vm := range vms {
		out[i] = vm.Stats()
	}
	return out
}
