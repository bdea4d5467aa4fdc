package phasejs

import (
	"fmt"
	"sync"

	"github.com/cryguy/phasejs/internal/core"
	"github.com/cryguy/phasejs/internal/script"
)

// generation is one load of the location configuration, compiled once per
// worker. A reload replaces the engine's generation; the old one is
// invalidated and its workers are closed as they come back.
type generation struct {
	id        int64
	engine    *Engine
	plan      *script.Plan
	workers   chan *Worker
	size      int
	locations []string
	compiles  int

	mu      sync.Mutex
	invalid bool
	done    chan struct{} // closed on invalidation
}

// newGeneration reads the sources of locs once and compiles them once per
// engine worker, one PhaseTable each.
func newGeneration(e *Engine, id int64, locs []core.LocationConfig) (*generation, error) {
	plan, err := script.Prepare(e.loader, locs)
	if err != nil {
		return nil, err
	}

	size := e.config.Workers
	g := &generation{
		id:      id,
		engine:  e,
		plan:    plan,
		workers: make(chan *Worker, size),
		size:    size,
		done:    make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		w, err := g.newWorker()
		if err != nil {
			g.invalidate()
			if i == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("creating worker %d: %w", i, err)
		}
		g.compiles += w.table.Compiles()
		if g.locations == nil {
			g.locations = w.table.Locations()
		}
		g.workers <- w
	}

	return g, nil
}

func (g *generation) newWorker() (*Worker, error) {
	table, err := g.plan.Build(g.engine.factory)
	if err != nil {
		return nil, err
	}
	e := g.engine
	return &Worker{gen: g, table: table, invoker: e.invoker, engine: e}, nil
}

// replace closes a worker whose VM was poisoned and compiles a fresh one
// from the generation's plan. It returns nil if no replacement is needed
// or possible.
func (g *generation) replace(w *Worker) *Worker {
	w.table.Close()
	if !g.isValid() {
		return nil
	}
	e := g.engine
	nw, err := g.newWorker()
	if err != nil {
		e.logger.Error("replacing worker failed", "generation", g.id, "error", err)
		return nil
	}
	e.compiles.Add(int64(nw.table.Compiles()))
	e.replacements.Add(1)
	e.logger.Warn("worker replaced after a VM failure", "generation", g.id)
	return nw
}

// put returns a worker to the generation, or closes it if the generation
// was invalidated while the worker was out. A poisoned worker is replaced
// by a freshly compiled one.
func (g *generation) put(w *Worker) {
	if w.table.Poisoned() {
		if w = g.replace(w); w == nil {
			return
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.invalid {
		w.table.Close()
		return
	}
	select {
	case g.workers <- w:
	default:
		// More puts than workers; the caller released twice.
		w.table.Close()
	}
}

func (g *generation) isValid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.invalid
}

// invalidate marks the generation stale and closes every idle worker.
func (g *generation) invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.invalid {
		return
	}
	g.invalid = true
	close(g.done)
	for {
		select {
		case w := <-g.workers:
			w.table.Close()
		default:
			return
		}
	}
}

func (g *generation) idle() int {
	return len(g.workers)
}
