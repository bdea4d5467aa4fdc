//go:build v8

// Package v8engine is the V8 VM backend, selected with -tags v8.
package v8engine

import (
	"fmt"
	"sync"

	"github.com/cryguy/phasejs/internal/core"
	v8 "github.com/tommie/v8go"
)

var flagsOnce sync.Once

// Factory creates V8 VMs, one isolate and context each.
type Factory struct{}

var _ core.VMFactory = Factory{}

// NewFactory returns a V8 VM factory.
func NewFactory() Factory { return Factory{} }

// Name implements core.VMFactory.
func (Factory) Name() string { return "v8" }

// NewVM implements core.VMFactory.
func (Factory) NewVM() (core.VM, error) {
	flagsOnce.Do(func() { v8.SetFlags("--expose-gc") })

	iso := v8.NewIsolate()
	r := &v8Runtime{iso: iso, ctx: v8.NewContext(iso), funcs: make(map[string]*v8.Function)}
	if err := r.hideGC(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// hideGC keeps the exposed gc hook for CollectGarbage and removes it from
// globalThis so scripts cannot call it.
func (r *v8Runtime) hideGC() error {
	global := r.ctx.Global()
	val, err := global.Get("gc")
	if err != nil {
		return fmt.Errorf("reading gc hook: %w", err)
	}
	if fn, err := val.AsFunction(); err == nil {
		r.gc = fn
	} else {
		release(val)
	}
	if err := r.Eval("delete globalThis.gc"); err != nil {
		return fmt.Errorf("removing gc hook: %w", err)
	}
	return nil
}

// CollectGarbage requests a full collection through the gc hook.
func (r *v8Runtime) CollectGarbage() {
	if r.gc == nil {
		return
	}
	undef := v8.Undefined(r.iso)
	out, err := r.gc.Call(undef)
	if err == nil {
		release(out)
	}
}

// HeapObjects is not available on V8.
func (r *v8Runtime) HeapObjects() (int64, bool) {
	return 0, false
}

// HeapBytes reports the isolate's used heap size.
func (r *v8Runtime) HeapBytes() uint64 {
	return r.iso.GetHeapStatistics().UsedHeapSize
}

// Close releases the context and isolate.
func (r *v8Runtime) Close() {
	r.ctx.Close()
	r.iso.Dispose()
}
