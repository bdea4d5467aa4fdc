// Package quickjs is the default VM backend, built on the pure-Go
// modernc.org/quickjs engine.
package quickjs

import (
	"fmt"

	"github.com/cryguy/phasejs/internal/core"
	"modernc.org/quickjs"
)

// Factory creates QuickJS VMs.
type Factory struct{}

var _ core.VMFactory = Factory{}

// NewFactory returns the QuickJS VM factory.
func NewFactory() Factory { return Factory{} }

// Name implements core.VMFactory.
func (Factory) Name() string { return "quickjs" }

// NewVM implements core.VMFactory.
func (Factory) NewVM() (core.VM, error) {
	return newRuntime()
}

func newRuntime() (*qjsRuntime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	r := &qjsRuntime{vm: vm}
	r.cRuntime, r.tls, r.ok = extractRuntime(vm)
	return r, nil
}

// CollectGarbage runs a full collection cycle.
func (r *qjsRuntime) CollectGarbage() {
	if r.ok {
		runGC(r.cRuntime, r.tls)
	}
}

// HeapObjects reports the runtime's live object count.
func (r *qjsRuntime) HeapObjects() (int64, bool) {
	if !r.ok {
		return 0, false
	}
	n, _ := memoryUsage(r.cRuntime, r.tls)
	return n, true
}

// HeapBytes reports the runtime's used heap size.
func (r *qjsRuntime) HeapBytes() uint64 {
	if !r.ok {
		return 0
	}
	_, n := memoryUsage(r.cRuntime, r.tls)
	return uint64(n)
}

// Close releases the VM.
func (r *qjsRuntime) Close() {
	r.vm.Close()
}
