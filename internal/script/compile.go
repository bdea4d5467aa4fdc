// Package script compiles configured scripts into reusable units, stores
// them per location and phase, and invokes them against bound requests.
package script

import (
	"fmt"

	"github.com/cryguy/phasejs/internal/bridge"
	"github.com/cryguy/phasejs/internal/core"
)

// CompileError is a configuration-time failure: the source could not be
// read or did not parse. It must abort loading.
type CompileError struct {
	Origin string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling %s: %v", e.Origin, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// VM is one interpreter instance with the capability bridge installed. It
// owns every CompiledScript compiled on it and must be used by one
// goroutine at a time.
type VM struct {
	rt       core.VM
	bindings *core.Bindings
	compiles int
	poisoned bool
}

// NewVM creates a VM from factory and installs the capability bridge.
func NewVM(factory core.VMFactory) (*VM, error) {
	rt, err := factory.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating %s VM: %w", factory.Name(), err)
	}
	b := core.NewBindings()
	if err := bridge.Setup(rt, b); err != nil {
		rt.Close()
		return nil, fmt.Errorf("setting up %s VM: %w", factory.Name(), err)
	}
	return &VM{rt: rt, bindings: b}, nil
}

// CompiledScript is one compiled unit plus the arena checkpoint taken right
// after it was compiled. It is immutable once created.
type CompiledScript struct {
	vm       *VM
	origin   string
	unit     int
	mark     int
	baseline Stats
}

// Compile creates a fresh VM and compiles src onto it.
func Compile(factory core.VMFactory, src Source) (*CompiledScript, error) {
	vm, err := NewVM(factory)
	if err != nil {
		return nil, &CompileError{Origin: src.Identity(), Err: err}
	}
	cs, err := vm.Compile(src)
	if err != nil {
		vm.Close()
		return nil, err
	}
	return cs, nil
}

// Compile compiles src as an additional unit on v.
func (v *VM) Compile(src Source) (*CompiledScript, error) {
	origin := src.Identity()
	unit, err := bridge.Compile(v.rt, src.Text, origin)
	if err != nil {
		return nil, &CompileError{Origin: origin, Err: err}
	}
	v.compiles++

	v.rt.CollectGarbage()
	mark, err := bridge.Mark(v.rt)
	if err != nil {
		return nil, &CompileError{Origin: origin, Err: fmt.Errorf("arena checkpoint: %w", err)}
	}
	cs := &CompiledScript{vm: v, origin: origin, unit: unit, mark: mark}
	cs.baseline = v.Stats()
	return cs, nil
}

// Compiles reports how many units were compiled on v.
func (v *VM) Compiles() int { return v.compiles }

// Bound reports the number of requests currently bound on v.
func (v *VM) Bound() int { return v.bindings.Len() }

// Poisoned reports whether a panic unwound through v during an invocation.
// A poisoned VM runs no more scripts and should be closed.
func (v *VM) Poisoned() bool { return v.poisoned }

// Close releases the VM. Its compiled scripts must not be invoked again.
func (v *VM) Close() { v.rt.Close() }

// Stats is a snapshot of a VM's heap.
type Stats struct {
	Globals int
	// HeapObjects is -1 when the backend cannot count objects.
	HeapObjects int64
	HeapBytes   uint64
}

// Stats reports the VM's global count and heap usage.
func (v *VM) Stats() Stats {
	var s Stats
	if n, err := bridge.Globals(v.rt); err == nil {
		s.Globals = n
	}
	s.HeapObjects = -1
	if n, ok := v.rt.HeapObjects(); ok {
		s.HeapObjects = n
	}
	if hs, ok := v.rt.(core.HeapSizer); ok {
		s.HeapBytes = hs.HeapBytes()
	}
	return s
}

// Origin is the file path the script was loaded from, or "inline".
func (cs *CompiledScript) Origin() string { return cs.origin }

// VM returns the VM that owns cs.
func (cs *CompiledScript) VM() *VM { return cs.vm }

// Baseline is the heap snapshot taken right after compilation.
func (cs *CompiledScript) Baseline() Stats { return cs.baseline }
