package core

// VM is one embedded interpreter instance. A VM is not safe for concurrent
// use; the engine guarantees a single caller at a time.
type VM interface {
	JSRuntime

	// CollectGarbage runs a full collection cycle.
	CollectGarbage()

	// HeapObjects reports the number of live heap objects. ok is false when
	// the backend cannot count them.
	HeapObjects() (n int64, ok bool)

	Close()
}

// HeapSizer is implemented by VMs that can report their used heap size.
type HeapSizer interface {
	HeapBytes() uint64
}

// VMFactory creates fresh VM instances. The QuickJS factory is the default;
// building with -tags v8 selects V8.
type VMFactory interface {
	NewVM() (VM, error)
	Name() string
}
