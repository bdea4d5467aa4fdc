// Package bridge implements the native capability bridge: the host
// operations reachable from script code, and the JS-side unit registry the
// invocation engine drives.
package bridge

import (
	"fmt"

	"github.com/cryguy/phasejs/internal/core"
)

// SetupFunc configures a VM with part of the bridge.
type SetupFunc func(rt core.JSRuntime, b *core.Bindings) error

var setupFuncs = []SetupFunc{
	// Go-backed natives: send_header, rputs, content type, uri, log, console
	SetupNative,
	// Nginx constants, the per-handle Nginx object and Nginx.Request
	SetupNginx,
	// Unit registry, dispatcher and arena marks
	SetupDispatcher,
}

// Setup registers the full capability bridge on rt. It runs once per VM,
// before any unit is compiled on it.
func Setup(rt core.JSRuntime, b *core.Bindings) error {
	for i, setup := range setupFuncs {
		if err := setup(rt, b); err != nil {
			return fmt.Errorf("bridge setup step %d: %w", i, err)
		}
	}
	return nil
}
