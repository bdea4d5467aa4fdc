package core

import (
	"log/slog"
	"sync"
)

// Handle identifies one bound request. The zero Handle is never issued.
type Handle uint64

// RequestState is what bridge operations see of the request bound to a
// handle.
type RequestState struct {
	Req    Request
	Log    *slog.Logger
	Origin string // script origin, "inline" or a file path
}

// Bindings is the request binding registry of one VM. The invocation engine
// binds a request immediately before running a script and unbinds it on
// every exit path; bridge operations resolve the request from the handle
// they are called with.
type Bindings struct {
	mu     sync.Mutex
	next   Handle
	states map[Handle]*RequestState
}

// NewBindings creates an empty registry.
func NewBindings() *Bindings {
	return &Bindings{states: make(map[Handle]*RequestState)}
}

// Bind registers state and returns its handle.
func (b *Bindings) Bind(state *RequestState) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	h := b.next
	b.states[h] = state
	return h
}

// Lookup returns the state bound to h, or ErrNotBound.
func (b *Bindings) Lookup(h Handle) (*RequestState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.states[h]
	if !ok {
		return nil, ErrNotBound
	}
	return state, nil
}

// Unbind removes the state for h and returns it, or nil if h was not bound.
func (b *Bindings) Unbind(h Handle) *RequestState {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.states[h]
	if !ok {
		return nil
	}
	delete(b.states, h)
	return state
}

// Len reports the number of bound requests.
func (b *Bindings) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.states)
}
