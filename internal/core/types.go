package core

import (
	"errors"
	"fmt"
)

// Phase is one of the fixed request processing points at which the host
// runs configured scripts.
type Phase int

const (
	PhasePostRead Phase = iota
	PhaseServerRewrite
	PhaseRewrite
	PhaseAccess
	PhaseContent
	PhaseLog
)

// Phases lists every phase in the order the host runs them.
var Phases = []Phase{
	PhasePostRead,
	PhaseServerRewrite,
	PhaseRewrite,
	PhaseAccess,
	PhaseContent,
	PhaseLog,
}

var phaseNames = [...]string{
	PhasePostRead:      "post_read",
	PhaseServerRewrite: "server_rewrite",
	PhaseRewrite:       "rewrite",
	PhaseAccess:        "access",
	PhaseContent:       "content",
	PhaseLog:           "log",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ParsePhase returns the phase with the given name.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// Origin tells whether a script was configured as a file path or as
// inline text.
type Origin int

const (
	OriginFile Origin = iota
	OriginInline
)

func (o Origin) String() string {
	if o == OriginInline {
		return "inline"
	}
	return "file"
}

// Outcome is what running a phase slot reports back to the host.
type Outcome int

const (
	// OutcomeNotConfigured means no script exists for the slot; the host
	// continues normal processing.
	OutcomeNotConfigured Outcome = iota
	OutcomeOK
	OutcomeDeclined
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotConfigured:
		return "not-configured"
	case OutcomeOK:
		return "ok"
	case OutcomeDeclined:
		return "declined"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Host result codes shared with scripts. A script returning ResultDeclined
// or ResultError selects the matching outcome.
const (
	ResultOK       = 0
	ResultError    = -1
	ResultAgain    = -2
	ResultBusy     = -3
	ResultDone     = -4
	ResultDeclined = -5
	ResultAbort    = -6
)

var (
	// ErrNotBound is returned by bridge operations whose request handle is
	// no longer (or was never) bound.
	ErrNotBound = errors.New("request not bound")

	// ErrHeaderSent is returned by a Request when headers were already
	// transmitted.
	ErrHeaderSent = errors.New("header already sent")

	// ErrInvalidStatus is returned for a response status outside 100-999.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrPoolClosed is returned when acquiring from a disposed worker pool.
	ErrPoolClosed = errors.New("worker pool is closed")
)

// ValidStatus reports whether status can be sent on an HTTP status line.
func ValidStatus(status int) bool {
	return status >= 100 && status <= 999
}

// ScriptError is an uncaught exception raised by script code, converted
// into a plain value at the VM boundary.
type ScriptError struct {
	// Kind is the exception's constructor name ("Error", "TypeError", ...),
	// or "Throw" when a non-Error value was thrown.
	Kind    string
	Message string
	// Description is the exception's own string conversion. Describable is
	// false when that conversion failed or did not produce text.
	Description string
	Describable bool
	Stack       string
}

func (e *ScriptError) Error() string {
	if e.Describable {
		return e.Description
	}
	if e.Message != "" {
		return e.Kind + ": " + e.Message
	}
	return e.Kind
}
