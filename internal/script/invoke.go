package script

import (
	"fmt"
	"log/slog"

	"github.com/cryguy/phasejs/internal/bridge"
	"github.com/cryguy/phasejs/internal/core"
)

// Invoker runs compiled scripts against requests.
type Invoker struct {
	// FailOnException reports OutcomeError after an uncaught script
	// exception. By default the exception is logged and the phase
	// succeeds.
	FailOnException bool
}

// Invoke runs cs with the default policy.
func Invoke(cs *CompiledScript, req core.Request, logger *slog.Logger) core.Outcome {
	return Invoker{}.Invoke(cs, req, logger)
}

// Invoke binds req, runs cs on its VM, resets the VM to the script's arena
// checkpoint and unbinds req. A nil cs yields OutcomeNotConfigured. The
// binding is cleared on every return path, panics included.
//
// A panic that unwinds through the interpreter leaves the VM in an unknown
// state: the VM is marked poisoned, is not reset, and every later Invoke on
// it fails with OutcomeError without running script code. The owner must
// replace it.
func (iv Invoker) Invoke(cs *CompiledScript, req core.Request, logger *slog.Logger) (outcome core.Outcome) {
	if cs == nil {
		return core.OutcomeNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}

	vm := cs.vm
	if vm.poisoned {
		logger.Error("script skipped", "origin", cs.origin, "error", "VM unusable after a panic", "kind", "vm")
		return core.OutcomeError
	}

	h := vm.bindings.Bind(&core.RequestState{Req: req, Log: logger, Origin: cs.origin})
	defer func() {
		if p := recover(); p != nil {
			vm.poisoned = true
			logger.Error("script failed", "origin", cs.origin, "error", fmt.Sprint(p), "kind", "panic")
			outcome = core.OutcomeError
		}
		vm.bindings.Unbind(h)
	}()

	res, err := bridge.Run(vm.rt, cs.unit, h)
	vm.rt.RunMicrotasks()
	vm.reset(cs.mark, logger)

	if err != nil {
		logger.Error("script failed", "origin", cs.origin, "error", err.Error(), "kind", "vm")
		return core.OutcomeError
	}
	if res.Err != nil {
		if res.Err.Describable {
			logger.Error("script failed", "origin", cs.origin, "error", res.Err.Description, "kind", res.Err.Kind)
		} else {
			logger.Debug("script failed without a description", "origin", cs.origin, "kind", res.Err.Kind)
		}
		if iv.FailOnException {
			return core.OutcomeError
		}
		return core.OutcomeOK
	}
	return outcomeFor(res.Code)
}

// reset rolls the VM back to arena mark and collects what the invocation
// left behind.
func (v *VM) reset(mark int, logger *slog.Logger) {
	if _, err := bridge.Reset(v.rt, mark); err != nil {
		logger.Warn("arena reset failed", "error", err)
	}
	v.rt.CollectGarbage()
}

func outcomeFor(code int) core.Outcome {
	switch code {
	case core.ResultDeclined:
		return core.OutcomeDeclined
	case core.ResultError:
		return core.OutcomeError
	default:
		return core.OutcomeOK
	}
}
