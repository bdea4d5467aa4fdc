package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/phasejs/internal/core"
)

// dispatchJS holds compiled units and runs them against a bound handle.
// Results cross the VM boundary as JSON so the Go side never inspects
// foreign exception objects.
const dispatchJS = `
(function() {
	var units = [];
	var marks = [];
	var bind = globalThis.__phasejs_bind;

	function describe(e) {
		var d = { kind: 'Throw', message: '', description: null, stack: '' };
		try {
			if (e instanceof Error) {
				d.kind = e.name ? String(e.name) : 'Error';
				d.message = e.message !== undefined ? String(e.message) : '';
				d.stack = e.stack ? String(e.stack) : '';
			} else if (e !== null && typeof e === 'object' && e.constructor && e.constructor.name) {
				d.kind = String(e.constructor.name);
			}
		} catch (ignored) {}
		try {
			var s = String(e);
			if (typeof s === 'string') d.description = s;
		} catch (ignored) {}
		return d;
	}

	Object.defineProperty(globalThis, '__phasejs', {
		enumerable: false,
		value: {
			compile: function(src, name) {
				try {
					var fn = new Function('Nginx', 'console', src + '\n//# sourceURL=' + name);
					units.push(fn);
					return JSON.stringify({ id: units.length - 1 });
				} catch (e) {
					return JSON.stringify({ error: describe(e) });
				}
			},
			run: function(id, handle) {
				var fn = units[id];
				if (typeof fn !== 'function') {
					return JSON.stringify({ error: { kind: 'ReferenceError', message: 'no unit ' + id,
						description: 'ReferenceError: no unit ' + id, stack: '' } });
				}
				try {
					var rv = fn.call(undefined, bind.nginx(handle), bind.console(handle));
					var code = (typeof rv === 'number' && rv === (rv | 0)) ? rv : 0;
					return JSON.stringify({ code: code });
				} catch (e) {
					return JSON.stringify({ error: describe(e) });
				}
			},
			mark: function() {
				var set = {};
				var names = Object.getOwnPropertyNames(globalThis);
				for (var i = 0; i < names.length; i++) set[names[i]] = true;
				marks.push(set);
				return marks.length - 1;
			},
			reset: function(id) {
				var set = marks[id];
				if (!set) return -1;
				var names = Object.getOwnPropertyNames(globalThis);
				var removed = 0;
				for (var i = 0; i < names.length; i++) {
					if (!set[names[i]]) {
						try { if (delete globalThis[names[i]]) removed++; } catch (ignored) {}
					}
				}
				return removed;
			},
			globals: function() {
				return Object.getOwnPropertyNames(globalThis).length;
			}
		}
	});
	Object.defineProperty(globalThis, '__phasejs_run', {
		enumerable: false,
		value: globalThis.__phasejs.run
	});
})();
`

// SetupDispatcher installs the unit registry. Must run after SetupNginx.
func SetupDispatcher(rt core.JSRuntime, _ *core.Bindings) error {
	if err := rt.Eval(dispatchJS); err != nil {
		return fmt.Errorf("installing dispatcher: %w", err)
	}
	return nil
}

type jsError struct {
	Kind        string  `json:"kind"`
	Message     string  `json:"message"`
	Description *string `json:"description"`
	Stack       string  `json:"stack"`
}

func (e *jsError) toScriptError() *core.ScriptError {
	se := &core.ScriptError{Kind: e.Kind, Message: e.Message, Stack: e.Stack}
	if e.Description != nil {
		se.Description = *e.Description
		se.Describable = true
	}
	return se
}

// Compile turns source into a reusable unit on rt and returns its id. A
// syntax error is returned as a *core.ScriptError.
func Compile(rt core.JSRuntime, source, name string) (int, error) {
	src, err := json.Marshal(source)
	if err != nil {
		return 0, fmt.Errorf("encoding source: %w", err)
	}
	nm, err := json.Marshal(name)
	if err != nil {
		return 0, fmt.Errorf("encoding source name: %w", err)
	}
	out, err := rt.EvalString(fmt.Sprintf("__phasejs.compile(%s, %s)", src, nm))
	if err != nil {
		return 0, fmt.Errorf("compiling: %w", err)
	}
	var res struct {
		ID    int      `json:"id"`
		Error *jsError `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return 0, fmt.Errorf("decoding compile result: %w", err)
	}
	if res.Error != nil {
		return 0, res.Error.toScriptError()
	}
	return res.ID, nil
}

// Result is the outcome of running one unit.
type Result struct {
	// Code is the script's numeric return value, or core.ResultOK.
	Code int
	// Err is the uncaught exception, if any.
	Err *core.ScriptError
}

// Run executes unit id with Nginx and console bound to h. The returned
// error reports a VM-level failure that script code could not catch. Only
// int32 return values reach Code; anything else counts as ResultOK.
func Run(rt core.JSRuntime, id int, h core.Handle) (Result, error) {
	out, err := rt.CallString("__phasejs_run", id, int(h))
	if err != nil {
		return Result{}, err
	}
	var res struct {
		Code  int      `json:"code"`
		Error *jsError `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return Result{}, fmt.Errorf("decoding run result: %w", err)
	}
	if res.Error != nil {
		return Result{Err: res.Error.toScriptError()}, nil
	}
	return Result{Code: res.Code}, nil
}

// Mark records the current set of global names and returns its id.
func Mark(rt core.JSRuntime) (int, error) {
	return rt.EvalInt("__phasejs.mark()")
}

// Reset deletes every global created since mark id and returns how many
// were removed.
func Reset(rt core.JSRuntime, id int) (int, error) {
	n, err := rt.EvalInt(fmt.Sprintf("__phasejs.reset(%d)", id))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("unknown arena mark %d", id)
	}
	return n, nil
}

// Globals returns the number of own properties of globalThis.
func Globals(rt core.JSRuntime) (int, error) {
	return rt.EvalInt("__phasejs.globals()")
}
