package quickjs

import (
	"errors"
	"strings"
	"testing"
)

func newTestRuntime(t *testing.T) *qjsRuntime {
	t.Helper()
	r, err := newRuntime()
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestEvalConversions(t *testing.T) {
	r := newTestRuntime(t)

	s, err := r.EvalString("'a' + 'b'")
	if err != nil || s != "ab" {
		t.Fatalf("EvalString = %q, %v", s, err)
	}
	n, err := r.EvalInt("6 * 7")
	if err != nil || n != 42 {
		t.Fatalf("EvalInt = %d, %v", n, err)
	}
	b, err := r.EvalBool("1 < 2")
	if err != nil || !b {
		t.Fatalf("EvalBool = %v, %v", b, err)
	}
	if _, err := r.EvalBool("'x'"); err == nil {
		t.Fatal("EvalBool on a string should fail")
	}
}

func TestRegisterFuncUnwrapsErrors(t *testing.T) {
	r := newTestRuntime(t)

	if err := r.RegisterFunc("half", func(n int) (int, error) {
		if n%2 != 0 {
			return 0, errors.New("odd input")
		}
		return n / 2, nil
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	n, err := r.EvalInt("half(10)")
	if err != nil || n != 5 {
		t.Fatalf("half(10) = %d, %v", n, err)
	}

	msg, err := r.EvalString(`(function() {
		try { half(3); return 'no throw'; } catch (e) { return e.name + ': ' + e.message; }
	})()`)
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if !strings.HasPrefix(msg, "TypeError") || !strings.Contains(msg, "odd input") {
		t.Fatalf("error = %q", msg)
	}
}

func TestSetGlobal(t *testing.T) {
	r := newTestRuntime(t)
	if err := r.SetGlobal("greeting", "hi"); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	s, err := r.EvalString("greeting + '!'")
	if err != nil || s != "hi!" {
		t.Fatalf("got %q, %v", s, err)
	}
}

func TestRunMicrotasks(t *testing.T) {
	r := newTestRuntime(t)
	if !r.ok {
		t.Skip("VM internals not extractable")
	}
	if err := r.Eval("globalThis.done = false; Promise.resolve().then(function() { globalThis.done = true; });"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	r.RunMicrotasks()
	done, err := r.EvalBool("globalThis.done")
	if err != nil || !done {
		t.Fatalf("promise reaction did not run: %v, %v", done, err)
	}
}

func TestCollectGarbageReclaimsCycles(t *testing.T) {
	r := newTestRuntime(t)
	if _, ok := r.HeapObjects(); !ok {
		t.Skip("heap statistics unavailable")
	}

	r.CollectGarbage()
	base, _ := r.HeapObjects()

	// Cyclic garbage survives reference counting and needs the collector.
	if err := r.Eval(`(function() {
		for (var i = 0; i < 500; i++) { var a = {}; var b = { a: a }; a.b = b; }
	})()`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	grown, _ := r.HeapObjects()
	if grown <= base {
		t.Fatalf("expected garbage to raise object count: base %d, grown %d", base, grown)
	}

	r.CollectGarbage()
	after, _ := r.HeapObjects()
	if after > base {
		t.Fatalf("object count %d after GC, want <= %d", after, base)
	}
}

func TestCallString(t *testing.T) {
	r := newTestRuntime(t)
	if err := r.Eval(`function join3(a, b, c) { return [a, b, c].join("-"); }`); err != nil {
		t.Fatalf("Eval: %v", err)
	}

	for i := 0; i < 3; i++ {
		s, err := r.CallString("join3", 1, 22, i)
		if err != nil {
			t.Fatalf("CallString: %v", err)
		}
		if want := "1-22-" + string(rune('0'+i)); s != want {
			t.Fatalf("CallString = %q, want %q", s, want)
		}
	}
	if _, err := r.CallString("missing"); err == nil {
		t.Fatal("calling an undefined function should fail")
	}
}
