package quickjs

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// executePendingJobs drains the QuickJS job queue (promise reactions) and
// returns how many jobs ran.
func executePendingJobs(cRuntime uintptr, tls *libc.TLS) int {
	count := 0
	for {
		ret := lib.XJS_ExecutePendingJob(tls, cRuntime, 0)
		if ret <= 0 {
			break
		}
		count++
	}
	return count
}

// runGC runs a full QuickJS collection cycle, freeing unreachable cycles.
func runGC(cRuntime uintptr, tls *libc.TLS) {
	lib.XJS_RunGC(tls, cRuntime)
}

// memoryUsage returns the live object count and used heap bytes.
func memoryUsage(cRuntime uintptr, tls *libc.TLS) (objects, bytes int64) {
	var usage lib.TJSMemoryUsage
	lib.XJS_ComputeMemoryUsage(tls, cRuntime, uintptr(unsafe.Pointer(&usage)))
	return int64(usage.Fobj_count), int64(usage.Fmemory_used_size)
}

// extractRuntime uses unsafe reflection to pull the unexported tls and
// cRuntime values out of a *quickjs.VM.
//
// VM struct layout (modernc.org/quickjs@v0.17.1):
//
//	type VM struct {
//	    cContext       uintptr
//	    goFuncs       map[string]int32
//	    int32_16      lib.TJSValue
//	    int32_2       lib.TJSValue
//	    runtime       *runtime
//	    ...
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
func extractRuntime(vm *quickjs.VM) (cRuntime uintptr, tls *libc.TLS, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			cRuntime, tls, ok = 0, nil, false
		}
	}()

	vmVal := reflect.ValueOf(vm).Elem()

	rtField := vmVal.FieldByName("runtime")
	if !rtField.IsValid() || rtField.IsNil() {
		return 0, nil, false
	}

	rtPtr := unsafe.Pointer(rtField.Pointer())
	rtVal := reflect.NewAt(rtField.Type().Elem(), rtPtr).Elem()

	cRuntimeField := rtVal.FieldByName("cRuntime")
	if !cRuntimeField.IsValid() {
		return 0, nil, false
	}
	cRuntime = uintptr(cRuntimeField.Uint())

	tlsField := rtVal.FieldByName("tls")
	if !tlsField.IsValid() || tlsField.IsNil() {
		return 0, nil, false
	}
	tls = (*libc.TLS)(unsafe.Pointer(tlsField.Pointer()))

	return cRuntime, tls, cRuntime != 0
}
