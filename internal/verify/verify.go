// Package verify implements the engine's single unrecoverable-condition
// signal: a typed panic value caught only at the VM loop's per-step
// boundary, mirroring the original emulator's verify() macro (a scoped,
// catchable assertion rather than process abort).
package verify

import "fmt"

// Failure is raised for conditions the spec calls verification failures:
// decoder failure, memory fault, and unimplemented opcode. It is never
// recovered mid-instruction — only the VM loop's top-level wrapper may
// catch it.
type Failure struct {
	Reason string
}

func (f Failure) Error() string { return f.Reason }

// That panics with a Failure if cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		panic(Failure{Reason: fmt.Sprintf(format, args...)})
	}
}

// Fail unconditionally raises a Failure.
func Fail(format string, args ...any) {
	panic(Failure{Reason: fmt.Sprintf(format, args...)})
}

// Recover should be deferred at the one boundary allowed to catch a
// Failure. It calls onFailure with the reason if a Failure propagated,
// and re-panics any other value.
func Recover(onFailure func(reason string)) {
	r := recover()
	if r == nil {
		return
	}
	if f, ok := r.(Failure); ok {
		onFailure(f.Reason)
		return
	}
	panic(r)
}
