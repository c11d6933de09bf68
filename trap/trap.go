// Package trap defines the trap codes a running module can raise and
// the panic-based mechanism that carries them from the middle of
// execution to the call boundary.
package trap

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies why execution trapped.
type Code uint8

const (
	// OutOfBoundsMemoryAccess is a linear memory access outside the
	// current memory size.
	OutOfBoundsMemoryAccess Code = iota
	// OutOfBoundsTableAccess is a table access outside the table's
	// current bounds, including indirect calls through such a slot.
	OutOfBoundsTableAccess
	// IndirectCallToNull is an indirect call through an uninitialized
	// table slot.
	IndirectCallToNull
	// IndirectCallTypeMismatch is an indirect call whose expected
	// signature does not match the function in the table slot.
	IndirectCallTypeMismatch
	// IntegerOverflow is a signed division or truncation overflow,
	// e.g. INT32_MIN / -1.
	IntegerOverflow
	// IntegerDivideByZero is an integer division or remainder with a
	// zero divisor.
	IntegerDivideByZero
	// UnreachableCodeReached is execution of the unreachable
	// instruction.
	UnreachableCodeReached
	// StackOverflow is call nesting beyond the configured depth.
	StackOverflow
	// HostError carries a failure raised by a host function.
	HostError
	// OutOfFuel is exhaustion of the metering budget.
	OutOfFuel
	// Unwind is a forced unwinding of the stack, e.g. instance
	// teardown while frames are live.
	Unwind
)

func (c Code) String() string {
	switch c {
	case OutOfBoundsMemoryAccess:
		return "out of bounds memory access"
	case OutOfBoundsTableAccess:
		return "out of bounds table access"
	case IndirectCallToNull:
		return "uninitialized table element"
	case IndirectCallTypeMismatch:
		return "indirect call type mismatch"
	case IntegerOverflow:
		return "integer overflow"
	case IntegerDivideByZero:
		return "integer divide by zero"
	case UnreachableCodeReached:
		return "unreachable executed"
	case StackOverflow:
		return "call stack exhausted"
	case HostError:
		return "host error"
	case OutOfFuel:
		return "fuel exhausted"
	case Unwind:
		return "stack unwind"
	default:
		return fmt.Sprintf("trap code %d", uint8(c))
	}
}

// Frame is one entry of the wasm call stack captured when a trap
// unwound through it.
type Frame struct {
	FuncIdx  uint32
	FuncName string
}

func (f Frame) String() string {
	if f.FuncName != "" {
		return fmt.Sprintf("%s (func %d)", f.FuncName, f.FuncIdx)
	}
	return fmt.Sprintf("func %d", f.FuncIdx)
}

// Trap is the error returned from a call that trapped. It records the
// trap code, an optional host cause, and the wasm frames that were
// live when the trap fired, innermost first.
type Trap struct {
	Code   Code
	Cause  error
	Frames []Frame
}

// New returns a trap with the given code.
func New(code Code) *Trap {
	return &Trap{Code: code}
}

// FromHost wraps a host function failure as a trap.
func FromHost(err error) *Trap {
	return &Trap{Code: HostError, Cause: err}
}

func (t *Trap) Error() string {
	var b strings.Builder
	b.WriteString("wasm trap: ")
	b.WriteString(t.Code.String())
	if t.Cause != nil {
		b.WriteString(": ")
		b.WriteString(t.Cause.Error())
	}
	for _, f := range t.Frames {
		b.WriteString("\n  at ")
		b.WriteString(f.String())
	}
	return b.String()
}

func (t *Trap) Unwrap() error { return t.Cause }

// Is matches any *Trap with the same code.
func (t *Trap) Is(target error) bool {
	if o, ok := target.(*Trap); ok {
		return t.Code == o.Code
	}
	return false
}

// Is reports whether err is a trap with the given code.
func Is(err error, code Code) bool {
	var t *Trap
	return errors.As(err, &t) && t.Code == code
}

// PushFrame appends a call stack entry as the trap unwinds outward.
func (t *Trap) PushFrame(f Frame) {
	t.Frames = append(t.Frames, f)
}

// Throw raises code as a panic. Execution engines install Recover at
// the call boundary to convert it back into an error; the panic never
// escapes past that boundary.
func Throw(code Code) {
	panic(New(code))
}

// Recover inspects a recover() value. Traps are returned as errors;
// anything else is re-panicked so genuine bugs keep their stack.
func Recover(r any) error {
	if r == nil {
		return nil
	}
	if t, ok := r.(*Trap); ok {
		return t
	}
	panic(r)
}
