// Package errors defines the structured error type shared by every
// stage of the runtime: decoding, compilation, linking, execution,
// and artifact serialization.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode      Phase = "decode"      // binary parsing
	PhaseValidate    Phase = "validate"    // module validation
	PhaseCompile     Phase = "compile"     // lowering to executable code
	PhaseLink        Phase = "link"        // import resolution
	PhaseInstantiate Phase = "instantiate" // instance construction
	PhaseRuntime     Phase = "runtime"     // execution
	PhaseSerialize   Phase = "serialize"   // artifact to bytes
	PhaseDeserialize Phase = "deserialize" // bytes to artifact
	PhaseHost        Phase = "host"        // host function registration
	PhaseCache       Phase = "cache"       // artifact cache access
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData     Kind = "invalid_data"
	KindUnsupported     Kind = "unsupported"
	KindMiddleware      Kind = "middleware"
	KindCodegen         Kind = "codegen"
	KindTypeMismatch    Kind = "type_mismatch"
	KindMissingImport   Kind = "missing_import"
	KindCouldNotGrow    Kind = "could_not_grow"
	KindImmutableGlobal Kind = "immutable_global"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindTrap            Kind = "trap"
	KindNotFound        Kind = "not_found"
	KindNotInitialized  Kind = "not_initialized"
	KindInvalidInput    Kind = "invalid_input"
	KindIncompatible    Kind = "incompatible"
	KindRegistration    Kind = "registration"
	KindClosed          Kind = "closed"
	KindIO              Kind = "io"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Is reports whether err carries the given phase and kind anywhere in
// its chain.
func Is(err error, phase Phase, kind Kind) bool {
	return stderrors.Is(err, &Error{Phase: phase, Kind: kind})
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the entity path, e.g. an import's module and field name
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Decode creates a binary decoding error
func Decode(cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidData,
		Detail: "decode module",
		Cause:  cause,
	}
}

// Validation creates a module validation error
func Validation(cause error) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidData,
		Detail: "validate module",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Middleware creates a middleware transformation error
func Middleware(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindMiddleware,
		Path:   []string{name},
		Detail: "middleware transform",
		Cause:  cause,
	}
}

// MissingImport reports an import with no provided value
func MissingImport(module, name string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindMissingImport,
		Path:   []string{module, name},
		Detail: fmt.Sprintf("import %q.%q not provided", module, name),
	}
}

// IncompatibleImport reports a provided import whose type does not
// match what the module declares
func IncompatibleImport(module, name, expected, got string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindTypeMismatch,
		Path:   []string{module, name},
		Detail: fmt.Sprintf("expected %s, got %s", expected, got),
	}
}

// CouldNotGrow reports a failed memory or table growth
func CouldNotGrow(what string, current, delta uint64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindCouldNotGrow,
		Detail: fmt.Sprintf("%s of size %d could not grow by %d", what, current, delta),
		Value:  delta,
	}
}

// ImmutableGlobal reports a write to a constant global
func ImmutableGlobal(name string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindImmutableGlobal,
		Detail: fmt.Sprintf("global %s is immutable", name),
	}
}

// OutOfBounds creates an out of bounds access error
func OutOfBounds(phase Phase, what string, offset, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("%s access at %d exceeds size %d", what, offset, length),
		Value:  offset,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a host function registration error
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation wraps a failure during instance construction
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInvalidData,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Serialize creates an artifact serialization error
func Serialize(cause error) *Error {
	return &Error{
		Phase:  PhaseSerialize,
		Kind:   KindInvalidData,
		Detail: "serialize artifact",
		Cause:  cause,
	}
}

// Deserialize creates an artifact deserialization error
func Deserialize(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseDeserialize,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Incompatible reports an artifact that cannot load on this engine,
// e.g. a target triple or ABI version mismatch
func Incompatible(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseDeserialize,
		Kind:   KindIncompatible,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Closed reports use of a released artifact or instance
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s has been released", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
