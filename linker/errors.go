package linker

import (
	"github.com/kilnwasm/kiln/errors"
)

// ImportError reports an import the resolver could not supply.
type ImportError struct {
	Module string
	Name   string

	err *errors.Error
}

func newImportError(module, name string) *ImportError {
	return &ImportError{Module: module, Name: name, err: errors.MissingImport(module, name)}
}

func (e *ImportError) Error() string { return e.err.Error() }
func (e *ImportError) Unwrap() error { return e.err }

// LinkError reports a supplied import whose type does not match the
// module's declaration.
type LinkError struct {
	Module   string
	Name     string
	Expected string
	Actual   string

	err *errors.Error
}

func newLinkError(module, name, expected, actual string) *LinkError {
	return &LinkError{
		Module:   module,
		Name:     name,
		Expected: expected,
		Actual:   actual,
		err:      errors.IncompatibleImport(module, name, expected, actual),
	}
}

func (e *LinkError) Error() string { return e.err.Error() }
func (e *LinkError) Unwrap() error { return e.err }

// InstantiationError reports a failure while building the instance
// after linking succeeded, naming the step that failed.
type InstantiationError struct {
	Step  string
	Cause error

	err *errors.Error
}

func newInstantiationError(step string, cause error) *InstantiationError {
	return &InstantiationError{
		Step:  step,
		Cause: cause,
		err: errors.New(errors.PhaseInstantiate, errors.KindInvalidData).
			Path(step).
			Detail("instantiation failed during %s", step).
			Cause(cause).
			Build(),
	}
}

func (e *InstantiationError) Error() string { return e.err.Error() }
func (e *InstantiationError) Unwrap() error { return e.err }
