// Package compiler lowers decoded WebAssembly functions to a flat
// instruction stream the engine executes. Structured control flow is
// resolved to absolute jump targets and every memory access carries
// an explicit bounds check, so execution never relies on hardware
// fault interception.
package compiler

import (
	"runtime"
	"strings"

	"github.com/kilnwasm/kiln/errors"
)

// Target identifies the platform an artifact is produced for. The
// lowered form is portable, but artifacts still record their target
// so a store shared between machines rejects foreign ones instead of
// silently loading them.
type Target struct {
	OS   string `msgpack:"os"`
	Arch string `msgpack:"arch"`
}

// NativeTarget returns the target of the running process.
func NativeTarget() Target {
	return Target{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Triple renders the target as "os/arch".
func (t Target) Triple() string {
	return t.OS + "/" + t.Arch
}

// ParseTarget parses an "os/arch" triple.
func ParseTarget(s string) (Target, error) {
	os, arch, ok := strings.Cut(s, "/")
	if !ok || os == "" || arch == "" {
		return Target{}, errors.InvalidInput(errors.PhaseCompile,
			"target must be os/arch, e.g. linux/amd64")
	}
	return Target{OS: os, Arch: arch}, nil
}

// Features is the set of post-MVP proposals compilation accepts.
// Lowering fails with an unsupported-feature error before any code is
// generated when a body uses an instruction outside the enabled set.
type Features uint32

const (
	// FeatureMutableGlobal allows importing and exporting mutable
	// globals.
	FeatureMutableGlobal Features = 1 << iota
	// FeatureSignExtension allows the sign-extension operators
	// (i32.extend8_s and friends).
	FeatureSignExtension
	// FeatureMultiValue allows blocks and functions with multiple
	// results.
	FeatureMultiValue
	// FeatureBulkMemory allows passive segments and the data count
	// section.
	FeatureBulkMemory
	// FeatureThreads allows shared memories.
	FeatureThreads
)

// DefaultFeatures matches what mainstream toolchains emit by default.
func DefaultFeatures() Features {
	return FeatureMutableGlobal | FeatureSignExtension | FeatureMultiValue
}

// Has reports whether f includes all bits of want.
func (f Features) Has(want Features) bool { return f&want == want }

// Config carries compilation settings. The zero value is not valid;
// use NewConfig.
type Config struct {
	Target     Target
	Features   Features
	Middleware []Middleware

	// CallStackDepth bounds call nesting at execution time. Zero
	// selects DefaultCallStackDepth.
	CallStackDepth uint32
}

// DefaultCallStackDepth bounds recursion before a stack overflow trap.
const DefaultCallStackDepth = 2000

// NewConfig returns a Config for the native target with default
// features and no middleware.
func NewConfig() Config {
	return Config{
		Target:         NativeTarget(),
		Features:       DefaultFeatures(),
		CallStackDepth: DefaultCallStackDepth,
	}
}

// WithMiddleware returns a copy of c with mw appended. Middleware
// run in registration order on every function body.
func (c Config) WithMiddleware(mw ...Middleware) Config {
	c.Middleware = append(c.Middleware[:len(c.Middleware):len(c.Middleware)], mw...)
	return c
}
