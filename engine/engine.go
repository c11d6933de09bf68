// Package engine turns decoded modules into executable artifacts and
// runs them. The universal engine compiles from source and loads
// serialized artifacts; the headless engine only loads, for deploy
// targets that ship precompiled artifacts without carrying the
// compiler.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/kilnwasm/kiln"
	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Engine is the capability every engine offers: loading previously
// compiled artifacts and describing its compatibility envelope.
type Engine interface {
	// ID identifies the engine flavor.
	ID() kiln.EngineID
	// Target is the platform artifacts are produced for and checked
	// against on load.
	Target() compiler.Target
	// Features is the feature set artifacts are checked against.
	Features() compiler.Features
	// Deserialize loads an artifact from the bytes a previous
	// Serialize produced. The header is fully validated before any
	// payload is touched: unknown engine ids, foreign targets, ABI
	// drift, and feature mismatches are all rejected.
	Deserialize(data []byte) (*Artifact, error)
}

// Compiler is the capability of engines that can compile from wasm
// binaries. The headless engine deliberately does not implement it.
type Compiler interface {
	Engine
	// Compile decodes, validates, and compiles a wasm binary.
	Compile(ctx context.Context, wasmBytes []byte) (*Artifact, error)
	// CompileModule compiles an already-decoded module.
	CompileModule(ctx context.Context, m *wasm.Module) (*Artifact, error)
}

// Universal is the compiling engine.
type Universal struct {
	cfg compiler.Config
}

// NewUniversal returns a universal engine with the given compilation
// config.
func NewUniversal(cfg compiler.Config) *Universal {
	if cfg.CallStackDepth == 0 {
		cfg.CallStackDepth = compiler.DefaultCallStackDepth
	}
	return &Universal{cfg: cfg}
}

func (e *Universal) ID() kiln.EngineID           { return kiln.EngineUniversal }
func (e *Universal) Target() compiler.Target     { return e.cfg.Target }
func (e *Universal) Features() compiler.Features { return e.cfg.Features }

// Compile decodes, validates, and compiles a wasm binary into an
// artifact bound to this engine.
func (e *Universal) Compile(ctx context.Context, wasmBytes []byte) (*Artifact, error) {
	m, err := wasm.ParseModule(wasmBytes)
	if err != nil {
		return nil, errors.Decode(err)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Validation(err)
	}
	return e.CompileModule(ctx, m)
}

// CompileModule compiles an already-decoded module.
func (e *Universal) CompileModule(ctx context.Context, m *wasm.Module) (*Artifact, error) {
	compiled, err := compiler.Compile(ctx, m, e.cfg)
	if err != nil {
		return nil, err
	}
	Logger().Info("module compiled",
		zap.Int("functions", len(compiled.Funcs)),
		zap.Uint32("imports", m.NumImportedFuncs()))
	return newArtifact(e.ID(), e.cfg, m, compiled), nil
}

// Deserialize loads an artifact produced by any compiling engine with
// a compatible envelope.
func (e *Universal) Deserialize(data []byte) (*Artifact, error) {
	return deserialize(e, data, e.cfg)
}

// Headless loads artifacts but cannot compile. It carries the same
// compatibility envelope as the universal engine it mirrors so the
// two agree on what an acceptable artifact is.
type Headless struct {
	target   compiler.Target
	features compiler.Features
	depth    uint32
}

// NewHeadless returns a headless engine for the native target with
// default features.
func NewHeadless() *Headless {
	return &Headless{
		target:   compiler.NativeTarget(),
		features: compiler.DefaultFeatures(),
		depth:    compiler.DefaultCallStackDepth,
	}
}

// NewHeadlessFor returns a headless engine with an explicit envelope.
func NewHeadlessFor(target compiler.Target, features compiler.Features) *Headless {
	return &Headless{target: target, features: features, depth: compiler.DefaultCallStackDepth}
}

func (e *Headless) ID() kiln.EngineID           { return kiln.EngineHeadless }
func (e *Headless) Target() compiler.Target     { return e.target }
func (e *Headless) Features() compiler.Features { return e.features }

// Deserialize loads an artifact produced by a compiling engine.
func (e *Headless) Deserialize(data []byte) (*Artifact, error) {
	cfg := compiler.Config{
		Target:         e.target,
		Features:       e.features,
		CallStackDepth: e.depth,
	}
	return deserialize(e, data, cfg)
}
