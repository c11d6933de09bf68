package engine

import (
	"context"
	"sync/atomic"

	"github.com/kilnwasm/kiln"
	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/vm"
	"github.com/kilnwasm/kiln/wasm"
)

// Artifact is a compiled module bound to the engine that produced or
// loaded it. Artifacts are reference counted: every instantiation
// retains, every instance teardown releases, and the compiled code is
// only dropped when the count reaches zero.
type Artifact struct {
	engineID kiln.EngineID
	cfg      compiler.Config
	module   *wasm.Module
	compiled *compiler.Module

	refs atomic.Int64
}

func newArtifact(id kiln.EngineID, cfg compiler.Config, m *wasm.Module, c *compiler.Module) *Artifact {
	a := &Artifact{engineID: id, cfg: cfg, module: m, compiled: c}
	a.refs.Store(1)
	return a
}

// Module returns the source module's metadata: types, imports,
// exports, and segments.
func (a *Artifact) Module() *wasm.Module { return a.module }

// EngineID returns the flavor of the engine that produced the
// artifact.
func (a *Artifact) EngineID() kiln.EngineID { return a.engineID }

// Refs returns the current reference count.
func (a *Artifact) Refs() int64 { return a.refs.Load() }

// Retain takes a reference. It fails once the count has reached zero;
// a dead artifact cannot be revived.
func (a *Artifact) Retain() error {
	for {
		n := a.refs.Load()
		if n <= 0 {
			return errors.Closed("artifact")
		}
		if a.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference. When the last reference goes, the
// compiled code is released; further use fails.
func (a *Artifact) Release() {
	if a.refs.Add(-1) == 0 {
		a.compiled = nil
	}
}

// alive reports whether the artifact still holds its compiled code.
func (a *Artifact) alive() bool { return a.refs.Load() > 0 && a.compiled != nil }

// Bind installs entry points on inst's locally-defined functions so
// calling them executes this artifact's compiled bodies. The instance
// reaches execution through its arena handle, never a retained
// pointer.
func (a *Artifact) Bind(inst *vm.Instance) error {
	if !a.alive() {
		return errors.Closed("artifact")
	}
	imported := a.module.NumImportedFuncs()
	for i := range a.compiled.Funcs {
		fnIdx := imported + uint32(i)
		fn := inst.Funcs[fnIdx]
		handle := inst.Handle
		fn.Bind(func(ctx context.Context, args []uint64) ([]uint64, error) {
			return a.call(ctx, handle, fnIdx, args)
		})
	}
	return nil
}
