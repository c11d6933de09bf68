package compiler

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Module is the compiled form of a source module: one lowered body
// per locally-defined function. The source module's metadata (types,
// imports, segments) travels alongside it in the engine's artifact.
type Module struct {
	Funcs []*Func `msgpack:"funcs"`
}

// Compile lowers every local function of m. Bodies compile in
// parallel; the first failure cancels the rest. Feature checks run
// before any code is generated, so a module using a disabled proposal
// fails without partial output.
func Compile(ctx context.Context, m *wasm.Module, cfg Config) (*Module, error) {
	if err := checkFeatures(m, cfg.Features); err != nil {
		return nil, err
	}

	n := len(m.Funcs)
	out := &Module{Funcs: make([]*Func, n)}
	if n == 0 {
		return out, nil
	}

	Logger().Debug("compiling module",
		zap.Int("functions", n),
		zap.String("target", cfg.Target.Triple()))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	imported := m.NumImportedFuncs()
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn, err := lowerFunc(m, &cfg, imported+uint32(i))
			if err != nil {
				return err
			}
			out.Funcs[i] = fn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// checkFeatures rejects module-level constructs outside the enabled
// feature set.
func checkFeatures(m *wasm.Module, features Features) error {
	if !features.Has(FeatureMutableGlobal) {
		for _, imp := range m.Imports {
			if imp.Kind == wasm.ExternGlobal && imp.Global.Mutable {
				return errors.Unsupported(errors.PhaseCompile,
					"mutable global import requires the mutable-global feature")
			}
		}
		numImported := m.NumImportedGlobals()
		for _, exp := range m.Exports {
			if exp.Kind != wasm.ExternGlobal || exp.Index < numImported {
				continue
			}
			if m.Globals[exp.Index-numImported].Type.Mutable {
				return errors.Unsupported(errors.PhaseCompile,
					"mutable global export requires the mutable-global feature")
			}
		}
	}
	if !features.Has(FeatureThreads) {
		for _, mem := range m.Memories {
			if mem.Limits.Shared {
				return errors.Unsupported(errors.PhaseCompile,
					"shared memory requires the threads feature")
			}
		}
		for _, imp := range m.Imports {
			if imp.Kind == wasm.ExternMemory && imp.Memory.Limits.Shared {
				return errors.Unsupported(errors.PhaseCompile,
					"shared memory requires the threads feature")
			}
		}
	}
	if !features.Has(FeatureBulkMemory) {
		if m.DataCount != nil {
			return errors.Unsupported(errors.PhaseCompile,
				"data count section requires the bulk-memory feature")
		}
		for _, seg := range m.Data {
			if seg.Passive {
				return errors.Unsupported(errors.PhaseCompile,
					"passive data segment requires the bulk-memory feature")
			}
		}
		for _, elem := range m.Elements {
			if elem.Passive {
				return errors.Unsupported(errors.PhaseCompile,
					"passive element segment requires the bulk-memory feature")
			}
		}
	}
	return nil
}
