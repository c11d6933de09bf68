package runtime

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/engine"
	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/linker"
	"github.com/kilnwasm/kiln/vm"
	"github.com/kilnwasm/kiln/wasm"
)

// Options configures a Runtime.
type Options struct {
	// Config is the compilation configuration. The zero value selects
	// the native target with default features.
	Config compiler.Config

	// Headless disables the compiler: the runtime can only load
	// precompiled artifacts. Compile calls fail with a capability
	// error.
	Headless bool

	// Cache, when set, wraps the compile path with a content
	// addressed artifact cache.
	Cache engine.Cache
}

// Runtime bundles an engine, a linker, and a host function registry.
type Runtime struct {
	eng    engine.Engine
	linker *linker.Linker
	hosts  *HostRegistry
}

// New builds a runtime from opts.
func New(opts Options) *Runtime {
	cfg := opts.Config
	if cfg.Target == (compiler.Target{}) {
		cfg.Target = compiler.NativeTarget()
	}
	if cfg.Features == 0 {
		cfg.Features = compiler.DefaultFeatures()
	}

	var eng engine.Engine
	if opts.Headless {
		eng = engine.NewHeadlessFor(cfg.Target, cfg.Features)
	} else {
		var c engine.Compiler = engine.NewUniversal(cfg)
		if opts.Cache != nil {
			c = engine.NewCachedEngine(c, opts.Cache)
		}
		eng = c
	}
	return &Runtime{
		eng:    eng,
		linker: linker.New(),
		hosts:  NewHostRegistry(),
	}
}

// Engine exposes the underlying engine.
func (r *Runtime) Engine() engine.Engine { return r.eng }

// Linker exposes the underlying linker.
func (r *Runtime) Linker() *linker.Linker { return r.linker }

// RegisterFunc binds a Go function as a host import. Modules linked
// afterwards resolve namespace.name to it.
func (r *Runtime) RegisterFunc(namespace, name string, fn any) error {
	return r.hosts.RegisterFunc(namespace, name, fn)
}

// Validate decodes and validates wasmBytes without compiling.
func (r *Runtime) Validate(wasmBytes []byte) error {
	_, err := wasm.ParseModuleValidate(wasmBytes)
	return err
}

// Compile produces an artifact from a wasm binary. Fails on a
// headless runtime.
func (r *Runtime) Compile(ctx context.Context, wasmBytes []byte) (*engine.Artifact, error) {
	c, ok := r.eng.(engine.Compiler)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseCompile, "engine cannot compile, only load artifacts")
	}
	return c.Compile(ctx, wasmBytes)
}

// CompileFile compiles the wasm binary at path.
func (r *Runtime) CompileFile(ctx context.Context, path string) (*engine.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindIO, err, "reading module file")
	}
	return r.Compile(ctx, data)
}

// LoadArtifact deserializes a previously serialized artifact.
func (r *Runtime) LoadArtifact(data []byte) (*engine.Artifact, error) {
	return r.eng.Deserialize(data)
}

// LoadArtifactFile deserializes the artifact at path.
func (r *Runtime) LoadArtifactFile(path string) (*engine.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDeserialize, errors.KindIO, err, "reading artifact file")
	}
	return r.LoadArtifact(data)
}

// Instantiate links an artifact against the registered host functions
// plus any extra resolvers, checked in order before the registry.
func (r *Runtime) Instantiate(ctx context.Context, a *engine.Artifact, extra ...linker.ImportResolver) (*Instance, error) {
	resolver := linker.ImportResolver(r.hosts)
	if len(extra) > 0 {
		resolver = chainResolver(append(extra, resolver))
	}
	inst, err := r.linker.Instantiate(ctx, a, resolver)
	if err != nil {
		return nil, err
	}
	Logger().Debug("instance ready", zap.Int("exports", len(inst.Exports)))
	return &Instance{inst: inst}, nil
}

// chainResolver tries each resolver in order.
type chainResolver []linker.ImportResolver

func (c chainResolver) Resolve(module, name string) (vm.Extern, bool) {
	for _, r := range c {
		if ext, ok := r.Resolve(module, name); ok {
			return ext, true
		}
	}
	return vm.Extern{}, false
}
