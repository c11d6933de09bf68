package linker

import (
	"sync"

	"github.com/kilnwasm/kiln/vm"
)

// ImportResolver supplies the external values a module declares as
// imports. Lookups are keyed by module and field name. Resolvers must
// be safe for concurrent reads when instances are created from
// multiple goroutines.
type ImportResolver interface {
	Resolve(module, name string) (vm.Extern, bool)
}

// MapResolver is a map-backed resolver embedders populate with host
// functions and shared entities before instantiating.
type MapResolver struct {
	mu      sync.RWMutex
	entries map[string]vm.Extern
}

// NewMapResolver returns an empty resolver.
func NewMapResolver() *MapResolver {
	return &MapResolver{entries: make(map[string]vm.Extern)}
}

func key(module, name string) string { return module + "\x00" + name }

// Define registers an external value under module.name, replacing any
// previous definition.
func (r *MapResolver) Define(module, name string, ext vm.Extern) *MapResolver {
	r.mu.Lock()
	r.entries[key(module, name)] = ext
	r.mu.Unlock()
	return r
}

// DefineFunc registers a host function under module.name.
func (r *MapResolver) DefineFunc(module, name string, f *vm.Function) *MapResolver {
	return r.Define(module, name, vm.FuncExtern(f))
}

// DefineMemory registers a memory under module.name.
func (r *MapResolver) DefineMemory(module, name string, m *vm.Memory) *MapResolver {
	return r.Define(module, name, vm.MemoryExtern(m))
}

// DefineTable registers a table under module.name.
func (r *MapResolver) DefineTable(module, name string, t *vm.Table) *MapResolver {
	return r.Define(module, name, vm.TableExtern(t))
}

// DefineGlobal registers a global under module.name.
func (r *MapResolver) DefineGlobal(module, name string, g *vm.Global) *MapResolver {
	return r.Define(module, name, vm.GlobalExtern(g))
}

// DefineInstance registers every export of inst under its module
// name, so one module's exports satisfy another's imports.
func (r *MapResolver) DefineInstance(module string, inst *vm.Instance) *MapResolver {
	r.mu.Lock()
	for name, ext := range inst.Exports {
		r.entries[key(module, name)] = ext
	}
	r.mu.Unlock()
	return r
}

func (r *MapResolver) Resolve(module, name string) (vm.Extern, bool) {
	r.mu.RLock()
	ext, ok := r.entries[key(module, name)]
	r.mu.RUnlock()
	return ext, ok
}
