package vm

import (
	"sync/atomic"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Extern is one external value: a function, table, memory, or global.
// Exactly one field per Kind is non-nil.
type Extern struct {
	Kind   wasm.ExternKind
	Func   *Function
	Table  *Table
	Memory *Memory
	Global *Global
}

// FuncExtern wraps a function as an external value.
func FuncExtern(f *Function) Extern { return Extern{Kind: wasm.ExternFunc, Func: f} }

// TableExtern wraps a table as an external value.
func TableExtern(t *Table) Extern { return Extern{Kind: wasm.ExternTable, Table: t} }

// MemoryExtern wraps a memory as an external value.
func MemoryExtern(m *Memory) Extern { return Extern{Kind: wasm.ExternMemory, Memory: m} }

// GlobalExtern wraps a global as an external value.
func GlobalExtern(g *Global) Extern { return Extern{Kind: wasm.ExternGlobal, Global: g} }

// Instance is a live instantiation of a module: its resolved index
// spaces, exports, and the arena handle execution uses to reach it.
// Index spaces list imports first, then locally-defined entities, in
// declaration order.
type Instance struct {
	Name string

	Funcs    []*Function
	Tables   []*Table
	Memories []*Memory
	Globals  []*Global

	Exports map[string]Extern

	// TypeIDs maps the module's type indices to process-wide IDs for
	// indirect call signature checks.
	TypeIDs []uint32

	// Handle is the instance's slot in the context arena.
	Handle Handle

	// OnClose runs once when the instance closes, after the arena
	// handle is released. The linker drops its artifact reference
	// here.
	OnClose func()

	fuel   atomic.Pointer[FuelTank]
	closed atomic.Bool
}

// Closed reports whether Close has been called.
func (i *Instance) Closed() bool { return i.closed.Load() }

// Close releases the instance's arena handle. Further exported-entity
// lookups fail; in-flight calls are unaffected since they hold direct
// references.
func (i *Instance) Close() {
	if i.closed.CompareAndSwap(false, true) {
		ReleaseHandle(i.Handle)
		if i.OnClose != nil {
			i.OnClose()
		}
	}
}

// Memory returns the instance's memory at index 0, or nil when the
// module declares none.
func (i *Instance) Memory() *Memory {
	if len(i.Memories) == 0 {
		return nil
	}
	return i.Memories[0]
}

func (i *Instance) export(name string, kind wasm.ExternKind) (Extern, error) {
	if i.closed.Load() {
		return Extern{}, errors.Closed("instance")
	}
	ext, ok := i.Exports[name]
	if !ok {
		return Extern{}, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	if ext.Kind != kind {
		return Extern{}, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Path(name).
			Detail("export is a %s, not a %s", ext.Kind, kind).
			Build()
	}
	return ext, nil
}

// ExportedFunction looks up an exported function by name.
func (i *Instance) ExportedFunction(name string) (*Function, error) {
	ext, err := i.export(name, wasm.ExternFunc)
	if err != nil {
		return nil, err
	}
	return ext.Func, nil
}

// ExportedMemory looks up an exported memory by name.
func (i *Instance) ExportedMemory(name string) (*Memory, error) {
	ext, err := i.export(name, wasm.ExternMemory)
	if err != nil {
		return nil, err
	}
	return ext.Memory, nil
}

// ExportedTable looks up an exported table by name.
func (i *Instance) ExportedTable(name string) (*Table, error) {
	ext, err := i.export(name, wasm.ExternTable)
	if err != nil {
		return nil, err
	}
	return ext.Table, nil
}

// ExportedGlobal looks up an exported global by name.
func (i *Instance) ExportedGlobal(name string) (*Global, error) {
	ext, err := i.export(name, wasm.ExternGlobal)
	if err != nil {
		return nil, err
	}
	return ext.Global, nil
}
