// Package linker turns compiled artifacts into running instances. It
// resolves the module's imports against an embedder-supplied
// resolver, type-checks them, allocates the locally-declared VM
// state, initializes segments, runs the start function, and publishes
// exports. Instantiation is all-or-nothing: nothing a failed attempt
// allocated stays reachable.
package linker

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kilnwasm/kiln/engine"
	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/vm"
	"github.com/kilnwasm/kiln/wasm"
)

// Linker instantiates artifacts. Safe for concurrent use; concurrent
// instantiations against the same resolver are safe when the resolver
// is safe for concurrent reads, which MapResolver is.
type Linker struct {
	allocs atomic.Int64
}

// New returns a linker.
func New() *Linker {
	return &Linker{}
}

// Allocations returns the number of VM entities the linker currently
// holds allocated across live instances.
func (l *Linker) Allocations() int64 { return l.allocs.Load() }

// Instantiate builds a running instance of a. Steps: resolve every
// import, type-check each against its declaration, allocate local
// memories, tables, and globals, bind the artifact's code, initialize
// element and data segments, run the start function, and populate the
// export table. A failure at any step releases everything allocated
// by the earlier ones.
func (l *Linker) Instantiate(ctx context.Context, a *engine.Artifact, r ImportResolver) (*vm.Instance, error) {
	m := a.Module()

	imports, err := l.resolveImports(m, r)
	if err != nil {
		return nil, err
	}

	if err := a.Retain(); err != nil {
		return nil, err
	}

	inst := &vm.Instance{Exports: make(map[string]vm.Extern)}
	for _, t := range m.Types {
		inst.TypeIDs = append(inst.TypeIDs, vm.TypeID(t))
	}

	allocated := int64(0)
	fail := func(step string, cause error) (*vm.Instance, error) {
		l.allocs.Add(-allocated)
		if inst.Handle != vm.NilHandle {
			vm.ReleaseHandle(inst.Handle)
		}
		a.Release()
		return nil, newInstantiationError(step, cause)
	}

	// Imported entities first, in declaration order.
	for _, ext := range imports {
		switch ext.Kind {
		case wasm.ExternFunc:
			inst.Funcs = append(inst.Funcs, ext.Func)
		case wasm.ExternTable:
			inst.Tables = append(inst.Tables, ext.Table)
		case wasm.ExternMemory:
			inst.Memories = append(inst.Memories, ext.Memory)
		case wasm.ExternGlobal:
			inst.Globals = append(inst.Globals, ext.Global)
		}
	}

	// Local declarations at their initial sizes.
	numImported := m.NumImportedFuncs()
	for i := range m.Funcs {
		fnIdx := numImported + uint32(i)
		ft := m.Types[m.Funcs[i]]
		inst.Funcs = append(inst.Funcs, &vm.Function{
			Type:   ft,
			TypeID: vm.TypeID(ft),
			Owner:  inst,
			Idx:    fnIdx,
		})
	}
	for _, tt := range m.Tables {
		tbl, err := vm.NewTable(tt)
		if err != nil {
			return fail("table allocation", err)
		}
		inst.Tables = append(inst.Tables, tbl)
		allocated++
		l.allocs.Add(1)
	}
	for _, mt := range m.Memories {
		mem, err := vm.NewMemory(mt)
		if err != nil {
			return fail("memory allocation", err)
		}
		inst.Memories = append(inst.Memories, mem)
		allocated++
		l.allocs.Add(1)
	}
	importedGlobal := func(idx uint32) (uint64, error) {
		if idx >= m.NumImportedGlobals() {
			return 0, errors.InvalidInput(errors.PhaseInstantiate,
				"global initializer references a non-imported global")
		}
		return inst.Globals[idx].Get(), nil
	}
	for _, g := range m.Globals {
		init, err := g.Init.Eval(importedGlobal)
		if err != nil {
			return fail("global initialization", err)
		}
		inst.Globals = append(inst.Globals, vm.NewGlobal(g.Type, init))
		allocated++
		l.allocs.Add(1)
	}

	// Register in the arena and bind code before segments run: an
	// active element segment may be called by the start function.
	inst.Handle = vm.RegisterInstance(inst)
	if err := a.Bind(inst); err != nil {
		return fail("code binding", err)
	}

	if err := l.initElements(m, inst, importedGlobal); err != nil {
		return fail("element segments", err)
	}
	if err := l.initData(m, inst, importedGlobal); err != nil {
		return fail("data segments", err)
	}

	if m.Start != nil {
		if _, err := inst.Funcs[*m.Start].Call(ctx); err != nil {
			return fail("start function", err)
		}
	}

	l.populateExports(m, inst)
	released := allocated
	inst.OnClose = func() {
		l.allocs.Add(-released)
		a.Release()
	}

	Logger().Debug("module instantiated",
		zap.Int("imports", len(imports)),
		zap.Int("exports", len(inst.Exports)))
	return inst, nil
}

// resolveImports looks up and type-checks every declared import. No
// VM state is allocated before this succeeds.
func (l *Linker) resolveImports(m *wasm.Module, r ImportResolver) ([]vm.Extern, error) {
	imports := make([]vm.Extern, 0, len(m.Imports))
	for _, imp := range m.Imports {
		if r == nil {
			return nil, newImportError(imp.Module, imp.Name)
		}
		ext, ok := r.Resolve(imp.Module, imp.Name)
		if !ok {
			return nil, newImportError(imp.Module, imp.Name)
		}
		if err := checkImport(m, imp, ext); err != nil {
			return nil, err
		}
		imports = append(imports, ext)
	}
	return imports, nil
}

// checkImport verifies one resolved value against its declaration.
// Function signatures must match exactly, limits must be at least as
// constrained as declared, and global type and mutability must match.
func checkImport(m *wasm.Module, imp wasm.Import, ext vm.Extern) error {
	if ext.Kind != imp.Kind {
		return newLinkError(imp.Module, imp.Name, imp.Kind.String(), ext.Kind.String())
	}
	switch imp.Kind {
	case wasm.ExternFunc:
		want := m.Types[imp.TypeIdx]
		if !want.Equal(ext.Func.Type) {
			return newLinkError(imp.Module, imp.Name, want.String(), ext.Func.Type.String())
		}
	case wasm.ExternTable:
		t := ext.Table
		if t.ElemType() != imp.Table.ElemType {
			return newLinkError(imp.Module, imp.Name,
				imp.Table.ElemType.String(), t.ElemType().String())
		}
		if err := checkLimits(imp.Table.Limits, t.Size(), t.Max()); err != nil {
			return newLinkError(imp.Module, imp.Name,
				limitsString(imp.Table.Limits), fmt.Sprintf("table[%d..%d]", t.Size(), t.Max()))
		}
	case wasm.ExternMemory:
		mem := ext.Memory
		if mem.Shared() != imp.Memory.Limits.Shared {
			return newLinkError(imp.Module, imp.Name,
				limitsString(imp.Memory.Limits),
				fmt.Sprintf("memory(shared=%v)", mem.Shared()))
		}
		if err := checkLimits(imp.Memory.Limits, mem.Pages(), mem.Max()); err != nil {
			return newLinkError(imp.Module, imp.Name,
				limitsString(imp.Memory.Limits),
				fmt.Sprintf("memory[%d..%d]", mem.Pages(), mem.Max()))
		}
	case wasm.ExternGlobal:
		gt := ext.Global.Type()
		if gt != imp.Global {
			return newLinkError(imp.Module, imp.Name,
				globalTypeString(imp.Global), globalTypeString(gt))
		}
	}
	return nil
}

// checkLimits verifies that a provided entity's current size and
// ceiling fit inside the declared limits: at least the declared
// minimum, and never able to grow past a declared maximum.
func checkLimits(declared wasm.Limits, size, max uint32) error {
	if size < declared.Min {
		return errors.InvalidInput(errors.PhaseLink, "below declared minimum")
	}
	if declared.Max != nil && max > *declared.Max {
		return errors.InvalidInput(errors.PhaseLink, "above declared maximum")
	}
	return nil
}

func limitsString(l wasm.Limits) string {
	if l.Max != nil {
		return fmt.Sprintf("[%d..%d]", l.Min, *l.Max)
	}
	return fmt.Sprintf("[%d..]", l.Min)
}

func globalTypeString(g wasm.GlobalType) string {
	if g.Mutable {
		return "var " + g.ValType.String()
	}
	return "const " + g.ValType.String()
}

// initElements applies the active element segments to their tables.
func (l *Linker) initElements(m *wasm.Module, inst *vm.Instance, globalValue func(uint32) (uint64, error)) error {
	for _, seg := range m.Elements {
		if seg.Passive {
			continue
		}
		offv, err := seg.Offset.Eval(globalValue)
		if err != nil {
			return err
		}
		off := uint32(offv)
		tbl := inst.Tables[seg.TableIdx]
		if uint64(off)+uint64(len(seg.Funcs)) > uint64(tbl.Size()) {
			return errors.OutOfBounds(errors.PhaseInstantiate, "element segment",
				uint64(off)+uint64(len(seg.Funcs)), uint64(tbl.Size()))
		}
		for i, fidx := range seg.Funcs {
			if err := tbl.Set(off+uint32(i), inst.Funcs[fidx]); err != nil {
				return err
			}
		}
	}
	return nil
}

// initData copies the active data segments into memory.
func (l *Linker) initData(m *wasm.Module, inst *vm.Instance, globalValue func(uint32) (uint64, error)) error {
	for _, seg := range m.Data {
		if seg.Passive {
			continue
		}
		offv, err := seg.Offset.Eval(globalValue)
		if err != nil {
			return err
		}
		off := uint32(offv)
		mem := inst.Memories[seg.MemIdx]
		if !mem.Write(off, seg.Bytes) {
			return errors.OutOfBounds(errors.PhaseInstantiate, "data segment",
				uint64(off)+uint64(len(seg.Bytes)), mem.ByteLen())
		}
	}
	return nil
}

// populateExports publishes both local and re-exported imported
// entities under their export names.
func (l *Linker) populateExports(m *wasm.Module, inst *vm.Instance) {
	for _, ex := range m.Exports {
		switch ex.Kind {
		case wasm.ExternFunc:
			fn := inst.Funcs[ex.Index]
			if fn.Name == "" {
				fn.Name = ex.Name
			}
			inst.Exports[ex.Name] = vm.FuncExtern(fn)
		case wasm.ExternTable:
			inst.Exports[ex.Name] = vm.TableExtern(inst.Tables[ex.Index])
		case wasm.ExternMemory:
			inst.Exports[ex.Name] = vm.MemoryExtern(inst.Memories[ex.Index])
		case wasm.ExternGlobal:
			g := inst.Globals[ex.Index]
			g.SetName(ex.Name)
			inst.Exports[ex.Name] = vm.GlobalExtern(g)
		}
	}
}
