package linker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/engine"
	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/trap"
	"github.com/kilnwasm/kiln/vm"
	"github.com/kilnwasm/kiln/wasm"
)

var i32Unary = wasm.FuncType{
	Params:  []wasm.ValType{wasm.ValI32},
	Results: []wasm.ValType{wasm.ValI32},
}

func compile(t *testing.T, m *wasm.Module) *engine.Artifact {
	t.Helper()
	a, err := engine.NewUniversal(compiler.NewConfig()).CompileModule(context.Background(), m)
	if err != nil {
		t.Fatalf("CompileModule: %v", err)
	}
	return a
}

func instantiate(t *testing.T, l *Linker, a *engine.Artifact, r ImportResolver) *vm.Instance {
	t.Helper()
	inst, err := l.Instantiate(context.Background(), a, r)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	t.Cleanup(inst.Close)
	return inst
}

func TestInstantiateAndCall(t *testing.T) {
	m := &wasm.Module{}
	m.AddType(i32Unary)
	m.Funcs = []uint32{0}
	m.Code = []wasm.Code{{Body: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpLocalGet, 0,
		wasm.OpI32Add,
		wasm.OpEnd,
	}}}
	m.Exports = []wasm.Export{{Name: "double", Kind: wasm.ExternFunc, Index: 0}}

	inst := instantiate(t, New(), compile(t, m), nil)
	fn, err := inst.ExportedFunction("double")
	if err != nil {
		t.Fatalf("ExportedFunction: %v", err)
	}
	res, err := fn.Call(context.Background(), 21)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if uint32(res[0]) != 42 {
		t.Fatalf("double(21) = %d", res[0])
	}
}

func TestMissingImportNamesEntry(t *testing.T) {
	m := &wasm.Module{}
	m.AddType(wasm.FuncType{})
	m.Imports = []wasm.Import{{Module: "env", Name: "missing", Kind: wasm.ExternFunc, TypeIdx: 0}}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}

	l := New()
	_, err := l.Instantiate(context.Background(), compile(t, m), NewMapResolver())
	var ie *ImportError
	if !stderrors.As(err, &ie) {
		t.Fatalf("want ImportError, got %v", err)
	}
	if ie.Module != "env" || ie.Name != "missing" {
		t.Fatalf("named %s.%s", ie.Module, ie.Name)
	}
	if !errors.Is(err, errors.PhaseLink, errors.KindMissingImport) {
		t.Fatalf("phase/kind: %v", err)
	}
	// Resolution fails before anything is allocated.
	if l.Allocations() != 0 {
		t.Fatalf("allocations = %d", l.Allocations())
	}
}

func TestImportTypeMismatchFailsBeforeAllocation(t *testing.T) {
	m := &wasm.Module{}
	m.AddType(i32Unary)
	m.Imports = []wasm.Import{{Module: "env", Name: "f", Kind: wasm.ExternFunc, TypeIdx: 0}}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}

	wrong := vm.NewHostFunction(wasm.FuncType{}, func(ctx context.Context, args []uint64) ([]uint64, error) {
		return nil, nil
	})
	r := NewMapResolver().DefineFunc("env", "f", wrong)

	l := New()
	_, err := l.Instantiate(context.Background(), compile(t, m), r)
	var le *LinkError
	if !stderrors.As(err, &le) {
		t.Fatalf("want LinkError, got %v", err)
	}
	if le.Expected == le.Actual {
		t.Fatalf("indistinct signatures: %q vs %q", le.Expected, le.Actual)
	}
	if l.Allocations() != 0 {
		t.Fatalf("allocations = %d", l.Allocations())
	}
}

func TestImportedMemoryLimitsChecked(t *testing.T) {
	two := uint32(2)
	m := &wasm.Module{}
	m.Imports = []wasm.Import{{
		Module: "env", Name: "mem", Kind: wasm.ExternMemory,
		Memory: wasm.MemoryType{Limits: wasm.Limits{Min: 2, Max: &two}},
	}}

	small, err := vm.NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	_, err = New().Instantiate(context.Background(), compile(t, m),
		NewMapResolver().DefineMemory("env", "mem", small))
	var le *LinkError
	if !stderrors.As(err, &le) {
		t.Fatalf("undersized memory accepted: %v", err)
	}

	fitted, err := vm.NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 2, Max: &two}})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	inst := instantiate(t, New(), compile(t, m), NewMapResolver().DefineMemory("env", "mem", fitted))
	if inst.Memory() != fitted {
		t.Fatal("imported memory not shared")
	}
}

func TestDataSegmentsInitializeMemory(t *testing.T) {
	m := &wasm.Module{}
	m.AddType(i32Unary)
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Data = []wasm.Data{{
		MemIdx: 0,
		Offset: wasm.ConstExpr{Opcode: wasm.OpI32Const, Data: []byte{8}},
		Bytes:  []byte("kiln"),
	}}
	m.Funcs = []uint32{0}
	m.Code = []wasm.Code{{Body: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpI32Load8U, 0, 0,
		wasm.OpEnd,
	}}}
	m.Exports = []wasm.Export{{Name: "peek", Kind: wasm.ExternFunc, Index: 0}}

	inst := instantiate(t, New(), compile(t, m), nil)
	fn, _ := inst.ExportedFunction("peek")
	res, err := fn.Call(context.Background(), 9)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if byte(res[0]) != 'i' {
		t.Fatalf("memory[9] = %q", byte(res[0]))
	}
}

func TestOutOfRangeDataSegmentRollsBack(t *testing.T) {
	m := &wasm.Module{}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Data = []wasm.Data{{
		MemIdx: 0,
		// 65534 as LEB128.
		Offset: wasm.ConstExpr{Opcode: wasm.OpI32Const, Data: []byte{0xfe, 0xff, 0x03}},
		Bytes:  []byte("does not fit"),
	}}

	l := New()
	a := compile(t, m)
	_, err := l.Instantiate(context.Background(), a, nil)
	var ie *InstantiationError
	if !stderrors.As(err, &ie) {
		t.Fatalf("want InstantiationError, got %v", err)
	}
	if ie.Step != "data segments" {
		t.Fatalf("step = %q", ie.Step)
	}
	if l.Allocations() != 0 {
		t.Fatalf("allocations = %d after rollback", l.Allocations())
	}
	if a.Refs() != 1 {
		t.Fatalf("artifact refs = %d after rollback", a.Refs())
	}
}

func TestElementSegmentsSeedTables(t *testing.T) {
	m := &wasm.Module{}
	m.AddType(i32Unary)
	m.Tables = []wasm.TableType{{ElemType: wasm.ValFuncRef, Limits: wasm.Limits{Min: 2}}}
	m.Funcs = []uint32{0, 0}
	m.Code = []wasm.Code{
		{Body: []byte{wasm.OpLocalGet, 0, wasm.OpEnd}},
		{Body: []byte{
			wasm.OpLocalGet, 0,
			wasm.OpI32Const, 1,
			wasm.OpCallIndirect, 0, 0,
			wasm.OpEnd,
		}},
	}
	m.Elements = []wasm.Element{{
		TableIdx: 0,
		Offset:   wasm.ConstExpr{Opcode: wasm.OpI32Const, Data: []byte{1}},
		Funcs:    []uint32{0},
	}}
	m.Exports = []wasm.Export{{Name: "via_table", Kind: wasm.ExternFunc, Index: 1}}

	inst := instantiate(t, New(), compile(t, m), nil)
	fn, _ := inst.ExportedFunction("via_table")
	res, err := fn.Call(context.Background(), 7)
	if err != nil {
		t.Fatalf("via_table: %v", err)
	}
	if uint32(res[0]) != 7 {
		t.Fatalf("via_table(7) = %d", res[0])
	}
}

func TestStartFunctionRunsAndTrapRollsBack(t *testing.T) {
	start := uint32(1)

	ran := false
	record := vm.NewHostFunction(wasm.FuncType{}, func(ctx context.Context, args []uint64) ([]uint64, error) {
		ran = true
		return nil, nil
	})

	m := &wasm.Module{}
	m.AddType(wasm.FuncType{})
	m.Imports = []wasm.Import{{Module: "env", Name: "record", Kind: wasm.ExternFunc, TypeIdx: 0}}
	m.Funcs = []uint32{0}
	m.Code = []wasm.Code{{Body: []byte{wasm.OpCall, 0, wasm.OpEnd}}}
	m.Start = &start

	instantiate(t, New(), compile(t, m), NewMapResolver().DefineFunc("env", "record", record))
	if !ran {
		t.Fatal("start function did not run")
	}

	// A trapping start must roll the whole attempt back.
	bad := &wasm.Module{}
	bad.AddType(wasm.FuncType{})
	bad.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	bad.Funcs = []uint32{0}
	bad.Code = []wasm.Code{{Body: []byte{wasm.OpUnreachable, wasm.OpEnd}}}
	zero := uint32(0)
	bad.Start = &zero

	l := New()
	_, err := l.Instantiate(context.Background(), compile(t, bad), nil)
	var ie *InstantiationError
	if !stderrors.As(err, &ie) {
		t.Fatalf("want InstantiationError, got %v", err)
	}
	if !trap.Is(ie.Cause, trap.UnreachableCodeReached) {
		t.Fatalf("cause = %v", ie.Cause)
	}
	if l.Allocations() != 0 {
		t.Fatalf("allocations = %d after start trap", l.Allocations())
	}
}

func TestGlobalInitFromImportedGlobal(t *testing.T) {
	m := &wasm.Module{}
	m.Imports = []wasm.Import{{
		Module: "env", Name: "base", Kind: wasm.ExternGlobal,
		Global: wasm.GlobalType{ValType: wasm.ValI32},
	}}
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: wasm.ValI32},
		Init: wasm.ConstExpr{Opcode: wasm.OpGlobalGet, Data: []byte{0}},
	}}
	m.Exports = []wasm.Export{{Name: "derived", Kind: wasm.ExternGlobal, Index: 1}}

	base := vm.NewGlobal(wasm.GlobalType{ValType: wasm.ValI32}, 1024)
	inst := instantiate(t, New(), compile(t, m),
		NewMapResolver().DefineGlobal("env", "base", base))

	g, err := inst.ExportedGlobal("derived")
	if err != nil {
		t.Fatalf("ExportedGlobal: %v", err)
	}
	if g.I32() != 1024 {
		t.Fatalf("derived = %d", g.I32())
	}
}

func TestReexportedImport(t *testing.T) {
	host := vm.NewHostFunction(i32Unary, func(ctx context.Context, args []uint64) ([]uint64, error) {
		return []uint64{args[0] + 1}, nil
	})

	m := &wasm.Module{}
	m.AddType(i32Unary)
	m.Imports = []wasm.Import{{Module: "env", Name: "inc", Kind: wasm.ExternFunc, TypeIdx: 0}}
	m.Exports = []wasm.Export{{Name: "inc", Kind: wasm.ExternFunc, Index: 0}}

	inst := instantiate(t, New(), compile(t, m),
		NewMapResolver().DefineFunc("env", "inc", host))
	fn, err := inst.ExportedFunction("inc")
	if err != nil {
		t.Fatalf("re-export missing: %v", err)
	}
	res, err := fn.Call(context.Background(), 41)
	if err != nil || res[0] != 42 {
		t.Fatalf("inc(41) = %v, %v", res, err)
	}
}

func TestCrossModuleLinking(t *testing.T) {
	lib := &wasm.Module{}
	lib.AddType(i32Unary)
	lib.Funcs = []uint32{0}
	lib.Code = []wasm.Code{{Body: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpI32Const, 10,
		wasm.OpI32Mul,
		wasm.OpEnd,
	}}}
	lib.Exports = []wasm.Export{{Name: "tens", Kind: wasm.ExternFunc, Index: 0}}

	app := &wasm.Module{}
	app.AddType(i32Unary)
	app.Imports = []wasm.Import{{Module: "lib", Name: "tens", Kind: wasm.ExternFunc, TypeIdx: 0}}
	app.Funcs = []uint32{0}
	app.Code = []wasm.Code{{Body: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpCall, 0,
		wasm.OpI32Const, 2,
		wasm.OpI32Add,
		wasm.OpEnd,
	}}}
	app.Exports = []wasm.Export{{Name: "calc", Kind: wasm.ExternFunc, Index: 1}}

	l := New()
	libInst := instantiate(t, l, compile(t, lib), nil)
	appInst := instantiate(t, l, compile(t, app),
		NewMapResolver().DefineInstance("lib", libInst))

	fn, _ := appInst.ExportedFunction("calc")
	res, err := fn.Call(context.Background(), 4)
	if err != nil {
		t.Fatalf("calc: %v", err)
	}
	if uint32(res[0]) != 42 {
		t.Fatalf("calc(4) = %d", res[0])
	}
}

func TestCloseReleasesArtifact(t *testing.T) {
	m := &wasm.Module{}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}

	l := New()
	a := compile(t, m)
	inst, err := l.Instantiate(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if a.Refs() != 2 || l.Allocations() != 1 {
		t.Fatalf("refs = %d, allocations = %d", a.Refs(), l.Allocations())
	}
	inst.Close()
	if a.Refs() != 1 || l.Allocations() != 0 {
		t.Fatalf("after close: refs = %d, allocations = %d", a.Refs(), l.Allocations())
	}
	// Close is idempotent.
	inst.Close()
	if a.Refs() != 1 {
		t.Fatalf("double close dropped refs to %d", a.Refs())
	}
}

func TestConcurrentInstantiation(t *testing.T) {
	m := &wasm.Module{}
	m.AddType(i32Unary)
	m.Funcs = []uint32{0}
	m.Code = []wasm.Code{{Body: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpI32Const, 1,
		wasm.OpI32Add,
		wasm.OpEnd,
	}}}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Exports = []wasm.Export{{Name: "inc", Kind: wasm.ExternFunc, Index: 0}}

	l := New()
	a := compile(t, m)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := l.Instantiate(context.Background(), a, nil)
			if err != nil {
				errs[i] = err
				return
			}
			defer inst.Close()
			fn, err := inst.ExportedFunction("inc")
			if err != nil {
				errs[i] = err
				return
			}
			res, err := fn.Call(context.Background(), uint64(i))
			if err != nil {
				errs[i] = err
				return
			}
			if int(uint32(res[0])) != i+1 {
				errs[i] = fmt.Errorf("inc(%d) = %d", i, res[0])
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	if l.Allocations() != 0 {
		t.Fatalf("allocations = %d", l.Allocations())
	}
	if a.Refs() != 1 {
		t.Fatalf("refs = %d", a.Refs())
	}
}
