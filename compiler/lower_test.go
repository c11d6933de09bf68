package compiler

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

func moduleWithBody(t *testing.T, ft wasm.FuncType, body []byte) *wasm.Module {
	t.Helper()
	m := &wasm.Module{}
	m.AddType(ft)
	m.Funcs = []uint32{0}
	m.Code = []wasm.Code{{Body: body}}
	return m
}

func compileOne(t *testing.T, m *wasm.Module, cfg Config) *Func {
	t.Helper()
	cm, err := Compile(context.Background(), m, cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(cm.Funcs) != 1 {
		t.Fatalf("compiled %d functions", len(cm.Funcs))
	}
	return cm.Funcs[0]
}

func TestLowerAdd(t *testing.T) {
	ft := wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	m := moduleWithBody(t, ft, []byte{
		wasm.OpLocalGet, 0,
		wasm.OpLocalGet, 1,
		wasm.OpI32Add,
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig())
	want := []Op{OpLocalGet, OpLocalGet, OpI32Add, OpReturn}
	if len(fn.Instrs) != len(want) {
		t.Fatalf("got %d instrs, want %d", len(fn.Instrs), len(want))
	}
	for i, in := range fn.Instrs {
		if in.Op != want[i] {
			t.Fatalf("instr %d = %d, want %d", i, in.Op, want[i])
		}
	}
	if fn.MaxStack != 2 {
		t.Fatalf("MaxStack = %d, want 2", fn.MaxStack)
	}
}

func TestLowerBlockBranchResolvesForward(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{
		wasm.OpBlock, 0x40,
		wasm.OpBr, 0,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig())
	if fn.Instrs[0].Op != OpBr {
		t.Fatalf("instr 0 = %d", fn.Instrs[0].Op)
	}
	// The branch lands on the function's return.
	if fn.Instrs[0].U1 != 1 || fn.Instrs[1].Op != OpReturn {
		t.Fatalf("branch target = %d, instr 1 = %d", fn.Instrs[0].U1, fn.Instrs[1].Op)
	}
}

func TestLowerLoopBranchesBackward(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{
		wasm.OpLoop, 0x40,
		wasm.OpI32Const, 0,
		wasm.OpBrIf, 0,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig())
	// const at pc 0, br_if at pc 1 targeting the loop start.
	if fn.Instrs[1].Op != OpBrIf || fn.Instrs[1].U1 != 0 {
		t.Fatalf("instr 1 = %+v", fn.Instrs[1])
	}
}

func TestLowerIfElse(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	m := moduleWithBody(t, ft, []byte{
		wasm.OpI32Const, 1,
		wasm.OpIf, 0x7f, // single i32 result
		wasm.OpI32Const, 10,
		wasm.OpElse,
		wasm.OpI32Const, 20,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig())
	// const, br_if_z -> else arm, const 10, br -> end, const 20, return
	if fn.Instrs[1].Op != OpBrIfZ {
		t.Fatalf("instr 1 = %d", fn.Instrs[1].Op)
	}
	elseStart := fn.Instrs[1].U1
	if fn.Instrs[elseStart].Op != OpConst || fn.Instrs[elseStart].U1 != 20 {
		t.Fatalf("else arm starts at %d: %+v", elseStart, fn.Instrs[elseStart])
	}
	if fn.Instrs[3].Op != OpBr || fn.Instrs[3].U1 != uint64(len(fn.Instrs)-1) {
		t.Fatalf("then arm exit = %+v", fn.Instrs[3])
	}
}

func TestLowerBrTable(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{
		wasm.OpBlock, 0x40,
		wasm.OpBlock, 0x40,
		wasm.OpI32Const, 1,
		wasm.OpBrTable, 1, 0, 1, // one target plus default
		wasm.OpEnd,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig())
	var bt *Instr
	for i := range fn.Instrs {
		if fn.Instrs[i].Op == OpBrTable {
			bt = &fn.Instrs[i]
		}
	}
	if bt == nil {
		t.Fatal("no br_table emitted")
	}
	if len(bt.Us) != 2 {
		t.Fatalf("br_table entries = %d", len(bt.Us))
	}
	inner, _, _ := UnpackBrTableEntry(bt.Us[0])
	outer, _, _ := UnpackBrTableEntry(bt.Us[1])
	if inner >= uint32(len(fn.Instrs)) || outer >= uint32(len(fn.Instrs)) {
		t.Fatalf("unresolved targets: %d %d", inner, outer)
	}
	if inner > outer {
		t.Fatalf("inner block target %d past outer %d", inner, outer)
	}
}

func TestLowerBranchDropsExtraValues(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	m := moduleWithBody(t, ft, []byte{
		wasm.OpBlock, 0x7f, // block yielding i32
		wasm.OpI32Const, 1,
		wasm.OpI32Const, 2,
		wasm.OpI32Const, 3,
		wasm.OpBr, 0, // keeps top value, drops two
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig())
	br := fn.Instrs[3]
	if br.Op != OpBr {
		t.Fatalf("instr 3 = %d", br.Op)
	}
	keep, drop := UnpackAdjust(br.U2)
	if keep != 1 || drop != 2 {
		t.Fatalf("keep=%d drop=%d", keep, drop)
	}
}

func TestLowerUnsupportedOpcode(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{
		0xfd, 0x00, // v128 prefix
		wasm.OpEnd,
	})
	_, err := Compile(context.Background(), m, NewConfig())
	if err == nil {
		t.Fatal("expected unsupported opcode error")
	}
	target := &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindUnsupported}
	if !stderrors.Is(err, target) {
		t.Fatalf("wrong error shape: %v", err)
	}
}

func TestLowerSignExtensionGated(t *testing.T) {
	ft := wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	body := []byte{wasm.OpLocalGet, 0, wasm.OpI32Extend8S, wasm.OpEnd}

	cfg := NewConfig()
	cfg.Features &^= FeatureSignExtension
	_, err := Compile(context.Background(), moduleWithBody(t, ft, body), cfg)
	if err == nil {
		t.Fatal("expected feature error")
	}

	compileOne(t, moduleWithBody(t, ft, body), NewConfig())
}

func TestLowerStackUnderflow(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{
		wasm.OpI32Add, // nothing on the stack
		wasm.OpEnd,
	})
	if _, err := Compile(context.Background(), m, NewConfig()); err == nil {
		t.Fatal("expected underflow error")
	}
}

func TestLowerDeadCodeSkipped(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	m := moduleWithBody(t, ft, []byte{
		wasm.OpI32Const, 7,
		wasm.OpReturn,
		wasm.OpI32Const, 1, // dead
		wasm.OpI32Add, // dead, would underflow if lowered
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig())
	for _, in := range fn.Instrs[2:] {
		if in.Op == OpI32Add {
			t.Fatal("dead code was lowered")
		}
	}
}

func TestSharedMemoryRequiresThreads(t *testing.T) {
	m := &wasm.Module{}
	max := uint32(2)
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: &max, Shared: true}}}
	_, err := Compile(context.Background(), m, NewConfig())
	if err == nil {
		t.Fatal("expected threads feature error")
	}
	cfg := NewConfig()
	cfg.Features |= FeatureThreads
	if _, err := Compile(context.Background(), m, cfg); err != nil {
		t.Fatalf("Compile with threads: %v", err)
	}
}

func TestParseTarget(t *testing.T) {
	tgt, err := ParseTarget("linux/arm64")
	if err != nil {
		t.Fatalf("ParseTarget: %v", err)
	}
	if tgt.OS != "linux" || tgt.Arch != "arm64" {
		t.Fatalf("target = %+v", tgt)
	}
	if _, err := ParseTarget("nonsense"); err == nil {
		t.Fatal("expected parse error")
	}
	if NativeTarget().Triple() == "" {
		t.Fatal("empty native triple")
	}
}
