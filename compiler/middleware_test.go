package compiler

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

func TestMeteringChargesBeforeControl(t *testing.T) {
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
	fn := compileOne(t, m, NewConfig().WithMiddleware(NewMetering()))
	// local.get, local.get, i32.add, then the accumulated charge
	// flushed at the function's end.
	var charges []uint64
	for _, in := range fn.Instrs {
		if in.Op == OpChargeFuel {
			charges = append(charges, in.U1)
		}
	}
	if len(charges) != 1 || charges[0] != 4 {
		t.Fatalf("charges = %v, want [4]", charges)
	}
}

func TestMeteringChargesLoopBackEdge(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{
		wasm.OpLoop, 0x40,
		wasm.OpI32Const, 1,
		wasm.OpBrIf, 0,
		wasm.OpEnd,
		wasm.OpEnd,
	})
	fn := compileOne(t, m, NewConfig().WithMiddleware(NewMetering()))
	// A charge must sit between the loop start and the br_if so each
	// iteration pays.
	var loopStart, brPC = -1, -1
	for i, in := range fn.Instrs {
		if in.Op == OpBrIf {
			brPC = i
			loopStart = int(in.U1)
		}
	}
	if brPC < 0 {
		t.Fatal("no br_if emitted")
	}
	found := false
	for i := loopStart; i < brPC; i++ {
		if fn.Instrs[i].Op == OpChargeFuel {
			found = true
		}
	}
	if !found {
		t.Fatal("loop body carries no fuel charge")
	}
}

func TestMeteringCustomCost(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{wasm.OpNop, wasm.OpEnd})
	mw := &Metering{Cost: func(op byte) uint64 {
		if op == wasm.OpNop {
			return 10
		}
		return 1
	}}
	fn := compileOne(t, m, NewConfig().WithMiddleware(mw))
	var total uint64
	for _, in := range fn.Instrs {
		if in.Op == OpChargeFuel {
			total += in.U1
		}
	}
	if total != 11 {
		t.Fatalf("total charge = %d, want 11", total)
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failer" }
func (failingMiddleware) NewFuncMiddleware(uint32) FuncMiddleware {
	return failingFunc{}
}

type failingFunc struct{}

func (failingFunc) Feed(byte) ([]Instr, error) {
	return nil, fmt.Errorf("refused")
}

func TestMiddlewareErrorSurfaces(t *testing.T) {
	m := moduleWithBody(t, wasm.FuncType{}, []byte{wasm.OpEnd})
	_, err := Compile(context.Background(), m, NewConfig().WithMiddleware(failingMiddleware{}))
	if err == nil {
		t.Fatal("expected middleware error")
	}
	target := &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindMiddleware}
	if !stderrors.Is(err, target) {
		t.Fatalf("wrong error shape: %v", err)
	}
}
