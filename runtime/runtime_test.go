package runtime

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/linker"
	"github.com/kilnwasm/kiln/vm"
	"github.com/kilnwasm/kiln/wasm"
)

func rawF64(v float64) uint64 { return math.Float64bits(v) }
func f64(raw uint64) float64  { return math.Float64frombits(raw) }

func addModuleBytes() []byte {
	m := &wasm.Module{}
	m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	m.Funcs = []uint32{0}
	m.Code = []wasm.Code{{Body: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpLocalGet, 1,
		wasm.OpI32Add,
		wasm.OpEnd,
	}}}
	m.Exports = []wasm.Export{{Name: "add", Kind: wasm.ExternFunc, Index: 0}}
	return m.Encode()
}

func TestCompileInstantiateCall(t *testing.T) {
	rt := New(Options{})
	ctx := context.Background()

	a, err := rt.Compile(ctx, addModuleBytes())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := rt.Instantiate(ctx, a)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close()

	res, err := inst.Call(ctx, "add", 40, 2)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if uint32(res[0]) != 42 {
		t.Fatalf("add = %d", res[0])
	}
	if kinds := inst.Exports(); kinds["add"] != "func" {
		t.Fatalf("exports = %v", kinds)
	}
}

func TestHostFunctionTypedBinding(t *testing.T) {
	rt := New(Options{})
	ctx := context.Background()

	var got int32
	err := rt.RegisterFunc("env", "sink", func(ctx context.Context, v int32) error {
		got = v
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := rt.RegisterFunc("env", "scale", func(v float64) float64 { return v * 2 }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	m := &wasm.Module{}
	sinkType := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	scaleType := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValF64},
		Results: []wasm.ValType{wasm.ValF64},
	})
	m.Imports = []wasm.Import{
		{Module: "env", Name: "sink", Kind: wasm.ExternFunc, TypeIdx: sinkType},
		{Module: "env", Name: "scale", Kind: wasm.ExternFunc, TypeIdx: scaleType},
	}
	runType := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValF64},
		Results: []wasm.ValType{wasm.ValF64},
	})
	m.Funcs = []uint32{runType}
	m.Code = []wasm.Code{{Body: []byte{
		wasm.OpI32Const, 7,
		wasm.OpCall, 0,
		wasm.OpLocalGet, 0,
		wasm.OpCall, 1,
		wasm.OpEnd,
	}}}
	m.Exports = []wasm.Export{{Name: "run", Kind: wasm.ExternFunc, Index: 2}}

	a, err := rt.Compile(ctx, m.Encode())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := rt.Instantiate(ctx, a)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close()

	in := 1.5
	res, err := inst.Call(ctx, "run", rawF64(in))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != 7 {
		t.Fatalf("sink received %d", got)
	}
	if f64(res[0]) != 3.0 {
		t.Fatalf("scale(1.5) = %v", f64(res[0]))
	}
}

func TestHostErrorAbortsCall(t *testing.T) {
	rt := New(Options{})
	ctx := context.Background()
	boom := stderrors.New("boom")
	if err := rt.RegisterFunc("env", "fail", func() error { return boom }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	m := &wasm.Module{}
	m.AddType(wasm.FuncType{})
	m.Imports = []wasm.Import{{Module: "env", Name: "fail", Kind: wasm.ExternFunc, TypeIdx: 0}}
	m.Funcs = []uint32{0}
	m.Code = []wasm.Code{{Body: []byte{wasm.OpCall, 0, wasm.OpEnd}}}
	m.Exports = []wasm.Export{{Name: "go", Kind: wasm.ExternFunc, Index: 1}}

	a, err := rt.Compile(ctx, m.Encode())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := rt.Instantiate(ctx, a)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close()

	if _, err := inst.Call(ctx, "go"); !stderrors.Is(err, boom) {
		t.Fatalf("host error lost: %v", err)
	}
}

func TestRejectsUnsupportedHostSignature(t *testing.T) {
	rt := New(Options{})
	if err := rt.RegisterFunc("env", "bad", func(s string) {}); err == nil {
		t.Fatal("string parameter accepted")
	}
	if err := rt.RegisterFunc("env", "notafunc", 42); err == nil {
		t.Fatal("non-function accepted")
	}
	if err := rt.RegisterFunc("", "x", func() {}); err == nil {
		t.Fatal("empty namespace accepted")
	}
}

func TestHeadlessCannotCompile(t *testing.T) {
	rt := New(Options{Headless: true})
	_, err := rt.Compile(context.Background(), addModuleBytes())
	if !errors.Is(err, errors.PhaseCompile, errors.KindUnsupported) {
		t.Fatalf("headless compile: %v", err)
	}
}

func TestArtifactFileRoundTripHeadless(t *testing.T) {
	ctx := context.Background()
	full := New(Options{})
	a, err := full.Compile(ctx, addModuleBytes())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data, err := a.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	headless := New(Options{Headless: true})
	loaded, err := headless.LoadArtifact(data)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	inst, err := headless.Instantiate(ctx, loaded)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close()

	res, err := inst.Call(ctx, "add", 13, 29)
	if err != nil || uint32(res[0]) != 42 {
		t.Fatalf("headless call = %v, %v", res, err)
	}
}

func TestExtraResolverWinsOverRegistry(t *testing.T) {
	rt := New(Options{})
	ctx := context.Background()
	if err := rt.RegisterFunc("env", "pick", func() int32 { return 1 }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	override := vm.NewHostFunction(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
		func(ctx context.Context, args []uint64) ([]uint64, error) {
			return []uint64{2}, nil
		})

	m := &wasm.Module{}
	m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	m.Imports = []wasm.Import{{Module: "env", Name: "pick", Kind: wasm.ExternFunc, TypeIdx: 0}}
	m.Exports = []wasm.Export{{Name: "pick", Kind: wasm.ExternFunc, Index: 0}}

	a, err := rt.Compile(ctx, m.Encode())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst, err := rt.Instantiate(ctx, a,
		linker.NewMapResolver().DefineFunc("env", "pick", override))
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close()

	res, err := inst.Call(ctx, "pick")
	if err != nil || res[0] != 2 {
		t.Fatalf("pick = %v, %v", res, err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	rt := New(Options{})
	if err := rt.Validate([]byte("not wasm at all")); err == nil {
		t.Fatal("garbage validated")
	}
	if err := rt.Validate(addModuleBytes()); err != nil {
		t.Fatalf("valid module rejected: %v", err)
	}
}
