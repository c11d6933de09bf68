package engine

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/wasm"
)

// Differential check against an independent runtime: the same module
// must produce the same results here and under wazero.
func TestExecutionMatchesWazero(t *testing.T) {
	m := &wasm.Module{}
	m.AddType(i32x2toI32)
	m.Funcs = []uint32{0, 0, 0}
	m.Code = []wasm.Code{
		{Body: []byte{
			wasm.OpLocalGet, 0,
			wasm.OpLocalGet, 1,
			wasm.OpI32Add,
			wasm.OpEnd,
		}},
		{Body: []byte{
			wasm.OpLocalGet, 0,
			wasm.OpLocalGet, 1,
			wasm.OpI32Mul,
			wasm.OpLocalGet, 0,
			wasm.OpI32Xor,
			wasm.OpEnd,
		}},
		// Looping popcount-by-shifting, exercises branches.
		{
			Locals: []wasm.LocalDecl{{Count: 1, Type: wasm.ValI32}},
			Body: []byte{
				wasm.OpBlock, 0x40,
				wasm.OpLoop, 0x40,
				wasm.OpLocalGet, 0,
				wasm.OpI32Eqz,
				wasm.OpBrIf, 1,
				wasm.OpLocalGet, 2,
				wasm.OpLocalGet, 0,
				wasm.OpI32Const, 1,
				wasm.OpI32And,
				wasm.OpI32Add,
				wasm.OpLocalSet, 2,
				wasm.OpLocalGet, 0,
				wasm.OpI32Const, 1,
				wasm.OpI32ShrU,
				wasm.OpLocalSet, 0,
				wasm.OpBr, 0,
				wasm.OpEnd,
				wasm.OpEnd,
				wasm.OpLocalGet, 2,
				wasm.OpEnd,
			},
		},
	}
	m.Exports = []wasm.Export{
		{Name: "add", Kind: wasm.ExternFunc, Index: 0},
		{Name: "mulxor", Kind: wasm.ExternFunc, Index: 1},
		{Name: "popcount", Kind: wasm.ExternFunc, Index: 2},
	}
	wasmBytes := m.Encode()

	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)
	ref, err := rt.Instantiate(ctx, wasmBytes)
	if err != nil {
		t.Fatalf("wazero instantiate: %v", err)
	}

	a, err := NewUniversal(compiler.NewConfig()).Compile(ctx, wasmBytes)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	inst := instantiate(t, a)

	cases := []struct {
		fn   string
		args [][2]uint64
	}{
		{"add", [][2]uint64{{1, 2}, {0xffffffff, 1}, {0x7fffffff, 0x7fffffff}}},
		{"mulxor", [][2]uint64{{3, 7}, {0xdeadbeef, 0xcafe}, {0, 12345}}},
		{"popcount", [][2]uint64{{0, 0}, {0xff, 0}, {0xa5a5a5a5, 0}, {0xffffffff, 0}}},
	}
	for _, tc := range cases {
		for _, args := range tc.args {
			want, err := ref.ExportedFunction(tc.fn).Call(ctx, args[0], args[1])
			if err != nil {
				t.Fatalf("wazero %s(%d, %d): %v", tc.fn, args[0], args[1], err)
			}
			got, err := callExport(t, inst, tc.fn, args[0], args[1])
			if err != nil {
				t.Fatalf("%s(%d, %d): %v", tc.fn, args[0], args[1], err)
			}
			if uint32(got[0]) != uint32(want[0]) {
				t.Fatalf("%s(%d, %d) = %d, wazero says %d",
					tc.fn, args[0], args[1], uint32(got[0]), uint32(want[0]))
			}
		}
	}
}
