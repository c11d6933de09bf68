package wasm

import (
	"fmt"

	"github.com/kilnwasm/kiln/wasm/internal/binary"
)

func decodeU32(data []byte) (uint32, error) {
	return binary.NewReader(data).ReadU32()
}

// GlobalIdx returns the global index of a global.get expression.
func (e ConstExpr) GlobalIdx() (uint32, error) {
	if e.Opcode != OpGlobalGet {
		return 0, fmt.Errorf("wasm: expression is not global.get")
	}
	return decodeU32(e.Data)
}

// FuncIdx returns the function index of a ref.func expression.
func (e ConstExpr) FuncIdx() (uint32, error) {
	if e.Opcode != OpRefFunc {
		return 0, fmt.Errorf("wasm: expression is not ref.func")
	}
	return decodeU32(e.Data)
}

// Eval evaluates the expression to a raw 64-bit value. Floats are
// returned as their IEEE 754 bit patterns, i32 values zero-extended.
// globalValue resolves global.get against the instantiating instance's
// imported globals; it may be nil when the expression cannot contain
// one.
func (e ConstExpr) Eval(globalValue func(idx uint32) (uint64, error)) (uint64, error) {
	r := binary.NewReader(e.Data)
	switch e.Opcode {
	case OpI32Const:
		v, err := r.ReadS32()
		return uint64(uint32(v)), err
	case OpI64Const:
		v, err := r.ReadS64()
		return uint64(v), err
	case OpF32Const:
		v, err := r.ReadU32LE()
		return uint64(v), err
	case OpF64Const:
		return r.ReadU64LE()
	case OpGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return 0, err
		}
		if globalValue == nil {
			return 0, fmt.Errorf("wasm: global.get not allowed here")
		}
		return globalValue(idx)
	case OpRefNull:
		return 0, nil
	case OpRefFunc:
		idx, err := r.ReadU32()
		return uint64(idx), err
	default:
		return 0, fmt.Errorf("wasm: opcode 0x%02x not constant", e.Opcode)
	}
}

// ResultType returns the value type the expression produces.
func (e ConstExpr) ResultType(importedGlobalType func(idx uint32) (ValType, error)) (ValType, error) {
	switch e.Opcode {
	case OpI32Const:
		return ValI32, nil
	case OpI64Const:
		return ValI64, nil
	case OpF32Const:
		return ValF32, nil
	case OpF64Const:
		return ValF64, nil
	case OpRefFunc:
		return ValFuncRef, nil
	case OpRefNull:
		if len(e.Data) == 1 && ValType(e.Data[0]) == ValExtRef {
			return ValExtRef, nil
		}
		return ValFuncRef, nil
	case OpGlobalGet:
		idx, err := decodeU32(e.Data)
		if err != nil {
			return 0, err
		}
		if importedGlobalType == nil {
			return 0, fmt.Errorf("wasm: global.get not allowed here")
		}
		return importedGlobalType(idx)
	default:
		return 0, fmt.Errorf("wasm: opcode 0x%02x not constant", e.Opcode)
	}
}
