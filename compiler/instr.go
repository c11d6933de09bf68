package compiler

// Op is the opcode of one lowered instruction. Structured control
// flow from the source is already resolved: branches carry absolute
// instruction addresses and explicit stack adjustments.
type Op uint16

const (
	OpUnreachable Op = iota
	OpBr             // U1 = target pc, U2 = keep/drop
	OpBrIf           // branch when popped value is non-zero
	OpBrIfZ          // branch when popped value is zero
	OpBrTable        // Us = packed targets, last entry is the default
	OpReturn
	OpCall         // U1 = module-wide function index
	OpCallIndirect // U1 = module type index, U2 = table index

	OpDrop
	OpSelect

	OpLocalGet  // U1 = frame slot
	OpLocalSet  // U1 = frame slot
	OpLocalTee  // U1 = frame slot
	OpGlobalGet // U1 = global index
	OpGlobalSet // U1 = global index

	// Loads and stores carry the static offset in U1. The effective
	// address is the popped base plus U1, checked against the current
	// memory size before every access.
	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpI64Load8S
	OpI64Load8U
	OpI64Load16S
	OpI64Load16U
	OpI64Load32S
	OpI64Load32U
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16
	OpI64Store8
	OpI64Store16
	OpI64Store32

	OpMemorySize
	OpMemoryGrow

	OpConst // U1 = raw 64-bit value

	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU
	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge
	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge

	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr

	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr

	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign

	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign

	OpI32WrapI64
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI32Extend8S
	OpI32Extend16S
	OpI64Extend8S
	OpI64Extend16S
	OpI64Extend32S

	// OpChargeFuel is emitted by the metering middleware. U1 is the
	// cost of the instructions that follow up to the next charge
	// point.
	OpChargeFuel
)

// Instr is one lowered instruction. U1 and U2 are operands whose
// meaning depends on Op; Us carries br_table's target list.
type Instr struct {
	Op Op       `msgpack:"op"`
	U1 uint64   `msgpack:"u1"`
	U2 uint64   `msgpack:"u2"`
	Us []uint64 `msgpack:"us,omitempty"`
}

// PackAdjust encodes a branch's stack adjustment: keep the top keep
// values and drop the drop values beneath them.
func PackAdjust(keep, drop uint32) uint64 {
	return uint64(keep)<<32 | uint64(drop)
}

// UnpackAdjust splits a packed stack adjustment.
func UnpackAdjust(v uint64) (keep, drop uint32) {
	return uint32(v >> 32), uint32(v)
}

// PackBrTableEntry encodes one br_table entry: a target pc and its
// stack adjustment.
func PackBrTableEntry(pc uint32, keep, drop uint16) uint64 {
	return uint64(pc)<<32 | uint64(keep)<<16 | uint64(drop)
}

// UnpackBrTableEntry splits a packed br_table entry.
func UnpackBrTableEntry(v uint64) (pc uint32, keep, drop uint16) {
	return uint32(v >> 32), uint16(v >> 16), uint16(v)
}

// Func is one compiled function body.
type Func struct {
	// TypeIdx is the function's type index in the source module.
	TypeIdx uint32 `msgpack:"type_idx"`
	// NumLocals counts declared locals, excluding parameters.
	NumLocals uint32 `msgpack:"num_locals"`
	// MaxStack is the operand stack high-water mark, used to size the
	// frame up front.
	MaxStack uint32  `msgpack:"max_stack"`
	Instrs   []Instr `msgpack:"instrs"`
}
