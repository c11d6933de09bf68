package engine

import (
	"context"
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/kilnwasm/kiln/compiler"
	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/trap"
	"github.com/kilnwasm/kiln/vm"
)

// depthKey carries the wasm call depth through context so recursion
// across instances and host round-trips still hits the configured
// ceiling.
type depthKeyType struct{}

var depthKey depthKeyType

func callDepth(ctx context.Context) uint32 {
	if d, ok := ctx.Value(depthKey).(uint32); ok {
		return d
	}
	return 0
}

// call executes one compiled function body. The instance is resolved
// through its arena handle at entry; traps travel out as panics and
// are converted to errors here, collecting a stack frame per level.
func (a *Artifact) call(ctx context.Context, h vm.Handle, fnIdx uint32, args []uint64) (results []uint64, err error) {
	inst, ok := vm.ResolveHandle(h)
	if !ok {
		return nil, errors.Closed("instance")
	}
	if !a.alive() {
		return nil, errors.Closed("artifact")
	}
	depth := callDepth(ctx) + 1
	if depth > a.cfg.CallStackDepth {
		return nil, trap.New(trap.StackOverflow)
	}
	ctx = context.WithValue(ctx, depthKey, depth)

	local := fnIdx - a.module.NumImportedFuncs()
	fn := a.compiled.Funcs[local]
	ft := a.module.Types[fn.TypeIdx]
	if len(args) != len(ft.Params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("function takes %d arguments, got %d", len(ft.Params), len(args)).
			Build()
	}

	defer func() {
		if r := recover(); r != nil {
			terr := trap.Recover(r)
			if t, ok := terr.(*trap.Trap); ok {
				t.PushFrame(trap.Frame{FuncIdx: fnIdx, FuncName: inst.Funcs[fnIdx].Name})
			}
			results, err = nil, terr
		}
	}()

	base := len(ft.Params) + int(fn.NumLocals)
	frame := make([]uint64, base+int(fn.MaxStack))
	copy(frame, args)
	sp := base

	res, err := a.run(ctx, inst, fn, frame, sp)
	if err != nil {
		if t, ok := err.(*trap.Trap); ok {
			t.PushFrame(trap.Frame{FuncIdx: fnIdx, FuncName: inst.Funcs[fnIdx].Name})
		}
		return nil, err
	}
	nr := len(ft.Results)
	results = make([]uint64, nr)
	copy(results, res[len(res)-nr:])
	return results, nil
}

// run is the dispatch loop. It returns the frame's operand stack up
// to the final stack pointer; the caller slices the declared results
// off the top.
func (a *Artifact) run(ctx context.Context, inst *vm.Instance, fn *compiler.Func, frame []uint64, sp int) ([]uint64, error) {
	instrs := fn.Instrs
	mem := inst.Memory()
	fuel := inst.Fuel()

	pc := 0
	for {
		in := &instrs[pc]
		switch in.Op {
		case compiler.OpUnreachable:
			trap.Throw(trap.UnreachableCodeReached)

		case compiler.OpBr:
			sp = adjust(frame, sp, in.U2)
			pc = int(in.U1)
			continue

		case compiler.OpBrIf:
			sp--
			if frame[sp] != 0 {
				sp = adjust(frame, sp, in.U2)
				pc = int(in.U1)
				continue
			}

		case compiler.OpBrIfZ:
			sp--
			if frame[sp] == 0 {
				sp = adjust(frame, sp, in.U2)
				pc = int(in.U1)
				continue
			}

		case compiler.OpBrTable:
			sp--
			idx := int(uint32(frame[sp]))
			last := len(in.Us) - 1
			entry := in.Us[last]
			if idx < last {
				entry = in.Us[idx]
			}
			target, keep, drop := compiler.UnpackBrTableEntry(entry)
			sp = adjustKD(frame, sp, int(keep), int(drop))
			pc = int(target)
			continue

		case compiler.OpReturn:
			return frame[:sp], nil

		case compiler.OpCall:
			callee := inst.Funcs[in.U1]
			var err error
			sp, err = a.invoke(ctx, callee, frame, sp)
			if err != nil {
				return nil, err
			}

		case compiler.OpCallIndirect:
			tbl := inst.Tables[in.U2]
			sp--
			elem := uint32(frame[sp])
			callee, err := tbl.Get(elem)
			if err != nil {
				trap.Throw(trap.OutOfBoundsTableAccess)
			}
			if callee == nil {
				trap.Throw(trap.IndirectCallToNull)
			}
			if callee.TypeID != inst.TypeIDs[in.U1] {
				trap.Throw(trap.IndirectCallTypeMismatch)
			}
			sp, err = a.invoke(ctx, callee, frame, sp)
			if err != nil {
				return nil, err
			}

		case compiler.OpDrop:
			sp--

		case compiler.OpSelect:
			c, v2 := frame[sp-1], frame[sp-2]
			if c == 0 {
				frame[sp-3] = v2
			}
			sp -= 2

		case compiler.OpLocalGet:
			frame[sp] = frame[in.U1]
			sp++

		case compiler.OpLocalSet:
			sp--
			frame[in.U1] = frame[sp]

		case compiler.OpLocalTee:
			frame[in.U1] = frame[sp-1]

		case compiler.OpGlobalGet:
			frame[sp] = inst.Globals[in.U1].Get()
			sp++

		case compiler.OpGlobalSet:
			sp--
			inst.Globals[in.U1].SetUnchecked(frame[sp])

		case compiler.OpI32Load:
			frame[sp-1] = uint64(binary.LittleEndian.Uint32(memBytes(mem, frame[sp-1], in.U1, 4)))
		case compiler.OpI64Load:
			frame[sp-1] = binary.LittleEndian.Uint64(memBytes(mem, frame[sp-1], in.U1, 8))
		case compiler.OpF32Load:
			frame[sp-1] = uint64(binary.LittleEndian.Uint32(memBytes(mem, frame[sp-1], in.U1, 4)))
		case compiler.OpF64Load:
			frame[sp-1] = binary.LittleEndian.Uint64(memBytes(mem, frame[sp-1], in.U1, 8))
		case compiler.OpI32Load8S:
			frame[sp-1] = uint64(uint32(int32(int8(memBytes(mem, frame[sp-1], in.U1, 1)[0]))))
		case compiler.OpI32Load8U:
			frame[sp-1] = uint64(memBytes(mem, frame[sp-1], in.U1, 1)[0])
		case compiler.OpI32Load16S:
			frame[sp-1] = uint64(uint32(int32(int16(binary.LittleEndian.Uint16(memBytes(mem, frame[sp-1], in.U1, 2))))))
		case compiler.OpI32Load16U:
			frame[sp-1] = uint64(binary.LittleEndian.Uint16(memBytes(mem, frame[sp-1], in.U1, 2)))
		case compiler.OpI64Load8S:
			frame[sp-1] = uint64(int64(int8(memBytes(mem, frame[sp-1], in.U1, 1)[0])))
		case compiler.OpI64Load8U:
			frame[sp-1] = uint64(memBytes(mem, frame[sp-1], in.U1, 1)[0])
		case compiler.OpI64Load16S:
			frame[sp-1] = uint64(int64(int16(binary.LittleEndian.Uint16(memBytes(mem, frame[sp-1], in.U1, 2)))))
		case compiler.OpI64Load16U:
			frame[sp-1] = uint64(binary.LittleEndian.Uint16(memBytes(mem, frame[sp-1], in.U1, 2)))
		case compiler.OpI64Load32S:
			frame[sp-1] = uint64(int64(int32(binary.LittleEndian.Uint32(memBytes(mem, frame[sp-1], in.U1, 4)))))
		case compiler.OpI64Load32U:
			frame[sp-1] = uint64(binary.LittleEndian.Uint32(memBytes(mem, frame[sp-1], in.U1, 4)))

		case compiler.OpI32Store:
			sp -= 2
			binary.LittleEndian.PutUint32(memBytes(mem, frame[sp], in.U1, 4), uint32(frame[sp+1]))
		case compiler.OpI64Store:
			sp -= 2
			binary.LittleEndian.PutUint64(memBytes(mem, frame[sp], in.U1, 8), frame[sp+1])
		case compiler.OpF32Store:
			sp -= 2
			binary.LittleEndian.PutUint32(memBytes(mem, frame[sp], in.U1, 4), uint32(frame[sp+1]))
		case compiler.OpF64Store:
			sp -= 2
			binary.LittleEndian.PutUint64(memBytes(mem, frame[sp], in.U1, 8), frame[sp+1])
		case compiler.OpI32Store8, compiler.OpI64Store8:
			sp -= 2
			memBytes(mem, frame[sp], in.U1, 1)[0] = byte(frame[sp+1])
		case compiler.OpI32Store16, compiler.OpI64Store16:
			sp -= 2
			binary.LittleEndian.PutUint16(memBytes(mem, frame[sp], in.U1, 2), uint16(frame[sp+1]))
		case compiler.OpI64Store32:
			sp -= 2
			binary.LittleEndian.PutUint32(memBytes(mem, frame[sp], in.U1, 4), uint32(frame[sp+1]))

		case compiler.OpMemorySize:
			frame[sp] = uint64(mem.Pages())
			sp++

		case compiler.OpMemoryGrow:
			prev, err := mem.Grow(uint32(frame[sp-1]))
			if err != nil {
				frame[sp-1] = uint64(uint32(0xffffffff))
			} else {
				frame[sp-1] = uint64(prev)
			}

		case compiler.OpConst:
			frame[sp] = in.U1
			sp++

		case compiler.OpChargeFuel:
			if fuel != nil && !fuel.Consume(in.U1) {
				trap.Throw(trap.OutOfFuel)
			}

		default:
			sp = execNumeric(in.Op, frame, sp)
		}
		pc++
	}
}

// invoke pops callee's arguments off the frame, runs it, and pushes
// its results.
func (a *Artifact) invoke(ctx context.Context, callee *vm.Function, frame []uint64, sp int) (int, error) {
	np := len(callee.Type.Params)
	args := make([]uint64, np)
	sp -= np
	copy(args, frame[sp:sp+np])
	res, err := callee.Call(ctx, args...)
	if err != nil {
		return sp, err
	}
	copy(frame[sp:], res)
	return sp + len(res), nil
}

// adjust applies a packed branch stack adjustment.
func adjust(frame []uint64, sp int, packed uint64) int {
	keep, drop := compiler.UnpackAdjust(packed)
	return adjustKD(frame, sp, int(keep), int(drop))
}

func adjustKD(frame []uint64, sp, keep, drop int) int {
	if drop == 0 {
		return sp
	}
	copy(frame[sp-keep-drop:], frame[sp-keep:sp])
	return sp - drop
}

// memBytes bounds-checks one access and returns the backing slice for
// it. All memory traffic funnels through here; there is no unchecked
// path.
func memBytes(mem *vm.Memory, base uint64, offset, n uint64) []byte {
	if mem == nil {
		trap.Throw(trap.OutOfBoundsMemoryAccess)
	}
	data := mem.Data()
	ea := uint64(uint32(base)) + offset
	if ea+n > uint64(len(data)) {
		trap.Throw(trap.OutOfBoundsMemoryAccess)
	}
	return data[ea : ea+n]
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// execNumeric handles the pure-arithmetic opcodes.
func execNumeric(op compiler.Op, frame []uint64, sp int) int {
	switch op {
	case compiler.OpI32Eqz:
		frame[sp-1] = b2u(uint32(frame[sp-1]) == 0)
	case compiler.OpI32Eq:
		sp--
		frame[sp-1] = b2u(uint32(frame[sp-1]) == uint32(frame[sp]))
	case compiler.OpI32Ne:
		sp--
		frame[sp-1] = b2u(uint32(frame[sp-1]) != uint32(frame[sp]))
	case compiler.OpI32LtS:
		sp--
		frame[sp-1] = b2u(int32(frame[sp-1]) < int32(frame[sp]))
	case compiler.OpI32LtU:
		sp--
		frame[sp-1] = b2u(uint32(frame[sp-1]) < uint32(frame[sp]))
	case compiler.OpI32GtS:
		sp--
		frame[sp-1] = b2u(int32(frame[sp-1]) > int32(frame[sp]))
	case compiler.OpI32GtU:
		sp--
		frame[sp-1] = b2u(uint32(frame[sp-1]) > uint32(frame[sp]))
	case compiler.OpI32LeS:
		sp--
		frame[sp-1] = b2u(int32(frame[sp-1]) <= int32(frame[sp]))
	case compiler.OpI32LeU:
		sp--
		frame[sp-1] = b2u(uint32(frame[sp-1]) <= uint32(frame[sp]))
	case compiler.OpI32GeS:
		sp--
		frame[sp-1] = b2u(int32(frame[sp-1]) >= int32(frame[sp]))
	case compiler.OpI32GeU:
		sp--
		frame[sp-1] = b2u(uint32(frame[sp-1]) >= uint32(frame[sp]))

	case compiler.OpI64Eqz:
		frame[sp-1] = b2u(frame[sp-1] == 0)
	case compiler.OpI64Eq:
		sp--
		frame[sp-1] = b2u(frame[sp-1] == frame[sp])
	case compiler.OpI64Ne:
		sp--
		frame[sp-1] = b2u(frame[sp-1] != frame[sp])
	case compiler.OpI64LtS:
		sp--
		frame[sp-1] = b2u(int64(frame[sp-1]) < int64(frame[sp]))
	case compiler.OpI64LtU:
		sp--
		frame[sp-1] = b2u(frame[sp-1] < frame[sp])
	case compiler.OpI64GtS:
		sp--
		frame[sp-1] = b2u(int64(frame[sp-1]) > int64(frame[sp]))
	case compiler.OpI64GtU:
		sp--
		frame[sp-1] = b2u(frame[sp-1] > frame[sp])
	case compiler.OpI64LeS:
		sp--
		frame[sp-1] = b2u(int64(frame[sp-1]) <= int64(frame[sp]))
	case compiler.OpI64LeU:
		sp--
		frame[sp-1] = b2u(frame[sp-1] <= frame[sp])
	case compiler.OpI64GeS:
		sp--
		frame[sp-1] = b2u(int64(frame[sp-1]) >= int64(frame[sp]))
	case compiler.OpI64GeU:
		sp--
		frame[sp-1] = b2u(frame[sp-1] >= frame[sp])

	case compiler.OpF32Eq, compiler.OpF32Ne, compiler.OpF32Lt, compiler.OpF32Gt,
		compiler.OpF32Le, compiler.OpF32Ge:
		sp--
		x, y := math.Float32frombits(uint32(frame[sp-1])), math.Float32frombits(uint32(frame[sp]))
		var r bool
		switch op {
		case compiler.OpF32Eq:
			r = x == y
		case compiler.OpF32Ne:
			r = x != y
		case compiler.OpF32Lt:
			r = x < y
		case compiler.OpF32Gt:
			r = x > y
		case compiler.OpF32Le:
			r = x <= y
		default:
			r = x >= y
		}
		frame[sp-1] = b2u(r)

	case compiler.OpF64Eq, compiler.OpF64Ne, compiler.OpF64Lt, compiler.OpF64Gt,
		compiler.OpF64Le, compiler.OpF64Ge:
		sp--
		x, y := math.Float64frombits(frame[sp-1]), math.Float64frombits(frame[sp])
		var r bool
		switch op {
		case compiler.OpF64Eq:
			r = x == y
		case compiler.OpF64Ne:
			r = x != y
		case compiler.OpF64Lt:
			r = x < y
		case compiler.OpF64Gt:
			r = x > y
		case compiler.OpF64Le:
			r = x <= y
		default:
			r = x >= y
		}
		frame[sp-1] = b2u(r)

	case compiler.OpI32Clz:
		frame[sp-1] = uint64(bits.LeadingZeros32(uint32(frame[sp-1])))
	case compiler.OpI32Ctz:
		frame[sp-1] = uint64(bits.TrailingZeros32(uint32(frame[sp-1])))
	case compiler.OpI32Popcnt:
		frame[sp-1] = uint64(bits.OnesCount32(uint32(frame[sp-1])))
	case compiler.OpI32Add:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) + uint32(frame[sp]))
	case compiler.OpI32Sub:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) - uint32(frame[sp]))
	case compiler.OpI32Mul:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) * uint32(frame[sp]))
	case compiler.OpI32DivS:
		sp--
		x, y := int32(frame[sp-1]), int32(frame[sp])
		if y == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		if x == math.MinInt32 && y == -1 {
			trap.Throw(trap.IntegerOverflow)
		}
		frame[sp-1] = uint64(uint32(x / y))
	case compiler.OpI32DivU:
		sp--
		if uint32(frame[sp]) == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		frame[sp-1] = uint64(uint32(frame[sp-1]) / uint32(frame[sp]))
	case compiler.OpI32RemS:
		sp--
		x, y := int32(frame[sp-1]), int32(frame[sp])
		if y == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		if x == math.MinInt32 && y == -1 {
			frame[sp-1] = 0
		} else {
			frame[sp-1] = uint64(uint32(x % y))
		}
	case compiler.OpI32RemU:
		sp--
		if uint32(frame[sp]) == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		frame[sp-1] = uint64(uint32(frame[sp-1]) % uint32(frame[sp]))
	case compiler.OpI32And:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) & uint32(frame[sp]))
	case compiler.OpI32Or:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) | uint32(frame[sp]))
	case compiler.OpI32Xor:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) ^ uint32(frame[sp]))
	case compiler.OpI32Shl:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) << (uint32(frame[sp]) % 32))
	case compiler.OpI32ShrS:
		sp--
		frame[sp-1] = uint64(uint32(int32(frame[sp-1]) >> (uint32(frame[sp]) % 32)))
	case compiler.OpI32ShrU:
		sp--
		frame[sp-1] = uint64(uint32(frame[sp-1]) >> (uint32(frame[sp]) % 32))
	case compiler.OpI32Rotl:
		sp--
		frame[sp-1] = uint64(bits.RotateLeft32(uint32(frame[sp-1]), int(uint32(frame[sp])%32)))
	case compiler.OpI32Rotr:
		sp--
		frame[sp-1] = uint64(bits.RotateLeft32(uint32(frame[sp-1]), -int(uint32(frame[sp])%32)))

	case compiler.OpI64Clz:
		frame[sp-1] = uint64(bits.LeadingZeros64(frame[sp-1]))
	case compiler.OpI64Ctz:
		frame[sp-1] = uint64(bits.TrailingZeros64(frame[sp-1]))
	case compiler.OpI64Popcnt:
		frame[sp-1] = uint64(bits.OnesCount64(frame[sp-1]))
	case compiler.OpI64Add:
		sp--
		frame[sp-1] += frame[sp]
	case compiler.OpI64Sub:
		sp--
		frame[sp-1] -= frame[sp]
	case compiler.OpI64Mul:
		sp--
		frame[sp-1] *= frame[sp]
	case compiler.OpI64DivS:
		sp--
		x, y := int64(frame[sp-1]), int64(frame[sp])
		if y == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		if x == math.MinInt64 && y == -1 {
			trap.Throw(trap.IntegerOverflow)
		}
		frame[sp-1] = uint64(x / y)
	case compiler.OpI64DivU:
		sp--
		if frame[sp] == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		frame[sp-1] /= frame[sp]
	case compiler.OpI64RemS:
		sp--
		x, y := int64(frame[sp-1]), int64(frame[sp])
		if y == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		if x == math.MinInt64 && y == -1 {
			frame[sp-1] = 0
		} else {
			frame[sp-1] = uint64(x % y)
		}
	case compiler.OpI64RemU:
		sp--
		if frame[sp] == 0 {
			trap.Throw(trap.IntegerDivideByZero)
		}
		frame[sp-1] %= frame[sp]
	case compiler.OpI64And:
		sp--
		frame[sp-1] &= frame[sp]
	case compiler.OpI64Or:
		sp--
		frame[sp-1] |= frame[sp]
	case compiler.OpI64Xor:
		sp--
		frame[sp-1] ^= frame[sp]
	case compiler.OpI64Shl:
		sp--
		frame[sp-1] <<= frame[sp] % 64
	case compiler.OpI64ShrS:
		sp--
		frame[sp-1] = uint64(int64(frame[sp-1]) >> (frame[sp] % 64))
	case compiler.OpI64ShrU:
		sp--
		frame[sp-1] >>= frame[sp] % 64
	case compiler.OpI64Rotl:
		sp--
		frame[sp-1] = bits.RotateLeft64(frame[sp-1], int(frame[sp]%64))
	case compiler.OpI64Rotr:
		sp--
		frame[sp-1] = bits.RotateLeft64(frame[sp-1], -int(frame[sp]%64))

	case compiler.OpF32Abs, compiler.OpF32Neg, compiler.OpF32Ceil, compiler.OpF32Floor,
		compiler.OpF32Trunc, compiler.OpF32Nearest, compiler.OpF32Sqrt:
		v := math.Float32frombits(uint32(frame[sp-1]))
		var r float32
		switch op {
		case compiler.OpF32Abs:
			r = float32(math.Abs(float64(v)))
		case compiler.OpF32Neg:
			r = -v
		case compiler.OpF32Ceil:
			r = float32(math.Ceil(float64(v)))
		case compiler.OpF32Floor:
			r = float32(math.Floor(float64(v)))
		case compiler.OpF32Trunc:
			r = float32(math.Trunc(float64(v)))
		case compiler.OpF32Nearest:
			r = float32(math.RoundToEven(float64(v)))
		default:
			r = float32(math.Sqrt(float64(v)))
		}
		frame[sp-1] = uint64(math.Float32bits(r))

	case compiler.OpF32Add, compiler.OpF32Sub, compiler.OpF32Mul, compiler.OpF32Div,
		compiler.OpF32Min, compiler.OpF32Max, compiler.OpF32Copysign:
		sp--
		x := math.Float32frombits(uint32(frame[sp-1]))
		y := math.Float32frombits(uint32(frame[sp]))
		var r float32
		switch op {
		case compiler.OpF32Add:
			r = x + y
		case compiler.OpF32Sub:
			r = x - y
		case compiler.OpF32Mul:
			r = x * y
		case compiler.OpF32Div:
			r = x / y
		case compiler.OpF32Min:
			r = float32(fmin(float64(x), float64(y)))
		case compiler.OpF32Max:
			r = float32(fmax(float64(x), float64(y)))
		default:
			r = float32(math.Copysign(float64(x), float64(y)))
		}
		frame[sp-1] = uint64(math.Float32bits(r))

	case compiler.OpF64Abs, compiler.OpF64Neg, compiler.OpF64Ceil, compiler.OpF64Floor,
		compiler.OpF64Trunc, compiler.OpF64Nearest, compiler.OpF64Sqrt:
		v := math.Float64frombits(frame[sp-1])
		var r float64
		switch op {
		case compiler.OpF64Abs:
			r = math.Abs(v)
		case compiler.OpF64Neg:
			r = -v
		case compiler.OpF64Ceil:
			r = math.Ceil(v)
		case compiler.OpF64Floor:
			r = math.Floor(v)
		case compiler.OpF64Trunc:
			r = math.Trunc(v)
		case compiler.OpF64Nearest:
			r = math.RoundToEven(v)
		default:
			r = math.Sqrt(v)
		}
		frame[sp-1] = math.Float64bits(r)

	case compiler.OpF64Add, compiler.OpF64Sub, compiler.OpF64Mul, compiler.OpF64Div,
		compiler.OpF64Min, compiler.OpF64Max, compiler.OpF64Copysign:
		sp--
		x := math.Float64frombits(frame[sp-1])
		y := math.Float64frombits(frame[sp])
		var r float64
		switch op {
		case compiler.OpF64Add:
			r = x + y
		case compiler.OpF64Sub:
			r = x - y
		case compiler.OpF64Mul:
			r = x * y
		case compiler.OpF64Div:
			r = x / y
		case compiler.OpF64Min:
			r = fmin(x, y)
		case compiler.OpF64Max:
			r = fmax(x, y)
		default:
			r = math.Copysign(x, y)
		}
		frame[sp-1] = math.Float64bits(r)

	case compiler.OpI32WrapI64:
		frame[sp-1] = uint64(uint32(frame[sp-1]))
	case compiler.OpI64ExtendI32S:
		frame[sp-1] = uint64(int64(int32(frame[sp-1])))
	case compiler.OpI64ExtendI32U:
		frame[sp-1] = uint64(uint32(frame[sp-1]))
	case compiler.OpI32Extend8S:
		frame[sp-1] = uint64(uint32(int32(int8(frame[sp-1]))))
	case compiler.OpI32Extend16S:
		frame[sp-1] = uint64(uint32(int32(int16(frame[sp-1]))))
	case compiler.OpI64Extend8S:
		frame[sp-1] = uint64(int64(int8(frame[sp-1])))
	case compiler.OpI64Extend16S:
		frame[sp-1] = uint64(int64(int16(frame[sp-1])))
	case compiler.OpI64Extend32S:
		frame[sp-1] = uint64(int64(int32(frame[sp-1])))

	default:
		trap.Throw(trap.UnreachableCodeReached)
	}
	return sp
}

// fmin implements wasm minimum semantics: NaN propagates and negative
// zero sorts below positive zero.
func fmin(x, y float64) float64 {
	if x != x || y != y {
		return math.NaN()
	}
	if x == y {
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// fmax implements wasm maximum semantics, the mirror of fmin.
func fmax(x, y float64) float64 {
	if x != x || y != y {
		return math.NaN()
	}
	if x == y {
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}
