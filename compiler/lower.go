package compiler

import (
	"fmt"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// frameKind distinguishes the control structures on the lowering
// stack. The function body itself is the outermost frame.
type frameKind uint8

const (
	frameFunc frameKind = iota
	frameBlock
	frameLoop
	frameIf
)

// fixup records an instruction whose branch target is patched once
// the destination label's address is known. us indexes into the
// instruction's Us list for br_table entries; -1 patches U1.
type fixup struct {
	pc int
	us int
}

type ctrlFrame struct {
	kind frameKind
	// base is the operand stack height beneath the frame's block
	// parameters.
	base    int
	params  int
	results int
	// loopStart is the branch target for loops, known at entry.
	loopStart int
	// elseFixups jump to the else arm (or the end when there is
	// none).
	elseFixups []fixup
	// endFixups jump to the instruction after the frame's end.
	endFixups []fixup
	hasElse   bool
	// dead is set once the rest of the frame is unreachable.
	dead bool
}

// branchKeep is the value count a branch to this frame preserves:
// results for blocks and ifs, parameters for loops.
func (f *ctrlFrame) branchKeep() int {
	if f.kind == frameLoop {
		return f.params
	}
	return f.results
}

type lowerer struct {
	m    *wasm.Module
	cfg  *Config
	ft   wasm.FuncType
	code wasm.Code
	r    *wasm.BodyReader
	mws  []FuncMiddleware

	instrs    []Instr
	frames    []ctrlFrame
	height    int
	maxHeight int
	// deadDepth counts nested blocks entered inside dead code.
	deadDepth int
}

// lowerFunc compiles one local function body to the flat form.
// fnIdx is the module-wide function index.
func lowerFunc(m *wasm.Module, cfg *Config, fnIdx uint32) (*Func, error) {
	local := fnIdx - m.NumImportedFuncs()
	typeIdx := m.Funcs[local]
	code := m.Code[local]

	l := &lowerer{
		m:    m,
		cfg:  cfg,
		ft:   m.Types[typeIdx],
		code: code,
		r:    wasm.NewBodyReader(code.Body),
	}
	if len(l.ft.Results) > 1 && !cfg.Features.Has(FeatureMultiValue) {
		return nil, errors.Unsupported(errors.PhaseCompile,
			"multi-value results require the multi-value feature")
	}
	for _, mw := range cfg.Middleware {
		l.mws = append(l.mws, mw.NewFuncMiddleware(fnIdx))
	}

	l.frames = append(l.frames, ctrlFrame{
		kind:    frameFunc,
		results: len(l.ft.Results),
	})

	if err := l.run(); err != nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindCodegen).
			Detail("function %d at body offset %d", fnIdx, l.r.Pos()).
			Cause(err).
			Build()
	}

	return &Func{
		TypeIdx:   typeIdx,
		NumLocals: code.NumLocals(),
		MaxStack:  uint32(l.maxHeight),
		Instrs:    l.instrs,
	}, nil
}

func (l *lowerer) run() error {
	for len(l.frames) > 0 {
		op, err := l.r.Byte()
		if err != nil {
			return fmt.Errorf("body ends inside a block")
		}
		for i, mw := range l.mws {
			pre, err := mw.Feed(op)
			if err != nil {
				return errors.Middleware(l.cfg.Middleware[i].Name(), err)
			}
			if !l.top().dead {
				l.instrs = append(l.instrs, pre...)
			}
		}
		if l.top().dead {
			if err := l.skipDead(op); err != nil {
				return err
			}
			continue
		}
		if err := l.lowerOp(op); err != nil {
			return err
		}
	}
	if l.r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes after function end", l.r.Len())
	}
	// Falling off the end returns the values left on the stack.
	l.emit(Instr{Op: OpReturn})
	return nil
}

func (l *lowerer) top() *ctrlFrame { return &l.frames[len(l.frames)-1] }

func (l *lowerer) emit(i Instr) int {
	l.instrs = append(l.instrs, i)
	return len(l.instrs) - 1
}

func (l *lowerer) push(n int) {
	l.height += n
	if l.height > l.maxHeight {
		l.maxHeight = l.height
	}
}

func (l *lowerer) pop(n int) error {
	if l.height-n < l.top().base {
		return fmt.Errorf("operand stack underflow")
	}
	l.height -= n
	return nil
}

// readBlockType decodes a block's signature. Negative s33 values
// encode shorthand forms; non-negative values index the type section.
func (l *lowerer) readBlockType() (params, results int, err error) {
	v, err := l.r.S64()
	if err != nil {
		return 0, 0, err
	}
	if v >= 0 {
		if v >= int64(len(l.m.Types)) {
			return 0, 0, fmt.Errorf("block type index %d out of range", v)
		}
		ft := l.m.Types[v]
		if (len(ft.Params) > 0 || len(ft.Results) > 1) &&
			!l.cfg.Features.Has(FeatureMultiValue) {
			return 0, 0, errors.Unsupported(errors.PhaseCompile,
				"block signatures require the multi-value feature")
		}
		return len(ft.Params), len(ft.Results), nil
	}
	switch byte(v & 0x7f) {
	case 0x40:
		return 0, 0, nil
	case byte(wasm.ValI32), byte(wasm.ValI64), byte(wasm.ValF32),
		byte(wasm.ValF64), byte(wasm.ValFuncRef), byte(wasm.ValExtRef):
		return 0, 1, nil
	default:
		return 0, 0, fmt.Errorf("invalid block type %d", v)
	}
}

// markDead flags the rest of the current frame unreachable.
func (l *lowerer) markDead() {
	l.top().dead = true
	l.deadDepth = 0
}

// skipDead consumes an operator inside dead code: immediates are
// parsed, nothing is emitted, and block nesting is tracked so the
// matching end (or else) revives lowering.
func (l *lowerer) skipDead(op byte) error {
	switch op {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		if _, _, err := l.readBlockType(); err != nil {
			return err
		}
		l.deadDepth++
		return nil
	case wasm.OpElse:
		if l.deadDepth == 0 {
			return l.lowerElse()
		}
		return nil
	case wasm.OpEnd:
		if l.deadDepth > 0 {
			l.deadDepth--
			return nil
		}
		return l.lowerEnd()
	default:
		return l.skipImmediates(op)
	}
}

// skipImmediates advances past an operator's immediates without
// lowering it.
func (l *lowerer) skipImmediates(op byte) error {
	switch {
	case op == wasm.OpBr || op == wasm.OpBrIf || op == wasm.OpCall ||
		op == wasm.OpLocalGet || op == wasm.OpLocalSet || op == wasm.OpLocalTee ||
		op == wasm.OpGlobalGet || op == wasm.OpGlobalSet || op == wasm.OpRefFunc:
		_, err := l.r.U32()
		return err
	case op == wasm.OpBrTable:
		n, err := l.r.U32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err := l.r.U32(); err != nil {
				return err
			}
		}
		return nil
	case op == wasm.OpCallIndirect:
		if _, err := l.r.U32(); err != nil {
			return err
		}
		_, err := l.r.U32()
		return err
	case op >= wasm.OpI32Load && op <= wasm.OpI64Store32:
		if _, err := l.r.U32(); err != nil {
			return err
		}
		_, err := l.r.U32()
		return err
	case op == wasm.OpMemorySize || op == wasm.OpMemoryGrow:
		_, err := l.r.Byte()
		return err
	case op == wasm.OpI32Const:
		_, err := l.r.S32()
		return err
	case op == wasm.OpI64Const:
		_, err := l.r.S64()
		return err
	case op == wasm.OpF32Const:
		_, err := l.r.F32Bits()
		return err
	case op == wasm.OpF64Const:
		_, err := l.r.F64Bits()
		return err
	case op == wasm.OpRefNull:
		_, err := l.r.Byte()
		return err
	default:
		// No immediates.
		return nil
	}
}

// branchTo emits a branch instruction to the frame depth levels up
// and registers target fixups where the destination is not yet known.
func (l *lowerer) branchTo(op Op, depth uint32) error {
	if int(depth) >= len(l.frames) {
		return fmt.Errorf("branch depth %d exceeds nesting %d", depth, len(l.frames)-1)
	}
	f := &l.frames[len(l.frames)-1-int(depth)]
	keep := f.branchKeep()
	drop := l.height - f.base - keep
	if drop < 0 {
		return fmt.Errorf("operand stack underflow at branch")
	}
	in := Instr{Op: op, U2: PackAdjust(uint32(keep), uint32(drop))}
	if f.kind == frameLoop {
		in.U1 = uint64(f.loopStart)
		l.emit(in)
		return nil
	}
	pc := l.emit(in)
	f.endFixups = append(f.endFixups, fixup{pc: pc, us: -1})
	return nil
}

func (l *lowerer) lowerOp(op byte) error {
	switch op {
	case wasm.OpUnreachable:
		l.emit(Instr{Op: OpUnreachable})
		l.markDead()
		return nil

	case wasm.OpNop:
		return nil

	case wasm.OpBlock, wasm.OpLoop:
		params, results, err := l.readBlockType()
		if err != nil {
			return err
		}
		if err := l.pop(params); err != nil {
			return err
		}
		l.push(params)
		kind := frameBlock
		if op == wasm.OpLoop {
			kind = frameLoop
		}
		l.frames = append(l.frames, ctrlFrame{
			kind:      kind,
			base:      l.height - params,
			params:    params,
			results:   results,
			loopStart: len(l.instrs),
		})
		return nil

	case wasm.OpIf:
		params, results, err := l.readBlockType()
		if err != nil {
			return err
		}
		if err := l.pop(1); err != nil { // condition
			return err
		}
		if err := l.pop(params); err != nil {
			return err
		}
		l.push(params)
		f := ctrlFrame{
			kind:    frameIf,
			base:    l.height - params,
			params:  params,
			results: results,
		}
		pc := l.emit(Instr{Op: OpBrIfZ, U2: PackAdjust(0, 0)})
		f.elseFixups = append(f.elseFixups, fixup{pc: pc, us: -1})
		l.frames = append(l.frames, f)
		return nil

	case wasm.OpElse:
		return l.lowerElse()

	case wasm.OpEnd:
		return l.lowerEnd()

	case wasm.OpBr:
		depth, err := l.r.U32()
		if err != nil {
			return err
		}
		if err := l.branchTo(OpBr, depth); err != nil {
			return err
		}
		l.markDead()
		return nil

	case wasm.OpBrIf:
		depth, err := l.r.U32()
		if err != nil {
			return err
		}
		if err := l.pop(1); err != nil {
			return err
		}
		return l.branchTo(OpBrIf, depth)

	case wasm.OpBrTable:
		return l.lowerBrTable()

	case wasm.OpReturn:
		if err := l.pop(len(l.ft.Results)); err != nil {
			return err
		}
		l.push(len(l.ft.Results))
		l.emit(Instr{Op: OpReturn})
		l.markDead()
		return nil

	case wasm.OpCall:
		fnIdx, err := l.r.U32()
		if err != nil {
			return err
		}
		ft, err := l.m.GetFuncType(fnIdx)
		if err != nil {
			return err
		}
		if err := l.pop(len(ft.Params)); err != nil {
			return err
		}
		l.push(len(ft.Results))
		l.emit(Instr{Op: OpCall, U1: uint64(fnIdx)})
		return nil

	case wasm.OpCallIndirect:
		typeIdx, err := l.r.U32()
		if err != nil {
			return err
		}
		tableIdx, err := l.r.U32()
		if err != nil {
			return err
		}
		if typeIdx >= uint32(len(l.m.Types)) {
			return fmt.Errorf("call_indirect type index %d out of range", typeIdx)
		}
		ft := l.m.Types[typeIdx]
		if err := l.pop(1); err != nil { // table element index
			return err
		}
		if err := l.pop(len(ft.Params)); err != nil {
			return err
		}
		l.push(len(ft.Results))
		l.emit(Instr{Op: OpCallIndirect, U1: uint64(typeIdx), U2: uint64(tableIdx)})
		return nil

	case wasm.OpDrop:
		if err := l.pop(1); err != nil {
			return err
		}
		l.emit(Instr{Op: OpDrop})
		return nil

	case wasm.OpSelect:
		if err := l.pop(3); err != nil {
			return err
		}
		l.push(1)
		l.emit(Instr{Op: OpSelect})
		return nil

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		idx, err := l.r.U32()
		if err != nil {
			return err
		}
		if idx >= uint32(len(l.ft.Params))+l.code.NumLocals() {
			return fmt.Errorf("local index %d out of range", idx)
		}
		switch op {
		case wasm.OpLocalGet:
			l.push(1)
			l.emit(Instr{Op: OpLocalGet, U1: uint64(idx)})
		case wasm.OpLocalSet:
			if err := l.pop(1); err != nil {
				return err
			}
			l.emit(Instr{Op: OpLocalSet, U1: uint64(idx)})
		default:
			if err := l.pop(1); err != nil {
				return err
			}
			l.push(1)
			l.emit(Instr{Op: OpLocalTee, U1: uint64(idx)})
		}
		return nil

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		idx, err := l.r.U32()
		if err != nil {
			return err
		}
		numGlobals := l.m.NumImportedGlobals() + uint32(len(l.m.Globals))
		if idx >= numGlobals {
			return fmt.Errorf("global index %d out of range", idx)
		}
		if op == wasm.OpGlobalGet {
			l.push(1)
			l.emit(Instr{Op: OpGlobalGet, U1: uint64(idx)})
		} else {
			if err := l.pop(1); err != nil {
				return err
			}
			l.emit(Instr{Op: OpGlobalSet, U1: uint64(idx)})
		}
		return nil

	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		memIdx, err := l.r.Byte()
		if err != nil {
			return err
		}
		if memIdx != 0 {
			return fmt.Errorf("non-zero memory index %d", memIdx)
		}
		if err := l.requireMemory(); err != nil {
			return err
		}
		if op == wasm.OpMemorySize {
			l.push(1)
			l.emit(Instr{Op: OpMemorySize})
		} else {
			if err := l.pop(1); err != nil {
				return err
			}
			l.push(1)
			l.emit(Instr{Op: OpMemoryGrow})
		}
		return nil

	case wasm.OpI32Const:
		v, err := l.r.S32()
		if err != nil {
			return err
		}
		l.push(1)
		l.emit(Instr{Op: OpConst, U1: uint64(uint32(v))})
		return nil

	case wasm.OpI64Const:
		v, err := l.r.S64()
		if err != nil {
			return err
		}
		l.push(1)
		l.emit(Instr{Op: OpConst, U1: uint64(v)})
		return nil

	case wasm.OpF32Const:
		bits, err := l.r.F32Bits()
		if err != nil {
			return err
		}
		l.push(1)
		l.emit(Instr{Op: OpConst, U1: uint64(bits)})
		return nil

	case wasm.OpF64Const:
		bits, err := l.r.F64Bits()
		if err != nil {
			return err
		}
		l.push(1)
		l.emit(Instr{Op: OpConst, U1: bits})
		return nil
	}

	if op >= wasm.OpI32Load && op <= wasm.OpI64Store32 {
		return l.lowerMemAccess(op)
	}
	if lowered, ok := simpleOps[op]; ok {
		if lowered.feature != 0 && !l.cfg.Features.Has(lowered.feature) {
			return errors.Unsupported(errors.PhaseCompile,
				fmt.Sprintf("opcode 0x%02x requires a disabled feature", op))
		}
		if err := l.pop(lowered.pops); err != nil {
			return err
		}
		l.push(lowered.pushes)
		l.emit(Instr{Op: lowered.op})
		return nil
	}
	return errors.Unsupported(errors.PhaseCompile, fmt.Sprintf("opcode 0x%02x", op))
}

func (l *lowerer) requireMemory() error {
	if l.m.NumImportedMemories()+uint32(len(l.m.Memories)) == 0 {
		return fmt.Errorf("memory instruction without a declared memory")
	}
	return nil
}

func (l *lowerer) lowerMemAccess(op byte) error {
	if _, err := l.r.U32(); err != nil { // alignment hint, unused
		return err
	}
	offset, err := l.r.U32()
	if err != nil {
		return err
	}
	if err := l.requireMemory(); err != nil {
		return err
	}
	isStore := op >= wasm.OpI32Store
	if isStore {
		if err := l.pop(2); err != nil {
			return err
		}
	} else {
		if err := l.pop(1); err != nil {
			return err
		}
		l.push(1)
	}
	// The lowered load/store opcodes mirror the source encoding's
	// order, so the translation is a fixed offset.
	lowered := OpI32Load + Op(op-wasm.OpI32Load)
	l.emit(Instr{Op: lowered, U1: uint64(offset)})
	return nil
}

func (l *lowerer) lowerBrTable() error {
	n, err := l.r.U32()
	if err != nil {
		return err
	}
	if err := l.pop(1); err != nil { // selector
		return err
	}
	in := Instr{Op: OpBrTable, Us: make([]uint64, 0, n+1)}
	pc := l.emit(in)
	for i := uint32(0); i <= n; i++ {
		depth, err := l.r.U32()
		if err != nil {
			return err
		}
		if int(depth) >= len(l.frames) {
			return fmt.Errorf("branch depth %d exceeds nesting %d", depth, len(l.frames)-1)
		}
		f := &l.frames[len(l.frames)-1-int(depth)]
		keep := f.branchKeep()
		drop := l.height - f.base - keep
		if drop < 0 {
			return fmt.Errorf("operand stack underflow at branch")
		}
		entry := PackBrTableEntry(0, uint16(keep), uint16(drop))
		if f.kind == frameLoop {
			entry = PackBrTableEntry(uint32(f.loopStart), uint16(keep), uint16(drop))
		} else {
			f.endFixups = append(f.endFixups, fixup{pc: pc, us: int(i)})
		}
		l.instrs[pc].Us = append(l.instrs[pc].Us, entry)
	}
	l.markDead()
	return nil
}

func (l *lowerer) lowerElse() error {
	f := l.top()
	if f.kind != frameIf {
		return fmt.Errorf("else outside if")
	}
	if !f.dead {
		if l.height != f.base+f.results {
			return fmt.Errorf("then arm leaves %d values, block type has %d",
				l.height-f.base, f.results)
		}
		pc := l.emit(Instr{Op: OpBr, U2: PackAdjust(0, 0)})
		f.endFixups = append(f.endFixups, fixup{pc: pc, us: -1})
	}
	l.patch(f.elseFixups, len(l.instrs))
	f.elseFixups = nil
	f.hasElse = true
	f.dead = false
	l.height = f.base + f.params
	return nil
}

func (l *lowerer) lowerEnd() error {
	f := l.top()
	if !f.dead && l.height != f.base+f.results {
		return fmt.Errorf("block leaves %d values, block type has %d",
			l.height-f.base, f.results)
	}
	if f.kind == frameIf && !f.hasElse && f.params != f.results {
		return fmt.Errorf("if without else must preserve its inputs")
	}
	target := len(l.instrs)
	l.patch(f.elseFixups, target)
	l.patch(f.endFixups, target)
	l.height = f.base + f.results
	if l.height > l.maxHeight {
		l.maxHeight = l.height
	}
	l.frames = l.frames[:len(l.frames)-1]
	return nil
}

func (l *lowerer) patch(fixups []fixup, target int) {
	for _, fx := range fixups {
		if fx.us < 0 {
			l.instrs[fx.pc].U1 = uint64(target)
			continue
		}
		_, keep, drop := UnpackBrTableEntry(l.instrs[fx.pc].Us[fx.us])
		l.instrs[fx.pc].Us[fx.us] = PackBrTableEntry(uint32(target), keep, drop)
	}
}

type simpleOp struct {
	op      Op
	pops    int
	pushes  int
	feature Features
}

// simpleOps maps source opcodes with no immediates to their lowered
// form and static stack effect.
var simpleOps = map[byte]simpleOp{
	wasm.OpI32Eqz: {OpI32Eqz, 1, 1, 0},
	wasm.OpI32Eq:  {OpI32Eq, 2, 1, 0},
	wasm.OpI32Ne:  {OpI32Ne, 2, 1, 0},
	wasm.OpI32LtS: {OpI32LtS, 2, 1, 0},
	wasm.OpI32LtU: {OpI32LtU, 2, 1, 0},
	wasm.OpI32GtS: {OpI32GtS, 2, 1, 0},
	wasm.OpI32GtU: {OpI32GtU, 2, 1, 0},
	wasm.OpI32LeS: {OpI32LeS, 2, 1, 0},
	wasm.OpI32LeU: {OpI32LeU, 2, 1, 0},
	wasm.OpI32GeS: {OpI32GeS, 2, 1, 0},
	wasm.OpI32GeU: {OpI32GeU, 2, 1, 0},

	wasm.OpI64Eqz: {OpI64Eqz, 1, 1, 0},
	wasm.OpI64Eq:  {OpI64Eq, 2, 1, 0},
	wasm.OpI64Ne:  {OpI64Ne, 2, 1, 0},
	wasm.OpI64LtS: {OpI64LtS, 2, 1, 0},
	wasm.OpI64LtU: {OpI64LtU, 2, 1, 0},
	wasm.OpI64GtS: {OpI64GtS, 2, 1, 0},
	wasm.OpI64GtU: {OpI64GtU, 2, 1, 0},
	wasm.OpI64LeS: {OpI64LeS, 2, 1, 0},
	wasm.OpI64LeU: {OpI64LeU, 2, 1, 0},
	wasm.OpI64GeS: {OpI64GeS, 2, 1, 0},
	wasm.OpI64GeU: {OpI64GeU, 2, 1, 0},

	wasm.OpF32Eq: {OpF32Eq, 2, 1, 0},
	wasm.OpF32Ne: {OpF32Ne, 2, 1, 0},
	wasm.OpF32Lt: {OpF32Lt, 2, 1, 0},
	wasm.OpF32Gt: {OpF32Gt, 2, 1, 0},
	wasm.OpF32Le: {OpF32Le, 2, 1, 0},
	wasm.OpF32Ge: {OpF32Ge, 2, 1, 0},

	wasm.OpF64Eq: {OpF64Eq, 2, 1, 0},
	wasm.OpF64Ne: {OpF64Ne, 2, 1, 0},
	wasm.OpF64Lt: {OpF64Lt, 2, 1, 0},
	wasm.OpF64Gt: {OpF64Gt, 2, 1, 0},
	wasm.OpF64Le: {OpF64Le, 2, 1, 0},
	wasm.OpF64Ge: {OpF64Ge, 2, 1, 0},

	wasm.OpI32Clz:    {OpI32Clz, 1, 1, 0},
	wasm.OpI32Ctz:    {OpI32Ctz, 1, 1, 0},
	wasm.OpI32Popcnt: {OpI32Popcnt, 1, 1, 0},
	wasm.OpI32Add:    {OpI32Add, 2, 1, 0},
	wasm.OpI32Sub:    {OpI32Sub, 2, 1, 0},
	wasm.OpI32Mul:    {OpI32Mul, 2, 1, 0},
	wasm.OpI32DivS:   {OpI32DivS, 2, 1, 0},
	wasm.OpI32DivU:   {OpI32DivU, 2, 1, 0},
	wasm.OpI32RemS:   {OpI32RemS, 2, 1, 0},
	wasm.OpI32RemU:   {OpI32RemU, 2, 1, 0},
	wasm.OpI32And:    {OpI32And, 2, 1, 0},
	wasm.OpI32Or:     {OpI32Or, 2, 1, 0},
	wasm.OpI32Xor:    {OpI32Xor, 2, 1, 0},
	wasm.OpI32Shl:    {OpI32Shl, 2, 1, 0},
	wasm.OpI32ShrS:   {OpI32ShrS, 2, 1, 0},
	wasm.OpI32ShrU:   {OpI32ShrU, 2, 1, 0},
	wasm.OpI32Rotl:   {OpI32Rotl, 2, 1, 0},
	wasm.OpI32Rotr:   {OpI32Rotr, 2, 1, 0},

	wasm.OpI64Clz:    {OpI64Clz, 1, 1, 0},
	wasm.OpI64Ctz:    {OpI64Ctz, 1, 1, 0},
	wasm.OpI64Popcnt: {OpI64Popcnt, 1, 1, 0},
	wasm.OpI64Add:    {OpI64Add, 2, 1, 0},
	wasm.OpI64Sub:    {OpI64Sub, 2, 1, 0},
	wasm.OpI64Mul:    {OpI64Mul, 2, 1, 0},
	wasm.OpI64DivS:   {OpI64DivS, 2, 1, 0},
	wasm.OpI64DivU:   {OpI64DivU, 2, 1, 0},
	wasm.OpI64RemS:   {OpI64RemS, 2, 1, 0},
	wasm.OpI64RemU:   {OpI64RemU, 2, 1, 0},
	wasm.OpI64And:    {OpI64And, 2, 1, 0},
	wasm.OpI64Or:     {OpI64Or, 2, 1, 0},
	wasm.OpI64Xor:    {OpI64Xor, 2, 1, 0},
	wasm.OpI64Shl:    {OpI64Shl, 2, 1, 0},
	wasm.OpI64ShrS:   {OpI64ShrS, 2, 1, 0},
	wasm.OpI64ShrU:   {OpI64ShrU, 2, 1, 0},
	wasm.OpI64Rotl:   {OpI64Rotl, 2, 1, 0},
	wasm.OpI64Rotr:   {OpI64Rotr, 2, 1, 0},

	wasm.OpF32Abs:      {OpF32Abs, 1, 1, 0},
	wasm.OpF32Neg:      {OpF32Neg, 1, 1, 0},
	wasm.OpF32Ceil:     {OpF32Ceil, 1, 1, 0},
	wasm.OpF32Floor:    {OpF32Floor, 1, 1, 0},
	wasm.OpF32Trunc:    {OpF32Trunc, 1, 1, 0},
	wasm.OpF32Nearest:  {OpF32Nearest, 1, 1, 0},
	wasm.OpF32Sqrt:     {OpF32Sqrt, 1, 1, 0},
	wasm.OpF32Add:      {OpF32Add, 2, 1, 0},
	wasm.OpF32Sub:      {OpF32Sub, 2, 1, 0},
	wasm.OpF32Mul:      {OpF32Mul, 2, 1, 0},
	wasm.OpF32Div:      {OpF32Div, 2, 1, 0},
	wasm.OpF32Min:      {OpF32Min, 2, 1, 0},
	wasm.OpF32Max:      {OpF32Max, 2, 1, 0},
	wasm.OpF32Copysign: {OpF32Copysign, 2, 1, 0},

	wasm.OpF64Abs:      {OpF64Abs, 1, 1, 0},
	wasm.OpF64Neg:      {OpF64Neg, 1, 1, 0},
	wasm.OpF64Ceil:     {OpF64Ceil, 1, 1, 0},
	wasm.OpF64Floor:    {OpF64Floor, 1, 1, 0},
	wasm.OpF64Trunc:    {OpF64Trunc, 1, 1, 0},
	wasm.OpF64Nearest:  {OpF64Nearest, 1, 1, 0},
	wasm.OpF64Sqrt:     {OpF64Sqrt, 1, 1, 0},
	wasm.OpF64Add:      {OpF64Add, 2, 1, 0},
	wasm.OpF64Sub:      {OpF64Sub, 2, 1, 0},
	wasm.OpF64Mul:      {OpF64Mul, 2, 1, 0},
	wasm.OpF64Div:      {OpF64Div, 2, 1, 0},
	wasm.OpF64Min:      {OpF64Min, 2, 1, 0},
	wasm.OpF64Max:      {OpF64Max, 2, 1, 0},
	wasm.OpF64Copysign: {OpF64Copysign, 2, 1, 0},

	wasm.OpI32WrapI64:    {OpI32WrapI64, 1, 1, 0},
	wasm.OpI64ExtendI32S: {OpI64ExtendI32S, 1, 1, 0},
	wasm.OpI64ExtendI32U: {OpI64ExtendI32U, 1, 1, 0},

	wasm.OpI32Extend8S:  {OpI32Extend8S, 1, 1, FeatureSignExtension},
	wasm.OpI32Extend16S: {OpI32Extend16S, 1, 1, FeatureSignExtension},
	wasm.OpI64Extend8S:  {OpI64Extend8S, 1, 1, FeatureSignExtension},
	wasm.OpI64Extend16S: {OpI64Extend16S, 1, 1, FeatureSignExtension},
	wasm.OpI64Extend32S: {OpI64Extend32S, 1, 1, FeatureSignExtension},
}
