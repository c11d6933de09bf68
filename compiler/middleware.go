package compiler

import (
	"github.com/kilnwasm/kiln/wasm"
)

// Middleware transforms function bodies during lowering. Middleware
// run in registration order: each sees the source operator stream and
// may prepend lowered instructions before an operator's own lowering.
type Middleware interface {
	// Name identifies the middleware in error messages.
	Name() string
	// NewFuncMiddleware returns the per-function state for lowering
	// the function at the given module-wide index.
	NewFuncMiddleware(funcIdx uint32) FuncMiddleware
}

// FuncMiddleware observes one function body's operators.
type FuncMiddleware interface {
	// Feed is called with each source opcode before it is lowered and
	// returns instructions to emit ahead of it.
	Feed(op byte) ([]Instr, error)
}

// Metering injects fuel accounting into compiled code. Costs
// accumulate across straight-line runs and are charged in a single
// instruction before every control transfer, so loops pay on each
// back edge. Execution traps with an out-of-fuel code when the budget
// runs dry.
type Metering struct {
	// Cost maps a source opcode to its fuel price. Nil charges one
	// unit per operator.
	Cost func(op byte) uint64
}

// NewMetering returns a metering middleware charging one unit per
// operator.
func NewMetering() *Metering {
	return &Metering{}
}

func (*Metering) Name() string { return "metering" }

func (m *Metering) NewFuncMiddleware(funcIdx uint32) FuncMiddleware {
	return &meteringFunc{cost: m.Cost}
}

type meteringFunc struct {
	cost    func(op byte) uint64
	pending uint64
}

func (m *meteringFunc) Feed(op byte) ([]Instr, error) {
	if m.cost != nil {
		m.pending += m.cost(op)
	} else {
		m.pending++
	}
	if !isControlOp(op) {
		return nil, nil
	}
	charge := m.pending
	m.pending = 0
	if charge == 0 {
		return nil, nil
	}
	return []Instr{{Op: OpChargeFuel, U1: charge}}, nil
}

// isControlOp reports whether op can transfer control, i.e. whether
// accumulated fuel must be charged before it runs.
func isControlOp(op byte) bool {
	switch op {
	case wasm.OpUnreachable, wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse,
		wasm.OpEnd, wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable, wasm.OpReturn,
		wasm.OpCall, wasm.OpCallIndirect:
		return true
	}
	return false
}
