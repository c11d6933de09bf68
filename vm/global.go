package vm

import (
	"math"
	"sync/atomic"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Global is a global variable instance. Values are stored as raw
// 64-bit patterns regardless of type; i32 values are zero-extended
// and floats hold their IEEE 754 bits.
type Global struct {
	val  atomic.Uint64
	typ  wasm.GlobalType
	name string
}

// NewGlobal creates a global with the given type and initial value.
func NewGlobal(t wasm.GlobalType, init uint64) *Global {
	g := &Global{typ: t}
	g.val.Store(init)
	return g
}

// Type returns the global's declared type.
func (g *Global) Type() wasm.GlobalType { return g.typ }

// SetName records the export name for error messages.
func (g *Global) SetName(name string) { g.name = name }

// Get returns the raw 64-bit value.
func (g *Global) Get() uint64 { return g.val.Load() }

// Set stores a raw 64-bit value. Writes to an immutable global fail;
// the value is unchanged.
func (g *Global) Set(v uint64) error {
	if !g.typ.Mutable {
		name := g.name
		if name == "" {
			name = "(anonymous)"
		}
		return errors.ImmutableGlobal(name)
	}
	g.val.Store(v)
	return nil
}

// SetUnchecked bypasses the mutability check. Execution uses it for
// global.set, which validation already proved targets a mutable
// global.
func (g *Global) SetUnchecked(v uint64) { g.val.Store(v) }

// I32 returns the value as an i32.
func (g *Global) I32() int32 { return int32(uint32(g.Get())) }

// I64 returns the value as an i64.
func (g *Global) I64() int64 { return int64(g.Get()) }

// F32 returns the value as an f32.
func (g *Global) F32() float32 { return math.Float32frombits(uint32(g.Get())) }

// F64 returns the value as an f64.
func (g *Global) F64() float64 { return math.Float64frombits(g.Get()) }
