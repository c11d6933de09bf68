package vm

import (
	"context"
	"sync"

	"github.com/kilnwasm/kiln/wasm"
)

// HostFunc is the Go signature host functions implement. Arguments
// and results are raw 64-bit values in the order the wasm signature
// declares them.
type HostFunc func(ctx context.Context, args []uint64) ([]uint64, error)

// Function is a callable function reference: either a wasm function
// belonging to an instance or a host function provided by the
// embedder.
type Function struct {
	Type   wasm.FuncType
	TypeID uint32

	// Owner is the instance the function belongs to; nil for host
	// functions.
	Owner *Instance

	// Idx is the module-wide function index within Owner.
	Idx uint32

	// Name is the export or debug name when known.
	Name string

	// call is installed by the engine for wasm functions and wraps
	// GoFunc for host functions.
	call HostFunc
}

// NewHostFunction wraps fn as a callable function reference.
func NewHostFunction(ft wasm.FuncType, fn HostFunc) *Function {
	return &Function{Type: ft, TypeID: TypeID(ft), call: fn}
}

// Bind installs the entry point the engine built for this function.
func (f *Function) Bind(call HostFunc) { f.call = call }

// IsHost reports whether the function is host-provided.
func (f *Function) IsHost() bool { return f.Owner == nil }

// Call invokes the function. For wasm functions this enters the
// engine's execution loop; traps come back as *trap.Trap errors.
func (f *Function) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	return f.call(ctx, args)
}

// typeIDs interns canonical signatures process-wide so indirect call
// checks compare a single integer regardless of which module a
// signature came from.
var typeIDs = struct {
	mu  sync.RWMutex
	ids map[string]uint32
}{ids: make(map[string]uint32)}

// TypeID returns the dense process-wide ID of a signature. Equal
// signatures always map to the same ID.
func TypeID(ft wasm.FuncType) uint32 {
	key := ft.String()
	typeIDs.mu.RLock()
	id, ok := typeIDs.ids[key]
	typeIDs.mu.RUnlock()
	if ok {
		return id
	}
	typeIDs.mu.Lock()
	defer typeIDs.mu.Unlock()
	if id, ok = typeIDs.ids[key]; ok {
		return id
	}
	id = uint32(len(typeIDs.ids))
	typeIDs.ids[key] = id
	return id
}
