package vm

import "sync"

// Handle is a stable index into the context arena. Compiled code and
// serialized state reference instances through handles rather than
// raw pointers, so an artifact never embeds an address.
type Handle uint32

// NilHandle is the zero handle; it never resolves.
const NilHandle Handle = 0

// arena is the process-wide instance registry. Slot 0 is reserved so
// the zero Handle stays invalid; freed slots are reused.
var arena = struct {
	mu    sync.RWMutex
	slots []*Instance
	free  []uint32
}{slots: make([]*Instance, 1)}

// RegisterInstance assigns inst a handle and stores it in the arena.
func RegisterInstance(inst *Instance) Handle {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	var idx uint32
	if n := len(arena.free); n > 0 {
		idx = arena.free[n-1]
		arena.free = arena.free[:n-1]
		arena.slots[idx] = inst
	} else {
		idx = uint32(len(arena.slots))
		arena.slots = append(arena.slots, inst)
	}
	inst.Handle = Handle(idx)
	return Handle(idx)
}

// ResolveHandle returns the instance behind h, or false when the
// handle was never assigned or has been released.
func ResolveHandle(h Handle) (*Instance, bool) {
	arena.mu.RLock()
	defer arena.mu.RUnlock()
	if h == NilHandle || int(h) >= len(arena.slots) {
		return nil, false
	}
	inst := arena.slots[h]
	return inst, inst != nil
}

// ReleaseHandle frees h's slot for reuse. Releasing an invalid handle
// is a no-op.
func ReleaseHandle(h Handle) {
	arena.mu.Lock()
	defer arena.mu.Unlock()
	if h == NilHandle || int(h) >= len(arena.slots) || arena.slots[h] == nil {
		return
	}
	arena.slots[h] = nil
	arena.free = append(arena.free, uint32(h))
}
