package vm

import (
	"sync"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Table is a table instance holding function references. A nil entry
// is an uninitialized slot; calling through one traps.
type Table struct {
	mu       sync.RWMutex
	elems    []*Function
	max      uint32
	elemType wasm.ValType
}

// NewTable allocates a table at its declared minimum size.
func NewTable(t wasm.TableType) (*Table, error) {
	max := uint32(1<<32 - 1)
	if t.Limits.Max != nil {
		max = *t.Limits.Max
	}
	if t.Limits.Min > max {
		return nil, errors.InvalidInput(errors.PhaseInstantiate,
			"table minimum exceeds maximum")
	}
	return &Table{
		elems:    make([]*Function, t.Limits.Min),
		max:      max,
		elemType: t.ElemType,
	}, nil
}

// Size returns the current element count.
func (t *Table) Size() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint32(len(t.elems))
}

// ElemType returns the table's element type.
func (t *Table) ElemType() wasm.ValType { return t.elemType }

// Max returns the element ceiling growth is checked against.
func (t *Table) Max() uint32 { return t.max }

// Get returns the function at idx, which may be nil for an
// uninitialized slot.
func (t *Table) Get(idx uint32) (*Function, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx >= uint32(len(t.elems)) {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, "table",
			uint64(idx), uint64(len(t.elems)))
	}
	return t.elems[idx], nil
}

// Set stores a function reference at idx. A nil fn clears the slot.
func (t *Table) Set(idx uint32, fn *Function) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx >= uint32(len(t.elems)) {
		return errors.OutOfBounds(errors.PhaseRuntime, "table",
			uint64(idx), uint64(len(t.elems)))
	}
	t.elems[idx] = fn
	return nil
}

// Grow extends the table by delta slots initialized to init and
// returns the previous size. Growth past the maximum fails with no
// change.
func (t *Table) Grow(delta uint32, init *Function) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := uint32(len(t.elems))
	if delta == 0 {
		return current, nil
	}
	next := uint64(current) + uint64(delta)
	if next > uint64(t.max) {
		return 0, errors.CouldNotGrow("table", uint64(current), uint64(delta))
	}
	grown := make([]*Function, next)
	copy(grown, t.elems)
	for i := current; uint64(i) < next; i++ {
		grown[i] = init
	}
	t.elems = grown
	return current, nil
}
