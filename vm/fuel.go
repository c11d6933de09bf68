package vm

import "sync/atomic"

// FuelTank tracks a metering budget for one instance. Compiled code
// instrumented by the metering middleware consumes from it; an empty
// tank traps execution.
type FuelTank struct {
	remaining atomic.Int64
}

// Set replaces the remaining budget.
func (t *FuelTank) Set(n uint64) {
	t.remaining.Store(int64(n))
}

// Remaining returns the budget left.
func (t *FuelTank) Remaining() uint64 {
	n := t.remaining.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Consume deducts n, reporting false when the budget is exhausted.
func (t *FuelTank) Consume(n uint64) bool {
	return t.remaining.Add(-int64(n)) >= 0
}

// EnableFuel attaches a tank with the given budget. Passing the same
// instance into further calls shares the budget across them.
func (i *Instance) EnableFuel(n uint64) *FuelTank {
	t := &FuelTank{}
	t.Set(n)
	i.fuel.Store(t)
	return t
}

// Fuel returns the attached tank, or nil when execution is unmetered.
func (i *Instance) Fuel() *FuelTank {
	return i.fuel.Load()
}
