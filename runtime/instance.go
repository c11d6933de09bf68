package runtime

import (
	"context"

	"github.com/kilnwasm/kiln/vm"
)

// Instance is a running module.
type Instance struct {
	inst *vm.Instance
}

// Call invokes the exported function name with raw 64-bit arguments.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, err := i.inst.ExportedFunction(name)
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, args...)
}

// Function returns the exported function name.
func (i *Instance) Function(name string) (*vm.Function, error) {
	return i.inst.ExportedFunction(name)
}

// Memory returns the exported memory name.
func (i *Instance) Memory(name string) (*vm.Memory, error) {
	return i.inst.ExportedMemory(name)
}

// Global returns the exported global name.
func (i *Instance) Global(name string) (*vm.Global, error) {
	return i.inst.ExportedGlobal(name)
}

// Exports lists the instance's export names by kind.
func (i *Instance) Exports() map[string]string {
	out := make(map[string]string, len(i.inst.Exports))
	for name, ext := range i.inst.Exports {
		out[name] = ext.Kind.String()
	}
	return out
}

// EnableFuel attaches a fuel tank; metered code consumes from it and
// traps on exhaustion.
func (i *Instance) EnableFuel(n uint64) *vm.FuelTank {
	return i.inst.EnableFuel(n)
}

// Raw exposes the underlying VM instance.
func (i *Instance) Raw() *vm.Instance { return i.inst }

// Close releases the instance.
func (i *Instance) Close() { i.inst.Close() }
