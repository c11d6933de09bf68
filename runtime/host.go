package runtime

import (
	"context"
	"math"
	"reflect"
	"sync"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/linker"
	"github.com/kilnwasm/kiln/vm"
	"github.com/kilnwasm/kiln/wasm"
)

// HostRegistry holds host functions keyed by namespace and name. The
// registry implements linker.ImportResolver, so registered functions
// directly satisfy module imports. Safe for concurrent use.
type HostRegistry struct {
	mu    sync.RWMutex
	funcs map[string]map[string]*vm.Function
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{funcs: make(map[string]map[string]*vm.Function)}
}

// RegisterFunc binds an ordinary Go function as a host import under
// namespace.name. The wasm signature is derived from fn's type:
// int32/uint32 map to i32, int64/uint64 to i64, float32 to f32,
// float64 to f64. fn may take a leading context.Context and may
// return a trailing error; both stay outside the wasm signature.
func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	hf, err := bindHostFunc(fn)
	if err != nil {
		return errors.Registration(namespace, name, err)
	}
	hf.Name = namespace + "." + name

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*vm.Function)
	}
	r.funcs[namespace][name] = hf
	return nil
}

// Resolve implements linker.ImportResolver.
func (r *HostRegistry) Resolve(module, name string) (vm.Extern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[module][name]
	if !ok {
		return vm.Extern{}, false
	}
	return vm.FuncExtern(fn), true
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// bindHostFunc derives the wasm signature of fn and wraps it as a
// callable function reference.
func bindHostFunc(fn any) (*vm.Function, error) {
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, errors.InvalidInput(errors.PhaseHost, "handler must be a function")
	}
	if rt.IsVariadic() {
		return nil, errors.InvalidInput(errors.PhaseHost, "handler cannot be variadic")
	}

	var ft wasm.FuncType
	takesCtx := rt.NumIn() > 0 && rt.In(0) == ctxType
	start := 0
	if takesCtx {
		start = 1
	}
	for i := start; i < rt.NumIn(); i++ {
		vt, ok := valTypeOf(rt.In(i))
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseHost,
				"unsupported parameter type "+rt.In(i).String())
		}
		ft.Params = append(ft.Params, vt)
	}
	returnsErr := rt.NumOut() > 0 && rt.Out(rt.NumOut()-1) == errType
	nout := rt.NumOut()
	if returnsErr {
		nout--
	}
	for i := 0; i < nout; i++ {
		vt, ok := valTypeOf(rt.Out(i))
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseHost,
				"unsupported result type "+rt.Out(i).String())
		}
		ft.Results = append(ft.Results, vt)
	}

	nparams := len(ft.Params)
	call := func(ctx context.Context, args []uint64) ([]uint64, error) {
		in := make([]reflect.Value, 0, rt.NumIn())
		if takesCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i := 0; i < nparams; i++ {
			in = append(in, fromRaw(rt.In(start+i), args[i]))
		}
		out := rv.Call(in)
		if returnsErr {
			if ev := out[len(out)-1]; !ev.IsNil() {
				return nil, ev.Interface().(error)
			}
			out = out[:len(out)-1]
		}
		results := make([]uint64, len(out))
		for i, v := range out {
			results[i] = toRaw(v)
		}
		return results, nil
	}
	return vm.NewHostFunction(ft, call), nil
}

func valTypeOf(t reflect.Type) (wasm.ValType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValI32, true
	case reflect.Int64, reflect.Uint64:
		return wasm.ValI64, true
	case reflect.Float32:
		return wasm.ValF32, true
	case reflect.Float64:
		return wasm.ValF64, true
	}
	return 0, false
}

func fromRaw(t reflect.Type, raw uint64) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(int32(raw)))
	case reflect.Uint32:
		v.SetUint(uint64(uint32(raw)))
	case reflect.Int64:
		v.SetInt(int64(raw))
	case reflect.Uint64:
		v.SetUint(raw)
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(uint32(raw))))
	case reflect.Float64:
		v.SetFloat(math.Float64frombits(raw))
	}
	return v
}

func toRaw(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return uint64(uint32(int32(v.Int())))
	case reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Float32:
		return uint64(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		return math.Float64bits(v.Float())
	}
	return 0
}

// compile-time checks
var _ linker.ImportResolver = (*HostRegistry)(nil)
