// Package runtime is the embedder facade. It wires the compiling
// engine, the linker, and a host function registry behind one value:
//
//	rt := runtime.New(runtime.Options{})
//	rt.RegisterFunc("env", "now", func() int64 { return time.Now().Unix() })
//	art, err := rt.Compile(ctx, wasmBytes)
//	inst, err := rt.Instantiate(ctx, art)
//	res, err := inst.Call(ctx, "main", 0)
//
// Host functions are ordinary Go functions; signatures are derived by
// reflection and checked against the module's declared imports when
// the instance links.
package runtime
