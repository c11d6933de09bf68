// Package kiln is a WebAssembly compile-and-run engine.
//
// It compiles binary modules into an internal bytecode artifact, links the
// artifact against host-supplied imports, and runs the result inside a
// bounds-checked sandbox that turns every violation into a typed trap.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	kiln/            Root package with engine identity and ABI version constants
//	├── runtime/     High-level API for loading and running modules
//	├── engine/      Engine variants, Artifact lifecycle, (de)serialization,
//	│                the execution loop, and the compilation cache
//	├── compiler/    Module IR to bytecode lowering, middleware, CPU features
//	├── linker/      Import resolution and all-or-nothing instantiation
//	├── vm/          Memory, Table, Global, Instance and VMContext state
//	├── trap/        Trap codes and the sandbox execution boundary
//	├── wasm/        Binary module decode/validate/encode primitives
//	└── errors/      Structured error types for debugging
//
// # Quick Start
//
// Compile and run a module:
//
//	rt := runtime.New(runtime.Options{})
//
//	art, err := rt.Compile(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer art.Release()
//
//	inst, err := rt.Instantiate(ctx, art)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close()
//
//	results, err := inst.Call(ctx, "add", 2, 3)
//
// # Thread Safety
//
// Engines and Artifacts are safe for concurrent use; an Artifact can be
// instantiated from many goroutines at once. A single Instance must only be
// entered by one goroutine at a time unless its memory was declared shared.
//
// # Memory Model
//
// Linear memory is sized in 65536-byte pages and can only grow, never shrink.
// Out-of-bounds access from guest code never reaches host memory: every access
// is bounds-checked and an overrun raises an out-of-bounds trap, terminating the
// current call while leaving other instances untouched.
package kiln
