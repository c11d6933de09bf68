package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kilnwasm/kiln/engine"
	"github.com/kilnwasm/kiln/runtime"
	"github.com/kilnwasm/kiln/wasm"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to wasm module or .kilnc artifact")
		funcName    = flag.String("func", "", "Function to call")
		argsStr     = flag.String("args", "", "Comma-separated arguments for -func")
		outFile     = flag.String("o", "", "Compile and serialize the artifact to this path, then exit")
		configFile  = flag.String("config", "", "Path to TOML config file")
		list        = flag.Bool("list", false, "List exported functions and exit")
		validate    = flag.Bool("validate", false, "Validate the module and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name -args a,b,...]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -validate")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -o <file.kilnc>")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.kilnc> -func name  (precompiled)")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	opts, fuel, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(*wasmFile, opts, fuel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *funcName, *argsStr, *outFile, opts, fuel, *list, *validate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, funcName, argsStr, outFile string, opts runtime.Options, fuel uint64, listOnly, validateOnly bool) error {
	ctx := context.Background()
	rt := runtime.New(opts)

	if validateOnly {
		data, err := os.ReadFile(wasmFile)
		if err != nil {
			return err
		}
		if err := rt.Validate(data); err != nil {
			return err
		}
		fmt.Printf("%s: ok\n", wasmFile)
		return nil
	}

	art, err := loadModule(ctx, rt, wasmFile)
	if err != nil {
		return err
	}

	if outFile != "" {
		data, err := art.Serialize()
		if err != nil {
			return err
		}
		if err := os.WriteFile(outFile, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", outFile, len(data))
		return nil
	}

	m := art.Module()
	fmt.Printf("Module: %s\n", wasmFile)
	fmt.Printf("Functions: %d\n", len(m.Funcs))
	fmt.Printf("Imports: %d\n", len(m.Imports))
	fmt.Printf("Exports: %d\n", len(m.Exports))

	funcs := exportedFuncs(m)
	fmt.Printf("\nExported functions:\n")
	for _, f := range funcs {
		fmt.Printf("  %s\n", f.signature())
	}

	if listOnly {
		return nil
	}
	if funcName == "" {
		return nil
	}

	inst, err := rt.Instantiate(ctx, art)
	if err != nil {
		return err
	}
	defer inst.Close()
	if fuel > 0 {
		inst.EnableFuel(fuel)
	}

	fn, err := inst.Function(funcName)
	if err != nil {
		return err
	}
	args, err := parseArgs(argsStr, fn.Type.Params)
	if err != nil {
		return err
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s => %s\n", funcName, formatResults(results, fn.Type.Results))
	return nil
}

// loadModule compiles a wasm binary or loads a serialized artifact,
// by file extension.
func loadModule(ctx context.Context, rt *runtime.Runtime, path string) (*engine.Artifact, error) {
	if strings.HasSuffix(path, ".kilnc") {
		return rt.LoadArtifactFile(path)
	}
	return rt.CompileFile(ctx, path)
}

type exportedFunc struct {
	name string
	typ  wasm.FuncType
}

func (f exportedFunc) signature() string {
	params := make([]string, len(f.typ.Params))
	for i, p := range f.typ.Params {
		params[i] = p.String()
	}
	sig := f.name + "(" + strings.Join(params, ", ") + ")"
	if len(f.typ.Results) > 0 {
		results := make([]string, len(f.typ.Results))
		for i, r := range f.typ.Results {
			results[i] = r.String()
		}
		sig += " -> " + strings.Join(results, ", ")
	}
	return sig
}

func exportedFuncs(m *wasm.Module) []exportedFunc {
	var funcs []exportedFunc
	for _, ex := range m.Exports {
		if ex.Kind != wasm.ExternFunc {
			continue
		}
		ft, err := m.GetFuncType(ex.Index)
		if err != nil {
			continue
		}
		funcs = append(funcs, exportedFunc{name: ex.Name, typ: ft})
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })
	return funcs
}

// parseArgs converts the comma-separated argument list to raw values
// per the function's parameter types.
func parseArgs(argsStr string, params []wasm.ValType) ([]uint64, error) {
	var fields []string
	if argsStr != "" {
		fields = strings.Split(argsStr, ",")
	}
	if len(fields) != len(params) {
		return nil, fmt.Errorf("function takes %d arguments, got %d", len(params), len(fields))
	}
	args := make([]uint64, len(fields))
	for i, field := range fields {
		raw, err := parseArg(strings.TrimSpace(field), params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = raw
	}
	return args, nil
}

func parseArg(s string, t wasm.ValType) (uint64, error) {
	switch t {
	case wasm.ValI32:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, err
		}
		return uint64(uint32(int32(v))), nil
	case wasm.ValI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, err
		}
		return uint64(math.Float32bits(float32(v))), nil
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return math.Float64bits(v), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", t)
}

func formatResults(raw []uint64, types []wasm.ValType) string {
	if len(raw) == 0 {
		return "()"
	}
	out := make([]string, len(raw))
	for i, r := range raw {
		var t wasm.ValType = wasm.ValI64
		if i < len(types) {
			t = types[i]
		}
		switch t {
		case wasm.ValI32:
			out[i] = strconv.FormatInt(int64(int32(r)), 10)
		case wasm.ValI64:
			out[i] = strconv.FormatInt(int64(r), 10)
		case wasm.ValF32:
			out[i] = strconv.FormatFloat(float64(math.Float32frombits(uint32(r))), 'g', -1, 32)
		case wasm.ValF64:
			out[i] = strconv.FormatFloat(math.Float64frombits(r), 'g', -1, 64)
		default:
			out[i] = strconv.FormatUint(r, 10)
		}
	}
	return strings.Join(out, ", ")
}
