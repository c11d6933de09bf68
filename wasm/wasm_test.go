package wasm

import (
	"strings"
	"testing"
)

// buildAddModule returns a module exporting "add" (i32,i32)->(i32)
// implemented with local.get/local.get/i32.add.
func buildAddModule() *Module {
	m := &Module{}
	m.AddType(FuncType{Params: []ValType{ValI32, ValI32}, Results: []ValType{ValI32}})
	m.Funcs = []uint32{0}
	m.Code = []Code{{
		Body: []byte{OpLocalGet, 0x00, OpLocalGet, 0x01, OpI32Add, OpEnd},
	}}
	m.Exports = []Export{{Name: "add", Kind: ExternFunc, Index: 0}}
	return m
}

func TestParseModuleRoundTrip(t *testing.T) {
	src := buildAddModule()
	max := uint32(4)
	src.Memories = []MemoryType{{Limits: Limits{Min: 1, Max: &max}}}
	src.Globals = []Global{{
		Type: GlobalType{ValType: ValI32, Mutable: true},
		Init: ConstExpr{Opcode: OpI32Const, Data: []byte{0x2a}},
	}}

	m, err := ParseModuleValidate(src.Encode())
	if err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}
	if len(m.Types) != 1 || len(m.Funcs) != 1 || len(m.Code) != 1 {
		t.Fatalf("unexpected counts: types=%d funcs=%d code=%d", len(m.Types), len(m.Funcs), len(m.Code))
	}
	if got := m.Types[0].String(); got != "(i32,i32)->(i32)" {
		t.Fatalf("type = %q", got)
	}
	idx, ok := m.ExportedFunc("add")
	if !ok || idx != 0 {
		t.Fatalf("ExportedFunc: idx=%d ok=%v", idx, ok)
	}
	if len(m.Memories) != 1 || m.Memories[0].Limits.Min != 1 {
		t.Fatalf("memory not preserved: %+v", m.Memories)
	}
	if m.Memories[0].Limits.Max == nil || *m.Memories[0].Limits.Max != 4 {
		t.Fatalf("memory max not preserved")
	}
	v, err := m.Globals[0].Init.Eval(nil)
	if err != nil || v != 42 {
		t.Fatalf("global init = %d, %v", v, err)
	}
}

func TestParseModuleBadMagic(t *testing.T) {
	_, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00})
	if err == nil || !strings.Contains(err.Error(), "magic") {
		t.Fatalf("expected magic error, got %v", err)
	}
}

func TestParseModuleBadVersion(t *testing.T) {
	_, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00})
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestParseModuleSectionOutOfOrder(t *testing.T) {
	// Function section (id 3) before type section (id 1).
	buf := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00, // function section
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section
	}
	_, err := ParseModule(buf)
	if err == nil || !strings.Contains(err.Error(), "out of order") {
		t.Fatalf("expected ordering error, got %v", err)
	}
}

func TestParseModuleTrailingSectionBytes(t *testing.T) {
	buf := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x00, 0xff, // extra byte in type section
	}
	if _, err := ParseModule(buf); err == nil {
		t.Fatal("expected trailing bytes error")
	}
}

func TestParseModuleImports(t *testing.T) {
	src := &Module{}
	src.AddType(FuncType{Params: []ValType{ValI32}})
	src.Imports = []Import{
		{Module: "env", Name: "log", Kind: ExternFunc, TypeIdx: 0},
		{Module: "env", Name: "mem", Kind: ExternMemory, Memory: MemoryType{Limits: Limits{Min: 1}}},
		{Module: "env", Name: "g", Kind: ExternGlobal, Global: GlobalType{ValType: ValI64, Mutable: false}},
	}
	m, err := ParseModuleValidate(src.Encode())
	if err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}
	if m.NumImportedFuncs() != 1 || m.NumImportedMemories() != 1 || m.NumImportedGlobals() != 1 {
		t.Fatalf("import counts wrong: %+v", m.Imports)
	}
	if m.Imports[2].Global.ValType != ValI64 {
		t.Fatalf("global import type = %v", m.Imports[2].Global.ValType)
	}
}

func TestValidateLimitsMinOverMax(t *testing.T) {
	src := buildAddModule()
	max := uint32(1)
	src.Memories = []MemoryType{{Limits: Limits{Min: 2, Max: &max}}}
	if err := src.Validate(); err == nil {
		t.Fatal("expected limits error")
	}
}

func TestValidateStartSignature(t *testing.T) {
	src := buildAddModule()
	start := uint32(0)
	src.Start = &start
	err := src.Validate()
	if err == nil || !strings.Contains(err.Error(), "start") {
		t.Fatalf("expected start signature error, got %v", err)
	}
}

func TestValidateExportOutOfRange(t *testing.T) {
	src := buildAddModule()
	src.Exports = append(src.Exports, Export{Name: "ghost", Kind: ExternFunc, Index: 9})
	if err := src.Validate(); err == nil {
		t.Fatal("expected export range error")
	}
}

func TestValidateFuncCodeMismatch(t *testing.T) {
	src := buildAddModule()
	src.Funcs = append(src.Funcs, 0)
	if err := src.Validate(); err == nil {
		t.Fatal("expected func/code count error")
	}
}

func TestDuplicateExportName(t *testing.T) {
	src := buildAddModule()
	src.Exports = append(src.Exports, Export{Name: "add", Kind: ExternFunc, Index: 0})
	_, err := ParseModule(src.Encode())
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate export error, got %v", err)
	}
}

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI64}}
	b := FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI64}}
	c := FuncType{Params: []ValType{ValI64}, Results: []ValType{ValI64}}
	if !a.Equal(b) {
		t.Fatal("identical signatures not equal")
	}
	if a.Equal(c) {
		t.Fatal("different signatures reported equal")
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &Module{}
	t0 := m.AddType(FuncType{Params: []ValType{ValI32}})
	t1 := m.AddType(FuncType{Results: []ValType{ValF64}})
	t2 := m.AddType(FuncType{Params: []ValType{ValI32}})
	if t0 != t2 {
		t.Fatalf("expected dedup: t0=%d t2=%d", t0, t2)
	}
	if t1 == t0 || len(m.Types) != 2 {
		t.Fatalf("types = %d", len(m.Types))
	}
}

func TestGetFuncTypeCountsImportsFirst(t *testing.T) {
	m := &Module{}
	imported := m.AddType(FuncType{Params: []ValType{ValF32}})
	local := m.AddType(FuncType{Results: []ValType{ValI32}})
	m.Imports = []Import{{Module: "env", Name: "f", Kind: ExternFunc, TypeIdx: imported}}
	m.Funcs = []uint32{local}

	ft, err := m.GetFuncType(0)
	if err != nil || len(ft.Params) != 1 || ft.Params[0] != ValF32 {
		t.Fatalf("imported func type = %v, %v", ft, err)
	}
	ft, err = m.GetFuncType(1)
	if err != nil || len(ft.Results) != 1 || ft.Results[0] != ValI32 {
		t.Fatalf("local func type = %v, %v", ft, err)
	}
	if _, err := m.GetFuncType(2); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestConstExprEvalGlobalGet(t *testing.T) {
	e := ConstExpr{Opcode: OpGlobalGet, Data: []byte{0x01}}
	v, err := e.Eval(func(idx uint32) (uint64, error) {
		if idx != 1 {
			t.Fatalf("idx = %d", idx)
		}
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("eval = %d, %v", v, err)
	}
	if _, err := e.Eval(nil); err == nil {
		t.Fatal("expected error without resolver")
	}
}

func TestCustomSectionPreserved(t *testing.T) {
	src := buildAddModule()
	src.CustomSections = []CustomSection{{Name: "producers", Data: []byte{1, 2, 3}}}
	m, err := ParseModule(src.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.CustomSections) != 1 || m.CustomSections[0].Name != "producers" {
		t.Fatalf("custom sections = %+v", m.CustomSections)
	}
}
