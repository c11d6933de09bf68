// Package wasm decodes, validates, and encodes core WebAssembly
// modules. The decoded Module is the in-memory representation the
// compiler and linker consume; function bodies stay as raw bytes and
// are lowered later by the compiler.
package wasm

import (
	"fmt"
	"strings"
)

// Module is the decoded form of a core WebAssembly module.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per locally-defined function
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []Code
	Data     []Data

	// DataCount is the value of the data count section when present.
	DataCount *uint32

	CustomSections []CustomSection
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures match exactly.
func (t FuncType) Equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders the signature in a stable form, e.g. "(i32,i32)->(i64)".
// Used as a canonical key when deduplicating signatures across modules.
func (t FuncType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")->(")
	for i, r := range t.Results {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Limits bounds a memory or table. Max is nil when unbounded.
type Limits struct {
	Min    uint32
	Max    *uint32
	Shared bool
}

// TableType describes a table: its element type and limits.
type TableType struct {
	ElemType ValType
	Limits   Limits
}

// MemoryType describes a linear memory's limits in pages.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a locally-defined global with its initializer.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// ConstExpr is a parsed constant expression: a single opcode and its
// raw immediate bytes. The linker evaluates it at instantiation.
type ConstExpr struct {
	Opcode byte
	Data   []byte
}

// Import names an external dependency of the module.
type Import struct {
	Module string
	Name   string
	Kind   ExternKind

	// Exactly one of the following is meaningful, per Kind.
	TypeIdx uint32
	Table   TableType
	Memory  MemoryType
	Global  GlobalType
}

// Export makes a module-internal entity visible by name.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// Element is an element segment initializing a table with function
// references.
type Element struct {
	TableIdx uint32
	Offset   ConstExpr
	Funcs    []uint32
	Passive  bool
}

// Code is a function body: its local declarations and raw expression
// bytes, consumed by the compiler.
type Code struct {
	Locals []LocalDecl
	Body   []byte
}

// LocalDecl is a run-length encoded local variable group.
type LocalDecl struct {
	Count uint32
	Type  ValType
}

// NumLocals returns the total local count across declarations.
func (c Code) NumLocals() uint32 {
	var n uint32
	for _, d := range c.Locals {
		n += d.Count
	}
	return n
}

// Data is a data segment initializing linear memory.
type Data struct {
	MemIdx  uint32
	Offset  ConstExpr
	Bytes   []byte
	Passive bool
}

// CustomSection preserves an unrecognized custom section verbatim.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the count of function imports. Local
// function indices start after these.
func (m *Module) NumImportedFuncs() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == ExternFunc {
			n++
		}
	}
	return n
}

// NumImportedTables returns the count of table imports.
func (m *Module) NumImportedTables() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == ExternTable {
			n++
		}
	}
	return n
}

// NumImportedMemories returns the count of memory imports.
func (m *Module) NumImportedMemories() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == ExternMemory {
			n++
		}
	}
	return n
}

// NumImportedGlobals returns the count of global imports.
func (m *Module) NumImportedGlobals() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == ExternGlobal {
			n++
		}
	}
	return n
}

// NumFuncs returns the total function count, imported plus local.
func (m *Module) NumFuncs() uint32 {
	return m.NumImportedFuncs() + uint32(len(m.Funcs))
}

// FuncTypeIdx returns the type index of the function at the given
// module-wide index, counting imports first.
func (m *Module) FuncTypeIdx(fnIdx uint32) (uint32, error) {
	var seen uint32
	for _, imp := range m.Imports {
		if imp.Kind != ExternFunc {
			continue
		}
		if seen == fnIdx {
			return imp.TypeIdx, nil
		}
		seen++
	}
	local := fnIdx - seen
	if local >= uint32(len(m.Funcs)) {
		return 0, fmt.Errorf("wasm: function index %d out of range", fnIdx)
	}
	return m.Funcs[local], nil
}

// GetFuncType resolves the signature of the function at the given
// module-wide index.
func (m *Module) GetFuncType(fnIdx uint32) (FuncType, error) {
	typeIdx, err := m.FuncTypeIdx(fnIdx)
	if err != nil {
		return FuncType{}, err
	}
	if typeIdx >= uint32(len(m.Types)) {
		return FuncType{}, fmt.Errorf("wasm: type index %d out of range", typeIdx)
	}
	return m.Types[typeIdx], nil
}

// ExportedFunc looks up an exported function by name and returns its
// module-wide function index.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Kind == ExternFunc && exp.Name == name {
			return exp.Index, true
		}
	}
	return 0, false
}

// AddType appends t if no identical signature exists and returns the
// index of the matching or new entry.
func (m *Module) AddType(t FuncType) uint32 {
	for i, existing := range m.Types {
		if existing.Equal(t) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, t)
	return uint32(len(m.Types) - 1)
}
