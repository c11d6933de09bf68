package wasm

import "fmt"

// Validate checks cross-section consistency: every index refers to an
// existing entity, limits are well-formed, and the start function has
// the required empty signature. Body-level validation is the
// compiler's job; this pass makes the module safe to walk.
func (m *Module) Validate() error {
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateFunctionBodies(); err != nil {
		return err
	}
	if err := m.validateTables(); err != nil {
		return err
	}
	if err := m.validateMemories(); err != nil {
		return err
	}
	if err := m.validateGlobals(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	if err := m.validateElements(); err != nil {
		return err
	}
	return m.validateData()
}

func (m *Module) validateTypeIndices() error {
	n := uint32(len(m.Types))
	for i, imp := range m.Imports {
		if imp.Kind == ExternFunc && imp.TypeIdx >= n {
			return fmt.Errorf("wasm: import %d %q.%q: type index %d out of range (%d types)",
				i, imp.Module, imp.Name, imp.TypeIdx, n)
		}
	}
	for i, typeIdx := range m.Funcs {
		if typeIdx >= n {
			return fmt.Errorf("wasm: function %d: type index %d out of range (%d types)", i, typeIdx, n)
		}
	}
	return nil
}

func (m *Module) validateFunctionBodies() error {
	if len(m.Funcs) != len(m.Code) {
		return fmt.Errorf("wasm: function section declares %d functions, code section has %d bodies",
			len(m.Funcs), len(m.Code))
	}
	return nil
}

func (m *Module) validateTables() error {
	for i, t := range m.Tables {
		if err := validateLimits(t.Limits, 0); err != nil {
			return fmt.Errorf("wasm: table %d: %w", i, err)
		}
	}
	for i, imp := range m.Imports {
		if imp.Kind != ExternTable {
			continue
		}
		if err := validateLimits(imp.Table.Limits, 0); err != nil {
			return fmt.Errorf("wasm: import %d %q.%q: %w", i, imp.Module, imp.Name, err)
		}
	}
	return nil
}

func (m *Module) validateMemories() error {
	total := m.NumImportedMemories() + uint32(len(m.Memories))
	if total > 1 {
		return fmt.Errorf("wasm: multiple memories not supported (%d declared)", total)
	}
	for i, mem := range m.Memories {
		if err := validateLimits(mem.Limits, MemoryMaxPages); err != nil {
			return fmt.Errorf("wasm: memory %d: %w", i, err)
		}
	}
	for i, imp := range m.Imports {
		if imp.Kind != ExternMemory {
			continue
		}
		if err := validateLimits(imp.Memory.Limits, MemoryMaxPages); err != nil {
			return fmt.Errorf("wasm: import %d %q.%q: %w", i, imp.Module, imp.Name, err)
		}
	}
	return nil
}

func validateLimits(lim Limits, ceiling uint32) error {
	if ceiling != 0 {
		if lim.Min > ceiling {
			return fmt.Errorf("limits minimum %d exceeds ceiling %d", lim.Min, ceiling)
		}
		if lim.Max != nil && *lim.Max > ceiling {
			return fmt.Errorf("limits maximum %d exceeds ceiling %d", *lim.Max, ceiling)
		}
	}
	if lim.Max != nil && lim.Min > *lim.Max {
		return fmt.Errorf("limits minimum %d exceeds maximum %d", lim.Min, *lim.Max)
	}
	return nil
}

func (m *Module) validateGlobals() error {
	numImported := m.NumImportedGlobals()
	for i, g := range m.Globals {
		if g.Init.Opcode == OpGlobalGet {
			idx, err := decodeU32(g.Init.Data)
			if err != nil {
				return fmt.Errorf("wasm: global %d init: %w", i, err)
			}
			// Initializers may only read imported globals.
			if idx >= numImported {
				return fmt.Errorf("wasm: global %d init references non-imported global %d", i, idx)
			}
		}
		if g.Init.Opcode == OpRefFunc {
			idx, err := decodeU32(g.Init.Data)
			if err != nil {
				return fmt.Errorf("wasm: global %d init: %w", i, err)
			}
			if idx >= m.NumFuncs() {
				return fmt.Errorf("wasm: global %d init references function %d out of range", i, idx)
			}
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	numFuncs := m.NumFuncs()
	numTables := m.NumImportedTables() + uint32(len(m.Tables))
	numMems := m.NumImportedMemories() + uint32(len(m.Memories))
	numGlobals := m.NumImportedGlobals() + uint32(len(m.Globals))
	for _, exp := range m.Exports {
		var limit uint32
		switch exp.Kind {
		case ExternFunc:
			limit = numFuncs
		case ExternTable:
			limit = numTables
		case ExternMemory:
			limit = numMems
		case ExternGlobal:
			limit = numGlobals
		}
		if exp.Index >= limit {
			return fmt.Errorf("wasm: export %q: %s index %d out of range (%d defined)",
				exp.Name, exp.Kind, exp.Index, limit)
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft, err := m.GetFuncType(*m.Start)
	if err != nil {
		return fmt.Errorf("wasm: start function: %w", err)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("wasm: start function must have empty signature, has %s", ft)
	}
	return nil
}

func (m *Module) validateElements() error {
	numFuncs := m.NumFuncs()
	numTables := m.NumImportedTables() + uint32(len(m.Tables))
	for i, elem := range m.Elements {
		if !elem.Passive && elem.TableIdx >= numTables {
			return fmt.Errorf("wasm: element %d: table index %d out of range (%d tables)",
				i, elem.TableIdx, numTables)
		}
		for _, fn := range elem.Funcs {
			if fn >= numFuncs {
				return fmt.Errorf("wasm: element %d: function index %d out of range (%d functions)",
					i, fn, numFuncs)
			}
		}
	}
	return nil
}

func (m *Module) validateData() error {
	numMems := m.NumImportedMemories() + uint32(len(m.Memories))
	for i, seg := range m.Data {
		if !seg.Passive && seg.MemIdx >= numMems {
			return fmt.Errorf("wasm: data %d: memory index %d out of range (%d memories)",
				i, seg.MemIdx, numMems)
		}
	}
	if m.DataCount != nil && *m.DataCount != uint32(len(m.Data)) {
		return fmt.Errorf("wasm: data count %d does not match %d data segments",
			*m.DataCount, len(m.Data))
	}
	return nil
}
