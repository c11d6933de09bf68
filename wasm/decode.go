package wasm

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/kilnwasm/kiln/wasm/internal/binary"
)

// ParseModule decodes a core WebAssembly module from its binary form.
// Function bodies are kept as raw bytes; only structure is decoded.
// Call Validate on the result to check cross-section consistency.
func ParseModule(buf []byte) (*Module, error) {
	r := binary.NewReader(buf)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, parseErr(r, "preamble", fmt.Errorf("truncated preamble"))
	}
	if magic != Magic {
		return nil, parseErr(r, "preamble", fmt.Errorf("bad magic number 0x%08x", magic))
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, parseErr(r, "preamble", fmt.Errorf("truncated preamble"))
	}
	if version != Version {
		return nil, parseErr(r, "preamble", fmt.Errorf("unsupported version %d", version))
	}

	m := &Module{}
	lastSection := byte(0)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, parseErr(r, "section", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, parseErr(r, sectionName(id), err)
		}
		n, err := safecast.Conv[int](size)
		if err != nil {
			return nil, parseErr(r, sectionName(id), fmt.Errorf("section size %d overflows", size))
		}
		body, err := r.ReadBytes(n)
		if err != nil {
			return nil, parseErr(r, sectionName(id), fmt.Errorf("section body truncated"))
		}

		if id != SectionCustom {
			if sectionOrder(id) <= sectionOrder(lastSection) {
				return nil, parseErr(r, sectionName(id), fmt.Errorf("section out of order"))
			}
			lastSection = id
		}

		sr := binary.NewReader(body)
		switch id {
		case SectionCustom:
			err = m.parseCustomSection(sr)
		case SectionType:
			err = m.parseTypeSection(sr)
		case SectionImport:
			err = m.parseImportSection(sr)
		case SectionFunction:
			err = m.parseFunctionSection(sr)
		case SectionTable:
			err = m.parseTableSection(sr)
		case SectionMemory:
			err = m.parseMemorySection(sr)
		case SectionGlobal:
			err = m.parseGlobalSection(sr)
		case SectionExport:
			err = m.parseExportSection(sr)
		case SectionStart:
			err = m.parseStartSection(sr)
		case SectionElement:
			err = m.parseElementSection(sr)
		case SectionCode:
			err = m.parseCodeSection(sr)
		case SectionData:
			err = m.parseDataSection(sr)
		case SectionDataCount:
			err = m.parseDataCountSection(sr)
		default:
			err = fmt.Errorf("unknown section id %d", id)
		}
		if err != nil {
			return nil, parseErr(sr, sectionName(id), err)
		}
		if sr.Len() != 0 {
			return nil, parseErr(sr, sectionName(id), fmt.Errorf("%d trailing bytes in section", sr.Len()))
		}
	}
	return m, nil
}

// ParseModuleValidate decodes and then validates a module.
func ParseModuleValidate(buf []byte) (*Module, error) {
	m, err := ParseModule(buf)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseErr(r *binary.Reader, section string, err error) error {
	return &binary.ParseError{Section: section, Position: r.Pos(), Err: err}
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "data count"
	default:
		return fmt.Sprintf("id=%d", id)
	}
}

// sectionOrder maps a section id to its mandatory position. The data
// count section sits between element and code.
func sectionOrder(id byte) int {
	switch id {
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return int(id)
	}
}

func (m *Module) parseCustomSection(r *binary.Reader) error {
	name, err := r.ReadName()
	if err != nil {
		return fmt.Errorf("custom section name: %w", err)
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: r.ReadRemaining(),
	})
	return nil
}

func (m *Module) parseTypeSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		prefix, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prefix != funcTypePrefix {
			return fmt.Errorf("type %d: unsupported type form 0x%02x", i, prefix)
		}
		ft, err := readFuncType(r)
		if err != nil {
			return fmt.Errorf("type %d: %w", i, err)
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func readFuncType(r *binary.Reader) (FuncType, error) {
	params, err := readValTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	results, err := readValTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]ValType, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		v := ValType(b)
		if !v.IsNum() && !v.IsRef() {
			return nil, fmt.Errorf("invalid value type 0x%02x", b)
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Module) parseImportSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		mod, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("import %d module: %w", i, err)
		}
		name, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("import %d name: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Kind: ExternKind(kind)}
		switch imp.Kind {
		case ExternFunc:
			imp.TypeIdx, err = r.ReadU32()
		case ExternTable:
			imp.Table, err = readTableType(r)
		case ExternMemory:
			imp.Memory, err = readMemoryType(r)
		case ExternGlobal:
			imp.Global, err = readGlobalType(r)
		default:
			return fmt.Errorf("import %d %q.%q: invalid kind 0x%02x", i, mod, name, kind)
		}
		if err != nil {
			return fmt.Errorf("import %d %q.%q: %w", i, mod, name, err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	var lim Limits
	switch flags {
	case 0x00, 0x01, 0x03:
		lim.Shared = flags == 0x03
	default:
		return Limits{}, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}
	lim.Min, err = r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	if flags != 0x00 {
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		lim.Max = &max
	} else if lim.Shared {
		return Limits{}, fmt.Errorf("shared limits require a maximum")
	}
	return lim, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	et := ValType(b)
	if !et.IsRef() {
		return TableType{}, fmt.Errorf("invalid table element type 0x%02x", b)
	}
	lim, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	if lim.Shared {
		return TableType{}, fmt.Errorf("tables cannot be shared")
	}
	return TableType{ElemType: et, Limits: lim}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	lim, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: lim}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	v := ValType(b)
	if !v.IsNum() && !v.IsRef() {
		return GlobalType{}, fmt.Errorf("invalid global value type 0x%02x", b)
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid mutability flag 0x%02x", mut)
	}
	return GlobalType{ValType: v, Mutable: mut == 1}, nil
}

// readConstExpr parses a single-instruction constant expression
// terminated by end. The immediate bytes are kept raw; the linker
// evaluates them against the instance's imported globals.
func readConstExpr(r *binary.Reader) (ConstExpr, error) {
	op, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, err
	}
	start := r.Pos()
	switch op {
	case OpI32Const:
		_, err = r.ReadS32()
	case OpI64Const:
		_, err = r.ReadS64()
	case OpF32Const:
		err = r.Skip(4)
	case OpF64Const:
		err = r.Skip(8)
	case OpGlobalGet, OpRefFunc:
		_, err = r.ReadU32()
	case OpRefNull:
		_, err = r.ReadByte()
	default:
		return ConstExpr{}, fmt.Errorf("opcode 0x%02x not constant", op)
	}
	if err != nil {
		return ConstExpr{}, err
	}
	data := r.Range(start, r.Pos())
	end, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, err
	}
	if end != OpEnd {
		return ConstExpr{}, fmt.Errorf("constant expression not terminated by end")
	}
	return ConstExpr{Opcode: op, Data: data}, nil
}

func (m *Module) parseFunctionSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func (m *Module) parseTableSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, 0, count)
	for i := uint32(0); i < count; i++ {
		tt, err := readTableType(r)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func (m *Module) parseMemorySection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Memories = make([]MemoryType, 0, count)
	for i := uint32(0); i < count; i++ {
		mt, err := readMemoryType(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		m.Memories = append(m.Memories, mt)
	}
	return nil
}

func (m *Module) parseGlobalSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Globals = make([]Global, 0, count)
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		init, err := readConstExpr(r)
		if err != nil {
			return fmt.Errorf("global %d init: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func (m *Module) parseExportSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Exports = make([]Export, 0, count)
	seen := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("export %d name: %w", i, err)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate export name %q", name)
		}
		seen[name] = struct{}{}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if ExternKind(kind) > ExternGlobal {
			return fmt.Errorf("export %q: invalid kind 0x%02x", name, kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: ExternKind(kind), Index: idx})
	}
	return nil
}

func (m *Module) parseStartSection(r *binary.Reader) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func (m *Module) parseElementSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Elements = make([]Element, 0, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		elem := Element{}
		switch flags {
		case 0:
			elem.Offset, err = readConstExpr(r)
			if err != nil {
				return fmt.Errorf("element %d offset: %w", i, err)
			}
		case 1:
			elem.Passive = true
			if err := expectElemKind(r); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		case 2:
			elem.TableIdx, err = r.ReadU32()
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			elem.Offset, err = readConstExpr(r)
			if err != nil {
				return fmt.Errorf("element %d offset: %w", i, err)
			}
			if err := expectElemKind(r); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		case 3:
			elem.Passive = true
			if err := expectElemKind(r); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		default:
			return fmt.Errorf("element %d: unsupported segment flags %d", i, flags)
		}
		n, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		elem.Funcs = make([]uint32, 0, n)
		for j := uint32(0); j < n; j++ {
			fn, err := r.ReadU32()
			if err != nil {
				return fmt.Errorf("element %d func %d: %w", i, j, err)
			}
			elem.Funcs = append(elem.Funcs, fn)
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func expectElemKind(r *binary.Reader) error {
	kind, err := r.ReadByte()
	if err != nil {
		return err
	}
	if kind != 0x00 {
		return fmt.Errorf("unsupported element kind 0x%02x", kind)
	}
	return nil
}

func (m *Module) parseCodeSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Code = make([]Code, 0, count)
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("code %d: %w", i, err)
		}
		n, err := safecast.Conv[int](size)
		if err != nil {
			return fmt.Errorf("code %d: body size %d overflows", i, size)
		}
		body, err := r.ReadBytes(n)
		if err != nil {
			return fmt.Errorf("code %d body truncated", i)
		}
		code, err := parseFuncBody(body)
		if err != nil {
			return fmt.Errorf("code %d: %w", i, err)
		}
		m.Code = append(m.Code, code)
	}
	return nil
}

func parseFuncBody(body []byte) (Code, error) {
	r := binary.NewReader(body)
	groups, err := r.ReadU32()
	if err != nil {
		return Code{}, err
	}
	var code Code
	var total uint64
	code.Locals = make([]LocalDecl, 0, groups)
	for i := uint32(0); i < groups; i++ {
		count, err := r.ReadU32()
		if err != nil {
			return Code{}, err
		}
		b, err := r.ReadByte()
		if err != nil {
			return Code{}, err
		}
		v := ValType(b)
		if !v.IsNum() && !v.IsRef() {
			return Code{}, fmt.Errorf("invalid local type 0x%02x", b)
		}
		total += uint64(count)
		if total > 1<<20 {
			return Code{}, fmt.Errorf("too many locals (%d)", total)
		}
		code.Locals = append(code.Locals, LocalDecl{Count: count, Type: v})
	}
	code.Body = r.ReadRemaining()
	if len(code.Body) == 0 || code.Body[len(code.Body)-1] != OpEnd {
		return Code{}, fmt.Errorf("function body not terminated by end")
	}
	return code, nil
}

func (m *Module) parseDataSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if m.DataCount != nil && *m.DataCount != count {
		return fmt.Errorf("data count section says %d segments, data section has %d", *m.DataCount, count)
	}
	m.Data = make([]Data, 0, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		seg := Data{}
		switch flags {
		case 0:
			seg.Offset, err = readConstExpr(r)
		case 1:
			seg.Passive = true
		case 2:
			seg.MemIdx, err = r.ReadU32()
			if err == nil {
				seg.Offset, err = readConstExpr(r)
			}
		default:
			return fmt.Errorf("data %d: unsupported segment flags %d", i, flags)
		}
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		n, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		nb, err := safecast.Conv[int](n)
		if err != nil {
			return fmt.Errorf("data %d: segment size %d overflows", i, n)
		}
		seg.Bytes, err = r.ReadBytes(nb)
		if err != nil {
			return fmt.Errorf("data %d bytes truncated", i)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func (m *Module) parseDataCountSection(r *binary.Reader) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}
