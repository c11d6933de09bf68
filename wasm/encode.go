package wasm

import (
	"github.com/kilnwasm/kiln/wasm/internal/binary"
)

// Encode serializes the module back to the WebAssembly binary format.
// Custom sections are emitted last. Encode(ParseModule(b)) produces a
// semantically identical module, though byte layout may differ where
// the original used non-canonical LEB128 encodings.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, t := range m.Types {
			sec.Byte(funcTypePrefix)
			writeValTypes(sec, t.Params)
			writeValTypes(sec, t.Results)
		}
		writeSection(w, SectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(byte(imp.Kind))
			switch imp.Kind {
			case ExternFunc:
				sec.WriteU32(imp.TypeIdx)
			case ExternTable:
				writeTableType(sec, imp.Table)
			case ExternMemory:
				writeLimits(sec, imp.Memory.Limits)
			case ExternGlobal:
				writeGlobalType(sec, imp.Global)
			}
		}
		writeSection(w, SectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec)
	}

	if len(m.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}
		writeSection(w, SectionTable, sec)
	}

	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(sec, mem.Limits)
		}
		writeSection(w, SectionMemory, sec)
	}

	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			writeConstExpr(sec, g.Init)
		}
		writeSection(w, SectionGlobal, sec)
	}

	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(byte(exp.Kind))
			sec.WriteU32(exp.Index)
		}
		writeSection(w, SectionExport, sec)
	}

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec)
	}

	if len(m.Elements) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Elements)))
		for _, elem := range m.Elements {
			switch {
			case elem.Passive:
				sec.WriteU32(1)
				sec.Byte(0x00)
			case elem.TableIdx != 0:
				sec.WriteU32(2)
				sec.WriteU32(elem.TableIdx)
				writeConstExpr(sec, elem.Offset)
				sec.Byte(0x00)
			default:
				sec.WriteU32(0)
				writeConstExpr(sec, elem.Offset)
			}
			sec.WriteU32(uint32(len(elem.Funcs)))
			for _, fn := range elem.Funcs {
				sec.WriteU32(fn)
			}
		}
		writeSection(w, SectionElement, sec)
	}

	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		writeSection(w, SectionDataCount, sec)
	}

	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, code := range m.Code {
			body := binary.NewWriter()
			body.WriteU32(uint32(len(code.Locals)))
			for _, d := range code.Locals {
				body.WriteU32(d.Count)
				body.Byte(byte(d.Type))
			}
			body.WriteBytes(code.Body)
			sec.WriteU32(uint32(body.Len()))
			sec.WriteBytes(body.Bytes())
		}
		writeSection(w, SectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			switch {
			case seg.Passive:
				sec.WriteU32(1)
			case seg.MemIdx != 0:
				sec.WriteU32(2)
				sec.WriteU32(seg.MemIdx)
				writeConstExpr(sec, seg.Offset)
			default:
				sec.WriteU32(0)
				writeConstExpr(sec, seg.Offset)
			}
			sec.WriteU32(uint32(len(seg.Bytes)))
			sec.WriteBytes(seg.Bytes)
		}
		writeSection(w, SectionData, sec)
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sec)
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, sec *binary.Writer) {
	w.Byte(id)
	w.WriteU32(uint32(sec.Len()))
	w.WriteBytes(sec.Bytes())
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, lim Limits) {
	switch {
	case lim.Shared:
		w.Byte(0x03)
	case lim.Max != nil:
		w.Byte(0x01)
	default:
		w.Byte(0x00)
	}
	w.WriteU32(lim.Min)
	if lim.Max != nil {
		w.WriteU32(*lim.Max)
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(0x01)
	} else {
		w.Byte(0x00)
	}
}

func writeConstExpr(w *binary.Writer, e ConstExpr) {
	w.Byte(e.Opcode)
	w.WriteBytes(e.Data)
	w.Byte(OpEnd)
}
