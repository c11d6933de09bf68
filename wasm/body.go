package wasm

import (
	"github.com/kilnwasm/kiln/wasm/internal/binary"
)

// BodyReader walks the raw bytes of a function body. It exposes the
// low-level codecs the compiler needs without leaking the internal
// binary package.
type BodyReader struct {
	r *binary.Reader
}

// NewBodyReader returns a reader over a function body's expression
// bytes.
func NewBodyReader(body []byte) *BodyReader {
	return &BodyReader{r: binary.NewReader(body)}
}

// Pos returns the current byte offset within the body.
func (b *BodyReader) Pos() int { return b.r.Pos() }

// Len returns the number of bytes remaining.
func (b *BodyReader) Len() int { return b.r.Len() }

// Byte reads a single byte.
func (b *BodyReader) Byte() (byte, error) { return b.r.ReadByte() }

// U32 reads an unsigned LEB128 u32.
func (b *BodyReader) U32() (uint32, error) { return b.r.ReadU32() }

// S32 reads a signed LEB128 s32.
func (b *BodyReader) S32() (int32, error) { return b.r.ReadS32() }

// S64 reads a signed LEB128 s64.
func (b *BodyReader) S64() (int64, error) { return b.r.ReadS64() }

// F32Bits reads a little-endian f32 as its bit pattern.
func (b *BodyReader) F32Bits() (uint32, error) { return b.r.ReadU32LE() }

// F64Bits reads a little-endian f64 as its bit pattern.
func (b *BodyReader) F64Bits() (uint64, error) { return b.r.ReadU64LE() }
