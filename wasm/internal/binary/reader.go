// Package binary provides low-level primitives for reading and writing
// the WebAssembly binary format: a position-tracking reader, a section
// writer, and LEB128 integer codecs.
package binary

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// MaxNameLength caps the byte length of names read from a module.
// Guards against corrupt length prefixes allocating huge buffers.
const MaxNameLength = 1 << 20

// ParseError records a failure while decoding a module, including the
// section being parsed and the byte offset at which decoding stopped.
type ParseError struct {
	Section  string
	Position int
	Err      error
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("wasm: parse %s section at offset %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("wasm: parse at offset %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader decodes WebAssembly binary primitives from a byte slice while
// tracking the current offset for error reporting.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader over buf. The Reader does not copy buf;
// byte slices returned by ReadBytes alias it.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current byte offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	return r.buf[r.pos], nil
}

// ReadBytes reads n bytes. The returned slice aliases the underlying
// buffer and must not be modified.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	if r.Len() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the reader by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Len() < n {
		return io.ErrUnexpectedEOF
	}
	r.pos += n
	return nil
}

// ReadU32 reads an unsigned 32-bit LEB128 integer.
func (r *Reader) ReadU32() (uint32, error) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 4 && b > 0x0f {
			return 0, fmt.Errorf("u32 overflow")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("u32 too long")
}

// ReadU64 reads an unsigned 64-bit LEB128 integer.
func (r *Reader) ReadU64() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 9 && b > 0x01 {
			return 0, fmt.Errorf("u64 overflow")
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("u64 too long")
}

// ReadS32 reads a signed 32-bit LEB128 integer.
func (r *Reader) ReadS32() (int32, error) {
	var result int32
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, fmt.Errorf("s32 too long")
}

// ReadS64 reads a signed 64-bit LEB128 integer.
func (r *Reader) ReadS64() (int64, error) {
	var result int64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, fmt.Errorf("s64 too long")
}

// ReadU32LE reads a little-endian fixed-width uint32.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64LE reads a little-endian fixed-width uint64.
func (r *Reader) ReadU64LE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadF32 reads a little-endian IEEE 754 single.
func (r *Reader) ReadF32() (float32, error) {
	bits, err := r.ReadU32LE()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadF64 reads a little-endian IEEE 754 double.
func (r *Reader) ReadF64() (float64, error) {
	bits, err := r.ReadU64LE()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// ReadName reads a length-prefixed UTF-8 name.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if n > MaxNameLength {
		return "", fmt.Errorf("name length %d exceeds limit", n)
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("name is not valid UTF-8")
	}
	return string(b), nil
}

// Range returns a copy of the bytes between two offsets previously
// observed via Pos.
func (r *Reader) Range(start, end int) []byte {
	out := make([]byte, end-start)
	copy(out, r.buf[start:end])
	return out
}

// ReadRemaining returns all unread bytes and advances to the end.
func (r *Reader) ReadRemaining() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}
