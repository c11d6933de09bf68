// Package vm holds the runtime representations a live instance is
// made of: linear memories, tables, globals, functions, and the
// context arena that execution uses to reach them through stable
// handles instead of raw pointers.
package vm

import (
	"encoding/binary"
	"sync"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Memory is a linear memory instance. Sizes are tracked in pages of
// 65536 bytes; growth is monotonic and never reallocates below the
// declared minimum.
type Memory struct {
	mu     sync.RWMutex
	data   []byte
	max    uint32 // pages
	shared bool
}

// NewMemory allocates a memory at its declared minimum size. The
// maximum defaults to the 4 GiB addressing ceiling when the type
// leaves it open.
func NewMemory(t wasm.MemoryType) (*Memory, error) {
	max := uint32(wasm.MemoryMaxPages)
	if t.Limits.Max != nil {
		max = *t.Limits.Max
	}
	if t.Limits.Min > max {
		return nil, errors.InvalidInput(errors.PhaseInstantiate,
			"memory minimum exceeds maximum")
	}
	return &Memory{
		data:   make([]byte, uint64(t.Limits.Min)*wasm.MemoryPageSize),
		max:    max,
		shared: t.Limits.Shared,
	}, nil
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 {
	if m.shared {
		m.mu.RLock()
		defer m.mu.RUnlock()
	}
	return uint32(uint64(len(m.data)) / wasm.MemoryPageSize)
}

// ByteLen returns the current size in bytes.
func (m *Memory) ByteLen() uint64 {
	if m.shared {
		m.mu.RLock()
		defer m.mu.RUnlock()
	}
	return uint64(len(m.data))
}

// Max returns the page ceiling growth is checked against.
func (m *Memory) Max() uint32 { return m.max }

// Shared reports whether the memory was declared shared.
func (m *Memory) Shared() bool { return m.shared }

// Data returns the backing bytes. The slice is invalidated by Grow;
// callers inside an execution frame re-fetch it after any grow.
func (m *Memory) Data() []byte {
	if m.shared {
		m.mu.RLock()
		defer m.mu.RUnlock()
	}
	return m.data
}

// Grow extends the memory by delta pages and returns the previous
// size in pages. Growth past the maximum fails with no change; a
// failed grow is observable only through the error.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	if m.shared {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	current := uint32(uint64(len(m.data)) / wasm.MemoryPageSize)
	if delta == 0 {
		return current, nil
	}
	next := uint64(current) + uint64(delta)
	if next > uint64(m.max) {
		return 0, errors.CouldNotGrow("memory", uint64(current), uint64(delta))
	}
	grown := make([]byte, next*wasm.MemoryPageSize)
	copy(grown, m.data)
	m.data = grown
	return current, nil
}

// Read copies out of memory, reporting false when the range exceeds
// the current size.
func (m *Memory) Read(offset, count uint32) ([]byte, bool) {
	data := m.Data()
	end := uint64(offset) + uint64(count)
	if end > uint64(len(data)) {
		return nil, false
	}
	out := make([]byte, count)
	copy(out, data[offset:end])
	return out, true
}

// Write copies into memory, reporting false when the range exceeds
// the current size.
func (m *Memory) Write(offset uint32, b []byte) bool {
	data := m.Data()
	end := uint64(offset) + uint64(len(b))
	if end > uint64(len(data)) {
		return false
	}
	copy(data[offset:end], b)
	return true
}

// ReadUint32Le reads a little-endian uint32 at offset.
func (m *Memory) ReadUint32Le(offset uint32) (uint32, bool) {
	data := m.Data()
	if uint64(offset)+4 > uint64(len(data)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[offset:]), true
}

// WriteUint32Le writes a little-endian uint32 at offset.
func (m *Memory) WriteUint32Le(offset uint32, v uint32) bool {
	data := m.Data()
	if uint64(offset)+4 > uint64(len(data)) {
		return false
	}
	binary.LittleEndian.PutUint32(data[offset:], v)
	return true
}

// ReadUint64Le reads a little-endian uint64 at offset.
func (m *Memory) ReadUint64Le(offset uint32) (uint64, bool) {
	data := m.Data()
	if uint64(offset)+8 > uint64(len(data)) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data[offset:]), true
}

// WriteUint64Le writes a little-endian uint64 at offset.
func (m *Memory) WriteUint64Le(offset uint32, v uint64) bool {
	data := m.Data()
	if uint64(offset)+8 > uint64(len(data)) {
		return false
	}
	binary.LittleEndian.PutUint64(data[offset:], v)
	return true
}
