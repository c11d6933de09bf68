package vm

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

func limitsWithMax(min, max uint32) wasm.Limits {
	return wasm.Limits{Min: min, Max: &max}
}

func TestMemoryGrowWithinMax(t *testing.T) {
	m, err := NewMemory(wasm.MemoryType{Limits: limitsWithMax(1, 2)})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if m.ByteLen() != 65536 {
		t.Fatalf("initial size = %d", m.ByteLen())
	}
	prev, err := m.Grow(1)
	if err != nil {
		t.Fatalf("Grow: %v", err)
	}
	if prev != 1 {
		t.Fatalf("prev = %d, want 1", prev)
	}
	if m.ByteLen() != 131072 {
		t.Fatalf("size after grow = %d, want 131072", m.ByteLen())
	}
}

func TestMemoryGrowPastMax(t *testing.T) {
	m, err := NewMemory(wasm.MemoryType{Limits: limitsWithMax(1, 2)})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if _, err := m.Grow(1); err != nil {
		t.Fatalf("first grow: %v", err)
	}
	_, err = m.Grow(1)
	if err == nil {
		t.Fatal("expected grow failure")
	}
	target := &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindCouldNotGrow}
	if !stderrors.Is(err, target) {
		t.Fatalf("wrong error shape: %v", err)
	}
	if m.Pages() != 2 {
		t.Fatalf("failed grow changed size to %d pages", m.Pages())
	}
}

func TestMemoryGrowZeroDelta(t *testing.T) {
	m, _ := NewMemory(wasm.MemoryType{Limits: limitsWithMax(2, 2)})
	prev, err := m.Grow(0)
	if err != nil || prev != 2 {
		t.Fatalf("Grow(0) = %d, %v", prev, err)
	}
}

func TestMemoryGrowPreservesContents(t *testing.T) {
	m, _ := NewMemory(wasm.MemoryType{Limits: limitsWithMax(1, 4)})
	if !m.Write(100, []byte{0xde, 0xad}) {
		t.Fatal("Write failed")
	}
	if _, err := m.Grow(2); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	got, ok := m.Read(100, 2)
	if !ok || got[0] != 0xde || got[1] != 0xad {
		t.Fatalf("contents lost: %v %v", got, ok)
	}
}

func TestMemoryUnboundedMaxDefaultsToCeiling(t *testing.T) {
	m, err := NewMemory(wasm.MemoryType{Limits: wasm.Limits{Min: 1}})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if m.Max() != wasm.MemoryMaxPages {
		t.Fatalf("max = %d", m.Max())
	}
}

func TestMemoryReadWriteBounds(t *testing.T) {
	m, _ := NewMemory(wasm.MemoryType{Limits: limitsWithMax(1, 1)})
	if _, ok := m.Read(65534, 4); ok {
		t.Fatal("read past end succeeded")
	}
	if m.Write(65535, []byte{1, 2}) {
		t.Fatal("write past end succeeded")
	}
	if !m.WriteUint32Le(0, 0x01020304) {
		t.Fatal("WriteUint32Le failed")
	}
	v, ok := m.ReadUint32Le(0)
	if !ok || v != 0x01020304 {
		t.Fatalf("ReadUint32Le = %x, %v", v, ok)
	}
	if _, ok := m.ReadUint64Le(65529); ok {
		t.Fatal("u64 read past end succeeded")
	}
}

func TestSharedMemoryConcurrentGrow(t *testing.T) {
	lim := limitsWithMax(1, 64)
	lim.Shared = true
	m, err := NewMemory(wasm.MemoryType{Limits: lim})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	const growers = 8
	var wg sync.WaitGroup
	for i := 0; i < growers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				if _, err := m.Grow(1); err != nil {
					t.Errorf("Grow: %v", err)
					return
				}
				// Size reads must see a consistent page count
				// while growers run.
				if p := m.Pages(); p < 1 || p > 33 {
					t.Errorf("pages = %d", p)
					return
				}
			}
		}()
	}
	wg.Wait()
	if m.Pages() != 33 {
		t.Fatalf("pages = %d, want 33", m.Pages())
	}
}
