package kheap

import (
	"gopheros/kernel/mem"
	"testing"
	"unsafe"
)

// withTestArena installs a plain Go-backed arena of the given capacity and
// restores the package's global state afterwards.
func withTestArena(t *testing.T, capacity mem.Size) {
	t.Helper()
	buf := make([]byte, capacity)
	setupArena(uintptr(unsafe.Pointer(&buf[0])), capacity)
	t.Cleanup(func() {
		head = nil
		arenaEnd = 0
	})
}

func TestMallocFreeRoundTrip(t *testing.T) {
	withTestArena(t, 4096)

	p := Malloc(64)
	if p == nil {
		t.Fatal("expected a non-nil allocation")
	}
	Free(p)

	p2 := Malloc(64)
	if p2 == nil {
		t.Fatal("expected the freed block to be reusable")
	}
}

func TestMallocRespectsCapacity(t *testing.T) {
	withTestArena(t, 256)

	// One allocation at (arena minus header) should succeed...
	if p := Malloc(256 - uintptr(headerSize())); p == nil {
		t.Fatal("expected an allocation that fits the whole arena to succeed")
	}

	// ...but nothing more can fit afterwards.
	if p := Malloc(1); p != nil {
		t.Fatal("expected the arena to be exhausted")
	}
}

func TestDoubleFreeDoesNotCorruptFreeList(t *testing.T) {
	withTestArena(t, 4096)

	p := Malloc(32)
	Free(p)
	Free(p) // magic guard should have been cleared on first free path? No: double free re-frees; verify no corruption.

	// The heap should still be usable after a double free.
	if q := Malloc(32); q == nil {
		t.Fatal("expected the heap to remain usable after a double free")
	}
}

func TestFreeIgnoresCorruptMagic(t *testing.T) {
	withTestArena(t, 4096)

	p := Malloc(32)
	b := blockFromData(uintptr(p))
	b.magic = 0xdeadbeef

	Free(p) // should be a no-op; must not panic or corrupt the list

	if q := Malloc(32); q == nil {
		t.Fatal("expected the heap to remain usable after freeing a corrupted block")
	}
}

// TestCoalesceOnFree implements scenario S6: three contiguous allocations
// a, b, c; freeing b then a must allow a subsequent allocation sized
// size(a)+size(b)+header to succeed without growing the heap.
func TestCoalesceOnFree(t *testing.T) {
	withTestArena(t, 4096)

	a := Malloc(64)
	b := Malloc(64)
	c := Malloc(64)
	_ = c

	Free(b)
	Free(a)

	merged := Malloc(64 + 64 + uintptr(headerSize()))
	if merged == nil {
		t.Fatal("expected coalesced a+b to satisfy a combined allocation")
	}
}

func TestMallocAlignedRoundsUp(t *testing.T) {
	withTestArena(t, 4096)

	p := MallocAligned(37, 16)
	if p == nil {
		t.Fatal("expected a non-nil allocation")
	}
	if uintptr(p)%16 != 0 {
		t.Fatalf("expected a 16-byte aligned pointer; got %x", uintptr(p))
	}
}

func TestFreeNilIsNoOp(t *testing.T) {
	withTestArena(t, 4096)
	Free(nil)
}
