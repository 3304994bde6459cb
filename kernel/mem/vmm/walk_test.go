package vmm

import (
	"testing"
	"unsafe"
)

func TestPtePtrFn(t *testing.T) {
	// Dummy test to keep coverage happy
	if exp, got := unsafe.Pointer(uintptr(123)), ptePtrFn(uintptr(123)); exp != got {
		t.Fatalf("expected ptePtrFn to return %v; got %v", exp, got)
	}
}

func TestWalk(t *testing.T) {
	defer func(origPtePtr func(uintptr) unsafe.Pointer) {
		ptePtrFn = origPtePtr
	}(ptePtrFn)

	const (
		dirIndex   = 5
		tableIndex = 7
		pageOffset = 0x100
	)
	targetAddr := uintptr((dirIndex << 22) | (tableIndex << 12) | pageOffset)

	expEntryAddr := []uintptr{
		pdtVirtualAddr + dirIndex*4,
		uintptr(0xffc00000) + dirIndex*4096 + tableIndex*4,
	}

	var gotEntryAddr []uintptr
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		gotEntryAddr = append(gotEntryAddr, entryAddr)
		return unsafe.Pointer(uintptr(0xf00))
	}

	var gotLevels []uint8
	walk(targetAddr, func(level uint8, _ *pageTableEntry) bool {
		gotLevels = append(gotLevels, level)
		return true
	})

	if len(gotLevels) != pageLevels {
		t.Fatalf("expected walkFn to be called %d times; got %d", pageLevels, len(gotLevels))
	}

	for i, exp := range expEntryAddr {
		if gotEntryAddr[i] != exp {
			t.Errorf("[level %d] expected entry address 0x%x; got 0x%x", i, exp, gotEntryAddr[i])
		}
	}
}

func TestWalkAbortsOnFalse(t *testing.T) {
	defer func(origPtePtr func(uintptr) unsafe.Pointer) {
		ptePtrFn = origPtePtr
	}(ptePtrFn)

	ptePtrFn = func(_ uintptr) unsafe.Pointer { return unsafe.Pointer(uintptr(0xf00)) }

	calls := 0
	walk(0, func(_ uint8, _ *pageTableEntry) bool {
		calls++
		return false
	})

	if calls != 1 {
		t.Errorf("expected walk to stop after the first call; got %d calls", calls)
	}
}
