// Package kheap implements the kernel's dynamic memory allocator: a
// first-fit, singly linked free list carved out of a single virtually
// contiguous arena that is mapped in full at Init time.
package kheap

import (
	"gopheros/kernel"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
	"gopheros/kernel/mem/vmm"
	"unsafe"
)

const (
	// blockMagic tags every live block header so Free can detect
	// corruption (a wrong magic means something wrote past the end of an
	// allocation).
	blockMagic = uint32(0xb10c0000)

	// DefaultCapacity is the size of the heap arena mapped by Init.
	DefaultCapacity = 1 * mem.Mb

	// splitThreshold is the minimum remainder (after carving off the
	// header for a new block) required to split a block instead of
	// handing the whole thing over.
	splitThreshold = 16

	// align is the allocation alignment; all returned pointers are a
	// multiple of this value.
	align = 4
)

// blockHeader precedes every block, live or free, in the arena.
type blockHeader struct {
	magic uint32
	size  uintptr
	free  bool
	next  *blockHeader
}

var (
	head     *blockHeader
	arenaEnd uintptr

	// frameAllocatorFn is injected the same way vmm.SetFrameAllocator
	// works, so tests can stub frame allocation without touching pmm.
	frameAllocatorFn func() (pmm.Frame, *kernel.Error)

	errOutOfMemory = &kernel.Error{Module: "kheap", Message: "heap arena exhausted", Kind: kernel.KindExhausted}
	errBadPointer  = &kernel.Error{Module: "kheap", Message: "pointer does not belong to this heap", Kind: kernel.KindInvalidArgument}
)

// SetFrameAllocator registers the frame allocator Init uses to back the
// heap arena.
func SetFrameAllocator(fn func() (pmm.Frame, *kernel.Error)) {
	frameAllocatorFn = fn
}

// Init reserves and maps a capacity-sized virtual region and installs it as
// a single free block spanning the whole arena.
func Init(capacity mem.Size) *kernel.Error {
	capacity = (capacity + mem.PageSize - 1) &^ (mem.PageSize - 1)

	base, err := vmm.EarlyReserveRegion(capacity)
	if err != nil {
		return err
	}

	pageCount := uintptr(capacity) >> mem.PageShift
	for i := uintptr(0); i < pageCount; i++ {
		frame, err := frameAllocatorFn()
		if err != nil {
			return err
		}
		if err := vmm.Map(vmm.PageFromAddress(base+i<<mem.PageShift), frame, vmm.FlagPresent|vmm.FlagRW); err != nil {
			return err
		}
	}

	setupArena(base, capacity)
	return nil
}

// setupArena installs the single free block spanning [base, base+capacity)
// as the heap's initial state. Split out of Init so tests can exercise the
// allocator against a plain Go-backed buffer without going through vmm.
func setupArena(base uintptr, capacity mem.Size) {
	head = (*blockHeader)(unsafe.Pointer(base))
	*head = blockHeader{magic: blockMagic, size: uintptr(capacity) - headerSize(), free: true}
	arenaEnd = base + uintptr(capacity)
}

func headerSize() uintptr {
	return unsafe.Sizeof(blockHeader{})
}

func alignUp(n uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// Malloc returns a pointer to a newly allocated block of at least size
// bytes, or nil if the arena has no block large enough.
func Malloc(size uintptr) unsafe.Pointer {
	size = alignUp(size)

	for b := head; b != nil; b = b.next {
		if !b.free || b.size < size {
			continue
		}

		remaining := b.size - size
		if remaining > headerSize()+splitThreshold {
			split := (*blockHeader)(unsafe.Pointer(blockData(b) + size))
			*split = blockHeader{magic: blockMagic, size: remaining - headerSize(), free: true, next: b.next}
			b.next = split
			b.size = size
		}

		b.free = false
		return unsafe.Pointer(blockData(b))
	}

	return nil
}

// MallocAligned returns a pointer aligned to alignment bytes, over-allocating
// to make room for the rounding. The base allocation is not independently
// freeable: callers of MallocAligned must not pass the returned pointer to
// Free.
func MallocAligned(size, alignment uintptr) unsafe.Pointer {
	raw := Malloc(size + alignment - 1)
	if raw == nil {
		return nil
	}
	addr := uintptr(raw)
	return unsafe.Pointer((addr + alignment - 1) &^ (alignment - 1))
}

// Free releases a pointer previously returned by Malloc. A corrupted header
// (bad magic) is ignored rather than propagated, per the heap's best-effort
// survival policy: the rest of the heap stays usable even though this block
// leaks.
func Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	b := blockFromData(uintptr(ptr))
	if b.magic != blockMagic {
		return
	}

	b.free = true
	coalesce(b)
}

// coalesce folds b's immediate successor into b if the successor is also
// free and directly adjacent in memory.
func coalesce(b *blockHeader) {
	if b.next == nil || !b.next.free {
		return
	}
	if blockData(b)+b.size != uintptr(unsafe.Pointer(b.next)) {
		return
	}

	b.size += headerSize() + b.next.size
	b.next = b.next.next
}

// blockData returns the address of the data region following a header.
func blockData(b *blockHeader) uintptr {
	return uintptr(unsafe.Pointer(b)) + headerSize()
}

// blockFromData returns the header preceding a data pointer.
func blockFromData(data uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(data - headerSize()))
}
