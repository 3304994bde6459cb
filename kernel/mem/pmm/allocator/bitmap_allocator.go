package allocator

import (
	"gopheros/kernel"
	"gopheros/kernel/hal/multiboot"
	"gopheros/kernel/kfmt/early"
	"gopheros/kernel/mem"
	"gopheros/kernel/mem/pmm"
)

var (
	// FrameAllocator is the BitmapAllocator instance that serves as the
	// primary allocator once the kernel has finished bootstrapping.
	FrameAllocator BitmapAllocator

	errBitmapAllocOutOfMemory = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory", Kind: kernel.KindExhausted}
)

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations in a single flat bitmap, one bit per frame, spanning the
// highest physical address reported by the bootloader. Allocation scans
// from a rolling cursor for the first clear bit; freeing a frame simply
// clears its bit. Frame 0 and any out-of-range frame are never touched by
// Free -- both are treated as no-ops.
type BitmapAllocator struct {
	bitmap    []uint64
	numFrames uint32
	cursor    uint32
}

// init sizes the bitmap from the highest frame reported by the bootloader,
// marks every frame outside an available region as used, and reserves the
// kernel image, the frames the boot allocator has handed out and the first
// 1MiB of physical memory.
func (alloc *BitmapAllocator) init() *kernel.Error {
	var highestFrame pmm.Frame
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		endFrame := pmm.Frame((region.PhysAddress + region.Length) >> mem.PageShift)
		if endFrame > highestFrame {
			highestFrame = endFrame
		}
		return true
	})

	alloc.numFrames = uint32(highestFrame)
	wordCount := (alloc.numFrames + 63) / 64
	alloc.bitmap = make([]uint64, wordCount)

	// Anything not explicitly reported as available is conservatively
	// marked used; VisitMemRegions below then frees the available holes.
	for i := range alloc.bitmap {
		alloc.bitmap[i] = ^uint64(0)
	}
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}
		start := pmm.Frame((region.PhysAddress + uint64(mem.PageSize) - 1) >> mem.PageShift)
		end := pmm.Frame((region.PhysAddress + region.Length) >> mem.PageShift)
		for f := start; f < end; f++ {
			alloc.clearBit(uint32(f))
		}
		return true
	})

	alloc.reserveKernelFrames()
	alloc.reserveEarlyAllocatorFrames()
	alloc.markUsed(0) // frame 0 is never handed out
	for f := uint32(0); f < uint32(mem.Mb>>mem.PageShift) && f < alloc.numFrames; f++ {
		alloc.markUsed(f)
	}
	alloc.printStats()
	return nil
}

func (alloc *BitmapAllocator) reserveKernelFrames() {
	for f := earlyAllocator.kernelStartFrame; f <= earlyAllocator.kernelEndFrame; f++ {
		alloc.markUsed(uint32(f))
	}
}

// reserveEarlyAllocatorFrames replays the boot allocator's allocation
// history so the frames it already handed out are flagged as used here too.
func (alloc *BitmapAllocator) reserveEarlyAllocatorFrames() {
	allocCount := earlyAllocator.allocCount
	earlyAllocator.allocCount, earlyAllocator.lastAllocFrame = 0, 0
	for i := uint64(0); i < allocCount; i++ {
		frame, _ := earlyAllocator.AllocFrame()
		alloc.markUsed(uint32(frame))
	}
}

func (alloc *BitmapAllocator) wordAndMask(frame uint32) (int, uint64) {
	return int(frame / 64), uint64(1) << (frame % 64)
}

func (alloc *BitmapAllocator) testBit(frame uint32) bool {
	word, mask := alloc.wordAndMask(frame)
	return alloc.bitmap[word]&mask != 0
}

func (alloc *BitmapAllocator) markUsed(frame uint32) {
	word, mask := alloc.wordAndMask(frame)
	alloc.bitmap[word] |= mask
}

func (alloc *BitmapAllocator) clearBit(frame uint32) {
	word, mask := alloc.wordAndMask(frame)
	alloc.bitmap[word] &^= mask
}

// AllocFrame scans from the allocator's rolling cursor for the first clear
// bit, marks it used and advances the cursor past it.
func (alloc *BitmapAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	for i := uint32(0); i < alloc.numFrames; i++ {
		candidate := (alloc.cursor + i) % alloc.numFrames
		if candidate == 0 {
			continue
		}
		if !alloc.testBit(candidate) {
			alloc.markUsed(candidate)
			alloc.cursor = candidate + 1
			return pmm.Frame(candidate), nil
		}
	}

	return pmm.InvalidFrame, errBitmapAllocOutOfMemory
}

// FreeFrame clears the bitmap entry for the given frame. Freeing frame 0 or
// a frame outside the tracked range is a no-op.
func (alloc *BitmapAllocator) FreeFrame(frame pmm.Frame) {
	if frame == 0 || uint32(frame) >= alloc.numFrames {
		return
	}
	alloc.clearBit(uint32(frame))
}

func (alloc *BitmapAllocator) printStats() {
	used := uint32(0)
	for f := uint32(1); f < alloc.numFrames; f++ {
		if alloc.testBit(f) {
			used++
		}
	}
	early.Printf("[bitmap_alloc] page stats: free: %d/%d (%d reserved)\n", alloc.numFrames-used, alloc.numFrames, used)
}
