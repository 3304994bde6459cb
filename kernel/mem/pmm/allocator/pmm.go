package allocator

import (
	"gopheros/kernel"
	"gopheros/kernel/mem/pmm"
)

// Init bootstraps the boot memory allocator, reserves the frames occupied
// by the kernel image, and switches over to the bitmap allocator once the
// Go allocator (and therefore make()) is available. Callers must invoke
// goruntime.Bootstrap between SetFrameAllocator(AllocFrame) (boot stage) and
// this call so that BitmapAllocator.init can allocate its backing slice.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	earlyAllocator.init(kernelStart, kernelEnd)
	earlyAllocator.printMemoryMap()

	return FrameAllocator.init()
}

// AllocFrame reserves and returns the next available physical frame using
// the bitmap allocator.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return FrameAllocator.AllocFrame()
}

// FreeFrame returns frame to the pool of available physical frames.
func FreeFrame(frame pmm.Frame) {
	FrameAllocator.FreeFrame(frame)
}

// EarlyAllocFrame allocates a frame using the boot allocator. It is used
// before the bitmap allocator has been initialized (e.g. while setting up
// the kernel's own page tables).
func EarlyAllocFrame() (pmm.Frame, *kernel.Error) {
	return earlyAllocator.AllocFrame()
}
