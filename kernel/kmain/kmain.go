// Package kmain wires together every other package in this module into the
// sequence that runs once at boot: physical/virtual memory bring-up, Go
// runtime bootstrap, hardware detection, filesystem mounts, the syscall
// dispatcher and the first user process. It mirrors the teacher kernel's
// kmain in structure (allocator -> vmm -> goruntime, then panic on return)
// and extends it with the filesystem, process and syscall bring-up this
// kernel additionally needs.
package kmain

import (
	"gopheros/device/timer"
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/fs/devfs"
	"gopheros/kernel/fs/initrd"
	"gopheros/kernel/fs/vfs"
	"gopheros/kernel/goruntime"
	"gopheros/kernel/hal"
	"gopheros/kernel/hal/multiboot"
	"gopheros/kernel/kfmt"
	"gopheros/kernel/mem/kheap"
	"gopheros/kernel/mem/pmm/allocator"
	"gopheros/kernel/mem/vmm"
	"gopheros/kernel/proc"
	"gopheros/kernel/syscall"
	"reflect"
	"unsafe"
)

var (
	errNoInitrd     = &kernel.Error{Module: "kmain", Message: "bootloader supplied no initrd module", Kind: kernel.KindNotFound}
	errNoInitBinary = &kernel.Error{Module: "kmain", Message: "initrd contains no /sbin/init", Kind: kernel.KindNotFound}
)

// initCandidates are tried in order when looking for the first user process'
// image inside the mounted initrd.
var initCandidates = []string{"/sbin/init", "/init"}

// Kmain is the only Go symbol visible from the rt0 assembly stub. It is not
// expected to return; if it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	var err *kernel.Error
	if err = allocator.Init(kernelStart, kernelEnd); err != nil {
		kfmt.Panic(err)
	}

	vmm.SetFrameAllocator(allocator.AllocFrame)
	kheap.SetFrameAllocator(allocator.AllocFrame)

	if err = vmm.Init(kernelStart, kernelEnd, 0); err != nil {
		kfmt.Panic(err)
	}
	if err = goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}
	if err = kheap.Init(kheap.DefaultCapacity); err != nil {
		kfmt.Panic(err)
	}

	hal.DetectHardware()

	mt := &vfs.MountTable{}
	if err = mountInitrd(mt); err != nil {
		kfmt.Panic(err)
	}
	if err = devfs.Mount(mt, "/dev"); err != nil {
		kfmt.Printf("[kmain] devfs mount failed: %s\n", err.Message)
	}

	syscall.Init(mt)

	// The timer owns IRQ0 (it must program the PIT divisor itself); the
	// scheduler is wired in as its tick hook rather than registering
	// against IRQ0 a second time via proc.RegisterTimerTick.
	timer.OnTick(proc.Schedule)

	initProc, err := proc.Create("init", 0)
	if err != nil {
		kfmt.Panic(err)
	}

	image, err := loadInitImage(mt)
	if err != nil {
		kfmt.Panic(err)
	}

	if err = proc.Exec(initProc, image, []string{initProc.Name}); err != nil {
		kfmt.Panic(err)
	}

	// From here on the CPU does nothing but wait for interrupts: the next
	// timer tick invokes proc.Schedule, which overwrites the trap frame
	// in place with initProc's saved state, and the common ISR epilogue
	// irets into it.
	for {
		cpu.Halt()
	}
}

// mountInitrd locates the first boot module supplied by the bootloader,
// overlays it as a byte slice and mounts it as the root filesystem.
func mountInitrd(mt *vfs.MountTable) *kernel.Error {
	var mod *multiboot.Module
	multiboot.VisitModules(func(m *multiboot.Module) bool {
		mod = m
		return false
	})
	if mod == nil {
		return errNoInitrd
	}

	buf := overlayBytes(mod.StartAddr, mod.EndAddr-mod.StartAddr)
	return initrd.Mount(mt, "/", buf)
}

// loadInitImage reads the first candidate init binary found in mt's root
// filesystem into a freshly allocated buffer.
func loadInitImage(mt *vfs.MountTable) ([]byte, *kernel.Error) {
	for _, path := range initCandidates {
		node, err := mt.Resolve(path)
		if err != nil {
			continue
		}

		reader, ok := node.(vfs.Reader)
		if !ok {
			continue
		}

		buf := make([]byte, node.Len())
		if _, err := reader.Read(0, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return nil, errNoInitBinary
}

// overlayBytes overlays a byte slice of the given length on top of a
// physical/virtual address, mirroring the same unsafe-slice-header pattern
// kernel/exec, kernel/mem/vmm and kernel/syscall use to read memory outside
// the Go heap.
func overlayBytes(addr, length uintptr) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: addr,
		Len:  int(length),
		Cap:  int(length),
	}))
}
