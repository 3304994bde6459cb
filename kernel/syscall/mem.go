package syscall

import (
	"gopheros/device/timer"
	"gopheros/kernel/irq"
	"gopheros/kernel/mem/kheap"
	"gopheros/kernel/proc"
	"unsafe"
)

func sysMalloc(_ *proc.Process, size, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	ptr := kheap.Malloc(uintptr(size))
	if ptr == nil {
		return 0
	}
	return int32(uintptr(ptr))
}

func sysFree(_ *proc.Process, ptr, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	kheap.Free(unsafe.Pointer(uintptr(ptr)))
	return 0
}

func sysGettime(_ *proc.Process, _, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	return int32(timer.Ticks() / timer.Hz)
}

func sysSleep(_ *proc.Process, ms, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	timer.Sleep(ms)
	return 0
}
