// Package cpu exposes thin, assembly-backed wrappers around x86
// instructions that the rest of the kernel needs but the Go compiler has no
// intrinsic for.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling (sti).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (cli).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (hlt).
func Halt()

// FlushTLBEntry flushes a single TLB entry for a particular virtual address
// (invlpg).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads CR3 with the physical address of a page directory and
// flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page
// directory (contents of CR3).
func ActivePDT() (ret uintptr)

// ReadCR2 returns the faulting address recorded by the CPU in CR2 during the
// most recent page fault.
func ReadCR2() (ret uintptr)

// InB reads a single byte from the given I/O port.
func InB(port uint16) (ret uint8)

// OutB writes a single byte to the given I/O port.
func OutB(port uint16, value uint8)

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (eax, ebx, ecx, edx uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
