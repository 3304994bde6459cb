// +build 386

package irq

import (
	"gopheros/kernel/cpu"
	"unsafe"
)

// idtEntry describes a single IDT gate descriptor (interrupt gate, ring 0,
// present).
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	zero       uint8
	typeAttr   uint8
	offsetHigh uint16
}

// idtPtr is the operand loaded by the LIDT instruction.
type idtPtr struct {
	limit uint16
	base  uint32
}

const (
	kernelCodeSelector = 0x08
	idtInterruptGate   = 0x8e // present, ring 0, 32-bit interrupt gate

	// pic* are the standard 8259 PIC I/O ports.
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	// picMasterOffset and picSlaveOffset relocate the PIC's IRQ vectors
	// out of the range used by CPU exceptions (0-31).
	picMasterOffset = 0x20
	picSlaveOffset  = 0x28

	// SyscallVector is the software interrupt used to enter the kernel
	// from user-mode via the classic `int $0x80` convention.
	SyscallVector = 0x80

	// TimerVector and KeyboardVector are the post-remap vectors for IRQ0
	// and IRQ1 respectively.
	TimerVector    = picMasterOffset + 0
	KeyboardVector = picMasterOffset + 1
)

var (
	idt [256]idtEntry

	// outBFn/inBFn are mocked by tests so that PIC setup/acknowledgement
	// code can run without issuing real port I/O instructions.
	outBFn = cpu.OutB
	inBFn  = cpu.InB
)

// stubTable maps each wired vector to the address of its ISR entry stub.
// Vectors not listed here keep a zeroed (not-present) IDT entry and will
// raise a double fault if the CPU ever tries to use them.
var stubTable = []struct {
	vector uint8
	stub   func()
}{
	{0, isrStub0}, {1, isrStub1}, {2, isrStub2}, {3, isrStub3},
	{4, isrStub4}, {5, isrStub5}, {6, isrStub6}, {7, isrStub7},
	{8, isrStub8}, {9, isrStub9}, {10, isrStub10}, {11, isrStub11},
	{12, isrStub12}, {13, isrStub13}, {14, isrStub14}, {15, isrStub15},
	{16, isrStub16}, {17, isrStub17}, {18, isrStub18}, {19, isrStub19},
	{20, isrStub20}, {21, isrStub21}, {22, isrStub22}, {23, isrStub23},
	{24, isrStub24}, {25, isrStub25}, {26, isrStub26}, {27, isrStub27},
	{28, isrStub28}, {29, isrStub29}, {30, isrStub30}, {31, isrStub31},
	{TimerVector, isrStub32}, {KeyboardVector, isrStub33},
	{SyscallVector, isrStub128},
}

// the following bodyless functions are implemented in isr_386.s. Each one
// pushes its vector number (and, for vectors without a CPU-provided error
// code, a dummy zero) before jumping to the shared trap entry point.
func isrStub0()
func isrStub1()
func isrStub2()
func isrStub3()
func isrStub4()
func isrStub5()
func isrStub6()
func isrStub7()
func isrStub8()
func isrStub9()
func isrStub10()
func isrStub11()
func isrStub12()
func isrStub13()
func isrStub14()
func isrStub15()
func isrStub16()
func isrStub17()
func isrStub18()
func isrStub19()
func isrStub20()
func isrStub21()
func isrStub22()
func isrStub23()
func isrStub24()
func isrStub25()
func isrStub26()
func isrStub27()
func isrStub28()
func isrStub29()
func isrStub30()
func isrStub31()
func isrStub32()
func isrStub33()
func isrStub128()

// lidt loads the IDT register (LIDT) with the descriptor at ptr.
func lidt(ptr unsafe.Pointer)

// funcAddr returns the entry address of a top-level, non-closure Go
// function. Such functions are represented as a funcval whose single word
// is the code pointer itself, which is what lets us treat a *func() as a
// **uintptr here.
func funcAddr(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}

func setGate(vector uint8, handler uintptr) {
	idt[vector] = idtEntry{
		offsetLow:  uint16(handler),
		selector:   kernelCodeSelector,
		zero:       0,
		typeAttr:   idtInterruptGate,
		offsetHigh: uint16(handler >> 16),
	}
}

func remapPIC() {
	// ICW1: start initialization sequence, expect ICW4
	outBFn(picMasterCommand, 0x11)
	outBFn(picSlaveCommand, 0x11)
	// ICW2: vector offsets
	outBFn(picMasterData, picMasterOffset)
	outBFn(picSlaveData, picSlaveOffset)
	// ICW3: wire master/slave cascade on IRQ2
	outBFn(picMasterData, 0x04)
	outBFn(picSlaveData, 0x02)
	// ICW4: 8086 mode
	outBFn(picMasterData, 0x01)
	outBFn(picSlaveData, 0x01)
	// Mask every line; a line is delivered only after UnmaskIRQ has been
	// called for it (HandleIRQ does not unmask).
	outBFn(picMasterData, 0xff)
	outBFn(picSlaveData, 0xff)
}

// UnmaskIRQ enables delivery of the given (pre-remap) hardware IRQ line.
func UnmaskIRQ(irqLine uint8) {
	if irqLine < 8 {
		mask := inBFn(picMasterData)
		outBFn(picMasterData, mask&^(1<<irqLine))
		return
	}
	mask := inBFn(picSlaveData)
	outBFn(picSlaveData, mask&^(1<<(irqLine-8)))
}

// ackIRQ sends the end-of-interrupt signal for the given (pre-remap) IRQ
// line, unblocking further delivery from the PIC.
func ackIRQ(irqLine uint8) {
	if irqLine >= 8 {
		outBFn(picSlaveCommand, 0x20)
	}
	outBFn(picMasterCommand, 0x20)
}

// Init remaps the PIC past the CPU exception range, builds the IDT and loads
// it. It must be called once, early in the boot sequence, before interrupts
// are enabled.
func Init() {
	remapPIC()

	for _, entry := range stubTable {
		setGate(entry.vector, funcAddr(entry.stub))
	}

	ptr := idtPtr{
		limit: uint16(unsafe.Sizeof(idt)) - 1,
		base:  uint32(uintptr(unsafe.Pointer(&idt[0]))),
	}
	lidt(unsafe.Pointer(&ptr))
}
