// +build 386

package irq

import (
	"gopheros/kernel/cpu"
	"gopheros/kernel/kfmt"
)

// trapStack mirrors the stack layout the common ISR stub hands to Go: the
// registers saved by PUSHAL, the normalized (vector, errorCode) pair pushed
// by the per-vector stub, and the frame the CPU itself pushed.
type trapStack struct {
	Regs
	Vector    uint32
	ErrorCode uint32
	Frame
}

// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
var cpuHaltFn = cpu.Halt

// exceptionNames gives the architectural name for each of the 32 CPU
// exception vectors (Intel SDM vol. 3A, ch. 6.3); vectors 22-27 and 31 are
// reserved by Intel and have no assigned name.
var exceptionNames = [32]string{
	0:  "divide-by-zero error",
	1:  "debug",
	2:  "non-maskable interrupt",
	3:  "breakpoint",
	4:  "overflow",
	5:  "bound range exceeded",
	6:  "invalid opcode",
	7:  "device not available",
	8:  "double fault",
	9:  "coprocessor segment overrun",
	10: "invalid TSS",
	11: "segment not present",
	12: "stack-segment fault",
	13: "general protection fault",
	14: "page fault",
	15: "reserved",
	16: "x87 floating-point exception",
	17: "alignment check",
	18: "machine check",
	19: "SIMD floating-point exception",
	20: "virtualization exception",
	21: "control protection exception",
	28: "hypervisor injection exception",
	29: "VMM communication exception",
	30: "security exception",
}

// exceptionName returns the architectural name for vector v, or "reserved"
// if Intel has not assigned one.
func exceptionName(v uint8) string {
	if name := exceptionNames[v]; name != "" {
		return name
	}
	return "reserved"
}

// fatalException reports an unhandled CPU exception the way spec §4.1
// requires -- the exception name, its error code and the saved instruction
// pointer -- and halts the CPU. There is no handler registered to recover
// from it, so, unlike a syscall or IRQ, this function never returns.
func fatalException(v uint8, ts *trapStack) {
	kfmt.Printf("\nunhandled CPU exception: %s (vector %d)\n", exceptionName(v), v)
	kfmt.Printf("error code: %x\n", ts.ErrorCode)
	kfmt.Printf("\nRegisters:\n")
	ts.Regs.Print()
	ts.Frame.Print()
	cpuHaltFn()
}

var syscallHandler ExceptionHandler

// HandleSyscall registers the handler invoked for the int $0x80 software
// interrupt used to enter the kernel from user-mode.
func HandleSyscall(handler ExceptionHandler) {
	syscallHandler = handler
}

func picIRQLineForVector(vector uint8) uint8 {
	if vector >= picSlaveOffset {
		return vector - picSlaveOffset + 8
	}
	return vector - picMasterOffset
}

// trapDispatch is called by commonStub (isr_386.s) for every trap. It is not
// called directly from Go.
func trapDispatch(ts *trapStack) {
	switch v := uint8(ts.Vector); {
	case v < 32:
		if h := exceptionHandlersWithCode[v]; h != nil {
			h(uint64(ts.ErrorCode), &ts.Frame, &ts.Regs)
			return
		}
		if h := exceptionHandlers[v]; h != nil {
			h(&ts.Frame, &ts.Regs)
			return
		}
		fatalException(v, ts)
	case v == SyscallVector:
		if syscallHandler != nil {
			syscallHandler(&ts.Frame, &ts.Regs)
		}
	default:
		line := picIRQLineForVector(v)
		if h := irqHandlers[line]; h != nil {
			h(line, &ts.Frame, &ts.Regs)
		}
		ackIRQ(line)
	}
}
