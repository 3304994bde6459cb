// +build 386

package irq

import (
	"bytes"
	"gopheros/kernel/kfmt"
	"strings"
	"testing"
)

func TestTrapDispatchException(t *testing.T) {
	defer func() { exceptionHandlers[1] = nil; exceptionHandlersWithCode[1] = nil }()

	var gotFrame *Frame
	HandleException(ExceptionNum(1), func(f *Frame, _ *Regs) { gotFrame = f })

	ts := &trapStack{Vector: 1}
	trapDispatch(ts)

	if gotFrame != &ts.Frame {
		t.Fatal("expected handler to receive a pointer to the trap's frame")
	}
}

func TestTrapDispatchExceptionWithCode(t *testing.T) {
	defer func() { exceptionHandlersWithCode[PageFaultException] = nil }()

	var gotCode uint64
	HandleExceptionWithCode(PageFaultException, func(code uint64, _ *Frame, _ *Regs) { gotCode = code })

	ts := &trapStack{Vector: uint32(PageFaultException), ErrorCode: 42}
	trapDispatch(ts)

	if gotCode != 42 {
		t.Fatalf("expected error code 42; got %d", gotCode)
	}
}

func TestTrapDispatchUnhandledExceptionHalts(t *testing.T) {
	defer func() { cpuHaltFn = func() {} }()

	var haltCalled bool
	cpuHaltFn = func() { haltCalled = true }

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	ts := &trapStack{Vector: 0, ErrorCode: 0}
	ts.Frame.EIP = 0xdeadbeef
	trapDispatch(ts)

	if !haltCalled {
		t.Fatal("expected cpu.Halt() to be called for an unhandled exception")
	}

	out := buf.String()
	if !strings.Contains(out, "divide-by-zero error") {
		t.Fatalf("expected output to name the exception; got %q", out)
	}
	if !strings.Contains(out, "vector 0") {
		t.Fatalf("expected output to include the vector number; got %q", out)
	}
}

func TestExceptionName(t *testing.T) {
	if got := exceptionName(14); got != "page fault" {
		t.Fatalf("expected vector 14 to be named \"page fault\"; got %q", got)
	}
	if got := exceptionName(31); got != "reserved" {
		t.Fatalf("expected vector 31 (unassigned) to be named \"reserved\"; got %q", got)
	}
}

func TestTrapDispatchSyscall(t *testing.T) {
	defer func() { syscallHandler = nil }()

	called := false
	HandleSyscall(func(_ *Frame, _ *Regs) { called = true })

	trapDispatch(&trapStack{Vector: SyscallVector})

	if !called {
		t.Fatal("expected the syscall handler to run")
	}
}

func TestPicIRQLineForVector(t *testing.T) {
	specs := []struct {
		vector  uint8
		expLine uint8
	}{
		{picMasterOffset, 0},
		{picMasterOffset + 1, 1},
		{picSlaveOffset, 8},
		{picSlaveOffset + 7, 15},
	}

	for _, spec := range specs {
		if got := picIRQLineForVector(spec.vector); got != spec.expLine {
			t.Errorf("vector %d: expected IRQ line %d; got %d", spec.vector, spec.expLine, got)
		}
	}
}
