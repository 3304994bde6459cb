package timer

import (
	"gopheros/kernel/irq"
	"testing"
)

func withFakePortIO(t *testing.T) *[]uint8 {
	t.Helper()
	var written []uint8
	origOut := outBFn
	outBFn = func(_ uint16, v uint8) { written = append(written, v) }
	t.Cleanup(func() { outBFn = origOut })
	return &written
}

func TestDriverInitProgramsPIT(t *testing.T) {
	defer resetForTests()
	written := withFakePortIO(t)

	if err := (Driver{}).DriverInit(nil); err != nil {
		t.Fatalf("DriverInit: %v", err)
	}

	if len(*written) != 3 {
		t.Fatalf("expected 3 port writes (command + 2 divisor bytes); got %d", len(*written))
	}
	if (*written)[0] != pitCommandModeSquareWave {
		t.Fatalf("expected command byte 0x%x; got 0x%x", pitCommandModeSquareWave, (*written)[0])
	}
}

func TestTickHandlerAdvancesCounterAndInvokesHook(t *testing.T) {
	defer resetForTests()

	var hookCalls int
	OnTick(func(*irq.Frame, *irq.Regs) { hookCalls++ })

	var frame irq.Frame
	var regs irq.Regs
	tickHandler(0, &frame, &regs)
	tickHandler(0, &frame, &regs)

	if got := Ticks(); got != 2 {
		t.Fatalf("expected 2 ticks; got %d", got)
	}
	if hookCalls != 2 {
		t.Fatalf("expected scheduler hook invoked twice; got %d", hookCalls)
	}
}

func TestSleepWaitsForTargetTick(t *testing.T) {
	defer resetForTests()

	origHalt := haltFn
	defer func() { haltFn = origHalt }()

	haltFn = func() {
		tickHandler(0, &irq.Frame{}, &irq.Regs{})
	}

	Sleep(10) // 10ms at 100Hz = 1 tick
	if Ticks() < 1 {
		t.Fatalf("expected Sleep to advance past its target tick; got %d ticks", Ticks())
	}
}

func TestDevReadReturnsTickCount(t *testing.T) {
	defer resetForTests()

	tickHandler(0, &irq.Frame{}, &irq.Regs{})
	tickHandler(0, &irq.Frame{}, &irq.Regs{})

	buf := make([]byte, 4)
	n, err := (Driver{}).DevRead(0, 0, buf)
	if err != nil {
		t.Fatalf("DevRead: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 bytes; got %d", n)
	}
	if buf[0] != 2 {
		t.Fatalf("expected tick count 2 in first byte; got %d", buf[0])
	}
}
