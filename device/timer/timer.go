// Package timer drives the kernel's tick counter off the 8253/8254
// programmable interval timer's IRQ0 line, the "Timer + console + keyboard
// collaborators" leaf named by the system overview: a tick counter at a
// known frequency, consumed by sleep and by the scheduler's preemption
// hook.
package timer

import (
	"gopheros/device"
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/irq"
	"io"
	"sync/atomic"
)

const (
	// pitFrequency is the PIT's fixed input clock frequency in Hz.
	pitFrequency = 1193182

	// Hz is the rate, in ticks per second, the PIT is programmed for at
	// DriverInit. 100Hz matches the traditional jiffies rate and keeps
	// the reload divisor comfortably inside the PIT's 16-bit counter.
	Hz = 100

	pitCommandPort = 0x43
	pitChannel0    = 0x40

	// pitCommandModeSquareWave selects channel 0, lobyte/hibyte access,
	// mode 3 (square wave generator), binary (not BCD) counting.
	pitCommandModeSquareWave = 0x36
)

var ticks uint64

// outBFn/haltFn are mocked by tests so PIT programming can run without real
// port I/O, matching the kernel's convention for hardware-touching
// primitives elsewhere (irq's PIC setup, console's palette writes).
var (
	outBFn = cpu.OutB
	haltFn = cpu.Halt
)

// Ticks returns the number of timer interrupts observed since boot.
func Ticks() uint64 {
	return atomic.LoadUint64(&ticks)
}

// tickHandler is registered against IRQ0. It advances the tick counter and,
// if a scheduler hook has been installed, forwards the trap state so a
// preemptive scheduling decision can be made on the same cadence.
func tickHandler(_ uint8, frame *irq.Frame, regs *irq.Regs) {
	atomic.AddUint64(&ticks, 1)
	if schedulerHook != nil {
		schedulerHook(frame, regs)
	}
}

// schedulerHook, when set via OnTick, is invoked on every timer interrupt
// after the tick counter has been advanced.
var schedulerHook func(*irq.Frame, *irq.Regs)

// OnTick installs fn as the scheduler's preemption hook. Passing nil
// disables preemption without disabling tick counting (sleep and
// gettime keep working).
func OnTick(fn func(*irq.Frame, *irq.Regs)) {
	schedulerHook = fn
}

// Sleep halts the CPU until at least ms milliseconds of ticks have elapsed,
// per spec's sleep semantics: the end-tick is computed once up front and
// the loop re-checks after every wake so an early interrupt cannot shorten
// the sleep.
func Sleep(ms uint32) {
	target := Ticks() + (uint64(ms)*Hz+999)/1000
	for Ticks() < target {
		haltFn()
	}
}

// Driver implements device.Driver and device.BlockDriver, presenting the
// tick counter as a readable pseudo-device (a 4-byte little-endian tick
// count per read) so it can also be reached through the generic dev_read
// dispatch, in addition to the Ticks()/Sleep() Go API used by kernel/proc
// and kernel/syscall.
type Driver struct{}

// DriverName implements device.Driver.
func (Driver) DriverName() string { return "timer" }

// DriverVersion implements device.Driver.
func (Driver) DriverVersion() (uint16, uint16, uint16) { return 1, 0, 0 }

// DriverInit programs the PIT for Hz and registers the IRQ0 handler.
func (Driver) DriverInit(w io.Writer) *kernel.Error {
	divisor := uint16(pitFrequency / Hz)
	outBFn(pitCommandPort, pitCommandModeSquareWave)
	outBFn(pitChannel0, uint8(divisor&0xff))
	outBFn(pitChannel0, uint8(divisor>>8))

	irq.HandleIRQ(0, tickHandler)
	return nil
}

// DevRead implements device.BlockDriver: every read ignores pos and returns
// the current tick count as 4 little-endian bytes.
func (Driver) DevRead(_ uint8, _ int64, buf []byte) (int, *kernel.Error) {
	t := uint32(Ticks())
	n := 0
	for n < len(buf) && n < 4 {
		buf[n] = byte(t >> (8 * uint(n)))
		n++
	}
	return n, nil
}

// DevWrite implements device.BlockDriver; the timer accepts no writes.
func (Driver) DevWrite(_ uint8, _ int64, _ []byte) (int, *kernel.Error) {
	return 0, &kernel.Error{Module: "timer", Message: "timer device is read-only", Kind: kernel.KindUnsupported}
}

func probeForTimer() device.Driver {
	return Driver{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForTimer,
	})
}

// resetForTests clears the tick counter and scheduler hook; used by tests
// only.
func resetForTests() {
	atomic.StoreUint64(&ticks, 0)
	schedulerHook = nil
}
