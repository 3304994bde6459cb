// Package keyboard implements the PS/2 keyboard IRQ1 collaborator: a
// scancode-to-ASCII translator feeding a FIFO ring buffer, and a
// line-buffered read used by the read(0) syscall shortcut. Keyboard-layout
// files are out of scope (spec §1 OUT OF SCOPE); this package ships a
// fixed US QWERTY scancode-set-1 table only.
package keyboard

import (
	"gopheros/device"
	"gopheros/kernel"
	"gopheros/kernel/cpu"
	"gopheros/kernel/irq"
	"io"
)

const dataPort = 0x60

// bufSize is the capacity of the scancode ring buffer; must be a power of
// two so index wraparound is a cheap mask.
const bufSize = 256

// scancodeToASCII is the (partial) scancode-set-1 make-code table for a US
// QWERTY layout. Unmapped entries are 0 and silently dropped.
var scancodeToASCII = [128]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0a: '9', 0x0b: '0',
	0x0c: '-', 0x0d: '=', 0x0e: '\b',
	0x0f: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1c: '\n',
	0x1e: 'a', 0x1f: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x2c: 'z', 0x2d: 'x', 0x2e: 'c', 0x2f: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x39: ' ',
}

// ring is a byte-oriented FIFO; full writes drop the newest byte rather
// than overwriting the oldest, keeping the "keyboard bytes are delivered
// FIFO" ordering guarantee intact for whatever did make it in.
type ring struct {
	buf            [bufSize]byte
	rIndex, wIndex int
	count          int
}

func (r *ring) push(b byte) {
	if r.count == bufSize {
		return
	}
	r.buf[r.wIndex] = b
	r.wIndex = (r.wIndex + 1) % bufSize
	r.count++
}

func (r *ring) pop() (byte, bool) {
	if r.count == 0 {
		return 0, false
	}
	b := r.buf[r.rIndex]
	r.rIndex = (r.rIndex + 1) % bufSize
	r.count--
	return b, true
}

var buffer ring

// echoFn writes a byte to the active console as a side effect of a
// keypress, per spec S8 ("echoing to the console happens as a side
// effect"). Overridden by hal wiring in the real kernel; tests substitute a
// recording stand-in.
var echoFn = func(byte) {}

// SetEcho installs the function used to echo received bytes to the active
// console. Called once during kernel bring-up with hal.ActiveTTY().WriteByte.
func SetEcho(fn func(byte)) {
	echoFn = fn
}

// inBFn is mocked by tests so the IRQ handler can run without real port I/O.
var inBFn = cpu.InB

// irqHandler is registered against IRQ1. Release events (scancode's high
// bit set) are ignored; make codes translate through scancodeToASCII and,
// if mapped, are pushed to the ring buffer and echoed.
func irqHandler(_ uint8, _ *irq.Frame, _ *irq.Regs) {
	sc := inBFn(dataPort)
	if sc&0x80 != 0 {
		return
	}
	ch := scancodeToASCII[sc&0x7f]
	if ch == 0 {
		return
	}
	buffer.push(ch)
	echoFn(ch)
}

// haltFn parks the CPU until the next interrupt; overridden by tests to
// avoid actually halting.
var haltFn = cpu.Halt

// ReadLine blocks (halting between interrupts, per the suspension-point
// rules) until a newline has been received or buf fills, copying bytes
// into buf as they arrive. It returns the number of bytes written,
// including the trailing newline if one fit.
func ReadLine(buf []byte) int {
	n := 0
	for n < len(buf) {
		b, ok := buffer.pop()
		if !ok {
			haltFn()
			continue
		}
		buf[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n
}

// Driver implements device.Driver, registering the keyboard's IRQ1 handler
// during hardware bring-up.
type Driver struct{}

// DriverName implements device.Driver.
func (Driver) DriverName() string { return "keyboard" }

// DriverVersion implements device.Driver.
func (Driver) DriverVersion() (uint16, uint16, uint16) { return 1, 0, 0 }

// DriverInit registers the IRQ1 handler.
func (Driver) DriverInit(_ io.Writer) *kernel.Error {
	irq.HandleIRQ(1, irqHandler)
	return nil
}

func probeForKeyboard() device.Driver {
	return Driver{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForKeyboard,
	})
}

// resetForTests clears the ring buffer and echo hook; used by tests only.
func resetForTests() {
	buffer = ring{}
	echoFn = func(byte) {}
}
