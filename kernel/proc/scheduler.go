package proc

import (
	"gopheros/kernel/cpu"
	"gopheros/kernel/irq"
)

// readyQueue is the process-global ring of ready pids and a cursor into it,
// per the scheduler's design: "a ring of ready processes and a cursor".
// Queue membership is a slice of pids rather than processes so a process
// that blocks or exits while still listed is simply skipped when the
// cursor reaches it, instead of requiring an immediate removal.
var readyQueue struct {
	pids   []int
	cursor int
}

func init() {
	readyQueue.cursor = -1
}

var current *Process

// Current returns the process currently selected as running, or nil before
// the first Schedule call.
func Current() *Process {
	return current
}

// enqueue appends pid to the ready queue's tail, giving it FIFO tie-break
// against processes already waiting.
func enqueue(pid int) {
	readyQueue.pids = append(readyQueue.pids, pid)
}

// dequeueCurrent removes the process at the cursor from the ready queue;
// used when a process blocks or exits rather than merely yielding. The
// cursor is stepped back by one so the next Schedule's advance lands on
// whatever now occupies the removed slot, preserving FIFO order for the
// rest of the ring.
func dequeueCurrent() {
	if readyQueue.cursor < 0 || readyQueue.cursor >= len(readyQueue.pids) {
		return
	}
	readyQueue.pids = append(readyQueue.pids[:readyQueue.cursor], readyQueue.pids[readyQueue.cursor+1:]...)
	readyQueue.cursor--
}

// Schedule performs a single scheduling decision: it advances the cursor to
// the next ready pid, demotes the outgoing process (if still running) back
// to ready, promotes the incoming process to running, activates its address
// space and overwrites frame/regs in place with the incoming process'
// saved trap state. frame/regs are the pointers the trap plane's common ISR
// handed to the calling IRQ/exception/syscall handler; the ISR epilogue
// restores registers from *regs and irets using *frame immediately after
// the handler returns, so mutating them here is how the switch actually
// takes effect.
func Schedule(frame *irq.Frame, regs *irq.Regs) {
	if len(readyQueue.pids) == 0 {
		return
	}

	if current != nil && current.State == StateRunning {
		current.Frame = *frame
		current.Regs = *regs
		current.State = StateReady
	}

	start := readyQueue.cursor
	for {
		readyQueue.cursor = (readyQueue.cursor + 1) % len(readyQueue.pids)
		next := lookup(readyQueue.pids[readyQueue.cursor])
		if next != nil && next.State == StateReady {
			current = next
			break
		}
		if readyQueue.cursor == start {
			// Nothing is actually runnable; fall back to re-running
			// whatever was current, if anything.
			return
		}
	}

	current.State = StateRunning
	switchAddressSpaceFn(current.AddrSpace)
	*frame = current.Frame
	*regs = current.Regs
}

// Yield is the explicit suspension point inside wait (and available to any
// syscall handler that wants to give up the remainder of its time slice
// cooperatively). It is only meaningful when called from within a trap
// handler holding the live frame/regs pair; outside of that context it is a
// no-op beyond advancing bookkeeping.
func Yield(frame *irq.Frame, regs *irq.Regs) {
	Schedule(frame, regs)
}

// tick is registered against the timer IRQ so that a preemptive scheduling
// decision happens on a regular cadence, per the concurrency model's note
// that the scheduler "can be entered from the timer IRQ for preemption".
func tick(_ uint8, frame *irq.Frame, regs *irq.Regs) {
	Schedule(frame, regs)
}

// RegisterTimerTick wires Schedule into the timer IRQ. Called once during
// kernel bring-up.
func RegisterTimerTick() {
	irq.HandleIRQ(0, tick)
}

// idleHalt parks the CPU until the next interrupt. Schedule does not call it:
// with no ready process Schedule returns without halting. Kept as a mockable
// var per the kernel's pattern for hardware-touching primitives.
var idleHalt = cpu.Halt

// resetScheduler clears the ready queue and current-process pointer; used
// by tests only.
func resetScheduler() {
	readyQueue.pids = nil
	readyQueue.cursor = -1
	current = nil
}
