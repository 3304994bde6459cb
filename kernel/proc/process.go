// Package proc implements the kernel's process table and scheduler: process
// records, pid allocation, fork/exec/wait/exit/kill and a round-robin ready
// queue, grounded on the same global-singleton-behind-a-spinlock pattern the
// rest of the kernel uses for its other process-global state.
package proc

import (
	"gopheros/kernel"
	"gopheros/kernel/fs/vfs"
	"gopheros/kernel/irq"
	"gopheros/kernel/mem/vmm"
)

// State is a process' position in the state machine described in the
// scheduler's design: READY -> RUNNING -> {BLOCKED, ZOMBIE}, BLOCKED ->
// READY on wake, ZOMBIE -> freed on reap.
type State uint8

const (
	// StateReady marks a process eligible for scheduling.
	StateReady State = iota
	// StateRunning marks the process currently executing on the CPU.
	StateRunning
	// StateBlocked marks a process waiting on an event (currently: a
	// parent blocked inside wait with no zombie child yet).
	StateBlocked
	// StateZombie marks an exited process whose record is retained until
	// its parent reaps it.
	StateZombie
)

// String implements fmt.Stringer for diagnostic output.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateZombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// initPID is the pid reparented orphans are assigned to, matching the
// traditional init-process convention named in the process table's design
// notes ("reparenting to pid 1 or pid 0").
const initPID = 1

// Process is a single process-table record. Saved CPU state lives directly
// in the Frame/Regs values the trap plane already defines: the scheduler
// swaps a process in or out by copying these structs into and out of the
// trap frame the common ISR epilogue will restore registers and iret from,
// rather than switching kernel stacks directly.
type Process struct {
	PID  int
	PPID int

	State State
	Name  string
	Cwd   string

	AddrSpace *vmm.AddressSpace
	Fds       vfs.Table

	Frame irq.Frame
	Regs  irq.Regs

	ExitCode int

	// waitingParent is set while this process is blocked inside wait
	// with no reapable child yet; Exit consults it to decide whether to
	// wake the parent immediately.
	waitingParent bool
}

var errKillPIDZero = &kernel.Error{Module: "proc", Message: "pid 0 cannot be killed", Kind: kernel.KindPermissionish}
