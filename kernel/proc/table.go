package proc

import (
	"gopheros/kernel"
	gsync "gopheros/kernel/sync"
)

// MaxProcesses bounds the process table the way vfs.Table bounds a
// process' file descriptors: a fixed-size slice rather than an
// unboundedly growing one.
const MaxProcesses = 64

var (
	errTableFull = &kernel.Error{Module: "proc", Message: "process table is full", Kind: kernel.KindExhausted}
	errNoSuchPID = &kernel.Error{Module: "proc", Message: "no such pid", Kind: kernel.KindNotFound}
)

// table is the process-global process list, guarded by a spinlock the same
// way the mount table is (allocPID's counter is updated without it). Mutation is only permitted from
// kernel context with interrupts disabled or during explicit scheduler
// entries, matching the concurrency model's shared-resource discipline.
type table struct {
	lock    gsync.Spinlock
	procs   [MaxProcesses]*Process
	nextPID int
}

var procTable = table{nextPID: initPID}

// allocPID returns the next monotonically increasing pid. Pids are never
// reused even after their process is reaped, so a stale pid reference can
// never silently resolve to an unrelated later process.
func allocPID() int {
	pid := procTable.nextPID
	procTable.nextPID++
	return pid
}

// insert adds p to the table in the first free slot. It returns
// errTableFull if every slot is occupied.
func insert(p *Process) *kernel.Error {
	procTable.lock.Acquire()
	defer procTable.lock.Release()

	for i := range procTable.procs {
		if procTable.procs[i] == nil {
			procTable.procs[i] = p
			return nil
		}
	}
	return errTableFull
}

// remove deletes the record for pid from the table. It is a no-op if pid
// is not present.
func remove(pid int) {
	procTable.lock.Acquire()
	defer procTable.lock.Release()

	for i, p := range procTable.procs {
		if p != nil && p.PID == pid {
			procTable.procs[i] = nil
			return
		}
	}
}

// lookup returns the process record for pid, or nil if none exists.
func lookup(pid int) *Process {
	procTable.lock.Acquire()
	defer procTable.lock.Release()

	for _, p := range procTable.procs {
		if p != nil && p.PID == pid {
			return p
		}
	}
	return nil
}

// children returns every process whose PPID is ppid.
func children(ppid int) []*Process {
	procTable.lock.Acquire()
	defer procTable.lock.Release()

	var out []*Process
	for _, p := range procTable.procs {
		if p != nil && p.PPID == ppid {
			out = append(out, p)
		}
	}
	return out
}

// count returns the number of occupied slots, used by tests to assert that
// reaping shrinks the table per the wait/exit testable property.
func count() int {
	procTable.lock.Acquire()
	defer procTable.lock.Release()

	n := 0
	for _, p := range procTable.procs {
		if p != nil {
			n++
		}
	}
	return n
}

// List returns every live process record, for getprocs.
func List() []*Process {
	procTable.lock.Acquire()
	defer procTable.lock.Release()

	var out []*Process
	for _, p := range procTable.procs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the process record for pid, or nil if none exists.
func Lookup(pid int) *Process {
	return lookup(pid)
}

// reset clears the table and pid allocator; used by tests only.
func reset() {
	procTable.lock.Acquire()
	defer procTable.lock.Release()

	procTable.procs = [MaxProcesses]*Process{}
	procTable.nextPID = initPID
}
