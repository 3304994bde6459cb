package proc

import (
	"gopheros/kernel"
)

// Create allocates a brand-new process: a pid, a fresh address space
// (sharing the kernel's upper mappings), an empty fd table and a cwd of
// "/". Its parent is ppid (pid 0 for the first process created at boot).
func Create(name string, ppid int) (*Process, *kernel.Error) {
	as, err := newAddressSpaceFn()
	if err != nil {
		return nil, err
	}

	p := &Process{
		PID:       allocPID(),
		PPID:      ppid,
		State:     StateReady,
		Name:      name,
		Cwd:       "/",
		AddrSpace: as,
	}

	if err := insert(p); err != nil {
		destroyAddressSpaceFn(as)
		return nil, err
	}
	enqueue(p.PID)
	return p, nil
}

// Fork creates a child of parent: a deep clone of its address space (no
// copy-on-write, a declared non-goal), a value copy of its fd table (the
// underlying nodes are shared; they need no refcount since their lifetime
// matches their filesystem's mount) and saved CPU state identical to the
// parent's except EAX, which is zeroed so the child observes a fork return
// value of 0 while the parent's syscall handler is left to set its own EAX
// to the child's pid.
func Fork(parent *Process) (*Process, *kernel.Error) {
	as, err := cloneAddressSpaceFn(parent.AddrSpace)
	if err != nil {
		return nil, err
	}

	child := &Process{
		PID:       allocPID(),
		PPID:      parent.PID,
		State:     StateReady,
		Name:      parent.Name,
		Cwd:       parent.Cwd,
		AddrSpace: as,
		Fds:       parent.Fds.Clone(),
		Frame:     parent.Frame,
		Regs:      parent.Regs,
	}
	child.Regs.EAX = 0

	if err := insert(child); err != nil {
		destroyAddressSpaceFn(as)
		return nil, err
	}
	enqueue(child.PID)
	return child, nil
}

// Exit marks p a zombie, closes its fds, reparents its children to pid 1
// (or pid 0 if pid 1 does not exist) and, if p's parent is blocked inside
// wait, wakes it by clearing waitingParent. The record itself is retained
// until a wait call reaps it.
func Exit(p *Process, code int) {
	p.State = StateZombie
	p.ExitCode = code
	p.Fds.CloseAll()
	if p == current {
		dequeueCurrent()
	}

	newParent := initPID
	if lookup(initPID) == nil {
		newParent = 0
	}
	for _, c := range children(p.PID) {
		c.PPID = newParent
	}

	if parent := lookup(p.PPID); parent != nil && parent.waitingParent {
		parent.waitingParent = false
		parent.State = StateReady
		enqueue(parent.PID)
	}
}

// Wait scans ppid's children for a zombie: if one exists, its record is
// reaped (removed from the table) and its pid/exit code returned. If ppid
// has no children at all, Wait returns -1 immediately. Otherwise the
// caller has at least one live child and no zombie yet; Wait marks ppid's
// process blocked and returns ok == false so the caller suspends (the
// explicit yield suspension point named in the concurrency model) and
// re-invokes Wait once woken.
func Wait(ppid int) (pid int, exitCode int, ok bool) {
	kids := children(ppid)
	if len(kids) == 0 {
		return -1, 0, true
	}

	for _, c := range kids {
		if c.State == StateZombie {
			remove(c.PID)
			return c.PID, c.ExitCode, true
		}
	}

	if parent := lookup(ppid); parent != nil {
		parent.waitingParent = true
		parent.State = StateBlocked
		dequeueCurrent()
	}
	return 0, 0, false
}

// Kill terminates pid unconditionally: this generation of the kernel
// delivers every signal as a terminate (the open question on signal
// semantics is resolved this way). Killing pid 0 is rejected.
func Kill(pid int) *kernel.Error {
	if pid == 0 {
		return errKillPIDZero
	}

	target := lookup(pid)
	if target == nil {
		return errNoSuchPID
	}

	Exit(target, 9)
	return nil
}
