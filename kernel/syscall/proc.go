package syscall

import (
	"gopheros/kernel/fs/vfs"
	"gopheros/kernel/irq"
	"gopheros/kernel/proc"
)

// syscallInstructionLen is the byte length of the `int $0x80` instruction
// used to enter the kernel; rewinding EIP by this amount before blocking
// makes the instruction execute again once the caller is rescheduled, per
// spec's open question #2 on wait: "a correct implementation must actually
// suspend and, on wake, re-run the scan".
const syscallInstructionLen = 2

func sysExit(p *proc.Process, code, _, _ uint32, frame *irq.Frame, regs *irq.Regs) int32 {
	proc.Exit(p, int(int32(code)))
	proc.Schedule(frame, regs)
	return 0
}

func sysFork(p *proc.Process, _, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	child, err := proc.Fork(p)
	if err != nil {
		return -1
	}
	return int32(child.PID)
}

func sysExec(p *proc.Process, pathPtr, argvPtr, _ uint32, frame *irq.Frame, regs *irq.Regs) int32 {
	path, ok := userCString(uintptr(pathPtr))
	if !ok {
		return -1
	}

	node, err := root.ResolveAt(p.Cwd, path)
	if err != nil {
		return -1
	}
	reader, ok := node.(vfs.Reader)
	if !ok {
		return -1
	}

	image := make([]byte, node.Len())
	if _, err := reader.Read(0, image); err != nil {
		return -1
	}

	argv := readArgv(uintptr(argvPtr))
	if err := proc.Exec(p, image, argv); err != nil {
		return -1
	}

	// Exec replaced p.Frame/p.Regs in place but this syscall did not go
	// through proc.Schedule, so the live frame/regs the trap plane will
	// iret from still hold the pre-exec values; propagate the new entry
	// point explicitly.
	*frame = p.Frame
	*regs = p.Regs
	return 0
}

// readArgv walks a NUL-terminated array of user pointers (little-endian
// uint32s), the pointer-vector layout kernel/proc's setupUserStack writes,
// decoding each into a Go string. Stops at the first null entry or after
// maxArgv entries, whichever comes first.
const maxArgv = 64

func readArgv(ptr uintptr) []string {
	if ptr == 0 {
		return nil
	}

	var out []string
	for i := 0; i < maxArgv; i++ {
		entry := userUint32(ptr + uintptr(i)*4)
		if entry == 0 {
			break
		}
		s, ok := userCString(uintptr(entry))
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}

func sysWait(p *proc.Process, statusPtr, _, _ uint32, frame *irq.Frame, regs *irq.Regs) int32 {
	pid, code, ok := proc.Wait(p.PID)
	if !ok {
		frame.EIP -= syscallInstructionLen
		proc.Schedule(frame, regs)
		return 0
	}

	if pid >= 0 && statusPtr != 0 {
		putUserUint32(uintptr(statusPtr), uint32(code))
	}
	return int32(pid)
}

func sysGetpid(p *proc.Process, _, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	return int32(p.PID)
}

func sysKill(_ *proc.Process, pid, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	return errno(proc.Kill(int(int32(pid))))
}

// procInfoSize is the marshalled size of one getprocs entry: pid, ppid,
// state, each a 32-bit field (state is stored widened for alignment).
const procInfoSize = 3 * 4

func sysGetprocs(_ *proc.Process, bufPtr, maxCount, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	procs := proc.List()

	n := uint32(len(procs))
	if n > maxCount {
		n = maxCount
	}

	base := uintptr(bufPtr)
	for i := uint32(0); i < n; i++ {
		entry := base + uintptr(i)*procInfoSize
		putUserUint32(entry+0, uint32(int32(procs[i].PID)))
		putUserUint32(entry+4, uint32(int32(procs[i].PPID)))
		putUserUint32(entry+8, uint32(procs[i].State))
	}
	return int32(n)
}
