// Package syscall implements the numbered dispatch table reachable from
// ring 3 through vector 0x80: a tagged-variant dispatch (spec's REDESIGN
// FLAGS item, replacing a raw function-pointer array) translating a
// process' register-frame arguments into calls against kernel/fs/vfs,
// kernel/proc and kernel/mem/kheap, per spec §4.9/§6.
package syscall

import (
	"gopheros/device/keyboard"
	"gopheros/kernel"
	"gopheros/kernel/fs/vfs"
	"gopheros/kernel/hal"
	"gopheros/kernel/irq"
	"gopheros/kernel/proc"
)

// Number identifies a syscall table entry; the ABI numbering is stable (see
// spec §6) and must never be renumbered once shipped.
type Number uint32

// The fixed syscall numbering, matching spec §6's table exactly.
const (
	Exit Number = iota
	Write
	Read
	Open
	Close
	Seek
	Stat
	Getpid
	Fork
	Exec
	Wait
	Malloc
	Free
	Gettime
	Sleep
	Readdir
	Mkdir
	Rmdir
	Unlink
	Mount
	Umount
	LoadDriver
	Ioctl
	Getcwd
	Chdir
	Kill
	Getprocs

	numSyscalls
)

// handlerFn is the shape of every table entry: it receives the calling
// process, the three argument words already extracted from the frame, and
// the live frame/regs pair (needed only by exit/fork/wait, which change
// which process is current). It returns the value to place in the caller's
// accumulator.
type handlerFn func(p *proc.Process, a1, a2, a3 uint32, frame *irq.Frame, regs *irq.Regs) int32

var table [numSyscalls]handlerFn

// root is the kernel's single mount table; the syscall layer is the owner
// named in spec §9's "global mutable state" design note, wrapping it
// exactly as the other kernel-global singletons (frame bitmap, process
// table) are wrapped.
var root *vfs.MountTable

// Init registers the syscall dispatcher against the trap plane's 0x80
// vector and installs mt as the mount table every path-based syscall
// resolves against. Called once during kernel bring-up, after the root
// filesystem has been mounted.
func Init(mt *vfs.MountTable) {
	root = mt

	table[Exit] = sysExit
	table[Write] = sysWrite
	table[Read] = sysRead
	table[Open] = sysOpen
	table[Close] = sysClose
	table[Seek] = sysSeek
	table[Stat] = sysStat
	table[Getpid] = sysGetpid
	table[Fork] = sysFork
	table[Exec] = sysExec
	table[Wait] = sysWait
	table[Malloc] = sysMalloc
	table[Free] = sysFree
	table[Gettime] = sysGettime
	table[Sleep] = sysSleep
	table[Readdir] = sysReaddir
	table[Mkdir] = sysMkdir
	table[Rmdir] = sysRmdir
	table[Unlink] = sysUnlink
	table[Mount] = sysMount
	table[Umount] = sysUmount
	table[LoadDriver] = sysLoadDriver
	table[Ioctl] = sysIoctl
	table[Getcwd] = sysGetcwd
	table[Chdir] = sysChdir
	table[Kill] = sysKill
	table[Getprocs] = sysGetprocs

	keyboard.SetEcho(func(b byte) {
		if tty := hal.ActiveTTY(); tty != nil {
			tty.WriteByte(b)
		}
	})

	irq.HandleSyscall(Dispatch)
}

// Dispatch is the trap plane's entry point for vector 0x80: the frame's
// accumulator holds the syscall number, EBX/ECX/EDX hold up to three
// word-sized arguments, and the return value is written back into the
// accumulator so `iret` delivers it to user code, per spec §4.1/§6.
func Dispatch(frame *irq.Frame, regs *irq.Regs) {
	n := Number(regs.EAX)

	p := proc.Current()
	if p == nil || n >= numSyscalls || table[n] == nil {
		regs.EAX = uint32(int32(-1))
		return
	}

	ret := table[n](p, regs.EBX, regs.ECX, regs.EDX, frame, regs)

	// A handler that triggered a scheduling decision (exit, or wait with
	// no zombie yet) has already overwritten *frame/*regs with the
	// incoming process' saved trap state via proc.Schedule; writing ret
	// into regs.EAX here would clobber that process' restored
	// accumulator instead of delivering this syscall's return value.
	if proc.Current() == p {
		regs.EAX = uint32(ret)
	}
}

// errno collapses any *kernel.Error to the single -1 user-visible failure
// value per spec §7 ("every user-visible path returns -1 with no errno
// surface").
func errno(err *kernel.Error) int32 {
	if err != nil {
		return -1
	}
	return 0
}
