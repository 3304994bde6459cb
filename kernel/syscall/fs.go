package syscall

import (
	"gopheros/device/keyboard"
	"gopheros/kernel/fs/vfs"
	"gopheros/kernel/hal"
	"gopheros/kernel/irq"
	"gopheros/kernel/proc"
)

// statSize is the marshalled size, in bytes, of a Stat record: mode, size,
// blocks, atime, mtime, ctime, each a 32-bit field per spec §6.
const statSize = 6 * 4

// direntNameSize is the fixed size of a Dirent's NUL-terminated name field.
const direntNameSize = 256

// direntSize is the marshalled size of a Dirent record: name, ino, type.
const direntSize = direntNameSize + 4 + 1

func sysRead(p *proc.Process, fd, bufPtr, count uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	buf := userBytes(uintptr(bufPtr), int(count))
	if buf == nil {
		return -1
	}

	if fd == 0 {
		return int32(keyboard.ReadLine(buf))
	}

	n, err := p.Fds.Read(int(fd), buf)
	if err != nil {
		return -1
	}
	return int32(n)
}

func sysWrite(p *proc.Process, fd, bufPtr, count uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	buf := userBytes(uintptr(bufPtr), int(count))
	if buf == nil {
		return -1
	}

	if fd == 1 || fd == 2 {
		tty := hal.ActiveTTY()
		if tty == nil {
			return -1
		}
		n, _ := tty.Write(buf)
		return int32(n)
	}

	n, err := p.Fds.Write(int(fd), buf)
	if err != nil {
		return -1
	}
	return int32(n)
}

func sysOpen(p *proc.Process, pathPtr, flags, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	path, ok := userCString(uintptr(pathPtr))
	if !ok {
		return -1
	}

	fd, err := p.Fds.Open(root, p.Cwd, path, vfs.OpenFlag(flags))
	if err != nil {
		return -1
	}
	return int32(fd)
}

func sysClose(p *proc.Process, fd, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	return errno(p.Fds.Close(int(fd)))
}

func sysSeek(p *proc.Process, fd, offset, whence uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	pos, err := p.Fds.Seek(int(fd), int64(int32(offset)), vfs.Whence(whence))
	if err != nil {
		return -1
	}
	return int32(pos)
}

func sysStat(p *proc.Process, fd, statPtr, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	st, err := p.Fds.Stat(int(fd))
	if err != nil {
		return -1
	}

	buf := userBytes(uintptr(statPtr), statSize)
	if buf == nil {
		return -1
	}

	putUserUint32(uintptr(statPtr)+0, st.Mode)
	putUserUint32(uintptr(statPtr)+4, uint32(st.Size))
	putUserUint32(uintptr(statPtr)+8, st.Blocks)
	putUserUint32(uintptr(statPtr)+12, st.Atime)
	putUserUint32(uintptr(statPtr)+16, st.Mtime)
	putUserUint32(uintptr(statPtr)+20, st.Ctime)
	return 0
}

func sysReaddir(p *proc.Process, fd, direntPtr, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	ent, ok, err := p.Fds.Readdir(int(fd))
	if err != nil {
		return -1
	}
	if !ok {
		return 0
	}

	buf := userBytes(uintptr(direntPtr), direntSize)
	if buf == nil {
		return -1
	}

	for i := range buf[:direntNameSize] {
		buf[i] = 0
	}
	copy(buf[:direntNameSize-1], ent.Name)
	putUserUint32(uintptr(direntPtr)+direntNameSize, ent.Ino)
	buf[direntNameSize+4] = byte(ent.Type)
	return 1
}

func sysMkdir(p *proc.Process, pathPtr, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	path, ok := userCString(uintptr(pathPtr))
	if !ok {
		return -1
	}
	return errno(root.Mkdir(p.Cwd, path))
}

func sysRmdir(p *proc.Process, pathPtr, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	path, ok := userCString(uintptr(pathPtr))
	if !ok {
		return -1
	}
	return errno(root.Rmdir(p.Cwd, path))
}

func sysUnlink(p *proc.Process, pathPtr, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	path, ok := userCString(uintptr(pathPtr))
	if !ok {
		return -1
	}
	return errno(root.Unlink(p.Cwd, path))
}

func sysMount(_ *proc.Process, sourcePtr, targetPtr, fstypePtr uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	source, ok1 := userCString(uintptr(sourcePtr))
	target, ok2 := userCString(uintptr(targetPtr))
	fstype, ok3 := userCString(uintptr(fstypePtr))
	if !ok1 || !ok2 || !ok3 {
		return -1
	}
	return errno(root.Mount(target, source, fstype))
}

func sysUmount(_ *proc.Process, targetPtr, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	target, ok := userCString(uintptr(targetPtr))
	if !ok {
		return -1
	}
	return errno(root.Unmount(target))
}

func sysGetcwd(p *proc.Process, bufPtr, count, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	if len(p.Cwd)+1 > int(count) {
		return -1
	}
	buf := userBytes(uintptr(bufPtr), int(count))
	if buf == nil {
		return -1
	}
	n := copy(buf, p.Cwd)
	buf[n] = 0
	return int32(n)
}

func sysChdir(p *proc.Process, pathPtr, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	path, ok := userCString(uintptr(pathPtr))
	if !ok {
		return -1
	}

	node, err := root.ResolveAt(p.Cwd, path)
	if err != nil || node.Type() != vfs.NodeTypeDirectory {
		return -1
	}

	if len(path) > 0 && path[0] == '/' {
		p.Cwd = path
	} else if p.Cwd == "/" {
		p.Cwd = "/" + path
	} else {
		p.Cwd = p.Cwd + "/" + path
	}
	return 0
}
