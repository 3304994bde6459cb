package syscall

import (
	"gopheros/device"
	"gopheros/kernel"
	"gopheros/kernel/irq"
	"gopheros/kernel/proc"
)

// ioctler is implemented by VFS nodes backed by a device handle (devfs'
// devNode); dev_ioctl is a pure pass-through to it, per spec §4.7.
type ioctler interface {
	DeviceIoctl(request uint32, arg uintptr) (uintptr, *kernel.Error)
}

func sysLoadDriver(_ *proc.Process, namePtr, _, _ uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	name, ok := userCString(uintptr(namePtr))
	if !ok {
		return -1
	}
	if device.DriverFind(name) == nil {
		return -1
	}
	return 0
}

func sysIoctl(p *proc.Process, fd, request, arg uint32, _ *irq.Frame, _ *irq.Regs) int32 {
	node := p.Fds.Node(int(fd))
	if node == nil {
		return -1
	}

	ioc, ok := node.(ioctler)
	if !ok {
		return -1
	}

	ret, err := ioc.DeviceIoctl(request, uintptr(arg))
	if err != nil {
		return -1
	}
	return int32(ret)
}
