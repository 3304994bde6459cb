package devfs

import (
	"gopheros/device"
	"gopheros/kernel"
	"gopheros/kernel/fs/vfs"
	"io"
	"testing"
)

type fakeDriver struct{ data [8]byte }

func (fakeDriver) DriverName() string                      { return "ram" }
func (fakeDriver) DriverVersion() (uint16, uint16, uint16) { return 1, 0, 0 }
func (fakeDriver) DriverInit(_ io.Writer) *kernel.Error    { return nil }

func (d *fakeDriver) DevRead(_ uint8, pos int64, buf []byte) (int, *kernel.Error) {
	return copy(buf, d.data[pos:]), nil
}

func (d *fakeDriver) DevWrite(_ uint8, pos int64, buf []byte) (int, *kernel.Error) {
	return copy(d.data[pos:], buf), nil
}

func registerFakeRAMDriver() {
	drv := &fakeDriver{}
	device.RegisterNamed(drv)
}

func TestMountAndOpenDeviceNode(t *testing.T) {
	registerFakeRAMDriver()

	mt := &vfs.MountTable{}
	if err := Mount(mt, "/dev"); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	var tbl vfs.Table
	fd, err := tbl.Open(mt, "/", "/dev/ram0", vfs.ORdwr)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := tbl.Write(fd, []byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The write advanced the device handle's position past "hi"; reopening
	// resets it to 0 so the bytes can be read back.
	if err := tbl.Close(fd); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fd, err = tbl.Open(mt, "/", "/dev/ram0", vfs.ORdwr); err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := make([]byte, 2)
	if _, err := tbl.Read(fd, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hi" {
		t.Fatalf("expected 'hi'; got %q", buf)
	}

	if err := tbl.Close(fd); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFinddirRejectsUnknownDevice(t *testing.T) {
	mt := &vfs.MountTable{}
	if err := Mount(mt, "/dev"); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if _, err := mt.Resolve("/dev/nonexistent"); err == nil {
		t.Fatal("expected resolving an unregistered device name to fail")
	}
}
