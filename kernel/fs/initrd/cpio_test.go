package initrd

import (
	"fmt"
	"gopheros/kernel/fs/vfs"
	"testing"
)

const (
	modeRegular   = 0100644
	modeDirectory = 0040755
)

// cpioEntry describes one archive member for buildArchive.
type cpioEntry struct {
	name string
	mode uint32
	data []byte
}

// buildArchive assembles a minimal CPIO-newc byte stream from entries,
// appending the mandatory "." and "TRAILER!!!" bookkeeping records.
func buildArchive(entries []cpioEntry) []byte {
	var buf []byte
	ino := uint32(1)

	write := func(name string, mode uint32, data []byte) {
		nameWithNul := name + "\x00"
		hdr := fmt.Sprintf("070701%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x%08x",
			ino, mode, 0, 0, 1, 0, len(data), 0, 0, 0, 0, len(nameWithNul), 0)
		ino++

		buf = append(buf, []byte(hdr)...)
		buf = append(buf, []byte(nameWithNul)...)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
		buf = append(buf, data...)
		for len(buf)%4 != 0 {
			buf = append(buf, 0)
		}
	}

	write(".", modeDirectory, nil)
	for _, e := range entries {
		write(e.name, e.mode, e.data)
	}
	write(trailer, 0, nil)

	return buf
}

func TestParseFlatFile(t *testing.T) {
	buf := buildArchive([]cpioEntry{
		{name: "hello.txt", mode: modeRegular, data: []byte("hi\n")},
	})

	root, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}

	n, err := root.(vfs.Finddirer).Finddir("hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n.Len() != 3 {
		t.Fatalf("expected a 3-byte file; got %d", n.Len())
	}

	out := make([]byte, 16)
	got, kerr := n.(vfs.Reader).Read(0, out)
	if kerr != nil {
		t.Fatal(kerr)
	}
	if string(out[:got]) != "hi\n" {
		t.Fatalf("expected contents \"hi\\n\"; got %q", out[:got])
	}
}

func TestParseNestedDirectories(t *testing.T) {
	buf := buildArchive([]cpioEntry{
		{name: "bin/sh", mode: modeRegular, data: []byte("#!")},
		{name: "bin/ls", mode: modeRegular, data: []byte("ls")},
	})

	root, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}

	binNode, err := root.(vfs.Finddirer).Finddir("bin")
	if err != nil {
		t.Fatal(err)
	}
	if binNode.Type() != vfs.NodeTypeDirectory {
		t.Fatalf("expected bin to be a directory")
	}

	shNode, err := binNode.(vfs.Finddirer).Finddir("sh")
	if err != nil {
		t.Fatal(err)
	}
	if shNode.Len() != 2 {
		t.Fatalf("expected sh to be 2 bytes; got %d", shNode.Len())
	}
}

func TestParseSkipsDotAndTrailer(t *testing.T) {
	buf := buildArchive(nil)

	root, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := root.(vfs.Finddirer).Finddir("."); err == nil {
		t.Fatal("expected \".\" to be skipped, not registered as a child")
	}
	if _, err := root.(vfs.Finddirer).Finddir(trailer); err == nil {
		t.Fatal("expected TRAILER!!! to be skipped, not registered as a child")
	}
}

func TestParseTruncatedArchive(t *testing.T) {
	buf := buildArchive([]cpioEntry{{name: "f", mode: modeRegular, data: []byte("x")}})
	if _, err := Parse(buf[:len(buf)-8]); err == nil {
		t.Fatal("expected an error for a truncated archive")
	}
}

func TestParseBadMagic(t *testing.T) {
	buf := buildArchive([]cpioEntry{{name: "f", mode: modeRegular, data: []byte("x")}})
	buf[0] = 'X'
	if _, err := Parse(buf); err != errBadMagic {
		t.Fatalf("expected errBadMagic; got %v", err)
	}
}
