package vfs

import "testing"

func sampleTree() *memNode {
	return dir("/", 1,
		file("hello.txt", 2, "hi\n"),
		dir("sub", 3,
			file("leaf.txt", 4, "leaf"),
		),
	)
}

func mountedRoot(t *testing.T, root *memNode) *MountTable {
	t.Helper()
	mt := &MountTable{}
	mt.RegisterFilesystem("memfs", factoryFor(root))
	if err := mt.Mount("/", "src", "memfs"); err != nil {
		t.Fatal(err)
	}
	return mt
}

func TestResolveRejectsRelativePath(t *testing.T) {
	mt := mountedRoot(t, sampleTree())
	if _, err := mt.Resolve("hello.txt"); err != errRelativePath {
		t.Fatalf("expected errRelativePath; got %v", err)
	}
}

func TestResolveFindsRegularFile(t *testing.T) {
	mt := mountedRoot(t, sampleTree())
	n, err := mt.Resolve("/hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n.Name() != "hello.txt" {
		t.Fatalf("expected hello.txt; got %s", n.Name())
	}
}

func TestResolveDuplicateAndTrailingSlashes(t *testing.T) {
	mt := mountedRoot(t, sampleTree())

	for _, p := range []string{"/sub/leaf.txt", "/sub//leaf.txt", "/sub/leaf.txt/"} {
		n, err := mt.Resolve(p)
		if err != nil {
			t.Fatalf("path %q: unexpected error %v", p, err)
		}
		if n.Name() != "leaf.txt" {
			t.Fatalf("path %q: expected leaf.txt; got %s", p, n.Name())
		}
	}
}

func TestResolveDotIsIdempotent(t *testing.T) {
	mt := mountedRoot(t, sampleTree())
	n1, err := mt.Resolve("/sub/leaf.txt")
	if err != nil {
		t.Fatal(err)
	}
	n2, err := mt.Resolve("/sub/./././leaf.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n1 != n2 {
		t.Fatalf("expected . to be a no-op in path resolution")
	}
}

func TestResolveDotDotAscends(t *testing.T) {
	mt := mountedRoot(t, sampleTree())
	n, err := mt.Resolve("/sub/../hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n.Name() != "hello.txt" {
		t.Fatalf("expected hello.txt; got %s", n.Name())
	}
}

func TestResolveAtJoinsRelativePathWithCwd(t *testing.T) {
	mt := mountedRoot(t, sampleTree())
	n, err := mt.ResolveAt("/sub", "leaf.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n.Name() != "leaf.txt" {
		t.Fatalf("expected leaf.txt; got %s", n.Name())
	}
}

func TestResolveMissingPath(t *testing.T) {
	mt := mountedRoot(t, sampleTree())
	if _, err := mt.Resolve("/does/not/exist"); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}

// TestFinddirMatchesReaddir implements testable property 4:
// finddir(readdir(dir, i)) returns the same node for every i in range.
func TestFinddirMatchesReaddir(t *testing.T) {
	root := sampleTree()
	mt := mountedRoot(t, root)

	dirNode, err := mt.Resolve("/")
	if err != nil {
		t.Fatal(err)
	}
	readdirer := dirNode.(Readdirer)
	finder := dirNode.(Finddirer)

	for i := 0; ; i++ {
		ent, ok, err := readdirer.Readdir(i)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}

		n, err := finder.Finddir(ent.Name)
		if err != nil {
			t.Fatalf("finddir(%q): %v", ent.Name, err)
		}
		if n.Name() != ent.Name {
			t.Fatalf("expected finddir to return %q; got %q", ent.Name, n.Name())
		}
	}
}
