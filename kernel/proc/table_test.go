package proc

import "testing"

func TestInsertLookupRemove(t *testing.T) {
	reset()
	defer reset()

	p := &Process{PID: allocPID(), Name: "a"}
	if err := insert(p); err != nil {
		t.Fatal(err)
	}

	if got := lookup(p.PID); got != p {
		t.Fatalf("expected lookup to return the inserted process; got %v", got)
	}

	remove(p.PID)
	if got := lookup(p.PID); got != nil {
		t.Fatalf("expected lookup to return nil after remove; got %v", got)
	}
}

func TestInsertRejectsFullTable(t *testing.T) {
	reset()
	defer reset()

	for i := 0; i < MaxProcesses; i++ {
		if err := insert(&Process{PID: allocPID()}); err != nil {
			t.Fatalf("unexpected error filling slot %d: %v", i, err)
		}
	}

	if err := insert(&Process{PID: allocPID()}); err != errTableFull {
		t.Fatalf("expected errTableFull; got %v", err)
	}
}

func TestChildrenFiltersByParent(t *testing.T) {
	reset()
	defer reset()

	parent := &Process{PID: allocPID()}
	insert(parent)
	var kids []*Process
	for i := 0; i < 3; i++ {
		c := &Process{PID: allocPID(), PPID: parent.PID}
		insert(c)
		kids = append(kids, c)
	}
	insert(&Process{PID: allocPID(), PPID: 999}) // unrelated

	got := children(parent.PID)
	if len(got) != len(kids) {
		t.Fatalf("expected %d children; got %d", len(kids), len(got))
	}
}

// TestReapingShrinksTable is the table half of the wait/exit testable
// property: "after reaping, the process table size decreases by one".
func TestReapingShrinksTable(t *testing.T) {
	reset()
	defer reset()

	p := &Process{PID: allocPID()}
	insert(p)

	before := count()
	remove(p.PID)
	after := count()

	if before-after != 1 {
		t.Fatalf("expected table size to shrink by one; went from %d to %d", before, after)
	}
}

func TestAllocPIDIsMonotonic(t *testing.T) {
	reset()
	defer reset()

	a := allocPID()
	b := allocPID()
	if b <= a {
		t.Fatalf("expected strictly increasing pids; got %d then %d", a, b)
	}
}
