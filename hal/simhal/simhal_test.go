package simhal

import (
	"testing"

	"github.com/MORK-core/mork-mm/hal"
)

func TestIndexMatchesWorkedExample(t *testing.T) {
	h := New(hal.MemoryInfo{})

	// a vaddr whose level-0 index is 3, level-1 index is 1, level-2
	// index is 5.
	vaddr := uintptr(3)<<30 | uintptr(1)<<21 | uintptr(5)<<12

	specs := []struct {
		level  int
		expect int
	}{
		{0, 3},
		{1, 1},
		{2, 5},
	}
	for _, spec := range specs {
		idx, ok := h.Index(vaddr, spec.level)
		if !ok {
			t.Fatalf("level %d: Index reported out of range", spec.level)
		}
		if idx != spec.expect {
			t.Errorf("level %d: expected index %d, got %d", spec.level, spec.expect, idx)
		}
	}

	if _, ok := h.Index(vaddr, pageLevels); ok {
		t.Errorf("expected Index to reject out-of-range level %d", pageLevels)
	}
}

func TestSizeAtMatchesWorkedExample(t *testing.T) {
	h := New(hal.MemoryInfo{})

	size, ok := h.SizeAt(0)
	if !ok || size != 1*1024*1024*1024 {
		t.Errorf("expected size_at(0) = 1 GiB, got %d (ok=%v)", size, ok)
	}
}

func TestMapAndDereferenceRoundTrip(t *testing.T) {
	h := New(hal.MemoryInfo{})
	root := h.NewRoot()

	child := h.NewRoot() // borrow NewRoot to synthesize a second node's address
	root.MapPageTable(0, child.Ptr(), 0)

	entry := root.Entry(0)
	if !entry.Valid() || entry.IsLeaf() {
		t.Fatalf("expected a valid, non-leaf entry after MapPageTable")
	}
	if got := entry.PageTable(); got.Ptr() != child.Ptr() {
		t.Errorf("expected dereferenced table to be the one installed, got ptr 0x%x want 0x%x", got.Ptr(), child.Ptr())
	}
}

func TestMapFrameForUserSetsPermissionBits(t *testing.T) {
	h := New(hal.MemoryInfo{})
	root := h.NewRoot()

	root.MapFrameForUser(0, 0x2000, pageLevels-1, true, false, true)
	entry := root.Entry(0)
	if !entry.Valid() || !entry.IsLeaf() {
		t.Fatalf("expected a valid leaf entry")
	}

	raw := uintptr(root.(*pageTable).entries[0])
	if raw&flagExec == 0 || raw&flagRead == 0 {
		t.Errorf("expected exec and read bits to be set, got entry 0x%x", raw)
	}
	if raw&flagWrite != 0 {
		t.Errorf("expected write bit to be clear, got entry 0x%x", raw)
	}
}

func TestActiveTracksLastActivatedTable(t *testing.T) {
	h := New(hal.MemoryInfo{})
	root := h.NewRoot()

	if h.Active() != nil {
		t.Fatalf("expected no active table before Active() is called")
	}
	root.Active()
	if h.Active().Ptr() != root.Ptr() {
		t.Errorf("expected Active() to report the last-activated root")
	}
}
