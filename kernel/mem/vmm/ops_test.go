package vmm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/hal/simhal"
	"github.com/MORK-core/mork-mm/kernel/mem"
	"github.com/MORK-core/mork-mm/kernel/mem/heap"
	"github.com/MORK-core/mork-mm/kernel/mmerr"
)

func addrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

func newMutator(t *testing.T) (*Mutator, *simhal.HAL, *heap.Heap) {
	t.Helper()
	h := simhal.New(hal.MemoryInfo{})

	var hp heap.Heap
	const want = 64 * int(mem.PageSize)
	backing := make([]byte, want+int(mem.PageSize))
	base := alignUpToPage(backing)
	hp.Init(base, base+uintptr(want))

	return New(h, &hp), h, &hp
}

func TestMapPageTableThenMapFrame(t *testing.T) {
	m, _, _ := newMutator(t)

	const vaddr = uintptr(3)<<30 | uintptr(1)<<21

	// a 3-level tree needs a directory installed at every level before
	// vaddr's level-2 leaf; build both by hand rather than through
	// map_root_task_frame to exercise map_page_table directly.
	level, err := m.MapPageTable(vaddr, 0x500000)
	require.Nil(t, err)
	require.Equal(t, 1, level)

	level, err = m.MapPageTable(vaddr, 0x510000)
	require.Nil(t, err)
	require.Equal(t, 2, level)

	ferr := m.MapFrame(vaddr, 0x600000, false, true, true)
	require.Nil(t, ferr)

	// mapping the same frame twice must refuse.
	ferr = m.MapFrame(vaddr, 0x600000, false, true, true)
	require.NotNil(t, ferr)
	require.Equal(t, mmerr.MappedAlready, ferr.Code)
}

func TestMapFrameWithoutPageTableMisses(t *testing.T) {
	m, _, _ := newMutator(t)

	const vaddr = uintptr(1)<<30 | uintptr(2)<<21
	err := m.MapFrame(vaddr, 0x700000, false, true, true)
	require.NotNil(t, err)
	require.Equal(t, mmerr.PageTableMiss, err.Code)
}

func TestUnmapFrameRoundTrip(t *testing.T) {
	m, _, _ := newMutator(t)

	const vaddr = uintptr(2)<<30 | uintptr(4)<<21
	require.Nil(t, m.MapRootTaskFrame(vaddr, 0x900000, false, true, true))

	require.Nil(t, m.UnmapFrame(vaddr))
	require.NotNil(t, m.UnmapFrame(vaddr), "unmapping an already-absent frame must fail")
}

func TestMapRootTaskFrameBuildsMissingDirectories(t *testing.T) {
	m, _, _ := newMutator(t)

	const vaddr = uintptr(5)<<30 | uintptr(7)<<21 | uintptr(3)<<12
	err := m.MapRootTaskFrame(vaddr, 0xa00000, true, true, true)
	require.Nil(t, err)

	// now that every directory on the path exists, a direct map_frame of
	// a neighbouring page in the same last-level directory must succeed
	// without PageTableMiss.
	neighbour := vaddr + uintptr(mem.PageSize)
	ferr := m.MapFrame(neighbour, 0xb00000, true, true, true)
	require.Nil(t, ferr)
}

func TestMapRootTaskFrameIsIdempotentOnRepeatMapping(t *testing.T) {
	m, _, _ := newMutator(t)

	const vaddr = uintptr(7)<<30 | uintptr(2)<<21 | uintptr(1)<<12
	require.Nil(t, m.MapRootTaskFrame(vaddr, 0xe00000, true, true, true))

	// mapping the same vaddr again is not an error: a loader laying out a
	// task image may call this repeatedly, and a repeat is a no-op warning
	// rather than a failure.
	require.Nil(t, m.MapRootTaskFrame(vaddr, 0xe00000, true, true, true))
}

func TestMapRootTaskFrameReturnsOutOfMemoryOnExhaustion(t *testing.T) {
	h := simhal.New(hal.MemoryInfo{})
	var hp heap.Heap
	hp.Init(0x2000, 0x2000) // empty heap, every Alloc fails

	m := New(h, &hp)
	const vaddr = uintptr(9)<<30 | uintptr(1)<<21
	err := m.MapRootTaskFrame(vaddr, 0xc00000, true, true, true)
	require.NotNil(t, err)
	require.Equal(t, mmerr.OutOfMemory, err.Code)
}

func TestUnmapPageTableValidatesPaddr(t *testing.T) {
	m, _, _ := newMutator(t)

	const vaddr = uintptr(4)<<30
	level, err := m.MapPageTable(vaddr, 0xd00000)
	require.Nil(t, err)

	require.NotNil(t, m.UnmapPageTable(vaddr, 0xdeadb000, level-1), "wrong paddr must be rejected")
	require.Nil(t, m.UnmapPageTable(vaddr, 0xd00000, level-1))
}

func TestUnmapPageTableRefusesWhenLeafExistsOnPath(t *testing.T) {
	m, _, _ := newMutator(t)

	const vaddr = uintptr(6) << 30
	size0, _ := m.hal.SizeAt(0)
	_, err := m.MapKernel(vaddr, vaddr-uintptr(size0))
	require.Nil(t, err)

	// a bounded walk toward level 1 hits the level-0 leaf before it ever
	// reaches the requested depth.
	uerr := m.UnmapPageTable(vaddr, 0x123000, 1)
	require.NotNil(t, uerr)
	require.Equal(t, mmerr.MappedAlready, uerr.Code)
}

func TestMapKernelRejectsMisalignedAddresses(t *testing.T) {
	m, _, _ := newMutator(t)

	_, err := m.MapKernel(1, 0)
	require.NotNil(t, err)
	require.Equal(t, mmerr.InvalidParam, err.Code)
}

func alignUpToPage(buf []byte) uintptr {
	addr := addrOf(buf)
	return (addr + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
}
