package vmm

import (
	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/kernel/kfmt/early"
	"github.com/MORK-core/mork-mm/kernel/mem"
	"github.com/MORK-core/mork-mm/kernel/mem/heap"
	"github.com/MORK-core/mork-mm/kernel/mmerr"
)

// Mutator is the single entry point for changing a page-table tree. It
// pairs a HAL with the kernel heap the HAL's intermediate directories are
// carved out of; every map that needs a fresh directory goes through
// heap.Alloc, never through hal.NewRoot (which is reserved for roots a
// caller owns outright).
type Mutator struct {
	hal  hal.HAL
	heap *heap.Heap
	root hal.PageTable
}

// New creates a Mutator around a freshly allocated, empty root directory.
func New(h hal.HAL, hp *heap.Heap) *Mutator {
	return &Mutator{hal: h, heap: hp, root: h.NewRoot()}
}

// Wrap builds a Mutator around an already-existing root, such as one
// decoded by PageTableFromCap.
func Wrap(h hal.HAL, hp *heap.Heap, root hal.PageTable) *Mutator {
	return &Mutator{hal: h, heap: hp, root: root}
}

// Root returns the directory this mutator operates on, for activation or
// for embedding in a capability.
func (m *Mutator) Root() hal.PageTable { return m.root }

const module = "vmm"

// vaddrMask truncates a virtual address to the bits a level-0 kernel
// mapping actually uses; callers above this package may pass in a wider
// address and rely on the truncation rather than rejecting it.
const vaddrMask = (1 << 39) - 1

func invalidParam(msg string) *mmerr.Error {
	return mmerr.New(mmerr.InvalidParam, module, msg)
}

// MapKernel installs an unconditional level-0 leaf mapping vaddr to paddr
// with kernel permissions. It is used only while building the kernel
// window, against a tree with no populated ancestors, and so performs no
// walk: there is nothing to find missing or already mapped at a brand new
// root.
func (m *Mutator) MapKernel(vaddr, paddr uintptr) (mem.Size, *mmerr.Error) {
	size, ok := m.hal.SizeAt(0)
	if !ok {
		panic("vmm: HAL reported no size for level 0")
	}
	if !mem.IsAligned(vaddr, size) || !mem.IsAligned(paddr, size) {
		return 0, invalidParam("map_kernel: vaddr/paddr must be aligned to the level-0 slot size")
	}
	m.root.MapFrameForKernel(vaddr&vaddrMask, paddr, 0)
	return size, nil
}

// MapPageTable installs an already-allocated directory at paddr as an
// intermediate node on the path to vaddr. It does not allocate; the caller
// owns paddr's lifetime.
func (m *Mutator) MapPageTable(vaddr, paddr uintptr) (int, *mmerr.Error) {
	if !mem.IsAligned(vaddr, mem.PageSize) || !mem.IsAligned(paddr, mem.PageSize) {
		return 0, invalidParam("map_page_table: vaddr/paddr must be page-aligned")
	}

	levels := m.hal.PageLevels()
	res := NewWalker(m.hal, m.root).search(vaddr, levels)
	if res.Found {
		return 0, mmerr.New(mmerr.MappedAlready, module, "map_page_table: a leaf already exists on the path")
	}
	if res.Level == levels-1 {
		return 0, mmerr.New(mmerr.MappedAlready, module, "map_page_table: the deepest level only ever holds leaves")
	}

	res.Node.MapPageTable(vaddr, paddr, res.Level)
	return res.Level + 1, nil
}

// MapFrame installs a leaf mapping at the deepest level. Every intermediate
// directory on the path must already exist; PageTableMiss reports that it
// does not.
func (m *Mutator) MapFrame(vaddr, paddr uintptr, exec, write, read bool) *mmerr.Error {
	if !mem.IsAligned(vaddr, mem.PageSize) || !mem.IsAligned(paddr, mem.PageSize) {
		return invalidParam("map_frame: vaddr/paddr must be page-aligned")
	}

	levels := m.hal.PageLevels()
	res := NewWalker(m.hal, m.root).search(vaddr, levels)
	if res.Found {
		return mmerr.New(mmerr.MappedAlready, module, "map_frame: a leaf is already installed at vaddr")
	}
	if res.Level != levels-1 {
		return mmerr.New(mmerr.PageTableMiss, module, "map_frame: an intermediate directory is missing on the path")
	}

	res.Node.MapFrameForUser(vaddr, paddr, res.Level, exec, write, read)
	return nil
}

// UnmapFrame clears a leaf mapping.
func (m *Mutator) UnmapFrame(vaddr uintptr) *mmerr.Error {
	if !mem.IsAligned(vaddr, mem.PageSize) {
		return invalidParam("unmap_frame: vaddr must be page-aligned")
	}

	levels := m.hal.PageLevels()
	res := NewWalker(m.hal, m.root).search(vaddr, levels)
	if !res.Found {
		return invalidParam("unmap_frame: no leaf is mapped at vaddr")
	}

	res.Node.UnmapFrame(vaddr, res.Level)
	return nil
}

// UnmapPageTable clears an intermediate directory entry, provided the
// caller's paddr matches what is actually installed there. A leaf found
// anywhere on the path before reaching level refuses the unmap: the caller
// must unmap the frame first.
//
// The walk is bounded by level rather than the tree's full depth, so a
// missing ancestor above level reports the level and node it actually
// stopped at rather than the caller's intended one -- the level/node
// duality the walk's result type can express but not disambiguate.
func (m *Mutator) UnmapPageTable(vaddr, paddr uintptr, level int) *mmerr.Error {
	if !mem.IsAligned(vaddr, mem.PageSize) || !mem.IsAligned(paddr, mem.PageSize) {
		return invalidParam("unmap_page_table: vaddr/paddr must be page-aligned")
	}

	res := NewWalker(m.hal, m.root).search(vaddr, level)
	if res.Found {
		return mmerr.New(mmerr.MappedAlready, module, "unmap_page_table: a leaf exists below; unmap_frame it first")
	}

	idx, ok := m.hal.Index(vaddr, res.Level)
	if !ok {
		panic("vmm: HAL reported an out-of-range level for a walk result")
	}
	entry := res.Node.Entry(idx)
	if !entry.Valid() || entry.IsLeaf() {
		return invalidParam("unmap_page_table: no directory is installed at the resolved slot")
	}
	if entry.Addr() != paddr {
		return invalidParam("unmap_page_table: paddr does not match the installed directory")
	}

	res.Node.UnmapPageTable(vaddr, res.Level)
	return nil
}

// MapRootTaskFrame maps a frame into a fresh task's address space,
// allocating and linking in whatever intermediate directories are missing
// along the way. Unlike MapFrame, it never returns PageTableMiss -- it
// builds the path instead.
//
// When the kernel heap is exhausted mid-walk, this reports OutOfMemory
// rather than leaving a half-built path installed, since a partially linked
// tree would be indistinguishable from a successful map on the next walk.
//
// A vaddr that is already mapped is not an error: this is the idempotent
// entry point a loader calls repeatedly while laying out a task image, so a
// repeat mapping is logged as a warning and treated as success rather than
// rejected.
func (m *Mutator) MapRootTaskFrame(vaddr, paddr uintptr, exec, write, read bool) *mmerr.Error {
	if !mem.IsAligned(vaddr, mem.PageSize) || !mem.IsAligned(paddr, mem.PageSize) {
		return invalidParam("map_root_task_frame: vaddr/paddr must be page-aligned")
	}

	levels := m.hal.PageLevels()
	res := NewWalker(m.hal, m.root).search(vaddr, levels)
	if res.Found {
		early.Printf("vmm: map_root_task_frame: vaddr=%x has already been mapped\n", vaddr)
		return nil
	}

	node, level := res.Node, res.Level

	// allocate every missing directory up front, so that exhaustion is
	// reported before anything has been linked into the tree.
	layout := heap.Layout{Size: mem.PageSize, Align: mem.PageSize}
	var ptrs []uintptr
	for l := level; l < levels-1; l++ {
		ptr := m.heap.Alloc(layout)
		if ptr == 0 {
			for _, p := range ptrs {
				m.heap.Dealloc(p, layout)
			}
			return mmerr.New(mmerr.OutOfMemory, module, "map_root_task_frame: kernel heap exhausted while linking a directory")
		}
		ptrs = append(ptrs, ptr)
	}

	for _, ptr := range ptrs {
		// the heap hands back raw, possibly stale bytes from a prior
		// allocation; a fresh directory must start with every slot
		// reading as invalid, so zero it before it is ever dereferenced
		// as a PageTable.
		mem.Memset(ptr, 0, mem.PageSize)
		phys := ptr - m.hal.KernelOffset()
		node.MapPageTable(vaddr, phys, level)
		node = m.hal.PageTableAt(phys)
		level++
	}

	node.MapFrameForUser(vaddr, paddr, level, exec, write, read)
	return nil
}
