// Package mm is the exposed kernel memory-management API: the thin facade
// other subsystems and the boot path call into, wrapping the heap
// bootstrapper and the page-table mutator behind a single handle.
package mm

import (
	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/kernel/mem"
	"github.com/MORK-core/mork-mm/kernel/mem/heap"
	"github.com/MORK-core/mork-mm/kernel/mem/vmm"
	"github.com/MORK-core/mork-mm/kernel/mmerr"
)

// MM bundles the kernel heap with the mutator for the kernel's own root
// directory. Exactly one of these is expected to exist per running kernel;
// per-task address spaces are manipulated through their own vmm.Mutator,
// built with New's Heap and PageTableFromCap's decoded root.
type MM struct {
	hal  hal.HAL
	Heap *heap.Heap
	root *vmm.Mutator
}

// Init runs the boot-time sequence: build the kernel window over all
// installed RAM, hand the remainder of physical memory past the kernel
// image to the heap bootstrapper, then activate the new root.
func Init(h hal.HAL) (*MM, *mmerr.Error) {
	info, err := h.GetMemoryInfo()
	if err != nil {
		return nil, mmerr.New(mmerr.InvalidParam, "mm", "GetMemoryInfo: "+err.Error())
	}

	root, werr := vmm.BuildKernelWindow(h)
	if werr != nil {
		return nil, werr
	}

	var hp heap.Heap
	hp.Init(info.FreeStart, info.MemoryEnd)

	m := &MM{
		hal:  h,
		Heap: &hp,
		root: vmm.Wrap(h, &hp, root),
	}
	root.Active()
	return m, nil
}

// MapFrame installs a leaf mapping in the kernel's own address space.
func (m *MM) MapFrame(vaddr, paddr uintptr, exec, write, read bool) *mmerr.Error {
	return m.root.MapFrame(vaddr, paddr, exec, write, read)
}

// UnmapFrame clears a leaf mapping in the kernel's own address space.
func (m *MM) UnmapFrame(vaddr uintptr) *mmerr.Error {
	return m.root.UnmapFrame(vaddr)
}

// MapPageTable installs an already-allocated directory into the kernel's
// own address space.
func (m *MM) MapPageTable(vaddr, paddr uintptr) (int, *mmerr.Error) {
	return m.root.MapPageTable(vaddr, paddr)
}

// UnmapPageTable removes a directory from the kernel's own address space.
func (m *MM) UnmapPageTable(vaddr, paddr uintptr, level int) *mmerr.Error {
	return m.root.UnmapPageTable(vaddr, paddr, level)
}

// NewTaskAddressSpace builds a fresh, empty root for a new task and returns
// both a mutator bound to it and the capability used to name it elsewhere.
func (m *MM) NewTaskAddressSpace() (*vmm.Mutator, uintptr) {
	mut := vmm.New(m.hal, m.Heap)
	return mut, vmm.CapFromPageTable(mut.Root())
}

// TaskAddressSpaceFromCap decodes a capability minted by
// NewTaskAddressSpace back into a mutator.
func (m *MM) TaskAddressSpaceFromCap(cap uintptr) *vmm.Mutator {
	return vmm.Wrap(m.hal, m.Heap, vmm.PageTableFromCap(m.hal, cap))
}

// MapRootTaskFrame maps a frame into a task's address space, allocating
// whatever intermediate directories are missing on the path.
func MapRootTaskFrame(mut *vmm.Mutator, vaddr, paddr uintptr, exec, write, read bool) *mmerr.Error {
	return mut.MapRootTaskFrame(vaddr, paddr, exec, write, read)
}

// PageSize re-exports the architecture's page size for callers that only
// need the constant and not the rest of kernel/mem.
const PageSize = mem.PageSize
