package vmm

import (
	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/kernel/mmerr"
)

// BuildKernelWindow constructs the kernel's own root directory and installs
// an identity-plus-offset mapping of all installed RAM at level-0
// superpages: every physical page of RAM becomes addressable at
// physical+KernelOffset. No mapping is installed at the physical address
// itself.
//
// It relies on map_kernel's unconditional-write behaviour, looping
// map_kernel over every level-0-sized slot up to the memory end the HAL
// reports. The loop always succeeds: a fresh root has no populated
// ancestors for map_kernel to collide with.
func BuildKernelWindow(h hal.HAL) (hal.PageTable, *mmerr.Error) {
	info, err := h.GetMemoryInfo()
	if err != nil {
		return nil, mmerr.New(mmerr.InvalidParam, module, "map_kernel_window: "+err.Error())
	}

	superpage, ok := h.SizeAt(0)
	if !ok {
		panic("vmm: HAL reported no size for level 0")
	}

	root := h.NewRoot()
	m := Wrap(h, nil, root)
	offset := h.KernelOffset()

	for paddr := uintptr(0); paddr < info.MemoryEnd; paddr += uintptr(superpage) {
		if _, kerr := m.MapKernel(paddr+offset, paddr); kerr != nil {
			return nil, kerr
		}
	}

	return root, nil
}
