package mm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/hal/simhal"
	"github.com/MORK-core/mork-mm/kernel/mem/vmm"
)

func testInfo() hal.MemoryInfo {
	const gib = 1 << 30
	return hal.MemoryInfo{
		FreeStart: 2 * gib,
		KernelEnd: 2 * gib,
		MemoryEnd: 8 * gib,
	}
}

func TestInitActivatesKernelWindow(t *testing.T) {
	h := simhal.New(testInfo())
	_, err := Init(h)
	require.Nil(t, err)
	require.NotNil(t, h.Active(), "Init must activate the kernel root")

	// the kernel window must cover RAM below FreeStart at its offset
	// address, since that's where kmain's own image lives.
	offset := h.KernelOffset()
	w := vmm.NewWalker(h, h.Active())
	res := w.Search(offset, 1)
	require.True(t, res.Found, "expected physical page 0 to be mapped at its kernel-offset address")
}

func TestTaskAddressSpaceRoundTrip(t *testing.T) {
	h := simhal.New(testInfo())
	m, err := Init(h)
	require.Nil(t, err)

	task, cap := m.NewTaskAddressSpace()
	const vaddr = uintptr(1) << 30
	require.Nil(t, task.MapRootTaskFrame(vaddr, 0x700000, true, false, true))

	decoded := m.TaskAddressSpaceFromCap(cap)
	require.Equal(t, task.Root().Ptr(), decoded.Root().Ptr())

	// mapping the same frame again through the decoded handle observes
	// the same tree, so it must refuse as already mapped.
	require.NotNil(t, decoded.MapFrame(vaddr, 0x700000, true, false, true))
}
