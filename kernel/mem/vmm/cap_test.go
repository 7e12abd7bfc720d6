package vmm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/hal/simhal"
)

func TestCapRoundTrip(t *testing.T) {
	h := simhal.New(hal.MemoryInfo{})
	root := h.NewRoot()

	cap := CapFromPageTable(root)
	decoded := PageTableFromCap(h, cap)

	require.Equal(t, root.Ptr(), decoded.Ptr())
}
