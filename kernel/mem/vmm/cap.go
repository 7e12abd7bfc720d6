package vmm

import "github.com/MORK-core/mork-mm/hal"

// capShift is the shift factor a capability's stored value is scaled by:
// every PageTable root is page-aligned, so a capability need only record
// the address's page number.
const capShift = 12

// PageTableFromCap decodes a capability handle into the PageTable it
// names. The capability layer above this package is the trust boundary: by
// the time a handle reaches here it has already been validated, so this
// performs no bounds or permission checking of its own -- it is a pure
// reinterpretation of an integer as a physical address, exactly like
// PageTableAt itself.
func PageTableFromCap(h hal.HAL, cap uintptr) hal.PageTable {
	return h.PageTableAt(cap << capShift)
}

// CapFromPageTable encodes a root's physical address back into the
// capability representation PageTableFromCap decodes, the inverse used by
// whatever layer is responsible for minting capabilities in the first
// place.
func CapFromPageTable(pt hal.PageTable) uintptr {
	return pt.Ptr() >> capShift
}
