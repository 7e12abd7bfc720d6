// Package hal defines the hardware-abstraction contract the memory core
// consumes. It deliberately knows nothing about any concrete architecture:
// memory-map discovery, the native page-table entry format, per-level
// index/size extraction and the kernel physical offset are all the HAL's
// responsibility. The core (kernel/mem/heap, kernel/mem/vmm) depends only
// on the interfaces below.
//
// This is the same narrow-boundary shape as kfmt/early.Sink: a small,
// swappable surface the rest of the kernel programs against, with the real
// implementation living on the other side of it.
package hal

import "github.com/MORK-core/mork-mm/kernel/mem"

// MemoryInfo is the memory layout the HAL reports at boot: the first free
// byte past the kernel image, the end of the kernel image itself, and the
// end of installed RAM.
type MemoryInfo struct {
	FreeStart uintptr
	KernelEnd uintptr
	MemoryEnd uintptr
}

// HAL is the hardware-abstraction contract the page-table mutator and the
// boot path depend on.
type HAL interface {
	// PageLevels returns the depth of the MMU tree (>= 2).
	PageLevels() int

	// KernelOffset returns the constant added to a physical address to
	// obtain its kernel-linear virtual address.
	KernelOffset() uintptr

	// GetMemoryInfo reports the memory layout discovered at boot.
	GetMemoryInfo() (MemoryInfo, error)

	// Index extracts the directory index for vaddr at the given level,
	// or reports false if level is out of range. A false result for an
	// in-range level is an internal invariant violation the core treats
	// as unreachable and panics on.
	Index(vaddr uintptr, level int) (int, bool)

	// SizeAt returns the number of bytes spanned by one slot at level,
	// or false if level is out of range.
	SizeAt(level int) (mem.Size, bool)

	// NewRoot allocates and zero-initializes a fresh, page-aligned root
	// directory. Used for the kernel root and for building the kernel
	// window locally before it is installed.
	NewRoot() PageTable

	// PageTableAt returns the PageTable node backed by the given
	// physical address, lazily constructing and zero-initializing one
	// if this is the first reference to that address.
	//
	// This is the Go stand-in for the "dereference a physical address
	// re-interpreted through KernelOffset as the next directory"
	// technique a real HAL implementation uses: the mutator never holds
	// unsafe.Pointers into HAL-owned memory, it only ever asks the HAL
	// to resolve an address into a node. Decoding a capability into a
	// PageTable is exactly this operation applied to a pre-validated
	// address, which is why it performs no validation of its own -- the
	// capability layer above this package is trusted to have already
	// checked the handle.
	PageTableAt(addr uintptr) PageTable
}

// PageTable is one directory node at any level of the MMU tree. Its
// storage is exactly one hardware page, aligned to one hardware page; the
// HAL is responsible for upholding that invariant for every node it hands
// back.
type PageTable interface {
	// Ptr returns the address identifying this node's storage. Callers
	// subtract KernelOffset from it before writing it into a parent
	// entry.
	Ptr() uintptr

	// Entry returns the current value of slot i.
	Entry(i int) PageTableEntry

	// MapFrameForKernel installs a leaf entry with the fixed kernel
	// permission set (present, read-write, no-user) at slot
	// Index(vaddr, level).
	MapFrameForKernel(vaddr, paddr uintptr, level int)

	// MapFrameForUser installs a leaf entry with the given permission
	// bits at slot Index(vaddr, level).
	MapFrameForUser(vaddr, paddr uintptr, level int, exec, write, read bool)

	// MapPageTable installs an intermediate entry pointing at paddr (a
	// HAL-PageTableAt-resolvable address) at slot Index(vaddr, level).
	MapPageTable(vaddr, paddr uintptr, level int)

	// UnmapFrame clears the slot at Index(vaddr, level), leaving it
	// invalid.
	UnmapFrame(vaddr uintptr, level int)

	// UnmapPageTable clears the slot at Index(vaddr, level), leaving it
	// invalid. Unlike UnmapFrame it is used to tear down an intermediate
	// entry; the HAL makes no distinction in storage, only the caller's
	// intent differs.
	UnmapPageTable(vaddr uintptr, level int)

	// Active installs this directory as the MMU root and flushes the
	// TLB.
	Active()
}

// PageTableEntry is one MMU slot.
type PageTableEntry interface {
	// Valid reports whether the slot is populated.
	Valid() bool

	// IsLeaf reports whether a valid slot maps a frame directly, as
	// opposed to pointing at a deeper directory. Meaningless if !Valid.
	IsLeaf() bool

	// PageTable dereferences a valid, non-leaf entry's physical address
	// into the PageTable it points at. Meaningless if !Valid || IsLeaf.
	PageTable() PageTable

	// Addr returns the raw physical address stored in the slot, whether
	// it names a frame or a child directory. Meaningless if !Valid.
	// Used when tearing down an intermediate directory, to verify the
	// caller's paddr matches what is actually installed before clearing
	// the slot.
	Addr() uintptr
}
