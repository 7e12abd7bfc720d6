// Package simhal is a software HAL used by the page-table mutator's tests
// and by any host-side simulation of the boot path. It implements a
// 3-level tree with 512 entries per node, a page level count and address
// layout (size_at(0) = 1 GiB, kernel offset 0xffff_ffc0_0000_0000) chosen
// to match a textbook long-mode-style three-level paging scheme, small
// enough to reason about by hand in a test.
//
// The bit-packed entry format (a single uintptr carrying a present bit, a
// leaf bit, permission bits and a page-aligned physical address in the
// high bits) follows the shape of a classic x86 page-table entry.
package simhal

import (
	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/kernel/errors"
	"github.com/MORK-core/mork-mm/kernel/mem"
	"github.com/MORK-core/mork-mm/kernel/sync"
)

const (
	entriesPerTable = 512
	pageLevels      = 3

	flagPresent = 1 << 0
	flagLeaf    = 1 << 1
	flagWrite   = 1 << 2
	flagExec    = 1 << 3
	flagRead    = 1 << 4
	addrMask    = ^uintptr(0xfff)
)

const kernelOffset = 0xffff_ffc0_0000_0000

// sizeAtLevel[i] is the number of bytes one slot at level i spans: 1 GiB,
// then 2 MiB, then 4 KiB.
var sizeAtLevel = [pageLevels]mem.Size{
	1 * mem.Gb,
	2 * mem.Mb,
	mem.PageSize,
}

// indexShift[i] is the bit position of the index field for level i.
var indexShift = [pageLevels]uint{30, 21, 12}

type pageTableEntry uintptr

func (e pageTableEntry) Valid() bool { return uintptr(e)&flagPresent != 0 }
func (e pageTableEntry) IsLeaf() bool {
	return uintptr(e)&flagLeaf != 0
}
func (e pageTableEntry) addr() uintptr { return uintptr(e) & addrMask }

// HAL is an in-memory simulation of a hardware HAL, suitable for unit tests
// and for a hosted boot-path rehearsal.
type HAL struct {
	lock sync.Spinlock

	reg     map[uintptr]*pageTable
	next    uintptr // synthetic physical-address cursor for NewRoot
	active  *pageTable
	memInfo hal.MemoryInfo
}

// New returns a ready-to-use simulated HAL. memInfo is returned verbatim by
// GetMemoryInfo, letting callers rehearse the boot path against whatever
// layout a test wants.
func New(memInfo hal.MemoryInfo) *HAL {
	return &HAL{
		reg:     make(map[uintptr]*pageTable),
		next:    0x1000_0000,
		memInfo: memInfo,
	}
}

func (h *HAL) PageLevels() int       { return pageLevels }
func (h *HAL) KernelOffset() uintptr { return kernelOffset }

// GetMemoryInfo returns the layout supplied to New, or
// errors.ErrInvalidParamValue if it describes no usable free range --
// callers such as mm.Init treat a failure here as a boot-time abort rather
// than a panic, since no allocator is available yet to build a richer
// error.
func (h *HAL) GetMemoryInfo() (hal.MemoryInfo, error) {
	if h.memInfo.MemoryEnd <= h.memInfo.FreeStart {
		return hal.MemoryInfo{}, errors.ErrInvalidParamValue
	}
	return h.memInfo, nil
}

func (h *HAL) Index(vaddr uintptr, level int) (int, bool) {
	if level < 0 || level >= pageLevels {
		return 0, false
	}
	idx := int((vaddr >> indexShift[level]) & (entriesPerTable - 1))
	return idx, true
}

func (h *HAL) SizeAt(level int) (mem.Size, bool) {
	if level < 0 || level >= pageLevels {
		return 0, false
	}
	return sizeAtLevel[level], true
}

func (h *HAL) NewRoot() hal.PageTable {
	h.lock.Acquire()
	defer h.lock.Release()

	addr := h.next
	h.next += uintptr(mem.PageSize)
	pt := &pageTable{hal: h, addr: addr}
	h.reg[addr] = pt
	return pt
}

func (h *HAL) PageTableAt(addr uintptr) hal.PageTable {
	h.lock.Acquire()
	defer h.lock.Release()

	if pt, ok := h.reg[addr]; ok {
		return pt
	}
	pt := &pageTable{hal: h, addr: addr}
	h.reg[addr] = pt
	return pt
}

// Active returns the directory last installed via (hal.PageTable).Active,
// or nil if none has been activated yet. Test-only accessor.
func (h *HAL) Active() hal.PageTable {
	if h.active == nil {
		return nil
	}
	return h.active
}

type pageTable struct {
	hal     *HAL
	addr    uintptr
	entries [entriesPerTable]pageTableEntry
}

func (t *pageTable) Ptr() uintptr { return t.addr }

func (t *pageTable) Entry(i int) hal.PageTableEntry {
	return entryView{h: t.owner(), e: t.entries[i]}
}

// owner recovers the HAL that registered this table so entryView.PageTable
// can resolve through PageTableAt. NewRoot/PageTableAt always populate it;
// this indirection only exists because HAL.NewRoot can't pass itself into
// the literal before the pointer exists.
func (t *pageTable) owner() *HAL {
	return t.hal
}

type entryView struct {
	h *HAL
	e pageTableEntry
}

func (v entryView) Valid() bool   { return v.e.Valid() }
func (v entryView) IsLeaf() bool  { return v.e.IsLeaf() }
func (v entryView) Addr() uintptr { return v.e.addr() }
func (v entryView) PageTable() hal.PageTable {
	return v.h.PageTableAt(v.e.addr())
}

func (t *pageTable) set(level, i int, paddr uintptr, leaf bool, write, exec, read bool) {
	e := uintptr(paddr) & addrMask
	e |= flagPresent
	if leaf {
		e |= flagLeaf
		if write {
			e |= flagWrite
		}
		if exec {
			e |= flagExec
		}
		if read {
			e |= flagRead
		}
	}
	t.entries[i] = pageTableEntry(e)
}

func (t *pageTable) MapFrameForKernel(vaddr, paddr uintptr, level int) {
	i, _ := t.owner().Index(vaddr, level)
	t.set(level, i, paddr, true, true, true, true)
}

func (t *pageTable) MapFrameForUser(vaddr, paddr uintptr, level int, exec, write, read bool) {
	i, _ := t.owner().Index(vaddr, level)
	t.set(level, i, paddr, true, write, exec, read)
}

func (t *pageTable) MapPageTable(vaddr, paddr uintptr, level int) {
	i, _ := t.owner().Index(vaddr, level)
	t.set(level, i, paddr, false, false, false, false)
}

func (t *pageTable) UnmapFrame(vaddr uintptr, level int) {
	i, _ := t.owner().Index(vaddr, level)
	t.entries[i] = 0
}

func (t *pageTable) UnmapPageTable(vaddr uintptr, level int) {
	i, _ := t.owner().Index(vaddr, level)
	t.entries[i] = 0
}

func (t *pageTable) Active() {
	h := t.owner()
	h.lock.Acquire()
	h.active = t
	h.lock.Release()
}
