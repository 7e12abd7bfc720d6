// Package heap implements the kernel heap bootstrapper: a buddy-style
// allocator, serialized by a single spinlock, that services
// arbitrarily-aligned allocation requests (most importantly, page-aligned
// PageTable nodes) out of one contiguous physical range.
//
// The free-list-per-order design generalizes a bitmap-sized-per-order
// physical frame allocator from fixed page-sized blocks to arbitrary byte
// ranges, with the split-on-alloc/merge-on-dealloc logic a buddy allocator
// needs, guarded by kernel/sync.Spinlock.
package heap

import (
	"github.com/MORK-core/mork-mm/kernel/mem"
	"github.com/MORK-core/mork-mm/kernel/sync"
)

const (
	// minBlockOrder is the order of the smallest block the allocator will
	// ever hand out (1<<minBlockOrder bytes). Kernel data structures are
	// rarely smaller than this, and a finer granularity would only grow
	// the free-list array without buying anything the core needs.
	minBlockOrder = 4 // 16 bytes

	// numOrders gives at least 32 order levels, which bounds the largest
	// single allocation at 1<<(minBlockOrder+numOrders-1) bytes -- far
	// beyond anything this core ever requests (a PageTable node is one
	// 4 KiB page).
	numOrders = 32
)

// Layout describes the size and alignment of a requested allocation,
// mirroring Rust's core::alloc::Layout (the shape original_source/heap.rs
// is built against).
type Layout struct {
	Size  mem.Size
	Align mem.Size
}

// Heap is a buddy-system allocator over a single contiguous byte range.
// The zero value is not ready for use; call Init first.
type Heap struct {
	lock sync.Spinlock

	start, end  uintptr
	initialized bool
	freeList    [numOrders][]uintptr
}

// order returns the smallest order whose block size is >= size, clamped to
// at least minBlockOrder.
func order(size mem.Size) int {
	o := minBlockOrder
	block := mem.Size(1) << minBlockOrder
	for block < size {
		block <<= 1
		o++
	}
	return o
}

func blockSize(o int) uintptr {
	return uintptr(1) << uint(o)
}

// Init registers the byte range [start, end) with the allocator. It must be
// called exactly once, before the first allocation.
//
// start and end need not be aligned; Init rounds start up and end down to
// the allocator's minimum block size, discarding the unusable fringe. If
// the resulting range is too small to host even one minimum-sized block,
// the heap is left empty and every subsequent Alloc returns the null
// sentinel -- this is the documented too-small-range behavior, not an
// error, since the core has no error channel available this early in boot.
func (h *Heap) Init(start, end uintptr) {
	align := blockSize(minBlockOrder)
	start = (start + align - 1) &^ (align - 1)
	end = end &^ (align - 1)

	h.start, h.end = start, end
	h.initialized = true

	if end <= start {
		return
	}

	h.lock.Acquire()
	defer h.lock.Release()
	h.addRange(start, end)
}

// addRange splits [start, end) into maximal, naturally-aligned power-of-two
// blocks and pushes each onto its order's free list. Alignment is checked
// against the absolute address, not an offset from h.start, since a block
// handed out by Alloc must satisfy the caller's alignment in physical
// memory, not relative to wherever the heap happens to begin. This is the
// standard buddy_system_allocator seeding strategy: a range that is not
// itself a power of two is covered by the largest block that fits at each
// step, not a single oversized block.
func (h *Heap) addRange(start, end uintptr) {
	for start < end {
		remaining := end - start
		o := numOrders - 1 + minBlockOrder
		for o > minBlockOrder && (blockSize(o) > remaining || !alignedTo(start, blockSize(o))) {
			o--
		}
		h.pushFree(o, start)
		start += blockSize(o)
	}
}

func alignedTo(offset uintptr, align uintptr) bool {
	return offset&(align-1) == 0
}

func (h *Heap) pushFree(o int, addr uintptr) {
	h.freeList[o-minBlockOrder] = append(h.freeList[o-minBlockOrder], addr)
}

func (h *Heap) popFree(o int) (uintptr, bool) {
	idx := o - minBlockOrder
	list := h.freeList[idx]
	if len(list) == 0 {
		return 0, false
	}
	addr := list[len(list)-1]
	h.freeList[idx] = list[:len(list)-1]
	return addr, true
}

func (h *Heap) removeFree(o int, addr uintptr) bool {
	idx := o - minBlockOrder
	list := h.freeList[idx]
	for i, a := range list {
		if a == addr {
			list[i] = list[len(list)-1]
			h.freeList[idx] = list[:len(list)-1]
			return true
		}
	}
	return false
}

// Alloc returns a pointer satisfying layout's size and alignment, or the
// null sentinel (0) on exhaustion. Alignment is honoured up to at least one
// hardware page, which is required since PageTable nodes must be
// page-aligned.
func (h *Heap) Alloc(layout Layout) uintptr {
	need := layout.Size
	if layout.Align > need {
		need = layout.Align
	}
	wantOrder := order(need)
	if wantOrder >= numOrders+minBlockOrder {
		return 0
	}

	h.lock.Acquire()
	defer h.lock.Release()

	// find the smallest non-empty order at or above wantOrder
	o := wantOrder
	for o < numOrders+minBlockOrder {
		if _, ok := h.peek(o); ok {
			break
		}
		o++
	}
	if o >= numOrders+minBlockOrder {
		return 0
	}

	addr, _ := h.popFree(o)

	// split down to wantOrder, pushing each freed buddy half
	for o > wantOrder {
		o--
		buddyAddr := addr + blockSize(o)
		h.pushFree(o, buddyAddr)
	}

	return addr
}

func (h *Heap) peek(o int) (uintptr, bool) {
	idx := o - minBlockOrder
	list := h.freeList[idx]
	if len(list) == 0 {
		return 0, false
	}
	return list[len(list)-1], true
}

// Dealloc releases a block previously returned by Alloc with an identical
// layout, merging it with its buddy whenever possible. Double-free,
// free-of-foreign-pointer and mismatched-layout are undefined behavior at
// this layer -- the caller (the page-table mutator) is trusted to pass back
// exactly what it received.
func (h *Heap) Dealloc(ptr uintptr, layout Layout) {
	if ptr == 0 {
		return
	}

	need := layout.Size
	if layout.Align > need {
		need = layout.Align
	}
	o := order(need)

	h.lock.Acquire()
	defer h.lock.Release()

	for o < numOrders+minBlockOrder-1 {
		buddyAddr := h.buddyOf(ptr, o)
		if !h.removeFree(o, buddyAddr) {
			break
		}
		if buddyAddr < ptr {
			ptr = buddyAddr
		}
		o++
	}

	h.pushFree(o, ptr)
}

// buddyOf returns the absolute address of ptr's buddy at order o: flipping
// bit o of an address that is itself aligned to 2*blockSize(o) yields
// exactly the other half of the block it was split from.
func (h *Heap) buddyOf(ptr uintptr, o int) uintptr {
	return ptr ^ blockSize(o)
}
