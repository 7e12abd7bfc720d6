// Package cpu exposes the small set of architecture primitives the memory
// core needs: halting the processor, flushing TLB entries and swapping the
// active root page table. Everything else about the CPU (interrupts,
// exceptions, scheduling) belongs to the HAL and is out of scope here.
package cpu

// Halt stops instruction execution until the next interrupt.
func Halt()

// FlushTLBEntry flushes a single TLB entry for the given virtual address.
// Callers are responsible for invoking this after any unmap, or after
// installing a mapping into an already-active root.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT installs the page table at the given physical address as the
// MMU root and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active root page
// table.
func ActivePDT() uintptr
