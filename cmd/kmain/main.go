// Command kmain is the kernel's boot entrypoint. It wires the pieces
// together in order: a HAL reports the memory layout, the page-table
// mutator builds the kernel window and hands the remainder of RAM to the
// heap bootstrapper, and the new root is activated.
//
// A concrete, bare-metal HAL (console output, multiboot parsing, the
// native page-table entry format) is out of scope for this module: this
// binary boots against hal/simhal, the software HAL used throughout this
// module's own tests, so the control flow below compiles and runs
// standalone rather than depending on a platform package this repository
// does not own. A real boot loader would supply its own hal.HAL here in
// main's place; the rest of the call graph is unchanged either way, which
// is the point of keeping the contract in hal.HAL at all.
package main

import (
	"github.com/MORK-core/mork-mm/hal"
	"github.com/MORK-core/mork-mm/hal/simhal"
	"github.com/MORK-core/mork-mm/kernel/cpu"
	"github.com/MORK-core/mork-mm/kernel/kfmt/early"
	"github.com/MORK-core/mork-mm/mm"
)

// multibootInfoPtr stands in for the pointer a real rt0 stub would pass in
// from the boot loader. It is read by whatever platform HAL replaces
// simhal.New below; kept here, unused by simhal, purely to document the
// shape a real entrypoint takes (matches boot.go's pre-rewrite signature).
var multibootInfoPtr uintptr

func main() {
	early.Printf("kmain: cpu features=%s\n", cpu.Features())

	h := simhal.New(hal.MemoryInfo{
		FreeStart: 16 << 20,
		KernelEnd: 16 << 20,
		MemoryEnd: 256 << 20,
	})

	_, err := mm.Init(h)
	if err != nil {
		early.Printf("kmain: mm.Init failed: module=%s code=%s: %s\n", err.Module, err.Code.String(), err.Message)
		cpu.Halt()
		return
	}

	early.Printf("kmain: memory core initialized, kernel window active\n")
	cpu.Halt()
}
