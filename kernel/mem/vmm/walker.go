// Package vmm implements the page-table mutator and walker: the directed
// graph of PageTable nodes is never traversed directly by callers, only
// through the operations this package exposes.
//
// The walk primitive (search) is a straight loop over levels that stops
// the instant it finds either a leaf or a missing slot, dereferencing each
// intermediate directory through the HAL rather than through an
// architecture-specific self-mapping trick -- that keeps it portable
// across whatever HAL is linked in, at the cost of one indirect call per
// level instead of a fixed-offset pointer arithmetic trick.
package vmm

import (
	"github.com/MORK-core/mork-mm/hal"
)

// SearchResult is the outcome of walking the tree toward a virtual
// address.
type SearchResult struct {
	// Level is the depth at which the walk stopped.
	Level int
	// Node is the directory at Level holding (or that would hold) the
	// slot for the searched address.
	Node hal.PageTable
	// Found reports whether the walk stopped on a populated leaf
	// (true) or an absent slot / the level ceiling (false).
	Found bool
}

// Walker holds the state needed to resume a walk: the HAL contract and the
// starting node.
type Walker struct {
	hal  hal.HAL
	root hal.PageTable
}

// NewWalker returns a Walker rooted at root.
func NewWalker(h hal.HAL, root hal.PageTable) *Walker {
	return &Walker{hal: h, root: root}
}

// Search exposes the walk primitive read-only, for callers outside this
// package that need to inspect the tree without mutating it (address
// translation, debugging).
func (w *Walker) Search(vaddr uintptr, maxLevel int) SearchResult {
	return w.search(vaddr, maxLevel)
}

// search descends from the walker's root toward vaddr, stopping at the
// first of three conditions:
//
//  1. the current depth has reached maxLevel without finding a leaf:
//     Missing(maxLevel, node-at-maxLevel)
//  2. the slot at the current depth is absent: Missing(level, node)
//  3. the slot at the current depth is a populated leaf: Found(level, node)
//
// Descending through a populated, non-leaf slot moves to the child node and
// repeats at level+1. A HAL reporting an out-of-range level for an
// in-bounds depth is an internal contract violation and panics rather than
// propagating a sentinel error, since no caller can recover from the HAL
// disagreeing with itself about its own tree depth.
func (w *Walker) search(vaddr uintptr, maxLevel int) SearchResult {
	level := 0
	node := w.root

	for {
		if level >= maxLevel {
			return SearchResult{Level: level, Node: node, Found: false}
		}

		idx, ok := w.hal.Index(vaddr, level)
		if !ok {
			panic("vmm: HAL reported an out-of-range level during a walk within bounds")
		}

		entry := node.Entry(idx)
		if !entry.Valid() {
			return SearchResult{Level: level, Node: node, Found: false}
		}
		if entry.IsLeaf() {
			return SearchResult{Level: level, Node: node, Found: true}
		}

		node = entry.PageTable()
		level++
	}
}
