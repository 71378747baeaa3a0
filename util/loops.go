// Copyright 2025 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Dominators and loop structure for control-flow graphs.  This can't
// yet handle irreducible graphs.

package util

import (
	"slices"
)

// Cooper, Harvey and Kennedy's "A Simple, Fast Dominance Algorithm".
// Nodes not reachable from 'rootNode' are not reported.

func FindDominators[T comparable](rootNode T, succ func(T) []T, setResult func(T, T)) {
	nodes := []T{}
	indexes := map[T]int{}
	var findNodes func(node T)
	findNodes = func(node T) {
		indexes[node] = 1 // just a placeholder
		for _, child := range succ(node) {
			if _, found := indexes[child]; !found {
				findNodes(child)
			}
		}
		Push(&nodes, node)
	}
	findNodes(rootNode)
	for i, node := range nodes {
		indexes[node] = i
	}
	predecessors := make([][]int, len(nodes))
	// Walk the nodes in reverse postorder so that each node's first
	// predecessor is before it.
	for i := len(nodes) - 1; 0 <= i; i-- {
		for _, successor := range succ(nodes[i]) {
			index := indexes[successor]
			predecessors[index] = append(predecessors[index], i)
		}
	}
	// Nodes are indexed postorder, so the root has the highest index.
	root := len(nodes) - 1
	doms := make([]int, len(nodes))
	for i := range doms {
		doms[i] = -1
	}
	doms[root] = root
	changed := true
	for changed {
		changed = false
		for i := root - 1; 0 <= i; i-- {
			newIdom := -1
			for _, other := range predecessors[i] {
				if doms[other] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = other
					continue
				}
				for other != newIdom {
					for other < newIdom {
						other = doms[other]
					}
					for newIdom < other {
						newIdom = doms[newIdom]
					}
				}
			}
			if newIdom != -1 && doms[i] != newIdom {
				doms[i] = newIdom
				changed = true
			}
		}
	}
	for i, node := range nodes {
		setResult(node, nodes[doms[i]])
	}
}

//----------------------------------------------------------------

type loopBlockT struct {
	next     []*loopBlockT
	previous []*loopBlockT

	dominator  *loopBlockT
	loopHeader *loopBlockT // nil if not in a loop
	loopDepth  int

	// Only loop headers have these.
	backEdges  []*loopBlockT
	loopBlocks SetT[*loopBlockT] // all blocks in the loop
	loopParent *loopBlockT       // outer loop, if any
}

// This annotates 'theirBlocks' with:
//  - loopHeader: the header block for whatever loop the block is in
//                (for loop headers this points to itself)
//  - loopParent: the next outer loop, only set if this is a header
//  - loopDepth: loop nesting depth
// theirBlocks[0] must be the entry block.  The return value is a
// slice containing the loop headers.

func FindLoopBlocks[T any](
	theirBlocks []*T,
	next func(*T) []*T,
	setResult func(block *T, loopHeader *T, loopParent *T, loopDepth int)) []*T {

	if len(theirBlocks) == 0 {
		return nil
	}
	blocks := make([]*loopBlockT, len(theirBlocks))
	themToUs := map[*T]*loopBlockT{}
	usToThem := map[*loopBlockT]*T{}
	for i, theirs := range theirBlocks {
		block := &loopBlockT{loopBlocks: NewSet[*loopBlockT]()}
		blocks[i] = block
		themToUs[theirs] = block
		usToThem[block] = theirs
	}
	for i, block := range blocks {
		for _, theirs := range next(theirBlocks[i]) {
			ours := themToUs[theirs]
			Push(&block.next, ours)
			Push(&ours.previous, block)
		}
	}

	FindDominators(
		blocks[0],
		func(b *loopBlockT) []*loopBlockT { return b.next },
		func(b *loopBlockT, d *loopBlockT) {
			b.dominator = d
		})

	// Find loop headers by looking for edges whose head dominates
	// their tail.  All blocks on paths upwards from the tail to the
	// head are in the loop.
	loopHeaders := []*loopBlockT{}
	for _, block := range blocks {
		if block.dominator == nil {
			continue // unreachable
		}
		for _, n := range block.next {
			for dom := block; ; dom = dom.dominator {
				if n == dom {
					if len(n.backEdges) == 0 {
						Push(&loopHeaders, n)
					}
					Push(&n.backEdges, block)
					findLoopBlocks(n, block)
					break
				}
				if dom == blocks[0] {
					break
				}
			}
		}
	}

	// Sort loops from biggest to smallest, so that outer loops are
	// processed before inner loops and each loop ends up with its
	// proper depth and immediate parent.
	slices.SortStableFunc(loopHeaders,
		func(x, y *loopBlockT) int {
			return len(y.loopBlocks) - len(x.loopBlocks)
		})

	for _, header := range loopHeaders {
		header.loopDepth += 1
		header.loopParent = header.loopHeader
		header.loopHeader = header
		for child := range header.loopBlocks {
			child.loopHeader = header
			child.loopDepth = header.loopDepth
		}
	}

	for i, block := range blocks {
		setResult(
			theirBlocks[i],
			usToThem[block.loopHeader],
			usToThem[block.loopParent],
			block.loopDepth)
	}
	headers := make([]*T, len(loopHeaders))
	for i, header := range loopHeaders {
		headers[i] = usToThem[header]
	}
	return headers
}

// Walk up the 'previous' links from 'block' until you hit 'header',
// adding everything to 'header's loopBlocks.

func findLoopBlocks(header *loopBlockT, block *loopBlockT) {
	if header.loopBlocks.Contains(block) {
		return
	}
	header.loopBlocks.Add(block)
	if block == header {
		return
	}
	for _, prev := range block.previous {
		findLoopBlocks(header, prev)
	}
}
