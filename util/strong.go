// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

// Strongly connected components, found with Kosaraju's algorithm.
// Liveness uses these to solve the blocks of each loop together,
// successors first.  Block graphs can have long straight-line chains,
// so the searches use an explicit stack.

// Returns the components of the graph over 'nodes' in topological order:
// any edge between two components goes from an earlier one to a later
// one.  Edges to nodes not in 'nodes' are ignored.

func StronglyConnectedComponents[K comparable](nodes []K, edges func(K) []K) [][]K {
	index := make(map[K]int, len(nodes))
	for i, node := range nodes {
		index[node] = i
	}
	succs := make([][]int, len(nodes))
	preds := make([][]int, len(nodes))
	for i, node := range nodes {
		for _, next := range edges(node) {
			j, found := index[next]
			if found {
				succs[i] = append(succs[i], j)
				preds[j] = append(preds[j], i)
			}
		}
	}

	finished := make([]int, 0, len(nodes))
	seen := make([]bool, len(nodes))
	for i := range nodes {
		finished = depthFirst(i, succs, seen, finished)
	}

	clear(seen)
	result := [][]K{}
	members := []int{}
	for i := len(finished) - 1; 0 <= i; i-- {
		members = depthFirst(finished[i], preds, seen, members[:0])
		if len(members) == 0 {
			continue
		}
		component := make([]K, len(members))
		for j, member := range members {
			component[j] = nodes[member]
		}
		result = append(result, component)
	}
	return result
}

// Appends the unseen nodes reachable from 'start' to 'finished' in
// postorder.

func depthFirst(start int, edges [][]int, seen []bool, finished []int) []int {
	if seen[start] {
		return finished
	}
	type frameT struct {
		node int
		next int // index into edges[node]
	}
	seen[start] = true
	stack := []frameT{{node: start}}
	for 0 < len(stack) {
		top := &stack[len(stack)-1]
		if top.next < len(edges[top.node]) {
			child := edges[top.node][top.next]
			top.next += 1
			if !seen[child] {
				seen[child] = true
				stack = append(stack, frameT{node: child})
			}
			continue
		}
		finished = append(finished, top.node)
		stack = stack[:len(stack)-1]
	}
	return finished
}
