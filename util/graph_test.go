// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package util

import (
	"fmt"
	"slices"
	"testing"
)

func TestStronglyConnectedComponents(t *testing.T) {
	graph := map[int][]int{0: {1}, 1: {2, 4}, 2: {3, 4}, 3: {1, 2}, 4: {5}, 5: {}}
	scc := StronglyConnectedComponents([]int{5, 4, 3, 2, 1, 0}, func(i int) []int { return graph[i] })
	got := [][]int{}
	for _, component := range scc {
		component = slices.Clone(component)
		slices.Sort(component)
		got = append(got, component)
	}
	expected := [][]int{{0}, {1, 2, 3}, {4}, {5}}
	if len(got) != len(expected) {
		t.Fatalf("components %v", got)
	}
	for i := range expected {
		if !slices.Equal(got[i], expected[i]) {
			t.Fatalf("components %v, expected %v", got, expected)
		}
	}
}

type testBlockT struct {
	name   string
	next   []*testBlockT
	header *testBlockT
	depth  int
}

// A long chain of blocks containing a two-block loop and a self loop,
// in the order liveness uses: successors are visited from the last
// component back.

func TestBlockComponents(t *testing.T) {
	const count = 10000
	blocks := make([]*testBlockT, count)
	for i := range blocks {
		blocks[i] = &testBlockT{name: fmt.Sprintf("b%d", i)}
	}
	for i := 0; i < count-1; i++ {
		blocks[i].next = []*testBlockT{blocks[i+1]}
	}
	blocks[11].next = append(blocks[11].next, blocks[10])
	blocks[20].next = append(blocks[20].next, blocks[20])
	blocks[30].next = append(blocks[30].next, &testBlockT{name: "elsewhere"})
	scc := StronglyConnectedComponents(blocks, func(b *testBlockT) []*testBlockT { return b.next })
	if len(scc) != count-1 {
		t.Fatalf("%d components", len(scc))
	}
	position := map[*testBlockT]int{}
	for i, component := range scc {
		for _, block := range component {
			position[block] = i
		}
	}
	if len(position) != count {
		t.Fatalf("%d blocks in components", len(position))
	}
	if position[blocks[10]] != position[blocks[11]] || len(scc[position[blocks[10]]]) != 2 {
		t.Errorf("loop b10-b11 not one component")
	}
	if len(scc[position[blocks[20]]]) != 1 {
		t.Errorf("self loop b20 joined to other blocks")
	}
	for _, block := range blocks {
		for _, next := range block.next {
			if _, found := position[next]; found && position[next] < position[block] {
				t.Fatalf("edge %s -> %s goes backwards", block.name, next.name)
			}
		}
	}
}

func TestFindLoopBlocks(t *testing.T) {
	// entry -> outer -> inner -> inner
	//                   inner -> latch -> outer
	//          outer -> exit
	blocks := []*testBlockT{}
	for _, name := range []string{"entry", "outer", "inner", "latch", "exit"} {
		blocks = append(blocks, &testBlockT{name: name})
	}
	entry, outer, inner, latch, exit := blocks[0], blocks[1], blocks[2], blocks[3], blocks[4]
	entry.next = []*testBlockT{outer}
	outer.next = []*testBlockT{inner, exit}
	inner.next = []*testBlockT{inner, latch}
	latch.next = []*testBlockT{outer}
	headers := FindLoopBlocks(blocks,
		func(b *testBlockT) []*testBlockT { return b.next },
		func(b *testBlockT, header *testBlockT, parent *testBlockT, depth int) {
			b.header = header
			b.depth = depth
		})
	if len(headers) != 2 || headers[0] != outer || headers[1] != inner {
		t.Fatalf("wrong loop headers")
	}
	expected := map[*testBlockT]int{entry: 0, outer: 1, inner: 2, latch: 1, exit: 0}
	for block, depth := range expected {
		if block.depth != depth {
			t.Errorf("%s has depth %d, expected %d", block.name, block.depth, depth)
		}
	}
	if latch.header != outer || inner.header != inner {
		t.Errorf("wrong loop header")
	}
}

func TestFindDominators(t *testing.T) {
	graph := map[string][]string{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}, "d": {}}
	doms := map[string]string{}
	FindDominators("a", func(n string) []string { return graph[n] },
		func(n string, dom string) { doms[n] = dom })
	expected := map[string]string{"a": "a", "b": "a", "c": "a", "d": "a"}
	for n, dom := range expected {
		if doms[n] != dom {
			t.Errorf("dominator of %s is %s, expected %s", n, doms[n], dom)
		}
	}
}
