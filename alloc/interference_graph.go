// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/s48/graphcolor/util"
)

// An undirected graph over small integer ids.  Each edge is stored
// twice: as a bit in the larger id's bitset and as an entry in both
// neighbour lists.  A node is in the graph if it has a bitset.

type InterferenceGraphT struct {
	adjacency []*util.BitSetT // bits for the smaller ids
	edges     [][]int
}

func NewInterferenceGraph() *InterferenceGraphT {
	return &InterferenceGraphT{}
}

func (graph *InterferenceGraphT) grow(id int) {
	for len(graph.adjacency) <= id {
		graph.adjacency = append(graph.adjacency, nil)
		graph.edges = append(graph.edges, nil)
	}
}

func (graph *InterferenceGraphT) AddNode(id int) {
	graph.grow(id)
	if graph.adjacency[id] == nil {
		graph.adjacency[id] = util.NewBitSet()
		graph.edges[id] = []int{}
	}
}

func (graph *InterferenceGraphT) Contains(id int) bool {
	return 0 <= id && id < len(graph.adjacency) && graph.adjacency[id] != nil
}

// Adds or removes the edge between 'a' and 'b', adding the nodes if
// necessary.  Self edges are ignored.

func (graph *InterferenceGraphT) SetEdge(a int, b int, present bool) {
	graph.AddNode(a)
	graph.AddNode(b)
	if a == b {
		return
	}
	graph.adjacency[max(a, b)].Put(min(a, b), present)
	if present {
		graph.addNeighbour(a, b)
		graph.addNeighbour(b, a)
	} else {
		graph.removeNeighbour(a, b)
		graph.removeNeighbour(b, a)
	}
}

func (graph *InterferenceGraphT) addNeighbour(id int, neighbour int) {
	if !slices.Contains(graph.edges[id], neighbour) {
		graph.edges[id] = append(graph.edges[id], neighbour)
	}
}

func (graph *InterferenceGraphT) removeNeighbour(id int, neighbour int) {
	if i := slices.Index(graph.edges[id], neighbour); i != -1 {
		graph.edges[id] = slices.Delete(graph.edges[id], i, i+1)
	}
}

func (graph *InterferenceGraphT) HasEdge(a int, b int) bool {
	if a == b || !graph.Contains(a) || !graph.Contains(b) {
		return false
	}
	return graph.adjacency[max(a, b)].Get(min(a, b))
}

// Removes 'id' and all of its edges.  The returned neighbour list is
// a copy and is not affected by later changes to the graph.

func (graph *InterferenceGraphT) RemoveNode(id int) []int {
	if !graph.Contains(id) {
		return nil
	}
	snapshot := slices.Clone(graph.edges[id])
	for _, neighbour := range snapshot {
		graph.SetEdge(id, neighbour, false)
	}
	graph.adjacency[id] = nil
	graph.edges[id] = nil
	return snapshot
}

// Puts 'id' back along with an edge to each of 'edges'.
func (graph *InterferenceGraphT) AddNodeWithEdges(id int, edges []int) {
	graph.AddNode(id)
	for _, neighbour := range edges {
		graph.SetEdge(id, neighbour, true)
	}
}

func (graph *InterferenceGraphT) Degree(id int) int {
	if !graph.Contains(id) {
		return 0
	}
	return len(graph.edges[id])
}

func (graph *InterferenceGraphT) Neighbours(id int) []int {
	if !graph.Contains(id) {
		return nil
	}
	return slices.Clone(graph.edges[id])
}

// Counted each time, not cached.
func (graph *InterferenceGraphT) Size() int {
	count := 0
	for _, bits := range graph.adjacency {
		if bits != nil {
			count += 1
		}
	}
	return count
}

// The nodes in increasing order.
func (graph *InterferenceGraphT) Nodes() []int {
	nodes := []int{}
	for id, bits := range graph.adjacency {
		if bits != nil {
			nodes = append(nodes, id)
		}
	}
	return nodes
}

// The edges as (smaller, larger) pairs, sorted.
func (graph *InterferenceGraphT) Edges() [][2]int {
	result := [][2]int{}
	for id, bits := range graph.adjacency {
		if bits != nil {
			bits.Scan(func(low int) { result = append(result, [2]int{low, id}) })
		}
	}
	slices.SortFunc(result, func(x, y [2]int) int {
		if x[0] != y[0] {
			return x[0] - y[0]
		}
		return x[1] - y[1]
	})
	return result
}

// True if the two graphs have the same nodes and edges.
func (graph *InterferenceGraphT) Equal(other *InterferenceGraphT) bool {
	return slices.Equal(graph.Nodes(), other.Nodes()) && slices.Equal(graph.Edges(), other.Edges())
}

func (graph *InterferenceGraphT) Clone() *InterferenceGraphT {
	result := NewInterferenceGraph()
	for _, id := range graph.Nodes() {
		result.AddNode(id)
	}
	for _, edge := range graph.Edges() {
		result.SetEdge(edge[0], edge[1], true)
	}
	return result
}

// Writes the graph in Graphviz format, using 'name' for the node
// labels.

func (graph *InterferenceGraphT) Dot(label string, name func(int) string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "graph Interferencegraph {\n")
	fmt.Fprintf(&builder, "  label=%q;\n", label)
	for _, id := range graph.Nodes() {
		if graph.Degree(id) == 0 {
			fmt.Fprintf(&builder, "  %q;\n", name(id))
		}
	}
	for _, edge := range graph.Edges() {
		fmt.Fprintf(&builder, "  %q -- %q;\n", name(edge[0]), name(edge[1]))
	}
	fmt.Fprintf(&builder, "}\n")
	return builder.String()
}
