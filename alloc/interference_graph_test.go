// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"slices"
	"strconv"
	"strings"
	"testing"
)

func TestGraphEdges(t *testing.T) {
	graph := NewInterferenceGraph()
	graph.SetEdge(1, 2, true)
	graph.SetEdge(2, 1, true)
	graph.SetEdge(2, 3, true)
	graph.SetEdge(4, 4, true)
	if !graph.HasEdge(2, 1) || !graph.HasEdge(3, 2) || graph.HasEdge(1, 3) {
		t.Fatalf("wrong edges %v", graph.Edges())
	}
	if graph.HasEdge(4, 4) || graph.Degree(4) != 0 || !graph.Contains(4) {
		t.Fatalf("self edge was added")
	}
	if graph.Degree(2) != 2 || len(graph.Neighbours(1)) != 1 {
		t.Fatalf("degree of 2 is %d, neighbours of 1 are %v", graph.Degree(2), graph.Neighbours(1))
	}
	if graph.Size() != 4 || !slices.Equal(graph.Nodes(), []int{1, 2, 3, 4}) {
		t.Fatalf("size %d nodes %v", graph.Size(), graph.Nodes())
	}
	if !slices.Equal(graph.Edges(), [][2]int{{1, 2}, {2, 3}}) {
		t.Fatalf("edges %v", graph.Edges())
	}
	graph.SetEdge(3, 2, false)
	if graph.HasEdge(2, 3) || graph.Degree(3) != 0 {
		t.Fatalf("edge 2-3 not removed")
	}
}

// The neighbours returned by RemoveNode do not change when the graph
// does.

func TestRemoveNodeSnapshot(t *testing.T) {
	graph := NewInterferenceGraph()
	graph.SetEdge(0, 1, true)
	graph.SetEdge(0, 2, true)
	edges := graph.RemoveNode(0)
	if graph.Contains(0) || graph.Degree(1) != 0 || graph.Size() != 2 {
		t.Fatalf("node 0 still present")
	}
	graph.SetEdge(1, 3, true)
	graph.RemoveNode(2)
	if !slices.Equal(edges, []int{1, 2}) {
		t.Fatalf("snapshot changed to %v", edges)
	}
	graph.AddNodeWithEdges(0, edges)
	if !graph.HasEdge(0, 1) || !graph.HasEdge(0, 2) || graph.Degree(0) != 2 {
		t.Fatalf("restored node has neighbours %v", graph.Neighbours(0))
	}
	if graph.Degree(2) != 1 || graph.HasEdge(2, 3) {
		t.Fatalf("restoring 0 gave 2 neighbours %v", graph.Neighbours(2))
	}
}

func TestGraphCloneAndDot(t *testing.T) {
	graph := NewInterferenceGraph()
	graph.SetEdge(0, 5, true)
	graph.SetEdge(5, 6, true)
	clone := graph.Clone()
	if !clone.Equal(graph) {
		t.Fatalf("clone differs")
	}
	clone.SetEdge(0, 6, true)
	if clone.Equal(graph) || graph.HasEdge(0, 6) {
		t.Fatalf("clone shares storage")
	}
	dot := graph.Dot("test", func(id int) string { return "n" + strconv.Itoa(id) })
	for _, want := range []string{"graph Interferencegraph {", `"n0" -- "n5";`, `"n5" -- "n6";`} {
		if !strings.Contains(dot, want) {
			t.Errorf("missing %q in\n%s", want, dot)
		}
	}
}
