// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/s48/graphcolor/lir"
)

// Checks an allocation: neighbours in the final graphs have different
// colors, no two spilled intervals share a slot, and no variables are
// left in 'function'.

func (result *ResultT) Verify(function *lir.FunctionT) error {
	problems := []error{}
	for category, graph := range result.Graphs {
		colors := result.Colors[category]
		color := func(id int) int {
			if id < len(colors) {
				return colors[id]
			}
			return -1
		}
		for _, edge := range graph.Edges() {
			x, y := color(edge[0]), color(edge[1])
			if x == -1 || y == -1 || x == y {
				problems = append(problems,
					fmt.Errorf("%s: nodes %d and %d interfere but have colors %d and %d",
						result.Unit, edge[0], edge[1], x, y))
			}
		}
	}
	slots := map[*lir.StackSlotT]*IntervalT{}
	for _, interval := range result.Intervals {
		if interval.Slot == nil {
			continue
		}
		if other := slots[interval.Slot]; other != nil {
			problems = append(problems,
				fmt.Errorf("%s: %s and %s share %s", result.Unit, other.Operand, interval.Operand, interval.Slot))
		}
		slots[interval.Slot] = interval
	}
	problems = append(problems, lir.CheckAllocated(function))
	return multierr.Combine(problems...)
}
