// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package lir

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"
)

// Checks the structural rules the allocator relies on: every block
// starts with a label and ends with its only terminal instruction,
// block links match the terminals' targets, and phi values match up.
// Returns all of the problems found.

func CheckFunction(function *FunctionT) error {
	problems := []error{}
	problem := func(block *BlockT, format string, args ...any) {
		problems = append(problems,
			fmt.Errorf("%s: block %s: %s", function.Name, block.Name, fmt.Sprintf(format, args...)))
	}
	if len(function.Blocks) == 0 {
		return fmt.Errorf("%s: no blocks", function.Name)
	}
	for i, block := range function.Blocks {
		if block.Index != i {
			problem(block, "index is %d, not %d", block.Index, i)
		}
		if len(block.Instructions) < 2 {
			problem(block, "needs at least a label and a terminal")
			continue
		}
		if block.Label() == nil {
			problem(block, "does not start with a label")
		}
		terminal := block.Terminal()
		if !terminal.IsTerminal() {
			problem(block, "does not end with a jump, branch or return")
		}
		for _, instr := range block.Instructions[1 : len(block.Instructions)-1] {
			if instr.IsLabel() || instr.IsTerminal() {
				problem(block, "%s in the middle of the block", instr)
			}
		}
		if !slices.Equal(block.Successors, terminal.Targets) {
			problem(block, "successors do not match %s", terminal)
		}
		for _, target := range terminal.Targets {
			if target.Index < 0 || len(function.Blocks) <= target.Index ||
				function.Blocks[target.Index] != target {
				problem(block, "target %s is not in the function", target)
				continue
			}
			if !slices.Contains(target.Predecessors, block) {
				problem(block, "missing from the predecessors of %s", target)
			}
			if len(block.PhiOuts()) != len(target.PhiIns()) {
				problem(block, "passes %d values to %s, which takes %d",
					len(block.PhiOuts()), target, len(target.PhiIns()))
			}
		}
		if terminal.Opcode == BranchOp && 0 < len(terminal.Alives) &&
			terminal.Targets[0] != terminal.Targets[1] {
			problem(block, "branch passes values to two different blocks")
		}
		for _, pred := range block.Predecessors {
			if !slices.Contains(pred.Successors, block) {
				problem(block, "predecessor %s does not lead here", pred)
			}
		}
	}
	return multierr.Combine(problems...)
}

// Checks that no virtual values remain.
func CheckAllocated(function *FunctionT) error {
	problems := []error{}
	for _, block := range function.Blocks {
		for _, instr := range block.Instructions {
			instr.ForEach(func(mode OperandModeT, operand *OperandT) {
				if IsVariable(operand.Value) {
					problems = append(problems,
						fmt.Errorf("%s: block %s: %s still has variable %s",
							function.Name, block.Name, instr, operand.Value))
				}
			})
		}
	}
	return multierr.Combine(problems...)
}
