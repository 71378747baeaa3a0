// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"github.com/s48/graphcolor/lir"
)

// Replaces every variable operand with its register or stack slot.
// A spilled value is in its register at spill moves and at defs and
// uses that must have a register.  Everywhere else, phi inputs at
// labels included, it is in its slot.

func (allocator *allocatorT) assignLocations() error {
	var err error
	for _, block := range allocator.function.Blocks {
		for _, instr := range block.Instructions {
			instr.ForEach(func(mode lir.OperandModeT, operand *lir.OperandT) {
				if err != nil || !lir.IsVariable(operand.Value) {
					return
				}
				interval := allocator.ranges.Interval(allocator.target.OperandNumber(operand.Value))
				if interval == nil {
					err = internalError("%s in %s has no interval", operand.Value, block)
					return
				}
				location := allocator.locationFor(interval, instr, mode)
				if location == nil {
					err = internalError("%s has no location", operand.Value)
					return
				}
				operand.Value = location
			})
			if instr.Opcode == lir.MoveOp || instr.Opcode == lir.StackMoveOp {
				if lir.IsStackSlot(instr.Defs[0].Value) && lir.IsStackSlot(instr.Uses[0].Value) {
					instr.Opcode = lir.StackMoveOp
				} else {
					instr.Opcode = lir.MoveOp
				}
			}
		}
	}
	return err
}

func (allocator *allocatorT) locationFor(interval *IntervalT, instr *lir.InstructionT, mode lir.OperandModeT) lir.ValueT {
	if !interval.IsSpilled() {
		return registerValue(interval.Location)
	}
	switch {
	case instr.Id == -1:
		return registerValue(interval.Location)
	case mode == lir.StateMode:
		return interval.Slot
	}
	pos := instr.Id
	if mode == lir.AliveMode {
		pos += 1
	}
	if priority, _ := interval.usePriorityAt(pos); priority == MustHaveRegister {
		return registerValue(interval.Location)
	}
	return interval.Slot
}

// Avoids returning a non-nil interface holding a nil pointer.
func registerValue(reg *lir.RegisterT) lir.ValueT {
	if reg == nil {
		return nil
	}
	return reg
}
