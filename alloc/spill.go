// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/s48/graphcolor/lir"
)

// Spilling a whole interval: the value lives in its stack slot, is
// stored there after its def and is reloaded in front of every use
// that needs it in a register.

func (allocator *allocatorT) spill() error {
	for category := range allocator.spillQueues {
		queue := &allocator.spillQueues[category]
		for !queue.Empty() {
			obj := queue.Dequeue()
			interval := allocator.ranges.Interval(obj.id)
			if interval.IsSpilled() {
				panic(fmt.Sprintf("spilling %s a second time", interval.Operand))
			}
			if err := allocator.spillInterval(interval); err != nil {
				return err
			}
		}
	}
	allocator.ranges.RebuildGraph()
	return nil
}

func (allocator *allocatorT) spillInterval(interval *IntervalT) error {
	operand := interval.Operand
	interval.Slot = allocator.function.Frame.AllocateSpillSlot(operand.PlatformKind())
	interval.deleteRanges()
	inserter := newSpillInserter(allocator.ranges)
	def := interval.DefPosition
	if interval.defNeedsRegister() {
		if err := inserter.insert(def, true, lir.NewMove(interval.Slot, operand)); err != nil {
			return err
		}
		allocator.stats.SpillStores += 1
		allocator.ranges.AddTemp(interval, def)
	}
	reloaded := map[int]bool{}
	for _, use := range interval.UsePositions {
		if use.Priority != MustHaveRegister || use.Position == def {
			continue
		}
		allocator.ranges.AddTemp(interval, use.Position)
		id := instructionId(use.Position)
		if reloaded[id] {
			continue
		}
		reloaded[id] = true
		if err := inserter.insert(id, false, lir.NewMove(operand, interval.Slot)); err != nil {
			return err
		}
		allocator.stats.SpillLoads += 1
	}
	inserter.finish()
	allocator.logger.Debug("spilled",
		zap.String("value", operand.String()),
		zap.String("slot", interval.Slot.String()))
	return nil
}

// Odd positions are alive uses within the preceding instruction.
func instructionId(pos int) int {
	return pos &^ 1
}

//----------------------------------------------------------------
// Collects the spill moves for one interval in per-block insertion
// buffers.  Nothing changes until finish() is called, so indexes found
// by searching the instruction lists stay valid.

type spillInserterT struct {
	ranges  RangeModelT
	buffers map[*lir.BlockT]*lir.InsertionBufferT
	order   []*lir.BlockT
}

func newSpillInserter(ranges RangeModelT) *spillInserterT {
	return &spillInserterT{ranges: ranges, buffers: map[*lir.BlockT]*lir.InsertionBufferT{}}
}

// Finds the block and index of the instruction at 'pos'.
func (inserter *spillInserterT) spillPosition(pos int) (*lir.BlockT, int, error) {
	block := inserter.ranges.BlockAt(pos)
	if block == nil {
		return nil, 0, internalError("no block for spill position %d", pos)
	}
	for i, instr := range block.Instructions {
		if instr.Id == pos || instr.Id == pos+1 {
			return block, i, nil
		}
	}
	return nil, 0, internalError("spill position %d not found in block %s", pos, block)
}

func (inserter *spillInserterT) insert(pos int, after bool, instr *lir.InstructionT) error {
	block, index, err := inserter.spillPosition(pos)
	if err != nil {
		return err
	}
	buffer := inserter.buffers[block]
	if buffer == nil {
		buffer = &lir.InsertionBufferT{}
		buffer.Init(block.Instructions)
		inserter.buffers[block] = buffer
		inserter.order = append(inserter.order, block)
	}
	if after {
		index += 1
	}
	buffer.Append(index, instr)
	return nil
}

func (inserter *spillInserterT) finish() {
	for _, block := range inserter.order {
		block.Instructions = inserter.buffers[block].Finish()
	}
}
