// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"go.uber.org/zap"

	"github.com/s48/graphcolor/lir"
)

// Adds the moves needed along control flow edges: phi values passed
// from a jump to a label, and, when spilling regions, reloads of values
// that are in a register at the start of a block but not at the end of
// one of its predecessors.

func (allocator *allocatorT) resolveDataFlow() error {
	for _, fromBlock := range allocator.function.Blocks {
		resolved := map[*lir.BlockT]bool{}
		for _, toBlock := range fromBlock.Successors {
			if resolved[toBlock] {
				continue
			}
			resolved[toBlock] = true
			resolver := newMoveResolver(&allocator.function.Frame)
			if allocator.options.RegionSpilling {
				allocator.collectReloadMappings(fromBlock, toBlock, resolver)
			}
			allocator.collectPhiMappings(fromBlock, toBlock, resolver)
			if !resolver.HasMappings() {
				continue
			}
			block, index, err := allocator.moveInsertPosition(fromBlock, toBlock)
			if err != nil {
				return err
			}
			moves := resolver.Resolve()
			var buffer lir.InsertionBufferT
			buffer.Init(block.Instructions)
			buffer.Append(index, moves...)
			block.Instructions = buffer.Finish()
			allocator.stats.ResolutionMoves += len(moves)
			allocator.logger.Debug("resolution moves",
				zap.String("from", fromBlock.Name),
				zap.String("to", toBlock.Name),
				zap.Int("moves", len(moves)),
				zap.Int("cycleSlots", resolver.cycleSlots))
		}
		fromBlock.ClearPhiOuts()
	}
	return nil
}

func (allocator *allocatorT) collectReloadMappings(fromBlock *lir.BlockT, toBlock *lir.BlockT, resolver *moveResolverT) {
	toFirst := toBlock.FirstId()
	fromLast := fromBlock.LastId() + 1
	for _, interval := range allocator.ranges.Intervals() {
		if !interval.IsSpilled() || interval.IsRegister() || interval.DefPosition == toFirst {
			continue
		}
		if interval.DefPosition <= fromLast && interval.Covers(toFirst) && !interval.Covers(fromLast) {
			resolver.AddMapping(interval.Slot, interval.Location)
		}
	}
}

// The locations have already been assigned, so the phi values are
// registers, slots or constants.

func (allocator *allocatorT) collectPhiMappings(fromBlock *lir.BlockT, toBlock *lir.BlockT, resolver *moveResolverT) {
	phiIns := toBlock.PhiIns()
	phiOuts := fromBlock.PhiOuts()
	if len(phiIns) == 0 || len(phiIns) != len(phiOuts) {
		return
	}
	for i, phiIn := range phiIns {
		out := phiOuts[i].Value
		in := phiIn.Value
		if lir.SameLocation(out, in) {
			continue
		}
		if lir.IsStackSlot(out) && lir.IsStackSlot(in) {
			allocator.stats.StackToStackMoves += 1
		}
		if constant, ok := out.(*lir.ConstantT); ok {
			resolver.AddMappingConstant(constant, in)
		} else {
			resolver.AddMapping(out, in)
		}
	}
}

// Moves go at the end of 'fromBlock' if it has only the one successor,
// otherwise at the start of 'toBlock', which must then have no other
// predecessors.

func (allocator *allocatorT) moveInsertPosition(fromBlock *lir.BlockT, toBlock *lir.BlockT) (*lir.BlockT, int, error) {
	if len(fromBlock.Successors) <= 1 {
		index := len(fromBlock.Instructions)
		if terminal := fromBlock.Terminal(); terminal != nil && terminal.Opcode == lir.JumpOp {
			index -= 1
		}
		return fromBlock, index, nil
	}
	for _, pred := range toBlock.Predecessors {
		if pred != fromBlock {
			return nil, 0, internalError("critical edge from %s to %s", fromBlock, toBlock)
		}
	}
	return toBlock, 1, nil
}
