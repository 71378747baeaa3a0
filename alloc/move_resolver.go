// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"fmt"

	"github.com/s48/graphcolor/lir"
)

// Turns a set of moves that are meant to happen at the same time into
// a sequence.  A move is emitted once nothing still needs to read its
// destination.  When only cycles remain, one source is saved in a new
// stack slot.

type moveResolverT struct {
	frame       *lir.FrameMapT
	mappingFrom []lir.ValueT
	mappingTo   []lir.ValueT
	blocked     map[locationT]int
	moves       []*lir.InstructionT
	cycleSlots  int
}

type locationT struct {
	kind   lir.ValueKindT
	number int
}

func newMoveResolver(frame *lir.FrameMapT) *moveResolverT {
	return &moveResolverT{frame: frame, blocked: map[locationT]int{}}
}

// Registers and stack slots can be blocked, constants can't.
func locationOf(value lir.ValueT) (locationT, bool) {
	switch value := value.(type) {
	case *lir.RegisterT:
		return locationT{lir.RegisterValue, value.Number}, true
	case *lir.StackSlotT:
		return locationT{lir.StackSlotValue, value.Index}, true
	}
	return locationT{}, false
}

func (resolver *moveResolverT) AddMapping(from lir.ValueT, to lir.ValueT) {
	if lir.SameLocation(from, to) {
		return
	}
	for _, other := range resolver.mappingTo {
		if lir.SameLocation(other, to) {
			panic(fmt.Sprintf("two moves into %s", to))
		}
	}
	resolver.mappingFrom = append(resolver.mappingFrom, from)
	resolver.mappingTo = append(resolver.mappingTo, to)
}

func (resolver *moveResolverT) AddMappingConstant(constant *lir.ConstantT, to lir.ValueT) {
	resolver.AddMapping(constant, to)
}

func (resolver *moveResolverT) HasMappings() bool {
	return 0 < len(resolver.mappingFrom)
}

func (resolver *moveResolverT) block(value lir.ValueT, delta int) {
	if location, ok := locationOf(value); ok {
		resolver.blocked[location] += delta
	}
}

func (resolver *moveResolverT) isBlocked(to lir.ValueT) bool {
	location, _ := locationOf(to)
	return 0 < resolver.blocked[location]
}

func (resolver *moveResolverT) insertMove(to lir.ValueT, from lir.ValueT) {
	resolver.moves = append(resolver.moves, lir.NewMove(to, from))
}

// Returns the moves in the order they are to be executed.
func (resolver *moveResolverT) Resolve() []*lir.InstructionT {
	for _, from := range resolver.mappingFrom {
		resolver.block(from, 1)
	}
	for 0 < len(resolver.mappingFrom) {
		processed := false
		spillCandidate := -1
		for i := len(resolver.mappingFrom) - 1; 0 <= i; i-- {
			from := resolver.mappingFrom[i]
			to := resolver.mappingTo[i]
			if resolver.isBlocked(to) {
				if !lir.IsConstant(from) {
					spillCandidate = i
				}
				continue
			}
			resolver.insertMove(to, from)
			resolver.block(from, -1)
			resolver.mappingFrom = append(resolver.mappingFrom[:i], resolver.mappingFrom[i+1:]...)
			resolver.mappingTo = append(resolver.mappingTo[:i], resolver.mappingTo[i+1:]...)
			processed = true
		}
		if !processed {
			resolver.breakCycle(spillCandidate)
		}
	}
	moves := resolver.moves
	resolver.moves = nil
	return moves
}

func (resolver *moveResolverT) breakCycle(candidate int) {
	if candidate == -1 {
		panic("no move to break the cycle with")
	}
	from := resolver.mappingFrom[candidate]
	slot := resolver.frame.AllocateSpillSlot(from.PlatformKind())
	resolver.cycleSlots += 1
	resolver.insertMove(slot, from)
	resolver.block(from, -1)
	resolver.block(slot, 1)
	resolver.mappingFrom[candidate] = slot
}
