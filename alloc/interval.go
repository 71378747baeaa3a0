// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/s48/graphcolor/lir"
	"github.com/s48/graphcolor/util"
)

type RegisterPriorityT int

const (
	PriorityNone RegisterPriorityT = iota
	LiveAtLoopEnd
	ShouldHaveRegister
	MustHaveRegister
)

var priorityNames = []string{"none", "loop-end", "should", "must"}

func (priority RegisterPriorityT) String() string {
	return priorityNames[priority]
}

// Half open: the value is live from From up to but not including To.

type LifeRangeT struct {
	From int
	To   int
}

func (lifeRange LifeRangeT) Covers(pos int) bool {
	return lifeRange.From <= pos && pos < lifeRange.To
}

func (lifeRange LifeRangeT) Intersects(other LifeRangeT) bool {
	return lifeRange.From < other.To && other.From < lifeRange.To
}

func (lifeRange LifeRangeT) IsEmpty() bool {
	return lifeRange.To <= lifeRange.From
}

func (lifeRange LifeRangeT) String() string {
	return fmt.Sprintf("[%d,%d)", lifeRange.From, lifeRange.To)
}

type UsePositionT struct {
	Position int
	Priority RegisterPriorityT
	Restored bool // a reload has been inserted in front of this use
}

type IntervalT struct {
	Operand     lir.ValueT
	Number      int // graph node id
	Category    int
	DefPosition int // -1 if the value is never defined

	Ranges       []LifeRangeT    // descending
	UsePositions []*UsePositionT // descending

	Location *lir.RegisterT
	Slot     *lir.StackSlotT

	// Region spilling: neighbours already spilled against and the
	// regions removed from the register ranges.
	NeighbourSpilled *util.BitSetT
	SpilledRegions   []LifeRangeT
}

func newInterval(operand lir.ValueT, number int, category int) *IntervalT {
	return &IntervalT{
		Operand:          operand,
		Number:           number,
		Category:         category,
		DefPosition:      -1,
		NeighbourSpilled: util.NewBitSet()}
}

func (interval *IntervalT) IsSpilled() bool {
	return interval.Slot != nil
}

func (interval *IntervalT) IsRegister() bool {
	return lir.IsRegister(interval.Operand)
}

// The earliest range.
func (interval *IntervalT) first() *LifeRangeT {
	if len(interval.Ranges) == 0 {
		return nil
	}
	return &interval.Ranges[len(interval.Ranges)-1]
}

// Ranges are added in decreasing order, so a new one either overlaps
// or touches the current first one or comes before it.

func (interval *IntervalT) addLiveRange(from int, to int) {
	first := interval.first()
	if first != nil && first.From <= to {
		first.From = min(first.From, from)
		first.To = max(first.To, to)
	} else {
		interval.Ranges = append(interval.Ranges, LifeRangeT{from, to})
	}
}

// Adds a range anywhere, keeping the ranges sorted.
func (interval *IntervalT) insertRange(lifeRange LifeRangeT) {
	i, _ := slices.BinarySearchFunc(interval.Ranges, lifeRange, func(x, y LifeRangeT) int {
		return y.From - x.From
	})
	interval.Ranges = slices.Insert(interval.Ranges, i, lifeRange)
}

func (interval *IntervalT) deleteRanges() {
	interval.Ranges = nil
}

// Replaces the ranges with 'ranges', merging any that overlap or touch.
func (interval *IntervalT) setRanges(ranges []LifeRangeT) {
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(x, y LifeRangeT) int { return x.From - y.From })
	merged := []LifeRangeT{}
	for _, next := range sorted {
		if next.IsEmpty() {
			continue
		}
		if 0 < len(merged) && next.From <= merged[len(merged)-1].To {
			last := &merged[len(merged)-1]
			last.To = max(last.To, next.To)
		} else {
			merged = append(merged, next)
		}
	}
	slices.Reverse(merged)
	interval.Ranges = merged
}

// The ranges in increasing order.
func (interval *IntervalT) ascendingRanges() []LifeRangeT {
	result := slices.Clone(interval.Ranges)
	slices.SortFunc(result, func(x, y LifeRangeT) int { return x.From - y.From })
	return result
}

func (interval *IntervalT) addUse(pos int, priority RegisterPriorityT) {
	interval.UsePositions = append(interval.UsePositions, &UsePositionT{Position: pos, Priority: priority})
}

func (interval *IntervalT) Covers(pos int) bool {
	for _, lifeRange := range interval.Ranges {
		if lifeRange.Covers(pos) {
			return true
		}
	}
	return false
}

// Half-open ranges make an input that dies at an instruction and that
// instruction's output disjoint, so they can share a register.

func (interval *IntervalT) Interferes(other *IntervalT) bool {
	for _, mine := range interval.Ranges {
		for _, theirs := range other.Ranges {
			if mine.Intersects(theirs) {
				return true
			}
		}
	}
	return false
}

// The highest priority of the uses at 'pos'.

func (interval *IntervalT) usePriorityAt(pos int) (RegisterPriorityT, bool) {
	priority := PriorityNone
	found := false
	for _, use := range interval.UsePositions {
		if use.Position == pos {
			priority = max(priority, use.Priority)
			found = true
		}
	}
	return priority, found
}

// Phi inputs are defined by their label wherever the incoming moves
// put them, so only other defs need a register.

func (interval *IntervalT) defNeedsRegister() bool {
	if interval.DefPosition < 0 {
		return false
	}
	priority, _ := interval.usePriorityAt(interval.DefPosition)
	return priority == MustHaveRegister
}

// The positions over which a value must be in a register to be
// stored after its def or reloaded in front of a use.  Reloads come
// after the previous instruction is finished.

func (interval *IntervalT) registerWindow(pos int) LifeRangeT {
	switch {
	case pos == interval.DefPosition:
		return LifeRangeT{pos, pos + 1}
	case pos%2 == 1:
		return LifeRangeT{pos - 2, pos}
	default:
		return LifeRangeT{pos - 1, pos}
	}
}

func (interval *IntervalT) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s", interval.Operand)
	for _, lifeRange := range interval.ascendingRanges() {
		fmt.Fprintf(&builder, " %s", lifeRange)
	}
	builder.WriteString(" uses")
	for i := len(interval.UsePositions) - 1; 0 <= i; i-- {
		use := interval.UsePositions[i]
		fmt.Fprintf(&builder, " %d:%s", use.Position, use.Priority)
	}
	if interval.Location != nil {
		fmt.Fprintf(&builder, " @%s", interval.Location)
	}
	if interval.Slot != nil {
		fmt.Fprintf(&builder, " spilled %s", interval.Slot)
	}
	return builder.String()
}
