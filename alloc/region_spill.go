// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"slices"

	"go.uber.org/zap"

	"github.com/s48/graphcolor/lir"
)

// Interference-region spilling: instead of moving a value to memory
// for its whole lifetime, take it out of its register only where it
// overlaps one chosen neighbour.  The value is stored after its def
// the first time it is spilled and reloaded wherever it is needed in a
// register after one of the removed regions.  A phi input is not
// stored; it stays in its slot from the label up to its first reload.

// Returns false if no interval changed, in which case more rounds
// will not help.

func (allocator *allocatorT) interferenceRegionSpill() (bool, error) {
	progress := false
	for category := range allocator.spillQueues {
		queue := &allocator.spillQueues[category]
		for !queue.Empty() {
			obj := queue.Dequeue()
			interval := allocator.ranges.Interval(obj.id)
			changed, err := allocator.regionSpillInterval(interval, obj.edges)
			if err != nil {
				return false, err
			}
			progress = progress || changed
		}
	}
	allocator.ranges.RebuildGraph()
	return progress, nil
}

func (allocator *allocatorT) regionSpillInterval(interval *IntervalT, neighbours []int) (bool, error) {
	wasSpilled := interval.IsSpilled()
	before := slices.Clone(interval.Ranges)
	regionLists := allocator.interferenceRegions(interval, neighbours)
	choice := allocator.chooseNeighbour(interval, neighbours, regionLists)
	var regions []LifeRangeT
	if choice == -1 {
		regions = interval.ascendingRanges()
	} else {
		interval.NeighbourSpilled.Set(neighbours[choice])
		regions = regionLists[choice]
	}
	if err := allocator.createNewLifeRanges(interval, regions); err != nil {
		return false, err
	}
	if choice != -1 && slices.Equal(before, interval.Ranges) {
		// This neighbour's regions were already removed; give up the
		// rest of the register ranges.
		regions = interval.ascendingRanges()
		if err := allocator.createNewLifeRanges(interval, regions); err != nil {
			return false, err
		}
	}
	interval.SpilledRegions = append(interval.SpilledRegions, regions...)
	if allocator.logger.Core().Enabled(zap.DebugLevel) {
		neighbour := "none"
		if choice != -1 {
			neighbour = allocator.ranges.ValueString(neighbours[choice])
		}
		allocator.logger.Debug("region spill",
			zap.String("value", interval.Operand.String()),
			zap.String("neighbour", neighbour),
			zap.Int("regions", len(regions)))
	}
	return !wasSpilled || !slices.Equal(before, interval.Ranges), nil
}

// For each neighbour, the parts of 'interval's ranges that overlap the
// neighbour's ranges, in increasing order with overlapping parts
// merged.

func (allocator *allocatorT) interferenceRegions(interval *IntervalT, neighbours []int) [][]LifeRangeT {
	result := make([][]LifeRangeT, len(neighbours))
	mine := interval.ascendingRanges()
	for i, id := range neighbours {
		other := allocator.ranges.Interval(id)
		if other == nil {
			continue
		}
		overlaps := []LifeRangeT{}
		for _, theirs := range other.ascendingRanges() {
			for _, ours := range mine {
				if ours.Intersects(theirs) {
					overlaps = append(overlaps, LifeRangeT{max(ours.From, theirs.From), min(ours.To, theirs.To)})
				}
			}
		}
		slices.SortFunc(overlaps, func(x, y LifeRangeT) int { return x.From - y.From })
		regions := []LifeRangeT{}
		for _, overlap := range overlaps {
			if 0 < len(regions) && overlap.From <= regions[len(regions)-1].To {
				last := &regions[len(regions)-1]
				last.To = max(last.To, overlap.To)
			} else {
				regions = append(regions, overlap)
			}
		}
		result[i] = regions
	}
	return result
}

// The neighbour whose regions cover the cheapest uses, weighted by
// block frequency.  Neighbours already spilled against are only used
// if there is nothing else.  Returns -1 if no neighbour overlaps.

func (allocator *allocatorT) chooseNeighbour(interval *IntervalT, neighbours []int, regionLists [][]LifeRangeT) int {
	best := -1
	bestCost := 0.0
	for _, skipTried := range []bool{true, false} {
		for i, regions := range regionLists {
			if len(regions) == 0 || skipTried && interval.NeighbourSpilled.Get(neighbours[i]) {
				continue
			}
			cost := allocator.regionCost(interval, regions)
			if best == -1 || cost < bestCost {
				best = i
				bestCost = cost
			}
		}
		if best != -1 {
			break
		}
	}
	return best
}

func (allocator *allocatorT) regionCost(interval *IntervalT, regions []LifeRangeT) float64 {
	cost := 0.0
	for _, use := range interval.UsePositions {
		for _, region := range regions {
			if region.From <= use.Position && use.Position <= region.To {
				if block := allocator.ranges.BlockAt(use.Position); block != nil {
					cost += block.Frequency
				}
				break
			}
		}
	}
	return cost
}

//----------------------------------------------------------------
// Removing the regions from the register ranges.
//
// Within each range, the gap for a region runs from the end of the
// last register point (the def or a use that must be in a register)
// before the region to the start of the first one after it.  Register
// points inside a gap get a reload and a short window of their own.
// A range piece that starts at the end of a gap starts with a reload.

type registerPointT struct {
	use    *UsePositionT // nil for the def
	window LifeRangeT
}

func (allocator *allocatorT) createNewLifeRanges(interval *IntervalT, regions []LifeRangeT) error {
	operand := interval.Operand
	inserter := newSpillInserter(allocator.ranges)
	defInRegister := interval.defNeedsRegister()
	if !interval.IsSpilled() {
		interval.Slot = allocator.function.Frame.AllocateSpillSlot(operand.PlatformKind())
		if defInRegister {
			if err := inserter.insert(interval.DefPosition, true, lir.NewMove(interval.Slot, operand)); err != nil {
				return err
			}
			allocator.stats.SpillStores += 1
		}
	}
	if 0 <= interval.DefPosition && !defInRegister {
		def := interval.DefPosition
		regions = append(slices.Clone(regions), LifeRangeT{def, def + 1})
	}
	points := interval.registerPoints()
	reload := func(point registerPointT) error {
		if point.use == nil || point.use.Restored {
			return nil
		}
		point.use.Restored = true
		allocator.stats.SpillLoads += 1
		return inserter.insert(instructionId(point.use.Position), false, lir.NewMove(operand, interval.Slot))
	}
	newRanges := []LifeRangeT{}
	for _, current := range interval.ascendingRanges() {
		within := []registerPointT{}
		for _, point := range points {
			if current.From <= point.window.From && point.window.To <= current.To {
				within = append(within, point)
			}
		}
		gaps := rangeGaps(current, regions, within)
		if len(gaps) == 0 {
			newRanges = append(newRanges, current)
			continue
		}
		start := current.From
		for _, gap := range gaps {
			if start < gap.From {
				newRanges = append(newRanges, LifeRangeT{start, gap.From})
			}
			start = gap.To
		}
		if start < current.To {
			newRanges = append(newRanges, LifeRangeT{start, current.To})
		}
		for _, point := range within {
			inGap := false
			startsPiece := false
			for _, gap := range gaps {
				inGap = inGap || point.window.Intersects(gap)
				startsPiece = startsPiece || (point.window.From == gap.To && gap.To < current.To)
			}
			if inGap {
				newRanges = append(newRanges, point.window)
			}
			if inGap || startsPiece {
				if err := reload(point); err != nil {
					return err
				}
			}
		}
	}
	inserter.finish()
	interval.setRanges(newRanges)
	return nil
}

// The def, unless it is a phi input, and the uses that need a
// register, in increasing order.

func (interval *IntervalT) registerPoints() []registerPointT {
	points := []registerPointT{}
	for _, use := range interval.UsePositions {
		if use.Priority == MustHaveRegister && use.Position != interval.DefPosition {
			points = append(points, registerPointT{use: use, window: interval.registerWindow(use.Position)})
		}
	}
	if interval.defNeedsRegister() {
		points = append(points, registerPointT{window: interval.registerWindow(interval.DefPosition)})
	}
	slices.SortFunc(points, func(x, y registerPointT) int { return x.window.From - y.window.From })
	return points
}

// The register-free gaps that removing 'regions' leaves in 'current',
// in order and merged.

func rangeGaps(current LifeRangeT, regions []LifeRangeT, points []registerPointT) []LifeRangeT {
	gaps := []LifeRangeT{}
	for _, region := range regions {
		if !current.Intersects(region) {
			continue
		}
		from := max(current.From, region.From)
		to := min(current.To, region.To)
		lo := current.From
		hi := current.To
		for _, point := range points {
			if point.window.To <= from {
				lo = max(lo, point.window.To)
			}
			if to <= point.window.From {
				hi = min(hi, point.window.From)
			}
		}
		gaps = append(gaps, LifeRangeT{lo, hi})
	}
	slices.SortFunc(gaps, func(x, y LifeRangeT) int { return x.From - y.From })
	merged := []LifeRangeT{}
	for _, gap := range gaps {
		if 0 < len(merged) && gap.From <= merged[len(merged)-1].To {
			last := &merged[len(merged)-1]
			last.To = max(last.To, gap.To)
		} else {
			merged = append(merged, gap)
		}
	}
	return merged
}
