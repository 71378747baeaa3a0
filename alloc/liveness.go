// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"strconv"

	"github.com/s48/graphcolor/lir"
	"github.com/s48/graphcolor/util"
)

// What the coloring and spilling code needs from the live ranges.

type RangeModelT interface {
	InterferenceGraphs() []*InterferenceGraphT // indexed by category number
	RebuildGraph()
	CategoryNumbers() map[*lir.CategoryT]int
	ValueString(id int) string
	GraphString(id int) string
	AddTemp(interval *IntervalT, pos int)
	Interval(id int) *IntervalT // nil if 'id' has no interval
	Intervals() []*IntervalT
	BlockAt(pos int) *lir.BlockT
}

// Live ranges computed from a numbered function.

type LivenessT struct {
	function            *lir.FunctionT
	target              *lir.RegisterConfigT
	firstVariableNumber int
	intervals           *util.GrowableT[*IntervalT]
	graphs              []*InterferenceGraphT
	categoryNumbers     map[*lir.CategoryT]int

	// Indexed by block index.
	liveGen  []*util.BitSetT
	liveKill []*util.BitSetT
	liveIn   []*util.BitSetT
	liveOut  []*util.BitSetT
}

var _ RangeModelT = (*LivenessT)(nil)

// Numbers the instructions and builds the intervals and the
// interference graphs.

func BuildLiveness(function *lir.FunctionT, target *lir.RegisterConfigT) (*LivenessT, error) {
	liveness := &LivenessT{
		function:            function,
		target:              target,
		firstVariableNumber: target.FirstVariableNumber(),
		intervals:           util.NewGrowable[*IntervalT](nil),
		categoryNumbers:     map[*lir.CategoryT]int{}}
	for _, category := range target.Categories {
		liveness.categoryNumbers[category] = category.Number
	}
	function.NumberInstructions()
	if err := liveness.computeLocalLiveSets(); err != nil {
		return nil, err
	}
	if err := liveness.computeGlobalLiveSets(); err != nil {
		return nil, err
	}
	liveness.buildIntervals()
	liveness.RebuildGraph()
	return liveness, nil
}

func (liveness *LivenessT) isProcessed(value lir.ValueT) bool {
	switch value.ValueKind() {
	case lir.VariableValue:
		return true
	case lir.RegisterValue:
		return liveness.target.IsAllocatable(value.(*lir.RegisterT))
	}
	return false
}

func (liveness *LivenessT) getOrCreateInterval(value lir.ValueT) (*IntervalT, error) {
	number := liveness.target.OperandNumber(value)
	if interval := liveness.intervals.Get(number); interval != nil {
		return interval, nil
	}
	var category *lir.CategoryT
	if reg, ok := value.(*lir.RegisterT); ok {
		category = reg.Category
	} else {
		category = liveness.target.CategoryFor(value.PlatformKind())
	}
	if category == nil {
		return nil, internalError("no register category for %s values (%s)", value.PlatformKind(), value)
	}
	interval := newInterval(value, number, category.Number)
	liveness.intervals.Set(number, interval)
	return interval, nil
}

func (liveness *LivenessT) interval(value lir.ValueT) *IntervalT {
	return liveness.intervals.Get(liveness.target.OperandNumber(value))
}

func (liveness *LivenessT) allocatableCallerSaved() []*lir.RegisterT {
	return util.Filter(liveness.target.IsAllocatable, liveness.target.CallerSaved())
}

//----------------------------------------------------------------
// Block-local gen and kill sets.

func (liveness *LivenessT) computeLocalLiveSets() error {
	blocks := liveness.function.Blocks
	liveness.liveGen = make([]*util.BitSetT, len(blocks))
	liveness.liveKill = make([]*util.BitSetT, len(blocks))
	liveness.liveIn = make([]*util.BitSetT, len(blocks))
	liveness.liveOut = make([]*util.BitSetT, len(blocks))
	var err error
	for _, block := range blocks {
		gen := util.NewBitSet()
		kill := util.NewBitSet()
		note := func(operand *lir.OperandT, isUse bool) {
			if err != nil || !liveness.isProcessed(operand.Value) {
				return
			}
			interval, ierr := liveness.getOrCreateInterval(operand.Value)
			if ierr != nil {
				err = ierr
				return
			}
			if !isUse {
				kill.Set(interval.Number)
			} else if !kill.Get(interval.Number) {
				gen.Set(interval.Number)
			}
		}
		for _, instr := range block.Instructions {
			instr.ForEachOperand(lir.UseMode, func(operand *lir.OperandT) { note(operand, true) })
			instr.ForEachOperand(lir.AliveMode, func(operand *lir.OperandT) { note(operand, true) })
			instr.ForEachOperand(lir.StateMode, func(operand *lir.OperandT) { note(operand, true) })
			if instr.DestroysCallerSaved {
				for _, reg := range liveness.allocatableCallerSaved() {
					note(&lir.OperandT{Value: reg}, false)
				}
			}
			instr.ForEachOperand(lir.TempMode, func(operand *lir.OperandT) { note(operand, false) })
			instr.ForEachOperand(lir.DefMode, func(operand *lir.OperandT) { note(operand, false) })
		}
		if err != nil {
			return err
		}
		liveness.liveGen[block.Index] = gen
		liveness.liveKill[block.Index] = kill
		liveness.liveIn[block.Index] = util.NewBitSet()
		liveness.liveOut[block.Index] = util.NewBitSet()
	}
	return nil
}

//----------------------------------------------------------------
// Global live-in and live-out sets.  The strongly connected components
// are solved one at a time, successors first, so only the blocks within
// a loop need to be iterated.

func (liveness *LivenessT) computeGlobalLiveSets() error {
	components := util.StronglyConnectedComponents(liveness.function.Blocks,
		func(block *lir.BlockT) []*lir.BlockT { return block.Successors })
	for i := len(components) - 1; 0 <= i; i-- {
		if err := liveness.solveComponent(components[i]); err != nil {
			return err
		}
	}
	return nil
}

func (liveness *LivenessT) solveComponent(component []*lir.BlockT) error {
	inComponent := util.NewSet(component...)
	// Later blocks first, as the sets flow backwards.
	queue := util.MakePriorityQueue(func(x *lir.BlockT, y *lir.BlockT) bool {
		return x.Index > y.Index
	})
	for _, block := range component {
		queue.Enqueue(block)
	}
	// Each pass over a block can only add values to its live-in set.
	limit := len(component) * (liveness.intervals.Len() + 2)
	for steps := 0; !queue.Empty(); steps++ {
		if limit < steps {
			return internalError("live sets did not converge in block %s", component[0])
		}
		block := queue.Dequeue()
		liveOut := util.NewBitSet()
		for _, succ := range block.Successors {
			liveOut.Union(liveness.liveIn[succ.Index])
		}
		liveIn := liveOut.Copy()
		liveIn.Difference(liveness.liveKill[block.Index])
		liveIn.Union(liveness.liveGen[block.Index])
		liveness.liveOut[block.Index] = liveOut
		if !liveIn.Equal(liveness.liveIn[block.Index]) {
			liveness.liveIn[block.Index] = liveIn
			for _, pred := range block.Predecessors {
				if inComponent.Contains(pred) {
					queue.Enqueue(pred)
				}
			}
		}
	}
	return nil
}

// The values that are live on entry to the function without being
// defined, reported by the driver.

func (liveness *LivenessT) UndefinedValues() []string {
	if len(liveness.function.Blocks) == 0 {
		return nil
	}
	result := []string{}
	liveness.liveIn[0].Scan(func(id int) {
		if liveness.firstVariableNumber <= id {
			result = append(result, liveness.ValueString(id))
		}
	})
	return result
}

//----------------------------------------------------------------
// Intervals are built walking backwards through the blocks and
// instructions.

func (liveness *LivenessT) buildIntervals() {
	blocks := liveness.function.Blocks
	callerSaved := liveness.allocatableCallerSaved()
	for b := len(blocks) - 1; 0 <= b; b-- {
		block := blocks[b]
		blockFrom := block.FirstId()
		blockTo := block.LastId()
		atLoopEnd := util.Any(func(succ *lir.BlockT) bool {
			return succ.LoopHeader == succ && succ.Index <= block.Index
		}, block.Successors)
		liveness.liveOut[block.Index].Scan(func(id int) {
			interval := liveness.intervals.Get(id)
			interval.addLiveRange(blockFrom, blockTo+2)
			if atLoopEnd {
				interval.addUse(blockTo+1, LiveAtLoopEnd)
			}
		})
		for i := len(block.Instructions) - 1; 0 <= i; i-- {
			instr := block.Instructions[i]
			id := instr.Id
			if instr.DestroysCallerSaved {
				for _, reg := range callerSaved {
					liveness.addTemp(reg, id, PriorityNone)
				}
			}
			defPriority := MustHaveRegister
			if instr.IsLabel() {
				defPriority = PriorityNone
			}
			instr.ForEachOperand(lir.DefMode, func(operand *lir.OperandT) {
				liveness.addDef(operand.Value, id, defPriority)
			})
			instr.ForEachOperand(lir.TempMode, func(operand *lir.OperandT) {
				liveness.addTemp(operand.Value, id, MustHaveRegister)
			})
			instr.ForEachOperand(lir.AliveMode, func(operand *lir.OperandT) {
				liveness.addUse(operand.Value, blockFrom, id+1, usePriority(operand))
			})
			instr.ForEachOperand(lir.UseMode, func(operand *lir.OperandT) {
				liveness.addUse(operand.Value, blockFrom, id, usePriority(operand))
			})
			instr.ForEachOperand(lir.StateMode, func(operand *lir.OperandT) {
				liveness.addUse(operand.Value, blockFrom, id+1, PriorityNone)
			})
		}
	}
}

func usePriority(operand *lir.OperandT) RegisterPriorityT {
	if operand.StackAllowed() {
		return ShouldHaveRegister
	}
	return MustHaveRegister
}

// A value with no later use gets a range covering just its def.

func (liveness *LivenessT) addDef(value lir.ValueT, pos int, priority RegisterPriorityT) {
	if !liveness.isProcessed(value) {
		return
	}
	interval := liveness.interval(value)
	if first := interval.first(); first != nil && first.From <= pos {
		first.From = pos
	} else {
		interval.addLiveRange(pos, pos+1)
	}
	interval.addUse(pos, priority)
	interval.DefPosition = pos
}

func (liveness *LivenessT) addUse(value lir.ValueT, from int, to int, priority RegisterPriorityT) {
	if !liveness.isProcessed(value) {
		return
	}
	interval := liveness.interval(value)
	interval.addLiveRange(from, to)
	interval.addUse(to, priority)
}

func (liveness *LivenessT) addTemp(value lir.ValueT, pos int, priority RegisterPriorityT) {
	if !liveness.isProcessed(value) {
		return
	}
	interval := liveness.interval(value)
	interval.addLiveRange(pos, pos+1)
	interval.addUse(pos, priority)
}

//----------------------------------------------------------------
// RangeModelT methods

func (liveness *LivenessT) InterferenceGraphs() []*InterferenceGraphT {
	return liveness.graphs
}

// Rebuilds the graphs from the current ranges.
func (liveness *LivenessT) RebuildGraph() {
	liveness.graphs = make([]*InterferenceGraphT, len(liveness.target.Categories))
	members := make([][]*IntervalT, len(liveness.target.Categories))
	for i := range liveness.graphs {
		liveness.graphs[i] = NewInterferenceGraph()
	}
	for _, interval := range liveness.Intervals() {
		liveness.graphs[interval.Category].AddNode(interval.Number)
		members[interval.Category] = append(members[interval.Category], interval)
	}
	for category, intervals := range members {
		graph := liveness.graphs[category]
		for i, current := range intervals {
			for _, other := range intervals[i+1:] {
				if current.Interferes(other) {
					graph.SetEdge(current.Number, other.Number, true)
				}
			}
		}
	}
}

func (liveness *LivenessT) CategoryNumbers() map[*lir.CategoryT]int {
	return liveness.categoryNumbers
}

func (liveness *LivenessT) ValueString(id int) string {
	if id < liveness.firstVariableNumber {
		return liveness.target.Registers[id].Name
	}
	if interval := liveness.intervals.Get(id); interval != nil {
		return interval.Operand.String()
	}
	return "v" + strconv.Itoa(id-liveness.firstVariableNumber)
}

// Node names for graph dumps.
func (liveness *LivenessT) GraphString(id int) string {
	if id < liveness.firstVariableNumber {
		return liveness.target.Registers[id].Name
	}
	return "v" + strconv.Itoa(id-liveness.firstVariableNumber)
}

// Adds the register window needed to store or reload 'interval' at
// 'pos'.

func (liveness *LivenessT) AddTemp(interval *IntervalT, pos int) {
	interval.setRanges(append(interval.Ranges, interval.registerWindow(pos)))
}

func (liveness *LivenessT) Interval(id int) *IntervalT {
	if id < 0 {
		return nil
	}
	return liveness.intervals.Get(id)
}

func (liveness *LivenessT) Intervals() []*IntervalT {
	return util.Filter(func(interval *IntervalT) bool { return interval != nil },
		liveness.intervals.Slice())
}

// The block containing instruction position 'pos'.
func (liveness *LivenessT) BlockAt(pos int) *lir.BlockT {
	for _, block := range liveness.function.Blocks {
		if block.FirstId() <= pos && pos <= block.LastId()+1 {
			return block
		}
	}
	return nil
}

func (liveness *LivenessT) LiveIn(block *lir.BlockT) *util.BitSetT {
	return liveness.liveIn[block.Index]
}

func (liveness *LivenessT) LiveOut(block *lir.BlockT) *util.BitSetT {
	return liveness.liveOut[block.Index]
}
