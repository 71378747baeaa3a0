// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Chaitin-style graph coloring register allocation.
//
// Each register category has its own interference graph.  Nodes are
// removed from the graph (simplify) until only the precolored
// registers remain, pushing them on a stack, and are then put back
// and colored in reverse order (select).  Nodes that cannot be
// colored are spilled, either over their whole lifetime or only where
// they overlap one of their neighbours, and the graphs are rebuilt
// and colored again.

package alloc

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/s48/graphcolor/lir"
	"github.com/s48/graphcolor/util"
)

const DefaultMaxSpillRounds = 500

type OptionsT struct {
	RegionSpilling bool // spill only where a neighbour overlaps
	MaxSpillRounds int
	Logger         *zap.Logger
	Dumper         DumperT
}

type OptionT func(*OptionsT)

func WithRegionSpilling(on bool) OptionT {
	return func(options *OptionsT) { options.RegionSpilling = on }
}

func WithMaxSpillRounds(rounds int) OptionT {
	return func(options *OptionsT) { options.MaxSpillRounds = rounds }
}

func WithLogger(logger *zap.Logger) OptionT {
	return func(options *OptionsT) { options.Logger = logger }
}

func WithDumper(dumper DumperT) OptionT {
	return func(options *OptionsT) { options.Dumper = dumper }
}

type StatsT struct {
	SpillRounds       int
	Spilled           int // intervals with a spill slot
	SpillStores       int
	SpillLoads        int
	ResolutionMoves   int
	StackToStackMoves int
}

type ResultT struct {
	Unit       string
	Intervals  []*IntervalT
	Colors     [][]int // by category, then node id; -1 for no color
	AllocRegs  [][]*lir.RegisterT
	Graphs     []*InterferenceGraphT // the final, colored graphs
	SpillSlots []*lir.StackSlotT
	Stats      StatsT
}

// A node removed from the graph, with the neighbours it had then.

type stackObjectT struct {
	id             int
	edges          []int
	spillCandidate bool
}

type allocatorT struct {
	unit                string
	function            *lir.FunctionT
	target              *lir.RegisterConfigT
	options             OptionsT
	logger              *zap.Logger
	ranges              RangeModelT
	firstVariableNumber int

	graphs      []*InterferenceGraphT
	allocRegs   [][]*lir.RegisterT
	stacks      []util.StackT[stackObjectT]
	spillQueues []util.QueueT[stackObjectT]
	colors      []*util.GrowableT[int]
	foundColor  bool
	failed      []int // nodes select() could not color
	round       int
	stats       StatsT
}

// Allocates registers for 'function', rewriting it in place so that it
// refers only to registers, stack slots and constants.

func Allocate(ctx context.Context, function *lir.FunctionT, target *lir.RegisterConfigT, options ...OptionT) (*ResultT, error) {
	opts := OptionsT{
		MaxSpillRounds: DefaultMaxSpillRounds,
		Logger:         zap.NewNop(),
		Dumper:         NopDumper}
	for _, option := range options {
		option(&opts)
	}
	allocator := &allocatorT{
		unit:                function.Name,
		function:            function,
		target:              target,
		options:             opts,
		logger:              opts.Logger.With(zap.String("unit", function.Name)),
		firstVariableNumber: target.FirstVariableNumber()}
	result, err := allocator.run(ctx)
	if err != nil {
		var allocErr *AllocationErrorT
		if errors.As(err, &allocErr) && allocErr.Unit == "" {
			allocErr.Unit = function.Name
		}
		return nil, err
	}
	return result, nil
}

func (allocator *allocatorT) run(ctx context.Context) (*ResultT, error) {
	if err := lir.CheckFunction(allocator.function); err != nil {
		return nil, &AllocationErrorT{Kind: Internal, Message: "malformed function", Err: err}
	}
	liveness, err := BuildLiveness(allocator.function, allocator.target)
	if err != nil {
		return nil, err
	}
	allocator.ranges = liveness
	count := len(allocator.target.Categories)
	allocator.allocRegs = make([][]*lir.RegisterT, count)
	for _, category := range allocator.target.Categories {
		number := allocator.ranges.CategoryNumbers()[category]
		allocator.allocRegs[number] = allocator.target.AllocatableIn(category)
	}
	allocator.stacks = make([]util.StackT[stackObjectT], count)
	allocator.spillQueues = make([]util.QueueT[stackObjectT], count)
	allocator.colors = make([]*util.GrowableT[int], count)

	if err := allocator.colorGraph(); err != nil {
		return nil, err
	}
	for !allocator.foundColor && allocator.haveSpillCandidates() && allocator.round < allocator.options.MaxSpillRounds {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", allocator.unit, err)
		}
		allocator.round += 1
		allocator.logger.Debug("spill round",
			zap.Int("round", allocator.round),
			zap.Ints("candidates", allocator.spillQueueSizes()))
		if allocator.options.RegionSpilling {
			progress, err := allocator.interferenceRegionSpill()
			if err != nil {
				return nil, err
			}
			if !progress {
				break
			}
		} else if err := allocator.spill(); err != nil {
			return nil, err
		}
		if err := allocator.colorGraph(); err != nil {
			return nil, err
		}
	}
	if !allocator.foundColor {
		return nil, &AllocationErrorT{
			Kind:       NoColoring,
			Message:    fmt.Sprintf("no coloring after %d spill rounds", allocator.round),
			Candidates: util.Map(allocator.ranges.ValueString, allocator.failed)}
	}
	if err := allocator.assignLocations(); err != nil {
		return nil, err
	}
	if err := allocator.resolveDataFlow(); err != nil {
		return nil, err
	}
	return allocator.result(), nil
}

func (allocator *allocatorT) haveSpillCandidates() bool {
	return util.Any(func(queue util.QueueT[stackObjectT]) bool { return !queue.Empty() },
		allocator.spillQueues)
}

func (allocator *allocatorT) spillQueueSizes() []int {
	return util.Map(func(queue util.QueueT[stackObjectT]) int { return queue.Len() },
		allocator.spillQueues)
}

func (allocator *allocatorT) categoryName(category int) string {
	return allocator.target.Categories[category].Name
}

func (allocator *allocatorT) result() *ResultT {
	result := &ResultT{
		Unit:       allocator.unit,
		Intervals:  allocator.ranges.Intervals(),
		AllocRegs:  allocator.allocRegs,
		Graphs:     allocator.graphs,
		SpillSlots: allocator.function.Frame.Slots,
		Stats:      allocator.stats}
	for _, colors := range allocator.colors {
		result.Colors = append(result.Colors, slices.Clone(colors.Slice()))
	}
	for _, interval := range result.Intervals {
		if interval.IsSpilled() {
			result.Stats.Spilled += 1
		}
	}
	result.Stats.SpillRounds = allocator.round
	return result
}

//----------------------------------------------------------------
// Coloring

func (allocator *allocatorT) colorGraph() error {
	allocator.graphs = allocator.ranges.InterferenceGraphs()
	allocator.foundColor = true
	allocator.failed = nil
	for _, interval := range allocator.ranges.Intervals() {
		if interval.IsRegister() {
			interval.Location = interval.Operand.(*lir.RegisterT)
		} else {
			interval.Location = nil
		}
	}
	for category, graph := range allocator.graphs {
		allocator.stacks[category].Clear()
		allocator.spillQueues[category].Clear()
		allocator.colors[category] = util.NewGrowable(-1)
		name := allocator.categoryName(category)
		allocator.options.Dumper.DumpGraph(allocator.unit, allocator.round, name, graph, allocator.ranges.GraphString)
		if err := allocator.simplify(category); err != nil {
			return err
		}
		allocator.selectColors(category)
		allocator.options.Dumper.DumpColors(allocator.unit, allocator.round, name,
			allocator.colors[category].Slice(), allocator.ranges.GraphString)
	}
	return nil
}

func (allocator *allocatorT) simplify(category int) error {
	graph := allocator.graphs[category]
	nRegs := 0
	for _, id := range graph.Nodes() {
		if id < allocator.firstVariableNumber {
			reg := allocator.target.Registers[id]
			color := slices.Index(allocator.allocRegs[category], reg)
			if color == -1 {
				allocator.logger.Warn("fixed register not in allocatable registers",
					zap.String("register", reg.Name))
			}
			allocator.colors[category].Set(id, color)
			nRegs += 1
		}
	}
	for nRegs < graph.Size() {
		allocator.removeNodes(category)
		if nRegs < graph.Size() {
			if err := allocator.chooseSpillCandidate(category); err != nil {
				return err
			}
		}
	}
	if graph.Size() != nRegs {
		allocator.logger.Warn("graph size mismatch after simplify",
			zap.String("category", allocator.categoryName(category)),
			zap.Int("size", graph.Size()),
			zap.Int("registers", nRegs))
	}
	return nil
}

// Removes virtual nodes with fewer neighbours than there are
// registers until there are none left to remove.

func (allocator *allocatorT) removeNodes(category int) {
	graph := allocator.graphs[category]
	k := len(allocator.allocRegs[category])
	for removed := true; removed; {
		removed = false
		for _, id := range graph.Nodes() {
			if allocator.firstVariableNumber <= id && graph.Contains(id) && graph.Degree(id) < k {
				edges := graph.RemoveNode(id)
				allocator.stacks[category].Push(stackObjectT{id: id, edges: edges})
				removed = true
			}
		}
	}
}

// Removes the node with the fewest uses per neighbour, preferring
// ones that have not been spilled already.  The node may still get a
// color in select().

func (allocator *allocatorT) chooseSpillCandidate(category int) error {
	graph := allocator.graphs[category]
	best := -1
	bestRatio := 0.0
	find := func(skipSpilled bool) {
		for _, id := range graph.Nodes() {
			if id < allocator.firstVariableNumber {
				continue
			}
			interval := allocator.ranges.Interval(id)
			if skipSpilled && interval.IsSpilled() {
				continue
			}
			ratio := float64(len(interval.UsePositions)) / float64(max(1, graph.Degree(id)))
			if best == -1 || ratio < bestRatio {
				best = id
				bestRatio = ratio
			}
		}
	}
	find(true)
	if best == -1 {
		find(false)
	}
	if best == -1 {
		return internalError("%s graph has only registers left but is larger than %d",
			allocator.categoryName(category), graph.Size())
	}
	allocator.logger.Debug("spill candidate",
		zap.String("value", allocator.ranges.ValueString(best)),
		zap.Float64("ratio", bestRatio))
	edges := graph.RemoveNode(best)
	allocator.stacks[category].Push(stackObjectT{id: best, edges: edges, spillCandidate: true})
	return nil
}

func (allocator *allocatorT) selectColors(category int) {
	graph := allocator.graphs[category]
	regs := allocator.allocRegs[category]
	colors := allocator.colors[category]
	stack := &allocator.stacks[category]
	for !stack.Empty() {
		obj := stack.Pop()
		graph.AddNodeWithEdges(obj.id, obj.edges)
		if obj.id < allocator.firstVariableNumber {
			continue
		}
		used := util.NewBitSet()
		for _, neighbour := range graph.Neighbours(obj.id) {
			if color := colors.Get(neighbour); color != -1 {
				used.Set(color)
			}
		}
		interval := allocator.ranges.Interval(obj.id)
		color := -1
		for i := range regs {
			if !used.Get(i) {
				color = i
				break
			}
		}
		if color != -1 {
			colors.Set(obj.id, color)
			interval.Location = regs[color]
			continue
		}
		allocator.foundColor = false
		allocator.failed = append(allocator.failed, obj.id)
		graph.RemoveNode(obj.id)
		if !interval.IsSpilled() || allocator.options.RegionSpilling {
			allocator.spillQueues[category].Enqueue(obj)
		}
	}
}
