// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package alloc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/s48/graphcolor/lir"
)

// r0-r3 and f0-f1 allocatable, r0, r1 and f0 caller-saved, rbp fixed.

func testTarget(t *testing.T) *lir.RegisterConfigT {
	target := lir.NewRegisterConfig("test")
	cpu := target.AddCategory("cpu", lir.IntKind)
	fpu := target.AddCategory("fpu", lir.FloatKind)
	add := func(name string, category *lir.CategoryT, attributes lir.RegisterAttributesT) *lir.RegisterT {
		reg, err := target.AddRegister(name, category, attributes)
		if err != nil {
			t.Fatal(err)
		}
		return reg
	}
	r0 := add("r0", cpu, lir.RegisterAttributesT{Allocatable: true, CallerSaved: true})
	r1 := add("r1", cpu, lir.RegisterAttributesT{Allocatable: true, CallerSaved: true})
	add("r2", cpu, lir.RegisterAttributesT{Allocatable: true})
	add("r3", cpu, lir.RegisterAttributesT{Allocatable: true})
	add("rbp", cpu, lir.RegisterAttributesT{})
	f0 := add("f0", fpu, lir.RegisterAttributesT{Allocatable: true, CallerSaved: true})
	add("f1", fpu, lir.RegisterAttributesT{Allocatable: true})
	target.SetArguments(lir.IntKind, r0, r1)
	target.SetResults(lir.IntKind, r0)
	target.SetArguments(lir.FloatKind, f0)
	target.SetResults(lir.FloatKind, f0)
	return target
}

func readFunction(t *testing.T, target *lir.RegisterConfigT, text string) *lir.FunctionT {
	function, err := lir.ReadFunction(text, target)
	if err != nil {
		t.Fatalf("reading function: %v", err)
	}
	if err := lir.CheckFunction(function); err != nil {
		t.Fatalf("bad function: %v", err)
	}
	return function
}

func allocate(t *testing.T, function *lir.FunctionT, target *lir.RegisterConfigT, options ...OptionT) *ResultT {
	options = append([]OptionT{WithLogger(zaptest.NewLogger(t))}, options...)
	result, err := Allocate(context.Background(), function, target, options...)
	if err != nil {
		t.Fatalf("allocating %s: %v", function.Name, err)
	}
	if err := result.Verify(function); err != nil {
		t.Fatalf("bad allocation: %v\n%s", err, lir.FunctionString(function, true))
	}
	return result
}

// Allocates a copy of the function and checks that it computes the
// same results as the original.

func checkEvaluation(t *testing.T, text string, target *lir.RegisterConfigT, argLists [][]int64, options ...OptionT) *ResultT {
	original := readFunction(t, target, text)
	function := original.Copy()
	result := allocate(t, function, target, options...)
	for _, args := range argLists {
		expected, err := lir.Evaluate(original, target, args)
		if err != nil {
			t.Fatalf("%s: %v", original.Name, err)
		}
		actual, err := lir.Evaluate(function, target, args)
		if err != nil {
			t.Fatalf("%s after allocation: %v\n%s", original.Name, err, lir.FunctionString(function, true))
		}
		if !slices.Equal(expected, actual) {
			t.Errorf("%s%v returned %v before allocation and %v after\n%s",
				original.Name, args, expected, actual, lir.FunctionString(function, true))
		}
	}
	return result
}

const factText = `
(function fact (params r0) (results r0)
  (block b0
    (label)
    (move v0 r0)
    (jump b1 v0 1))
  (block b1
    (label v1 v2)
    (branch < v1 2 b3 b2))
  (block b2
    (label)
    (* v3 v2 v1)
    (- v4 v1 1)
    (jump b1 v4 v3))
  (block b3
    (label)
    (move r0 v2)
    (return r0)))
`

// Four values live at once at (* v3 v0 v1).
const pressureText = `
(function pressure (params r0 r1) (results r0)
  (block b0
    (label)
    (move v0 r0)
    (move v1 r1)
    (+ v2 v0 v1)
    (* v3 v0 v1)
    (- v4 v2 v3)
    (+ v5 v4 v0)
    (+ v6 v5 v1)
    (move r0 v6)
    (return r0)))
`

// v0 is live throughout; v1 overlaps it early and v2 late.
const regionsText = `
(function regions (params r0) (results r0)
  (block b0
    (label)
    (move v0 r0)
    (move v1 1)
    (+ v3 v1 1)
    (+ v4 v0 v3)
    (move v2 2)
    (+ v5 v2 v4)
    (+ v6 v0 v5)
    (move r0 v6)
    (return r0)))
`

func bothModes(t *testing.T, f func(t *testing.T, options ...OptionT)) {
	t.Run("whole", func(t *testing.T) { f(t, WithRegionSpilling(false)) })
	t.Run("region", func(t *testing.T) { f(t, WithRegionSpilling(true)) })
}

//----------------------------------------------------------------

func TestFactIntervals(t *testing.T) {
	target := testTarget(t)
	function := readFunction(t, target, factText)
	liveness, err := BuildLiveness(function, target)
	if err != nil {
		t.Fatal(err)
	}
	first := target.FirstVariableNumber()
	for _, test := range []struct {
		number int
		ranges []LifeRangeT
	}{
		{0, []LifeRangeT{{2, 5}}},
		{1, []LifeRangeT{{6, 14}}},
		{2, []LifeRangeT{{6, 12}, {18, 20}}},
		{3, []LifeRangeT{{12, 17}}},
		{4, []LifeRangeT{{14, 17}}},
	} {
		interval := liveness.Interval(first + test.number)
		if !slices.Equal(interval.ascendingRanges(), test.ranges) {
			t.Errorf("%s: expected ranges %v", interval, test.ranges)
		}
	}
	if defs := liveness.Interval(first + 1).DefPosition; defs != 6 {
		t.Errorf("v1 defined at %d", defs)
	}
	graph := liveness.InterferenceGraphs()[0]
	v := func(n int) int { return first + n }
	for _, edge := range [][2]int{{v(1), v(2)}, {v(1), v(3)}, {v(3), v(4)}} {
		if !graph.HasEdge(edge[0], edge[1]) {
			t.Errorf("missing edge %v", edge)
		}
	}
	// The input to (* v3 v2 v1) dies where v3 is born.
	if graph.HasEdge(v(2), v(3)) || graph.HasEdge(v(1), v(4)) {
		t.Errorf("unexpected edges %v", graph.Edges())
	}
	if undefined := liveness.UndefinedValues(); len(undefined) != 0 {
		t.Errorf("undefined values %v", undefined)
	}
}

func TestRebuildGraphIsIdempotent(t *testing.T) {
	target := testTarget(t)
	for _, text := range []string{factText, pressureText, regionsText} {
		function := readFunction(t, target, text)
		liveness, err := BuildLiveness(function, target)
		if err != nil {
			t.Fatal(err)
		}
		before := []*InterferenceGraphT{}
		for _, graph := range liveness.InterferenceGraphs() {
			before = append(before, graph.Clone())
		}
		liveness.RebuildGraph()
		liveness.RebuildGraph()
		for i, graph := range liveness.InterferenceGraphs() {
			if !graph.Equal(before[i]) {
				t.Errorf("%s: category %d graph changed from %v to %v",
					function.Name, i, before[i].Edges(), graph.Edges())
			}
		}
	}
}

//----------------------------------------------------------------

// Registers only: nothing to color, nothing inserted.

func TestRegistersOnly(t *testing.T) {
	target := testTarget(t)
	text := `
(function registers (params r0 r1 rbp) (results r2)
  (block b0
    (label)
    (+ r2 r0 r1)
    (+ r2 r1 r2)
    (return r2 rbp)))
`
	function := readFunction(t, target, text)
	count := len(function.Blocks[0].Instructions)
	result := allocate(t, function, target)
	if result.Stats.Spilled != 0 || result.Stats.SpillRounds != 0 {
		t.Errorf("spilled %d in %d rounds", result.Stats.Spilled, result.Stats.SpillRounds)
	}
	if len(function.Blocks[0].Instructions) != count {
		t.Errorf("instructions were added\n%s", lir.FunctionString(function, true))
	}
	results, err := lir.Evaluate(function, target, []int64{3, 4, 100})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(results, []int64{11, 100}) {
		t.Errorf("returned %v", results)
	}
}

func TestNoSpillsNeeded(t *testing.T) {
	target := testTarget(t)
	bothModes(t, func(t *testing.T, options ...OptionT) {
		result := checkEvaluation(t, factText, target, [][]int64{{1}, {5}, {6}}, options...)
		if result.Stats.Spilled != 0 || len(result.SpillSlots) != 0 {
			t.Errorf("spilled %d values", result.Stats.Spilled)
		}
		if result.Stats.ResolutionMoves == 0 {
			t.Errorf("no phi moves")
		}
		result = checkEvaluation(t, factText, target.Restrict(2), [][]int64{{1}, {5}, {6}}, options...)
		if result.Stats.Spilled != 0 {
			t.Errorf("spilled %d values with two registers", result.Stats.Spilled)
		}
	})
}

// A value used but never defined is live on entry and still gets a
// register.

func TestUndefinedValue(t *testing.T) {
	target := testTarget(t)
	text := `
(function undefined (params rbp) (results r0)
  (block b0
    (label)
    (move r0 v2)
    (return r0 rbp)))
`
	function := readFunction(t, target, text)
	liveness, err := BuildLiveness(function.Copy(), target)
	if err != nil {
		t.Fatal(err)
	}
	if undefined := liveness.UndefinedValues(); !slices.Equal(undefined, []string{"v2"}) {
		t.Errorf("undefined values %v", undefined)
	}
	result := allocate(t, function, target)
	if interval := result.Intervals[len(result.Intervals)-1]; interval.DefPosition != -1 || interval.Location == nil {
		t.Errorf("undefined interval %s defined at %d in %v", interval, interval.DefPosition, interval.Location)
	}
}

// Three values needed in registers by the same instruction can't fit
// in two registers however they are spilled.

func TestNoColoring(t *testing.T) {
	target := testTarget(t).Restrict(2)
	text := `
(function clique (results r0)
  (block b0
    (label)
    (move v0 1)
    (move v1 2)
    (move v2 3)
    (return v0 v1 v2)))
`
	bothModes(t, func(t *testing.T, options ...OptionT) {
		function := readFunction(t, target, text)
		_, err := Allocate(context.Background(), function, target, options...)
		if !errors.Is(err, ErrNoColoring) || errors.Is(err, ErrInternal) {
			t.Fatalf("expected no coloring, got %v", err)
		}
		var allocErr *AllocationErrorT
		if !errors.As(err, &allocErr) {
			t.Fatalf("error %v is not an AllocationErrorT", err)
		}
		if !allocErr.Retryable() || allocErr.Unit != "clique" || len(allocErr.Candidates) == 0 {
			t.Errorf("unexpected error %#v", allocErr)
		}
		if !strings.HasPrefix(err.Error(), "clique: ") {
			t.Errorf("error message %q", err.Error())
		}
	})
}

func TestMaxSpillRounds(t *testing.T) {
	target := testTarget(t).Restrict(2)
	function := readFunction(t, target, pressureText)
	_, err := Allocate(context.Background(), function, target, WithMaxSpillRounds(1))
	if !errors.Is(err, ErrNoColoring) {
		t.Fatalf("expected no coloring after one round, got %v", err)
	}
}

func TestCanceled(t *testing.T) {
	target := testTarget(t).Restrict(2)
	function := readFunction(t, target, pressureText)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Allocate(ctx, function, target)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestMalformedFunction(t *testing.T) {
	target := testTarget(t)
	function := lir.NewFunction("bad")
	function.AddBlock("b0").Add(lir.NewLabel())
	_, err := Allocate(context.Background(), function, target)
	var allocErr *AllocationErrorT
	if !errors.Is(err, ErrInternal) || !errors.As(err, &allocErr) || allocErr.Retryable() {
		t.Fatalf("expected an internal error, got %v", err)
	}
	if allocErr.Unit != "bad" || allocErr.Err == nil {
		t.Errorf("unexpected error %#v", allocErr)
	}
}

//----------------------------------------------------------------
// Spilling

func TestWholeSpilling(t *testing.T) {
	target := testTarget(t).Restrict(2)
	args := [][]int64{{3, 4}, {-7, 12}, {0, 0}}
	result := checkEvaluation(t, pressureText, target, args, WithRegionSpilling(false))
	if result.Stats.Spilled == 0 || result.Stats.SpillLoads == 0 || result.Stats.SpillStores == 0 {
		t.Errorf("expected spilling, got %+v", result.Stats)
	}
	if len(result.SpillSlots) != result.Stats.Spilled {
		t.Errorf("%d slots for %d spilled values", len(result.SpillSlots), result.Stats.Spilled)
	}
}

func TestSpillingBothModes(t *testing.T) {
	target := testTarget(t).Restrict(2)
	bothModes(t, func(t *testing.T, options ...OptionT) {
		result := checkEvaluation(t, regionsText, target, [][]int64{{5}, {-2}}, options...)
		if result.Stats.Spilled == 0 {
			t.Errorf("nothing spilled")
		}
	})
}

// Cutting v0 against v1 and then against v2 leaves two separate
// reloads rather than one that spans both regions.

func TestRegionSpillReloads(t *testing.T) {
	target := testTarget(t)
	function := readFunction(t, target, regionsText)
	liveness, err := BuildLiveness(function, target)
	if err != nil {
		t.Fatal(err)
	}
	first := target.FirstVariableNumber()
	allocator := &allocatorT{
		unit:                function.Name,
		function:            function,
		target:              target,
		options:             OptionsT{RegionSpilling: true},
		logger:              zap.NewNop(),
		ranges:              liveness,
		firstVariableNumber: first}
	v0 := liveness.Interval(first)
	neighbours := []int{first + 1, first + 2}
	regions := allocator.interferenceRegions(v0, neighbours)
	if !slices.Equal(regions[0], []LifeRangeT{{4, 6}}) || !slices.Equal(regions[1], []LifeRangeT{{10, 12}}) {
		t.Fatalf("regions %v", regions)
	}
	if choice := allocator.chooseNeighbour(v0, neighbours, regions); choice != 0 {
		t.Fatalf("chose neighbour %d", choice)
	}
	if err := allocator.createNewLifeRanges(v0, regions[0]); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(v0.ascendingRanges(), []LifeRangeT{{2, 3}, {7, 14}}) {
		t.Fatalf("after the first cut %s", v0)
	}
	v0.NeighbourSpilled.Set(first + 1)
	if choice := allocator.chooseNeighbour(v0, neighbours, regions); choice != 1 {
		t.Fatalf("chose neighbour %d the second time", choice)
	}
	if err := allocator.createNewLifeRanges(v0, regions[1]); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(v0.ascendingRanges(), []LifeRangeT{{2, 3}, {7, 8}, {13, 14}}) {
		t.Fatalf("after the second cut %s", v0)
	}
	for _, lifeRange := range v0.Ranges {
		for _, region := range regions[0] {
			if lifeRange.Intersects(region) {
				t.Errorf("%s overlaps removed region %s", lifeRange, region)
			}
		}
	}
	stores := 0
	reloadsBefore := []int{}
	instrs := function.Blocks[0].Instructions
	for i, instr := range instrs {
		if !instr.IsInsertedMove() {
			continue
		}
		switch {
		case instr.Defs[0].Value == v0.Slot && instr.Uses[0].Value == v0.Operand:
			stores += 1
			if instrs[i-1].Id != 2 {
				t.Errorf("store follows %s", instrs[i-1])
			}
		case instr.Defs[0].Value == v0.Operand && instr.Uses[0].Value == v0.Slot:
			reloadsBefore = append(reloadsBefore, instrs[i+1].Id)
		}
	}
	if stores != 1 || !slices.Equal(reloadsBefore, []int{8, 14}) {
		t.Errorf("%d stores, reloads before %v\n%s", stores, reloadsBefore, lir.FunctionString(function, true))
	}
}

// A phi input is not stored after its label and is not in its
// register there; it is reloaded in front of its first use.

func TestRegionSpillPhiInput(t *testing.T) {
	target := testTarget(t)
	function := readFunction(t, target, factText)
	liveness, err := BuildLiveness(function, target)
	if err != nil {
		t.Fatal(err)
	}
	first := target.FirstVariableNumber()
	allocator := &allocatorT{
		unit:                function.Name,
		function:            function,
		target:              target,
		options:             OptionsT{RegionSpilling: true},
		logger:              zap.NewNop(),
		ranges:              liveness,
		firstVariableNumber: first}
	v2 := liveness.Interval(first + 2)
	if v2.defNeedsRegister() {
		t.Fatalf("label def %s needs a register", v2)
	}
	if err := allocator.createNewLifeRanges(v2, []LifeRangeT{{18, 20}}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(v2.ascendingRanges(), []LifeRangeT{{11, 12}, {19, 20}}) {
		t.Fatalf("ranges after spilling %s", v2)
	}
	stores := 0
	reloadsBefore := []int{}
	for _, block := range function.Blocks {
		for i, instr := range block.Instructions {
			switch {
			case !instr.IsInsertedMove():
			case instr.Defs[0].Value == v2.Slot:
				stores += 1
			case instr.Defs[0].Value == v2.Operand:
				reloadsBefore = append(reloadsBefore, block.Instructions[i+1].Id)
			}
		}
	}
	if stores != 0 || !slices.Equal(reloadsBefore, []int{12, 20}) {
		t.Errorf("%d stores, reloads before %v\n%s", stores, reloadsBefore, lir.FunctionString(function, true))
	}
	v2.Location = target.Register("r2")
	label := function.Blocks[1].Instructions[0]
	if location := allocator.locationFor(v2, label, lir.DefMode); location != v2.Slot {
		t.Errorf("label defines %s in %s", v2.Operand, location)
	}
}

// Loops whose phis carry more values than there are registers.

const swapLoopText = `
(function swap (params r0) (results r0)
  (block b0
    (label)
    (move v0 r0)
    (jump b1 1 2 0))
  (block b1
    (label v1 v2 v3)
    (branch < v3 v0 b2 b3))
  (block b2
    (label)
    (+ v4 v3 1)
    (jump b1 v2 v1 v4))
  (block b3
    (label)
    (* v5 v1 10)
    (+ v6 v5 v2)
    (move r0 v6)
    (return r0)))
`

const rotateLoopText = `
(function rotate (params r0 r1) (results r0)
  (block b0
    (label)
    (move v0 r0)
    (move v1 r1)
    (jump b1 v0 v1 3 4 0))
  (block b1
    (label v2 v3 v4 v5 v6)
    (branch < v6 5 b2 b3))
  (block b2
    (label)
    (+ v7 v2 v3)
    (- v8 v4 v2)
    (* v9 v5 2)
    (+ v10 v6 1)
    (jump b1 v3 v7 v8 v9 v10))
  (block b3
    (label)
    (+ v11 v2 v3)
    (+ v12 v11 v4)
    (+ v13 v12 v5)
    (move r0 v13)
    (return r0)))
`

var loopTests = []struct {
	text   string
	regs   []int
	args   [][]int64
	spills bool
}{
	{factText, []int{2, 3}, [][]int64{{1}, {5}, {7}}, false},
	{swapLoopText, []int{2, 3}, [][]int64{{0}, {3}, {4}}, true},
	{rotateLoopText, []int{3}, [][]int64{{1, 2}, {-3, 5}}, true},
}

func TestSpillingLoops(t *testing.T) {
	for _, test := range loopTests {
		for _, regs := range test.regs {
			target := testTarget(t).Restrict(regs)
			bothModes(t, func(t *testing.T, options ...OptionT) {
				result := checkEvaluation(t, test.text, target, test.args, options...)
				if test.spills && result.Stats.Spilled == 0 {
					t.Errorf("nothing spilled with %d registers", regs)
				}
			})
		}
	}
}

//----------------------------------------------------------------
// Phi resolution

// v0 is still live in b1, so it can't share a register with v1 and
// passing it to the label takes a move.

func TestPhiMoveBeforeJump(t *testing.T) {
	target := testTarget(t)
	text := `
(function phi (params r0) (results r0)
  (block b0
    (label)
    (move v0 r0)
    (jump b1 v0))
  (block b1
    (label v1)
    (+ v2 v1 v0)
    (move r0 v2)
    (return r0)))
`
	function := readFunction(t, target, text)
	result := allocate(t, function, target)
	if result.Stats.ResolutionMoves != 1 {
		t.Fatalf("%d resolution moves\n%s", result.Stats.ResolutionMoves, lir.FunctionString(function, true))
	}
	b0 := function.Blocks[0].Instructions
	if !b0[len(b0)-2].IsInsertedMove() || len(b0[len(b0)-1].Alives) != 0 {
		t.Errorf("move not before the jump\n%s", lir.FunctionString(function, true))
	}
	results, err := lir.Evaluate(function, target, []int64{5})
	if err != nil || !slices.Equal(results, []int64{10}) {
		t.Errorf("returned %v %v", results, err)
	}
}

// A branch has two successors, so the move goes after the label of
// the target, which has no other predecessors.

func TestPhiMoveAfterLabel(t *testing.T) {
	target := testTarget(t)
	text := `
(function phi2 (params r0) (results r0)
  (block b0
    (label)
    (move v0 r0)
    (branch < v0 0 b1 b1 v0))
  (block b1
    (label v1)
    (+ v2 v1 v0)
    (move r0 v2)
    (return r0)))
`
	function := readFunction(t, target, text)
	result := allocate(t, function, target)
	if result.Stats.ResolutionMoves != 1 {
		t.Fatalf("%d resolution moves\n%s", result.Stats.ResolutionMoves, lir.FunctionString(function, true))
	}
	b1 := function.Blocks[1].Instructions
	if !b1[1].IsInsertedMove() {
		t.Errorf("move not after the label\n%s", lir.FunctionString(function, true))
	}
	results, err := lir.Evaluate(function, target, []int64{-4})
	if err != nil || !slices.Equal(results, []int64{-8}) {
		t.Errorf("returned %v %v", results, err)
	}
}

func runMoves(moves []*lir.InstructionT, env map[string]int64) {
	for _, move := range moves {
		from := move.Uses[0].Value
		value := env[from.String()]
		if constant, ok := from.(*lir.ConstantT); ok {
			value = constant.Value
		}
		env[move.Defs[0].Value.String()] = value
	}
}

func TestMoveResolverCycle(t *testing.T) {
	target := testTarget(t)
	r0, r1, r2 := target.Register("r0"), target.Register("r1"), target.Register("r2")
	frame := &lir.FrameMapT{}
	resolver := newMoveResolver(frame)
	resolver.AddMapping(r0, r1)
	resolver.AddMapping(r1, r0)
	resolver.AddMapping(r1, r2)
	resolver.AddMapping(r0, r0)
	moves := resolver.Resolve()
	if len(moves) != 4 || len(frame.Slots) != 1 || resolver.cycleSlots != 1 {
		t.Fatalf("%d moves using %d slots", len(moves), len(frame.Slots))
	}
	env := map[string]int64{"r0": 10, "r1": 11, "r2": 12}
	runMoves(moves, env)
	if env["r0"] != 11 || env["r1"] != 10 || env["r2"] != 11 {
		t.Errorf("after moves %v", env)
	}
}

// The constant load waits until r1 has been copied out.

func TestMoveResolverChain(t *testing.T) {
	target := testTarget(t)
	r0, r1, r2 := target.Register("r0"), target.Register("r1"), target.Register("r2")
	frame := &lir.FrameMapT{}
	resolver := newMoveResolver(frame)
	resolver.AddMapping(r0, r1)
	resolver.AddMapping(r1, r2)
	resolver.AddMappingConstant(lir.IntConstant(7), r0)
	moves := resolver.Resolve()
	if len(moves) != 3 || len(frame.Slots) != 0 {
		t.Fatalf("%d moves using %d slots", len(moves), len(frame.Slots))
	}
	env := map[string]int64{"r0": 10, "r1": 11, "r2": 12}
	runMoves(moves, env)
	if env["r0"] != 7 || env["r1"] != 10 || env["r2"] != 11 {
		t.Errorf("after moves %v", env)
	}
}

//----------------------------------------------------------------

func TestFileDumper(t *testing.T) {
	target := testTarget(t)
	dir := filepath.Join(t.TempDir(), "dumps")
	dumper := NewFileDumper(dir, zaptest.NewLogger(t))
	function := readFunction(t, target, factText)
	allocate(t, function, target, WithDumper(dumper))
	// A graph and a coloring for each category.
	if dumper.Count() != 4 {
		t.Errorf("wrote %d files", dumper.Count())
	}
	dots, err := filepath.Glob(filepath.Join(dir, "fact-*-cpu.dot"))
	if err != nil || len(dots) != 1 {
		t.Fatalf("found %v %v", dots, err)
	}
	data, err := os.ReadFile(dots[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "graph Interferencegraph {") || !strings.Contains(string(data), `"v1" -- "v2";`) {
		t.Errorf("unexpected graph\n%s", data)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := error(&AllocationErrorT{Unit: "f", Kind: Internal, Message: "broken", Err: cause})
	if !errors.Is(err, ErrInternal) || !errors.Is(err, cause) || errors.Is(err, ErrNoColoring) {
		t.Errorf("unwrapping %v", err)
	}
	if err.Error() != "f: broken: cause" {
		t.Errorf("message %q", err.Error())
	}
}
