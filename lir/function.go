// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package lir

import (
	"math"

	"github.com/s48/graphcolor/util"
)

type BlockT struct {
	Name         string
	Index        int // position in the function's linear order
	Instructions []*InstructionT
	Successors   []*BlockT
	Predecessors []*BlockT
	LoopHeader   *BlockT // nil if not in a loop
	LoopDepth    int
	Frequency    float64 // relative execution frequency
}

func (block *BlockT) String() string { return block.Name }

func (block *BlockT) Add(instrs ...*InstructionT) {
	block.Instructions = append(block.Instructions, instrs...)
}

// The block's label, if it starts with one.
func (block *BlockT) Label() *InstructionT {
	if len(block.Instructions) == 0 || !block.Instructions[0].IsLabel() {
		return nil
	}
	return block.Instructions[0]
}

func (block *BlockT) Terminal() *InstructionT {
	if len(block.Instructions) == 0 {
		return nil
	}
	return util.Last(block.Instructions)
}

// The ids of the first and last numbered instructions, -1 if there
// are none.

func (block *BlockT) FirstId() int {
	for _, instr := range block.Instructions {
		if instr.Id != -1 {
			return instr.Id
		}
	}
	return -1
}

func (block *BlockT) LastId() int {
	for i := len(block.Instructions) - 1; 0 <= i; i-- {
		if block.Instructions[i].Id != -1 {
			return block.Instructions[i].Id
		}
	}
	return -1
}

// The values the block's predecessors must supply.
func (block *BlockT) PhiIns() []OperandT {
	if label := block.Label(); label != nil {
		return label.Defs
	}
	return nil
}

// The values this block passes to its successor's label.
func (block *BlockT) PhiOuts() []OperandT {
	if terminal := block.Terminal(); terminal != nil && terminal.Opcode != ReturnOp {
		return terminal.Alives
	}
	return nil
}

func (block *BlockT) ClearPhiOuts() {
	if terminal := block.Terminal(); terminal != nil && terminal.Opcode != ReturnOp {
		terminal.Alives = nil
	}
}

//----------------------------------------------------------------

// Spill slots.  Each call hands out a new slot; slots are never
// shared.

type FrameMapT struct {
	Slots []*StackSlotT
}

func (frame *FrameMapT) AllocateSpillSlot(kind KindT) *StackSlotT {
	slot := &StackSlotT{Index: len(frame.Slots), Platform: kind}
	frame.Slots = append(frame.Slots, slot)
	return slot
}

//----------------------------------------------------------------

type FunctionT struct {
	Name       string
	Blocks     []*BlockT // Blocks[0] is the entry
	Parameters []ValueT  // registers holding the arguments on entry
	Results    []ValueT  // registers holding the results at a return
	Frame      FrameMapT

	variableCount int
}

func NewFunction(name string) *FunctionT {
	return &FunctionT{Name: name}
}

func (function *FunctionT) NewVariable(kind KindT) *VariableT {
	vart := &VariableT{Number: function.variableCount, Platform: kind}
	function.variableCount += 1
	return vart
}

// Used when reading variables with given numbers.
func (function *FunctionT) NoteVariable(vart *VariableT) {
	if function.variableCount <= vart.Number {
		function.variableCount = vart.Number + 1
	}
}

func (function *FunctionT) VariableCount() int {
	return function.variableCount
}

func (function *FunctionT) AddBlock(name string) *BlockT {
	block := &BlockT{Name: name, Index: len(function.Blocks), Frequency: 1}
	function.Blocks = append(function.Blocks, block)
	return block
}

// Sets the successors and predecessors from the terminal instructions'
// targets.  A branch with both targets the same block gives that block
// two predecessor entries.

func (function *FunctionT) LinkBlocks() {
	for i, block := range function.Blocks {
		block.Index = i
		block.Successors = nil
		block.Predecessors = nil
	}
	for _, block := range function.Blocks {
		if terminal := block.Terminal(); terminal != nil {
			for _, target := range terminal.Targets {
				block.Successors = append(block.Successors, target)
				target.Predecessors = append(target.Predecessors, block)
			}
		}
	}
}

// Block frequencies are 10^loopDepth, capped to keep the sums sane.

const maxFrequencyDepth = 6

func (function *FunctionT) ComputeFrequencies() {
	if len(function.Blocks) == 0 {
		return
	}
	util.FindLoopBlocks(function.Blocks,
		func(block *BlockT) []*BlockT { return block.Successors },
		func(block *BlockT, header *BlockT, parent *BlockT, depth int) {
			block.LoopHeader = header
			block.LoopDepth = depth
			block.Frequency = math.Pow(10, float64(min(depth, maxFrequencyDepth)))
		})
}

// Numbers the instructions 0, 2, 4, ... in linear order.  The odd
// numbers are the points within each instruction after its inputs
// have been read.  Returns the number of instructions.

func (function *FunctionT) NumberInstructions() int {
	count := 0
	for _, block := range function.Blocks {
		for _, instr := range block.Instructions {
			instr.Id = count * 2
			count += 1
		}
	}
	return count
}

func (function *FunctionT) Block(name string) *BlockT {
	for _, block := range function.Blocks {
		if block.Name == name {
			return block
		}
	}
	return nil
}

// A copy that can be modified without changing 'function'.  Values
// are immutable and are shared.

func (function *FunctionT) Copy() *FunctionT {
	result := &FunctionT{
		Name:          function.Name,
		Parameters:    function.Parameters,
		Results:       function.Results,
		Frame:         FrameMapT{Slots: append([]*StackSlotT(nil), function.Frame.Slots...)},
		variableCount: function.variableCount}
	blockMap := map[*BlockT]*BlockT{}
	for _, block := range function.Blocks {
		newBlock := result.AddBlock(block.Name)
		blockMap[block] = newBlock
	}
	for _, block := range function.Blocks {
		newBlock := blockMap[block]
		for _, instr := range block.Instructions {
			newInstr := *instr
			newInstr.Defs = append([]OperandT(nil), instr.Defs...)
			newInstr.Uses = append([]OperandT(nil), instr.Uses...)
			newInstr.Temps = append([]OperandT(nil), instr.Temps...)
			newInstr.Alives = append([]OperandT(nil), instr.Alives...)
			newInstr.States = append([]OperandT(nil), instr.States...)
			newInstr.Targets = util.Map(func(b *BlockT) *BlockT { return blockMap[b] }, instr.Targets)
			newBlock.Add(&newInstr)
		}
	}
	result.LinkBlocks()
	for _, block := range function.Blocks {
		newBlock := blockMap[block]
		newBlock.LoopDepth = block.LoopDepth
		newBlock.Frequency = block.Frequency
		if block.LoopHeader != nil {
			newBlock.LoopHeader = blockMap[block.LoopHeader]
		}
	}
	return result
}
