// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

package lir

import (
	"strings"
)

type OpcodeT int

const (
	LabelOp     OpcodeT = iota // defines the block's phi values
	JumpOp                     // one target, alives are the phi values passed to it
	BranchOp                   // compare the two uses, go to Targets[0] if true
	ReturnOp                   // uses are the results
	MoveOp                     // def <- use
	StackMoveOp                // slot <- slot
	BinaryOp                   // def <- use Operator use
	UnaryOp                    // def <- Operator use
	ClobberOp                  // destroys the caller-saved registers
	NopOp
)

var opcodeNames = []string{"label", "jump", "branch", "return", "move", "stack-move",
	"binary", "unary", "clobber", "nop"}

func (opcode OpcodeT) String() string {
	return opcodeNames[opcode]
}

type OperandFlagsT int

const (
	// The value may be in a stack slot instead of a register.
	StackFlag OperandFlagsT = 1 << iota
)

type OperandT struct {
	Value ValueT
	Flags OperandFlagsT
}

func (operand *OperandT) StackAllowed() bool {
	return operand.Flags&StackFlag != 0
}

func Operands(values ...ValueT) []OperandT {
	result := make([]OperandT, len(values))
	for i, value := range values {
		result[i] = OperandT{Value: value}
	}
	return result
}

type OperandModeT int

const (
	DefMode OperandModeT = iota
	UseMode
	TempMode
	AliveMode
	StateMode
)

// Ids are assigned by the allocator's numbering pass; instructions
// inserted afterwards have id -1.

type InstructionT struct {
	Id                  int
	Opcode              OpcodeT
	Operator            string
	Defs                []OperandT
	Uses                []OperandT
	Temps               []OperandT
	Alives              []OperandT
	States              []OperandT
	Targets             []*BlockT
	DestroysCallerSaved bool
}

func (instr *InstructionT) operands(mode OperandModeT) []OperandT {
	switch mode {
	case DefMode:
		return instr.Defs
	case UseMode:
		return instr.Uses
	case TempMode:
		return instr.Temps
	case AliveMode:
		return instr.Alives
	case StateMode:
		return instr.States
	}
	panic("bad operand mode")
}

// Calls 'f' on a pointer to each operand of the given mode, so that
// 'f' can replace the value.

func (instr *InstructionT) ForEachOperand(mode OperandModeT, f func(operand *OperandT)) {
	operands := instr.operands(mode)
	for i := range operands {
		f(&operands[i])
	}
}

func (instr *InstructionT) ForEach(f func(mode OperandModeT, operand *OperandT)) {
	for mode := DefMode; mode <= StateMode; mode++ {
		instr.ForEachOperand(mode, func(operand *OperandT) { f(mode, operand) })
	}
}

func (instr *InstructionT) IsLabel() bool {
	return instr.Opcode == LabelOp
}

func (instr *InstructionT) IsTerminal() bool {
	switch instr.Opcode {
	case JumpOp, BranchOp, ReturnOp:
		return true
	}
	return false
}

// Moves created after numbering, by spilling or by data-flow
// resolution.

func (instr *InstructionT) IsInsertedMove() bool {
	return instr.Id == -1 && (instr.Opcode == MoveOp || instr.Opcode == StackMoveOp)
}

func (instr *InstructionT) String() string {
	var builder strings.Builder
	writeInstruction(&builder, instr)
	return builder.String()
}

//----------------------------------------------------------------
// Instruction constructors.

func NewLabel(phis ...ValueT) *InstructionT {
	return &InstructionT{Id: -1, Opcode: LabelOp, Defs: Operands(phis...)}
}

func NewJump(target *BlockT, phis ...ValueT) *InstructionT {
	alives := Operands(phis...)
	for i := range alives {
		alives[i].Flags |= StackFlag
	}
	return &InstructionT{Id: -1, Opcode: JumpOp, Targets: []*BlockT{target}, Alives: alives}
}

func NewBranch(operator string, x ValueT, y ValueT, ifTrue *BlockT, ifFalse *BlockT) *InstructionT {
	return &InstructionT{Id: -1, Opcode: BranchOp, Operator: operator,
		Uses: Operands(x, y), Targets: []*BlockT{ifTrue, ifFalse}}
}

func NewReturn(results ...ValueT) *InstructionT {
	return &InstructionT{Id: -1, Opcode: ReturnOp, Uses: Operands(results...)}
}

func NewBinary(operator string, result ValueT, x ValueT, y ValueT) *InstructionT {
	return &InstructionT{Id: -1, Opcode: BinaryOp, Operator: operator,
		Defs: Operands(result), Uses: Operands(x, y)}
}

func NewUnary(operator string, result ValueT, x ValueT) *InstructionT {
	return &InstructionT{Id: -1, Opcode: UnaryOp, Operator: operator,
		Defs: Operands(result), Uses: Operands(x)}
}

func NewClobber() *InstructionT {
	return &InstructionT{Id: -1, Opcode: ClobberOp, DestroysCallerSaved: true}
}

func NewNop() *InstructionT {
	return &InstructionT{Id: -1, Opcode: NopOp}
}

// A move from 'from' to 'to'.  Slot to slot moves get their own
// opcode because they need a scratch register on real machines.

func NewMove(to ValueT, from ValueT) *InstructionT {
	opcode := MoveOp
	if IsStackSlot(to) && IsStackSlot(from) {
		opcode = StackMoveOp
	}
	return &InstructionT{Id: -1, Opcode: opcode, Defs: Operands(to), Uses: Operands(from)}
}
