// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Printing functions in the same S-expression syntax that ReadFunction
// accepts.  Instruction ids, when shown, are in the left margin and
// are ignored by the reader.

package lir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

func Print(out io.Writer, function *FunctionT, showIds bool) {
	writer := MakeWriter(out)
	fmt.Fprintf(writer, "(function %s", function.Name)
	if 0 < len(function.Parameters) {
		writer.IndentTo(2)
		fmt.Fprintf(writer, "(params%s)", valueList(function.Parameters))
	}
	if 0 < len(function.Results) {
		writer.IndentTo(2)
		fmt.Fprintf(writer, "(results%s)", valueList(function.Results))
	}
	for _, block := range function.Blocks {
		writer.IndentTo(2)
		fmt.Fprintf(writer, "(block %s", block.Name)
		for _, instr := range block.Instructions {
			writer.Freshline()
			if showIds && instr.Id != -1 {
				fmt.Fprintf(writer, "%d", instr.Id)
			}
			writer.IndentTo(6)
			writeInstruction(writer, instr)
		}
		fmt.Fprintf(writer, ")")
	}
	fmt.Fprintf(writer, ")")
	writer.Newline()
}

func FunctionString(function *FunctionT, showIds bool) string {
	var builder strings.Builder
	Print(&builder, function, showIds)
	return builder.String()
}

func valueList(values []ValueT) string {
	var builder strings.Builder
	for _, value := range values {
		builder.WriteString(" ")
		builder.WriteString(value.String())
	}
	return builder.String()
}

func writeOperands(out io.Writer, operands []OperandT, showFlags bool) {
	for _, operand := range operands {
		if showFlags && operand.StackAllowed() {
			fmt.Fprintf(out, " (stack %s)", operand.Value)
		} else {
			fmt.Fprintf(out, " %s", operand.Value)
		}
	}
}

func writeInstruction(out io.Writer, instr *InstructionT) {
	switch instr.Opcode {
	case LabelOp:
		fmt.Fprintf(out, "(label")
		writeOperands(out, instr.Defs, false)
	case JumpOp:
		fmt.Fprintf(out, "(jump %s", instr.Targets[0])
		writeOperands(out, instr.Alives, false)
	case BranchOp:
		fmt.Fprintf(out, "(branch %s", instr.Operator)
		writeOperands(out, instr.Uses, true)
		fmt.Fprintf(out, " %s %s", instr.Targets[0], instr.Targets[1])
		writeOperands(out, instr.Alives, false)
	case ReturnOp:
		fmt.Fprintf(out, "(return")
		writeOperands(out, instr.Uses, true)
	case MoveOp, StackMoveOp:
		fmt.Fprintf(out, "(move")
		writeOperands(out, instr.Defs, false)
		writeOperands(out, instr.Uses, true)
	case BinaryOp, UnaryOp:
		fmt.Fprintf(out, "(%s", instr.Operator)
		writeOperands(out, instr.Defs, false)
		writeOperands(out, instr.Uses, true)
	case ClobberOp, NopOp:
		fmt.Fprintf(out, "(%s", instr.Opcode)
		writeOperands(out, instr.Defs, false)
		writeOperands(out, instr.Uses, true)
	default:
		panic("unknown opcode " + strconv.Itoa(int(instr.Opcode)))
	}
	if 0 < len(instr.Temps) {
		fmt.Fprintf(out, " (temp")
		writeOperands(out, instr.Temps, false)
		fmt.Fprintf(out, ")")
	}
	if 0 < len(instr.Alives) && instr.Opcode != JumpOp && instr.Opcode != BranchOp {
		fmt.Fprintf(out, " (alive")
		writeOperands(out, instr.Alives, false)
		fmt.Fprintf(out, ")")
	}
	if 0 < len(instr.States) {
		fmt.Fprintf(out, " (state")
		writeOperands(out, instr.States, false)
		fmt.Fprintf(out, ")")
	}
	fmt.Fprintf(out, ")")
}

//----------------------------------------------------------------
// An io.Writer that keeps track of the current column.

type WriterT struct {
	writer io.Writer
	Column int
}

func MakeWriter(writer io.Writer) *WriterT {
	return &WriterT{writer: writer, Column: 0}
}

func (writer *WriterT) Write(p []byte) (n int, err error) {
	for _, b := range p {
		if b == '\n' {
			writer.Column = 0
		} else {
			writer.Column += 1
		}
	}
	return writer.writer.Write(p)
}

func (writer *WriterT) Newline() {
	writer.Column = 0
	writer.writer.Write([]byte("\n"))
}

func (writer *WriterT) Freshline() {
	if writer.Column != 0 {
		writer.Newline()
	}
}

func (writer *WriterT) IndentTo(column int) {
	if writer.Column == column {
		return
	}
	count := column
	if writer.Column < column {
		count -= writer.Column
	} else {
		writer.Newline()
	}
	writer.writer.Write([]byte(strings.Repeat(" ", count)))
	writer.Column += count
}
