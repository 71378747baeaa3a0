// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Reading functions from S-expressions.
//
//  (function <name> (params <reg> ...) (results <reg> ...)
//    (block <name> <instruction> ...) ...)
//
// Instructions:
//  (label <value> ...)                     phi values
//  (jump <block> <value> ...)              values passed to the target's label
//  (branch <op> <x> <y> <block> <block>)   goes to the first block if 'x op y'
//  (return <value> ...)
//  (move <to> <from>)
//  (<op> <result> <x> <y>)                 + - * / % & | ^ << >> &^ == != < <= > >=
//  (<op> <result> <x>)                     neg not com itof ftoi
//  (clobber)                               destroys the caller-saved registers
//  (nop)
// Any instruction may end with (temp ...), (alive ...) or (state ...).
// Values are variables 'v<n>' (or 'v<n>:f' for floats), register
// names, stack slots 's<n>', integers, or (float <x>).  A use can be
// wrapped in (stack ...) to allow a stack slot.  Bare integers in a
// block, as printed by Print, are ignored.

package lir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/s48/graphcolor/util"
)

var binaryOperators = util.NewSet("+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>", "&^",
	"==", "!=", "<", "<=", ">", ">=")

var unaryOperators = util.NewSet("neg", "not", "com", "itof", "ftoi")

func IsBinaryOperator(op string) bool { return binaryOperators.Contains(op) }
func IsUnaryOperator(op string) bool  { return unaryOperators.Contains(op) }

func ReadFunctions(text string, target *RegisterConfigT) ([]*FunctionT, error) {
	sexps, err := util.ParseSExps(text)
	if err != nil {
		return nil, err
	}
	result := []*FunctionT{}
	for _, sexp := range sexps {
		function, err := readFunction(sexp, target)
		if err != nil {
			return nil, err
		}
		result = append(result, function)
	}
	return result, nil
}

func ReadFunction(text string, target *RegisterConfigT) (*FunctionT, error) {
	sexp, err := util.ParseSExp(text)
	if err != nil {
		return nil, err
	}
	return readFunction(sexp, target)
}

type readerT struct {
	function  *FunctionT
	target    *RegisterConfigT
	variables map[int]*VariableT
}

func readFunction(sexp *util.SExpT, target *RegisterConfigT) (*FunctionT, error) {
	if !sexp.IsForm("function") || len(sexp.List) < 2 || sexp.List[1].Kind != util.SExpSymbol {
		return nil, fmt.Errorf("expected (function <name> ...), got %s", sexp)
	}
	reader := &readerT{
		function:  NewFunction(sexp.List[1].Symbol),
		target:    target,
		variables: map[int]*VariableT{}}
	function := reader.function
	blockForms := []*util.SExpT{}
	for _, form := range sexp.List[2:] {
		switch {
		case form.IsForm("params"), form.IsForm("results"):
			values, err := reader.readValues(form.List[1:])
			if err != nil {
				return nil, err
			}
			if form.IsForm("params") {
				function.Parameters = values
			} else {
				function.Results = values
			}
		case form.IsForm("block"):
			if len(form.List) < 2 || form.List[1].Kind != util.SExpSymbol {
				return nil, fmt.Errorf("%s: block has no name", function.Name)
			}
			if function.Block(form.List[1].Symbol) != nil {
				return nil, fmt.Errorf("%s: duplicate block %s", function.Name, form.List[1].Symbol)
			}
			function.AddBlock(form.List[1].Symbol)
			blockForms = append(blockForms, form)
		default:
			return nil, fmt.Errorf("%s: unexpected form %s", function.Name, form)
		}
	}
	for i, form := range blockForms {
		block := function.Blocks[i]
		for _, instrForm := range form.List[2:] {
			if instrForm.Kind == util.SExpInt {
				continue
			}
			instr, err := reader.readInstruction(instrForm)
			if err != nil {
				return nil, fmt.Errorf("%s: block %s: %w", function.Name, block.Name, err)
			}
			block.Add(instr)
		}
	}
	function.LinkBlocks()
	function.ComputeFrequencies()
	return function, nil
}

func (reader *readerT) readValue(sexp *util.SExpT) (ValueT, error) {
	switch sexp.Kind {
	case util.SExpInt:
		return IntConstant(int64(sexp.Integer)), nil
	case util.SExpList:
		if sexp.IsForm("float") && len(sexp.List) == 2 {
			x, err := strconv.ParseFloat(sexp.List[1].String(), 64)
			if err == nil {
				return FloatConstant(x), nil
			}
		}
		return nil, fmt.Errorf("bad value %s", sexp)
	}
	name := sexp.Symbol
	if reg := reader.target.Register(name); reg != nil {
		return reg, nil
	}
	if strings.HasPrefix(name, "v") {
		kind := IntKind
		digits := name[1:]
		if strings.HasSuffix(digits, ":f") {
			kind = FloatKind
			digits = digits[:len(digits)-2]
		}
		n, err := strconv.Atoi(digits)
		if err == nil && 0 <= n {
			vart := reader.variables[n]
			if vart == nil {
				vart = &VariableT{Number: n, Platform: kind}
				reader.variables[n] = vart
				reader.function.NoteVariable(vart)
			} else if vart.Platform != kind {
				return nil, fmt.Errorf("variable %s used with two kinds", name)
			}
			return vart, nil
		}
	}
	if strings.HasPrefix(name, "s") {
		n, err := strconv.Atoi(name[1:])
		if err == nil && 0 <= n {
			frame := &reader.function.Frame
			for len(frame.Slots) <= n {
				frame.AllocateSpillSlot(IntKind)
			}
			return frame.Slots[n], nil
		}
	}
	return nil, fmt.Errorf("unknown value %s", name)
}

func (reader *readerT) readValues(sexps []*util.SExpT) ([]ValueT, error) {
	values := make([]ValueT, len(sexps))
	for i, sexp := range sexps {
		value, err := reader.readValue(sexp)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// Uses may be wrapped in (stack ...).
func (reader *readerT) readUses(sexps []*util.SExpT) ([]OperandT, error) {
	operands := make([]OperandT, len(sexps))
	for i, sexp := range sexps {
		if sexp.IsForm("stack") && len(sexp.List) == 2 {
			sexp = sexp.List[1]
			operands[i].Flags = StackFlag
		}
		value, err := reader.readValue(sexp)
		if err != nil {
			return nil, err
		}
		operands[i].Value = value
	}
	return operands, nil
}

func (reader *readerT) readBlock(sexp *util.SExpT) (*BlockT, error) {
	if sexp.Kind == util.SExpSymbol {
		if block := reader.function.Block(sexp.Symbol); block != nil {
			return block, nil
		}
	}
	return nil, fmt.Errorf("unknown block %s", sexp)
}

func (reader *readerT) readInstruction(sexp *util.SExpT) (*InstructionT, error) {
	if sexp.Kind != util.SExpList || len(sexp.List) == 0 || sexp.List[0].Kind != util.SExpSymbol {
		return nil, fmt.Errorf("bad instruction %s", sexp)
	}
	args := sexp.List[1:]
	// Peel off the trailing operand groups.
	var temps, alives, states []*util.SExpT
	for 0 < len(args) {
		last := util.Last(args)
		if last.IsForm("temp") {
			temps = last.List[1:]
		} else if last.IsForm("alive") {
			alives = last.List[1:]
		} else if last.IsForm("state") {
			states = last.List[1:]
		} else {
			break
		}
		args = args[:len(args)-1]
	}
	instr, err := reader.readBody(sexp.List[0].Symbol, args, sexp)
	if err != nil {
		return nil, err
	}
	for _, group := range []struct {
		sexps    []*util.SExpT
		operands *[]OperandT
	}{{temps, &instr.Temps}, {alives, &instr.Alives}, {states, &instr.States}} {
		if group.sexps == nil {
			continue
		}
		operands, err := reader.readUses(group.sexps)
		if err != nil {
			return nil, err
		}
		*group.operands = append(*group.operands, operands...)
	}
	return instr, nil
}

func (reader *readerT) readBody(name string, args []*util.SExpT, sexp *util.SExpT) (*InstructionT, error) {
	wrongCount := func() (*InstructionT, error) {
		return nil, fmt.Errorf("wrong number of operands in %s", sexp)
	}
	switch {
	case name == "label":
		values, err := reader.readValues(args)
		if err != nil {
			return nil, err
		}
		return NewLabel(values...), nil
	case name == "jump":
		if len(args) < 1 {
			return wrongCount()
		}
		target, err := reader.readBlock(args[0])
		if err != nil {
			return nil, err
		}
		values, err := reader.readValues(args[1:])
		if err != nil {
			return nil, err
		}
		return NewJump(target, values...), nil
	case name == "branch":
		if len(args) < 5 || args[0].Kind != util.SExpSymbol || !IsBinaryOperator(args[0].Symbol) {
			return wrongCount()
		}
		uses, err := reader.readUses(args[1:3])
		if err != nil {
			return nil, err
		}
		ifTrue, err := reader.readBlock(args[3])
		if err != nil {
			return nil, err
		}
		ifFalse, err := reader.readBlock(args[4])
		if err != nil {
			return nil, err
		}
		instr := NewBranch(args[0].Symbol, nil, nil, ifTrue, ifFalse)
		instr.Uses = uses
		if 5 < len(args) {
			instr.Alives, err = reader.readUses(args[5:])
			if err != nil {
				return nil, err
			}
		}
		return instr, nil
	case name == "return":
		uses, err := reader.readUses(args)
		if err != nil {
			return nil, err
		}
		instr := NewReturn()
		instr.Uses = uses
		return instr, nil
	case name == "clobber", name == "nop":
		if len(args) != 0 {
			return wrongCount()
		}
		if name == "clobber" {
			return NewClobber(), nil
		}
		return NewNop(), nil
	}
	// The rest all have one result.
	if len(args) < 2 {
		return wrongCount()
	}
	result, err := reader.readValue(args[0])
	if err != nil {
		return nil, err
	}
	uses, err := reader.readUses(args[1:])
	if err != nil {
		return nil, err
	}
	var instr *InstructionT
	switch {
	case name == "move" && len(uses) == 1:
		instr = NewMove(result, uses[0].Value)
	case IsBinaryOperator(name) && len(uses) == 2:
		instr = NewBinary(name, result, nil, nil)
	case IsUnaryOperator(name) && len(uses) == 1:
		instr = NewUnary(name, result, nil)
	default:
		return nil, fmt.Errorf("unknown instruction %s", sexp)
	}
	instr.Uses = uses
	return instr, nil
}
