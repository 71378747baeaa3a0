// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Run functions for testing.  The same interpreter handles code
// before register allocation, where values live in variables, and
// after, where they live in registers and stack slots.  Comparing the
// two results checks the allocation.

package lir

import (
	"fmt"
	"math"
)

// Written into the caller-saved registers by clobber instructions.
const ClobberValue int64 = 0x5a5a5a5a5a5a5a5a

const defaultStepLimit = 10_000_000

type storageKeyT struct {
	kind   ValueKindT
	number int
}

type EnvT struct {
	values map[storageKeyT]int64
}

func newEnv() *EnvT {
	return &EnvT{values: map[storageKeyT]int64{}}
}

func storageKey(value ValueT) storageKeyT {
	switch v := value.(type) {
	case *VariableT:
		return storageKeyT{VariableValue, v.Number}
	case *RegisterT:
		return storageKeyT{RegisterValue, v.Number}
	case *StackSlotT:
		return storageKeyT{StackSlotValue, v.Index}
	}
	panic(fmt.Sprintf("value %s has no storage", value))
}

// Unset storage reads as zero.
func (env *EnvT) Get(value ValueT) int64 {
	if constant, ok := value.(*ConstantT); ok {
		return constant.Value
	}
	return env.values[storageKey(value)]
}

func (env *EnvT) Set(value ValueT, n int64) {
	env.values[storageKey(value)] = n
}

// Arguments are put in the function's parameter registers and the
// results are read from the values returned.  Float arguments and
// results are float64 bits.

func Evaluate(function *FunctionT, target *RegisterConfigT, args []int64) ([]int64, error) {
	return evaluate(function, target, args, defaultStepLimit)
}

func evaluate(function *FunctionT, target *RegisterConfigT, args []int64, stepLimit int) ([]int64, error) {
	if len(args) != len(function.Parameters) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d",
			function.Name, len(function.Parameters), len(args))
	}
	env := newEnv()
	for i, arg := range args {
		env.Set(function.Parameters[i], arg)
	}
	callerSaved := target.CallerSaved()
	block := function.Blocks[0]
	index := 0
	for steps := 0; ; steps++ {
		if stepLimit <= steps {
			return nil, fmt.Errorf("%s: no result after %d steps", function.Name, steps)
		}
		if len(block.Instructions) <= index {
			return nil, fmt.Errorf("%s: fell off the end of block %s", function.Name, block.Name)
		}
		instr := block.Instructions[index]
		index += 1
		// fmt.Printf("eval %s %s\n", block.Name, instr)
		switch instr.Opcode {
		case LabelOp, NopOp:
		case MoveOp, StackMoveOp:
			env.Set(instr.Defs[0].Value, env.Get(instr.Uses[0].Value))
		case BinaryOp:
			result, err := evalBinary(instr.Operator,
				instr.Uses[0].Value,
				env.Get(instr.Uses[0].Value),
				env.Get(instr.Uses[1].Value))
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", function.Name, instr, err)
			}
			env.Set(instr.Defs[0].Value, result)
		case UnaryOp:
			env.Set(instr.Defs[0].Value,
				evalUnary(instr.Operator, instr.Uses[0].Value, env.Get(instr.Uses[0].Value)))
		case ClobberOp:
			for _, reg := range callerSaved {
				env.Set(reg, ClobberValue)
			}
		case JumpOp:
			block = passValues(env, instr, instr.Targets[0])
			index = 0
		case BranchOp:
			result, err := evalBinary(instr.Operator,
				instr.Uses[0].Value,
				env.Get(instr.Uses[0].Value),
				env.Get(instr.Uses[1].Value))
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", function.Name, instr, err)
			}
			if result != 0 {
				block = passValues(env, instr, instr.Targets[0])
			} else {
				block = passValues(env, instr, instr.Targets[1])
			}
			index = 0
		case ReturnOp:
			results := make([]int64, len(instr.Uses))
			for i, operand := range instr.Uses {
				results[i] = env.Get(operand.Value)
			}
			return results, nil
		default:
			return nil, fmt.Errorf("%s: cannot evaluate %s", function.Name, instr)
		}
	}
}

// The values are all read before any are written, as with phis.
func passValues(env *EnvT, instr *InstructionT, target *BlockT) *BlockT {
	if len(instr.Alives) == 0 {
		return target
	}
	values := make([]int64, len(instr.Alives))
	for i, operand := range instr.Alives {
		values[i] = env.Get(operand.Value)
	}
	for i, operand := range target.PhiIns() {
		if i < len(values) {
			env.Set(operand.Value, values[i])
		}
	}
	return target
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// 'kindOf' supplies the platform kind of the operands.

func evalBinary(operator string, kindOf ValueT, x int64, y int64) (int64, error) {
	if kindOf.PlatformKind() == FloatKind {
		return evalFloatBinary(operator, math.Float64frombits(uint64(x)), math.Float64frombits(uint64(y)))
	}
	switch operator {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/", "%":
		if y == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		if operator == "/" {
			return x / y, nil
		}
		return x % y, nil
	case "&":
		return x & y, nil
	case "|":
		return x | y, nil
	case "^":
		return x ^ y, nil
	case "&^":
		return x &^ y, nil
	case "<<":
		return x << uint64(y), nil
	case ">>":
		return x >> uint64(y), nil
	case "==":
		return boolValue(x == y), nil
	case "!=":
		return boolValue(x != y), nil
	case "<":
		return boolValue(x < y), nil
	case "<=":
		return boolValue(x <= y), nil
	case ">":
		return boolValue(x > y), nil
	case ">=":
		return boolValue(x >= y), nil
	}
	return 0, fmt.Errorf("unknown operator %s", operator)
}

func evalFloatBinary(operator string, x float64, y float64) (int64, error) {
	float := func(z float64) int64 { return int64(math.Float64bits(z)) }
	switch operator {
	case "+":
		return float(x + y), nil
	case "-":
		return float(x - y), nil
	case "*":
		return float(x * y), nil
	case "/":
		return float(x / y), nil
	case "==":
		return boolValue(x == y), nil
	case "!=":
		return boolValue(x != y), nil
	case "<":
		return boolValue(x < y), nil
	case "<=":
		return boolValue(x <= y), nil
	case ">":
		return boolValue(x > y), nil
	case ">=":
		return boolValue(x >= y), nil
	}
	return 0, fmt.Errorf("unknown float operator %s", operator)
}

func evalUnary(operator string, kindOf ValueT, x int64) int64 {
	switch operator {
	case "neg":
		if kindOf.PlatformKind() == FloatKind {
			return int64(math.Float64bits(-math.Float64frombits(uint64(x))))
		}
		return -x
	case "not":
		return boolValue(x == 0)
	case "com":
		return ^x
	case "itof":
		return int64(math.Float64bits(float64(x)))
	case "ftoi":
		return int64(math.Float64frombits(uint64(x)))
	}
	panic("unknown unary operator " + operator)
}
