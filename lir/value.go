// Copyright 2024 Richard Kelsey. All rights reserved.
// See file LICENSE for notices and license.

// Operand values: virtual variables, physical registers, stack slots
// and constants.

package lir

import (
	"math"
	"strconv"
)

type ValueKindT int

const (
	VariableValue ValueKindT = iota
	RegisterValue
	StackSlotValue
	ConstantValue
)

// What sort of machine value is being held, which determines the
// register category and the spill slot size.

type KindT int

const (
	IntKind KindT = iota
	FloatKind
)

func (kind KindT) String() string {
	switch kind {
	case IntKind:
		return "int"
	case FloatKind:
		return "float"
	}
	return "kind" + strconv.Itoa(int(kind))
}

type ValueT interface {
	ValueKind() ValueKindT
	PlatformKind() KindT
	String() string
}

//----------------------------------------------------------------

type VariableT struct {
	Number   int
	Platform KindT
}

func (vart *VariableT) ValueKind() ValueKindT { return VariableValue }
func (vart *VariableT) PlatformKind() KindT   { return vart.Platform }

func (vart *VariableT) String() string {
	name := "v" + strconv.Itoa(vart.Number)
	if vart.Platform == FloatKind {
		name += ":f"
	}
	return name
}

type StackSlotT struct {
	Index    int
	Platform KindT
}

func (slot *StackSlotT) ValueKind() ValueKindT { return StackSlotValue }
func (slot *StackSlotT) PlatformKind() KindT   { return slot.Platform }
func (slot *StackSlotT) String() string        { return "s" + strconv.Itoa(slot.Index) }

// Float constants hold the bits of a float64.

type ConstantT struct {
	Value    int64
	Platform KindT
}

func IntConstant(n int64) *ConstantT {
	return &ConstantT{Value: n, Platform: IntKind}
}

func FloatConstant(x float64) *ConstantT {
	return &ConstantT{Value: int64(math.Float64bits(x)), Platform: FloatKind}
}

func (constant *ConstantT) ValueKind() ValueKindT { return ConstantValue }
func (constant *ConstantT) PlatformKind() KindT   { return constant.Platform }

func (constant *ConstantT) String() string {
	if constant.Platform == FloatKind {
		return "(float " + strconv.FormatFloat(math.Float64frombits(uint64(constant.Value)), 'g', -1, 64) + ")"
	}
	return strconv.FormatInt(constant.Value, 10)
}

//----------------------------------------------------------------

func IsVariable(value ValueT) bool {
	return value != nil && value.ValueKind() == VariableValue
}

func IsRegister(value ValueT) bool {
	return value != nil && value.ValueKind() == RegisterValue
}

func IsStackSlot(value ValueT) bool {
	return value != nil && value.ValueKind() == StackSlotValue
}

func IsConstant(value ValueT) bool {
	return value != nil && value.ValueKind() == ConstantValue
}

// True if the two values name the same storage (or the same
// constant).

func SameLocation(x ValueT, y ValueT) bool {
	if x == nil || y == nil || x.ValueKind() != y.ValueKind() {
		return false
	}
	switch x.ValueKind() {
	case VariableValue:
		return x.(*VariableT).Number == y.(*VariableT).Number
	case RegisterValue:
		return x.(*RegisterT).Number == y.(*RegisterT).Number
	case StackSlotValue:
		return x.(*StackSlotT).Index == y.(*StackSlotT).Index
	case ConstantValue:
		return x.(*ConstantT).Value == y.(*ConstantT).Value
	}
	return false
}
